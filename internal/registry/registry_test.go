package registry

import (
	"context"
	"errors"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"peerctl"
)

func openTest(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func record(name, addr string) peerctl.PeerRecord {
	return peerctl.PeerRecord{
		ID:             uuid.NewString(),
		Name:           name,
		VirtualAddr:    netip.MustParseAddr(addr),
		PublicIdentity: "pub-" + name,
		Status:         peerctl.PeerActive,
		IssuedAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAppendAndGet(t *testing.T) {
	r := openTest(t)
	ctx := context.Background()

	if err := r.Append(ctx, record("laptop", "10.66.66.2")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	ok, err := r.Exists(ctx, "laptop")
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v; want true, nil", ok, err)
	}

	rec, err := r.Get(ctx, "laptop")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if rec.VirtualAddr != netip.MustParseAddr("10.66.66.2") {
		t.Errorf("VirtualAddr = %s, want 10.66.66.2", rec.VirtualAddr)
	}
	if rec.PublicIdentity != "pub-laptop" {
		t.Errorf("PublicIdentity = %q, want pub-laptop", rec.PublicIdentity)
	}
	if !rec.IssuedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("IssuedAt = %s", rec.IssuedAt)
	}
}

func TestAppendDuplicateNameLeavesRegistryUnchanged(t *testing.T) {
	r := openTest(t)
	ctx := context.Background()

	if err := r.Append(ctx, record("laptop", "10.66.66.2")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	err := r.Append(ctx, record("laptop", "10.66.66.3"))
	if !errors.Is(err, peerctl.ErrDuplicateName) {
		t.Fatalf("Append() error = %v, want ErrDuplicateName", err)
	}

	records, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(records) != 1 || records[0].VirtualAddr != netip.MustParseAddr("10.66.66.2") {
		t.Fatalf("registry mutated by failed append: %+v", records)
	}
}

func TestDeleteUnknownName(t *testing.T) {
	r := openTest(t)
	err := r.Delete(context.Background(), "ghost")
	if !errors.Is(err, peerctl.ErrNotFound) {
		t.Fatalf("Delete() error = %v, want ErrNotFound", err)
	}
}

// Key-exchange variant lifecycle: add, remove, add again under the same name.
func TestNameReusableAfterDelete(t *testing.T) {
	r := openTest(t)
	ctx := context.Background()

	if err := r.Append(ctx, record("x", "10.66.66.2")); err != nil {
		t.Fatalf("first Append() error: %v", err)
	}
	if err := r.Delete(ctx, "x"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := r.Append(ctx, record("x", "10.66.66.3")); err != nil {
		t.Fatalf("re-Append() error: %v", err)
	}

	records, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(List()) = %d, want 1 (delete erases history)", len(records))
	}
}

// Certificate variant lifecycle: revoke keeps the record for audit and the
// name becomes available for a fresh identity.
func TestRevokeKeepsAuditRecord(t *testing.T) {
	r := openTest(t)
	ctx := context.Background()

	if err := r.Append(ctx, record("x", "10.66.66.2")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	revoked, err := r.Revoke(ctx, "x")
	if err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}
	if revoked.Status != peerctl.PeerRevoked {
		t.Fatalf("revoked.Status = %v, want PeerRevoked", revoked.Status)
	}

	// Re-adding the same name must succeed while the revoked record remains.
	if err := r.Append(ctx, record("x", "10.66.66.3")); err != nil {
		t.Fatalf("Append() after revoke error: %v", err)
	}

	all, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(List()) = %d, want 2", len(all))
	}
	if all[0].Status != peerctl.PeerRevoked || all[1].Status != peerctl.PeerActive {
		t.Fatalf("statuses = %v, %v; want revoked, active", all[0].Status, all[1].Status)
	}

	active, err := r.Active(ctx)
	if err != nil {
		t.Fatalf("Active() error: %v", err)
	}
	if len(active) != 1 || active[0].VirtualAddr != netip.MustParseAddr("10.66.66.3") {
		t.Fatalf("Active() = %+v, want just the fresh record", active)
	}

	// Revoking a name with no active record fails.
	if _, err := r.Revoke(ctx, "ghost"); !errors.Is(err, peerctl.ErrNotFound) {
		t.Fatalf("Revoke(ghost) error = %v, want ErrNotFound", err)
	}
}

// Insertion order is issuance order; the allocator depends on it.
func TestListPreservesIssuanceOrder(t *testing.T) {
	r := openTest(t)
	ctx := context.Background()

	names := []string{"laptop", "phone", "tablet"}
	for i, name := range names {
		rec := record(name, netip.AddrFrom4([4]byte{10, 66, 66, byte(2 + i)}).String())
		if err := r.Append(ctx, rec); err != nil {
			t.Fatalf("Append(%s) error: %v", name, err)
		}
	}

	records, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	for i, name := range names {
		if records[i].Name != name {
			t.Fatalf("records[%d].Name = %q, want %q", i, records[i].Name, name)
		}
	}
}

// The registry survives process restart: everything is read back from disk.
func TestReopenSeesPersistedState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.db")
	ctx := context.Background()

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := r.Append(ctx, record("laptop", "10.66.66.2")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	r2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer r2.Close()

	ok, err := r2.Exists(ctx, "laptop")
	if err != nil || !ok {
		t.Fatalf("Exists() after reopen = %v, %v; want true, nil", ok, err)
	}
}
