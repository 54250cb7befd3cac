// Package registry is the durable source of truth for peer records.
//
// The live store is SQLite; partial unique indexes enforce name and address
// uniqueness across active records inside the database itself, so the
// invariants hold even if two administrator processes race a read-modify-write.
// Rendered artifacts and the exported server config are derived projections
// and carry no authority of their own.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"peerctl"
	"peerctl/internal/check"
)

const schema = `
CREATE TABLE IF NOT EXISTS peers (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	virtual_addr    TEXT NOT NULL,
	public_identity TEXT NOT NULL,
	preshared_key   TEXT NOT NULL DEFAULT '',
	status          INTEGER NOT NULL,
	issued_at       TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS peers_active_name
	ON peers(name) WHERE status = 1;
CREATE UNIQUE INDEX IF NOT EXISTS peers_active_addr
	ON peers(virtual_addr) WHERE status = 1;
`

const recordColumns = `id, name, virtual_addr, public_identity, preshared_key, status, issued_at`

// Registry is a SQLite-backed peer registry. Safe for use from a single
// process; cross-process writers are serialized by SQLite's busy timeout
// and the unique indexes above.
type Registry struct {
	db *sql.DB
}

// Open opens (or creates) the registry database at path.
func Open(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply registry schema: %w", err)
	}

	return &Registry{db: db}, nil
}

func (r *Registry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Exists reports whether an active record with the given name exists.
func (r *Registry) Exists(ctx context.Context, name string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM peers WHERE name = ? AND status = ?`, name, peerctl.PeerActive).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check peer %q: %w", name, err)
	}
	return n > 0, nil
}

// Get returns the active record with the given name.
func (r *Registry) Get(ctx context.Context, name string) (peerctl.PeerRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM peers WHERE name = ? AND status = ?`, name, peerctl.PeerActive)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return peerctl.PeerRecord{}, fmt.Errorf("peer %q: %w", name, peerctl.ErrNotFound)
	}
	if err != nil {
		return peerctl.PeerRecord{}, fmt.Errorf("load peer %q: %w", name, err)
	}
	return rec, nil
}

// List returns every record, revoked included, in issuance order.
func (r *Registry) List(ctx context.Context) ([]peerctl.PeerRecord, error) {
	return r.query(ctx, `SELECT `+recordColumns+` FROM peers ORDER BY rowid`)
}

// Active returns active records in issuance order. This is the snapshot the
// allocator and the reconciler both consume.
func (r *Registry) Active(ctx context.Context) ([]peerctl.PeerRecord, error) {
	return r.query(ctx,
		`SELECT `+recordColumns+` FROM peers WHERE status = ? ORDER BY rowid`, peerctl.PeerActive)
}

// Append inserts a new active record. It fails with ErrDuplicateName when an
// active record with the same name exists; the duplicate check and the insert
// run in one transaction so a concurrent add cannot slip between them.
func (r *Registry) Append(ctx context.Context, rec peerctl.PeerRecord) error {
	check.Assertf(rec.Status == peerctl.PeerActive, "appending non-active record %q", rec.Name)
	check.Assert(rec.VirtualAddr.IsValid(), "appending record without address")

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w: %w", peerctl.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM peers WHERE name = ? AND status = ?`, rec.Name, peerctl.PeerActive).Scan(&n); err != nil {
		return fmt.Errorf("check peer %q: %w", rec.Name, err)
	}
	if n > 0 {
		return fmt.Errorf("peer %q: %w", rec.Name, peerctl.ErrDuplicateName)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO peers (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Name,
		rec.VirtualAddr.String(),
		rec.PublicIdentity,
		rec.PresharedKey,
		rec.Status,
		rec.IssuedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert peer %q: %w: %w", rec.Name, peerctl.ErrPersistence, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit peer %q: %w: %w", rec.Name, peerctl.ErrPersistence, err)
	}
	return nil
}

// Delete erases the active record with the given name. This is the
// key-exchange variant's removal: no history is kept and the name becomes
// reusable immediately.
func (r *Registry) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM peers WHERE name = ? AND status = ?`, name, peerctl.PeerActive)
	if err != nil {
		return fmt.Errorf("delete peer %q: %w: %w", name, peerctl.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete peer %q: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("peer %q: %w", name, peerctl.ErrNotFound)
	}
	return nil
}

// Revoke transitions the active record with the given name to Revoked and
// returns it. This is the certificate variant's removal: the record stays
// listed for audit and its identity feeds the revocation list.
func (r *Registry) Revoke(ctx context.Context, name string) (peerctl.PeerRecord, error) {
	rec, err := r.Get(ctx, name)
	if err != nil {
		return peerctl.PeerRecord{}, err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE peers SET status = ? WHERE id = ? AND status = ?`,
		peerctl.PeerRevoked, rec.ID, peerctl.PeerActive)
	if err != nil {
		return peerctl.PeerRecord{}, fmt.Errorf("revoke peer %q: %w: %w", name, peerctl.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return peerctl.PeerRecord{}, fmt.Errorf("revoke peer %q: %w", name, err)
	}
	if n == 0 {
		return peerctl.PeerRecord{}, fmt.Errorf("peer %q: %w", name, peerctl.ErrNotFound)
	}

	rec.Status = peerctl.PeerRevoked
	return rec, nil
}

func (r *Registry) query(ctx context.Context, q string, args ...any) ([]peerctl.PeerRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	defer rows.Close()

	var records []peerctl.PeerRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list peers: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (peerctl.PeerRecord, error) {
	var (
		id, name, addrStr, identity, psk, issuedStr string
		status                                      int
	)
	if err := row.Scan(&id, &name, &addrStr, &identity, &psk, &status, &issuedStr); err != nil {
		return peerctl.PeerRecord{}, err
	}

	addr, err := netip.ParseAddr(addrStr)
	if err != nil {
		return peerctl.PeerRecord{}, fmt.Errorf("parse address for %s: %w", name, err)
	}
	issuedAt, err := time.Parse(time.RFC3339, issuedStr)
	if err != nil {
		return peerctl.PeerRecord{}, fmt.Errorf("parse issued_at for %s: %w", name, err)
	}

	return peerctl.PeerRecord{
		ID:             id,
		Name:           name,
		VirtualAddr:    addr,
		PublicIdentity: identity,
		PresharedKey:   psk,
		Status:         peerctl.PeerStatus(status),
		IssuedAt:       issuedAt,
	}, nil
}
