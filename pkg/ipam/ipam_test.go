package ipam

import (
	"errors"
	"net/netip"
	"testing"

	"peerctl"
)

func mustAddr(t *testing.T, s string) netip.Addr {
	t.Helper()
	a, err := netip.ParseAddr(s)
	if err != nil {
		t.Fatalf("parse addr %q: %v", s, err)
	}
	return a
}

func TestNextHost(t *testing.T) {
	pool := netip.MustParsePrefix("10.66.66.0/24")

	tests := []struct {
		name      string
		poolSize  int
		allocated []string
		want      string
		wantErr   error
	}{
		{
			name: "empty registry starts at offset 2",
			want: "10.66.66.2",
		},
		{
			name:      "one past the highest allocated",
			allocated: []string{"10.66.66.2", "10.66.66.3"},
			want:      "10.66.66.4",
		},
		{
			name:      "no reuse below the high-water mark",
			allocated: []string{"10.66.66.3"}, // .2 was freed by a remove
			want:      "10.66.66.4",
		},
		{
			name:      "addresses outside the pool are ignored",
			allocated: []string{"192.168.1.5", "10.66.66.2"},
			want:      "10.66.66.3",
		},
		{
			name:      "capacity reached",
			poolSize:  4,
			allocated: []string{"10.66.66.2", "10.66.66.3"},
			wantErr:   peerctl.ErrPoolExhausted,
		},
		{
			name:      "one below capacity still allocates",
			poolSize:  4,
			allocated: []string{"10.66.66.2"},
			want:      "10.66.66.3",
		},
		{
			name:      "subnet ceiling",
			allocated: []string{"10.66.66.254"},
			wantErr:   peerctl.ErrPoolExhausted,
		},
		{
			name:      "last usable host allocates",
			allocated: []string{"10.66.66.253"},
			want:      "10.66.66.254",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var allocated []netip.Addr
			for _, s := range tt.allocated {
				allocated = append(allocated, mustAddr(t, s))
			}
			got, err := NextHost(pool, tt.poolSize, allocated)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NextHost() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NextHost() error: %v", err)
			}
			if got != mustAddr(t, tt.want) {
				t.Fatalf("NextHost() = %s, want %s", got, tt.want)
			}
		})
	}
}

// Sequential adds must produce strictly increasing, unique addresses up to
// the capacity, then fail.
func TestNextHostSequence(t *testing.T) {
	pool := netip.MustParsePrefix("10.66.66.0/24")
	const poolSize = 10

	var allocated []netip.Addr
	seen := make(map[netip.Addr]bool)
	var prev netip.Addr

	for i := 0; i < poolSize-2; i++ {
		a, err := NextHost(pool, poolSize, allocated)
		if err != nil {
			t.Fatalf("allocation %d: %v", i, err)
		}
		if seen[a] {
			t.Fatalf("allocation %d: address %s issued twice", i, a)
		}
		if prev.IsValid() && a.Compare(prev) <= 0 {
			t.Fatalf("allocation %d: %s not above %s", i, a, prev)
		}
		seen[a] = true
		prev = a
		allocated = append(allocated, a)
	}

	if _, err := NextHost(pool, poolSize, allocated); !errors.Is(err, peerctl.ErrPoolExhausted) {
		t.Fatalf("allocation past capacity: error = %v, want ErrPoolExhausted", err)
	}
}

func TestNextHostRejectsBadPools(t *testing.T) {
	for _, s := range []string{"fd00::/64", "10.0.0.0/31", "10.0.0.0/32"} {
		pool := netip.MustParsePrefix(s)
		if _, err := NextHost(pool, 0, nil); err == nil {
			t.Errorf("NextHost(%s) error = nil, want error", s)
		}
	}
}

func TestHostOffset(t *testing.T) {
	pool := netip.MustParsePrefix("10.66.66.0/24")

	off, ok := HostOffset(pool, mustAddr(t, "10.66.66.7"))
	if !ok || off != 7 {
		t.Fatalf("HostOffset(10.66.66.7) = %d, %v; want 7, true", off, ok)
	}
	if _, ok := HostOffset(pool, mustAddr(t, "10.66.67.1")); ok {
		t.Fatal("HostOffset outside pool: ok = true, want false")
	}

	if got := AddrAtOffset(pool, 7); got != mustAddr(t, "10.66.66.7") {
		t.Fatalf("AddrAtOffset(7) = %s, want 10.66.66.7", got)
	}
}
