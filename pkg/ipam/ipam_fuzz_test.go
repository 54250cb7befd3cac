package ipam

import (
	"net/netip"
	"testing"
)

func FuzzNextHost(f *testing.F) {
	f.Add("10.66.66.0/24", uint32(3))
	f.Add("10.8.0.0/16", uint32(100))
	f.Add("192.168.2.0/28", uint32(1))

	f.Fuzz(func(t *testing.T, poolStr string, highOffset uint32) {
		pool, err := netip.ParsePrefix(poolStr)
		if err != nil || !pool.Addr().Is4() || pool.Bits() > 30 {
			return
		}
		pool = pool.Masked()

		size := uint32(1) << (32 - pool.Bits())
		if highOffset >= size {
			return
		}
		var allocated []netip.Addr
		if highOffset >= FirstPeerOffset {
			allocated = append(allocated, AddrAtOffset(pool, highOffset))
		}

		result, err := NextHost(pool, 0, allocated)
		if err != nil {
			return
		}

		// Result within the pool.
		if !pool.Contains(result) {
			t.Errorf("result %v not within %v", result, pool)
		}

		// Result strictly above everything already allocated.
		for _, a := range allocated {
			if result.Compare(a) <= 0 {
				t.Errorf("result %v not above allocated %v", result, a)
			}
		}

		// Never the network, server, or broadcast-equivalent address.
		off, ok := HostOffset(pool, result)
		if !ok {
			t.Fatalf("result %v has no offset in %v", result, pool)
		}
		if off < FirstPeerOffset || off > size-2 {
			t.Errorf("result offset %d outside usable range of %v", off, pool)
		}
	})
}
