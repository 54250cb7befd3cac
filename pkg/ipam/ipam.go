// Package ipam allocates peer addresses from the server's tunnel subnet.
//
// Allocation is monotonic: the next address is always one past the highest
// host offset currently issued, and addresses freed by removal below the
// high-water mark are never reused. This matches the established allocation
// policy; gap-filling would change observable behavior under churn.
package ipam

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"peerctl"
)

// FirstPeerOffset is the host offset of the first peer address. Offset 0 is
// the network address and offset 1 is the server itself.
const FirstPeerOffset = 2

// NextHost returns the next free peer address in pool.
//
// poolSize caps the pool including the two reserved addresses, so at most
// poolSize-2 peers can hold addresses at once; zero means the subnet size is
// the only limit. allocated is the full set of currently issued addresses.
func NextHost(pool netip.Prefix, poolSize int, allocated []netip.Addr) (netip.Addr, error) {
	if !pool.IsValid() {
		return netip.Addr{}, fmt.Errorf("pool cidr is required")
	}
	pool = pool.Masked()
	if !pool.Addr().Is4() {
		return netip.Addr{}, fmt.Errorf("only ipv4 pools are supported")
	}
	if pool.Bits() > 30 {
		return netip.Addr{}, fmt.Errorf("pool %s too small for peer allocation", pool)
	}

	size := uint32(1) << (32 - pool.Bits())
	lastUsable := size - 2 // reserve the broadcast-equivalent address

	high := uint32(FirstPeerOffset - 1)
	inPool := 0
	for _, a := range allocated {
		off, ok := HostOffset(pool, a)
		if !ok {
			continue
		}
		inPool++
		if off > high {
			high = off
		}
	}

	if poolSize > 2 && inPool >= poolSize-2 {
		return netip.Addr{}, fmt.Errorf("pool %s at capacity (%d peers): %w", pool, inPool, peerctl.ErrPoolExhausted)
	}

	next := high + 1
	if next > lastUsable {
		return netip.Addr{}, fmt.Errorf("no host above offset %d in %s: %w", high, pool, peerctl.ErrPoolExhausted)
	}
	return AddrAtOffset(pool, next), nil
}

// HostOffset returns the host-portion offset of addr within pool.
// The bool is false when addr is outside the pool or not IPv4.
func HostOffset(pool netip.Prefix, addr netip.Addr) (uint32, bool) {
	if !addr.Is4() || !pool.Contains(addr) {
		return 0, false
	}
	base := pool.Masked().Addr().As4()
	a := addr.As4()
	return binary.BigEndian.Uint32(a[:]) - binary.BigEndian.Uint32(base[:]), true
}

// AddrAtOffset returns the address at the given host offset within pool.
func AddrAtOffset(pool netip.Prefix, offset uint32) netip.Addr {
	base := pool.Masked().Addr().As4()
	v := binary.BigEndian.Uint32(base[:]) + offset
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}
