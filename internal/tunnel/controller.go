// Package tunnel applies registry changes to the running tunnel.
//
// The Controller interface keeps the reconciliation algorithm testable with
// a fake; the real implementations talk to the kernel WireGuard module
// through wgctrl and to the OpenVPN service through the supervisor.
package tunnel

import (
	"context"
	"net/netip"
)

// PeerSpec is the desired live state for one peer.
type PeerSpec struct {
	PublicKey    string
	PresharedKey string
	Addr         netip.Addr
}

// Controller reconciles the running tunnel with the registry.
type Controller interface {
	// SyncPeers brings the live peer set to exactly the desired set.
	// Peers present in both states keep their sessions untouched.
	SyncPeers(ctx context.Context, desired []PeerSpec) error
	// Reload makes the running process pick up non-peer state, such as a
	// regenerated revocation list.
	Reload(ctx context.Context) error
}

// StatsReader is implemented by controllers that can report live sessions.
type StatsReader interface {
	PeerStats(ctx context.Context) ([]PeerStat, error)
}
