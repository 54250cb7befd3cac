//go:build !linux

package tunnel

import (
	"context"
	"fmt"
	"time"
)

// WireGuard reconciliation needs the kernel module; only Linux is supported.
type WireGuard struct {
	Interface string
}

var _ Controller = (*WireGuard)(nil)

type PeerStat struct {
	PublicKey     string
	Endpoint      string
	LastHandshake time.Time
	RxBytes       int64
	TxBytes       int64
}

func (w *WireGuard) SyncPeers(context.Context, []PeerSpec) error {
	return fmt.Errorf("wireguard reconciliation is only supported on linux")
}

func (w *WireGuard) Reload(context.Context) error {
	return fmt.Errorf("wireguard reconciliation is only supported on linux")
}

func (w *WireGuard) PeerStats(context.Context) ([]PeerStat, error) {
	return nil, fmt.Errorf("wireguard reconciliation is only supported on linux")
}
