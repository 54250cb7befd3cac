package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"peerctl"
	"peerctl/cmd/peerctl/ui"
	"peerctl/internal/manager"
)

func connectedCmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "connected",
		Short: "Show peers with a live session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager.Open(*dataDir)
			if err != nil {
				return err
			}
			defer m.Close()

			peers, err := m.Connected(cmd.Context())
			if err != nil {
				return err
			}

			now := time.Now()
			rows := make([][]string, 0, len(peers))
			for _, p := range peers {
				if !p.Online(now) {
					continue
				}
				rows = append(rows, []string{
					p.Name,
					p.VirtualAddr.String(),
					p.RemoteEndpoint,
					seenColumn(p, now),
					fmt.Sprintf("%s / %s", sizeColumn(p.RxBytes), sizeColumn(p.TxBytes)),
				})
			}
			if len(rows) == 0 {
				fmt.Println(ui.Muted("no connected peers"))
				return nil
			}
			fmt.Println(ui.Table([]string{"Name", "Address", "Endpoint", "Seen", "Rx / Tx"}, rows))
			return nil
		},
	}
}

// seenColumn renders the liveness signal: handshake age for WireGuard,
// session start for OpenVPN.
func seenColumn(p peerctl.ConnectedPeer, now time.Time) string {
	switch {
	case !p.LastHandshake.IsZero():
		return now.Sub(p.LastHandshake).Truncate(time.Second).String() + " ago"
	case !p.ConnectedSince.IsZero():
		return "since " + p.ConnectedSince.Local().Format(time.DateTime)
	default:
		return "-"
	}
}

func sizeColumn(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
