package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"peerctl"
	"peerctl/cmd/peerctl/ui"
	"peerctl/internal/manager"
)

func listCmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List peers in issuance order",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager.Open(*dataDir)
			if err != nil {
				return err
			}
			defer m.Close()

			records, err := m.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println(ui.Muted("no peers"))
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, r := range records {
				status := r.Status.String()
				if r.Status == peerctl.PeerRevoked {
					status = ui.ErrorStyle.Render(status)
				}
				rows = append(rows, []string{
					r.Name,
					r.VirtualAddr.String(),
					status,
					r.IssuedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Println(ui.Table([]string{"Name", "Address", "Status", "Issued"}, rows))
			return nil
		},
	}
}
