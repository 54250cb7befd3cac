package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"peerctl/cmd/peerctl/ui"
	"peerctl/internal/manager"
)

func removeCmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Deprovision a peer (revokes its certificate on OpenVPN servers)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager.Open(*dataDir)
			if err != nil {
				return err
			}
			defer m.Close()

			res, err := m.Remove(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if res.Revoked {
				fmt.Println(ui.SuccessMsg("peer %s revoked (%s)",
					ui.Bold(res.Record.Name), res.Record.VirtualAddr))
			} else {
				fmt.Println(ui.SuccessMsg("peer %s removed (%s)",
					ui.Bold(res.Record.Name), res.Record.VirtualAddr))
			}
			if res.ReconcileErr != nil {
				fmt.Println(ui.WarnMsg("live apply failed: %v", res.ReconcileErr))
				fmt.Println(ui.Muted("the registry is updated; re-run a peer command or restart the service to apply"))
			}
			return nil
		},
	}
}
