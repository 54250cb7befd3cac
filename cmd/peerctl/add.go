package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"peerctl/cmd/peerctl/ui"
	"peerctl/internal/manager"
)

func addCmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Provision a new peer and render its client bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager.Open(*dataDir)
			if err != nil {
				return err
			}
			defer m.Close()

			res, err := m.Add(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Println(ui.SuccessMsg("peer %s added (%s)",
				ui.Bold(res.Record.Name), res.Record.VirtualAddr))
			fmt.Println(ui.Muted("client bundle: " + res.ArtifactPath))
			if res.ReconcileErr != nil {
				fmt.Println(ui.WarnMsg("live apply failed: %v", res.ReconcileErr))
				fmt.Println(ui.Muted("the peer is registered; re-run a peer command or restart the service to apply"))
			}
			return nil
		},
	}
}
