package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"peerctl/cmd/peerctl/ui"
	"peerctl/internal/manager"
)

func exportCmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write the server config projection derived from the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager.Open(*dataDir)
			if err != nil {
				return err
			}
			defer m.Close()

			path, err := m.Export(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("server projection at %s", ui.Bold(path)))
			return nil
		},
	}
}
