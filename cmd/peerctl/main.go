// Command peerctl manages tunnel peers on a WireGuard or OpenVPN server:
// it allocates addresses, issues identities, renders client bundles, and
// keeps the running tunnel in sync with the peer registry.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"peerctl/config"
	"peerctl/internal/logging"
)

func main() {
	var (
		debug   bool
		dataDir string
	)
	if err := logging.Configure(logging.LevelWarn); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "peerctl",
		Short:         "Tunnel peer provisioning for WireGuard and OpenVPN servers",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelWarn
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", config.DefaultDataDir(), "Server state directory")

	root.AddCommand(initCmd(&dataDir))
	root.AddCommand(addCmd(&dataDir))
	root.AddCommand(removeCmd(&dataDir))
	root.AddCommand(listCmd(&dataDir))
	root.AddCommand(connectedCmd(&dataDir))
	root.AddCommand(exportCmd(&dataDir))

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}
}
