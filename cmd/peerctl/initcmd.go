package main

import (
	"fmt"
	"net/netip"

	"github.com/spf13/cobra"

	"peerctl"
	"peerctl/cmd/peerctl/ui"
	"peerctl/internal/manager"
)

func initCmd(dataDir *string) *cobra.Command {
	var (
		protocol     string
		endpoint     string
		port         int
		subnet       string
		poolSize     int
		dns          []string
		iface        string
		statusFile   string
		serverConfig string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize server state for peer provisioning",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := manager.InitOptions{
				Protocol:     peerctl.Protocol(protocol),
				Endpoint:     endpoint,
				ListenPort:   port,
				PoolSize:     poolSize,
				Interface:    iface,
				StatusFile:   statusFile,
				ServerConfig: serverConfig,
			}
			if subnet != "" {
				p, err := netip.ParsePrefix(subnet)
				if err != nil {
					return fmt.Errorf("parse subnet: %w", err)
				}
				opts.Subnet = p
			}
			for _, s := range dns {
				a, err := netip.ParseAddr(s)
				if err != nil {
					return fmt.Errorf("parse dns server %q: %w", s, err)
				}
				opts.DNS = append(opts.DNS, a)
			}

			params, err := manager.Init(*dataDir, opts)
			if err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("initialized %s server %s (%s)",
				params.Protocol, ui.Bold(params.Endpoint), params.Subnet))
			return nil
		},
	}
	cmd.Flags().StringVar(&protocol, "protocol", "wireguard", "Tunnel protocol: wireguard or openvpn")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Public address clients dial (required)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (default 51820 wireguard, 1194 openvpn)")
	cmd.Flags().StringVar(&subnet, "subnet", "", "Tunnel subnet CIDR")
	cmd.Flags().IntVar(&poolSize, "pool-size", 0, "Address pool ceiling including reserved addresses (0 = subnet size)")
	cmd.Flags().StringSliceVar(&dns, "dns", nil, "DNS servers pushed to clients")
	cmd.Flags().StringVar(&iface, "interface", "", "WireGuard interface name")
	cmd.Flags().StringVar(&statusFile, "status-file", "", "OpenVPN status file path")
	cmd.Flags().StringVar(&serverConfig, "server-config", "", "OpenVPN server configuration file path")
	_ = cmd.MarkFlagRequired("endpoint")
	return cmd
}
