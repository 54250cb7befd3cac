package manager

import (
	"fmt"
	"net/netip"
	"os"

	"peerctl"
	"peerctl/config"
	"peerctl/internal/identity"
	"peerctl/internal/pki"
	"peerctl/internal/registry"
)

// InitOptions describes the server to initialize. Zero fields fall back to
// per-protocol defaults.
type InitOptions struct {
	Protocol     peerctl.Protocol
	Endpoint     string
	ListenPort   int
	Subnet       netip.Prefix
	PoolSize     int
	DNS          []netip.Addr
	Interface    string
	StatusFile   string
	ServerConfig string
}

// Init materializes the installer handoff: server identity, server.yaml,
// and the empty registry. Until it runs, every other operation fails with
// ErrServerNotInitialized. Initializing twice is an error.
func Init(dataDir string, opts InitOptions) (peerctl.ServerParameters, error) {
	if !opts.Protocol.Valid() {
		return peerctl.ServerParameters{}, fmt.Errorf("unknown protocol %q", opts.Protocol)
	}
	if opts.Endpoint == "" {
		return peerctl.ServerParameters{}, fmt.Errorf("endpoint is required")
	}
	if _, err := os.Stat(config.Path(dataDir)); err == nil {
		return peerctl.ServerParameters{}, fmt.Errorf("server already initialized at %s", dataDir)
	}

	params := peerctl.ServerParameters{
		Protocol:     opts.Protocol,
		Endpoint:     opts.Endpoint,
		ListenPort:   opts.ListenPort,
		Subnet:       opts.Subnet,
		PoolSize:     opts.PoolSize,
		DNS:          opts.DNS,
		Interface:    opts.Interface,
		StatusFile:   opts.StatusFile,
		ServerConfig: opts.ServerConfig,
	}
	applyDefaults(&params)

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return peerctl.ServerParameters{}, fmt.Errorf("create data dir: %w", err)
	}

	switch params.Protocol {
	case peerctl.ProtocolWireGuard:
		id, err := identity.NewWireGuard()
		if err != nil {
			return peerctl.ServerParameters{}, err
		}
		params.PublicIdentity = id.PublicKey.String()
		if err := os.WriteFile(config.ServerKeyPath(dataDir), []byte(id.PrivateKey.String()+"\n"), 0o600); err != nil {
			return peerctl.ServerParameters{}, fmt.Errorf("write server key: %w", err)
		}
	case peerctl.ProtocolOpenVPN:
		ca, err := pki.Create(config.PKIDir(dataDir), caCommonName)
		if err != nil {
			return peerctl.ServerParameters{}, err
		}
		// The server's own certificate, referenced by the service config.
		leaf, err := ca.IssueServer("server")
		if err != nil {
			return peerctl.ServerParameters{}, err
		}
		pkiDir := config.PKIDir(dataDir)
		if err := os.WriteFile(pkiDir+"/server.crt", leaf.CertPEM, 0o644); err != nil {
			return peerctl.ServerParameters{}, fmt.Errorf("write server certificate: %w", err)
		}
		if err := os.WriteFile(pkiDir+"/server.key", leaf.KeyPEM, 0o600); err != nil {
			return peerctl.ServerParameters{}, fmt.Errorf("write server key: %w", err)
		}
	}

	// The empty registry: created eagerly so a fresh install passes the
	// initialization check even before the first add.
	reg, err := registry.Open(config.RegistryPath(dataDir))
	if err != nil {
		return peerctl.ServerParameters{}, err
	}
	if err := reg.Close(); err != nil {
		return peerctl.ServerParameters{}, fmt.Errorf("close registry: %w", err)
	}

	if err := config.Save(dataDir, params); err != nil {
		return peerctl.ServerParameters{}, err
	}
	return params, nil
}

func applyDefaults(p *peerctl.ServerParameters) {
	switch p.Protocol {
	case peerctl.ProtocolWireGuard:
		if p.ListenPort == 0 {
			p.ListenPort = 51820
		}
		if !p.Subnet.IsValid() {
			p.Subnet = netip.MustParsePrefix("10.66.66.0/24")
		}
		if p.Interface == "" {
			p.Interface = "wg0"
		}
	case peerctl.ProtocolOpenVPN:
		if p.ListenPort == 0 {
			p.ListenPort = 1194
		}
		if !p.Subnet.IsValid() {
			p.Subnet = netip.MustParsePrefix("10.8.0.0/24")
		}
		if p.StatusFile == "" {
			p.StatusFile = "/var/log/openvpn/status.log"
		}
		if p.ServerConfig == "" {
			p.ServerConfig = "/etc/openvpn/server/server.conf"
		}
	}
	if len(p.DNS) == 0 {
		p.DNS = []netip.Addr{netip.MustParseAddr("1.1.1.1"), netip.MustParseAddr("1.0.0.1")}
	}
}
