// Package config persists the server parameters produced by `peerctl init`.
//
// Everything lives under one data directory (default /var/lib/peerctl,
// overridable with PEERCTL_DATA_DIR or --data-dir): server.yaml holds the
// parameters, registry.db is the peer registry, clients/ receives rendered
// artifacts, and pki/ holds the certificate authority for OpenVPN servers.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"peerctl"
)

// DefaultDataDir returns the data directory, honoring PEERCTL_DATA_DIR.
func DefaultDataDir() string {
	if dir := os.Getenv("PEERCTL_DATA_DIR"); dir != "" {
		return dir
	}
	return "/var/lib/peerctl"
}

// Path returns the server parameters file inside dir.
func Path(dir string) string { return filepath.Join(dir, "server.yaml") }

// RegistryPath returns the peer registry database inside dir.
func RegistryPath(dir string) string { return filepath.Join(dir, "registry.db") }

// ArtifactDir returns the directory rendered client bundles are written to.
func ArtifactDir(dir string) string { return filepath.Join(dir, "clients") }

// PKIDir returns the certificate authority store inside dir.
func PKIDir(dir string) string { return filepath.Join(dir, "pki") }

// ServerKeyPath returns the WireGuard server private key file inside dir.
func ServerKeyPath(dir string) string { return filepath.Join(dir, "server.key") }

// file is the on-disk shape of server.yaml. Addresses stay strings here and
// are parsed into netip types on load.
type file struct {
	Protocol       string   `yaml:"protocol"`
	Endpoint       string   `yaml:"endpoint"`
	ListenPort     int      `yaml:"listen_port"`
	PublicIdentity string   `yaml:"public_identity,omitempty"`
	Subnet         string   `yaml:"subnet"`
	PoolSize       int      `yaml:"pool_size,omitempty"`
	DNS            []string `yaml:"dns,omitempty"`
	Interface      string   `yaml:"interface,omitempty"`
	StatusFile     string   `yaml:"status_file,omitempty"`
	ServerConfig   string   `yaml:"server_config,omitempty"`
}

// Load reads server parameters from dir. A missing file means the installer
// has not run and maps to ErrServerNotInitialized.
func Load(dir string) (peerctl.ServerParameters, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return peerctl.ServerParameters{}, fmt.Errorf("%s: %w", Path(dir), peerctl.ErrServerNotInitialized)
		}
		return peerctl.ServerParameters{}, fmt.Errorf("read server parameters: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return peerctl.ServerParameters{}, fmt.Errorf("parse server parameters: %w", err)
	}
	return f.params()
}

// Save writes server parameters into dir, creating it as needed. The data
// directory is owner-only: it holds peer secrets.
func Save(dir string, params peerctl.ServerParameters) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	f := file{
		Protocol:       string(params.Protocol),
		Endpoint:       params.Endpoint,
		ListenPort:     params.ListenPort,
		PublicIdentity: params.PublicIdentity,
		Subnet:         params.Subnet.String(),
		PoolSize:       params.PoolSize,
		Interface:      params.Interface,
		StatusFile:     params.StatusFile,
		ServerConfig:   params.ServerConfig,
	}
	for _, d := range params.DNS {
		f.DNS = append(f.DNS, d.String())
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal server parameters: %w", err)
	}
	if err := os.WriteFile(Path(dir), data, 0o600); err != nil {
		return fmt.Errorf("write server parameters: %w", err)
	}
	return nil
}

func (f file) params() (peerctl.ServerParameters, error) {
	proto := peerctl.Protocol(f.Protocol)
	if !proto.Valid() {
		return peerctl.ServerParameters{}, fmt.Errorf("unknown protocol %q", f.Protocol)
	}
	subnet, err := netip.ParsePrefix(f.Subnet)
	if err != nil {
		return peerctl.ServerParameters{}, fmt.Errorf("parse subnet: %w", err)
	}
	if f.Endpoint == "" {
		return peerctl.ServerParameters{}, fmt.Errorf("endpoint is required")
	}
	if f.ListenPort <= 0 || f.ListenPort > 65535 {
		return peerctl.ServerParameters{}, fmt.Errorf("invalid listen port %d", f.ListenPort)
	}

	var dns []netip.Addr
	for _, s := range f.DNS {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return peerctl.ServerParameters{}, fmt.Errorf("parse dns server %q: %w", s, err)
		}
		dns = append(dns, a)
	}

	return peerctl.ServerParameters{
		Protocol:       proto,
		Endpoint:       f.Endpoint,
		ListenPort:     f.ListenPort,
		PublicIdentity: f.PublicIdentity,
		Subnet:         subnet,
		PoolSize:       f.PoolSize,
		DNS:            dns,
		Interface:      f.Interface,
		StatusFile:     f.StatusFile,
		ServerConfig:   f.ServerConfig,
	}, nil
}
