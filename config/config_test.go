package config

import (
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"peerctl"
)

func TestLoadMissingFileIsNotInitialized(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	if !errors.Is(err, peerctl.ErrServerNotInitialized) {
		t.Fatalf("Load() error = %v, want ErrServerNotInitialized", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	params := peerctl.ServerParameters{
		Protocol:       peerctl.ProtocolWireGuard,
		Endpoint:       "vpn.example.org",
		ListenPort:     51820,
		PublicIdentity: "c2VydmVyLXB1YmxpYy1rZXk=",
		Subnet:         netip.MustParsePrefix("10.66.66.0/24"),
		PoolSize:       253,
		DNS:            []netip.Addr{netip.MustParseAddr("1.1.1.1"), netip.MustParseAddr("1.0.0.1")},
		Interface:      "wg0",
	}

	if err := Save(dir, params); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Protocol != params.Protocol {
		t.Errorf("Protocol = %q, want %q", got.Protocol, params.Protocol)
	}
	if got.Subnet != params.Subnet {
		t.Errorf("Subnet = %s, want %s", got.Subnet, params.Subnet)
	}
	if got.ListenPort != params.ListenPort {
		t.Errorf("ListenPort = %d, want %d", got.ListenPort, params.ListenPort)
	}
	if len(got.DNS) != 2 || got.DNS[0] != params.DNS[0] {
		t.Errorf("DNS = %v, want %v", got.DNS, params.DNS)
	}

	// server.yaml carries key material paths and must be owner-only.
	info, err := os.Stat(Path(dir))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("server.yaml mode = %o, want 600", perm)
	}
}

func TestLoadRejectsBadParameters(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown protocol", "protocol: pptp\nendpoint: e\nlisten_port: 1194\nsubnet: 10.8.0.0/24\n"},
		{"bad subnet", "protocol: wireguard\nendpoint: e\nlisten_port: 51820\nsubnet: nope\n"},
		{"missing endpoint", "protocol: wireguard\nlisten_port: 51820\nsubnet: 10.8.0.0/24\n"},
		{"bad port", "protocol: openvpn\nendpoint: e\nlisten_port: 70000\nsubnet: 10.8.0.0/24\n"},
		{"bad dns", "protocol: wireguard\nendpoint: e\nlisten_port: 51820\nsubnet: 10.8.0.0/24\ndns: [one.one]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "server.yaml"), []byte(tt.yaml), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(dir); err == nil {
				t.Fatal("Load() error = nil, want error")
			}
		})
	}
}

func TestServerAddr(t *testing.T) {
	p := peerctl.ServerParameters{Subnet: netip.MustParsePrefix("10.66.66.0/24")}
	if got := p.ServerAddr(); got != netip.MustParseAddr("10.66.66.1") {
		t.Fatalf("ServerAddr() = %s, want 10.66.66.1", got)
	}
}
