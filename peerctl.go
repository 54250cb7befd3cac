// Package peerctl holds the domain model for tunnel peer provisioning:
// peer records, server parameters, and the error taxonomy shared by the
// registry, renderer, and reconciler layers.
package peerctl

import (
	"net/netip"
	"time"
)

// Protocol selects the tunnel variant the server runs.
type Protocol string

const (
	// ProtocolWireGuard is the key-exchange variant. Peers are identified by
	// Curve25519 key pairs and removal erases the record.
	ProtocolWireGuard Protocol = "wireguard"
	// ProtocolOpenVPN is the certificate-based variant. Peers are identified
	// by CA-issued certificates and removal revokes, never deletes.
	ProtocolOpenVPN Protocol = "openvpn"
)

// Valid reports whether p is a known protocol.
func (p Protocol) Valid() bool {
	return p == ProtocolWireGuard || p == ProtocolOpenVPN
}

// PeerStatus is the lifecycle state of a peer record.
type PeerStatus uint8

const (
	PeerActive PeerStatus = iota + 1
	// PeerRevoked only occurs for the OpenVPN variant, which keeps revoked
	// records for audit instead of deleting them.
	PeerRevoked
)

func (s PeerStatus) String() string {
	switch s {
	case PeerActive:
		return "active"
	case PeerRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// PeerRecord is one provisioned peer. Records are immutable after issuance
// except for Status, which transitions Active→Revoked on removal in the
// OpenVPN variant.
type PeerRecord struct {
	ID          string
	Name        string
	VirtualAddr netip.Addr
	// PublicIdentity is the peer's public key material: a base64 Curve25519
	// key for WireGuard, a certificate serial for OpenVPN.
	PublicIdentity string
	// PresharedKey is set for the WireGuard variant only.
	PresharedKey string
	Status       PeerStatus
	IssuedAt     time.Time
}

// ServerParameters is the server-side state peer operations read but never
// mutate. It is produced by `peerctl init` and loaded from server.yaml.
type ServerParameters struct {
	Protocol Protocol
	// Endpoint is the public address clients dial, without port.
	Endpoint   string
	ListenPort int
	// PublicIdentity is the server's WireGuard public key. Empty for OpenVPN,
	// where trust flows from the CA root instead.
	PublicIdentity string
	// Subnet is the private tunnel network. The first usable host is the
	// server itself; peers are allocated from the second onward.
	Subnet netip.Prefix
	// PoolSize caps the address pool including the two reserved addresses
	// (network and server), so at most PoolSize-2 peers can be active at
	// once. Zero means the subnet size is the only limit.
	PoolSize int
	DNS      []netip.Addr
	// Interface is the tunnel interface name (WireGuard variant).
	Interface string
	// StatusFile is the OpenVPN status log parsed by `connected`.
	StatusFile string
	// ServerConfig is the OpenVPN server configuration file, amended once
	// when the first revocation enables crl-verify.
	ServerConfig string
}

// ServerAddr returns the server's own address inside the tunnel subnet
// (first usable host).
func (p ServerParameters) ServerAddr() netip.Addr {
	return p.Subnet.Masked().Addr().Next()
}

// ConnectedPeer is a live-session snapshot joined against the registry.
// LastHandshake is filled for WireGuard peers, ConnectedSince for OpenVPN.
type ConnectedPeer struct {
	Name           string
	VirtualAddr    netip.Addr
	RemoteEndpoint string
	LastHandshake  time.Time
	ConnectedSince time.Time
	RxBytes        int64
	TxBytes        int64
}

// Online reports whether the session looks alive: a handshake within the
// last three minutes for WireGuard, or a status-file entry for OpenVPN.
func (c ConnectedPeer) Online(now time.Time) bool {
	if !c.ConnectedSince.IsZero() {
		return true
	}
	if c.LastHandshake.IsZero() {
		return false
	}
	return now.Sub(c.LastHandshake) <= 3*time.Minute
}
