// Package identity generates WireGuard peer credentials.
package identity

import (
	"fmt"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"peerctl"
)

// WireGuard bundles a freshly generated peer key pair and preshared key.
type WireGuard struct {
	PrivateKey   wgtypes.Key
	PublicKey    wgtypes.Key
	PresharedKey wgtypes.Key
}

// NewWireGuard generates a new peer identity. Generation is stateless; a
// failing entropy source is fatal and never retried.
func NewWireGuard() (WireGuard, error) {
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return WireGuard{}, fmt.Errorf("generate private key: %w: %w", peerctl.ErrEntropyUnavailable, err)
	}
	psk, err := wgtypes.GenerateKey()
	if err != nil {
		return WireGuard{}, fmt.Errorf("generate preshared key: %w: %w", peerctl.ErrEntropyUnavailable, err)
	}
	return WireGuard{
		PrivateKey:   priv,
		PublicKey:    priv.PublicKey(),
		PresharedKey: psk,
	}, nil
}
