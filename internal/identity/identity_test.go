package identity

import "testing"

func TestNewWireGuard(t *testing.T) {
	a, err := NewWireGuard()
	if err != nil {
		t.Fatalf("NewWireGuard() error: %v", err)
	}
	if a.PublicKey != a.PrivateKey.PublicKey() {
		t.Fatal("public key does not match private key")
	}
	if a.PresharedKey == a.PrivateKey || a.PresharedKey == a.PublicKey {
		t.Fatal("preshared key collides with key pair")
	}

	b, err := NewWireGuard()
	if err != nil {
		t.Fatalf("NewWireGuard() error: %v", err)
	}
	if a.PrivateKey == b.PrivateKey || a.PresharedKey == b.PresharedKey {
		t.Fatal("two generations produced identical key material")
	}
}
