package render

import (
	"fmt"
	"strings"
	"time"

	"peerctl"
)

// OpenVPNClient is the material embedded into a unified .ovpn bundle.
type OpenVPNClient struct {
	Name      string
	CACertPEM []byte
	CertPEM   []byte
	KeyPEM    []byte
	TLSCrypt  []byte
}

// OpenVPNConf renders a unified client profile. The inline blocks appear in
// the order client software expects: authority certificate, peer
// certificate, peer private key, shared authentication key.
func OpenVPNConf(c OpenVPNClient, server peerctl.ServerParameters, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s (generated %s)\n", c.Name, now.UTC().Format(time.RFC3339))

	b.WriteString("client\n")
	b.WriteString("proto udp\n")
	b.WriteString("explicit-exit-notify\n")
	fmt.Fprintf(&b, "remote %s %d\n", server.Endpoint, server.ListenPort)
	b.WriteString("dev tun\n")
	b.WriteString("resolv-retry infinite\n")
	b.WriteString("nobind\n")
	b.WriteString("persist-key\n")
	b.WriteString("persist-tun\n")
	b.WriteString("remote-cert-tls server\n")
	b.WriteString("auth SHA256\n")
	b.WriteString("auth-nocache\n")
	b.WriteString("cipher AES-128-GCM\n")
	b.WriteString("tls-client\n")
	b.WriteString("tls-version-min 1.2\n")
	b.WriteString("tls-cipher TLS-ECDHE-ECDSA-WITH-AES-128-GCM-SHA256\n")
	b.WriteString("ignore-unknown-option block-outside-dns\n")
	b.WriteString("setenv opt block-outside-dns\n")
	for _, d := range server.DNS {
		fmt.Fprintf(&b, "dhcp-option DNS %s\n", d)
	}
	b.WriteString("verb 3\n")

	inline(&b, "ca", c.CACertPEM)
	inline(&b, "cert", c.CertPEM)
	inline(&b, "key", c.KeyPEM)
	inline(&b, "tls-crypt", c.TLSCrypt)

	return []byte(b.String())
}

func inline(b *strings.Builder, tag string, pem []byte) {
	fmt.Fprintf(b, "<%s>\n", tag)
	b.Write(pem)
	if len(pem) > 0 && pem[len(pem)-1] != '\n' {
		b.WriteByte('\n')
	}
	fmt.Fprintf(b, "</%s>\n", tag)
}
