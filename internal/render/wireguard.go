package render

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"peerctl"
)

// keepaliveSeconds keeps NAT mappings warm; the value every client bundle
// ships with.
const keepaliveSeconds = 25

// WireGuardClient is everything needed to render one client bundle. The
// private key exists only here and in the written bundle; the registry keeps
// the public half.
type WireGuardClient struct {
	Name         string
	PrivateKey   string
	PresharedKey string
	Addr         netip.Addr
}

// WireGuardConf renders a wg-quick client configuration. All traffic is
// routed through the tunnel.
func WireGuardConf(c WireGuardClient, server peerctl.ServerParameters, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s (generated %s)\n\n", c.Name, now.UTC().Format(time.RFC3339))

	b.WriteString("[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", c.PrivateKey)
	fmt.Fprintf(&b, "Address = %s/32\n", c.Addr)
	if len(server.DNS) > 0 {
		fmt.Fprintf(&b, "DNS = %s\n", joinAddrs(server.DNS))
	}

	b.WriteString("\n[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", server.PublicIdentity)
	fmt.Fprintf(&b, "PresharedKey = %s\n", c.PresharedKey)
	fmt.Fprintf(&b, "Endpoint = %s:%d\n", server.Endpoint, server.ListenPort)
	b.WriteString("AllowedIPs = 0.0.0.0/0, ::/0\n")
	fmt.Fprintf(&b, "PersistentKeepalive = %d\n", keepaliveSeconds)

	return []byte(b.String())
}

// ServerConf renders the WireGuard server config projection: the exported,
// regenerable view of the registry. The registry database stays the source
// of truth.
func ServerConf(server peerctl.ServerParameters, serverPrivateKey string, peers []peerctl.PeerRecord) []byte {
	var b strings.Builder
	b.WriteString("[Interface]\n")
	fmt.Fprintf(&b, "Address = %s/%d\n", server.ServerAddr(), server.Subnet.Bits())
	fmt.Fprintf(&b, "ListenPort = %d\n", server.ListenPort)
	fmt.Fprintf(&b, "PrivateKey = %s\n", serverPrivateKey)

	for _, p := range peers {
		b.WriteString("\n[Peer]\n")
		fmt.Fprintf(&b, "# %s\n", p.Name)
		fmt.Fprintf(&b, "PublicKey = %s\n", p.PublicIdentity)
		if p.PresharedKey != "" {
			fmt.Fprintf(&b, "PresharedKey = %s\n", p.PresharedKey)
		}
		fmt.Fprintf(&b, "AllowedIPs = %s/32\n", p.VirtualAddr)
	}

	return []byte(b.String())
}

func joinAddrs(addrs []netip.Addr) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}
