//go:build linux

package tunnel

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// WireGuard reconciles peers on a kernel WireGuard interface.
type WireGuard struct {
	Interface string
}

var _ Controller = (*WireGuard)(nil)

// PeerStat is a live-session snapshot for one peer on the interface.
type PeerStat struct {
	PublicKey     string
	Endpoint      string
	LastHandshake time.Time
	RxBytes       int64
	TxBytes       int64
}

// SyncPeers resynchronizes the interface peer set from the desired state.
// Peers already configured are updated in place, missing peers are added,
// and peers absent from desired are removed; sessions of untouched peers
// are never reset.
func (w *WireGuard) SyncPeers(_ context.Context, desired []PeerSpec) error {
	if err := w.ensureLink(); err != nil {
		return err
	}

	wg, err := wgctrl.New()
	if err != nil {
		return fmt.Errorf("create wireguard client: %w", err)
	}
	defer wg.Close()

	dev, err := wg.Device(w.Interface)
	if err != nil {
		return fmt.Errorf("inspect wireguard device %q: %w", w.Interface, err)
	}

	peerCfgs, err := buildPeerConfigs(dev, desired)
	if err != nil {
		return err
	}

	cfg := wgtypes.Config{
		ReplacePeers: false,
		Peers:        peerCfgs,
	}
	if err := wg.ConfigureDevice(w.Interface, cfg); err != nil {
		return fmt.Errorf("configure wireguard peers: %w", err)
	}
	return nil
}

// Reload is a no-op for WireGuard: SyncPeers is the whole reconciliation.
func (w *WireGuard) Reload(_ context.Context) error { return nil }

// PeerStats returns the interface's live peer sessions for `connected`.
func (w *WireGuard) PeerStats(_ context.Context) ([]PeerStat, error) {
	wg, err := wgctrl.New()
	if err != nil {
		return nil, fmt.Errorf("create wireguard client: %w", err)
	}
	defer wg.Close()

	dev, err := wg.Device(w.Interface)
	if err != nil {
		return nil, fmt.Errorf("inspect wireguard device %q: %w", w.Interface, err)
	}

	stats := make([]PeerStat, 0, len(dev.Peers))
	for _, p := range dev.Peers {
		stat := PeerStat{
			PublicKey:     p.PublicKey.String(),
			LastHandshake: p.LastHandshakeTime,
			RxBytes:       p.ReceiveBytes,
			TxBytes:       p.TransmitBytes,
		}
		if p.Endpoint != nil {
			stat.Endpoint = p.Endpoint.String()
		}
		stats = append(stats, stat)
	}
	return stats, nil
}

// ensureLink makes sure the interface exists and is up, so reconciliation
// works right after a reboot before anything else touched the device.
func (w *WireGuard) ensureLink() error {
	link, err := netlink.LinkByName(w.Interface)
	if err != nil {
		if _, ok := err.(netlink.LinkNotFoundError); !ok {
			return fmt.Errorf("find wireguard interface %q: %w", w.Interface, err)
		}
		link = &netlink.GenericLink{LinkAttrs: netlink.LinkAttrs{Name: w.Interface}, LinkType: "wireguard"}
		if err := netlink.LinkAdd(link); err != nil {
			return fmt.Errorf("create wireguard interface %q: %w", w.Interface, err)
		}
		link, err = netlink.LinkByName(w.Interface)
		if err != nil {
			return fmt.Errorf("refetch wireguard interface %q: %w", w.Interface, err)
		}
	}
	if link.Attrs().Flags&unix.IFF_UP == 0 {
		if err := netlink.LinkSetUp(link); err != nil {
			return fmt.Errorf("set wireguard interface up: %w", err)
		}
	}
	return nil
}

func buildPeerConfigs(dev *wgtypes.Device, desired []PeerSpec) ([]wgtypes.PeerConfig, error) {
	cfgs := make([]wgtypes.PeerConfig, 0, len(desired)+len(dev.Peers))
	keep := make(map[wgtypes.Key]struct{}, len(desired))

	for _, p := range desired {
		pub, err := wgtypes.ParseKey(p.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("parse peer public key: %w", err)
		}
		pc := wgtypes.PeerConfig{
			PublicKey:         pub,
			ReplaceAllowedIPs: true,
			AllowedIPs:        []net.IPNet{hostIPNet(p.Addr)},
		}
		if p.PresharedKey != "" {
			psk, err := wgtypes.ParseKey(p.PresharedKey)
			if err != nil {
				return nil, fmt.Errorf("parse peer preshared key: %w", err)
			}
			pc.PresharedKey = &psk
		}
		cfgs = append(cfgs, pc)
		keep[pub] = struct{}{}
	}

	for _, current := range dev.Peers {
		if _, ok := keep[current.PublicKey]; ok {
			continue
		}
		cfgs = append(cfgs, wgtypes.PeerConfig{PublicKey: current.PublicKey, Remove: true})
	}
	return cfgs, nil
}

func hostIPNet(addr netip.Addr) net.IPNet {
	bits := 32
	if addr.Is6() {
		bits = 128
	}
	return net.IPNet{IP: addr.AsSlice(), Mask: net.CIDRMask(bits, bits)}
}
