// Package manager orchestrates peer lifecycle operations over the registry,
// allocator, identity generator, renderer, and tunnel controller.
//
// Validation happens before any mutation, the pool ceiling is checked before
// key material is generated, and a failed live apply never rolls back a
// committed registry mutation: the result carries the reconciliation error
// as a warning instead.
package manager

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"

	"peerctl"
	"peerctl/config"
	"peerctl/internal/check"
	"peerctl/internal/identity"
	"peerctl/internal/pki"
	"peerctl/internal/registry"
	"peerctl/internal/render"
	"peerctl/internal/supervisor"
	"peerctl/internal/tunnel"
	"peerctl/pkg/ipam"
)

// openVPNUnit is the systemd unit the OpenVPN controller supervises.
const openVPNUnit = "openvpn-server@server"

// caCommonName names the embedded authority in issued chains.
const caCommonName = "peerctl-ca"

// peer names become file names and config comments; keep them to a safe
// charset and a sane length.
var nameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,62}$`)

// Options wires a Manager. Production wiring comes from Open; tests
// substitute a fake controller and a temp-dir registry.
type Options struct {
	DataDir    string
	Params     peerctl.ServerParameters
	Registry   *registry.Registry
	Controller tunnel.Controller
	CA         *pki.CA // OpenVPN variant only
	Now        func() time.Time
}

// Manager runs peer lifecycle operations for one server.
type Manager struct {
	dataDir string
	params  peerctl.ServerParameters
	reg     *registry.Registry
	ctrl    tunnel.Controller
	ca      *pki.CA
	now     func() time.Time
}

// New assembles a Manager from explicit parts.
func New(opts Options) *Manager {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		dataDir: opts.DataDir,
		params:  opts.Params,
		reg:     opts.Registry,
		ctrl:    opts.Controller,
		ca:      opts.CA,
		now:     now,
	}
}

// Open loads server parameters from dataDir and wires the production
// registry, controller, and (for OpenVPN) certificate authority.
func Open(dataDir string) (*Manager, error) {
	params, err := config.Load(dataDir)
	if err != nil {
		return nil, err
	}

	reg, err := registry.Open(config.RegistryPath(dataDir))
	if err != nil {
		return nil, err
	}

	opts := Options{DataDir: dataDir, Params: params, Registry: reg}
	switch params.Protocol {
	case peerctl.ProtocolWireGuard:
		opts.Controller = &tunnel.WireGuard{Interface: params.Interface}
	case peerctl.ProtocolOpenVPN:
		ca, err := pki.Open(config.PKIDir(dataDir))
		if err != nil {
			_ = reg.Close()
			return nil, err
		}
		opts.CA = ca
		opts.Controller = &tunnel.OpenVPN{
			CRLPath:      ca.CRLPath(),
			ServerConfig: params.ServerConfig,
			Supervisor:   supervisor.Systemd{Unit: openVPNUnit},
		}
	}
	return New(opts), nil
}

func (m *Manager) Close() error { return m.reg.Close() }

// Params returns the loaded server parameters.
func (m *Manager) Params() peerctl.ServerParameters { return m.params }

// AddResult reports a completed add.
type AddResult struct {
	Record       peerctl.PeerRecord
	ArtifactPath string
	// ReconcileErr is set when the registry mutation committed but the live
	// apply failed; the caller reports it as a warning and the operation
	// still counts as successful.
	ReconcileErr error
}

// Add provisions a new peer: allocate an address, generate an identity,
// persist the record, render the client bundle, and reconcile the live
// tunnel.
func (m *Manager) Add(ctx context.Context, name string) (AddResult, error) {
	if err := validateName(name); err != nil {
		return AddResult{}, err
	}

	exists, err := m.reg.Exists(ctx, name)
	if err != nil {
		return AddResult{}, err
	}
	if exists {
		return AddResult{}, fmt.Errorf("peer %q: %w", name, peerctl.ErrDuplicateName)
	}

	// Allocation runs before identity generation: the pool ceiling is the
	// cheap check.
	active, err := m.reg.Active(ctx)
	if err != nil {
		return AddResult{}, err
	}
	addr, err := ipam.NextHost(m.params.Subnet, m.params.PoolSize, activeAddrs(active))
	if err != nil {
		return AddResult{}, err
	}
	check.Assertf(!containsAddr(active, addr), "allocator issued in-use address %s", addr)

	rec := peerctl.PeerRecord{
		ID:          uuid.NewString(),
		Name:        name,
		VirtualAddr: addr,
		Status:      peerctl.PeerActive,
		IssuedAt:    m.now().UTC(),
	}

	var bundle []byte
	var artifactName string
	switch m.params.Protocol {
	case peerctl.ProtocolWireGuard:
		id, err := identity.NewWireGuard()
		if err != nil {
			return AddResult{}, err
		}
		rec.PublicIdentity = id.PublicKey.String()
		rec.PresharedKey = id.PresharedKey.String()
		bundle = render.WireGuardConf(render.WireGuardClient{
			Name:         name,
			PrivateKey:   id.PrivateKey.String(),
			PresharedKey: id.PresharedKey.String(),
			Addr:         addr,
		}, m.params, m.now())
		artifactName = name + ".conf"
	case peerctl.ProtocolOpenVPN:
		leaf, err := m.ca.IssueClient(name)
		if err != nil {
			return AddResult{}, err
		}
		rec.PublicIdentity = leaf.Serial
		caPEM, err := m.ca.CACertPEM()
		if err != nil {
			return AddResult{}, err
		}
		ta, err := m.ca.TLSCryptKey()
		if err != nil {
			return AddResult{}, err
		}
		bundle = render.OpenVPNConf(render.OpenVPNClient{
			Name:      name,
			CACertPEM: caPEM,
			CertPEM:   leaf.CertPEM,
			KeyPEM:    leaf.KeyPEM,
			TLSCrypt:  ta,
		}, m.params, m.now())
		artifactName = name + ".ovpn"
	default:
		return AddResult{}, fmt.Errorf("unknown protocol %q", m.params.Protocol)
	}

	if err := m.reg.Append(ctx, rec); err != nil {
		return AddResult{}, err
	}

	path, err := render.WriteArtifact(config.ArtifactDir(m.dataDir), artifactName, bundle)
	if err != nil {
		return AddResult{}, fmt.Errorf("peer %q persisted but bundle not written: %w", name, err)
	}

	result := AddResult{Record: rec, ArtifactPath: path}
	// The certificate variant trusts new leaves automatically; only the
	// key-exchange variant needs a live apply on add.
	if m.params.Protocol == peerctl.ProtocolWireGuard {
		if err := m.syncWireGuard(ctx); err != nil {
			result.ReconcileErr = err
		}
	}
	return result, nil
}

// RemoveResult reports a completed remove.
type RemoveResult struct {
	Record       peerctl.PeerRecord
	Revoked      bool
	ReconcileErr error
}

// Remove deprovisions a peer. The key-exchange variant erases the record;
// the certificate variant revokes it, keeps it for audit, and feeds the
// revocation list.
func (m *Manager) Remove(ctx context.Context, name string) (RemoveResult, error) {
	if err := validateName(name); err != nil {
		return RemoveResult{}, err
	}

	var result RemoveResult
	switch m.params.Protocol {
	case peerctl.ProtocolWireGuard:
		rec, err := m.reg.Get(ctx, name)
		if err != nil {
			return RemoveResult{}, err
		}
		if err := m.reg.Delete(ctx, name); err != nil {
			return RemoveResult{}, err
		}
		result.Record = rec
		m.removeArtifact(name + ".conf")
	case peerctl.ProtocolOpenVPN:
		rec, err := m.reg.Revoke(ctx, name)
		if err != nil {
			return RemoveResult{}, err
		}
		if err := m.ca.Revoke(rec.PublicIdentity); err != nil {
			return RemoveResult{}, fmt.Errorf("record revoked but crl not updated: %w", err)
		}
		result.Record = rec
		result.Revoked = true
		m.removeArtifact(name + ".ovpn")
	default:
		return RemoveResult{}, fmt.Errorf("unknown protocol %q", m.params.Protocol)
	}

	switch m.params.Protocol {
	case peerctl.ProtocolWireGuard:
		if err := m.syncWireGuard(ctx); err != nil {
			result.ReconcileErr = err
		}
	case peerctl.ProtocolOpenVPN:
		// Make the running service honor the regenerated CRL.
		if err := m.ctrl.Reload(ctx); err != nil {
			result.ReconcileErr = fmt.Errorf("%w: %w", peerctl.ErrReconciliation, err)
		}
	}
	return result, nil
}

// List returns every record in issuance order, revoked records included.
func (m *Manager) List(ctx context.Context) ([]peerctl.PeerRecord, error) {
	return m.reg.List(ctx)
}

// Connected returns live sessions joined against the registry. Peers the
// registry does not know are ignored.
func (m *Manager) Connected(ctx context.Context) ([]peerctl.ConnectedPeer, error) {
	active, err := m.reg.Active(ctx)
	if err != nil {
		return nil, err
	}

	switch m.params.Protocol {
	case peerctl.ProtocolWireGuard:
		sr, ok := m.ctrl.(tunnel.StatsReader)
		if !ok {
			return nil, fmt.Errorf("controller cannot report live sessions")
		}
		stats, err := sr.PeerStats(ctx)
		if err != nil {
			return nil, err
		}
		byKey := make(map[string]tunnel.PeerStat, len(stats))
		for _, s := range stats {
			byKey[s.PublicKey] = s
		}
		var out []peerctl.ConnectedPeer
		for _, rec := range active {
			s, ok := byKey[rec.PublicIdentity]
			if !ok {
				continue
			}
			out = append(out, peerctl.ConnectedPeer{
				Name:           rec.Name,
				VirtualAddr:    rec.VirtualAddr,
				RemoteEndpoint: s.Endpoint,
				LastHandshake:  s.LastHandshake,
				RxBytes:        s.RxBytes,
				TxBytes:        s.TxBytes,
			})
		}
		return out, nil
	case peerctl.ProtocolOpenVPN:
		sessions, err := tunnel.ReadStatusFile(m.params.StatusFile)
		if err != nil {
			return nil, err
		}
		byName := make(map[string]tunnel.ClientSession, len(sessions))
		for _, s := range sessions {
			byName[s.CommonName] = s
		}
		var out []peerctl.ConnectedPeer
		for _, rec := range active {
			s, ok := byName[rec.Name]
			if !ok {
				continue
			}
			out = append(out, peerctl.ConnectedPeer{
				Name:           rec.Name,
				VirtualAddr:    rec.VirtualAddr,
				RemoteEndpoint: s.RealAddress,
				ConnectedSince: s.ConnectedSince,
				RxBytes:        s.RxBytes,
				TxBytes:        s.TxBytes,
			})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown protocol %q", m.params.Protocol)
	}
}

// Export writes the server config projection derived from the registry and
// returns its path. For OpenVPN the CRL is the derived artifact, so its path
// is returned without a write.
func (m *Manager) Export(ctx context.Context) (string, error) {
	if m.params.Protocol == peerctl.ProtocolOpenVPN {
		return m.ca.CRLPath(), nil
	}

	key, err := os.ReadFile(config.ServerKeyPath(m.dataDir))
	if err != nil {
		return "", fmt.Errorf("read server key: %w", err)
	}
	active, err := m.reg.Active(ctx)
	if err != nil {
		return "", err
	}

	conf := render.ServerConf(m.params, string(trimNewline(key)), active)
	return render.WriteArtifact(m.dataDir, m.params.Interface+".conf", conf)
}

// syncWireGuard pushes the current registry state to the live interface and
// refreshes the exported projection so the compatibility file never lags
// the registry.
func (m *Manager) syncWireGuard(ctx context.Context) error {
	if _, err := m.Export(ctx); err != nil {
		return fmt.Errorf("%w: %w", peerctl.ErrReconciliation, err)
	}
	active, err := m.reg.Active(ctx)
	if err != nil {
		return err
	}
	specs := make([]tunnel.PeerSpec, len(active))
	for i, rec := range active {
		specs[i] = tunnel.PeerSpec{
			PublicKey:    rec.PublicIdentity,
			PresharedKey: rec.PresharedKey,
			Addr:         rec.VirtualAddr,
		}
	}
	if err := m.ctrl.SyncPeers(ctx, specs); err != nil {
		return fmt.Errorf("%w: %w", peerctl.ErrReconciliation, err)
	}
	return nil
}

func (m *Manager) removeArtifact(name string) {
	// Best effort: the bundle is a derived projection.
	_ = os.Remove(filepath.Join(config.ArtifactDir(m.dataDir), name))
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("peer name is required")
	}
	if !nameRE.MatchString(name) {
		return fmt.Errorf("invalid peer name %q: use letters, digits, dot, dash, underscore", name)
	}
	return nil
}

func activeAddrs(records []peerctl.PeerRecord) []netip.Addr {
	addrs := make([]netip.Addr, len(records))
	for i, r := range records {
		addrs[i] = r.VirtualAddr
	}
	return addrs
}

func containsAddr(records []peerctl.PeerRecord, addr netip.Addr) bool {
	for _, r := range records {
		if r.VirtualAddr == addr {
			return true
		}
	}
	return false
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
