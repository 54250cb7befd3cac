package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"peerctl/internal/supervisor"
)

// OpenVPN reconciles the running OpenVPN service with the registry.
//
// Additions need no action: the running process trusts any certificate the
// CA signs on the peer's next connection. Revocations flow through the CRL.
// The first revocation ever has to enable crl-verify in the server config
// and restart the service; after that a reload is enough.
type OpenVPN struct {
	// CRLPath is where the CA writes the revocation list.
	CRLPath string
	// ServerConfig is the OpenVPN server configuration file.
	ServerConfig string
	Supervisor   supervisor.Supervisor
}

var _ Controller = (*OpenVPN)(nil)

// SyncPeers is a no-op: trust is CA-based, so the peer set needs no live
// synchronization.
func (o *OpenVPN) SyncPeers(context.Context, []PeerSpec) error { return nil }

// Reload makes the running service honor the current revocation list.
func (o *OpenVPN) Reload(ctx context.Context) error {
	enabled, err := o.crlEnabled()
	if err != nil {
		return err
	}
	if enabled {
		return o.Supervisor.Reload(ctx)
	}

	// One-time escalation: enable crl-verify and restart.
	slog.Info("Enabling crl-verify in server config; the service will restart.",
		"config", o.ServerConfig, "crl", o.CRLPath)
	if err := o.enableCRL(); err != nil {
		return err
	}
	return o.Supervisor.Restart(ctx)
}

func (o *OpenVPN) crlEnabled() (bool, error) {
	data, err := os.ReadFile(o.ServerConfig)
	if err != nil {
		return false, fmt.Errorf("read server config: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "crl-verify ") {
			return true, nil
		}
	}
	return false, nil
}

func (o *OpenVPN) enableCRL() error {
	f, err := os.OpenFile(o.ServerConfig, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open server config: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "crl-verify %s\n", o.CRLPath); err != nil {
		return fmt.Errorf("amend server config: %w", err)
	}
	return nil
}
