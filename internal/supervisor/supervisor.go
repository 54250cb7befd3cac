// Package supervisor requests service reloads and restarts. Shelling out to
// privileged service control is confined to this package.
package supervisor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Supervisor asks the service manager to act on the tunnel service. The
// request either succeeds with the process live afterward or fails
// observably.
type Supervisor interface {
	Reload(ctx context.Context) error
	Restart(ctx context.Context) error
}

// Systemd controls a unit through systemctl.
type Systemd struct {
	Unit string
}

func (s Systemd) Reload(ctx context.Context) error  { return s.run(ctx, "reload") }
func (s Systemd) Restart(ctx context.Context) error { return s.run(ctx, "restart") }

func (s Systemd) run(ctx context.Context, verb string) error {
	out, err := exec.CommandContext(ctx, "systemctl", verb, s.Unit).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("systemctl %s %s: %w", verb, s.Unit, err)
		}
		return fmt.Errorf("systemctl %s %s: %s: %w", verb, s.Unit, msg, err)
	}
	return nil
}
