package adapter

import (
	"context"
	"strings"
)

// Systemctl drives the host service manager
type Systemctl struct {
	runner Runner
}

// NewSystemctl creates a systemctl wrapper
func NewSystemctl(runner Runner) *Systemctl {
	return &Systemctl{runner: runner}
}

// DaemonReload rereads unit files
func (s *Systemctl) DaemonReload(ctx context.Context) error {
	return s.runner.Run(ctx, "systemctl", "daemon-reload")
}

// EnableNow enables a unit and starts it immediately
func (s *Systemctl) EnableNow(ctx context.Context, unit string) error {
	return s.runner.Run(ctx, "systemctl", "enable", "--now", unit)
}

// DisableNow stops a unit and disables it
func (s *Systemctl) DisableNow(ctx context.Context, unit string) error {
	return s.runner.Run(ctx, "systemctl", "disable", "--now", unit)
}

// Stop stops a unit
func (s *Systemctl) Stop(ctx context.Context, unit string) error {
	return s.runner.Run(ctx, "systemctl", "stop", unit)
}

// IsActive reports whether a unit is running
func (s *Systemctl) IsActive(ctx context.Context, unit string) bool {
	out, err := s.runner.Output(ctx, "systemctl", "is-active", unit)
	return err == nil && strings.TrimSpace(string(out)) == "active"
}

// Available reports whether systemctl is on PATH
func (s *Systemctl) Available() bool {
	_, err := s.runner.LookPath("systemctl")
	return err == nil
}
