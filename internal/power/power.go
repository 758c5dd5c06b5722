// Package power suppresses system idle-sleep while a flow drives the desktop.
package power

import (
	"context"
	"log/slog"
)

// Inhibitor keeps the machine awake between Inhibit and Release. Release is
// safe to call when nothing is held.
type Inhibitor interface {
	Inhibit(ctx context.Context, reason string) error
	Release() error
}

// Noop satisfies Inhibitor without touching the system.
type Noop struct{}

func (Noop) Inhibit(context.Context, string) error { return nil }

func (Noop) Release() error { return nil }

// New returns the platform inhibitor, or Noop when disabled.
func New(enabled bool, logger *slog.Logger) Inhibitor {
	if !enabled {
		return Noop{}
	}
	return newPlatform(logger)
}
