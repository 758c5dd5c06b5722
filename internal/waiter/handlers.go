package waiter

import (
	"context"
	"strings"
	"time"

	"rpanode/internal/screen"
	"rpanode/internal/services"
)

// Handler dismisses or otherwise resolves an obstacle found at region.
type Handler interface {
	Handle(ctx context.Context, region screen.Region) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, region screen.Region) error

func (f HandlerFunc) Handle(ctx context.Context, region screen.Region) error { return f(ctx, region) }

// Obstacle pairs a template that may appear during a wait with its handler.
type Obstacle struct {
	Template    screen.Template
	Description string
	Handler     Handler
}

// Table is an ordered obstacle list, checked first to last. Build a fresh
// table per wait call.
type Table []Obstacle

// ClickCenter clicks the middle of the detected obstacle region.
type ClickCenter struct {
	Input  screen.Input
	Settle time.Duration
	Clock  screen.Clock
}

func (h ClickCenter) Handle(ctx context.Context, region screen.Region) error {
	if err := h.Input.Click(ctx, region.Center()); err != nil {
		return services.Wrap(services.ErrInjection, "waiter", "click obstacle", "", err)
	}
	return settle(ctx, h.Clock, h.Settle)
}

// ClickTemplate locates a second template (e.g. a "No" or "OK" button inside
// the obstacle dialog) and clicks it.
type ClickTemplate struct {
	Locator screen.Locator
	Input   screen.Input
	Button  screen.Template
	Settle  time.Duration
	Clock   screen.Clock
}

func (h ClickTemplate) Handle(ctx context.Context, _ screen.Region) error {
	region, ok, err := h.Locator.Locate(ctx, h.Button)
	if err != nil {
		return services.Wrap(services.ErrDetectionTimeout, "waiter", "locate button", h.Button.String(), err)
	}
	if !ok {
		return services.Wrap(services.ErrDetectionTimeout, "waiter", "locate button", h.Button.String()+" not visible", nil)
	}
	if err := h.Input.Click(ctx, region.Center()); err != nil {
		return services.Wrap(services.ErrInjection, "waiter", "click button", h.Button.String(), err)
	}
	return settle(ctx, h.Clock, h.Settle)
}

// PressKeys sends a chord when the obstacle appears (e.g. Escape or Alt+F4).
type PressKeys struct {
	Input  screen.Input
	Keys   []string
	Settle time.Duration
	Clock  screen.Clock
}

func (h PressKeys) Handle(ctx context.Context, _ screen.Region) error {
	if err := h.Input.Hotkey(ctx, h.Keys...); err != nil {
		return services.Wrap(services.ErrInjection, "waiter", "press keys", strings.Join(h.Keys, "+"), err)
	}
	return settle(ctx, h.Clock, h.Settle)
}

// Sequence runs handlers in order, stopping at the first error.
type Sequence []Handler

func (s Sequence) Handle(ctx context.Context, region screen.Region) error {
	for _, h := range s {
		if h == nil {
			continue
		}
		if err := h.Handle(ctx, region); err != nil {
			return err
		}
	}
	return nil
}

func settle(ctx context.Context, clock screen.Clock, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if clock == nil {
		clock = screen.SystemClock{}
	}
	return clock.Sleep(ctx, d)
}

// WaitClick waits up to Timeout for Button and clicks it. An Optional button
// that never shows is not an error.
type WaitClick struct {
	Engine   *Engine
	Button   screen.Template
	Timeout  time.Duration
	Settle   time.Duration
	Optional bool
}

func (h WaitClick) Handle(ctx context.Context, _ screen.Region) error {
	region, ok := h.Engine.WaitFor(ctx, h.Button, h.Timeout, nil)
	if !ok {
		if h.Optional {
			return nil
		}
		return NotFound(h.Button.String(), h.Timeout)
	}
	if err := h.Engine.Driver().Click(ctx, region.Center()); err != nil {
		return services.Wrap(services.ErrInjection, "waiter", "click button", h.Button.String(), err)
	}
	return settle(ctx, h.Engine.Clock(), h.Settle)
}
