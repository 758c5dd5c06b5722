package waiter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"rpanode/internal/logging"
	"rpanode/internal/screen"
	"rpanode/internal/services"
)

// DefaultPollInterval is the pause between locate passes.
const DefaultPollInterval = 500 * time.Millisecond

// Engine runs bounded, obstacle-aware waits against a screen driver.
type Engine struct {
	driver screen.Driver
	clock  screen.Clock
	poll   time.Duration
	logger *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock substitutes the time source.
func WithClock(clock screen.Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithPollInterval overrides the pause between locate passes.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.poll = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New constructs an Engine.
func New(driver screen.Driver, opts ...Option) *Engine {
	e := &Engine{
		driver: driver,
		clock:  screen.SystemClock{},
		poll:   DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "waiter")
	return e
}

// Clock returns the engine's time source.
func (e *Engine) Clock() screen.Clock { return e.clock }

// Driver returns the underlying screen driver.
func (e *Engine) Driver() screen.Driver { return e.driver }

// WaitFor polls for target until it appears or timeout elapses. Obstacles
// found while waiting are handled in table order, one per pass. The deadline
// is fixed at call time, so handler time counts against the budget.
func (e *Engine) WaitFor(ctx context.Context, target screen.Template, timeout time.Duration, table Table) (screen.Region, bool) {
	waitCtx := context.WithoutCancel(ctx)
	logger := logging.WithContext(ctx, e.logger)
	deadline := e.clock.Now().Add(timeout)

	for {
		if region, ok := e.locate(waitCtx, logger, target); ok {
			return region, true
		}
		for _, obstacle := range table {
			region, ok := e.locate(waitCtx, logger, obstacle.Template)
			if !ok {
				continue
			}
			logger.Info("obstacle detected",
				logging.String("target", target.String()),
				logging.String("obstacle", obstacleLabel(obstacle)),
				logging.String(logging.FieldEventType, "obstacle_detected"),
			)
			if obstacle.Handler != nil {
				if err := obstacle.Handler.Handle(waitCtx, region); err != nil {
					logging.WarnWithContext(logger, "obstacle handler failed; continuing wait", "obstacle_handler_failed",
						logging.String("obstacle", obstacleLabel(obstacle)),
						logging.Error(err),
						logging.String(logging.FieldImpact, "wait continues until deadline"),
					)
				}
			}
			break
		}
		if !e.clock.Now().Before(deadline) {
			logger.Debug("wait timed out",
				logging.String("target", target.String()),
				logging.Duration("timeout", timeout),
			)
			return screen.Region{}, false
		}
		_ = e.clock.Sleep(waitCtx, e.poll)
	}
}

// Require is WaitFor that converts not-found into a detection timeout error
// naming what was being waited for.
func (e *Engine) Require(ctx context.Context, target screen.Template, timeout time.Duration, description string, table Table) (screen.Region, error) {
	region, ok := e.WaitFor(ctx, target, timeout, table)
	if !ok {
		return screen.Region{}, NotFound(description, timeout)
	}
	return region, nil
}

// Exists checks once for target without waiting.
func (e *Engine) Exists(ctx context.Context, target screen.Template) bool {
	_, ok := e.locate(context.WithoutCancel(ctx), logging.WithContext(ctx, e.logger), target)
	return ok
}

// NotFound builds the flow-fatal error raised when a wait expires.
func NotFound(description string, timeout time.Duration) error {
	description = strings.TrimSpace(description)
	if description == "" {
		description = "target"
	}
	return services.Wrap(services.ErrDetectionTimeout, "waiter", "wait",
		fmt.Sprintf("%s not found after %s", description, timeout), nil)
}

func (e *Engine) locate(ctx context.Context, logger *slog.Logger, tmpl screen.Template) (screen.Region, bool) {
	region, ok, err := e.driver.Locate(ctx, tmpl)
	if err != nil {
		logger.Debug("locate failed; treating as not visible",
			logging.String("template", tmpl.String()),
			logging.Error(err),
		)
		return screen.Region{}, false
	}
	return region, ok
}

func obstacleLabel(o Obstacle) string {
	if o.Description != "" {
		return o.Description
	}
	return o.Template.String()
}
