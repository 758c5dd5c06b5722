package waiter

import (
	"context"
	"strings"
	"time"

	"rpanode/internal/logging"
	"rpanode/internal/screen"
)

// RescuePolicy bounds rescue escalation for a target that is known to freeze.
type RescuePolicy struct {
	// Attempts per pass, each preceded by a wake click at screen center.
	Attempts       int
	AttemptTimeout time.Duration
	// Retries is how many extra passes follow a rescue input. Total passes is
	// Retries+1.
	Retries    int
	Settle     time.Duration
	WakeSettle time.Duration
	Keys       []string
}

// DefaultRescuePolicy returns 3 attempts of 10s, one retry after Alt+F4, and a
// 15s settle.
func DefaultRescuePolicy() RescuePolicy {
	return RescuePolicy{
		Attempts:       3,
		AttemptTimeout: 10 * time.Second,
		Retries:        1,
		Settle:         15 * time.Second,
		WakeSettle:     500 * time.Millisecond,
		Keys:           []string{"alt", "f4"},
	}
}

// Passes returns the total number of wait passes.
func (p RescuePolicy) Passes() int {
	if p.Retries < 0 {
		return 1
	}
	return p.Retries + 1
}

func (p RescuePolicy) normalized() RescuePolicy {
	def := DefaultRescuePolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = def.AttemptTimeout
	}
	if len(p.Keys) == 0 {
		p.Keys = def.Keys
	}
	return p
}

// WaitWithRescue waits for target in bounded passes. Each attempt first clicks
// screen center to wake a frozen session. When a pass is exhausted and retries
// remain, the rescue chord is sent and the settle period observed before the
// next pass. A cancelled ctx ends escalation at the next settle boundary.
func (e *Engine) WaitWithRescue(ctx context.Context, target screen.Template, policy RescuePolicy, table Table) (screen.Region, bool) {
	policy = policy.normalized()
	logger := logging.WithContext(ctx, e.logger)
	passes := policy.Passes()

	for pass := 0; pass < passes; pass++ {
		label := "initial"
		if pass > 0 {
			label = "after rescue"
		}
		for attempt := 1; attempt <= policy.Attempts; attempt++ {
			logger.Info("waiting with rescue",
				logging.String("target", target.String()),
				logging.String("pass", label),
				logging.Int("attempt", attempt),
				logging.Int("attempts", policy.Attempts),
				logging.Duration("attempt_timeout", policy.AttemptTimeout),
			)
			e.wake(ctx)
			if err := e.clock.Sleep(ctx, policy.WakeSettle); err != nil {
				return screen.Region{}, false
			}
			if region, ok := e.WaitFor(ctx, target, policy.AttemptTimeout, table); ok {
				return region, true
			}
		}
		if pass == passes-1 {
			break
		}
		logging.WarnWithContext(logger, "patience exhausted; sending rescue input", "rescue_escalation",
			logging.String("target", target.String()),
			logging.String("keys", strings.Join(policy.Keys, "+")),
			logging.Duration("settle", policy.Settle),
			logging.String(logging.FieldImpact, "focused window will be force-closed"),
			logging.String(logging.FieldErrorHint, "check whether the VDI session is frozen"),
		)
		e.wake(ctx)
		if err := e.clock.Sleep(ctx, policy.WakeSettle); err != nil {
			return screen.Region{}, false
		}
		if err := e.driver.Hotkey(context.WithoutCancel(ctx), policy.Keys...); err != nil {
			logging.WarnWithContext(logger, "rescue input failed", "rescue_input_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "next pass runs without rescue"),
			)
		}
		if err := e.clock.Sleep(ctx, policy.Settle); err != nil {
			return screen.Region{}, false
		}
	}
	return screen.Region{}, false
}

// RequireWithRescue is WaitWithRescue returning a named not-found error.
func (e *Engine) RequireWithRescue(ctx context.Context, target screen.Template, policy RescuePolicy, description string, table Table) (screen.Region, error) {
	region, ok := e.WaitWithRescue(ctx, target, policy, table)
	if !ok {
		policy = policy.normalized()
		total := time.Duration(policy.Passes()*policy.Attempts) * policy.AttemptTimeout
		return screen.Region{}, NotFound(description, total)
	}
	return region, nil
}

func (e *Engine) wake(ctx context.Context) {
	wctx := context.WithoutCancel(ctx)
	center := screen.CenterOf(wctx, e.driver)
	if err := e.driver.Click(wctx, center); err != nil {
		logging.WithContext(ctx, e.logger).Debug("wake click failed", logging.Error(err))
	}
}
