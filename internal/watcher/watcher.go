// Package watcher runs the background modal watcher that dismisses disruptive
// dialogs while a flow is active.
//
// The guarded templates must be disjoint from any step target so the watcher
// never competes with the main flow for the element it is waiting on; the
// catalog loader enforces this. Dismissals target dialogs that grab focus on
// their own, so the watcher's input does not steal focus from the flow.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	c "github.com/patrickmn/go-cache"

	"rpanode/internal/logging"
	"rpanode/internal/screen"
	"rpanode/internal/services"
)

const (
	DefaultInterval = time.Second
	DefaultCooldown = 3 * time.Second
)

// Guard is one disruptive dialog and how to dismiss it. With Keys empty the
// dialog is clicked at its center; otherwise the chord is sent.
type Guard struct {
	Template    screen.Template
	Description string
	Keys        []string
}

func (g Guard) label() string {
	if g.Description != "" {
		return g.Description
	}
	return g.Template.String()
}

// Service is the watcher. At most one loop runs at a time; Start while running
// and Stop while stopped are no-ops.
type Service struct {
	driver   screen.Driver
	guards   []Guard
	interval time.Duration
	cooldown time.Duration
	recent   *c.Cache
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running    atomic.Bool
	scans      atomic.Int64
	dismissals atomic.Int64
}

// Option customizes a Service.
type Option func(*Service)

// WithInterval sets the pause between scans.
func WithInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithCooldown suppresses re-dismissing the same guard for d after a dismissal
// while the dialog closes. Zero disables the cooldown.
func WithCooldown(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.cooldown = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New constructs a stopped watcher.
func New(driver screen.Driver, guards []Guard, opts ...Option) *Service {
	s := &Service{
		driver:   driver,
		guards:   append([]Guard(nil), guards...),
		interval: DefaultInterval,
		cooldown: DefaultCooldown,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "watcher")
	s.recent = c.New(s.cooldown, time.Minute)
	return s
}

// Start spawns the watch loop unless it is already running.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running.Store(true)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Debug("modal watcher started", logging.Int("guards", len(s.guards)))
}

// Stop signals the loop and blocks until it has exited. No scan or dismissal
// happens after Stop returns.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.cancel = nil
	s.running.Store(false)
	s.recent.Flush()
	s.logger.Debug("modal watcher stopped",
		logging.Int64("scans", s.scans.Load()),
		logging.Int64("dismissals", s.dismissals.Load()),
	)
}

// Running reports whether the loop is active.
func (s *Service) Running() bool { return s.running.Load() }

// Scans reports completed scan passes since construction.
func (s *Service) Scans() int64 { return s.scans.Load() }

// Dismissals reports dialogs dismissed since construction.
func (s *Service) Dismissals() int64 { return s.dismissals.Load() }

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.scan(ctx)
	}
}

func (s *Service) scan(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logging.WarnWithContext(s.logger, "modal watcher scan panicked; continuing", "watcher_panic",
				logging.String("panic", fmt.Sprint(r)),
				logging.String(logging.FieldImpact, "one scan skipped"),
			)
		}
	}()
	defer s.scans.Add(1)

	for i, guard := range s.guards {
		if ctx.Err() != nil {
			return
		}
		key := cooldownKey(i, guard)
		if _, cooling := s.recent.Get(key); cooling {
			continue
		}
		region, ok, err := s.driver.Locate(ctx, guard.Template)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Debug("watcher locate failed", logging.String("guard", guard.label()), logging.Error(err))
			}
			continue
		}
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if err := s.dismiss(ctx, guard, region); err != nil {
			logging.WarnWithContext(s.logger, "modal dismissal failed; will retry next scan", "watcher_dismiss_failed",
				logging.String("guard", guard.label()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "dialog may block the active flow step"),
			)
			continue
		}
		s.dismissals.Add(1)
		if s.cooldown > 0 {
			s.recent.Set(key, struct{}{}, c.DefaultExpiration)
		}
		logger := logging.WithContext(ctx, s.logger)
		logger.Info("modal dismissed",
			logging.String("guard", guard.label()),
			logging.String(logging.FieldEventType, "modal_dismissed"),
		)
	}
}

func (s *Service) dismiss(ctx context.Context, guard Guard, region screen.Region) error {
	if len(guard.Keys) > 0 {
		if err := s.driver.Hotkey(ctx, guard.Keys...); err != nil {
			return services.Wrap(services.ErrInjection, "watcher", "dismiss", strings.Join(guard.Keys, "+"), err)
		}
		return nil
	}
	if err := s.driver.Click(ctx, region.Center()); err != nil {
		return services.Wrap(services.ErrInjection, "watcher", "dismiss", guard.label(), err)
	}
	return nil
}

func cooldownKey(i int, g Guard) string {
	return fmt.Sprintf("%d:%s", i, g.Template.String())
}
