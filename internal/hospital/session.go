package hospital

import (
	"context"
	"time"

	"rpanode/internal/catalog"
	"rpanode/internal/flow"
	"rpanode/internal/logging"
	"rpanode/internal/screen"
	"rpanode/internal/services"
	"rpanode/internal/waiter"
)

// session binds the screen helpers to one hospital's catalog section.
type session struct {
	kind Type
	deps Deps
}

func (s session) Type() Type { return s.kind }

func (s session) hospital() catalog.Hospital {
	h, _ := s.deps.Catalog.Hospital(s.kind.Key())
	return h
}

func (s session) displayName() string {
	if name := s.hospital().DisplayName; name != "" {
		return name
	}
	return string(s.kind)
}

func (s session) driver() screen.Driver { return s.deps.Engine.Driver() }

func (s session) template(name string) (screen.Template, error) {
	return s.deps.Catalog.Template(s.kind.Key(), name)
}

func (s session) timeout(key string, fallback time.Duration) time.Duration {
	return s.deps.Catalog.Timeout(s.kind.Key(), key, fallback)
}

func (s session) settle(ctx context.Context, d time.Duration) error {
	return s.deps.Engine.Clock().Sleep(ctx, d)
}

func (s session) require(ctx context.Context, name, timeoutKey string, fallback time.Duration, description string, table waiter.Table) (screen.Region, error) {
	tmpl, err := s.template(name)
	if err != nil {
		return screen.Region{}, err
	}
	return s.deps.Engine.Require(ctx, tmpl, s.timeout(timeoutKey, fallback), description, table)
}

// waitFor is a bounded wait whose miss is not an error.
func (s session) waitFor(ctx context.Context, name, timeoutKey string, fallback time.Duration, table waiter.Table) (screen.Region, bool, error) {
	tmpl, err := s.template(name)
	if err != nil {
		return screen.Region{}, false, err
	}
	region, ok := s.deps.Engine.WaitFor(ctx, tmpl, s.timeout(timeoutKey, fallback), table)
	return region, ok, nil
}

// visible checks once. Templates the catalog does not define are never
// visible.
func (s session) visible(ctx context.Context, name string) bool {
	tmpl, err := s.template(name)
	if err != nil {
		return false
	}
	return s.deps.Engine.Exists(ctx, tmpl)
}

func (s session) click(ctx context.Context, region screen.Region, description string) error {
	if err := s.driver().Click(ctx, region.Center()); err != nil {
		return services.Wrap(services.ErrInjection, "hospital", "click", "Failed to click on "+description, err)
	}
	return nil
}

func (s session) rightClick(ctx context.Context, region screen.Region, description string) error {
	if err := s.driver().RightClick(ctx, region.Center()); err != nil {
		return services.Wrap(services.ErrInjection, "hospital", "right click", "Failed to right-click on "+description, err)
	}
	return nil
}

func (s session) clickCenter(ctx context.Context) error {
	if err := s.driver().Click(ctx, screen.CenterOf(ctx, s.driver())); err != nil {
		return services.Wrap(services.ErrInjection, "hospital", "click", "Failed to click screen center", err)
	}
	return nil
}

// requireClick waits for name, clicks it, and settles.
func (s session) requireClick(ctx context.Context, name, timeoutKey string, fallback time.Duration, description string, settle time.Duration) error {
	region, err := s.require(ctx, name, timeoutKey, fallback, description, nil)
	if err != nil {
		return err
	}
	if err := s.click(ctx, region, description); err != nil {
		return err
	}
	return s.settle(ctx, settle)
}

// press taps each key in order.
func (s session) press(ctx context.Context, keys ...string) error {
	if err := s.driver().Press(ctx, keys...); err != nil {
		return services.Wrap(services.ErrInjection, "hospital", "press", "Failed to press keys", err)
	}
	return nil
}

func (s session) hotkey(ctx context.Context, keys ...string) error {
	if err := s.driver().Hotkey(ctx, keys...); err != nil {
		return services.Wrap(services.ErrInjection, "hospital", "hotkey", "Failed to send key chord", err)
	}
	return nil
}

func (s session) paste(ctx context.Context, text string) error {
	if err := s.driver().Paste(ctx, text); err != nil {
		return services.Wrap(services.ErrInjection, "hospital", "paste", "Failed to enter text", err)
	}
	return nil
}

// keys runs press/settle pairs, e.g. keys(ctx, d, "down", "down", "enter").
func (s session) keys(ctx context.Context, pause time.Duration, keys ...string) error {
	for _, key := range keys {
		if err := s.press(ctx, key); err != nil {
			return err
		}
		if err := s.settle(ctx, pause); err != nil {
			return err
		}
	}
	return nil
}

func (s session) screenshot(ctx context.Context) ([]byte, error) {
	png, err := s.driver().Screenshot(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrExtraction, "hospital", "screenshot", "Failed to capture screenshot", err)
	}
	return png, nil
}

// vdiTab brings the VDI desktop tab forward. When only the fallback tab is
// visible the browser is on the wrong page and is sent to the lobby URL.
func (s session) vdiTab(ctx context.Context) error {
	timeout := s.timeout("vdi_tab", 30*time.Second)
	primary, err := s.template("vdi_desktop_tab")
	if err != nil {
		return err
	}
	region, ok := s.deps.Engine.WaitFor(ctx, primary, timeout, nil)
	usedFallback := false
	if !ok {
		if fallback, err := s.template("vdi_desktop_tab_fallback"); err == nil {
			region, ok = s.deps.Engine.WaitFor(ctx, fallback, timeout, nil)
			usedFallback = ok
		}
	}
	if !ok {
		return waiter.NotFound("VDI Desktop Tab (tried primary and fallback)", timeout)
	}
	if err := s.click(ctx, region, "VDI Desktop Tab"); err != nil {
		return err
	}
	if err := s.settle(ctx, 2*time.Second); err != nil {
		return err
	}
	lobby := s.hospital().LobbyURL
	if !usedFallback || lobby == "" {
		return nil
	}
	if err := s.navigate(ctx, lobby); err != nil {
		return err
	}
	return s.settle(ctx, 3*time.Second)
}

// navigate sends the focused browser tab to url.
func (s session) navigate(ctx context.Context, url string) error {
	if err := s.hotkey(ctx, "ctrl", "l"); err != nil {
		return err
	}
	if err := s.settle(ctx, time.Second); err != nil {
		return err
	}
	if err := s.paste(ctx, url); err != nil {
		return err
	}
	if err := s.settle(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	return s.press(ctx, "enter")
}

// verifyLobby dismisses the OK modal and makes sure the portal lobby is
// showing, navigating there if not. It never fails the flow.
func (s session) verifyLobby(ctx context.Context, run *flow.Run) error {
	if err := s.dismissOKModal(ctx); err != nil {
		return err
	}
	if s.visible(ctx, "lobby") {
		return nil
	}
	lobby := s.hospital().LobbyURL
	if lobby == "" {
		return nil
	}
	run.Logger().Info("not on lobby screen; navigating", logging.String("url", lobby))
	if err := s.navigate(ctx, lobby); err != nil {
		return err
	}
	if err := s.settle(ctx, 5*time.Second); err != nil {
		return err
	}
	if err := s.dismissOKModal(ctx); err != nil {
		return err
	}
	if !s.visible(ctx, "lobby") {
		logging.WarnWithContext(run.Logger(), "lobby not confirmed after navigation", "lobby_unverified",
			logging.String(logging.FieldImpact, "flow continues from the current screen"))
	}
	return nil
}

// dismissOKModal clicks the OK modal twice when it is showing.
func (s session) dismissOKModal(ctx context.Context) error {
	tmpl, err := s.template("ok_modal")
	if err != nil {
		return nil
	}
	region, ok, err := s.driver().Locate(ctx, tmpl)
	if err != nil || !ok {
		return nil
	}
	if err := s.click(ctx, region, "OK Modal"); err != nil {
		return err
	}
	if err := s.settle(ctx, 2*time.Second); err != nil {
		return err
	}
	if err := s.click(ctx, region, "OK Modal"); err != nil {
		return err
	}
	return s.settle(ctx, time.Second)
}
