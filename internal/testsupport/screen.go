package testsupport

import (
	"context"
	"sync"
	"time"

	"rpanode/internal/screen"
)

// ScreenEvent records one synthetic input delivered to a FakeScreen.
type ScreenEvent struct {
	Kind  string
	Point screen.Point
	Keys  []string
	Text  string
}

type visibility struct {
	always  bool
	visible bool
	from    time.Duration
	until   time.Duration
}

// FakeScreen is a scripted screen.Driver. Templates are matched by Name.
type FakeScreen struct {
	mu         sync.Mutex
	clock      *FakeClock
	rules      map[string]visibility
	regions    map[string]screen.Region
	locates    map[string]int
	events     []ScreenEvent
	screenshot []byte
	width      int
	height     int

	onClick  func(screen.Point)
	onKeys   func(kind string, keys []string)
	onLocate func(name string)

	// InputErr, when set, is returned by every input method.
	InputErr error
	// ScreenshotErr, when set, is returned by Screenshot.
	ScreenshotErr error
}

// NewFakeScreen returns a 1920x1080 screen with nothing visible. clock may be
// nil when no time-windowed visibility is needed.
func NewFakeScreen(clock *FakeClock) *FakeScreen {
	return &FakeScreen{
		clock:      clock,
		rules:      make(map[string]visibility),
		regions:    make(map[string]screen.Region),
		locates:    make(map[string]int),
		screenshot: []byte("\x89PNG\r\n\x1a\nfake"),
		width:      1920,
		height:     1080,
	}
}

// Show makes the template visible until hidden.
func (f *FakeScreen) Show(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[name] = visibility{always: true, visible: true}
}

// Hide makes the template invisible.
func (f *FakeScreen) Hide(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[name] = visibility{always: true, visible: false}
}

// ShowBetween makes the template visible while the fake clock's elapsed time is
// in [from, until). A zero until means forever.
func (f *FakeScreen) ShowBetween(name string, from, until time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[name] = visibility{from: from, until: until}
}

// SetRegion overrides the region returned for a template.
func (f *FakeScreen) SetRegion(name string, r screen.Region) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regions[name] = r
}

// OnClick registers a hook run after every left or right click.
func (f *FakeScreen) OnClick(fn func(screen.Point)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onClick = fn
}

// OnKeys registers a hook run after every Press or Hotkey ("press"/"hotkey").
func (f *FakeScreen) OnKeys(fn func(kind string, keys []string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onKeys = fn
}

// OnLocate registers a hook run before each Locate evaluates visibility.
func (f *FakeScreen) OnLocate(fn func(name string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onLocate = fn
}

func (f *FakeScreen) Locate(_ context.Context, tmpl screen.Template) (screen.Region, bool, error) {
	f.mu.Lock()
	hook := f.onLocate
	f.locates[tmpl.Name]++
	f.mu.Unlock()
	if hook != nil {
		hook(tmpl.Name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	rule, ok := f.rules[tmpl.Name]
	if !ok || !f.visibleLocked(rule) {
		return screen.Region{}, false, nil
	}
	if r, ok := f.regions[tmpl.Name]; ok {
		return r, true, nil
	}
	return screen.Region{X: 100, Y: 100, Width: 40, Height: 20}, true, nil
}

func (f *FakeScreen) visibleLocked(rule visibility) bool {
	if rule.always {
		return rule.visible
	}
	if f.clock == nil {
		return false
	}
	elapsed := f.clock.Elapsed()
	return elapsed >= rule.from && (rule.until == 0 || elapsed < rule.until)
}

func (f *FakeScreen) Click(_ context.Context, at screen.Point) error {
	return f.click("click", at)
}

func (f *FakeScreen) RightClick(_ context.Context, at screen.Point) error {
	return f.click("right_click", at)
}

func (f *FakeScreen) click(kind string, at screen.Point) error {
	f.mu.Lock()
	if f.InputErr != nil {
		f.mu.Unlock()
		return f.InputErr
	}
	f.events = append(f.events, ScreenEvent{Kind: kind, Point: at})
	hook := f.onClick
	f.mu.Unlock()
	if hook != nil {
		hook(at)
	}
	return nil
}

func (f *FakeScreen) Press(_ context.Context, keys ...string) error {
	return f.keys("press", keys)
}

func (f *FakeScreen) Hotkey(_ context.Context, keys ...string) error {
	return f.keys("hotkey", keys)
}

func (f *FakeScreen) keys(kind string, keys []string) error {
	f.mu.Lock()
	if f.InputErr != nil {
		f.mu.Unlock()
		return f.InputErr
	}
	f.events = append(f.events, ScreenEvent{Kind: kind, Keys: append([]string(nil), keys...)})
	hook := f.onKeys
	f.mu.Unlock()
	if hook != nil {
		hook(kind, keys)
	}
	return nil
}

func (f *FakeScreen) Paste(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InputErr != nil {
		return f.InputErr
	}
	f.events = append(f.events, ScreenEvent{Kind: "paste", Text: text})
	return nil
}

func (f *FakeScreen) Size(context.Context) (int, int, error) {
	return f.width, f.height, nil
}

func (f *FakeScreen) Screenshot(context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ScreenshotErr != nil {
		return nil, f.ScreenshotErr
	}
	f.events = append(f.events, ScreenEvent{Kind: "screenshot"})
	return append([]byte(nil), f.screenshot...), nil
}

// Events returns a copy of all recorded input.
func (f *FakeScreen) Events() []ScreenEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ScreenEvent(nil), f.events...)
}

// EventsOfKind filters Events by kind.
func (f *FakeScreen) EventsOfKind(kind string) []ScreenEvent {
	var out []ScreenEvent
	for _, ev := range f.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// LocateCount reports how many times a template was searched for.
func (f *FakeScreen) LocateCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locates[name]
}
