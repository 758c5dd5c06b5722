// Package screen defines the contracts the engine uses to see and drive the
// remote desktop: template location, synthetic input, capture, and time.
package screen

import (
	"context"
	"time"

	"rpanode/internal/services"
)

// Point is an absolute screen coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Region is a located rectangle on screen.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the midpoint of the region.
func (r Region) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Template is an image to locate with a minimum match confidence.
type Template struct {
	Name       string
	Path       string
	Confidence float64
}

func (t Template) String() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Path
}

// Locator finds templates on the current screen. A missing template is
// reported as found=false with a nil error.
type Locator interface {
	Locate(ctx context.Context, tmpl Template) (Region, bool, error)
}

// Input injects synthetic pointer and keyboard events.
type Input interface {
	Click(ctx context.Context, at Point) error
	RightClick(ctx context.Context, at Point) error
	// Press taps each key in order.
	Press(ctx context.Context, keys ...string) error
	// Hotkey holds the keys down together as a chord.
	Hotkey(ctx context.Context, keys ...string) error
	// Paste enters text through the clipboard for fields that reject keystrokes.
	Paste(ctx context.Context, text string) error
}

// Capturer reports the screen geometry and grabs PNG screenshots.
type Capturer interface {
	Size(ctx context.Context) (width, height int, err error)
	Screenshot(ctx context.Context) ([]byte, error)
}

// Driver is the full screen-automation boundary.
type Driver interface {
	Locator
	Input
	Capturer
}

// CenterOf returns the middle of the screen, falling back to 1920x1080 when
// the geometry is unavailable.
func CenterOf(ctx context.Context, c Capturer) Point {
	w, h, err := c.Size(ctx)
	if err != nil || w <= 0 || h <= 0 {
		w, h = 1920, 1080
	}
	return Point{X: w / 2, Y: h / 2}
}

// Clock abstracts time so waits can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx ends, returning an ErrInterrupted-wrapped
	// error in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	return Sleep(ctx, d)
}

// Sleep is the interruptible settle sleep used between UI actions.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrInterrupted, "screen", "sleep", "stop requested", err)
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return services.Wrap(services.ErrInterrupted, "screen", "sleep", "stop requested", ctx.Err())
	case <-timer.C:
		return nil
	}
}
