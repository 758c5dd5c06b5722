package watcher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"rpanode/internal/screen"
	"rpanode/internal/testsupport"
	"rpanode/internal/watcher"
)

var securityAlert = screen.Template{Name: "security_alert", Confidence: 0.8}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestStartStopAreIdempotent(t *testing.T) {
	fake := testsupport.NewFakeScreen(nil)
	svc := watcher.New(fake, []watcher.Guard{{Template: securityAlert}}, watcher.WithInterval(5*time.Millisecond))

	svc.Stop()
	svc.Start()
	svc.Start()
	if !svc.Running() {
		t.Fatal("expected watcher running")
	}
	svc.Stop()
	svc.Stop()
	if svc.Running() {
		t.Fatal("expected watcher stopped")
	}
}

func TestDismissesGuardedDialogAtCenter(t *testing.T) {
	fake := testsupport.NewFakeScreen(nil)
	fake.Show(securityAlert.Name)
	fake.SetRegion(securityAlert.Name, screen.Region{X: 800, Y: 500, Width: 200, Height: 100})
	fake.OnClick(func(screen.Point) { fake.Hide(securityAlert.Name) })

	svc := watcher.New(fake, []watcher.Guard{{Template: securityAlert, Description: "security alert"}},
		watcher.WithInterval(5*time.Millisecond))
	svc.Start()
	defer svc.Stop()

	waitUntil(t, func() bool { return svc.Dismissals() == 1 })
	clicks := fake.EventsOfKind("click")
	if len(clicks) != 1 || clicks[0].Point != (screen.Point{X: 900, Y: 550}) {
		t.Fatalf("unexpected clicks %+v", clicks)
	}
}

func TestNoScansAfterStopReturns(t *testing.T) {
	fake := testsupport.NewFakeScreen(nil)
	svc := watcher.New(fake, []watcher.Guard{{Template: securityAlert}}, watcher.WithInterval(time.Millisecond))
	svc.Start()
	waitUntil(t, func() bool { return fake.LocateCount(securityAlert.Name) > 3 })
	svc.Stop()

	before := fake.LocateCount(securityAlert.Name)
	time.Sleep(20 * time.Millisecond)
	if after := fake.LocateCount(securityAlert.Name); after != before {
		t.Fatalf("watcher scanned after Stop returned: %d -> %d", before, after)
	}
}

func TestCooldownSuppressesRepeatDismissal(t *testing.T) {
	fake := testsupport.NewFakeScreen(nil)
	fake.Show(securityAlert.Name)
	svc := watcher.New(fake, []watcher.Guard{{Template: securityAlert, Keys: []string{"esc"}}},
		watcher.WithInterval(time.Millisecond),
		watcher.WithCooldown(time.Hour),
	)
	svc.Start()
	waitUntil(t, func() bool { return svc.Scans() >= 5 })
	svc.Stop()

	if n := len(fake.EventsOfKind("hotkey")); n != 1 {
		t.Fatalf("expected one dismissal during cooldown, got %d", n)
	}
}

func TestDismissErrorsAreSwallowed(t *testing.T) {
	fake := testsupport.NewFakeScreen(nil)
	fake.Show(securityAlert.Name)
	fake.InputErr = errors.New("driver offline")

	svc := watcher.New(fake, []watcher.Guard{{Template: securityAlert}}, watcher.WithInterval(time.Millisecond))
	svc.Start()
	waitUntil(t, func() bool { return svc.Scans() >= 3 })
	if !svc.Running() {
		t.Fatal("watcher should keep running after dismissal errors")
	}
	svc.Stop()
	if svc.Dismissals() != 0 {
		t.Fatalf("expected no successful dismissals, got %d", svc.Dismissals())
	}
}

type panickyScreen struct {
	*testsupport.FakeScreen
}

func (panickyScreen) Locate(context.Context, screen.Template) (screen.Region, bool, error) {
	panic("template decoder crashed")
}

func TestScanPanicDoesNotKillLoop(t *testing.T) {
	svc := watcher.New(panickyScreen{testsupport.NewFakeScreen(nil)}, []watcher.Guard{{Template: securityAlert}},
		watcher.WithInterval(time.Millisecond))
	svc.Start()
	waitUntil(t, func() bool { return svc.Scans() >= 3 })
	svc.Stop()
}
