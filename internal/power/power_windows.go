//go:build windows

package power

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sys/windows"

	"rpanode/internal/logging"
)

const (
	esContinuous      = 0x80000000
	esSystemRequired  = 0x00000001
	esDisplayRequired = 0x00000002
)

var procSetThreadExecutionState = windows.NewLazySystemDLL("kernel32.dll").NewProc("SetThreadExecutionState")

// executionState holds ES_CONTINUOUS on a dedicated OS thread. The flag is
// per-thread, so the goroutine stays locked until Release.
type executionState struct {
	logger  *slog.Logger
	mu      sync.Mutex
	release chan struct{}
	done    chan struct{}
}

func newPlatform(logger *slog.Logger) Inhibitor {
	return &executionState{logger: logging.NewComponentLogger(logger, "power")}
}

func (e *executionState) Inhibit(_ context.Context, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.release != nil {
		return nil
	}
	if err := procSetThreadExecutionState.Find(); err != nil {
		return fmt.Errorf("resolve SetThreadExecutionState: %w", err)
	}
	started := make(chan error, 1)
	e.release = make(chan struct{})
	e.done = make(chan struct{})
	go func(release, done chan struct{}) {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(done)
		r, _, callErr := procSetThreadExecutionState.Call(uintptr(esContinuous | esSystemRequired | esDisplayRequired))
		if r == 0 {
			started <- fmt.Errorf("SetThreadExecutionState: %w", callErr)
			return
		}
		started <- nil
		<-release
		procSetThreadExecutionState.Call(uintptr(esContinuous))
	}(e.release, e.done)
	if err := <-started; err != nil {
		close(e.release)
		<-e.done
		e.release, e.done = nil, nil
		return err
	}
	e.logger.Debug("idle sleep suppressed", logging.String("reason", reason))
	return nil
}

func (e *executionState) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.release == nil {
		return nil
	}
	close(e.release)
	<-e.done
	e.release, e.done = nil, nil
	e.logger.Debug("idle sleep allowed")
	return nil
}
