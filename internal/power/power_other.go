//go:build !windows

package power

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"rpanode/internal/logging"
)

const inhibitBinary = "systemd-inhibit"

// systemdInhibitor holds a systemd-inhibit child process for the duration of
// the inhibition. Without systemd it degrades to a no-op.
type systemdInhibitor struct {
	logger *slog.Logger
	mu     sync.Mutex
	cmd    *exec.Cmd
	waitCh chan error
}

func newPlatform(logger *slog.Logger) Inhibitor {
	return &systemdInhibitor{logger: logging.NewComponentLogger(logger, "power")}
}

func (s *systemdInhibitor) Inhibit(_ context.Context, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return nil
	}
	path, err := exec.LookPath(inhibitBinary)
	if err != nil {
		s.logger.Debug("systemd-inhibit unavailable; idle sleep not suppressed")
		return nil
	}
	cmd := exec.Command(path,
		"--what=idle:sleep",
		"--who=rpanode",
		"--why="+reason,
		"--mode=block",
		"sleep", "infinity",
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", inhibitBinary, err)
	}
	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()
	s.cmd = cmd
	s.waitCh = waitCh
	s.logger.Debug("idle sleep suppressed", logging.String("reason", reason))
	return nil
}

func (s *systemdInhibitor) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return nil
	}
	cmd, waitCh := s.cmd, s.waitCh
	s.cmd, s.waitCh = nil, nil
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("stop %s: %w", inhibitBinary, err)
	}
	<-waitCh
	s.logger.Debug("idle sleep allowed")
	return nil
}

// Held reports whether an inhibitor process is running.
func (s *systemdInhibitor) Held() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}
