package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"rpanode/internal/api"
	"rpanode/internal/preflight"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestDependencyLines(t *testing.T) {
	deps := []api.DependencyStatus{
		{Name: "Screen driver", Available: false, Detail: "not found"},
		{Name: "Artifacts", Available: false, Optional: true, Detail: "not configured"},
	}
	lines := dependencyLines(deps, false)
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d: %q", len(lines), lines)
	}
	if !strings.Contains(lines[2], "[ERROR] 1 required missing") {
		t.Fatalf("expected summary line, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "[ERROR] not found") {
		t.Fatalf("expected error detail, got %q", lines[3])
	}
	if !strings.Contains(lines[4], "[WARN] not configured") {
		t.Fatalf("expected warn detail, got %q", lines[4])
	}
}

func TestNodeLinesPendingAssignment(t *testing.T) {
	lines := nodeLines(api.NodeStatus{NodeID: "abc", Cycle: api.CycleStatus{Phase: "idle"}}, false)
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "[ERROR] Not running") {
		t.Fatalf("expected not running line:\n%s", joined)
	}
	if !strings.Contains(joined, "[WARN] Pending assignment") {
		t.Fatalf("expected pending assignment line:\n%s", joined)
	}
}

func TestFlowLinesIdle(t *testing.T) {
	lines := flowLines(api.FlowStatus{Status: "idle"}, false)
	if len(lines) != 3 || !strings.Contains(lines[2], "Idle") {
		t.Fatalf("unexpected idle lines %q", lines)
	}
}

func TestPreflightLines(t *testing.T) {
	lines := preflightLines([]preflight.Result{
		{Name: "Catalog", Passed: true, Detail: "ok"},
		{Name: "Backend", Passed: false, Detail: "connection refused"},
	}, false)
	if !strings.Contains(lines[2], "[OK] ok") || !strings.Contains(lines[3], "[ERROR] connection refused") {
		t.Fatalf("unexpected preflight lines %q", lines)
	}
}

func TestTaskTableEmpty(t *testing.T) {
	if got := taskTable(nil); got != "" {
		t.Fatalf("expected empty table, got %q", got)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
