package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"

	"rpanode/internal/api"
	"rpanode/internal/preflight"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func nodeLines(status api.NodeStatus, colorize bool) []string {
	lines := renderSectionHeader("Node", colorize)
	if status.Running {
		lines = append(lines, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
	} else {
		lines = append(lines, renderStatusLine("Daemon", statusError, "Not running", colorize))
	}
	lines = append(lines, renderStatusLine("Node ID", statusInfo, status.NodeID, colorize))
	if status.Cycle.Assigned {
		lines = append(lines, renderStatusLine("Doctor", statusOK, strings.TrimSpace(status.Cycle.DoctorName+" ("+status.Cycle.DoctorID+")"), colorize))
	} else {
		lines = append(lines, renderStatusLine("Doctor", statusWarn, "Pending assignment", colorize))
	}
	lines = append(lines, renderStatusLine("Phase", statusInfo, status.Cycle.Phase, colorize))
	lines = append(lines, renderStatusLine("Cycles", statusInfo, strconv.Itoa(status.Cycle.Cycles), colorize))
	if status.Cycle.LastCycleAt != "" {
		lines = append(lines, renderStatusLine("Last cycle", statusInfo, status.Cycle.LastCycleAt, colorize))
	}
	return lines
}

func flowLines(flow api.FlowStatus, colorize bool) []string {
	lines := renderSectionHeader("Flow", colorize)
	if flow.Status != "running" {
		return append(lines, renderStatusLine("Flow", statusInfo, "Idle", colorize))
	}
	lines = append(lines, renderStatusLine("Flow", statusOK, flow.Flow, colorize))
	lines = append(lines, renderStatusLine("Hospital", statusInfo, flow.Hospital, colorize))
	lines = append(lines, renderStatusLine("Step", statusInfo, flow.Step, colorize))
	if flow.StartedAt != "" {
		lines = append(lines, renderStatusLine("Started", statusInfo, flow.StartedAt, colorize))
	}
	return lines
}

func stageHealthLines(health []api.StageHealth, colorize bool) []string {
	lines := renderSectionHeader("Hospitals", colorize)
	if len(health) == 0 {
		return append(lines, renderStatusLine("Variants", statusWarn, "None reported", colorize))
	}
	for _, h := range health {
		if h.Ready {
			lines = append(lines, renderStatusLine(h.Name, statusOK, "Ready", colorize))
			continue
		}
		lines = append(lines, renderStatusLine(h.Name, statusError, h.Detail, colorize))
	}
	return lines
}

func dependencyLines(deps []api.DependencyStatus, colorize bool) []string {
	lines := renderSectionHeader("Dependencies", colorize)
	missing := 0
	for _, dep := range deps {
		if !dep.Available && !dep.Optional {
			missing++
		}
	}
	if missing > 0 {
		lines = append(lines, renderStatusLine("Summary", statusError, fmt.Sprintf("%d required missing", missing), colorize))
	} else {
		lines = append(lines, renderStatusLine("Summary", statusOK, "All available", colorize))
	}
	for _, dep := range deps {
		switch {
		case dep.Available:
			lines = append(lines, renderStatusLine(dep.Name, statusOK, dep.Command, colorize))
		case dep.Optional:
			lines = append(lines, renderStatusLine(dep.Name, statusWarn, dep.Detail, colorize))
		default:
			lines = append(lines, renderStatusLine(dep.Name, statusError, dep.Detail, colorize))
		}
	}
	return lines
}

func preflightLines(results []preflight.Result, colorize bool) []string {
	lines := renderSectionHeader("Preflight", colorize)
	for _, r := range results {
		kind := statusOK
		if !r.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	return lines
}

func taskTable(cycle *api.CycleSummary) string {
	if cycle == nil || len(cycle.Tasks) == 0 {
		return ""
	}
	rows := make([][]string, 0, len(cycle.Tasks))
	for _, t := range cycle.Tasks {
		result := "ok"
		switch {
		case t.Skipped:
			result = "skipped: " + t.SkipReason
		case !t.Succeeded:
			result = "failed: " + t.Error
		}
		rows = append(rows, []string{t.Hospital, t.Stage, result, strconv.Itoa(t.Names), strconv.FormatInt(t.DurationSeconds, 10)})
	}
	return renderTable(
		[]string{"Hospital", "Stage", "Result", "Names", "Seconds"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
}

func runsTable(runs []api.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		detail := r.Step
		if r.Error != "" {
			detail = r.Step + ": " + r.Error
		}
		rows = append(rows, []string{r.StartedAt, r.Flow, r.Hospital, r.Status, strconv.FormatInt(r.DurationSeconds, 10), detail})
	}
	return renderTable(
		[]string{"Started", "Flow", "Hospital", "Status", "Seconds", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}
