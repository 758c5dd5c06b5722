// Package logging assembles structured slog loggers and formatting helpers used
// across rpanode.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so flow code can automatically
// tag log lines with hospital types, stages, flow names, and correlation IDs.
// The console handler lifts hospital/flow/step into a header subject so a
// cycle reads top to bottom. A no-op logger is provided for tests.
package logging
