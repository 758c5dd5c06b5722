package preflight

import (
	"context"
	"fmt"
	"strings"

	"rpanode/internal/config"
)

// CheckScreenDriver reports whether the configured driver binary resolves.
func CheckScreenDriver(cfg *config.Config) Result {
	const name = "Screen driver"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	status := CheckSystemDeps(cfg)[0]
	if !status.Available {
		return Result{Name: name, Detail: status.Detail}
	}
	return Result{Name: name, Passed: true, Detail: status.Path}
}

// CheckBackendFromConfig evaluates backend reachability from config.
func CheckBackendFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Backend"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Backend.URL) == "" {
		return Result{Name: name, Detail: "Missing URL"}
	}
	return CheckBackend(ctx, cfg.Backend.URL)
}

// CheckOCRFromConfig reports whether the OCR client is configured. Google
// Vision has no free health probe, so only the settings are checked.
func CheckOCRFromConfig(cfg *config.Config) Result {
	const name = "Google Vision OCR"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.OCR.APIKey) == "" {
		return Result{Name: name, Detail: "Missing API key"}
	}
	if strings.TrimSpace(cfg.OCR.Endpoint) == "" {
		return Result{Name: name, Detail: "Missing endpoint"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("Configured (%s)", cfg.OCR.Endpoint)}
}
