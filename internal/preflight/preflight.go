package preflight

import (
	"context"

	"rpanode/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	if cfg.Paths.ScreenshotDir != "" {
		results = append(results, CheckDirectoryAccess("Screenshot directory", cfg.Paths.ScreenshotDir))
	}

	results = append(results, CheckCatalog(cfg.Paths.Catalog))
	results = append(results, CheckScreenDriver(cfg))
	results = append(results, CheckBackendFromConfig(ctx, cfg))
	results = append(results, CheckOCRFromConfig(cfg))
	results = append(results, CheckLLM(ctx, "Structuring LLM", cfg.LLM))

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
