package preflight

import (
	"context"

	"pinganalyst/internal/config"
)

// MinFreeBytes is the free space required in the staging directory.
const MinFreeBytes uint64 = 1 << 30

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// HealthChecker is satisfied by every model backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RunLocal executes the checks that need no network access.
func RunLocal(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckFreeSpace("Staging free space", cfg.Paths.StagingDir, MinFreeBytes),
	}
	for _, status := range CheckSystemDeps(cfg) {
		result := Result{Name: status.Name, Passed: status.Available || status.Optional, Detail: status.Command}
		if !status.Available {
			result.Detail = status.Detail
		}
		results = append(results, result)
	}
	return results
}

// RunAll executes the local checks plus a model health check when backend is
// not nil.
func RunAll(ctx context.Context, cfg *config.Config, backend HealthChecker) []Result {
	if cfg == nil {
		return nil
	}
	results := RunLocal(cfg)
	if backend != nil {
		results = append(results, CheckLLM(ctx, "Model endpoint", cfg.LLM.APIKey, backend))
	}
	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
