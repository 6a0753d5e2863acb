// Package healthcheck verifies that an opflow installation can actually
// do its job: the configuration is valid, the cache directory is
// writable, the parser produces operation trees, and the lowering
// pipeline builds graphs from them.
package healthcheck

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opflow-dev/opflow/internal/config"
	"github.com/opflow-dev/opflow/pkg/flow"
	"github.com/opflow-dev/opflow/pkg/optree"
)

// Status values for a single check.
const (
	StatusOK    = "ok"
	StatusWarn  = "warn"
	StatusError = "error"
)

// CheckStatus is the outcome of one health check.
type CheckStatus struct {
	Name   string
	Status string
	Detail string
}

// Result contains all check outcomes plus where the effective config
// came from.
type Result struct {
	ConfigPath  string // config file in use, empty when running on defaults
	ConfigScope string // "global", "project", or ""
	Checks      []CheckStatus
}

// Healthy reports whether no check ended in an error. Warnings do not
// count against health.
func (r *Result) Healthy() bool {
	for _, c := range r.Checks {
		if c.Status == StatusError {
			return false
		}
	}
	return true
}

// probeSource is lowered during the pipeline check. It exercises a
// conditional so the resulting graph has more than the trivial shape.
const probeSource = `package probe

func probe(ready bool) int {
	if ready {
		return 1
	}
	return 0
}
`

// Check runs every health check against cfg. configPath is the config
// file actually in use (may be empty when only defaults apply).
func Check(ctx context.Context, cfg *config.Config, configPath string) (*Result, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	result := &Result{
		ConfigPath:  configPath,
		ConfigScope: scopeFromPath(configPath),
	}
	result.Checks = append(result.Checks, checkConfig(cfg))
	result.Checks = append(result.Checks, checkCacheDir(cfg))
	result.Checks = append(result.Checks, checkPipeline(ctx, cfg))
	return result, nil
}

// scopeFromPath classifies a config path as global (~/.opflow) or
// project-level.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}
	if home, err := os.UserHomeDir(); err == nil {
		if strings.HasPrefix(path, filepath.Join(home, ".opflow")) {
			return "global"
		}
	}
	return "project"
}

// checkConfig validates the configuration values.
func checkConfig(cfg *config.Config) CheckStatus {
	c := CheckStatus{Name: "config"}
	if err := cfg.Validate(); err != nil {
		c.Status = StatusError
		c.Detail = err.Error()
		return c
	}
	c.Status = StatusOK
	if !cfg.FlowAnalysis {
		c.Status = StatusWarn
		c.Detail = "flow analysis is disabled; graph commands will refuse to run"
	}
	return c
}

// checkCacheDir verifies the cache directory exists (creating it if
// needed) and is writable.
func checkCacheDir(cfg *config.Config) CheckStatus {
	c := CheckStatus{Name: "cache"}

	if cfg.CacheMaxEntries == 0 {
		c.Status = StatusWarn
		c.Detail = "summary caching is disabled (cache_max_entries = 0)"
		return c
	}

	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		c.Status = StatusError
		c.Detail = fmt.Sprintf("cannot create cache directory %s: %v", cfg.CacheDir, err)
		return c
	}

	probe := filepath.Join(cfg.CacheDir, ".opflow-health")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		c.Status = StatusError
		c.Detail = fmt.Sprintf("cache directory %s is not writable: %v", cfg.CacheDir, err)
		return c
	}
	os.Remove(probe)

	c.Status = StatusOK
	c.Detail = cfg.CacheDir
	return c
}

// checkPipeline parses a small probe file and lowers its one function,
// verifying the parser grammar loads and graph construction works
// end to end.
func checkPipeline(ctx context.Context, cfg *config.Config) CheckStatus {
	c := CheckStatus{Name: "pipeline"}

	unit, err := optree.ParseGoSource("probe.go", []byte(probeSource), true)
	if err != nil {
		c.Status = StatusError
		c.Detail = fmt.Sprintf("parser failed: %v", err)
		return c
	}
	defer unit.Close()

	functions := unit.Functions()
	if len(functions) != 1 {
		c.Status = StatusError
		c.Detail = fmt.Sprintf("expected 1 function in probe source, found %d", len(functions))
		return c
	}

	root, err := unit.OperationTree(functions[0])
	if err != nil {
		c.Status = StatusError
		c.Detail = fmt.Sprintf("operation tree construction failed: %v", err)
		return c
	}

	g, err := flow.Create(ctx, root, flow.WithMaxBlocks(cfg.MaxBlocks))
	if err != nil {
		c.Status = StatusError
		c.Detail = fmt.Sprintf("graph construction failed: %v", err)
		return c
	}
	if g == nil {
		c.Status = StatusError
		c.Detail = "graph construction was contained by a lowering failure"
		return c
	}

	c.Status = StatusOK
	c.Detail = fmt.Sprintf("probe graph has %d blocks", len(g.Blocks()))
	return c
}
