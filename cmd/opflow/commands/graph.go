package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opflow-dev/opflow/internal/config"
	"github.com/opflow-dev/opflow/internal/log"
	"github.com/opflow-dev/opflow/pkg/flow"
	"github.com/opflow-dev/opflow/pkg/optree"
	"github.com/opflow-dev/opflow/pkg/render"
	"github.com/opflow-dev/opflow/pkg/summary"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <file> <function>",
	Short: "Build the control flow graph for a function",
	Long: `Lowers the body of a function in a Go source file into a control
flow graph. The default output is a text outline of blocks, branches,
and regions; --dot emits Graphviz, --json the full summary.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath := args[0]
		functionName := args[1]

		cfg, _, err := loadConfigWithPath()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		noCache, _ := cmd.Flags().GetBool("no-cache")
		s, err := summarizeFunction(cmd.Context(), cfg, filePath, functionName, !noCache)
		if err != nil {
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		dotOutput, _ := cmd.Flags().GetBool("dot")

		switch {
		case jsonOutput:
			data, err := json.MarshalIndent(s, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		case dotOutput:
			return render.WriteDot(os.Stdout, s)
		default:
			return render.WriteText(os.Stdout, s)
		}
	},
}

// summarizeFunction lowers one function and returns its summary, going
// through the persisted cache when useCache is set and caching is enabled.
func summarizeFunction(ctx context.Context, cfg *config.Config, filePath, functionName string, useCache bool) (*summary.GraphSummary, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, expected a file: %s", filePath)
	}
	if !strings.HasSuffix(filePath, ".go") {
		return nil, fmt.Errorf("unsupported file type: %s (only .go files supported)", filePath)
	}

	var cache *summary.Cache
	key := summaryCacheKey(filePath, functionName, info.ModTime().Unix())
	if useCache && cfg.CacheMaxEntries > 0 {
		cache = summary.NewCache(cfg.CacheMaxEntries)
		if err := cache.LoadFile(cfg.CacheFile()); err != nil {
			log.Default().Warn("summary cache unreadable, rebuilding", "path", cfg.CacheFile(), "error", err)
		}
		if s, ok := cache.Get(key); ok {
			log.Default().Debug("summary cache hit", "key", key)
			return s, nil
		}
	}

	s, err := buildSummary(ctx, cfg, filePath, functionName)
	if err != nil {
		return nil, err
	}

	if cache != nil {
		cache.Set(key, s)
		if err := cache.SaveFile(cfg.CacheFile()); err != nil {
			log.Default().Warn("failed to persist summary cache", "path", cfg.CacheFile(), "error", err)
		}
	}
	return s, nil
}

// buildSummary parses the file and lowers the named function, bypassing
// the cache.
func buildSummary(ctx context.Context, cfg *config.Config, filePath, functionName string) (*summary.GraphSummary, error) {
	unit, err := optree.ParseGoFile(filePath, cfg.FlowAnalysis)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filePath, err)
	}
	defer unit.Close()

	root, err := unit.OperationTree(functionName)
	if err != nil {
		if suggestion := closestFunction(unit.Functions(), functionName); suggestion != "" {
			return nil, fmt.Errorf("function %q not found in %s\nDid you mean: %s?", functionName, filePath, suggestion)
		}
		return nil, err
	}

	g, err := createGraph(ctx, cfg, filePath, functionName, root)
	if err != nil {
		return nil, err
	}
	return summary.FromGraph(g, functionName), nil
}

// createGraph lowers root, translating contained failures and disabled
// analysis into command errors.
func createGraph(ctx context.Context, cfg *config.Config, filePath, functionName string, root *optree.Operation) (*flow.ControlFlowGraph, error) {
	var contained []flow.Diagnostic
	g, err := flow.Create(ctx, root,
		flow.WithMaxBlocks(cfg.MaxBlocks),
		flow.WithDiagnosticSink(flow.DiagnosticFunc(func(d flow.Diagnostic) {
			contained = append(contained, d)
		})),
	)
	if err != nil {
		if errors.Is(err, flow.ErrFlowAnalysisDisabled) {
			return nil, fmt.Errorf("flow analysis is disabled; enable it in the config or set OPFLOW_FLOW_ANALYSIS=1")
		}
		return nil, fmt.Errorf("building graph: %w", err)
	}
	if g == nil {
		msg := "lowering failed"
		if len(contained) > 0 {
			msg = contained[0].Message
		}
		return nil, fmt.Errorf("no graph for %s in %s: %s", functionName, filePath, msg)
	}
	return g, nil
}

// summaryCacheKey keys cached summaries by the absolute file path, so a
// cache warmed by a batch run still hits when the same file is named by a
// relative path (or the other way around).
func summaryCacheKey(path, function string, mtime int64) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return summary.Key(path, function, mtime)
}

// closestFunction picks a sibling function whose name contains or is
// contained by the requested one, for "did you mean" hints.
func closestFunction(candidates []string, name string) string {
	lower := strings.ToLower(name)
	for _, c := range candidates {
		lc := strings.ToLower(c)
		if strings.Contains(lc, lower) || strings.Contains(lower, lc) {
			return c
		}
	}
	return ""
}

func init() {
	graphCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	graphCmd.Flags().Bool("dot", false, "Output as Graphviz DOT")
	graphCmd.Flags().Bool("no-cache", false, "Bypass the summary cache")
	RootCmd.AddCommand(graphCmd)
}
