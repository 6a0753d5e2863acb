package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/opflow-dev/opflow/internal/config"
	"github.com/opflow-dev/opflow/internal/log"
	"github.com/opflow-dev/opflow/internal/scanner"
	"github.com/opflow-dev/opflow/pkg/optree"
	"github.com/opflow-dev/opflow/pkg/summary"
)

// batchResult aggregates one batch run for reporting.
type batchResult struct {
	Files     int `json:"files"`
	Functions int `json:"functions"`
	Contained int `json:"contained"` // functions whose lowering was contained
	Errors    int `json:"errors"`    // files that failed to parse or read
	CacheHits int `json:"cache_hits"`
}

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch [dir]",
	Short: "Lower every function under a directory",
	Long: `Walks a directory tree, lowers every function of every Go file,
and fills the summary cache. Files matching .opflowignore patterns are
skipped. A broken file or a contained lowering failure is logged and
counted; it never aborts the run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}

		cfg, _, err := loadConfigWithPath()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		opts := scanner.DefaultOptions()
		if includeTests, _ := cmd.Flags().GetBool("tests"); includeTests {
			opts.IncludeTests = true
		}
		files, err := scanner.New(opts).Scan(root)
		if err != nil {
			return fmt.Errorf("scanning %s: %w", root, err)
		}
		if len(files) == 0 {
			fmt.Println("No Go files found.")
			return nil
		}

		cache := summary.NewCache(cfg.CacheMaxEntries)
		if cfg.CacheMaxEntries > 0 {
			if err := cache.LoadFile(cfg.CacheFile()); err != nil {
				log.Default().Warn("summary cache unreadable, rebuilding", "path", cfg.CacheFile(), "error", err)
			}
		}

		spinner := log.NewProgressSpinner(fmt.Sprintf("Lowering %d files...", len(files)))
		spinner.Start()
		result := runBatch(cmd.Context(), cfg, files, cache, spinner)
		spinner.Stop()

		if cfg.CacheMaxEntries > 0 {
			if err := cache.SaveFile(cfg.CacheFile()); err != nil {
				log.Default().Warn("failed to persist summary cache", "path", cfg.CacheFile(), "error", err)
			}
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Files: %d\n", result.Files)
		fmt.Printf("Functions lowered: %d\n", result.Functions)
		fmt.Printf("Cache hits: %d\n", result.CacheHits)
		if result.Contained > 0 {
			fmt.Printf("Contained lowering failures: %d\n", result.Contained)
		}
		if result.Errors > 0 {
			fmt.Printf("File errors: %d\n", result.Errors)
		}
		return nil
	},
}

// runBatch lowers all functions of all files using a bounded worker pool.
// The cache is shared; its own lock serializes access.
func runBatch(ctx context.Context, cfg *config.Config, files []scanner.FileInfo, cache *summary.Cache, spinner *log.ProgressSpinner) *batchResult {
	result := &batchResult{Files: len(files)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(workerCount(cfg))

	var done int
	for _, file := range files {
		g.Go(func() error {
			funcs, contained, hits, err := lowerFile(ctx, cfg, file, cache)

			mu.Lock()
			defer mu.Unlock()
			done++
			spinner.Message(fmt.Sprintf("Lowering %d/%d: %s", done, len(files), file.Path))
			if err != nil {
				result.Errors++
				log.Default().Warn("skipping file", "path", file.Path, "error", err)
				return nil
			}
			result.Functions += funcs
			result.Contained += contained
			result.CacheHits += hits
			return nil
		})
	}
	g.Wait()
	return result
}

// lowerFile lowers every function in one file, reusing cached summaries
// keyed by the file's modification time.
func lowerFile(ctx context.Context, cfg *config.Config, file scanner.FileInfo, cache *summary.Cache) (funcs, contained, hits int, err error) {
	unit, err := optree.ParseGoFile(file.FullPath, cfg.FlowAnalysis)
	if err != nil {
		return 0, 0, 0, err
	}
	defer unit.Close()

	for _, name := range unit.Functions() {
		if ctx.Err() != nil {
			return funcs, contained, hits, ctx.Err()
		}

		key := summaryCacheKey(file.FullPath, name, file.ModTime)
		if cfg.CacheMaxEntries > 0 {
			if _, ok := cache.Get(key); ok {
				hits++
				funcs++
				continue
			}
		}

		root, err := unit.OperationTree(name)
		if err != nil {
			log.Default().Debug("no operation tree", "path", file.Path, "function", name, "error", err)
			contained++
			continue
		}
		g, err := createGraph(ctx, cfg, file.Path, name, root)
		if err != nil {
			log.Default().Debug("lowering failed", "path", file.Path, "function", name, "error", err)
			contained++
			continue
		}
		funcs++
		if cfg.CacheMaxEntries > 0 {
			cache.Set(key, summary.FromGraph(g, name))
		}
	}
	return funcs, contained, hits, nil
}

func init() {
	batchCmd.Flags().Bool("tests", false, "Include _test.go files")
	batchCmd.Flags().BoolP("json", "j", false, "Output the run summary as JSON")
	RootCmd.AddCommand(batchCmd)
}
