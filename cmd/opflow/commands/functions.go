package commands

import (
	"encoding/json"
	"fmt"
	"runtime"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/opflow-dev/opflow/internal/config"
	"github.com/opflow-dev/opflow/pkg/optree"
)

// functionMetrics is one row of `opflow functions --metrics` output.
type functionMetrics struct {
	Function           string   `json:"function"`
	Blocks             int      `json:"blocks"`
	Complexity         int      `json:"complexity"`
	LocalFunctions     []string `json:"local_functions,omitempty"`
	AnonymousFunctions int      `json:"anonymous_functions,omitempty"`
	Error              string   `json:"error,omitempty"`
}

// functionsCmd represents the functions command
var functionsCmd = &cobra.Command{
	Use:   "functions <file>",
	Short: "List functions in a Go source file",
	Long: `Lists the top-level functions and methods of a file in source
order. With --metrics each function is lowered (concurrently) and its
block count, complexity, and nested functions are reported.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath := args[0]

		cfg, _, err := loadConfigWithPath()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		unit, err := optree.ParseGoFile(filePath, cfg.FlowAnalysis)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", filePath, err)
		}
		names := unit.Functions()
		unit.Close()

		withMetrics, _ := cmd.Flags().GetBool("metrics")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		if !withMetrics {
			if jsonOutput {
				data, err := json.MarshalIndent(names, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		}

		rows := collectMetrics(cmd, cfg, filePath, names)

		if jsonOutput {
			data, err := json.MarshalIndent(rows, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		for _, row := range rows {
			if row.Error != "" {
				fmt.Printf("%-30s (error: %s)\n", row.Function, row.Error)
				continue
			}
			line := fmt.Sprintf("%-30s blocks=%d complexity=%d", row.Function, row.Blocks, row.Complexity)
			if len(row.LocalFunctions) > 0 {
				line += fmt.Sprintf(" local=%d", len(row.LocalFunctions))
			}
			if row.AnonymousFunctions > 0 {
				line += fmt.Sprintf(" anon=%d", row.AnonymousFunctions)
			}
			fmt.Println(line)
		}
		return nil
	},
}

// collectMetrics lowers every named function concurrently. Failures are
// reported per function; one broken body never hides the others.
func collectMetrics(cmd *cobra.Command, cfg *config.Config, filePath string, names []string) []functionMetrics {
	rows := make([]functionMetrics, len(names))

	var g errgroup.Group
	g.SetLimit(workerCount(cfg))
	var mu sync.Mutex

	for i, name := range names {
		g.Go(func() error {
			// The cache file is written whole on every update; concurrent
			// workers bypass it and let batch runs maintain it instead.
			s, err := summarizeFunction(cmd.Context(), cfg, filePath, name, false)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rows[i] = functionMetrics{Function: name, Error: err.Error()}
				return nil
			}
			rows[i] = functionMetrics{
				Function:           name,
				Blocks:             len(s.Blocks),
				Complexity:         s.Complexity,
				LocalFunctions:     s.LocalFunctions,
				AnonymousFunctions: s.AnonymousFunctions,
			}
			return nil
		})
	}
	g.Wait()
	return rows
}

// workerCount resolves the configured worker count; zero means one per CPU.
func workerCount(cfg *config.Config) int {
	if cfg.Workers > 0 {
		return cfg.Workers
	}
	return runtime.NumCPU()
}

func init() {
	functionsCmd.Flags().Bool("metrics", false, "Lower each function and report graph metrics")
	functionsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	RootCmd.AddCommand(functionsCmd)
}
