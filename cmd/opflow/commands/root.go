// Package commands provides the CLI commands for the opflow tool.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opflow-dev/opflow/internal/config"
	"github.com/opflow-dev/opflow/internal/log"
)

var (
	flagVerbose bool
	flagLogJSON bool
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "opflow",
	Short: "opflow - Control flow graphs for Go source",
	Long: `opflow lowers Go function bodies into control flow graphs and
reports their block structure, regions, and complexity.

Commands:
  graph       Build the control flow graph for one function
  regions     Show the region tree for one function
  functions   List functions in a file, optionally with graph metrics
  batch       Lower every function under a directory
  init        Create a configuration file interactively
  doctor      Run health checks on the installation

Use "opflow [command] --help" for more information about a command.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger := log.Default()
		if flagVerbose {
			logger.SetLevel(log.DebugLevel)
		}
		if flagLogJSON {
			logger.SetJSONOutput(true)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable debug logging")
	RootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "Emit logs as JSON")
}

// loadConfigWithPath resolves the effective configuration the way the
// loader does (project file, then global file, then defaults plus env)
// and reports which file actually applied. An empty path means defaults.
func loadConfigWithPath() (*config.Config, string, error) {
	projectConfigPath := filepath.Join(".opflow", "config.yaml")
	if fileExists(projectConfigPath) {
		cfg, err := config.LoadFromFile(projectConfigPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config from %s: %w", projectConfigPath, err)
		}
		return cfg, projectConfigPath, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		globalConfigPath := filepath.Join(home, ".opflow", "config.yaml")
		if fileExists(globalConfigPath) {
			cfg, err := config.LoadFromFile(globalConfigPath)
			if err != nil {
				return nil, "", fmt.Errorf("failed to load config from %s: %w", globalConfigPath, err)
			}
			return cfg, globalConfigPath, nil
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, "", err
	}
	return cfg, "", nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
