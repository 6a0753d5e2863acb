package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/opflow-dev/opflow/internal/config"
	"github.com/opflow-dev/opflow/internal/healthcheck"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize opflow configuration interactively",
	Long: `Guides you through setting up opflow configuration step by step.
Creates a config file with lowering limits, cache settings, and batch
worker count, then runs a health check against it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(cmd)
	},
}

func runInit(cmd *cobra.Command) error {
	defaults := config.DefaultConfig()

	flowAnalysis := defaults.FlowAnalysis
	maxBlocks := strconv.Itoa(defaults.MaxBlocks)
	cacheDir := defaults.CacheDir
	cacheEntries := strconv.Itoa(defaults.CacheMaxEntries)
	workers := strconv.Itoa(defaults.Workers)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Flow analysis").
				Description("Build control flow graphs? When disabled, commands only list functions.").
				Affirmative("Enabled").
				Negative("Disabled").
				Value(&flowAnalysis),
			huh.NewInput().
				Title("Maximum blocks per graph").
				Description("Lowering a single function stops past this many basic blocks").
				Placeholder(maxBlocks).
				Value(&maxBlocks).
				Validate(validatePositiveInt),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Cache directory").
				Description("Where the summary cache file lives").
				Placeholder(cacheDir).
				Value(&cacheDir),
			huh.NewInput().
				Title("Cache capacity (entries)").
				Description("0 disables summary caching").
				Placeholder(cacheEntries).
				Value(&cacheEntries).
				Validate(validateNonNegativeInt),
			huh.NewInput().
				Title("Batch workers").
				Description("Concurrent lowerings in batch mode; 0 means one per CPU").
				Placeholder(workers).
				Value(&workers).
				Validate(validateNonNegativeInt),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Global (~/.opflow/config.yaml)", "global"),
					huh.NewOption("Project (./.opflow/config.yaml)", "project"),
				).
				Value(&saveLocationChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	var configPath string
	if saveLocationChoice == "global" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		configPath = filepath.Join(home, ".opflow", "config.yaml")
	} else {
		configPath = filepath.Join(".opflow", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	cfg.FlowAnalysis = flowAnalysis
	cfg.MaxBlocks, _ = strconv.Atoi(maxBlocks)
	if cacheDir != "" {
		cfg.CacheDir = cacheDir
	}
	cfg.CacheMaxEntries, _ = strconv.Atoi(cacheEntries)
	cfg.Workers, _ = strconv.Atoi(workers)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fmt.Println("\n=== Configuration Preview ===")
	fmt.Printf("Config path: %s\n", configPath)
	fmt.Printf("Flow analysis: %v\n", cfg.FlowAnalysis)
	fmt.Printf("Max blocks: %d\n", cfg.MaxBlocks)
	fmt.Printf("Cache dir: %s\n", cfg.CacheDir)
	fmt.Printf("Cache capacity: %d\n", cfg.CacheMaxEntries)
	fmt.Printf("Workers: %d\n", cfg.Workers)
	fmt.Println("=============================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Configuration saved to: %s\n", configPath)

	fmt.Println("\n=== Running Health Check ===")
	loadedCfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading saved config: %w", err)
	}
	result, err := healthcheck.Check(cmd.Context(), loadedCfg, configPath)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	displayDoctorResult(result)

	fmt.Println("\n=== Initialization Complete ===")
	return nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("enter a positive integer")
	}
	return nil
}

func validateNonNegativeInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fmt.Errorf("enter a non-negative integer")
	}
	return nil
}

func init() {
	RootCmd.AddCommand(initCmd)
}
