package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opflow-dev/opflow/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on the installation",
	Long: `Checks that the configuration is valid, the cache directory is
writable, and the parse-and-lower pipeline produces graphs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, configPath, err := loadConfigWithPath()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		result, err := healthcheck.Check(cmd.Context(), cfg, configPath)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		displayDoctorResult(result)

		if !result.Healthy() {
			return fmt.Errorf("health check failed: one or more checks reported errors")
		}
		return nil
	},
}

func displayDoctorResult(result *healthcheck.Result) {
	if result.ConfigPath != "" {
		fmt.Printf("Using config: %s (%s)\n\n", result.ConfigPath, result.ConfigScope)
	} else {
		fmt.Printf("Using config: built-in defaults\n\n")
	}

	for _, c := range result.Checks {
		fmt.Printf("%s %s", formatStatusIcon(c.Status), c.Name)
		if c.Detail != "" {
			fmt.Printf(": %s", c.Detail)
		}
		fmt.Println()
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case healthcheck.StatusOK:
		return "✓"
	case healthcheck.StatusWarn:
		return "!"
	case healthcheck.StatusError:
		return "✗"
	default:
		return "?"
	}
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}
