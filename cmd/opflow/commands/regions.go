package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opflow-dev/opflow/pkg/summary"
)

// regionsCmd represents the regions command
var regionsCmd = &cobra.Command{
	Use:   "regions <file> <function>",
	Short: "Show the region tree for a function",
	Long: `Lowers a function and prints its region tree: which block spans
belong to loops, local lifetimes, and exception handling constructs,
and how many flow captures each region owns.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfigWithPath()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		s, err := summarizeFunction(cmd.Context(), cfg, args[0], args[1], true)
		if err != nil {
			return err
		}

		fmt.Printf("%s (%s)\n", s.Function, s.Unit)
		printRegion(s.Root, 0)
		return nil
	},
}

func printRegion(r summary.RegionSummary, depth int) {
	line := fmt.Sprintf("%s%s [%d..%d]", strings.Repeat("  ", depth), r.Kind, r.First, r.Last)
	if r.Captures > 0 {
		line += fmt.Sprintf(" captures=%d", r.Captures)
	}
	fmt.Println(line)
	for _, child := range r.Children {
		printRegion(child, depth+1)
	}
}

func init() {
	RootCmd.AddCommand(regionsCmd)
}
