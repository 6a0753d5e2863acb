package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/opflow-dev/opflow/pkg/summary"
)

// WriteText renders the summary as an indented outline: one section per
// block with its operations and outgoing branches, followed by the region
// tree.
func WriteText(w io.Writer, s *summary.GraphSummary) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s", s.Function)
	if s.Unit != "" {
		fmt.Fprintf(&b, " (%s)", s.Unit)
	}
	fmt.Fprintf(&b, "\n  blocks: %d  complexity: %d\n", len(s.Blocks), s.Complexity)
	if len(s.LocalFunctions) > 0 {
		fmt.Fprintf(&b, "  local functions: %s\n", strings.Join(s.LocalFunctions, ", "))
	}
	if s.AnonymousFunctions > 0 {
		fmt.Fprintf(&b, "  anonymous functions: %d\n", s.AnonymousFunctions)
	}
	b.WriteString("\n")

	for _, blk := range s.Blocks {
		fmt.Fprintf(&b, "[%d] %s\n", blk.Ordinal, blk.Kind)
		for _, op := range blk.Operations {
			fmt.Fprintf(&b, "    %s\n", op)
		}
		for _, br := range blk.Branches {
			target := "(unwind)"
			if br.To >= 0 {
				target = fmt.Sprintf("-> %d", br.To)
			}
			line := fmt.Sprintf("    %s %s", br.Semantics, target)
			if br.Condition != "" {
				line += fmt.Sprintf(" [%s: %s]", br.Condition, br.Value)
			}
			b.WriteString(line + "\n")
		}
	}

	b.WriteString("\nregions:\n")
	writeRegion(&b, s.Root, 1)

	_, err := io.WriteString(w, b.String())
	return err
}

func writeRegion(b *strings.Builder, r summary.RegionSummary, depth int) {
	fmt.Fprintf(b, "%s%s [%d..%d]", strings.Repeat("  ", depth), r.Kind, r.First, r.Last)
	if r.Captures > 0 {
		fmt.Fprintf(b, " captures=%d", r.Captures)
	}
	b.WriteString("\n")
	for _, child := range r.Children {
		writeRegion(b, child, depth+1)
	}
}
