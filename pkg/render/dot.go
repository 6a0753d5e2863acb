// Package render turns graph summaries into human-readable forms: Graphviz
// DOT for visualization and an indented text outline for terminals.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/opflow-dev/opflow/pkg/summary"
)

// WriteDot renders the summary as a Graphviz digraph. Blocks become nodes
// labelled with their ordinal and kind; branch semantics and conditions
// annotate the edges. Edges that leave the graph point at a shared sink
// node.
func WriteDot(w io.Writer, s *summary.GraphSummary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", dotName(s))
	b.WriteString("\tmode=\"heir\";\n")
	b.WriteString("\tsplines=\"ortho\";\n\n")

	for _, blk := range s.Blocks {
		fmt.Fprintf(&b, "\t%q [shape=%s];\n", blockLabel(blk), blockShape(blk.Kind))
	}
	b.WriteString("\n")

	thrown := false
	for _, blk := range s.Blocks {
		for _, br := range blk.Branches {
			label := edgeLabel(br)
			if br.To < 0 {
				thrown = true
				fmt.Fprintf(&b, "\t%q -> \"unwind\" [style=dashed, label=%q]\n", blockLabel(blk), label)
				continue
			}
			if label == "" {
				fmt.Fprintf(&b, "\t%q -> %q\n", blockLabel(blk), blockLabel(s.Blocks[br.To]))
			} else {
				fmt.Fprintf(&b, "\t%q -> %q [label=%q]\n", blockLabel(blk), blockLabel(s.Blocks[br.To]), label)
			}
		}
	}
	if thrown {
		b.WriteString("\n\t\"unwind\" [shape=octagon];\n")
	}
	b.WriteString("}\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func dotName(s *summary.GraphSummary) string {
	if s.Function != "" {
		return s.Function
	}
	return "flowgraph"
}

func blockLabel(blk summary.BlockSummary) string {
	switch blk.Kind {
	case "entry":
		return "ENTRY"
	case "exit":
		return "EXIT"
	default:
		return fmt.Sprintf("B%d", blk.Ordinal)
	}
}

func blockShape(kind string) string {
	if kind == "entry" || kind == "exit" {
		return "doublecircle"
	}
	return "box"
}

func edgeLabel(br summary.BranchSummary) string {
	parts := make([]string, 0, 2)
	if br.Semantics != "regular" {
		parts = append(parts, br.Semantics)
	}
	if br.Condition != "" {
		parts = append(parts, br.Condition)
	}
	return strings.Join(parts, " ")
}
