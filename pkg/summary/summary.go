// Package summary flattens control flow graphs into serializable summaries
// for command output and caching. A summary carries the block and branch
// structure plus derived metrics, not the operation trees themselves.
package summary

import (
	"fmt"

	"github.com/opflow-dev/opflow/pkg/flow"
)

// BranchSummary is one outgoing edge of a block. To is the destination
// ordinal, -1 when the branch leaves the graph (throw/rethrow).
type BranchSummary struct {
	To        int    `json:"to" msgpack:"to"`
	Semantics string `json:"semantics" msgpack:"semantics"`
	Condition string `json:"condition,omitempty" msgpack:"condition,omitempty"`
	Value     string `json:"value,omitempty" msgpack:"value,omitempty"`
}

// BlockSummary is one basic block.
type BlockSummary struct {
	Ordinal    int             `json:"ordinal" msgpack:"ordinal"`
	Kind       string          `json:"kind" msgpack:"kind"`
	Operations []string        `json:"operations,omitempty" msgpack:"operations,omitempty"`
	Branches   []BranchSummary `json:"branches,omitempty" msgpack:"branches,omitempty"`
}

// RegionSummary is one node of the region tree.
type RegionSummary struct {
	Kind     string          `json:"kind" msgpack:"kind"`
	First    int             `json:"first" msgpack:"first"`
	Last     int             `json:"last" msgpack:"last"`
	Captures int             `json:"captures,omitempty" msgpack:"captures,omitempty"`
	Children []RegionSummary `json:"children,omitempty" msgpack:"children,omitempty"`
}

// GraphSummary is the flattened form of one control flow graph.
type GraphSummary struct {
	Unit               string         `json:"unit" msgpack:"unit"`
	Function           string         `json:"function" msgpack:"function"`
	Blocks             []BlockSummary `json:"blocks" msgpack:"blocks"`
	Root               RegionSummary  `json:"root" msgpack:"root"`
	LocalFunctions     []string       `json:"local_functions,omitempty" msgpack:"local_functions,omitempty"`
	AnonymousFunctions int            `json:"anonymous_functions,omitempty" msgpack:"anonymous_functions,omitempty"`
	Complexity         int            `json:"complexity" msgpack:"complexity"`
}

// FromGraph summarizes g. function names the unit member the graph was
// built for and is carried through verbatim.
func FromGraph(g *flow.ControlFlowGraph, function string) *GraphSummary {
	s := &GraphSummary{
		Function:           function,
		Blocks:             make([]BlockSummary, 0, len(g.Blocks())),
		Root:               summarizeRegion(g.Root()),
		AnonymousFunctions: len(g.AnonymousFunctions()),
		Complexity:         Complexity(g),
	}
	if m := g.OriginalOperation().Model(); m != nil {
		s.Unit = m.Unit()
	}
	for _, sym := range g.LocalFunctions() {
		s.LocalFunctions = append(s.LocalFunctions, sym.Name())
	}
	for _, blk := range g.Blocks() {
		s.Blocks = append(s.Blocks, summarizeBlock(blk))
	}
	return s
}

func summarizeBlock(blk *flow.BasicBlock) BlockSummary {
	b := BlockSummary{
		Ordinal: blk.Ordinal(),
		Kind:    blk.Kind().String(),
	}
	for _, op := range blk.Operations() {
		b.Operations = append(b.Operations, op.String())
	}
	for _, br := range blk.Branches() {
		bs := BranchSummary{
			To:        -1,
			Semantics: br.Semantics().String(),
		}
		if br.Destination() != nil {
			bs.To = br.Destination().Ordinal()
		}
		if br.IsConditional() {
			bs.Condition = br.Condition().String()
			if v := br.ConditionValue(); v != nil {
				bs.Value = v.String()
			}
		}
		b.Branches = append(b.Branches, bs)
	}
	return b
}

func summarizeRegion(r *flow.ControlFlowRegion) RegionSummary {
	s := RegionSummary{
		Kind:     r.Kind().String(),
		First:    r.FirstBlockOrdinal(),
		Last:     r.LastBlockOrdinal(),
		Captures: len(r.CaptureIDs()),
	}
	for _, child := range r.Children() {
		s.Children = append(s.Children, summarizeRegion(child))
	}
	return s
}

// Complexity computes cyclomatic complexity as one plus the number of
// blocks that end in a conditional branch pair.
func Complexity(g *flow.ControlFlowGraph) int {
	n := 1
	for _, blk := range g.Blocks() {
		if blk.ConditionalSuccessor(flow.ConditionWhenTrue) != nil {
			n++
		}
	}
	return n
}

// Key builds the cache key for a function's summary. The modification time
// makes stale entries miss instead of serving outdated graphs.
func Key(path, function string, mtime int64) string {
	return fmt.Sprintf("%s:%s:%d", path, function, mtime)
}
