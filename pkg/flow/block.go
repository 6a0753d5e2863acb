package flow

import "github.com/opflow-dev/opflow/pkg/optree"

// BasicBlockKind distinguishes the two synthetic boundary blocks from
// ordinary blocks.
type BasicBlockKind int

const (
	// BlockKindBlock is an ordinary basic block.
	BlockKindBlock BasicBlockKind = iota
	// BlockKindEntry is the unique entry block, always at ordinal 0 and
	// never holding operations.
	BlockKindEntry
	// BlockKindExit is the unique exit block, always last.
	BlockKindExit
)

func (k BasicBlockKind) String() string {
	switch k {
	case BlockKindEntry:
		return "entry"
	case BlockKindExit:
		return "exit"
	default:
		return "block"
	}
}

// BasicBlock is a maximal straight-line sequence of non-branching
// operations terminated by zero or more typed outgoing branches. Blocks are
// immutable once their graph is constructed.
type BasicBlock struct {
	ordinal      int
	kind         BasicBlockKind
	operations   []*optree.Operation
	branches     []*ControlFlowBranch
	predecessors []*ControlFlowBranch
	region       *ControlFlowRegion
}

// Ordinal returns the block's position in the graph's block sequence.
func (b *BasicBlock) Ordinal() int { return b.ordinal }

// Kind returns Entry, Exit or Block.
func (b *BasicBlock) Kind() BasicBlockKind { return b.kind }

// Operations returns the block's operations in execution order. Callers
// must not mutate the returned slice.
func (b *BasicBlock) Operations() []*optree.Operation { return b.operations }

// Branches returns the outgoing edges. Callers must not mutate the returned
// slice.
func (b *BasicBlock) Branches() []*ControlFlowBranch { return b.branches }

// Predecessors returns the incoming edges. Callers must not mutate the
// returned slice.
func (b *BasicBlock) Predecessors() []*ControlFlowBranch { return b.predecessors }

// Region returns the leaf-most region the block belongs to.
func (b *BasicBlock) Region() *ControlFlowRegion { return b.region }

// FallThrough returns the unconditional regular successor branch, or nil.
func (b *BasicBlock) FallThrough() *ControlFlowBranch {
	for _, br := range b.branches {
		if br.condition == ConditionNone && br.semantics == BranchRegular {
			return br
		}
	}
	return nil
}

// ConditionalSuccessor returns the outgoing branch taken when the block's
// condition evaluates to the given polarity, or nil.
func (b *BasicBlock) ConditionalSuccessor(kind ConditionKind) *ControlFlowBranch {
	for _, br := range b.branches {
		if br.condition == kind {
			return br
		}
	}
	return nil
}
