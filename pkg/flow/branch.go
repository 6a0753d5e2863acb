package flow

import "github.com/opflow-dev/opflow/pkg/optree"

// BranchSemantics is the semantic kind of a branch.
type BranchSemantics int

const (
	// BranchRegular is ordinary fall-through or conditional transfer.
	BranchRegular BranchSemantics = iota
	// BranchReturn transfers to the exit block from an early return.
	BranchReturn
	// BranchThrow raises an exception; the branch has no destination.
	BranchThrow
	// BranchRethrow re-raises inside a handler; no destination.
	BranchRethrow
	// BranchStructuredExceptionHandling models exception dispatch into a
	// handler and the exit out of a finally.
	BranchStructuredExceptionHandling
)

var branchSemanticsNames = map[BranchSemantics]string{
	BranchRegular:                     "regular",
	BranchReturn:                      "return",
	BranchThrow:                       "throw",
	BranchRethrow:                     "rethrow",
	BranchStructuredExceptionHandling: "structured_exception_handling",
}

func (s BranchSemantics) String() string {
	if n, ok := branchSemanticsNames[s]; ok {
		return n
	}
	return "unknown"
}

// ConditionKind tells, for a conditional branch, which of the two possible
// successors the branch is.
type ConditionKind int

const (
	// ConditionNone marks an unconditional branch.
	ConditionNone ConditionKind = iota
	// ConditionWhenTrue is taken when the controlling condition is true.
	ConditionWhenTrue
	// ConditionWhenFalse is taken when the controlling condition is false.
	ConditionWhenFalse
)

func (k ConditionKind) String() string {
	switch k {
	case ConditionWhenTrue:
		return "when_true"
	case ConditionWhenFalse:
		return "when_false"
	default:
		return "none"
	}
}

// ControlFlowBranch is a directed edge between two basic blocks. The
// destination is nil only for Throw and Rethrow branches, which leave the
// graph. Branches are immutable once their graph is constructed.
type ControlFlowBranch struct {
	source      *BasicBlock
	destination *BasicBlock
	semantics   BranchSemantics
	condition   ConditionKind
	value       *optree.Operation
}

// Source returns the block the branch leaves.
func (b *ControlFlowBranch) Source() *BasicBlock { return b.source }

// Destination returns the block the branch enters, nil for Throw/Rethrow.
func (b *ControlFlowBranch) Destination() *BasicBlock { return b.destination }

// Semantics returns the branch's semantic kind.
func (b *ControlFlowBranch) Semantics() BranchSemantics { return b.semantics }

// Condition returns which successor a conditional branch is, or
// ConditionNone.
func (b *ControlFlowBranch) Condition() ConditionKind { return b.condition }

// ConditionValue returns the controlling condition operation of a
// conditional branch, nil otherwise.
func (b *ControlFlowBranch) ConditionValue() *optree.Operation { return b.value }

// IsConditional reports whether the branch is one arm of a true/false pair.
func (b *ControlFlowBranch) IsConditional() bool { return b.condition != ConditionNone }
