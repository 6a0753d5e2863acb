// Package flow builds and represents control flow graphs for single
// executable code units described by operation trees (see the optree
// package). A graph is an ordered sequence of basic blocks connected by
// typed branches and partitioned into nested structured regions; graphs for
// functions nested inside the unit are built lazily on demand.
package flow

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/opflow-dev/opflow/pkg/optree"
)

// localFunctionInfo is what lowering records about a local function
// declaration so its own graph can be built later.
type localFunctionInfo struct {
	declaration *optree.Operation
	ordinal     int
}

// anonymousFunctionInfo is the context captured at the point a func literal
// was lowered.
type anonymousFunctionInfo struct {
	ordinal         int
	capturesInScope []CaptureID
}

type graphSlots = []atomic.Pointer[ControlFlowGraph]

// ControlFlowGraph is the immutable result of lowering one operation tree.
// Blocks, regions and branches are freely shared across goroutines once the
// graph is published.
type ControlFlowGraph struct {
	original       *optree.Operation
	blocks         []*BasicBlock
	root           *ControlFlowRegion
	localFunctions []*optree.FunctionSymbol
	localFuncs     map[*optree.FunctionSymbol]localFunctionInfo
	anonFuncs      map[*optree.Operation]anonymousFunctionInfo
	anonOrder      []*optree.Operation

	// captures is shared, not owned: the same dispenser serves this graph
	// and every graph lazily built from it.
	captures *CaptureIDDispenser
	parent   *ControlFlowGraph
	opts     options

	// Lazily allocated per-ordinal caches of nested graphs. The backing
	// arrays and each slot are published with compare-and-set; the first
	// successfully completed build wins and later readers all observe it.
	localGraphs atomic.Pointer[graphSlots]
	anonGraphs  atomic.Pointer[graphSlots]
}

// Create lowers the operation tree rooted at root into a control flow
// graph. root must be the parentless root of a tree bound to a semantic
// model whose unit has flow analysis enabled; violations surface as the
// distinct sentinel errors in this package.
//
// A failure inside lowering itself is contained: it is reported to the
// configured DiagnosticSink and Create returns (nil, nil), meaning "no
// graph available for this unit". Cancellation of ctx aborts construction
// and propagates ctx.Err().
func Create(ctx context.Context, root *optree.Operation, opts ...Option) (g *ControlFlowGraph, err error) {
	if root == nil {
		return nil, ErrNilOperation
	}
	if root.Parent() != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRoot, root)
	}
	model := root.Model()
	if model == nil {
		return nil, ErrNoSemanticModel
	}
	if !model.FlowAnalysisEnabled() {
		return nil, fmt.Errorf("%w: %s", ErrFlowAnalysisDisabled, model.Unit())
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	defer func() {
		if r := recover(); r != nil {
			o.sink.Report(Diagnostic{
				Unit:    model.Unit(),
				Message: fmt.Sprintf("lowering %s: %v", root, r),
			})
			g, err = nil, nil
		}
	}()

	g, err = lowerGraph(ctx, root, lowerContext{}, NewCaptureIDDispenser(), nil, o)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// OriginalOperation returns the root of the operation tree the graph was
// built from. For a graph from Create it is reference-identical to the
// Create argument; for a nested graph it is the nested function's body.
func (g *ControlFlowGraph) OriginalOperation() *optree.Operation { return g.original }

// Blocks returns the ordered block sequence. blocks[0] is the entry block,
// blocks[len-1] the exit block, and every block's ordinal equals its index.
// Callers must not mutate the returned slice.
func (g *ControlFlowGraph) Blocks() []*BasicBlock { return g.blocks }

// Entry returns the entry block.
func (g *ControlFlowGraph) Entry() *BasicBlock { return g.blocks[0] }

// Exit returns the exit block.
func (g *ControlFlowGraph) Exit() *BasicBlock { return g.blocks[len(g.blocks)-1] }

// Root returns the root of the region tree, spanning every block.
func (g *ControlFlowGraph) Root() *ControlFlowRegion { return g.root }

// Parent returns the graph this graph was lazily built from, or nil for a
// graph created by Create.
func (g *ControlFlowGraph) Parent() *ControlFlowGraph { return g.parent }

// LocalFunctions returns the distinct local function symbols declared
// inside the original operation, in declaration order.
func (g *ControlFlowGraph) LocalFunctions() []*optree.FunctionSymbol { return g.localFunctions }

// AnonymousFunctions returns the anonymous function occurrences registered
// while lowering, in lowering order.
func (g *ControlFlowGraph) AnonymousFunctions() []*optree.Operation { return g.anonOrder }

// LocalFunctionGraph builds (on first call) and returns the control flow
// graph of a local function declared in this graph. Concurrent callers may
// race to build the same graph; exactly one result is retained and all
// callers observe that instance. Failed or cancelled builds publish
// nothing.
func (g *ControlFlowGraph) LocalFunctionGraph(ctx context.Context, fn *optree.FunctionSymbol) (*ControlFlowGraph, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: local function symbol", ErrNilArgument)
	}
	info, ok := g.localFuncs[fn]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLocalFunction, fn.Name())
	}
	slots := ensureSlots(&g.localGraphs, len(g.localFunctions))
	return g.buildNested(ctx, &(*slots)[info.ordinal], info.declaration.Body(), lowerContext{})
}

// AnonymousFunctionGraph is the anonymous-function counterpart of
// LocalFunctionGraph, keyed by the identity of the func literal operation.
func (g *ControlFlowGraph) AnonymousFunctionGraph(ctx context.Context, lambda *optree.Operation) (*ControlFlowGraph, error) {
	if lambda == nil {
		return nil, fmt.Errorf("%w: anonymous function", ErrNilArgument)
	}
	info, ok := g.anonFuncs[lambda]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAnonymousFunction, lambda)
	}
	slots := ensureSlots(&g.anonGraphs, len(g.anonOrder))
	return g.buildNested(ctx, &(*slots)[info.ordinal], lambda.Body(), lowerContext{
		capturesInScope: info.capturesInScope,
	})
}

// buildNested implements the lazy at-most-one-effective-build protocol for
// one cache slot. The shared dispenser means a discarded duplicate build
// wastes the ids it consumed; uniqueness, not density, is the contract.
func (g *ControlFlowGraph) buildNested(ctx context.Context, slot *atomic.Pointer[ControlFlowGraph], body *optree.Operation, lctx lowerContext) (nested *ControlFlowGraph, err error) {
	if cached := slot.Load(); cached != nil {
		return cached, nil
	}

	defer func() {
		if r := recover(); r != nil {
			g.opts.sink.Report(Diagnostic{
				Unit:    g.unitName(),
				Message: fmt.Sprintf("lowering nested function: %v", r),
			})
			nested, err = nil, nil
		}
	}()

	built, err := lowerGraph(ctx, body, lctx, g.captures, g, g.opts)
	if err != nil {
		// Cancelled: nothing is published.
		return nil, err
	}
	slot.CompareAndSwap(nil, built)
	return slot.Load(), nil
}

func (g *ControlFlowGraph) unitName() string {
	if m := g.original.Model(); m != nil {
		return m.Unit()
	}
	return ""
}

// ensureSlots installs the fixed-size backing array on first use. Two
// threads may allocate competing arrays; compare-and-set keeps exactly one.
func ensureSlots(p *atomic.Pointer[graphSlots], n int) *graphSlots {
	if s := p.Load(); s != nil {
		return s
	}
	fresh := make(graphSlots, n)
	p.CompareAndSwap(nil, &fresh)
	return p.Load()
}

// validate enforces the structural invariants of a freshly lowered graph.
// A violation is a lowering bug and is contained by the caller.
func (g *ControlFlowGraph) validate() error {
	n := len(g.blocks)
	if n < 2 {
		return fmt.Errorf("graph has %d blocks, need at least entry and exit", n)
	}
	if g.blocks[0].kind != BlockKindEntry {
		return fmt.Errorf("block 0 is %s, want entry", g.blocks[0].kind)
	}
	if g.blocks[n-1].kind != BlockKindExit {
		return fmt.Errorf("block %d is %s, want exit", n-1, g.blocks[n-1].kind)
	}
	for i, blk := range g.blocks {
		if blk.ordinal != i {
			return fmt.Errorf("block at index %d has ordinal %d", i, blk.ordinal)
		}
		if i > 0 && i < n-1 && blk.kind != BlockKindBlock {
			return fmt.Errorf("interior block %d has kind %s", i, blk.kind)
		}
		if blk.region == nil {
			return fmt.Errorf("block %d has no region", i)
		}
	}
	if g.root == nil || g.root.kind != RegionRoot {
		return fmt.Errorf("missing root region")
	}
	if g.root.first != 0 || g.root.last != n-1 {
		return fmt.Errorf("root region spans [%d,%d], want [0,%d]", g.root.first, g.root.last, n-1)
	}
	if err := validateRegion(g.root); err != nil {
		return err
	}
	if len(g.localFuncs) != len(g.localFunctions) {
		return fmt.Errorf("local function map has %d entries for %d symbols", len(g.localFuncs), len(g.localFunctions))
	}
	for sym, info := range g.localFuncs {
		if info.ordinal < 0 || info.ordinal >= len(g.localFunctions) || g.localFunctions[info.ordinal] != sym {
			return fmt.Errorf("local function %s has inconsistent ordinal %d", sym.Name(), info.ordinal)
		}
	}
	if len(g.anonFuncs) != len(g.anonOrder) {
		return fmt.Errorf("anonymous function map has %d entries for %d occurrences", len(g.anonFuncs), len(g.anonOrder))
	}
	for op, info := range g.anonFuncs {
		if info.ordinal < 0 || info.ordinal >= len(g.anonOrder) || g.anonOrder[info.ordinal] != op {
			return fmt.Errorf("anonymous function has inconsistent ordinal %d", info.ordinal)
		}
	}
	return nil
}

func validateRegion(r *ControlFlowRegion) error {
	if r.first > r.last {
		return fmt.Errorf("%s region has empty span [%d,%d]", r.kind, r.first, r.last)
	}
	prevLast := r.first - 1
	for _, child := range r.children {
		if child.parent != r {
			return fmt.Errorf("%s region has child with wrong parent", r.kind)
		}
		if child.first < r.first || child.last > r.last {
			return fmt.Errorf("%s child [%d,%d] escapes parent span [%d,%d]", child.kind, child.first, child.last, r.first, r.last)
		}
		if child.first <= prevLast {
			return fmt.Errorf("%s child [%d,%d] overlaps its preceding sibling", child.kind, child.first, child.last)
		}
		prevLast = child.last
		if err := validateRegion(child); err != nil {
			return err
		}
	}
	return nil
}
