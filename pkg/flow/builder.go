package flow

import (
	"context"
	"fmt"
	"math"

	"github.com/opflow-dev/opflow/pkg/optree"
)

// lowerContext carries what a nested function inherits from the graph it is
// declared in.
type lowerContext struct {
	capturesInScope []CaptureID
}

// cancelled is panicked by the builder when its context is done, so the
// cancellation can unwind the recursive visitors without threading an error
// through every one of them. lowerGraph converts it back into the error.
type cancelled struct{ err error }

// loopFrame is one entry of the break/continue target stack. continueTo is
// nil for switch frames.
type loopFrame struct {
	breakTo    *BasicBlock
	continueTo *BasicBlock
}

type graphBuilder struct {
	ctx      context.Context
	captures *CaptureIDDispenser
	opts     options

	blocks  []*BasicBlock
	current *BasicBlock // nil while flow is unreachable
	exit    *BasicBlock

	regionStack []*ControlFlowRegion
	frames      []loopFrame
	scope       []CaptureID

	rootOp         *optree.Operation
	localFunctions []*optree.FunctionSymbol
	localFuncs     map[*optree.FunctionSymbol]localFunctionInfo
	anonFuncs      map[*optree.Operation]anonymousFunctionInfo
	anonOrder      []*optree.Operation
}

// lowerGraph turns one operation tree into a validated ControlFlowGraph.
// Internal inconsistencies panic and are contained by the caller; only
// context cancellation comes back as an error.
func lowerGraph(ctx context.Context, root *optree.Operation, lctx lowerContext, dispenser *CaptureIDDispenser, parent *ControlFlowGraph, opts options) (g *ControlFlowGraph, err error) {
	if root == nil {
		panic("flow: function has no body to lower")
	}

	defer func() {
		if r := recover(); r != nil {
			c, ok := r.(cancelled)
			if !ok {
				panic(r)
			}
			g, err = nil, c.err
		}
	}()

	rootRegion := &ControlFlowRegion{kind: RegionRoot}
	b := &graphBuilder{
		ctx:         ctx,
		captures:    dispenser,
		opts:        opts,
		exit:        &BasicBlock{kind: BlockKindExit},
		regionStack: []*ControlFlowRegion{rootRegion},
		scope:       append([]CaptureID(nil), lctx.capturesInScope...),
		rootOp:      root,
		localFuncs:  make(map[*optree.FunctionSymbol]localFunctionInfo),
		anonFuncs:   make(map[*optree.Operation]anonymousFunctionInfo),
	}

	entry := b.place(&BasicBlock{kind: BlockKindEntry})
	first := b.place(b.newBlock())
	b.link(entry, first, BranchRegular, ConditionNone, nil)
	b.current = first

	b.lowerStatement(root)

	if b.current != nil {
		b.link(b.current, b.exit, BranchRegular, ConditionNone, nil)
	}
	if len(b.regionStack) != 1 {
		panic(fmt.Sprintf("flow: %d regions left open after lowering", len(b.regionStack)-1))
	}
	b.place(b.exit)

	b.pack(entry)
	if err := computeRegionSpans(rootRegion, b.blocks); err != nil {
		panic(err)
	}

	g = &ControlFlowGraph{
		original:       root,
		blocks:         b.blocks,
		root:           rootRegion,
		localFunctions: b.localFunctions,
		localFuncs:     b.localFuncs,
		anonFuncs:      b.anonFuncs,
		anonOrder:      b.anonOrder,
		captures:       dispenser,
		parent:         parent,
		opts:           opts,
	}
	if err := g.validate(); err != nil {
		panic(err)
	}
	return g, nil
}

func (b *graphBuilder) failf(format string, args ...any) {
	panic(fmt.Sprintf("flow: "+format, args...))
}

func (b *graphBuilder) checkCancelled() {
	if err := b.ctx.Err(); err != nil {
		panic(cancelled{err})
	}
}

func (b *graphBuilder) region() *ControlFlowRegion {
	return b.regionStack[len(b.regionStack)-1]
}

func (b *graphBuilder) enterRegion(kind RegionKind) *ControlFlowRegion {
	parent := b.region()
	r := &ControlFlowRegion{kind: kind, parent: parent}
	parent.children = append(parent.children, r)
	b.regionStack = append(b.regionStack, r)
	return r
}

func (b *graphBuilder) leaveRegion() {
	b.regionStack = b.regionStack[:len(b.regionStack)-1]
}

// newBlock creates a detached block. It joins the graph, in the region
// current at that moment, when place is called; creation and placement are
// separate so join targets can exist before the code that jumps past them.
func (b *graphBuilder) newBlock() *BasicBlock {
	return &BasicBlock{kind: BlockKindBlock}
}

func (b *graphBuilder) place(blk *BasicBlock) *BasicBlock {
	if len(b.blocks) >= b.opts.maxBlocks {
		b.failf("graph exceeds %d blocks", b.opts.maxBlocks)
	}
	blk.region = b.region()
	blk.ordinal = len(b.blocks)
	b.blocks = append(b.blocks, blk)
	return blk
}

// startBlock places a fresh block, falls through to it from the current
// block when flow is live, and makes it current.
func (b *graphBuilder) startBlock() *BasicBlock {
	blk := b.place(b.newBlock())
	if b.current != nil {
		b.link(b.current, blk, BranchRegular, ConditionNone, nil)
	}
	b.current = blk
	return blk
}

// ensureCurrent revives flow into a fresh, predecessor-less block after a
// return/throw/break made it unreachable. The dead statements still get
// lowered so their blocks and nested functions exist.
func (b *graphBuilder) ensureCurrent() *BasicBlock {
	if b.current == nil {
		b.current = b.place(b.newBlock())
	}
	return b.current
}

func (b *graphBuilder) link(src, dst *BasicBlock, sem BranchSemantics, cond ConditionKind, value *optree.Operation) *ControlFlowBranch {
	br := &ControlFlowBranch{source: src, destination: dst, semantics: sem, condition: cond, value: value}
	src.branches = append(src.branches, br)
	if dst != nil {
		dst.predecessors = append(dst.predecessors, br)
	}
	return br
}

func (b *graphBuilder) appendOperation(op *optree.Operation) {
	b.ensureCurrent().operations = append(b.current.operations, op)
}

func (b *graphBuilder) newCapture() CaptureID {
	id := b.captures.Next()
	b.scope = append(b.scope, id)
	r := b.region()
	r.captures = append(r.captures, id)
	return id
}

// lowerStatement dispatches on the statement kinds a front-end may emit.
func (b *graphBuilder) lowerStatement(op *optree.Operation) {
	b.checkCancelled()
	if op == nil {
		return
	}
	switch op.Kind() {
	case optree.KindBlock:
		b.lowerBlock(op)
	case optree.KindVariableDeclaration:
		b.lowerExpression(op.Initializer())
		b.appendOperation(op)
	case optree.KindConditional:
		b.lowerConditional(op)
	case optree.KindWhileLoop:
		b.lowerWhileLoop(op)
	case optree.KindReturn:
		b.lowerReturn(op)
	case optree.KindThrow:
		b.lowerExpression(op.Value())
		b.appendOperation(op)
		b.link(b.current, nil, BranchThrow, ConditionNone, nil)
		b.current = nil
	case optree.KindRethrow:
		b.appendOperation(op)
		b.link(b.current, nil, BranchRethrow, ConditionNone, nil)
		b.current = nil
	case optree.KindTry:
		b.lowerTry(op)
	case optree.KindSwitch:
		b.lowerSwitch(op)
	case optree.KindBranch:
		b.lowerBranch(op)
	case optree.KindLocalFunction:
		b.registerLocalFunction(op)
	case optree.KindExpression:
		b.lowerExpression(op)
		b.appendOperation(op)
	default:
		b.failf("cannot lower %s as a statement", op)
	}
}

func (b *graphBuilder) lowerBlock(op *optree.Operation) {
	declaresLocals := false
	for _, child := range op.Children() {
		if child.Kind() == optree.KindVariableDeclaration {
			declaresLocals = true
			break
		}
	}
	if declaresLocals {
		b.enterRegion(RegionLocalLifetime)
		b.startBlock()
	}
	for _, child := range op.Children() {
		b.lowerStatement(child)
	}
	if declaresLocals {
		b.leaveRegion()
		b.startBlock()
	}
}

func (b *graphBuilder) lowerConditional(op *optree.Operation) {
	cond := b.lowerExpression(op.Condition())
	test := b.ensureCurrent()
	after := b.newBlock()

	then := b.place(b.newBlock())
	b.link(test, then, BranchRegular, ConditionWhenTrue, cond)
	b.current = then
	b.lowerStatement(op.Body())
	thenEnd := b.current

	if els := op.Else(); els != nil {
		elseBlk := b.place(b.newBlock())
		b.link(test, elseBlk, BranchRegular, ConditionWhenFalse, cond)
		b.current = elseBlk
		b.lowerStatement(els)
		if b.current != nil {
			b.link(b.current, after, BranchRegular, ConditionNone, nil)
		}
	} else {
		b.link(test, after, BranchRegular, ConditionWhenFalse, cond)
	}
	if thenEnd != nil {
		b.link(thenEnd, after, BranchRegular, ConditionNone, nil)
	}

	b.place(after)
	b.current = after
}

func (b *graphBuilder) lowerWhileLoop(op *optree.Operation) {
	after := b.newBlock()
	b.enterRegion(RegionLoop)

	head := b.startBlock()
	cond := b.lowerExpression(op.Condition())
	test := b.ensureCurrent()

	body := b.place(b.newBlock())
	b.link(test, body, BranchRegular, ConditionWhenTrue, cond)
	b.link(test, after, BranchRegular, ConditionWhenFalse, cond)

	b.frames = append(b.frames, loopFrame{breakTo: after, continueTo: head})
	b.current = body
	b.lowerStatement(op.Body())
	if b.current != nil {
		// back edge
		b.link(b.current, head, BranchRegular, ConditionNone, nil)
	}
	b.frames = b.frames[:len(b.frames)-1]

	b.leaveRegion()
	b.place(after)
	b.current = after
}

// lowerReturn distinguishes the return that merely ends the unit from an
// early return: the last statement of the unit's body reaches the exit over
// a regular fall-through branch, everything else over a return branch.
func (b *graphBuilder) lowerReturn(op *optree.Operation) {
	b.lowerExpression(op.Value())
	if op.Value() != nil {
		b.appendOperation(op)
	} else {
		b.ensureCurrent()
	}
	sem := BranchReturn
	if b.isTrailing(op) {
		sem = BranchRegular
	}
	b.link(b.current, b.exit, sem, ConditionNone, nil)
	b.current = nil
}

func (b *graphBuilder) isTrailing(op *optree.Operation) bool {
	if op.Parent() != b.rootOp {
		return false
	}
	siblings := b.rootOp.Children()
	return len(siblings) > 0 && siblings[len(siblings)-1] == op
}

func (b *graphBuilder) lowerTry(op *optree.Operation) {
	children := op.Children()
	if len(children) == 0 {
		b.failf("try has no body")
	}
	body := children[0]
	var catches []*optree.Operation
	var finally *optree.Operation
	for _, c := range children[1:] {
		switch c.Kind() {
		case optree.KindCatchClause:
			catches = append(catches, c)
		case optree.KindFinallyClause:
			finally = c
		default:
			b.failf("unexpected %s inside try", c)
		}
	}
	if len(catches) == 0 && finally == nil {
		b.failf("try has neither handlers nor a finally")
	}

	after := b.newBlock()
	if finally != nil {
		b.enterRegion(RegionTryAndFinally)
	}
	if len(catches) > 0 {
		b.enterRegion(RegionTryAndCatch)
	}

	b.enterRegion(RegionTry)
	tryEntry := b.startBlock()
	b.lowerStatement(body)
	tryEnd := b.current
	b.leaveRegion()

	for _, clause := range catches {
		target := b.lowerCatchClause(clause, after)
		// Dispatch from the protected region is represented by one edge
		// out of its entry block.
		b.link(tryEntry, target, BranchStructuredExceptionHandling, ConditionNone, nil)
	}
	if len(catches) > 0 {
		b.leaveRegion()
	}

	if finally != nil {
		b.enterRegion(RegionFinally)
		finEntry := b.place(b.newBlock())
		b.current = finEntry
		b.lowerStatement(finally.Body())
		finEnd := b.ensureCurrent()
		b.link(finEnd, after, BranchStructuredExceptionHandling, ConditionNone, nil)
		b.leaveRegion()

		b.link(tryEntry, finEntry, BranchStructuredExceptionHandling, ConditionNone, nil)
		if tryEnd != nil {
			b.link(tryEnd, finEntry, BranchRegular, ConditionNone, nil)
		}
		b.leaveRegion()
	} else if tryEnd != nil {
		b.link(tryEnd, after, BranchRegular, ConditionNone, nil)
	}

	b.place(after)
	b.current = after
}

// lowerCatchClause lowers one handler and returns the block exception
// dispatch enters: the filter block for a filtered handler, the handler
// body otherwise.
func (b *graphBuilder) lowerCatchClause(clause *optree.Operation, after *BasicBlock) *BasicBlock {
	filter := clause.Filter()
	if filter == nil {
		b.enterRegion(RegionCatch)
		handler := b.place(b.newBlock())
		b.current = handler
		b.lowerStatement(clause.Body())
		if b.current != nil {
			b.link(b.current, after, BranchRegular, ConditionNone, nil)
		}
		b.leaveRegion()
		return handler
	}

	b.enterRegion(RegionFilterAndHandler)

	b.enterRegion(RegionFilter)
	filterBlk := b.place(b.newBlock())
	b.current = filterBlk
	f := b.lowerExpression(filter)
	test := b.ensureCurrent()
	b.leaveRegion()

	b.enterRegion(RegionCatch)
	handler := b.place(b.newBlock())
	b.link(test, handler, BranchRegular, ConditionWhenTrue, f)
	b.link(test, after, BranchRegular, ConditionWhenFalse, f)
	b.current = handler
	b.lowerStatement(clause.Body())
	if b.current != nil {
		b.link(b.current, after, BranchRegular, ConditionNone, nil)
	}
	b.leaveRegion()

	b.leaveRegion()
	return filterBlk
}

// lowerSwitch evaluates the subject once into a capture and tests the case
// guards in order; every arm converges on the block after the switch.
func (b *graphBuilder) lowerSwitch(op *optree.Operation) {
	children := op.Children()
	if len(children) == 0 {
		b.failf("switch has no subject")
	}
	subject := b.lowerExpression(children[0])
	id := b.newCapture()
	b.appendOperation(optree.NewFlowCapture(int32(id), subject))

	after := b.newBlock()
	b.frames = append(b.frames, loopFrame{breakTo: after})

	var defaultArm *optree.Operation
	for _, arm := range children[1:] {
		if arm.Kind() != optree.KindSwitchCase {
			b.failf("unexpected %s inside switch", arm)
		}
		if arm.Guard() == nil {
			if defaultArm != nil {
				b.failf("switch has two default arms")
			}
			defaultArm = arm
			continue
		}

		guard := b.lowerExpression(arm.Guard())
		test := b.ensureCurrent()
		body := b.place(b.newBlock())
		b.link(test, body, BranchRegular, ConditionWhenTrue, guard)

		next := b.newBlock()
		b.link(test, next, BranchRegular, ConditionWhenFalse, guard)

		b.current = body
		b.lowerStatement(arm.Body())
		if b.current != nil {
			b.link(b.current, after, BranchRegular, ConditionNone, nil)
		}

		b.place(next)
		b.current = next
	}

	if defaultArm != nil {
		b.lowerStatement(defaultArm.Body())
	}
	if b.current != nil {
		b.link(b.current, after, BranchRegular, ConditionNone, nil)
	}

	b.frames = b.frames[:len(b.frames)-1]
	b.place(after)
	b.current = after
}

func (b *graphBuilder) lowerBranch(op *optree.Operation) {
	b.ensureCurrent()
	for i := len(b.frames) - 1; i >= 0; i-- {
		frame := b.frames[i]
		switch op.Branch() {
		case optree.BranchBreak:
			b.link(b.current, frame.breakTo, BranchRegular, ConditionNone, nil)
			b.current = nil
			return
		case optree.BranchContinue:
			if frame.continueTo == nil {
				continue // switch frames do not take continue
			}
			b.link(b.current, frame.continueTo, BranchRegular, ConditionNone, nil)
			b.current = nil
			return
		}
	}
	b.failf("%s outside of any enclosing loop or switch", op)
}

func (b *graphBuilder) registerLocalFunction(op *optree.Operation) {
	sym := op.Symbol()
	if sym == nil {
		b.failf("local function without a symbol")
	}
	if _, dup := b.localFuncs[sym]; dup {
		b.failf("local function %s registered twice", sym.Name())
	}
	b.localFuncs[sym] = localFunctionInfo{
		declaration: op,
		ordinal:     len(b.localFunctions),
	}
	b.localFunctions = append(b.localFunctions, sym)
}

func (b *graphBuilder) registerLambda(op *optree.Operation) {
	if _, seen := b.anonFuncs[op]; seen {
		return
	}
	b.anonFuncs[op] = anonymousFunctionInfo{
		ordinal:         len(b.anonOrder),
		capturesInScope: append([]CaptureID(nil), b.scope...),
	}
	b.anonOrder = append(b.anonOrder, op)
}

// lowerExpression prepares an expression for use in a block or branch:
// short-circuit operators gain their control flow and capture, func
// literals get registered. The returned operation stands for the
// expression's value at the point of use.
func (b *graphBuilder) lowerExpression(op *optree.Operation) *optree.Operation {
	if op == nil {
		return nil
	}
	switch op.Kind() {
	case optree.KindBinaryLogical:
		return b.lowerLogical(op)
	case optree.KindAnonymousFunction:
		b.registerLambda(op)
		return op
	default:
		for _, child := range op.Children() {
			if child.Kind() == optree.KindAnonymousFunction {
				b.registerLambda(child)
			}
		}
		return op
	}
}

// lowerLogical expands a && b / a || b: the left operand lands in a fresh
// capture, a conditional pair either short-circuits past the right operand
// or overwrites the capture with it, and the result is a reference to the
// capture.
func (b *graphBuilder) lowerLogical(op *optree.Operation) *optree.Operation {
	operands := op.Children()
	if len(operands) != 2 {
		b.failf("%s has %d operands", op, len(operands))
	}

	lhs := b.lowerExpression(operands[0])
	id := b.newCapture()
	b.appendOperation(optree.NewFlowCapture(int32(id), lhs))
	ref := optree.NewFlowCaptureReference(int32(id))

	test := b.current
	after := b.newBlock()
	rhsBlk := b.place(b.newBlock())

	shortCircuit := ConditionWhenFalse
	evaluateRHS := ConditionWhenTrue
	if op.Logical() == optree.LogicalOr {
		shortCircuit, evaluateRHS = ConditionWhenTrue, ConditionWhenFalse
	}
	b.link(test, after, BranchRegular, shortCircuit, ref)
	b.link(test, rhsBlk, BranchRegular, evaluateRHS, ref)

	b.current = rhsBlk
	rhs := b.lowerExpression(operands[1])
	b.appendOperation(optree.NewFlowCapture(int32(id), rhs))
	b.link(b.current, after, BranchRegular, ConditionNone, nil)

	b.place(after)
	b.current = after
	return optree.NewFlowCaptureReference(int32(id))
}

// pack removes the empty pass-through blocks lowering leaves behind: a
// block with no operations and a single unconditional regular successor is
// cut out and its predecessors rewired to the successor. The block directly
// after the entry survives, so every graph keeps at least one ordinary
// block. Runs to a fixpoint, then renumbers.
func (b *graphBuilder) pack(entry *BasicBlock) {
	removed := make(map[*BasicBlock]bool)
	for changed := true; changed; {
		changed = false
		for _, blk := range b.blocks {
			if removed[blk] || blk.kind != BlockKindBlock {
				continue
			}
			if len(blk.operations) != 0 || len(blk.branches) != 1 {
				continue
			}
			out := blk.branches[0]
			if out.semantics != BranchRegular || out.condition != ConditionNone {
				continue
			}
			dst := out.destination
			if dst == nil || dst == blk {
				continue
			}
			if feedsFrom(blk, entry) {
				continue
			}
			for _, in := range blk.predecessors {
				in.destination = dst
				dst.predecessors = append(dst.predecessors, in)
			}
			dst.predecessors = dropBranch(dst.predecessors, out)
			blk.predecessors = nil
			blk.branches = nil
			removed[blk] = true
			changed = true
		}
	}

	kept := b.blocks[:0]
	for _, blk := range b.blocks {
		if !removed[blk] {
			kept = append(kept, blk)
		}
	}
	b.blocks = kept
	for i, blk := range b.blocks {
		blk.ordinal = i
	}
}

func feedsFrom(blk, entry *BasicBlock) bool {
	for _, in := range blk.predecessors {
		if in.source == entry {
			return true
		}
	}
	return false
}

func dropBranch(branches []*ControlFlowBranch, victim *ControlFlowBranch) []*ControlFlowBranch {
	out := branches[:0]
	for _, br := range branches {
		if br != victim {
			out = append(out, br)
		}
	}
	return out
}

// computeRegionSpans derives every region's block span from the packed
// block sequence and prunes regions left without blocks, folding their
// captures into the surviving parent.
func computeRegionSpans(root *ControlFlowRegion, blocks []*BasicBlock) error {
	resetSpans(root)
	for _, blk := range blocks {
		for r := blk.region; r != nil; r = r.parent {
			if blk.ordinal < r.first {
				r.first = blk.ordinal
			}
			if blk.ordinal > r.last {
				r.last = blk.ordinal
			}
		}
	}
	pruneEmptyRegions(root)
	if root.last < root.first {
		return fmt.Errorf("root region spans no blocks")
	}
	return nil
}

func resetSpans(r *ControlFlowRegion) {
	r.first = math.MaxInt
	r.last = -1
	for _, child := range r.children {
		resetSpans(child)
	}
}

func pruneEmptyRegions(r *ControlFlowRegion) {
	kept := r.children[:0]
	for _, child := range r.children {
		pruneEmptyRegions(child)
		if child.last < child.first {
			r.captures = append(r.captures, child.captures...)
			continue
		}
		kept = append(kept, child)
	}
	r.children = kept
}
