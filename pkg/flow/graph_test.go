package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/opflow-dev/opflow/pkg/optree"
)

func bound(t *testing.T, root *optree.Operation) *optree.Operation {
	t.Helper()
	return optree.NewSemanticModel("main.go", true).Bind(root)
}

func TestCreatePreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("nil operation", func(t *testing.T) {
		g, err := Create(ctx, nil)
		require.ErrorIs(t, err, ErrNilOperation)
		assert.Nil(t, g)
	})

	t.Run("non-root operation", func(t *testing.T) {
		ret := optree.NewReturn(nil)
		bound(t, optree.NewBlock(ret))
		g, err := Create(ctx, ret)
		require.ErrorIs(t, err, ErrNotRoot)
		assert.Nil(t, g)
	})

	t.Run("unbound tree", func(t *testing.T) {
		g, err := Create(ctx, optree.NewBlock(optree.NewReturn(nil)))
		require.ErrorIs(t, err, ErrNoSemanticModel)
		assert.Nil(t, g)
	})

	t.Run("flow analysis disabled", func(t *testing.T) {
		root := optree.NewSemanticModel("main.go", false).
			Bind(optree.NewBlock(optree.NewReturn(nil)))
		g, err := Create(ctx, root)
		require.ErrorIs(t, err, ErrFlowAnalysisDisabled)
		assert.Nil(t, g)
	})
}

func TestCreateSingleReturn(t *testing.T) {
	root := bound(t, optree.NewBlock(optree.NewReturn(nil)))

	g, err := Create(context.Background(), root)
	require.NoError(t, err)
	require.NotNil(t, g)

	require.Len(t, g.Blocks(), 3)
	assert.Equal(t, BlockKindEntry, g.Blocks()[0].Kind())
	assert.Equal(t, BlockKindBlock, g.Blocks()[1].Kind())
	assert.Equal(t, BlockKindExit, g.Blocks()[2].Kind())
	for i, blk := range g.Blocks() {
		assert.Equal(t, i, blk.Ordinal())
	}

	entryOut := g.Entry().FallThrough()
	require.NotNil(t, entryOut)
	assert.Same(t, g.Blocks()[1], entryOut.Destination())
	assert.Equal(t, BranchRegular, entryOut.Semantics())

	bodyOut := g.Blocks()[1].FallThrough()
	require.NotNil(t, bodyOut)
	assert.Same(t, g.Exit(), bodyOut.Destination())
	assert.Equal(t, BranchRegular, bodyOut.Semantics())

	assert.Equal(t, RegionRoot, g.Root().Kind())
	assert.Equal(t, 0, g.Root().FirstBlockOrdinal())
	assert.Equal(t, 2, g.Root().LastBlockOrdinal())
	assert.Empty(t, g.Root().Children())

	assert.Same(t, root, g.OriginalOperation())
	assert.Nil(t, g.Parent())
}

func TestCreateIfWithoutElse(t *testing.T) {
	root := bound(t, optree.NewBlock(
		optree.NewConditional(
			optree.NewExpression("ready"),
			optree.NewBlock(optree.NewExpression("start()")),
			nil,
		),
	))

	g, err := Create(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, g.Blocks(), 4)

	test := g.Blocks()[1]
	whenTrue := test.ConditionalSuccessor(ConditionWhenTrue)
	whenFalse := test.ConditionalSuccessor(ConditionWhenFalse)
	require.NotNil(t, whenTrue)
	require.NotNil(t, whenFalse)
	assert.Same(t, g.Blocks()[2], whenTrue.Destination())
	assert.Same(t, g.Exit(), whenFalse.Destination())
	assert.Same(t, whenTrue.ConditionValue(), whenFalse.ConditionValue())
	assert.Equal(t, "ready", whenTrue.ConditionValue().Text())

	then := g.Blocks()[2]
	require.NotNil(t, then.FallThrough())
	assert.Same(t, g.Exit(), then.FallThrough().Destination())
}

func TestEarlyReturnVersusTrailingReturn(t *testing.T) {
	root := bound(t, optree.NewBlock(
		optree.NewConditional(
			optree.NewExpression("err != nil"),
			optree.NewBlock(optree.NewReturn(nil)),
			nil,
		),
		optree.NewReturn(nil),
	))

	g, err := Create(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, g.Blocks(), 4)

	var early, trailing int
	for _, br := range g.Exit().Predecessors() {
		switch br.Semantics() {
		case BranchReturn:
			early++
		case BranchRegular:
			trailing++
		}
	}
	assert.Equal(t, 1, early)
	assert.Equal(t, 1, trailing)
}

func TestLocalFunctionGraphIdentity(t *testing.T) {
	sym := optree.NewFunctionSymbol("helper")
	root := bound(t, optree.NewBlock(
		optree.NewLocalFunction(sym, optree.NewBlock(optree.NewReturn(nil))),
		optree.NewReturn(nil),
	))

	g, err := Create(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, []*optree.FunctionSymbol{sym}, g.LocalFunctions())

	ctx := context.Background()
	first, err := g.LocalFunctionGraph(ctx, sym)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Same(t, g, first.Parent())
	assert.Len(t, first.Blocks(), 3)

	second, err := g.LocalFunctionGraph(ctx, sym)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestLocalFunctionGraphArguments(t *testing.T) {
	sym := optree.NewFunctionSymbol("helper")
	root := bound(t, optree.NewBlock(
		optree.NewLocalFunction(sym, optree.NewBlock(optree.NewReturn(nil))),
	))
	g, err := Create(context.Background(), root)
	require.NoError(t, err)

	_, err = g.LocalFunctionGraph(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilArgument)

	stranger := optree.NewFunctionSymbol("helper")
	_, err = g.LocalFunctionGraph(context.Background(), stranger)
	assert.ErrorIs(t, err, ErrUnknownLocalFunction)
}

func TestDuplicateLocalFunctionIsContained(t *testing.T) {
	// The same symbol declared twice is a lowering failure, not a usage
	// error: no graph, exactly one diagnostic.
	sym := optree.NewFunctionSymbol("helper")
	root := bound(t, optree.NewBlock(
		optree.NewLocalFunction(sym, optree.NewBlock(optree.NewReturn(nil))),
		optree.NewLocalFunction(sym, optree.NewBlock(optree.NewReturn(nil))),
		optree.NewReturn(nil),
	))

	var diags []Diagnostic
	g, err := Create(context.Background(), root, WithDiagnosticSink(DiagnosticFunc(func(d Diagnostic) {
		diags = append(diags, d)
	})))
	assert.Nil(t, g)
	assert.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "main.go", diags[0].Unit)
	assert.Contains(t, diags[0].Message, "registered twice")
}

func TestAnonymousFunctionGraphIdentity(t *testing.T) {
	lambda := optree.NewAnonymousFunction(optree.NewBlock(optree.NewReturn(nil)))
	root := bound(t, optree.NewBlock(
		optree.NewExpression("go worker(cb)", lambda),
		optree.NewReturn(nil),
	))

	g, err := Create(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, []*optree.Operation{lambda}, g.AnonymousFunctions())

	first, err := g.AnonymousFunctionGraph(context.Background(), lambda)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Same(t, g, first.Parent())

	second, err := g.AnonymousFunctionGraph(context.Background(), lambda)
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = g.AnonymousFunctionGraph(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilArgument)

	stray := optree.NewAnonymousFunction(optree.NewBlock())
	_, err = g.AnonymousFunctionGraph(context.Background(), stray)
	assert.ErrorIs(t, err, ErrUnknownAnonymousFunction)
}

func TestConcurrentNestedBuildsShareOneGraph(t *testing.T) {
	sym := optree.NewFunctionSymbol("helper")
	root := bound(t, optree.NewBlock(
		optree.NewLocalFunction(sym, optree.NewBlock(
			optree.NewVariableDeclaration("ok", optree.NewLogical(
				optree.LogicalAnd,
				optree.NewExpression("a"),
				optree.NewExpression("b"),
			)),
			optree.NewReturn(nil),
		)),
		optree.NewReturn(nil),
	))

	g, err := Create(context.Background(), root)
	require.NoError(t, err)

	const callers = 16
	results := make([]*ControlFlowGraph, callers)
	eg, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < callers; i++ {
		i := i
		eg.Go(func() error {
			nested, err := g.LocalFunctionGraph(ctx, sym)
			if err != nil {
				return err
			}
			results[i] = nested
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	for _, nested := range results {
		require.NotNil(t, nested)
		assert.Same(t, results[0], nested)
	}
}

func TestCaptureIDsUniqueAcrossGraphFamily(t *testing.T) {
	sym := optree.NewFunctionSymbol("helper")
	root := bound(t, optree.NewBlock(
		optree.NewVariableDeclaration("x", optree.NewLogical(
			optree.LogicalAnd,
			optree.NewExpression("a"),
			optree.NewExpression("b"),
		)),
		optree.NewLocalFunction(sym, optree.NewBlock(
			optree.NewVariableDeclaration("y", optree.NewLogical(
				optree.LogicalOr,
				optree.NewExpression("c"),
				optree.NewExpression("d"),
			)),
			optree.NewReturn(nil),
		)),
		optree.NewReturn(nil),
	))

	g, err := Create(context.Background(), root)
	require.NoError(t, err)
	nested, err := g.LocalFunctionGraph(context.Background(), sym)
	require.NoError(t, err)

	seen := make(map[CaptureID]bool)
	for _, graph := range []*ControlFlowGraph{g, nested} {
		var walk func(r *ControlFlowRegion)
		walk = func(r *ControlFlowRegion) {
			for _, id := range r.CaptureIDs() {
				require.False(t, seen[id], "capture id %d used in two regions", id)
				seen[id] = true
			}
			for _, child := range r.Children() {
				walk(child)
			}
		}
		walk(graph.Root())
	}
	assert.Len(t, seen, 2)
}

func TestContainedLoweringFailure(t *testing.T) {
	// A break with no enclosing loop is a lowering failure, not a usage
	// error: it must degrade to "no graph" plus a diagnostic.
	root := bound(t, optree.NewBlock(
		optree.NewBranchStatement(optree.BranchBreak),
	))

	var diags []Diagnostic
	g, err := Create(context.Background(), root, WithDiagnosticSink(DiagnosticFunc(func(d Diagnostic) {
		diags = append(diags, d)
	})))
	assert.Nil(t, g)
	assert.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "main.go", diags[0].Unit)
	assert.Contains(t, diags[0].Message, "enclosing loop")
}

func TestMaxBlocksContained(t *testing.T) {
	root := bound(t, optree.NewBlock(
		optree.NewConditional(
			optree.NewExpression("a"),
			optree.NewBlock(optree.NewExpression("f()")),
			optree.NewBlock(optree.NewExpression("g()")),
		),
		optree.NewReturn(nil),
	))

	var diags []Diagnostic
	g, err := Create(context.Background(), root,
		WithMaxBlocks(2),
		WithDiagnosticSink(DiagnosticFunc(func(d Diagnostic) { diags = append(diags, d) })),
	)
	assert.Nil(t, g)
	assert.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "blocks")
}

func TestCreateCancelled(t *testing.T) {
	root := bound(t, optree.NewBlock(optree.NewReturn(nil)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var diags []Diagnostic
	g, err := Create(ctx, root, WithDiagnosticSink(DiagnosticFunc(func(d Diagnostic) {
		diags = append(diags, d)
	})))
	assert.Nil(t, g)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, diags, "cancellation is not a lowering failure")
}

func TestCancelledNestedBuildPublishesNothing(t *testing.T) {
	sym := optree.NewFunctionSymbol("helper")
	root := bound(t, optree.NewBlock(
		optree.NewLocalFunction(sym, optree.NewBlock(optree.NewReturn(nil))),
		optree.NewReturn(nil),
	))
	g, err := Create(context.Background(), root)
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	nested, err := g.LocalFunctionGraph(cancelled, sym)
	assert.Nil(t, nested)
	require.ErrorIs(t, err, context.Canceled)

	nested, err = g.LocalFunctionGraph(context.Background(), sym)
	require.NoError(t, err)
	assert.NotNil(t, nested)
}
