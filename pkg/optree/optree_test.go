package optree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsWireParents(t *testing.T) {
	cond := NewExpression("ready")
	then := NewBlock(NewExpression("start()"))
	ifOp := NewConditional(cond, then, nil)

	assert.Same(t, ifOp, cond.Parent())
	assert.Same(t, ifOp, then.Parent())
	assert.Equal(t, []*Operation{cond, then}, ifOp.Children())
	assert.Same(t, cond, ifOp.Condition())
	assert.Same(t, then, ifOp.Body())
	assert.Nil(t, ifOp.Else())
}

func TestNilChildrenAreSkipped(t *testing.T) {
	ret := NewReturn(nil)
	assert.Empty(t, ret.Children())
	assert.Nil(t, ret.Value())

	decl := NewVariableDeclaration("x", nil)
	assert.Nil(t, decl.Initializer())
	assert.Equal(t, "x", decl.Name())
}

func TestSemanticAccessors(t *testing.T) {
	filter := NewExpression("recoverable(err)")
	handler := NewBlock()
	clause := NewCatchClause(filter, handler)
	assert.Same(t, filter, clause.Filter())
	assert.Same(t, handler, clause.Body())

	bare := NewCatchClause(nil, handler)
	assert.Nil(t, bare.Filter())

	guard := NewExpression("state == idle")
	body := NewBlock()
	arm := NewSwitchCase(guard, body)
	assert.Same(t, guard, arm.Guard())
	assert.Same(t, body, arm.Body())

	defaultArm := NewSwitchCase(nil, NewBlock())
	assert.Nil(t, defaultArm.Guard())

	loop := NewWhileLoop(NewExpression("i < n"), NewBlock())
	assert.NotNil(t, loop.Condition())
	assert.NotNil(t, loop.Body())
}

func TestFlowCaptureDoesNotReparentValue(t *testing.T) {
	value := NewExpression("a")
	block := NewBlock(value)
	capture := NewFlowCapture(7, value)

	assert.Same(t, block, value.Parent(), "captured value must stay in its tree")
	assert.Equal(t, int32(7), capture.CaptureID())
	require.Len(t, capture.Children(), 1)
	assert.Same(t, value, capture.Children()[0])

	ref := NewFlowCaptureReference(7)
	assert.Equal(t, int32(7), ref.CaptureID())
	assert.Empty(t, ref.Children())
}

func TestWalkPreorderAndPrune(t *testing.T) {
	inner := NewExpression("inner()")
	lambda := NewAnonymousFunction(NewBlock(inner))
	root := NewBlock(NewExpression("outer()", lambda))

	var kinds []Kind
	root.Walk(func(o *Operation) bool {
		kinds = append(kinds, o.Kind())
		return o.Kind() != KindAnonymousFunction
	})
	assert.Equal(t, []Kind{KindBlock, KindExpression, KindAnonymousFunction}, kinds,
		"walk must not descend into a pruned subtree")
}

func TestBindAttachesModelToWholeTree(t *testing.T) {
	model := NewSemanticModel("unit.go", true)
	inner := NewReturn(nil)
	root := model.Bind(NewBlock(inner))

	assert.Same(t, model, root.Model())
	assert.Same(t, model, inner.Model())
	assert.Equal(t, "unit.go", model.Unit())
	assert.True(t, model.FlowAnalysisEnabled())
}

func TestBindRejectsNonRoot(t *testing.T) {
	inner := NewReturn(nil)
	NewBlock(inner)
	assert.Panics(t, func() {
		NewSemanticModel("unit.go", true).Bind(inner)
	})
}

func TestFunctionSymbolIdentity(t *testing.T) {
	a := NewFunctionSymbol("helper").DeclaredAt(10)
	b := NewFunctionSymbol("helper").DeclaredAt(10)
	assert.NotSame(t, a, b)
	assert.Equal(t, a.Name(), b.Name())
	assert.Equal(t, 10, a.Line())
}

func TestOperationString(t *testing.T) {
	tests := []struct {
		op   *Operation
		want string
	}{
		{NewExpression("f(x)"), "expression f(x)"},
		{NewLocalFunction(NewFunctionSymbol("helper"), NewBlock()), "local_function helper"},
		{NewReturn(nil), "return"},
		{NewLogical(LogicalOr, NewExpression("a"), NewExpression("b")), "binary_logical"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.op.String())
	}
}
