// Package optree defines the operation tree: a language-neutral,
// tree-shaped intermediate representation of a single executable code unit
// (a function body, an initializer, a constructor body). Operation trees are
// produced by a front-end (see gosource.go for the Go one) and consumed by
// the flow package, which lowers them into control flow graphs.
package optree

// Kind identifies the semantic category of an operation node.
type Kind int

const (
	KindInvalid Kind = iota

	// Statements.
	KindBlock               // statement list; children are statements
	KindVariableDeclaration // declares one local; optional initializer child
	KindConditional         // children: condition, then, optional else
	KindWhileLoop           // children: condition, body
	KindReturn              // optional value child
	KindThrow               // optional value child
	KindRethrow             // re-raise inside a handler; no children
	KindTry                 // children: body, catch clauses, optional finally clause
	KindCatchClause         // children: optional filter, handler block
	KindFinallyClause       // children: body block
	KindSwitch              // children: value, switch cases
	KindSwitchCase          // children: optional guard, body block
	KindBranch              // break/continue; no children

	// Declarations of nested functions.
	KindLocalFunction     // named function declared inside the unit; child is its body
	KindAnonymousFunction // func literal occurrence; child is its body

	// Expressions.
	KindBinaryLogical // short-circuiting && / ||; children: lhs, rhs
	KindExpression    // opaque leaf expression; children are embedded func literals

	// Synthesized by graph lowering, never by a front-end.
	KindFlowCapture          // stores a value into an implicit temporary; child is the value
	KindFlowCaptureReference // reads an implicit temporary; no children
)

var kindNames = map[Kind]string{
	KindInvalid:              "invalid",
	KindBlock:                "block",
	KindVariableDeclaration:  "variable_declaration",
	KindConditional:          "conditional",
	KindWhileLoop:            "while_loop",
	KindReturn:               "return",
	KindThrow:                "throw",
	KindRethrow:              "rethrow",
	KindTry:                  "try",
	KindCatchClause:          "catch_clause",
	KindFinallyClause:        "finally_clause",
	KindSwitch:               "switch",
	KindSwitchCase:           "switch_case",
	KindBranch:               "branch",
	KindLocalFunction:        "local_function",
	KindAnonymousFunction:    "anonymous_function",
	KindBinaryLogical:        "binary_logical",
	KindExpression:           "expression",
	KindFlowCapture:          "flow_capture",
	KindFlowCaptureReference: "flow_capture_reference",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// BranchKind distinguishes the unstructured exits a KindBranch node encodes.
type BranchKind int

const (
	BranchBreak BranchKind = iota
	BranchContinue
)

// LogicalKind is the operator of a KindBinaryLogical node.
type LogicalKind int

const (
	LogicalAnd LogicalKind = iota
	LogicalOr
)

func (l LogicalKind) String() string {
	if l == LogicalOr {
		return "||"
	}
	return "&&"
}

// Operation is one node of an operation tree. Nodes are identity-significant:
// two textually identical subtrees are still distinct operations. The parent
// link is set when a node is placed into a tree and a node can belong to at
// most one tree.
type Operation struct {
	kind     Kind
	text     string
	line     int
	name     string
	symbol   *FunctionSymbol
	logical  LogicalKind
	branch   BranchKind
	capture  int32
	parent   *Operation
	children []*Operation
	model    *SemanticModel
}

func newOperation(kind Kind, children ...*Operation) *Operation {
	o := &Operation{kind: kind}
	for _, c := range children {
		if c == nil {
			continue
		}
		c.parent = o
		o.children = append(o.children, c)
	}
	return o
}

// NewBlock creates a statement-list node.
func NewBlock(stmts ...*Operation) *Operation {
	return newOperation(KindBlock, stmts...)
}

// NewVariableDeclaration declares a local named name with an optional
// initializer.
func NewVariableDeclaration(name string, initializer *Operation) *Operation {
	o := newOperation(KindVariableDeclaration, initializer)
	o.name = name
	return o
}

// NewConditional creates an if node. whenFalse may be nil.
func NewConditional(condition, whenTrue, whenFalse *Operation) *Operation {
	return newOperation(KindConditional, condition, whenTrue, whenFalse)
}

// NewWhileLoop creates a condition-first loop. Front-ends desugar other loop
// shapes into this one.
func NewWhileLoop(condition, body *Operation) *Operation {
	return newOperation(KindWhileLoop, condition, body)
}

// NewReturn creates a return node; value may be nil.
func NewReturn(value *Operation) *Operation {
	return newOperation(KindReturn, value)
}

// NewThrow creates a throw node; value may be nil.
func NewThrow(value *Operation) *Operation {
	return newOperation(KindThrow, value)
}

// NewRethrow re-raises the exception being handled.
func NewRethrow() *Operation {
	return newOperation(KindRethrow)
}

// NewTry assembles a try statement. catches and finally may be empty/nil,
// but not both.
func NewTry(body *Operation, catches []*Operation, finally *Operation) *Operation {
	children := append([]*Operation{body}, catches...)
	children = append(children, finally)
	return newOperation(KindTry, children...)
}

// NewCatchClause creates an exception handler with an optional filter
// expression.
func NewCatchClause(filter, handler *Operation) *Operation {
	return newOperation(KindCatchClause, filter, handler)
}

// NewFinallyClause wraps the body of a finally.
func NewFinallyClause(body *Operation) *Operation {
	return newOperation(KindFinallyClause, body)
}

// NewSwitch creates a switch over value with the given cases.
func NewSwitch(value *Operation, cases ...*Operation) *Operation {
	return newOperation(KindSwitch, append([]*Operation{value}, cases...)...)
}

// NewSwitchCase creates one case arm. A nil guard marks the default arm.
func NewSwitchCase(guard, body *Operation) *Operation {
	return newOperation(KindSwitchCase, guard, body)
}

// NewBranchStatement creates a break or continue.
func NewBranchStatement(kind BranchKind) *Operation {
	o := newOperation(KindBranch)
	o.branch = kind
	return o
}

// NewLocalFunction declares a nested named function. The body is not part of
// the enclosing unit's control flow; it is lowered on demand.
func NewLocalFunction(symbol *FunctionSymbol, body *Operation) *Operation {
	o := newOperation(KindLocalFunction, body)
	o.symbol = symbol
	return o
}

// NewAnonymousFunction records a func literal occurrence. Like local
// functions, its body is lowered on demand.
func NewAnonymousFunction(body *Operation) *Operation {
	return newOperation(KindAnonymousFunction, body)
}

// NewLogical creates a short-circuiting boolean operator node.
func NewLogical(op LogicalKind, lhs, rhs *Operation) *Operation {
	o := newOperation(KindBinaryLogical, lhs, rhs)
	o.logical = op
	return o
}

// NewExpression creates an opaque leaf expression carrying its source text.
// Any func literals embedded in the expression are attached as children so
// graph lowering can register them.
func NewExpression(text string, lambdas ...*Operation) *Operation {
	o := newOperation(KindExpression, lambdas...)
	o.text = text
	return o
}

// NewFlowCapture stores value into the implicit temporary id. Only graph
// lowering creates these. The value keeps its place in the source tree: a
// capture references it without becoming its parent, so lowering the same
// tree twice stays safe.
func NewFlowCapture(id int32, value *Operation) *Operation {
	o := &Operation{kind: KindFlowCapture, capture: id}
	if value != nil {
		o.children = []*Operation{value}
	}
	return o
}

// NewFlowCaptureReference reads the implicit temporary id.
func NewFlowCaptureReference(id int32) *Operation {
	o := newOperation(KindFlowCaptureReference)
	o.capture = id
	return o
}

// At records the source line the operation originated from and returns the
// operation for chaining.
func (o *Operation) At(line int) *Operation {
	o.line = line
	return o
}

// Kind returns the node's semantic category.
func (o *Operation) Kind() Kind { return o.kind }

// Parent returns the enclosing operation, or nil for a root.
func (o *Operation) Parent() *Operation { return o.parent }

// Children returns the node's children in evaluation order. Callers must not
// mutate the returned slice.
func (o *Operation) Children() []*Operation { return o.children }

// Text returns the source snippet for leaf expressions.
func (o *Operation) Text() string { return o.text }

// Line returns the 1-based source line, 0 when unknown.
func (o *Operation) Line() int { return o.line }

// Name returns the declared name of a KindVariableDeclaration.
func (o *Operation) Name() string { return o.name }

// Symbol returns the function symbol of a KindLocalFunction node.
func (o *Operation) Symbol() *FunctionSymbol { return o.symbol }

// Logical returns the operator of a KindBinaryLogical node.
func (o *Operation) Logical() LogicalKind { return o.logical }

// Branch returns the branch kind of a KindBranch node.
func (o *Operation) Branch() BranchKind { return o.branch }

// CaptureID returns the temporary id of a flow capture node.
func (o *Operation) CaptureID() int32 { return o.capture }

// Model returns the semantic model bound to the tree, or nil when the tree
// has not been bound.
func (o *Operation) Model() *SemanticModel { return o.model }

// Condition returns the controlling expression of a conditional, loop or
// switch node.
func (o *Operation) Condition() *Operation {
	switch o.kind {
	case KindConditional, KindWhileLoop, KindSwitch:
		if len(o.children) > 0 {
			return o.children[0]
		}
	}
	return nil
}

// Body returns the principal body child: the then-arm of a conditional, the
// body of a loop, try, clause or nested function.
func (o *Operation) Body() *Operation {
	switch o.kind {
	case KindConditional, KindWhileLoop, KindTry:
		if len(o.children) > 1 {
			return o.children[1]
		}
	case KindLocalFunction, KindAnonymousFunction, KindFinallyClause:
		if len(o.children) > 0 {
			return o.children[0]
		}
	case KindCatchClause, KindSwitchCase:
		return o.children[len(o.children)-1]
	}
	return nil
}

// Else returns the else-arm of a conditional, or nil.
func (o *Operation) Else() *Operation {
	if o.kind == KindConditional && len(o.children) > 2 {
		return o.children[2]
	}
	return nil
}

// Value returns the operand of a return, throw or flow capture, or nil.
func (o *Operation) Value() *Operation {
	switch o.kind {
	case KindReturn, KindThrow, KindFlowCapture:
		if len(o.children) > 0 {
			return o.children[0]
		}
	}
	return nil
}

// Initializer returns the initializer of a variable declaration, or nil.
func (o *Operation) Initializer() *Operation {
	if o.kind == KindVariableDeclaration && len(o.children) > 0 {
		return o.children[0]
	}
	return nil
}

// Filter returns the filter expression of a catch clause, or nil.
func (o *Operation) Filter() *Operation {
	if o.kind == KindCatchClause && len(o.children) > 1 {
		return o.children[0]
	}
	return nil
}

// Guard returns the guard expression of a switch case; nil marks the
// default arm.
func (o *Operation) Guard() *Operation {
	if o.kind == KindSwitchCase && len(o.children) > 1 {
		return o.children[0]
	}
	return nil
}

// Walk visits the subtree rooted at o in preorder. Returning false from fn
// prunes the subtree below the current node.
func (o *Operation) Walk(fn func(*Operation) bool) {
	if o == nil || !fn(o) {
		return
	}
	for _, c := range o.children {
		c.Walk(fn)
	}
}

// String renders a short description for logs and test failures.
func (o *Operation) String() string {
	if o.text != "" {
		return o.kind.String() + " " + o.text
	}
	if o.symbol != nil {
		return o.kind.String() + " " + o.symbol.Name()
	}
	return o.kind.String()
}
