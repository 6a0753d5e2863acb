package optree

import (
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// Unit is a parsed Go source file from which operation trees can be derived,
// one per function. The unit owns the tree-sitter tree; call Close when done.
type Unit struct {
	path    string
	content []byte
	tree    *sitter.Tree
	model   *SemanticModel
}

// ParseGoFile reads and parses a Go source file. flowAnalysis is the
// configuration switch recorded on the unit's semantic model; when false,
// graph construction for trees of this unit is refused.
func ParseGoFile(path string, flowAnalysis bool) (*Unit, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return ParseGoSource(path, content, flowAnalysis)
}

// ParseGoSource parses in-memory Go source. name is used as the unit name in
// the semantic model.
func ParseGoSource(name string, content []byte, flowAnalysis bool) (*Unit, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())
	tree := parser.Parse(nil, content)
	if tree == nil {
		return nil, fmt.Errorf("parsing %s: tree-sitter returned no tree", name)
	}
	return &Unit{
		path:    name,
		content: content,
		tree:    tree,
		model:   NewSemanticModel(name, flowAnalysis),
	}, nil
}

// Close releases the underlying tree-sitter tree.
func (u *Unit) Close() {
	if u.tree != nil {
		u.tree.Close()
	}
}

// Model returns the unit's semantic model.
func (u *Unit) Model() *SemanticModel { return u.model }

// Path returns the unit name the source was parsed under.
func (u *Unit) Path() string { return u.path }

// Functions lists the names of top-level functions and methods in the unit,
// in source order.
func (u *Unit) Functions() []string {
	var names []string
	root := u.tree.RootNode()
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		if child.Type() == "function_declaration" || child.Type() == "method_declaration" {
			if name := child.ChildByFieldName("name"); name != nil {
				names = append(names, u.nodeText(name))
			}
		}
	}
	return names
}

// OperationTree converts the body of the named function into an operation
// tree bound to the unit's semantic model.
func (u *Unit) OperationTree(function string) (*Operation, error) {
	fn := u.findFunction(u.tree.RootNode(), function)
	if fn == nil {
		return nil, fmt.Errorf("function %q not found in %s", function, u.path)
	}
	body := fn.ChildByFieldName("body")
	if body == nil {
		return nil, fmt.Errorf("function %q in %s has no body", function, u.path)
	}
	root := u.convertBlock(body)
	return u.model.Bind(root), nil
}

func (u *Unit) findFunction(node *sitter.Node, name string) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.Type() == "function_declaration" || node.Type() == "method_declaration" {
		if n := node.ChildByFieldName("name"); n != nil && u.nodeText(n) == name {
			return node
		}
		return nil
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := u.findFunction(node.Child(i), name); found != nil {
			return found
		}
	}
	return nil
}

func (u *Unit) convertBlock(node *sitter.Node) *Operation {
	return NewBlock(u.blockStatements(node)...).At(line(node))
}

func (u *Unit) blockStatements(node *sitter.Node) []*Operation {
	var stmts []*Operation
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil || child.Type() == "comment" {
			continue
		}
		if stmt := u.convertStatement(child); stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

func (u *Unit) convertStatement(node *sitter.Node) *Operation {
	switch node.Type() {
	case "block":
		return u.convertBlock(node)

	case "if_statement":
		return u.convertIf(node)

	case "for_statement":
		return u.convertFor(node)

	case "return_statement":
		var value *Operation
		if expr := node.NamedChild(0); expr != nil {
			value = u.convertExpression(expr)
		}
		return NewReturn(value).At(line(node))

	case "break_statement":
		return NewBranchStatement(BranchBreak).At(line(node))

	case "continue_statement":
		return NewBranchStatement(BranchContinue).At(line(node))

	case "short_var_declaration":
		return u.convertShortVarDecl(node)

	case "var_declaration":
		return u.convertVarDecl(node)

	case "expression_statement":
		expr := node.NamedChild(0)
		if expr == nil {
			return nil
		}
		// panic(x) is the closest thing Go source has to a throw.
		if arg, ok := u.panicArgument(expr); ok {
			return NewThrow(arg).At(line(node))
		}
		return u.convertExpression(expr).At(line(node))

	case "expression_switch_statement":
		return u.convertSwitch(node)

	case "empty_statement":
		return nil

	default:
		// Assignments, defer/go statements, selects and the rest keep their
		// source text; only embedded func literals matter for flow.
		return NewExpression(u.nodeText(node), u.collectLambdas(node)...).At(line(node))
	}
}

func (u *Unit) convertIf(node *sitter.Node) *Operation {
	cond := NewExpression("true")
	if c := node.ChildByFieldName("condition"); c != nil {
		cond = u.convertExpression(c)
	}
	var whenTrue *Operation
	if c := node.ChildByFieldName("consequence"); c != nil {
		whenTrue = u.convertBlock(c)
	} else {
		whenTrue = NewBlock()
	}
	var whenFalse *Operation
	if alt := node.ChildByFieldName("alternative"); alt != nil {
		// The alternative is either an else block or a chained else-if.
		whenFalse = u.convertStatement(alt)
	}
	cond.At(line(node))
	ifOp := NewConditional(cond, whenTrue, whenFalse).At(line(node))

	if init := node.ChildByFieldName("initializer"); init != nil {
		initOp := u.convertStatement(init)
		return NewBlock(initOp, ifOp).At(line(node))
	}
	return ifOp
}

func (u *Unit) convertFor(node *sitter.Node) *Operation {
	var stmts []*Operation
	if b := node.ChildByFieldName("body"); b != nil {
		stmts = u.blockStatements(b)
	}

	// for x := range y {...} keeps its range clause as the loop condition.
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if c := node.NamedChild(i); c != nil && c.Type() == "range_clause" {
			cond := NewExpression(u.nodeText(c)).At(line(c))
			return NewWhileLoop(cond, NewBlock(stmts...).At(line(node))).At(line(node))
		}
	}

	cond := NewExpression("true").At(line(node))
	if c := node.ChildByFieldName("condition"); c != nil {
		cond = u.convertExpression(c).At(line(c))
	}

	// for init; cond; post desugars to { init; while cond { body; post } }.
	if post := node.ChildByFieldName("update"); post != nil {
		stmts = append(stmts, u.convertStatement(post))
	}
	loop := NewWhileLoop(cond, NewBlock(stmts...).At(line(node))).At(line(node))

	if init := node.ChildByFieldName("initializer"); init != nil {
		return NewBlock(u.convertStatement(init), loop).At(line(node))
	}
	return loop
}

func (u *Unit) convertShortVarDecl(node *sitter.Node) *Operation {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	name := ""
	if left != nil {
		name = u.nodeText(left)
	}

	// fn := func(...) {...} declares a function local to the unit; its body
	// becomes a separately lowerable nested function.
	if right != nil && right.NamedChildCount() == 1 {
		value := right.NamedChild(0)
		if value != nil && value.Type() == "func_literal" && !strings.Contains(name, ",") {
			sym := NewFunctionSymbol(name).DeclaredAt(line(node))
			body := NewBlock()
			if b := value.ChildByFieldName("body"); b != nil {
				body = u.convertBlock(b)
			}
			return NewLocalFunction(sym, body).At(line(node))
		}
	}

	var init *Operation
	if right != nil {
		init = u.convertExpression(right)
	}
	return NewVariableDeclaration(name, init).At(line(node))
}

func (u *Unit) convertVarDecl(node *sitter.Node) *Operation {
	// var blocks may declare several specs; a single declaration node with
	// the full text is enough for flow purposes.
	spec := node.NamedChild(0)
	if spec == nil || spec.Type() != "var_spec" {
		return NewExpression(u.nodeText(node), u.collectLambdas(node)...).At(line(node))
	}
	name := ""
	if n := spec.ChildByFieldName("name"); n != nil {
		name = u.nodeText(n)
	}
	var init *Operation
	if v := spec.ChildByFieldName("value"); v != nil {
		init = u.convertExpression(v)
	}
	return NewVariableDeclaration(name, init).At(line(node))
}

func (u *Unit) convertSwitch(node *sitter.Node) *Operation {
	value := NewExpression("true").At(line(node))
	if v := node.ChildByFieldName("value"); v != nil {
		value = u.convertExpression(v)
	}

	var cases []*Operation
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "expression_case":
			var guard *Operation
			if g := child.ChildByFieldName("value"); g != nil {
				guard = NewExpression(u.nodeText(g)).At(line(child))
			}
			cases = append(cases, NewSwitchCase(guard, u.caseBody(child)).At(line(child)))
		case "default_case":
			cases = append(cases, NewSwitchCase(nil, u.caseBody(child)).At(line(child)))
		}
	}

	sw := NewSwitch(value, cases...).At(line(node))
	if init := node.ChildByFieldName("initializer"); init != nil {
		return NewBlock(u.convertStatement(init), sw).At(line(node))
	}
	return sw
}

func (u *Unit) caseBody(node *sitter.Node) *Operation {
	var stmts []*Operation
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil || child.Type() == "expression_list" || child.Type() == "comment" {
			continue
		}
		if stmt := u.convertStatement(child); stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
	return NewBlock(stmts...).At(line(node))
}

func (u *Unit) convertExpression(node *sitter.Node) *Operation {
	switch node.Type() {
	case "parenthesized_expression":
		if inner := node.NamedChild(0); inner != nil {
			return u.convertExpression(inner)
		}

	case "binary_expression":
		op := node.ChildByFieldName("operator")
		left := node.ChildByFieldName("left")
		right := node.ChildByFieldName("right")
		if op != nil && left != nil && right != nil {
			switch u.nodeText(op) {
			case "&&":
				return NewLogical(LogicalAnd, u.convertExpression(left), u.convertExpression(right)).At(line(node))
			case "||":
				return NewLogical(LogicalOr, u.convertExpression(left), u.convertExpression(right)).At(line(node))
			}
		}

	case "func_literal":
		body := NewBlock()
		if b := node.ChildByFieldName("body"); b != nil {
			body = u.convertBlock(b)
		}
		return NewAnonymousFunction(body).At(line(node))
	}

	return NewExpression(u.nodeText(node), u.collectLambdas(node)...).At(line(node))
}

// collectLambdas converts the outermost func literals embedded in node so
// lowering can register them as anonymous function occurrences.
func (u *Unit) collectLambdas(node *sitter.Node) []*Operation {
	var lambdas []*Operation
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "func_literal" {
			lambdas = append(lambdas, u.convertExpression(n))
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		walk(node.Child(i))
	}
	return lambdas
}

// panicArgument reports whether expr is a call to the builtin panic and
// returns its argument expression.
func (u *Unit) panicArgument(expr *sitter.Node) (*Operation, bool) {
	if expr.Type() != "call_expression" {
		return nil, false
	}
	fn := expr.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" || u.nodeText(fn) != "panic" {
		return nil, false
	}
	if args := expr.ChildByFieldName("arguments"); args != nil && args.NamedChildCount() > 0 {
		return u.convertExpression(args.NamedChild(0)), true
	}
	return NewExpression("panic()"), true
}

func (u *Unit) nodeText(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if start >= uint32(len(u.content)) || end > uint32(len(u.content)) {
		return ""
	}
	return string(u.content[start:end])
}

func line(node *sitter.Node) int {
	return int(node.StartPoint().Row) + 1
}
