package optree

// FunctionSymbol identifies a function declared inside a code unit. Symbols
// are compared by pointer identity: two declarations with the same name are
// still distinct symbols.
type FunctionSymbol struct {
	name string
	line int
}

// NewFunctionSymbol creates a symbol for a nested function declaration.
func NewFunctionSymbol(name string) *FunctionSymbol {
	return &FunctionSymbol{name: name}
}

// Name returns the declared name.
func (s *FunctionSymbol) Name() string { return s.name }

// Line returns the declaration line, 0 when unknown.
func (s *FunctionSymbol) Line() int { return s.line }

// DeclaredAt records the declaration line and returns the symbol for
// chaining.
func (s *FunctionSymbol) DeclaredAt(line int) *FunctionSymbol {
	s.line = line
	return s
}

// SemanticModel is the resolved semantic context of one source unit. A tree
// must be bound to a model before control flow graphs can be built from it;
// the model also carries the unit's flow-analysis switch, which comes from
// configuration.
type SemanticModel struct {
	unit         string
	flowAnalysis bool
}

// NewSemanticModel creates a model for the named source unit.
func NewSemanticModel(unit string, flowAnalysis bool) *SemanticModel {
	return &SemanticModel{unit: unit, flowAnalysis: flowAnalysis}
}

// Unit returns the source unit name (usually a file path).
func (m *SemanticModel) Unit() string { return m.unit }

// FlowAnalysisEnabled reports whether graph construction is allowed for
// operations bound to this model.
func (m *SemanticModel) FlowAnalysisEnabled() bool { return m.flowAnalysis }

// Bind attaches the model to every node of the tree rooted at root and
// returns root. Binding a non-root is a front-end bug.
func (m *SemanticModel) Bind(root *Operation) *Operation {
	if root == nil {
		return nil
	}
	if root.parent != nil {
		panic("optree: Bind called on a non-root operation")
	}
	root.Walk(func(o *Operation) bool {
		o.model = m
		return true
	})
	return root
}
