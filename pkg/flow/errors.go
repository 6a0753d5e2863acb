package flow

import "errors"

// Usage errors: the caller violated a precondition. These propagate
// synchronously and are never swallowed.
var (
	// ErrNilOperation is returned when Create is given a nil operation.
	ErrNilOperation = errors.New("flow: operation is nil")

	// ErrNotRoot is returned when Create is given an operation that has a
	// parent.
	ErrNotRoot = errors.New("flow: operation is not the root of an operation tree")

	// ErrNoSemanticModel is returned when the operation tree was never bound
	// to a semantic model.
	ErrNoSemanticModel = errors.New("flow: operation is not bound to a semantic model")

	// ErrFlowAnalysisDisabled is returned when the operation's source unit
	// has flow analysis switched off.
	ErrFlowAnalysisDisabled = errors.New("flow: flow analysis is disabled for the operation's unit")

	// ErrNilArgument is returned by the nested-graph accessors for a nil
	// symbol or operation.
	ErrNilArgument = errors.New("flow: argument is nil")

	// ErrUnknownLocalFunction is returned when a symbol is not one of the
	// graph's local functions.
	ErrUnknownLocalFunction = errors.New("flow: local function was not declared in this graph")

	// ErrUnknownAnonymousFunction is returned when an operation is not one
	// of the graph's anonymous function occurrences.
	ErrUnknownAnonymousFunction = errors.New("flow: anonymous function does not occur in this graph")
)

// Diagnostic describes a contained lowering failure. Lowering bugs on
// exotic input degrade to "no graph for this unit" plus one of these; they
// never crash the host.
type Diagnostic struct {
	Unit    string
	Message string
}

// DiagnosticSink receives contained lowering failures.
type DiagnosticSink interface {
	Report(d Diagnostic)
}

// DiagnosticFunc adapts a function to the DiagnosticSink interface.
type DiagnosticFunc func(Diagnostic)

// Report implements DiagnosticSink.
func (f DiagnosticFunc) Report(d Diagnostic) { f(d) }

type discardSink struct{}

func (discardSink) Report(Diagnostic) {}

const defaultMaxBlocks = 50000

type options struct {
	sink      DiagnosticSink
	maxBlocks int
}

func defaultOptions() options {
	return options{sink: discardSink{}, maxBlocks: defaultMaxBlocks}
}

// Option configures graph construction.
type Option func(*options)

// WithDiagnosticSink routes contained lowering failures to sink instead of
// discarding them.
func WithDiagnosticSink(sink DiagnosticSink) Option {
	return func(o *options) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// WithMaxBlocks caps the number of blocks a single lowering may create.
// Exceeding the cap is treated as a lowering failure.
func WithMaxBlocks(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBlocks = n
		}
	}
}
