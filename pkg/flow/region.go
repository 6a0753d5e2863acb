package flow

// RegionKind classifies a node in the region tree.
type RegionKind int

const (
	// RegionRoot spans every block of the graph. Exactly one per graph.
	RegionRoot RegionKind = iota
	// RegionLocalLifetime scopes the lifetime of locals declared in a
	// lexical block.
	RegionLocalLifetime
	// RegionLoop encloses a loop header and body.
	RegionLoop
	// RegionTry is the protected part of a try statement.
	RegionTry
	// RegionTryAndCatch groups a try region with its handlers.
	RegionTryAndCatch
	// RegionTryAndFinally groups a try region with its finally.
	RegionTryAndFinally
	// RegionCatch is an exception handler body.
	RegionCatch
	// RegionFilter is the filter expression of a filtered handler.
	RegionFilter
	// RegionFilterAndHandler groups a filter with its handler.
	RegionFilterAndHandler
	// RegionFinally is a finally body.
	RegionFinally
)

var regionKindNames = map[RegionKind]string{
	RegionRoot:             "root",
	RegionLocalLifetime:    "local_lifetime",
	RegionLoop:             "loop",
	RegionTry:              "try",
	RegionTryAndCatch:      "try_and_catch",
	RegionTryAndFinally:    "try_and_finally",
	RegionCatch:            "catch",
	RegionFilter:           "filter",
	RegionFilterAndHandler: "filter_and_handler",
	RegionFinally:          "finally",
}

func (k RegionKind) String() string {
	if s, ok := regionKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ControlFlowRegion is a node in the tree of nested lexical and
// exception-handling scopes of a graph. Each region owns a contiguous,
// non-empty range of block ordinals fully contained in its parent's range;
// sibling ranges never overlap. Regions are immutable once their graph is
// constructed.
type ControlFlowRegion struct {
	kind     RegionKind
	first    int
	last     int
	parent   *ControlFlowRegion
	children []*ControlFlowRegion
	captures []CaptureID
}

// Kind returns the region's kind.
func (r *ControlFlowRegion) Kind() RegionKind { return r.kind }

// FirstBlockOrdinal returns the ordinal of the first block in the region.
func (r *ControlFlowRegion) FirstBlockOrdinal() int { return r.first }

// LastBlockOrdinal returns the ordinal of the last block in the region,
// inclusive.
func (r *ControlFlowRegion) LastBlockOrdinal() int { return r.last }

// Parent returns the enclosing region, nil only for the root.
func (r *ControlFlowRegion) Parent() *ControlFlowRegion { return r.parent }

// Children returns the nested regions in structural order. Callers must not
// mutate the returned slice.
func (r *ControlFlowRegion) Children() []*ControlFlowRegion { return r.children }

// CaptureIDs returns the capture identifiers allocated while lowering this
// region, in allocation order.
func (r *ControlFlowRegion) CaptureIDs() []CaptureID { return r.captures }

// Contains reports whether the block ordinal falls inside the region's span.
func (r *ControlFlowRegion) Contains(ordinal int) bool {
	return ordinal >= r.first && ordinal <= r.last
}
