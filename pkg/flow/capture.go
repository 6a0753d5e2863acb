package flow

import "sync/atomic"

// CaptureID names an implicit temporary storage location ("capture")
// synthesized during lowering, for example to carry the result of a
// sub-expression across basic block boundaries.
type CaptureID int32

// CaptureIDDispenser issues process-unique, strictly increasing capture
// identifiers. One dispenser is shared by a root graph and every graph
// lazily built from it, so identifiers never collide anywhere in the
// family. Safe for concurrent use.
type CaptureIDDispenser struct {
	next atomic.Int32
}

// NewCaptureIDDispenser creates a dispenser starting at zero.
func NewCaptureIDDispenser() *CaptureIDDispenser {
	return &CaptureIDDispenser{}
}

// Next returns a fresh identifier. No two calls on the same dispenser ever
// return the same value. Identifiers are unique but not necessarily dense:
// a discarded duplicate nested-graph build consumes ids that are never
// published anywhere.
func (d *CaptureIDDispenser) Next() CaptureID {
	return CaptureID(d.next.Add(1) - 1)
}
