// Package interposer implements the driver interposition layer
// (component F): the pure-Go batching/flush logic grounded on
// original_source/sysTrace/src/cann/cann_hook.c, behind a StackCapturer
// interface so the libunwind-dependent native unwinding (cgo, linked
// into cmd/systrace-interposer) stays out of this package, which has no
// cgo dependency.
package interposer

import (
	"time"
)

// StackFrame is one native call-stack frame: an instruction address and
// the short filename of the shared object it falls within.
type StackFrame struct {
	Address uint64
	SoName  string
}

// EventKind distinguishes the two MemEvent variants from spec.md §3.
type EventKind uint8

const (
	EventAlloc EventKind = iota
	EventFree
)

// MemEvent is one recorded driver call, per spec.md §3.
type MemEvent struct {
	Kind      EventKind
	Ptr       uint64
	Size      uint64
	StageID   uint32
	StageType uint8
	Stack     []StackFrame
}

// Batch accumulates events for one OS thread until flush policy fires.
// Grounded on cann_hook.c's per-thread ProcMem accumulation.
type Batch struct {
	Events    []MemEvent
	StartedAt time.Time
}

// NewBatch returns an empty batch timestamped now.
func NewBatch(now time.Time) *Batch {
	return &Batch{StartedAt: now}
}

// Add appends an event to the batch.
func (b *Batch) Add(e MemEvent) {
	b.Events = append(b.Events, e)
}

// ReadyToFlush implements spec.md §4.F step 4 / the original's
// is_ready_to_write: the batch is empty ⇒ never ready; otherwise ready
// once item count crosses minItems, or once age crosses maxAge even
// below minItems.
func (b *Batch) ReadyToFlush(now time.Time, minItems int, maxAge time.Duration) bool {
	if len(b.Events) == 0 {
		return false
	}
	if len(b.Events) >= minItems {
		return true
	}
	return now.Sub(b.StartedAt) >= maxAge
}
