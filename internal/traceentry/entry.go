// Package traceentry defines the fixed-layout record types shared by the
// interpreter profiler (producer) and the dump controller (consumer):
// TraceEntry, TraceSegment and the StageType/PayloadType enums.
//
// Grounded field-for-field on
// original_source/sysTrace/src/trace/python/pytorch_tracing_data.h.
package traceentry

import "github.com/systrace-go/systrace/internal/constants"

// StageType classifies which coarse phase of training an entry belongs
// to, per spec.md §4.D's selector mapping table.
type StageType uint8

const (
	StageUnknown StageType = iota
	StageDataloader
	StageForward
	StageBackward
	StageSynchronization
	StageGC
)

func (s StageType) String() string {
	switch s {
	case StageDataloader:
		return "Dataloader"
	case StageForward:
		return "Forward"
	case StageBackward:
		return "Backward"
	case StageSynchronization:
		return "Synchronization"
	case StageGC:
		return "GC"
	default:
		return "Unknown"
	}
}

// PayloadKind tags which variant of Payload is populated.
type PayloadKind uint8

const (
	PayloadNone PayloadKind = iota
	PayloadGC
)

// GCPayload mirrors the original's gc_debug[2]: collected/uncollectable
// object counts, each -1 when absent.
type GCPayload struct {
	Collected     int32
	Uncollectable int32
}

// Entry is the fixed-size POD record written by the interpreter profiler
// and the driver interposer's stack-bearing events share the same frame
// formatting convention ("name@file:line") but are a distinct type
// (internal/interposer.MemEvent) — Entry here is specifically the
// call/return record of component D.
type Entry struct {
	StartUs       uint64
	EndUs         uint64
	Count         uint32
	StageID       uint32
	StageType     StageType
	PayloadKind   PayloadKind
	Payload       GCPayload
	StackDepth    uint8
	StackFrames   [constants.MaxStackDepth]string
}

// Undumpable reports whether this entry is a mis-paired call/return (a
// call whose return never stamped EndUs, or a return with no call that
// stamped StartUs) and must be
// skipped at dump time per spec.md §4.D's drop policy.
func (e *Entry) Undumpable() bool {
	return e.StartUs == 0 || e.EndUs == 0
}

// Reset clears an entry for reuse when its segment cycles back to the
// empty pool.
func (e *Entry) Reset() {
	*e = Entry{}
}
