package interposer

import (
	"sync"
	"time"

	"github.com/systrace-go/systrace/internal/logging"
	"github.com/systrace-go/systrace/internal/stage"
)

// StackCapturer returns up to 32 native call-stack frames for the
// currently executing call. The real implementation (cmd/systrace-
// interposer) wraps libunwind via cgo; it is abstracted here so the
// batching/flush policy in this package has no cgo dependency.
type StackCapturer interface {
	CaptureStack() []StackFrame
}

// Engine is the per-process interposer state: one Batch per OS thread
// (keyed by an opaque thread id the caller supplies — cgo's
// pthread_self(), typically), a shared Writer, and the stage counter
// mirror.
//
// Grounded on cann_hook.c's ThreadData (pthread TLS) + file_mutex
// pattern: Go's goroutines are not OS threads, and the host process
// calls the exported halMem* symbols from its own native threads, so
// "thread-local" here is keyed explicitly rather than via goroutine-
// local storage, which would not correspond to the host's calling
// thread at all.
type Engine struct {
	writer *Writer
	stage  *stage.Counter
	capture StackCapturer

	mu      sync.Mutex
	batches map[uint64]*Batch
}

// NewEngine returns an Engine that flushes through writer and reads
// stage identity from stageCounter.
func NewEngine(writer *Writer, stageCounter *stage.Counter, capture StackCapturer) *Engine {
	return &Engine{
		writer:  writer,
		stage:   stageCounter,
		capture: capture,
		batches: make(map[uint64]*Batch),
	}
}

func (e *Engine) batchFor(threadID uint64, now time.Time) *Batch {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.batches[threadID]
	if !ok {
		b = NewBatch(now)
		e.batches[threadID] = b
	}
	return b
}

// RecordAlloc appends an Alloc event for threadID, capturing the current
// stack and stage, then attempts a flush per policy (spec.md §4.F steps
// 3-4).
func (e *Engine) RecordAlloc(threadID uint64, ptr, size uint64) {
	now := time.Now()
	batch := e.batchFor(threadID, now)
	batch.Add(MemEvent{
		Kind:      EventAlloc,
		Ptr:       ptr,
		Size:      size,
		StageID:   e.stage.Current(),
		StageType: uint8(e.stage.StageType()),
		Stack:     e.capture.CaptureStack(),
	})
	e.maybeFlush(threadID, batch, now)
}

// RecordFree appends a Free event for threadID.
func (e *Engine) RecordFree(threadID uint64, ptr uint64) {
	now := time.Now()
	batch := e.batchFor(threadID, now)
	batch.Add(MemEvent{Kind: EventFree, Ptr: ptr})
	e.maybeFlush(threadID, batch, now)
}

func (e *Engine) maybeFlush(threadID uint64, batch *Batch, now time.Time) {
	if !batch.ReadyToFlush(now, MaybeFlushMinItems, MaybeFlushInterval) {
		return
	}
	flushed, err := e.writer.TryFlush(batch, now)
	if err != nil {
		logging.Error("memory trace flush failed", "error", err)
		return
	}
	if !flushed {
		return // lock contended; deferred to the next call's maybeFlush
	}
	e.mu.Lock()
	e.batches[threadID] = NewBatch(now)
	e.mu.Unlock()
}

// FlushThreadExit is called from the thread-exit destructor (registered
// in the cgo preamble) to force a final flush of a thread's batch before
// it's discarded, mirroring cann_hook.c's free_thread_data.
func (e *Engine) FlushThreadExit(threadID uint64) {
	e.mu.Lock()
	batch, ok := e.batches[threadID]
	delete(e.batches, threadID)
	e.mu.Unlock()
	if !ok || len(batch.Events) == 0 {
		return
	}
	for {
		flushed, err := e.writer.TryFlush(batch, time.Now())
		if err != nil {
			logging.Error("final memory trace flush failed", "error", err)
			return
		}
		if flushed {
			return
		}
		time.Sleep(time.Millisecond) // file lock contended; retry until written
	}
}
