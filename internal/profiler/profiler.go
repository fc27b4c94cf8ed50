// Package profiler implements the interpreter profiler (component D):
// the call/return handling logic, stage-type classification, and GC
// special case from spec.md §4.D.
//
// Grounded field-for-field on
// original_source/sysTrace/src/trace/python/pytorch_tracing.c's
// profiler() and gcCallback(). The logic here is pure Go and has no cgo
// dependency; it operates on call/return events delivered by whichever
// Interpreter implementation is wired in (the real CPython binding,
// CPythonInterpreter in cpython.go, or FakeInterpreter in tests) — see Interpreter
// in interpreter.go for why that split exists.
package profiler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/systrace-go/systrace/internal/constants"
	"github.com/systrace-go/systrace/internal/segpool"
	"github.com/systrace-go/systrace/internal/stage"
	"github.com/systrace-go/systrace/internal/traceentry"
)

// Frame is one formatted stack frame, as delivered by the Interpreter's
// stack-capture call.
type Frame struct {
	Name string
	File string
	Line int
}

func (f Frame) format() string {
	return fmt.Sprintf("%s@%s:%d", f.Name, f.File, f.Line)
}

// Profiler owns the per-tag pool pairs and per-tag call counters, and
// implements the call/return state machine. A single global mutex
// (spec.md §4.D step 1/8) serializes all producer-side updates; the hot
// path is intentionally short so the coarse lock is adequate.
type Profiler struct {
	mu       sync.Mutex
	registry *Registry
	stage    *stage.Counter

	pools   map[int]*segpool.PoolPair
	current map[int]*traceentry.Segment
	counts  map[int]*atomic.Uint32

	nowUs func() uint64
}

// New returns a Profiler bound to registry and the process-global stage
// counter.
func New(registry *Registry, stageCounter *stage.Counter) *Profiler {
	return &Profiler{
		registry: registry,
		stage:    stageCounter,
		pools:    make(map[int]*segpool.PoolPair),
		current:  make(map[int]*traceentry.Segment),
		counts:   make(map[int]*atomic.Uint32),
		nowUs:    nowMicros,
	}
}

func nowMicros() uint64 {
	return uint64(time.Now().UnixMicro())
}

func (p *Profiler) poolFor(tag int) *segpool.PoolPair {
	pool, ok := p.pools[tag]
	if !ok {
		pool = segpool.NewPoolPair()
		p.pools[tag] = pool
		p.counts[tag] = &atomic.Uint32{}
	}
	return pool
}

// OnCall handles a call-entry event for a tracked function, per spec.md
// §4.D steps 1-8. frames is the already-captured (innermost-first, up to
// constants.MaxStackDepth) call stack.
func (p *Profiler) OnCall(tf *TrackedFunction, frames []Frame) *traceentry.Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	pool := p.poolFor(tf.Tag)
	seg, ok := p.current[tf.Tag]
	if !ok || seg.Full() {
		if ok {
			pool.ParkReady(seg)
		}
		seg = pool.DrawEmpty()
		p.current[tf.Tag] = seg
	}

	entry := seg.Next()
	entry.StartUs = p.nowUs()

	if tf.StageType == traceentry.StageDataloader {
		p.stage.Next()
	}
	entry.StageID = p.stage.Current()
	entry.StageType = tf.StageType
	p.stage.SetStageType(tf.StageType)

	depth := len(frames)
	if depth > constants.MaxStackDepth {
		depth = constants.MaxStackDepth
	}
	entry.StackDepth = uint8(depth)
	for i := 0; i < depth; i++ {
		entry.StackFrames[i] = frames[i].format()
	}

	return entry
}

// OnReturn handles a return event for the entry most recently produced by
// OnCall on this tag (the caller is responsible for associating the
// right *traceentry.Entry, e.g. via its own call stack, since Go has no
// frame-local storage to infer it from implicitly).
func (p *Profiler) OnReturn(tf *TrackedFunction, entry *traceentry.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry.EndUs = p.nowUs()
	c := p.counts[tf.Tag]
	entry.Count = c.Add(1)
}

// OnGCStart stamps the start of a GC cycle on the reserved GC tag (0).
func (p *Profiler) OnGCStart() *traceentry.Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	pool := p.poolFor(constants.GCTag)
	seg, ok := p.current[constants.GCTag]
	if !ok || seg.Full() {
		if ok {
			pool.ParkReady(seg)
		}
		seg = pool.DrawEmpty()
		p.current[constants.GCTag] = seg
	}
	entry := seg.Next()
	entry.StartUs = p.nowUs()
	entry.StageType = traceentry.StageGC
	entry.StageID = p.stage.Current()
	return entry
}

// OnGCStop finalizes a GC entry with the collected/uncollectable counts
// (-1 if absent), per spec.md §4.D's GC special case.
func (p *Profiler) OnGCStop(entry *traceentry.Entry, collected, uncollectable int32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry.EndUs = p.nowUs()
	entry.PayloadKind = traceentry.PayloadGC
	entry.Payload = traceentry.GCPayload{Collected: collected, Uncollectable: uncollectable}
	c := p.counts[constants.GCTag]
	if c == nil {
		c = &atomic.Uint32{}
		p.counts[constants.GCTag] = c
	}
	entry.Count = c.Add(1)
}

// Pool returns the PoolPair for tag, creating it if this is the first
// reference (used by the dump controller to drain tags that never
// produced a call in this cycle but still need their ready queue
// checked).
func (p *Profiler) Pool(tag int) *segpool.PoolPair {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.poolFor(tag)
}

// SwapCurrent atomically installs a fresh segment as the tag's current
// segment and returns the previous one (possibly partially filled, or
// nil if no segment had been drawn yet). Used by the dump controller to
// take the in-flight partial segment without racing a concurrent OnCall.
func (p *Profiler) SwapCurrent(tag int) *traceentry.Segment {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.current[tag]
	p.current[tag] = p.poolFor(tag).DrawEmpty()
	return prev
}

// Tags returns every tag with an allocated pool, in no particular order.
func (p *Profiler) Tags() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	tags := make([]int, 0, len(p.pools))
	for t := range p.pools {
		tags = append(tags, t)
	}
	return tags
}
