// Package segpool implements the buffer pool (component C): two FIFOs per
// tracked function tag — an empty pool of reusable segments and a ready
// pool of filled segments awaiting drain.
//
// Grounded on ehrlich-b-go-ublk/internal/queue/pool.go's size-bucketed
// allocate-on-demand sync.Pool, generalized from a single size-bucketed
// byte-slice allocator to a per-tag pair of ordered FIFOs: the dump
// controller (component I) must drain ready segments in the order they
// were produced, a guarantee sync.Pool does not offer, so the ready side
// here is a plain mutex-guarded slice-backed queue instead.
package segpool

import (
	"sync"

	"github.com/systrace-go/systrace/internal/traceentry"
)

// PoolPair is the empty/ready FIFO pair for one tracked-function tag.
// Every operation is guarded by mu, matching spec.md §4.C's "each call
// under the pair's mutex" contract.
type PoolPair struct {
	mu    sync.Mutex
	empty []*traceentry.Segment
	ready []*traceentry.Segment
}

// NewPoolPair returns an empty pair; DrawEmpty allocates lazily.
func NewPoolPair() *PoolPair {
	return &PoolPair{}
}

// DrawEmpty never blocks: it pops a recycled segment if one is queued,
// else allocates a fresh one. This is the "drop policy" guarantee from
// spec.md §4.D — capture never stalls or drops waiting for a free
// segment, at the cost of unbounded memory growth under sustained
// pressure.
func (p *PoolPair) DrawEmpty() *traceentry.Segment {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.empty)
	if n == 0 {
		return traceentry.NewSegment()
	}
	seg := p.empty[0]
	p.empty = p.empty[1:]
	return seg
}

// ParkReady hands a full segment to the ready queue for later draining.
func (p *PoolPair) ParkReady(seg *traceentry.Segment) {
	p.mu.Lock()
	p.ready = append(p.ready, seg)
	p.mu.Unlock()
}

// TakeReady pops the oldest ready segment, or nil if none is queued.
func (p *PoolPair) TakeReady() *traceentry.Segment {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ready) == 0 {
		return nil
	}
	seg := p.ready[0]
	p.ready = p.ready[1:]
	return seg
}

// DrainReady pops every currently queued ready segment in FIFO order.
func (p *PoolPair) DrainReady() []*traceentry.Segment {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ready) == 0 {
		return nil
	}
	drained := p.ready
	p.ready = nil
	return drained
}

// ReturnEmpty recycles seg (resetting it first) back to the empty pool.
func (p *PoolPair) ReturnEmpty(seg *traceentry.Segment) {
	seg.Reset()
	p.mu.Lock()
	p.empty = append(p.empty, seg)
	p.mu.Unlock()
}

// Counts reports the current empty/ready queue depths, for metrics.
func (p *PoolPair) Counts() (empty, ready int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.empty), len(p.ready)
}
