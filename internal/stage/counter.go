// Package stage implements the process-global stage counter (component
// E): a monotone counter incremented exclusively on Dataloader call
// entry, read by both the interpreter profiler (D) and the driver
// interposer (F) so events from both sources can be joined on stage_id.
package stage

import (
	"sync/atomic"

	"github.com/systrace-go/systrace/internal/traceentry"
)

// Counter is the global stage identifier plus a mirrored "current stage
// type" word, matching spec.md §4.E: "F reads this counter at allocation
// time and also mirrors stage_type into a process-global word".
type Counter struct {
	id        atomic.Uint32
	stageType atomic.Uint32
}

// Global is the single process-wide instance; component D and F both
// reference it rather than threading a pointer through every call site,
// mirroring the original's file-scope global int.
var Global = &Counter{}

// Next increments and returns the new stage id. Call only on Dataloader
// entry.
func (c *Counter) Next() uint32 {
	return c.id.Add(1)
}

// Current returns the stage id without incrementing it.
func (c *Counter) Current() uint32 {
	return c.id.Load()
}

// SetStageType publishes the current stage type for cross-component
// observers (the driver interposer embeds it into MemEvent.Alloc).
func (c *Counter) SetStageType(t traceentry.StageType) {
	c.stageType.Store(uint32(t))
}

// StageType returns the most recently published stage type.
func (c *Counter) StageType() traceentry.StageType {
	return traceentry.StageType(c.stageType.Load())
}
