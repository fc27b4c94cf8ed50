package systrace

import "github.com/systrace-go/systrace/internal/constants"

// Re-exported constants for embedders that only need the public package.
const (
	SegmentEntries       = constants.SegmentEntries
	MaxStackDepth        = constants.MaxStackDepth
	MaxStackFrameLength  = constants.MaxStackFrameLength
	LogItemsMin          = constants.LogItemsMin
	DumpTriggerEvery     = constants.DumpTriggerEvery
	DefaultTimelineDir   = constants.DefaultTimelineDir
	DefaultMetricPath    = constants.DefaultMetricPath
)

var (
	LogIntervalSec       = constants.LogIntervalSec
	DumpPollInterval     = constants.DumpPollInterval
	MarkerFlushInterval  = constants.MarkerFlushInterval
	BarrierTimeout       = constants.BarrierTimeout
)
