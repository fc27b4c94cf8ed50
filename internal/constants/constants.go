package constants

import "time"

// Segment and pool sizing
const (
	// SegmentEntries is the number of TraceEntry slots per segment
	// (PY_TRACING_BUFFER_SIZE in the original implementation).
	SegmentEntries = 512

	// MaxStackDepth is the maximum number of captured call-stack frames
	// per entry.
	MaxStackDepth = 32

	// MaxStackFrameLength is the maximum formatted length of a single
	// stack frame string ("name@file:line").
	MaxStackFrameLength = 256

	// GCTag is the reserved tag identifier for the garbage-collector
	// pseudo function; it is always tag 0.
	GCTag = 0
)

// Driver interposer flush policy
//
// The interposer batches memory events per OS thread and flushes under a
// try-lock on the process file mutex once either threshold is crossed.
// Non-blocking deferral on lock contention is intentional: the hot path
// (an intercepted allocate/free call) must never stall on a writer held
// by another thread.
const (
	// LogItemsMin is the minimum batch size that triggers a flush attempt
	// regardless of age.
	LogItemsMin = 1000

	// LogIntervalSec is the maximum batch age before a flush is attempted
	// even under LogItemsMin.
	LogIntervalSec = 120 * time.Second
)

// Dump controller timing
const (
	// DumpPollInterval is the worker loop's sleep between trigger checks.
	DumpPollInterval = 10 * time.Millisecond

	// DumpTriggerEvery is the number of poll iterations between
	// should_trigger() evaluations (DEFAULT_TRACE_COUNT upstream).
	DumpTriggerEvery = 1000
)

// SDK writer timing
const (
	// MarkerFlushInterval is the SDK writer's periodic flush wakeup.
	MarkerFlushInterval = 5 * time.Second
)

// Cross-process barrier timing
var (
	// BarrierSpinInterval is the sleep between cell-state polls.
	BarrierSpinInterval = 100 * time.Microsecond

	// BarrierTimeout is the overall rendezvous deadline. A var, not a
	// const, so tests can shorten it.
	BarrierTimeout = 30 * time.Second
)

// Device probe
const (
	// DeviceProbePrefix is the filesystem prefix probed for accelerator
	// device nodes: DeviceProbePrefix + "{0..DeviceProbeCount-1}".
	DeviceProbePrefix = "/dev/davinci"

	// DeviceProbeCount bounds the device index range probed.
	DeviceProbeCount = 16
)

// Default output locations, overridable by environment (see internal/envconfig)
const (
	// DefaultTimelineDir is used when SYSTRACE_LOGGING_DIR is unset.
	DefaultTimelineDir = "/home/timeline"

	// DefaultMetricPath is used when METRIC_PATH is unset.
	DefaultMetricPath = "/var/log"

	// MarkerActivityBaseName is the SDK writer's base output filename,
	// rank-suffixed by the writer.
	MarkerActivityBaseName = "hccl_activity"
)

// Accelerator-SDK ingestor buffers
const (
	// DriverBufferAlignment is the alignment headroom reserved when the
	// SDK ingestor hands back a buffer-request allocation.
	DriverBufferAlignment = 8

	// DriverBufferSize is the fixed accelerator-SDK buffer size (1 MiB).
	DriverBufferSize = 1 << 20
)

// Env var names recognized by internal/envconfig. Kept centralized so the
// registry, the rank config, and the dump/writer paths never hand-type a
// name twice.
const (
	EnvRank                 = "RANK"
	EnvWorldSize            = "WORLD_SIZE"
	EnvLocalRank            = "LOCAL_RANK"
	EnvLocalWorldSize       = "LOCAL_WORLD_SIZE"
	EnvDebugMode            = "SYSTRACE_DEBUG_MODE"
	EnvLoggingDir           = "SYSTRACE_LOGGING_DIR"
	EnvLoggingAppend        = "SYSTRACE_LOGGING_APPEND"
	EnvHostTracingFunc      = "SYSTRACE_HOST_TRACING_FUNC"
	EnvSymsFile             = "SYSTRACE_SYMS_FILE"
	EnvMetricPath           = "METRIC_PATH"
	EnvArgoWorkflowName     = "ENV_ARGO_WORKFLOW_NAME"
)

// StartWorkBarrierName is the default /dev/shm segment name for the
// Manager's startup rendezvous (component B), matching the original's
// fixed "start_work_barrier" shared-memory object.
const StartWorkBarrierName = "start_work_barrier"
