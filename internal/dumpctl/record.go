package dumpctl

import (
	"github.com/systrace-go/systrace/internal/traceentry"
)

// GCDebug mirrors the optional gc_debug sub-message attached to a
// PyTorchStage record when PayloadKind is PayloadGC.
type GCDebug struct {
	Collected     int32 `json:"collected"`
	Uncollectable int32 `json:"uncollectable"`
}

// Stage is one nested record in the dump tree: a single completed
// call/return, identified by its tracked function's selector name (not
// its numeric tag), per spec.md §4.I step 3c.
//
// Grounded field-for-field on
// original_source/sysTrace/src/trace/systrace_manager.cc's
// processFunctionTracingData (trace->set_start_us/.../add_stack_frames).
type Stage struct {
	StartUs     uint64   `json:"start_us"`
	EndUs       uint64   `json:"end_us"`
	StageID     uint32   `json:"stage_id"`
	StageType   string   `json:"stage_type"`
	StackFrames []string `json:"stack_frames,omitempty"`
	GC          *GCDebug `json:"gc_debug,omitempty"`
}

// PyTorchTrace is the aggregate record written to the `.timeline` file,
// grounded on the `PyTorchTrace` protobuf message referenced throughout
// systrace_manager.cc (pytorch_trace_.set_rank/set_comm/add_pytorch_stages).
type PyTorchTrace struct {
	Rank   int32   `json:"rank"`
	Comm   string  `json:"comm"`
	Stages []Stage `json:"pytorch_stages"`
}

// stageFromEntry converts one drained traceentry.Entry into its Stage
// record, resolving the entry's tag to a selector name via the registry
// rather than carrying the entry's own (numeric) StageType enum forward
// — the dump schema's stage_type field is the human-readable function
// selector, e.g. "torch@autograd@backward".
func stageFromEntry(e *traceentry.Entry, selector string) Stage {
	s := Stage{
		StartUs:   e.StartUs,
		EndUs:     e.EndUs,
		StageID:   e.Count,
		StageType: selector,
	}
	if e.StackDepth > 0 {
		s.StackFrames = append(s.StackFrames, e.StackFrames[:e.StackDepth]...)
	}
	if e.PayloadKind == traceentry.PayloadGC {
		s.GC = &GCDebug{Collected: e.Payload.Collected, Uncollectable: e.Payload.Uncollectable}
	}
	return s
}
