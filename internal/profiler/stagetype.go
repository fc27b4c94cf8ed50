package profiler

import (
	"strings"

	"github.com/systrace-go/systrace/internal/traceentry"
)

// DefaultSelectors is the hardcoded set of tracked-function selectors
// registered on every interpreter regardless of environment
// configuration. Grounded verbatim on
// original_source/sysTrace/src/trace/systrace_manager.cc's
// registerTracingFunctions(); "GC" is resolved specially by Interpreter
// implementations rather than naming a real selector path.
var DefaultSelectors = []string{
	"GC",
	"torch.utils.data.dataloader@_BaseDataLoaderIter@__next__",
	"torch_npu@npu@synchronize",
	"torch_npu.npu@Event@synchronize",
	"torch_npu.npu@Event@wait",
	"torch_npu.npu@Stream@synchronize",
	"torch_npu.npu@Stream@wait_event",
	"torch_npu.npu@Stream@wait_stream",
	"torch@autograd@backward",
	"torch@autograd@grad",
	"megatron.core.pipeline_parallel@schedules@forward_step",
	"megatron.core.pipeline_parallel@schedules@backward_step",
}

// determineStageType maps a tracked function's selector string to a
// StageType, literally per spec.md §4.D's mapping table. Grounded on
// original_source/sysTrace/src/trace/python/pytorch_tracing.c's
// determine_stage_type().
func determineStageType(selector string) traceentry.StageType {
	switch {
	case selector == "GC":
		return traceentry.StageGC
	case strings.Contains(selector, "dataloader@_BaseDataLoaderIter@__next__"):
		return traceentry.StageDataloader
	case strings.Contains(selector, "@npu@synchronize"),
		strings.Contains(selector, "Event@synchronize"),
		strings.Contains(selector, "Event@wait"),
		strings.Contains(selector, "Stream@"),
		strings.HasPrefix(lastSegment(selector), "wait_"):
		return traceentry.StageSynchronization
	case strings.Contains(selector, "autograd@backward"),
		strings.Contains(selector, "autograd@grad"):
		return traceentry.StageBackward
	case strings.Contains(selector, "pipeline_parallel@schedules@forward_step"):
		return traceentry.StageForward
	case strings.Contains(selector, "pipeline_parallel@schedules@backward_step"):
		return traceentry.StageBackward
	default:
		return traceentry.StageUnknown
	}
}

func lastSegment(selector string) string {
	if i := strings.LastIndexByte(selector, '@'); i >= 0 {
		return selector[i+1:]
	}
	return selector
}
