// Command systrace-pytracer is built with -buildmode=c-shared as
// libsystrace_pytracer.so and loaded into an already-running CPython
// process (via ctypes.CDLL or an import hook), exporting the two
// entrypoints a thin Python shim needs to drive the interpreter-level
// profiler: systrace_init() to bring the engine up, and
// systrace_shutdown() to drain it and perform the final dump.
//
// Grounded on original_source/sysTrace/src/trace/python/pytorch_tracing_loader.cc:
// PyTorchTracingLibrary dlopen's this same kind of shared object and
// dlsym's a handful of C-ABI entrypoints (systrace_register_tracing,
// systrace_get_full_pytorch_tracing_data_array, ...); here the
// direction is inverted (Python loads this library rather than this
// library's caller dlsym'ing into libsysTrace.so) but the export
// surface plays the same role: a small, fixed C ABI bridging the
// running interpreter to the tracing engine.
package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"context"
	"os"

	"github.com/systrace-go/systrace"
	"github.com/systrace-go/systrace/internal/logging"
	"github.com/systrace-go/systrace/internal/profiler"
	"github.com/systrace-go/systrace/internal/sdktrace"
)

var engine *systrace.Engine

func markerFormat() systrace.Format {
	if os.Getenv("SYSTRACE_MARKER_FORMAT") == "json" {
		return systrace.FormatJSON
	}
	return systrace.FormatCSV
}

//export systrace_init
func systrace_init() C.int {
	if engine != nil {
		return 0
	}

	e, err := systrace.Start(context.Background(), systrace.Config{
		Decoder:      sdktrace.VendorDecoder{},
		Interpreter:  profiler.NewCPythonInterpreter(),
		MarkerFormat: markerFormat(),
	})
	if err != nil {
		logging.Error("systrace-pytracer: init failed", "error", err)
		return -1
	}
	engine = e
	logging.Info("systrace-pytracer initialized", "rank", e.Rank(), "world_size", e.WorldSize())
	return 0
}

//export systrace_shutdown
func systrace_shutdown() C.int {
	if engine == nil {
		return 0
	}
	err := systrace.Stop(context.Background(), engine)
	engine = nil
	if err != nil {
		logging.Error("systrace-pytracer: shutdown failed", "error", err)
		return -1
	}
	return 0
}

//export systrace_rank
func systrace_rank() C.int {
	if engine == nil {
		return -1
	}
	return C.int(engine.Rank())
}

func main() {}
