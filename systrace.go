// Package systrace is the public facade for the in-process training
// profiler: it wires together rank configuration, the startup barrier,
// the interpreter call/return profiler, the accelerator-SDK marker
// ingestor, and the periodic dump controller into one engine per
// process.
//
// The driver-level memory interposer (component F) ships as a separate
// cgo c-shared artifact (cmd/systrace-interposer) loaded by the
// accelerator driver itself; it is not started by this package.
package systrace

import (
	"context"

	"github.com/systrace-go/systrace/internal/manager"
	"github.com/systrace-go/systrace/internal/profiler"
	"github.com/systrace-go/systrace/internal/sdktrace"
)

// Format selects the accelerator-SDK marker writer's on-disk encoding.
type Format = sdktrace.Format

const (
	FormatCSV  = sdktrace.FormatCSV
	FormatJSON = sdktrace.FormatJSON
)

// Config configures one engine instance.
type Config struct {
	// Decoder drives the accelerator-SDK buffer-complete callback.
	// Production callers pass sdktrace.VendorDecoder{} (cgo && linux
	// build); tests pass sdktrace.FakeDecoder{...}.
	Decoder sdktrace.RecordDecoder

	// Interpreter drives call/return and GC notifications for the
	// interpreter-level profiler. Production callers pass
	// profiler.NewCPythonInterpreter() (cgo && linux build); tests pass
	// profiler.NewFakeInterpreter().
	Interpreter profiler.Interpreter

	// MarkerFormat selects CSV or JSON for the accelerator-SDK marker
	// writer. Defaults to FormatCSV.
	MarkerFormat Format

	// BarrierName overrides the startup barrier's /dev/shm segment name.
	// Defaults to the recovered "start_work_barrier" name.
	BarrierName string

	// SwitchTrigger, when true, gates dumps on the recovered ShmSwitch
	// object (internal/dumpctl.Switch) instead of firing unconditionally
	// every DumpTriggerEvery iterations.
	SwitchTrigger bool

	// TimelineDir overrides where .timeline files are written. Defaults
	// to SYSTRACE_LOGGING_DIR, falling back to DefaultTimelineDir.
	TimelineDir string
}

// Engine is a running instance of the profiler.
type Engine struct {
	m *manager.Manager
}

// Start brings up one engine instance for the current rank (resolved
// from the environment per component A) and returns it running.
func Start(ctx context.Context, cfg Config) (*Engine, error) {
	m, err := manager.Start(ctx, manager.Config{
		Decoder:       cfg.Decoder,
		Interpreter:   cfg.Interpreter,
		MarkerFormat:  cfg.MarkerFormat,
		BarrierName:   cfg.BarrierName,
		SwitchTrigger: cfg.SwitchTrigger,
		TimelineDir:   cfg.TimelineDir,
	})
	if err != nil {
		return nil, WrapError("systrace", "Start", err)
	}
	return &Engine{m: m}, nil
}

// Stop drains and tears down e, performing a final dump. Idempotent.
func Stop(ctx context.Context, e *Engine) error {
	if e == nil {
		return nil
	}
	if err := manager.Stop(ctx, e.m); err != nil {
		return WrapError("systrace", "Stop", err)
	}
	return nil
}

// Rank returns the current rank's resolved identity.
func (e *Engine) Rank() int { return e.m.RankCtx.Rank }

// WorldSize returns the current job's world size.
func (e *Engine) WorldSize() int { return e.m.RankCtx.WorldSize }

// Enabled reports the rank's enable flag (device probe passed, or debug
// mode forced it on). Start does not consult it: every component is
// started whether it is true or false.
func (e *Engine) Enabled() bool { return e.m.RankCtx.Enable }
