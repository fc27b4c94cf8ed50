package systrace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/systrace-go/systrace/internal/profiler"
	"github.com/systrace-go/systrace/internal/sdktrace"
)

func TestStartStopEndToEnd(t *testing.T) {
	dir := t.TempDir()
	barrierName := "systrace-facade-test-" + t.Name()
	t.Cleanup(func() { _ = os.Remove(filepath.Join("/dev/shm", barrierName)) })

	interp := profiler.NewFakeInterpreter()
	e, err := Start(context.Background(), Config{
		Decoder:     sdktrace.FakeDecoder{},
		Interpreter: interp,
		TimelineDir: dir,
		BarrierName: barrierName,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if e.WorldSize() != 1 {
		t.Errorf("expected default world size 1, got %d", e.WorldSize())
	}

	// Drive a call/return through the interpreter profiler so the final
	// dump has something to write.
	interp.Call("torch@autograd@backward")
	interp.Return("torch@autograd@backward")

	if err := Stop(context.Background(), e); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// Stop is idempotent.
	if err := Stop(context.Background(), e); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "00000-00001.timeline")); err != nil {
		t.Errorf("expected a timeline file to exist after Stop: %v", err)
	}
}

func TestStartFailsWithoutDecoder(t *testing.T) {
	cfg := Config{Interpreter: profiler.NewFakeInterpreter(), TimelineDir: t.TempDir()}
	if _, err := Start(context.Background(), cfg); err == nil {
		t.Error("expected Start to fail without a Decoder configured")
	}
}

func TestStartFailsWithoutInterpreter(t *testing.T) {
	cfg := Config{Decoder: sdktrace.FakeDecoder{}, TimelineDir: t.TempDir()}
	if _, err := Start(context.Background(), cfg); err == nil {
		t.Error("expected Start to fail without an Interpreter configured")
	}
}
