package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systrace-go/systrace/internal/profiler"
	"github.com/systrace-go/systrace/internal/sdktrace"
)

func TestStartBringsUpAllComponentsAndStopDrainsCleanly(t *testing.T) {
	dir := t.TempDir()
	barrierName := "manager-test-barrier-" + t.Name()
	interp := profiler.NewFakeInterpreter()

	m, err := Start(context.Background(), Config{
		Decoder:     sdktrace.FakeDecoder{},
		Interpreter: interp,
		TimelineDir: dir,
		BarrierName: barrierName,
	})
	require.NoError(t, err)
	require.NotNil(t, m)
	defer func() {
		_ = os.Remove(filepath.Join("/dev/shm", barrierName))
	}()

	assert.Equal(t, StateRunning, m.State())
	assert.NotNil(t, m.Profiler)
	assert.NotNil(t, m.Driver)
	assert.NotNil(t, m.Writer)
	assert.NotNil(t, m.Ingestor)
	assert.NotNil(t, m.Dump)

	// The default selector set was registered at Start and is live.
	interp.Call("torch@autograd@backward")
	interp.Return("torch@autograd@backward")

	err = Stop(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, m.State())

	// Stop is idempotent.
	require.NoError(t, Stop(context.Background(), m))

	// The dump controller performs a final dump on Stop.
	_, statErr := os.Stat(filepath.Join(dir, "00000-00001.timeline"))
	assert.NoError(t, statErr)
}

func TestStartRequiresDecoder(t *testing.T) {
	_, err := Start(context.Background(), Config{
		Interpreter: profiler.NewFakeInterpreter(),
		TimelineDir: t.TempDir(),
	})
	assert.Error(t, err)
}

func TestStartRequiresInterpreter(t *testing.T) {
	_, err := Start(context.Background(), Config{
		Decoder:     sdktrace.FakeDecoder{},
		TimelineDir: t.TempDir(),
	})
	assert.Error(t, err)
}

func TestStartWithSwitchTriggerOpensSwitch(t *testing.T) {
	dir := t.TempDir()
	barrierName := "manager-test-barrier-switch-" + t.Name()

	m, err := Start(context.Background(), Config{
		Decoder:       sdktrace.FakeDecoder{},
		Interpreter:   profiler.NewFakeInterpreter(),
		TimelineDir:   dir,
		BarrierName:   barrierName,
		SwitchTrigger: true,
	})
	require.NoError(t, err)
	defer func() {
		_ = os.Remove(filepath.Join("/dev/shm", barrierName))
		_ = os.Remove(filepath.Join("/dev/shm", "ShmSwitch"))
	}()
	require.NotNil(t, m.Switch)

	require.NoError(t, Stop(context.Background(), m))
}
