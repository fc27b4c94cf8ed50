package dumpctl

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systrace-go/systrace/internal/profiler"
	"github.com/systrace-go/systrace/internal/stage"
)

func TestControllerDumpWritesExpectedFilenameAndFields(t *testing.T) {
	registry := profiler.NewRegistry()
	tf := registry.Register("torch@autograd@backward", 0x1000, false)
	prof := profiler.New(registry, &stage.Counter{})

	entry := prof.OnCall(tf, []profiler.Frame{{Name: "backward", File: "autograd.py", Line: 10}})
	prof.OnReturn(tf, entry)

	dir := t.TempDir()
	ctrl := New(Config{
		Profiler:  prof,
		Registry:  registry,
		Rank:      2,
		WorldSize: 8,
		Comm:      "my-job",
		Dir:       dir,
	})

	ctrl.dump()

	path := filepath.Join(dir, "00002-00008.timeline")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var trace PyTorchTrace
	require.NoError(t, json.Unmarshal(data, &trace))

	assert.EqualValues(t, 2, trace.Rank)
	assert.Equal(t, "my-job", trace.Comm)
	require.Len(t, trace.Stages, 1)
	assert.Equal(t, "torch@autograd@backward", trace.Stages[0].StageType)
	assert.EqualValues(t, 1, trace.Stages[0].StageID)
}

func TestControllerDumpSkipsUndumpableEntries(t *testing.T) {
	registry := profiler.NewRegistry()
	tf := registry.Register("torch@autograd@forward", 0x2000, false)
	prof := profiler.New(registry, &stage.Counter{})

	// OnCall without a matching OnReturn leaves EndUs at zero.
	prof.OnCall(tf, nil)

	dir := t.TempDir()
	ctrl := New(Config{Profiler: prof, Registry: registry, Rank: 0, WorldSize: 1, Dir: dir})
	ctrl.dump()

	data, err := os.ReadFile(filepath.Join(dir, "00000-00001.timeline"))
	require.NoError(t, err)

	var trace PyTorchTrace
	require.NoError(t, json.Unmarshal(data, &trace))
	assert.Empty(t, trace.Stages)
	assert.Equal(t, "interactive_session", trace.Comm)
}

func TestControllerStartStopIsIdempotentAndDumpsOnStop(t *testing.T) {
	registry := profiler.NewRegistry()
	tf := registry.Register("torch@autograd@backward", 0x3000, false)
	prof := profiler.New(registry, &stage.Counter{})
	entry := prof.OnCall(tf, nil)
	prof.OnReturn(tf, entry)

	dir := t.TempDir()
	ctrl := New(Config{Profiler: prof, Registry: registry, Rank: 0, WorldSize: 1, Dir: dir})

	ctrl.Start()
	ctrl.Start() // no-op, still Running

	assert.Eventually(t, func() bool { return ctrl.State() == StateRunning }, time.Second, 5*time.Millisecond)

	ctrl.Stop()
	ctrl.Stop() // idempotent

	assert.Equal(t, StateStopped, ctrl.State())

	_, err := os.Stat(filepath.Join(dir, "00000-00001.timeline"))
	assert.NoError(t, err)
}
