package profiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systrace-go/systrace/internal/stage"
	"github.com/systrace-go/systrace/internal/traceentry"
)

func newTestDriver(t *testing.T) (*Driver, *FakeInterpreter, *Registry, *Profiler) {
	t.Helper()
	interp := NewFakeInterpreter()
	registry := NewRegistry()
	prof := New(registry, &stage.Counter{})
	drv := NewDriver(interp, registry, prof)
	return drv, interp, registry, prof
}

func TestBasicForwardBackwardScenario(t *testing.T) {
	const fwd = "megatron.core.pipeline_parallel@schedules@forward_step"
	const bwd = "megatron.core.pipeline_parallel@schedules@backward_step"

	drv, interp, registry, prof := newTestDriver(t)
	require.NoError(t, drv.Start(context.Background(), []string{fwd, bwd}))

	for i := 0; i < 3; i++ {
		interp.Call(fwd)
		interp.Return(fwd)
		interp.Call(bwd)
		interp.Return(bwd)
	}

	addr, _, _ := interp.ResolveSelector(context.Background(), fwd)
	fwdTF := registry.Lookup(addr)
	addr2, _, _ := interp.ResolveSelector(context.Background(), bwd)
	bwdTF := registry.Lookup(addr2)
	require.NotNil(t, fwdTF)
	require.NotNil(t, bwdTF)

	fwdSeg := prof.SwapCurrent(fwdTF.Tag)
	bwdSeg := prof.SwapCurrent(bwdTF.Tag)
	require.NotNil(t, fwdSeg)
	require.NotNil(t, bwdSeg)
	assert.Equal(t, 3, fwdSeg.Cursor)
	assert.Equal(t, 3, bwdSeg.Cursor)

	for i := 0; i < 3; i++ {
		e := fwdSeg.Entries[i]
		assert.False(t, e.Undumpable())
		assert.Equal(t, traceentry.StageForward, e.StageType)
		assert.GreaterOrEqual(t, e.EndUs, e.StartUs)
	}
}

func TestGCPayloadRecorded(t *testing.T) {
	drv, interp, _, prof := newTestDriver(t)
	require.NoError(t, drv.Start(context.Background(), nil))

	interp.GC("start", 0, 0)
	interp.GC("stop", 7, 2)

	seg := prof.SwapCurrent(0) // GCTag == 0
	require.NotNil(t, seg)
	require.Equal(t, 1, seg.Cursor)

	e := seg.Entries[0]
	assert.Equal(t, traceentry.StageGC, e.StageType)
	assert.Equal(t, traceentry.PayloadGC, e.PayloadKind)
	assert.EqualValues(t, 7, e.Payload.Collected)
	assert.EqualValues(t, 2, e.Payload.Uncollectable)
}

func TestDataloaderIncrementsStageID(t *testing.T) {
	const dl = "torch.utils.data.dataloader@_BaseDataLoaderIter@__next__"
	drv, interp, registry, prof := newTestDriver(t)
	require.NoError(t, drv.Start(context.Background(), []string{dl}))

	addr, _, _ := interp.ResolveSelector(context.Background(), dl)
	tf := registry.Lookup(addr)
	require.NotNil(t, tf)
	assert.Equal(t, traceentry.StageDataloader, tf.StageType)

	for i := 0; i < 4; i++ {
		interp.Call(dl)
		interp.Return(dl)
	}

	seg := prof.SwapCurrent(tf.Tag)
	require.NotNil(t, seg)
	require.Equal(t, 4, seg.Cursor)
	for i := 0; i < 4; i++ {
		assert.EqualValues(t, i+1, seg.Entries[i].StageID)
	}
}
