package dumpctl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systrace-go/systrace/internal/traceentry"
)

func TestStageFromEntryUsesCountAndSelectorName(t *testing.T) {
	e := traceentry.Entry{
		StartUs:   100,
		EndUs:     150,
		Count:     42,
		StageID:   7,
		StageType: traceentry.StageBackward,
	}
	e.StackDepth = 2
	e.StackFrames[0] = "backward@autograd.py:10"
	e.StackFrames[1] = "step@optim.py:5"

	s := stageFromEntry(&e, "torch@autograd@backward")

	assert.Equal(t, uint64(100), s.StartUs)
	assert.Equal(t, uint64(150), s.EndUs)
	// stage_id comes from the function-local call counter, not the
	// process-global stage id used for cross-source correlation.
	assert.EqualValues(t, 42, s.StageID)
	assert.Equal(t, "torch@autograd@backward", s.StageType)
	assert.Equal(t, []string{"backward@autograd.py:10", "step@optim.py:5"}, s.StackFrames)
	assert.Nil(t, s.GC)
}

func TestStageFromEntryCarriesGCDebugPayload(t *testing.T) {
	e := traceentry.Entry{
		StartUs:     10,
		EndUs:       20,
		Count:       3,
		PayloadKind: traceentry.PayloadGC,
	}
	e.Payload.Collected = 5
	e.Payload.Uncollectable = 1

	s := stageFromEntry(&e, "GC")

	if assert.NotNil(t, s.GC) {
		assert.Equal(t, int32(5), s.GC.Collected)
		assert.Equal(t, int32(1), s.GC.Uncollectable)
	}
}
