package segpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systrace-go/systrace/internal/constants"
)

func TestDrawEmptyNeverBlocksAllocatesWhenEmpty(t *testing.T) {
	p := NewPoolPair()
	seg := p.DrawEmpty()
	require.NotNil(t, seg)
	assert.Equal(t, 0, seg.Cursor)
}

func TestParkReadyThenTakeReadyFIFOOrder(t *testing.T) {
	p := NewPoolPair()
	s1 := p.DrawEmpty()
	s2 := p.DrawEmpty()
	p.ParkReady(s1)
	p.ParkReady(s2)

	assert.Same(t, s1, p.TakeReady())
	assert.Same(t, s2, p.TakeReady())
	assert.Nil(t, p.TakeReady())
}

func TestReturnEmptyResetsCursor(t *testing.T) {
	p := NewPoolPair()
	seg := p.DrawEmpty()
	seg.Next().StartUs = 1
	require.Equal(t, 1, seg.Cursor)

	p.ReturnEmpty(seg)
	empty, ready := p.Counts()
	assert.Equal(t, 1, empty)
	assert.Equal(t, 0, ready)

	recycled := p.DrawEmpty()
	assert.Same(t, seg, recycled)
	assert.Equal(t, 0, recycled.Cursor)
}

func TestOverflowHandoffExactlyTwoReadySegments(t *testing.T) {
	p := NewPoolPair()
	seg := p.DrawEmpty()
	for i := 0; i < constants.SegmentEntries*2; i++ {
		seg.Next()
		if seg.Full() {
			p.ParkReady(seg)
			seg = p.DrawEmpty()
		}
	}
	drained := p.DrainReady()
	assert.Len(t, drained, 2)
	for _, s := range drained {
		assert.Equal(t, constants.SegmentEntries, s.Cursor)
	}
}
