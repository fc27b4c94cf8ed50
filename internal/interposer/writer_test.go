package interposer

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilenameMatchesExpectedLayout(t *testing.T) {
	w := NewWriter(".", 4242, 3)
	now := time.Date(2026, 7, 30, 14, 0, 0, 0, time.UTC)
	assert.Equal(t, "mem_trace_20260730_14_4242_rank3.pb", w.filename(now))
}

func TestTryFlushWritesLengthPrefixedFrames(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, 1, 0)
	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)

	batch := NewBatch(now)
	batch.Add(MemEvent{
		Kind:      EventAlloc,
		Ptr:       0xdead,
		Size:      128,
		StageID:   7,
		StageType: 1,
		Stack:     []StackFrame{{Address: 0x1000, SoName: "libascend_hal.so"}},
	})
	batch.Add(MemEvent{Kind: EventFree, Ptr: 0xdead})

	flushed, err := w.TryFlush(batch, now)
	require.NoError(t, err)
	require.True(t, flushed)

	path := filepath.Join(dir, w.filename(now))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	off := 0
	var frameCount int
	for off < len(data) {
		length := binary.BigEndian.Uint32(data[off : off+4])
		off += 4 + int(length)
		frameCount++
	}
	assert.Equal(t, 2, frameCount)
	assert.Equal(t, len(data), off)
}

func TestTryFlushDoesNotBlockOnContention(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, 1, 0)
	w.mu.Lock()
	defer w.mu.Unlock()

	batch := NewBatch(time.Now())
	batch.Add(MemEvent{Kind: EventAlloc, Ptr: 1, Size: 1})

	flushed, err := w.TryFlush(batch, time.Now())
	require.NoError(t, err)
	assert.False(t, flushed)
}
