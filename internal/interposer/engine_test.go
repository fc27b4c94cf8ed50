package interposer

import (
	"encoding/binary"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systrace-go/systrace/internal/stage"
)

type fakeCapturer struct{ frames []StackFrame }

func (f fakeCapturer) CaptureStack() []StackFrame { return f.frames }

func TestEngineRecordAllocFlushesAtMinItems(t *testing.T) {
	dir := t.TempDir()
	writer := NewWriter(dir, 99, 0)
	sc := &stage.Counter{}
	sc.Next()

	e := NewEngine(writer, sc, fakeCapturer{frames: []StackFrame{{Address: 0x10, SoName: "libascend_hal.so"}}})

	oldMin := MaybeFlushMinItems
	MaybeFlushMinItems = 3
	defer func() { MaybeFlushMinItems = oldMin }()

	for i := 0; i < 3; i++ {
		e.RecordAlloc(42, uint64(0x1000+i), 256)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(dir + "/" + entries[0].Name())
	require.NoError(t, err)
	var frameCount int
	off := 0
	for off < len(data) {
		length := binary.BigEndian.Uint32(data[off : off+4])
		off += 4 + int(length)
		frameCount++
	}
	assert.Equal(t, 3, frameCount)
}

func TestEngineSeparatesBatchesPerThread(t *testing.T) {
	dir := t.TempDir()
	writer := NewWriter(dir, 1, 0)
	sc := &stage.Counter{}
	e := NewEngine(writer, sc, fakeCapturer{})

	e.RecordAlloc(1, 0xa, 8)
	e.RecordAlloc(2, 0xb, 8)

	b1 := e.batchFor(1, time.Now())
	b2 := e.batchFor(2, time.Now())
	assert.Len(t, b1.Events, 1)
	assert.Len(t, b2.Events, 1)
	assert.NotSame(t, b1, b2)
}

func TestFlushThreadExitForcesWriteAndClearsBatch(t *testing.T) {
	dir := t.TempDir()
	writer := NewWriter(dir, 1, 0)
	sc := &stage.Counter{}
	e := NewEngine(writer, sc, fakeCapturer{})

	e.RecordFree(7, 0x99)
	e.FlushThreadExit(7)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e.mu.Lock()
	_, stillTracked := e.batches[7]
	e.mu.Unlock()
	assert.False(t, stillTracked)
}
