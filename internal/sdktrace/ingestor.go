package sdktrace

import (
	"sync/atomic"

	"github.com/systrace-go/systrace/internal/constants"
)

// Buffer is one SDK-owned recording buffer: a fixed 1 MiB byte slice,
// aligned per DriverBufferAlignment, matching UserBufferRequest's
// malloc(SIZE + ALIGN_SIZE) + align_buffer.
type Buffer struct {
	Bytes []byte
}

// RecordDecoder turns the raw bytes the vendor SDK wrote into a buffer
// into a sequence of Markers, stopping at the SDK's own end-of-records
// signal. The real implementation (built with cgo against the vendor
// header) calls msptiActivityGetNextRecord in a loop; it is abstracted
// here so Ingestor's buffer-lifecycle bookkeeping builds and tests
// without the vendor SDK, mirroring the Interpreter split in
// internal/profiler.
type RecordDecoder interface {
	Decode(buf []byte, validSize int) []Marker
}

// Ingestor implements the buffer-request/complete callback pair the
// vendor tracing SDK drives directly (msptiActivityRegisterCallbacks),
// handing decoded Marker records to a Writer.
//
// Grounded on mspti_tracker.cpp's UserBufferRequest/UserBufferComplete:
// fixed 1 MiB buffers, maxNumRecords left at 0 (no cap), and only
// MSPTI_ACTIVITY_KIND_MARKER records kept.
type Ingestor struct {
	decoder         RecordDecoder
	writer          *Writer
	requestedCount  atomic.Int64
}

// NewIngestor returns an Ingestor that decodes buffers via decoder and
// forwards Marker records to writer.
func NewIngestor(decoder RecordDecoder, writer *Writer) *Ingestor {
	return &Ingestor{decoder: decoder, writer: writer}
}

// RequestBuffer answers the SDK's UserBufferRequest callback: a freshly
// allocated, alignment-padded 1 MiB buffer and maxNumRecords=0 (no
// per-buffer record cap), exactly as mspti_tracker.cpp does.
func (ig *Ingestor) RequestBuffer() (buf *Buffer, size int, maxNumRecords int) {
	ig.requestedCount.Add(1)
	return &Buffer{Bytes: make([]byte, constants.DriverBufferSize+constants.DriverBufferAlignment)},
		constants.DriverBufferSize, 0
}

// CompleteBuffer answers the SDK's UserBufferComplete callback: decode
// validSize bytes of buf into Markers and hand each Marker-kind record
// to the writer for buffering, then let buf be released by the caller.
func (ig *Ingestor) CompleteBuffer(buf *Buffer, validSize int) {
	if validSize <= 0 || buf == nil {
		return
	}
	for _, m := range ig.decoder.Decode(buf.Bytes, validSize) {
		ig.writer.BufferMarkerActivity(m)
	}
}

// RequestedCount returns the number of buffers requested so far, mostly
// useful for tests and metrics.
func (ig *Ingestor) RequestedCount() int64 {
	return ig.requestedCount.Load()
}
