package traceentry

import "github.com/systrace-go/systrace/internal/constants"

// Segment is a fixed array of constants.SegmentEntries Entry slots plus a
// cursor. Segments are pool-recycled (internal/segpool); once handed to
// the ready pool a segment's cursor is exactly constants.SegmentEntries
// and the producer must not touch it again until it's returned to the
// empty pool with cursor reset to 0.
type Segment struct {
	Entries [constants.SegmentEntries]Entry
	Cursor  int
}

// NewSegment returns a fresh, empty segment.
func NewSegment() *Segment {
	return &Segment{}
}

// Full reports whether the segment has no remaining free slot.
func (s *Segment) Full() bool {
	return s.Cursor >= constants.SegmentEntries
}

// Reset zeroes the segment for return to the empty pool.
func (s *Segment) Reset() {
	for i := range s.Entries[:s.Cursor] {
		s.Entries[i].Reset()
	}
	s.Cursor = 0
}

// Next returns a pointer to the next free entry and advances the cursor.
// Caller must have already checked !Full().
func (s *Segment) Next() *Entry {
	e := &s.Entries[s.Cursor]
	s.Cursor++
	return e
}
