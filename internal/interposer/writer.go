package interposer

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/systrace-go/systrace/internal/constants"
	"github.com/systrace-go/systrace/internal/logging"
)

// Writer serializes flushed batches to the per-rank memory-trace file
// under a try-lock, matching spec.md §4.F step 4's non-blocking
// deferral-on-contention behavior exactly (write_protobuf_to_file's
// pthread_mutex_trylock in cann_hook.c).
type Writer struct {
	mu  sync.Mutex
	dir string
	pid int
	rank int
}

// NewWriter returns a Writer rooted at dir (the process working
// directory, per spec.md §6: "./mem_trace_..." is relative to cwd).
func NewWriter(dir string, pid, rank int) *Writer {
	return &Writer{dir: dir, pid: pid, rank: rank}
}

// filename reproduces get_log_filename from cann_hook.c exactly:
// mem_trace_<YYYY><MM><DD>_<HH>_<pid>_rank<R>.pb
func (w *Writer) filename(now time.Time) string {
	return fmt.Sprintf("mem_trace_%04d%02d%02d_%02d_%d_rank%d.pb",
		now.Year(), now.Month(), now.Day(), now.Hour(), w.pid, w.rank)
}

// TryFlush attempts the file write under a non-blocking try-lock; if the
// lock is held by a concurrent flush from another thread's batch it
// returns (false, nil) immediately — the caller should leave the batch
// for the next call rather than retry synchronously.
//
// Wire format: length-prefixed frames (stdlib encoding/binary) — the
// schema itself is declared external/opaque by spec.md §1, so this
// module does not attempt real protobuf fidelity; it only needs a
// self-delimiting append format, which a 4-byte big-endian length prefix
// plus a flat encoding of each MemEvent provides.
func (w *Writer) TryFlush(batch *Batch, now time.Time) (flushed bool, err error) {
	if !w.mu.TryLock() {
		return false, nil
	}
	defer w.mu.Unlock()

	path := filepath.Join(w.dir, w.filename(now))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, errors.Wrapf(err, "interposer: open %s", path)
	}
	defer f.Close()

	for _, e := range batch.Events {
		frame := encodeEvent(e)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(frame)))
		if _, err := f.Write(lenBuf[:]); err != nil {
			return false, errors.Wrap(err, "interposer: write length prefix")
		}
		if _, err := f.Write(frame); err != nil {
			return false, errors.Wrap(err, "interposer: write frame")
		}
	}
	logging.Debug("flushed memory trace batch", "path", path, "events", len(batch.Events))
	return true, nil
}

func encodeEvent(e MemEvent) []byte {
	buf := make([]byte, 0, 32+len(e.Stack)*72)
	var scratch [8]byte

	putU64 := func(v uint64) {
		binary.BigEndian.PutUint64(scratch[:], v)
		buf = append(buf, scratch[:]...)
	}
	putU32 := func(v uint32) {
		var s [4]byte
		binary.BigEndian.PutUint32(s[:], v)
		buf = append(buf, s[:]...)
	}

	buf = append(buf, byte(e.Kind))
	putU64(e.Ptr)
	putU64(e.Size)
	putU32(e.StageID)
	buf = append(buf, e.StageType)
	putU32(uint32(len(e.Stack)))
	for _, fr := range e.Stack {
		putU64(fr.Address)
		name := fr.SoName
		if len(name) > 255 {
			name = name[:255]
		}
		buf = append(buf, byte(len(name)))
		buf = append(buf, name...)
	}
	return buf
}

// MaybeFlushInterval and MaybeFlushMinItems are the default policy
// thresholds, re-exported here so callers don't need to import
// internal/constants directly just for these two numbers.
var (
	MaybeFlushMinItems    = constants.LogItemsMin
	MaybeFlushInterval    = constants.LogIntervalSec
)
