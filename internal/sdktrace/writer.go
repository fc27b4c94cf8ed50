package sdktrace

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/systrace-go/systrace/internal/constants"
	"github.com/systrace-go/systrace/internal/logging"
)

// Format selects the writer's on-disk encoding.
type Format int

const (
	FormatCSV Format = iota
	FormatJSON
)

var csvHeader = []string{"kind", "mode", "timestamp", "id", "process_id&device_id", "thread_id", "name"}

// Writer accumulates Markers and periodically flushes them to a rank-
// suffixed file, mirroring MSPTIHcclFileWriter's background thread
// (condition-variable wait_for(5s) translated to a Go ticker) and its
// CSV/JSON output bodies.
type Writer struct {
	path   string
	format Format

	mu      sync.Mutex
	pending []Marker

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWriter opens (creating if absent) the rank-suffixed output file
// under metricPath for baseName, writing the CSV header on first
// creation. baseName may or may not carry a .csv/.json extension;
// filenameForRank adds the format's extension when it is missing and
// appends the rank after it (hccl_activity.csv.<rank>).
func NewWriter(metricPath, baseName string, rank int, format Format) (*Writer, error) {
	if metricPath == "" {
		metricPath = "/var/log"
	}
	path := filenameForRank(metricPath, baseName, rank, format)

	_, statErr := os.Stat(path)
	existed := statErr == nil

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "sdktrace: open %s", path)
	}
	if format == FormatCSV && !existed {
		cw := csv.NewWriter(f)
		if err := cw.Write(csvHeader); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "sdktrace: write csv header")
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "sdktrace: flush csv header")
		}
	}
	f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	w := &Writer{path: path, format: format, ctx: ctx, cancel: cancel, done: make(chan struct{})}
	return w, nil
}

func filenameForRank(metricPath, baseName string, rank int, format Format) string {
	if !strings.HasSuffix(metricPath, "/") {
		metricPath += "/"
	}
	full := metricPath + baseName
	ext := ".csv"
	if format == FormatJSON {
		ext = ".json"
	}
	if !strings.HasSuffix(full, ext) {
		full += ext
	}
	return full + "." + strconv.Itoa(rank)
}

// BufferMarkerActivity appends activity to the pending buffer for the
// next flush, matching bufferMarkerActivity's lock-and-append.
func (w *Writer) BufferMarkerActivity(activity Marker) {
	w.mu.Lock()
	w.pending = append(w.pending, activity)
	w.mu.Unlock()
}

// Run starts the periodic flush loop (MarkerFlushInterval) and blocks
// until Stop is called. Callers run this in its own goroutine.
func (w *Writer) Run() {
	defer close(w.done)
	ticker := time.NewTicker(constants.MarkerFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.flush(); err != nil {
				logging.Error("sdktrace writer flush failed", "error", err)
			}
		case <-w.ctx.Done():
			if err := w.flush(); err != nil {
				logging.Error("sdktrace writer final flush failed", "error", err)
			}
			return
		}
	}
}

// Stop signals the flush loop to drain and exit, blocking until it has.
func (w *Writer) Stop() {
	w.cancel()
	<-w.done
}

func (w *Writer) flush() error {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "sdktrace: reopen %s", w.path)
	}
	defer f.Close()

	switch w.format {
	case FormatCSV:
		return writeCSV(f, batch)
	default:
		return writeJSON(f, batch)
	}
}

func writeCSV(f *os.File, batch []Marker) error {
	cw := csv.NewWriter(f)
	for _, m := range batch {
		name := strings.ReplaceAll(m.Name, ",", "!")
		var pidOrDevice, tidOrStream uint32
		if m.SourceKind == SourceHost {
			pidOrDevice, tidOrStream = m.ObjectID.ProcessID, m.ObjectID.ThreadID
		} else {
			pidOrDevice, tidOrStream = m.ObjectID.DeviceID, m.ObjectID.StreamID
		}
		row := []string{
			strconv.FormatUint(uint64(m.Kind), 10),
			strconv.FormatUint(uint64(m.SourceKind), 10),
			strconv.FormatUint(m.Timestamp, 10),
			strconv.FormatUint(m.ID, 10),
			strconv.FormatUint(uint64(pidOrDevice), 10),
			strconv.FormatUint(uint64(tidOrStream), 10),
			name,
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "sdktrace: write csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "sdktrace: flush csv rows")
}

type jsonMarker struct {
	Kind           uint32   `json:"Kind"`
	SourceKind     uint8    `json:"SourceKind"`
	Timestamp      uint64   `json:"Timestamp"`
	ID             uint64   `json:"Id"`
	Domain         string   `json:"Domain"`
	Flag           uint32   `json:"Flag"`
	MsptiObjectID  jsonObj  `json:"msptiObjecId"`
	Name           string   `json:"Name"`
}

type jsonObj struct {
	Pt jsonPt `json:"Pt"`
	Ds jsonDs `json:"Ds"`
}

type jsonPt struct {
	ProcessID uint32 `json:"ProcessId"`
	ThreadID  uint32 `json:"ThreadId"`
}

type jsonDs struct {
	DeviceID uint32 `json:"DeviceId"`
	StreamID uint32 `json:"StreamId"`
}

func writeJSON(f *os.File, batch []Marker) error {
	records := make([]jsonMarker, 0, len(batch))
	for _, m := range batch {
		rec := jsonMarker{
			Kind:       m.Kind,
			SourceKind: uint8(m.SourceKind),
			Timestamp:  m.Timestamp,
			ID:         m.ID,
			Domain:     m.Domain,
			Flag:       m.Flag,
			Name:       m.Name,
		}
		if m.SourceKind == SourceHost {
			rec.MsptiObjectID.Pt = jsonPt{ProcessID: m.ObjectID.ProcessID, ThreadID: m.ObjectID.ThreadID}
			rec.MsptiObjectID.Ds = jsonDs{DeviceID: m.ObjectID.ProcessID, StreamID: m.ObjectID.ThreadID}
		} else {
			rec.MsptiObjectID.Ds = jsonDs{DeviceID: m.ObjectID.DeviceID, StreamID: m.ObjectID.StreamID}
			rec.MsptiObjectID.Pt = jsonPt{ProcessID: m.ObjectID.DeviceID, ThreadID: m.ObjectID.StreamID}
		}
		records = append(records, rec)
	}

	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(records)
	if err != nil {
		return errors.Wrap(err, "sdktrace: marshal json markers")
	}
	_, err = f.Write(append(data, '\n'))
	return errors.Wrap(err, "sdktrace: write json batch")
}

// Path returns the on-disk output path, mostly useful for tests.
func (w *Writer) Path() string { return filepath.Clean(w.path) }
