package sdktrace

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriterCSVWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "hccl_activity.csv", 2, FormatCSV)
	require.NoError(t, err)

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	assert.Equal(t, "kind,mode,timestamp,id,process_id&device_id,thread_id,name\n", string(data))
	assert.True(t, strings.HasSuffix(w.Path(), "hccl_activity.csv.2"))
}

func TestWriterFlushSanitizesCommasInCSV(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "hccl_activity.csv", 0, FormatCSV)
	require.NoError(t, err)

	w.BufferMarkerActivity(Marker{
		Kind: 1, SourceKind: SourceHost, Timestamp: 100, ID: 1,
		ObjectID: ObjectID{ProcessID: 10, ThreadID: 20},
		Name:     "step,forward",
	})
	require.NoError(t, w.flush())

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "step!forward")
	assert.NotContains(t, string(data), "step,forward")
}

func TestWriterFlushJSON(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "hccl_activity.json", 0, FormatJSON)
	require.NoError(t, err)

	w.BufferMarkerActivity(Marker{
		Kind: 1, SourceKind: SourceDevice, Timestamp: 5, ID: 9,
		ObjectID: ObjectID{DeviceID: 2, StreamID: 3},
		Name:     "all_reduce",
	})
	require.NoError(t, w.flush())

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "all_reduce")
	assert.Contains(t, string(data), `"DeviceId":2`)
}

func TestFilenameForRankAppendsRankAfterExtension(t *testing.T) {
	assert.Equal(t, "/var/log/hccl_activity.csv.4", filenameForRank("/var/log", "hccl_activity.csv", 4, FormatCSV))
	assert.Equal(t, "/var/log/hccl_activity.csv.4", filenameForRank("/var/log", "hccl_activity", 4, FormatCSV))
}
