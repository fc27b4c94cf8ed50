// Package sdktrace implements the accelerator-SDK ingestor and writer
// (components G and H): the buffer-request/complete callback pair the
// vendor tracing SDK drives directly, and a background writer draining
// accumulated markers to a CSV or JSON file on a fixed interval.
//
// Grounded on original_source/src/mspti/mspti_tracker.{hpp,cpp} (the
// buffer lifecycle) and original_source/sysTrace/src/mspti/
// json_file_writer.h (both the CSV and the JSON output variants).
package sdktrace

// SourceKind distinguishes a marker captured on the host CPU from one
// captured on an accelerator device, per mspti_activity.h's
// msptiActivitySourceKind.
type SourceKind uint8

const (
	SourceHost SourceKind = iota
	SourceDevice
)

// ObjectID mirrors the msptiObjectId union: for a host marker, ProcessID/
// ThreadID are populated; for a device marker, DeviceID/StreamID are.
// Both pairs are kept (rather than modeled as a Go union) since callers
// read whichever applies to SourceKind without an unsafe cast.
type ObjectID struct {
	ProcessID uint32
	ThreadID  uint32
	DeviceID  uint32
	StreamID  uint32
}

// Marker is one MSPTI_ACTIVITY_KIND_MARKER record, field-for-field from
// msptiActivityMarker.
type Marker struct {
	Kind       uint32
	Flag       uint32
	SourceKind SourceKind
	Timestamp  uint64
	ID         uint64
	ObjectID   ObjectID
	Name       string
	Domain     string
}
