//go:build cgo && linux

package sdktrace

/*
#cgo CFLAGS: -I/usr/local/Ascend/ascend-toolkit/latest/include
#cgo LDFLAGS: -L/usr/local/Ascend/ascend-toolkit/latest/lib64 -lmspti
#include <mspti.h>
#include <stdlib.h>

extern void goBufferRequest(uint8_t **buffer, size_t *size, size_t *maxNumRecords);
extern void goBufferComplete(uint8_t *buffer, size_t size, size_t validSize);

static void buffer_request_trampoline(uint8_t **buffer, size_t *size, size_t *maxNumRecords) {
    goBufferRequest(buffer, size, maxNumRecords);
}
static void buffer_complete_trampoline(uint8_t *buffer, size_t size, size_t validSize) {
    goBufferComplete(buffer, size, validSize);
}

static msptiResult subscribe_and_enable(msptiSubscriberHandle *sub) {
    msptiResult r = msptiSubscribe(sub, NULL, NULL);
    if (r != MSPTI_SUCCESS) {
        return r;
    }
    r = msptiActivityRegisterCallbacks(buffer_request_trampoline, buffer_complete_trampoline);
    if (r != MSPTI_SUCCESS) {
        return r;
    }
    return msptiActivityEnable(MSPTI_ACTIVITY_KIND_MARKER);
}

static void disable_and_unsubscribe(msptiSubscriberHandle sub) {
    msptiActivityDisable(MSPTI_ACTIVITY_KIND_MARKER);
    msptiActivityFlushAll(1);
    msptiUnsubscribe(sub);
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

// VendorDecoder implements RecordDecoder by calling the real
// msptiActivityGetNextRecord loop, grounded on
// mspti_tracker.cpp's UserBufferComplete: drain records until
// MSPTI_ERROR_MAX_LIMIT_REACHED, keeping only MSPTI_ACTIVITY_KIND_MARKER
// records.
type VendorDecoder struct{}

func (VendorDecoder) Decode(buf []byte, validSize int) []Marker {
	if len(buf) == 0 || validSize <= 0 {
		return nil
	}
	var markers []Marker
	bufPtr := (*C.uint8_t)(unsafe.Pointer(&buf[0]))
	var record *C.msptiActivity
	for {
		status := C.msptiActivityGetNextRecord(bufPtr, C.size_t(validSize), &record)
		if status == C.MSPTI_ERROR_MAX_LIMIT_REACHED {
			break
		}
		if status != C.MSPTI_SUCCESS {
			break
		}
		if record.kind == C.MSPTI_ACTIVITY_KIND_MARKER {
			markers = append(markers, markerFromC((*C.msptiActivityMarker)(unsafe.Pointer(record))))
		}
	}
	return markers
}

func markerFromC(a *C.msptiActivityMarker) Marker {
	m := Marker{
		Kind:       uint32(a.kind),
		Flag:       uint32(a.flag),
		SourceKind: SourceKind(a.sourceKind),
		Timestamp:  uint64(a.timestamp),
		ID:         uint64(a.id),
		Name:       cGoString(a.name),
		Domain:     cGoString(a.domain),
	}
	// msptiObjectId is a C union of two {uint32,uint32} structs (pt and
	// ds); cgo exposes unions as an opaque byte array, so both halves are
	// read as a flat pair of uint32 words rather than through named
	// union-member access.
	words := (*[2]C.uint32_t)(unsafe.Pointer(&a.objectId))
	if m.SourceKind == SourceHost {
		m.ObjectID.ProcessID = uint32(words[0])
		m.ObjectID.ThreadID = uint32(words[1])
	} else {
		m.ObjectID.DeviceID = uint32(words[0])
		m.ObjectID.StreamID = uint32(words[1])
	}
	return m
}

func cGoString(s *C.char) string {
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

// VendorSubscription owns the live msptiSubscribe/RegisterCallbacks/
// Enable lifecycle and routes the C trampolines back into an Ingestor.
type VendorSubscription struct {
	sub C.msptiSubscriberHandle
}

var (
	activeMu       sync.Mutex
	activeIngestor *Ingestor
)

// Subscribe starts the vendor SDK's marker activity stream, registering
// ingestor to receive every completed buffer. Only one subscription may
// be active per process, matching tracker_initialized's single-instance
// guard in mspti_tracker.hpp.
func Subscribe(ingestor *Ingestor) (*VendorSubscription, error) {
	activeMu.Lock()
	activeIngestor = ingestor
	activeMu.Unlock()

	var sub C.msptiSubscriberHandle
	if status := C.subscribe_and_enable(&sub); status != C.MSPTI_SUCCESS {
		return nil, fmt.Errorf("sdktrace: msptiSubscribe/Enable failed: status=%d", int(status))
	}
	return &VendorSubscription{sub: sub}, nil
}

// Close disables and unsubscribes, flushing any buffers still in
// flight, mirroring MSPTITracker's destructor.
func (v *VendorSubscription) Close() {
	C.disable_and_unsubscribe(v.sub)
}

//export goBufferRequest
func goBufferRequest(buffer **C.uint8_t, size *C.size_t, maxNumRecords *C.size_t) {
	activeMu.Lock()
	ig := activeIngestor
	activeMu.Unlock()
	if ig == nil {
		*size = 0
		return
	}
	buf, sz, maxRecords := ig.RequestBuffer()
	*buffer = (*C.uint8_t)(C.CBytes(buf.Bytes))
	*size = C.size_t(sz)
	*maxNumRecords = C.size_t(maxRecords)
}

//export goBufferComplete
func goBufferComplete(buffer *C.uint8_t, size, validSize C.size_t) {
	activeMu.Lock()
	ig := activeIngestor
	activeMu.Unlock()
	if ig != nil && validSize > 0 {
		goBytes := C.GoBytes(unsafe.Pointer(buffer), C.int(size))
		ig.CompleteBuffer(&Buffer{Bytes: goBytes}, int(validSize))
	}
	C.free(unsafe.Pointer(buffer))
}
