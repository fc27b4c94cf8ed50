//go:build cgo && linux

package profiler

/*
#include <Python.h>

extern PyObject *goGCCallbackTrampoline(PyObject *self, PyObject *args);

static PyMethodDef gc_callback_def = {
    "systrace_gc_callback", goGCCallbackTrampoline, METH_VARARGS, NULL
};

static PyObject *make_gc_callback(void) {
    return PyCFunction_New(&gc_callback_def, NULL);
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// registerGCCallback appends a native callable into gc.callbacks, per
// spec.md §4.D's GC special case and
// original_source/sysTrace/src/trace/python/pytorch_tracing.c's
// systrace_register_gc. The callable receives the interpreter's
// two-argument convention (phase, info) on every GC phase transition;
// Go's side filters to "start"/"stop" and extracts collected/
// uncollectable from info when present.
func registerGCCallback() error {
	gstate := C.PyGILState_Ensure()
	defer C.PyGILState_Release(gstate)

	cb := C.make_gc_callback()
	if cb == nil {
		C.PyErr_Clear()
		return fmt.Errorf("profiler: failed to create gc callback object")
	}
	defer C.Py_DecRef(cb)

	cMod := C.CString("gc")
	defer C.free(unsafe.Pointer(cMod))
	gcMod := C.PyImport_ImportModule(cMod)
	if gcMod == nil {
		C.PyErr_Clear()
		return fmt.Errorf("profiler: failed to import gc module")
	}
	defer C.Py_DecRef(gcMod)

	cAttr := C.CString("callbacks")
	defer C.free(unsafe.Pointer(cAttr))
	callbacks := C.PyObject_GetAttrString(gcMod, cAttr)
	if callbacks == nil {
		C.PyErr_Clear()
		return fmt.Errorf("profiler: gc.callbacks not found")
	}
	defer C.Py_DecRef(callbacks)

	if C.PyList_Append(callbacks, cb) != 0 {
		C.PyErr_Clear()
		return fmt.Errorf("profiler: failed to append to gc.callbacks")
	}
	return nil
}

//export goGCCallbackTrampoline
func goGCCallbackTrampoline(self, args *C.PyObject) *C.PyObject {
	var phaseObj, infoObj *C.PyObject
	if C.PyArg_ParseTuple(args, C.CString("OO"), &phaseObj, &infoObj) == 0 {
		C.PyErr_Clear()
		return noneResult()
	}

	phase := pyUnicodeToString(phaseObj)

	collected, uncollectable := int32(-1), int32(-1)
	if infoObj != nil && C.PyDict_Check(infoObj) != 0 {
		collected = dictGetInt(infoObj, "collected", -1)
		uncollectable = dictGetInt(infoObj, "uncollectable", -1)
	}

	if active != nil {
		active.mu.Lock()
		cb := active.gcCb
		active.mu.Unlock()
		if cb != nil {
			cb(phase, collected, uncollectable)
		}
	}
	return noneResult()
}

func dictGetInt(dict *C.PyObject, key string, def int32) int32 {
	cKey := C.CString(key)
	defer C.free(unsafe.Pointer(cKey))
	v := C.PyDict_GetItemString(dict, cKey)
	if v == nil {
		return def
	}
	return int32(C.PyLong_AsLong(v))
}

func noneResult() *C.PyObject {
	C.Py_IncRef(C.Py_None)
	return C.Py_None
}
