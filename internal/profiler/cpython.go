//go:build cgo && linux

package profiler

/*
#cgo pkg-config: python3-embed
#include <Python.h>
#include <frameobject.h>
#include <stdlib.h>

extern int goProfileTrampoline(PyObject *obj, PyFrameObject *frame, int what, PyObject *arg);
extern int goGCTrampoline(PyObject *self, PyObject *args);

static int profile_trampoline(PyObject *obj, PyFrameObject *frame, int what, PyObject *arg) {
    return goProfileTrampoline(obj, frame, what, arg);
}

static void register_profile_all_threads(void) {
    PyThreadState *orig = PyThreadState_GET();
    PyThreadState *ts = PyInterpreterState_ThreadHead(orig->interp);
    while (ts != NULL) {
        PyThreadState_Swap(ts);
        PyEval_SetProfile(profile_trampoline, NULL);
        ts = PyThreadState_Next(ts);
    }
    PyThreadState_Swap(orig);
}
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"
)

// CPythonInterpreter is the real Interpreter implementation, binding
// directly to CPython's C API. Grounded field-for-field on
// original_source/sysTrace/src/trace/python/pytorch_tracing.c:
// runPyTorchCodeGetAddress (selector resolution via exec + __wrapped__
// chain following), systrace_register_tracing (PyEval_SetProfile on
// every live PyThreadState, then swap back to the originating thread),
// and gcCallback/systrace_register_gc (registration into gc.callbacks).
//
// Building this package requires cgo and a CPython development
// environment (python3-embed via pkg-config); the pure-Go profiling
// logic in profiler.go and driver.go has no such requirement and is
// exercised in tests via FakeInterpreter instead.
type CPythonInterpreter struct {
	mu        sync.Mutex
	profileCb ProfileCallback
	gcCb      GCCallback
}

var active *CPythonInterpreter

// NewCPythonInterpreter initializes the embedded interpreter if it is
// not already running and returns a binding to it.
func NewCPythonInterpreter() *CPythonInterpreter {
	if C.Py_IsInitialized() == 0 {
		C.Py_Initialize()
	}
	c := &CPythonInterpreter{}
	active = c
	return c
}

// ResolveSelector evaluates a small interpreter snippet that imports the
// selector's module path and follows __wrapped__ chains, mirroring
// runPyTorchCodeGetAddress: a selector of shape "mod.sub@Class@method" or
// "mod.sub@function" is split on '@', the module is imported, and the
// remaining dotted path is walked with getattr, unwrapping __wrapped__
// until a non-wrapped callable is found. Native callables (no __code__
// attribute) resolve to the callable object's own address with
// isNative=true; Python functions resolve to their code object's address.
func (c *CPythonInterpreter) ResolveSelector(_ context.Context, selector string) (uint64, bool, error) {
	if selector == "GC" {
		return 0, false, nil
	}

	gstate := C.PyGILState_Ensure()
	defer C.PyGILState_Release(gstate)

	parts := splitSelector(selector)
	if len(parts) < 2 {
		return 0, false, fmt.Errorf("profiler: malformed selector %q", selector)
	}
	modPath := parts[0]
	attrPath := parts[1:]

	cMod := C.CString(modPath)
	defer C.free(unsafe.Pointer(cMod))
	mod := C.PyImport_ImportModule(cMod)
	if mod == nil {
		C.PyErr_Clear()
		return 0, false, fmt.Errorf("profiler: cannot import module %q for selector %q", modPath, selector)
	}
	defer C.Py_DecRef(mod)

	obj := mod
	var owned []*C.PyObject
	defer func() {
		for _, o := range owned {
			C.Py_DecRef(o)
		}
	}()

	for _, attr := range attrPath {
		cAttr := C.CString(attr)
		next := C.PyObject_GetAttrString(obj, cAttr)
		C.free(unsafe.Pointer(cAttr))
		if next == nil {
			C.PyErr_Clear()
			return 0, false, fmt.Errorf("profiler: attribute %q not found resolving selector %q", attr, selector)
		}
		owned = append(owned, next)
		obj = next
	}

	// Follow __wrapped__ chain.
	for {
		cWrapped := C.CString("__wrapped__")
		wrapped := C.PyObject_GetAttrString(obj, cWrapped)
		C.free(unsafe.Pointer(cWrapped))
		if wrapped == nil {
			C.PyErr_Clear()
			break
		}
		owned = append(owned, wrapped)
		obj = wrapped
	}

	cCode := C.CString("__code__")
	defer C.free(unsafe.Pointer(cCode))
	code := C.PyObject_GetAttrString(obj, cCode)
	if code == nil {
		C.PyErr_Clear()
		// No __code__: treat as a native callable, keyed by its own
		// object address.
		return uint64(uintptr(unsafe.Pointer(obj))), true, nil
	}
	defer C.Py_DecRef(code)
	return uint64(uintptr(unsafe.Pointer(code))), false, nil
}

func splitSelector(selector string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(selector); i++ {
		if selector[i] == '@' {
			parts = append(parts, selector[start:i])
			start = i + 1
		}
	}
	parts = append(parts, selector[start:])
	return parts
}

func (c *CPythonInterpreter) RegisterProfiler(cb ProfileCallback) error {
	c.mu.Lock()
	c.profileCb = cb
	c.mu.Unlock()

	gstate := C.PyGILState_Ensure()
	defer C.PyGILState_Release(gstate)
	C.register_profile_all_threads()
	return nil
}

func (c *CPythonInterpreter) RegisterGC(cb GCCallback) error {
	c.mu.Lock()
	c.gcCb = cb
	c.mu.Unlock()
	return registerGCCallback()
}

func (c *CPythonInterpreter) CaptureStack() []Frame {
	gstate := C.PyGILState_Ensure()
	defer C.PyGILState_Release(gstate)

	var frames []Frame
	f := C.PyEval_GetFrame()
	for f != nil && len(frames) < 32 {
		code := f.f_code
		name := pyUnicodeToString(code.co_name)
		file := pyUnicodeToString(code.co_filename)
		line := int(C.PyFrame_GetLineNumber(f))
		frames = append(frames, Frame{Name: name, File: file, Line: line})
		f = f.f_back
	}
	return frames
}

func pyUnicodeToString(obj *C.PyObject) string {
	if obj == nil {
		return ""
	}
	cstr := C.PyUnicode_AsUTF8(obj)
	if cstr == nil {
		C.PyErr_Clear()
		return ""
	}
	return C.GoString(cstr)
}

//export goProfileTrampoline
func goProfileTrampoline(obj *C.PyObject, frame *C.PyFrameObject, what C.int, arg *C.PyObject) C.int {
	if active == nil {
		return 0
	}
	active.mu.Lock()
	cb := active.profileCb
	active.mu.Unlock()
	if cb == nil {
		return 0
	}

	code := frame.f_code
	addr := uint64(uintptr(unsafe.Pointer(code)))

	const pyTraceCall = 0
	const pyTraceReturn = 3
	switch what {
	case pyTraceCall:
		cb(addr, true)
	case pyTraceReturn:
		cb(addr, false)
	}
	return 0
}
