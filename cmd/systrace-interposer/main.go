// Command systrace-interposer is built with -buildmode=c-shared and
// LD_PRELOAD'd ahead of libascend_hal.so. It exports the four driver
// entrypoints the original C hook (cann_hook.c) interposes on, forwarding
// each call to the real symbol and then recording a MemEvent per
// successful call into internal/interposer.
//
// Grounded on original_source/sysTrace/src/cann/cann_hook.c: dlopen of
// libascend_hal.so + dlsym of the four hal* symbols, a pthread TLS key
// per OS thread holding that thread's in-flight batch with a destructor
// that flushes it on thread exit, and libunwind-based stack capture on
// every allocating call.
package main

/*
#cgo LDFLAGS: -ldl -lunwind -lunwind-generic
#define _GNU_SOURCE
#include <dlfcn.h>
#include <libunwind.h>
#include <pthread.h>
#include <stdint.h>
#include <stdlib.h>
#include <string.h>

typedef int drvError_t;

static void *hal_lib = NULL;

static void *hal_dlopen(char **errmsg) {
    if (hal_lib != NULL) {
        return hal_lib;
    }
    hal_lib = dlopen("libascend_hal.so", RTLD_LAZY);
    if (hal_lib == NULL) {
        *errmsg = dlerror();
    }
    return hal_lib;
}

static void *hal_dlsym(const char *name, char **errmsg) {
    void *lib = hal_lib;
    if (lib == NULL) {
        return NULL;
    }
    dlerror();
    void *sym = dlsym(lib, name);
    char *err = dlerror();
    if (err != NULL) {
        *errmsg = err;
    }
    return sym;
}

typedef drvError_t (*halMemAllocFunc_t)(void **pp, unsigned long long size, unsigned long long flag);
typedef drvError_t (*halMemFreeFunc_t)(void *pp);
typedef drvError_t (*halMemCreateFunc_t)(void **handle, size_t size, void *prop, uint64_t flag);
typedef drvError_t (*halMemReleaseFunc_t)(void *handle);

static drvError_t call_hal_mem_alloc(void *fn, void **pp, unsigned long long size, unsigned long long flag) {
    return ((halMemAllocFunc_t)fn)(pp, size, flag);
}
static drvError_t call_hal_mem_free(void *fn, void *pp) {
    return ((halMemFreeFunc_t)fn)(pp);
}
static drvError_t call_hal_mem_create(void *fn, void **handle, size_t size, void *prop, uint64_t flag) {
    return ((halMemCreateFunc_t)fn)(handle, size, prop, flag);
}
static drvError_t call_hal_mem_release(void *fn, void *handle) {
    return ((halMemReleaseFunc_t)fn)(handle);
}

// Per-OS-thread identity, used as the key into the Go-side Engine's
// batch map. pthread_self() is opaque on Linux/glibc but stable for the
// life of the thread, which is all the batching policy needs.
static unsigned long long current_thread_id(void) {
    return (unsigned long long)pthread_self();
}

extern void goThreadExitFlush(unsigned long long threadID);

static void thread_exit_destructor(void *arg) {
    goThreadExitFlush((unsigned long long)(uintptr_t)arg);
}

static pthread_key_t thread_key;
static pthread_once_t thread_key_once = PTHREAD_ONCE_INIT;

static void make_thread_key(void) {
    pthread_key_create(&thread_key, thread_exit_destructor);
}

// mark_thread_tracked registers the current thread's destructor exactly
// once per thread, storing this thread's own id (the same value
// current_thread_id() returns) as the TLS value so the destructor can
// hand it back to Go for FlushThreadExit without a second pthread_self()
// call racing the thread's teardown.
static void mark_thread_tracked(void) {
    pthread_once(&thread_key_once, make_thread_key);
    if (pthread_getspecific(thread_key) == NULL) {
        pthread_setspecific(thread_key, (void *)(uintptr_t)current_thread_id());
    }
}

#define MAX_STACK_FRAMES 32

typedef struct {
    unsigned long long addresses[MAX_STACK_FRAMES];
    int count;
} native_stack_t;

static void capture_native_stack(native_stack_t *out) {
    unw_cursor_t cursor;
    unw_context_t uc;
    unw_word_t ip;

    out->count = 0;
    unw_getcontext(&uc);
    unw_init_local(&cursor, &uc);
    while (out->count < MAX_STACK_FRAMES && unw_step(&cursor) > 0) {
        unw_get_reg(&cursor, UNW_REG_IP, &ip);
        out->addresses[out->count] = (unsigned long long)ip;
        out->count++;
    }
}

static const char *so_name_for_address(unsigned long long ip) {
    Dl_info info;
    if (dladdr((void *)(uintptr_t)ip, &info) && info.dli_fname != NULL) {
        const char *slash = strrchr(info.dli_fname, '/');
        return slash != NULL ? slash + 1 : info.dli_fname;
    }
    return "unknown";
}
*/
import "C"

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"unsafe"

	"github.com/systrace-go/systrace/internal/interposer"
	"github.com/systrace-go/systrace/internal/logging"
	"github.com/systrace-go/systrace/internal/stage"
)

// cStackCapturer implements interposer.StackCapturer over the cgo
// libunwind helper above; it lives in this package rather than
// internal/interposer because, like the dlopen/dlsym calls, it requires
// cgo.
type cStackCapturer struct{}

func (cStackCapturer) CaptureStack() []interposer.StackFrame {
	var native C.native_stack_t
	C.capture_native_stack(&native)

	frames := make([]interposer.StackFrame, 0, int(native.count))
	for i := 0; i < int(native.count); i++ {
		addr := uint64(native.addresses[i])
		soName := C.GoString(C.so_name_for_address(C.ulonglong(addr)))
		frames = append(frames, interposer.StackFrame{Address: addr, SoName: soName})
	}
	return frames
}

var (
	initOnce sync.Once
	engine   *interposer.Engine

	origAlloc, origFree, origCreate, origRelease unsafe.Pointer
)

func rank() int {
	if v := os.Getenv("RANK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

// dlsymOriginal is the dlsym func value handed to
// interposer.NewSymbolResolver; it is only used here to populate the
// four cached function pointers up front, since the hal* symbols have
// distinct C signatures and can't be called generically through a bare
// uintptr.
func dlsymOriginal(name string) (uintptr, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var errmsg *C.char
	sym := C.hal_dlsym(cname, &errmsg)
	if sym == nil {
		return 0, fmt.Errorf("systrace-interposer: dlsym %s: %s", name, C.GoString(errmsg))
	}
	return uintptr(sym), nil
}

func ensureInit() error {
	var initErr error
	initOnce.Do(func() {
		var errmsg *C.char
		if C.hal_dlopen(&errmsg) == nil {
			initErr = fmt.Errorf("systrace-interposer: dlopen libascend_hal.so: %s", C.GoString(errmsg))
			return
		}

		resolver := interposer.NewSymbolResolver(dlsymOriginal)
		for name, dst := range map[string]*unsafe.Pointer{
			"halMemAlloc":   &origAlloc,
			"halMemFree":    &origFree,
			"halMemCreate":  &origCreate,
			"halMemRelease": &origRelease,
		} {
			addr, err := resolver.Resolve(name)
			if err != nil {
				initErr = err
				return
			}
			*dst = unsafe.Pointer(addr)
		}

		writer := interposer.NewWriter(".", os.Getpid(), rank())
		engine = interposer.NewEngine(writer, stage.Global, cStackCapturer{})
		logging.Info("systrace-interposer initialized", "rank", rank(), "pid", os.Getpid())
	})
	return initErr
}

//export halMemAlloc
func halMemAlloc(pp *unsafe.Pointer, size, flag C.ulonglong) C.int {
	if err := ensureInit(); err != nil {
		logging.Error("interposer init failed", "error", err)
	}
	if origAlloc == nil {
		return -1
	}
	C.mark_thread_tracked()

	ret := C.call_hal_mem_alloc(origAlloc, (*unsafe.Pointer)(pp), size, flag)
	if ret == 0 && pp != nil && *pp != nil {
		engine.RecordAlloc(uint64(C.current_thread_id()), uint64(uintptr(*pp)), uint64(size))
	}
	return ret
}

//export halMemFree
func halMemFree(pp unsafe.Pointer) C.int {
	if err := ensureInit(); err != nil {
		logging.Error("interposer init failed", "error", err)
	}
	if origFree == nil {
		return -1
	}
	C.mark_thread_tracked()

	ret := C.call_hal_mem_free(origFree, pp)
	if ret == 0 && pp != nil {
		engine.RecordFree(uint64(C.current_thread_id()), uint64(uintptr(pp)))
	}
	return ret
}

//export halMemCreate
func halMemCreate(handle *unsafe.Pointer, size C.size_t, prop unsafe.Pointer, flag C.ulonglong) C.int {
	if err := ensureInit(); err != nil {
		logging.Error("interposer init failed", "error", err)
	}
	if origCreate == nil {
		return -1
	}
	C.mark_thread_tracked()

	ret := C.call_hal_mem_create(origCreate, (*unsafe.Pointer)(handle), size, prop, flag)
	if ret == 0 && handle != nil && *handle != nil {
		engine.RecordAlloc(uint64(C.current_thread_id()), uint64(uintptr(*handle)), uint64(size))
	}
	return ret
}

//export halMemRelease
func halMemRelease(handle unsafe.Pointer) C.int {
	if err := ensureInit(); err != nil {
		logging.Error("interposer init failed", "error", err)
	}
	if origRelease == nil {
		return -1
	}
	C.mark_thread_tracked()

	ret := C.call_hal_mem_release(origRelease, handle)
	if ret == 0 && handle != nil {
		engine.RecordFree(uint64(C.current_thread_id()), uint64(uintptr(handle)))
	}
	return ret
}

//export goThreadExitFlush
func goThreadExitFlush(threadID C.ulonglong) {
	if engine != nil {
		engine.FlushThreadExit(uint64(threadID))
	}
}

func main() {}
