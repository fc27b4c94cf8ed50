package profiler

import "context"

// Interpreter is the boundary between the pure-Go profiling logic above
// and whatever actually drives call/return notifications. The real
// implementation (CPythonInterpreter in cpython.go) requires cgo and
// CPython's C API and cannot be exercised in a plain `go test`; tests
// and any non-CPython embedder use FakeInterpreter / a hand-rolled
// implementation instead.
//
// This mirrors the teacher's internal/interfaces/backend.go split: pull
// the platform-specific surface behind an interface so the rest of the
// module doesn't need to depend on it to build or test.
type Interpreter interface {
	// ResolveSelector evaluates selector against the live interpreter and
	// returns its code-object address and whether it is a native
	// (non-Python) callable. Grounded on pytorch_tracing.c's
	// runPyTorchCodeGetAddress, which follows __wrapped__ chains via
	// dynamic exec of the dotted selector path.
	ResolveSelector(ctx context.Context, selector string) (address uint64, isNative bool, err error)

	// RegisterProfiler installs cb as the interpreter's profile callback
	// on every live thread state (PyEval_SetProfile, once per
	// PyThreadState, per spec.md §4.D's registration protocol).
	RegisterProfiler(cb ProfileCallback) error

	// RegisterGC installs cb into the interpreter's gc.callbacks list.
	RegisterGC(cb GCCallback) error

	// CaptureStack returns up to constants.MaxStackDepth frames for the
	// currently executing call, innermost (currently executing) frame first.
	CaptureStack() []Frame
}

// ProfileCallback receives a code-object address and whether this
// invocation is a call (true) or return (false) event.
type ProfileCallback func(address uint64, isCall bool)

// GCCallback receives the two-argument GC notification convention:
// phase is "start" or "stop"; for "stop", collected/uncollectable carry
// the cycle's counts (-1 if the interpreter didn't report them).
type GCCallback func(phase string, collected, uncollectable int32)
