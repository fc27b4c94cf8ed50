package profiler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// FakeInterpreter is an in-process stand-in for a real CPython binding.
// Selectors resolve to a deterministically assigned address (no module
// actually gets imported); call/return and GC events are driven
// synthetically by test code via Call/Return/GC. Used by this module's
// own tests and by any embedder exercising the engine without a Python
// process attached.
type FakeInterpreter struct {
	mu        sync.Mutex
	nextAddr  uint64
	addresses map[string]uint64
	profileCb ProfileCallback
	gcCb      GCCallback
	stack     atomic.Value // []Frame
}

// NewFakeInterpreter returns a ready-to-use fake.
func NewFakeInterpreter() *FakeInterpreter {
	f := &FakeInterpreter{
		nextAddr:  0x1000,
		addresses: make(map[string]uint64),
	}
	f.stack.Store([]Frame{})
	return f
}

func (f *FakeInterpreter) ResolveSelector(_ context.Context, selector string) (uint64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if addr, ok := f.addresses[selector]; ok {
		return addr, selector == "GC", nil
	}
	if selector == "" {
		return 0, false, fmt.Errorf("profiler: empty selector")
	}
	addr := f.nextAddr
	f.nextAddr += 8
	f.addresses[selector] = addr
	return addr, selector == "GC", nil
}

func (f *FakeInterpreter) RegisterProfiler(cb ProfileCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileCb = cb
	return nil
}

func (f *FakeInterpreter) RegisterGC(cb GCCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gcCb = cb
	return nil
}

func (f *FakeInterpreter) SetStack(frames []Frame) {
	f.stack.Store(frames)
}

func (f *FakeInterpreter) CaptureStack() []Frame {
	return f.stack.Load().([]Frame)
}

// Call drives a synthetic call event for selector through the installed
// profiler callback.
func (f *FakeInterpreter) Call(selector string) {
	f.mu.Lock()
	addr := f.addresses[selector]
	cb := f.profileCb
	f.mu.Unlock()
	if cb != nil {
		cb(addr, true)
	}
}

// Return drives a synthetic return event for selector.
func (f *FakeInterpreter) Return(selector string) {
	f.mu.Lock()
	addr := f.addresses[selector]
	cb := f.profileCb
	f.mu.Unlock()
	if cb != nil {
		cb(addr, false)
	}
}

// GC drives a synthetic GC phase notification.
func (f *FakeInterpreter) GC(phase string, collected, uncollectable int32) {
	f.mu.Lock()
	cb := f.gcCb
	f.mu.Unlock()
	if cb != nil {
		cb(phase, collected, uncollectable)
	}
}
