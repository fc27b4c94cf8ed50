package profiler

import (
	"context"
	"fmt"
	"sync"

	"github.com/systrace-go/systrace/internal/logging"
	"github.com/systrace-go/systrace/internal/traceentry"
)

// Driver wires an Interpreter to a Profiler: it resolves the configured
// selectors at Start, installs the profile/GC callbacks, and matches
// call events to their return by a per-address LIFO stack (call/return
// nesting within one interpreter thread is always well-bracketed; the
// profiler mutex inside Profiler already serializes concurrent threads).
type Driver struct {
	interp    Interpreter
	registry  *Registry
	profiler  *Profiler

	mu     sync.Mutex
	stacks map[uint64][]*traceentry.Entry
	gcOpen *traceentry.Entry
}

// NewDriver returns a Driver over the given Interpreter, Registry and
// Profiler.
func NewDriver(interp Interpreter, registry *Registry, profiler *Profiler) *Driver {
	return &Driver{
		interp:   interp,
		registry: registry,
		profiler: profiler,
		stacks:   make(map[uint64][]*traceentry.Entry),
	}
}

// Start resolves every selector (plus the fixed "GC" selector) and
// registers the profiler/GC callbacks, per spec.md §4.D's registration
// protocol. Selector resolution failures are logged and that selector is
// skipped; Start only fails outright if the profiler/GC registration
// itself fails.
func (d *Driver) Start(ctx context.Context, selectors []string) error {
	all := append([]string{"GC"}, selectors...)
	for _, sel := range all {
		addr, isNative, err := d.interp.ResolveSelector(ctx, sel)
		if err != nil {
			logging.Warn("selector unresolvable, skipping", "selector", sel, "error", err)
			continue
		}
		d.registry.Register(sel, addr, isNative)
	}

	if err := d.interp.RegisterProfiler(d.onProfile); err != nil {
		return fmt.Errorf("profiler: register profile callback: %w", err)
	}
	if err := d.interp.RegisterGC(d.onGC); err != nil {
		return fmt.Errorf("profiler: register gc callback: %w", err)
	}
	return nil
}

func (d *Driver) onProfile(address uint64, isCall bool) {
	tf := d.registry.Lookup(address)
	if tf == nil {
		return
	}
	if isCall {
		frames := d.interp.CaptureStack()
		entry := d.profiler.OnCall(tf, frames)
		d.mu.Lock()
		d.stacks[address] = append(d.stacks[address], entry)
		d.mu.Unlock()
		return
	}

	d.mu.Lock()
	stack := d.stacks[address]
	var entry *traceentry.Entry
	if n := len(stack); n > 0 {
		entry = stack[n-1]
		d.stacks[address] = stack[:n-1]
	}
	d.mu.Unlock()

	if entry == nil {
		// Out-of-order return with no matching call: tolerated per
		// spec.md §4.D, nothing to finalize.
		return
	}
	d.profiler.OnReturn(tf, entry)
}

func (d *Driver) onGC(phase string, collected, uncollectable int32) {
	switch phase {
	case "start":
		d.mu.Lock()
		d.gcOpen = d.profiler.OnGCStart()
		d.mu.Unlock()
	case "stop":
		d.mu.Lock()
		entry := d.gcOpen
		d.gcOpen = nil
		d.mu.Unlock()
		if entry != nil {
			d.profiler.OnGCStop(entry, collected, uncollectable)
		}
	}
}
