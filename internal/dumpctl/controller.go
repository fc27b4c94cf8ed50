// Package dumpctl implements the periodic dump controller (component
// I): a single background worker that, on a fixed cadence, atomically
// drains every tracked function's buffer pool, assembles a record tree
// tagged with rank identity, and writes it to disk.
//
// Grounded on original_source/sysTrace/src/trace/systrace_manager.cc's
// SysTrace::eventPollerMain/PyTorchTrace::dumpPyTorchTracing.
package dumpctl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
	"unsafe"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sys/unix"

	"github.com/systrace-go/systrace/internal/constants"
	"github.com/systrace-go/systrace/internal/logging"
	"github.com/systrace-go/systrace/internal/profiler"
	"github.com/systrace-go/systrace/internal/traceentry"
)

// State is the controller's lifecycle state, per spec.md §4.I's state
// machine: New -start()-> Running -stop()-> Draining -drain_done-> Stopped.
type State int

const (
	StateNew State = iota
	StateRunning
	StateDraining
	StateStopped
)

// TriggerFunc decides whether a dump should fire on this check. The
// zero-value Controller defaults to AlwaysTrigger, matching
// should_trigger()'s documented default of "returns true".
type TriggerFunc func() bool

// AlwaysTrigger is the default should_trigger() behavior.
func AlwaysTrigger() bool { return true }

// SwitchTrigger adapts a Switch into a TriggerFunc, the "extended
// variant" spec.md §4.I leaves as configurable.
func SwitchTrigger(sw *Switch) TriggerFunc {
	return func() bool { return sw.ShouldTrigger(time.Now()) }
}

// Controller owns the poll loop and dump procedure.
type Controller struct {
	profiler  *profiler.Profiler
	registry  *profiler.Registry
	rank      int
	worldSize int
	comm      string
	dir       string

	// Trigger decides, every constants.DumpTriggerEvery iterations,
	// whether to perform a dump. Defaults to AlwaysTrigger.
	Trigger TriggerFunc

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	stopped chan struct{}
}

// Config configures a new Controller.
type Config struct {
	Profiler  *profiler.Profiler
	Registry  *profiler.Registry
	Rank      int
	WorldSize int
	Comm      string // job name; falls back to "interactive_session" if empty
	Dir       string // output directory; falls back to constants.DefaultTimelineDir
	Trigger   TriggerFunc
}

// New returns a Controller in state New; it does not start the worker.
func New(cfg Config) *Controller {
	comm := cfg.Comm
	if comm == "" {
		comm = "interactive_session"
	}
	dir := cfg.Dir
	if dir == "" {
		dir = constants.DefaultTimelineDir
	}
	trigger := cfg.Trigger
	if trigger == nil {
		trigger = AlwaysTrigger
	}
	return &Controller{
		profiler:  cfg.Profiler,
		registry:  cfg.Registry,
		rank:      cfg.Rank,
		worldSize: cfg.WorldSize,
		comm:      comm,
		dir:       dir,
		Trigger:   trigger,
		state:     StateNew,
	}
}

// Start launches the worker goroutine, transitioning New -> Running.
// Calling Start on an already-started Controller is a no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateNew {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.stopped = make(chan struct{})
	c.state = StateRunning
	go c.run(ctx)
}

// Stop signals the worker to perform one final dump and exit, blocking
// until it has. Idempotent: a second Stop call is a no-op, matching
// spec.md §4.I's idempotent stop() requirement.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return
	}
	c.state = StateDraining
	cancel := c.cancel
	stopped := c.stopped
	c.mu.Unlock()

	cancel()
	<-stopped

	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.stopped)

	// pthread_setname_np has no portable Go equivalent; PR_SET_NAME is
	// the direct Linux translation and applies to the calling OS thread,
	// so this goroutine must stay locked to one for the rest of its life.
	runtime.LockOSThread()
	setThreadName("systrace_poller")

	var loopCount uint64
	ticker := time.NewTicker(constants.DumpPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.dump()
			return
		case <-ticker.C:
			loopCount++
			if loopCount%constants.DumpTriggerEvery == 0 && c.Trigger() {
				c.dump()
			}
		}
	}
}

// setThreadName sets the calling OS thread's comm name via prctl(2),
// truncated to 15 bytes plus the terminating NUL (TASK_COMM_LEN).
func setThreadName(name string) {
	if len(name) > 15 {
		name = name[:15]
	}
	b := append([]byte(name), 0)
	_ = unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&b[0])), 0, 0, 0)
}

func (c *Controller) dump() {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		logging.Error("dump controller: failed to create output directory", "dir", c.dir, "error", err)
		return
	}

	trace := PyTorchTrace{Rank: int32(c.rank), Comm: c.comm}
	for _, tag := range c.profiler.Tags() {
		trace.Stages = append(trace.Stages, c.drainTag(tag)...)
	}

	path := filepath.Join(c.dir, fmt.Sprintf("%05d-%05d.timeline", c.rank, c.worldSize))
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(trace)
	if err != nil {
		logging.Error("dump controller: failed to serialize trace", "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logging.Error("dump controller: failed to write trace file", "path", path, "error", err)
		return
	}
	logging.Debug("dump controller: wrote trace file", "path", path, "stages", len(trace.Stages))
}

func (c *Controller) drainTag(tag int) []Stage {
	var selector string
	if tf := c.registry.LookupByTag(tag); tf != nil {
		selector = tf.Selector
	}

	var stages []Stage
	segments := make([]*traceentry.Segment, 0, 4)

	// Ready segments are older than the in-flight partial one; draining
	// them first keeps emitted stages in chronological order.
	segments = append(segments, c.profiler.Pool(tag).DrainReady()...)
	if partial := c.profiler.SwapCurrent(tag); partial != nil {
		segments = append(segments, partial)
	}

	for _, seg := range segments {
		for i := 0; i < seg.Cursor; i++ {
			e := &seg.Entries[i]
			if e.Undumpable() {
				continue
			}
			stages = append(stages, stageFromEntry(e, selector))
		}
		c.profiler.Pool(tag).ReturnEmpty(seg)
	}
	return stages
}
