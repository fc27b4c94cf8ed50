// Package manager implements the top-level engine lifecycle (component
// J): bringing up rank config, the interpreter profiler, the
// accelerator-SDK ingestor, the startup barrier, and the dump controller
// in the order the engine depends on, and tearing them down in reverse.
//
// Grounded on original_source/src/trace/systrace_manager.cc's
// SysTrace::startWork/PyTorchTrace::initSingleton for ordering, and
// ehrlich-b-go-ublk/backend.go's CreateAndServe/StopAndDelete for the
// Go-side lifecycle function shape.
package manager

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/systrace-go/systrace/internal/barrier"
	"github.com/systrace-go/systrace/internal/constants"
	"github.com/systrace-go/systrace/internal/dumpctl"
	"github.com/systrace-go/systrace/internal/envconfig"
	"github.com/systrace-go/systrace/internal/logging"
	"github.com/systrace-go/systrace/internal/profiler"
	"github.com/systrace-go/systrace/internal/sdktrace"
	"github.com/systrace-go/systrace/internal/stage"
)

// State is the engine's lifecycle state.
type State int

const (
	StateNew State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config configures a Manager. Decoder and Interpreter must be supplied
// by the caller: real deployments wire sdktrace.VendorDecoder{} and
// profiler.NewCPythonInterpreter() (both built with the cgo && linux
// tag); tests wire sdktrace.FakeDecoder{...} and
// profiler.NewFakeInterpreter().
type Config struct {
	Decoder     sdktrace.RecordDecoder
	Interpreter profiler.Interpreter

	MarkerFormat  sdktrace.Format
	BarrierName   string
	SwitchTrigger bool // use dumpctl.SwitchTrigger instead of AlwaysTrigger
	TimelineDir   string
}

// Manager owns every component instance for one rank's engine and its
// lifecycle state.
type Manager struct {
	cfg     Config
	RankCtx *envconfig.RankCtx

	Registry *profiler.Registry
	Profiler *profiler.Profiler
	Stage    *stage.Counter
	Driver   *profiler.Driver
	Barrier  *barrier.Barrier
	Writer   *sdktrace.Writer
	Ingestor *sdktrace.Ingestor
	Switch   *dumpctl.Switch
	Dump     *dumpctl.Controller

	state State
}

// Start brings every component up in dependency order and returns a
// running Manager, or the first error encountered (nothing partially
// started is left running; Start cleans up on failure).
//
// Rank config loading and default-logger initialization run concurrently
// via errgroup; the interpreter profiler, accelerator-SDK ingestor,
// barrier rendezvous, and dump controller start strictly after, since the
// original's init order is load-bearing there (interpreter registration
// before the SDK ingestor before the startup barrier before the dump
// controller) — see SPEC_FULL.md §4.J.
//
// The driver interposer (component F) is not started here: it loads into
// the host process as a separate cgo c-shared artifact
// (cmd/systrace-interposer) via the accelerator driver's own dynamic
// loader, not as a goroutine this Manager supervises.
func Start(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Decoder == nil {
		return nil, fmt.Errorf("manager: Config.Decoder must be set")
	}
	if cfg.Interpreter == nil {
		return nil, fmt.Errorf("manager: Config.Interpreter must be set")
	}

	m := &Manager{cfg: cfg, state: StateNew}

	var rankCtx *envconfig.RankCtx
	var st stage.Counter
	registry := profiler.NewRegistry()

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		rankCtx = envconfig.LoadRankCtx()
		return nil
	})
	g.Go(func() error {
		logging.Default()
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logging.ConfigureDebug(rankCtx.Debug)
	if !rankCtx.Enable {
		logging.Info("manager: rank not enabled by device probe; components start regardless", "rank", rankCtx.Rank)
	}

	m.RankCtx = rankCtx
	m.Stage = &st
	m.Registry = registry
	m.Profiler = profiler.New(registry, &st)

	driver := profiler.NewDriver(cfg.Interpreter, registry, m.Profiler)
	selectors := append(append([]string{}, profiler.DefaultSelectors...), rankCtx.ExtraSelectors...)
	if err := driver.Start(ctx, selectors); err != nil {
		return nil, fmt.Errorf("manager: registering tracked functions: %w", err)
	}
	m.Driver = driver

	metricPath := envconfig.GetEnvVar[string](envconfig.Default(), constants.EnvMetricPath)
	writer, err := sdktrace.NewWriter(metricPath, constants.MarkerActivityBaseName, rankCtx.Rank, cfg.MarkerFormat)
	if err != nil {
		return nil, fmt.Errorf("manager: starting SDK writer: %w", err)
	}
	m.Writer = writer
	go writer.Run()

	m.Ingestor = sdktrace.NewIngestor(cfg.Decoder, writer)

	barrierName := cfg.BarrierName
	if barrierName == "" {
		barrierName = constants.StartWorkBarrierName
	}
	bar, err := barrier.Open(barrierName, rankCtx.WorldSize)
	if err != nil {
		writer.Stop()
		return nil, fmt.Errorf("manager: opening startup barrier: %w", err)
	}
	m.Barrier = bar
	if err := bar.Rendezvous(rankCtx.Rank, rankCtx.WorldSize); err != nil {
		bar.Close()
		writer.Stop()
		return nil, fmt.Errorf("manager: startup rendezvous: %w", err)
	}

	dir := cfg.TimelineDir
	if dir == "" {
		dir = envconfig.GetEnvVar[string](envconfig.Default(), constants.EnvLoggingDir)
		if dir == "" {
			dir = constants.DefaultTimelineDir
		}
	}

	dumpCfg := dumpctl.Config{
		Profiler:  m.Profiler,
		Registry:  registry,
		Rank:      rankCtx.Rank,
		WorldSize: rankCtx.WorldSize,
		Comm:      rankCtx.JobName,
		Dir:       dir,
	}
	if cfg.SwitchTrigger {
		sw, err := dumpctl.OpenSwitch()
		if err != nil {
			bar.Close()
			writer.Stop()
			return nil, fmt.Errorf("manager: opening dump switch: %w", err)
		}
		m.Switch = sw
		dumpCfg.Trigger = dumpctl.SwitchTrigger(sw)
	}
	m.Dump = dumpctl.New(dumpCfg)
	m.Dump.Start()

	m.state = StateRunning
	return m, nil
}

// Stop drains the engine in reverse dependency order: stop accepting new
// dump triggers and perform a final dump, flush and stop the SDK writer,
// release the startup barrier and switch mappings. Idempotent.
func Stop(ctx context.Context, m *Manager) error {
	if m.state != StateRunning {
		return nil
	}
	m.state = StateDraining

	m.Dump.Stop()
	m.Writer.Stop()

	if m.Switch != nil {
		if err := m.Switch.Close(); err != nil {
			logging.Warn("manager: closing dump switch", "error", err)
		}
	}
	if err := m.Barrier.Close(); err != nil {
		logging.Warn("manager: closing barrier", "error", err)
	}

	m.state = StateStopped
	return nil
}

// State returns the engine's current lifecycle state.
func (m *Manager) State() State { return m.state }
