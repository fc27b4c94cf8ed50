package envconfig

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/systrace-go/systrace/internal/constants"
	"github.com/systrace-go/systrace/internal/logging"
)

// RankCtx is the immutable, process-wide rank identity produced by
// registering and resolving the environment (component A).
type RankCtx struct {
	Rank           int
	WorldSize      int
	LocalRank      int
	LocalWorldSize int
	JobName        string
	Enable         bool
	Debug          bool
	Devices        []int

	// ExtraSelectors holds SYSTRACE_HOST_TRACING_FUNC split on commas:
	// extra tracked-function selectors the interpreter profiler
	// registers alongside the hardcoded default set.
	ExtraSelectors []string
}

func init() {
	r := Default()
	RegisterEnvVar(r, constants.EnvArgoWorkflowName, "")
	RegisterEnvVar(r, constants.EnvSymsFile, "")
	RegisterEnvVar(r, constants.EnvLoggingDir, "")
	RegisterEnvVar(r, constants.EnvHostTracingFunc, "")
	RegisterEnvVar(r, constants.EnvRank, 0)
	RegisterEnvVar(r, constants.EnvLocalRank, 0)
	RegisterEnvVar(r, constants.EnvLocalWorldSize, 1)
	RegisterEnvVar(r, constants.EnvWorldSize, 1)
	RegisterEnvVar(r, constants.EnvDebugMode, false)
	RegisterEnvVar(r, constants.EnvLoggingAppend, false)
}

// LoadRankCtx reads the registered environment and probes device nodes to
// produce a RankCtx, exactly per spec.md §4.A: device probe first, then
// enable/disable logic, then debug override applied last.
func LoadRankCtx() *RankCtx {
	r := Default()
	ctx := &RankCtx{
		Rank:           GetEnvVar[int](r, constants.EnvRank),
		WorldSize:      GetEnvVar[int](r, constants.EnvWorldSize),
		LocalRank:      GetEnvVar[int](r, constants.EnvLocalRank),
		LocalWorldSize: GetEnvVar[int](r, constants.EnvLocalWorldSize),
		JobName:        GetEnvVar[string](r, constants.EnvArgoWorkflowName),
		Debug:          GetEnvVar[bool](r, constants.EnvDebugMode),
		Enable:         true,
		ExtraSelectors: splitSelectors(GetEnvVar[string](r, constants.EnvHostTracingFunc)),
	}

	ctx.Devices = probeDevices()
	sort.Ints(ctx.Devices)

	if len(ctx.Devices) == 0 {
		ctx.Enable = false
		logging.Warn("no accelerator devices found, disabling tracing")
	}
	if ctx.LocalWorldSize != len(ctx.Devices) {
		logging.Warn("local world size mismatch, disabling tracing",
			"local_world_size", ctx.LocalWorldSize, "devices", len(ctx.Devices))
		ctx.Enable = false
	}
	if ctx.Debug {
		ctx.Enable = true
		logging.Info("debug mode enabled, overriding device checks")
	}
	return ctx
}

func splitSelectors(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func probeDevices() []int {
	var devices []int
	for i := 0; i < constants.DeviceProbeCount; i++ {
		path := fmt.Sprintf("%s%d", constants.DeviceProbePrefix, i)
		if err := unix.Access(path, unix.F_OK); err == nil {
			devices = append(devices, i)
		}
	}
	return devices
}
