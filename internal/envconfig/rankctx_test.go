package envconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadRankCtxDebugOverridesDeviceMismatch(t *testing.T) {
	t.Setenv("RANK", "2")
	t.Setenv("WORLD_SIZE", "4")
	t.Setenv("LOCAL_RANK", "2")
	t.Setenv("LOCAL_WORLD_SIZE", "4")
	t.Setenv("SYSTRACE_DEBUG_MODE", "1")

	ctx := LoadRankCtx()

	assert.Equal(t, 2, ctx.Rank)
	assert.Equal(t, 4, ctx.WorldSize)
	assert.True(t, ctx.Debug)
	// Debug mode re-asserts Enable=true regardless of the (almost
	// certainly mismatched, in a test environment) device probe.
	assert.True(t, ctx.Enable)
}

func TestLoadRankCtxDisablesWithoutDebugOnNoDevices(t *testing.T) {
	t.Setenv("SYSTRACE_DEBUG_MODE", "0")
	t.Setenv("LOCAL_WORLD_SIZE", "99")

	ctx := LoadRankCtx()

	// A test host almost never has 99 /dev/davinci* nodes.
	assert.False(t, ctx.Enable)
}

func TestLoadRankCtxParsesExtraSelectorsFromHostTracingFunc(t *testing.T) {
	t.Setenv("SYSTRACE_HOST_TRACING_FUNC", " mymodule@Foo@bar , mymodule@Baz@qux,")

	ctx := LoadRankCtx()

	assert.Equal(t, []string{"mymodule@Foo@bar", "mymodule@Baz@qux"}, ctx.ExtraSelectors)
}

func TestLoadRankCtxExtraSelectorsEmptyWhenUnset(t *testing.T) {
	t.Setenv("SYSTRACE_HOST_TRACING_FUNC", "")

	ctx := LoadRankCtx()

	assert.Nil(t, ctx.ExtraSelectors)
}
