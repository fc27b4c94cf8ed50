package stage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systrace-go/systrace/internal/traceentry"
)

func TestNextIsStrictlyMonotoneUnderConcurrency(t *testing.T) {
	c := &Counter{}
	const n = 200
	var wg sync.WaitGroup
	seen := make([]uint32, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seen[i] = c.Next()
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, n, c.Current())

	dups := map[uint32]bool{}
	for _, v := range seen {
		assert.False(t, dups[v], "duplicate stage id %d", v)
		dups[v] = true
	}
}

func TestStageTypeRoundTrips(t *testing.T) {
	c := &Counter{}
	c.SetStageType(traceentry.StageBackward)
	assert.Equal(t, traceentry.StageBackward, c.StageType())
}
