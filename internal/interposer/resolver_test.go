package interposer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCachesAfterFirstCall(t *testing.T) {
	var calls atomic.Int32
	r := NewSymbolResolver(func(symbol string) (uintptr, error) {
		calls.Add(1)
		return 0x1234, nil
	})

	for i := 0; i < 5; i++ {
		addr, err := r.Resolve("halMemAlloc")
		require.NoError(t, err)
		assert.Equal(t, uintptr(0x1234), addr)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestResolveConcurrentFirstCallersCollapse(t *testing.T) {
	var calls atomic.Int32
	r := NewSymbolResolver(func(symbol string) (uintptr, error) {
		calls.Add(1)
		return 0xbeef, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			addr, err := r.Resolve("halMemFree")
			assert.NoError(t, err)
			assert.Equal(t, uintptr(0xbeef), addr)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestResolveErrorIsNotCached(t *testing.T) {
	var calls atomic.Int32
	r := NewSymbolResolver(func(symbol string) (uintptr, error) {
		n := calls.Add(1)
		if n == 1 {
			return 0, fmt.Errorf("not found yet")
		}
		return 0x5, nil
	})

	_, err := r.Resolve("halMemCreate")
	require.Error(t, err)

	addr, err := r.Resolve("halMemCreate")
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x5), addr)
	assert.Equal(t, int32(2), calls.Load())
}
