package interposer

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// SymbolResolver is the cgo-free half of "lazy-load the shared library
// and resolve the original symbol once; cache" (spec.md §4.F step 1).
// The actual dlopen/dlsym calls live in cmd/systrace-interposer's cgo
// preamble, which satisfies this as a function value so the resolution
// policy itself (singleflight-collapsed, cached) stays testable without
// cgo.
type SymbolResolver struct {
	dlsym func(symbol string) (uintptr, error)

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]uintptr
}

// NewSymbolResolver wraps a raw dlsym function with caching and
// singleflight collapse of concurrent first-resolution.
func NewSymbolResolver(dlsym func(symbol string) (uintptr, error)) *SymbolResolver {
	return &SymbolResolver{dlsym: dlsym, cache: make(map[string]uintptr)}
}

// Resolve returns the cached address for symbol, resolving it at most
// once even under concurrent first-callers (golang.org/x/sync/singleflight
// dedups the dlopen/dlsym cost across goroutines racing to resolve the
// same not-yet-cached symbol — a strict improvement over the original's
// unguarded first-call race, while still honoring "resolve once; cache").
func (r *SymbolResolver) Resolve(symbol string) (uintptr, error) {
	r.mu.RLock()
	if addr, ok := r.cache[symbol]; ok {
		r.mu.RUnlock()
		return addr, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.group.Do(symbol, func() (interface{}, error) {
		addr, err := r.dlsym(symbol)
		if err != nil {
			return uintptr(0), err
		}
		r.mu.Lock()
		r.cache[symbol] = addr
		r.mu.Unlock()
		return addr, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(uintptr), nil
}
