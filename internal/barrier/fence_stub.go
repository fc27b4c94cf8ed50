//go:build !(linux && cgo)

package barrier

// sfence/mfence are no-ops outside linux+cgo builds: there the barrier's
// cell accesses are plain byte stores and loads on the mapping with no
// fence around them. The explicit x86 fences are used only when cgo is
// available.
func sfence() {}
func mfence() {}
