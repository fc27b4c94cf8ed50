//go:build linux && cgo

package barrier

/*
#include <stdint.h>

// x86-64 store fence to ensure all prior stores are globally visible
static inline void sfence_impl(void) {
    __asm__ __volatile__("sfence" ::: "memory");
}

// x86-64 full memory fence: orders all prior loads/stores before it
static inline void mfence_impl(void) {
    __asm__ __volatile__("mfence" ::: "memory");
}
*/
import "C"

// sfence issues a store fence so a rank's cell write is globally visible
// to other processes mapping the same shared-memory segment before this
// goroutine proceeds to poll the other cells.
func sfence() {
	C.sfence_impl()
}

// mfence issues a full memory fence, used when re-reading all cells after
// publishing this rank's own cell.
func mfence() {
	C.mfence_impl()
}
