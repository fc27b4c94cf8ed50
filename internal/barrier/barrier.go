// Package barrier implements the cross-process rendezvous (component B):
// a named shared-memory segment with one cell per rank. Each participant
// sets its own cell and spins until every rank's cell reads true, or
// until the overall timeout elapses.
//
// Grounded on original_source/include/common/util.h's ShmType<T> /
// InterProcessBarrierImpl, rendered with golang.org/x/sys/unix mmap
// instead of the original's C++ template, and the teacher's raw-syscall
// mmap style (internal/uring/minimal.go) generalized from a ring-buffer
// mapping to a fixed cell array.
package barrier

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/systrace-go/systrace/internal/constants"
)

const shmDir = "/dev/shm"

// cellSize is the stride between per-rank cells; 8 bytes gives each cell
// its own aligned word (eight cells still share one 64-byte cache line).
const cellSize = 8

// Barrier is a mapped, named rendezvous segment.
type Barrier struct {
	name   string
	region []byte
	fd     int
}

// Open maps (creating if absent) the named segment sized for worldSize
// cells. The caller owns the returned Barrier and must call Close when
// done; the underlying file persists in /dev/shm across process exit by
// design (see Rendezvous's two-phase reset for why that's safe).
func Open(name string, worldSize int) (*Barrier, error) {
	path := filepath.Join(shmDir, name)
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "barrier: open %s", path)
	}
	size := worldSize * cellSize
	if size < int(unix.Getpagesize()) {
		size = unix.Getpagesize()
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "barrier: ftruncate %s", path)
	}
	region, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "barrier: mmap %s", path)
	}
	return &Barrier{name: name, region: region, fd: fd}, nil
}

// Close unmaps the segment. It does not remove the backing file: other
// ranks, or a future process on the same node, may still be rendezvousing
// on it.
func (b *Barrier) Close() error {
	if b.region != nil {
		_ = unix.Munmap(b.region)
		b.region = nil
	}
	return unix.Close(b.fd)
}

func (b *Barrier) cell(rank int) *byte {
	return &b.region[rank*cellSize]
}

func (b *Barrier) readCell(rank int) bool {
	return *b.cell(rank) != 0
}

func (b *Barrier) writeCell(rank int, v bool) {
	if v {
		*b.cell(rank) = 1
	} else {
		*b.cell(rank) = 0
	}
}

// Rendezvous resets all known cells to false, then spins (100µs sleeps):
// each iteration re-asserts this rank's own cell true and recomputes "all
// ranks true", until the conjunction holds or constants.BarrierTimeout
// elapses.
//
// The reset-then-spin sequence is deliberate: the shared region can
// persist across an unclean prior exit with stale true cells, so every
// participant clears the whole table before asserting its own cell. Each
// rank re-asserts its cell on every iteration rather than once up front,
// because a later-arriving rank's own reset pass can clear an
// already-set cell out from under an earlier rank still spinning;
// re-asserting every iteration converges on "all true" regardless of
// arrival order.
func (b *Barrier) Rendezvous(rank, worldSize int) error {
	if rank < 0 || rank >= worldSize {
		return fmt.Errorf("barrier: rank %d out of range for world size %d", rank, worldSize)
	}
	for r := 0; r < worldSize; r++ {
		b.writeCell(r, false)
	}
	sfence()

	deadline := time.Now().Add(constants.BarrierTimeout)
	for {
		b.writeCell(rank, true)
		sfence()

		mfence()
		all := true
		for r := 0; r < worldSize; r++ {
			if !b.readCell(r) {
				all = false
				break
			}
		}
		if all {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Errorf("barrier %q: timeout after %s waiting for %d ranks", b.name, constants.BarrierTimeout, worldSize)
		}
		time.Sleep(constants.BarrierSpinInterval)
	}
}
