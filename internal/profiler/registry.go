package profiler

import (
	"sync"

	"github.com/OneOfOne/xxhash"

	"github.com/systrace-go/systrace/internal/traceentry"
)

// shardCount shards the tracked-function table by the xxhash of the
// code-object address so concurrent lookups from many threads don't all
// contend a single mutex. The table is write-once (registration happens
// on a single thread before tracing starts) so, per spec.md §9's pattern
// translation, reads after that point need no lock at all — the sharding
// here is defensive for the registration window itself and for tests
// that register incrementally.
const shardCount = 16

// TrackedFunction is the resolved, immutable record for one registered
// selector, per spec.md §3.
type TrackedFunction struct {
	Selector  string
	Address   uint64
	Tag       int
	IsNative  bool
	StageType traceentry.StageType
}

type shard struct {
	mu   sync.RWMutex
	byAddr map[uint64]*TrackedFunction
}

// Registry is the hash map of tracked code objects, keyed by
// code-object address and sharded by xxhash(address).
//
// Grounded on original_source/sysTrace/src/trace/python/pytorch_tracing.c's
// uthash-based TracingFunction table (HASH_ADD/HASH_FIND by code
// address), rendered here as Go's native map type sharded for
// concurrency headroom, using github.com/OneOfOne/xxhash (present in the
// retrieved corpus via ghjramos-aistore/go.mod) as the shard-selection
// hash.
type Registry struct {
	shards  [shardCount]*shard
	mu      sync.Mutex // serializes Register calls and nextTag assignment
	nextTag int
	byTag   map[int]*TrackedFunction
}

// NewRegistry returns an empty registry. Tag 0 is reserved for GC and is
// never handed out by Register("GC", ...) callers other than the one
// fixed registration the manager performs at startup.
func NewRegistry() *Registry {
	r := &Registry{nextTag: 1, byTag: make(map[int]*TrackedFunction)}
	for i := range r.shards {
		r.shards[i] = &shard{byAddr: make(map[uint64]*TrackedFunction)}
	}
	return r
}

func shardFor(addr uint64) int {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(addr >> (8 * i))
	}
	return int(xxhash.Checksum64(b[:]) % shardCount)
}

// Register inserts selector→(address, is_native), assigning it a dense
// tag. Registering the same address twice is idempotent: the existing
// TrackedFunction is returned unchanged (spec.md §8's round-trip
// property), not re-inserted with a new tag.
func (r *Registry) Register(selector string, address uint64, isNative bool) *TrackedFunction {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.shards[shardFor(address)]
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byAddr[address]; ok {
		return existing
	}

	tag := r.nextTag
	if selector == "GC" {
		tag = 0
	} else {
		r.nextTag++
	}

	tf := &TrackedFunction{
		Selector:  selector,
		Address:   address,
		Tag:       tag,
		IsNative:  isNative,
		StageType: determineStageType(selector),
	}
	s.byAddr[address] = tf
	r.byTag[tag] = tf
	return tf
}

// LookupByTag returns the TrackedFunction registered under tag, or nil.
// Used by the dump controller to recover a tag's selector name when
// assembling the on-disk record tree (spec.md §4.I step 3c: the record's
// stage_type field is the selector name, not the live StageType enum).
func (r *Registry) LookupByTag(tag int) *TrackedFunction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byTag[tag]
}

// Lookup returns the TrackedFunction for a code-object address, or nil if
// it isn't tracked. Safe for concurrent use with Register and with other
// Lookup calls.
func (r *Registry) Lookup(address uint64) *TrackedFunction {
	s := r.shards[shardFor(address)]
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byAddr[address]
}

// Len returns the number of registered functions across all shards.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.byAddr)
		s.mu.RUnlock()
	}
	return n
}
