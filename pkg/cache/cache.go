// Package cache implements the fixed-capacity, chunk-addressed prediction
// cache that amortises neural-network calls across MCTS workers (spec.md
// §2 item 1, §3, §4.7). A Cache is created with New and sized with
// AllocateMiB; the package holds no global instance, and callers share one
// *Cache across every search worker. Probe and store are safe for
// concurrent use at chunk granularity.
//
// The explicit create-then-allocate lifecycle is grounded on
// domino14-macondo's cache/cache.go (a generic map-backed object cache),
// generalised here from an unbounded map to the fixed-capacity,
// age-evicted, 7-way set-associative table spec.md mandates.
package cache

import (
	"sync"
	"sync/atomic"
)

// EntriesPerChunk is the 7-way set associativity of one 512-byte chunk
// (spec.md §3).
const EntriesPerChunk = 7

// MaxCachedMoves is the branching cap: a position with more legal moves
// than this cannot be cached in full (spec.md §3, §4.1). Store truncates
// defensively to this cap; the real top-N-by-prior selection with stable
// order happens one layer up, in the expansion path, before Store is ever
// called (spec.md §8 invariant 11).
const MaxCachedMoves = 52

// bytesPerChunk matches spec.md §3's "512-byte, cache-line-aligned" chunk;
// it is documentary here since Go does not let us force struct alignment
// to a byte-exact layout, but it is what a chunk's payload (7 keys + 7
// float32 values + 7*52 packed 8-bit priors + 7 age bytes) would occupy in
// a hand-packed encoding.
const bytesPerChunk = 512

const maxChunksPerTable = (1 << 30) / bytesPerChunk // 1 GiB of chunks

type entry struct {
	occupied  bool
	key       uint64
	value     float32
	moveCount uint8
	priors    [MaxCachedMoves]uint8
}

type chunk struct {
	mu      sync.Mutex
	entries [EntriesPerChunk]entry
	ages    [EntriesPerChunk]uint8
}

type table struct {
	chunks []chunk
}

// Metrics are the per-search counters of spec.md §4.7, reset at the start
// of every new search. The permille-full gauge is not among them: it is
// read from the Cache itself (PermilleFull) and is not reset, since it
// reflects total occupancy, not search activity.
type Metrics struct {
	Probes    atomic.Int64
	Hits      atomic.Int64
	Evictions atomic.Int64
}

func (m *Metrics) reset() {
	m.Probes.Store(0)
	m.Hits.Store(0)
	m.Evictions.Store(0)
}

// Cache is the prediction cache. The zero value is a disabled cache: every
// probe misses and every store is a no-op, matching the "Hash 0 disables
// the cache" convention documented in SPEC_FULL.md.
type Cache struct {
	mu           sync.RWMutex
	tables       []*table
	totalChunks  uint64
	occupied     atomic.Int64
	metrics      Metrics
	sizeBytes    int64
}

// New returns a disabled cache; call AllocateMiB to size it.
func New() *Cache { return &Cache{} }

// Enabled reports whether the cache currently has any capacity.
func (c *Cache) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalChunks > 0
}

// SizeBytes returns the currently allocated capacity in bytes.
func (c *Cache) SizeBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sizeBytes
}

// Reserved is a handle to a chunk slot chosen for eventual replacement,
// returned by Probe on a miss so the caller can fill it once network
// results are available (spec.md §4.1 step 5, §4.7 "hand that slot back
// to the worker").
type Reserved struct {
	chunk *chunk
	slot  int
}

// Result is what Probe returns.
type Result struct {
	Hit    bool
	Value  float64
	Priors []float64 // dequantised, len == moveCount stored at insertion
}

// ResetSearchMetrics zeroes the per-search probe/hit/eviction counters
// (spec.md §4.7: "reset on new search start").
func (c *Cache) ResetSearchMetrics() { c.metrics.reset() }

// MetricsSnapshot is a point-in-time copy of Metrics' counters, safe to
// pass and store by value (Metrics itself embeds atomic.Int64 fields,
// which go vet's copylocks check rightly forbids copying).
type MetricsSnapshot struct {
	Probes    int64
	Hits      int64
	Evictions int64
}

// SearchMetrics returns a snapshot of the per-search counters.
func (c *Cache) SearchMetrics() MetricsSnapshot {
	return MetricsSnapshot{
		Probes:    c.metrics.Probes.Load(),
		Hits:      c.metrics.Hits.Load(),
		Evictions: c.metrics.Evictions.Load(),
	}
}

// PermilleFull is the global occupancy gauge across every table, in
// thousandths (spec.md §4.7).
func (c *Cache) PermilleFull() int {
	c.mu.RLock()
	total := c.totalChunks * EntriesPerChunk
	c.mu.RUnlock()
	if total == 0 {
		return 0
	}
	return int(c.occupied.Load() * 1000 / int64(total))
}

// chunkIndex maps a 64-bit position key onto [0, totalChunks) with a
// multiplicative (Fibonacci) hash, per spec.md §4.7 ("multiplicative
// mixing -> table and chunk").
func (c *Cache) chunkIndex(key uint64) uint64 {
	const fib64 = 0x9E3779B97F4A7C15
	mixed := key * fib64
	return mixed % c.totalChunks
}

func (c *Cache) locate(idx uint64) *chunk {
	tableIdx := idx / maxChunksPerTable
	offset := idx % maxChunksPerTable
	return &c.tables[tableIdx].chunks[offset]
}

// Probe looks up key. On a hit it returns the cached value and priors and
// no Reserved slot. On a miss, if the cache is enabled, it returns the
// stalest slot in the addressed chunk as a Reserved handle for a
// subsequent Store; a disabled cache returns a miss with a nil handle.
//
// moveCount is the position's true legal-move count, uncapped. A position
// with more than MaxCachedMoves legal moves can therefore never have been
// stored (searchgame.capToBranchingLimit caps moveCount before Store), so
// its probe always misses; this still costs a reserved chunk slot, which
// is accepted as the cost of leaving Probe's entry-matching rule identical
// for every position (§8 invariant 11: such a position stays uncacheable).
func (c *Cache) Probe(key uint64, moveCount int) (Result, *Reserved) {
	c.mu.RLock()
	total := c.totalChunks
	c.mu.RUnlock()
	if total == 0 {
		return Result{}, nil
	}

	c.metrics.Probes.Add(1)

	ch := c.locate(c.chunkIndex(key))
	ch.mu.Lock()
	defer ch.mu.Unlock()

	oldest, oldestAge := 0, -1
	for i := range ch.entries {
		e := &ch.entries[i]
		if e.occupied && e.key == key && int(e.moveCount) == moveCount {
			c.metrics.Hits.Add(1)
			priors := make([]float64, e.moveCount)
			for j := range priors {
				priors[j] = float64(e.priors[j]) / 255.0
			}
			return Result{Hit: true, Value: float64(e.value), Priors: priors}, nil
		}
		age := int(ch.ages[i])
		if !e.occupied {
			// An empty slot is always the best eviction candidate.
			oldest, oldestAge = i, 256
		} else if age > oldestAge {
			oldest, oldestAge = i, age
		}
	}

	return Result{}, &Reserved{chunk: ch, slot: oldest}
}

// Store writes value/priors into a slot reserved by a prior Probe miss.
// It is a no-op if r is nil (cache disabled, or the caller had a cache
// hit and has nothing to store). priors longer than MaxCachedMoves are
// truncated defensively; the real top-N selection belongs to the caller.
func (c *Cache) Store(r *Reserved, key uint64, value float64, priors []float64) {
	if r == nil {
		return
	}
	if len(priors) > MaxCachedMoves {
		priors = priors[:MaxCachedMoves]
	}

	r.chunk.mu.Lock()
	defer r.chunk.mu.Unlock()

	e := &r.chunk.entries[r.slot]
	wasOccupied := e.occupied
	e.occupied = true
	e.key = key
	e.value = float32(value)
	e.moveCount = uint8(len(priors))
	for i, p := range priors {
		e.priors[i] = quantise(p)
	}

	r.chunk.ages[r.slot] = 0
	for i := range r.chunk.ages {
		if i != r.slot && r.chunk.ages[i] < 255 {
			r.chunk.ages[i]++
		}
	}

	if wasOccupied {
		c.metrics.Evictions.Add(1)
	} else {
		c.occupied.Add(1)
	}
}

func quantise(p float64) uint8 {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return uint8(p*255 + 0.5)
}
