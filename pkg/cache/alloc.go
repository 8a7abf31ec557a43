package cache

import "github.com/chesscoach/searchcore/pkg/chesserr"

// MaxHashMiB matches the UCI Hash option's documented range (spec.md §6).
const MaxHashMiB = 262144

// AllocateMiB (re)sizes the cache to hold approximately mb mebibytes,
// rounded down to whole chunks and split across 1 GiB tables (spec.md
// §4.7, §6). mb == 0 disables the cache entirely, per SPEC_FULL.md's
// convention that a Hash of zero is not an error. Any previous contents
// are discarded.
func (c *Cache) AllocateMiB(mb int) error {
	if mb < 0 || mb > MaxHashMiB {
		return chesserr.ResourceUnavailablef("cache.AllocateMiB", "Hash=%d MiB out of range [0, %d]", mb, MaxHashMiB)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if mb == 0 {
		c.tables = nil
		c.totalChunks = 0
		c.sizeBytes = 0
		c.occupied.Store(0)
		return nil
	}

	bytes := int64(mb) << 20
	totalChunks := uint64(bytes / bytesPerChunk)
	if totalChunks == 0 {
		return chesserr.ResourceUnavailablef("cache.AllocateMiB", "Hash=%d MiB too small to hold a single chunk", mb)
	}

	numTables := (totalChunks + maxChunksPerTable - 1) / maxChunksPerTable
	tables := make([]*table, 0, numTables)
	remaining := totalChunks
	for remaining > 0 {
		n := remaining
		if n > maxChunksPerTable {
			n = maxChunksPerTable
		}
		tables = append(tables, &table{chunks: make([]chunk, n)})
		remaining -= n
	}

	c.tables = tables
	c.totalChunks = totalChunks
	c.sizeBytes = int64(totalChunks) * bytesPerChunk
	c.occupied.Store(0)
	return nil
}

// Clear empties every entry without changing capacity, per spec.md §6
// ("Clearing happens at process start and on explicit reset").
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tables {
		for i := range t.chunks {
			t.chunks[i] = chunk{}
		}
	}
	c.occupied.Store(0)
	c.metrics.reset()
}

// Free releases all capacity, returning the cache to its disabled zero
// state.
func (c *Cache) Free() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables = nil
	c.totalChunks = 0
	c.sizeBytes = 0
	c.occupied.Store(0)
}
