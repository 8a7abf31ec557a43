package node

// DefaultSlabNodes sizes one arena slab. Chosen so a slab is a few MiB for
// a typical Node[dragontoothmg.Move] instantiation, amortising the Go
// allocator call across tens of thousands of nodes per slab, per spec.md
// §9's Design Notes ("chunk size large enough (tens of MiB) to amortise
// OS allocation").
const DefaultSlabNodes = 1 << 16

// Arena is a thread-local slab/free-list allocator for Node[M]. It must
// never be shared across goroutines: a node must be freed on the thread
// that allocated it (spec.md §9), because MCTS workers never share trees.
type Arena[M comparable] struct {
	slabSize  int
	slabs     [][]Node[M]
	used      int
	free      []*Node[M]
	allocated int64
	freed     int64
}

// NewArena creates an arena with the given slab size (number of nodes per
// slab); a non-positive size falls back to DefaultSlabNodes.
func NewArena[M comparable](slabSize int) *Arena[M] {
	if slabSize <= 0 {
		slabSize = DefaultSlabNodes
	}
	return &Arena[M]{slabSize: slabSize}
}

// Alloc returns a zeroed node in O(1) amortised time: first from the
// free-list, otherwise by bumping into the current slab (allocating a
// fresh slab when the current one is full).
func (a *Arena[M]) Alloc(prior float64) *Node[M] {
	a.allocated++
	if n := len(a.free); n > 0 {
		nd := a.free[n-1]
		a.free = a.free[:n-1]
		*nd = Node[M]{Prior: prior}
		return nd
	}
	if len(a.slabs) == 0 || a.used == a.slabSize {
		a.slabs = append(a.slabs, make([]Node[M], a.slabSize))
		a.used = 0
	}
	slab := a.slabs[len(a.slabs)-1]
	nd := &slab[a.used]
	a.used++
	nd.Prior = prior
	return nd
}

// Free returns a single node (not its children) to the free-list.
func (a *Arena[M]) Free(n *Node[M]) {
	a.freed++
	n.Children = nil
	n.Best = nil
	a.free = append(a.free, n)
}

// FreeSubtree recursively frees n and every descendant. Used by
// prune_except (spec.md §4.1) to reclaim everything under a discarded
// sibling, and when a game/tree is discarded outright.
func (a *Arena[M]) FreeSubtree(n *Node[M]) {
	if n == nil {
		return
	}
	for i := range n.Children {
		a.FreeSubtree(n.Children[i].Node)
	}
	a.Free(n)
}

// Live returns the number of nodes currently allocated and not freed.
func (a *Arena[M]) Live() int64 { return a.allocated - a.freed }
