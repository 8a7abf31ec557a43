// Package node implements the search tree's node type and its
// thread-local arena allocator (spec.md §2 items 1-2, §3).
//
// A Node represents one edge-into-position: it owns its children outright
// (there are no back-pointers, per spec.md §9's Design Notes - the search
// path from root to leaf is threaded explicitly by callers, not walked via
// parent pointers), and is single-writer: within one MCTS worker, slots
// run in strict alternation over the same tree (spec.md §5), so no field
// here needs atomic access. Only the prediction cache is genuinely shared
// across goroutines.
package node

import "github.com/chesscoach/searchcore/pkg/terminal"

// Node is generic over the move type M so this package stays decoupled
// from any particular chess-rules implementation, mirroring the teacher
// library's MoveLike-parametrised NodeBase.
type Node[M comparable] struct {
	Prior         float64
	VisitCount    int
	VisitingCount int
	ValueSum      float64
	Children      []Child[M]
	Best          *BestChild[M]
	Terminal      terminal.Value
	Expanding     bool
}

// Child is one entry in a node's ordered move->child mapping. Ordering is
// insertion order (the order legal moves were generated/kept), preserved
// as a slice rather than a map so cache round-trips and PV walks are
// deterministic.
type Child[M comparable] struct {
	Move M
	Node *Node[M]
}

// BestChild names the currently-preferred child under the §4.3 ordering.
// Nil until the node has recorded at least one visited child.
type BestChild[M comparable] struct {
	Move M
	Node *Node[M]
}

// New constructs a leaf node with the given prior, not yet expanded.
func New[M comparable](prior float64) *Node[M] {
	return &Node[M]{Prior: prior}
}

// Value returns value_sum/visit_count for a visited node, or the
// first-play-urgency of 0 (pessimistic) for an unvisited one (spec.md
// §4.2).
func (n *Node[M]) Value() float64 {
	if n.VisitCount == 0 {
		return 0
	}
	return n.ValueSum / float64(n.VisitCount)
}

// Expanded reports whether this node has children (spec.md §3: "empty
// children" is exactly "not yet expanded").
func (n *Node[M]) Expanded() bool { return len(n.Children) > 0 }

// ChildByMove finds a child by move; O(branching factor), acceptable
// given the branching cap of 52 (spec.md §4.1).
func (n *Node[M]) ChildByMove(m M) *Node[M] {
	for i := range n.Children {
		if n.Children[i].Move == m {
			return n.Children[i].Node
		}
	}
	return nil
}

// Comparable projects the fields terminal.WorseThan needs to rank a node.
func (n *Node[M]) Comparable() terminal.Comparable {
	return terminal.Comparable{Terminal: n.Terminal, Visits: n.VisitCount}
}

// PriorSum sums priors across children, used by callers to check the
// softmax-normalisation invariant (spec.md §8 invariant 3).
func (n *Node[M]) PriorSum() float64 {
	sum := 0.0
	for i := range n.Children {
		sum += n.Children[i].Prior()
	}
	return sum
}

// Prior is a convenience accessor mirroring Child.Node.Prior, so callers
// summing priors don't need to dereference twice.
func (c Child[M]) Prior() float64 { return c.Node.Prior }

// ConsiderBestChild updates n.Best if the current best is worse than
// candidate under the §4.3 ordering (a nil Best is worse than any
// candidate, rule 3); on a tie the current best is kept. Returns true if
// it changed n.Best.
func (n *Node[M]) ConsiderBestChild(move M, candidate *Node[M]) bool {
	if n.Best == nil || terminal.WorseThan(n.Best.Node.Comparable(), candidate.Comparable()) {
		n.Best = &BestChild[M]{Move: move, Node: candidate}
		return true
	}
	return false
}

// IsWorseThanBest reports whether candidate is strictly worse than the
// node's current best child (false if there is no best child yet).
func (n *Node[M]) IsWorseThanBest(candidate *Node[M]) bool {
	if n.Best == nil {
		return false
	}
	return terminal.WorseThan(candidate.Comparable(), n.Best.Node.Comparable())
}

// FixBestChild recomputes Best from scratch across all children
// (spec.md §4.5's fix_principal_variation, used after a worsening mate
// update where incremental comparison against the stale best is not
// enough).
func (n *Node[M]) FixBestChild() {
	var best *BestChild[M]
	for i := range n.Children {
		c := &n.Children[i]
		if best == nil || terminal.WorseThan(best.Node.Comparable(), c.Node.Comparable()) {
			best = &BestChild[M]{Move: c.Move, Node: c.Node}
		}
	}
	n.Best = best
}

// BestIsConsistent reports whether no visited sibling of n is strictly
// better than n.Best (spec.md §8 invariant 5). Callers that need the
// invariant enforced rather than just checked wrap this in their own
// chesserr-style panic at the call site.
func (n *Node[M]) BestIsConsistent() bool {
	if n.Best == nil {
		for i := range n.Children {
			if n.Children[i].Node.VisitCount > 0 {
				return false
			}
		}
		return true
	}
	for i := range n.Children {
		c := n.Children[i].Node
		if c.VisitCount == 0 {
			continue
		}
		if terminal.WorseThan(n.Best.Node.Comparable(), c.Comparable()) {
			return false
		}
	}
	return true
}
