package node

import (
	"testing"

	"github.com/chesscoach/searchcore/pkg/terminal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expand(a *Arena[int], parent *Node[int], priors ...float64) {
	parent.Children = make([]Child[int], len(priors))
	for i, p := range priors {
		parent.Children[i] = Child[int]{Move: i, Node: a.Alloc(p)}
	}
}

func TestArenaAllocFreeRoundTrip(t *testing.T) {
	a := NewArena[int](4)
	n1 := a.Alloc(0.5)
	n2 := a.Alloc(0.5)
	require.NotSame(t, n1, n2)
	assert.EqualValues(t, 2, a.Live())

	a.Free(n1)
	assert.EqualValues(t, 1, a.Live())

	n3 := a.Alloc(0.25)
	assert.Same(t, n1, n3, "freed node should be recycled by the free-list")
	assert.Equal(t, 0.25, n3.Prior)
}

func TestArenaSpansMultipleSlabs(t *testing.T) {
	a := NewArena[int](2)
	nodes := make([]*Node[int], 5)
	for i := range nodes {
		nodes[i] = a.Alloc(0)
	}
	assert.Len(t, a.slabs, 3)
	assert.EqualValues(t, 5, a.Live())
}

func TestFreeSubtreeInvariant6(t *testing.T) {
	// prune_except: the only surviving descendant of old is keep's subtree.
	a := NewArena[int](64)
	old := a.Alloc(1)
	expand(a, old, 0.5, 0.5)
	keep := old.Children[1].Node
	expand(a, keep, 1.0)
	other := old.Children[0].Node

	before := a.Live()
	a.FreeSubtree(other)
	assert.Equal(t, before-1, a.Live())
	assert.True(t, keep.Expanded())
	assert.Len(t, keep.Children, 1)
}

func TestVisitCountInvariant1(t *testing.T) {
	a := NewArena[int](64)
	parent := a.Alloc(1)
	expand(a, parent, 0.5, 0.3, 0.2)
	parent.Children[0].Node.VisitCount = 3
	parent.Children[1].Node.VisitCount = 1
	parent.Children[2].Node.VisitCount = 0
	parent.VisitCount = 4

	sum := 0
	for i := range parent.Children {
		sum += parent.Children[i].Node.VisitCount
	}
	assert.Equal(t, parent.VisitCount, sum)
}

func TestPriorSumInvariant3(t *testing.T) {
	a := NewArena[int](64)
	parent := a.Alloc(1)
	expand(a, parent, 0.5, 0.3, 0.2)
	assert.InDelta(t, 1.0, parent.PriorSum(), 1e-4)
}

func TestExpandedTerminalMutualExclusionInvariant4(t *testing.T) {
	a := NewArena[int](64)
	leaf := a.Alloc(1)
	leaf.Terminal = terminal.MakeMateIn(1)
	assert.False(t, leaf.Expanded())

	nonTerminalParent := a.Alloc(1)
	expand(a, nonTerminalParent, 1.0)
	assert.False(t, nonTerminalParent.Terminal.IsTerminal())
}

func TestBestChildOrderingInvariant5(t *testing.T) {
	a := NewArena[int](64)
	parent := a.Alloc(1)
	expand(a, parent, 0.5, 0.5)
	weak, strong := parent.Children[0].Node, parent.Children[1].Node
	weak.VisitCount, weak.ValueSum = 10, 1

	parent.ConsiderBestChild(0, weak)
	assert.True(t, parent.BestIsConsistent())

	// Non-terminal candidates are ordered by visit count.
	strong.VisitCount, strong.ValueSum = 20, 18
	changed := parent.ConsiderBestChild(1, strong)
	assert.True(t, changed)
	assert.Same(t, strong, parent.Best.Node)
	assert.True(t, parent.BestIsConsistent())

	changed = parent.ConsiderBestChild(0, weak)
	assert.False(t, changed, "weaker candidate must not replace a stronger best")
}

func TestFixBestChildRecomputesFromScratch(t *testing.T) {
	a := NewArena[int](64)
	parent := a.Alloc(1)
	expand(a, parent, 0.34, 0.33, 0.33)
	parent.Children[0].Node.Terminal = terminal.MakeOpponentMateIn(3)
	parent.Children[1].Node.Terminal = terminal.MakeMateIn(2)
	parent.Children[2].Node.VisitCount = 5

	parent.FixBestChild()
	require.NotNil(t, parent.Best)
	assert.Same(t, parent.Children[1].Node, parent.Best.Node)
}

func TestNodeValueFirstPlayUrgency(t *testing.T) {
	a := NewArena[int](64)
	n := a.Alloc(1)
	assert.Zero(t, n.Value(), "unvisited node uses pessimistic FPU of 0")
	n.VisitCount, n.ValueSum = 4, 3
	assert.Equal(t, 0.75, n.Value())
}
