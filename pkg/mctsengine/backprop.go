package mctsengine

import (
	"github.com/chesscoach/searchcore/pkg/node"
	"github.com/chesscoach/searchcore/pkg/rules"
	"github.com/chesscoach/searchcore/pkg/terminal"
)

// backpropagateValue implements spec.md §4.4's value backprop: v starts
// expressed from the leaf's parent's perspective and flips at every step
// up the path, matching how values are stored on children (§4.1 "Sign
// convention").
func (w *Worker) backpropagateValue(path []*node.Node[rules.Move], v float64) {
	for i := len(path) - 1; i >= 0; i-- {
		n := path[i]
		n.VisitingCount -= w.Config.VirtualLossIncrement
		n.VisitCount++
		n.ValueSum += v
		v = 1 - v
	}
}

// backpropagateMate implements spec.md §4.4's mate backprop, invoked once
// when path's leaf just proved MateIn(1) and never again on later visits
// to the same leaf. childIsMate starts true because the leaf itself is
// the "child that mates" the first parent examined.
func (w *Worker) backpropagateMate(path []*node.Node[rules.Move]) {
	childIsMate := true
	for i := len(path) - 2; i >= 0; i-- {
		parent, child := path[i], path[i+1]
		if childIsMate {
			newN := child.Terminal.N
			if parent.Terminal.Kind == terminal.OpponentMateIn && parent.Terminal.N <= newN {
				return
			}
			parent.Terminal = terminal.MakeOpponentMateIn(newN)
			parent.FixBestChild()
			childIsMate = false
			continue
		}

		maxN, allOpponentMate := 0, true
		for j := range parent.Children {
			pc := parent.Children[j].Node
			if pc.Terminal.Kind != terminal.OpponentMateIn {
				allOpponentMate = false
				break
			}
			if pc.Terminal.N > maxN {
				maxN = pc.Terminal.N
			}
		}
		if !allOpponentMate {
			return
		}
		parent.Terminal = terminal.MakeMateIn(maxN + 1)
		parent.FixBestChild()
		childIsMate = true
	}
}
