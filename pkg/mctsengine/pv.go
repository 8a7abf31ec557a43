package mctsengine

import (
	"github.com/chesscoach/searchcore/pkg/node"
	"github.com/chesscoach/searchcore/pkg/rules"
)

// updatePrincipalVariation implements spec.md §4.5's post-backprop PV
// walk: at each consecutive pair along the path, promote b to a's best
// child if a's current best is worse than b under the §4.3 ordering (ties
// keep the current best). pvChanged only
// tracks changes while still walking the previously-current PV; once a
// step diverges from it, further changes are ordinary best-child upkeep
// rather than a change to the line the engine was about to report.
func (w *Worker) updatePrincipalVariation(path []*node.Node[rules.Move], moves []rules.Move) bool {
	pvChanged := false
	onPV := true
	for i := 0; i < len(path)-1; i++ {
		a, b := path[i], path[i+1]
		if a.ConsiderBestChild(moves[i], b) {
			if onPV {
				pvChanged = true
			}
			continue
		}
		onPV = onPV && a.Best != nil && a.Best.Node == b
	}
	return pvChanged
}

// ValidatePrincipalVariation walks root's best-child chain and asserts
// no visited sibling along it is strictly better than the stored best
// (spec.md §8 invariant 5). Intended for tests and debug assertions, not
// the hot search path.
func ValidatePrincipalVariation(root *node.Node[rules.Move]) bool {
	n := root
	for n != nil && n.Best != nil {
		if !n.BestIsConsistent() {
			return false
		}
		n = n.Best.Node
	}
	return true
}
