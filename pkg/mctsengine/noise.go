package mctsengine

import (
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/chesscoach/searchcore/pkg/node"
	"github.com/chesscoach/searchcore/pkg/rules"
)

// InjectRootNoise mixes Dirichlet(alpha) noise into the root's children's
// priors in place, mirroring AlphaZero's exploration noise (spec.md
// §4.9): p'_i = (1-epsilon)*p_i + epsilon*n_i, applied exactly once per
// move during self-play at simulation 0, never during try_hard search.
// Samples i.i.d. Gamma(alpha, 1) draws and normalises them, which is the
// standard construction of a Dirichlet(alpha,...,alpha) sample; gonum has
// no direct multivariate Dirichlet sampler, so distuv.Gamma stands in for
// it the way the rest of the pack leans on gonum/stat for exactly this
// kind of one-off distribution primitive.
func InjectRootNoise(root *node.Node[rules.Move], epsilon, alpha float64, rng *rand.Rand) {
	if !root.Expanded() {
		return
	}

	gamma := distuv.Gamma{Alpha: alpha, Beta: 1, Src: rng}
	samples := make([]float64, len(root.Children))
	sum := 0.0
	for i := range samples {
		samples[i] = gamma.Rand()
		sum += samples[i]
	}
	if sum <= 0 {
		return
	}

	for i := range root.Children {
		n := samples[i] / sum
		c := root.Children[i].Node
		c.Prior = (1-epsilon)*c.Prior + epsilon*n
	}
}
