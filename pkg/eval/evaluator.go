// Package eval defines the pluggable neural-network evaluator contract
// (spec.md §1: "batched value + policy-logit prediction ... a pluggable
// capability") plus the softmax/handcrafted-mixing glue that turns raw
// network output into the priors expand_and_evaluate hands to new
// children.
//
// The interface shape is grounded on gorgonia-agogo's Inferencer
// (other_examples/gorgonia-agogo__mcts.go: "Infer(state) (policy []float32,
// value float32)"), batched here per spec.md §4.9's
// network.predict_batch(parallelism, images, values, policies) call, which
// a worker issues once per selection pass across every slot awaiting
// evaluation rather than once per position.
package eval

import (
	"math"

	"github.com/chesscoach/searchcore/pkg/rules"
)

// Prediction is one position's raw network output: a value from that
// position's own side-to-move perspective, and one policy logit per legal
// move, in the same order as the legalMoves slice EvaluateBatch was given.
type Prediction struct {
	Value  float64
	Policy []float64
}

// Evaluator is the external, pluggable network. Implementations must
// return len(positions) predictions in the same order as the request, and
// must return exactly len(legalMoves[i]) logits for position i - a
// mismatched shape is an ExternalUnavailable failure at the call site
// (spec.md §7 "Evaluator failure ... returns inconsistent shape").
type Evaluator interface {
	EvaluateBatch(positions []rules.Position, legalMoves [][]rules.Move) ([]Prediction, error)
}

// Softmax normalises logits into a probability distribution. An empty
// input returns an empty output; this can happen transiently while a
// position with zero legal moves is still in flight to expand_and_evaluate
// (which resolves it as terminal before ever calling the evaluator, but
// callers of Softmax in isolation - tests, mixers - may still hit it).
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	max := logits[0]
	for _, l := range logits[1:] {
		if l > max {
			max = l
		}
	}
	out := make([]float64, len(logits))
	sum := 0.0
	for i, l := range logits {
		e := math.Exp(l - max)
		out[i] = e
		sum += e
	}
	if sum == 0 {
		// Degenerate (all logits -Inf, or NaN); fall back to uniform so
		// callers never divide by zero.
		u := 1.0 / float64(len(out))
		for i := range out {
			out[i] = u
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
