package eval

import "github.com/chesscoach/searchcore/pkg/rules"

// UniformEvaluator is the deterministic evaluator spec.md's scenarios run
// against (E1 "uniform priors and value 0", E6's cache round-trip): every
// legal move gets an equal logit (so Softmax yields a uniform
// distribution) and every position gets the fixed Value.
type UniformEvaluator struct {
	Value float64
}

func (u UniformEvaluator) EvaluateBatch(positions []rules.Position, legalMoves [][]rules.Move) ([]Prediction, error) {
	out := make([]Prediction, len(positions))
	for i, moves := range legalMoves {
		out[i] = Prediction{Value: u.Value, Policy: make([]float64, len(moves))}
	}
	return out, nil
}

// HandcraftedEvaluator optionally supplements the network value with an
// external, cheap positional judgement, used only when Weight > 0 (spec.md
// §9 Open Question 1: "preserve a configurable weight and leave
// training-progress lerp as a collaborator concern").
type HandcraftedEvaluator interface {
	// Evaluate returns a value in [0, 1] from pos's own side-to-move
	// perspective, or ok=false if it declines to judge this position.
	Evaluate(pos rules.Position) (value float64, ok bool)
}

// Mixed wraps a network Evaluator and lerps its value output with an
// optional HandcraftedEvaluator's judgement: value' = (1-Weight)*network +
// Weight*handcrafted, applied only where the handcrafted evaluator opts
// in. Policy logits pass through unchanged - the source's mix-in, per
// spec.md, only ever touched the value head.
type Mixed struct {
	Network     Evaluator
	Handcrafted HandcraftedEvaluator
	Weight      float64
}

func (m Mixed) EvaluateBatch(positions []rules.Position, legalMoves [][]rules.Move) ([]Prediction, error) {
	preds, err := m.Network.EvaluateBatch(positions, legalMoves)
	if err != nil {
		return nil, err
	}
	if m.Handcrafted == nil || m.Weight <= 0 {
		return preds, nil
	}
	for i, pos := range positions {
		hv, ok := m.Handcrafted.Evaluate(pos)
		if !ok {
			continue
		}
		preds[i].Value = (1-m.Weight)*preds[i].Value + m.Weight*hv
	}
	return preds, nil
}
