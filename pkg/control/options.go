package control

import "github.com/chesscoach/searchcore/pkg/mctsengine"

// Options is the flat record of every UCI-tunable knob spec.md §6 lists,
// generalising the teacher's single ExplorationParam constant
// (pkg/mcts/vars.go) into the full option table this spec exposes.
// setoption mutates one field at a time. Hash resizes the live cache at
// once; the engine floats (exploration_rate_init/base,
// virtual_loss_coefficient) are copied into the worker on its next
// update_search() call rather than mid-batch; every other field is read
// from Options wherever it is used, and several are never read.
type Options struct {
	NetworkType    string
	NetworkWeights string

	SearchThreads     int
	SearchParallelism int

	FractionOfRemaining         int
	SafetyBufferMoveMs          int
	SafetyBufferOverallMs       int

	HashMiB int

	Engine mctsengine.Config

	// MovingAverageBuild/Cap, BackpropagationPUCTThreshold,
	// MoveDiversity*, MinimaxVisits*, EliminationBaseExponent,
	// TranspositionProgressThreshold, ProgressDecayDivisor,
	// MinimaxMaterialMaximum are spec.md §6's remaining tuning knobs. None
	// of them are read by the search core described in SPEC_FULL.md (they
	// govern a minimax-hybrid/move-diversity extension this search core
	// does not implement); they are still accepted and stored so
	// setoption never rejects a standard option name, matching how real
	// UCI engines accept and silently retain options for features that
	// happen to be compiled out.
	MovingAverageBuild               float64
	MovingAverageCap                 float64
	BackpropagationPUCTThreshold     float64
	MoveDiversityValueDeltaThreshold float64
	MoveDiversityTemperature         float64
	MinimaxVisitsIgnore              float64
	EliminationBaseExponent          int
	MoveDiversityPlies               int
	TranspositionProgressThreshold   int
	ProgressDecayDivisor             int
	MinimaxMaterialMaximum           int
	MinimaxVisitsRecurse             int

	Syzygy string

	// HandcraftedEvalWeight resolves spec.md §9 Open Question 1: the lerp
	// weight between network value and a handcrafted evaluator, expressed
	// here as a plain float rather than a training-progress schedule (the
	// schedule itself is a training-time collaborator concern outside
	// this search core, per spec.md's Non-goals). Zero (the default)
	// disables handcrafted blending entirely.
	HandcraftedEvalWeight float64
}

// DefaultOptions mirrors the teacher's DefaultLimits()-style constructor
// (pkg/mcts/limits.go) - one function giving every tunable a sane starting
// value rather than relying on Go zero values, several of which (a
// parallelism of 0, a fraction_of_remaining of 0) would be nonsensical.
func DefaultOptions() Options {
	return Options{
		NetworkType:           "student",
		SearchThreads:         2,
		SearchParallelism:     256,
		FractionOfRemaining:   20,
		SafetyBufferMoveMs:    50,
		SafetyBufferOverallMs: 1000,
		HashMiB:               256,
		Engine:                mctsengine.DefaultConfig(),
	}
}
