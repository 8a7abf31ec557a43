// Package mctsengine implements the MCTS Worker: selection with virtual
// loss (spec.md §4.2), value and mate backpropagation (§4.4), principal
// variation maintenance (§4.5), and the per-batch simulation step (§4.9).
//
// Grounded on the teacher's pkg/mcts/search.go (Search/Selection loop
// shape, virtual-loss add/remove around traversal, collisionCount-style
// failed-selection counting) and pkg/mcts/ucb.go (the UCB1 formula
// skeleton, generalised here to spec.md's PUCT-with-mate-term formula).
// Unlike the teacher, this tree is never touched by more than one
// goroutine at a time (spec.md §5: "the tree is single-threaded within a
// worker even though slots are logically parallel"), so none of the
// counters below are atomic.
package mctsengine

import (
	"math"
	"math/rand"

	"github.com/chesscoach/searchcore/pkg/cache"
	"github.com/chesscoach/searchcore/pkg/chesserr"
	"github.com/chesscoach/searchcore/pkg/eval"
	"github.com/chesscoach/searchcore/pkg/node"
	"github.com/chesscoach/searchcore/pkg/rules"
	"github.com/chesscoach/searchcore/pkg/searchgame"
	"github.com/chesscoach/searchcore/pkg/terminal"
)

// Config holds the tunables §6 exposes as UCI float/spin options.
type Config struct {
	ExplorationRateInit float64
	ExplorationRateBase float64

	// VirtualLossIncrement is how much visiting_count grows per traversal
	// step (spec.md's own pseudocode always uses a plain visit/visiting
	// count with no separate weighting term in the UCB formula itself; the
	// virtual_loss_coefficient option is realised here, as the amount of
	// virtual loss laid down per descent, matching how the teacher's own
	// VirtualLoss constant is applied in pkg/mcts/vars.go - a flat amount
	// added on the way down and removed on the way up - rather than as a
	// second multiplier inside the score formula).
	VirtualLossIncrement int

	Parallelism         int
	MaxCacheProbePly    int
	RootNoiseEpsilon    float64
	RootNoiseAlpha      float64
	SamplePlyThreshold  int
}

func DefaultConfig() Config {
	return Config{
		ExplorationRateInit:   1.25,
		ExplorationRateBase:   19652,
		VirtualLossIncrement:  1,
		Parallelism:           256,
		MaxCacheProbePly:      15,
		RootNoiseEpsilon:      0.25,
		RootNoiseAlpha:        0.3,
		SamplePlyThreshold:    30,
	}
}

// Worker owns one tree's batch of slots, its arena, and access to the
// shared prediction cache and evaluator (spec.md §5's "each worker owns
// its batch of slots and one tree; workers do not share trees").
type Worker struct {
	Arena     *node.Arena[rules.Move]
	Cache     *cache.Cache
	Evaluator eval.Evaluator
	Config    Config
	Rand      *rand.Rand

	slots []*slot

	NodeCount       int64
	FailedNodeCount int64
}

// slot is one batch slot's in-flight simulation state.
type slot struct {
	game               *searchgame.Game
	path               []*node.Node[rules.Move]
	moves              []rules.Move
	leafTerminalBefore terminal.Kind
	active             bool
}

// NewWorker allocates parallelism slots, each initially idle.
func NewWorker(arena *node.Arena[rules.Move], predCache *cache.Cache, evaluator eval.Evaluator, cfg Config, rng *rand.Rand) *Worker {
	w := &Worker{Arena: arena, Cache: predCache, Evaluator: evaluator, Config: cfg, Rand: rng}
	w.slots = make([]*slot, cfg.Parallelism)
	for i := range w.slots {
		w.slots[i] = &slot{}
	}
	return w
}

// ucbScore implements spec.md §4.2's PUCT-with-mate-term formula.
func (w *Worker) ucbScore(parent, child *node.Node[rules.Move]) float64 {
	virtParent := float64(parent.VisitCount + parent.VisitingCount)
	virtChild := float64(child.VisitCount + child.VisitingCount)
	c := math.Log((virtParent+w.Config.ExplorationRateBase+1)/w.Config.ExplorationRateBase) + w.Config.ExplorationRateInit
	return child.Value() + c*math.Sqrt(virtParent)/(virtChild+1)*child.Prior + child.Terminal.MateScore(c)
}

// selectChild implements select_child: the argmax by UCB score among
// children not currently expanding. Returns ok=false if every child is
// expanding (spec.md §4.2).
func (w *Worker) selectChild(parent *node.Node[rules.Move]) (rules.Move, *node.Node[rules.Move], bool) {
	bestScore := math.Inf(-1)
	var bestMove rules.Move
	var bestChild *node.Node[rules.Move]
	found := false
	for i := range parent.Children {
		c := parent.Children[i]
		if c.Node.Expanding {
			continue
		}
		score := w.ucbScore(parent, c.Node)
		if !found || score > bestScore {
			bestScore, bestMove, bestChild, found = score, c.Move, c.Node, true
		}
	}
	return bestMove, bestChild, found
}

// beginSimulation clones mainGame into the slot's scratch game and
// descends via select_child until it reaches an unexpanded node,
// threading the explicit search path (spec.md §9: no back-pointers).
// Returns false if selection failed mid-descent (a slot is left with no
// leaf to expand this batch); on failure the path's virtual loss is
// already unwound.
func (w *Worker) beginSimulation(s *slot, mainGame *searchgame.Game) bool {
	s.game = mainGame.Clone()
	s.path = []*node.Node[rules.Move]{s.game.Root}
	s.moves = s.moves[:0]
	s.game.Root.VisitingCount += w.Config.VirtualLossIncrement

	for s.game.Current.Expanded() {
		move, child, ok := w.selectChild(s.game.Current)
		if !ok {
			w.unwindPath(s.path)
			w.FailedNodeCount++
			s.active = false
			return false
		}
		if err := s.game.ApplyMove(move, child); err != nil {
			chesserr.InvariantViolation("mctsengine: select_child chose illegal move %s mid-descent: %v", move.UCI(), err)
		}
		child.VisitingCount += w.Config.VirtualLossIncrement
		s.path = append(s.path, child)
		s.moves = append(s.moves, move)
	}

	s.active = true
	s.leafTerminalBefore = s.game.Current.Terminal.Kind
	return true
}

func (w *Worker) unwindPath(path []*node.Node[rules.Move]) {
	for _, n := range path {
		n.VisitingCount -= w.Config.VirtualLossIncrement
	}
}

// RunBatch drives one controller-loop iteration's worth of simulations
// across every slot (spec.md §4.9/§4.8): every idle slot runs exactly one
// run_mcts_one_step (either resolving immediately, or filling Image and
// joining this call's batch), then every slot now awaiting prediction is
// resolved together with a single batched evaluator call, mirroring
// network.predict_batch. Returns the number of simulations that completed
// a full backprop this call, and whether any of them changed the
// principal variation (spec.md §4.8's "emit info on PV change" trigger).
func (w *Worker) RunBatch(mainGame *searchgame.Game) (completed int, pvChanged bool, err error) {
	pending := make([]*slot, 0, len(w.slots))

	for _, s := range w.slots {
		if s.active && s.game.State() == searchgame.WaitingForPrediction {
			pending = append(pending, s)
			continue
		}
		if !w.beginSimulation(s, mainGame) {
			continue
		}
		if s.game.Current.Expanding {
			// Another slot claimed this exact leaf earlier in this same
			// pass (a root-collision when the tree is still shallow); back
			// off rather than issue a duplicate evaluator request for it.
			w.unwindPath(s.path)
			s.active = false
			continue
		}
		value, waiting := s.game.ExpandAndEvaluate(w.Arena, w.Cache, w.Config.MaxCacheProbePly)
		if waiting {
			s.game.Current.Expanding = true
			pending = append(pending, s)
			continue
		}
		s.game.Current.Expanding = false
		if w.finishSlot(s, mainGame, value) {
			pvChanged = true
		}
		completed++
	}

	if len(pending) == 0 {
		return completed, pvChanged, nil
	}

	positions := make([]rules.Position, len(pending))
	legalMoves := make([][]rules.Move, len(pending))
	for i, s := range pending {
		positions[i] = s.game.Position
		legalMoves[i] = s.game.PendingLegalMoves()
	}
	preds, evalErr := w.Evaluator.EvaluateBatch(positions, legalMoves)
	if evalErr != nil {
		return completed, pvChanged, chesserr.ExternalUnavailablef("mctsengine.RunBatch", "evaluator: %v", evalErr)
	}
	if len(preds) != len(pending) {
		return completed, pvChanged, chesserr.ExternalUnavailablef("mctsengine.RunBatch", "evaluator returned %d predictions for %d requested", len(preds), len(pending))
	}
	for i, p := range preds {
		if len(p.Policy) != len(legalMoves[i]) {
			return completed, pvChanged, chesserr.ExternalUnavailablef("mctsengine.RunBatch", "evaluator returned %d logits for %d legal moves", len(p.Policy), len(legalMoves[i]))
		}
	}

	for i, s := range pending {
		s.game.Value = preds[i].Value
		s.game.Policy = preds[i].Policy
		value, waiting := s.game.ExpandAndEvaluate(w.Arena, w.Cache, w.Config.MaxCacheProbePly)
		if waiting {
			chesserr.InvariantViolation("mctsengine.RunBatch: re-entry still waiting after evaluator fill")
		}
		s.game.Current.Expanding = false
		if w.finishSlot(s, mainGame, value) {
			pvChanged = true
		}
		completed++
	}
	return completed, pvChanged, nil
}

// finishSlot performs the parity correction, value/mate backprop, and PV
// maintenance for a slot whose leaf has just been resolved to value
// (spec.md §4.9's post-expand_and_evaluate steps). Reports whether this
// simulation changed the principal variation.
func (w *Worker) finishSlot(s *slot, mainGame *searchgame.Game, value float64) bool {
	leaf := s.game.Current
	v := value

	if mainGame.Position.SideToMove() != s.game.Position.SideToMove() {
		v = 1 - v
	}

	w.backpropagateValue(s.path, v)

	justProvedMate := s.leafTerminalBefore != terminal.MateIn && leaf.Terminal.Kind == terminal.MateIn && leaf.Terminal.N == 1
	if justProvedMate {
		w.backpropagateMate(s.path)
	}

	pvChanged := w.updatePrincipalVariation(s.path, s.moves)
	w.NodeCount++

	s.active = false
	s.path = nil
	s.moves = nil
	return pvChanged
}

