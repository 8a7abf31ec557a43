// Package searchgame implements the per-batch-slot Search Game: a chess
// position paired with its place in a shared tree plus the scratch state
// expand_and_evaluate's two-phase re-entry needs (spec.md §3 "Search
// Game", §4.1).
//
// Grounded on the teacher's UcbGameOps
// (_examples/IlikeChooros-go-mcts/examples/chess/chess-mcts/ucb.go):
// ExpandNode/Traverse/Clone map onto ExpandAndEvaluate/ApplyMove/Clone
// below (BackTraverse has no counterpart: a simulation's cloned game is
// discarded rather than unwound), generalised from the teacher's single-phase
// random-rollout model to the two-phase network-evaluation model spec.md
// §4.1 describes.
package searchgame

import (
	"math"

	"github.com/chesscoach/searchcore/pkg/cache"
	"github.com/chesscoach/searchcore/pkg/eval"
	"github.com/chesscoach/searchcore/pkg/node"
	"github.com/chesscoach/searchcore/pkg/rules"
	"github.com/chesscoach/searchcore/pkg/terminal"
)

// State is expand_and_evaluate's two-phase re-entry marker (spec.md §4.1).
type State uint8

const (
	Working State = iota
	WaitingForPrediction
)

// VisitShare is one entry of a real game's move-history training-target
// sequence: the normalised visit distribution over root children at the
// moment a move was chosen (spec.md §3 "sequence of child-visit
// distributions").
type VisitShare struct {
	Move  rules.Move
	Share float64
}

// Game is a chess Position paired with a tree pointer and search-local
// scratch. Non-shadow ("real") games additionally accumulate History and
// VisitShares across the moves they actually play.
type Game struct {
	Position rules.Position
	Root     *node.Node[rules.Move]
	Current  *node.Node[rules.Move]

	TryHard bool
	RootPly int

	// Real-game-only bookkeeping (nil/empty on shadow games cloned for a
	// single simulation).
	History     []rules.Move
	VisitShares [][]VisitShare

	// expand_and_evaluate scratch, valid only between a Working call that
	// returned waiting=true and the WaitingForPrediction re-entry that
	// follows it.
	state           State
	pendingKey      uint64
	pendingReserved *cache.Reserved
	pendingLegal    []rules.Move
	Image           []float64
	Value           float64
	Policy          []float64
}

// New starts a real game at pos with a freshly allocated, unexpanded root.
func New(pos rules.Position, arena *node.Arena[rules.Move], tryHard bool) *Game {
	root := arena.Alloc(1.0)
	g := &Game{Position: pos, Root: root, Current: root, TryHard: tryHard, RootPly: pos.Ply()}
	return g
}

// Clone returns a shadow game for one simulation: an independent Position
// but the *same* tree (shadow games never free nodes; only the owning real
// game's prune_except does), positioned back at Root (spec.md §9 "shadow
// games clone the root pointer but never free").
func (g *Game) Clone() *Game {
	return &Game{
		Position: g.Position.Clone(),
		Root:     g.Root,
		Current:  g.Root,
		TryHard:  g.TryHard,
		RootPly:  g.RootPly,
	}
}

// ApplyMove steps both the position and the tree pointer forward by one
// move during selection (spec.md §4.9's per-step "applies the selected
// move").
func (g *Game) ApplyMove(move rules.Move, child *node.Node[rules.Move]) error {
	if err := g.Position.MakeMove(move); err != nil {
		return err
	}
	g.Current = child
	return nil
}

// State reports whether this game is mid re-entry.
func (g *Game) State() State { return g.state }

// ExpandAndEvaluate implements spec.md §4.1's two-phase leaf evaluation.
// On the Working entry it may resolve immediately (terminal, cache hit) or
// return waiting=true after filling Image, in which case the caller must
// batch a network call, fill Value/Policy, and re-invoke with the game
// still in WaitingForPrediction state. maxCacheProbePly implements
// prediction_cache_max_ply: self-play (try_hard=false) games only probe
// the cache for shallow plies, deep self-play positions are expected to be
// unique enough that a probe is wasted work.
func (g *Game) ExpandAndEvaluate(arena *node.Arena[rules.Move], predCache *cache.Cache, maxCacheProbePly int) (value float64, waiting bool) {
	switch g.state {
	case WaitingForPrediction:
		return g.reenter(arena, predCache), false
	default:
		return g.firstEntry(arena, predCache, maxCacheProbePly)
	}
}

func (g *Game) firstEntry(arena *node.Arena[rules.Move], predCache *cache.Cache, maxCacheProbePly int) (float64, bool) {
	leaf := g.Current
	if v, ok := leaf.Terminal.ImmediateValue(); ok {
		return v, false
	}

	legal := g.Position.LegalMoves()
	if len(legal) == 0 {
		if g.Position.IsCheckmate() {
			leaf.Terminal = terminal.MakeMateIn(1)
		} else {
			leaf.Terminal = terminal.MakeDraw()
		}
		v, _ := leaf.Terminal.ImmediateValue()
		return v, false
	}

	if g.isDrawByRule() {
		leaf.Terminal = terminal.MakeDraw()
		return 0.5, false
	}

	key := g.Position.Key()
	if g.TryHard || g.Position.Ply() <= maxCacheProbePly {
		res, reserved := predCache.Probe(key, len(legal))
		if res.Hit {
			g.installChildren(arena, legal, res.Priors)
			return res.Value, false
		}
		g.pendingReserved = reserved
	} else {
		g.pendingReserved = nil
	}

	g.pendingKey = key
	g.pendingLegal = legal
	g.state = WaitingForPrediction
	return math.NaN(), true
}

func (g *Game) reenter(arena *node.Arena[rules.Move], predCache *cache.Cache) float64 {
	// The network reports value from the leaf's own side-to-move
	// perspective; node values are always stored from the parent's
	// perspective (spec.md §4.1 "Sign convention"), so flip once here.
	value := 1 - g.Value
	priors := eval.Softmax(g.Policy)

	legal, priors := capToBranchingLimit(g.pendingLegal, priors)
	predCache.Store(g.pendingReserved, g.pendingKey, value, priors)
	g.installChildren(arena, legal, priors)

	g.state = Working
	g.pendingReserved = nil
	g.pendingLegal = nil
	g.Image = nil
	g.Policy = nil
	return value
}

// capToBranchingLimit keeps only the top cache.MaxCachedMoves priors by
// stable selection, preserving relative order within the kept set (spec.md
// §4.1 "stable selection, preserve original order within the kept set",
// §8 invariant 11). Below the limit it is a no-op.
func capToBranchingLimit(legal []rules.Move, priors []float64) ([]rules.Move, []float64) {
	if len(legal) <= cache.MaxCachedMoves {
		return legal, priors
	}
	type ranked struct {
		idx   int
		prior float64
	}
	ranks := make([]ranked, len(priors))
	for i, p := range priors {
		ranks[i] = ranked{i, p}
	}
	// Partial selection sort for the top-N: stable among equal priors
	// because ties are broken by the lower original index.
	for i := 0; i < cache.MaxCachedMoves; i++ {
		best := i
		for j := i + 1; j < len(ranks); j++ {
			if ranks[j].prior > ranks[best].prior ||
				(ranks[j].prior == ranks[best].prior && ranks[j].idx < ranks[best].idx) {
				best = j
			}
		}
		ranks[i], ranks[best] = ranks[best], ranks[i]
	}
	keptIdx := make([]int, cache.MaxCachedMoves)
	for i := 0; i < cache.MaxCachedMoves; i++ {
		keptIdx[i] = ranks[i].idx
	}
	// Restore original relative order among the kept indices.
	sortInts(keptIdx)

	outMoves := make([]rules.Move, cache.MaxCachedMoves)
	outPriors := make([]float64, cache.MaxCachedMoves)
	for i, idx := range keptIdx {
		outMoves[i] = legal[idx]
		outPriors[i] = priors[idx]
	}
	return outMoves, outPriors
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func (g *Game) installChildren(arena *node.Arena[rules.Move], moves []rules.Move, priors []float64) {
	children := make([]node.Child[rules.Move], len(moves))
	for i, m := range moves {
		children[i] = node.Child[rules.Move]{Move: m, Node: arena.Alloc(priors[i])}
	}
	g.Current.Children = children
}

// PendingLegalMoves returns the legal moves captured when this game last
// transitioned into WaitingForPrediction, for callers that need to hand
// them to an evaluator without regenerating them (spec.md §4.9's batched
// network call).
func (g *Game) PendingLegalMoves() []rules.Move { return g.pendingLegal }

// isDrawByRule implements spec.md §4.1 step 4: 50-move-rule violation, or a
// rules-engine-reported repetition that is draw-worthy under the
// root-relative rule ("strictly after the search root, or twice at/before
// the root").
func (g *Game) isDrawByRule() bool {
	if g.Position.HalfmoveClock() >= 100 {
		return true
	}
	if g.Position.RepetitionCountSince(g.RootPly) >= 1 {
		return true
	}
	return g.Position.RepetitionCount() >= 2
}

// SelectMove implements spec.md §4.1's select_move: below samplePlyThreshold
// during self-play, sample a root child weighted by visit count at
// temperature 1; otherwise return best_child.
func (g *Game) SelectMove(samplePlyThreshold int, rng func(n int) int) (rules.Move, *node.Node[rules.Move], bool) {
	if !g.TryHard && len(g.History) < samplePlyThreshold {
		if m, c, ok := g.sampleByVisitCount(rng); ok {
			return m, c, true
		}
	}
	if g.Root.Best == nil {
		return rules.Move{}, nil, false
	}
	return g.Root.Best.Move, g.Root.Best.Node, true
}

func (g *Game) sampleByVisitCount(rng func(n int) int) (rules.Move, *node.Node[rules.Move], bool) {
	total := 0
	for i := range g.Root.Children {
		total += g.Root.Children[i].Node.VisitCount
	}
	if total == 0 {
		return rules.Move{}, nil, false
	}
	pick := rng(total)
	acc := 0
	for i := range g.Root.Children {
		acc += g.Root.Children[i].Node.VisitCount
		if pick < acc {
			return g.Root.Children[i].Move, g.Root.Children[i].Node, true
		}
	}
	last := g.Root.Children[len(g.Root.Children)-1]
	return last.Move, last.Node, true
}

// ApplyMoveWithRoot steps the real position forward and replaces the tree
// root with newRoot's subtree, decrementing its visit count by one since
// it was previously counted once as a leaf before being expanded (spec.md
// §4.1, §4.6). It also frees every sibling subtree via prune_except.
func (g *Game) ApplyMoveWithRoot(arena *node.Arena[rules.Move], move rules.Move, newRoot *node.Node[rules.Move]) error {
	if err := g.Position.MakeMove(move); err != nil {
		return err
	}
	oldRoot := g.Root
	PruneExcept(arena, oldRoot, newRoot)

	if newRoot.Terminal.IsTerminal() {
		newRoot.VisitCount = 0
	} else if newRoot.VisitCount > 0 {
		newRoot.VisitCount--
	}

	g.Root = newRoot
	g.Current = newRoot
	g.History = append(g.History, move)
	return nil
}

// PruneExcept frees every subtree under old except keep's, then frees old
// itself (spec.md §4.1 prune_except, §8 invariant 6).
func PruneExcept(arena *node.Arena[rules.Move], old, keep *node.Node[rules.Move]) {
	for i := range old.Children {
		if old.Children[i].Node != keep {
			arena.FreeSubtree(old.Children[i].Node)
		}
	}
	arena.Free(old)
}

// StoreSearchStatistics appends the current root's normalised visit
// distribution to the real game's training-target history (spec.md §4.1
// store_search_statistics).
func (g *Game) StoreSearchStatistics() {
	total := 0
	for i := range g.Root.Children {
		total += g.Root.Children[i].Node.VisitCount
	}
	shares := make([]VisitShare, len(g.Root.Children))
	for i, c := range g.Root.Children {
		share := 0.0
		if total > 0 {
			share = float64(c.Node.VisitCount) / float64(total)
		}
		shares[i] = VisitShare{Move: c.Move, Share: share}
	}
	g.VisitShares = append(g.VisitShares, shares)
}
