package control

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chesscoach/searchcore/pkg/cache"
	"github.com/chesscoach/searchcore/pkg/eval"
	"github.com/chesscoach/searchcore/pkg/node"
	"github.com/chesscoach/searchcore/pkg/rules"
	"github.com/chesscoach/searchcore/pkg/rules/dragontooth"
	"github.com/chesscoach/searchcore/pkg/terminal"
)

// fakePosition is a minimal rules.Position double, following the same
// pattern as pkg/searchgame's own test double: MakeMove always succeeds,
// legality is not actually checked, and the fen field lets buildPosition
// round-trip through PositionFactory.
type fakePosition struct {
	fen   string
	legal []rules.Move
}

func (f *fakePosition) LegalMoves() []rules.Move       { return f.legal }
func (f *fakePosition) MakeMove(rules.Move) error      { return nil }
func (f *fakePosition) UnmakeMove()                    {}
func (f *fakePosition) IsCheckmate() bool              { return false }
func (f *fakePosition) SideToMove() rules.Color        { return rules.White }
func (f *fakePosition) Key() uint64                    { return 0 }
func (f *fakePosition) HalfmoveClock() int             { return 0 }
func (f *fakePosition) Ply() int                       { return 0 }
func (f *fakePosition) RepetitionCount() int           { return 0 }
func (f *fakePosition) RepetitionCountSince(int) int   { return 0 }
func (f *fakePosition) FEN() string                    { return f.fen }
func (f *fakePosition) Clone() rules.Position {
	cp := *f
	return &cp
}
func (f *fakePosition) SAN(rules.Move) (string, error)      { return "", nil }
func (f *fakePosition) ParseSAN(string) (rules.Move, error) { return rules.Move{}, nil }

type forbiddenEvaluator struct{ t *testing.T }

func (e forbiddenEvaluator) EvaluateBatch([]rules.Position, [][]rules.Move) ([]eval.Prediction, error) {
	e.t.Fatalf("evaluator should not be called by this test")
	return nil, nil
}

func newTestController(t *testing.T) (*Controller, *bytes.Buffer) {
	t.Helper()
	factory := func(fen string) (rules.Position, error) {
		return &fakePosition{fen: fen}, nil
	}
	arena := node.NewArena[rules.Move](64)
	c := cache.New()
	require.NoError(t, c.AllocateMiB(1))
	var out bytes.Buffer
	opts := DefaultOptions()
	opts.Engine.Parallelism = 4
	ctrl := NewController(factory, arena, c, forbiddenEvaluator{t}, opts, &out, zerolog.Nop())
	return ctrl, &out
}

func e2e4() rules.Move { m, _ := rules.ParseUCIMove("e2e4"); return m }
func d2d4() rules.Move { m, _ := rules.ParseUCIMove("d2d4"); return m }
func e7e5() rules.Move { m, _ := rules.ParseUCIMove("e7e5"); return m }

func TestIsExtensionDetectsSharedPrefix(t *testing.T) {
	assert.True(t, isExtension("fen1", []string{"e2e4"}, "fen1", []string{"e2e4", "e7e5"}))
	assert.False(t, isExtension("fen1", []string{"e2e4"}, "fen2", []string{"e2e4", "e7e5"}))
	assert.False(t, isExtension("fen1", []string{"e2e4", "e7e5"}, "fen1", []string{"e2e4"}))
	assert.False(t, isExtension("fen1", []string{"e2e4"}, "fen1", []string{"d2d4"}))
	assert.True(t, isExtension("fen1", nil, "fen1", []string{"e2e4"}))
}

func TestUpdatePositionBuildsFreshTreeOnFirstCommand(t *testing.T) {
	c, _ := newTestController(t)
	c.cfg.PendingFEN = ""
	c.cfg.PendingMoves = []string{"e2e4"}
	c.cfg.PositionUpdated = true

	require.NoError(t, c.updatePosition())
	require.NotNil(t, c.state.Game)
	assert.Equal(t, "", c.lastFEN)
	assert.Equal(t, []string{"e2e4"}, c.lastMoves)
}

func TestUpdatePositionReusesTreeOnExtension(t *testing.T) {
	c, _ := newTestController(t)
	c.cfg.PendingFEN = ""
	c.cfg.PendingMoves = nil
	c.cfg.PositionUpdated = true
	require.NoError(t, c.updatePosition())

	root := c.state.Game.Root
	childE4 := node.New[rules.Move](0.6)
	childD4 := node.New[rules.Move](0.4)
	root.Children = []node.Child[rules.Move]{
		{Move: e2e4(), Node: childE4},
		{Move: d2d4(), Node: childD4},
	}
	childE4.VisitCount = 3

	c.cfg.PendingFEN = ""
	c.cfg.PendingMoves = []string{"e2e4"}
	c.cfg.PositionUpdated = true
	require.NoError(t, c.updatePosition())

	assert.Same(t, childE4, c.state.Game.Root, "extension should promote the matched child to root, not rebuild")
	assert.Equal(t, 2, childE4.VisitCount, "promotion decrements the new root's visit count once")
}

func TestUpdatePositionRebuildsWhenChildIsUnknown(t *testing.T) {
	c, _ := newTestController(t)
	c.cfg.PositionUpdated = true
	require.NoError(t, c.updatePosition())
	firstRoot := c.state.Game.Root

	c.cfg.PendingMoves = []string{"g1f3"} // never expanded, no matching child
	c.cfg.PositionUpdated = true
	require.NoError(t, c.updatePosition())

	assert.NotSame(t, firstRoot, c.state.Game.Root, "an unmatched extension move must fall back to a fresh tree")
}

func TestUpdatePositionRejectsMalformedMove(t *testing.T) {
	c, _ := newTestController(t)
	c.cfg.PendingMoves = []string{"not-a-move"}
	c.cfg.PositionUpdated = true

	err := c.updatePosition()
	assert.Error(t, err)
	assert.Nil(t, c.state.Game)
}

func TestCheckTimeControlRequiresBestChildBeforeStopping(t *testing.T) {
	c, _ := newTestController(t)
	c.cfg.PositionUpdated = true
	require.NoError(t, c.updatePosition())
	c.state.TC = TimeControl{Mode: MoveTime, MoveTimeMs: 1}
	c.state.SearchStart = time.Now().Add(-time.Hour)
	c.cfg.Search = true

	c.checkTimeControl()
	assert.True(t, c.isSearching(), "must not honor an expired deadline while best_child is still nil")
}

func TestCheckTimeControlStopsAfterDeadlineOnceBestChildExists(t *testing.T) {
	c, _ := newTestController(t)
	c.cfg.PositionUpdated = true
	require.NoError(t, c.updatePosition())
	c.state.Game.Root.ConsiderBestChild(e2e4(), node.New[rules.Move](0.5))
	c.state.TC = TimeControl{Mode: MoveTime, MoveTimeMs: 1}
	c.state.SearchStart = time.Now().Add(-time.Hour)
	c.cfg.Search = true

	c.checkTimeControl()
	assert.False(t, c.isSearching())
}

func TestCheckTimeControlNeverStopsOnInfinite(t *testing.T) {
	c, _ := newTestController(t)
	c.cfg.PositionUpdated = true
	require.NoError(t, c.updatePosition())
	c.state.Game.Root.ConsiderBestChild(e2e4(), node.New[rules.Move](0.5))
	c.state.TC = TimeControl{Mode: Infinite}
	c.state.SearchStart = time.Now().Add(-time.Hour)
	c.state.Nodes = 10
	c.cfg.Search = true

	c.checkTimeControl()
	assert.True(t, c.isSearching())
}

func TestOnSearchFinishedEmitsInfoThenBestmove(t *testing.T) {
	c, out := newTestController(t)
	c.cfg.PositionUpdated = true
	require.NoError(t, c.updatePosition())
	child := node.New[rules.Move](0.5)
	child.VisitCount = 7
	child.ValueSum = 4.9
	c.state.Game.Root.Children = []node.Child[rules.Move]{{Move: e2e4(), Node: child}}
	c.state.Game.Root.ConsiderBestChild(e2e4(), child)
	c.state.SearchStart = time.Now().Add(-time.Millisecond)
	c.state.Nodes = 7

	c.onSearchFinished()

	text := out.String()
	assert.Contains(t, text, "info depth 1")
	assert.Contains(t, text, "pv e2e4")
	assert.Contains(t, text, "bestmove e2e4")
}

func TestOnSearchFinishedFallsBackToNullMoveWithoutBestChild(t *testing.T) {
	c, out := newTestController(t)
	c.cfg.PositionUpdated = true
	require.NoError(t, c.updatePosition())

	c.onSearchFinished()
	assert.Contains(t, out.String(), "bestmove 0000")
}

func TestScoreStringReportsProvenMate(t *testing.T) {
	root := node.New[rules.Move](1.0)
	root.Terminal = terminal.MakeMateIn(3)
	assert.Equal(t, "mate 3", scoreString(root), "no best child yet: fall back to root's own terminal")

	root.Terminal = terminal.MakeOpponentMateIn(2)
	assert.Equal(t, "mate -2", scoreString(root))
}

// TestScoreStringReadsPVHeadNotRoot pins the fix for the mate-score
// direction bug: mate backprop tags the root itself with OpponentMateIn
// (root's own perspective: the opponent gets mated) once its best child is
// a proven MateIn, so scoreString must read root.Best.Node.Terminal, not
// root.Terminal, or the sign comes out backwards.
func TestScoreStringReadsPVHeadNotRoot(t *testing.T) {
	root := node.New[rules.Move](1.0)
	child := node.New[rules.Move](1.0)
	child.Terminal = terminal.MakeMateIn(1)
	root.Terminal = terminal.MakeOpponentMateIn(1)
	root.ConsiderBestChild(e2e4(), child)

	assert.Equal(t, "mate 1", scoreString(root))
}

func TestScoreStringReportsCentipawnsWhenNonTerminal(t *testing.T) {
	root := node.New[rules.Move](1.0)
	root.VisitCount = 1
	root.ValueSum = 0.5
	assert.Equal(t, "cp 0", scoreString(root))
}

// TestMateInOneEmitsPositiveScoreAndCorrectPV drives a real dragontooth
// position through the worker (spec.md §8's E1: uniform priors, value 0)
// until it proves the back-rank mate a1a8, then checks the emitted info
// line's score and pv exactly as E1 mandates: "score mate 1", "pv a1a8".
func TestMateInOneEmitsPositiveScoreAndCorrectPV(t *testing.T) {
	factory := func(fen string) (rules.Position, error) { return dragontooth.FromFEN(fen) }
	arena := node.NewArena[rules.Move](4096)
	c := cache.New()
	require.NoError(t, c.AllocateMiB(1))
	var out bytes.Buffer
	opts := DefaultOptions()
	opts.Engine.Parallelism = 1
	ctrl := NewController(factory, arena, c, eval.UniformEvaluator{Value: 0}, opts, &out, zerolog.Nop())

	ctrl.cfg.PendingFEN = "6k1/5ppp/8/8/8/8/5PPP/R5K1 w - - 0 1"
	ctrl.cfg.PositionUpdated = true
	require.NoError(t, ctrl.updatePosition())
	ctrl.state.SearchStart = time.Now()

	const maxIterations = 500
	root := ctrl.state.Game.Root
	for i := 0; i < maxIterations; i++ {
		_, _, err := ctrl.worker.RunBatch(ctrl.state.Game)
		require.NoError(t, err)
		if root.Best != nil && root.Best.Node.Terminal.Kind == terminal.MateIn {
			break
		}
	}

	require.NotNil(t, root.Best, "search must find a forced mate")
	assert.Equal(t, "a1a8", root.Best.Move.UCI())
	assert.Equal(t, terminal.MakeMateIn(1), root.Best.Node.Terminal)

	ctrl.emitInfo(time.Now())
	text := out.String()
	assert.Contains(t, text, "score mate 1")
	assert.Contains(t, text, "pv a1a8")
}
