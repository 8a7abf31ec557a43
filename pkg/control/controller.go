package control

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chesscoach/searchcore/pkg/cache"
	"github.com/chesscoach/searchcore/pkg/chesserr"
	"github.com/chesscoach/searchcore/pkg/eval"
	"github.com/chesscoach/searchcore/pkg/mctsengine"
	"github.com/chesscoach/searchcore/pkg/node"
	"github.com/chesscoach/searchcore/pkg/rules"
	"github.com/chesscoach/searchcore/pkg/searchgame"
	"github.com/chesscoach/searchcore/pkg/terminal"
)

// StartFEN is the standard chess starting position, used whenever a UCI
// position command names "startpos" rather than an explicit fen.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// infoInterval is how often check_print_info emits a line absent a PV
// change (spec.md §4.8: "on PV change or every 5 s").
const infoInterval = 5 * time.Second

// PositionFactory builds a fresh rules.Position from a FEN string. Wiring
// this in rather than importing pkg/rules/dragontooth directly keeps the
// controller decoupled from any one rules engine, mirroring pkg/rules'
// own black-box boundary.
type PositionFactory func(fen string) (rules.Position, error)

// Controller is the UCI-facing state machine of spec.md §4.8: one mutex
// plus two condition variables mediate every transition between the UCI
// dispatch goroutine (Signal* methods) and the worker loop (Run).
type Controller struct {
	mu          sync.Mutex
	signalUci   *sync.Cond
	signalReady *sync.Cond

	cfg   Config
	state State

	Options Options

	newPosition PositionFactory
	arena       *node.Arena[rules.Move]
	cache       *cache.Cache
	worker      *mctsengine.Worker

	lastFEN      string
	lastMoves    []string
	lastInfoTime time.Time

	out io.Writer
	log zerolog.Logger

	// bestMoveSink lets tests observe the emitted bestmove without
	// scraping out; production wiring leaves it nil and reads out.
	bestMoveSink func(rules.Move)
}

// NewController wires an arena, prediction cache, evaluator, and position
// factory into a ready-to-run Controller. The worker is constructed
// eagerly from opts.Engine, so its batch size is opts.Engine.Parallelism;
// setoption search_parallelism only records Options.SearchParallelism and
// never resizes the worker, so parallelism stays fixed for the
// Controller's lifetime (like the teacher's own Limits, which are
// captured once per Search call).
func NewController(newPosition PositionFactory, arena *node.Arena[rules.Move], predCache *cache.Cache, evaluator eval.Evaluator, opts Options, out io.Writer, log zerolog.Logger) *Controller {
	c := &Controller{
		Options:     opts,
		newPosition: newPosition,
		arena:       arena,
		cache:       predCache,
		out:         out,
		log:         log,
	}
	c.signalUci = sync.NewCond(&c.mu)
	c.signalReady = sync.NewCond(&c.mu)
	c.worker = mctsengine.NewWorker(arena, predCache, evaluator, opts.Engine, rand.New(rand.NewSource(time.Now().UnixNano())))
	return c
}

// SignalPosition records a pending position command (spec.md §4.8's
// position(fen, moves) signal). moves are UCI long-algebraic strings.
func (c *Controller) SignalPosition(fen string, moves []string) {
	c.mu.Lock()
	c.cfg.PendingFEN = fen
	c.cfg.PendingMoves = moves
	c.cfg.PositionUpdated = true
	c.mu.Unlock()
	c.signalUci.Broadcast()
}

// SignalNewGame records the UCI ucinewgame command: unlike a bare
// position("", nil), which updatePosition's isExtension check would treat
// as a continuation of the current startpos game and reuse the tree for,
// this forces a full tree discard and prediction-cache clear, since a new
// game shares no history with whatever came before it.
func (c *Controller) SignalNewGame() {
	c.mu.Lock()
	c.cfg.PendingFEN = ""
	c.cfg.PendingMoves = nil
	c.cfg.PendingDiscard = true
	c.cfg.PositionUpdated = true
	c.mu.Unlock()
	c.signalUci.Broadcast()
}

// SignalGo starts a search under tc (spec.md §4.8's go(time_control)).
func (c *Controller) SignalGo(tc TimeControl) {
	c.mu.Lock()
	c.cfg.PendingTC = tc
	c.cfg.Search = true
	c.cfg.SearchUpdated = true
	c.mu.Unlock()
	c.signalUci.Broadcast()
}

// SignalStop clears the search flag, causing the inner loop to exit at
// its next iteration (spec.md §5 "Cancellation and pre-emption").
func (c *Controller) SignalStop() {
	c.mu.Lock()
	c.cfg.Search = false
	c.mu.Unlock()
	c.signalUci.Broadcast()
}

// SignalQuit asks the worker to exit after its current inner iteration.
func (c *Controller) SignalQuit() {
	c.mu.Lock()
	c.cfg.Quit = true
	c.cfg.Search = false
	c.mu.Unlock()
	c.signalUci.Broadcast()
}

// SignalDebug toggles debug logging.
func (c *Controller) SignalDebug(on bool) {
	c.mu.Lock()
	c.cfg.Debug = on
	c.mu.Unlock()
}

// WaitReady blocks until the worker is idle at the top of its loop
// (spec.md §5: "the controller's is_ready wait blocks the UCI thread
// until the worker reaches the top of its loop"), then returns so the
// caller can reply "readyok".
func (c *Controller) WaitReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.cfg.Ready {
		c.signalReady.Wait()
	}
}

// Run is the worker loop of spec.md §4.8, intended to be launched as its
// own goroutine (a golang.org/x/sync/errgroup.Group.Go target in
// cmd/chesscoach-search, which supervises its lifecycle and error
// propagation - stdlib sync.Cond has no equivalent for that half of the
// job). It returns nil on a clean quit. An ExternalUnavailable error from
// RunBatch is logged and aborts only the current search (a bestmove is
// still emitted); any other RunBatch error is returned for the caller to
// log and exit on.
func (c *Controller) Run() error {
	for {
		c.mu.Lock()
		c.cfg.Ready = true
		c.signalReady.Broadcast()
		for !c.cfg.Search && !c.cfg.Quit && !c.cfg.PositionUpdated {
			c.signalUci.Wait()
		}
		c.cfg.Ready = false
		quit := c.cfg.Quit
		c.mu.Unlock()
		if quit {
			return nil
		}

		if err := c.updatePosition(); err != nil {
			continue
		}
		c.updateSearch()

		for c.state.Game != nil && c.isSearching() && !c.positionUpdatedFlag() && !c.isQuit() {
			completed, pvChanged, err := c.worker.RunBatch(c.state.Game)
			if err != nil {
				if chesserr.Is(err, chesserr.ExternalUnavailable) {
					c.log.Warn().Err(err).Msg("evaluator unavailable, aborting search")
					c.mu.Lock()
					c.cfg.Search = false
					c.mu.Unlock()
					break
				}
				return err
			}
			c.state.Nodes += int64(completed)
			c.state.FailedNodes = c.worker.FailedNodeCount
			if pvChanged {
				c.state.PVChanged = true
			}

			c.checkPrintInfo()
			c.checkTimeControl()
			c.updateSearch()
		}
		c.onSearchFinished()
	}
}

func (c *Controller) isSearching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Search
}

func (c *Controller) positionUpdatedFlag() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.PositionUpdated
}

func (c *Controller) isQuit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Quit
}

// updateSearch captures the pending time control and flags into State
// (spec.md §4.8 update_search()), resetting counters and pv_changed on a
// fresh go so the first info line always fires.
func (c *Controller) updateSearch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cfg.SearchUpdated {
		return
	}
	c.cfg.SearchUpdated = false
	c.state.TC = c.cfg.PendingTC
	c.state.SearchStart = timeNow()
	c.state.Nodes = 0
	c.state.FailedNodes = 0
	c.state.PVChanged = true
	c.cache.ResetSearchMetrics()

	// Engine floats set via setoption only take effect "on the next search
	// iteration" (spec.md §9); worker.Config is otherwise fixed at
	// NewController time, so re-copy it here rather than on every setoption
	// call.
	c.worker.Config.ExplorationRateInit = c.Options.Engine.ExplorationRateInit
	c.worker.Config.ExplorationRateBase = c.Options.Engine.ExplorationRateBase
	c.worker.Config.VirtualLossIncrement = c.Options.Engine.VirtualLossIncrement
}

// updatePosition implements spec.md §4.6's tree reuse: applies/builds the
// tree for the pending position command, or leaves state untouched (and
// returns an error) on a BadInput rejection, per §7's propagation policy
// ("the controller stays in Idle, the position/search is unchanged").
func (c *Controller) updatePosition() error {
	c.mu.Lock()
	fen := c.cfg.PendingFEN
	moves := append([]string(nil), c.cfg.PendingMoves...)
	pending := c.cfg.PositionUpdated
	discard := c.cfg.PendingDiscard
	c.cfg.PositionUpdated = false
	c.cfg.PendingDiscard = false
	c.mu.Unlock()
	if !pending {
		return nil
	}

	if discard {
		c.log.Info().Msg("ucinewgame: discarding tree and prediction cache")
		c.cache.Clear()
		c.lastFEN, c.lastMoves = "", nil
	} else if c.state.Game != nil && isExtension(c.lastFEN, c.lastMoves, fen, moves) {
		if c.reuseTree(moves[len(c.lastMoves):]) {
			c.lastFEN, c.lastMoves = fen, moves
			return nil
		}
	}

	pos, err := c.buildPosition(fen, moves)
	if err != nil {
		c.log.Warn().Err(err).Msg("rejecting position command")
		return err
	}
	old := c.state.Game
	c.state.Game = searchgame.New(pos, c.arena, true)
	if old != nil {
		c.arena.FreeSubtree(old.Root)
	}
	c.lastFEN, c.lastMoves = fen, moves
	return nil
}

// reuseTree plays each of extra onto the existing tree, promoting the
// matched child to root each time (spec.md §4.6). Every move is matched
// against the tree before any is applied, so when one has no matching
// child it returns false having made no change - the caller then falls
// back to a full rebuild rather than leave the tree half-promoted.
func (c *Controller) reuseTree(extra []string) bool {
	moves := make([]rules.Move, len(extra))
	children := make([]*node.Node[rules.Move], len(extra))
	n := c.state.Game.Root
	for i, uci := range extra {
		m, err := rules.ParseUCIMove(uci)
		if err != nil {
			return false
		}
		child := n.ChildByMove(m)
		if child == nil {
			return false
		}
		moves[i], children[i], n = m, child, child
	}
	for i, m := range moves {
		if err := c.state.Game.ApplyMoveWithRoot(c.arena, m, children[i]); err != nil {
			return false
		}
	}
	return true
}

func isExtension(oldFEN string, oldMoves []string, newFEN string, newMoves []string) bool {
	if oldFEN != newFEN || len(newMoves) < len(oldMoves) {
		return false
	}
	for i, m := range oldMoves {
		if newMoves[i] != m {
			return false
		}
	}
	return true
}

func (c *Controller) buildPosition(fen string, moves []string) (rules.Position, error) {
	if fen == "" {
		fen = StartFEN
	}
	pos, err := c.newPosition(fen)
	if err != nil {
		return nil, chesserr.BadInputf("control.buildPosition", "fen %q: %v", fen, err)
	}
	for _, uci := range moves {
		m, err := rules.ParseUCIMove(uci)
		if err != nil {
			return nil, chesserr.BadInputf("control.buildPosition", "move %q: %v", uci, err)
		}
		if err := pos.MakeMove(m); err != nil {
			return nil, chesserr.BadInputf("control.buildPosition", "illegal move %q: %v", uci, err)
		}
	}
	return pos, nil
}

// checkTimeControl clears search once the configured deadline has passed,
// but only once best_child is non-null (spec.md §4.8: "Always require
// best_child to be non-null before honoring stop, ensures a legal
// bestmove"). Absent any derivable deadline it falls back to a simulation
// cap.
func (c *Controller) checkTimeControl() {
	if c.state.Game.Root.Best == nil {
		return
	}
	deadline, ok := Deadline(c.state.TC, c.state.Game.Position.SideToMove(), c.state.SearchStart, c.Options.FractionOfRemaining, c.Options.SafetyBufferMoveMs)
	if ok {
		if !timeNow().Before(deadline) {
			c.mu.Lock()
			c.cfg.Search = false
			c.mu.Unlock()
		}
		return
	}
	const simulationCap = 800_000
	if c.state.Nodes >= simulationCap {
		c.mu.Lock()
		c.cfg.Search = false
		c.mu.Unlock()
	}
}

// checkPrintInfo emits an info line on a PV change or every infoInterval
// (spec.md §4.8). PVChanged is set true once by updateSearch on a fresh
// go (so the first info line always fires), and again by Run's search
// loop whenever a RunBatch call reports pvChanged (mctsengine.Worker's
// per-slot updatePrincipalVariation, OR-accumulated across the batch);
// it is cleared here once the line has actually been emitted.
func (c *Controller) checkPrintInfo() {
	now := timeNow()
	if !c.state.PVChanged && now.Sub(c.lastInfoAt()) < infoInterval {
		return
	}
	c.emitInfo(now)
	c.state.PVChanged = false
	c.setLastInfoAt(now)
}

func (c *Controller) onSearchFinished() {
	best := rules.NullMove
	if c.state.Game != nil {
		c.emitInfo(timeNow())
		if c.state.Game.Root.Best != nil {
			best = c.state.Game.Root.Best.Move
		}
	}
	if c.bestMoveSink != nil {
		c.bestMoveSink(best)
	}
	fmt.Fprintf(c.out, "bestmove %s\n", best.UCI())
}

func (c *Controller) emitInfo(now time.Time) {
	root := c.state.Game.Root
	pv := principalVariation(root)
	elapsed := now.Sub(c.state.SearchStart)
	elapsedMs := elapsed.Milliseconds()
	if elapsedMs <= 0 {
		elapsedMs = 1
	}
	nps := c.state.Nodes * 1000 / elapsedMs

	fmt.Fprintf(c.out, "info depth %d score %s nodes %d nps %d time %d hashfull %d pv%s\n",
		len(pv), scoreString(root), c.state.Nodes, nps, elapsedMs, c.cache.PermilleFull(), pvSuffix(pv))
}

func principalVariation(root *node.Node[rules.Move]) []rules.Move {
	var pv []rules.Move
	n := root
	for n != nil && n.Best != nil {
		pv = append(pv, n.Best.Move)
		n = n.Best.Node
	}
	return pv
}

func pvSuffix(pv []rules.Move) string {
	s := ""
	for _, m := range pv {
		s += " " + m.UCI()
	}
	return s
}

// scoreString reports mate k if the PV head (root.Best.Node) carries a
// proven mate, else an approximate centipawn score backed out of the
// win-probability value via the standard logistic inverse (spec.md §4.8:
// "score cp = centipawns(value)"). Terminal.Kind is stored from the
// perspective of the side to move at that node, so root's own Terminal
// reads backwards for this purpose: mate backprop marks the mover who
// gets mated with MateIn and the mover who delivers it with
// OpponentMateIn (§3), so a root about to deliver mate is itself tagged
// OpponentMateIn while its best child - the position it delivers mate
// from - is tagged MateIn. Reading root.Best.Node.Terminal instead gives
// the PV head's own perspective directly: MateIn is a mate this side
// delivers (positive), OpponentMateIn is a mate this side receives
// (negative).
func scoreString(root *node.Node[rules.Move]) string {
	n := root
	if root.Best != nil {
		n = root.Best.Node
	}
	switch n.Terminal.Kind {
	case terminal.MateIn:
		return fmt.Sprintf("mate %d", n.Terminal.N)
	case terminal.OpponentMateIn:
		return fmt.Sprintf("mate -%d", n.Terminal.N)
	default:
		return fmt.Sprintf("cp %d", centipawns(root.Value()))
	}
}

// centipawns backs out an approximate centipawn score from a [0,1]
// win-probability value via the logistic inverse used by
// probability-headed engines generally (e.g. Leela-family cp conversion):
// cp = 400 * log10(v / (1-v)), clamped away from the asymptotes.
func centipawns(value float64) int {
	const clamp = 0.001
	if value < clamp {
		value = clamp
	}
	if value > 1-clamp {
		value = 1 - clamp
	}
	return int(math.Round(400 * math.Log10(value/(1-value))))
}

func (c *Controller) lastInfoAt() time.Time {
	if c.lastInfoTime.IsZero() {
		return c.state.SearchStart
	}
	return c.lastInfoTime
}

func (c *Controller) setLastInfoAt(t time.Time) { c.lastInfoTime = t }

// timeNow is the controller's only clock read, isolated so tests can stub
// it deterministically without touching the wall clock.
var timeNow = time.Now
