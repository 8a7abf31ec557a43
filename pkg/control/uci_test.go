package control

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chesscoach/searchcore/pkg/cache"
)

func TestApplySetOptionMutatesMatchingFields(t *testing.T) {
	c, _ := newTestController(t)

	c.applySetOption([]string{"name", "Hash", "value", "8"})
	assert.Equal(t, 8, c.Options.HashMiB)
	assert.True(t, c.cache.Enabled(), "Hash setoption must resize the live cache, not just the option")

	c.applySetOption([]string{"name", "search_parallelism", "value", "128"})
	assert.Equal(t, 128, c.Options.SearchParallelism)

	c.applySetOption([]string{"name", "exploration_rate_init", "value", "1.5"})
	assert.Equal(t, 1.5, c.Options.Engine.ExplorationRateInit)

	c.applySetOption([]string{"name", "network_weights", "value", "/tmp/net.pb"})
	assert.Equal(t, "/tmp/net.pb", c.Options.NetworkWeights)
}

func TestApplySetOptionHashZeroDisablesCache(t *testing.T) {
	c, _ := newTestController(t)
	c.applySetOption([]string{"name", "Hash", "value", "0"})
	assert.Equal(t, 0, c.Options.HashMiB)
	assert.False(t, c.cache.Enabled())
}

func TestApplySetOptionIgnoresUnknownName(t *testing.T) {
	c, _ := newTestController(t)
	before := c.Options
	c.applySetOption([]string{"name", "totally_unknown_option", "value", "1"})
	assert.Equal(t, before, c.Options)
}

func TestUpdateSearchRefreshesEngineFloatsFromOptions(t *testing.T) {
	c, _ := newTestController(t)
	c.cfg.PositionUpdated = true
	require.NoError(t, c.updatePosition())

	c.applySetOption([]string{"name", "exploration_rate_init", "value", "9.5"})
	c.applySetOption([]string{"name", "virtual_loss_coefficient", "value", "7"})

	c.cfg.SearchUpdated = true
	c.updateSearch()

	assert.Equal(t, 9.5, c.worker.Config.ExplorationRateInit)
	assert.Equal(t, 7, c.worker.Config.VirtualLossIncrement)
}

func TestSignalNewGameDiscardsTreeAndClearsCache(t *testing.T) {
	c, _ := newTestController(t)
	c.cfg.PositionUpdated = true
	require.NoError(t, c.updatePosition())
	firstRoot := c.state.Game.Root
	c.cache.Store(selfProbe(c), 123, 0.5, []float64{1})

	c.SignalNewGame()
	require.True(t, c.cfg.PositionUpdated)
	require.True(t, c.cfg.PendingDiscard)
	require.NoError(t, c.updatePosition())

	assert.NotSame(t, firstRoot, c.state.Game.Root, "ucinewgame must discard the previous tree")
	res, _ := c.cache.Probe(123, 1)
	assert.False(t, res.Hit, "ucinewgame must clear the prediction cache")
}

func selfProbe(c *Controller) *cache.Reserved {
	_, r := c.cache.Probe(123, 1)
	return r
}

func TestHandlePositionStartposWithMoves(t *testing.T) {
	c, _ := newTestController(t)
	handlePosition(c, []string{"startpos", "moves", "e2e4", "e7e5"})

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, "", c.cfg.PendingFEN)
	assert.Equal(t, []string{"e2e4", "e7e5"}, c.cfg.PendingMoves)
	assert.True(t, c.cfg.PositionUpdated)
}

func TestHandlePositionFenWithoutMoves(t *testing.T) {
	c, _ := newTestController(t)
	fen := "8/8/8/8/8/8/8/K6k w - - 0 1"
	handlePosition(c, append([]string{"fen"}, strings.Fields(fen)...))

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, fen, c.cfg.PendingFEN)
	assert.Nil(t, c.cfg.PendingMoves)
}

func TestHandleGoParsesMoveTime(t *testing.T) {
	c, _ := newTestController(t)
	handleGo(c, []string{"movetime", "1500"})

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, MoveTime, c.cfg.PendingTC.Mode)
	assert.Equal(t, 1500, c.cfg.PendingTC.MoveTimeMs)
}

func TestHandleGoParsesGameClock(t *testing.T) {
	c, _ := newTestController(t)
	handleGo(c, []string{"wtime", "60000", "btime", "50000", "winc", "1000", "binc", "500"})

	c.mu.Lock()
	defer c.mu.Unlock()
	tc := c.cfg.PendingTC
	assert.Equal(t, GameClock, tc.Mode)
	assert.Equal(t, 60000, tc.WTimeMs)
	assert.Equal(t, 50000, tc.BTimeMs)
	assert.Equal(t, 1000, tc.WIncMs)
	assert.Equal(t, 500, tc.BIncMs)
}

func TestHandleGoDefaultsToInfinite(t *testing.T) {
	c, _ := newTestController(t)
	handleGo(c, []string{"infinite"})

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, Infinite, c.cfg.PendingTC.Mode)
}

func TestRunUCIRespondsToUciAndIsready(t *testing.T) {
	c, _ := newTestController(t)
	go c.Run()

	in := strings.NewReader("uci\nisready\nquit\n")
	var out bytes.Buffer

	done := make(chan struct{})
	go func() {
		RunUCI(c, in, &out)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunUCI did not return after quit")
	}

	text := out.String()
	assert.Contains(t, text, "id name")
	assert.Contains(t, text, "uciok")
	assert.Contains(t, text, "readyok")
}

func TestWriteOptionsListsEverySpecTableEntry(t *testing.T) {
	var out bytes.Buffer
	writeOptions(&out, DefaultOptions())
	text := out.String()
	for _, name := range []string{
		"network_type", "network_weights", "search_threads", "search_parallelism",
		"fraction_of_remaining", "safety_buffer_move_milliseconds",
		"safety_buffer_overall_milliseconds", "Hash", "exploration_rate_init",
		"exploration_rate_base", "virtual_loss_coefficient",
		"moving_average_build", "moving_average_cap",
		"backpropagation_puct_threshold", "move_diversity_value_delta_threshold",
		"move_diversity_temperature", "minimax_visits_ignore",
		"elimination_base_exponent", "move_diversity_plies",
		"transposition_progress_threshold", "progress_decay_divisor",
		"minimax_material_maximum", "minimax_visits_recurse", "syzygy",
	} {
		require.Contains(t, text, name)
	}
}
