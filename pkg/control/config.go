// Package control implements the Search Controller: the UCI-facing state
// machine of spec.md §4.8, its game-clock time control, and the UCI text
// protocol itself (§6). It is the layer that turns a pkg/mctsengine.Worker
// into a long-running engine process.
//
// Grounded on Oliverans-GooseEngine's engine/time_management.go
// (TimeHandler's remaining/increment/movetime-with-safety-buffer shape,
// generalised here to spec.md's explicit fraction_of_remaining option) and
// uci.go (the bufio.Scanner token-scanning REPL shape for the go/setoption
// subcommand parsers). The mutex+condvar signalling of §4.8/§5 has no
// direct teacher analogue - the teacher's Search/Synchronize in
// pkg/mcts/search.go is a one-shot WaitGroup barrier, not a persistent
// condvar loop across a long-lived worker - so it is built directly on
// stdlib sync.Cond, the idiomatic Go tool for exactly this pattern.
package control

import (
	"time"

	"github.com/chesscoach/searchcore/pkg/searchgame"
)

// TimeControlMode selects how Deadline interprets a TimeControl.
type TimeControlMode uint8

const (
	// Infinite never stops the search on its own; only stop/quit does.
	Infinite TimeControlMode = iota
	// MoveTime stops move_time_ms after the search started.
	MoveTime
	// GameClock stops per spec.md §4.8's remaining/increment formula.
	GameClock
)

// TimeControl is the pending or active time budget for one search, as
// parsed from a UCI go command (spec.md §3 "the pending time control").
type TimeControl struct {
	Mode TimeControlMode

	MoveTimeMs int

	WTimeMs, BTimeMs int
	WIncMs, BIncMs   int
}

// Config mediates between the UCI dispatch thread and the worker loop
// (spec.md §3 "Search State / Search Config", §5): every field is read and
// written only while holding Controller.mu, and the two condition
// variables - signalUci (woken by the UCI thread on any signal) and
// signalReady (woken by the worker when it reaches the top of its loop) -
// are the only synchronisation between the two goroutines.
type Config struct {
	Search          bool
	SearchUpdated   bool
	PositionUpdated bool
	Quit            bool
	Debug           bool
	Ready           bool

	PendingFEN     string
	PendingMoves   []string
	PendingTC      TimeControl
	PendingDiscard bool
}

// State is the worker's own view of the position and counters currently
// under search (spec.md §3).
type State struct {
	Game *searchgame.Game
	TC   TimeControl

	SearchStart time.Time

	Nodes       int64
	FailedNodes int64

	PVChanged bool
}
