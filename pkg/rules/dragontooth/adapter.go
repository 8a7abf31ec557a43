// Package dragontooth adapts github.com/IlikeChooros/dragontoothmg - the
// rules engine the teacher's own chess example (examples/chess/chess-mcts)
// is built on - to the pkg/rules.Position contract. Every call in here that
// touches *chess.Board sticks to the exact surface exercised by that
// example (NewBoard, Clone, GenerateLegalMoves, Make, Undo, IsTerminated,
// Wtomove, Termination), plus the FEN read/parse and bitboard fields
// documented by the library, needed for position-key hashing and SAN.
package dragontooth

import (
	"strconv"
	"strings"

	chess "github.com/IlikeChooros/dragontoothmg"
	"github.com/cespare/xxhash"

	"github.com/chesscoach/searchcore/pkg/chesserr"
	"github.com/chesscoach/searchcore/pkg/rules"
)

// Position wraps a *chess.Board and implements rules.Position. history
// records the position key after every move made on this instance (never
// truncated except by UnmakeMove), which is what repetition detection and
// tree-reuse's "ply" clock are built on: dragontoothmg's Board itself is
// stateless across positions and remembers nothing about how it got here.
type Position struct {
	board   *chess.Board
	pending map[rules.Move]chess.Move
	history []uint64
}

// New starts a Position at the standard initial position.
func New() *Position {
	return &Position{board: chess.NewBoard()}
}

// FromFEN parses fen into a Position.
func FromFEN(fen string) (*Position, error) {
	b, err := parseFen(fen)
	if err != nil {
		return nil, chesserr.BadInputf("dragontooth.FromFEN", "%v", err)
	}
	return &Position{board: b}, nil
}

func parseFen(fen string) (b *chess.Board, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = chesserr.BadInputf("dragontooth.parseFen", "malformed FEN %q: %v", fen, r)
		}
	}()
	board := chess.ParseFen(fen)
	return &board, nil
}

// LegalMoves generates the engine's legal moves and rebuilds the
// rules.Move<->chess.Move correspondence MakeMove relies on. The mapping is
// only valid until the next mutation of the position.
func (p *Position) LegalMoves() []rules.Move {
	moves := p.board.GenerateLegalMoves()
	out := make([]rules.Move, 0, len(moves))
	pending := make(map[rules.Move]chess.Move, len(moves))
	for _, m := range moves {
		rm, err := rules.ParseUCIMove(m.String())
		if err != nil {
			chesserr.InvariantViolation("dragontooth.LegalMoves: engine move %q did not parse as UCI: %v", m.String(), err)
		}
		out = append(out, rm)
		pending[rm] = m
	}
	p.pending = pending
	return out
}

func (p *Position) engineMove(m rules.Move) (chess.Move, error) {
	if p.pending == nil {
		p.LegalMoves()
	}
	if dm, ok := p.pending[m]; ok {
		return dm, nil
	}
	// The move may have been produced against a position we've since moved
	// on from without regenerating; refresh once before giving up.
	p.LegalMoves()
	dm, ok := p.pending[m]
	if !ok {
		return 0, chesserr.BadInputf("dragontooth.MakeMove", "%q is not a legal move in the current position", m.UCI())
	}
	return dm, nil
}

func (p *Position) MakeMove(m rules.Move) error {
	dm, err := p.engineMove(m)
	if err != nil {
		return err
	}
	p.board.Make(dm)
	p.pending = nil
	p.history = append(p.history, p.Key())
	return nil
}

func (p *Position) UnmakeMove() {
	p.board.Undo()
	p.pending = nil
	p.history = p.history[:len(p.history)-1]
}

func (p *Position) Ply() int { return len(p.history) }

func (p *Position) RepetitionCount() int { return p.RepetitionCountSince(0) }

// RepetitionCountSince counts prior occurrences of the current position at
// history index >= ply, excluding the current position's own entry (the
// last one appended, if any move has been made at all).
func (p *Position) RepetitionCountSince(ply int) int {
	if ply < 0 {
		ply = 0
	}
	upTo := len(p.history) - 1 // exclude the current position's own entry
	if upTo <= 0 || ply >= upTo {
		return 0
	}
	key := p.Key()
	n := 0
	for _, k := range p.history[ply:upTo] {
		if k == key {
			n++
		}
	}
	return n
}

// IsCheckmate reports whether the side to move is mated. Only meaningful
// right after LegalMoves() returned an empty slice.
func (p *Position) IsCheckmate() bool {
	return p.board.IsTerminated(0) && p.board.Termination() == chess.TerminationCheckmate
}

func (p *Position) SideToMove() rules.Color {
	if p.board.Wtomove {
		return rules.White
	}
	return rules.Black
}

// Key hashes the board+turn+castling+en-passant fields of the FEN - not the
// halfmove/fullmove counters - with xxhash, so repeated positions collide
// regardless of clock progress (spec.md's prediction-cache and repetition
// requirements both key on position identity, not move count).
func (p *Position) Key() uint64 {
	fields := strings.Fields(p.board.ToFen())
	n := len(fields)
	if n > 4 {
		n = 4
	}
	canonical := strings.Join(fields[:n], " ")
	return xxhash.Sum64String(canonical)
}

func (p *Position) HalfmoveClock() int {
	fields := strings.Fields(p.board.ToFen())
	if len(fields) < 5 {
		return 0
	}
	n, err := strconv.Atoi(fields[4])
	if err != nil {
		return 0
	}
	return n
}

func (p *Position) FEN() string { return p.board.ToFen() }

// Clone copies history along with the board. Every simulation runs on a
// Position cloned from the search root (searchgame.Game.Clone), and
// RootPly is an absolute index into that history; a clone that dropped
// history would make RepetitionCountSince(RootPly) blind to any
// repetition whose first occurrence lies at or before the root.
func (p *Position) Clone() rules.Position {
	history := make([]uint64, len(p.history))
	copy(history, p.history)
	return &Position{board: p.board.Clone(), history: history}
}
