// Package terminal implements the terminal-value sum type used to prove
// and propagate forced mates through a search tree: NonTerminal, Draw,
// MateIn(n) and OpponentMateIn(n), plus the best-child ordering that
// makes mate proofs dominate raw visit counts (spec.md §3, §4.3, §4.4).
package terminal

import "fmt"

// Kind discriminates the terminal-value sum type.
type Kind uint8

const (
	NonTerminal Kind = iota
	Draw
	MateIn
	OpponentMateIn
)

// Value is a tagged union: N is only meaningful for MateIn/OpponentMateIn,
// and is always >= 1 (a mate distance in full moves).
type Value struct {
	Kind Kind
	N    int
}

var None = Value{Kind: NonTerminal}

func MakeDraw() Value                { return Value{Kind: Draw} }
func MakeMateIn(n int) Value         { return Value{Kind: MateIn, N: n} }
func MakeOpponentMateIn(n int) Value { return Value{Kind: OpponentMateIn, N: n} }

func (v Value) IsTerminal() bool { return v.Kind != NonTerminal }
func (v Value) IsMate() bool     { return v.Kind == MateIn }
func (v Value) IsOpponentMate() bool { return v.Kind == OpponentMateIn }

func (v Value) String() string {
	switch v.Kind {
	case NonTerminal:
		return "-"
	case Draw:
		return "draw"
	case MateIn:
		return fmt.Sprintf("mate(%d)", v.N)
	case OpponentMateIn:
		return fmt.Sprintf("opp-mate(%d)", v.N)
	default:
		return "?"
	}
}

// ImmediateValue returns the value of a just-discovered terminal, from the
// perspective of the parent that moved into it (spec.md §4.1 step 1):
// a Draw is 0.5, and a MateIn(1) - the side to move here is checkmated -
// is a win (1.0) for whoever just delivered it. Only Draw and MateIn(1)
// are ever returned directly by expand_and_evaluate's first phase.
func (v Value) ImmediateValue() (value float64, ok bool) {
	switch {
	case v.Kind == Draw:
		return 0.5, true
	case v.Kind == MateIn && v.N == 1:
		return 1.0, true
	default:
		return 0, false
	}
}

// categoryScale is chosen far larger than any realistic mate distance so
// that category (opponent-mate < non-mate/draw < mate) always dominates
// the within-category distance term.
const categoryScale = 1 << 30

// mateFloor is the asymptotic mate-score multiplier as n grows without
// bound: the table stays strictly positive and decreasing but saturates
// rather than vanishing, so a very distant proven mate still outranks
// tree noise. Exact values are a tuning knob (spec.md §9 Open Question 2).
const mateFloor = 0.05

// mateScoreTable memoises f(n) for the first few hundred mate distances;
// values beyond the table are computed directly, since the closed form is
// O(1) and the table exists only to avoid a division inside hot selection
// loops for the common (shallow) case.
var mateScoreTable = buildMateScoreTable(512)

func buildMateScoreTable(size int) []float64 {
	t := make([]float64, size+1)
	for n := 1; n <= size; n++ {
		t[n] = mateFloor + (1-mateFloor)/float64(n)
	}
	return t
}

// mateFactor returns f(n): positive, monotonically non-increasing in n,
// saturating at mateFloor.
func mateFactor(n int) float64 {
	if n < 1 {
		n = 1
	}
	if n < len(mateScoreTable) {
		return mateScoreTable[n]
	}
	return mateFloor + (1-mateFloor)/float64(n)
}

// MateScore is the UCB mate term (spec.md §4.2): 0 for non-mate and for
// OpponentMateIn (no adjustment there - a proven loss should never be
// preferred by exploration bonus alone), and c*f(n) for MateIn(n).
func (v Value) MateScore(c float64) float64 {
	if v.Kind == MateIn {
		return c * mateFactor(v.N)
	}
	return 0
}

// categoryScore maps a terminal value to a signed integer such that
// category strictly dominates mate distance, per spec.md §4.3:
// MateIn(m) > NonTerminal/Draw > OpponentMateIn(n), smaller m preferred
// within MateIn, larger n preferred within OpponentMateIn.
func categoryScore(v Value) int64 {
	switch v.Kind {
	case MateIn:
		return categoryScale - int64(v.N)
	case OpponentMateIn:
		return -categoryScale + int64(v.N)
	default:
		return 0
	}
}

// Comparable is anything worse_than can rank: a terminal value plus the
// visit count used to break ties within a category (spec.md §4.3 rule 2).
type Comparable struct {
	Terminal Value
	Visits   int
}

// WorseThan implements the ordering used for best_child maintenance and
// for select_move's fallback (spec.md §4.3): mate category dominates,
// then visit count, ties are not worse.
func WorseThan(a, b Comparable) bool {
	sa, sb := categoryScore(a.Terminal), categoryScore(b.Terminal)
	if sa != sb {
		return sa < sb
	}
	return a.Visits < b.Visits
}
