package strength

import (
	"math/rand"
	"time"

	"github.com/chesscoach/searchcore/pkg/cache"
	"github.com/chesscoach/searchcore/pkg/eval"
	"github.com/chesscoach/searchcore/pkg/mctsengine"
	"github.com/chesscoach/searchcore/pkg/node"
	"github.com/chesscoach/searchcore/pkg/rules"
	"github.com/chesscoach/searchcore/pkg/searchgame"
)

// Rating is the optional linear conversion from raw score to an Elo-style
// number spec.md §4.10 mentions ("an optional linear rating slope ·
// score/positions + intercept").
type Rating struct {
	Slope     float64
	Intercept float64
}

// Result summarises one EPD file's run.
type Result struct {
	Score      float64
	Achievable float64
	Positions  int

	HasRating bool
	Rating    float64

	// PerPosition holds one PositionResult per record, in file order, for
	// callers that want to report per-position detail rather than only
	// the aggregate.
	PerPosition []PositionResult
}

// PositionResult is the outcome for a single EPD record.
type PositionResult struct {
	Record     Record
	Played     string // SAN of the move actually chosen, "" if none
	Score      float64
	Achievable float64
}

// Driver runs the strength test of spec.md §4.10 over a parsed EPD file:
// for each record, prune the tree, install the position with
// try_hard=true, search for MoveTimeMs, take select_move's result, and
// score it against the record's bm/am opcodes.
type Driver struct {
	NewPosition func(fen string) (rules.Position, error)
	Arena       *node.Arena[rules.Move]
	Cache       *cache.Cache
	Evaluator   eval.Evaluator
	EngineConfig mctsengine.Config

	MoveTimeMs int
	Rating     *Rating

	// Rand seeds each position's worker; nil defaults to a time-seeded
	// source, since strength-test reproducibility is not itself a spec
	// requirement (unlike self-play, which spec.md never mentions
	// determinism for either).
	Rand *rand.Rand
}

// Run executes the driver over every record, freeing each position's tree
// before moving to the next (spec.md §4.10 "prune the tree" between
// positions).
func (d *Driver) Run(records []Record) (Result, error) {
	rng := d.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	// Clear the prediction cache before the run so one position's stored
	// values can never leak into another's search, keeping repeated runs
	// of the same suite comparable.
	if d.Cache != nil {
		d.Cache.Clear()
	}

	result := Result{Positions: len(records)}
	for _, rec := range records {
		pr, err := d.runOne(rec, rng)
		if err != nil {
			return Result{}, err
		}
		result.PerPosition = append(result.PerPosition, pr)
		result.Score += pr.Score
		result.Achievable += pr.Achievable
	}

	if d.Rating != nil && len(records) > 0 {
		result.HasRating = true
		result.Rating = d.Rating.Slope*result.Score/float64(len(records)) + d.Rating.Intercept
	}
	return result, nil
}

func (d *Driver) runOne(rec Record, rng *rand.Rand) (PositionResult, error) {
	pos, err := d.NewPosition(rec.FEN)
	if err != nil {
		return PositionResult{}, err
	}

	game := searchgame.New(pos, d.Arena, true)
	worker := mctsengine.NewWorker(d.Arena, d.Cache, d.Evaluator, d.EngineConfig, rng)

	deadline := time.Now().Add(time.Duration(d.MoveTimeMs) * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, _, err := worker.RunBatch(game); err != nil {
			break
		}
	}

	var played string
	if move, _, ok := game.SelectMove(0, nil); ok {
		played, _ = pos.SAN(move)
	}

	d.Arena.FreeSubtree(game.Root)

	score, achievable := scoreRecord(rec, played)
	return PositionResult{Record: rec, Played: played, Score: score, Achievable: achievable}, nil
}

// scoreRecord implements spec.md §6/§4.10's scoring rules: an am
// violation always scores zero regardless of any bm match; otherwise a bm
// match scores its pts entry if the record carries one, else a flat 1
// point; no match scores zero. achievable is the highest point value the
// position could have earned, for the caller's "total achievable" report.
func scoreRecord(rec Record, played string) (score, achievable float64) {
	if contains(rec.AvoidMoves, played) {
		return 0, pointsAchievable(rec)
	}
	if len(rec.BestMoves) == 0 {
		if len(rec.AvoidMoves) > 0 {
			return 1, 1 // avoided every am with no bm to also satisfy
		}
		return 0, 0
	}

	achievable = pointsAchievable(rec)
	if len(rec.Points) > 0 {
		if p, ok := rec.Points[played]; ok {
			return float64(p), achievable
		}
		return 0, achievable
	}
	if contains(rec.BestMoves, played) {
		return 1, achievable
	}
	return 0, achievable
}

func pointsAchievable(rec Record) float64 {
	if len(rec.Points) == 0 {
		if len(rec.BestMoves) > 0 || len(rec.AvoidMoves) > 0 {
			return 1
		}
		return 0
	}
	max := 0.0
	for _, bm := range rec.BestMoves {
		if p, ok := rec.Points[bm]; ok && float64(p) > max {
			max = float64(p)
		}
	}
	return max
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
