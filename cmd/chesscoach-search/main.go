// Command chesscoach-search is the UCI front-end for the search core:
// stdin/stdout speak the UCI text protocol (spec.md §6), or with -epd it
// runs the strength-test driver over an EPD file instead (spec.md §4.10).
//
// Grounded on the teacher's own wiring example, examples/chess/main.go
// (construct the rules adapter, build the search machinery, drive it from
// a single main goroutine), generalised from that example's one-shot
// Search() call to a long-lived UCI session supervised by
// golang.org/x/sync/errgroup, per domino14-macondo's own use of errgroup
// to supervise a worker goroutine alongside its caller.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/chesscoach/searchcore/pkg/cache"
	"github.com/chesscoach/searchcore/pkg/control"
	"github.com/chesscoach/searchcore/pkg/eval"
	"github.com/chesscoach/searchcore/pkg/node"
	"github.com/chesscoach/searchcore/pkg/rules"
	"github.com/chesscoach/searchcore/pkg/rules/dragontooth"
	"github.com/chesscoach/searchcore/pkg/strength"
)

func main() {
	epdPath := flag.String("epd", "", "run the strength test against this EPD file instead of speaking UCI")
	moveTimeMs := flag.Int("movetime", 1000, "per-position search time in milliseconds, for -epd mode")
	ratingSlope := flag.Float64("rating-slope", 0, "linear rating slope; 0 disables the rating line")
	ratingIntercept := flag.Float64("rating-intercept", 0, "linear rating intercept")
	debug := flag.Bool("debug", false, "enable debug-level logging on stderr")
	flag.Parse()

	logLevel := zerolog.InfoLevel
	if *debug {
		logLevel = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(logLevel).With().Timestamp().Logger()

	factory := func(fen string) (rules.Position, error) {
		return dragontooth.FromFEN(fen)
	}

	if *epdPath != "" {
		if err := runEPD(*epdPath, factory, *moveTimeMs, *ratingSlope, *ratingIntercept, log); err != nil {
			log.Fatal().Err(err).Msg("strength test failed")
		}
		return
	}

	if err := runUCI(factory, log); err != nil {
		log.Fatal().Err(err).Msg("search session failed")
	}
}

func runUCI(factory control.PositionFactory, log zerolog.Logger) error {
	opts := control.DefaultOptions()
	arena := node.NewArena[rules.Move](node.DefaultSlabNodes)
	predCache := cache.New()
	if err := predCache.AllocateMiB(opts.HashMiB); err != nil {
		return fmt.Errorf("allocating prediction cache: %w", err)
	}

	// eval.UniformEvaluator stands in for the pluggable network spec.md
	// deliberately leaves external (§1 Non-goals: "we do not specify the
	// network architecture"); a real deployment swaps this for whatever
	// network_type/network_weights name.
	evaluator := eval.Evaluator(eval.UniformEvaluator{Value: 0.5})

	ctrl := control.NewController(factory, arena, predCache, evaluator, opts, os.Stdout, log)

	g := new(errgroup.Group)
	g.Go(ctrl.Run)
	g.Go(func() error {
		control.RunUCI(ctrl, os.Stdin, os.Stdout)
		ctrl.SignalQuit()
		return nil
	})
	return g.Wait()
}

func runEPD(path string, factory control.PositionFactory, moveTimeMs int, slope, intercept float64, log zerolog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening EPD file: %w", err)
	}
	defer f.Close()

	records, err := strength.ParseEPD(f)
	if err != nil {
		return err
	}
	log.Info().Int("positions", len(records)).Str("file", path).Msg("loaded EPD suite")

	opts := control.DefaultOptions()
	arena := node.NewArena[rules.Move](node.DefaultSlabNodes)
	predCache := cache.New()
	if err := predCache.AllocateMiB(opts.HashMiB); err != nil {
		return fmt.Errorf("allocating prediction cache: %w", err)
	}

	driver := &strength.Driver{
		NewPosition:  factory,
		Arena:        arena,
		Cache:        predCache,
		Evaluator:    eval.UniformEvaluator{Value: 0.5},
		EngineConfig: opts.Engine,
		MoveTimeMs:   moveTimeMs,
	}
	if slope != 0 || intercept != 0 {
		driver.Rating = &strength.Rating{Slope: slope, Intercept: intercept}
	}

	result, err := driver.Run(records)
	if err != nil {
		return err
	}

	for _, pr := range result.PerPosition {
		fmt.Printf("%-24s played=%-8s score=%.1f/%.1f\n", pr.Record.ID, pr.Played, pr.Score, pr.Achievable)
	}
	fmt.Printf("total: %.1f/%.1f over %d positions\n", result.Score, result.Achievable, result.Positions)
	if result.HasRating {
		fmt.Printf("rating: %.1f\n", result.Rating)
	}
	return nil
}
