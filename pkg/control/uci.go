package control

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// engineName/engineAuthor identify this engine in the "id" UCI response.
const (
	engineName   = "ChessCoach Search"
	engineAuthor = "chesscoach-search contributors"
)

// RunUCI drives the standard UCI textual protocol over in/out (spec.md
// §6), dispatching every recognised command onto c's Signal* methods and
// blocking until in is exhausted or a quit command arrives.
//
// Grounded on Oliverans-GooseEngine's uci.go: a bufio.Scanner over the
// input reading whole lines, strings.Fields tokenizing each line, and a
// switch over the first token - the go subcommand is itself re-tokenized
// with a nested bufio.Scanner using bufio.ScanWords, while setoption works
// on the line's already-split fields.
func RunUCI(c *Controller, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "uci":
			fmt.Fprintf(out, "id name %s\n", engineName)
			fmt.Fprintf(out, "id author %s\n", engineAuthor)
			writeOptions(out, c.Options)
			fmt.Fprintln(out, "uciok")

		case "isready":
			c.WaitReady()
			fmt.Fprintln(out, "readyok")

		case "ucinewgame":
			c.SignalNewGame()

		case "debug":
			c.SignalDebug(len(fields) > 1 && fields[1] == "on")

		case "setoption":
			c.applySetOption(fields[1:])

		case "position":
			handlePosition(c, fields[1:])

		case "go":
			handleGo(c, fields[1:])

		case "stop":
			c.SignalStop()

		case "ponderhit":
			// This search core does not implement ponder search itself
			// (spec.md's UCI surface lists ponderhit as accepted, not that
			// pondering changes evaluation); treat it as a no-op transition
			// into the already-running normal search.

		case "quit":
			c.SignalQuit()
			return
		}
	}
}

// handlePosition parses "position (startpos | fen <fen…>) [moves m1 m2 …]"
// (spec.md §6), mirroring the teacher's uci.go position-command branch:
// startpos/fen dispatch followed by an optional trailing moves list.
func handlePosition(c *Controller, args []string) {
	if len(args) == 0 {
		return
	}

	var fen string
	var rest []string
	switch args[0] {
	case "startpos":
		fen = ""
		rest = args[1:]
	case "fen":
		i := 1
		var fenFields []string
		for i < len(args) && args[i] != "moves" {
			fenFields = append(fenFields, args[i])
			i++
		}
		fen = strings.Join(fenFields, " ")
		rest = args[i:]
	default:
		return
	}

	var moves []string
	if len(rest) > 0 && rest[0] == "moves" {
		moves = append(moves, rest[1:]...)
	}
	c.SignalPosition(fen, moves)
}

// handleGo parses "go [infinite | movetime ms | wtime … btime … winc …
// binc …]" by re-tokenizing args with a ScanWords-split scanner, matching
// the teacher's own go-subcommand parser shape.
func handleGo(c *Controller, args []string) {
	tc := TimeControl{Mode: Infinite}
	scanner := bufio.NewScanner(strings.NewReader(strings.Join(args, " ")))
	scanner.Split(bufio.ScanWords)

	for scanner.Scan() {
		switch scanner.Text() {
		case "infinite":
			tc.Mode = Infinite
		case "movetime":
			if scanner.Scan() {
				tc.Mode = MoveTime
				tc.MoveTimeMs = atoiOr(scanner.Text(), 0)
			}
		case "wtime":
			if scanner.Scan() {
				tc.Mode = GameClock
				tc.WTimeMs = atoiOr(scanner.Text(), 0)
			}
		case "btime":
			if scanner.Scan() {
				tc.Mode = GameClock
				tc.BTimeMs = atoiOr(scanner.Text(), 0)
			}
		case "winc":
			if scanner.Scan() {
				tc.WIncMs = atoiOr(scanner.Text(), 0)
			}
		case "binc":
			if scanner.Scan() {
				tc.BIncMs = atoiOr(scanner.Text(), 0)
			}
		default:
			// depth/nodes/mate/ponder and other search-limit subcommands
			// are accepted by real UCI GUIs but have no analogue in this
			// search core's time-control model; skip the token (and its
			// numeric argument, if the token expects one) rather than
			// reject the whole go command.
			if isNumericLimitToken(scanner.Text()) {
				scanner.Scan()
			}
		}
	}
	c.SignalGo(tc)
}

func isNumericLimitToken(tok string) bool {
	switch tok {
	case "depth", "nodes", "mate":
		return true
	default:
		return false
	}
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// applySetOption parses "name <opt> value <val>" and mutates the matching
// Options field, per the teacher's own setoption tokenizer shape. spec.md
// §9 requires every option to "apply on the next search iteration": Hash
// additionally resizes c.cache immediately (a resize discards cached
// entries regardless, so there is nothing to defer), and the engine floats
// (exploration_rate_init/base, virtual_loss_coefficient) are picked up by
// updateSearch on the next go, since worker.Config is otherwise captured
// once at NewController time.
func (c *Controller) applySetOption(args []string) {
	opts := &c.Options
	joined := strings.Join(args, " ")
	nameIdx := strings.Index(joined, "name ")
	valueIdx := strings.Index(joined, " value ")
	if nameIdx != 0 {
		return
	}
	var name, value string
	if valueIdx >= 0 {
		name = strings.TrimSpace(joined[len("name "):valueIdx])
		value = strings.TrimSpace(joined[valueIdx+len(" value "):])
	} else {
		name = strings.TrimSpace(joined[len("name "):])
	}

	switch strings.ToLower(name) {
	case "network_type":
		opts.NetworkType = value
	case "network_weights":
		opts.NetworkWeights = value
	case "search_threads":
		opts.SearchThreads = atoiOr(value, opts.SearchThreads)
	case "search_parallelism":
		opts.SearchParallelism = atoiOr(value, opts.SearchParallelism)
	case "fraction_of_remaining":
		opts.FractionOfRemaining = atoiOr(value, opts.FractionOfRemaining)
	case "safety_buffer_move_milliseconds":
		opts.SafetyBufferMoveMs = atoiOr(value, opts.SafetyBufferMoveMs)
	case "safety_buffer_overall_milliseconds":
		opts.SafetyBufferOverallMs = atoiOr(value, opts.SafetyBufferOverallMs)
	case "hash":
		opts.HashMiB = atoiOr(value, opts.HashMiB)
		if err := c.cache.AllocateMiB(opts.HashMiB); err != nil {
			c.log.Warn().Err(err).Msg("setoption Hash: resize rejected")
		}
	case "exploration_rate_init":
		opts.Engine.ExplorationRateInit = atofOr(value, opts.Engine.ExplorationRateInit)
	case "exploration_rate_base":
		opts.Engine.ExplorationRateBase = atofOr(value, opts.Engine.ExplorationRateBase)
	case "virtual_loss_coefficient":
		opts.Engine.VirtualLossIncrement = atoiOr(value, opts.Engine.VirtualLossIncrement)
	case "moving_average_build":
		opts.MovingAverageBuild = atofOr(value, opts.MovingAverageBuild)
	case "moving_average_cap":
		opts.MovingAverageCap = atofOr(value, opts.MovingAverageCap)
	case "backpropagation_puct_threshold":
		opts.BackpropagationPUCTThreshold = atofOr(value, opts.BackpropagationPUCTThreshold)
	case "move_diversity_value_delta_threshold":
		opts.MoveDiversityValueDeltaThreshold = atofOr(value, opts.MoveDiversityValueDeltaThreshold)
	case "move_diversity_temperature":
		opts.MoveDiversityTemperature = atofOr(value, opts.MoveDiversityTemperature)
	case "minimax_visits_ignore":
		opts.MinimaxVisitsIgnore = atofOr(value, opts.MinimaxVisitsIgnore)
	case "elimination_base_exponent":
		opts.EliminationBaseExponent = atoiOr(value, opts.EliminationBaseExponent)
	case "move_diversity_plies":
		opts.MoveDiversityPlies = atoiOr(value, opts.MoveDiversityPlies)
	case "transposition_progress_threshold":
		opts.TranspositionProgressThreshold = atoiOr(value, opts.TranspositionProgressThreshold)
	case "progress_decay_divisor":
		opts.ProgressDecayDivisor = atoiOr(value, opts.ProgressDecayDivisor)
	case "minimax_material_maximum":
		opts.MinimaxMaterialMaximum = atoiOr(value, opts.MinimaxMaterialMaximum)
	case "minimax_visits_recurse":
		opts.MinimaxVisitsRecurse = atoiOr(value, opts.MinimaxVisitsRecurse)
	case "syzygy":
		opts.Syzygy = value
	}
}

func atofOr(s string, fallback float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}

// writeOptions emits one "option name … type …" line per spec.md §6's
// table, in the order the table lists them.
func writeOptions(out io.Writer, opts Options) {
	fmt.Fprintln(out, "option name network_type type string default", opts.NetworkType)
	fmt.Fprintln(out, "option name network_weights type string default", opts.NetworkWeights)
	fmt.Fprintln(out, "option name search_threads type spin default", opts.SearchThreads, "min 1 max 256")
	fmt.Fprintln(out, "option name search_parallelism type spin default", opts.SearchParallelism, "min 1 max 4096")
	fmt.Fprintln(out, "option name fraction_of_remaining type spin default", opts.FractionOfRemaining, "min 5 max 100")
	fmt.Fprintln(out, "option name safety_buffer_move_milliseconds type spin default", opts.SafetyBufferMoveMs, "min 0 max 5000")
	fmt.Fprintln(out, "option name safety_buffer_overall_milliseconds type spin default", opts.SafetyBufferOverallMs, "min 0 max 30000")
	fmt.Fprintln(out, "option name Hash type spin default", opts.HashMiB, "min 0 max 262144")
	fmt.Fprintln(out, "option name exploration_rate_init type string default", opts.Engine.ExplorationRateInit)
	fmt.Fprintln(out, "option name exploration_rate_base type string default", opts.Engine.ExplorationRateBase)
	fmt.Fprintln(out, "option name virtual_loss_coefficient type string default", opts.Engine.VirtualLossIncrement)
	fmt.Fprintln(out, "option name moving_average_build type string default", opts.MovingAverageBuild)
	fmt.Fprintln(out, "option name moving_average_cap type string default", opts.MovingAverageCap)
	fmt.Fprintln(out, "option name backpropagation_puct_threshold type string default", opts.BackpropagationPUCTThreshold)
	fmt.Fprintln(out, "option name move_diversity_value_delta_threshold type string default", opts.MoveDiversityValueDeltaThreshold)
	fmt.Fprintln(out, "option name move_diversity_temperature type string default", opts.MoveDiversityTemperature)
	fmt.Fprintln(out, "option name minimax_visits_ignore type string default", opts.MinimaxVisitsIgnore)
	fmt.Fprintln(out, "option name elimination_base_exponent type spin default", opts.EliminationBaseExponent, "min 0 max 64")
	fmt.Fprintln(out, "option name move_diversity_plies type spin default", opts.MoveDiversityPlies, "min 0 max 64")
	fmt.Fprintln(out, "option name transposition_progress_threshold type spin default", opts.TranspositionProgressThreshold, "min 0 max 1000")
	fmt.Fprintln(out, "option name progress_decay_divisor type spin default", opts.ProgressDecayDivisor, "min 1 max 1000")
	fmt.Fprintln(out, "option name minimax_material_maximum type spin default", opts.MinimaxMaterialMaximum, "min 0 max 4000")
	fmt.Fprintln(out, "option name minimax_visits_recurse type spin default", opts.MinimaxVisitsRecurse, "min 0 max 100000")
	fmt.Fprintln(out, "option name syzygy type string default", opts.Syzygy)
}
