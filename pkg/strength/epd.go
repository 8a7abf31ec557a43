// Package strength implements the EPD-driven strength-test driver of
// spec.md §4.10/§6: parsing one FEN-plus-opcodes record per line, running
// a fixed-move-time search against each, and scoring the chosen move
// against the record's bm/am opcodes.
//
// Grounded on Oliverans-GooseEngine's tuner/epd_parser.go for the
// line-oriented bufio.Scanner shape (one record per line, malformed lines
// skipped rather than aborting the whole file); generalised here from that
// file's bracket-delimited single result field to the semicolon-delimited,
// multi-opcode EPD format spec.md §6 describes.
package strength

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/chesscoach/searchcore/pkg/chesserr"
)

// Record is one parsed EPD line: the position plus whichever opcodes it
// carried (spec.md §6). Opcode order within the line does not matter;
// c0..c9 comments are recognised and discarded.
type Record struct {
	FEN        string
	ID         string
	BestMoves  []string // SAN, from the bm opcode
	AvoidMoves []string // SAN, from the am opcode
	Points     map[string]int
	Line       int
}

// ParseEPD reads every line of r as one EPD record. Malformed lines (fewer
// than the four leading FEN fields) are skipped rather than aborting the
// whole file, matching the teacher's own parseNextEPD which skips
// malformed lines instead of failing the run.
func ParseEPD(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var records []Record
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, ok := parseLine(line)
		if !ok {
			continue
		}
		rec.Line = lineNo
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, chesserr.BadInputf("strength.ParseEPD", "reading EPD: %v", err)
	}
	return records, nil
}

func parseLine(line string) (Record, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return Record{}, false
	}
	// EPD carries only the four leading FEN fields (board, side, castling,
	// en passant); halfmove clock and fullmove number are appended so the
	// result is a well-formed six-field FEN any rules.Position factory
	// (dragontooth.FromFEN in particular) can parse. A line that does carry
	// both counters after those four fields keeps its own.
	fen := strings.Join(fields[:4], " ")
	opStart := 4
	if len(fields) >= 6 {
		_, errHalf := strconv.Atoi(fields[4])
		_, errFull := strconv.Atoi(fields[5])
		if errHalf == nil && errFull == nil {
			fen += " " + fields[4] + " " + fields[5]
			opStart = 6
		}
	}
	if opStart == 4 {
		fen += " 0 1"
	}
	rest := strings.Join(fields[opStart:], " ")

	rec := Record{FEN: fen}
	for _, opcode := range strings.Split(rest, ";") {
		opcode = strings.TrimSpace(opcode)
		if opcode == "" {
			continue
		}
		key, operand, _ := strings.Cut(opcode, " ")
		operand = strings.TrimSpace(operand)
		switch key {
		case "bm":
			rec.BestMoves = strings.Fields(operand)
		case "am":
			rec.AvoidMoves = strings.Fields(operand)
		case "id":
			rec.ID = strings.Trim(operand, `"`)
		case "pts":
			rec.Points = parsePoints(operand)
		default:
			// c0..c9 comment opcodes, and anything else unrecognised, are
			// ignored per spec.md §6 ("c0..c9 (comments — ignored)").
		}
	}
	return rec, true
}

// parsePoints reads the Nalimov-style per-move point table as
// space-separated "san=points" pairs (e.g. "Nb5=10 Qd2=5"); an entry that
// doesn't parse as san=int is skipped rather than failing the whole
// record, matching the tolerant-of-malformed-input posture the rest of
// this parser follows.
func parsePoints(operand string) map[string]int {
	if operand == "" {
		return nil
	}
	pts := make(map[string]int)
	for _, pair := range strings.Fields(operand) {
		san, num, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		pts[san] = n
	}
	return pts
}
