package strength

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEPDReadsBmAmIdAndComment(t *testing.T) {
	input := `rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1 bm e4 d4; am a4; id "opening 1"; c0 "a comment";`
	recs, err := ParseEPD(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", rec.FEN)
	assert.Equal(t, []string{"e4", "d4"}, rec.BestMoves)
	assert.Equal(t, []string{"a4"}, rec.AvoidMoves)
	assert.Equal(t, "opening 1", rec.ID)
	assert.Equal(t, 1, rec.Line)
}

func TestParseEPDParsesPointsTable(t *testing.T) {
	input := `8/8/8/8/8/8/8/K6k w - - 0 1 bm Nb5 Qd2; pts Nb5=10 Qd2=5;`
	recs, err := ParseEPD(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, map[string]int{"Nb5": 10, "Qd2": 5}, recs[0].Points)
}

func TestParseEPDSkipsMalformedLines(t *testing.T) {
	input := "too short\n" +
		"8/8/8/8/8/8/8/K6k w - - 0 1 bm Kb2;\n" +
		"\n# a bare comment line\n"
	recs, err := ParseEPD(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []string{"Kb2"}, recs[0].BestMoves)
	assert.Equal(t, 2, recs[0].Line, "line numbers count skipped lines too")
}

func TestParsePointsSkipsMalformedPairs(t *testing.T) {
	pts := parsePoints("Nb5=10 garbage Qd2=notanumber Rc1=3")
	assert.Equal(t, map[string]int{"Nb5": 10, "Rc1": 3}, pts)
}
