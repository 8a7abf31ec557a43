package dragontooth

import (
	"fmt"
	"strings"

	chess "github.com/IlikeChooros/dragontoothmg"

	"github.com/chesscoach/searchcore/pkg/chesserr"
	"github.com/chesscoach/searchcore/pkg/rules"
)

// dragontoothmg exposes each side's material as one bitboard per piece
// type; pieceLetterAt walks them to answer "what's standing on sq", which
// SAN generation and disambiguation both need and which the engine itself
// has no reason to expose as a single call.
func pieceLetterAt(b *chess.Board, sq rules.Square) (letter byte, white bool, found bool) {
	mask := uint64(1) << uint(sq)
	sides := [2]struct {
		bb    chess.Bitboards
		white bool
	}{
		{b.White, true},
		{b.Black, false},
	}
	for _, side := range sides {
		switch {
		case side.bb.Pawns&mask != 0:
			return 'P', side.white, true
		case side.bb.Knights&mask != 0:
			return 'N', side.white, true
		case side.bb.Bishops&mask != 0:
			return 'B', side.white, true
		case side.bb.Rooks&mask != 0:
			return 'R', side.white, true
		case side.bb.Queens&mask != 0:
			return 'Q', side.white, true
		case side.bb.Kings&mask != 0:
			return 'K', side.white, true
		}
	}
	return 0, false, false
}

func isCastle(from, to rules.Square, letter byte) bool {
	if letter != 'K' {
		return false
	}
	diff := int(to) - int(from)
	return diff == 2 || diff == -2
}

// SAN renders m in Standard Algebraic Notation. It omits the trailing
// '+'/'#' check annotation except for checkmate, which IsTerminated already
// tells us for free; a bare, un-annotated '+' would need an "is the king
// attacked" query the engine doesn't expose, and EPD comparisons match on
// move identity, not annotation.
func (p *Position) SAN(m rules.Move) (string, error) {
	dm, err := p.engineMove(m)
	if err != nil {
		return "", err
	}

	letter, _, found := pieceLetterAt(p.board, m.From)
	if !found {
		chesserr.InvariantViolation("dragontooth.SAN: no piece on %s to move from", m.From.String())
	}

	if isCastle(m.From, m.To, letter) {
		san := "O-O"
		if int(m.To)%8 == 2 { // c-file target: queenside
			san = "O-O-O"
		}
		return p.appendCheckSuffix(dm, san), nil
	}

	_, _, capturesSomething := pieceLetterAt(p.board, m.To)
	isEnPassant := letter == 'P' && !capturesSomething && m.From%8 != m.To%8
	isCapture := capturesSomething || isEnPassant

	var sb strings.Builder
	if letter != 'P' {
		sb.WriteByte(letter)
		sb.WriteString(p.disambiguate(letter, m))
	} else if isCapture {
		sb.WriteByte(byte('a' + m.From%8))
	}
	if isCapture {
		sb.WriteByte('x')
	}
	sb.WriteString(m.To.String())
	if m.Promotion != rules.NoPiece {
		sb.WriteByte('=')
		sb.WriteByte(promotionLetter(m.Promotion))
	}

	return p.appendCheckSuffix(dm, sb.String()), nil
}

func promotionLetter(pc rules.Piece) byte {
	switch pc {
	case rules.Knight:
		return 'N'
	case rules.Bishop:
		return 'B'
	case rules.Rook:
		return 'R'
	default:
		return 'Q'
	}
}

// disambiguate returns the minimal file/rank/both prefix needed to tell m
// apart from other legal moves of the same piece type landing on the same
// square (SAN §3.2's usual rule).
func (p *Position) disambiguate(letter byte, m rules.Move) string {
	sameFile, sameRank, other := false, false, false
	for _, cand := range p.LegalMoves() {
		if cand == m || cand.To != m.To {
			continue
		}
		l, _, ok := pieceLetterAt(p.board, cand.From)
		if !ok || l != letter {
			continue
		}
		other = true
		if cand.From%8 == m.From%8 {
			sameFile = true
		}
		if cand.From/8 == m.From/8 {
			sameRank = true
		}
	}
	switch {
	case !other:
		return ""
	case !sameFile:
		return string([]byte{'a' + byte(m.From%8)})
	case !sameRank:
		return string([]byte{'1' + byte(m.From/8)})
	default:
		return m.From.String()
	}
}

func (p *Position) appendCheckSuffix(dm chess.Move, san string) string {
	p.board.Make(dm)
	defer p.board.Undo()
	replies := p.board.GenerateLegalMoves()
	if p.board.IsTerminated(len(replies)) && p.board.Termination() == chess.TerminationCheckmate {
		return san + "#"
	}
	return san
}

// ParseSAN parses SAN text against the position's current legal moves
// (spec.md §6: EPD bm/am opcodes are matched this way).
func (p *Position) ParseSAN(san string) (rules.Move, error) {
	s := strings.TrimRight(san, "+#!?")
	legal := p.LegalMoves()

	if s == "O-O" || s == "O-O-O" {
		return p.parseCastle(s, legal)
	}

	promo := rules.NoPiece
	if i := strings.IndexByte(s, '='); i >= 0 {
		var err error
		promo, err = promotionFromLetter(s[i+1])
		if err != nil {
			return rules.Move{}, chesserr.BadInputf("dragontooth.ParseSAN", "%q: %v", san, err)
		}
		s = s[:i]
	}

	if len(s) < 2 {
		return rules.Move{}, chesserr.BadInputf("dragontooth.ParseSAN", "malformed SAN %q", san)
	}
	dest, err := rules.ParseSquare(s[len(s)-2:])
	if err != nil {
		return rules.Move{}, chesserr.BadInputf("dragontooth.ParseSAN", "malformed SAN %q: %v", san, err)
	}
	head := s[:len(s)-2]
	head = strings.ReplaceAll(head, "x", "")

	pieceLetter := byte('P')
	if len(head) > 0 && head[0] >= 'A' && head[0] <= 'Z' {
		pieceLetter = head[0]
		head = head[1:]
	}

	var fileHint, rankHint = byte(0), byte(0)
	for _, c := range head {
		switch {
		case c >= 'a' && c <= 'h':
			fileHint = byte(c)
		case c >= '1' && c <= '8':
			rankHint = byte(c)
		}
	}

	var match *rules.Move
	for i := range legal {
		cand := legal[i]
		if cand.To != dest || cand.Promotion != promo {
			continue
		}
		l, _, ok := pieceLetterAt(p.board, cand.From)
		if !ok || l != pieceLetter {
			continue
		}
		if fileHint != 0 && byte('a'+cand.From%8) != fileHint {
			continue
		}
		if rankHint != 0 && byte('1'+cand.From/8) != rankHint {
			continue
		}
		m := cand
		match = &m
	}
	if match == nil {
		return rules.Move{}, chesserr.BadInputf("dragontooth.ParseSAN", "%q does not match any legal move", san)
	}
	return *match, nil
}

func (p *Position) parseCastle(s string, legal []rules.Move) (rules.Move, error) {
	rank := byte('1')
	if !p.board.Wtomove {
		rank = '8'
	}
	from, _ := rules.ParseSquare("e" + string(rank))
	toFile := "g"
	if s == "O-O-O" {
		toFile = "c"
	}
	to, _ := rules.ParseSquare(toFile + string(rank))
	want := rules.Move{From: from, To: to}
	for _, cand := range legal {
		if cand == want {
			return cand, nil
		}
	}
	return rules.Move{}, chesserr.BadInputf("dragontooth.ParseSAN", "%s is not legal (no castling rights or path blocked)", s)
}

func promotionFromLetter(b byte) (rules.Piece, error) {
	switch b {
	case 'N':
		return rules.Knight, nil
	case 'B':
		return rules.Bishop, nil
	case 'R':
		return rules.Rook, nil
	case 'Q':
		return rules.Queen, nil
	default:
		return rules.NoPiece, fmt.Errorf("unknown promotion letter %q", b)
	}
}
