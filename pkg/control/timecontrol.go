package control

import (
	"time"

	"github.com/chesscoach/searchcore/pkg/rules"
)

// Deadline computes the wall-clock instant a search under tc should stop,
// given the side to move and the safety-buffer/fraction options (spec.md
// §4.8's time-control formula). ok is false for Infinite, meaning the
// caller must fall back to some other stopping condition (a simulation
// cap, or stop/quit).
//
// Grounded on Oliverans-GooseEngine's engine/time_management.go
// TimeHandler: a remaining-time/increment budget shaved by a fixed safety
// buffer, generalised here from that file's fixed-divisor movesLeft
// estimate to spec.md's explicit, UCI-tunable fraction_of_remaining.
func Deadline(tc TimeControl, side rules.Color, start time.Time, fractionOfRemaining, safetyBufferMoveMs int) (deadline time.Time, ok bool) {
	switch tc.Mode {
	case MoveTime:
		return start.Add(time.Duration(tc.MoveTimeMs) * time.Millisecond), true

	case GameClock:
		remaining, increment := tc.WTimeMs, tc.WIncMs
		if side == rules.Black {
			remaining, increment = tc.BTimeMs, tc.BIncMs
		}
		if fractionOfRemaining <= 0 {
			fractionOfRemaining = 20
		}
		allowedMs := remaining/fractionOfRemaining + increment - safetyBufferMoveMs
		if allowedMs < 0 {
			allowedMs = 0
		}
		return start.Add(time.Duration(allowedMs) * time.Millisecond), true

	default: // Infinite
		return time.Time{}, false
	}
}
