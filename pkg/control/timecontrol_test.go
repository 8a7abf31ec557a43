package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chesscoach/searchcore/pkg/rules"
)

func TestDeadlineInfiniteNeverDerivesADeadline(t *testing.T) {
	_, ok := Deadline(TimeControl{Mode: Infinite}, rules.White, time.Now(), 20, 50)
	assert.False(t, ok)
}

func TestDeadlineMoveTimeIsExactlyMoveTimeAfterStart(t *testing.T) {
	start := time.Now()
	deadline, ok := Deadline(TimeControl{Mode: MoveTime, MoveTimeMs: 500}, rules.White, start, 20, 50)
	assert.True(t, ok)
	assert.Equal(t, start.Add(500*time.Millisecond), deadline)
}

func TestDeadlineGameClockUsesSideToMovesBudget(t *testing.T) {
	start := time.Now()
	tc := TimeControl{Mode: GameClock, WTimeMs: 20000, WIncMs: 100, BTimeMs: 5000, BIncMs: 0}

	white, ok := Deadline(tc, rules.White, start, 20, 50)
	assert.True(t, ok)
	assert.Equal(t, start.Add(time.Duration(20000/20+100-50)*time.Millisecond), white)

	black, ok := Deadline(tc, rules.Black, start, 20, 50)
	assert.True(t, ok)
	assert.Equal(t, start.Add(time.Duration(5000/20+0-50)*time.Millisecond), black)
}

func TestDeadlineGameClockNeverGoesNegative(t *testing.T) {
	start := time.Now()
	tc := TimeControl{Mode: GameClock, WTimeMs: 10, WIncMs: 0}
	deadline, ok := Deadline(tc, rules.White, start, 20, 5000)
	assert.True(t, ok)
	assert.Equal(t, start, deadline)
}

func TestDeadlineGameClockDefaultsFractionWhenUnset(t *testing.T) {
	start := time.Now()
	tc := TimeControl{Mode: GameClock, WTimeMs: 20000}
	deadline, ok := Deadline(tc, rules.White, start, 0, 0)
	assert.True(t, ok)
	assert.Equal(t, start.Add(time.Duration(20000/20)*time.Millisecond), deadline)
}
