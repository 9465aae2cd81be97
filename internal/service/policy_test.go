package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pomosync/backend/internal/model"
)

func TestDurationForMode(t *testing.T) {
	state := &model.TimerState{
		FocusDurationSeconds:      1500,
		ShortBreakDurationSeconds: 300,
		LongBreakDurationSeconds:  900,
	}

	state.Mode = model.ModeFocus
	assert.Equal(t, 1500, durationForMode(state))

	state.Mode = model.ModeShortBreak
	assert.Equal(t, 300, durationForMode(state))

	state.Mode = model.ModeLongBreak
	assert.Equal(t, 900, durationForMode(state))
}

func TestNextModeAfterBreakIsAlwaysFocus(t *testing.T) {
	assert.Equal(t, model.ModeFocus, nextModeAfter(model.ModeShortBreak, 3, 4))
	assert.Equal(t, model.ModeFocus, nextModeAfter(model.ModeLongBreak, 4, 4))
}

func TestNextModeAfterFocusCadence(t *testing.T) {
	cases := []struct {
		completedFocus int
		want           string
	}{
		{1, model.ModeShortBreak},
		{2, model.ModeShortBreak},
		{3, model.ModeShortBreak},
		{4, model.ModeLongBreak},
		{5, model.ModeShortBreak},
		{8, model.ModeLongBreak},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, nextModeAfter(model.ModeFocus, tc.completedFocus, 4),
			"completedFocus=%d", tc.completedFocus)
	}
}

func TestNextModeAfterFocusCustomInterval(t *testing.T) {
	assert.Equal(t, model.ModeLongBreak, nextModeAfter(model.ModeFocus, 2, 2))
	assert.Equal(t, model.ModeShortBreak, nextModeAfter(model.ModeFocus, 3, 2))
}

func TestNextModeAfterFocusInvalidIntervalFallsBack(t *testing.T) {
	// An unset interval behaves like the default of 4.
	assert.Equal(t, model.ModeShortBreak, nextModeAfter(model.ModeFocus, 3, 0))
	assert.Equal(t, model.ModeLongBreak, nextModeAfter(model.ModeFocus, 4, 0))
}
