package service

import "pomosync/backend/internal/model"

func durationForMode(state *model.TimerState) int {
	switch state.Mode {
	case model.ModeShortBreak:
		return state.ShortBreakDurationSeconds
	case model.ModeLongBreak:
		return state.LongBreakDurationSeconds
	default:
		return state.FocusDurationSeconds
	}
}

// nextModeAfter decides the phase that follows a finished phase. Breaks
// always return to focus. completedFocus counts finished focus phases
// including the one that just ended; every Nth one earns the long break.
func nextModeAfter(mode string, completedFocus, longBreakEvery int) string {
	if mode != model.ModeFocus {
		return model.ModeFocus
	}
	if longBreakEvery < 1 {
		longBreakEvery = model.DefaultLongBreakEvery
	}
	if completedFocus > 0 && completedFocus%longBreakEvery == 0 {
		return model.ModeLongBreak
	}
	return model.ModeShortBreak
}
