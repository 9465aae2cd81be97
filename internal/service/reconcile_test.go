package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pomosync/backend/internal/model"
)

func runningState(startedAt time.Time, remaining int) *model.TimerState {
	sessionID := "session-1"
	started := startedAt
	return &model.TimerState{
		UserID:                    "user-1",
		Mode:                      model.ModeFocus,
		Status:                    model.StatusRunning,
		RemainingSeconds:          remaining,
		FocusDurationSeconds:      1500,
		ShortBreakDurationSeconds: 300,
		LongBreakDurationSeconds:  900,
		LongBreakEvery:            4,
		StartedAt:                 &started,
		SessionID:                 &sessionID,
		Version:                   3,
		UpdatedAt:                 startedAt,
	}
}

func TestReconcileNoopWhenNotRunning(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	state := &model.TimerState{Status: model.StatusIdle, Version: 1}

	res := reconcile(state, now)

	assert.False(t, res.Changed)
	assert.Equal(t, 1, state.Version)
}

func TestReconcileNoopBeforeExpiry(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	state := runningState(start, 1500)

	res := reconcile(state, start.Add(10*time.Second))

	assert.False(t, res.Changed)
	assert.Equal(t, 3, state.Version)
	assert.Equal(t, 1500, state.RemainingSeconds)
}

func TestReconcileSingleExpiry(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	state := runningState(start, 1500)
	now := start.Add(1600 * time.Second)

	res := reconcile(state, now)

	require.True(t, res.Changed)
	assert.False(t, res.Capped)

	// The session that was live completes at its computed end instant.
	require.NotNil(t, res.CloseActive)
	assert.Equal(t, "session-1", res.CloseActive.SessionID)
	assert.Equal(t, start.Add(1500*time.Second), res.CloseActive.EndedAt)

	// First completed focus routes to the short break, auto-started.
	assert.Equal(t, model.ModeShortBreak, state.Mode)
	assert.Equal(t, model.StatusRunning, state.Status)
	assert.Equal(t, 300, state.RemainingSeconds)
	require.NotNil(t, state.StartedAt)
	assert.Equal(t, start.Add(1500*time.Second), *state.StartedAt)
	assert.Equal(t, 1, state.FocusCount)

	// One version bump for the whole catch-up, stamped with now.
	assert.Equal(t, 4, state.Version)
	assert.Equal(t, now, state.UpdatedAt)

	// One ledger row for the break left running.
	require.Len(t, res.Ledger, 1)
	opened := res.Ledger[0]
	assert.Equal(t, model.SessionRunning, opened.Status)
	assert.Equal(t, model.ModeShortBreak, opened.Mode)
	assert.Equal(t, 300, opened.PlannedDurationSeconds)
	require.NotNil(t, state.SessionID)
	assert.Equal(t, opened.ID, *state.SessionID)
}

func TestReconcileChainsPhasesDeterministically(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	state := runningState(start, 1500)
	// Enough for focus (1500) + short break (300) + part of the next focus.
	now := start.Add(2000 * time.Second)

	res := reconcile(state, now)

	require.True(t, res.Changed)
	assert.Equal(t, 4, state.Version, "multiple skipped phases still bump the version once")

	// Ledger: the short break fully elapsed, then a focus left running.
	require.Len(t, res.Ledger, 2)

	breakRow := res.Ledger[0]
	assert.Equal(t, model.SessionCompleted, breakRow.Status)
	assert.Equal(t, model.ModeShortBreak, breakRow.Mode)
	assert.Equal(t, 300, breakRow.ActualDurationSeconds)
	assert.Equal(t, start.Add(1500*time.Second), breakRow.StartedAt)
	require.NotNil(t, breakRow.EndedAt)
	assert.Equal(t, start.Add(1800*time.Second), *breakRow.EndedAt)

	focusRow := res.Ledger[1]
	assert.Equal(t, model.SessionRunning, focusRow.Status)
	assert.Equal(t, model.ModeFocus, focusRow.Mode)
	assert.Equal(t, start.Add(1800*time.Second), focusRow.StartedAt)

	assert.Equal(t, model.ModeFocus, state.Mode)
	require.NotNil(t, state.StartedAt)
	assert.Equal(t, start.Add(1800*time.Second), *state.StartedAt)
}

func TestReconcileLongBreakAfterFourthFocus(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	state := runningState(start, 1500)
	state.FocusCount = 3
	now := start.Add(1501 * time.Second)

	reconcile(state, now)

	assert.Equal(t, 4, state.FocusCount)
	assert.Equal(t, model.ModeLongBreak, state.Mode)
	assert.Equal(t, 900, state.RemainingSeconds)
}

func TestReconcileCapsPathologicalCatchUp(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	state := runningState(start, 1)
	state.FocusDurationSeconds = 1
	state.ShortBreakDurationSeconds = 1
	state.LongBreakDurationSeconds = 1
	now := start.Add(24 * time.Hour)

	res := reconcile(state, now)

	require.True(t, res.Changed)
	assert.True(t, res.Capped)
	assert.Len(t, res.Ledger, maxCatchUpPhases)
	assert.Equal(t, model.StatusRunning, state.Status)
	assert.Equal(t, 4, state.Version)
}
