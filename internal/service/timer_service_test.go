package service

import (
	"context"
	"net/http"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pomosync/backend/internal/db"
	"pomosync/backend/internal/model"
	"pomosync/backend/internal/repository"
)

// manualClock drives the engine deterministically in tests.
type manualClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}

// notifyRecorder captures fan-out calls.
type notifyRecorder struct {
	mu      sync.Mutex
	reasons []string
}

func (r *notifyRecorder) Notify(userID, reason string, state interface{}) {
	r.mu.Lock()
	r.reasons = append(r.reasons, reason)
	r.mu.Unlock()
}

func (r *notifyRecorder) Reasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.reasons...)
}

type serviceFixture struct {
	svc      *TimerService
	repo     *repository.TimerRepository
	clock    *manualClock
	notifier *notifyRecorder
	userID   string
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = database.Close()
	})

	_, currentFile, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(currentFile), "..", "..", "migrations")
	require.NoError(t, db.RunMigrations(database, migrationsDir))

	clock := &manualClock{current: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	notifier := &notifyRecorder{}

	userRepo := repository.NewUserRepository(database)
	timerRepo := repository.NewTimerRepository(database)

	userID := uuid.NewString()
	now := clock.Now()
	require.NoError(t, userRepo.Create(context.Background(), &model.User{
		ID:           userID,
		Email:        "timer@example.com",
		PasswordHash: "x",
		CreatedAt:    now,
		UpdatedAt:    now,
	}))
	require.NoError(t, timerRepo.CreateInitialState(context.Background(), userID, now))

	return &serviceFixture{
		svc:      NewTimerService(timerRepo, clock, notifier),
		repo:     timerRepo,
		clock:    clock,
		notifier: notifier,
		userID:   userID,
	}
}

func (f *serviceFixture) apply(t *testing.T, baseVersion int, op Operation) *StateView {
	t.Helper()
	view, apiErr := f.svc.Apply(context.Background(), f.userID, baseVersion, op)
	require.Nil(t, apiErr)
	return view
}

func (f *serviceFixture) getState(t *testing.T) *StateView {
	t.Helper()
	view, apiErr := f.svc.GetState(context.Background(), f.userID)
	require.Nil(t, apiErr)
	return view
}

func (f *serviceFixture) sessions(t *testing.T) []model.Session {
	t.Helper()
	sessions, apiErr := f.svc.ListSessions(context.Background(), f.userID, 200)
	require.Nil(t, apiErr)
	return sessions
}

func TestGetStateUnknownUser(t *testing.T) {
	f := newServiceFixture(t)

	_, apiErr := f.svc.GetState(context.Background(), "no-such-user")
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "state_not_found", apiErr.Code)
}

func TestIdempotentRead(t *testing.T) {
	f := newServiceFixture(t)

	first := f.getState(t)
	f.clock.Advance(2 * time.Second)
	second := f.getState(t)

	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.RemainingSeconds, second.RemainingSeconds, "idle remaining does not drift")
	assert.True(t, second.ServerTime.After(first.ServerTime))
}

func TestStartPauseResumeExactness(t *testing.T) {
	f := newServiceFixture(t)

	started := f.apply(t, 1, Operation{Kind: OpStart})
	assert.Equal(t, model.StatusRunning, started.Status)
	assert.Equal(t, 2, started.Version)
	assert.NotNil(t, started.SessionID)

	f.clock.Advance(500 * time.Second)
	paused := f.apply(t, 2, Operation{Kind: OpPause})
	assert.Equal(t, model.StatusPaused, paused.Status)
	assert.Equal(t, 1000, paused.RemainingSeconds)
	assert.Nil(t, paused.StartedAt)
	assert.NotNil(t, paused.SessionID, "pausing keeps the active session")

	resumed := f.apply(t, 3, Operation{Kind: OpStart})
	assert.Equal(t, model.StatusRunning, resumed.Status)
	assert.Equal(t, 1000, resumed.RemainingSeconds)

	f.clock.Advance(200 * time.Second)
	paused = f.apply(t, 4, Operation{Kind: OpPause})
	assert.Equal(t, 800, paused.RemainingSeconds)
	assert.Equal(t, 5, paused.Version)

	// Resuming never opened a second ledger row.
	assert.Len(t, f.sessions(t), 1)
}

func TestStartIsNoOpWhileRunning(t *testing.T) {
	f := newServiceFixture(t)

	started := f.apply(t, 1, Operation{Kind: OpStart})
	again := f.apply(t, started.Version, Operation{Kind: OpStart})

	assert.Equal(t, started.Version, again.Version, "no version bump on no-op")
	assert.Len(t, f.sessions(t), 1)
}

func TestPauseIsNoOpWhileIdle(t *testing.T) {
	f := newServiceFixture(t)

	view := f.apply(t, 1, Operation{Kind: OpPause})
	assert.Equal(t, 1, view.Version)
	assert.Equal(t, model.StatusIdle, view.Status)
}

func TestConflictDeterminism(t *testing.T) {
	f := newServiceFixture(t)

	f.apply(t, 1, Operation{Kind: OpStart})

	// A second device still holding version 1 must lose, and the attached
	// snapshot must be the winner's resulting state, never a stale one.
	_, apiErr := f.svc.Apply(context.Background(), f.userID, 1, Operation{Kind: OpPause})
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "state_conflict", apiErr.Code)

	details, ok := apiErr.Details.(map[string]interface{})
	require.True(t, ok)
	snapshot, ok := details["state"].(StateView)
	require.True(t, ok)
	assert.Equal(t, 2, snapshot.Version)
	assert.Equal(t, model.StatusRunning, snapshot.Status)
}

func TestReconcileCatchUpToShortBreak(t *testing.T) {
	f := newServiceFixture(t)

	f.apply(t, 1, Operation{
		Kind: OpUpdateSettings,
		Settings: &SettingsUpdate{
			FocusDurationSeconds:      1,
			ShortBreakDurationSeconds: 300,
			LongBreakDurationSeconds:  900,
		},
	})
	f.apply(t, 2, Operation{Kind: OpStart})

	f.clock.Advance(5 * time.Second)
	view := f.getState(t)

	assert.Equal(t, model.ModeShortBreak, view.Mode)
	assert.Equal(t, model.StatusRunning, view.Status)
	assert.Equal(t, 1, view.FocusCount)
	assert.Equal(t, 4, view.Version, "catch-up is one commit")

	var completed []model.Session
	for _, session := range f.sessions(t) {
		if session.Status == model.SessionCompleted {
			completed = append(completed, session)
		}
	}
	require.Len(t, completed, 1)
	assert.Equal(t, model.ModeFocus, completed[0].Mode)
	assert.Equal(t, 1, completed[0].ActualDurationSeconds)
	require.NotNil(t, completed[0].EndedAt)
}

func TestReconcileMultiPhaseCatchUp(t *testing.T) {
	f := newServiceFixture(t)

	f.apply(t, 1, Operation{
		Kind: OpUpdateSettings,
		Settings: &SettingsUpdate{
			FocusDurationSeconds:      60,
			ShortBreakDurationSeconds: 60,
			LongBreakDurationSeconds:  60,
		},
	})
	f.apply(t, 2, Operation{Kind: OpStart})

	// Eight 60s phases pass: F S F S F S F L, the ninth (focus) is live.
	f.clock.Advance(8*60*time.Second + 30*time.Second)
	view := f.getState(t)

	assert.Equal(t, 4, view.Version, "skipped phases collapse into one commit")
	assert.Equal(t, model.ModeFocus, view.Mode)
	assert.Equal(t, model.StatusRunning, view.Status)
	assert.Equal(t, 30, view.RemainingSeconds)
	assert.Equal(t, 4, view.FocusCount)

	// Most-recent-first: reverse into chronological order.
	sessions := f.sessions(t)
	require.Len(t, sessions, 9)
	chronological := make([]model.Session, len(sessions))
	for i, session := range sessions {
		chronological[len(sessions)-1-i] = session
	}

	wantModes := []string{
		model.ModeFocus, model.ModeShortBreak,
		model.ModeFocus, model.ModeShortBreak,
		model.ModeFocus, model.ModeShortBreak,
		model.ModeFocus, model.ModeLongBreak,
		model.ModeFocus,
	}
	for i, session := range chronological {
		assert.Equal(t, wantModes[i], session.Mode, "phase %d", i)
		if i < len(chronological)-1 {
			assert.Equal(t, model.SessionCompleted, session.Status, "phase %d", i)
			assert.Equal(t, 60, session.ActualDurationSeconds, "phase %d", i)
		} else {
			assert.Equal(t, model.SessionRunning, session.Status)
		}
	}
}

func TestVersionMonotonicityAcrossRestart(t *testing.T) {
	f := newServiceFixture(t)

	versions := []int{f.getState(t).Version}
	versions = append(versions, f.apply(t, versions[len(versions)-1], Operation{Kind: OpStart}).Version)
	f.clock.Advance(10 * time.Second)
	versions = append(versions, f.apply(t, versions[len(versions)-1], Operation{Kind: OpPause}).Version)
	versions = append(versions, f.apply(t, versions[len(versions)-1], Operation{Kind: OpReset}).Version)

	// Simulate a process restart: a fresh engine over the same storage.
	restarted := NewTimerService(f.repo, f.clock, nil)
	view, apiErr := restarted.Apply(context.Background(), f.userID, versions[len(versions)-1], Operation{Kind: OpStart})
	require.Nil(t, apiErr)
	versions = append(versions, view.Version)

	for i := 1; i < len(versions); i++ {
		assert.Equal(t, versions[i-1]+1, versions[i], "commit %d", i)
	}
}

func TestSettingsClampWhilePaused(t *testing.T) {
	f := newServiceFixture(t)

	f.apply(t, 1, Operation{Kind: OpStart})
	f.clock.Advance(500 * time.Second)
	paused := f.apply(t, 2, Operation{Kind: OpPause})
	require.Equal(t, 1000, paused.RemainingSeconds)

	clamped := f.apply(t, 3, Operation{
		Kind: OpUpdateSettings,
		Settings: &SettingsUpdate{
			FocusDurationSeconds:      600,
			ShortBreakDurationSeconds: 300,
			LongBreakDurationSeconds:  900,
		},
	})
	assert.Equal(t, 600, clamped.RemainingSeconds, "clamped down to the new duration")

	// Growing the duration never extends a paused countdown.
	grown := f.apply(t, clamped.Version, Operation{
		Kind: OpUpdateSettings,
		Settings: &SettingsUpdate{
			FocusDurationSeconds:      3000,
			ShortBreakDurationSeconds: 300,
			LongBreakDurationSeconds:  900,
		},
	})
	assert.Equal(t, 600, grown.RemainingSeconds)
}

func TestSettingsRecomputeWhileIdle(t *testing.T) {
	f := newServiceFixture(t)

	view := f.apply(t, 1, Operation{
		Kind: OpUpdateSettings,
		Settings: &SettingsUpdate{
			FocusDurationSeconds:      600,
			ShortBreakDurationSeconds: 120,
			LongBreakDurationSeconds:  1200,
			LongBreakEvery:            3,
		},
	})

	assert.Equal(t, 600, view.RemainingSeconds)
	assert.Equal(t, 3, view.LongBreakEvery)
}

func TestSettingsUntouchedWhileRunning(t *testing.T) {
	f := newServiceFixture(t)

	f.apply(t, 1, Operation{Kind: OpStart})
	f.clock.Advance(100 * time.Second)

	view := f.apply(t, 2, Operation{
		Kind: OpUpdateSettings,
		Settings: &SettingsUpdate{
			FocusDurationSeconds:      600,
			ShortBreakDurationSeconds: 300,
			LongBreakDurationSeconds:  900,
		},
	})

	// The live countdown keeps its original 1500s snapshot.
	assert.Equal(t, model.StatusRunning, view.Status)
	assert.Equal(t, 1400, view.RemainingSeconds)
}

func TestSettingsValidation(t *testing.T) {
	f := newServiceFixture(t)

	_, apiErr := f.svc.Apply(context.Background(), f.userID, 1, Operation{
		Kind: OpUpdateSettings,
		Settings: &SettingsUpdate{
			FocusDurationSeconds:      0,
			ShortBreakDurationSeconds: 300,
			LongBreakDurationSeconds:  900,
		},
	})
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	// Rejected before any state was touched.
	assert.Equal(t, 1, f.getState(t).Version)
}

func TestResetCancelsSessionWithElapsedTime(t *testing.T) {
	f := newServiceFixture(t)

	f.apply(t, 1, Operation{Kind: OpStart})
	f.clock.Advance(300 * time.Second)

	view := f.apply(t, 2, Operation{Kind: OpReset})
	assert.Equal(t, model.StatusIdle, view.Status)
	assert.Equal(t, 1500, view.RemainingSeconds)
	assert.Nil(t, view.SessionID)

	sessions := f.sessions(t)
	require.Len(t, sessions, 1)
	assert.Equal(t, model.SessionCancelled, sessions[0].Status)
	assert.Equal(t, 300, sessions[0].ActualDurationSeconds, "elapsed, not planned")
}

func TestSwitchModeValidatesAndCancels(t *testing.T) {
	f := newServiceFixture(t)

	_, apiErr := f.svc.Apply(context.Background(), f.userID, 1, Operation{Kind: OpSwitchMode, Mode: "nap"})
	require.NotNil(t, apiErr)
	assert.Equal(t, "invalid_mode", apiErr.Code)

	f.apply(t, 1, Operation{Kind: OpStart})
	view := f.apply(t, 2, Operation{Kind: OpSwitchMode, Mode: model.ModeLongBreak})

	assert.Equal(t, model.ModeLongBreak, view.Mode)
	assert.Equal(t, model.StatusIdle, view.Status)
	assert.Equal(t, 900, view.RemainingSeconds)

	sessions := f.sessions(t)
	require.Len(t, sessions, 1)
	assert.Equal(t, model.SessionCancelled, sessions[0].Status)
}

func TestSkipCancelsAndDoesNotAdvanceCadence(t *testing.T) {
	f := newServiceFixture(t)

	f.apply(t, 1, Operation{Kind: OpStart})
	f.clock.Advance(60 * time.Second)

	view := f.apply(t, 2, Operation{Kind: OpSkip})
	assert.Equal(t, model.ModeShortBreak, view.Mode)
	assert.Equal(t, model.StatusIdle, view.Status)
	assert.Equal(t, 0, view.FocusCount, "a skipped focus does not count")

	sessions := f.sessions(t)
	require.Len(t, sessions, 1)
	assert.Equal(t, model.SessionCancelled, sessions[0].Status)
	assert.Equal(t, 60, sessions[0].ActualDurationSeconds)

	// Skipping a break goes straight back to focus.
	f.apply(t, view.Version, Operation{Kind: OpStart})
	skipped := f.apply(t, view.Version+1, Operation{Kind: OpSkip})
	assert.Equal(t, model.ModeFocus, skipped.Mode)
}

func TestNotifierReasons(t *testing.T) {
	f := newServiceFixture(t)

	f.apply(t, 1, Operation{
		Kind: OpUpdateSettings,
		Settings: &SettingsUpdate{
			FocusDurationSeconds:      1,
			ShortBreakDurationSeconds: 300,
			LongBreakDurationSeconds:  900,
		},
	})
	f.apply(t, 2, Operation{Kind: OpStart})
	f.clock.Advance(5 * time.Second)
	f.getState(t)

	assert.Equal(t, []string{
		model.ReasonUpdateSettings,
		model.ReasonStart,
		model.ReasonReconcile,
	}, f.notifier.Reasons())
}

func TestNoOpDoesNotNotify(t *testing.T) {
	f := newServiceFixture(t)

	f.apply(t, 1, Operation{Kind: OpPause})
	assert.Empty(t, f.notifier.Reasons())
}
