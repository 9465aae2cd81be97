package service

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	apperrors "pomosync/backend/internal/errors"
	"pomosync/backend/internal/model"
	"pomosync/backend/internal/repository"
)

// Notifier receives committed state changes for fan-out to the user's
// connected devices. Delivery is best-effort and must not block; the
// commit has already happened by the time Notify runs.
type Notifier interface {
	Notify(userID, reason string, state interface{})
}

// TimerService is the authoritative timer engine. Every read and mutation
// runs inside one transaction: load, reconcile elapsed phases, check the
// caller's version, apply the operation, commit, then fan out.
type TimerService struct {
	repo     *repository.TimerRepository
	clock    Clock
	notifier Notifier
}

// StateView is the snapshot returned to callers and pushed to devices.
// RemainingSeconds is recomputed as of ServerTime while running, so a
// client can start a local countdown from it directly.
type StateView struct {
	UserID                    string     `json:"userId"`
	Mode                      string     `json:"mode"`
	Status                    string     `json:"status"`
	RemainingSeconds          int        `json:"remainingSeconds"`
	FocusDurationSeconds      int        `json:"focusDurationSeconds"`
	ShortBreakDurationSeconds int        `json:"shortBreakDurationSeconds"`
	LongBreakDurationSeconds  int        `json:"longBreakDurationSeconds"`
	LongBreakEvery            int        `json:"longBreakEvery"`
	FocusCount                int        `json:"focusCount"`
	StartedAt                 *time.Time `json:"startedAt,omitempty"`
	SessionID                 *string    `json:"sessionId,omitempty"`
	Version                   int        `json:"version"`
	UpdatedAt                 time.Time  `json:"updatedAt"`
	ServerTime                time.Time  `json:"serverTime"`
}

func NewTimerService(repo *repository.TimerRepository, clock Clock, notifier Notifier) *TimerService {
	if clock == nil {
		clock = SystemClock()
	}
	return &TimerService{repo: repo, clock: clock, notifier: notifier}
}

func (s *TimerService) GetState(ctx context.Context, userID string) (*StateView, *apperrors.APIError) {
	now := s.clock.Now()
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	state, reconciled, apiErr := s.loadAndReconcile(ctx, tx, userID, now)
	if apiErr != nil {
		return nil, apiErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return nil, apperrors.Internal("failed to commit transaction")
	}

	view := s.toStateView(state, now)
	if reconciled {
		s.notify(userID, model.ReasonReconcile, view)
	}
	return &view, nil
}

// Apply runs one mutation against the user's timer. baseVersion must match
// the stored version after reconciliation; on mismatch the caller gets a
// conflict carrying the authoritative snapshot so it can resynchronize
// without another round trip. baseVersion <= 0 skips the check and is
// reserved for internal callers.
func (s *TimerService) Apply(ctx context.Context, userID string, baseVersion int, op Operation) (*StateView, *apperrors.APIError) {
	if apiErr := validateOperation(op); apiErr != nil {
		return nil, apiErr
	}

	now := s.clock.Now()
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	state, reconciled, apiErr := s.loadAndReconcile(ctx, tx, userID, now)
	if apiErr != nil {
		return nil, apiErr
	}

	if baseVersion > 0 && baseVersion != state.Version {
		// Commit anyway: the conflict snapshot must reflect the
		// reconciled truth, and the catch-up ledger rows should not be
		// re-derived on the next read.
		if commitErr := tx.Commit(); commitErr != nil {
			return nil, apperrors.Internal("failed to commit transaction")
		}
		view := s.toStateView(state, now)
		if reconciled {
			s.notify(userID, model.ReasonReconcile, view)
		}
		return nil, apperrors.Conflict("state_conflict", "state changed on another device", map[string]interface{}{
			"state": view,
		})
	}

	changed, apiErr := s.dispatch(ctx, tx, state, op, now)
	if apiErr != nil {
		return nil, apiErr
	}

	if changed {
		state.Version++
		state.UpdatedAt = now
		if err := s.repo.UpdateStateTx(ctx, tx, state); err != nil {
			return nil, apperrors.Internal("failed to update state")
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return nil, apperrors.Internal("failed to commit transaction")
	}

	view := s.toStateView(state, now)
	switch {
	case changed:
		s.notify(userID, op.Kind.Reason(), view)
	case reconciled:
		s.notify(userID, model.ReasonReconcile, view)
	}
	return &view, nil
}

func (s *TimerService) ListSessions(ctx context.Context, userID string, limit int) ([]model.Session, *apperrors.APIError) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	sessions, err := s.repo.ListSessions(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to list sessions")
	}
	return sessions, nil
}

// loadAndReconcile fetches the state row and advances it across any phase
// boundaries that passed while nobody was looking. The reconciled state,
// its ledger rows and the closed session are persisted in the caller's
// transaction; the version has already been bumped once when changed.
func (s *TimerService) loadAndReconcile(ctx context.Context, tx *sql.Tx, userID string, now time.Time) (*model.TimerState, bool, *apperrors.APIError) {
	state, err := s.repo.GetStateTx(ctx, tx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, apperrors.NotFound("state_not_found", "timer state not found")
	}
	if err != nil {
		return nil, false, apperrors.Internal("failed to get state")
	}

	res := reconcile(state, now)
	if !res.Changed {
		return state, false, nil
	}
	if res.Capped {
		log.Printf("reconcile: catch-up capped at %d phases for user %s", maxCatchUpPhases, userID)
	}

	if res.CloseActive != nil {
		if apiErr := s.completeSession(ctx, tx, res.CloseActive, now); apiErr != nil {
			return nil, false, apiErr
		}
	}
	for i := range res.Ledger {
		if err := s.repo.InsertSessionTx(ctx, tx, &res.Ledger[i]); err != nil {
			return nil, false, apperrors.Internal("failed to record session")
		}
	}
	if err := s.repo.UpdateStateTx(ctx, tx, state); err != nil {
		return nil, false, apperrors.Internal("failed to persist reconciled state")
	}
	return state, true, nil
}

func (s *TimerService) dispatch(ctx context.Context, tx *sql.Tx, state *model.TimerState, op Operation, now time.Time) (bool, *apperrors.APIError) {
	switch op.Kind {
	case OpStart:
		return s.applyStart(ctx, tx, state, now)
	case OpPause:
		return applyPause(state, now), nil
	case OpReset:
		return true, s.interruptTo(ctx, tx, state, state.Mode, now)
	case OpSwitchMode:
		return true, s.interruptTo(ctx, tx, state, op.Mode, now)
	case OpUpdateSettings:
		applySettings(state, op.Settings)
		return true, nil
	case OpSkip:
		// The cancelled phase does not advance the long-break cadence;
		// the cadence position is judged as if it had completed only to
		// pick which break comes next.
		next := nextModeAfter(state.Mode, state.FocusCount+1, state.LongBreakEvery)
		return true, s.interruptTo(ctx, tx, state, next, now)
	default:
		return false, apperrors.BadRequest("invalid_operation", "unknown operation")
	}
}

func (s *TimerService) applyStart(ctx context.Context, tx *sql.Tx, state *model.TimerState, now time.Time) (bool, *apperrors.APIError) {
	if state.Status == model.StatusRunning {
		return false, nil
	}

	if state.Status == model.StatusIdle {
		state.RemainingSeconds = durationForMode(state)
	}

	if state.SessionID == nil {
		sessionID := uuid.NewString()
		state.SessionID = &sessionID

		session := model.Session{
			ID:                     sessionID,
			UserID:                 state.UserID,
			Mode:                   state.Mode,
			PlannedDurationSeconds: state.RemainingSeconds,
			ActualDurationSeconds:  0,
			StartedAt:              now,
			Status:                 model.SessionRunning,
			CreatedAt:              now,
			UpdatedAt:              now,
		}
		if err := s.repo.InsertSessionTx(ctx, tx, &session); err != nil {
			return false, apperrors.Internal("failed to create session")
		}
	}

	startedAt := now
	state.Status = model.StatusRunning
	state.StartedAt = &startedAt
	return true, nil
}

func applyPause(state *model.TimerState, now time.Time) bool {
	if state.Status != model.StatusRunning {
		return false
	}
	state.RemainingSeconds = liveRemainingSeconds(state, now)
	state.Status = model.StatusPaused
	state.StartedAt = nil
	return true
}

// interruptTo cancels any active session and parks the timer idle on the
// given mode with its full configured duration. Shared by reset,
// switchMode and skip.
func (s *TimerService) interruptTo(ctx context.Context, tx *sql.Tx, state *model.TimerState, mode string, now time.Time) *apperrors.APIError {
	if apiErr := s.cancelActiveSession(ctx, tx, state, now); apiErr != nil {
		return apiErr
	}
	state.Mode = mode
	state.Status = model.StatusIdle
	state.StartedAt = nil
	state.SessionID = nil
	state.RemainingSeconds = durationForMode(state)
	return nil
}

func applySettings(state *model.TimerState, settings *SettingsUpdate) {
	state.FocusDurationSeconds = settings.FocusDurationSeconds
	state.ShortBreakDurationSeconds = settings.ShortBreakDurationSeconds
	state.LongBreakDurationSeconds = settings.LongBreakDurationSeconds
	if settings.LongBreakEvery > 0 {
		state.LongBreakEvery = settings.LongBreakEvery
	}

	switch state.Status {
	case model.StatusIdle:
		state.RemainingSeconds = durationForMode(state)
	case model.StatusPaused:
		// Clamp down only: a paused countdown never gains time back.
		if limit := durationForMode(state); state.RemainingSeconds > limit {
			state.RemainingSeconds = limit
		}
	}
	// Running: the started countdown keeps its snapshot; new durations
	// apply from the next phase on.
}

func (s *TimerService) cancelActiveSession(ctx context.Context, tx *sql.Tx, state *model.TimerState, now time.Time) *apperrors.APIError {
	if state.SessionID == nil {
		return nil
	}

	session, err := s.repo.GetSessionTx(ctx, tx, *state.SessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.Internal("failed to read session")
	}
	if session.Status != model.SessionRunning {
		return nil
	}

	actual := session.PlannedDurationSeconds - liveRemainingSeconds(state, now)
	if actual < 0 {
		actual = 0
	}
	if actual > session.PlannedDurationSeconds {
		actual = session.PlannedDurationSeconds
	}

	endedAt := now
	session.Status = model.SessionCancelled
	session.ActualDurationSeconds = actual
	session.EndedAt = &endedAt
	session.UpdatedAt = now

	if err := s.repo.UpdateSessionTx(ctx, tx, session); err != nil {
		return apperrors.Internal("failed to update session")
	}
	return nil
}

// completeSession closes the ledger row that expired naturally: actual
// equals planned and the end timestamp is the phase's computed end
// instant. Terminal rows are left untouched.
func (s *TimerService) completeSession(ctx context.Context, tx *sql.Tx, closure *sessionClosure, now time.Time) *apperrors.APIError {
	session, err := s.repo.GetSessionTx(ctx, tx, closure.SessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.Internal("failed to read session")
	}
	if session.Status != model.SessionRunning {
		return nil
	}

	endedAt := closure.EndedAt
	session.Status = model.SessionCompleted
	session.ActualDurationSeconds = session.PlannedDurationSeconds
	session.EndedAt = &endedAt
	session.UpdatedAt = now

	if err := s.repo.UpdateSessionTx(ctx, tx, session); err != nil {
		return apperrors.Internal("failed to update session")
	}
	return nil
}

func validateOperation(op Operation) *apperrors.APIError {
	switch op.Kind {
	case OpSwitchMode:
		if !model.ValidMode(op.Mode) {
			return apperrors.BadRequest("invalid_mode", "mode must be one of focus, short_break, long_break")
		}
	case OpUpdateSettings:
		if op.Settings == nil {
			return apperrors.BadRequest("invalid_settings", "settings are required")
		}
		if op.Settings.FocusDurationSeconds <= 0 ||
			op.Settings.ShortBreakDurationSeconds <= 0 ||
			op.Settings.LongBreakDurationSeconds <= 0 {
			return apperrors.BadRequest("invalid_duration", "all durations must be positive seconds")
		}
		if op.Settings.LongBreakEvery < 0 {
			return apperrors.BadRequest("invalid_long_break_every", "longBreakEvery must be positive")
		}
	}
	return nil
}

// liveRemainingSeconds derives the true remaining time: the stored value
// while idle/paused, the start snapshot minus elapsed wall time while
// running, floored at zero.
func liveRemainingSeconds(state *model.TimerState, now time.Time) int {
	if state.Status != model.StatusRunning || state.StartedAt == nil {
		if state.RemainingSeconds < 0 {
			return 0
		}
		return state.RemainingSeconds
	}

	elapsed := int(now.Sub(*state.StartedAt).Seconds())
	remaining := state.RemainingSeconds - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s *TimerService) notify(userID, reason string, view StateView) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(userID, reason, view)
}

func (s *TimerService) toStateView(state *model.TimerState, now time.Time) StateView {
	view := StateView{
		UserID:                    state.UserID,
		Mode:                      state.Mode,
		Status:                    state.Status,
		RemainingSeconds:          state.RemainingSeconds,
		FocusDurationSeconds:      state.FocusDurationSeconds,
		ShortBreakDurationSeconds: state.ShortBreakDurationSeconds,
		LongBreakDurationSeconds:  state.LongBreakDurationSeconds,
		LongBreakEvery:            state.LongBreakEvery,
		FocusCount:                state.FocusCount,
		StartedAt:                 state.StartedAt,
		SessionID:                 state.SessionID,
		Version:                   state.Version,
		UpdatedAt:                 state.UpdatedAt,
		ServerTime:                now,
	}

	if state.Status == model.StatusRunning {
		view.RemainingSeconds = liveRemainingSeconds(state, now)
	}

	return view
}
