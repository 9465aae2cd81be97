package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pomosync/backend/internal/model"
)

// TimerRepository owns the timer_states singleton rows and the
// timer_sessions ledger. All mutations go through a caller-held
// transaction so one user's read-modify-write cycles serialize.
type TimerRepository struct {
	db *sql.DB
}

func NewTimerRepository(db *sql.DB) *TimerRepository {
	return &TimerRepository{db: db}
}

func (r *TimerRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

func (r *TimerRepository) CreateInitialState(ctx context.Context, userID string, now time.Time) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO timer_states (
			user_id, mode, status, remaining_seconds, focus_duration_seconds,
			short_break_duration_seconds, long_break_duration_seconds,
			long_break_every, focus_count, version, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID,
		model.ModeFocus,
		model.StatusIdle,
		model.DefaultFocusDurationSeconds,
		model.DefaultFocusDurationSeconds,
		model.DefaultShortBreakDurationSeconds,
		model.DefaultLongBreakDurationSeconds,
		model.DefaultLongBreakEvery,
		0,
		1,
		now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("create initial state: %w", err)
	}
	return nil
}

const stateColumns = `user_id, mode, status, remaining_seconds, focus_duration_seconds,
		short_break_duration_seconds, long_break_duration_seconds,
		long_break_every, focus_count, started_at, session_id, version, updated_at`

func (r *TimerRepository) GetStateTx(ctx context.Context, tx *sql.Tx, userID string) (*model.TimerState, error) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT `+stateColumns+` FROM timer_states WHERE user_id = ?`,
		userID,
	)
	return scanTimerState(row)
}

func (r *TimerRepository) UpdateStateTx(ctx context.Context, tx *sql.Tx, state *model.TimerState) error {
	var startedAt interface{}
	if state.StartedAt != nil {
		startedAt = state.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	var sessionID interface{}
	if state.SessionID != nil {
		sessionID = *state.SessionID
	}

	_, err := tx.ExecContext(
		ctx,
		`UPDATE timer_states
		 SET mode = ?,
		     status = ?,
		     remaining_seconds = ?,
		     focus_duration_seconds = ?,
		     short_break_duration_seconds = ?,
		     long_break_duration_seconds = ?,
		     long_break_every = ?,
		     focus_count = ?,
		     started_at = ?,
		     session_id = ?,
		     version = ?,
		     updated_at = ?
		 WHERE user_id = ?`,
		state.Mode,
		state.Status,
		state.RemainingSeconds,
		state.FocusDurationSeconds,
		state.ShortBreakDurationSeconds,
		state.LongBreakDurationSeconds,
		state.LongBreakEvery,
		state.FocusCount,
		startedAt,
		sessionID,
		state.Version,
		state.UpdatedAt.UTC().Format(time.RFC3339Nano),
		state.UserID,
	)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	return nil
}

func (r *TimerRepository) InsertSessionTx(ctx context.Context, tx *sql.Tx, session *model.Session) error {
	var endedAt interface{}
	if session.EndedAt != nil {
		endedAt = session.EndedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO timer_sessions (
			id, user_id, mode, planned_duration_seconds, actual_duration_seconds,
			started_at, ended_at, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		session.Mode,
		session.PlannedDurationSeconds,
		session.ActualDurationSeconds,
		session.StartedAt.UTC().Format(time.RFC3339Nano),
		endedAt,
		session.Status,
		session.CreatedAt.UTC().Format(time.RFC3339Nano),
		session.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *TimerRepository) GetSessionTx(ctx context.Context, tx *sql.Tx, sessionID string) (*model.Session, error) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT id, user_id, mode, planned_duration_seconds, actual_duration_seconds,
		        started_at, ended_at, status, created_at, updated_at
		 FROM timer_sessions
		 WHERE id = ?`,
		sessionID,
	)
	return scanSession(row)
}

func (r *TimerRepository) UpdateSessionTx(ctx context.Context, tx *sql.Tx, session *model.Session) error {
	var endedAt interface{}
	if session.EndedAt != nil {
		endedAt = session.EndedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := tx.ExecContext(
		ctx,
		`UPDATE timer_sessions
		 SET actual_duration_seconds = ?,
		     ended_at = ?,
		     status = ?,
		     updated_at = ?
		 WHERE id = ?`,
		session.ActualDurationSeconds,
		endedAt,
		session.Status,
		session.UpdatedAt.UTC().Format(time.RFC3339Nano),
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (r *TimerRepository) ListSessions(ctx context.Context, userID string, limit int) ([]model.Session, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, user_id, mode, planned_duration_seconds, actual_duration_seconds,
		        started_at, ended_at, status, created_at, updated_at
		 FROM timer_sessions
		 WHERE user_id = ?
		 ORDER BY started_at DESC
		 LIMIT ?`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.Session, 0, limit)
	for rows.Next() {
		session, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTimerState(s scanner) (*model.TimerState, error) {
	state := model.TimerState{}
	var startedAt sql.NullString
	var sessionID sql.NullString
	var updatedAt string
	err := s.Scan(
		&state.UserID,
		&state.Mode,
		&state.Status,
		&state.RemainingSeconds,
		&state.FocusDurationSeconds,
		&state.ShortBreakDurationSeconds,
		&state.LongBreakDurationSeconds,
		&state.LongBreakEvery,
		&state.FocusCount,
		&startedAt,
		&sessionID,
		&state.Version,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan state: %w", err)
	}

	if startedAt.Valid {
		parsed, parseErr := parseTime(startedAt.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parse state started_at: %w", parseErr)
		}
		state.StartedAt = &parsed
	}
	if sessionID.Valid {
		value := sessionID.String
		state.SessionID = &value
	}

	parsedUpdatedAt, parseErr := parseTime(updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parse state updated_at: %w", parseErr)
	}
	state.UpdatedAt = parsedUpdatedAt
	return &state, nil
}

func scanSession(s scanner) (*model.Session, error) {
	session := model.Session{}
	var startedAt string
	var endedAt sql.NullString
	var createdAt string
	var updatedAt string
	err := s.Scan(
		&session.ID,
		&session.UserID,
		&session.Mode,
		&session.PlannedDurationSeconds,
		&session.ActualDurationSeconds,
		&startedAt,
		&endedAt,
		&session.Status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	parsedStartedAt, err := parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse session started_at: %w", err)
	}
	session.StartedAt = parsedStartedAt

	if endedAt.Valid {
		parsedEndedAt, parseErr := parseTime(endedAt.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parse session ended_at: %w", parseErr)
		}
		session.EndedAt = &parsedEndedAt
	}

	parsedCreatedAt, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse session created_at: %w", err)
	}
	session.CreatedAt = parsedCreatedAt

	parsedUpdatedAt, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse session updated_at: %w", err)
	}
	session.UpdatedAt = parsedUpdatedAt

	return &session, nil
}
