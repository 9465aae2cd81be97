package service

import (
	"time"

	"github.com/google/uuid"

	"pomosync/backend/internal/model"
)

// maxCatchUpPhases bounds the reconciliation loop. Reaching it means very
// small durations combined with a long unattended gap; the loop stops at a
// safe running state and the next read continues from there.
const maxCatchUpPhases = 100

// sessionClosure marks the ledger row that was live when the user walked
// away. It completed naturally, so actual equals planned and the end
// timestamp is the phase's computed end instant, not the observation time.
type sessionClosure struct {
	SessionID string
	EndedAt   time.Time
}

type reconcileResult struct {
	// Changed reports whether state was advanced; when false everything
	// else is zero and the stored row needs no write.
	Changed bool
	// Capped reports that the loop hit maxCatchUpPhases before reaching
	// the present.
	Capped bool
	// CloseActive closes the previously active session as completed.
	CloseActive *sessionClosure
	// Ledger holds fully-formed rows to insert: one completed row per
	// phase skipped while unattended, plus the final running row.
	Ledger []model.Session
}

// reconcile advances a running timer across every phase boundary that has
// passed by now. It mutates state in place and returns the ledger writes
// the caller must persist in the same transaction. Only the final state is
// committed: one version bump covers the whole catch-up, while each skipped
// phase still gets its own completed ledger row.
func reconcile(state *model.TimerState, now time.Time) reconcileResult {
	res := reconcileResult{}
	if state.Status != model.StatusRunning || state.StartedAt == nil {
		return res
	}

	end := state.StartedAt.Add(time.Duration(state.RemainingSeconds) * time.Second)
	if now.Before(end) {
		return res
	}

	if state.SessionID != nil {
		res.CloseActive = &sessionClosure{SessionID: *state.SessionID, EndedAt: end}
	}

	for i := 0; ; i++ {
		// The phase in state.Mode just completed at `end`.
		if state.Mode == model.ModeFocus {
			state.FocusCount++
		}

		state.Mode = nextModeAfter(state.Mode, state.FocusCount, state.LongBreakEvery)
		duration := durationForMode(state)
		startedAt := end
		state.StartedAt = &startedAt
		state.RemainingSeconds = duration
		end = startedAt.Add(time.Duration(duration) * time.Second)

		if now.Before(end) || i >= maxCatchUpPhases-1 {
			sessionID := uuid.NewString()
			state.SessionID = &sessionID
			res.Ledger = append(res.Ledger, model.Session{
				ID:                     sessionID,
				UserID:                 state.UserID,
				Mode:                   state.Mode,
				PlannedDurationSeconds: duration,
				ActualDurationSeconds:  0,
				StartedAt:              startedAt,
				Status:                 model.SessionRunning,
				CreatedAt:              now,
				UpdatedAt:              now,
			})
			res.Capped = !now.Before(end)
			break
		}

		// This phase also fully elapsed while unattended: one completed
		// ledger row, no intermediate state commit.
		endedAt := end
		res.Ledger = append(res.Ledger, model.Session{
			ID:                     uuid.NewString(),
			UserID:                 state.UserID,
			Mode:                   state.Mode,
			PlannedDurationSeconds: duration,
			ActualDurationSeconds:  duration,
			StartedAt:              startedAt,
			EndedAt:                &endedAt,
			Status:                 model.SessionCompleted,
			CreatedAt:              now,
			UpdatedAt:              now,
		})
	}

	state.Status = model.StatusRunning
	state.Version++
	state.UpdatedAt = now
	res.Changed = true
	return res
}
