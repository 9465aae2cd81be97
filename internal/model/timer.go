package model

import "time"

const (
	ModeFocus      = "focus"
	ModeShortBreak = "short_break"
	ModeLongBreak  = "long_break"

	StatusIdle    = "idle"
	StatusRunning = "running"
	StatusPaused  = "paused"

	SessionRunning   = "running"
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
)

const (
	DefaultFocusDurationSeconds      = 25 * 60
	DefaultShortBreakDurationSeconds = 5 * 60
	DefaultLongBreakDurationSeconds  = 15 * 60
	DefaultLongBreakEvery            = 4
)

// Reasons attached to pushed state changes so a device can tell what
// another device (or the server itself) just did.
const (
	ReasonStart          = "start"
	ReasonPause          = "pause"
	ReasonReset          = "reset"
	ReasonSwitchMode     = "switch_mode"
	ReasonUpdateSettings = "update_settings"
	ReasonSkip           = "skip"
	ReasonReconcile      = "reconcile"
)

// TimerState is the authoritative timer record, one row per user.
// RemainingSeconds is exact while idle/paused; while running it is the
// snapshot taken at StartedAt and the live value must be derived from it.
type TimerState struct {
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
}

// Session is one ledger entry: a single attempt at a phase. Once Status
// leaves "running" the row is never touched again.
type Session struct {
	ID                     string     `json:"id"`
	UserID                 string     `json:"userId"`
	Mode                   string     `json:"mode"`
	PlannedDurationSeconds int        `json:"plannedDurationSeconds"`
	ActualDurationSeconds  int        `json:"actualDurationSeconds"`
	StartedAt              time.Time  `json:"startedAt"`
	EndedAt                *time.Time `json:"endedAt,omitempty"`
	Status                 string     `json:"status"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

func ValidMode(mode string) bool {
	return mode == ModeFocus || mode == ModeShortBreak || mode == ModeLongBreak
}
