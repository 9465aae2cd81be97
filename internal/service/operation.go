package service

import "pomosync/backend/internal/model"

// OpKind enumerates the timer mutations. The dispatcher switches on this
// closed set; wire-level action strings never reach the engine.
type OpKind int

const (
	OpStart OpKind = iota + 1
	OpPause
	OpReset
	OpSwitchMode
	OpUpdateSettings
	OpSkip
)

// Operation describes one requested mutation. Mode is set for
// OpSwitchMode, Settings for OpUpdateSettings; other kinds carry no
// parameters.
type Operation struct {
	Kind     OpKind
	Mode     string
	Settings *SettingsUpdate
}

// SettingsUpdate carries new duration configuration. LongBreakEvery of 0
// keeps the current interval.
type SettingsUpdate struct {
	FocusDurationSeconds      int
	ShortBreakDurationSeconds int
	LongBreakDurationSeconds  int
	LongBreakEvery            int
}

// Reason tags the push notification emitted after the operation commits.
func (k OpKind) Reason() string {
	switch k {
	case OpStart:
		return model.ReasonStart
	case OpPause:
		return model.ReasonPause
	case OpReset:
		return model.ReasonReset
	case OpSwitchMode:
		return model.ReasonSwitchMode
	case OpUpdateSettings:
		return model.ReasonUpdateSettings
	case OpSkip:
		return model.ReasonSkip
	default:
		return "unknown"
	}
}
