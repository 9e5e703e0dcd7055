package domain

import (
	"errors"
	"slices"
	"time"
)

const (
	MaxShields           = 3
	MaxResilienceScore   = 100
	StartingResilience   = 50
	FreezeWindow         = 24 * time.Hour
	ShieldEveryStreakDay = 7
)

var (
	ErrAlreadyFrozen         = errors.New("progress is already frozen")
	ErrNoShieldAvailable     = errors.New("no shield available")
	ErrNotInRecovery         = errors.New("no recovery pending")
	ErrUnknownRecoveryOption = errors.New("unknown recovery option")
)

type ResilienceStatus string

const (
	StatusActive     ResilienceStatus = "ACTIVE"
	StatusBounced    ResilienceStatus = "BOUNCED"
	StatusCracked    ResilienceStatus = "CRACKED"
	StatusRecovering ResilienceStatus = "RECOVERING"
	StatusFrozen     ResilienceStatus = "FROZEN"
)

type RecoveryOption string

const (
	RecoveryLowEnergyReset RecoveryOption = "low_energy_reset"
	RecoveryUseShield      RecoveryOption = "use_shield"
	RecoveryGentleRestart  RecoveryOption = "gentle_restart"
)

func (o RecoveryOption) IsValid() bool {
	switch o {
	case RecoveryLowEnergyReset, RecoveryUseShield, RecoveryGentleRestart:
		return true
	}
	return false
}

type ResilienceState struct {
	Score             int              `json:"score"`
	Status            ResilienceStatus `json:"status"`
	Streak            int              `json:"streak"`
	Shields           int              `json:"shields"`
	TotalCompletions  int              `json:"total_completions"`
	LastCompletedAt   *time.Time       `json:"last_completed_at,omitempty"`
	IsFrozen          bool             `json:"is_frozen"`
	FreezeExpiry      *time.Time       `json:"freeze_expiry,omitempty"`
	RecoveryMode      bool             `json:"recovery_mode"`
	RecoveredOn       string           `json:"recovered_on,omitempty"`
	LastMissedFlag    string           `json:"last_missed_flag,omitempty"`
	StreakBeforeCrack int              `json:"streak_before_crack"`
	Badges            []string         `json:"badges"`
}

func NewResilienceState() ResilienceState {
	return ResilienceState{
		Score:  StartingResilience,
		Status: StatusActive,
		Badges: []string{},
	}
}

func (r *ResilienceState) AdjustScore(delta int) {
	r.Score = min(max(r.Score+delta, 0), MaxResilienceScore)
}

// AddShield grants one shield unless the cap is reached.
func (r *ResilienceState) AddShield() bool {
	if r.Shields >= MaxShields {
		return false
	}
	r.Shields++
	return true
}

func (r *ResilienceState) ConsumeShield() bool {
	if r.Shields <= 0 {
		return false
	}
	r.Shields--
	return true
}

func (r *ResilienceState) AwardBadge(badge string) bool {
	if slices.Contains(r.Badges, badge) {
		return false
	}
	r.Badges = append(r.Badges, badge)
	return true
}

func (r ResilienceState) Clone() ResilienceState {
	c := r
	if r.LastCompletedAt != nil {
		t := *r.LastCompletedAt
		c.LastCompletedAt = &t
	}
	if r.FreezeExpiry != nil {
		t := *r.FreezeExpiry
		c.FreezeExpiry = &t
	}
	c.Badges = append([]string{}, r.Badges...)
	return c
}

// UndoSnapshot is the single-slot capture taken before a completion.
type UndoSnapshot struct {
	Date       string
	Resilience ResilienceState
	Log        *DailyLog
}

func (u *UndoSnapshot) Clone() *UndoSnapshot {
	if u == nil {
		return nil
	}
	return &UndoSnapshot{
		Date:       u.Date,
		Resilience: u.Resilience.Clone(),
		Log:        u.Log.Clone(),
	}
}
