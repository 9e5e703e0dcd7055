package engine

import (
	"time"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
)

const (
	missedDayPenalty   = 10
	gentleRestartFloor = 50
)

type MissedDayOutcome string

const (
	MissedNone           MissedDayOutcome = "none"
	MissedSuspended      MissedDayOutcome = "suspended"
	MissedAlreadyFlagged MissedDayOutcome = "already_flagged"
	MissedShieldConsumed MissedDayOutcome = "shield_consumed"
	MissedCracked        MissedDayOutcome = "cracked"
)

// DetectMissedDay compares today against the last completion and acts at
// most once per calendar day when more than one day was missed.
func DetectMissedDay(p *domain.Progress, now time.Time) MissedDayOutcome {
	r := &p.Resilience
	loc := now.Location()

	if r.IsFrozen {
		if r.FreezeExpiry != nil && now.Before(*r.FreezeExpiry) {
			return MissedSuspended
		}
		r.IsFrozen = false
		if r.Status == domain.StatusFrozen {
			r.Status = domain.StatusActive
		}
	}

	anchor := ""
	if r.LastCompletedAt != nil {
		anchor = domain.DateKey(r.LastCompletedAt.In(loc))
	}
	if r.FreezeExpiry != nil {
		if d := domain.DateKey(r.FreezeExpiry.In(loc)); d > anchor {
			anchor = d
		}
	}
	if r.RecoveredOn > anchor {
		anchor = r.RecoveredOn
	}
	if anchor == "" {
		return MissedNone
	}

	today := domain.DateKey(now)
	if domain.DaysBetween(anchor, today) <= 1 {
		return MissedNone
	}
	if r.LastMissedFlag == today {
		return MissedAlreadyFlagged
	}
	r.LastMissedFlag = today

	if r.ConsumeShield() {
		return MissedShieldConsumed
	}

	if r.Status == domain.StatusCracked {
		r.Status = domain.StatusRecovering
	} else {
		r.Status = domain.StatusCracked
	}
	r.RecoveryMode = true
	if r.Streak > 0 {
		r.StreakBeforeCrack = r.Streak
	}
	r.Streak = 0
	r.AdjustScore(-missedDayPenalty)
	return MissedCracked
}

// ApplyRecovery resolves recovery mode with the chosen remedy.
func ApplyRecovery(p *domain.Progress, option domain.RecoveryOption, now time.Time) error {
	r := &p.Resilience
	if !r.RecoveryMode {
		return domain.ErrNotInRecovery
	}

	switch option {
	case domain.RecoveryLowEnergyReset:
		r.Streak += r.StreakBeforeCrack / 2
		p.EnsureLog(domain.DateKey(now)).Energy = domain.EnergyLow
	case domain.RecoveryUseShield:
		if !r.ConsumeShield() {
			return domain.ErrNoShieldAvailable
		}
		r.Streak += r.StreakBeforeCrack
	case domain.RecoveryGentleRestart:
		r.Streak = 0
		r.Score = max(r.Score, gentleRestartFloor)
	default:
		return domain.ErrUnknownRecoveryOption
	}

	r.StreakBeforeCrack = 0
	r.RecoveryMode = false
	r.RecoveredOn = domain.DateKey(now)
	r.Status = domain.StatusActive
	p.Undo = nil
	return nil
}

// Freeze suspends missed-day detection for the next 24 hours.
func Freeze(p *domain.Progress, now time.Time) error {
	r := &p.Resilience
	if r.IsFrozen && r.FreezeExpiry != nil && now.Before(*r.FreezeExpiry) {
		return domain.ErrAlreadyFrozen
	}
	expiry := now.Add(domain.FreezeWindow)
	r.IsFrozen = true
	r.FreezeExpiry = &expiry
	r.Status = domain.StatusFrozen
	p.Undo = nil
	return nil
}

// Undo restores the last completion snapshot and empties the slot. It
// reports false when there is nothing to undo. Any other change to the
// resilience state or today's log empties the slot first.
func Undo(p *domain.Progress) bool {
	snap := p.Undo
	if snap == nil {
		return false
	}
	p.Resilience = snap.Resilience.Clone()
	if snap.Log != nil {
		restored := snap.Log.Clone()
		if current := p.Log(snap.Date); current != nil {
			restored.UpdatedAt = current.UpdatedAt
		}
		p.Logs[snap.Date] = restored
	} else if current := p.Log(snap.Date); current != nil {
		empty := domain.NewDailyLog(snap.Date)
		empty.UpdatedAt = current.UpdatedAt
		p.Logs[snap.Date] = empty
	}
	p.Undo = nil
	return true
}
