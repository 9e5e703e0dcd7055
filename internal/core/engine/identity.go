package engine

import (
	"time"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
)

// Onboard installs a new identity with its first habit set. habits may be
// nil, in which case the INITIATION template is used.
func Onboard(p *domain.Progress, identity string, t domain.IdentityType, habits *domain.HabitSet, now time.Time) error {
	profile, err := domain.NewIdentityProfile(identity, t, now)
	if err != nil {
		return err
	}
	if habits == nil || habits.Validate() != nil {
		habits = TemplateHabitSet(profile.Identity, t, 0)
	}

	p.Identity = profile
	p.Habits = habits.Clone()
	p.Evolution.PendingIdentityChange = false
	p.Evolution.ConsecutiveIncreases = 0
	p.Evolution.ConsecutiveOverreach = 0
	p.Evolution.GhostWeeks = 0
	if _, ok := p.Review.Pending(); ok {
		p.Review = domain.ReviewCycle{Phase: domain.NoReviewPending}
	}
	return nil
}

// InstallHabitSet replaces the habit set if it is still at expectedLevel.
// It guards generated content arriving after another mutation.
func InstallHabitSet(p *domain.Progress, habits *domain.HabitSet, expectedLevel int) bool {
	if p.Habits == nil || p.Habits.Level != expectedLevel || habits.Validate() != nil {
		return false
	}
	c := habits.Clone()
	c.Level = expectedLevel
	p.Habits = c
	return true
}

// ApplyVerifiedEntitlement is the single privileged entitlement setter. The
// first valid entitlement ever seen grants one bonus shield.
func ApplyVerifiedEntitlement(p *domain.Progress, ent domain.Entitlement, now time.Time) bool {
	p.Entitlement = ent.Clone()
	if !ent.IsValid(now) || p.HasEverBeenPremium {
		return false
	}
	p.Undo = nil
	p.HasEverBeenPremium = true
	return p.Resilience.AddShield()
}
