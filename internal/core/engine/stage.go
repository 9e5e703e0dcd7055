package engine

import (
	"strings"
	"time"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
)

const maintenanceCompleteWeeks = 6

type stageThreshold struct {
	MinCompletionRate float64
	MinStreak         int
	MaxZeroDays       int
}

// promotionThresholds is keyed by identity type, then by the target stage.
var promotionThresholds = map[domain.IdentityType]map[domain.Stage]stageThreshold{
	domain.IdentitySkill: {
		domain.StageIntegration: {MinCompletionRate: 0.5, MinStreak: 5, MaxZeroDays: 3},
		domain.StageExpansion:   {MinCompletionRate: 0.7, MinStreak: 14, MaxZeroDays: 2},
		domain.StageMaintenance: {MinCompletionRate: 0.85, MinStreak: 30, MaxZeroDays: 1},
	},
	domain.IdentityCharacter: {
		domain.StageIntegration: {MinCompletionRate: 0.4, MinStreak: 4, MaxZeroDays: 4},
		domain.StageExpansion:   {MinCompletionRate: 0.6, MinStreak: 10, MaxZeroDays: 3},
		domain.StageMaintenance: {MinCompletionRate: 0.75, MinStreak: 21, MaxZeroDays: 2},
	},
	domain.IdentityRecovery: {
		domain.StageIntegration: {MinCompletionRate: 0.6, MinStreak: 7, MaxZeroDays: 2},
		domain.StageExpansion:   {MinCompletionRate: 0.8, MinStreak: 21, MaxZeroDays: 1},
		domain.StageMaintenance: {MinCompletionRate: 0.9, MinStreak: 45, MaxZeroDays: 0},
	},
}

var resonanceStatements = map[domain.Stage][]string{
	domain.StageExpansion: {
		"I do these habits without needing reminders",
		"Missing a day now feels unusual to me",
		"I am ready to stretch what being {identity} means",
	},
	domain.StageMaintenance: {
		"Being {identity} feels like who I am, not who I am trying to be",
		"I can recover from a bad week without starting over",
		"I want to protect this identity more than grow it",
	},
}

// EligibleFor reports whether the latest week meets the thresholds of target.
func EligibleFor(t domain.IdentityType, target domain.Stage, latest domain.WeeklyStats, streak int) bool {
	th, ok := promotionThresholds[t.Effective()][target]
	if !ok {
		return false
	}
	return latest.CompletionRate >= th.MinCompletionRate &&
		streak >= th.MinStreak &&
		latest.ZeroDays <= th.MaxZeroDays
}

// regressionTarget decides where the stage falls after consecutive GHOST
// weeks. ok is false when the stage holds.
func regressionTarget(t domain.IdentityType, current domain.Stage, ghostWeeks int) (domain.Stage, bool) {
	if ghostWeeks < 2 || current == domain.StageInitiation {
		return current, false
	}

	switch t.Effective() {
	case domain.IdentitySkill:
		if ghostWeeks >= 3 {
			return domain.StageInitiation, true
		}
		return current.Previous()
	case domain.IdentityRecovery:
		prev, _ := current.Previous()
		if prev.Rank() < domain.StageIntegration.Rank() {
			return current, false
		}
		return prev, true
	default:
		return current.Previous()
	}
}

func suggestionFor(profile domain.IdentityProfile, target domain.Stage) *domain.StageSuggestion {
	statements := resonanceStatements[target]
	out := make([]string, len(statements))
	for i, s := range statements {
		out[i] = strings.ReplaceAll(s, "{identity}", profile.Identity)
	}
	return &domain.StageSuggestion{
		From:                profile.Stage,
		To:                  target,
		ResonanceStatements: out,
	}
}

// AcceptPromotion applies a suggested stage advance once every resonance
// statement has been affirmed.
func AcceptPromotion(p *domain.Progress, affirmed []bool, now time.Time) error {
	draft, ok := p.Review.Pending()
	if !ok || draft.Suggestion == nil {
		return domain.ErrNoPromotionSuggested
	}
	s := draft.Suggestion
	if s.From != p.Identity.Stage || s.From == domain.StageInitiation {
		return domain.ErrNoPromotionSuggested
	}
	if next, _ := s.From.Next(); next != s.To {
		return domain.ErrNoPromotionSuggested
	}
	if len(affirmed) != len(s.ResonanceStatements) {
		return domain.ErrResonanceNotAffirmed
	}
	for _, a := range affirmed {
		if !a {
			return domain.ErrResonanceNotAffirmed
		}
	}

	p.Identity.EnterStage(s.To, now)
	draft.Suggestion = nil
	return nil
}

// MaintenanceComplete reports whether the identity finished its maintenance run.
func MaintenanceComplete(profile domain.IdentityProfile) bool {
	return profile.Stage == domain.StageMaintenance && profile.WeeksInStage >= maintenanceCompleteWeeks
}

// ResolveMaintenance applies one of the three continuations offered once
// maintenance is complete. newIdentity is only read for ContinueEvolve.
func ResolveMaintenance(p *domain.Progress, choice domain.MaintenanceContinuation, newIdentity string, now time.Time) error {
	if !MaintenanceComplete(p.Identity) {
		return domain.ErrMaintenanceIncomplete
	}

	switch choice {
	case domain.ContinueDeepen:
		p.Identity.EnterStage(domain.StageMaintenance, now)
	case domain.ContinueEvolve:
		profile, err := domain.NewIdentityProfile(newIdentity, p.Identity.Type, now)
		if err != nil {
			return err
		}
		p.Identity = profile
		p.Habits = TemplateHabitSet(profile.Identity, profile.Type, 0)
	case domain.ContinueRestart:
		p.Identity = domain.IdentityProfile{}
		p.Habits = nil
		p.Evolution.PendingIdentityChange = true
	default:
		return domain.ErrUnknownContinuation
	}

	if draft, ok := p.Review.Pending(); ok {
		draft.MaintenanceComplete = false
		draft.Continuations = nil
	}
	p.Evolution.ConsecutiveIncreases = 0
	return nil
}
