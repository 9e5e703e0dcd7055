package engine

import (
	"fmt"
	"log"
	"time"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
)

// saturationThreshold consecutive increases hide the increase option.
const saturationThreshold = 2

type EvolutionResult struct {
	Habits                 domain.HabitSet
	NewStage               *domain.Stage
	Narrative              string
	TriggersIdentityChange bool
	// Regenerated is true when the habit set was replaced and may be
	// personalised by the content generator.
	Regenerated bool
}

// ApplyEvolutionOption computes the effect of an option without touching
// any state.
func ApplyEvolutionOption(kind domain.OptionKind, habits domain.HabitSet, profile domain.IdentityProfile) EvolutionResult {
	switch kind {
	case domain.OptionFreshStart:
		stage := domain.StageInitiation
		return EvolutionResult{
			Habits:      *TemplateHabitSet(profile.Identity, profile.Type, 0),
			NewStage:    &stage,
			Narrative:   fmt.Sprintf("A clean slate. %s starts again from the first steps.", titleIdentity(profile.Identity)),
			Regenerated: true,
		}
	case domain.OptionChangeIdentity:
		return EvolutionResult{
			Habits:                 *habits.Clone(),
			Narrative:              "Time to choose who you want to become next.",
			TriggersIdentityChange: true,
		}
	}

	delta := kind.DifficultyDelta()
	if delta == 0 {
		return EvolutionResult{
			Habits:    *habits.Clone(),
			Narrative: fmt.Sprintf("Holding steady. Consistency is how %s is built.", profile.Identity),
		}
	}

	level := ClampLevel(profile.Type, habits.Level+delta)
	if level == habits.Level {
		return EvolutionResult{
			Habits:    *habits.Clone(),
			Narrative: "Your habits are already at the edge of this path, so they stay as they are.",
		}
	}

	narrative := fmt.Sprintf("Stepping up to level %d. %s grows through stretch.", level, titleIdentity(profile.Identity))
	if delta < 0 {
		narrative = fmt.Sprintf("Easing down to level %d. Small wins rebuild momentum.", level)
	}
	return EvolutionResult{
		Habits:      *TemplateHabitSet(profile.Identity, profile.Type, level),
		Narrative:   narrative,
		Regenerated: true,
	}
}

// NextIncreaseStreak advances the consecutive increase counter.
func NextIncreaseStreak(prev int, kind domain.OptionKind) int {
	if kind.IsIncrease() {
		return prev + 1
	}
	return 0
}

// EnsureHabitSet regenerates an INITIATION-level set when the current one is
// missing or invalid. It reports whether a repair happened.
func EnsureHabitSet(p *domain.Progress) bool {
	if !p.Identity.Onboarded() || p.Habits.Validate() == nil {
		return false
	}
	log.Printf("[ENGINE] Habit set for user %s invalid, regenerating level 0", p.UserID)
	p.Habits = TemplateHabitSet(p.Identity.Identity, p.Identity.Type, 0)
	return true
}

// SealWeeklyReview applies the chosen option, updates the evolution
// counters, injects novelty when due, and closes the review cycle.
func SealWeeklyReview(p *domain.Progress, kind domain.OptionKind, now time.Time) (EvolutionResult, error) {
	draft, ok := p.Review.Pending()
	if !ok {
		return EvolutionResult{}, domain.ErrNoReviewPending
	}
	if !draft.Offers(kind) {
		return EvolutionResult{}, domain.ErrOptionNotOffered
	}

	EnsureHabitSet(p)
	if p.Habits == nil {
		return EvolutionResult{}, domain.ErrNotOnboarded
	}

	result := ApplyEvolutionOption(kind, *p.Habits, p.Identity)
	habits := result.Habits
	p.Habits = &habits
	if result.NewStage != nil {
		p.Identity.EnterStage(*result.NewStage, now)
	}

	tracker := &p.Evolution
	tracker.ConsecutiveIncreases = NextIncreaseStreak(tracker.ConsecutiveIncreases, kind)
	tracker.LastChosen = kind
	tracker.CompletedReviews++
	tracker.PendingIdentityChange = result.TriggersIdentityChange

	if kind != domain.OptionFreshStart && kind != domain.OptionChangeIdentity &&
		tracker.CompletedReviews-tracker.LastNoveltyReview >= noveltyEveryReviews {
		cycle := draft.CycleIndex
		if swapped, applied := ApplyNovelty(*p.Habits, p.Identity, cycle, tracker.NoveltyAppliedCycle); applied {
			p.Habits = &swapped
			tracker.NoveltyAppliedCycle = cycle
			tracker.LastNoveltyReview = tracker.CompletedReviews
			result.Habits = swapped
		}
	}

	if _, err := p.Review.Seal(kind, now); err != nil {
		return EvolutionResult{}, err
	}
	return result, nil
}
