package engine

import (
	"fmt"
	"slices"
	"time"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
)

const (
	ReviewCooldown     = 4 * 24 * time.Hour
	DefaultReviewWeeks = 3
	daysPerWeek        = 7

	// MaxMomentum is the top of the weekly momentum scale.
	MaxMomentum = daysPerWeek * maxDailyScore
)

// ClassifyPersona maps a weekly momentum score (0-21) to a persona.
func ClassifyPersona(momentum float64) domain.Persona {
	switch {
	case momentum > 18:
		return domain.PersonaTitan
	case momentum > 12:
		return domain.PersonaGrinder
	case momentum > 6:
		return domain.PersonaSurvivor
	default:
		return domain.PersonaGhost
	}
}

// PersonaFromScores classifies the sum of the 7 most recent daily scores.
// scores are ordered oldest first.
func PersonaFromScores(scores []float64) domain.Persona {
	if len(scores) > daysPerWeek {
		scores = scores[len(scores)-daysPerWeek:]
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return ClassifyPersona(sum)
}

// ReviewDue applies the weekday gate and the cooldown window.
func ReviewDue(p *domain.Progress, now time.Time) bool {
	if wd := now.Weekday(); wd != time.Sunday && wd != time.Monday {
		return false
	}
	last := p.Evolution.LastReviewRunAt
	return last == nil || now.Sub(*last) >= ReviewCooldown
}

// BuildWeeklyStats rolls up rolling 7-day windows ending yesterday, most
// recent first.
func BuildWeeklyStats(p *domain.Progress, now time.Time, weeks int) []domain.WeeklyStats {
	yesterday := domain.AddDays(domain.DateKey(now), -1)
	out := make([]domain.WeeklyStats, 0, weeks)

	for w := 0; w < weeks; w++ {
		end := domain.AddDays(yesterday, -daysPerWeek*w)
		start := domain.AddDays(end, -(daysPerWeek - 1))
		stats := domain.WeeklyStats{
			WeekKey:   isoWeekKey(end),
			StartDate: start,
			EndDate:   end,
		}
		for d := 0; d < daysPerWeek; d++ {
			l := p.Log(domain.AddDays(start, d))
			if l == nil || !l.HasCompletions() {
				stats.ZeroDays++
				continue
			}
			stats.ActiveDays++
			if l.DailyScore != nil {
				stats.ScoreSum += *l.DailyScore
			}
			if l.Energy == domain.EnergyHigh {
				stats.HighEnergyDays++
			}
		}
		stats.CompletionRate = float64(stats.ActiveDays) / daysPerWeek
		out = append(out, stats)
	}
	return out
}

func isoWeekKey(date string) string {
	t, err := domain.ParseDate(date)
	if err != nil {
		return date
	}
	y, w := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", y, w)
}

func consecutiveGhostWeeks(stats []domain.WeeklyStats) int {
	n := 0
	for _, s := range stats {
		if ClassifyPersona(s.ScoreSum) != domain.PersonaGhost {
			break
		}
		n++
	}
	return n
}

func missedHabitHistogram(p *domain.Progress, week domain.WeeklyStats) map[string]int {
	missed := make(map[string]int)
	if p.Habits == nil {
		return missed
	}
	for d := 0; d < daysPerWeek; d++ {
		l := p.Log(domain.AddDays(week.StartDate, d))
		for _, name := range p.Habits.Names() {
			if l == nil || !slices.Contains(l.CompletedHabitNames, name) {
				missed[name]++
			}
		}
	}
	return missed
}

func optionsFor(persona domain.Persona, saturated bool) []domain.EvolutionOption {
	var kinds []domain.OptionKind
	switch persona {
	case domain.PersonaTitan, domain.PersonaGrinder:
		if !saturated {
			kinds = append(kinds, domain.OptionIncrease)
		}
		kinds = append(kinds, domain.OptionMaintain)
	case domain.PersonaSurvivor:
		kinds = []domain.OptionKind{domain.OptionMaintain, domain.OptionDecrease, domain.OptionFreshStart}
	default:
		kinds = []domain.OptionKind{domain.OptionMinimal, domain.OptionFreshStart, domain.OptionChangeIdentity}
	}

	out := make([]domain.EvolutionOption, len(kinds))
	for i, k := range kinds {
		out[i] = optionCatalog[k]
	}
	return out
}

var optionCatalog = map[domain.OptionKind]domain.EvolutionOption{
	domain.OptionIncrease:       {Kind: domain.OptionIncrease, Label: "Level up", Description: "Every habit steps up one level."},
	domain.OptionMaintain:       {Kind: domain.OptionMaintain, Label: "Hold steady", Description: "Keep this week's habits as they are."},
	domain.OptionDecrease:       {Kind: domain.OptionDecrease, Label: "Ease off", Description: "Every habit steps down one level."},
	domain.OptionMinimal:        {Kind: domain.OptionMinimal, Label: "Go minimal", Description: "Drop two levels and rebuild momentum."},
	domain.OptionFreshStart:     {Kind: domain.OptionFreshStart, Label: "Fresh start", Description: "Restart this identity from its first habits."},
	domain.OptionChangeIdentity: {Kind: domain.OptionChangeIdentity, Label: "Change identity", Description: "Choose a different identity to grow into."},
}

// DraftWeeklyReview runs the classifier and opens the review cycle. A review
// already drafted is returned unchanged. Scores are persisted first so the
// rollups only read ground truth.
func DraftWeeklyReview(p *domain.Progress, now time.Time) (*domain.WeeklyReview, error) {
	if draft, ok := p.Review.Pending(); ok {
		return draft, nil
	}
	if !p.Identity.Onboarded() {
		return nil, domain.ErrNotOnboarded
	}
	if !ReviewDue(p, now) {
		return nil, domain.ErrReviewNotDue
	}

	EnsureHabitSet(p)
	RolloverDay(p, now)

	stats := BuildWeeklyStats(p, now, DefaultReviewWeeks)
	latest := stats[0]
	persona := ClassifyPersona(latest.ScoreSum)
	tracker := &p.Evolution

	tracker.GhostWeeks = consecutiveGhostWeeks(stats)
	if tracker.LastChosen.IsIncrease() && persona.Struggling() {
		tracker.ConsecutiveOverreach++
	} else {
		tracker.ConsecutiveOverreach = 0
	}
	runAt := now
	tracker.LastReviewRunAt = &runAt

	review := &domain.WeeklyReview{
		CycleIndex:     tracker.CompletedReviews + 1,
		WeekKey:        latest.WeekKey,
		GeneratedAt:    now,
		Momentum:       latest.ScoreSum,
		Persona:        persona,
		Weeks:          stats,
		MissedHabits:   missedHabitHistogram(p, latest),
		GhostWeeks:     tracker.GhostWeeks,
		OverreachCount: tracker.ConsecutiveOverreach,
		NoveltyDue:     tracker.CompletedReviews+1-tracker.LastNoveltyReview >= noveltyEveryReviews,
	}

	saturated := tracker.ConsecutiveIncreases >= saturationThreshold || tracker.ConsecutiveOverreach > 0
	review.Options = optionsFor(persona, saturated)

	applyStageRules(p, review, latest, now)

	if MaintenanceComplete(p.Identity) {
		review.MaintenanceComplete = true
		review.Continuations = []domain.MaintenanceContinuation{
			domain.ContinueDeepen, domain.ContinueEvolve, domain.ContinueRestart,
		}
	}

	review.Reflection = personaReflections[persona]
	review.Archetype = personaArchetypes[persona]
	review.Narrative = WeeklyNarrative(p.Identity, persona)
	if err := p.Review.Open(review); err != nil {
		return nil, err
	}
	return review, nil
}

func applyStageRules(p *domain.Progress, review *domain.WeeklyReview, latest domain.WeeklyStats, now time.Time) {
	id := &p.Identity
	id.WeeksInStage++

	if target, ok := regressionTarget(id.Type, id.Stage, p.Evolution.GhostWeeks); ok && target != id.Stage {
		review.StageChange = &domain.StageChange{From: id.Stage, To: target, Reason: "regression"}
		id.EnterStage(target, now)
		return
	}

	if review.Persona == domain.PersonaGhost {
		return
	}

	next, ok := id.Stage.Next()
	if !ok || !EligibleFor(id.Type, next, latest, p.Resilience.Streak) {
		return
	}

	if id.Stage == domain.StageInitiation {
		review.StageChange = &domain.StageChange{From: id.Stage, To: next, Reason: "auto_promotion"}
		id.EnterStage(next, now)
		return
	}
	review.Suggestion = suggestionFor(*id, next)
}
