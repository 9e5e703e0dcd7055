package engine

import (
	"log"
	"slices"
	"time"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
)

const (
	expectedDailyHabits = 3.0
	maxDailyScore       = 3.0
	completionBonus     = 5
	bounceBackBonus     = 15
)

var streakBadges = map[int]string{
	7:   "streak-7",
	21:  "streak-21",
	66:  "streak-66",
	100: "streak-100",
}

// RecordCompletion marks the habit at index as done today. It reports false
// without changing anything when the index is already completed today.
func RecordCompletion(p *domain.Progress, index int, now time.Time) (bool, error) {
	EnsureHabitSet(p)
	today := domain.DateKey(now)
	habits := p.HabitsFor(today)
	if err := habits.Validate(); err != nil {
		return false, err
	}
	name, _, err := habits.At(index)
	if err != nil {
		return false, err
	}

	if existing := p.Log(today); existing != nil && existing.HasIndex(index) {
		return false, nil
	}

	p.Undo = &domain.UndoSnapshot{
		Date:       today,
		Resilience: p.Resilience.Clone(),
		Log:        p.Log(today).Clone(),
	}

	p.EnsureLog(today).AddCompletion(index, name)
	applyCompletion(&p.Resilience, now)
	return true, nil
}

func applyCompletion(r *domain.ResilienceState, now time.Time) {
	today := domain.DateKey(now)
	firstToday := r.LastCompletedAt == nil || domain.DateKey(r.LastCompletedAt.In(now.Location())) != today

	r.TotalCompletions++
	if firstToday {
		r.Streak++
		if r.Streak%domain.ShieldEveryStreakDay == 0 {
			r.AddShield()
		}
		if badge, ok := streakBadges[r.Streak]; ok {
			r.AwardBadge(badge)
		}
	}

	switch r.Status {
	case domain.StatusCracked, domain.StatusRecovering:
		r.AdjustScore(bounceBackBonus)
		r.Status = domain.StatusBounced
	default:
		r.AdjustScore(completionBonus)
		r.Status = domain.StatusActive
	}

	if r.IsFrozen {
		r.IsFrozen = false
		r.FreezeExpiry = nil
	}

	t := now
	r.LastCompletedAt = &t
}

// DailyScore computes the weighted score of a log against a habit set.
// legacy is true when the log had no name snapshot and indices were mapped
// onto the given set instead.
func DailyScore(l *domain.DailyLog, habits *domain.HabitSet) (score float64, legacy bool) {
	var sum float64
	if len(l.CompletedHabitNames) > 0 {
		for _, name := range l.CompletedHabitNames {
			tier, ok := habits.TierOf(name)
			if !ok {
				tier = l.Energy
			}
			if !tier.IsValid() {
				tier = domain.EnergyLow
			}
			sum += tier.Weight()
		}
	} else {
		legacy = true
		for _, idx := range l.CompletedIndices {
			_, tier, err := habits.At(idx)
			if err != nil {
				continue
			}
			sum += tier.Weight()
		}
	}
	return min(sum/expectedDailyHabits, maxDailyScore), legacy
}

type RolloverReport struct {
	Today       string
	ScoredDates []string
	LegacyDates []string
}

// RolloverDay persists the score of every elapsed day that has completions
// and no score yet. Calling it again the same day changes nothing.
func RolloverDay(p *domain.Progress, now time.Time) RolloverReport {
	today := domain.DateKey(now)
	report := RolloverReport{Today: today}

	if p.Habits != nil {
		for _, date := range p.SortedDates() {
			if date >= today {
				break
			}
			l := p.Logs[date]
			if l.IsScored() || !l.HasCompletions() {
				continue
			}
			score, legacy := DailyScore(l, p.HabitsFor(date))
			l.DailyScore = &score
			report.ScoredDates = append(report.ScoredDates, date)
			if legacy {
				report.LegacyDates = append(report.LegacyDates, date)
				log.Printf("[ENGINE] Warning: log %s has no name snapshot, mapped indices onto current habit set", date)
			}
		}
	}

	if p.Adaptation != nil && p.Adaptation.Date < today {
		p.Adaptation = nil
	}
	if p.Undo != nil && p.Undo.Date < today {
		p.Undo = nil
	}
	p.LastRolloverDate = today
	return report
}

// AdaptDay installs set as today's habit set. Today's completions move to
// the index their habit has in set, and completions of habits set does not
// contain are dropped.
func AdaptDay(p *domain.Progress, mode domain.AdaptationMode, set *domain.HabitSet, now time.Time) error {
	if err := set.Validate(); err != nil {
		return err
	}
	today := domain.DateKey(now)
	p.Adaptation = &domain.DayAdaptation{Date: today, Mode: mode, Habits: *set.Clone()}
	p.Undo = nil

	l := p.Log(today)
	if l == nil {
		return nil
	}
	names := set.Names()
	done := l.CompletedHabitNames
	l.CompletedIndices = []int{}
	l.CompletedHabitNames = []string{}
	for _, name := range done {
		if i := slices.Index(names, name); i >= 0 {
			l.AddCompletion(i, name)
		}
	}
	return nil
}

// RepairScore recomputes a persisted daily score from the current habit set.
func RepairScore(p *domain.Progress, date string) (float64, error) {
	if err := p.Habits.Validate(); err != nil {
		return 0, err
	}
	l := p.Log(date)
	if l == nil {
		return 0, domain.ErrNotFound
	}
	score, legacy := DailyScore(l, p.Habits)
	if legacy {
		log.Printf("[ENGINE] Warning: repairing %s from index-only data", date)
	}
	l.DailyScore = &score
	return score, nil
}

func SetEnergy(p *domain.Progress, tier domain.EnergyTier, now time.Time) error {
	if !tier.IsValid() {
		return domain.ErrInvalidEnergyTier
	}
	p.EnsureLog(domain.DateKey(now)).Energy = tier
	p.Undo = nil
	return nil
}

func SetNote(p *domain.Progress, note, intention string, now time.Time) {
	l := p.EnsureLog(domain.DateKey(now))
	l.Note = note
	l.Intention = intention
	p.Undo = nil
}
