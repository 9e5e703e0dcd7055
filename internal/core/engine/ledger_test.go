package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
)

// 2026-10-14 is a Wednesday.
var baseTime = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func newTestProgress() *domain.Progress {
	p := domain.NewProgress("user-1")
	p.Identity = domain.IdentityProfile{
		Identity:       "a runner",
		Type:           domain.IdentitySkill,
		Stage:          domain.StageInitiation,
		StageEnteredAt: baseTime.AddDate(0, -1, 0),
	}
	p.Habits = &domain.HabitSet{
		High:   []string{"Run"},
		Medium: []string{"Jog"},
		Low:    []string{"Walk"},
	}
	return p
}

func scoreOf(v float64) *float64 { return &v }

func TestRecordCompletion(t *testing.T) {
	t.Run("Success: total completions counts accepted calls only", func(t *testing.T) {
		p := newTestProgress()

		accepted := 0
		for _, idx := range []int{0, 1, 2, 1, 0} {
			ok, err := RecordCompletion(p, idx, baseTime)
			require.NoError(t, err)
			if ok {
				accepted++
			}
		}

		assert.Equal(t, 3, accepted)
		assert.Equal(t, accepted, p.Resilience.TotalCompletions)
		assert.Equal(t, 1, p.Resilience.Streak)
		assert.Equal(t, domain.StartingResilience+3*completionBonus, p.Resilience.Score)

		log := p.Log("2026-10-14")
		require.NotNil(t, log)
		assert.Equal(t, []int{0, 1, 2}, log.CompletedIndices)
		assert.Equal(t, []string{"Run", "Jog", "Walk"}, log.CompletedHabitNames)
	})

	t.Run("Success: names are deduplicated", func(t *testing.T) {
		p := newTestProgress()
		p.Habits.Low = []string{"Run"}

		_, err := RecordCompletion(p, 0, baseTime)
		require.NoError(t, err)
		_, err = RecordCompletion(p, 2, baseTime)
		require.NoError(t, err)

		assert.Equal(t, []string{"Run"}, p.Log("2026-10-14").CompletedHabitNames)
		assert.Equal(t, []int{0, 2}, p.Log("2026-10-14").CompletedIndices)
	})

	t.Run("Success: streak grows once per day and grants capped shields", func(t *testing.T) {
		p := newTestProgress()

		for day := 0; day < 28; day++ {
			now := baseTime.AddDate(0, 0, day)
			_, err := RecordCompletion(p, 0, now)
			require.NoError(t, err)
			_, err = RecordCompletion(p, 1, now.Add(time.Hour))
			require.NoError(t, err)

			assert.LessOrEqual(t, p.Resilience.Shields, domain.MaxShields)
		}

		assert.Equal(t, 28, p.Resilience.Streak)
		assert.Equal(t, 56, p.Resilience.TotalCompletions)
		assert.Equal(t, domain.MaxShields, p.Resilience.Shields)
		assert.Contains(t, p.Resilience.Badges, "streak-7")
		assert.Contains(t, p.Resilience.Badges, "streak-21")
		assert.Equal(t, domain.MaxResilienceScore, p.Resilience.Score)
	})

	t.Run("Success: completing while cracked bounces back", func(t *testing.T) {
		p := newTestProgress()
		p.Resilience.Status = domain.StatusCracked
		p.Resilience.Score = 40

		_, err := RecordCompletion(p, 0, baseTime)
		require.NoError(t, err)

		assert.Equal(t, domain.StatusBounced, p.Resilience.Status)
		assert.Equal(t, 55, p.Resilience.Score)

		_, err = RecordCompletion(p, 1, baseTime)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusActive, p.Resilience.Status)
		assert.Equal(t, 60, p.Resilience.Score)
	})

	t.Run("Success: completing while recovering bounces back", func(t *testing.T) {
		p := newTestProgress()
		p.Resilience.Status = domain.StatusRecovering
		p.Resilience.RecoveryMode = true
		p.Resilience.Score = 30

		ok, err := RecordCompletion(p, 2, baseTime)
		require.NoError(t, err)
		require.True(t, ok)

		assert.Equal(t, domain.StatusBounced, p.Resilience.Status)
		assert.Equal(t, 30+bounceBackBonus, p.Resilience.Score)
	})

	t.Run("Success: completing lifts a freeze", func(t *testing.T) {
		p := newTestProgress()
		require.NoError(t, Freeze(p, baseTime))

		_, err := RecordCompletion(p, 0, baseTime.Add(time.Hour))
		require.NoError(t, err)

		assert.False(t, p.Resilience.IsFrozen)
		assert.Nil(t, p.Resilience.FreezeExpiry)
		assert.Equal(t, domain.StatusActive, p.Resilience.Status)
	})

	t.Run("Fail: index out of range leaves state untouched", func(t *testing.T) {
		p := newTestProgress()
		before := p.Clone()

		ok, err := RecordCompletion(p, 3, baseTime)
		assert.False(t, ok)
		assert.ErrorIs(t, err, domain.ErrHabitIndexOutOfRange)
		assert.Equal(t, before.Resilience, p.Resilience)
		assert.Empty(t, p.Logs)
		assert.Nil(t, p.Undo)
	})

	t.Run("Success: a missing habit set is regenerated before recording", func(t *testing.T) {
		p := newTestProgress()
		p.Habits = nil

		ok, err := RecordCompletion(p, 0, baseTime)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, p.Habits.Validate())
		assert.Equal(t, 0, p.Habits.Level)
	})

	t.Run("Fail: no habit set before onboarding", func(t *testing.T) {
		p := domain.NewProgress("user-1")

		_, err := RecordCompletion(p, 0, baseTime)
		assert.ErrorIs(t, err, domain.ErrHabitSetIncomplete)
	})
}

func TestUndo(t *testing.T) {
	t.Run("Success: completion then undo restores state byte for byte", func(t *testing.T) {
		p := newTestProgress()
		_, err := RecordCompletion(p, 0, baseTime)
		require.NoError(t, err)

		before := p.Clone()
		_, err = RecordCompletion(p, 1, baseTime.Add(time.Minute))
		require.NoError(t, err)
		require.NotEqual(t, before.Resilience, p.Resilience)

		assert.True(t, Undo(p))

		wantJSON, _ := json.Marshal(before.Resilience)
		gotJSON, _ := json.Marshal(p.Resilience)
		assert.Equal(t, string(wantJSON), string(gotJSON))
		assert.Equal(t, before.Log("2026-10-14").CompletedIndices, p.Log("2026-10-14").CompletedIndices)
		assert.Equal(t, before.Log("2026-10-14").CompletedHabitNames, p.Log("2026-10-14").CompletedHabitNames)
	})

	t.Run("Success: undo of the first completion empties the day", func(t *testing.T) {
		p := newTestProgress()
		before := p.Clone()

		_, err := RecordCompletion(p, 2, baseTime)
		require.NoError(t, err)
		assert.True(t, Undo(p))

		assert.Equal(t, before.Resilience, p.Resilience)
		assert.Empty(t, p.Log("2026-10-14").CompletedIndices)
	})

	t.Run("Success: second undo is a no-op", func(t *testing.T) {
		p := newTestProgress()
		_, err := RecordCompletion(p, 0, baseTime)
		require.NoError(t, err)

		assert.True(t, Undo(p))
		after := p.Clone()

		assert.False(t, Undo(p))
		assert.Equal(t, after.Resilience, p.Resilience)
		assert.Equal(t, after.Logs, p.Logs)
	})
}

func TestUndo_ClearedByOtherChanges(t *testing.T) {
	cases := []struct {
		name   string
		change func(p *domain.Progress) error
	}{
		{"energy", func(p *domain.Progress) error { return SetEnergy(p, domain.EnergyLow, baseTime) }},
		{"note", func(p *domain.Progress) error {
			SetNote(p, "rest", "", baseTime)
			return nil
		}},
		{"freeze", func(p *domain.Progress) error { return Freeze(p, baseTime.Add(time.Minute)) }},
		{"recovery", func(p *domain.Progress) error {
			p.Resilience.RecoveryMode = true
			return ApplyRecovery(p, domain.RecoveryGentleRestart, baseTime)
		}},
		{"rollover", func(p *domain.Progress) error {
			RolloverDay(p, baseTime.AddDate(0, 0, 1))
			return nil
		}},
	}

	for _, tc := range cases {
		t.Run("Success: "+tc.name+" empties the undo slot", func(t *testing.T) {
			p := newTestProgress()
			_, err := RecordCompletion(p, 0, baseTime)
			require.NoError(t, err)
			require.NotNil(t, p.Undo)

			require.NoError(t, tc.change(p))
			after := p.Clone()

			assert.Nil(t, p.Undo)
			assert.False(t, Undo(p))
			assert.Equal(t, after.Resilience, p.Resilience)
		})
	}

	t.Run("Success: same-day rollover keeps the slot", func(t *testing.T) {
		p := newTestProgress()
		_, err := RecordCompletion(p, 0, baseTime)
		require.NoError(t, err)

		RolloverDay(p, baseTime.Add(time.Hour))
		assert.NotNil(t, p.Undo)
	})
}

func TestAdaptDay(t *testing.T) {
	harder := &domain.HabitSet{High: []string{"Tempo run"}, Medium: []string{"Run"}, Low: []string{"Stride drills"}, Level: 1}

	t.Run("Success: completions move to the adapted index", func(t *testing.T) {
		p := newTestProgress()
		_, err := RecordCompletion(p, 0, baseTime)
		require.NoError(t, err)
		_, err = RecordCompletion(p, 2, baseTime)
		require.NoError(t, err)

		require.NoError(t, AdaptDay(p, domain.AdaptHarder, harder, baseTime))

		l := p.Log("2026-10-14")
		assert.Equal(t, []int{1}, l.CompletedIndices)
		assert.Equal(t, []string{"Run"}, l.CompletedHabitNames)
		assert.Equal(t, []string{"Run"}, p.Habits.High, "the regular set is untouched")
		assert.Equal(t, *harder, *p.HabitsFor("2026-10-14"))
		assert.Nil(t, p.Undo)

		ok, err := RecordCompletion(p, 0, baseTime.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{"Run", "Tempo run"}, p.Log("2026-10-14").CompletedHabitNames)

		ok, err = RecordCompletion(p, 1, baseTime.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, ok, "the moved completion still counts")
	})

	t.Run("Success: rollover scores with the adapted set and drops it", func(t *testing.T) {
		p := newTestProgress()
		require.NoError(t, AdaptDay(p, domain.AdaptHarder, harder, baseTime))
		_, err := RecordCompletion(p, 1, baseTime)
		require.NoError(t, err)

		RolloverDay(p, baseTime.AddDate(0, 0, 2))

		assert.Nil(t, p.Adaptation)
		assert.Equal(t, "Run", p.HabitsFor("2026-10-16").High[0])
		require.NotNil(t, p.Log("2026-10-14").DailyScore)
		assert.InDelta(t, domain.EnergyMedium.Weight()/expectedDailyHabits, *p.Log("2026-10-14").DailyScore, 1e-9)
	})

	t.Run("Fail: incomplete set", func(t *testing.T) {
		p := newTestProgress()
		err := AdaptDay(p, domain.AdaptEasier, &domain.HabitSet{High: []string{"Walk"}}, baseTime)
		assert.ErrorIs(t, err, domain.ErrHabitSetIncomplete)
		assert.Nil(t, p.Adaptation)
	})
}

func TestRolloverDay(t *testing.T) {
	t.Run("Success: scores elapsed days once", func(t *testing.T) {
		p := newTestProgress()
		old := p.EnsureLog("2026-10-12")
		old.CompletedIndices = []int{0, 1}
		old.CompletedHabitNames = []string{"Run", "Jog"}

		today := p.EnsureLog("2026-10-14")
		today.CompletedIndices = []int{2}
		today.CompletedHabitNames = []string{"Walk"}

		first := RolloverDay(p, baseTime)
		firstScore := *p.Log("2026-10-12").DailyScore

		p.Habits.High = []string{"Sprint"}
		second := RolloverDay(p, baseTime.Add(2*time.Hour))

		assert.Equal(t, []string{"2026-10-12"}, first.ScoredDates)
		assert.Empty(t, second.ScoredDates)
		assert.InDelta(t, 5.0/3.0, firstScore, 1e-9)
		assert.Equal(t, firstScore, *p.Log("2026-10-12").DailyScore)
		assert.Nil(t, p.Log("2026-10-14").DailyScore)
		assert.Equal(t, "2026-10-14", p.LastRolloverDate)
	})

	t.Run("Success: legacy index-only logs map onto current set", func(t *testing.T) {
		p := newTestProgress()
		legacy := p.EnsureLog("2026-10-13")
		legacy.CompletedIndices = []int{0, 2}

		report := RolloverDay(p, baseTime)

		assert.Equal(t, []string{"2026-10-13"}, report.LegacyDates)
		assert.InDelta(t, 4.0/3.0, *p.Log("2026-10-13").DailyScore, 1e-9)
	})

	t.Run("Success: unknown names use the day's energy and cap at 3", func(t *testing.T) {
		p := newTestProgress()
		l := p.EnsureLog("2026-10-13")
		l.Energy = domain.EnergyHigh
		l.CompletedHabitNames = []string{"a", "b", "c", "d"}
		l.CompletedIndices = []int{0, 1, 2, 3}

		RolloverDay(p, baseTime)
		assert.Equal(t, 3.0, *p.Log("2026-10-13").DailyScore)
	})

	t.Run("Success: persisted scores are ground truth", func(t *testing.T) {
		p := newTestProgress()
		l := p.EnsureLog("2026-10-13")
		l.CompletedHabitNames = []string{"Run"}
		l.CompletedIndices = []int{0}
		l.DailyScore = scoreOf(2.5)

		RolloverDay(p, baseTime)
		assert.Equal(t, 2.5, *p.Log("2026-10-13").DailyScore)

		score, err := RepairScore(p, "2026-10-13")
		require.NoError(t, err)
		assert.Equal(t, 1.0, score)
		assert.Equal(t, 1.0, *p.Log("2026-10-13").DailyScore)
	})

	t.Run("Fail: repair of missing day", func(t *testing.T) {
		p := newTestProgress()
		_, err := RepairScore(p, "2026-01-01")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestSetEnergyAndNote(t *testing.T) {
	p := newTestProgress()

	require.NoError(t, SetEnergy(p, domain.EnergyMedium, baseTime))
	SetNote(p, "tired legs", "walk after lunch", baseTime)

	l := p.Log("2026-10-14")
	assert.Equal(t, domain.EnergyMedium, l.Energy)
	assert.Equal(t, "tired legs", l.Note)
	assert.Equal(t, "walk after lunch", l.Intention)

	assert.ErrorIs(t, SetEnergy(p, "EXTREME", baseTime), domain.ErrInvalidEnergyTier)
}
