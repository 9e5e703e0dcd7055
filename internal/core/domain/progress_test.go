package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProgress() *Progress {
	p := NewProgress("user-1")
	p.Identity = IdentityProfile{Identity: "a runner", Type: IdentitySkill, Stage: StageInitiation}
	p.Habits = &HabitSet{High: []string{"Run"}, Medium: []string{"Jog"}, Low: []string{"Walk"}}
	log := p.EnsureLog("2026-10-17")
	log.AddCompletion(0, "Run")
	log.UpdatedAt = 10
	p.EnsureLog("2026-10-18").UpdatedAt = 20
	return p
}

func TestProgress_Clone(t *testing.T) {
	t.Parallel()

	p := sampleProgress()
	p.Undo = &UndoSnapshot{Date: "2026-10-18", Resilience: p.Resilience.Clone()}
	c := p.Clone()

	c.Habits.High[0] = "Sprint"
	c.Logs["2026-10-17"].CompletedHabitNames[0] = "changed"
	c.Resilience.Badges = append(c.Resilience.Badges, "streak-7")
	c.Undo.Date = "other"

	assert.Equal(t, "Run", p.Habits.High[0])
	assert.Equal(t, "Run", p.Logs["2026-10-17"].CompletedHabitNames[0])
	assert.Empty(t, p.Resilience.Badges)
	assert.Equal(t, "2026-10-18", p.Undo.Date)
}

func TestProgress_UndoIsNotPersisted(t *testing.T) {
	t.Parallel()

	p := sampleProgress()
	p.Undo = &UndoSnapshot{Date: "2026-10-18"}

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var back Progress
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Nil(t, back.Undo)
	assert.Equal(t, "user-1", back.UserID)
	assert.Len(t, back.Logs, 2)
}

func TestProgress_ChangedLogsSince(t *testing.T) {
	t.Parallel()

	p := sampleProgress()

	all := p.ChangedLogsSince(0)
	require.Len(t, all, 2)
	assert.Equal(t, "2026-10-17", all[0].Date)

	recent := p.ChangedLogsSince(10)
	require.Len(t, recent, 1)
	assert.Equal(t, "2026-10-18", recent[0].Date)
}

func TestRemoteSnapshot_ToProgress(t *testing.T) {
	t.Parallel()

	p := sampleProgress()
	p.LastUpdated = 200
	back := p.Snapshot().ToProgress()

	assert.Equal(t, p.Profile, back.Profile)
	assert.Equal(t, p.Logs, back.Logs)
}

func TestDates(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2, DaysBetween("2026-10-16", "2026-10-18"))
	assert.Equal(t, 0, DaysBetween("bad", "2026-10-18"))
	assert.Equal(t, "2026-11-01", AddDays("2026-10-31", 1))

	loc := time.FixedZone("UTC+9", 9*3600)
	assert.Equal(t, "2026-10-19", DateKey(time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC).In(loc)))
}

func TestEntitlement_IsValid(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	assert.True(t, Entitlement{IsPremium: true, Expiry: &future}.IsValid(now))
	assert.False(t, Entitlement{IsPremium: true, Expiry: &past}.IsValid(now))
	assert.False(t, Entitlement{IsPremium: false, Expiry: &future}.IsValid(now))
	assert.False(t, Entitlement{IsPremium: true}.IsValid(now))
}
