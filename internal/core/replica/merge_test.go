package replica

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
)

var now = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

func progressAt(lastUpdated int64, streak int) *domain.Progress {
	p := domain.NewProgress("user-1")
	p.Identity = domain.IdentityProfile{Identity: "a reader", Type: domain.IdentityCharacter, Stage: domain.StageIntegration}
	p.Habits = &domain.HabitSet{High: []string{"Read"}, Medium: []string{"Skim"}, Low: []string{"Open book"}}
	p.Resilience.Streak = streak
	p.LastUpdated = lastUpdated

	l := p.EnsureLog("2026-10-18")
	l.AddCompletion(0, "Read")
	l.UpdatedAt = lastUpdated
	return p
}

func premium(expiry time.Time) domain.Entitlement {
	return domain.Entitlement{IsPremium: true, Expiry: &expiry}
}

func TestMerge(t *testing.T) {
	t.Run("Success: no remote record is a first write", func(t *testing.T) {
		local := progressAt(100, 3)

		d := Merge(local, nil, now)
		assert.Equal(t, ActionFirstWrite, d.Action)
		assert.True(t, d.Push)
		assert.Equal(t, local.Profile, d.Result.Profile)
	})

	t.Run("Success: newer remote is adopted byte for byte", func(t *testing.T) {
		local := progressAt(100, 3)
		remote := progressAt(200, 9)
		remote.Identity.Identity = "a writer"
		remote.EnsureLog("2026-10-17").Note = "remote only"

		d := Merge(local, remote.Snapshot(), now)
		require.Equal(t, ActionAdopt, d.Action)
		assert.False(t, d.Push)

		want, err := json.Marshal(remote)
		require.NoError(t, err)
		got, err := json.Marshal(d.Result)
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got))
	})

	t.Run("Success: valid remote entitlement overrides a newer local replica", func(t *testing.T) {
		expiry := now.Add(30 * 24 * time.Hour)
		local := progressAt(200, 5)
		remote := progressAt(100, 2)
		remote.Entitlement = premium(expiry)
		remote.HasEverBeenPremium = true

		d := Merge(local, remote.Snapshot(), now)
		require.Equal(t, ActionEntitlementOverride, d.Action)
		assert.True(t, d.Push)

		res := d.Result
		assert.True(t, res.Entitlement.IsPremium)
		assert.Equal(t, expiry, *res.Entitlement.Expiry)
		assert.True(t, res.HasEverBeenPremium)
		assert.Equal(t, int64(201), res.LastUpdated)
		assert.Equal(t, 5, res.Resilience.Streak, "local progress is kept")
		assert.Equal(t, 1, res.Resilience.Shields, "first premium seen by this replica grants the bonus")

		assert.False(t, local.Entitlement.IsPremium, "input untouched")
	})

	t.Run("Success: override does not grant the bonus twice", func(t *testing.T) {
		local := progressAt(200, 5)
		local.HasEverBeenPremium = true
		remote := progressAt(100, 2)
		remote.Entitlement = premium(now.Add(time.Hour))
		remote.HasEverBeenPremium = true

		d := Merge(local, remote.Snapshot(), now)
		require.Equal(t, ActionEntitlementOverride, d.Action)
		assert.Equal(t, 0, d.Result.Resilience.Shields)
	})

	t.Run("Success: expired remote entitlement does not override", func(t *testing.T) {
		local := progressAt(200, 5)
		remote := progressAt(100, 2)
		remote.Entitlement = premium(now.Add(-time.Hour))

		d := Merge(local, remote.Snapshot(), now)
		assert.Equal(t, ActionUpload, d.Action)
		assert.True(t, d.Push)
		assert.False(t, d.Result.Entitlement.IsPremium)
	})

	t.Run("Success: local already premium uploads", func(t *testing.T) {
		local := progressAt(200, 5)
		local.Entitlement = premium(now.Add(time.Hour))
		remote := progressAt(100, 2)
		remote.Entitlement = premium(now.Add(48 * time.Hour))

		d := Merge(local, remote.Snapshot(), now)
		assert.Equal(t, ActionUpload, d.Action)
		assert.Equal(t, int64(200), d.Result.LastUpdated)
	})

	t.Run("Success: equal timestamps are a no-op", func(t *testing.T) {
		local := progressAt(150, 5)
		remote := progressAt(150, 1)

		d := Merge(local, remote.Snapshot(), now)
		assert.Equal(t, ActionNone, d.Action)
		assert.False(t, d.Push)
		assert.Equal(t, 5, d.Result.Resilience.Streak)
	})
}
