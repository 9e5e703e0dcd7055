package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewCycle(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	draft := &WeeklyReview{
		CycleIndex: 3,
		WeekKey:    "2026-W42",
		Options:    []EvolutionOption{{Kind: OptionMaintain}, {Kind: OptionIncrease}},
	}

	t.Run("Success: open then seal discards the draft", func(t *testing.T) {
		c := ReviewCycle{Phase: NoReviewPending}
		require.NoError(t, c.Open(draft))

		pending, ok := c.Pending()
		require.True(t, ok)
		assert.Equal(t, "2026-W42", pending.WeekKey)

		sealed, err := c.Seal(OptionIncrease, now)
		require.NoError(t, err)
		assert.Equal(t, 3, sealed.CycleIndex)

		assert.Equal(t, ReviewSealed, c.Phase)
		assert.Nil(t, c.Draft)
		require.NotNil(t, c.Sealed)
		assert.Equal(t, OptionIncrease, c.Sealed.Chosen)
	})

	t.Run("Fail: opening twice", func(t *testing.T) {
		c := ReviewCycle{Phase: NoReviewPending}
		require.NoError(t, c.Open(draft))
		assert.ErrorIs(t, c.Open(draft), ErrReviewAlreadyDrafted)
	})

	t.Run("Fail: sealing without a draft", func(t *testing.T) {
		c := ReviewCycle{Phase: ReviewSealed}
		_, err := c.Seal(OptionMaintain, now)
		assert.ErrorIs(t, err, ErrNoReviewPending)
	})

	t.Run("Fail: option not offered", func(t *testing.T) {
		c := ReviewCycle{Phase: NoReviewPending}
		require.NoError(t, c.Open(draft))
		_, err := c.Seal(OptionChangeIdentity, now)
		assert.ErrorIs(t, err, ErrOptionNotOffered)
		assert.Equal(t, ReviewDrafted, c.Phase)
	})
}

func TestOptionKind_DifficultyDelta(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, OptionIncrease.DifficultyDelta())
	assert.Equal(t, -1, OptionDecrease.DifficultyDelta())
	assert.Equal(t, -2, OptionMinimal.DifficultyDelta())
	assert.Equal(t, 0, OptionFreshStart.DifficultyDelta())
	assert.True(t, OptionIncrease.IsIncrease())
	assert.False(t, OptionMaintain.IsIncrease())
}

func TestStage_Order(t *testing.T) {
	t.Parallel()

	next, ok := StageInitiation.Next()
	assert.True(t, ok)
	assert.Equal(t, StageIntegration, next)

	_, ok = StageMaintenance.Next()
	assert.False(t, ok)

	prev, ok := StageExpansion.Previous()
	assert.True(t, ok)
	assert.Equal(t, StageIntegration, prev)
}
