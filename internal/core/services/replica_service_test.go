package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
)

type MockReplicaRepository struct {
	mock.Mock
}

func (m *MockReplicaRepository) Fetch(ctx context.Context, userID string) (*domain.RemoteSnapshot, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RemoteSnapshot), args.Error(1)
}

func (m *MockReplicaRepository) Commit(ctx context.Context, batch *domain.ReplicaBatch) error {
	return m.Called(ctx, batch).Error(0)
}

// UpdateEntitlement applies fn to the stored profile the expectation returns.
func (m *MockReplicaRepository) UpdateEntitlement(ctx context.Context, userID string, fn func(p *domain.Profile) error) (*domain.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	p := args.Get(0).(*domain.Profile).Clone()
	if err := fn(&p); err != nil {
		return nil, err
	}
	return &p, args.Error(1)
}

func validBatch(userID string) *domain.ReplicaBatch {
	log := domain.NewDailyLog("2026-10-18")
	log.AddCompletion(0, "Read")
	return &domain.ReplicaBatch{
		UserID:  userID,
		Profile: domain.Profile{UserID: userID, LastUpdated: 10},
		Logs:    []*domain.DailyLog{log},
	}
}

func TestReplicaService_Commit(t *testing.T) {
	ctx := context.Background()

	t.Run("Success: Should assign an id and commit", func(t *testing.T) {
		repo := new(MockReplicaRepository)
		svc := NewReplicaService(repo, "key")
		batch := validBatch("user-1")
		repo.On("Commit", ctx, batch).Return(nil)

		require.NoError(t, svc.Commit(ctx, "user-1", batch))
		assert.NotEmpty(t, batch.ID)
		repo.AssertExpectations(t)
	})

	t.Run("Success: Should fill a missing owner from the token", func(t *testing.T) {
		repo := new(MockReplicaRepository)
		svc := NewReplicaService(repo, "key")
		batch := validBatch("")
		repo.On("Commit", ctx, batch).Return(nil)

		require.NoError(t, svc.Commit(ctx, "user-1", batch))
		assert.Equal(t, "user-1", batch.UserID)
		assert.Equal(t, "user-1", batch.Profile.UserID)
	})

	t.Run("Fail: Should reject a batch for another user", func(t *testing.T) {
		repo := new(MockReplicaRepository)
		svc := NewReplicaService(repo, "key")

		err := svc.Commit(ctx, "user-1", validBatch("user-2"))
		assert.ErrorIs(t, err, domain.ErrReplicaOwnership)
		repo.AssertNotCalled(t, "Commit")
	})

	t.Run("Fail: Should reject malformed day logs", func(t *testing.T) {
		repo := new(MockReplicaRepository)
		svc := NewReplicaService(repo, "key")

		bad := validBatch("user-1")
		bad.Logs[0].Date = "18/10/2026"
		assert.ErrorIs(t, svc.Commit(ctx, "user-1", bad), domain.ErrInvalidBatch)

		dup := validBatch("user-1")
		dup.Logs = append(dup.Logs, dup.Logs[0].Clone())
		assert.ErrorIs(t, svc.Commit(ctx, "user-1", dup), domain.ErrInvalidBatch)

		assert.ErrorIs(t, svc.Commit(ctx, "user-1", nil), domain.ErrInvalidBatch)
		repo.AssertNotCalled(t, "Commit")
	})
}

func TestReplicaService_SetEntitlement(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(365 * 24 * time.Hour)
	premium := domain.Entitlement{IsPremium: true, Expiry: &expiry}

	t.Run("Fail: Should reject a wrong verification key", func(t *testing.T) {
		repo := new(MockReplicaRepository)
		svc := NewReplicaService(repo, "secret")

		_, err := svc.SetEntitlement(ctx, "guess", "user-1", premium)
		assert.ErrorIs(t, err, domain.ErrInvalidVerificationKey)
		repo.AssertNotCalled(t, "UpdateEntitlement")
	})

	t.Run("Fail: Should reject every key when none is configured", func(t *testing.T) {
		svc := NewReplicaService(new(MockReplicaRepository), "")
		_, err := svc.SetEntitlement(ctx, "", "user-1", premium)
		assert.ErrorIs(t, err, domain.ErrInvalidVerificationKey)
	})

	t.Run("Success: Should grant the first premium shield once", func(t *testing.T) {
		repo := new(MockReplicaRepository)
		svc := NewReplicaService(repo, "secret")
		svc.now = func() time.Time { return now }

		stored := domain.NewProgress("user-1").Profile
		stored.LastUpdated = 42
		repo.On("UpdateEntitlement", ctx, "user-1").Return(&stored, nil).Once()

		profile, err := svc.SetEntitlement(ctx, "secret", "user-1", premium)
		require.NoError(t, err)
		assert.Equal(t, int64(42), profile.LastUpdated)
		assert.Equal(t, expiry, *profile.Entitlement.Expiry)
		assert.True(t, profile.HasEverBeenPremium)
		assert.Equal(t, 1, profile.Resilience.Shields)

		renewed := profile.Clone()
		repo.On("UpdateEntitlement", ctx, "user-1").Return(&renewed, nil).Once()

		again, err := svc.SetEntitlement(ctx, "secret", "user-1", premium)
		require.NoError(t, err)
		assert.Equal(t, 1, again.Resilience.Shields, "the bonus shield is granted once")
		repo.AssertExpectations(t)
	})

	t.Run("Success: Should not grant a shield for an expired entitlement", func(t *testing.T) {
		repo := new(MockReplicaRepository)
		svc := NewReplicaService(repo, "secret")
		svc.now = func() time.Time { return now }

		stored := domain.NewProgress("user-9").Profile
		repo.On("UpdateEntitlement", ctx, "user-9").Return(&stored, nil)

		past := now.Add(-time.Hour)
		profile, err := svc.SetEntitlement(ctx, "secret", "user-9", domain.Entitlement{IsPremium: true, Expiry: &past})
		require.NoError(t, err)
		assert.Equal(t, "user-9", profile.UserID)
		assert.False(t, profile.HasEverBeenPremium)
		assert.Zero(t, profile.Resilience.Shields)
	})

	t.Run("Fail: Should surface repository errors", func(t *testing.T) {
		repo := new(MockReplicaRepository)
		svc := NewReplicaService(repo, "secret")
		repo.On("UpdateEntitlement", ctx, "user-2").Return(nil, assert.AnError)

		_, err := svc.SetEntitlement(ctx, "secret", "user-2", premium)
		assert.ErrorIs(t, err, assert.AnError)
	})
}
