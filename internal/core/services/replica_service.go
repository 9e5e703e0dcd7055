package services

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/engine"
)

// ReplicaService is the server side of the remote replica.
type ReplicaService struct {
	repo            domain.ReplicaRepository
	verificationKey []byte
	now             func() time.Time
}

func NewReplicaService(repo domain.ReplicaRepository, verificationKey string) *ReplicaService {
	return &ReplicaService{
		repo:            repo,
		verificationKey: []byte(verificationKey),
		now:             time.Now,
	}
}

func (s *ReplicaService) Fetch(ctx context.Context, userID string) (*domain.RemoteSnapshot, error) {
	return s.repo.Fetch(ctx, userID)
}

// Commit validates a client batch and writes it atomically. The batch must
// belong to userID; entitlement fields are dropped by the repository.
func (s *ReplicaService) Commit(ctx context.Context, userID string, batch *domain.ReplicaBatch) error {
	if batch == nil {
		return domain.ErrInvalidBatch
	}
	if batch.UserID == "" {
		batch.UserID = userID
	}
	if batch.Profile.UserID == "" {
		batch.Profile.UserID = userID
	}
	if batch.UserID != userID || batch.Profile.UserID != userID {
		return domain.ErrReplicaOwnership
	}
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}

	seen := make(map[string]struct{}, len(batch.Logs))
	for _, l := range batch.Logs {
		if l == nil {
			return fmt.Errorf("%w: empty day log", domain.ErrInvalidBatch)
		}
		if _, err := domain.ParseDate(l.Date); err != nil {
			return fmt.Errorf("%w: day log date %q", domain.ErrInvalidBatch, l.Date)
		}
		if _, dup := seen[l.Date]; dup {
			return fmt.Errorf("%w: duplicate day log %s", domain.ErrInvalidBatch, l.Date)
		}
		seen[l.Date] = struct{}{}
	}
	if batch.Profile.Habits != nil && batch.Profile.Habits.Validate() != nil {
		return fmt.Errorf("%w: incomplete habit set", domain.ErrInvalidBatch)
	}

	return s.repo.Commit(ctx, batch)
}

// SetEntitlement is the trusted verification step. It is the only path that
// writes entitlement, and grants the first-premium shield at most once.
func (s *ReplicaService) SetEntitlement(ctx context.Context, key, userID string, ent domain.Entitlement) (*domain.Profile, error) {
	if len(s.verificationKey) == 0 || subtle.ConstantTimeCompare([]byte(key), s.verificationKey) != 1 {
		return nil, domain.ErrInvalidVerificationKey
	}

	now := s.now()
	return s.repo.UpdateEntitlement(ctx, userID, func(profile *domain.Profile) error {
		p := &domain.Progress{Profile: *profile}
		engine.ApplyVerifiedEntitlement(p, ent, now)
		*profile = p.Profile
		return nil
	})
}
