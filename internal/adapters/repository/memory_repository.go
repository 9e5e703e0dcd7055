package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
)

var _ domain.ReplicaRepository = (*InMemoryReplicaRepository)(nil)

type memoryReplica struct {
	profile domain.Profile
	logs    map[string]*domain.DailyLog
}

// InMemoryReplicaRepository mirrors PostgresReplicaRepository semantics
// without a database. Used by tests and the local dev server.
type InMemoryReplicaRepository struct {
	store map[string]*memoryReplica

	mu sync.RWMutex
}

func NewInMemoryReplicaRepository() *InMemoryReplicaRepository {
	return &InMemoryReplicaRepository{
		store: make(map[string]*memoryReplica),
	}
}

func (r *InMemoryReplicaRepository) Fetch(ctx context.Context, userID string) (*domain.RemoteSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rep, ok := r.store[userID]
	if !ok {
		return nil, domain.ErrReplicaNotFound
	}

	snap := &domain.RemoteSnapshot{
		Profile: rep.profile.Clone(),
		Logs:    make([]*domain.DailyLog, 0, len(rep.logs)),
	}
	for _, l := range rep.logs {
		snap.Logs = append(snap.Logs, l.Clone())
	}
	sort.Slice(snap.Logs, func(i, j int) bool {
		return snap.Logs[i].Date < snap.Logs[j].Date
	})
	return snap, nil
}

func (r *InMemoryReplicaRepository) Commit(ctx context.Context, batch *domain.ReplicaBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep := r.replica(batch.UserID)

	next := batch.Profile.Clone()
	next.UserID = batch.UserID
	next.Entitlement = rep.profile.Entitlement
	next.HasEverBeenPremium = rep.profile.HasEverBeenPremium
	rep.profile = next

	for _, l := range batch.Logs {
		rep.logs[l.Date] = l.Clone()
	}
	return nil
}

// UpdateEntitlement holds the write lock for the whole read-modify-write, so
// a Commit either lands before fn sees the profile or after the update.
func (r *InMemoryReplicaRepository) UpdateEntitlement(ctx context.Context, userID string, fn func(p *domain.Profile) error) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, existed := r.store[userID]
	profile := domain.NewProgress(userID).Profile
	if existed {
		profile = r.store[userID].profile.Clone()
	}
	if err := fn(&profile); err != nil {
		return nil, err
	}

	rep := r.replica(userID)
	rep.profile.Entitlement = profile.Entitlement.Clone()
	rep.profile.HasEverBeenPremium = rep.profile.HasEverBeenPremium || profile.HasEverBeenPremium
	rep.profile.Resilience.Shields = profile.Resilience.Shields

	out := rep.profile.Clone()
	return &out, nil
}

func (r *InMemoryReplicaRepository) replica(userID string) *memoryReplica {
	rep, ok := r.store[userID]
	if !ok {
		rep = &memoryReplica{
			profile: domain.NewProgress(userID).Profile,
			logs:    make(map[string]*domain.DailyLog),
		}
		r.store[userID] = rep
	}
	return rep
}

var _ domain.UserRepository = (*InMemoryUserRepository)(nil)

type InMemoryUserRepository struct {
	byID    map[string]*domain.User
	byEmail map[string]string

	mu sync.RWMutex
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

func (r *InMemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return domain.ErrEmailAlreadyExists
	}
	u := *user
	r.byID[u.ID] = &u
	r.byEmail[u.Email] = u.ID
	return nil
}

func (r *InMemoryUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *InMemoryUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	out := *u
	return &out, nil
}
