package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
)

var _ domain.ReplicaRepository = (*CachedReplicaRepository)(nil)

type CachedReplicaRepository struct {
	next  domain.ReplicaRepository
	cache *redis.Client
	ttl   time.Duration
}

func NewCachedReplicaRepository(next domain.ReplicaRepository, cache *redis.Client) *CachedReplicaRepository {
	return &CachedReplicaRepository{
		next:  next,
		cache: cache,
		ttl:   30 * time.Minute,
	}
}

func (r *CachedReplicaRepository) cacheKey(userID string) string {
	return fmt.Sprintf("replica:%s", userID)
}

func (r *CachedReplicaRepository) invalidate(ctx context.Context, userID string) {
	if err := r.cache.Del(ctx, r.cacheKey(userID)).Err(); err != nil {
		log.Printf("[CACHE] Failed to invalidate for user %s: %v", userID, err)
	}
}

func (r *CachedReplicaRepository) Fetch(ctx context.Context, userID string) (*domain.RemoteSnapshot, error) {
	key := r.cacheKey(userID)

	val, err := r.cache.Get(ctx, key).Result()
	if err == nil {
		var snap domain.RemoteSnapshot
		if err := json.Unmarshal([]byte(val), &snap); err == nil {
			return &snap, nil
		}

		log.Printf("[CACHE] Corrupted data for user %s, cleaning up key", userID)
		r.cache.Del(ctx, key)
	} else if err != redis.Nil {
		log.Printf("[CACHE] Redis read error: %v", err)
	}

	snap, err := r.next.Fetch(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(snap); err == nil {
		if setErr := r.cache.Set(ctx, key, data, r.ttl).Err(); setErr != nil {
			log.Printf("[CACHE] Redis set error: %v", setErr)
		}
	}

	return snap, nil
}

func (r *CachedReplicaRepository) Commit(ctx context.Context, batch *domain.ReplicaBatch) error {
	if err := r.next.Commit(ctx, batch); err != nil {
		return err
	}
	r.invalidate(ctx, batch.UserID)
	return nil
}

func (r *CachedReplicaRepository) UpdateEntitlement(ctx context.Context, userID string, fn func(p *domain.Profile) error) (*domain.Profile, error) {
	profile, err := r.next.UpdateEntitlement(ctx, userID, fn)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, userID)
	return profile, nil
}
