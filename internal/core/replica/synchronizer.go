package replica

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
)

var ErrNotReconciled = errors.New("replica not reconciled yet")

// SnapshotSource is the owner of the local replica.
type SnapshotSource interface {
	// Snapshot returns a copy of the latest local state.
	Snapshot(ctx context.Context) (*domain.Progress, error)

	// Replace installs next as the local state if the local LastUpdated still
	// equals expected, otherwise it returns domain.ErrStaleReplica.
	Replace(ctx context.Context, next *domain.Progress, expected int64) error
}

type PushOutcome string

const (
	PushCommitted PushOutcome = "committed"
	PushSkipped   PushOutcome = "skipped"
	PushCoalesced PushOutcome = "coalesced"
)

// Synchronizer keeps one local replica in step with the remote store.
type Synchronizer struct {
	userID string
	source SnapshotSource
	remote domain.RemoteStore
	now    func() time.Time

	initialLoadComplete atomic.Bool
	lastSynced          atomic.Int64

	mu           sync.Mutex
	inFlight     bool
	pending      bool
	pendingForce bool
}

func NewSynchronizer(userID string, source SnapshotSource, remote domain.RemoteStore) *Synchronizer {
	return &Synchronizer{
		userID: userID,
		source: source,
		remote: remote,
		now:    time.Now,
	}
}

// Reconciled reports whether Reconcile has completed in this session.
func (s *Synchronizer) Reconciled() bool {
	return s.initialLoadComplete.Load()
}

// LastSynced is the LastUpdated of the last state known to be on the remote.
func (s *Synchronizer) LastSynced() int64 {
	return s.lastSynced.Load()
}

// Reconcile merges the local replica with the remote one. Automatic pushes
// are refused until it has succeeded once.
func (s *Synchronizer) Reconcile(ctx context.Context) (Action, error) {
	local, err := s.source.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("read local replica: %w", err)
	}

	remote, err := s.remote.Fetch(ctx, s.userID)
	if errors.Is(err, domain.ErrReplicaNotFound) {
		remote = nil
	} else if err != nil {
		log.Printf("[SYNC] Reconcile fetch failed for user %s: %v", s.userID, err)
		return "", err
	}

	d := Merge(local, remote, s.now())
	reconcileTotal.WithLabelValues(string(d.Action)).Inc()

	switch d.Action {
	case ActionAdopt, ActionEntitlementOverride:
		if err := s.source.Replace(ctx, d.Result, local.LastUpdated); err != nil {
			return d.Action, err
		}
	}
	var remoteUpdated int64
	if remote != nil {
		remoteUpdated = remote.Profile.LastUpdated
		s.lastSynced.Store(remoteUpdated)
	}
	s.initialLoadComplete.Store(true)
	log.Printf("[SYNC] Reconciled user %s: %s (local=%d remote=%d)", s.userID, d.Action, local.LastUpdated, remoteUpdated)

	if d.Push {
		if _, err := s.pushOnce(ctx, true, true); err != nil {
			return d.Action, err
		}
	}
	return d.Action, nil
}

// Push uploads the latest local state if it changed since the last
// successful sync, or unconditionally when force is set. A push requested
// while another is in flight is coalesced into one follow-up run.
func (s *Synchronizer) Push(ctx context.Context, force bool) (PushOutcome, error) {
	if !s.Reconciled() {
		pushTotal.WithLabelValues("blocked").Inc()
		return "", ErrNotReconciled
	}

	s.mu.Lock()
	if s.inFlight {
		s.pending = true
		s.pendingForce = s.pendingForce || force
		s.mu.Unlock()
		pushTotal.WithLabelValues(string(PushCoalesced)).Inc()
		return PushCoalesced, nil
	}
	s.inFlight = true
	s.mu.Unlock()

	for {
		outcome, err := s.pushOnce(ctx, force, false)

		s.mu.Lock()
		if err != nil || !s.pending {
			s.inFlight = false
			s.pending = false
			s.pendingForce = false
			s.mu.Unlock()
			return outcome, err
		}
		force = s.pendingForce
		s.pending = false
		s.pendingForce = false
		s.mu.Unlock()
	}
}

// pushOnce reads the local replica at commit time. full sends every day log
// instead of only those stamped after the last sync.
func (s *Synchronizer) pushOnce(ctx context.Context, force, full bool) (PushOutcome, error) {
	p, err := s.source.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("read local replica: %w", err)
	}

	since := s.lastSynced.Load()
	if !force && p.LastUpdated <= since {
		pushTotal.WithLabelValues(string(PushSkipped)).Inc()
		return PushSkipped, nil
	}
	if full {
		since = -1
	}

	batch := &domain.ReplicaBatch{
		ID:      uuid.NewString(),
		UserID:  s.userID,
		Profile: p.Profile.Clone(),
		Logs:    p.ChangedLogsSince(since),
	}
	if err := s.remote.Commit(ctx, batch); err != nil {
		pushTotal.WithLabelValues("failed").Inc()
		log.Printf("[SYNC] Push failed for user %s: %v", s.userID, err)
		return "", err
	}

	s.lastSynced.Store(p.LastUpdated)
	pushTotal.WithLabelValues(string(PushCommitted)).Inc()
	pushLogs.Observe(float64(len(batch.Logs)))
	return PushCommitted, nil
}

// Pull replaces the local replica with the remote image.
func (s *Synchronizer) Pull(ctx context.Context) error {
	local, err := s.source.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("read local replica: %w", err)
	}
	remote, err := s.remote.Fetch(ctx, s.userID)
	if err != nil {
		return err
	}

	if err := s.source.Replace(ctx, remote.ToProgress(), local.LastUpdated); err != nil {
		return err
	}
	s.lastSynced.Store(remote.Profile.LastUpdated)
	s.initialLoadComplete.Store(true)
	log.Printf("[SYNC] Pulled remote replica for user %s (remote=%d)", s.userID, remote.Profile.LastUpdated)
	return nil
}
