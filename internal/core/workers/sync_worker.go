package workers

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/replica"
)

type Synchronizer interface {
	Reconciled() bool
	Reconcile(ctx context.Context) (replica.Action, error)
	Push(ctx context.Context, force bool) (replica.PushOutcome, error)
}

// SyncWorker pushes local mutations in the background. It reconciles first
// and retries reconciliation on every trigger until it succeeds.
type SyncWorker struct {
	sync     Synchronizer
	interval time.Duration
	notify   chan struct{}
}

func NewSyncWorker(s Synchronizer, interval time.Duration) *SyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SyncWorker{
		sync:     s,
		interval: interval,
		notify:   make(chan struct{}, 1),
	}
}

func (w *SyncWorker) Start(ctx context.Context) {
	go func() {
		log.Println("[WORKER] Sync worker started in background...")
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.runOnce(ctx)
		for {
			select {
			case <-ticker.C:
				w.runOnce(ctx)
			case <-w.notify:
				w.runOnce(ctx)
			case <-ctx.Done():
				log.Println("[WORKER] Sync worker shutting down...")
				return
			}
		}
	}()
}

// Notify requests a push. Requests arriving while one is queued collapse
// into it.
func (w *SyncWorker) Notify() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *SyncWorker) runOnce(ctx context.Context) {
	if !w.sync.Reconciled() {
		action, err := w.sync.Reconcile(ctx)
		if err != nil {
			log.Printf("[WORKER] Reconcile failed, retrying on next trigger: %v", err)
			return
		}
		log.Printf("[WORKER] Reconciled (%s)", action)
		return
	}

	outcome, err := w.sync.Push(ctx, false)
	switch {
	case errors.Is(err, replica.ErrNotReconciled):
		return
	case err != nil:
		log.Printf("[WORKER] Push failed, retrying on next trigger: %v", err)
	case outcome == replica.PushCommitted:
		log.Println("[WORKER] Local changes pushed")
	}
}
