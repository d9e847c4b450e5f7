package gc

import (
	"context"
	"log"
	"time"

	"pgbroker/internal/metrics"
	"pgbroker/internal/storage"
)

// Worker periodically deletes expired message and membership rows. It owns
// all expired-row cleanup: callers never block on it and never see its
// failures.
type Worker struct {
	alias       string
	store       *storage.Store
	interval    time.Duration
	sweepGroups bool
	stopCh      chan struct{}
	doneCh      chan struct{}
}

func NewWorker(alias string, store *storage.Store, interval time.Duration, sweepGroups bool) *Worker {
	return &Worker{
		alias:       alias,
		store:       store,
		interval:    interval,
		sweepGroups: sweepGroups,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

func (w *Worker) Start() {
	log.Printf("[GC] Starting sweeper for store %s (interval %s)", w.alias, w.interval)

	go func() {
		defer close(w.doneCh)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.stopCh:
				log.Printf("[GC] Stopping sweeper for store %s", w.alias)
				return
			case <-ticker.C:
				w.sweep()
			}
		}
	}()
}

// Stop signals the sweeper to stop and waits for the current sweep to finish.
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Worker) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()

	now := time.Now()

	n, err := w.store.DeleteExpiredMessages(ctx, now)
	if err != nil {
		log.Printf("[GC][%s] Failed to delete expired messages: %v", w.alias, err)
	} else if n > 0 {
		metrics.GCRowsDeleted.WithLabelValues(w.alias, "message").Add(float64(n))
		log.Printf("[GC][%s] Deleted %d expired messages", w.alias, n)
	}

	if !w.sweepGroups {
		return
	}
	n, err = w.store.DeleteExpiredMemberships(ctx, now)
	if err != nil {
		log.Printf("[GC][%s] Failed to delete expired memberships: %v", w.alias, err)
	} else if n > 0 {
		metrics.GCRowsDeleted.WithLabelValues(w.alias, "group_membership").Add(float64(n))
		log.Printf("[GC][%s] Deleted %d expired memberships", w.alias, n)
	}
}
