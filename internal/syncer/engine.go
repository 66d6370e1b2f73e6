// Package syncer drains unsynced readings from the local store and delivers
// them to the remote authority in bounded batches.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"sensorsync/internal/backpressure"
	"sensorsync/internal/breaker"
	"sensorsync/internal/logging"
	"sensorsync/internal/remote"
	"sensorsync/internal/store"
)

// DefaultBatchSize bounds how many readings one bulk upload carries.
const DefaultBatchSize = 360

// Status is a snapshot of the engine's last outcome, served by the admin
// endpoint and the status dashboard.
type Status struct {
	LastAttempt time.Time `json:"last_attempt"`
	LastSuccess time.Time `json:"last_success"`
	LastBatch   int       `json:"last_batch"`
	LastError   string    `json:"last_error,omitempty"`
}

// Engine runs the sync cadence. Every remote call goes through the circuit
// breaker, and every outcome feeds the backpressure controller.
//
// Synced rows stay in the store: the retention manager is the single deletion
// authority, so there is exactly one code path that removes data.
type Engine struct {
	store     *store.Store
	writer    remote.Writer
	breaker   *breaker.Breaker
	pressure  *backpressure.Controller
	batchSize int
	interval  time.Duration

	mu     sync.Mutex
	status Status
}

// New builds a sync engine. batchSize <= 0 selects DefaultBatchSize.
func New(st *store.Store, w remote.Writer, b *breaker.Breaker, p *backpressure.Controller, batchSize int, interval time.Duration) *Engine {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Engine{
		store:     st,
		writer:    w,
		breaker:   b,
		pressure:  p,
		batchSize: batchSize,
		interval:  interval,
	}
}

// Run starts the sync loop and stops when the context is done. Sync runs on
// its own cadence, more frequent than measurement, to keep the unsynced
// backlog small. Failures are local to a cycle; the next tick retries.
func (e *Engine) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	log.Info("starting sync engine", "interval", e.interval, "batch_size", e.batchSize)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n, err := e.SyncCycle(ctx); err == nil && n > 0 {
				log.Info("synced readings", "count", n)
			}
		case <-ctx.Done():
			log.Info("stopping sync engine")
			return
		}
	}
}

// SyncCycle performs one drain attempt and returns how many readings were
// accepted. An empty store is nothing-to-do, not an error, and makes no
// network call.
func (e *Engine) SyncCycle(ctx context.Context) (int, error) {
	log := logging.FromContext(ctx)

	batch, err := e.store.UnsyncedBatch(ctx, e.batchSize)
	if err != nil {
		log.Error("reading unsynced batch failed", "err", err)
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}
	ids := make([]int64, len(batch))
	for i, r := range batch {
		ids[i] = r.ID
	}

	err = e.breaker.Do(ctx, func(ctx context.Context) error {
		return e.writer.WriteBatch(ctx, batch)
	})
	if err != nil {
		e.pressure.RecordFailure()
		e.recordAttempt(0, err)
		e.logFailure(log, err, len(batch))
		return 0, err
	}

	e.pressure.RecordSuccess()
	e.recordAttempt(len(batch), nil)

	// The remote has already accepted the batch; if flagging fails the rows
	// are re-sent next cycle and deduplicated upstream (at-least-once).
	if err := e.store.MarkSynced(ctx, ids); err != nil {
		log.Error("marking batch synced failed", "err", err, "count", len(ids))
		return 0, err
	}
	return len(batch), nil
}

// Status returns a snapshot of the last cycle's outcome.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) recordAttempt(synced int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	e.status.LastAttempt = now
	if err == nil {
		e.status.LastSuccess = now
		e.status.LastBatch = synced
		e.status.LastError = ""
		return
	}
	e.status.LastError = err.Error()
}

func (e *Engine) logFailure(log *slog.Logger, err error, batchLen int) {
	switch {
	case errors.Is(err, breaker.ErrOpen):
		log.Debug("sync skipped, circuit open", "pending", batchLen)
	default:
		if te, ok := remote.AsTransferError(err); ok {
			log.Warn("batch transfer failed", "kind", te.Kind.String(), "count", batchLen, "err", err)
			return
		}
		log.Warn("batch transfer failed", "count", batchLen, "err", err)
	}
}
