// Package retention keeps local storage bounded. When disk utilization
// crosses a threshold it evicts readings spread evenly across the retained
// time range, so the survivors still show the whole trend instead of losing
// the oldest stretch outright.
package retention

import (
	"context"
	"time"

	"sensorsync/internal/logging"
	"sensorsync/internal/store"
)

const (
	// DefaultThreshold is the disk utilization percentage that triggers a sweep.
	DefaultThreshold = 50.0
	// DefaultInterval is the cadence of utilization checks.
	DefaultInterval = 5 * time.Minute
	// DefaultEvictFraction is the share of rows removed per pass, sized to
	// land comfortably below the threshold instead of right at its edge.
	DefaultEvictFraction = 0.2
	// DefaultMaxPasses bounds how many evict-and-recheck rounds one sweep may
	// run when a single pass does not free enough space.
	DefaultMaxPasses = 3
)

// Options tune the manager. Zero values select the defaults above.
type Options struct {
	Threshold     float64
	Interval      time.Duration
	EvictFraction float64
	MaxPasses     int

	// ProtectUnsynced restricts eviction to rows already accepted remotely.
	// Off by default: the local store is a buffer of last resort, not the
	// durability guarantee, and under extreme pressure unsynced data is
	// sacrificed rather than letting the device fill its disk and stall.
	ProtectUnsynced bool
}

func (o Options) withDefaults() Options {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.EvictFraction <= 0 || o.EvictFraction >= 1 {
		o.EvictFraction = DefaultEvictFraction
	}
	if o.MaxPasses <= 0 {
		o.MaxPasses = DefaultMaxPasses
	}
	return o
}

// Manager runs the retention cadence against the reading store.
type Manager struct {
	store *store.Store
	gauge Gauge
	opts  Options
}

// New builds a retention manager.
func New(st *store.Store, gauge Gauge, opts Options) *Manager {
	return &Manager{store: st, gauge: gauge, opts: opts.withDefaults()}
}

// Run starts the retention loop and stops when the context is done. It runs
// independently of sync activity; a failed sweep is logged and retried on the
// next tick.
func (m *Manager) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	log.Info("starting retention manager",
		"interval", m.opts.Interval,
		"threshold_percent", m.opts.Threshold,
		"protect_unsynced", m.opts.ProtectUnsynced)
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				log.Error("retention sweep failed", "err", err)
			}
		case <-ctx.Done():
			log.Info("stopping retention manager")
			return
		}
	}
}

// Sweep checks utilization and evicts if the threshold is exceeded. Returns
// the number of rows deleted. Each pass removes EvictFraction of the
// remaining rows, stratified across the time range, then re-checks
// utilization, up to MaxPasses rounds.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	log := logging.FromContext(ctx)

	var deleted int64
	for pass := 0; pass < m.opts.MaxPasses; pass++ {
		usage, err := m.gauge.Utilization()
		if err != nil {
			return deleted, err
		}
		if usage <= m.opts.Threshold {
			if pass > 0 {
				log.Info("disk usage back under threshold", "usage_percent", usage, "deleted", deleted)
			}
			return deleted, nil
		}
		log.Warn("disk usage exceeds threshold",
			"usage_percent", usage, "threshold_percent", m.opts.Threshold)

		n, err := m.evictPass(ctx)
		if err != nil {
			return deleted, err
		}
		deleted += n
		if n == 0 {
			// Nothing eligible; with protect_unsynced this can happen while
			// a large backlog is still awaiting sync.
			log.Warn("no evictable readings despite disk pressure", "usage_percent", usage)
			return deleted, nil
		}
		log.Info("evicted readings", "count", n, "pass", pass+1)
	}
	return deleted, nil
}

func (m *Manager) evictPass(ctx context.Context) (int64, error) {
	ids, err := m.store.IDsByTime(ctx, m.opts.ProtectUnsynced)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	target := int(float64(len(ids)) * m.opts.EvictFraction)
	if target < 1 {
		target = 1
	}
	return m.store.DeleteByIDs(ctx, Stratify(ids, target))
}

// Stratify picks n ids evenly spaced across the time-ordered id list, so the
// deletion thins granularity everywhere instead of truncating the oldest
// range. ids must be sorted by time ascending.
func Stratify(ids []int64, n int) []int64 {
	if n >= len(ids) {
		out := make([]int64, len(ids))
		copy(out, ids)
		return out
	}
	stride := float64(len(ids)) / float64(n)
	out := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ids[int(float64(i)*stride)])
	}
	return out
}
