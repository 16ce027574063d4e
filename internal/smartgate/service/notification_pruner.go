package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/smartgate/server/internal/smartgate/store"
)

// NotificationPruner periodically deletes read notifications older than a
// configurable retention period. It runs as a background goroutine and
// is safe to stop via its context or the Stop method.
//
// A retention of 0 disables pruning entirely.
type NotificationPruner struct {
	store     store.Store
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

// PrunerConfig holds the parameters for NewNotificationPruner.
type PrunerConfig struct {
	// Retention is how long read notifications are kept.
	// 0 means keep everything (pruner will not start).
	Retention time.Duration

	// Interval is how often the pruner runs. Defaults to 6h.
	Interval time.Duration
}

// NewNotificationPruner creates a pruner but does not start it.
// Call Start to begin the background loop.
func NewNotificationPruner(st store.Store, cfg PrunerConfig, opts Options) *NotificationPruner {
	opts = opts.withDefaults()
	interval := cfg.Interval
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	return &NotificationPruner{
		store:     st,
		retention: cfg.Retention,
		interval:  interval,
		now:       opts.now,
		logger:    opts.Logger,
		done:      make(chan struct{}),
	}
}

// Start begins the background pruning loop. It runs an immediate prune
// on startup, then repeats on the configured interval. The loop exits
// when ctx is cancelled or Stop is called.
func (p *NotificationPruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Info("notification pruner disabled", "retention", p.retention)
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)

	go p.loop(ctx)

	p.logger.Info("notification pruner started", "retention", p.retention, "interval", p.interval)
}

// Stop signals the pruner to exit and waits for it to finish.
func (p *NotificationPruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *NotificationPruner) loop(ctx context.Context) {
	defer close(p.done)

	// Run immediately on startup to clean up any backlog.
	p.Prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune runs one pass and reports how many notifications were deleted.
func (p *NotificationPruner) Prune(ctx context.Context) int64 {
	cutoff := p.now().Add(-p.retention)
	var deleted int64
	err := p.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		deleted, err = tx.Notifications().PruneReadBefore(ctx, cutoff)
		return err
	})
	if err != nil {
		p.logger.Error("notification prune failed", "err", err)
		return 0
	}
	if deleted > 0 {
		p.logger.Info("notification prune", "deleted", deleted, "cutoff", cutoff.Format(time.RFC3339))
	}
	return deleted
}
