package worker

import (
	"context"
	"log/slog"
	"time"
)

// ExpireFunc releases all overdue holds and reports how many transitioned.
type ExpireFunc func(ctx context.Context) (int, error)

// ExpirationWorker drives reservation expiry on a schedule. Correctness does
// not depend on it: a late confirm expires its own hold inline. The schedule
// only bounds how long released stock stays invisible to other shoppers.
type ExpirationWorker struct {
	expire   ExpireFunc
	interval time.Duration
	logger   *slog.Logger
}

// NewExpirationWorker creates a worker that calls expire every interval.
func NewExpirationWorker(expire ExpireFunc, interval time.Duration, logger *slog.Logger) *ExpirationWorker {
	return &ExpirationWorker{
		expire:   expire,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled. The first pass runs immediately so
// holds that lapsed while the service was down are released on boot.
func (w *ExpirationWorker) Run(ctx context.Context) {
	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// runOnce performs a single expiry pass. Errors are logged and the schedule
// continues; the next tick retries naturally.
func (w *ExpirationWorker) runOnce(ctx context.Context) {
	expired, err := w.expire(ctx)
	if err != nil {
		w.logger.Error("reservation expiry pass failed", slog.String("error", err.Error()))
		return
	}
	if expired > 0 {
		w.logger.Info("expired reservations released", slog.Int("expired", expired))
	}
}
