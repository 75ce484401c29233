package worker

import (
	"context"
	"log/slog"
	"time"
)

// Runner is the worker's single cooperative loop: drain a batch, maybe
// reconcile, sleep, repeat. The loop checks for shutdown between
// batches; a cancelled context also aborts the event transaction in
// flight, which then rolls back as a whole, so no event is half-applied.
type Runner struct {
	processor              *Processor
	reconciler             *Reconciler
	pollInterval           time.Duration
	reconciliationInterval time.Duration
	log                    *slog.Logger
}

func NewRunner(processor *Processor, reconciler *Reconciler, pollInterval, reconciliationInterval time.Duration, log *slog.Logger) *Runner {
	return &Runner{
		processor:              processor,
		reconciler:             reconciler,
		pollInterval:           pollInterval,
		reconciliationInterval: reconciliationInterval,
		log:                    log,
	}
}

func (r *Runner) Run(ctx context.Context) error {
	lastReconciliation := time.Now()
	for {
		if ctx.Err() != nil {
			r.log.Info("worker loop stopping")
			return nil
		}

		if n, err := r.processor.ProcessAvailableEvents(ctx); err != nil {
			r.log.ErrorContext(ctx, "outbox drain failed", "err", err)
		} else if n > 0 {
			r.log.DebugContext(ctx, "outbox batch processed", "claimed", n)
		}

		if time.Since(lastReconciliation) >= r.reconciliationInterval {
			if _, err := r.reconciler.RunOnce(ctx); err != nil {
				r.log.ErrorContext(ctx, "reconciliation failed", "err", err)
			}
			lastReconciliation = time.Now()
		}

		select {
		case <-ctx.Done():
			r.log.Info("worker loop stopping")
			return nil
		case <-time.After(r.pollInterval):
		}
	}
}
