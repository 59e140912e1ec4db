package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/xavierca1/conduit/internal/infra/queue"
)

type maintainer interface {
	Maintain(ctx context.Context) (queue.MaintenanceReport, error)
}

// MaintenanceWorker runs queue housekeeping on a fixed tick: expiring old
// jobs, requeueing abandoned claims and purging completed rows.
type MaintenanceWorker struct {
	queue        maintainer
	tickInterval time.Duration
	logger       *slog.Logger
}

func NewMaintenanceWorker(q maintainer, tickInterval time.Duration, logger *slog.Logger) *MaintenanceWorker {
	if tickInterval <= 0 {
		tickInterval = time.Minute
	}
	return &MaintenanceWorker{queue: q, tickInterval: tickInterval, logger: logger}
}

// Start blocks until ctx is done. It runs one pass immediately.
func (w *MaintenanceWorker) Start(ctx context.Context) {
	w.logger.Info("queue maintenance started", "interval", w.tickInterval)

	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("queue maintenance stopped")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *MaintenanceWorker) runOnce(ctx context.Context) {
	report, err := w.queue.Maintain(ctx)
	if err != nil {
		w.logger.Error("queue maintenance failed", "error", err)
		return
	}

	if report.Expired+report.Requeued+report.Failed > 0 || report.Purged > 0 {
		w.logger.Info("queue maintenance done",
			"expired", report.Expired,
			"requeued", report.Requeued,
			"failed", report.Failed,
			"purged", report.Purged)
	}
}
