package queue

import (
	"context"
	"errors"
	"fmt"
)

// MaintenanceReport counts what one Maintain pass touched.
type MaintenanceReport struct {
	Expired  int
	Requeued int
	Failed   int
	Purged   int64
}

// Maintain expires jobs that waited past the expiry horizon, hands abandoned
// claims back to the retry path and purges old completed jobs. Jobs that die
// here go through the same dead-letter handlers as failed attempts. Running
// it concurrently from several processes is safe.
func (q *Queue) Maintain(ctx context.Context) (MaintenanceReport, error) {
	var (
		report MaintenanceReport
		errs   []error
	)
	now := q.cfg.clock.Now()

	expired, err := q.store.Expire(ctx, now.Add(-q.cfg.expireAfter), now)
	if err != nil {
		errs = append(errs, fmt.Errorf("expire jobs: %w", err))
	}
	for _, job := range expired {
		q.cfg.logger.Warn("job expired", "job_id", job.ID, "kind", job.Kind, "attempts", job.Attempts)
		q.dead(ctx, q.lookup(job.Kind), job, ErrJobExpired)
	}
	report.Expired = len(expired)
	q.cfg.metrics.JobsExpired(len(expired))

	stale, err := q.store.RequeueStale(ctx, now.Add(-q.cfg.activeTimeout), now)
	if err != nil {
		errs = append(errs, fmt.Errorf("requeue stale jobs: %w", err))
	}
	for _, job := range stale {
		if job.Status == StatusFailed {
			report.Failed++
			q.cfg.logger.Error("stale job failed permanently", "job_id", job.ID, "kind", job.Kind, "attempts", job.Attempts)
			q.dead(ctx, q.lookup(job.Kind), job, ErrStaleClaim)
			continue
		}
		report.Requeued++
		q.cfg.logger.Warn("stale job requeued", "job_id", job.ID, "kind", job.Kind, "attempts", job.Attempts)
		if reg := q.lookup(job.Kind); reg != nil {
			reg.signal()
		}
	}
	q.cfg.metrics.JobsRequeued(report.Requeued)

	purged, err := q.store.Purge(ctx, now.Add(-q.cfg.retainCompleted))
	if err != nil {
		errs = append(errs, fmt.Errorf("purge jobs: %w", err))
	}
	report.Purged = purged
	q.cfg.metrics.JobsPurged(int(purged))

	return report, errors.Join(errs...)
}
