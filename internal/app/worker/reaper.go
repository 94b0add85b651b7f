package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"noteflow/internal/app/jobs"
	"noteflow/internal/domain/model"
	"noteflow/internal/domain/repository"
)

const AbandonedMessage = "job abandoned: worker did not finish within the processing timeout"

// Reaper fails jobs that have been processing longer than the timeout, so a
// crashed run can be retried by its owner.
type Reaper struct {
	repo     repository.JobRepository
	timeout  time.Duration
	interval time.Duration
	log      *logrus.Entry
	now      func() time.Time
}

func NewReaper(repo repository.JobRepository, timeout time.Duration, log *logrus.Entry) *Reaper {
	interval := timeout / 4
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	return &Reaper{repo: repo, timeout: timeout, interval: interval, log: log, now: time.Now}
}

// Run sweeps on an interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	r.log.WithFields(logrus.Fields{"timeout": r.timeout, "interval": r.interval}).Info("Stale job reaper started")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep fails every stale job once and returns how many it changed.
func (r *Reaper) Sweep(ctx context.Context) int {
	ids, err := r.repo.FailStale(ctx, r.now().Add(-r.timeout), AbandonedMessage)
	if err != nil {
		r.log.WithError(err).Error("Stale job sweep failed")
	}
	for _, id := range ids {
		r.log.WithField("job_id", id).Warn("Marked stale job as failed")
	}
	return len(ids)
}

// RequeuePending dispatches every job still pending, such as ones an
// in-memory queue lost on restart. A job already queued elsewhere loses the
// claim on its second delivery and is skipped.
func RequeuePending(ctx context.Context, repo repository.JobRepository, dispatcher jobs.Dispatcher, log *logrus.Entry) int {
	pending, _, err := repo.List(ctx, repository.JobFilter{Status: model.JobStatusPending})
	if err != nil {
		log.WithError(err).Error("Failed to list pending jobs")
		return 0
	}
	n := 0
	for _, job := range pending {
		if err := dispatcher.Enqueue(ctx, job.Kind, job.ID); err != nil {
			log.WithError(err).WithField("job_id", job.ID).Warn("Failed to requeue pending job")
			continue
		}
		n++
	}
	if n > 0 {
		log.WithField("count", n).Info("Requeued pending jobs")
	}
	return n
}
