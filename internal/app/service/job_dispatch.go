package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"noteflow/internal/app/jobs"
	"noteflow/internal/domain/model"
	"noteflow/internal/domain/repository"
)

// dispatch hands a pending job to the queue. A job that could not be queued
// stays pending; the startup requeue picks it up again.
func dispatch(ctx context.Context, dispatcher jobs.Dispatcher, job *model.Job, log *logrus.Entry) error {
	if err := dispatcher.Enqueue(ctx, job.Kind, job.ID); err != nil {
		log.WithError(err).WithFields(logrus.Fields{"job_id": job.ID, "job_kind": job.Kind}).Error("Failed to enqueue job")
		return fmt.Errorf("failed to enqueue %s job: %w", job.Kind, err)
	}
	log.WithFields(logrus.Fields{"job_id": job.ID, "job_kind": job.Kind}).Info("Job enqueued")
	return nil
}

// resetAndDispatch applies a retry policy to an owned job, persists the
// reset and enqueues the new run.
func resetAndDispatch(
	ctx context.Context,
	repo repository.JobRepository,
	dispatcher jobs.Dispatcher,
	policy jobs.RetryPolicy,
	kind model.JobKind,
	id, ownerID string,
	log *logrus.Entry,
) (*model.Job, error) {
	job, err := repo.GetOwned(ctx, kind, id, ownerID)
	if err != nil {
		return nil, err
	}
	if err := policy.Reset(job); err != nil {
		return nil, err
	}
	if err := repo.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to reset %s job: %w", kind, err)
	}
	if err := dispatch(ctx, dispatcher, job, log); err != nil {
		return nil, err
	}
	return job, nil
}
