package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"noteflow/internal/common"
	"noteflow/internal/domain/model"
	"noteflow/internal/domain/repository"
)

type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeNotFound  OutcomeStatus = "not_found"
	// OutcomeSkipped means the job was not pending when claimed, so another
	// run owns it or it already finished. Nothing was written.
	OutcomeSkipped OutcomeStatus = "skipped"
	// OutcomeSuperseded means the claim was lost while the engine ran (the
	// job was reaped, and possibly retried). The result was discarded.
	OutcomeSuperseded OutcomeStatus = "superseded"
)

// Outcome is the structured result of one Run.
type Outcome struct {
	JobID          string        `json:"job_id"`
	Kind           model.JobKind `json:"kind"`
	Status         OutcomeStatus `json:"status"`
	Error          string        `json:"error,omitempty"`
	ProcessingTime float64       `json:"processing_time,omitempty"`
}

// Runner executes one job per call and always reduces the result to a
// persisted terminal state plus an Outcome. It never returns an error.
type Runner struct {
	repo       repository.JobRepository
	processors map[model.JobKind]Processor
	log        *logrus.Entry
	now        func() time.Time
}

func NewRunner(repo repository.JobRepository, log *logrus.Entry, processors ...Processor) *Runner {
	r := &Runner{
		repo:       repo,
		processors: make(map[model.JobKind]Processor, len(processors)),
		log:        log,
		now:        time.Now,
	}
	for _, p := range processors {
		r.processors[p.Kind()] = p
	}
	return r
}

func (r *Runner) Run(ctx context.Context, kind model.JobKind, id string) Outcome {
	out := Outcome{JobID: id, Kind: kind}
	log := r.log.WithFields(logrus.Fields{"job_id": id, "job_kind": kind})

	job, err := r.repo.Get(ctx, kind, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			log.Error("Job not found")
			out.Status = OutcomeNotFound
			out.Error = "job " + id + " not found"
			return out
		}
		log.WithError(err).Error("Failed to load job")
		out.Status = OutcomeFailed
		out.Error = err.Error()
		return out
	}

	claimed, err := r.repo.ClaimPending(ctx, job)
	if err != nil {
		log.WithError(err).Error("Failed to claim job")
		out.Status = OutcomeFailed
		out.Error = err.Error()
		return out
	}
	if !claimed {
		log.WithField("status", job.Status).Warn("Job is not pending, skipping duplicate dispatch")
		out.Status = OutcomeSkipped
		return out
	}
	log = log.WithField("attempt", job.Attempts)
	log.WithField("status", job.Status).Info("Job started")

	start := r.now()
	procErr := r.process(ctx, job)
	elapsed := r.now().Sub(start).Seconds()

	// Persist the terminal state even if the worker is shutting down.
	saveCtx := context.WithoutCancel(ctx)

	if procErr != nil {
		job.Status = model.JobStatusFailed
		job.ErrorMessage = procErr.Error()
		log = log.WithField("category", category(procErr)).WithError(procErr)
		if !r.finish(saveCtx, job, log, &out) {
			return out
		}
		out.Status = OutcomeFailed
		out.Error = job.ErrorMessage
		log.WithField("status", job.Status).Error("Job failed")
		return out
	}

	completedAt := r.now().UTC()
	job.Status = model.JobStatusCompleted
	job.CompletedAt = &completedAt
	job.ProcessingTime = &elapsed
	job.ErrorMessage = ""
	if !r.finish(saveCtx, job, log, &out) {
		return out
	}

	log.WithFields(logrus.Fields{"status": job.Status, "processing_time": elapsed}).Info("Job completed")
	out.Status = OutcomeCompleted
	out.ProcessingTime = elapsed
	return out
}

// finish writes the terminal state under the claim. It fills out and
// reports false when nothing could be written.
func (r *Runner) finish(ctx context.Context, job *model.Job, log *logrus.Entry, out *Outcome) bool {
	ok, err := r.repo.Finish(ctx, job)
	switch {
	case err != nil:
		log.WithError(err).Error("Failed to persist job result")
		out.Status = OutcomeFailed
		out.Error = err.Error()
		return false
	case !ok:
		log.WithField("status", job.Status).Warn("Job claim lost during the run, discarding result")
		out.Status = OutcomeSuperseded
		return false
	}
	return true
}

func (r *Runner) process(ctx context.Context, job *model.Job) error {
	p, ok := r.processors[job.Kind]
	if !ok {
		return configurationError("no processor registered for %s jobs", job.Kind)
	}
	return p.Process(ctx, job)
}

func category(err error) string {
	switch {
	case errors.Is(err, common.ErrConfiguration):
		return "configuration"
	case errors.Is(err, common.ErrPrecondition):
		return "precondition"
	case errors.Is(err, common.ErrEngine):
		return "engine"
	default:
		return "internal"
	}
}
