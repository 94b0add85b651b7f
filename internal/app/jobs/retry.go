package jobs

import "noteflow/internal/domain/model"

// RetryPolicy decides whether a job may start a new run and, if so, resets
// it to pending. The caller persists the job and enqueues it.
type RetryPolicy interface {
	Reset(job *model.Job) error
}

// StrictRetry only restarts terminal jobs. Transcript retry uses it.
type StrictRetry struct{}

func (StrictRetry) Reset(job *model.Job) error {
	if !job.Status.IsTerminal() {
		return &RejectedError{Reason: "Can only retry failed or completed transcriptions"}
	}
	resetForRetry(job)
	return nil
}

// LenientRetry restarts anything not currently in flight. Summary
// regenerate uses it.
type LenientRetry struct{}

func (LenientRetry) Reset(job *model.Job) error {
	if job.Status == model.JobStatusProcessing {
		return &RejectedError{Reason: "Summary is currently being processed"}
	}
	resetForRetry(job)
	return nil
}

func resetForRetry(job *model.Job) {
	job.Status = model.JobStatusPending
	job.ErrorMessage = ""
	job.CompletedAt = nil
	job.ProcessingTime = nil
	if job.Payload != nil {
		job.Payload.ClearResult()
	}
}
