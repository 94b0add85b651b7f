package model

import "time"

type JobKind string
type JobStatus string

const (
	JobKindTranscript JobKind = "transcript"
	JobKindSummary    JobKind = "summary"

	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing" // Claimed by a runner, external call in flight
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobStatuses lists every status in lifecycle order.
var JobStatuses = []JobStatus{JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed}

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

func (k JobKind) Valid() bool {
	return k == JobKindTranscript || k == JobKindSummary
}

// Payload is the kind-specific part of a Job. Implementations are
// *TranscriptPayload and *SummaryPayload.
type Payload interface {
	Kind() JobKind
	// HasContent reports whether any result field is non-empty.
	HasContent() bool
	// ClearResult resets every result field to its empty default, keeping inputs.
	ClearResult()
}

// Job is one unit of asynchronous work. The envelope (status, error,
// timestamps) is shared by every kind; Payload carries the rest.
type Job struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"-"`
	Kind           JobKind    `json:"kind"`
	Status         JobStatus  `json:"status"`
	SourceID       *string    `json:"-"` // Upstream job this one consumes (summary -> transcript)
	ErrorMessage   string     `json:"error_message"`
	ProcessingTime *float64   `json:"processing_time"` // Seconds
	Attempts       int        `json:"attempts"`        // Times a runner has claimed the job
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	Payload        Payload    `json:"-"`
}

func (j *Job) HasContent() bool {
	if j == nil || j.Payload == nil {
		return false
	}
	return j.Payload.HasContent()
}

// Transcript returns the transcript payload, or nil for other kinds.
func (j *Job) Transcript() *TranscriptPayload {
	p, _ := j.Payload.(*TranscriptPayload)
	return p
}

// Summary returns the summary payload, or nil for other kinds.
func (j *Job) Summary() *SummaryPayload {
	p, _ := j.Payload.(*SummaryPayload)
	return p
}

// StatusCounts is the per-owner status breakdown returned to clients.
type StatusCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}
