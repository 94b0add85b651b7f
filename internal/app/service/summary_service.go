package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"noteflow/internal/app/jobs"
	"noteflow/internal/common"
	"noteflow/internal/domain/model"
	"noteflow/internal/domain/repository"
)

type SummaryService struct {
	repo       repository.JobRepository
	dispatcher jobs.Dispatcher
	aggregator *jobs.Aggregator
	retry      jobs.RetryPolicy
	log        *logrus.Entry
}

func NewSummaryService(repo repository.JobRepository, dispatcher jobs.Dispatcher, log *logrus.Entry) *SummaryService {
	return &SummaryService{
		repo:       repo,
		dispatcher: dispatcher,
		aggregator: jobs.NewAggregator(repo),
		retry:      jobs.LenientRetry{},
		log:        log,
	}
}

type CreateSummaryRequest struct {
	TranscriptID string `json:"transcript_id" validate:"required"`
}

type SummaryResponse struct {
	ID                 string          `json:"id"`
	TranscriptID       string          `json:"transcript_id"`
	TranscriptTitle    string          `json:"transcript_title"`
	TranscriptDuration *float64        `json:"transcript_duration"`
	TranscriptLanguage string          `json:"transcript_language"`
	MainSummary        string          `json:"main_summary"`
	KeyPoints          []string        `json:"key_points"`
	Questions          []string        `json:"questions"`
	Highlights         []string        `json:"highlights"`
	Topics             []string        `json:"topics"`
	ActionItems        []string        `json:"action_items"`
	WordCount          *int            `json:"word_count"`
	ModelUsed          string          `json:"model_used"`
	Status             model.JobStatus `json:"status"`
	ErrorMessage       string          `json:"error_message"`
	ProcessingTime     *float64        `json:"processing_time"`
	HasContent         bool            `json:"has_content"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	CompletedAt        *time.Time      `json:"completed_at"`
}

// NewSummaryResponse renders a summary job; transcript may be nil when the
// source row is unavailable.
func NewSummaryResponse(job, transcript *model.Job) SummaryResponse {
	p := job.Summary()
	resp := SummaryResponse{
		ID:             job.ID,
		TranscriptID:   p.TranscriptID,
		MainSummary:    p.MainSummary,
		KeyPoints:      orEmpty(p.KeyPoints),
		Questions:      orEmpty(p.Questions),
		Highlights:     orEmpty(p.Highlights),
		Topics:         orEmpty(p.Topics),
		ActionItems:    orEmpty(p.ActionItems),
		WordCount:      p.WordCount,
		ModelUsed:      p.ModelUsed,
		Status:         job.Status,
		ErrorMessage:   job.ErrorMessage,
		ProcessingTime: job.ProcessingTime,
		HasContent:     job.HasContent(),
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
		CompletedAt:    job.CompletedAt,
	}
	if transcript != nil {
		if t := transcript.Transcript(); t != nil {
			resp.TranscriptTitle = t.Title
			resp.TranscriptDuration = t.Duration
			resp.TranscriptLanguage = t.Language
		}
	}
	return resp
}

func orEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

// Create checks the source transcript, inserts a pending summary job and
// dispatches it.
func (s *SummaryService) Create(ctx context.Context, ownerID string, req CreateSummaryRequest) (*SummaryResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	transcript, err := s.repo.GetOwned(ctx, model.JobKindTranscript, req.TranscriptID, ownerID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NewError(common.ErrValidation, "Transcript not found or doesn't belong to you")
		}
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	if transcript.Status != model.JobStatusCompleted {
		return nil, common.NewError(common.ErrValidation, "Transcript must be completed before summarization")
	}
	if strings.TrimSpace(transcript.Transcript().RawText) == "" {
		return nil, common.NewError(common.ErrValidation, "Transcript has no text to summarize")
	}
	if _, err := s.repo.FindBySource(ctx, transcript.ID); err == nil {
		return nil, common.NewError(common.ErrConflict, "Summary already exists for this transcript")
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing summary: %w", err)
	}

	job := &model.Job{
		ID:       uuid.NewString(),
		OwnerID:  ownerID,
		Kind:     model.JobKindSummary,
		Status:   model.JobStatusPending,
		SourceID: &transcript.ID,
		Payload:  model.NewSummaryPayload(transcript.ID),
	}
	if err := s.repo.Create(ctx, job); err != nil {
		if errors.Is(err, common.ErrConflict) {
			// Lost a race with a concurrent create
			return nil, common.NewError(common.ErrConflict, "Summary already exists for this transcript")
		}
		return nil, fmt.Errorf("failed to create summary: %w", err)
	}

	if err := dispatch(ctx, s.dispatcher, job, s.log); err != nil {
		return nil, err
	}
	resp := NewSummaryResponse(job, transcript)
	return &resp, nil
}

func (s *SummaryService) Get(ctx context.Context, ownerID, id string) (*SummaryResponse, error) {
	job, err := s.repo.GetOwned(ctx, model.JobKindSummary, id, ownerID)
	if err != nil {
		return nil, err
	}
	resp := NewSummaryResponse(job, s.source(ctx, job))
	return &resp, nil
}

func (s *SummaryService) List(ctx context.Context, ownerID string, status model.JobStatus, page Page) (*ListResponse[SummaryResponse], error) {
	if status != "" && !status.Valid() {
		return nil, common.NewError(common.ErrValidation, "Unknown status %q", status)
	}
	page = page.Normalize()
	list, total, err := s.repo.List(ctx, repository.JobFilter{
		Kind:    model.JobKindSummary,
		OwnerID: ownerID,
		Status:  status,
		Limit:   page.PageSize,
		Offset:  page.Offset(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}

	results := make([]SummaryResponse, 0, len(list))
	for _, job := range list {
		results = append(results, NewSummaryResponse(job, s.source(ctx, job)))
	}
	return &ListResponse[SummaryResponse]{Count: total, Page: page.Page, PageSize: page.PageSize, Results: results}, nil
}

// source loads the transcript a summary was made from, or nil.
func (s *SummaryService) source(ctx context.Context, job *model.Job) *model.Job {
	id := job.Summary().TranscriptID
	if id == "" {
		return nil
	}
	transcript, err := s.repo.GetOwned(ctx, model.JobKindTranscript, id, job.OwnerID)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.log.WithError(err).WithField("transcript_id", id).Warn("Failed to load summary source")
		}
		return nil
	}
	return transcript
}

func (s *SummaryService) Delete(ctx context.Context, ownerID, id string) error {
	return s.repo.Delete(ctx, model.JobKindSummary, id, ownerID)
}

// Regenerate restarts a summary job that is not currently in flight.
func (s *SummaryService) Regenerate(ctx context.Context, ownerID, id string) (*SummaryResponse, error) {
	job, err := resetAndDispatch(ctx, s.repo, s.dispatcher, s.retry, model.JobKindSummary, id, ownerID, s.log)
	if err != nil {
		return nil, err
	}
	resp := NewSummaryResponse(job, s.source(ctx, job))
	return &resp, nil
}

func (s *SummaryService) StatusSummary(ctx context.Context, ownerID string) (model.StatusCounts, error) {
	return s.aggregator.Summarize(ctx, model.JobKindSummary, ownerID)
}
