package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"noteflow/internal/app/jobs"
	"noteflow/internal/common"
	"noteflow/internal/domain/model"
	"noteflow/internal/domain/repository"
	"noteflow/internal/platform/media"
)

// MediaStorage is the upload store used by transcript create and delete.
type MediaStorage interface {
	Put(key string, r io.Reader, maxBytes int64) (int64, string, error)
	Remove(key string) error
}

// UploadPolicy bounds what a transcript upload may be.
type UploadPolicy struct {
	MaxBytes          int64
	AllowedExtensions []string // With leading dot, lower case
}

type TranscriptService struct {
	repo       repository.JobRepository
	store      MediaStorage
	dispatcher jobs.Dispatcher
	aggregator *jobs.Aggregator
	policy     UploadPolicy
	retry      jobs.RetryPolicy
	log        *logrus.Entry
}

func NewTranscriptService(repo repository.JobRepository, store MediaStorage, dispatcher jobs.Dispatcher, policy UploadPolicy, log *logrus.Entry) *TranscriptService {
	return &TranscriptService{
		repo:       repo,
		store:      store,
		dispatcher: dispatcher,
		aggregator: jobs.NewAggregator(repo),
		policy:     policy,
		retry:      jobs.StrictRetry{},
		log:        log,
	}
}

type CreateTranscriptRequest struct {
	Title    string
	FileName string
	Size     int64 // Declared by the client; the store enforces the real limit
	File     io.Reader
}

type TranscriptResponse struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	FileName       string          `json:"file_name"`
	FileSize       int64           `json:"file_size"`
	FileType       string          `json:"file_type"`
	FileExtension  string          `json:"file_extension"`
	IsAudio        bool            `json:"is_audio"`
	IsVideo        bool            `json:"is_video"`
	RawText        string          `json:"raw_text"`
	Language       string          `json:"language"`
	Confidence     *float64        `json:"confidence"`
	Duration       *float64        `json:"duration"`
	Status         model.JobStatus `json:"status"`
	ErrorMessage   string          `json:"error_message"`
	ProcessingTime *float64        `json:"processing_time"`
	HasContent     bool            `json:"has_content"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at"`
}

func NewTranscriptResponse(job *model.Job) TranscriptResponse {
	p := job.Transcript()
	return TranscriptResponse{
		ID:             job.ID,
		Title:          p.Title,
		FileName:       p.FileName,
		FileSize:       p.FileSize,
		FileType:       p.FileType,
		FileExtension:  p.FileExtension(),
		IsAudio:        p.IsAudio(),
		IsVideo:        p.IsVideo(),
		RawText:        p.RawText,
		Language:       p.Language,
		Confidence:     p.Confidence,
		Duration:       p.Duration,
		Status:         job.Status,
		ErrorMessage:   job.ErrorMessage,
		ProcessingTime: job.ProcessingTime,
		HasContent:     job.HasContent(),
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
		CompletedAt:    job.CompletedAt,
	}
}

// Create stores the upload, inserts a pending transcript job and dispatches it.
func (s *TranscriptService) Create(ctx context.Context, ownerID string, req CreateTranscriptRequest) (*TranscriptResponse, error) {
	if req.File == nil || req.FileName == "" {
		return nil, common.NewError(common.ErrValidation, "No file provided")
	}
	ext := strings.ToLower(filepath.Ext(req.FileName))
	if !lo.Contains(s.policy.AllowedExtensions, ext) {
		return nil, common.NewError(common.ErrValidation,
			"Unsupported file format. Allowed formats: %s", strings.Join(s.policy.AllowedExtensions, ", "))
	}
	if s.policy.MaxBytes > 0 && req.Size > s.policy.MaxBytes {
		return nil, s.tooLarge()
	}

	key := media.TranscriptKey(ownerID, req.FileName)
	written, mime, err := s.store.Put(key, req.File, s.policy.MaxBytes)
	if err != nil {
		if errors.Is(err, media.ErrTooLarge) {
			return nil, s.tooLarge()
		}
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = strings.TrimSuffix(req.FileName, filepath.Ext(req.FileName))
	}
	job := &model.Job{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Kind:    model.JobKindTranscript,
		Status:  model.JobStatusPending,
		Payload: &model.TranscriptPayload{
			Title:    title,
			FileName: req.FileName,
			FilePath: key,
			FileSize: written,
			FileType: mime,
		},
	}
	if err := s.repo.Create(ctx, job); err != nil {
		if rmErr := s.store.Remove(key); rmErr != nil {
			s.log.WithError(rmErr).WithField("file_path", key).Warn("Failed to remove orphaned upload")
		}
		return nil, fmt.Errorf("failed to create transcript: %w", err)
	}

	if err := dispatch(ctx, s.dispatcher, job, s.log); err != nil {
		return nil, err
	}
	resp := NewTranscriptResponse(job)
	return &resp, nil
}

func (s *TranscriptService) tooLarge() error {
	return common.NewError(common.ErrValidation,
		"File size exceeds maximum allowed size of %s", humanize.Bytes(uint64(s.policy.MaxBytes)))
}

func (s *TranscriptService) Get(ctx context.Context, ownerID, id string) (*TranscriptResponse, error) {
	job, err := s.repo.GetOwned(ctx, model.JobKindTranscript, id, ownerID)
	if err != nil {
		return nil, err
	}
	resp := NewTranscriptResponse(job)
	return &resp, nil
}

func (s *TranscriptService) List(ctx context.Context, ownerID string, status model.JobStatus, page Page) (*ListResponse[TranscriptResponse], error) {
	if status != "" && !status.Valid() {
		return nil, common.NewError(common.ErrValidation, "Unknown status %q", status)
	}
	page = page.Normalize()
	list, total, err := s.repo.List(ctx, repository.JobFilter{
		Kind:    model.JobKindTranscript,
		OwnerID: ownerID,
		Status:  status,
		Limit:   page.PageSize,
		Offset:  page.Offset(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	return &ListResponse[TranscriptResponse]{
		Count:    total,
		Page:     page.Page,
		PageSize: page.PageSize,
		Results:  lo.Map(list, func(j *model.Job, _ int) TranscriptResponse { return NewTranscriptResponse(j) }),
	}, nil
}

// Delete removes the transcript and its summary. The stored file is removed
// best-effort after the row is gone.
func (s *TranscriptService) Delete(ctx context.Context, ownerID, id string) error {
	job, err := s.repo.GetOwned(ctx, model.JobKindTranscript, id, ownerID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, model.JobKindTranscript, id, ownerID); err != nil {
		return err
	}
	if key := job.Transcript().FilePath; key != "" {
		if err := s.store.Remove(key); err != nil {
			s.log.WithError(err).WithField("file_path", key).Warn("Failed to remove transcript media")
		}
	}
	return nil
}

// Retry restarts a terminal transcript job.
func (s *TranscriptService) Retry(ctx context.Context, ownerID, id string) (*TranscriptResponse, error) {
	job, err := resetAndDispatch(ctx, s.repo, s.dispatcher, s.retry, model.JobKindTranscript, id, ownerID, s.log)
	if err != nil {
		return nil, err
	}
	resp := NewTranscriptResponse(job)
	return &resp, nil
}

func (s *TranscriptService) StatusSummary(ctx context.Context, ownerID string) (model.StatusCounts, error) {
	return s.aggregator.Summarize(ctx, model.JobKindTranscript, ownerID)
}
