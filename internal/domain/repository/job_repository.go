package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"noteflow/internal/common"
	"noteflow/internal/domain/model"
	"noteflow/internal/platform/database"
)

// JobFilter narrows a List call. Zero values mean "any".
type JobFilter struct {
	Kind    model.JobKind
	OwnerID string
	Status  model.JobStatus
	Limit   int
	Offset  int
}

type JobRepository interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, kind model.JobKind, id string) (*model.Job, error)
	// GetOwned is Get restricted to one owner; foreign jobs read as ErrNotFound.
	GetOwned(ctx context.Context, kind model.JobKind, id, ownerID string) (*model.Job, error)
	List(ctx context.Context, filter JobFilter) ([]*model.Job, int, error)
	// Save persists every mutable field and bumps UpdatedAt.
	Save(ctx context.Context, job *model.Job) error
	// ClaimPending moves job from pending to processing and bumps Attempts.
	// It reports false when the row is no longer the pending job that was
	// read, which means another run owns it.
	ClaimPending(ctx context.Context, job *model.Job) (bool, error)
	// Finish is Save guarded by the claim: it writes only while the row is
	// still processing under job.Attempts. False means the run was reaped or
	// superseded and nothing was written.
	Finish(ctx context.Context, job *model.Job) (bool, error)
	CountByStatus(ctx context.Context, kind model.JobKind, ownerID string) (map[model.JobStatus]int, error)
	FindBySource(ctx context.Context, sourceID string) (*model.Job, error)
	Delete(ctx context.Context, kind model.JobKind, id, ownerID string) error
	// FailStale fails every job still processing since before cutoff and
	// returns the ids it changed.
	FailStale(ctx context.Context, cutoff time.Time, message string) ([]string, error)
}

type sqlJobRepository struct {
	db *database.DB
}

func NewSQLJobRepository(db *database.DB) JobRepository {
	return &sqlJobRepository{db: db}
}

const jobColumns = `id, kind, owner_id, status, source_id, payload, error_message, processing_time, attempts, created_at, updated_at, completed_at`

func (r *sqlJobRepository) Create(ctx context.Context, job *model.Job) error {
	if job.Payload == nil || job.Payload.Kind() != job.Kind {
		return fmt.Errorf("job %s has no %s payload: %w", job.ID, job.Kind, common.ErrValidation)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt

	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("sqlJobRepository.Create: encode payload: %w", err)
	}

	query := `INSERT INTO jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query),
		job.ID, string(job.Kind), job.OwnerID, string(job.Status), job.SourceID, string(payload),
		job.ErrorMessage, job.ProcessingTime, job.Attempts, toMillis(job.CreatedAt), toMillis(job.UpdatedAt), toMillisPtr(job.CompletedAt),
	)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return fmt.Errorf("%s already exists for this source: %w", job.Kind, common.ErrConflict)
		}
		return fmt.Errorf("sqlJobRepository.Create: %w", err)
	}
	return nil
}

func (r *sqlJobRepository) Get(ctx context.Context, kind model.JobKind, id string) (*model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ? AND kind = ?`
	job, err := scanJob(r.db.QueryRowContext(ctx, r.db.Rebind(query), id, string(kind)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("sqlJobRepository.Get: %w", err)
	}
	return job, nil
}

func (r *sqlJobRepository) GetOwned(ctx context.Context, kind model.JobKind, id, ownerID string) (*model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ? AND kind = ? AND owner_id = ?`
	job, err := scanJob(r.db.QueryRowContext(ctx, r.db.Rebind(query), id, string(kind), ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("sqlJobRepository.GetOwned: %w", err)
	}
	return job, nil
}

func (r *sqlJobRepository) List(ctx context.Context, filter JobFilter) ([]*model.Job, int, error) {
	where := ` WHERE 1=1`
	var args []any
	if filter.Kind != "" {
		where += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.OwnerID != "" {
		where += ` AND owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	if filter.Status != "" {
		where += ` AND status = ?`
		args = append(args, string(filter.Status))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT COUNT(*) FROM jobs`+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlJobRepository.List count: %w", err)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs` + where + ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlJobRepository.List: %w", err)
	}
	defer rows.Close()

	jobs := []*model.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlJobRepository.List scan: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlJobRepository.List rows: %w", err)
	}
	return jobs, total, nil
}

func (r *sqlJobRepository) Save(ctx context.Context, job *model.Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("sqlJobRepository.Save: encode payload: %w", err)
	}
	job.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	query := `UPDATE jobs SET status = ?, payload = ?, error_message = ?, processing_time = ?, updated_at = ?, completed_at = ?
	          WHERE id = ? AND kind = ?`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		string(job.Status), string(payload), job.ErrorMessage, job.ProcessingTime,
		toMillis(job.UpdatedAt), toMillisPtr(job.CompletedAt), job.ID, string(job.Kind),
	)
	if err != nil {
		return fmt.Errorf("sqlJobRepository.Save: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *sqlJobRepository) ClaimPending(ctx context.Context, job *model.Job) (bool, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	query := `UPDATE jobs SET status = ?, attempts = attempts + 1, updated_at = ?
	          WHERE id = ? AND kind = ? AND status = ? AND attempts = ?`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		string(model.JobStatusProcessing), toMillis(now), job.ID, string(job.Kind), string(model.JobStatusPending), job.Attempts,
	)
	if err != nil {
		return false, fmt.Errorf("sqlJobRepository.ClaimPending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlJobRepository.ClaimPending rows: %w", err)
	}
	if n != 1 {
		return false, nil
	}
	job.Status = model.JobStatusProcessing
	job.Attempts++
	job.UpdatedAt = now
	return true, nil
}

func (r *sqlJobRepository) Finish(ctx context.Context, job *model.Job) (bool, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return false, fmt.Errorf("sqlJobRepository.Finish: encode payload: %w", err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	query := `UPDATE jobs SET status = ?, payload = ?, error_message = ?, processing_time = ?, updated_at = ?, completed_at = ?
	          WHERE id = ? AND kind = ? AND status = ? AND attempts = ?`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		string(job.Status), string(payload), job.ErrorMessage, job.ProcessingTime,
		toMillis(now), toMillisPtr(job.CompletedAt), job.ID, string(job.Kind),
		string(model.JobStatusProcessing), job.Attempts,
	)
	if err != nil {
		return false, fmt.Errorf("sqlJobRepository.Finish: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlJobRepository.Finish rows: %w", err)
	}
	if n != 1 {
		return false, nil
	}
	job.UpdatedAt = now
	return true, nil
}

func (r *sqlJobRepository) CountByStatus(ctx context.Context, kind model.JobKind, ownerID string) (map[model.JobStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM jobs WHERE kind = ? AND owner_id = ? GROUP BY status`
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), string(kind), ownerID)
	if err != nil {
		return nil, fmt.Errorf("sqlJobRepository.CountByStatus: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.JobStatus]int, len(model.JobStatuses))
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("sqlJobRepository.CountByStatus scan: %w", err)
		}
		counts[model.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

func (r *sqlJobRepository) FindBySource(ctx context.Context, sourceID string) (*model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE source_id = ?`
	job, err := scanJob(r.db.QueryRowContext(ctx, r.db.Rebind(query), sourceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("sqlJobRepository.FindBySource: %w", err)
	}
	return job, nil
}

func (r *sqlJobRepository) Delete(ctx context.Context, kind model.JobKind, id, ownerID string) error {
	query := `DELETE FROM jobs WHERE id = ? AND kind = ? AND owner_id = ?`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), id, string(kind), ownerID)
	if err != nil {
		return fmt.Errorf("sqlJobRepository.Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *sqlJobRepository) FailStale(ctx context.Context, cutoff time.Time, message string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`SELECT id FROM jobs WHERE status = ? AND updated_at < ?`),
		string(model.JobStatusProcessing), toMillis(cutoff))
	if err != nil {
		return nil, fmt.Errorf("sqlJobRepository.FailStale select: %w", err)
	}
	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlJobRepository.FailStale scan: %w", err)
		}
		candidates = append(candidates, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlJobRepository.FailStale rows: %w", err)
	}

	// Each update re-checks the predicate so a run finishing in between wins.
	update := r.db.Rebind(`UPDATE jobs SET status = ?, error_message = ?, updated_at = ?
	                       WHERE id = ? AND status = ? AND updated_at < ?`)
	var failed []string
	for _, id := range candidates {
		res, err := r.db.ExecContext(ctx, update,
			string(model.JobStatusFailed), message, toMillis(time.Now()), id, string(model.JobStatusProcessing), toMillis(cutoff))
		if err != nil {
			return failed, fmt.Errorf("sqlJobRepository.FailStale update %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			failed = append(failed, id)
		}
	}
	return failed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		job                  model.Job
		kind, status         string
		sourceID             sql.NullString
		payload              string
		processingTime       sql.NullFloat64
		createdAt, updatedAt int64
		completedAt          sql.NullInt64
	)
	err := row.Scan(&job.ID, &kind, &job.OwnerID, &status, &sourceID, &payload, &job.ErrorMessage,
		&processingTime, &job.Attempts, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	job.Kind = model.JobKind(kind)
	job.Status = model.JobStatus(status)
	if sourceID.Valid {
		job.SourceID = &sourceID.String
	}
	if processingTime.Valid {
		job.ProcessingTime = &processingTime.Float64
	}
	job.CreatedAt = fromMillis(createdAt)
	job.UpdatedAt = fromMillis(updatedAt)
	if completedAt.Valid {
		t := fromMillis(completedAt.Int64)
		job.CompletedAt = &t
	}

	switch job.Kind {
	case model.JobKindTranscript:
		p := &model.TranscriptPayload{}
		if err := json.Unmarshal([]byte(payload), p); err != nil {
			return nil, fmt.Errorf("decode transcript payload %s: %w", job.ID, err)
		}
		job.Payload = p
	case model.JobKindSummary:
		p := model.NewSummaryPayload("")
		if err := json.Unmarshal([]byte(payload), p); err != nil {
			return nil, fmt.Errorf("decode summary payload %s: %w", job.ID, err)
		}
		job.Payload = p
	default:
		return nil, fmt.Errorf("job %s has unknown kind %q", job.ID, kind)
	}
	return &job, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func toMillisPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
