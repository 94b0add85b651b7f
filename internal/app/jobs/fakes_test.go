package jobs

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"noteflow/internal/common"
	"noteflow/internal/domain/model"
	"noteflow/internal/domain/repository"
)

// memRepo is an in-memory JobRepository that records every status it saves.
type memRepo struct {
	mu      sync.Mutex
	jobs    map[string]*model.Job
	history map[string][]model.JobStatus
	writes  int
}

func newMemRepo(jobs ...*model.Job) *memRepo {
	r := &memRepo{jobs: map[string]*model.Job{}, history: map[string][]model.JobStatus{}}
	for _, j := range jobs {
		r.jobs[j.ID] = clone(j)
		r.history[j.ID] = []model.JobStatus{j.Status}
	}
	return r
}

// clone deep-copies through JSON so callers never share payload pointers.
func clone(j *model.Job) *model.Job {
	c := *j
	switch p := j.Payload.(type) {
	case *model.TranscriptPayload:
		cp := &model.TranscriptPayload{}
		b, _ := json.Marshal(p)
		_ = json.Unmarshal(b, cp)
		c.Payload = cp
	case *model.SummaryPayload:
		cp := &model.SummaryPayload{}
		b, _ := json.Marshal(p)
		_ = json.Unmarshal(b, cp)
		c.Payload = cp
	}
	return &c
}

func (r *memRepo) record(j *model.Job) {
	r.writes++
	r.history[j.ID] = append(r.history[j.ID], j.Status)
}

func (r *memRepo) Create(_ context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = clone(job)
	r.record(job)
	return nil
}

func (r *memRepo) Get(_ context.Context, kind model.JobKind, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Kind != kind {
		return nil, common.ErrNotFound
	}
	return clone(j), nil
}

func (r *memRepo) GetOwned(ctx context.Context, kind model.JobKind, id, ownerID string) (*model.Job, error) {
	j, err := r.Get(ctx, kind, id)
	if err != nil || j.OwnerID != ownerID {
		return nil, common.ErrNotFound
	}
	return j, nil
}

func (r *memRepo) List(_ context.Context, f repository.JobFilter) ([]*model.Job, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Job
	for _, j := range r.jobs {
		if (f.Kind == "" || j.Kind == f.Kind) && (f.OwnerID == "" || j.OwnerID == f.OwnerID) {
			out = append(out, clone(j))
		}
	}
	return out, len(out), nil
}

func (r *memRepo) Save(_ context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return common.ErrNotFound
	}
	job.UpdatedAt = time.Now()
	r.jobs[job.ID] = clone(job)
	r.record(job)
	return nil
}

func (r *memRepo) ClaimPending(_ context.Context, job *model.Job) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[job.ID]
	if !ok || j.Kind != job.Kind || j.Status != model.JobStatusPending || j.Attempts != job.Attempts {
		return false, nil
	}
	j.Status = model.JobStatusProcessing
	j.Attempts++
	j.UpdatedAt = time.Now()
	job.Status, job.Attempts, job.UpdatedAt = j.Status, j.Attempts, j.UpdatedAt
	r.record(j)
	return true, nil
}

func (r *memRepo) Finish(_ context.Context, job *model.Job) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[job.ID]
	if !ok || j.Status != model.JobStatusProcessing || j.Attempts != job.Attempts {
		return false, nil
	}
	job.UpdatedAt = time.Now()
	r.jobs[job.ID] = clone(job)
	r.record(job)
	return true, nil
}

func (r *memRepo) CountByStatus(_ context.Context, kind model.JobKind, ownerID string) (map[model.JobStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[model.JobStatus]int{}
	for _, j := range r.jobs {
		if j.Kind == kind && j.OwnerID == ownerID {
			counts[j.Status]++
		}
	}
	return counts, nil
}

func (r *memRepo) FindBySource(_ context.Context, sourceID string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.SourceID != nil && *j.SourceID == sourceID {
			return clone(j), nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *memRepo) Delete(_ context.Context, kind model.JobKind, id, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Kind != kind || j.OwnerID != ownerID {
		return common.ErrNotFound
	}
	delete(r.jobs, id)
	return nil
}

func (r *memRepo) FailStale(_ context.Context, cutoff time.Time, message string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, j := range r.jobs {
		if j.Status == model.JobStatusProcessing && j.UpdatedAt.Before(cutoff) {
			j.Status = model.JobStatusFailed
			j.ErrorMessage = message
			r.record(j)
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memRepo) stored(id string) *model.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.jobs[id])
}

type fakeTranscriber struct {
	transcribe func(ctx context.Context, path string) (*model.Transcription, error)
	ready      error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, path string) (*model.Transcription, error) {
	return f.transcribe(ctx, path)
}

func (f *fakeTranscriber) Ready() error { return f.ready }

type fakeGenerator struct {
	generate func(ctx context.Context, prompt string) (string, error)
	model    string
	ready    error
}

func (f *fakeGenerator) Ready() error { return f.ready }

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return f.generate(ctx, prompt)
}

func (f *fakeGenerator) Model() string { return f.model }

type fakeMedia struct {
	files map[string]bool
}

func (m fakeMedia) Path(key string) string { return "/media/" + key }

func (m fakeMedia) Exists(key string) bool { return m.files[key] }

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func ptr[T any](v T) *T { return &v }

func transcriptJob(id, owner string, status model.JobStatus) *model.Job {
	return &model.Job{
		ID: id, OwnerID: owner, Kind: model.JobKindTranscript, Status: status,
		Payload: &model.TranscriptPayload{Title: "lecture", FileName: "lecture.mp3", FilePath: "transcriber/" + owner + "/lecture.mp3"},
	}
}

func summaryJob(id, owner, transcriptID string, status model.JobStatus) *model.Job {
	return &model.Job{
		ID: id, OwnerID: owner, Kind: model.JobKindSummary, Status: status,
		SourceID: ptr(transcriptID), Payload: model.NewSummaryPayload(transcriptID),
	}
}
