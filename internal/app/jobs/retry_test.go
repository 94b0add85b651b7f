package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"noteflow/internal/common"
	"noteflow/internal/domain/model"
)

func populatedSummary(status model.JobStatus) *model.Job {
	job := summaryJob("s1", "u1", "t1", status)
	p := job.Summary()
	p.MainSummary = "old"
	p.KeyPoints = []string{"a"}
	p.WordCount = ptr(1)
	job.ErrorMessage = "previous failure"
	job.CompletedAt = ptr(time.Now())
	job.ProcessingTime = ptr(1.5)
	return job
}

func TestRetryPolicies(t *testing.T) {
	cases := []struct {
		policy RetryPolicy
		status model.JobStatus
		reject bool
	}{
		{StrictRetry{}, model.JobStatusPending, true},
		{StrictRetry{}, model.JobStatusProcessing, true},
		{StrictRetry{}, model.JobStatusCompleted, false},
		{StrictRetry{}, model.JobStatusFailed, false},
		{LenientRetry{}, model.JobStatusPending, false},
		{LenientRetry{}, model.JobStatusProcessing, true},
		{LenientRetry{}, model.JobStatusCompleted, false},
		{LenientRetry{}, model.JobStatusFailed, false},
	}

	for _, tc := range cases {
		job := populatedSummary(tc.status)
		err := tc.policy.Reset(job)

		if tc.reject {
			if !errors.Is(err, common.ErrRejected) {
				t.Fatalf("%T on %s: err = %v, want rejected", tc.policy, tc.status, err)
			}
			if job.Status != tc.status || job.Summary().MainSummary != "old" {
				t.Fatalf("%T on %s: rejected reset mutated the job", tc.policy, tc.status)
			}
			continue
		}

		if err != nil {
			t.Fatalf("%T on %s: err = %v", tc.policy, tc.status, err)
		}
		if job.Status != model.JobStatusPending || job.ErrorMessage != "" {
			t.Fatalf("%T on %s: status = %s error = %q", tc.policy, tc.status, job.Status, job.ErrorMessage)
		}
		if job.HasContent() || job.Summary().WordCount != nil {
			t.Fatalf("%T on %s: results not cleared", tc.policy, tc.status)
		}
		if job.CompletedAt != nil || job.ProcessingTime != nil {
			t.Fatalf("%T on %s: run timing not cleared", tc.policy, tc.status)
		}
		if job.Summary().TranscriptID != "t1" {
			t.Fatalf("%T on %s: input fields lost", tc.policy, tc.status)
		}
	}
}

func TestRetryReentersAtPending(t *testing.T) {
	job := transcriptJob("t1", "u1", model.JobStatusPending)
	repo := newMemRepo(job)
	media := fakeMedia{files: map[string]bool{job.Transcript().FilePath: true}}
	fail := true
	engine := &fakeTranscriber{transcribe: func(context.Context, string) (*model.Transcription, error) {
		if fail {
			return nil, errors.New("temporary outage")
		}
		return &model.Transcription{Text: "ok"}, nil
	}}
	runner := newTranscriptionRunner(repo, engine, media)

	if out := runner.Run(context.Background(), model.JobKindTranscript, "t1"); out.Status != OutcomeFailed {
		t.Fatalf("first run = %+v", out)
	}

	stored := repo.stored("t1")
	if err := (StrictRetry{}).Reset(stored); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if err := repo.Save(context.Background(), stored); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	fail = false
	if out := runner.Run(context.Background(), model.JobKindTranscript, "t1"); out.Status != OutcomeCompleted {
		t.Fatalf("second run = %+v", out)
	}

	want := []model.JobStatus{
		model.JobStatusPending, model.JobStatusProcessing, model.JobStatusFailed,
		model.JobStatusPending, model.JobStatusProcessing, model.JobStatusCompleted,
	}
	got := repo.history["t1"]
	if len(got) != len(want) {
		t.Fatalf("history = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history = %v, want %v", got, want)
		}
	}
	if repo.stored("t1").ErrorMessage != "" {
		t.Fatal("error message survived a successful retry")
	}
}

func TestAggregatorSummarize(t *testing.T) {
	repo := newMemRepo(
		transcriptJob("a", "u1", model.JobStatusPending),
		transcriptJob("b", "u1", model.JobStatusProcessing),
		transcriptJob("c", "u1", model.JobStatusCompleted),
		transcriptJob("d", "u1", model.JobStatusFailed),
		transcriptJob("e", "u2", model.JobStatusFailed),
	)
	agg := NewAggregator(repo)

	got, err := agg.Summarize(context.Background(), model.JobKindTranscript, "u1")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	want := model.StatusCounts{Total: 4, Pending: 1, Processing: 1, Completed: 1, Failed: 1}
	if got != want {
		t.Fatalf("Summarize() = %+v, want %+v", got, want)
	}

	empty, err := agg.Summarize(context.Background(), model.JobKindTranscript, "nobody")
	if err != nil || empty != (model.StatusCounts{}) {
		t.Fatalf("Summarize(nobody) = %+v, %v", empty, err)
	}
}

func TestParseSummaryAndWordCount(t *testing.T) {
	if WordCount("") != 0 || WordCount("  one\ttwo\nthree  ") != 3 {
		t.Fatal("unexpected word counts")
	}
	doc := ParseSummary(`["not", "an", "object"]`)
	if doc.MainSummary != `["not", "an", "object"]` || len(doc.KeyPoints) != 0 {
		t.Fatalf("array response = %+v", doc)
	}
	doc = ParseSummary(`{"main_summary": "x", "key_points": [1, 2]}`)
	if doc.MainSummary != `{"main_summary": "x", "key_points": [1, 2]}` {
		t.Fatalf("mistyped object should fall back, got %+v", doc)
	}
}
