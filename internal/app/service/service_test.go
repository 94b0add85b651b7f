package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"noteflow/internal/common"
	"noteflow/internal/common/security"
	"noteflow/internal/domain/model"
	"noteflow/internal/domain/repository"
	"noteflow/internal/platform/config"
	"noteflow/internal/platform/database"
	"noteflow/internal/platform/media"
)

type recordingDispatcher struct {
	calls []string
	err   error
}

func (d *recordingDispatcher) Enqueue(_ context.Context, kind model.JobKind, id string) error {
	if d.err != nil {
		return d.err
	}
	d.calls = append(d.calls, string(kind)+":"+id)
	return nil
}

type fixture struct {
	db          *database.DB
	jobs        repository.JobRepository
	store       media.LocalFS
	dispatcher  *recordingDispatcher
	auth        *AuthService
	transcripts *TranscriptService
	summaries   *SummaryService
	notes       *NoteService
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	security.InitJWT([]byte("test-secret"), time.Hour)

	db, err := database.Open(config.DriverSQLite, database.SQLiteDSN(filepath.Join(t.TempDir(), "svc.db")))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(context.Background(), db); err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		db:         db,
		jobs:       repository.NewSQLJobRepository(db),
		store:      media.LocalFS{Root: t.TempDir()},
		dispatcher: &recordingDispatcher{},
	}
	f.auth = NewAuthService(repository.NewSQLUserRepository(db))
	f.transcripts = NewTranscriptService(f.jobs, f.store, f.dispatcher, UploadPolicy{
		MaxBytes:          1024,
		AllowedExtensions: []string{".mp3", ".wav", ".mp4"},
	}, quietLog())
	f.summaries = NewSummaryService(f.jobs, f.dispatcher, quietLog())
	f.notes = NewNoteService(repository.NewSQLNoteRepository(db), repository.NewSQLCategoryRepository(db))
	return f
}

func (f *fixture) register(t *testing.T, username string) string {
	t.Helper()
	resp, err := f.auth.Register(context.Background(), RegisterRequest{Username: username, Password: "testpass123"})
	if err != nil {
		t.Fatalf("Register(%s) error = %v", username, err)
	}
	return resp.User.ID
}

func (f *fixture) upload(t *testing.T, owner string) *TranscriptResponse {
	t.Helper()
	resp, err := f.transcripts.Create(context.Background(), owner, CreateTranscriptRequest{
		FileName: "lecture.mp3",
		Size:     5,
		File:     strings.NewReader("audio"),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return resp
}

// complete marks a transcript as finished with the given text.
func (f *fixture) complete(t *testing.T, id, text string) {
	t.Helper()
	ctx := context.Background()
	job, err := f.jobs.Get(ctx, model.JobKindTranscript, id)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	job.Status = model.JobStatusCompleted
	job.CompletedAt = &now
	job.Transcript().RawText = text
	job.Transcript().Language = "en"
	if err := f.jobs.Save(ctx, job); err != nil {
		t.Fatal(err)
	}
}

func TestAuthRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.auth.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "testpass123"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if resp.Token == "" || resp.User.HashedPassword != "" {
		t.Fatalf("register response = %+v", resp)
	}

	if _, err := f.auth.Register(ctx, RegisterRequest{Username: "alice", Password: "testpass123"}); !errors.Is(err, common.ErrConflict) {
		t.Fatalf("duplicate Register() error = %v, want ErrConflict", err)
	}
	if _, err := f.auth.Register(ctx, RegisterRequest{Username: "bob", Password: "short"}); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("short password error = %v, want ErrValidation", err)
	}

	if _, err := f.auth.Login(ctx, LoginRequest{Username: "alice", Password: "testpass123"}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if _, err := f.auth.Login(ctx, LoginRequest{Username: "alice@example.com", Password: "testpass123"}); err != nil {
		t.Fatalf("Login() by email error = %v", err)
	}
	if _, err := f.auth.Login(ctx, LoginRequest{Username: "alice", Password: "wrong-pass"}); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("bad password error = %v, want ErrUnauthorized", err)
	}
	if _, err := f.auth.Login(ctx, LoginRequest{Username: "nobody", Password: "testpass123"}); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("unknown user error = %v, want ErrUnauthorized", err)
	}
}

func TestTranscriptCreate(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "alice")

	resp := f.upload(t, owner)
	if resp.Status != model.JobStatusPending || resp.HasContent {
		t.Fatalf("new transcript = %s has_content=%v", resp.Status, resp.HasContent)
	}
	if resp.Title != "lecture" || !resp.IsAudio || resp.FileExtension != ".mp3" || resp.FileSize != 5 {
		t.Fatalf("payload = %+v", resp)
	}
	if len(f.dispatcher.calls) != 1 || f.dispatcher.calls[0] != "transcript:"+resp.ID {
		t.Fatalf("dispatched %v", f.dispatcher.calls)
	}

	job, err := f.jobs.Get(context.Background(), model.JobKindTranscript, resp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !f.store.Exists(job.Transcript().FilePath) {
		t.Fatalf("upload not stored at %q", job.Transcript().FilePath)
	}
}

func TestTranscriptCreateRejectsBadUploads(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "alice")
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateTranscriptRequest
	}{
		{"extension", CreateTranscriptRequest{FileName: "notes.txt", Size: 3, File: strings.NewReader("abc")}},
		{"declared size", CreateTranscriptRequest{FileName: "a.wav", Size: 4096, File: strings.NewReader("abc")}},
		{"actual size", CreateTranscriptRequest{FileName: "a.wav", Size: 10, File: bytes.NewReader(make([]byte, 2048))}},
		{"no file", CreateTranscriptRequest{FileName: "a.wav"}},
	}
	for _, tc := range cases {
		if _, err := f.transcripts.Create(ctx, owner, tc.req); !errors.Is(err, common.ErrValidation) {
			t.Fatalf("%s: error = %v, want ErrValidation", tc.name, err)
		}
	}
	if len(f.dispatcher.calls) != 0 {
		t.Fatalf("rejected uploads were dispatched: %v", f.dispatcher.calls)
	}
	if list, _ := f.transcripts.List(ctx, owner, "", Page{}); list.Count != 0 {
		t.Fatalf("rejected uploads were stored: %d", list.Count)
	}
}

func TestTranscriptRetryIsStrict(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "alice")
	ctx := context.Background()
	resp := f.upload(t, owner)

	if _, err := f.transcripts.Retry(ctx, owner, resp.ID); !errors.Is(err, common.ErrRejected) {
		t.Fatalf("retry of pending error = %v, want ErrRejected", err)
	}

	f.complete(t, resp.ID, "hello world")
	got, err := f.transcripts.Retry(ctx, owner, resp.ID)
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if got.Status != model.JobStatusPending || got.RawText != "" || got.CompletedAt != nil {
		t.Fatalf("retried transcript = %+v", got)
	}
	if len(f.dispatcher.calls) != 2 {
		t.Fatalf("dispatch count = %d, want 2", len(f.dispatcher.calls))
	}

	other := f.register(t, "mallory")
	if _, err := f.transcripts.Retry(ctx, other, resp.ID); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("foreign retry error = %v, want ErrNotFound", err)
	}
}

func TestSummaryCreatePreconditions(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "alice")
	other := f.register(t, "mallory")
	ctx := context.Background()
	tr := f.upload(t, owner)

	_, err := f.summaries.Create(ctx, other, CreateSummaryRequest{TranscriptID: tr.ID})
	if !errors.Is(err, common.ErrValidation) || err.Error() != "Transcript not found or doesn't belong to you" {
		t.Fatalf("foreign transcript error = %v", err)
	}
	_, err = f.summaries.Create(ctx, owner, CreateSummaryRequest{TranscriptID: tr.ID})
	if err == nil || err.Error() != "Transcript must be completed before summarization" {
		t.Fatalf("pending transcript error = %v", err)
	}

	f.complete(t, tr.ID, "   ")
	_, err = f.summaries.Create(ctx, owner, CreateSummaryRequest{TranscriptID: tr.ID})
	if err == nil || err.Error() != "Transcript has no text to summarize" {
		t.Fatalf("empty transcript error = %v", err)
	}

	f.complete(t, tr.ID, "a lecture about go")
	sum, err := f.summaries.Create(ctx, owner, CreateSummaryRequest{TranscriptID: tr.ID})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sum.Status != model.JobStatusPending || sum.TranscriptTitle != "lecture" || sum.TranscriptLanguage != "en" {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.KeyPoints == nil || len(sum.KeyPoints) != 0 || sum.HasContent {
		t.Fatalf("fresh summary lists = %#v has_content=%v", sum.KeyPoints, sum.HasContent)
	}

	_, err = f.summaries.Create(ctx, owner, CreateSummaryRequest{TranscriptID: tr.ID})
	if common.HTTPStatusFromError(err) != 409 {
		t.Fatalf("duplicate summary error = %v, want 409", err)
	}
}

func TestSummaryRegenerateIsLenient(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "alice")
	ctx := context.Background()
	tr := f.upload(t, owner)
	f.complete(t, tr.ID, "text")
	sum, err := f.summaries.Create(ctx, owner, CreateSummaryRequest{TranscriptID: tr.ID})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.summaries.Regenerate(ctx, owner, sum.ID); err != nil {
		t.Fatalf("regenerate pending error = %v", err)
	}

	pending, err := f.jobs.Get(ctx, model.JobKindSummary, sum.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := f.jobs.ClaimPending(ctx, pending); err != nil || !ok {
		t.Fatalf("claim = %v, %v", ok, err)
	}
	_, err = f.summaries.Regenerate(ctx, owner, sum.ID)
	if !errors.Is(err, common.ErrRejected) || err.Error() != "Summary is currently being processed" {
		t.Fatalf("regenerate processing error = %v", err)
	}
}

func TestStatusSummaryIsOwnerScoped(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	ctx := context.Background()
	f.upload(t, alice)
	done := f.upload(t, alice)
	f.complete(t, done.ID, "x")
	f.upload(t, bob)

	counts, err := f.transcripts.StatusSummary(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	want := model.StatusCounts{Total: 2, Pending: 1, Completed: 1}
	if counts != want {
		t.Fatalf("counts = %+v, want %+v", counts, want)
	}

	counts, err = f.summaries.StatusSummary(ctx, alice)
	if err != nil || counts != (model.StatusCounts{}) {
		t.Fatalf("summary counts = %+v, %v", counts, err)
	}
}

func TestTranscriptDeleteRemovesMediaAndSummary(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "alice")
	ctx := context.Background()
	tr := f.upload(t, owner)
	f.complete(t, tr.ID, "text")
	sum, err := f.summaries.Create(ctx, owner, CreateSummaryRequest{TranscriptID: tr.ID})
	if err != nil {
		t.Fatal(err)
	}
	job, _ := f.jobs.Get(ctx, model.JobKindTranscript, tr.ID)
	key := job.Transcript().FilePath

	if err := f.transcripts.Delete(ctx, owner, tr.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if f.store.Exists(key) {
		t.Fatal("media file survived delete")
	}
	if _, err := f.summaries.Get(ctx, owner, sum.ID); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("summary after transcript delete error = %v", err)
	}
}

func TestListPagination(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "alice")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.upload(t, owner)
	}

	page, err := f.transcripts.List(ctx, owner, "", Page{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if page.Count != 3 || len(page.Results) != 1 || page.Page != 2 {
		t.Fatalf("page = count %d, results %d, page %d", page.Count, len(page.Results), page.Page)
	}
	if _, err := f.transcripts.List(ctx, owner, "bogus", Page{}); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("bad status filter error = %v", err)
	}

	if got := (Page{PageSize: 1000}).Normalize(); got.PageSize != 100 || got.Page != 1 {
		t.Fatalf("normalized page = %+v", got)
	}
}

func TestNotesAndCategories(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	ctx := context.Background()

	cat, err := f.notes.CreateCategory(ctx, alice, CategoryRequest{Name: "Machine Learning"})
	if err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	if cat.Slug != "machine-learning" || cat.Color != model.DefaultCategoryColor {
		t.Fatalf("category = %+v", cat)
	}
	if _, err := f.notes.CreateCategory(ctx, alice, CategoryRequest{Name: "Machine Learning"}); !errors.Is(err, common.ErrConflict) {
		t.Fatalf("duplicate category error = %v", err)
	}
	if _, err := f.notes.CreateCategory(ctx, alice, CategoryRequest{Name: "x", Color: "blue"}); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("bad color error = %v", err)
	}

	note, err := f.notes.CreateNote(ctx, alice, NoteRequest{Title: "Backprop", Content: "chain rule", CategoryID: &cat.ID})
	if err != nil {
		t.Fatalf("CreateNote() error = %v", err)
	}
	if _, err := f.notes.CreateNote(ctx, bob, NoteRequest{Title: "stolen", CategoryID: &cat.ID}); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("foreign category error = %v", err)
	}

	list, err := f.notes.ListNotes(ctx, alice, "CHAIN", "", Page{})
	if err != nil || list.Count != 1 || list.Results[0].ID != note.ID {
		t.Fatalf("search = %+v, %v", list, err)
	}

	if err := f.notes.DeleteCategory(ctx, alice, cat.ID); err != nil {
		t.Fatal(err)
	}
	got, err := f.notes.GetNote(ctx, alice, note.ID)
	if err != nil || got.CategoryID != nil {
		t.Fatalf("note after category delete = %+v, %v", got, err)
	}
}
