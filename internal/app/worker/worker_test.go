package worker

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"noteflow/internal/app/jobs"
	"noteflow/internal/common"
	"noteflow/internal/domain/model"
	"noteflow/internal/domain/repository"
	"noteflow/internal/platform/config"
	"noteflow/internal/platform/database"
	"noteflow/internal/platform/queue"
)

// fakeRunner records every run and can block until released.
type fakeRunner struct {
	mu    sync.Mutex
	calls []queue.Message
	run   func(ctx context.Context, kind model.JobKind, id string)
}

func (f *fakeRunner) Run(ctx context.Context, kind model.JobKind, id string) jobs.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, queue.Message{Kind: kind, ID: id})
	f.mu.Unlock()
	if f.run != nil {
		f.run(ctx, kind, id)
	}
	return jobs.Outcome{JobID: id, Kind: kind, Status: jobs.OutcomeCompleted}
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestRedisWorkerHandleTakesAndReleasesLock(t *testing.T) {
	mr, rdb := newRedis(t)
	var lockSeen bool
	runner := &fakeRunner{run: func(context.Context, model.JobKind, string) {
		lockSeen = mr.Exists("lock:transcript:t1")
	}}
	w := NewRedisWorker(rdb, runner, "jobs", "lock", time.Minute, quietLog())

	w.Handle(context.Background(), `{"kind":"transcript","id":"t1"}`)

	if runner.count() != 1 {
		t.Fatalf("runs = %d, want 1", runner.count())
	}
	if !lockSeen {
		t.Fatal("lock was not held during the run")
	}
	if mr.Exists("lock:transcript:t1") {
		t.Fatal("lock not released after the run")
	}
}

func TestRedisWorkerRequeuesWhileLockHeld(t *testing.T) {
	mr, rdb := newRedis(t)
	// Left behind by a worker that died mid-run.
	if err := mr.Set("lock:summary:s1", "someone-else"); err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{}
	w := NewRedisWorker(rdb, runner, "jobs", "lock", time.Minute, quietLog())
	w.requeueDelay = 0

	msg := `{"kind":"summary","id":"s1"}`
	w.Handle(context.Background(), msg)

	if runner.count() != 0 {
		t.Fatalf("runs = %d, want 0 while locked", runner.count())
	}
	if got, _ := mr.Get("lock:summary:s1"); got != "someone-else" {
		t.Fatalf("foreign lock overwritten: %q", got)
	}
	queued, err := mr.List("jobs")
	if err != nil || len(queued) != 1 || queued[0] != msg {
		t.Fatalf("queue = %v, %v, want the message back", queued, err)
	}

	// Once the lock expires the requeued message runs.
	mr.Del("lock:summary:s1")
	raw, err := rdb.RPop(context.Background(), "jobs").Result()
	if err != nil {
		t.Fatal(err)
	}
	w.Handle(context.Background(), raw)
	if runner.count() != 1 {
		t.Fatalf("runs = %d, want 1 after the lock is gone", runner.count())
	}
}

func TestRedisWorkerIgnoresMalformedMessages(t *testing.T) {
	_, rdb := newRedis(t)
	runner := &fakeRunner{}
	w := NewRedisWorker(rdb, runner, "jobs", "lock", time.Minute, quietLog())
	w.Handle(context.Background(), "garbage")
	if runner.count() != 0 {
		t.Fatal("malformed message reached the runner")
	}
}

func TestRedisWorkerConsumesQueue(t *testing.T) {
	_, rdb := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{}, 2)
	runner := &fakeRunner{run: func(context.Context, model.JobKind, string) { done <- struct{}{} }}
	w := NewRedisWorker(rdb, runner, "jobs", "lock", time.Minute, quietLog())
	w.popTimeout = 100 * time.Millisecond

	d := queue.NewRedisDispatcher(rdb, "jobs")
	if err := d.Enqueue(ctx, model.JobKindTranscript, "t1"); err != nil {
		t.Fatal(err)
	}
	if err := d.Enqueue(ctx, model.JobKindSummary, "s1"); err != nil {
		t.Fatal(err)
	}

	stopped := make(chan struct{})
	go func() {
		w.Start(ctx, 2)
		close(stopped)
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestPoolRunsJobsAndRejectsWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	runner := &fakeRunner{run: func(context.Context, model.JobKind, string) {
		started <- struct{}{}
		<-release
	}}
	pool := NewPool(runner, 1, 1, quietLog())
	pool.Run(context.Background())

	ctx := context.Background()
	if err := pool.Enqueue(ctx, model.JobKindTranscript, "a"); err != nil {
		t.Fatalf("Enqueue(a) error = %v", err)
	}
	<-started // worker is now busy with a
	if err := pool.Enqueue(ctx, model.JobKindTranscript, "b"); err != nil {
		t.Fatalf("Enqueue(b) error = %v", err)
	}
	if err := pool.Enqueue(ctx, model.JobKindTranscript, "c"); !errors.Is(err, common.ErrServiceUnavailable) {
		t.Fatalf("Enqueue(c) error = %v, want ErrServiceUnavailable", err)
	}

	close(release)
	pool.Stop()
	if runner.count() != 2 {
		t.Fatalf("runs = %d, want 2", runner.count())
	}
	if err := pool.Enqueue(ctx, model.JobKindTranscript, "d"); !errors.Is(err, common.ErrServiceUnavailable) {
		t.Fatalf("Enqueue after Stop error = %v", err)
	}
}

// newJobRepo returns a SQLite-backed repository holding one pending
// transcript job.
func newJobRepo(t *testing.T) (repository.JobRepository, *model.Job) {
	t.Helper()
	db, err := database.Open(config.DriverSQLite, database.SQLiteDSN(filepath.Join(t.TempDir(), "worker.db")))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	if err := database.Migrate(ctx, db); err != nil {
		t.Fatal(err)
	}

	user := &model.User{ID: uuid.NewString(), Username: "alice", HashedPassword: "x", Role: model.RoleUser}
	if err := repository.NewSQLUserRepository(db).Create(ctx, user); err != nil {
		t.Fatal(err)
	}
	repo := repository.NewSQLJobRepository(db)
	job := &model.Job{
		ID: uuid.NewString(), OwnerID: user.ID, Kind: model.JobKindTranscript, Status: model.JobStatusPending,
		Payload: &model.TranscriptPayload{FileName: "a.mp3", FilePath: "a.mp3"},
	}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatal(err)
	}
	return repo, job
}

type recordingDispatcher struct {
	ids []string
}

func (d *recordingDispatcher) Enqueue(_ context.Context, _ model.JobKind, id string) error {
	d.ids = append(d.ids, id)
	return nil
}

func TestRequeuePending(t *testing.T) {
	repo, job := newJobRepo(t)
	d := &recordingDispatcher{}
	if n := RequeuePending(context.Background(), repo, d, quietLog()); n != 1 {
		t.Fatalf("requeued %d jobs, want 1", n)
	}
	if len(d.ids) != 1 || d.ids[0] != job.ID {
		t.Fatalf("dispatched %v", d.ids)
	}
}

func TestReaperSweep(t *testing.T) {
	repo, job := newJobRepo(t)
	ctx := context.Background()
	if ok, err := repo.ClaimPending(ctx, job); err != nil || !ok {
		t.Fatalf("claim = %v, %v", ok, err)
	}

	reaper := NewReaper(repo, time.Minute, quietLog())
	if n := reaper.Sweep(ctx); n != 0 {
		t.Fatalf("fresh sweep reaped %d jobs", n)
	}

	reaper.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if n := reaper.Sweep(ctx); n != 1 {
		t.Fatalf("late sweep reaped %d jobs, want 1", n)
	}
	got, err := repo.Get(ctx, model.JobKindTranscript, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.JobStatusFailed || got.ErrorMessage != AbandonedMessage {
		t.Fatalf("reaped job = %s %q", got.Status, got.ErrorMessage)
	}
	if err := (jobs.StrictRetry{}).Reset(got); err != nil {
		t.Fatalf("reaped job should be retryable: %v", err)
	}
}
