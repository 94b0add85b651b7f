package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"noteflow/internal/app/jobs"
	"noteflow/internal/domain/model"
	"noteflow/internal/platform/queue"
)

// JobRunner is the part of *jobs.Runner the workers need.
type JobRunner interface {
	Run(ctx context.Context, kind model.JobKind, id string) jobs.Outcome
}

// releaseScript deletes the lock only if this worker still holds it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

// RedisWorker consumes the job list with BRPOP. Each message runs under a
// per-job lease lock. A message whose lock is held goes back to the tail of
// the list; the claim in the runner decides whether it still has work.
type RedisWorker struct {
	rdb          *redis.Client
	runner       JobRunner
	queueName    string
	lockPrefix   string
	lockTTL      time.Duration
	popTimeout   time.Duration
	requeueDelay time.Duration
	log          *logrus.Entry
}

func NewRedisWorker(rdb *redis.Client, runner JobRunner, queueName, lockPrefix string, lockTTL time.Duration, log *logrus.Entry) *RedisWorker {
	return &RedisWorker{
		rdb:          rdb,
		runner:       runner,
		queueName:    queueName,
		lockPrefix:   lockPrefix,
		lockTTL:      lockTTL,
		popTimeout:   5 * time.Second,
		requeueDelay: time.Second,
		log:          log,
	}
}

// Start runs concurrency consumer loops and blocks until ctx is cancelled
// and every in-flight job has finished.
func (w *RedisWorker) Start(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.WithFields(logrus.Fields{"queue": w.queueName, "concurrency": concurrency}).Info("Job worker started")

	var wg sync.WaitGroup
	for i := 1; i <= concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, w.log.WithField("worker_id", id))
		}(i)
	}
	wg.Wait()
	w.log.Info("Job worker stopped")
}

func (w *RedisWorker) loop(ctx context.Context, log *logrus.Entry) {
	for {
		if ctx.Err() != nil {
			return
		}

		// A finite timeout lets the loop notice cancellation between pops.
		res, err := w.rdb.BRPop(ctx, w.popTimeout, w.queueName).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			log.WithError(err).Error("Failed to BRPOP from job queue")
			sleep(ctx, 5*time.Second)
			continue
		}

		// res is [queueName, value]
		if len(res) < 2 || res[1] == "" {
			log.Warn("BRPOP returned an empty message")
			continue
		}
		// Runs are not cancellable; shutdown only stops new pops.
		w.Handle(context.WithoutCancel(ctx), res[1])
	}
}

// Handle decodes one queue entry and runs it under the job lock.
func (w *RedisWorker) Handle(ctx context.Context, raw string) {
	msg, err := queue.DecodeMessage(raw)
	if err != nil {
		w.log.WithError(err).Error("Dropping malformed queue message")
		return
	}
	log := w.log.WithFields(logrus.Fields{"job_id": msg.ID, "job_kind": msg.Kind})

	lockKey := w.lockPrefix + ":" + string(msg.Kind) + ":" + msg.ID
	lockValue := uuid.NewString()

	locked, err := w.rdb.SetNX(ctx, lockKey, lockValue, w.lockTTL).Result()
	switch {
	case err != nil:
		// Without Redis there is no lease; the CAS claim still guards the run.
		log.WithError(err).Warn("Failed to acquire job lock, running without it")
	case !locked:
		log.Info("Job lock held by another worker, requeueing")
		w.requeue(ctx, raw, log)
		return
	}

	defer func() {
		if !locked {
			return
		}
		deleted, relErr := releaseScript.Run(context.WithoutCancel(ctx), w.rdb, []string{lockKey}, lockValue).Int64()
		if relErr != nil {
			log.WithError(relErr).Error("Failed to release job lock")
		} else if deleted == 0 {
			log.Warn("Job lock expired before release")
		}
	}()

	out := w.runner.Run(ctx, msg.Kind, msg.ID)
	log.WithField("outcome", out.Status).Debug("Job handled")
}

// requeue pushes raw back after requeueDelay so a lone message does not spin
// while the lock is held.
func (w *RedisWorker) requeue(ctx context.Context, raw string, log *logrus.Entry) {
	sleep(ctx, w.requeueDelay)
	if err := w.rdb.LPush(context.WithoutCancel(ctx), w.queueName, raw).Err(); err != nil {
		log.WithError(err).Error("Failed to requeue job message")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
