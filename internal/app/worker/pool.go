package worker

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"noteflow/internal/common"
	"noteflow/internal/domain/model"
	"noteflow/internal/platform/queue"
)

// Pool is an in-process Dispatcher: a bounded job queue drained by a fixed
// set of workers. Used when QUEUE_BACKEND=memory.
type Pool struct {
	runner     JobRunner
	maxWorkers int
	jobQueue   chan queue.Message
	log        *logrus.Entry

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

func NewPool(runner JobRunner, maxWorkers, queueSize int, log *logrus.Entry) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Pool{
		runner:     runner,
		maxWorkers: maxWorkers,
		jobQueue:   make(chan queue.Message, queueSize),
		log:        log,
	}
}

// Run starts the workers. They exit once Stop closes the queue and it drains.
func (p *Pool) Run(ctx context.Context) {
	p.log.WithField("workers", p.maxWorkers).Info("Worker pool starting")
	runCtx := context.WithoutCancel(ctx)
	for i := 1; i <= p.maxWorkers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			log := p.log.WithField("worker_id", id)
			for msg := range p.jobQueue {
				out := p.runner.Run(runCtx, msg.Kind, msg.ID)
				log.WithFields(logrus.Fields{"job_id": msg.ID, "job_kind": msg.Kind, "outcome": out.Status}).Debug("Job handled")
			}
		}(i)
	}
}

// Enqueue never blocks: a full queue is reported as ErrServiceUnavailable.
func (p *Pool) Enqueue(_ context.Context, kind model.JobKind, id string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return common.Errorf("worker pool is shut down: %w", common.ErrServiceUnavailable)
	}

	select {
	case p.jobQueue <- queue.Message{Kind: kind, ID: id}:
		return nil
	default:
		p.log.WithField("job_id", id).Warn("Job queue full")
		return common.Errorf("job queue is full: %w", common.ErrServiceUnavailable)
	}
}

// Stop rejects new jobs, lets queued ones finish and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobQueue)
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info("Worker pool stopped")
}
