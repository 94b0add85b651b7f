package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"noteflow/internal/app/worker"
	"noteflow/internal/domain/repository"
	"noteflow/internal/platform/config"
	"noteflow/internal/platform/database"
	"noteflow/internal/platform/logger"
	"noteflow/internal/platform/queue"
)

// The standalone worker consumes the Redis job queue shared with cmd/server.
func main() {
	if err := config.Load(); err != nil {
		logger.Log.WithError(err).Fatal("Invalid configuration")
	}
	cfg := config.AppConfig
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Component("worker")

	if cfg.QueueBackend != config.QueueRedis {
		log.WithField("queue_backend", cfg.QueueBackend).Fatal("Standalone worker needs QUEUE_BACKEND=redis")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Database unavailable")
	}
	defer database.Close()

	rdb, err := queue.ConnectRedis(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Redis unavailable")
	}
	defer queue.CloseRedis()

	jobRepo := repository.NewSQLJobRepository(db)
	runner := worker.NewJobRunner(cfg, jobRepo, logger.Component("runner"))

	worker.RequeuePending(ctx, jobRepo, queue.NewRedisDispatcher(rdb, cfg.JobQueueName), log)
	if cfg.StaleJobTimeout > 0 {
		go worker.NewReaper(jobRepo, cfg.StaleJobTimeout, logger.Component("reaper")).Run(ctx)
	}

	w := worker.NewRedisWorker(rdb, runner, cfg.JobQueueName, cfg.JobLockPrefix,
		time.Duration(cfg.JobLockTTLSeconds)*time.Second, log)
	w.Start(ctx, cfg.WorkerConcurrency) // Blocks until a signal and in-flight jobs finish

	log.Info("Worker exited cleanly.")
}
