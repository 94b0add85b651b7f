package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"noteflow/internal/api"
	"noteflow/internal/app/jobs"
	"noteflow/internal/app/service"
	"noteflow/internal/app/worker"
	"noteflow/internal/common/security"
	"noteflow/internal/domain/repository"
	"noteflow/internal/platform/config"
	"noteflow/internal/platform/database"
	"noteflow/internal/platform/logger"
	"noteflow/internal/platform/media"
	"noteflow/internal/platform/queue"
)

func main() {
	// 1. Configuration and logging
	if err := config.Load(); err != nil {
		logger.Log.WithError(err).Fatal("Invalid configuration")
	}
	cfg := config.AppConfig
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Component("server")

	// 2. JWT
	security.InitJWT(cfg.JWTKey, cfg.JWTExp)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Database
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Database unavailable")
	}
	defer database.Close()

	// 4. Repositories and the job runner
	userRepo := repository.NewSQLUserRepository(db)
	jobRepo := repository.NewSQLJobRepository(db)
	noteRepo := repository.NewSQLNoteRepository(db)
	categoryRepo := repository.NewSQLCategoryRepository(db)
	runner := worker.NewJobRunner(cfg, jobRepo, logger.Component("runner"))

	// 5. Dispatcher plus embedded worker
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var (
		dispatcher jobs.Dispatcher
		workerDone = make(chan struct{})
	)
	switch cfg.QueueBackend {
	case config.QueueMemory:
		pool := worker.NewPool(runner, cfg.WorkerConcurrency, 100, logger.Component("worker"))
		pool.Run(workerCtx)
		dispatcher = pool
		go func() {
			<-workerCtx.Done()
			pool.Stop()
			close(workerDone)
		}()
	default:
		rdb, err := queue.ConnectRedis(ctx, cfg)
		if err != nil {
			log.WithError(err).Fatal("Redis unavailable")
		}
		defer queue.CloseRedis()
		dispatcher = queue.NewRedisDispatcher(rdb, cfg.JobQueueName)

		w := worker.NewRedisWorker(rdb, runner, cfg.JobQueueName, cfg.JobLockPrefix,
			time.Duration(cfg.JobLockTTLSeconds)*time.Second, logger.Component("worker"))
		go func() {
			w.Start(workerCtx, cfg.WorkerConcurrency)
			close(workerDone)
		}()
	}

	worker.RequeuePending(ctx, jobRepo, dispatcher, logger.Component("worker"))
	if cfg.StaleJobTimeout > 0 {
		go worker.NewReaper(jobRepo, cfg.StaleJobTimeout, logger.Component("reaper")).Run(workerCtx)
	}

	// 6. Services and router
	base := logger.Component("service")
	svc := api.Services{
		Auth: service.NewAuthService(userRepo),
		Transcripts: service.NewTranscriptService(jobRepo, media.LocalFS{Root: cfg.MediaRoot}, dispatcher, service.UploadPolicy{
			MaxBytes:          cfg.MaxUploadBytes,
			AllowedExtensions: cfg.AllowedExtensions(),
		}, base),
		Summaries: service.NewSummaryService(jobRepo, dispatcher, base),
		Notes:     service.NewNoteService(noteRepo, categoryRepo),
	}

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      api.NewRouter(svc, logger.Component("http")),
		ReadTimeout:  5 * time.Minute, // Large media uploads
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.APIPort).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Could not listen")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}

	// In-flight runs finish before the process exits.
	workerCancel()
	<-workerDone
	log.Info("Server and worker stopped gracefully.")
}
