package worker

import (
	"github.com/sirupsen/logrus"

	"noteflow/internal/app/jobs"
	"noteflow/internal/domain/repository"
	"noteflow/internal/platform/config"
	"noteflow/internal/platform/engine"
	"noteflow/internal/platform/media"
)

// NewJobRunner wires the configured engines and media store into a runner
// that handles both job kinds.
func NewJobRunner(cfg *config.Config, repo repository.JobRepository, log *logrus.Entry) *jobs.Runner {
	store := media.LocalFS{Root: cfg.MediaRoot}
	var (
		transcriber jobs.Transcriber   = engine.NewTranscriber(cfg)
		generator   jobs.TextGenerator = engine.NewTextGenerator(cfg)
	)
	log.WithFields(logrus.Fields{"stt_engine": cfg.STTEngine, "textgen_engine": cfg.TextGenEngine}).Info("Job runner configured")

	return jobs.NewRunner(repo, log,
		jobs.NewTranscriptionProcessor(transcriber, store),
		jobs.NewSummarizationProcessor(generator, repo),
	)
}
