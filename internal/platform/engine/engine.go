// Package engine holds the speech-to-text and text-generation clients.
package engine

import (
	"context"

	"noteflow/internal/domain/model"
	"noteflow/internal/platform/config"
)

type Transcriber interface {
	Transcribe(ctx context.Context, filePath string) (*model.Transcription, error)
}

type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// NewTranscriber returns the configured speech-to-text engine, or nil when
// STT_ENGINE is "none". A nil engine fails each run as unconfigured.
func NewTranscriber(cfg *config.Config) Transcriber {
	switch cfg.STTEngine {
	case config.EngineOpenAI:
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModelTranscribe, cfg.OpenAIModelSummary)
	case config.EngineWhisperCLI:
		return NewWhisperCLI(cfg.WhisperBinary, cfg.WhisperModel, cfg.WhisperDevice)
	default:
		return nil
	}
}

// NewTextGenerator returns the configured text-generation engine, or nil
// when TEXTGEN_ENGINE is "none".
func NewTextGenerator(cfg *config.Config) TextGenerator {
	switch cfg.TextGenEngine {
	case config.EngineGemini:
		return NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL)
	case config.EngineOpenAI:
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModelTranscribe, cfg.OpenAIModelSummary)
	default:
		return nil
	}
}
