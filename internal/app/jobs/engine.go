package jobs

import (
	"context"

	"noteflow/internal/common"
	"noteflow/internal/domain/model"
)

// Transcriber is a speech-to-text engine.
type Transcriber interface {
	Transcribe(ctx context.Context, filePath string) (*model.Transcription, error)
}

// TextGenerator is a text-generation engine.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// Model names the model recorded in model_used.
	Model() string
}

// ReadyChecker is implemented by engines that can detect missing
// credentials or binaries before they are called.
type ReadyChecker interface {
	Ready() error
}

// MediaStore resolves stored upload keys to local files.
type MediaStore interface {
	Path(key string) string
	Exists(key string) bool
}

// resolve returns a configuration failure when the engine is absent or
// reports itself unusable.
func resolve(engine any, name string) error {
	if engine == nil {
		return configurationError("%s not configured", name)
	}
	if rc, ok := engine.(ReadyChecker); ok {
		if err := rc.Ready(); err != nil {
			return &FailureError{Category: common.ErrConfiguration, Message: err.Error(), Err: err}
		}
	}
	return nil
}
