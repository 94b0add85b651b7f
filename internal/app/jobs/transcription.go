package jobs

import (
	"context"

	"github.com/samber/lo"

	"noteflow/internal/domain/model"
)

// Processor performs the kind-specific part of a run: resolve the engine,
// check preconditions, call the engine and write the result into the payload.
// The payload is only touched on success.
type Processor interface {
	Kind() model.JobKind
	Process(ctx context.Context, job *model.Job) error
}

type TranscriptionProcessor struct {
	engine Transcriber
	media  MediaStore
}

func NewTranscriptionProcessor(engine Transcriber, media MediaStore) *TranscriptionProcessor {
	return &TranscriptionProcessor{engine: engine, media: media}
}

func (p *TranscriptionProcessor) Kind() model.JobKind { return model.JobKindTranscript }

func (p *TranscriptionProcessor) Process(ctx context.Context, job *model.Job) error {
	payload := job.Transcript()
	if payload == nil {
		return preconditionError("job %s carries no transcript payload", job.ID)
	}

	if err := resolve(p.engine, "speech-to-text engine"); err != nil {
		return err
	}

	if p.media == nil || payload.FilePath == "" || !p.media.Exists(payload.FilePath) {
		return preconditionError("File not found: %s", payload.FilePath)
	}

	result, err := p.engine.Transcribe(ctx, p.media.Path(payload.FilePath))
	if err != nil {
		return engineError(err)
	}
	if result == nil {
		return engineError(errEmptyResponse)
	}

	ApplyTranscription(payload, result)
	return nil
}

// ApplyTranscription copies an engine response into the payload. Confidence
// is the mean avg_logprob over the segments that report one and stays nil if
// none do; duration is the end of the last segment, 0 without segments.
func ApplyTranscription(payload *model.TranscriptPayload, result *model.Transcription) {
	payload.RawText = result.Text
	payload.Language = result.Language

	logprobs := lo.FilterMap(result.Segments, func(s model.Segment, _ int) (float64, bool) {
		if s.AvgLogprob == nil {
			return 0, false
		}
		return *s.AvgLogprob, true
	})
	payload.Confidence = nil
	if len(logprobs) > 0 {
		mean := lo.Sum(logprobs) / float64(len(logprobs))
		payload.Confidence = &mean
	}

	duration := 0.0
	if len(result.Segments) > 0 {
		duration = result.Segments[len(result.Segments)-1].End
	}
	payload.Duration = &duration
}
