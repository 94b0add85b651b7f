package model

import (
	"path/filepath"
	"slices"
	"strings"
)

var (
	audioExtensions = []string{".mp3", ".wav", ".m4a", ".flac", ".ogg"}
	videoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".webm"}
)

// TranscriptPayload holds the uploaded media description and the
// speech-to-text result.
type TranscriptPayload struct {
	Title    string `json:"title"`
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"` // Key in media storage
	FileSize int64  `json:"file_size"`
	FileType string `json:"file_type"`

	RawText    string   `json:"raw_text"`
	Language   string   `json:"language"`
	Confidence *float64 `json:"confidence"` // Mean segment log-probability, nil when unreported
	Duration   *float64 `json:"duration"`   // Seconds
}

func (p *TranscriptPayload) Kind() JobKind { return JobKindTranscript }

func (p *TranscriptPayload) HasContent() bool {
	return p.RawText != "" || p.Language != ""
}

func (p *TranscriptPayload) ClearResult() {
	p.RawText = ""
	p.Language = ""
	p.Confidence = nil
	p.Duration = nil
}

func (p *TranscriptPayload) FileExtension() string {
	return strings.ToLower(filepath.Ext(p.FileName))
}

func (p *TranscriptPayload) IsAudio() bool {
	return slices.Contains(audioExtensions, p.FileExtension())
}

func (p *TranscriptPayload) IsVideo() bool {
	return slices.Contains(videoExtensions, p.FileExtension())
}

// Segment is one timed span reported by a speech-to-text engine.
type Segment struct {
	AvgLogprob *float64 `json:"avg_logprob,omitempty"`
	End        float64  `json:"end"`
}

// Transcription is the raw speech-to-text engine response.
type Transcription struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}
