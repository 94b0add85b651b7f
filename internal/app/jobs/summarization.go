package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"noteflow/internal/common"
	"noteflow/internal/domain/model"
	"noteflow/internal/domain/repository"
)

var errEmptyResponse = errors.New("engine returned an empty response")

const summaryPromptTemplate = `
Please analyze the following transcript and provide a comprehensive summary with the following components:

1. Main Summary: A concise overview of the content (2-3 paragraphs)
2. Key Points: 5-7 most important points discussed
3. Questions: 3-5 questions that arise from the content or could be used for further discussion
4. Highlights: 3-5 notable quotes or important statements
5. Topics: Main topics/themes covered
6. Action Items: Any tasks, decisions, or next steps mentioned

Please format your response as a JSON object with the following structure:
{
    "main_summary": "...",
    "key_points": ["point 1", "point 2", ...],
    "questions": ["question 1", "question 2", ...],
    "highlights": ["highlight 1", "highlight 2", ...],
    "topics": ["topic 1", "topic 2", ...],
    "action_items": ["action 1", "action 2", ...]
}

Transcript:
`

// SummaryPrompt builds the generation prompt for one transcript.
func SummaryPrompt(transcriptText string) string {
	return summaryPromptTemplate + transcriptText + "\n"
}

// SummaryDocument is the structured object the engine is asked to return.
type SummaryDocument struct {
	MainSummary string   `json:"main_summary"`
	KeyPoints   []string `json:"key_points"`
	Questions   []string `json:"questions"`
	Highlights  []string `json:"highlights"`
	Topics      []string `json:"topics"`
	ActionItems []string `json:"action_items"`
}

// ParseSummary decodes an engine response. A response that is not the
// structured object becomes the main summary verbatim with empty lists.
func ParseSummary(raw string) SummaryDocument {
	content := strings.TrimSpace(raw)
	body := unwrapCodeFence(content)

	var doc SummaryDocument
	if !strings.HasPrefix(body, "{") || json.Unmarshal([]byte(body), &doc) != nil {
		doc = SummaryDocument{MainSummary: content}
	}
	doc.KeyPoints = orEmpty(doc.KeyPoints)
	doc.Questions = orEmpty(doc.Questions)
	doc.Highlights = orEmpty(doc.Highlights)
	doc.Topics = orEmpty(doc.Topics)
	doc.ActionItems = orEmpty(doc.ActionItems)
	return doc
}

// WordCount counts whitespace-separated tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

func unwrapCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// Drop the opening fence line, which may carry a language tag.
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return s
	}
	body := strings.TrimSpace(s[nl+1:])
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

func orEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

type SummarizationProcessor struct {
	engine TextGenerator
	jobs   repository.JobRepository
}

func NewSummarizationProcessor(engine TextGenerator, jobs repository.JobRepository) *SummarizationProcessor {
	return &SummarizationProcessor{engine: engine, jobs: jobs}
}

func (p *SummarizationProcessor) Kind() model.JobKind { return model.JobKindSummary }

func (p *SummarizationProcessor) Process(ctx context.Context, job *model.Job) error {
	payload := job.Summary()
	if payload == nil {
		return preconditionError("job %s carries no summary payload", job.ID)
	}

	if err := resolve(p.engine, "text generation engine"); err != nil {
		return err
	}

	text, err := p.sourceText(ctx, payload.TranscriptID)
	if err != nil {
		return err
	}

	raw, err := p.engine.Generate(ctx, SummaryPrompt(text))
	if err != nil {
		return engineError(err)
	}

	doc := ParseSummary(raw)
	words := WordCount(doc.MainSummary)
	payload.MainSummary = doc.MainSummary
	payload.KeyPoints = doc.KeyPoints
	payload.Questions = doc.Questions
	payload.Highlights = doc.Highlights
	payload.Topics = doc.Topics
	payload.ActionItems = doc.ActionItems
	payload.WordCount = &words
	payload.ModelUsed = p.engine.Model()
	return nil
}

func (p *SummarizationProcessor) sourceText(ctx context.Context, transcriptID string) (string, error) {
	transcript, err := p.jobs.Get(ctx, model.JobKindTranscript, transcriptID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", preconditionError("Transcript %s not found", transcriptID)
		}
		return "", err
	}
	tp := transcript.Transcript()
	if tp == nil || strings.TrimSpace(tp.RawText) == "" {
		return "", preconditionError("No transcript text available")
	}
	return tp.RawText, nil
}
