package model

// SummaryPayload holds the generated summary for one transcript.
type SummaryPayload struct {
	TranscriptID string `json:"transcript_id"`

	MainSummary string   `json:"main_summary"`
	KeyPoints   []string `json:"key_points"`
	Questions   []string `json:"questions"`
	Highlights  []string `json:"highlights"`
	Topics      []string `json:"topics"`
	ActionItems []string `json:"action_items"`
	WordCount   *int     `json:"word_count"`
	ModelUsed   string   `json:"model_used"`
}

func (p *SummaryPayload) Kind() JobKind { return JobKindSummary }

func (p *SummaryPayload) HasContent() bool {
	return p.MainSummary != "" ||
		len(p.KeyPoints) > 0 ||
		len(p.Questions) > 0 ||
		len(p.Highlights) > 0 ||
		len(p.Topics) > 0 ||
		len(p.ActionItems) > 0
}

func (p *SummaryPayload) ClearResult() {
	p.MainSummary = ""
	p.KeyPoints = []string{}
	p.Questions = []string{}
	p.Highlights = []string{}
	p.Topics = []string{}
	p.ActionItems = []string{}
	p.WordCount = nil
	p.ModelUsed = ""
}

// NewSummaryPayload returns a payload with empty, non-nil lists.
func NewSummaryPayload(transcriptID string) *SummaryPayload {
	p := &SummaryPayload{TranscriptID: transcriptID}
	p.ClearResult()
	return p
}
