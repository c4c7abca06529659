// Package report turns finished interview transcripts into structured
// hiring reports via an LLM provider.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/voxhire/voxhire/pkg/interview"
	"github.com/voxhire/voxhire/pkg/provider/llm"
)

// assessmentPrompt is the system prompt sent to the LLM when generating a
// hiring report. The model must answer with a single JSON object so the
// response can be parsed mechanically.
const assessmentPrompt = `You are an experienced technical interviewer producing a hiring report.
Given an interview transcript, respond with a single JSON object and nothing else:
{
  "summary": "3-5 sentence overview of the conversation",
  "scores": [{"competency": "...", "score": 1-5, "rationale": "one sentence"}],
  "recommendation": "strong_hire" | "hire" | "no_hire" | "strong_no_hire"
}
Score only competencies the transcript gives evidence for. Base every
rationale on what the candidate actually said; never invent details.`

// Score is one competency assessment within a report.
type Score struct {
	Competency string `json:"competency"`
	Score      int    `json:"score"`
	Rationale  string `json:"rationale"`
}

// Report is the structured outcome of an interview.
type Report struct {
	InterviewID    interview.ID `json:"interview_id"`
	Summary        string       `json:"summary"`
	Scores         []Score      `json:"scores"`
	Recommendation string       `json:"recommendation"`
	GeneratedAt    time.Time    `json:"generated_at"`
}

// Option is a functional option for configuring a Generator.
type Option func(*Generator)

// WithTemperature overrides the sampling temperature used for generation.
func WithTemperature(t float64) Option {
	return func(g *Generator) { g.temperature = t }
}

// Generator produces reports from transcripts. Safe for concurrent use.
type Generator struct {
	llm         llm.Provider
	temperature float64
}

// NewGenerator creates a Generator backed by the given provider.
func NewGenerator(provider llm.Provider, opts ...Option) *Generator {
	g := &Generator{llm: provider, temperature: 0.2}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Request generates a report for the interview identified by id from its
// aggregated transcript. All failures come back as a
// *interview.ReportGenerationFailure carrying the same id, so callers can
// log and continue — a missing report never invalidates the interview.
func (g *Generator) Request(ctx context.Context, id interview.ID, msgs []interview.ChatMessage) (*Report, error) {
	rep, err := g.generate(ctx, msgs)
	if err != nil {
		return nil, &interview.ReportGenerationFailure{InterviewID: id, Err: err}
	}
	rep.InterviewID = id
	rep.GeneratedAt = time.Now().UTC()
	return rep, nil
}

func (g *Generator) generate(ctx context.Context, msgs []interview.ChatMessage) (*Report, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("report: empty transcript")
	}

	resp, err := g.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: assessmentPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: formatTranscript(msgs)},
		},
		Temperature: g.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("report: complete: %w", err)
	}

	var rep Report
	if err := json.Unmarshal(extractJSON(resp.Content), &rep); err != nil {
		return nil, fmt.Errorf("report: parse response: %w", err)
	}
	if rep.Summary == "" || rep.Recommendation == "" {
		return nil, fmt.Errorf("report: response missing summary or recommendation")
	}
	return &rep, nil
}

// formatTranscript renders the transcript one line per message, the way the
// assessment prompt expects it.
func formatTranscript(msgs []interview.ChatMessage) string {
	var sb strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&sb, "[%s/%s]: %s\n", m.Sender, m.Channel, m.Text)
	}
	return sb.String()
}

// extractJSON trims everything outside the outermost JSON object. Models
// occasionally wrap their answer in code fences despite the prompt.
func extractJSON(s string) []byte {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return []byte(s)
	}
	return []byte(s[start : end+1])
}
