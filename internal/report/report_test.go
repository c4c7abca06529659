package report_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/voxhire/voxhire/internal/report"
	"github.com/voxhire/voxhire/pkg/interview"
	"github.com/voxhire/voxhire/pkg/provider/llm"
	llmmock "github.com/voxhire/voxhire/pkg/provider/llm/mock"
)

func transcriptOf(texts ...string) []interview.ChatMessage {
	msgs := make([]interview.ChatMessage, len(texts))
	for i, text := range texts {
		sender := interview.SenderAgent
		if i%2 == 1 {
			sender = interview.SenderUser
		}
		msgs[i] = interview.ChatMessage{
			ID:        uuid.New(),
			Sender:    sender,
			Channel:   interview.ChannelVoice,
			Text:      text,
			Timestamp: time.Now(),
		}
	}
	return msgs
}

const goodResponse = `{
  "summary": "The candidate described a Kubernetes migration in depth.",
  "scores": [
    {"competency": "system design", "score": 4, "rationale": "Clear tradeoff reasoning."}
  ],
  "recommendation": "hire"
}`

func TestRequest_ParsesReport(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: goodResponse},
	}
	gen := report.NewGenerator(provider)

	rep, err := gen.Request(context.Background(), interview.ID("int-1"),
		transcriptOf("Tell me about a hard project.", "We migrated payments to Kubernetes."))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	if rep.InterviewID != interview.ID("int-1") {
		t.Errorf("InterviewID = %q; want int-1", rep.InterviewID)
	}
	if rep.Recommendation != "hire" {
		t.Errorf("Recommendation = %q; want hire", rep.Recommendation)
	}
	if len(rep.Scores) != 1 || rep.Scores[0].Score != 4 {
		t.Errorf("unexpected scores: %+v", rep.Scores)
	}
	if rep.GeneratedAt.IsZero() {
		t.Error("GeneratedAt is zero")
	}
}

func TestRequest_SendsTranscriptToProvider(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: goodResponse},
	}
	gen := report.NewGenerator(provider)

	_, err := gen.Request(context.Background(), interview.ID("int-1"),
		transcriptOf("How did you handle the outage?", "I rolled back within minutes."))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	calls := provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d Complete calls; want 1", len(calls))
	}
	req := calls[0].Req
	if req.SystemPrompt == "" {
		t.Error("expected a system prompt")
	}
	if len(req.Messages) != 1 {
		t.Fatalf("got %d messages; want 1", len(req.Messages))
	}
	content := req.Messages[0].Content
	if !strings.Contains(content, "I rolled back within minutes.") {
		t.Errorf("transcript text missing from prompt: %q", content)
	}
	if !strings.Contains(content, "[agent/voice]") || !strings.Contains(content, "[user/voice]") {
		t.Errorf("sender/channel labels missing from prompt: %q", content)
	}
}

func TestRequest_ToleratesCodeFences(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "```json\n" + goodResponse + "\n```",
		},
	}
	gen := report.NewGenerator(provider)

	rep, err := gen.Request(context.Background(), interview.ID("int-1"), transcriptOf("Q", "A"))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if rep.Recommendation != "hire" {
		t.Errorf("Recommendation = %q; want hire", rep.Recommendation)
	}
}

func TestRequest_WrapsProviderError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("rate limited")
	provider := &llmmock.Provider{CompleteErr: wantErr}
	gen := report.NewGenerator(provider)

	_, err := gen.Request(context.Background(), interview.ID("int-err"), transcriptOf("Q", "A"))
	if err == nil {
		t.Fatal("expected an error")
	}

	var failure *interview.ReportGenerationFailure
	if !errors.As(err, &failure) {
		t.Fatalf("error %v is not a ReportGenerationFailure", err)
	}
	if failure.InterviewID != interview.ID("int-err") {
		t.Errorf("failure carries ID %q; want int-err", failure.InterviewID)
	}
	if !errors.Is(err, wantErr) {
		t.Error("underlying provider error not wrapped")
	}
}

func TestRequest_EmptyTranscript(t *testing.T) {
	t.Parallel()

	gen := report.NewGenerator(&llmmock.Provider{})

	_, err := gen.Request(context.Background(), interview.ID("int-empty"), nil)
	var failure *interview.ReportGenerationFailure
	if !errors.As(err, &failure) {
		t.Fatalf("error %v is not a ReportGenerationFailure", err)
	}
}

func TestRequest_RejectsIncompleteResponse(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"scores": []}`},
	}
	gen := report.NewGenerator(provider)

	if _, err := gen.Request(context.Background(), interview.ID("int-1"), transcriptOf("Q", "A")); err == nil {
		t.Fatal("expected an error for a response without summary/recommendation")
	}
}
