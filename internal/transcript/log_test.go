package transcript_test

import (
	"testing"
	"time"

	"github.com/voxhire/voxhire/internal/transcript"
	"github.com/voxhire/voxhire/pkg/interview"
)

var t0 = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func TestAppend_MergesConsecutiveSameSenderAndChannel(t *testing.T) {
	t.Parallel()

	l := transcript.New()
	l.Append(interview.SenderAgent, interview.ChannelVoice, "Tell me", t0)
	l.Append(interview.SenderAgent, interview.ChannelVoice, "about your", t0.Add(time.Second))
	l.Append(interview.SenderAgent, interview.ChannelVoice, "last project.", t0.Add(2*time.Second))

	msgs := l.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages; want 1", len(msgs))
	}
	if got, want := msgs[0].Text, "Tell me about your last project."; got != want {
		t.Errorf("merged text = %q; want %q", got, want)
	}
	if !msgs[0].Timestamp.Equal(t0.Add(2 * time.Second)) {
		t.Errorf("timestamp = %v; want the newest fragment's", msgs[0].Timestamp)
	}
}

func TestAppend_SenderChangeStartsNewMessage(t *testing.T) {
	t.Parallel()

	l := transcript.New()
	l.Append(interview.SenderAgent, interview.ChannelVoice, "How are you?", t0)
	l.Append(interview.SenderUser, interview.ChannelVoice, "Good, thanks.", t0.Add(time.Second))
	l.Append(interview.SenderUser, interview.ChannelVoice, "And you?", t0.Add(2*time.Second))

	msgs := l.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages; want 2", len(msgs))
	}
	if msgs[0].Sender != interview.SenderAgent {
		t.Errorf("first sender = %q; want agent", msgs[0].Sender)
	}
	if got, want := msgs[1].Text, "Good, thanks. And you?"; got != want {
		t.Errorf("second text = %q; want %q", got, want)
	}
}

func TestAppend_ChannelChangeStartsNewMessage(t *testing.T) {
	t.Parallel()

	l := transcript.New()
	l.Append(interview.SenderUser, interview.ChannelVoice, "I said this aloud.", t0)
	l.Append(interview.SenderUser, interview.ChannelText, "And typed this.", t0.Add(time.Second))

	if got := l.Len(); got != 2 {
		t.Fatalf("got %d messages; want 2", got)
	}
}

func TestAppend_BlankFragmentsIgnored(t *testing.T) {
	t.Parallel()

	l := transcript.New()
	l.Append(interview.SenderUser, interview.ChannelVoice, "", t0)
	l.Append(interview.SenderUser, interview.ChannelVoice, "   \n\t", t0)

	if got := l.Len(); got != 0 {
		t.Errorf("got %d messages; want 0", got)
	}
}

func TestAppend_NormalizesInternalWhitespace(t *testing.T) {
	t.Parallel()

	l := transcript.New()
	l.Append(interview.SenderUser, interview.ChannelVoice, "  spaced \t out  ", t0)

	msgs := l.Messages()
	if got, want := msgs[0].Text, "spaced out"; got != want {
		t.Errorf("text = %q; want %q", got, want)
	}
}

func TestAppend_ShortRepeatsMergeNormally(t *testing.T) {
	t.Parallel()

	// Genuine repetition must survive: only utterance-sized re-sends are
	// treated as duplicates.
	l := transcript.New()
	l.Append(interview.SenderUser, interview.ChannelVoice, "yes", t0)
	l.Append(interview.SenderUser, interview.ChannelVoice, "yes", t0.Add(time.Second))

	msgs := l.Messages()
	if got, want := msgs[0].Text, "yes yes"; got != want {
		t.Errorf("text = %q; want %q", got, want)
	}
}

func TestAppend_SuppressesFinalRepeatingDeltas(t *testing.T) {
	t.Parallel()

	// Some transports stream deltas and then re-send the finalized
	// utterance in full. The re-send must not double the text.
	l := transcript.New()
	l.Append(interview.SenderAgent, interview.ChannelVoice, "Walk me through", t0)
	l.Append(interview.SenderAgent, interview.ChannelVoice, "your system design.", t0.Add(time.Second))
	l.Append(interview.SenderAgent, interview.ChannelVoice, "Walk me through your system design.", t0.Add(2*time.Second))

	msgs := l.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages; want 1", len(msgs))
	}
	if got, want := msgs[0].Text, "Walk me through your system design."; got != want {
		t.Errorf("text = %q; want %q", got, want)
	}
	if !msgs[0].Timestamp.Equal(t0.Add(2 * time.Second)) {
		t.Errorf("timestamp = %v; want updated by the duplicate", msgs[0].Timestamp)
	}
}

func TestAppend_SuppressesNearDuplicateWithCasingDrift(t *testing.T) {
	t.Parallel()

	l := transcript.New()
	l.Append(interview.SenderUser, interview.ChannelVoice, "i worked on the billing service", t0)
	l.Append(interview.SenderUser, interview.ChannelVoice, "I worked on the billing service", t0.Add(time.Second))

	msgs := l.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages; want 1", len(msgs))
	}
	if got, want := msgs[0].Text, "i worked on the billing service"; got != want {
		t.Errorf("text = %q; want %q", got, want)
	}
}

func TestMessages_ReturnsCopy(t *testing.T) {
	t.Parallel()

	l := transcript.New()
	l.Append(interview.SenderUser, interview.ChannelText, "original", t0)

	msgs := l.Messages()
	msgs[0].Text = "mutated"

	if got := l.Messages()[0].Text; got != "original" {
		t.Errorf("log text = %q; caller mutation leaked in", got)
	}
}

func TestSnapshot_CarriesStageAndMessages(t *testing.T) {
	t.Parallel()

	l := transcript.New()
	if got := l.Stage(); got != interview.StageIntro {
		t.Errorf("initial stage = %q; want intro", got)
	}

	l.SetStage(interview.StageTechnical)
	l.SetStage(interview.Stage("nonsense")) // ignored
	l.Append(interview.SenderAgent, interview.ChannelVoice, "Let's dig in.", t0)

	snap := l.Snapshot()
	if snap.Stage != interview.StageTechnical {
		t.Errorf("snapshot stage = %q; want technical", snap.Stage)
	}
	if len(snap.Messages) != 1 {
		t.Errorf("snapshot has %d messages; want 1", len(snap.Messages))
	}
	if snap.TakenAt.IsZero() {
		t.Error("snapshot TakenAt is zero")
	}
}

func TestAppend_AssignsDistinctIDs(t *testing.T) {
	t.Parallel()

	l := transcript.New()
	l.Append(interview.SenderUser, interview.ChannelVoice, "one", t0)
	l.Append(interview.SenderAgent, interview.ChannelVoice, "two", t0)

	msgs := l.Messages()
	if msgs[0].ID == msgs[1].ID {
		t.Error("distinct messages share an ID")
	}
}
