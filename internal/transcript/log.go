// Package transcript aggregates conversation transcripts for an interview
// session.
//
// Transcript text arrives as a stream of fragments: voice transcription
// deltas from the agent transport, finalized utterances, and text messages
// typed by the candidate. The Log folds consecutive fragments from the same
// sender and channel into a single chat message so the conversation reads
// as complete utterances, and suppresses the near-duplicate re-sends some
// transports emit when a finalized transcript repeats its own deltas.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"

	"github.com/voxhire/voxhire/pkg/interview"
)

// duplicateThreshold is the Jaro-Winkler similarity above which an incoming
// fragment is treated as a re-send of text already in the log.
const duplicateThreshold = 0.96

// duplicateMinLen guards the duplicate check: short fragments repeat
// legitimately ("yes", "okay"), so only utterance-sized fragments are
// candidates for suppression.
const duplicateMinLen = 12

// Snapshot is a point-in-time copy of the log, suitable for persistence.
type Snapshot struct {
	Stage    interview.Stage
	Messages []interview.ChatMessage
	TakenAt  time.Time
}

// Log is an append-only transcript aggregator. All methods are safe for
// concurrent use.
type Log struct {
	mu    sync.Mutex
	msgs  []interview.ChatMessage
	stage interview.Stage
}

// New returns an empty Log starting in the intro stage.
func New() *Log {
	return &Log{stage: interview.StageIntro}
}

// SetStage records the interview stage snapshots are tagged with. Invalid
// stages are ignored.
func (l *Log) SetStage(stage interview.Stage) {
	if !stage.IsValid() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stage = stage
}

// Stage returns the current interview stage.
func (l *Log) Stage() interview.Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stage
}

// Append folds one transcript fragment into the log. A fragment whose
// sender and channel match the newest message extends that message, joined
// with a single space, and moves its timestamp forward; any other fragment
// starts a new message. Blank fragments and near-duplicates of text already
// logged are dropped.
func (l *Log) Append(sender interview.Sender, channel interview.Channel, text string, at time.Time) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.msgs) > 0 {
		last := &l.msgs[len(l.msgs)-1]
		if last.Sender == sender && last.Channel == channel {
			if isDuplicate(last.Text, text) {
				last.Timestamp = at
				return
			}
			last.Text = last.Text + " " + text
			last.Timestamp = at
			return
		}
	}

	l.msgs = append(l.msgs, interview.ChatMessage{
		ID:        uuid.New(),
		Sender:    sender,
		Channel:   channel,
		Text:      text,
		Timestamp: at,
	})
}

// isDuplicate reports whether fragment repeats the tail of existing. Exact
// suffix matches catch finalized transcripts that restate their own deltas;
// Jaro-Winkler catches the same re-sends with minor punctuation or casing
// drift.
func isDuplicate(existing, fragment string) bool {
	if len(fragment) < duplicateMinLen {
		return false
	}
	if strings.HasSuffix(existing, fragment) {
		return true
	}
	tail := existing
	if len(tail) > len(fragment) {
		tail = tail[len(tail)-len(fragment):]
	}
	return matchr.JaroWinkler(strings.ToLower(tail), strings.ToLower(fragment), false) >= duplicateThreshold
}

// Messages returns a copy of the aggregated messages in order.
func (l *Log) Messages() []interview.ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]interview.ChatMessage, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// Len returns the number of aggregated messages.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}

// Snapshot returns a point-in-time copy of the log tagged with the current
// stage.
func (l *Log) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs := make([]interview.ChatMessage, len(l.msgs))
	copy(msgs, l.msgs)
	return Snapshot{
		Stage:    l.stage,
		Messages: msgs,
		TakenAt:  time.Now(),
	}
}
