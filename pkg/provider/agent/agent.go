// Package agent defines the Provider interface for conversational interview
// agents.
//
// An agent provider wraps a real-time voice AI service that accepts raw
// audio input and returns synthesised audio output in a single, stateful
// duplex session — the service performs speech recognition, reasoning, and
// speech synthesis on its side. Examples include the Gemini Live API and the
// OpenAI Realtime API.
//
// The central abstraction is Session: a bidirectional, multiplexed channel
// that carries audio and conversation events concurrently. Sessions are
// long-lived (minutes) and single-use — a dropped session is never resumed,
// the caller dials a fresh one.
//
// All implementations must be safe for concurrent use.
package agent

import (
	"context"
	"time"

	"github.com/voxhire/voxhire/pkg/interview"
)

// EventKind discriminates the values emitted on [Session.Events].
type EventKind string

const (
	// EventReady signals that the provider acknowledged session setup and
	// will accept audio.
	EventReady EventKind = "ready"

	// EventTranscript carries a transcription fragment, either of the
	// candidate's speech or of the agent's spoken response.
	EventTranscript EventKind = "transcript"

	// EventInterrupted signals that the agent stopped speaking because the
	// candidate barged in. Any queued agent audio is stale.
	EventInterrupted EventKind = "interrupted"

	// EventTurnComplete signals that the agent finished its response turn.
	EventTurnComplete EventKind = "turn_complete"
)

// Event is a single conversation event from the provider.
type Event struct {
	Kind EventKind

	// Sender, Channel, Text and Timestamp are set when Kind is
	// EventTranscript. Fragments are partial: consecutive fragments from
	// the same sender belong to the same utterance.
	Sender    interview.Sender
	Channel   interview.Channel
	Text      string
	Timestamp time.Time
}

// SessionConfig is the initial configuration for a new agent session.
type SessionConfig struct {
	// InterviewID identifies the interview this session conducts.
	InterviewID interview.ID

	// Instructions is the system-level prompt: interviewer persona, job
	// description, resume context, and stage plan.
	Instructions string

	// Voice selects the synthesised voice by provider-specific ID. Empty
	// selects the provider default.
	Voice string
}

// Capabilities describes static properties of an agent provider.
// The values are assumed constant for the lifetime of the Provider instance.
type Capabilities struct {
	// ContextWindow is the maximum token count (or provider-equivalent
	// unit) the model can maintain across the session.
	ContextWindow int

	// MaxSessionDuration is the hard upper bound on session lifetime
	// imposed by the provider. Zero means no documented limit.
	MaxSessionDuration time.Duration

	// Voices lists the voice IDs available for this provider.
	Voices []string
}

// Session represents one open duplex connection to the interview agent.
// It is an interface so that test code can supply mock implementations
// without a live provider connection.
//
// The session is the hot path of the voice pipeline — every method must
// return quickly. Audio I/O is channel-based to avoid blocking the caller's
// audio goroutine. All methods must be safe for concurrent use.
//
// Callers must call Close when the session is no longer needed.
type Session interface {
	// SendAudio delivers one uplink chunk of 16 kHz mono s16le PCM. The
	// chunk is base64-encoded at the wire boundary; callers pass raw bytes.
	// Returns an error if the session is closed or the write fails.
	SendAudio(chunk []byte) error

	// SendText delivers a typed candidate message into the conversation.
	SendText(text string) error

	// CompleteTurn signals end-of-utterance so the agent starts responding.
	CompleteTurn() error

	// Audio returns a read-only channel that emits 24 kHz mono s16le PCM
	// chunks as the agent speaks. The channel is closed when the session
	// ends or a mid-stream error occurs; check [Session.Err] afterwards.
	// Consumers must drain this channel promptly to prevent backpressure
	// from stalling the receive loop.
	Audio() <-chan []byte

	// Events returns a read-only channel of conversation events. Closed
	// together with Audio when the session ends.
	Events() <-chan Event

	// Err returns the error that caused the channels to close prematurely,
	// or nil if the session ended cleanly. Errors that occur after Close
	// has been called are not recorded.
	Err() error

	// Close terminates the session and releases all resources. It closes
	// the underlying connection exactly once; calling Close again, or from
	// multiple goroutines, is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any interview agent backend.
//
// Implementations must be safe for concurrent use. Each Connect call opens
// an independent session; sessions are never shared or resumed.
type Provider interface {
	// Connect establishes a new agent session with the given configuration.
	// The returned Session is ready to accept audio as soon as it emits
	// EventReady.
	//
	// Returns an error if the session cannot be established (authentication
	// failure, invalid voice, ctx already cancelled). The caller owns the
	// Session and is responsible for calling Close.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)

	// Capabilities returns static metadata about this provider's model.
	Capabilities() Capabilities
}
