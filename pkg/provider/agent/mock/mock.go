// Package mock provides test doubles for the agent package interfaces.
//
// Use Provider to verify Connect calls and feed controlled agent sessions.
// Use Session to drive the bidirectional audio/event streams and inspect
// which methods were invoked by the session controller.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/voxhire/voxhire/pkg/provider/agent"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the SessionConfig passed to Connect.
	Cfg agent.SessionConfig
}

// Provider is a mock implementation of agent.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the Session returned by Connect. If nil, Connect returns a
	// fresh default Session for every call, mirroring the one-session-per-
	// connect contract of the real providers.
	Session agent.Session

	// Sessions, if non-empty, is consumed one entry per Connect call after
	// Session (if set) has been handed out. Lets tests script reconnects.
	Sessions []agent.Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ProviderCapabilities is returned by Capabilities.
	ProviderCapabilities agent.Capabilities

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns the next scripted session.
func (p *Provider) Connect(ctx context.Context, cfg agent.SessionConfig) (agent.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		sess := p.Session
		p.Session = nil
		return sess, nil
	}
	if len(p.Sessions) > 0 {
		sess := p.Sessions[0]
		p.Sessions = p.Sessions[1:]
		return sess, nil
	}
	return NewSession(), nil
}

// Capabilities returns ProviderCapabilities.
func (p *Provider) Capabilities() agent.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ProviderCapabilities
}

// Ensure Provider implements agent.Provider at compile time.
var _ agent.Provider = (*Provider)(nil)

// Session is a mock implementation of agent.Session. Tests feed downstream
// traffic through AudioCh and EventsCh and inspect recorded calls.
type Session struct {
	mu sync.Mutex

	// AudioCh is the channel returned by Audio(). Callers own this channel.
	AudioCh chan []byte

	// EventsCh is the channel returned by Events(). Callers own this channel.
	EventsCh chan agent.Event

	// --- Configurable errors ---

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// SendTextErr, if non-nil, is returned by every SendText call.
	SendTextErr error

	// CompleteTurnErr, if non-nil, is returned by every CompleteTurn call.
	CompleteTurnErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// ErrVal is returned by Err.
	ErrVal error

	// --- Call records ---

	// SendAudioCalls records a copy of every chunk passed to SendAudio.
	SendAudioCalls [][]byte

	// SendTextCalls records every string passed to SendText.
	SendTextCalls []string

	// CompleteTurnCount is the number of times CompleteTurn was called.
	CompleteTurnCount int

	// CloseCount is the number of times Close was called.
	CloseCount int
}

// NewSession returns a Session with buffered channels ready for scripting.
func NewSession() *Session {
	return &Session{
		AudioCh:  make(chan []byte, 64),
		EventsCh: make(chan agent.Event, 16),
	}
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, cp)
	return s.SendAudioErr
}

// SendText records the call and returns SendTextErr.
func (s *Session) SendText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendTextCalls = append(s.SendTextCalls, text)
	return s.SendTextErr
}

// CompleteTurn records the call and returns CompleteTurnErr.
func (s *Session) CompleteTurn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CompleteTurnCount++
	return s.CompleteTurnErr
}

// Audio returns AudioCh.
func (s *Session) Audio() <-chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.AudioCh
}

// Events returns EventsCh.
func (s *Session) Events() <-chan agent.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.EventsCh
}

// Err returns ErrVal.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrVal
}

// Close records the call, closes the channels on the first call, and
// returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	if s.CloseCount == 1 {
		close(s.AudioCh)
		close(s.EventsCh)
	}
	return s.CloseErr
}

// Sent returns a copy of all audio chunks recorded so far. Thread-safe.
func (s *Session) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.SendAudioCalls))
	copy(out, s.SendAudioCalls)
	return out
}

// Closes returns the number of Close calls so far. Thread-safe.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCount
}

// Turns returns the number of CompleteTurn calls so far. Thread-safe.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CompleteTurnCount
}

// Ensure Session implements agent.Session at compile time.
var _ agent.Session = (*Session)(nil)
