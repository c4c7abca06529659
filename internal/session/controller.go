// Package session orchestrates one live interview: it owns the agent
// connection lifecycle and wires microphone capture, the uplink buffer,
// agent playback, and the transcript log together. On finalization it
// persists the transcript and hands the report pipeline its input.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxhire/voxhire/internal/capture"
	"github.com/voxhire/voxhire/internal/observe"
	"github.com/voxhire/voxhire/internal/playback"
	"github.com/voxhire/voxhire/internal/report"
	"github.com/voxhire/voxhire/internal/store"
	"github.com/voxhire/voxhire/internal/transcript"
	"github.com/voxhire/voxhire/internal/uplink"
	"github.com/voxhire/voxhire/pkg/audio"
	"github.com/voxhire/voxhire/pkg/interview"
	"github.com/voxhire/voxhire/pkg/provider/agent"
)

// State is the connection state of an interview session.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
)

// ReportSubmitter delivers finished reports to the hiring platform.
// Satisfied by jobs.Client.
type ReportSubmitter interface {
	SubmitReport(ctx context.Context, id interview.ID, rep *report.Report) error
}

// Config holds the dependencies of a Controller.
type Config struct {
	// InterviewID identifies the interview this controller conducts.
	InterviewID interview.ID

	// Instructions is the system-level prompt handed to the agent provider
	// on every Connect: persona, job description, resume context.
	Instructions string

	// Voice selects the agent voice by provider-specific ID.
	Voice string

	// Provider dials agent sessions. Required.
	Provider agent.Provider

	// Playback receives agent audio. Required.
	Playback *playback.Queue

	// Capture is the microphone source. Optional; without it ToggleMic
	// returns an error.
	Capture capture.Source

	// Store persists transcript snapshots. Optional.
	Store store.TranscriptStore

	// Reports generates the hiring report on finalization. Optional.
	Reports *report.Generator

	// Platform receives the generated report. Optional.
	Platform ReportSubmitter
}

// Option is a functional option for configuring a Controller.
type Option func(*Controller)

// WithSilenceThreshold overrides the peak-amplitude level at or below which
// a captured frame is discarded instead of buffered.
func WithSilenceThreshold(v float64) Option {
	return func(c *Controller) { c.silenceThreshold = v }
}

// WithUplinkOptions passes options through to the uplink buffer.
func WithUplinkOptions(opts ...uplink.Option) Option {
	return func(c *Controller) { c.uplinkOpts = opts }
}

// WithMetrics overrides the metrics instance transport failures and report
// latency are recorded on. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller runs one interview session. All exported methods are safe for
// concurrent use.
//
// The connection lifecycle is Idle → Connecting → Connected →
// {Disconnected, Error}. A dropped session is never redialed automatically;
// the caller decides whether to Connect again, and every Connect opens a
// fresh agent session.
type Controller struct {
	cfg              Config
	silenceThreshold float64
	uplinkOpts       []uplink.Option
	metrics          *observe.Metrics

	transcript *transcript.Log
	buffer     *uplink.Buffer

	mu          sync.Mutex
	state       State
	sess        agent.Session
	micOn       bool
	tearingDown bool
	finalized   bool

	pumpWG sync.WaitGroup
	micWG  sync.WaitGroup
}

// NewController creates a Controller in the Idle state.
func NewController(cfg Config, opts ...Option) (*Controller, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("session: agent provider is required")
	}
	if cfg.Playback == nil {
		return nil, fmt.Errorf("session: playback queue is required")
	}
	if cfg.InterviewID == "" {
		return nil, fmt.Errorf("session: interview ID is required")
	}

	c := &Controller{
		cfg:              cfg,
		silenceThreshold: audio.DefaultSilenceThreshold,
		metrics:          observe.DefaultMetrics(),
		transcript:       transcript.New(),
		state:            StateIdle,
	}
	for _, o := range opts {
		o(c)
	}

	bufOpts := append([]uplink.Option{
		uplink.WithErrorHandler(c.handleTransportError),
		uplink.WithSilenceThreshold(c.silenceThreshold),
	}, c.uplinkOpts...)
	c.buffer = uplink.New(agentSink{c}, bufOpts...)
	return c, nil
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// MicOn reports whether microphone capture is running.
func (c *Controller) MicOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.micOn
}

// Transcript returns the live transcript log.
func (c *Controller) Transcript() *transcript.Log { return c.transcript }

// SetStage records the interview stage that snapshots persisted from here on
// are tagged with.
func (c *Controller) SetStage(stage interview.Stage) { c.transcript.SetStage(stage) }

// Uplink returns the uplink buffer, for stats reporting.
func (c *Controller) Uplink() *uplink.Buffer { return c.buffer }

// ── Connection lifecycle ──

// Connect dials a new agent session and starts the audio and event pumps.
// Allowed from Idle, Disconnected, and Error; each call opens a fresh
// session, there is no resumption.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.finalized {
		c.mu.Unlock()
		return fmt.Errorf("session: interview %s is finalized", c.cfg.InterviewID)
	}
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return fmt.Errorf("session: already %s", c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	sess, err := c.cfg.Provider.Connect(ctx, agent.SessionConfig{
		InterviewID:  c.cfg.InterviewID,
		Instructions: c.cfg.Instructions,
		Voice:        c.cfg.Voice,
	})
	if err != nil {
		c.mu.Lock()
		c.state = StateError
		c.mu.Unlock()
		return &interview.TransportError{Op: "dial", Err: err}
	}

	c.mu.Lock()
	c.sess = sess
	c.state = StateConnected
	c.tearingDown = false
	c.mu.Unlock()

	c.pumpWG.Go(func() { c.pumpAudio(sess) })
	c.pumpWG.Go(func() { c.pumpEvents(sess) })

	slog.Info("interview session connected", "interview_id", c.cfg.InterviewID)
	return nil
}

// pumpAudio moves agent speech into the playback queue until the session's
// audio channel closes.
func (c *Controller) pumpAudio(sess agent.Session) {
	for chunk := range sess.Audio() {
		c.cfg.Playback.Enqueue(chunk)
	}
}

// pumpEvents consumes conversation events until the session ends, then
// resolves the terminal state.
func (c *Controller) pumpEvents(sess agent.Session) {
	for ev := range sess.Events() {
		switch ev.Kind {
		case agent.EventReady:
			slog.Debug("agent session ready", "interview_id", c.cfg.InterviewID)
		case agent.EventTranscript:
			at := ev.Timestamp
			if at.IsZero() {
				at = time.Now()
			}
			c.transcript.Append(ev.Sender, ev.Channel, ev.Text, at)
		case agent.EventInterrupted:
			// Queued agent audio belongs to the interrupted response.
			c.cfg.Playback.Clear()
			slog.Debug("agent interrupted", "interview_id", c.cfg.InterviewID)
		case agent.EventTurnComplete:
			slog.Debug("agent turn complete", "interview_id", c.cfg.InterviewID)
		}
	}
	c.sessionEnded(sess)
}

// sessionEnded resolves the state after a session's channels closed.
func (c *Controller) sessionEnded(sess agent.Session) {
	err := sess.Err()

	c.mu.Lock()
	if c.sess != sess {
		// Superseded by Finalize or a fatal error; nothing to resolve.
		c.mu.Unlock()
		if err != nil {
			slog.Debug("transport closed during teardown",
				"interview_id", c.cfg.InterviewID,
				"err", fmt.Errorf("%w: %v", interview.ErrTeardownRace, err))
		}
		return
	}
	c.sess = nil
	tearing := c.tearingDown
	if !tearing {
		if err != nil {
			c.state = StateError
		} else {
			c.state = StateDisconnected
		}
	}
	c.mu.Unlock()

	c.cfg.Playback.Clear()

	switch {
	case tearing:
		if err != nil {
			slog.Debug("transport closed during teardown",
				"interview_id", c.cfg.InterviewID,
				"err", fmt.Errorf("%w: %v", interview.ErrTeardownRace, err))
		}
	case err != nil:
		slog.Error("agent session failed", "interview_id", c.cfg.InterviewID, "err", err)
	default:
		slog.Info("agent session ended", "interview_id", c.cfg.InterviewID)
	}
}

// ── Microphone ──

// ToggleMic flips microphone capture and returns the new mic state.
//
// Turning the mic on requires a connected session. Turning it off forces a
// flush of any buffered residue and, if the candidate spoke since the last
// end-of-turn, signals turn completion to the agent.
func (c *Controller) ToggleMic(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.micOn {
		c.micOn = false
		c.mu.Unlock()
		return false, c.stopMic()
	}

	if c.state != StateConnected {
		state := c.state
		c.mu.Unlock()
		return false, fmt.Errorf("session: cannot start mic while %s", state)
	}
	if c.cfg.Capture == nil {
		c.mu.Unlock()
		return false, fmt.Errorf("session: no capture source configured")
	}
	c.mu.Unlock()

	frames, err := c.cfg.Capture.Start(ctx)
	if err != nil {
		if errors.Is(err, interview.ErrPermissionDenied) {
			return false, err
		}
		return false, fmt.Errorf("session: start capture: %w", err)
	}

	c.mu.Lock()
	c.micOn = true
	c.mu.Unlock()

	c.micWG.Go(func() { c.pumpMic(frames) })
	slog.Info("microphone on", "interview_id", c.cfg.InterviewID)
	return true, nil
}

// stopMic stops capture and drains the remaining audio to the agent.
func (c *Controller) stopMic() error {
	err := c.cfg.Capture.Stop()
	c.micWG.Wait()

	c.buffer.Flush()
	c.buffer.CompleteTurn()

	slog.Info("microphone off", "interview_id", c.cfg.InterviewID)
	return err
}

// pumpMic feeds captured frames through the silence gate into the uplink
// buffer. Silent frames are discarded so dead air never reaches the agent;
// the first voiced frame marks the candidate's turn as active.
func (c *Controller) pumpMic(frames <-chan audio.Frame) {
	for frame := range frames {
		if audio.IsSilence(frame.Data, c.silenceThreshold) {
			continue
		}
		c.buffer.SetTurnActive(true)
		c.buffer.Append(frame.Data)
	}

	if err := c.cfg.Capture.Err(); err != nil {
		// Capture died underneath us: treat it like a mic stop so buffered
		// speech still reaches the agent.
		c.mu.Lock()
		wasOn := c.micOn
		c.micOn = false
		c.mu.Unlock()
		if wasOn {
			c.buffer.Flush()
			c.buffer.CompleteTurn()
		}
		slog.Warn("microphone capture failed", "interview_id", c.cfg.InterviewID, "err", err)
	}
}

// ── Text input ──

// SendText delivers a typed candidate message. The message is echoed into
// the transcript before the send so the UI reflects it immediately; on a
// send failure the echo stays and the transport error is surfaced.
func (c *Controller) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != StateConnected {
		return fmt.Errorf("session: cannot send text while %s", state)
	}

	c.transcript.Append(interview.SenderUser, interview.ChannelText, text, time.Now())

	if err := c.deliver("send text", func(s agent.Session) error { return s.SendText(text) }); err != nil {
		c.handleTransportError(err)
		return err
	}
	return nil
}

// ── Finalization ──

// Finalize ends the interview: it stops capture, flushes buffered audio to
// the agent, signals end-of-turn if one is open, closes the session, and
// persists the final transcript. It then requests the hiring report and
// submits it to the platform; report failures are logged and never fail the
// finalize. Finalize is idempotent — repeat calls return nil without
// re-running any step.
func (c *Controller) Finalize(ctx context.Context, reason interview.FinalizeReason) error {
	c.mu.Lock()
	if c.finalized {
		c.mu.Unlock()
		return nil
	}
	c.finalized = true
	c.tearingDown = true
	micWasOn := c.micOn
	c.micOn = false
	c.mu.Unlock()

	ctx, span := observe.StartSpan(ctx, "session.finalize")
	defer span.End()

	observe.Logger(ctx).Info("finalizing interview", "interview_id", c.cfg.InterviewID, "reason", reason)

	if micWasOn {
		if err := c.cfg.Capture.Stop(); err != nil {
			slog.Warn("stop capture during finalize", "interview_id", c.cfg.InterviewID, "err", err)
		}
		c.micWG.Wait()
	}

	// Drain the uplink before the connection goes away: one forced flush of
	// buffered residue, the gated end-of-turn, then wait for delivery.
	c.buffer.Flush()
	c.buffer.CompleteTurn()
	c.buffer.Close()

	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	if c.state != StateError {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			slog.Debug("session close during finalize",
				"interview_id", c.cfg.InterviewID,
				"err", fmt.Errorf("%w: %v", interview.ErrTeardownRace, err))
		}
	}
	c.pumpWG.Wait()
	c.cfg.Playback.Clear()

	var persistErr error
	if c.cfg.Store != nil {
		snap := c.transcript.Snapshot()
		start := time.Now()
		err := c.cfg.Store.Persist(ctx, c.cfg.InterviewID, snap, interview.SnapshotFinal)
		c.metrics.PersistDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			persistErr = fmt.Errorf("session: persist final transcript: %w", err)
			observe.Logger(ctx).Error("persist final transcript", "interview_id", c.cfg.InterviewID, "err", err)
		}
	}

	c.generateReport(ctx)
	return persistErr
}

// generateReport runs the report pipeline best-effort. The transcript is
// already persisted at this point, so a missing report never invalidates
// the interview.
func (c *Controller) generateReport(ctx context.Context) {
	if c.cfg.Reports == nil {
		return
	}

	ctx, span := observe.StartSpan(ctx, "report.generate")
	defer span.End()

	start := time.Now()
	rep, err := c.cfg.Reports.Request(ctx, c.cfg.InterviewID, c.transcript.Messages())
	c.metrics.ReportDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.Logger(ctx).Warn("report generation failed", "interview_id", c.cfg.InterviewID, "err", err)
		return
	}
	if c.cfg.Platform == nil {
		return
	}
	if err := c.cfg.Platform.SubmitReport(ctx, c.cfg.InterviewID, rep); err != nil {
		observe.Logger(ctx).Warn("report submission failed", "interview_id", c.cfg.InterviewID, "err", err)
		return
	}
	observe.Logger(ctx).Info("report submitted", "interview_id", c.cfg.InterviewID, "recommendation", rep.Recommendation)
}

// ── Transport plumbing ──

// deliver runs fn against the current session. Failures inside a teardown
// window come back as interview.ErrTeardownRace; everything else is a
// *interview.TransportError.
func (c *Controller) deliver(op string, fn func(agent.Session) error) error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()

	if sess == nil {
		return fmt.Errorf("session: %s: %w", op, interview.ErrTeardownRace)
	}
	if err := fn(sess); err != nil {
		c.mu.Lock()
		tearing := c.tearingDown
		c.mu.Unlock()
		if tearing {
			return fmt.Errorf("session: %s: %w: %v", op, interview.ErrTeardownRace, err)
		}
		return &interview.TransportError{Op: op, Err: err}
	}
	return nil
}

// handleTransportError routes a delivery failure: teardown races are
// expected noise, anything else kills the session.
func (c *Controller) handleTransportError(err error) {
	if errors.Is(err, interview.ErrTeardownRace) {
		slog.Debug("transport error during teardown", "interview_id", c.cfg.InterviewID, "err", err)
		return
	}
	c.fail(err)
}

// fail moves the session into the Error state, clears pending agent audio,
// and closes the connection. No-op when already failed or tearing down.
func (c *Controller) fail(err error) {
	c.mu.Lock()
	if c.tearingDown || c.state == StateError {
		c.mu.Unlock()
		slog.Debug("transport error after teardown began", "interview_id", c.cfg.InterviewID, "err", err)
		return
	}
	c.state = StateError
	c.tearingDown = true
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()

	c.cfg.Playback.Clear()
	if sess != nil {
		_ = sess.Close()
	}

	op := "session"
	var terr *interview.TransportError
	if errors.As(err, &terr) {
		op = terr.Op
	}
	c.metrics.RecordTransportError(context.Background(), op)
	slog.Error("interview session failed", "interview_id", c.cfg.InterviewID, "err", err)
}

// agentSink adapts the controller's current session to the uplink buffer's
// sink, so the buffer survives across reconnects.
type agentSink struct{ c *Controller }

func (s agentSink) SendAudio(chunk []byte) error {
	return s.c.deliver("send audio", func(sess agent.Session) error { return sess.SendAudio(chunk) })
}

func (s agentSink) CompleteTurn() error {
	return s.c.deliver("complete turn", func(sess agent.Session) error { return sess.CompleteTurn() })
}

var _ uplink.Sink = agentSink{}
