// Package app wires configuration, providers, storage, audio I/O, and the
// session controller into one runnable interview process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxhire/voxhire/internal/capture"
	"github.com/voxhire/voxhire/internal/config"
	"github.com/voxhire/voxhire/internal/health"
	"github.com/voxhire/voxhire/internal/jobs"
	"github.com/voxhire/voxhire/internal/observe"
	"github.com/voxhire/voxhire/internal/playback"
	"github.com/voxhire/voxhire/internal/report"
	"github.com/voxhire/voxhire/internal/resilience"
	"github.com/voxhire/voxhire/internal/session"
	"github.com/voxhire/voxhire/internal/store"
	"github.com/voxhire/voxhire/internal/store/postgres"
	"github.com/voxhire/voxhire/internal/uplink"
	"github.com/voxhire/voxhire/pkg/interview"
	"github.com/voxhire/voxhire/pkg/provider/agent"
	"github.com/voxhire/voxhire/pkg/provider/embeddings"
	"github.com/voxhire/voxhire/pkg/provider/llm"
)

// errSessionEnded signals a clean remote disconnect through the errgroup so
// the other loops stop too.
var errSessionEnded = errors.New("session ended")

// stateCheckInterval is how often Run polls the controller state to detect a
// terminal session.
const stateCheckInterval = 250 * time.Millisecond

// Providers holds the concrete provider implementations selected from
// configuration.
type Providers struct {
	// Agent is the realtime voice agent backend. Required.
	Agent agent.Provider

	// LLM generates the post-interview report. Optional; without it no
	// report is produced.
	LLM llm.Provider

	// Embeddings indexes persisted transcripts for semantic search.
	// Optional.
	Embeddings embeddings.Provider
}

// App owns the full lifecycle of one interview: storage, audio in and out,
// the session controller, and the observability HTTP surface.
type App struct {
	cfg       *config.Config
	providers *Providers

	store      store.TranscriptStore
	closeStore func()
	platform   *jobs.Client

	sink    playback.Sink
	queue   *playback.Queue
	capture capture.Source
	ctrl    *session.Controller

	metrics *observe.Metrics
	httpSrv *http.Server

	snapshotInterval time.Duration
}

// Option is a functional option for configuring an App.
type Option func(*App)

// WithTranscriptStore overrides the store selected from configuration.
func WithTranscriptStore(s store.TranscriptStore) Option {
	return func(a *App) { a.store = s }
}

// WithCaptureSource overrides the microphone source selected from
// configuration.
func WithCaptureSource(src capture.Source) Option {
	return func(a *App) { a.capture = src }
}

// WithPlaybackSink overrides the speaker the playback queue drains into.
func WithPlaybackSink(s playback.Sink) Option {
	return func(a *App) { a.sink = s }
}

// New builds an App from cfg and the given providers. It connects to storage
// and opens the audio devices but does not dial the agent; that happens in
// [App.Run].
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Agent == nil {
		return nil, fmt.Errorf("app: agent provider is required")
	}

	a := &App{
		cfg:              cfg,
		providers:        providers,
		metrics:          observe.DefaultMetrics(),
		snapshotInterval: cfg.Storage.SnapshotInterval,
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initStore(ctx); err != nil {
		return nil, err
	}
	if err := a.initPlatform(); err != nil {
		return nil, err
	}
	if err := a.initAudio(); err != nil {
		return nil, err
	}

	instructions := a.buildInstructions(ctx)

	sessCfg := session.Config{
		InterviewID:  interview.ID(cfg.Interview.ID),
		Instructions: instructions,
		Voice:        cfg.Providers.Agent.Voice,
		Provider:     providers.Agent,
		Playback:     a.queue,
		Capture:      a.capture,
		Store:        a.store,
	}
	if providers.LLM != nil {
		// The breaker keeps a flaky LLM backend from stalling finalization
		// with repeated doomed report attempts.
		guarded := resilience.NewLLMFallback(providers.LLM, cfg.Providers.LLM.Name, resilience.FallbackConfig{})
		sessCfg.Reports = report.NewGenerator(guarded)
	}
	if a.platform != nil {
		sessCfg.Platform = a.platform
	}

	ctrl, err := session.NewController(sessCfg, a.sessionOptions()...)
	if err != nil {
		a.closeAudio()
		if a.closeStore != nil {
			a.closeStore()
		}
		return nil, fmt.Errorf("app: build session controller: %w", err)
	}
	a.ctrl = ctrl

	if cfg.Server.ListenAddr != "" {
		a.httpSrv = a.buildHTTPServer(cfg.Server.ListenAddr)
	}

	return a, nil
}

// Controller exposes the session controller, mainly for tests and for
// interactive frontends layered on top of the app.
func (a *App) Controller() *session.Controller { return a.ctrl }

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	if dsn := a.cfg.Storage.PostgresDSN; dsn != "" {
		var opts []postgres.Option
		if a.providers.Embeddings != nil {
			opts = append(opts, postgres.WithEmbedder(a.providers.Embeddings))
		}
		pg, err := postgres.New(ctx, dsn, opts...)
		if err != nil {
			return fmt.Errorf("app: connect transcript store: %w", err)
		}
		a.store = pg
		a.closeStore = pg.Close
		slog.Info("transcript store ready", "backend", "postgres",
			"semantic_search", a.providers.Embeddings != nil)
		return nil
	}
	a.store = store.NewMemory()
	slog.Warn("no postgres dsn configured, transcripts are kept in memory only")
	return nil
}

func (a *App) initPlatform() error {
	if a.cfg.Platform.BaseURL == "" {
		slog.Warn("no platform base url configured, reports will not be submitted")
		return nil
	}
	client, err := jobs.New(a.cfg.Platform.BaseURL, jobs.WithAPIKey(a.cfg.Platform.APIKey))
	if err != nil {
		return fmt.Errorf("app: platform client: %w", err)
	}
	a.platform = client
	return nil
}

func (a *App) initAudio() error {
	if a.sink == nil {
		speaker, err := playback.NewSpeaker()
		if err != nil {
			return fmt.Errorf("app: open speaker: %w", err)
		}
		a.sink = speaker
	}
	a.queue = playback.NewQueue(a.sink)

	if a.capture == nil {
		var opts []capture.Option
		if a.cfg.Audio.Device != "" {
			opts = append(opts, capture.WithDevice(a.cfg.Audio.Device))
		}
		a.capture = capture.NewFFmpegSource(opts...)
	}
	return nil
}

func (a *App) closeAudio() {
	if a.queue != nil {
		a.queue.Close()
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			slog.Warn("speaker close error", "err", err)
		}
	}
}

// sessionOptions translates the audio tuning config into controller options.
func (a *App) sessionOptions() []session.Option {
	var opts []session.Option
	if a.cfg.Audio.SilenceThreshold > 0 {
		opts = append(opts, session.WithSilenceThreshold(a.cfg.Audio.SilenceThreshold))
	}

	var uopts []uplink.Option
	if a.cfg.Audio.FlushInterval > 0 {
		uopts = append(uopts, uplink.WithFlushInterval(a.cfg.Audio.FlushInterval))
	}
	if a.cfg.Audio.FlushSamples > 0 {
		uopts = append(uopts, uplink.WithFlushSamples(a.cfg.Audio.FlushSamples))
	}
	if a.cfg.Audio.MaxBacklog > 0 {
		uopts = append(uopts, uplink.WithMaxBacklog(a.cfg.Audio.MaxBacklog))
	}
	if len(uopts) > 0 {
		opts = append(opts, session.WithUplinkOptions(uopts...))
	}
	return opts
}

// buildInstructions assembles the agent system instructions from the
// interview context fetched off the hiring platform. Platform failures
// degrade to a generic interviewer prompt; the interview can still run.
func (a *App) buildInstructions(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("You are a professional job interviewer conducting a live voice interview. ")
	b.WriteString("Ask one question at a time, follow up on vague answers, and keep the conversation on track. ")
	b.WriteString("Be courteous but probing.")

	if a.platform == nil {
		return b.String()
	}

	if jobID := a.cfg.Interview.JobID; jobID != "" {
		job, err := a.platform.GetJob(ctx, jobID)
		if err != nil {
			slog.Warn("job posting unavailable, interviewing without it", "job_id", jobID, "err", err)
		} else {
			fmt.Fprintf(&b, "\n\nThe position: %s (%s).\n%s", job.Title, job.Seniority, job.Description)
			if len(job.Competencies) > 0 {
				fmt.Fprintf(&b, "\nAssess these competencies: %s.", strings.Join(job.Competencies, ", "))
			}
		}
	}

	if candID := a.cfg.Interview.CandidateID; candID != "" {
		resume, err := a.platform.GetResume(ctx, candID)
		if err != nil {
			slog.Warn("resume unavailable, interviewing without it", "candidate_id", candID, "err", err)
		} else {
			fmt.Fprintf(&b, "\n\nThe candidate: %s.\n%s", resume.CandidateName, resume.Summary)
			if resume.Text != "" {
				fmt.Fprintf(&b, "\n\nResume:\n%s", resume.Text)
			}
		}
	}

	return b.String()
}

// buildHTTPServer assembles the observability surface: /metrics, /healthz,
// /readyz, and transcript search when the store supports it, all wrapped in
// the request-duration middleware.
func (a *App) buildHTTPServer(addr string) *http.Server {
	checkers := []health.Checker{
		{Name: "session", Check: func(ctx context.Context) error {
			if a.ctrl.State() == session.StateError {
				return errors.New("session is in error state")
			}
			return nil
		}},
	}
	if pinger, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		checkers = append(checkers, health.Checker{Name: "database", Check: pinger.Ping})
	}

	mux := http.NewServeMux()
	health.New(checkers).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	if searcher, ok := a.store.(store.Searcher); ok {
		mux.Handle("GET /v1/transcripts/search", searchHandler(searcher))
	}

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Run connects to the agent, turns the microphone on, and blocks until the
// session ends or ctx is cancelled. A clean remote disconnect returns nil; a
// transport failure returns an error. Run does not finalize the interview;
// call [App.Shutdown] afterwards in every case.
func (a *App) Run(ctx context.Context) error {
	if err := a.ctrl.Connect(ctx); err != nil {
		return fmt.Errorf("app: connect: %w", err)
	}

	if _, err := a.ctrl.ToggleMic(ctx); err != nil {
		// Text-only interviews still work, so a dead microphone is not fatal.
		slog.Warn("microphone unavailable, continuing without audio input", "err", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.httpSrv != nil {
		g.Go(func() error {
			slog.Info("observability endpoint listening", "addr", a.httpSrv.Addr)
			if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.httpSrv.Shutdown(shutdownCtx)
		})
	}

	if a.snapshotInterval > 0 {
		g.Go(func() error { return a.snapshotLoop(ctx) })
	}
	g.Go(func() error { return a.watchSession(ctx) })

	err := g.Wait()
	if errors.Is(err, errSessionEnded) {
		return nil
	}
	return err
}

// snapshotLoop periodically persists the transcript so a crash loses at most
// one interval of conversation. Only started when a snapshot interval is
// configured; the final snapshot on Shutdown is written regardless.
func (a *App) snapshotLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		log := a.ctrl.Transcript()
		if log.Len() == 0 {
			continue
		}

		pctx, span := observe.StartSpan(ctx, "transcript.snapshot")
		start := time.Now()
		err := a.store.Persist(pctx, interview.ID(a.cfg.Interview.ID), log.Snapshot(), interview.SnapshotPeriodic)
		a.metrics.PersistDuration.Record(pctx, time.Since(start).Seconds())
		span.End()
		if err != nil {
			slog.Warn("periodic snapshot failed", "err", err)
		}
	}
}

// pipelineStats remembers the last observed audio pipeline counters so the
// watch loop can emit deltas instead of re-counting totals.
type pipelineStats struct {
	flushes int64
	dropped int64
	depth   int
}

// recordPipelineStats publishes uplink and playback activity since the last
// call to the metrics instruments.
func (a *App) recordPipelineStats(ctx context.Context, s *pipelineStats) {
	buf := a.ctrl.Uplink()
	if f := buf.Flushes(); f > s.flushes {
		a.metrics.UplinkFlushes.Add(ctx, f-s.flushes)
		s.flushes = f
	}
	if d := buf.Dropped(); d > s.dropped {
		a.metrics.UplinkDropped.Add(ctx, d-s.dropped)
		s.dropped = d
	}
	if depth := a.queue.Depth(); depth != s.depth {
		a.metrics.PlaybackQueueDepth.Add(ctx, int64(depth-s.depth))
		s.depth = depth
	}
}

// watchSession polls the controller until the session reaches a terminal
// state. It also feeds the state-transition metric and the audio pipeline
// counters.
func (a *App) watchSession(ctx context.Context) error {
	ticker := time.NewTicker(stateCheckInterval)
	defer ticker.Stop()

	var stats pipelineStats
	last := a.ctrl.State()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		a.recordPipelineStats(ctx, &stats)

		state := a.ctrl.State()
		if state != last {
			a.metrics.RecordStateTransition(ctx, string(state))
			last = state
		}

		switch state {
		case session.StateError:
			return fmt.Errorf("app: session failed")
		case session.StateDisconnected:
			return errSessionEnded
		}
	}
}

// Shutdown finalizes the interview and releases storage and audio resources.
// Safe to call after Run returned for any reason, including a cancelled ctx.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.ctrl.Finalize(ctx, interview.FinalizeSystem); err != nil {
		errs = append(errs, fmt.Errorf("app: finalize: %w", err))
	}

	a.closeAudio()

	if a.closeStore != nil {
		a.closeStore()
	}

	return errors.Join(errs...)
}

// ApplyConfigUpdate reacts to a hot-reloaded configuration. Only fields that
// can change without a restart are applied; everything else takes effect on
// the next start.
func (a *App) ApplyConfigUpdate(diff config.ConfigDiff, level *slog.LevelVar) {
	if diff.LogLevelChanged && level != nil {
		level.Set(observe.ParseLevel(string(diff.NewLogLevel)))
		slog.Info("log level updated", "level", diff.NewLogLevel)
	}
	if diff.AudioChanged {
		slog.Info("audio tuning changed, applies to the next session",
			"silence_threshold", diff.NewAudio.SilenceThreshold)
	}
	if diff.SnapshotIntervalChanged {
		slog.Info("snapshot interval changed, applies on restart")
	}
}
