// Package uplink buffers captured microphone audio between the capture
// pipeline and the agent transport.
//
// Raw capture frames are much smaller than the chunks worth sending over
// the wire. The Buffer accumulates 16 kHz mono s16le PCM and flushes one
// chunk downstream when enough audio is pending (by sample count) or when
// the oldest pending audio has waited long enough. The combined chunk is
// silence-checked once more before handoff; a silent chunk is discarded.
// Flushed chunks pass through a bounded backlog so a stalled transport never
// blocks the capture goroutine: when the backlog is full the oldest audio
// chunk is dropped.
//
// The Buffer also owns turn gating: an end-of-turn signal reaches the
// transport only while a turn is active, and the flag resets once the
// signal is forwarded.
package uplink

import (
	"log/slog"
	"sync"
	"time"

	"github.com/voxhire/voxhire/pkg/audio"
)

// Defaults for the flush policy.
const (
	// DefaultFlushInterval is how long the first unflushed sample may wait
	// before a flush fires regardless of size.
	DefaultFlushInterval = 30 * time.Millisecond

	// DefaultFlushSamples flushes as soon as this many samples are pending.
	// 800 samples is 50 ms at 16 kHz.
	DefaultFlushSamples = 800

	// DefaultMaxBacklog bounds the number of flushed chunks awaiting
	// transport send.
	DefaultMaxBacklog = 32
)

// Sink receives flushed chunks and turn signals. *agent.Session
// implementations satisfy it.
type Sink interface {
	SendAudio(chunk []byte) error
	CompleteTurn() error
}

// Option is a functional option for configuring a Buffer.
type Option func(*Buffer)

// WithFlushInterval overrides the elapsed-time flush trigger.
func WithFlushInterval(d time.Duration) Option {
	return func(b *Buffer) { b.interval = d }
}

// WithFlushSamples overrides the pending-sample flush trigger.
func WithFlushSamples(n int) Option {
	return func(b *Buffer) { b.flushSamples = n }
}

// WithMaxBacklog overrides the backlog bound.
func WithMaxBacklog(n int) Option {
	return func(b *Buffer) { b.maxBacklog = n }
}

// WithSilenceThreshold overrides the silence gate applied to each combined
// chunk before handoff. Defaults to [audio.DefaultSilenceThreshold].
func WithSilenceThreshold(v float64) Option {
	return func(b *Buffer) { b.silenceThreshold = v }
}

// WithErrorHandler registers a callback for transport send failures.
// Without one, failures are logged at warn level.
func WithErrorHandler(fn func(error)) Option {
	return func(b *Buffer) { b.errHandler = fn }
}

// item is one backlog entry: either an audio chunk or an end-of-turn signal.
type item struct {
	pcm       []byte
	endOfTurn bool
}

// Buffer accumulates uplink PCM and forwards it to a Sink. All methods are
// safe for concurrent use.
type Buffer struct {
	sink             Sink
	interval         time.Duration
	flushSamples     int
	maxBacklog       int
	silenceThreshold float64
	errHandler       func(error)

	mu         sync.Mutex
	cond       *sync.Cond
	pending    []byte
	queue      []item
	turnActive bool
	closed     bool
	flushes    int64
	dropped    int64

	timer *time.Timer
	wg    sync.WaitGroup
}

// New creates a Buffer forwarding to sink and starts its sender goroutine.
// Call Close to stop it.
func New(sink Sink, opts ...Option) *Buffer {
	b := &Buffer{
		sink:             sink,
		interval:         DefaultFlushInterval,
		flushSamples:     DefaultFlushSamples,
		maxBacklog:       DefaultMaxBacklog,
		silenceThreshold: audio.DefaultSilenceThreshold,
	}
	for _, o := range opts {
		o(b)
	}
	b.cond = sync.NewCond(&b.mu)
	b.timer = time.AfterFunc(time.Hour, b.onTimer)
	b.timer.Stop()

	b.wg.Go(b.sendLoop)
	return b
}

// Append adds one frame of 16 kHz mono s16le PCM to the pending buffer.
// A flush fires immediately once the pending sample count reaches the
// threshold; otherwise the interval timer covers the remainder.
func (b *Buffer) Append(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	if len(b.pending) == 0 {
		b.timer.Reset(b.interval)
	}
	b.pending = append(b.pending, pcm...)

	if len(b.pending)/audio.BytesPerSample >= b.flushSamples {
		b.flushLocked()
	}
}

// onTimer fires when the oldest pending sample has waited a full interval.
func (b *Buffer) onTimer() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.flushLocked()
}

// Flush forces any pending residue downstream immediately, regardless of
// the flush thresholds. Used on mic stop and during finalize.
func (b *Buffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.flushLocked()
}

// flushLocked moves the pending buffer into the backlog. The combined chunk
// gets one more silence check as a whole; a silent chunk is discarded instead
// of sent. Caller holds mu.
func (b *Buffer) flushLocked() {
	if len(b.pending) == 0 {
		return
	}
	chunk := b.pending
	b.pending = nil
	b.timer.Stop()
	if audio.IsSilence(chunk, b.silenceThreshold) {
		return
	}
	b.flushes++
	b.enqueueLocked(item{pcm: chunk})
}

// SetTurnActive marks whether uplink audio since the last turn signal
// constitutes a live turn. The controller sets it when speech passes the
// silence gate.
func (b *Buffer) SetTurnActive(active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turnActive = active
}

// TurnActive reports the current turn flag.
func (b *Buffer) TurnActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.turnActive
}

// CompleteTurn forwards an end-of-turn signal if a turn is active, and
// resets the flag. The signal is ordered behind already-flushed audio.
// It reports whether a signal was actually queued.
func (b *Buffer) CompleteTurn() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || !b.turnActive {
		return false
	}
	b.turnActive = false
	b.enqueueLocked(item{endOfTurn: true})
	return true
}

// enqueueLocked appends it to the backlog, dropping the oldest audio chunk
// when full. End-of-turn signals are never dropped. Caller holds mu.
func (b *Buffer) enqueueLocked(it item) {
	if len(b.queue) >= b.maxBacklog {
		for i := range b.queue {
			if !b.queue[i].endOfTurn {
				b.queue = append(b.queue[:i], b.queue[i+1:]...)
				b.dropped++
				break
			}
		}
	}
	b.queue = append(b.queue, it)
	b.cond.Signal()
}

// sendLoop drains the backlog into the sink.
func (b *Buffer) sendLoop() {
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 && b.closed {
			b.mu.Unlock()
			return
		}
		it := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		var err error
		if it.endOfTurn {
			err = b.sink.CompleteTurn()
		} else {
			err = b.sink.SendAudio(it.pcm)
		}
		if err != nil {
			if b.errHandler != nil {
				b.errHandler(err)
			} else {
				slog.Warn("uplink: send failed", "error", err)
			}
		}
	}
}

// Flushes returns the number of chunks flushed downstream so far.
func (b *Buffer) Flushes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushes
}

// Dropped returns the number of backlog chunks dropped so far.
func (b *Buffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// PendingSamples returns the number of samples awaiting flush.
func (b *Buffer) PendingSamples() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending) / audio.BytesPerSample
}

// Close drains the backlog, stops the sender goroutine, and discards any
// unflushed residue. Callers that want the residue sent must Flush first.
// Idempotent.
func (b *Buffer) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.timer.Stop()
	b.pending = nil
	b.cond.Broadcast()
	b.mu.Unlock()

	b.wg.Wait()
}
