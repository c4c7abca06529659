// Package playback plays agent audio chunks strictly in arrival order.
//
// Downstream audio arrives as discrete PCM chunks on the transport's audio
// channel. The Queue hands them to a Sink one at a time, so two chunks can
// never sound at once, and supports clearing everything (pending chunks and
// the one currently sounding) when the agent is interrupted or the session
// ends.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Sink plays a single PCM chunk. Play blocks until the chunk has been
// consumed or ctx is cancelled; on cancellation it discards whatever
// remains of the chunk.
type Sink interface {
	Play(ctx context.Context, pcm []byte) error
	Close() error
}

// Option is a functional option for configuring a Queue.
type Option func(*Queue)

// WithErrorHandler registers a callback for sink failures. Without one,
// failures are logged at warn level. Cancellations are never reported.
func WithErrorHandler(fn func(error)) Option {
	return func(q *Queue) { q.errHandler = fn }
}

// Queue is a FIFO of PCM chunks drained by a single playback goroutine.
// All methods are safe for concurrent use.
type Queue struct {
	sink       Sink
	errHandler func(error)

	mu            sync.Mutex
	cond          *sync.Cond
	items         [][]byte
	closed        bool
	cancelCurrent context.CancelFunc

	wg sync.WaitGroup
}

// NewQueue creates a Queue draining into sink and starts its playback
// goroutine. The Queue does not own the sink; close it separately.
func NewQueue(sink Sink, opts ...Option) *Queue {
	q := &Queue{sink: sink}
	for _, o := range opts {
		o(q)
	}
	q.cond = sync.NewCond(&q.mu)
	q.wg.Go(q.playLoop)
	return q
}

// Enqueue appends one chunk to the queue. Chunks play in Enqueue order.
func (q *Queue) Enqueue(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, pcm)
	q.cond.Signal()
}

// Clear drops all pending chunks and interrupts the chunk currently
// playing, if any.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	cancel := q.cancelCurrent
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Depth returns the number of chunks waiting to play. It does not count a
// chunk already handed to the sink.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// playLoop hands chunks to the sink one at a time.
func (q *Queue) playLoop() {
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		chunk := q.items[0]
		q.items = q.items[1:]

		ctx, cancel := context.WithCancel(context.Background())
		q.cancelCurrent = cancel
		q.mu.Unlock()

		err := q.sink.Play(ctx, chunk)

		q.mu.Lock()
		q.cancelCurrent = nil
		q.mu.Unlock()
		cancel()

		if err != nil && !errors.Is(err, context.Canceled) {
			if q.errHandler != nil {
				q.errHandler(err)
			} else {
				slog.Warn("playback: sink failed", "error", err)
			}
		}
	}
}

// Close discards pending chunks, interrupts current playback, and stops
// the playback goroutine. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.items = nil
	cancel := q.cancelCurrent
	q.cond.Broadcast()
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
}
