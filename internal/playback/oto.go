package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/voxhire/voxhire/pkg/audio"
)

// Speaker plays 24 kHz mono s16le PCM through the default output device.
// It satisfies Sink: the oto player pulls bytes from the Speaker's buffer
// via Read, and Play blocks until the buffer it filled has drained.
type Speaker struct {
	otoCtx *oto.Context
	player *oto.Player

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

// NewSpeaker opens the output device. oto allows a single context per
// process, so create at most one Speaker.
func NewSpeaker() (*Speaker, error) {
	op := &oto.NewContextOptions{
		SampleRate:   audio.PlaybackRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		// A short device buffer keeps interrupt latency low.
		BufferSize: 100 * time.Millisecond,
	}
	otoCtx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("playback: open device: %w", err)
	}
	<-ready

	s := &Speaker{otoCtx: otoCtx}
	s.cond = sync.NewCond(&s.mu)
	s.player = otoCtx.NewPlayer(s)
	s.player.Play()
	return s, nil
}

// Play queues pcm for the device and blocks until the device has consumed
// it or ctx is cancelled. On cancellation the undelivered remainder is
// discarded and ctx.Err() is returned.
func (s *Speaker) Play(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("playback: speaker closed")
	}
	s.buf = append(s.buf, pcm...)
	s.cond.Signal()
	s.mu.Unlock()

	// Wake the waiter below when ctx is cancelled mid-chunk.
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.buf = nil
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.buf) > 0 && !s.closed && ctx.Err() == nil {
		s.cond.Wait()
	}
	return ctx.Err()
}

// Read implements io.Reader for the oto player. It feeds buffered PCM and
// silence while the buffer is empty, so the device stream never stalls.
func (s *Speaker) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf) == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	if len(s.buf) == 0 {
		s.cond.Broadcast()
	}
	return n, nil
}

// Close releases the device. Idempotent.
func (s *Speaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.buf = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	if err := s.player.Close(); err != nil {
		return fmt.Errorf("playback: close player: %w", err)
	}
	return s.otoCtx.Suspend()
}

var _ Sink = (*Speaker)(nil)
