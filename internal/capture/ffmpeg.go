package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/voxhire/voxhire/pkg/audio"
	"github.com/voxhire/voxhire/pkg/interview"
)

// frameBytes is one capture frame: 20 ms of 16 kHz mono s16le PCM.
const frameBytes = audio.UplinkRate / 50 * audio.BytesPerSample

// Option is a functional option for configuring an FFmpegSource.
type Option func(*FFmpegSource)

// WithDevice overrides the platform default input device ("default" on
// pulse, ":0" on avfoundation).
func WithDevice(device string) Option {
	return func(s *FFmpegSource) { s.device = device }
}

// WithBinary overrides the ffmpeg binary name, for tests.
func WithBinary(path string) Option {
	return func(s *FFmpegSource) { s.binary = path }
}

// FFmpegSource captures microphone audio by running ffmpeg against the
// platform capture backend and reading raw s16le PCM from its stdout.
type FFmpegSource struct {
	device string
	binary string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	cancel context.CancelFunc
	err    error
	active bool
	wg     sync.WaitGroup
}

// NewFFmpegSource returns a Source backed by the ffmpeg binary on PATH.
func NewFFmpegSource(opts ...Option) *FFmpegSource {
	s := &FFmpegSource{binary: "ffmpeg"}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start launches ffmpeg and returns the frame channel. Only one capture
// may run at a time.
func (s *FFmpegSource) Start(ctx context.Context) (<-chan audio.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return nil, fmt.Errorf("capture: already started")
	}

	if _, err := exec.LookPath(s.binary); err != nil {
		return nil, fmt.Errorf("capture: %s not found on PATH: %w", s.binary, err)
	}
	args, err := captureArgs(runtime.GOOS, s.device)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, s.binary, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("capture: open ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("capture: start ffmpeg: %w", err)
	}

	s.cmd = cmd
	s.stdout = stdout
	s.stderr = stderr
	s.cancel = cancel
	s.err = nil
	s.active = true

	frames := make(chan audio.Frame, 16)
	s.wg.Add(1)
	go s.readLoop(runCtx, frames)
	return frames, nil
}

// readLoop slices ffmpeg stdout into fixed-size frames. It owns the frames
// channel and closes it on exit.
func (s *FFmpegSource) readLoop(ctx context.Context, frames chan<- audio.Frame) {
	defer s.wg.Done()
	defer close(frames)

	start := time.Now()
	buf := make([]byte, frameBytes)
	for {
		n, err := io.ReadFull(s.stdout, buf)
		if n > 0 {
			frame := audio.Frame{
				Data:       append([]byte(nil), buf[:n]...),
				SampleRate: audio.UplinkRate,
				Channels:   1,
				Timestamp:  time.Since(start),
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				s.finish(nil)
				return
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				s.finish(nil)
				return
			}
			s.finish(err)
			return
		}
	}
}

// finish waits for ffmpeg to exit and classifies the failure.
func (s *FFmpegSource) finish(readErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	waitErr := s.cmd.Wait()
	s.active = false

	if readErr == nil && waitErr == nil {
		return
	}
	stderr := s.stderr.String()
	if deniedByOS(stderr) {
		s.err = fmt.Errorf("capture: %s: %w", firstLine(stderr), interview.ErrPermissionDenied)
		return
	}
	if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
		readErr = nil
	}
	err := errors.Join(readErr, waitErr)
	if err == nil {
		return
	}
	if msg := firstLine(stderr); msg != "" {
		s.err = fmt.Errorf("capture: ffmpeg: %s: %w", msg, err)
	} else {
		s.err = fmt.Errorf("capture: ffmpeg: %w", err)
	}
}

// Stop terminates the capture process. The frame channel closes once the
// reader drains. Safe to call when not started.
func (s *FFmpegSource) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return nil
}

// Err reports why the last capture ended. Valid after the frame channel
// closes; nil means a clean stop.
func (s *FFmpegSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// captureArgs builds the ffmpeg argument list for the platform capture
// backend: 16 kHz mono s16le on stdout.
func captureArgs(goos, device string) ([]string, error) {
	common := []string{
		"-ac", "1",
		"-ar", strconv.Itoa(audio.UplinkRate),
		"-f", "s16le", "-",
	}
	switch goos {
	case "linux":
		if device == "" {
			device = "default"
		}
		return append([]string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", device,
		}, common...), nil
	case "darwin":
		if device == "" {
			device = ":0"
		}
		return append([]string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", device,
		}, common...), nil
	default:
		return nil, fmt.Errorf("capture: unsupported platform %s", goos)
	}
}

// deniedByOS reports whether ffmpeg stderr indicates the OS refused
// microphone access rather than some other capture failure.
func deniedByOS(stderr string) bool {
	l := strings.ToLower(stderr)
	for _, marker := range []string{
		"permission denied",
		"operation not permitted",
		"access denied",
		"not authorized",
	} {
		if strings.Contains(l, marker) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

var _ Source = (*FFmpegSource)(nil)
