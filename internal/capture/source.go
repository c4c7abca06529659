// Package capture acquires microphone audio for the uplink pipeline.
package capture

import (
	"context"

	"github.com/voxhire/voxhire/pkg/audio"
)

// Source produces a stream of capture frames.
//
// Start begins capture and returns a channel of frames that closes when the
// source stops, the context is cancelled, or capture fails. After the
// channel closes, Err reports why: nil for a clean stop, or the capture
// failure, including interview.ErrPermissionDenied when the OS refused
// microphone access.
type Source interface {
	Start(ctx context.Context) (<-chan audio.Frame, error)
	Stop() error
	Err() error
}
