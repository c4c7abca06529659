// Package audio provides the PCM primitives of the interview pipeline:
// format normalization, linear-interpolation resampling, and the silence
// gate applied before captured audio is buffered for the agent.
//
// All PCM in this package is little-endian int16 ("s16le"). The uplink leg
// of the pipeline is 16 kHz mono; agent audio arrives at 24 kHz mono.
package audio

import "time"

// Pipeline sample rates. Captured audio is normalized to UplinkRate before
// it reaches the uplink buffer; agent audio is produced at PlaybackRate.
const (
	UplinkRate   = 16000
	PlaybackRate = 24000

	// BytesPerSample is the width of one s16le sample.
	BytesPerSample = 2
)

// Frame is a single frame of audio flowing through the pipeline, as
// produced by a capture source or consumed by a playback sink.
type Frame struct {
	// Data is raw s16le PCM.
	Data []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Samples returns the number of interleaved samples in the frame.
func (f Frame) Samples() int { return len(f.Data) / BytesPerSample }

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// UplinkFormat is the format every frame must have before entering the
// uplink buffer.
var UplinkFormat = Format{SampleRate: UplinkRate, Channels: 1}
