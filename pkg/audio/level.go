package audio

// DefaultSilenceThreshold is the peak-amplitude level at or below which a
// frame is treated as silence. Amplitudes are normalized to [0, 1].
const DefaultSilenceThreshold = 0.004

// IsSilence reports whether the maximum absolute amplitude of the s16le PCM
// is at or below threshold. Amplitude is normalized so a full-scale signal
// has amplitude 1.0. A peak gate rather than an average: a single speech
// transient in an otherwise quiet frame keeps the frame. Empty or misaligned
// input counts as silence.
func IsSilence(pcm []byte, threshold float64) bool {
	samples := len(pcm) / BytesPerSample
	if samples == 0 {
		return true
	}

	var peak float64
	for i := range samples {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		a := float64(s)
		if a < 0 {
			a = -a
		}
		if a > peak {
			peak = a
		}
	}
	return peak/32768.0 <= threshold
}

// Float32ToPCM16 converts normalized float samples to s16le PCM. Samples
// outside [-1, 1] are clamped before scaling.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, f := range samples {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		s := int16(f * 32767)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// PCM16ToFloat32 converts s16le PCM to normalized float samples in [-1, 1].
func PCM16ToFloat32(pcm []byte) []float32 {
	samples := len(pcm) / BytesPerSample
	out := make([]float32, samples)
	for i := range samples {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / 32768.0
	}
	return out
}
