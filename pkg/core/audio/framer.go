package audio

import (
	"encoding/base64"
)

const (
	// SampleRate is the only sample rate accepted on the wire. Devices are
	// required to capture 16-bit little-endian mono PCM at 16 kHz; the server
	// never resamples.
	SampleRate = 16000

	// BytesPerSecond for 16-bit mono PCM at SampleRate.
	BytesPerSecond = SampleRate * 2

	// MaxFrameBytes is the hard cap on a single inbound frame.
	MaxFrameBytes = 1 << 20
)

// Normalize converts an inbound audio payload to raw PCM bytes. Strings are
// treated as base64; byte slices pass through. Empty and oversize frames are
// rejected with ok=false and must be dropped silently by the caller.
func Normalize(payload any) (pcm []byte, ok bool) {
	switch v := payload.(type) {
	case []byte:
		pcm = v
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, false
		}
		pcm = decoded
	default:
		return nil, false
	}
	if len(pcm) == 0 || len(pcm) > MaxFrameBytes {
		return nil, false
	}
	return pcm, true
}

// Duration returns the playback duration in seconds of a 16-bit mono PCM
// byte count at the given sample rate. This is the single source of duration
// math: provider-reported durations are never trusted for time-base work.
func Duration(pcmBytes int, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(pcmBytes) / float64(sampleRate*2)
}
