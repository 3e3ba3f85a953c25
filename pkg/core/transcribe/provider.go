package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Options configures a single transcription request.
type Options struct {
	Model      string // provider model id; empty selects the provider default
	Language   string // ISO language hint; empty lets the provider detect
	SampleRate int    // PCM sample rate of the wrapped audio
	Diarize    bool   // request segment-level speaker ids
}

// Segment is one provider-attributed utterance span within a request.
type Segment struct {
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Text      string  `json:"text"`
	Speaker   string  `json:"speaker,omitempty"`
	SpeakerID *int    `json:"speaker_id,omitempty"`
}

// Result is the verbose transcription result for one submitted container.
// Languages is the set of distinct chunk languages in first-heard order;
// single-request providers leave it to the caller and report Language only.
type Result struct {
	Text      string
	Language  string
	Languages []string
	Duration  float64
	Segments  []Segment
}

// Provider submits a complete WAV container and returns the verbose result.
// Implementations must be safe for concurrent use.
type Provider interface {
	Transcribe(ctx context.Context, wav []byte, opts Options) (*Result, error)
}

// ErrAudioTooShort is returned when the audio is below the provider minimum.
var ErrAudioTooShort = errors.New("audio too short to transcribe")

// Error is a provider-level transcription failure carrying the upstream
// HTTP status when one was received.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("transcription error %d: %s", e.Status, e.Message)
	}
	return "transcription error: " + e.Message
}

// transientMessageHints are 4xx bodies the provider is known to emit for
// conditions that clear on retry.
var transientMessageHints = []string{
	"something went wrong",
	"temporary",
	"timeout",
	"reading your request",
}

// Transient reports whether the failure is worth retrying: server errors,
// rate limits, network-level errors, and the known-transient 4xx messages.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var perr *Error
	if !errors.As(err, &perr) {
		// Network and transport failures carry no status; retry them.
		return true
	}
	if perr.Status >= 500 || perr.Status == 429 {
		return true
	}
	if perr.Status >= 400 && perr.Status < 500 {
		msg := strings.ToLower(perr.Message)
		for _, hint := range transientMessageHints {
			if strings.Contains(msg, hint) {
				return true
			}
		}
	}
	return false
}
