package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/deckroom/deckroom/pkg/core/audio"
)

const (
	// maxSingleShotWAV is the provider's hard container cap.
	maxSingleShotWAV = 25 << 20
	// maxChunkWAV leaves a safety margin under the provider cap when
	// splitting long sessions.
	maxChunkWAV = 20 << 20
	// minAudioDuration rejects inputs the provider cannot transcribe.
	minAudioDuration = 0.25
	// minChunkDuration keeps split boundaries at least one second apart.
	minChunkDuration = 1.0

	// failedChunkPlaceholder preserves time alignment when a chunk cannot be
	// transcribed after all retries.
	failedChunkPlaceholder = "[transcription unavailable]"
)

// CompleteOptions configures the end-of-session full-audio pass.
type CompleteOptions struct {
	SampleRate   int
	Language     string
	Model        string
	MaxRetries   uint64        // per-chunk retries, default 3
	RetryBase    time.Duration // backoff base, default 1s
	RetryCap     time.Duration // backoff cap, default 10s
	maxChunkWAV  int           // test seam
	maxSingleWAV int           // test seam
}

// TranscribeComplete produces the authoritative diarized transcript for the
// entire cumulative PCM of a session. Oversize audio is split on PCM
// boundaries and stitched back on a time base computed from byte counts, not
// from provider-reported durations.
//
// If ctx is cancelled between chunks, submission stops and the remaining
// spans are filled with placeholders; the partial result is still returned.
// Only a whole-batch failure returns an error.
func TranscribeComplete(ctx context.Context, provider Provider, pcm []byte, opts CompleteOptions) (*Result, error) {
	if opts.SampleRate <= 0 {
		opts.SampleRate = audio.SampleRate
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Second
	}
	if opts.RetryCap <= 0 {
		opts.RetryCap = 10 * time.Second
	}
	if opts.maxChunkWAV <= 0 {
		opts.maxChunkWAV = maxChunkWAV
	}
	if opts.maxSingleWAV <= 0 {
		opts.maxSingleWAV = maxSingleShotWAV
	}

	if audio.Duration(len(pcm), opts.SampleRate) < minAudioDuration {
		return nil, ErrAudioTooShort
	}

	reqOpts := Options{
		Model:      opts.Model,
		Language:   opts.Language,
		SampleRate: opts.SampleRate,
		Diarize:    true,
	}

	if audio.WAVSize(len(pcm)) <= opts.maxSingleWAV {
		result, err := transcribeChunkWithRetry(ctx, provider, pcm, reqOpts, opts)
		if err != nil {
			return nil, fmt.Errorf("transcribe audio: %w", err)
		}
		// Trust the input byte count for the total duration.
		result.Duration = audio.Duration(len(pcm), opts.SampleRate)
		result.Languages = appendLanguage(result.Languages, result.Language)
		return result, nil
	}

	chunks := SplitPCM(pcm, opts.SampleRate, opts.maxChunkWAV)

	merged := &Result{}
	var offset float64
	var texts []string
	var succeeded int
	stopped := false

	for _, chunk := range chunks {
		chunkDur := audio.Duration(len(chunk), opts.SampleRate)

		if stopped || ctx.Err() != nil {
			stopped = true
			merged.Segments = append(merged.Segments, Segment{
				Start: offset,
				End:   offset + chunkDur,
				Text:  failedChunkPlaceholder,
			})
			offset += chunkDur
			continue
		}

		result, err := transcribeChunkWithRetry(ctx, provider, chunk, reqOpts, opts)
		if err != nil {
			merged.Segments = append(merged.Segments, Segment{
				Start: offset,
				End:   offset + chunkDur,
				Text:  failedChunkPlaceholder,
			})
			offset += chunkDur
			continue
		}
		succeeded++
		if merged.Language == "" && result.Language != "" {
			merged.Language = result.Language
		}
		merged.Languages = appendLanguage(merged.Languages, result.Language)
		if result.Text != "" {
			texts = append(texts, result.Text)
		}
		if len(result.Segments) == 0 && result.Text != "" {
			merged.Segments = append(merged.Segments, Segment{
				Start: offset,
				End:   offset + chunkDur,
				Text:  result.Text,
			})
		}
		for _, seg := range result.Segments {
			seg.Start += offset
			seg.End += offset
			if seg.End > offset+chunkDur {
				seg.End = offset + chunkDur
			}
			merged.Segments = append(merged.Segments, seg)
		}
		offset += chunkDur
	}

	if succeeded == 0 && !stopped {
		return nil, fmt.Errorf("transcribe audio: all %d chunks failed", len(chunks))
	}
	merged.Text = strings.Join(texts, " ")
	merged.Duration = audio.Duration(len(pcm), opts.SampleRate)
	return merged, nil
}

// appendLanguage adds lang to the set, preserving first-heard order.
func appendLanguage(langs []string, lang string) []string {
	if lang == "" {
		return langs
	}
	for _, l := range langs {
		if l == lang {
			return langs
		}
	}
	return append(langs, lang)
}

// SplitPCM splits raw PCM into spans that fit the per-chunk WAV cap, aligned
// to whole samples. A trailing residue shorter than one second is merged
// into the previous chunk.
func SplitPCM(pcm []byte, sampleRate int, maxWAVBytes int) [][]byte {
	maxChunkPCM := maxWAVBytes - audio.WAVHeaderSize
	maxChunkPCM -= maxChunkPCM % 2 // sample alignment
	if maxChunkPCM <= 0 || len(pcm) <= maxChunkPCM {
		return [][]byte{pcm}
	}
	minChunkPCM := int(minChunkDuration * float64(sampleRate*2))

	var chunks [][]byte
	for start := 0; start < len(pcm); start += maxChunkPCM {
		end := start + maxChunkPCM
		if end > len(pcm) {
			end = len(pcm)
		}
		chunks = append(chunks, pcm[start:end])
	}
	if n := len(chunks); n > 1 && len(chunks[n-1]) < minChunkPCM {
		joined := make([]byte, 0, len(chunks[n-2])+len(chunks[n-1]))
		joined = append(joined, chunks[n-2]...)
		joined = append(joined, chunks[n-1]...)
		chunks = append(chunks[:n-2], joined)
	}
	return chunks
}

func transcribeChunkWithRetry(ctx context.Context, provider Provider, pcm []byte, reqOpts Options, opts CompleteOptions) (*Result, error) {
	wav := audio.WrapWAV(pcm, opts.SampleRate)

	backoff := retry.WithCappedDuration(opts.RetryCap, retry.NewExponential(opts.RetryBase))
	backoff = retry.WithMaxRetries(opts.MaxRetries, backoff)

	var result *Result
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := provider.Transcribe(ctx, wav, reqOpts)
		if err != nil {
			if Transient(err) && !errors.Is(err, context.Canceled) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
