package transcribe

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/deckroom/deckroom/pkg/core/audio"
)

func fastCompleteOptions() CompleteOptions {
	return CompleteOptions{
		SampleRate: 16000,
		RetryBase:  time.Millisecond,
		RetryCap:   5 * time.Millisecond,
	}
}

func TestTranscribeComplete_TooShort(t *testing.T) {
	provider := &fakeProvider{}
	_, err := TranscribeComplete(context.Background(), provider, make([]byte, 100), fastCompleteOptions())
	if !errors.Is(err, ErrAudioTooShort) {
		t.Fatalf("expected ErrAudioTooShort, got %v", err)
	}
	if provider.callCount() != 0 {
		t.Fatalf("provider should not be called for short audio")
	}
}

func TestTranscribeComplete_SingleShot(t *testing.T) {
	provider := &fakeProvider{}
	provider.next = func(wav []byte, opts Options) (*Result, error) {
		if !opts.Diarize {
			t.Errorf("expected diarization requested")
		}
		return &Result{
			Text:     "full transcript",
			Language: "en",
			Duration: 999, // deliberately wrong; byte count must win
			Segments: []Segment{{Start: 0, End: 1, Text: "full transcript"}},
		}, nil
	}

	pcm := make([]byte, 32000*10) // 10s
	result, err := TranscribeComplete(context.Background(), provider, pcm, fastCompleteOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.callCount() != 1 {
		t.Fatalf("expected one provider call, got %d", provider.callCount())
	}
	if result.Duration != 10 {
		t.Fatalf("duration = %v, want 10 (from byte count)", result.Duration)
	}
	if len(result.Languages) != 1 || result.Languages[0] != "en" {
		t.Fatalf("languages = %v, want [en]", result.Languages)
	}
}

func TestSplitPCM_BoundariesAndResidueMerge(t *testing.T) {
	sampleRate := 16000
	maxWAV := 64000 + audio.WAVHeaderSize // 2s of PCM per chunk

	// 5.25s: chunks of 2s, 2s, then 1.25s residue stays its own chunk.
	pcm := make([]byte, 32000*5+8000)
	chunks := SplitPCM(pcm, sampleRate, maxWAV)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[2]) != 32000+8000 {
		t.Fatalf("trailing chunk = %d bytes", len(chunks[2]))
	}

	// 4.5s: 2s, 2s, 0.5s residue is below 1s and merges backwards.
	pcm = make([]byte, 32000*4+16000)
	chunks = SplitPCM(pcm, sampleRate, maxWAV)
	if len(chunks) != 2 {
		t.Fatalf("expected residue merge into 2 chunks, got %d", len(chunks))
	}
	if len(chunks[1]) != 64000+16000 {
		t.Fatalf("merged chunk = %d bytes", len(chunks[1]))
	}

	// Conservation: concatenated chunks equal the input length.
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if total != len(pcm) {
		t.Fatalf("chunks cover %d bytes, want %d", total, len(pcm))
	}
}

func TestTranscribeComplete_ChunkedStitching(t *testing.T) {
	provider := &fakeProvider{}
	provider.next = func(wav []byte, _ Options) (*Result, error) {
		// Each chunk reports one segment covering its own local time base.
		dur := audio.Duration(len(wav)-audio.WAVHeaderSize, 16000)
		return &Result{
			Text:     "chunk text",
			Language: "en",
			Segments: []Segment{{Start: 0, End: dur, Text: "chunk text"}},
		}, nil
	}

	opts := fastCompleteOptions()
	opts.maxSingleWAV = 64000 // force chunking
	opts.maxChunkWAV = 32000 + audio.WAVHeaderSize

	pcm := make([]byte, 32000*4) // 4s -> 4 chunks of 1s
	result, err := TranscribeComplete(context.Background(), provider, pcm, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.callCount() != 4 {
		t.Fatalf("expected 4 chunk calls, got %d", provider.callCount())
	}
	if math.Abs(result.Duration-4) > 1.0/32000 {
		t.Fatalf("stitched duration = %v, want 4s within one sample", result.Duration)
	}
	if len(result.Segments) != 4 {
		t.Fatalf("expected 4 stitched segments, got %d", len(result.Segments))
	}
	for i, seg := range result.Segments {
		wantStart := float64(i)
		if math.Abs(seg.Start-wantStart) > 1e-9 {
			t.Fatalf("segment %d start = %v, want %v", i, seg.Start, wantStart)
		}
		if i > 0 && seg.Start < result.Segments[i-1].End-1e-9 {
			t.Fatalf("segment %d overlaps previous (start %v < prev end %v)", i, seg.Start, result.Segments[i-1].End)
		}
	}
	if result.Text != "chunk text chunk text chunk text chunk text" {
		t.Fatalf("stitched text = %q", result.Text)
	}
}

func TestTranscribeComplete_ChunkLanguageUnion(t *testing.T) {
	provider := &fakeProvider{}
	languages := []string{"en", "de", "en"}
	chunkIdx := 0
	provider.next = func(wav []byte, _ Options) (*Result, error) {
		lang := languages[chunkIdx]
		chunkIdx++
		dur := audio.Duration(len(wav)-audio.WAVHeaderSize, 16000)
		return &Result{
			Text:     "spoken",
			Language: lang,
			Segments: []Segment{{Start: 0, End: dur, Text: "spoken"}},
		}, nil
	}

	opts := fastCompleteOptions()
	opts.maxSingleWAV = 64000
	opts.maxChunkWAV = 32000 + audio.WAVHeaderSize

	pcm := make([]byte, 32000*3)
	result, err := TranscribeComplete(context.Background(), provider, pcm, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Language != "en" {
		t.Fatalf("primary language = %q, want en", result.Language)
	}
	if len(result.Languages) != 2 || result.Languages[0] != "en" || result.Languages[1] != "de" {
		t.Fatalf("languages = %v, want [en de]", result.Languages)
	}
}

func TestTranscribeComplete_RetriesTransientThenSucceeds(t *testing.T) {
	provider := &fakeProvider{}
	attempts := 0
	provider.next = func([]byte, Options) (*Result, error) {
		attempts++
		if attempts <= 2 {
			return nil, &Error{Status: 500, Message: "server error"}
		}
		return &Result{Text: "finally"}, nil
	}

	pcm := make([]byte, 32000)
	result, err := TranscribeComplete(context.Background(), provider, pcm, fastCompleteOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if result.Text != "finally" {
		t.Fatalf("text = %q", result.Text)
	}
}

func TestTranscribeComplete_PartialChunkFailureUsesPlaceholder(t *testing.T) {
	provider := &fakeProvider{}
	chunkIdx := 0
	provider.next = func(wav []byte, _ Options) (*Result, error) {
		chunkIdx++
		if chunkIdx == 2 {
			return nil, &Error{Status: 400, Message: "audio is corrupt"} // terminal, no retry
		}
		dur := audio.Duration(len(wav)-audio.WAVHeaderSize, 16000)
		return &Result{Text: "spoken", Segments: []Segment{{Start: 0, End: dur, Text: "spoken"}}}, nil
	}

	opts := fastCompleteOptions()
	opts.maxSingleWAV = 64000
	opts.maxChunkWAV = 32000 + audio.WAVHeaderSize

	pcm := make([]byte, 32000*3)
	result, err := TranscribeComplete(context.Background(), provider, pcm, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(result.Segments))
	}
	if result.Segments[1].Text != failedChunkPlaceholder {
		t.Fatalf("middle segment = %q, want placeholder", result.Segments[1].Text)
	}
	if result.Segments[1].Start != 1 || result.Segments[1].End != 2 {
		t.Fatalf("placeholder span = [%v, %v], want [1, 2]", result.Segments[1].Start, result.Segments[1].End)
	}
}

func TestTranscribeComplete_AllChunksFail(t *testing.T) {
	provider := &fakeProvider{}
	provider.next = func([]byte, Options) (*Result, error) {
		return nil, &Error{Status: 400, Message: "rejected"}
	}

	opts := fastCompleteOptions()
	opts.maxSingleWAV = 64000
	opts.maxChunkWAV = 32000 + audio.WAVHeaderSize

	_, err := TranscribeComplete(context.Background(), provider, make([]byte, 32000*2), opts)
	if err == nil || !strings.Contains(err.Error(), "all 2 chunks failed") {
		t.Fatalf("expected whole-batch failure, got %v", err)
	}
}

func TestTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&Error{Status: 500, Message: "boom"}, true},
		{&Error{Status: 503, Message: "overloaded"}, true},
		{&Error{Status: 429, Message: "slow down"}, true},
		{&Error{Status: 400, Message: "Something went wrong reading your request"}, true},
		{&Error{Status: 400, Message: "temporary glitch"}, true},
		{&Error{Status: 400, Message: "invalid file format"}, false},
		{&Error{Status: 401, Message: "bad key"}, false},
		{errors.New("connection reset"), true},
		{nil, false},
	}
	for _, tc := range cases {
		if got := Transient(tc.err); got != tc.want {
			t.Errorf("Transient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
