package transcribe

import (
	"context"
	"sync"
	"time"

	"github.com/deckroom/deckroom/pkg/core/audio"
)

// Partial is one rolling transcript emitted during a live session. Partials
// are best-effort: the end-of-session pass is authoritative.
type Partial struct {
	Text      string
	Timestamp time.Time
	IsFinal   bool
	Language  string
}

// StreamingConfig tunes the rolling-window transcriber. Zero values select
// the production defaults; tests shrink the intervals.
type StreamingConfig struct {
	SampleRate     int
	Language       string
	Model          string
	TickInterval   time.Duration // window evaluation cadence, default 1s
	FlushInterval  time.Duration // minimum spacing between flushes, default 5s
	MinWindow      time.Duration // minimum buffered audio per flush, default 1s
	MaxWindowBytes int           // dropped-window guard, default 25 MiB of WAV
	Now            func() time.Time
}

// Streaming maintains two buffers over the inbound PCM: a window buffer
// drained on each flush and a cumulative buffer mirroring every byte ever
// sent. Flushes wrap the window as WAV and submit it synchronously; provider
// failures are surfaced via onError and never tear the transcriber down.
type Streaming struct {
	provider  Provider
	cfg       StreamingConfig
	onPartial func(Partial)
	onError   func(error)

	mu          sync.Mutex
	window      []byte
	cumulative  []byte
	lastFlushAt time.Time
	closed      bool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewStreaming starts the periodic flush loop. Close must be called to stop
// it; send after Close is a no-op.
func NewStreaming(provider Provider, cfg StreamingConfig, onPartial func(Partial), onError func(error)) *Streaming {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.SampleRate
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.MinWindow <= 0 {
		cfg.MinWindow = time.Second
	}
	if cfg.MaxWindowBytes <= 0 {
		cfg.MaxWindowBytes = 25 << 20
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if onPartial == nil {
		onPartial = func(Partial) {}
	}
	if onError == nil {
		onError = func(error) {}
	}

	s := &Streaming{
		provider:    provider,
		cfg:         cfg,
		onPartial:   onPartial,
		onError:     onError,
		lastFlushAt: cfg.Now(),
		done:        make(chan struct{}),
	}
	s.wg.Add(1)
	go s.flushLoop()
	return s
}

// Send appends PCM bytes to both buffers. Non-blocking; after Close it
// discards the input.
func (s *Streaming) Send(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.window = append(s.window, pcm...)
	s.cumulative = append(s.cumulative, pcm...)
}

// Complete returns a copy of every byte ever sent, in order. Valid before
// and after Close.
func (s *Streaming) Complete() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.cumulative))
	copy(out, s.cumulative)
	return out
}

// Close stops the flush loop and performs one final flush if the window
// holds enough audio. Idempotent.
func (s *Streaming) Close() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		s.wg.Wait()
		s.flush(true)
	})
}

func (s *Streaming) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.flush(false)
		}
	}
}

// flush drains the window and submits it when the flush policy allows. With
// force set (terminal flush) the spacing requirement is waived but the
// minimum window still applies.
func (s *Streaming) flush(force bool) {
	now := s.cfg.Now()
	minBytes := int(s.cfg.MinWindow.Seconds() * float64(s.cfg.SampleRate*2))

	s.mu.Lock()
	if !force && now.Sub(s.lastFlushAt) < s.cfg.FlushInterval {
		s.mu.Unlock()
		return
	}
	if len(s.window) < minBytes {
		s.mu.Unlock()
		return
	}
	chunk := s.window
	s.window = nil
	s.lastFlushAt = now
	s.mu.Unlock()

	if audio.WAVSize(len(chunk)) > s.cfg.MaxWindowBytes {
		// Impossible under normal flush timing; drop rather than submit an
		// over-cap container.
		return
	}

	wav := audio.WrapWAV(chunk, s.cfg.SampleRate)
	result, err := s.provider.Transcribe(context.Background(), wav, Options{
		Model:      s.cfg.Model,
		Language:   s.cfg.Language,
		SampleRate: s.cfg.SampleRate,
	})
	if err != nil {
		// Fold the failed window back in so the next flush covers it; the
		// transcriber itself keeps running.
		s.mu.Lock()
		s.window = append(chunk, s.window...)
		s.mu.Unlock()
		s.onError(err)
		return
	}
	if result == nil || result.Text == "" {
		return
	}
	s.onPartial(Partial{
		Text:      result.Text,
		Timestamp: now,
		IsFinal:   true,
		Language:  result.Language,
	})
}
