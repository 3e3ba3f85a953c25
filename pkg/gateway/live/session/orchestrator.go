// Package session runs the per-session orchestrator: the state machine that
// owns a meeting's cumulative audio, its rolling transcriber, the inactivity
// watchdog, the suggestion engine, and end-of-session finalization. Registry
// entries carry orchestrators; sockets come and go.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deckroom/deckroom/pkg/core"
	"github.com/deckroom/deckroom/pkg/core/audio"
	"github.com/deckroom/deckroom/pkg/core/suggest"
	"github.com/deckroom/deckroom/pkg/core/summarize"
	"github.com/deckroom/deckroom/pkg/core/transcribe"
	"github.com/deckroom/deckroom/pkg/gateway/live/protocol"
	"github.com/deckroom/deckroom/pkg/store"
)

// State is the orchestrator lifecycle position. Ending and beyond reject
// audio and reattach.
type State string

const (
	StateInit      State = "init"
	StateAttached  State = "attached"
	StateRecording State = "recording"
	StateEnding    State = "ending"
	StateFinalized State = "finalized"
	StateFailed    State = "failed"
)

// Config tunes per-session timing. Zero values select production defaults;
// tests shrink everything.
type Config struct {
	SampleRate              int
	Language                string
	STTModel                string
	DiarizeModel            string
	StreamingTickInterval   time.Duration
	StreamingFlushInterval  time.Duration
	SuggestionInterval      time.Duration
	SuggestionWindow        time.Duration
	SuggestionMinWords      int
	SuggestionCount         int
	WatchdogTickInterval    time.Duration
	SilenceTimeout          time.Duration
	RecordingStatusInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = audio.SampleRate
	}
	if c.StreamingTickInterval <= 0 {
		c.StreamingTickInterval = time.Second
	}
	if c.StreamingFlushInterval <= 0 {
		c.StreamingFlushInterval = 5 * time.Second
	}
	if c.SuggestionInterval <= 0 {
		c.SuggestionInterval = 60 * time.Second
	}
	if c.SuggestionWindow <= 0 {
		c.SuggestionWindow = 3 * time.Minute
	}
	if c.SuggestionMinWords <= 0 {
		c.SuggestionMinWords = 50
	}
	if c.SuggestionCount <= 0 {
		c.SuggestionCount = 3
	}
	if c.WatchdogTickInterval <= 0 {
		c.WatchdogTickInterval = 30 * time.Second
	}
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = 4 * time.Minute
	}
	if c.RecordingStatusInterval <= 0 {
		c.RecordingStatusInterval = 5 * time.Second
	}
}

// Dependencies are injected at construction. Streaming and Complete may be
// nil when no provider key is available for the tenant; the orchestrator
// then refuses audio with PROVIDER_KEY_MISSING.
type Dependencies struct {
	Store      *store.Store
	Streaming  transcribe.Provider
	Complete   transcribe.Provider
	Suggester  suggest.Generator
	Summarizer summarize.Generator
	Logger     *slog.Logger
	Config     Config
	Now        func() time.Time
	// OnRemove is called exactly once after finalization (or terminal
	// failure) so the registry can drop the entry.
	OnRemove func(sessionID string)
}

// Orchestrator is the authoritative lifecycle carrier for one session. All
// state mutations are serialized under mu; provider and store calls never
// run under it.
type Orchestrator struct {
	deps Dependencies
	cfg  Config
	log  *slog.Logger
	now  func() time.Time

	sessionID string
	deckID    string
	tenantID  string
	title     string
	startedAt time.Time

	mu               sync.Mutex
	state            State
	sender           Sender
	streaming        *transcribe.Streaming
	framesReceived   int
	pcmBytes         int64
	lastAudioAt      time.Time
	lastStatusAt     time.Time
	lastSuggestAt    time.Time
	initialSuggested bool
	initialDone      bool
	suggestInFlight  bool

	// qmu linearizes question-list load-modify-store cycles. Separate from
	// mu so audio ingest never waits on persistence.
	qmu sync.Mutex

	kbOnce sync.Once
	kbCtx  string

	watchdogStarted bool
	watchdogStop    chan struct{}
	stopOnce        sync.Once

	finalizeDone chan struct{}
}

// New builds the orchestrator for an Active session record.
func New(sess *store.Session, deps Dependencies) (*Orchestrator, error) {
	if sess == nil {
		return nil, fmt.Errorf("session is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.OnRemove == nil {
		deps.OnRemove = func(string) {}
	}
	cfg := deps.Config
	cfg.applyDefaults()

	return &Orchestrator{
		deps:         deps,
		cfg:          cfg,
		log:          deps.Logger.With("session_id", sess.ID),
		now:          deps.Now,
		sessionID:    sess.ID,
		deckID:       sess.DeckID,
		tenantID:     sess.TenantID,
		title:        sess.Title,
		startedAt:    sess.StartedAt,
		state:        StateInit,
		watchdogStop: make(chan struct{}),
		finalizeDone: make(chan struct{}),
	}, nil
}

// SessionID returns the session this orchestrator carries.
func (s *Orchestrator) SessionID() string { return s.sessionID }

// State returns the current lifecycle position.
func (s *Orchestrator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FinalizeDone is closed when finalization has committed, successfully or as
// Failed. Tests and drains wait on it.
func (s *Orchestrator) FinalizeDone() <-chan struct{} { return s.finalizeDone }

// Attach binds a socket to the session. Idempotent under reconnect: the
// cumulative PCM, counters, and sub-tasks survive; only the sender is
// swapped. Attaching after stop returns ErrSessionInactive.
func (s *Orchestrator) Attach(ctx context.Context, sender Sender) error {
	s.mu.Lock()
	switch s.state {
	case StateEnding, StateFinalized, StateFailed:
		s.mu.Unlock()
		return core.ErrSessionInactive
	}
	old := s.sender
	s.sender = sender
	if s.state == StateInit {
		s.state = StateAttached
		s.lastAudioAt = s.now()
	}
	startWatchdog := !s.watchdogStarted
	s.watchdogStarted = true
	fireInitial := !s.initialSuggested
	s.initialSuggested = true
	s.mu.Unlock()

	if old != nil && old != sender {
		_ = old.Close()
	}
	if startWatchdog {
		go s.watchdog()
	}
	if fireInitial {
		go s.initialSuggestions(context.WithoutCancel(ctx))
	}

	s.send(protocol.ServerSessionStatus{
		Type:    protocol.TypeSessionStatus,
		Status:  "connected",
		Message: "joined session",
	})
	s.replayQuestions(ctx)
	return nil
}

// Detach clears the sender if it is still the given one. The registry entry
// and all sub-tasks survive; only the socket handle goes away.
func (s *Orchestrator) Detach(sender Sender) {
	s.mu.Lock()
	if s.sender == sender {
		s.sender = nil
	}
	s.mu.Unlock()
}

// HandleFrame ingests one audio payload: normalize, append, forward, update
// liveness, and evaluate the periodic status and suggestion gates. Frames
// arriving after stop are dropped; malformed frames are dropped silently.
func (s *Orchestrator) HandleFrame(ctx context.Context, payload any) {
	pcm, ok := audio.Normalize(payload)
	if !ok {
		return
	}

	now := s.now()

	s.mu.Lock()
	switch s.state {
	case StateEnding, StateFinalized, StateFailed:
		s.mu.Unlock()
		return
	}
	if s.streaming == nil {
		if s.deps.Streaming == nil {
			s.mu.Unlock()
			s.send(protocol.ServerError{
				Type:    protocol.TypeError,
				Code:    protocol.CodeProviderKeyMissing,
				Message: "no transcription provider key configured",
			})
			return
		}
		s.streaming = transcribe.NewStreaming(s.deps.Streaming, transcribe.StreamingConfig{
			SampleRate:    s.cfg.SampleRate,
			Language:      s.cfg.Language,
			Model:         s.cfg.STTModel,
			TickInterval:  s.cfg.StreamingTickInterval,
			FlushInterval: s.cfg.StreamingFlushInterval,
			Now:           s.now,
		}, s.onPartial, s.onStreamingError)
	}
	s.state = StateRecording
	s.framesReceived++
	s.pcmBytes += int64(len(pcm))
	s.lastAudioAt = now
	// Append under the lock so cumulative order matches arrival order even
	// across a reconnect race.
	s.streaming.Send(pcm)

	statusDue := now.Sub(s.lastStatusAt) >= s.cfg.RecordingStatusInterval
	if statusDue {
		s.lastStatusAt = now
	}
	chunks := s.framesReceived
	bytes := s.pcmBytes

	suggestDue := s.initialDone && !s.suggestInFlight && now.Sub(s.lastSuggestAt) >= s.cfg.SuggestionInterval
	if suggestDue {
		s.suggestInFlight = true
	}
	s.mu.Unlock()

	if statusDue {
		s.send(protocol.ServerRecordingStatus{
			Type:                     protocol.TypeRecordingStatus,
			AudioSizeMB:              float64(bytes) / (1 << 20),
			AudioChunks:              chunks,
			EstimatedDurationSeconds: audio.Duration(int(bytes), s.cfg.SampleRate),
			Message:                  "recording",
		})
	}
	if suggestDue {
		go s.rollingSuggestions(context.WithoutCancel(ctx))
	}
}

// Stop ends the session explicitly. Idempotent: the first call wins, sets
// the optimistic Ended snapshot, and schedules exactly one finalization run;
// later calls return the current snapshot.
func (s *Orchestrator) Stop(ctx context.Context) (*store.Session, error) {
	s.stop("stopped by client", false)
	return s.deps.Store.Sessions.Get(ctx, s.sessionID)
}

func (s *Orchestrator) stop(reason string, auto bool) {
	s.stopOnce.Do(func() {
		now := s.now()

		s.mu.Lock()
		s.state = StateEnding
		s.mu.Unlock()
		close(s.watchdogStop)

		duration := now.Sub(s.startedAt).Seconds()

		ctx := context.Background()
		sess, err := s.deps.Store.Sessions.Get(ctx, s.sessionID)
		if err != nil {
			s.log.Error("stop: load session", "error", err)
		} else {
			sess.Status = store.SessionEnded
			sess.EndedAt = &now
			sess.DurationSeconds = &duration
			sess.UpdatedAt = now
			if err := s.deps.Store.Sessions.Update(ctx, sess); err != nil {
				s.log.Error("stop: persist ended session", "error", err)
			}
		}

		if auto {
			s.send(protocol.ServerSessionAutoStopped{
				Type:          protocol.TypeSessionAutoStopped,
				Reason:        reason,
				EndedAt:       wireTime(now),
				TotalDuration: duration,
			})
		}
		s.log.Info("session ending", "reason", reason, "duration_s", duration)

		// Finalization survives socket detach and server request contexts.
		go s.finalize(context.Background())
	})
}

// watchdog ends the session after sustained silence. Socket disconnects do
// not stop it; only explicit stop or its own firing does.
func (s *Orchestrator) watchdog() {
	ticker := time.NewTicker(s.cfg.WatchdogTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.watchdogStop:
			return
		case <-ticker.C:
			s.mu.Lock()
			active := s.state == StateAttached || s.state == StateRecording
			silence := s.now().Sub(s.lastAudioAt)
			s.mu.Unlock()
			if active && silence >= s.cfg.SilenceTimeout {
				s.stop(fmt.Sprintf("inactive %s", s.cfg.SilenceTimeout), true)
				return
			}
		}
	}
}

// onPartial persists and emits one rolling transcript fragment. Live
// fragments carry no speaker attribution; the end-of-session pass does.
func (s *Orchestrator) onPartial(p transcribe.Partial) {
	tr := &store.Transcript{
		ID:        uuid.NewString(),
		SessionID: s.sessionID,
		DeckID:    s.deckID,
		Timestamp: p.Timestamp,
		Text:      p.Text,
		IsFinal:   p.IsFinal,
	}
	if p.Language != "" {
		lang := p.Language
		tr.LanguageCode = &lang
	}
	if err := s.deps.Store.Transcripts.Append(context.Background(), tr); err != nil {
		s.log.Error("persist partial transcript", "error", err)
	}
	msg := protocol.ServerTranscription{
		Type:      protocol.TypeTranscription,
		Text:      p.Text,
		IsFinal:   p.IsFinal,
		Timestamp: wireTime(p.Timestamp),
	}
	if p.Language != "" {
		msg.LanguageCode = p.Language
	}
	s.send(msg)
}

func (s *Orchestrator) onStreamingError(err error) {
	s.log.Warn("streaming flush failed", "error", err)
	s.send(protocol.ServerError{
		Type:    protocol.TypeError,
		Code:    protocol.CodeTranscriptionError,
		Message: "live transcription temporarily unavailable",
	})
}

// finalize runs the end-of-session pipeline: close the rolling transcriber,
// snapshot the cumulative PCM, run the authoritative diarized pass, persist
// its segments, then generate and persist the summary. Exactly one run per
// session; the registry entry is removed at the end regardless of outcome.
func (s *Orchestrator) finalize(ctx context.Context) {
	defer close(s.finalizeDone)
	defer s.deps.OnRemove(s.sessionID)

	s.setSummaryState(ctx, store.SummaryGenerating)

	s.mu.Lock()
	streaming := s.streaming
	s.mu.Unlock()

	var pcm []byte
	if streaming != nil {
		streaming.Close()
		pcm = streaming.Complete()
	}

	sess, err := s.deps.Store.Sessions.Get(ctx, s.sessionID)
	if err != nil {
		s.log.Error("finalize: load session", "error", err)
		s.fail(ctx)
		return
	}
	duration := s.now().Sub(s.startedAt).Seconds()
	if sess.DurationSeconds != nil {
		duration = *sess.DurationSeconds
	}

	meeting := summarize.Meeting{
		Title:           sess.Title,
		DurationSeconds: duration,
	}

	var result *transcribe.Result
	if s.deps.Complete != nil && len(pcm) > 0 {
		result, err = transcribe.TranscribeComplete(ctx, s.deps.Complete, pcm, transcribe.CompleteOptions{
			SampleRate: s.cfg.SampleRate,
			Language:   s.cfg.Language,
			Model:      s.cfg.DiarizeModel,
		})
		if err != nil && err != transcribe.ErrAudioTooShort {
			s.log.Error("finalize: full-audio transcription failed", "error", err)
			s.fail(ctx)
			return
		}
	}

	var transcriptText string
	if result != nil {
		transcriptText = s.persistFinalSegments(ctx, result)
		meeting.WordCount = len(strings.Fields(result.Text))
		meeting.Participants = participants(result.Segments)
		for _, lang := range result.Languages {
			sess.DetectedLanguages = mergeLanguages(sess.DetectedLanguages, lang)
		}
		if len(result.Languages) == 0 && result.Language != "" {
			sess.DetectedLanguages = mergeLanguages(sess.DetectedLanguages, result.Language)
		}
	}

	meeting.DetectedLanguages = sess.DetectedLanguages

	var summary string
	if s.deps.Summarizer != nil && transcriptText != "" {
		generated, err := s.deps.Summarizer.Summarize(ctx, meeting, transcriptText)
		if err != nil {
			s.log.Warn("finalize: summary generation failed", "error", err)
			summary = summarize.Fallback(meeting)
		} else {
			summary = summarize.Render(meeting, generated)
		}
	} else {
		summary = summarize.Fallback(meeting)
	}

	count, err := s.deps.Store.Transcripts.CountBySession(ctx, s.sessionID)
	if err != nil {
		s.log.Error("finalize: count transcripts", "error", err)
	}

	now := s.now()
	sess.Summary = &summary
	sess.SummaryState = store.SummaryCompleted
	sess.TranscriptCount = count
	sess.UpdatedAt = now
	if err := s.deps.Store.Sessions.Update(ctx, sess); err != nil {
		s.log.Error("finalize: persist session", "error", err)
		s.fail(ctx)
		return
	}

	s.mu.Lock()
	s.state = StateFinalized
	s.mu.Unlock()
	s.log.Info("session finalized", "transcripts", count, "words", meeting.WordCount)
}

// persistFinalSegments writes the authoritative diarized segments, each
// timestamped at startedAt plus its in-audio offset, and returns the joined
// transcript text used for summarization.
func (s *Orchestrator) persistFinalSegments(ctx context.Context, result *transcribe.Result) string {
	var lines []string
	trs := make([]store.Transcript, 0, len(result.Segments))
	for _, seg := range result.Segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		tr := store.Transcript{
			ID:        uuid.NewString(),
			SessionID: s.sessionID,
			DeckID:    s.deckID,
			Timestamp: s.startedAt.Add(time.Duration(seg.Start * float64(time.Second))),
			Text:      seg.Text,
			IsFinal:   true,
		}
		if seg.Speaker != "" {
			speaker := seg.Speaker
			tr.Speaker = &speaker
			lines = append(lines, seg.Speaker+": "+seg.Text)
		} else {
			lines = append(lines, seg.Text)
		}
		if seg.SpeakerID != nil {
			id := *seg.SpeakerID
			tr.SpeakerID = &id
		}
		if result.Language != "" {
			lang := result.Language
			tr.LanguageCode = &lang
		}
		trs = append(trs, tr)
	}
	if len(trs) == 0 {
		return strings.TrimSpace(result.Text)
	}
	if err := s.deps.Store.Transcripts.AppendBatch(ctx, trs); err != nil {
		s.log.Error("finalize: persist segments", "error", err)
	}
	return strings.Join(lines, "\n")
}

func (s *Orchestrator) fail(ctx context.Context) {
	s.mu.Lock()
	s.state = StateFailed
	s.mu.Unlock()

	sess, err := s.deps.Store.Sessions.Get(ctx, s.sessionID)
	if err != nil {
		s.log.Error("mark failed: load session", "error", err)
		return
	}
	sess.Status = store.SessionFailed
	sess.SummaryState = store.SummaryFailed
	sess.UpdatedAt = s.now()
	if err := s.deps.Store.Sessions.Update(ctx, sess); err != nil {
		s.log.Error("mark failed: persist session", "error", err)
	}
}

func (s *Orchestrator) setSummaryState(ctx context.Context, state store.SummaryState) {
	sess, err := s.deps.Store.Sessions.Get(ctx, s.sessionID)
	if err != nil {
		s.log.Error("set summary state: load session", "error", err)
		return
	}
	sess.SummaryState = state
	sess.UpdatedAt = s.now()
	if err := s.deps.Store.Sessions.Update(ctx, sess); err != nil {
		s.log.Error("set summary state: persist session", "error", err)
	}
}

// send delivers a message to the attached socket, if any. Send failures are
// logged and otherwise ignored: the live channel is best-effort.
func (s *Orchestrator) send(v any) {
	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()
	if sender == nil {
		return
	}
	if err := sender.Send(v); err != nil {
		s.log.Debug("live send failed", "error", err)
	}
}

func wireTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func participants(segments []transcribe.Segment) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, seg := range segments {
		if seg.Speaker == "" {
			continue
		}
		if _, ok := seen[seg.Speaker]; ok {
			continue
		}
		seen[seg.Speaker] = struct{}{}
		out = append(out, seg.Speaker)
	}
	sort.Strings(out)
	return out
}

func mergeLanguages(existing []string, lang string) []string {
	for _, l := range existing {
		if l == lang {
			return existing
		}
	}
	return append(existing, lang)
}
