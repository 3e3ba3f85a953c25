package session

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deckroom/deckroom/pkg/core"
	"github.com/deckroom/deckroom/pkg/core/kb"
	"github.com/deckroom/deckroom/pkg/core/suggest"
	"github.com/deckroom/deckroom/pkg/gateway/live/protocol"
	"github.com/deckroom/deckroom/pkg/store"
)

// kbContext assembles the knowledge-base context once per session; decks,
// theses, and documents do not change while a meeting runs.
func (s *Orchestrator) kbContext(ctx context.Context) string {
	s.kbOnce.Do(func() {
		var in kb.Input
		if deck, err := s.deps.Store.Decks.Get(ctx, s.deckID); err == nil {
			in.Deck = deck
		} else if err != store.ErrNotFound {
			s.log.Warn("kb: load deck", "error", err)
		}
		if thesis, err := s.deps.Store.Theses.GetByTenant(ctx, s.tenantID); err == nil {
			in.Thesis = thesis
		} else if err != store.ErrNotFound {
			s.log.Warn("kb: load thesis", "error", err)
		}
		if msgs, err := s.deps.Store.Messages.ListByDeck(ctx, s.deckID); err == nil {
			in.Messages = msgs
		} else {
			s.log.Warn("kb: load messages", "error", err)
		}
		if docs, err := s.deps.Store.SupportingDocs.ListByDeck(ctx, s.deckID); err == nil {
			in.SupportingDocs = docs
		} else {
			s.log.Warn("kb: load supporting documents", "error", err)
		}
		if docs, err := s.deps.Store.DataRoomDocs.ListByDeck(ctx, s.deckID); err == nil {
			in.DataRoomDocs = docs
		} else {
			s.log.Warn("kb: load data room documents", "error", err)
		}
		s.kbCtx = kb.Assemble(in)
	})
	return s.kbCtx
}

// initialSuggestions runs once per session after the first attach. KB only;
// no transcript gate.
func (s *Orchestrator) initialSuggestions(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.initialDone = true
		s.mu.Unlock()
	}()
	if s.deps.Suggester == nil {
		return
	}

	res, inserted := s.generateAndInsert(ctx, "")
	if res == nil {
		return
	}
	if len(inserted) == 0 {
		return
	}

	s.send(protocol.ServerSuggestion{
		Type:      protocol.TypeSuggestion,
		Questions: s.visibleWire(ctx),
		Context:   res.Context,
		Topics:    res.Topics,
		Timestamp: wireTime(s.now()),
	})
}

// rollingSuggestions is scheduled from the audio path once the 60 s cadence
// allows. The word gate is evaluated here, off the ingest path; a failed
// gate does not consume the cadence window.
func (s *Orchestrator) rollingSuggestions(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.suggestInFlight = false
		s.mu.Unlock()
	}()
	if s.deps.Suggester == nil {
		return
	}

	now := s.now()
	cutoff := now.Add(-s.cfg.SuggestionWindow)
	finals, err := s.deps.Store.Transcripts.FinalsSince(ctx, s.sessionID, cutoff)
	if err != nil {
		s.log.Warn("suggestions: load finals window", "error", err)
		return
	}
	var words int
	var texts []string
	for _, tr := range finals {
		words += len(strings.Fields(tr.Text))
		texts = append(texts, tr.Text)
	}
	if words < s.cfg.SuggestionMinWords {
		return
	}

	s.mu.Lock()
	s.lastSuggestAt = now
	s.mu.Unlock()

	_, inserted := s.generateAndInsert(ctx, strings.Join(texts, "\n"))
	if len(inserted) == 0 {
		return
	}
	s.send(protocol.ServerQuestionsUpdated{
		Type:      protocol.TypeQuestionsUpdated,
		Questions: s.visibleWire(ctx),
	})
}

// generateAndInsert asks the generator for candidates, filters duplicates
// against the visible set, and head-inserts survivors. Returns the raw
// generator result and the inserted questions.
func (s *Orchestrator) generateAndInsert(ctx context.Context, recentTranscript string) (*suggest.Result, []store.SuggestedQuestion) {
	kbCtx := s.kbContext(ctx)

	s.qmu.Lock()
	sess, err := s.deps.Store.Sessions.Get(ctx, s.sessionID)
	if err != nil {
		s.qmu.Unlock()
		s.log.Warn("suggestions: load session", "error", err)
		return nil, nil
	}
	existing := visibleTexts(sess)
	s.qmu.Unlock()

	res, err := s.deps.Suggester.Generate(ctx, suggest.Request{
		KBContext:         kbCtx,
		RecentTranscript:  recentTranscript,
		ExistingQuestions: existing,
		Count:             s.cfg.SuggestionCount,
	})
	if err != nil {
		s.log.Warn("suggestions: generation failed", "error", err)
		return nil, nil
	}

	s.qmu.Lock()
	defer s.qmu.Unlock()
	sess, err = s.deps.Store.Sessions.Get(ctx, s.sessionID)
	if err != nil {
		s.log.Warn("suggestions: reload session", "error", err)
		return res, nil
	}
	fresh := suggest.FilterNew(res.Questions, visibleTexts(sess))
	if len(fresh) == 0 {
		return res, nil
	}
	inserted := newQuestions(fresh, s.now())
	sess.SuggestedQuestions = append(append([]store.SuggestedQuestion{}, inserted...), sess.SuggestedQuestions...)
	sess.SuggestionCount += len(inserted)
	sess.UpdatedAt = s.now()
	if err := s.deps.Store.Sessions.Update(ctx, sess); err != nil {
		s.log.Error("suggestions: persist session", "error", err)
		return res, nil
	}
	return res, inserted
}

// MarkAnswered flips a question to answered (write-once) and generates
// replacements: the first fresh question takes the answered one's position,
// extras go to the head. Marking an already-answered question is a no-op.
func (s *Orchestrator) MarkAnswered(ctx context.Context, questionID string) (*store.Session, error) {
	s.qmu.Lock()
	sess, err := s.deps.Store.Sessions.Get(ctx, s.sessionID)
	if err != nil {
		s.qmu.Unlock()
		return nil, err
	}
	idx := -1
	for i := range sess.SuggestedQuestions {
		if sess.SuggestedQuestions[i].ID == questionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.qmu.Unlock()
		return nil, core.NewNotFoundError("question not found")
	}
	if sess.SuggestedQuestions[idx].Answered {
		s.qmu.Unlock()
		return sess, nil
	}
	now := s.now()
	sess.SuggestedQuestions[idx].Answered = true
	sess.SuggestedQuestions[idx].AnsweredAt = &now
	sess.UpdatedAt = now
	if err := s.deps.Store.Sessions.Update(ctx, sess); err != nil {
		s.qmu.Unlock()
		return nil, err
	}
	existing := visibleTexts(sess)
	s.qmu.Unlock()

	if s.deps.Suggester != nil {
		s.replaceAnswered(ctx, questionID, existing)
	}

	s.send(protocol.ServerQuestionsUpdated{
		Type:      protocol.TypeQuestionsUpdated,
		Questions: s.visibleWire(ctx),
	})
	return s.deps.Store.Sessions.Get(ctx, s.sessionID)
}

// replaceAnswered generates replacements for one answered question. The
// generator call runs outside the question lock; the commit re-reads state.
func (s *Orchestrator) replaceAnswered(ctx context.Context, questionID string, existing []string) {
	res, err := s.deps.Suggester.Generate(ctx, suggest.Request{
		KBContext:         s.kbContext(ctx),
		ExistingQuestions: existing,
		Count:             s.cfg.SuggestionCount,
	})
	if err != nil {
		s.log.Warn("replacement: generation failed", "error", err)
		return
	}

	s.qmu.Lock()
	defer s.qmu.Unlock()
	sess, err := s.deps.Store.Sessions.Get(ctx, s.sessionID)
	if err != nil {
		s.log.Warn("replacement: reload session", "error", err)
		return
	}
	fresh := suggest.FilterNew(res.Questions, visibleTexts(sess))
	if len(fresh) == 0 {
		return
	}
	inserted := newQuestions(fresh, s.now())

	idx := -1
	for i := range sess.SuggestedQuestions {
		if sess.SuggestedQuestions[i].ID == questionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = 0
	}
	// First replacement takes the answered slot; extras are prepended.
	tail := append([]store.SuggestedQuestion{inserted[0]}, sess.SuggestedQuestions[idx:]...)
	list := append(append([]store.SuggestedQuestion{}, sess.SuggestedQuestions[:idx]...), tail...)
	if len(inserted) > 1 {
		list = append(append([]store.SuggestedQuestion{}, inserted[1:]...), list...)
	}
	sess.SuggestedQuestions = list
	sess.SuggestionCount += len(inserted)
	sess.UpdatedAt = s.now()
	if err := s.deps.Store.Sessions.Update(ctx, sess); err != nil {
		s.log.Error("replacement: persist session", "error", err)
	}
}

// DeleteQuestion soft-deletes a question (write-once) and emits the updated
// visible list. Deleting an already-deleted question is a no-op.
func (s *Orchestrator) DeleteQuestion(ctx context.Context, questionID string) (*store.Session, error) {
	s.qmu.Lock()
	sess, err := s.deps.Store.Sessions.Get(ctx, s.sessionID)
	if err != nil {
		s.qmu.Unlock()
		return nil, err
	}
	idx := -1
	for i := range sess.SuggestedQuestions {
		if sess.SuggestedQuestions[i].ID == questionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.qmu.Unlock()
		return nil, core.NewNotFoundError("question not found")
	}
	if !sess.SuggestedQuestions[idx].Deleted {
		sess.SuggestedQuestions[idx].Deleted = true
		sess.UpdatedAt = s.now()
		if err := s.deps.Store.Sessions.Update(ctx, sess); err != nil {
			s.qmu.Unlock()
			return nil, err
		}
	}
	s.qmu.Unlock()

	s.send(protocol.ServerQuestionsUpdated{
		Type:      protocol.TypeQuestionsUpdated,
		Questions: s.visibleWire(ctx),
	})
	return sess, nil
}

// replayQuestions re-sends the currently-visible question list after a
// (re)attach so the client can rebuild its view.
func (s *Orchestrator) replayQuestions(ctx context.Context) {
	questions := s.visibleWire(ctx)
	if len(questions) == 0 {
		return
	}
	s.send(protocol.ServerQuestionsUpdated{
		Type:      protocol.TypeQuestionsUpdated,
		Questions: questions,
	})
}

func (s *Orchestrator) visibleWire(ctx context.Context) []protocol.Question {
	sess, err := s.deps.Store.Sessions.Get(ctx, s.sessionID)
	if err != nil {
		s.log.Warn("load session for question replay", "error", err)
		return nil
	}
	return questionsToWire(sess.VisibleQuestions())
}

func visibleTexts(sess *store.Session) []string {
	visible := sess.VisibleQuestions()
	out := make([]string, 0, len(visible))
	for _, q := range visible {
		out = append(out, q.Text)
	}
	return out
}

func newQuestions(texts []string, now time.Time) []store.SuggestedQuestion {
	out := make([]store.SuggestedQuestion, 0, len(texts))
	for _, text := range texts {
		out = append(out, store.SuggestedQuestion{
			ID:        uuid.NewString(),
			Text:      text,
			CreatedAt: now,
		})
	}
	return out
}

func questionsToWire(questions []store.SuggestedQuestion) []protocol.Question {
	out := make([]protocol.Question, 0, len(questions))
	for _, q := range questions {
		wq := protocol.Question{
			ID:        q.ID,
			Text:      q.Text,
			Answered:  q.Answered,
			CreatedAt: wireTime(q.CreatedAt),
		}
		if q.AnsweredAt != nil {
			wq.AnsweredAt = wireTime(*q.AnsweredAt)
		}
		out = append(out, wq)
	}
	return out
}
