package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deckroom/deckroom/pkg/core"
	"github.com/deckroom/deckroom/pkg/core/summarize"
	"github.com/deckroom/deckroom/pkg/gateway/config"
	"github.com/deckroom/deckroom/pkg/gateway/keys"
	"github.com/deckroom/deckroom/pkg/gateway/live/sessions"
	"github.com/deckroom/deckroom/pkg/gateway/mw"
	"github.com/deckroom/deckroom/pkg/store"
)

// SessionsHandler serves the control API: creating and stopping sessions,
// reading snapshots and transcripts, and question state changes. Question
// mutations go through the live orchestrator when the session is live so
// replacements and socket notifications fire; otherwise they hit the store
// directly.
type SessionsHandler struct {
	Config       config.Config
	Logger       *slog.Logger
	Store        *store.Store
	Registry     *sessions.Registry
	AttachTokens *keys.AttachToken
	Now          func() time.Time
}

func (h SessionsHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

type questionJSON struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Answered   bool       `json:"answered"`
	CreatedAt  time.Time  `json:"created_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}

type sessionJSON struct {
	ID                 string         `json:"id"`
	DeckID             string         `json:"deck_id"`
	Title              string         `json:"title,omitempty"`
	Status             string         `json:"status"`
	StartedAt          time.Time      `json:"started_at"`
	EndedAt            *time.Time     `json:"ended_at,omitempty"`
	DurationSeconds    *float64       `json:"duration_seconds,omitempty"`
	TranscriptCount    int            `json:"transcript_count"`
	SuggestionCount    int            `json:"suggestion_count"`
	DetectedLanguages  []string       `json:"detected_languages,omitempty"`
	Summary            *string        `json:"summary,omitempty"`
	SummaryState       string         `json:"summary_state"`
	SuggestedQuestions []questionJSON `json:"suggested_questions"`
}

func sessionToJSON(sess *store.Session) sessionJSON {
	visible := sess.VisibleQuestions()
	questions := make([]questionJSON, 0, len(visible))
	for _, q := range visible {
		questions = append(questions, questionJSON{
			ID:         q.ID,
			Text:       q.Text,
			Answered:   q.Answered,
			CreatedAt:  q.CreatedAt,
			AnsweredAt: q.AnsweredAt,
		})
	}
	return sessionJSON{
		ID:                 sess.ID,
		DeckID:             sess.DeckID,
		Title:              sess.Title,
		Status:             string(sess.Status),
		StartedAt:          sess.StartedAt,
		EndedAt:            sess.EndedAt,
		DurationSeconds:    sess.DurationSeconds,
		TranscriptCount:    sess.TranscriptCount,
		SuggestionCount:    sess.SuggestionCount,
		DetectedLanguages:  sess.DetectedLanguages,
		Summary:            sess.Summary,
		SummaryState:       string(sess.SummaryState),
		SuggestedQuestions: questions,
	}
}

// Create starts a new meeting session against an existing deck and returns
// the attach token for the live channel.
func (h SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeckID string `json:"deck_id"`
		Title  string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, core.NewInvalidRequestError("invalid json body"))
		return
	}
	if strings.TrimSpace(req.DeckID) == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("deck_id is required", "deck_id"))
		return
	}

	deck, err := h.Store.Decks.Get(r.Context(), req.DeckID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	now := h.now()
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = deck.Title
	}
	sess := &store.Session{
		ID:           uuid.NewString(),
		DeckID:       deck.ID,
		TenantID:     deck.TenantID,
		Title:        title,
		Status:       store.SessionActive,
		StartedAt:    now,
		SummaryState: store.SummaryPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.Store.Sessions.Create(r.Context(), sess); err != nil {
		writeError(w, r, err)
		return
	}

	var token string
	if h.AttachTokens != nil {
		token = h.AttachTokens.Mint(sess.ID, sess.TenantID)
	}

	reqID, _ := mw.RequestIDFrom(r.Context())
	if h.Logger != nil {
		h.Logger.Info("session created", "request_id", reqID, "session_id", sess.ID, "deck_id", deck.ID)
	}
	writeJSON(w, http.StatusCreated, struct {
		SessionID   string    `json:"session_id"`
		AttachToken string    `json:"attach_token,omitempty"`
		StartedAt   time.Time `json:"started_at"`
	}{sess.ID, token, sess.StartedAt})
}

// Stop ends a session. Live sessions go through the orchestrator so
// finalization runs; sessions that never attached are closed directly with a
// fallback summary. Stopping an already-ended session returns its snapshot.
func (h SessionsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if o, ok := h.Registry.Get(id); ok {
		sess, err := o.Stop(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionToJSON(sess))
		return
	}

	sess, err := h.Store.Sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sess.Status == store.SessionActive {
		now := h.now()
		duration := now.Sub(sess.StartedAt).Seconds()
		summary := summarize.Fallback(summarize.Meeting{
			Title:           sess.Title,
			DurationSeconds: duration,
		})
		sess.Status = store.SessionEnded
		sess.EndedAt = &now
		sess.DurationSeconds = &duration
		sess.Summary = &summary
		sess.SummaryState = store.SummaryCompleted
		sess.UpdatedAt = now
		if err := h.Store.Sessions.Update(r.Context(), sess); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, sessionToJSON(sess))
}

// Get returns the session snapshot with its visible questions.
func (h SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Store.Sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionToJSON(sess))
}

// Transcript returns the session's transcript entries, timestamp ascending.
func (h SessionsHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.Store.Sessions.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	trs, err := h.Store.Transcripts.ListBySession(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	type transcriptJSON struct {
		ID           string    `json:"id"`
		Timestamp    time.Time `json:"timestamp"`
		Text         string    `json:"text"`
		Speaker      *string   `json:"speaker,omitempty"`
		SpeakerID    *int      `json:"speaker_id,omitempty"`
		IsFinal      bool      `json:"is_final"`
		LanguageCode *string   `json:"language_code,omitempty"`
	}
	out := make([]transcriptJSON, 0, len(trs))
	for _, tr := range trs {
		out = append(out, transcriptJSON{
			ID:           tr.ID,
			Timestamp:    tr.Timestamp,
			Text:         tr.Text,
			Speaker:      tr.Speaker,
			SpeakerID:    tr.SpeakerID,
			IsFinal:      tr.IsFinal,
			LanguageCode: tr.LanguageCode,
		})
	}
	writeJSON(w, http.StatusOK, struct {
		SessionID   string           `json:"session_id"`
		Transcripts []transcriptJSON `json:"transcripts"`
	}{id, out})
}

// MarkAnswered flips a question to answered. Write-once: marking an
// already-answered question is a no-op.
func (h SessionsHandler) MarkAnswered(w http.ResponseWriter, r *http.Request) {
	id, qid := r.PathValue("id"), r.PathValue("qid")

	if o, ok := h.Registry.Get(id); ok {
		sess, err := o.MarkAnswered(r.Context(), qid)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionToJSON(sess))
		return
	}

	sess, err := h.Store.Sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	idx := questionIndex(sess, qid)
	if idx < 0 {
		writeError(w, r, core.NewNotFoundError("question not found"))
		return
	}
	if !sess.SuggestedQuestions[idx].Answered {
		now := h.now()
		sess.SuggestedQuestions[idx].Answered = true
		sess.SuggestedQuestions[idx].AnsweredAt = &now
		sess.UpdatedAt = now
		if err := h.Store.Sessions.Update(r.Context(), sess); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, sessionToJSON(sess))
}

// DeleteQuestion soft-deletes a question. Write-once: deleting again is a
// no-op.
func (h SessionsHandler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, qid := r.PathValue("id"), r.PathValue("qid")

	if o, ok := h.Registry.Get(id); ok {
		sess, err := o.DeleteQuestion(r.Context(), qid)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionToJSON(sess))
		return
	}

	sess, err := h.Store.Sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	idx := questionIndex(sess, qid)
	if idx < 0 {
		writeError(w, r, core.NewNotFoundError("question not found"))
		return
	}
	if !sess.SuggestedQuestions[idx].Deleted {
		sess.SuggestedQuestions[idx].Deleted = true
		sess.UpdatedAt = h.now()
		if err := h.Store.Sessions.Update(r.Context(), sess); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, sessionToJSON(sess))
}

func questionIndex(sess *store.Session, questionID string) int {
	for i := range sess.SuggestedQuestions {
		if sess.SuggestedQuestions[i].ID == questionID {
			return i
		}
	}
	return -1
}
