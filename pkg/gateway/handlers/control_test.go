package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/deckroom/deckroom/pkg/gateway/keys"
	"github.com/deckroom/deckroom/pkg/gateway/live/sessions"
	"github.com/deckroom/deckroom/pkg/store"
	"github.com/deckroom/deckroom/pkg/store/memory"
)

type controlEnv struct {
	st       *memory.Store
	registry *sessions.Registry
	tokens   *keys.AttachToken
	mux      *http.ServeMux
}

func newControlEnv(t *testing.T) *controlEnv {
	t.Helper()
	st := memory.New()
	st.PutDeck(store.Deck{ID: "deck-1", TenantID: "org-1", Title: "Acme Robotics", Status: "analyzed"})

	e := &controlEnv{
		st:       st,
		registry: sessions.NewRegistry(),
		tokens:   keys.NewAttachToken("test-secret"),
		mux:      http.NewServeMux(),
	}
	ctrl := SessionsHandler{
		Store:        st.Bundle(),
		Registry:     e.registry,
		AttachTokens: e.tokens,
	}
	e.mux.HandleFunc("POST /v1/sessions", ctrl.Create)
	e.mux.HandleFunc("POST /v1/sessions/{id}/stop", ctrl.Stop)
	e.mux.HandleFunc("GET /v1/sessions/{id}", ctrl.Get)
	e.mux.HandleFunc("GET /v1/sessions/{id}/transcript", ctrl.Transcript)
	e.mux.HandleFunc("POST /v1/sessions/{id}/questions/{qid}/answered", ctrl.MarkAnswered)
	e.mux.HandleFunc("DELETE /v1/sessions/{id}/questions/{qid}", ctrl.DeleteQuestion)
	return e
}

func (e *controlEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("{}")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *controlEnv) createSession(t *testing.T) (sessionID, token string) {
	t.Helper()
	rec := e.do(t, "POST", "/v1/sessions", `{"deck_id":"deck-1","title":"Pitch call"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		SessionID   string `json:"session_id"`
		AttachToken string `json:"attach_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.SessionID, resp.AttachToken
}

func TestCreateSession(t *testing.T) {
	e := newControlEnv(t)
	id, token := e.createSession(t)
	if id == "" || token == "" {
		t.Fatalf("id=%q token=%q", id, token)
	}

	tokSession, tokTenant, err := e.tokens.Verify(token)
	if err != nil || tokSession != id || tokTenant != "org-1" {
		t.Fatalf("token binds (%q,%q) err=%v", tokSession, tokTenant, err)
	}

	rec := e.do(t, "GET", "/v1/sessions/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status=%d", rec.Code)
	}
	var snap sessionJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Status != "active" || snap.Title != "Pitch call" || snap.DeckID != "deck-1" {
		t.Fatalf("snapshot=%+v", snap)
	}
	if snap.SummaryState != "pending" {
		t.Fatalf("summary_state=%q", snap.SummaryState)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	e := newControlEnv(t)

	rec := e.do(t, "POST", "/v1/sessions", `{"title":"no deck"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing deck_id: status=%d", rec.Code)
	}

	rec = e.do(t, "POST", "/v1/sessions", `{"deck_id":"deck-unknown"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown deck: status=%d", rec.Code)
	}

	rec = e.do(t, "POST", "/v1/sessions", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body: status=%d", rec.Code)
	}
}

func TestStopWithoutLiveAttach(t *testing.T) {
	e := newControlEnv(t)
	id, _ := e.createSession(t)

	rec := e.do(t, "POST", "/v1/sessions/"+id+"/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var snap sessionJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Status != "ended" || snap.EndedAt == nil || snap.DurationSeconds == nil {
		t.Fatalf("snapshot=%+v", snap)
	}
	// A session that never attached has no audio; the summary is the fallback.
	if snap.SummaryState != "completed" || snap.Summary == nil {
		t.Fatalf("summary: state=%q summary=%v", snap.SummaryState, snap.Summary)
	}

	// Idempotent: stopping again keeps the first snapshot.
	rec2 := e.do(t, "POST", "/v1/sessions/"+id+"/stop", "")
	if rec2.Code != http.StatusOK {
		t.Fatalf("second stop: status=%d", rec2.Code)
	}
	var snap2 sessionJSON
	if err := json.Unmarshal(rec2.Body.Bytes(), &snap2); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap2.EndedAt == nil || !snap2.EndedAt.Equal(*snap.EndedAt) {
		t.Fatalf("ended_at changed: %v -> %v", snap.EndedAt, snap2.EndedAt)
	}

	rec = e.do(t, "POST", "/v1/sessions/nope/stop", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session: status=%d", rec.Code)
	}
}

func TestTranscriptEndpoint(t *testing.T) {
	e := newControlEnv(t)
	id, _ := e.createSession(t)

	base := time.Now()
	speaker := "Speaker 1"
	err := e.st.Bundle().Transcripts.AppendBatch(context.Background(), []store.Transcript{
		{ID: "t1", SessionID: id, DeckID: "deck-1", Timestamp: base, Text: "Thanks for joining.", IsFinal: true, Speaker: &speaker},
		{ID: "t2", SessionID: id, DeckID: "deck-1", Timestamp: base.Add(time.Second), Text: "Let's begin.", IsFinal: true},
	})
	if err != nil {
		t.Fatalf("seed transcripts: %v", err)
	}

	rec := e.do(t, "GET", "/v1/sessions/"+id+"/transcript", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var resp struct {
		SessionID   string `json:"session_id"`
		Transcripts []struct {
			Text    string  `json:"text"`
			Speaker *string `json:"speaker"`
			IsFinal bool    `json:"is_final"`
		} `json:"transcripts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != id || len(resp.Transcripts) != 2 {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.Transcripts[0].Text != "Thanks for joining." || resp.Transcripts[0].Speaker == nil {
		t.Fatalf("first entry=%+v", resp.Transcripts[0])
	}

	rec = e.do(t, "GET", "/v1/sessions/nope/transcript", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session: status=%d", rec.Code)
	}
}

func TestQuestionMutationsStoreDirect(t *testing.T) {
	e := newControlEnv(t)
	id, _ := e.createSession(t)

	ctx := context.Background()
	sess, err := e.st.Bundle().Sessions.Get(ctx, id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess.SuggestedQuestions = []store.SuggestedQuestion{
		{ID: "q1", Text: "How large is the market?", CreatedAt: time.Now()},
		{ID: "q2", Text: "What is the burn rate?", CreatedAt: time.Now()},
	}
	if err := e.st.Bundle().Sessions.Update(ctx, sess); err != nil {
		t.Fatalf("seed questions: %v", err)
	}

	rec := e.do(t, "POST", "/v1/sessions/"+id+"/questions/q1/answered", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("answered: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var snap sessionJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var answeredAt *time.Time
	for _, q := range snap.SuggestedQuestions {
		if q.ID == "q1" {
			if !q.Answered || q.AnsweredAt == nil {
				t.Fatalf("q1=%+v", q)
			}
			answeredAt = q.AnsweredAt
		}
	}
	if answeredAt == nil {
		t.Fatalf("q1 missing from snapshot")
	}

	// Write-once: the second mark preserves the original answered_at.
	rec = e.do(t, "POST", "/v1/sessions/"+id+"/questions/q1/answered", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("second answered: status=%d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, q := range snap.SuggestedQuestions {
		if q.ID == "q1" && !q.AnsweredAt.Equal(*answeredAt) {
			t.Fatalf("answered_at mutated: %v -> %v", answeredAt, q.AnsweredAt)
		}
	}

	rec = e.do(t, "DELETE", "/v1/sessions/"+id+"/questions/q2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status=%d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, q := range snap.SuggestedQuestions {
		if q.ID == "q2" {
			t.Fatalf("deleted question still visible")
		}
	}

	rec = e.do(t, "POST", "/v1/sessions/"+id+"/questions/nope/answered", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown question: status=%d", rec.Code)
	}
}
