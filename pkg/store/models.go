package store

import (
	"encoding/json"
	"time"
)

// SessionStatus is the lifecycle state of a meeting session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
	SessionFailed SessionStatus = "failed"
)

// SummaryState tracks the end-of-session summary pipeline.
type SummaryState string

const (
	SummaryPending    SummaryState = "pending"
	SummaryGenerating SummaryState = "generating"
	SummaryCompleted  SummaryState = "completed"
	SummaryFailed     SummaryState = "failed"
)

// Session is one meeting. Sessions are never deleted; they are
// soft-deactivated by status.
type Session struct {
	ID                 string
	DeckID             string
	TenantID           string
	OwnerID            string
	Title              string
	Status             SessionStatus
	StartedAt          time.Time
	EndedAt            *time.Time
	DurationSeconds    *float64
	TranscriptCount    int
	SuggestionCount    int
	DetectedLanguages  []string
	Summary            *string
	SummaryState       SummaryState
	SuggestedQuestions []SuggestedQuestion
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SuggestedQuestion is embedded in a session. Answered and Deleted are
// write-once true.
type SuggestedQuestion struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Answered   bool       `json:"answered"`
	Deleted    bool       `json:"deleted"`
	CreatedAt  time.Time  `json:"created_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}

// VisibleQuestions returns the non-deleted questions, newest first.
func (s *Session) VisibleQuestions() []SuggestedQuestion {
	out := make([]SuggestedQuestion, 0, len(s.SuggestedQuestions))
	for _, q := range s.SuggestedQuestions {
		if !q.Deleted {
			out = append(out, q)
		}
	}
	return out
}

// Transcript is one utterance fragment. IsFinal records are immutable;
// multiple non-final records may share a timestamp.
type Transcript struct {
	ID           string
	SessionID    string
	DeckID       string
	Timestamp    time.Time
	Text         string
	Speaker      *string
	SpeakerID    *int
	IsFinal      bool
	Confidence   *float64
	LanguageCode *string
}

// Deck is the subject document of a meeting, with any prior analysis.
type Deck struct {
	ID              string
	TenantID        string
	Title           string
	Status          string
	AnalysisVersion int
	Analysis        json.RawMessage
}

// ThesisContentKind tags the two shapes thesis content can take.
type ThesisContentKind string

const (
	ThesisStructured ThesisContentKind = "structured"
	ThesisRawText    ThesisContentKind = "raw_text"
)

// ThesisContent is a tagged variant: a structured profile or raw text.
type ThesisContent struct {
	Kind       ThesisContentKind `json:"kind"`
	Structured json.RawMessage   `json:"structured,omitempty"`
	RawText    string            `json:"raw_text,omitempty"`
}

// Thesis is the firm's investment preferences profile.
type Thesis struct {
	ID       string
	TenantID string
	Name     string
	Content  ThesisContent
}

// Message is one prior analysis turn on a deck: user query plus AI response.
type Message struct {
	ID         string
	DeckID     string
	UserQuery  string
	AIResponse string
	CreatedAt  time.Time
}

// SupportingDocument is an uploaded document attached to a deck.
type SupportingDocument struct {
	ID          string
	DeckID      string
	Title       string
	Description string
}

// DataRoomDocument is a data-room artifact with an AI-generated summary.
type DataRoomDocument struct {
	ID        string
	DeckID    string
	Title     string
	Category  string
	AISummary string
}

// Organization is a tenant. ProviderKeyCiphertext holds the tenant's
// transcription provider key encrypted at rest; empty means the process-wide
// key applies.
type Organization struct {
	ID                    string
	Name                  string
	ProviderKeyCiphertext []byte
}

// User is a member of an organization.
type User struct {
	ID    string
	OrgID string
	Email string
	Name  string
}
