package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by all repositories when the keyed entity does not
// exist.
var ErrNotFound = errors.New("not found")

// SessionRepository manages session persistence.
type SessionRepository interface {
	Create(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, sess *Session) error
	ListByDeck(ctx context.Context, deckID string) ([]Session, error)
}

// TranscriptRepository manages transcript persistence. Listing is always
// ordered by timestamp ascending.
type TranscriptRepository interface {
	Append(ctx context.Context, tr *Transcript) error
	AppendBatch(ctx context.Context, trs []Transcript) error
	ListBySession(ctx context.Context, sessionID string) ([]Transcript, error)
	CountBySession(ctx context.Context, sessionID string) (int, error)
	// FinalsSince returns final transcripts with timestamps at or after the
	// cutoff, ordered by timestamp ascending. Used by the suggestion gate.
	FinalsSince(ctx context.Context, sessionID string, cutoff time.Time) ([]Transcript, error)
}

// DeckRepository reads deck metadata and prior analysis.
type DeckRepository interface {
	Get(ctx context.Context, id string) (*Deck, error)
}

// ThesisRepository reads the tenant's thesis profile.
type ThesisRepository interface {
	GetByTenant(ctx context.Context, tenantID string) (*Thesis, error)
}

// MessageRepository reads prior analysis turns for a deck.
type MessageRepository interface {
	ListByDeck(ctx context.Context, deckID string) ([]Message, error)
}

// SupportingDocumentRepository reads supporting documents for a deck.
type SupportingDocumentRepository interface {
	ListByDeck(ctx context.Context, deckID string) ([]SupportingDocument, error)
}

// DataRoomDocumentRepository reads data-room documents for a deck.
type DataRoomDocumentRepository interface {
	ListByDeck(ctx context.Context, deckID string) ([]DataRoomDocument, error)
}

// OrganizationRepository reads tenants.
type OrganizationRepository interface {
	Get(ctx context.Context, id string) (*Organization, error)
}

// UserRepository reads users.
type UserRepository interface {
	Get(ctx context.Context, id string) (*User, error)
}

// Store bundles every repository behind one injection point.
type Store struct {
	Sessions       SessionRepository
	Transcripts    TranscriptRepository
	Decks          DeckRepository
	Theses         ThesisRepository
	Messages       MessageRepository
	SupportingDocs SupportingDocumentRepository
	DataRoomDocs   DataRoomDocumentRepository
	Organizations  OrganizationRepository
	Users          UserRepository
}
