// Package memory provides mutex-guarded in-memory repositories. It backs
// tests and single-node development; the postgres package is the production
// store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/deckroom/deckroom/pkg/store"
)

// Store holds every collection behind one lock. Repository views are
// obtained through Bundle.
type Store struct {
	mu             sync.RWMutex
	sessions       map[string]store.Session
	transcripts    map[string][]store.Transcript
	decks          map[string]store.Deck
	theses         map[string]store.Thesis // keyed by tenant id
	messages       map[string][]store.Message
	supportingDocs map[string][]store.SupportingDocument
	dataRoomDocs   map[string][]store.DataRoomDocument
	organizations  map[string]store.Organization
	users          map[string]store.User
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		sessions:       make(map[string]store.Session),
		transcripts:    make(map[string][]store.Transcript),
		decks:          make(map[string]store.Deck),
		theses:         make(map[string]store.Thesis),
		messages:       make(map[string][]store.Message),
		supportingDocs: make(map[string][]store.SupportingDocument),
		dataRoomDocs:   make(map[string][]store.DataRoomDocument),
		organizations:  make(map[string]store.Organization),
		users:          make(map[string]store.User),
	}
}

// Bundle exposes the store through the repository interfaces.
func (s *Store) Bundle() *store.Store {
	return &store.Store{
		Sessions:       &sessionRepo{s},
		Transcripts:    &transcriptRepo{s},
		Decks:          &deckRepo{s},
		Theses:         &thesisRepo{s},
		Messages:       &messageRepo{s},
		SupportingDocs: &supportingDocRepo{s},
		DataRoomDocs:   &dataRoomDocRepo{s},
		Organizations:  &orgRepo{s},
		Users:          &userRepo{s},
	}
}

func cloneSession(sess store.Session) *store.Session {
	out := sess
	out.DetectedLanguages = append([]string(nil), sess.DetectedLanguages...)
	out.SuggestedQuestions = append([]store.SuggestedQuestion(nil), sess.SuggestedQuestions...)
	if sess.EndedAt != nil {
		t := *sess.EndedAt
		out.EndedAt = &t
	}
	if sess.DurationSeconds != nil {
		d := *sess.DurationSeconds
		out.DurationSeconds = &d
	}
	if sess.Summary != nil {
		v := *sess.Summary
		out.Summary = &v
	}
	return &out
}

type sessionRepo struct{ s *Store }

func (r *sessionRepo) Create(_ context.Context, sess *store.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.sessions[sess.ID] = *cloneSession(*sess)
	return nil
}

func (r *sessionRepo) Get(_ context.Context, id string) (*store.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSession(sess), nil
}

func (r *sessionRepo) Update(_ context.Context, sess *store.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sessions[sess.ID]; !ok {
		return store.ErrNotFound
	}
	r.s.sessions[sess.ID] = *cloneSession(*sess)
	return nil
}

func (r *sessionRepo) ListByDeck(_ context.Context, deckID string) ([]store.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []store.Session
	for _, sess := range r.s.sessions {
		if sess.DeckID == deckID {
			out = append(out, *cloneSession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

type transcriptRepo struct{ s *Store }

func (r *transcriptRepo) Append(_ context.Context, tr *store.Transcript) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.transcripts[tr.SessionID] = append(r.s.transcripts[tr.SessionID], *tr)
	return nil
}

func (r *transcriptRepo) AppendBatch(_ context.Context, trs []store.Transcript) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, tr := range trs {
		r.s.transcripts[tr.SessionID] = append(r.s.transcripts[tr.SessionID], tr)
	}
	return nil
}

func (r *transcriptRepo) ListBySession(_ context.Context, sessionID string) ([]store.Transcript, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := append([]store.Transcript(nil), r.s.transcripts[sessionID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *transcriptRepo) CountBySession(_ context.Context, sessionID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.transcripts[sessionID]), nil
}

func (r *transcriptRepo) FinalsSince(_ context.Context, sessionID string, cutoff time.Time) ([]store.Transcript, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []store.Transcript
	for _, tr := range r.s.transcripts[sessionID] {
		if tr.IsFinal && !tr.Timestamp.Before(cutoff) {
			out = append(out, tr)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

type deckRepo struct{ s *Store }

func (r *deckRepo) Get(_ context.Context, id string) (*store.Deck, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	deck, ok := r.s.decks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := deck
	return &out, nil
}

type thesisRepo struct{ s *Store }

func (r *thesisRepo) GetByTenant(_ context.Context, tenantID string) (*store.Thesis, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	thesis, ok := r.s.theses[tenantID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := thesis
	return &out, nil
}

type messageRepo struct{ s *Store }

func (r *messageRepo) ListByDeck(_ context.Context, deckID string) ([]store.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := append([]store.Message(nil), r.s.messages[deckID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type supportingDocRepo struct{ s *Store }

func (r *supportingDocRepo) ListByDeck(_ context.Context, deckID string) ([]store.SupportingDocument, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]store.SupportingDocument(nil), r.s.supportingDocs[deckID]...), nil
}

type dataRoomDocRepo struct{ s *Store }

func (r *dataRoomDocRepo) ListByDeck(_ context.Context, deckID string) ([]store.DataRoomDocument, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]store.DataRoomDocument(nil), r.s.dataRoomDocs[deckID]...), nil
}

type orgRepo struct{ s *Store }

func (r *orgRepo) Get(_ context.Context, id string) (*store.Organization, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	org, ok := r.s.organizations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := org
	return &out, nil
}

type userRepo struct{ s *Store }

func (r *userRepo) Get(_ context.Context, id string) (*store.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := u
	return &out, nil
}

// Seed helpers for tests and local bootstrapping.

func (s *Store) PutDeck(deck store.Deck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decks[deck.ID] = deck
}

func (s *Store) PutThesis(thesis store.Thesis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.theses[thesis.TenantID] = thesis
}

func (s *Store) PutMessage(msg store.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.DeckID] = append(s.messages[msg.DeckID], msg)
}

func (s *Store) PutSupportingDocument(doc store.SupportingDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supportingDocs[doc.DeckID] = append(s.supportingDocs[doc.DeckID], doc)
}

func (s *Store) PutDataRoomDocument(doc store.DataRoomDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataRoomDocs[doc.DeckID] = append(s.dataRoomDocs[doc.DeckID], doc)
}

func (s *Store) PutOrganization(org store.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.organizations[org.ID] = org
}

func (s *Store) PutUser(u store.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}
