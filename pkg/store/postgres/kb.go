package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deckroom/deckroom/pkg/store"
)

type deckRepo struct {
	pool *pgxpool.Pool
}

func (r *deckRepo) Get(ctx context.Context, id string) (*store.Deck, error) {
	var deck store.Deck
	var analysis []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, title, status, analysis_version, analysis
		FROM decks WHERE id = $1`, id).
		Scan(&deck.ID, &deck.TenantID, &deck.Title, &deck.Status,
			&deck.AnalysisVersion, &analysis)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get deck: %w", err)
	}
	deck.Analysis = json.RawMessage(analysis)
	return &deck, nil
}

type thesisRepo struct {
	pool *pgxpool.Pool
}

func (r *thesisRepo) GetByTenant(ctx context.Context, tenantID string) (*store.Thesis, error) {
	var thesis store.Thesis
	var content []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, content
		FROM theses WHERE tenant_id = $1`, tenantID).
		Scan(&thesis.ID, &thesis.TenantID, &thesis.Name, &content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get thesis: %w", err)
	}
	if err := json.Unmarshal(content, &thesis.Content); err != nil {
		return nil, fmt.Errorf("decode thesis content: %w", err)
	}
	return &thesis, nil
}

type messageRepo struct {
	pool *pgxpool.Pool
}

func (r *messageRepo) ListByDeck(ctx context.Context, deckID string) ([]store.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, deck_id, user_query, ai_response, created_at
		FROM messages WHERE deck_id = $1 ORDER BY created_at ASC`, deckID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.DeckID, &msg.UserQuery, &msg.AIResponse, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

type supportingDocRepo struct {
	pool *pgxpool.Pool
}

func (r *supportingDocRepo) ListByDeck(ctx context.Context, deckID string) ([]store.SupportingDocument, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, deck_id, title, description
		FROM supporting_documents WHERE deck_id = $1 ORDER BY id`, deckID)
	if err != nil {
		return nil, fmt.Errorf("list supporting documents: %w", err)
	}
	defer rows.Close()

	var out []store.SupportingDocument
	for rows.Next() {
		var doc store.SupportingDocument
		if err := rows.Scan(&doc.ID, &doc.DeckID, &doc.Title, &doc.Description); err != nil {
			return nil, fmt.Errorf("scan supporting document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

type dataRoomDocRepo struct {
	pool *pgxpool.Pool
}

func (r *dataRoomDocRepo) ListByDeck(ctx context.Context, deckID string) ([]store.DataRoomDocument, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, deck_id, title, category, ai_summary
		FROM data_room_documents WHERE deck_id = $1 ORDER BY id`, deckID)
	if err != nil {
		return nil, fmt.Errorf("list data room documents: %w", err)
	}
	defer rows.Close()

	var out []store.DataRoomDocument
	for rows.Next() {
		var doc store.DataRoomDocument
		if err := rows.Scan(&doc.ID, &doc.DeckID, &doc.Title, &doc.Category, &doc.AISummary); err != nil {
			return nil, fmt.Errorf("scan data room document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

type orgRepo struct {
	pool *pgxpool.Pool
}

func (r *orgRepo) Get(ctx context.Context, id string) (*store.Organization, error) {
	var org store.Organization
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, provider_key_ciphertext
		FROM organizations WHERE id = $1`, id).
		Scan(&org.ID, &org.Name, &org.ProviderKeyCiphertext)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &org, nil
}

type userRepo struct {
	pool *pgxpool.Pool
}

func (r *userRepo) Get(ctx context.Context, id string) (*store.User, error) {
	var u store.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, org_id, email, name FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.OrgID, &u.Email, &u.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}
