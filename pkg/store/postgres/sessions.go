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

type sessionRepo struct {
	pool *pgxpool.Pool
}

const sessionColumns = `id, deck_id, tenant_id, owner_id, title, status, started_at,
	ended_at, duration_seconds, transcript_count, suggestion_count,
	detected_languages, summary, summary_state, suggested_questions,
	created_at, updated_at`

func (r *sessionRepo) Create(ctx context.Context, sess *store.Session) error {
	questions, err := json.Marshal(sess.SuggestedQuestions)
	if err != nil {
		return fmt.Errorf("encode suggested questions: %w", err)
	}
	langs := sess.DetectedLanguages
	if langs == nil {
		langs = []string{}
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		sess.ID, sess.DeckID, sess.TenantID, nullIfEmpty(sess.OwnerID), sess.Title,
		sess.Status, sess.StartedAt, sess.EndedAt, sess.DurationSeconds,
		sess.TranscriptCount, sess.SuggestionCount, langs,
		sess.Summary, sess.SummaryState, questions,
		sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *sessionRepo) Get(ctx context.Context, id string) (*store.Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (r *sessionRepo) Update(ctx context.Context, sess *store.Session) error {
	questions, err := json.Marshal(sess.SuggestedQuestions)
	if err != nil {
		return fmt.Errorf("encode suggested questions: %w", err)
	}
	langs := sess.DetectedLanguages
	if langs == nil {
		langs = []string{}
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions SET
			title = $2, status = $3, ended_at = $4, duration_seconds = $5,
			transcript_count = $6, suggestion_count = $7, detected_languages = $8,
			summary = $9, summary_state = $10, suggested_questions = $11,
			updated_at = $12
		WHERE id = $1`,
		sess.ID, sess.Title, sess.Status, sess.EndedAt, sess.DurationSeconds,
		sess.TranscriptCount, sess.SuggestionCount, langs,
		sess.Summary, sess.SummaryState, questions, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *sessionRepo) ListByDeck(ctx context.Context, deckID string) ([]store.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE deck_id = $1 ORDER BY started_at ASC`, deckID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []store.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// nullIfEmpty maps an optional identifier to NULL. The owner column has a
// foreign key, so an absent owner must not be stored as the empty string.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanSession(row pgx.Row) (*store.Session, error) {
	var sess store.Session
	var questions []byte
	var owner *string
	err := row.Scan(&sess.ID, &sess.DeckID, &sess.TenantID, &owner,
		&sess.Title, &sess.Status, &sess.StartedAt, &sess.EndedAt,
		&sess.DurationSeconds, &sess.TranscriptCount, &sess.SuggestionCount,
		&sess.DetectedLanguages, &sess.Summary, &sess.SummaryState,
		&questions, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if owner != nil {
		sess.OwnerID = *owner
	}
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &sess.SuggestedQuestions); err != nil {
			return nil, fmt.Errorf("decode suggested questions: %w", err)
		}
	}
	return &sess, nil
}
