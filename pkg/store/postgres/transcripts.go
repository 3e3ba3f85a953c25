package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deckroom/deckroom/pkg/store"
)

type transcriptRepo struct {
	pool *pgxpool.Pool
}

const transcriptColumns = `id, session_id, deck_id, ts, text, speaker, speaker_id,
	is_final, confidence, language_code`

func (r *transcriptRepo) Append(ctx context.Context, tr *store.Transcript) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO transcripts (`+transcriptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tr.ID, tr.SessionID, tr.DeckID, tr.Timestamp, tr.Text,
		tr.Speaker, tr.SpeakerID, tr.IsFinal, tr.Confidence, tr.LanguageCode)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

func (r *transcriptRepo) AppendBatch(ctx context.Context, trs []store.Transcript) error {
	if len(trs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, tr := range trs {
		batch.Queue(`
			INSERT INTO transcripts (`+transcriptColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			tr.ID, tr.SessionID, tr.DeckID, tr.Timestamp, tr.Text,
			tr.Speaker, tr.SpeakerID, tr.IsFinal, tr.Confidence, tr.LanguageCode)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range trs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert transcript batch: %w", err)
		}
	}
	return nil
}

func (r *transcriptRepo) ListBySession(ctx context.Context, sessionID string) ([]store.Transcript, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+transcriptColumns+` FROM transcripts
		WHERE session_id = $1 ORDER BY ts ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()
	return scanTranscripts(rows)
}

func (r *transcriptRepo) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM transcripts WHERE session_id = $1`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transcripts: %w", err)
	}
	return n, nil
}

func (r *transcriptRepo) FinalsSince(ctx context.Context, sessionID string, cutoff time.Time) ([]store.Transcript, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+transcriptColumns+` FROM transcripts
		WHERE session_id = $1 AND is_final AND ts >= $2 ORDER BY ts ASC`,
		sessionID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list final transcripts: %w", err)
	}
	defer rows.Close()
	return scanTranscripts(rows)
}

func scanTranscripts(rows pgx.Rows) ([]store.Transcript, error) {
	var out []store.Transcript
	for rows.Next() {
		var tr store.Transcript
		err := rows.Scan(&tr.ID, &tr.SessionID, &tr.DeckID, &tr.Timestamp,
			&tr.Text, &tr.Speaker, &tr.SpeakerID, &tr.IsFinal,
			&tr.Confidence, &tr.LanguageCode)
		if err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}
