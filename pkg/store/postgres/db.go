// Package postgres implements the repository interfaces on PostgreSQL via
// pgx. Schema management lives in migrate.go.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deckroom/deckroom/pkg/store"
)

// DB wraps a pgx pool and hands out repository views.
type DB struct {
	pool *pgxpool.Pool
}

// Open connects, pings, and runs pending migrations.
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(databaseURL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Ping reports connectivity, used by the readiness endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Bundle exposes the database through the repository interfaces.
func (db *DB) Bundle() *store.Store {
	return &store.Store{
		Sessions:       &sessionRepo{pool: db.pool},
		Transcripts:    &transcriptRepo{pool: db.pool},
		Decks:          &deckRepo{pool: db.pool},
		Theses:         &thesisRepo{pool: db.pool},
		Messages:       &messageRepo{pool: db.pool},
		SupportingDocs: &supportingDocRepo{pool: db.pool},
		DataRoomDocs:   &dataRoomDocRepo{pool: db.pool},
		Organizations:  &orgRepo{pool: db.pool},
		Users:          &userRepo{pool: db.pool},
	}
}
