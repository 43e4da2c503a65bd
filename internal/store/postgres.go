// Package store keeps an audit trail of served predictions in PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	DefaultRecentLimit = 20
	MaxRecentLimit     = 100
)

// Entry is one served prediction.
type Entry struct {
	ID            int64              `json:"id"`
	CreatedAt     time.Time          `json:"created_at"`
	Input         map[string]any     `json:"input"`
	Probabilities map[string]float64 `json:"probabilities"`
	Confidence    float64            `json:"prediction_confidence"`
	Cached        bool               `json:"cached"`
}

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
	id            BIGSERIAL PRIMARY KEY,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	input         JSONB NOT NULL,
	probabilities JSONB NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL,
	cached        BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS predictions_created_at_idx ON predictions (created_at DESC);
`

type Postgres struct {
	pool *pgxpool.Pool
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, url string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Record(ctx context.Context, e Entry) error {
	input, err := json.Marshal(e.Input)
	if err != nil {
		return fmt.Errorf("encode input: %w", err)
	}
	probs, err := json.Marshal(e.Probabilities)
	if err != nil {
		return fmt.Errorf("encode probabilities: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO predictions (input, probabilities, confidence, cached) VALUES ($1, $2, $3, $4)`,
		input, probs, e.Confidence, e.Cached,
	)
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

// Recent returns the newest entries first.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, created_at, input, probabilities, confidence, cached
		 FROM predictions ORDER BY created_at DESC, id DESC LIMIT $1`,
		ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}

	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("scan predictions: %w", err)
	}
	return entries, nil
}

func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var (
		e            Entry
		input, probs []byte
	)
	if err := row.Scan(&e.ID, &e.CreatedAt, &input, &probs, &e.Confidence, &e.Cached); err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal(input, &e.Input); err != nil {
		return Entry{}, fmt.Errorf("decode input of %d: %w", e.ID, err)
	}
	if err := json.Unmarshal(probs, &e.Probabilities); err != nil {
		return Entry{}, fmt.Errorf("decode probabilities of %d: %w", e.ID, err)
	}
	return e, nil
}

// ClampLimit maps a requested page size into [1, MaxRecentLimit], using
// DefaultRecentLimit for non-positive values.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentLimit
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	default:
		return limit
	}
}
