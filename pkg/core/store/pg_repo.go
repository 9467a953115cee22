package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"filing_screener/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Column type is json, not jsonb: jsonb reorders object keys and the
// statement tables depend on column order.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS filing_snapshots (
	id          UUID NOT NULL,
	ticker      TEXT NOT NULL,
	report_date DATE NOT NULL,
	data        JSON NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (ticker, report_date)
)`

// PGRepository stores snapshots in Postgres, one row per key.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository wraps an open pool.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// EnsureSchema creates the snapshot table when missing.
func (r *PGRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create filing_snapshots: %w", err)
	}
	return nil
}

// Load fetches the snapshot for key.
func (r *PGRepository) Load(ctx context.Context, key Key) (*models.Snapshot, error) {
	query := `
		SELECT data
		FROM filing_snapshots
		WHERE ticker = $1 AND report_date = $2::date
	`
	var data []byte
	err := r.pool.QueryRow(ctx, query, key.Ticker, key.Date).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", key, err)
	}
	snap, err := models.DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", key, err)
	}
	return snap, nil
}

// Save upserts the snapshot; a second save for the same key updates the row.
func (r *PGRepository) Save(ctx context.Context, key Key, snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", key, err)
	}

	query := `
		INSERT INTO filing_snapshots (id, ticker, report_date, data)
		VALUES ($1::uuid, $2, $3::date, $4::json)
		ON CONFLICT (ticker, report_date)
		DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, snap.ID, key.Ticker, key.Date, string(data)); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", key, err)
	}
	return nil
}

// List returns the keys stored for ticker, oldest first.
func (r *PGRepository) List(ctx context.Context, ticker string) ([]Key, error) {
	ticker = strings.ToUpper(ticker)
	query := `
		SELECT to_char(report_date, 'YYYY-MM-DD')
		FROM filing_snapshots
		WHERE ticker = $1
		ORDER BY report_date
	`
	rows, err := r.pool.Query(ctx, query, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots for %s: %w", ticker, err)
	}
	dates, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot dates for %s: %w", ticker, err)
	}

	keys := make([]Key, 0, len(dates))
	for _, d := range dates {
		keys = append(keys, Key{Ticker: ticker, Date: d})
	}
	return keys, nil
}

// Tickers lists the distinct tickers stored.
func (r *PGRepository) Tickers(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT ticker FROM filing_snapshots ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickers: %w", err)
	}
	tickers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan tickers: %w", err)
	}
	return tickers, nil
}
