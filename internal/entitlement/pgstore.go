package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore keeps entitlement records in a single Postgres key-value table.
// Records are stored as jsonb blobs so the schema never chases the record
// shape; the customer-id expression index keeps an indexed lookup one query
// change away from the current linear scan.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// EnsureSchema creates the entitlements table and its indexes.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS entitlements (
			user_id TEXT PRIMARY KEY,
			record  JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create entitlements table: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS entitlements_customer_idx
		ON entitlements ((record->>'stripeCustomerId'))`)
	if err != nil {
		return fmt.Errorf("create customer index: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, userID string) (*Record, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM entitlements WHERE user_id = $1`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read entitlement %s: %w", userID, err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode entitlement %s: %w", userID, err)
	}
	return &rec, nil
}

func (s *PGStore) Put(ctx context.Context, userID string, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO entitlements (user_id, record, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET record = EXCLUDED.record, updated_at = now()`,
		userID, raw)
	if err != nil {
		return fmt.Errorf("write entitlement %s: %w", userID, err)
	}
	return nil
}

func (s *PGStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id FROM entitlements ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		keys = append(keys, id)
	}
	return keys, rows.Err()
}
