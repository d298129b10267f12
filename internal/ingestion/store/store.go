// Package store persists ingested records and their indexing status in
// PostgreSQL.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
    id              UUID PRIMARY KEY,
    fields          JSONB NOT NULL,
    content_hash    TEXT NOT NULL,
    content_size    INTEGER NOT NULL,
    idempotency_key TEXT UNIQUE,
    status          TEXT NOT NULL DEFAULT 'PENDING',
    doc_id          BIGINT,
    error           TEXT,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    indexed_at      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS records_status_idx ON records (status);`

// Record is one row of the records table.
type Record struct {
	ID             string
	Fields         map[string]string
	IdempotencyKey string
}

type PostgresStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: slog.Default().With("component", "record-store"),
	}
}

// EnsureSchema creates the records table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating records table: %w", err)
	}
	return nil
}

// Insert stores rec as PENDING. A concurrent insert with the same
// idempotency key yields an ErrIdempotencyConflict AppError.
func (s *PostgresStore) Insert(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("encoding fields: %w", err)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(payload))
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx,
			`INSERT INTO records (id, fields, content_hash, content_size, idempotency_key, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (idempotency_key) DO NOTHING
			RETURNING id`,
			rec.ID, payload, hash, len(payload), nullableString(rec.IdempotencyKey), ingestion.StatusPending,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.New(apperrors.ErrIdempotencyConflict, 409, "idempotency key already in use")
		}
		if err != nil {
			return fmt.Errorf("inserting record: %w", err)
		}
		return nil
	})
}

// FindByIdempotencyKey returns the record stored under key, or nil.
func (s *PostgresStore) FindByIdempotencyKey(ctx context.Context, key string) (*ingestion.IngestResponse, error) {
	var resp ingestion.IngestResponse
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, status FROM records WHERE idempotency_key = $1`, key,
	).Scan(&resp.RecordID, &resp.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying by idempotency key: %w", err)
	}
	return &resp, nil
}

// UpdateStatus records the indexing outcome of a record. docID is zero when
// indexing failed.
func (s *PostgresStore) UpdateStatus(ctx context.Context, recordID, status string, docID uint64, cause error) error {
	var msg sql.NullString
	if cause != nil {
		msg = sql.NullString{String: cause.Error(), Valid: true}
	}
	var doc sql.NullInt64
	if docID != 0 {
		doc = sql.NullInt64{Int64: int64(docID), Valid: true}
	}
	_, err := s.db.DB.ExecContext(ctx,
		`UPDATE records SET status = $1, doc_id = $2, error = $3, indexed_at = NOW() WHERE id = $4`,
		status, doc, msg, recordID,
	)
	if err != nil {
		return fmt.Errorf("updating status of record %s: %w", recordID, err)
	}
	return nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
