// Package publisher persists ingested records and publishes them to Kafka
// for the indexer. Writes are idempotent per idempotency key.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/ingestion/store"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/kafka"
)

// RecordStore is implemented by *store.PostgresStore.
type RecordStore interface {
	Insert(ctx context.Context, rec store.Record) error
	FindByIdempotencyKey(ctx context.Context, key string) (*ingestion.IngestResponse, error)
	UpdateStatus(ctx context.Context, recordID, status string, docID uint64, cause error) error
}

// EventProducer is implemented by *kafka.Producer.
type EventProducer interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Publisher struct {
	store    RecordStore
	producer EventProducer
	logger   *slog.Logger
}

func New(s RecordStore, producer EventProducer) *Publisher {
	return &Publisher{
		store:    s,
		producer: producer,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Ingest stores the record as PENDING and publishes an IngestEvent keyed by
// the record id. A repeated idempotency key returns the first record. When
// publishing fails the record is marked FAILED and the error returned.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest, requestID string) (*ingestion.IngestResponse, error) {
	if req.IdempotencyKey != "" {
		existing, err := p.store.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("checking idempotency key: %w", err)
		}
		if existing != nil {
			p.logger.Info("duplicate ingestion detected",
				"idempotency_key", req.IdempotencyKey,
				"existing_id", existing.RecordID,
			)
			return existing, nil
		}
	}

	id := uuid.NewString()
	if err := p.store.Insert(ctx, store.Record{ID: id, Fields: req.Fields, IdempotencyKey: req.IdempotencyKey}); err != nil {
		return nil, err
	}

	event := kafka.Event{
		Key: id,
		Value: ingestion.IngestEvent{
			RecordID:   id,
			Fields:     req.Fields,
			IngestedAt: time.Now().UTC(),
		},
	}
	if requestID != "" {
		event.Headers = map[string]string{"X-Request-ID": requestID}
	}
	if err := p.producer.Publish(ctx, event); err != nil {
		p.logger.Error("failed to publish record", "record_id", id, "error", err)
		if uerr := p.store.UpdateStatus(ctx, id, ingestion.StatusFailed, 0, err); uerr != nil {
			p.logger.Error("failed to mark record failed", "record_id", id, "error", uerr)
		}
		return nil, fmt.Errorf("publishing record %s: %w", id, err)
	}
	return &ingestion.IngestResponse{RecordID: id, Status: ingestion.StatusPending}, nil
}
