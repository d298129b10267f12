// Package consumer indexes records published on the ingest topic and
// reports the outcome back to the record store.
package consumer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/mapper"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/service"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/kafka"
)

// StatusUpdater is implemented by *store.PostgresStore.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, recordID, status string, docID uint64, cause error) error
}

// HandleMessage returns a Kafka MessageHandler that maps each ingest event
// to a record and adds it through svc. Undecodable or unmappable events are
// marked FAILED and skipped; index errors are returned so the consumer
// retries them. A failed add leaves nothing indexed, so a retry cannot
// duplicate the record. statuses may be nil.
func HandleMessage[T any](svc *service.Service[T], schema *mapper.Schema[T], statuses StatusUpdater) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event", "error", err, "key", string(key))
			return kafka.Skip(err)
		}

		// Fields missing from the event index as empty values.
		values := make(map[string]string, len(schema.Fields()))
		for _, name := range schema.Fields() {
			values[name] = event.Fields[name]
		}
		record, err := schema.FromMap(values)
		if err != nil {
			logger.Warn("ingest event does not fit the schema", "record_id", event.RecordID, "error", err)
			updateStatus(ctx, statuses, event.RecordID, ingestion.StatusFailed, 0, err, logger)
			return kafka.Skip(err)
		}

		id, err := svc.Add(ctx, record)
		if errors.Is(err, apperrors.ErrMergeFailed) {
			logger.Warn("record committed but segment merge failed", "record_id", event.RecordID, "doc_id", id, "error", err)
			err = nil
		}
		if err != nil {
			updateStatus(ctx, statuses, event.RecordID, ingestion.StatusFailed, 0, err, logger)
			return err
		}
		updateStatus(ctx, statuses, event.RecordID, ingestion.StatusIndexed, uint64(id), nil, logger)
		logger.Info("record indexed", "record_id", event.RecordID, "doc_id", id)
		return nil
	}
}

func updateStatus(ctx context.Context, statuses StatusUpdater, recordID, status string, docID uint64, cause error, logger *slog.Logger) {
	if statuses == nil {
		return
	}
	if err := statuses.UpdateStatus(ctx, recordID, status, docID, cause); err != nil {
		logger.Error("failed to update record status",
			"record_id", recordID,
			"status", status,
			"error", err,
		)
	}
}
