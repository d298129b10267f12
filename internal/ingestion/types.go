// Package ingestion defines the request, response and Kafka event types of
// the record ingestion pipeline: records are accepted over HTTP, persisted
// in PostgreSQL as PENDING and published for the indexer to consume.
package ingestion

import "time"

// Record statuses stored in PostgreSQL.
const (
	StatusPending = "PENDING"
	StatusIndexed = "INDEXED"
	StatusFailed  = "FAILED"
)

// IngestRequest is the JSON body accepted by the ingestion endpoint. Fields
// holds the record's schema fields by name.
type IngestRequest struct {
	Fields         map[string]string `json:"fields"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

type IngestResponse struct {
	RecordID string `json:"record_id"`
	Status   string `json:"status"`
}

// IngestEvent is published on the record-ingest topic once the record is
// persisted.
type IngestEvent struct {
	RecordID   string            `json:"record_id"`
	Fields     map[string]string `json:"fields"`
	IngestedAt time.Time         `json:"ingested_at"`
}
