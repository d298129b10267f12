// Package analytics publishes search and indexing events to Kafka and
// aggregates them into query statistics.
package analytics

import "time"

type EventType string

const (
	EventSearch EventType = "search"
	EventIndex  EventType = "index_record"
	EventDelete EventType = "delete_record"
)

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Fields    []string  `json:"fields"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Failed    bool      `json:"failed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// IndexEvent reports an added or deleted record.
type IndexEvent struct {
	Type      EventType `json:"type"`
	DocID     uint64    `json:"doc_id"`
	SizeBytes int64     `json:"size_bytes"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// envelope peeks at the type of an encoded event.
type envelope struct {
	Type EventType `json:"type"`
}
