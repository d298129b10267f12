package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/ingestion/store"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/kafka"
)

type nopStore struct{}

func (nopStore) Insert(context.Context, store.Record) error { return nil }
func (nopStore) FindByIdempotencyKey(context.Context, string) (*ingestion.IngestResponse, error) {
	return nil, nil
}
func (nopStore) UpdateStatus(context.Context, string, string, uint64, error) error { return nil }

type nopProducer struct{}

func (nopProducer) Publish(context.Context, kafka.Event) error { return nil }

func TestIngest(t *testing.T) {
	h := New(publisher.New(nopStore{}, nopProducer{}), []string{"id", "userName", "sal"})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"accepted", `{"fields":{"id":"21","userName":"钟馗"}}`, http.StatusAccepted},
		{"bad json", `{"fields":`, http.StatusBadRequest},
		{"unknown field", `{"fields":{"title":"x"}}`, http.StatusBadRequest},
		{"empty", `{}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Ingest(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}
