package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/ingestion/store"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/kafka"
)

// fakeStore keeps records in memory.
type fakeStore struct {
	mu       sync.Mutex
	Records  map[string]store.Record
	Statuses map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{Records: map[string]store.Record{}, Statuses: map[string]string{}}
}

func (f *fakeStore) Insert(_ context.Context, rec store.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Records[rec.ID] = rec
	f.Statuses[rec.ID] = ingestion.StatusPending
	return nil
}

func (f *fakeStore) FindByIdempotencyKey(_ context.Context, key string) (*ingestion.IngestResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, rec := range f.Records {
		if rec.IdempotencyKey == key {
			return &ingestion.IngestResponse{RecordID: id, Status: f.Statuses[id]}, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id, status string, _ uint64, _ error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Statuses[id] = status
	return nil
}

type fakeProducer struct {
	events []kafka.Event
	err    error
}

func (p *fakeProducer) Publish(_ context.Context, e kafka.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func TestIngestPersistsAndPublishes(t *testing.T) {
	st, prod := newFakeStore(), &fakeProducer{}
	p := New(st, prod)

	resp, err := p.Ingest(context.Background(), &ingestion.IngestRequest{
		Fields: map[string]string{"id": "21", "userName": "钟馗"},
	}, "req-1")
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusPending, resp.Status)
	assert.Contains(t, st.Records, resp.RecordID)

	require.Len(t, prod.events, 1)
	assert.Equal(t, resp.RecordID, prod.events[0].Key)
	assert.Equal(t, "req-1", prod.events[0].Headers["X-Request-ID"])
	event := prod.events[0].Value.(ingestion.IngestEvent)
	assert.Equal(t, "钟馗", event.Fields["userName"])
}

func TestIngestIsIdempotent(t *testing.T) {
	st, prod := newFakeStore(), &fakeProducer{}
	p := New(st, prod)
	req := &ingestion.IngestRequest{Fields: map[string]string{"sal": "x"}, IdempotencyKey: "k1"}

	first, err := p.Ingest(context.Background(), req, "")
	require.NoError(t, err)
	second, err := p.Ingest(context.Background(), req, "")
	require.NoError(t, err)
	assert.Equal(t, first.RecordID, second.RecordID)
	assert.Len(t, prod.events, 1)
}

func TestIngestMarksRecordFailedWhenPublishFails(t *testing.T) {
	st := newFakeStore()
	boom := errors.New("broker down")
	p := New(st, &fakeProducer{err: boom})

	_, err := p.Ingest(context.Background(), &ingestion.IngestRequest{Fields: map[string]string{"sal": "x"}}, "")
	require.ErrorIs(t, err, boom)
	require.Len(t, st.Statuses, 1)
	for _, status := range st.Statuses {
		assert.Equal(t, ingestion.StatusFailed, status)
	}
}
