package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/model"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/service"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/config"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	engine, err := indexer.Open(indexer.Options{Config: config.IndexConfig{InMemory: true}})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	searchCfg := config.SearchConfig{
		DefaultLimit:  10,
		MaxResults:    50,
		DefaultFields: []string{"userName", "sal"},
		DefaultSort:   "id:numeric:desc",
	}
	svc := service.New(service.Options[model.User]{
		Schema: model.UserSchema,
		Engine: engine,
		Search: searchCfg,
	})
	_, err = svc.AddBatch(context.Background(), model.SampleUsers())
	require.NoError(t, err)

	h, err := New(svc, nil, searchCfg)
	require.NoError(t, err)
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf strings.Builder
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, []byte(buf.String())
}

func TestSearchEndpoint(t *testing.T) {
	srv := newServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/search?q=%E4%B8%80&highlight=", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out SearchResponse[model.User]
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 4, out.TotalHits)
	var ids []string
	for _, h := range out.Hits {
		ids = append(ids, h.Record.ID)
	}
	assert.Equal(t, []string{"20", "18", "4", "3"}, ids, "default sort applies")
	assert.Equal(t, "东皇太一", out.Hits[1].Record.UserName, "empty highlight list disables highlighting")

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/search?q=%E9%92%9F&fields=userName&limit=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Hits, 1)
	assert.Equal(t, "<font color='red'>钟</font>无艳", out.Hits[0].Record.UserName)
	assert.Nil(t, out.Hits[0].Fragments)
}

func TestSearchEndpointFragments(t *testing.T) {
	srv := newServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/search?q=%E8%82%8C%E8%82%89&fields=sal&fragments=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out SearchResponse[model.User]
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Hits, 1)
	assert.Equal(t, map[string][]string{
		"sal": {"时候<font color='red'>肌</font><font color='red'>肉</font>"},
	}, out.Hits[0].Fragments)
}

func TestSearchEndpointErrors(t *testing.T) {
	srv := newServer(t)
	for _, query := range []string{
		"",
		"?q=a&limit=0",
		"?q=a&limit=x",
		"?q=%22open",
		"?q=a&sort=id:bogus",
		"?q=a&fragments=-1",
	} {
		resp, _ := do(t, http.MethodGet, srv.URL+"/api/v1/search"+query, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
	}
}

func TestRecordLifecycle(t *testing.T) {
	srv := newServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/records",
		`{"id":"21","userName":"钟馗","sal":"来将可留姓名"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created struct {
		IDs []uint64 `json:"ids"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	require.Len(t, created.IDs, 1)
	id := created.IDs[0]

	url := srv.URL + "/api/v1/records/" + jsonNumber(id)
	resp, body = do(t, http.MethodGet, url, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got service.Hit[model.User]
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "钟馗", got.Record.UserName)

	resp, _ = do(t, http.MethodDelete, url, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, url, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/records/abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/records", `{"id":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodPost, srv.URL+"/api/v1/records",
		`[{"id":"22","userName":"a","sal":"b"},{"id":"23","userName":"c","sal":"d"}]`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Len(t, created.IDs, 2)
}

func TestIndexEndpoints(t *testing.T) {
	srv := newServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/index/flush", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st indexer.Stats
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, 20, st.DiskDocs)
	assert.Equal(t, 0, st.BufferedDocs)

	resp, body = do(t, http.MethodPost, srv.URL+"/api/v1/index/merge", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Len(t, st.Segments, 1)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/index/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, 20, st.LiveDocs)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "disabled")
	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/v1/cache", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestNewRejectsBadDefaultSort(t *testing.T) {
	_, err := New[model.User](nil, nil, config.SearchConfig{DefaultSort: "id:sideways"})
	assert.Error(t, err)
}

func jsonNumber(n uint64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
