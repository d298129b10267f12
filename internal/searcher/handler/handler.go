// Package handler exposes a record service over HTTP.
package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/service"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/logger"
)

const maxBodyBytes = 8 << 20

type SearchResponse[T any] struct {
	Query     string           `json:"query"`
	TotalHits int              `json:"totalHits"`
	Hits      []service.Hit[T] `json:"hits"`
	LatencyMs int64            `json:"latencyMs"`
}

type Handler[T any] struct {
	svc         *service.Service[T]
	cache       *cache.QueryCache
	cfg         config.SearchConfig
	defaultSort []ranker.SortField
	logger      *slog.Logger
}

// New fails only when the configured default sort does not parse.
func New[T any](svc *service.Service[T], queryCache *cache.QueryCache, cfg config.SearchConfig) (*Handler[T], error) {
	sort, err := ranker.ParseSort(cfg.DefaultSort)
	if err != nil {
		return nil, fmt.Errorf("default sort: %w", err)
	}
	return &Handler[T]{
		svc:         svc,
		cache:       queryCache,
		cfg:         cfg,
		defaultSort: sort,
		logger:      slog.Default().With("component", "search-handler"),
	}, nil
}

// Register mounts the record, search, index and cache routes on mux.
func (h *Handler[T]) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/records", h.AddRecords)
	mux.HandleFunc("GET /api/v1/records/{id}", h.GetRecord)
	mux.HandleFunc("DELETE /api/v1/records/{id}", h.DeleteRecord)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/index/flush", h.Flush)
	mux.HandleFunc("POST /api/v1/index/merge", h.Merge)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("DELETE /api/v1/cache", h.CacheInvalidate)
}

// AddRecords accepts one JSON record or an array of them.
func (h *Handler[T]) AddRecords(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > maxBodyBytes {
		h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var records []T
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &records)
	} else {
		var one T
		err = json.Unmarshal(body, &one)
		records = append(records, one)
	}
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if len(records) == 0 {
		h.writeError(w, http.StatusBadRequest, "no records in request")
		return
	}

	ids, err := h.svc.AddBatch(r.Context(), records)
	if errors.Is(err, apperrors.ErrMergeFailed) {
		logger.FromContext(r.Context()).Warn("records committed but segment merge failed", "added", len(ids), "error", err)
		h.writeJSON(w, http.StatusCreated, map[string]any{"ids": ids, "warning": err.Error()})
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("indexing records failed", "added", len(ids), "error", err)
		h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]any{"error": err.Error(), "ids": ids})
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"ids": ids})
}

func (h *Handler[T]) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	record, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, service.Hit[T]{ID: id, Record: record})
}

func (h *Handler[T]) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search serves GET /api/v1/search?q=&fields=&limit=&sort=&highlight=&fragments=.
func (h *Handler[T]) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	params := r.URL.Query()

	q := service.Query{
		Keywords:  params.Get("q"),
		Fields:    splitList(params.Get("fields")),
		Limit:     h.cfg.DefaultLimit,
		Sort:      h.defaultSort,
		RequestID: logger.RequestID(ctx),
	}
	if q.Keywords == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	if s := params.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		q.Limit = limit
	}
	if h.cfg.MaxResults > 0 && q.Limit > h.cfg.MaxResults {
		q.Limit = h.cfg.MaxResults
	}
	if s := params.Get("sort"); s != "" {
		sort, err := ranker.ParseSort(s)
		if err != nil {
			h.writeErr(w, err)
			return
		}
		q.Sort = sort
	}
	if s := params.Get("fragments"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "fragments must be a non-negative integer")
			return
		}
		q.Fragments = n
	}
	if params.Has("highlight") {
		q.Highlight = splitList(params.Get("highlight"))
		if q.Highlight == nil {
			q.Highlight = []string{}
		}
	}

	hits, total, err := h.svc.Search(ctx, q)
	if err != nil {
		logger.FromContext(ctx).Warn("search failed", "query", q.Keywords, "error", err)
		h.writeErr(w, err)
		return
	}
	latency := time.Since(start)
	logger.FromContext(ctx).Info("search completed",
		"query", q.Keywords,
		"total_hits", total,
		"returned", len(hits),
		"latency_ms", latency.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, SearchResponse[T]{
		Query:     q.Keywords,
		TotalHits: total,
		Hits:      hits,
		LatencyMs: latency.Milliseconds(),
	})
}

func (h *Handler[T]) Flush(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Flush(r.Context()); err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.svc.Stats())
}

// Merge force-merges the disk segments into one.
func (h *Handler[T]) Merge(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Optimize(r.Context()); err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.svc.Stats())
}

func (h *Handler[T]) IndexStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Stats())
}

func (h *Handler[T]) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler[T]) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler[T]) pathID(w http.ResponseWriter, r *http.Request) (document.DocID, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "record id must be a positive integer")
		return 0, false
	}
	return document.DocID(id), true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (h *Handler[T]) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler[T]) writeErr(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
		msg = "internal error"
	}
	h.writeError(w, status, msg)
}

func (h *Handler[T]) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
