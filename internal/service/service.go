// Package service is the record-level facade over the index: typed records
// go in, ranked and highlighted typed records come out.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/mapper"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/highlight"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/tracing"
)

// WriteMode decides when added records reach disk.
type WriteMode int

const (
	// Buffered leaves flushing to the engine's size and interval thresholds.
	Buffered WriteMode = iota
	// FlushEachAdd commits every Add (and every AddBatch) as its own segment.
	FlushEachAdd
)

// Tracker receives analytics events. *analytics.Collector implements it.
type Tracker interface {
	Track(event any)
}

type Options[T any] struct {
	Schema    *mapper.Schema[T]
	Engine    *indexer.Engine
	Search    config.SearchConfig
	Highlight config.HighlightConfig
	WriteMode WriteMode
	// Cache and Tracker are optional.
	Cache   *cache.QueryCache
	Tracker Tracker
	Metrics *metrics.Metrics
}

// Query is a record search. Empty Fields falls back to the configured
// default fields; nil Highlight highlights the queried text fields.
type Query struct {
	Keywords  string
	Fields    []string
	Limit     int
	Sort      []ranker.SortField
	Highlight []string
	// Fragments > 0 also returns up to that many marked fragments per
	// highlighted field in Hit.Fragments.
	Fragments int
	RequestID string
}

type Hit[T any] struct {
	ID        document.DocID      `json:"id"`
	Score     float64             `json:"score"`
	Record    T                   `json:"record"`
	Fragments map[string][]string `json:"fragments,omitempty"`
}

type Service[T any] struct {
	schema      *mapper.Schema[T]
	engine      *indexer.Engine
	exec        *executor.Executor
	highlighter *highlight.Highlighter
	cfg         config.SearchConfig
	hlFields    []string
	mode        WriteMode
	cache       *cache.QueryCache
	tracker     Tracker
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func New[T any](opts Options[T]) *Service[T] {
	return &Service[T]{
		schema:      opts.Schema,
		engine:      opts.Engine,
		exec:        executor.New(opts.Engine, opts.Search),
		highlighter: highlight.New(opts.Engine.Analyzer(), opts.Highlight),
		cfg:         opts.Search,
		hlFields:    opts.Highlight.Fields,
		mode:        opts.WriteMode,
		cache:       opts.Cache,
		tracker:     opts.Tracker,
		metrics:     opts.Metrics,
		logger:      slog.Default().With("component", "record-service"),
	}
}

func (s *Service[T]) Engine() *indexer.Engine { return s.engine }

// Add indexes record and returns its document id. In FlushEachAdd mode a
// failed commit removes the record again and returns a zero id. An error
// matching apperrors.ErrMergeFailed comes with a valid id: the record is
// committed and only the follow-up merge failed.
func (s *Service[T]) Add(ctx context.Context, record T) (document.DocID, error) {
	start := time.Now()
	doc := s.schema.ToDocument(&record)
	id, err := s.engine.Add(ctx, doc)
	if err != nil {
		return 0, err
	}
	var mergeErr error
	if s.mode == FlushEachAdd {
		if err := s.commit(ctx, id); err != nil {
			if !errors.Is(err, apperrors.ErrMergeFailed) {
				return 0, fmt.Errorf("flushing record %d: %w", id, err)
			}
			mergeErr = err
		}
	}
	s.track(analytics.IndexEvent{
		Type:      analytics.EventIndex,
		DocID:     uint64(id),
		SizeBytes: doc.Size(),
		LatencyMs: time.Since(start).Milliseconds(),
		Timestamp: time.Now(),
	})
	return id, mergeErr
}

// AddBatch indexes records in order and stops at the first failure,
// returning the ids assigned so far. In FlushEachAdd mode the batch is
// committed once at the end and any failure removes the whole batch.
func (s *Service[T]) AddBatch(ctx context.Context, records []T) ([]document.DocID, error) {
	ids := make([]document.DocID, 0, len(records))
	docs := make([]document.Document, 0, len(records))
	for i := range records {
		doc := s.schema.ToDocument(&records[i])
		id, err := s.engine.Add(ctx, doc)
		if err != nil {
			if s.mode == FlushEachAdd {
				s.rollback(ctx, ids...)
				return nil, fmt.Errorf("record %d of %d: %w", i+1, len(records), err)
			}
			return ids, fmt.Errorf("record %d of %d: %w", i+1, len(records), err)
		}
		ids = append(ids, id)
		docs = append(docs, doc)
	}
	var mergeErr error
	if s.mode == FlushEachAdd && len(ids) > 0 {
		if err := s.commit(ctx, ids...); err != nil {
			if !errors.Is(err, apperrors.ErrMergeFailed) {
				return nil, fmt.Errorf("flushing batch: %w", err)
			}
			mergeErr = err
		}
	}
	for i, id := range ids {
		s.track(analytics.IndexEvent{Type: analytics.EventIndex, DocID: uint64(id), SizeBytes: docs[i].Size(), Timestamp: time.Now()})
	}
	return ids, mergeErr
}

// commit flushes the engine. When the flush itself fails, ids are deleted
// so that no uncommitted record stays searchable.
func (s *Service[T]) commit(ctx context.Context, ids ...document.DocID) error {
	err := s.engine.Flush(ctx)
	if err == nil || errors.Is(err, apperrors.ErrMergeFailed) {
		return err
	}
	s.rollback(ctx, ids...)
	return err
}

func (s *Service[T]) rollback(ctx context.Context, ids ...document.DocID) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range ids {
		if err := s.engine.Delete(ctx, id); err != nil {
			s.logger.Error("removing uncommitted record", "doc_id", id, "error", err)
		}
	}
}

func (s *Service[T]) Flush(ctx context.Context) error {
	return s.engine.Flush(ctx)
}

// Optimize merges every disk segment into one and purges deleted records.
func (s *Service[T]) Optimize(ctx context.Context) error {
	return s.engine.ForceMerge(ctx)
}

func (s *Service[T]) Stats() indexer.Stats {
	return s.engine.Stats()
}

func (s *Service[T]) Get(ctx context.Context, id document.DocID) (T, error) {
	doc, err := s.engine.Get(ctx, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.schema.FromDocument(doc)
}

func (s *Service[T]) Delete(ctx context.Context, id document.DocID) error {
	if err := s.engine.Delete(ctx, id); err != nil {
		return err
	}
	s.track(analytics.IndexEvent{Type: analytics.EventDelete, DocID: uint64(id), Timestamp: time.Now()})
	return nil
}

// Search runs q and returns the hits as records plus the total number of
// matches. Highlighted fields are rewritten in the returned records only.
func (s *Service[T]) Search(ctx context.Context, q Query) ([]Hit[T], int, error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "search", q.RequestID)
	defer func() {
		span.End()
		span.Log(ctx, s.logger)
	}()
	cacheStatus := "disabled"
	req := executor.Request{Keywords: q.Keywords, Fields: q.Fields, Limit: q.Limit, Sort: q.Sort}

	res, parsed, hit, err := s.run(ctx, req)
	if s.cache != nil {
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	}
	event := analytics.SearchEvent{
		Type:      analytics.EventSearch,
		Query:     q.Keywords,
		Fields:    req.Fields,
		CacheHit:  hit,
		Timestamp: start,
		RequestID: q.RequestID,
	}
	if err != nil {
		s.metrics.ObserveSearch(time.Since(start).Seconds(), cacheStatus, "error", 0)
		event.Failed = true
		event.LatencyMs = time.Since(start).Milliseconds()
		s.track(event)
		return nil, 0, err
	}

	_, hlSpan := tracing.Start(ctx, "highlight", "")
	hits := make([]Hit[T], 0, len(res.Hits))
	fields := s.highlightFields(q.Highlight, res.Fields)
	hlSpan.SetAttr("fields", fields)
	for _, h := range res.Hits {
		doc := h.Document.Clone()
		var frags map[string][]string
		for _, f := range fields {
			v, ok := doc.Get(f)
			if !ok || v == "" {
				continue
			}
			if q.Fragments > 0 {
				if best := s.highlighter.BestFragments(parsed, f, v, q.Fragments); len(best) > 0 {
					if frags == nil {
						frags = make(map[string][]string, len(fields))
					}
					frags[f] = best
				}
			}
			doc.Set(f, s.highlighter.Highlight(parsed, f, v))
		}
		record, err := s.schema.FromDocument(doc)
		if err != nil {
			s.metrics.ObserveSearch(time.Since(start).Seconds(), cacheStatus, "error", 0)
			return nil, 0, fmt.Errorf("mapping hit %d: %w", h.ID, err)
		}
		hits = append(hits, Hit[T]{ID: h.ID, Score: h.Score, Record: record, Fragments: frags})
	}
	hlSpan.End()

	outcome := "hit"
	if res.TotalHits == 0 {
		outcome = "zero_result"
	}
	elapsed := time.Since(start)
	s.metrics.ObserveSearch(elapsed.Seconds(), cacheStatus, outcome, res.TotalHits)
	event.Fields = res.Fields
	event.TotalHits = res.TotalHits
	event.Returned = len(hits)
	event.LatencyMs = elapsed.Milliseconds()
	s.track(event)
	return hits, res.TotalHits, nil
}

// run evaluates req on one snapshot, consulting the cache under that
// snapshot's version when one is configured.
func (s *Service[T]) run(ctx context.Context, req executor.Request) (*executor.Result, *parser.Query, bool, error) {
	req, q, err := s.exec.Prepare(req)
	if err != nil {
		return nil, nil, false, err
	}
	var (
		res *executor.Result
		hit bool
	)
	_, span := tracing.Start(ctx, "execute", "")
	defer span.End()
	err = resilience.WithTimeout(ctx, s.cfg.Timeout, "search", func(ctx context.Context) error {
		snap, err := s.engine.Acquire()
		if err != nil {
			return err
		}
		defer snap.Release()
		if s.cache == nil {
			res, err = s.exec.Execute(ctx, snap, req, q)
			return err
		}
		key := cache.Key(snap.Version(), req, q)
		res, hit, err = s.cache.GetOrCompute(ctx, key, func() (*executor.Result, error) {
			return s.exec.Execute(ctx, snap, req, q)
		})
		return err
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("search timed out", "query", req.Keywords, "timeout", s.cfg.Timeout)
		}
		return nil, nil, false, err
	}
	span.SetAttr("cache_hit", hit)
	span.SetAttr("total_hits", res.TotalHits)
	return res, q, hit, nil
}

// highlightFields keeps the requested (or configured, or queried) fields
// that hold text.
func (s *Service[T]) highlightFields(requested, queried []string) []string {
	fields := requested
	if fields == nil {
		fields = s.hlFields
	}
	if fields == nil {
		fields = queried
	}
	var out []string
	for _, f := range fields {
		if kind, ok := s.schema.Kind(f); ok && kind == mapper.KindText && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

func (s *Service[T]) track(event any) {
	if s.tracker != nil {
		s.tracker.Track(event)
	}
}
