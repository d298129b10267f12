// Package executor evaluates parsed queries against an index snapshot. Each
// requested field is scored separately with BM25 and the field scores are
// combined as a disjunction-max.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/analysis"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/resilience"
)

type Request struct {
	Keywords string             `json:"keywords"`
	Fields   []string           `json:"fields"`
	Limit    int                `json:"limit"`
	Sort     []ranker.SortField `json:"sort,omitempty"`
}

type Hit struct {
	ID       document.DocID    `json:"id"`
	Score    float64           `json:"score"`
	Document document.Document `json:"document"`
}

type Result struct {
	Query     string   `json:"query"`
	Fields    []string `json:"fields"`
	TotalHits int      `json:"totalHits"`
	Hits      []Hit    `json:"hits"`
	// Version is the index version the result was computed at.
	Version uint64 `json:"version"`
}

type Executor struct {
	engine   *indexer.Engine
	analyzer analysis.Analyzer
	cfg      config.SearchConfig
	logger   *slog.Logger
}

func New(engine *indexer.Engine, cfg config.SearchConfig) *Executor {
	return &Executor{
		engine:   engine,
		analyzer: engine.Analyzer(),
		cfg:      cfg,
		logger:   slog.Default().With("component", "query-executor"),
	}
}

// Prepare validates req, fills in default fields and parses the keywords.
// It never touches the index.
func (x *Executor) Prepare(req Request) (Request, *parser.Query, error) {
	if req.Limit <= 0 {
		return req, nil, fmt.Errorf("%w: limit must be positive, got %d", apperrors.ErrInvalidInput, req.Limit)
	}
	fields := req.Fields
	if len(fields) == 0 {
		fields = x.cfg.DefaultFields
	}
	req.Fields = nil
	for _, f := range fields {
		if f != "" && !slices.Contains(req.Fields, f) {
			req.Fields = append(req.Fields, f)
		}
	}
	if len(req.Fields) == 0 {
		return req, nil, fmt.Errorf("%w: no fields to search", apperrors.ErrInvalidInput)
	}
	q, err := parser.Parse(req.Keywords)
	if err != nil {
		return req, nil, err
	}
	return req, q, nil
}

// Search runs req on a fresh snapshot under the configured timeout.
func (x *Executor) Search(ctx context.Context, req Request) (*Result, error) {
	req, q, err := x.Prepare(req)
	if err != nil {
		return nil, err
	}
	var result *Result
	err = resilience.WithTimeout(ctx, x.cfg.Timeout, "search", func(ctx context.Context) error {
		snap, err := x.engine.Acquire()
		if err != nil {
			return err
		}
		defer snap.Release()
		result, err = x.Execute(ctx, snap, req, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Execute evaluates a prepared request on snap. Hits carry their stored
// documents, loaded before the snapshot can be released.
func (x *Executor) Execute(ctx context.Context, snap *indexer.Snapshot, req Request, q *parser.Query) (*Result, error) {
	start := time.Now()
	segs := snap.Segments()
	result := &Result{Query: q.String(), Fields: req.Fields, Hits: []Hit{}, Version: snap.Version()}

	plans := make([]fieldPlan, 0, len(req.Fields))
	for _, f := range req.Fields {
		if root := compile(x.analyzer, f, q.Root); root != nil {
			plans = append(plans, fieldPlan{field: f, root: root})
		}
	}
	if len(plans) == 0 || len(segs) == 0 {
		return result, nil
	}

	keys := collectKeys(plans)
	postings := make([]map[termKey]index.PostingList, len(segs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, seg := range segs {
		g.Go(func() error {
			found := make(map[termKey]index.PostingList, len(keys))
			for _, k := range keys {
				if err := gctx.Err(); err != nil {
					return err
				}
				list, err := seg.Postings(k.field, k.term)
				if err != nil {
					return err
				}
				if len(list) > 0 {
					found[k] = list
				}
			}
			postings[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}

	stats := gatherStats(segs, req.Fields, postings)
	compare := ranker.Compare(req.Sort)
	tops := make([][]ranker.ScoredDoc, len(segs))
	totals := make([]int, len(segs))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, seg := range segs {
		g.Go(func() error {
			ev := &segmentEval{ctx: gctx, seg: seg, postings: postings[i], stats: stats}
			cands, err := ev.run(plans, x.cfg.TieBreaker, req.Sort)
			if err != nil {
				return err
			}
			totals[i] = len(cands)
			tops[i] = merger.TopN(cands, req.Limit, compare)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scoring: %w", err)
	}

	for _, n := range totals {
		result.TotalHits += n
	}
	for _, d := range merger.Merge(tops, req.Limit, compare) {
		doc, err := snap.Get(d.ID)
		if err != nil {
			return nil, fmt.Errorf("loading hit %d: %w", d.ID, err)
		}
		result.Hits = append(result.Hits, Hit{ID: d.ID, Score: d.Score, Document: doc})
	}

	x.logger.Info("query executed",
		"query", result.Query,
		"fields", req.Fields,
		"segments", len(segs),
		"total_hits", result.TotalHits,
		"results", len(result.Hits),
		"latency", time.Since(start),
	)
	return result, nil
}
