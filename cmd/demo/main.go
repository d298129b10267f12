// Command demo indexes the sample hero records into a throwaway index and
// prints a few highlighted searches.
//
// Usage:
//
//	go run ./cmd/demo [-dir /tmp/heroes] [-q 钟]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/model"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/service"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/logger"
)

type search struct {
	title string
	query service.Query
}

func main() {
	dir := flag.String("dir", "", "index directory (a temporary one when empty)")
	extra := flag.String("q", "", "an extra query to run against userName and sal")
	flag.Parse()

	logger.Setup("warn", "text")
	if err := run(*dir, *extra); err != nil {
		slog.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run(dir, extra string) error {
	ctx := context.Background()
	if dir == "" {
		tmp, err := os.MkdirTemp("", "fulltext-demo-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	cfg := config.Default()
	cfg.Index.DataDir = dir
	cfg.Search.DefaultFields = []string{"userName", "sal"}
	engine, err := indexer.Open(indexer.Options{Config: cfg.Index})
	if err != nil {
		return fmt.Errorf("opening index in %s: %w", dir, err)
	}
	defer engine.Close()

	svc := service.New(service.Options[model.User]{
		Schema:    model.UserSchema,
		Engine:    engine,
		Search:    cfg.Search,
		Highlight: cfg.Highlight,
		WriteMode: service.FlushEachAdd,
	})
	for _, u := range model.SampleUsers() {
		if _, err := svc.Add(ctx, u); err != nil {
			return fmt.Errorf("adding %s: %w", u.UserName, err)
		}
	}
	st := svc.Stats()
	fmt.Printf("indexed %d records into %d segments under %s\n\n", st.LiveDocs, len(st.Segments), dir)

	byIDDesc := []ranker.SortField{{Field: "id", Type: ranker.Numeric, Descending: true}}
	searches := []search{
		{"userName contains 钟", service.Query{Keywords: "钟", Fields: []string{"userName"}, Limit: 10}},
		{"sal contains 肌肉", service.Query{Keywords: "肌肉", Fields: []string{"sal"}, Limit: 10}},
		{"userName or sal contains 一, newest first", service.Query{Keywords: "一", Limit: 10, Sort: byIDDesc}},
	}
	if extra != "" {
		searches = append(searches, search{"custom: " + extra, service.Query{Keywords: extra, Limit: 10}})
	}

	for _, s := range searches {
		hits, total, err := svc.Search(ctx, s.query)
		if err != nil {
			return fmt.Errorf("%s: %w", s.title, err)
		}
		fmt.Printf("%s (%d hits)\n", s.title, total)
		for _, h := range hits {
			line, err := json.Marshal(h.Record)
			if err != nil {
				return err
			}
			fmt.Printf("  %s\n", line)
		}
		fmt.Println()
	}
	return nil
}
