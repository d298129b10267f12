// Command searcher runs the full-text search service for user records.
//
// It opens the two-tier index, serves the record, search, index and cache
// APIs, and (when Kafka is enabled) indexes records published on the ingest
// topic and forwards search analytics to the analytics topic.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/ingestion/store"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/model"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/service"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults plus SP_* env when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Search.DefaultFields == nil {
		cfg.Search.DefaultFields = []string{"userName", "sal"}
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "data_dir", cfg.Index.DataDir, "in_memory", cfg.Index.InMemory)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	engine, err := indexer.Open(indexer.Options{Config: cfg.Index, Metrics: m})
	if err != nil {
		slog.Error("failed to open index", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			slog.Error("index close failed", "error", err)
		}
	}()
	engine.StartFlushLoop(ctx)
	st := engine.Stats()
	slog.Info("index opened", "generation", st.Generation, "segments", len(st.Segments), "live_docs", st.LiveDocs)

	checker := health.NewChecker()
	checker.Register("index_engine", func(ctx context.Context) health.ComponentHealth {
		st := engine.Stats()
		if st.Halted {
			return health.ComponentHealth{Status: health.StatusDown, Message: "writer halted"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d segments, %d live docs", len(st.Segments), st.LiveDocs)}
	})

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis, m)
			checker.Register("redis", health.PingCheck(redisClient.Ping, true))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	aggregator := analytics.NewAggregator()
	var events analytics.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchAnalytics)
		defer producer.Close()
		events = producer
	}
	collector := analytics.NewCollector(events, analytics.CollectorConfig{})
	collector.Local = aggregator
	collector.Start(ctx)
	defer collector.Close()

	mode := service.Buffered
	if cfg.Index.FlushEachAdd {
		mode = service.FlushEachAdd
	}
	svc := service.New(service.Options[model.User]{
		Schema:    model.UserSchema,
		Engine:    engine,
		Search:    cfg.Search,
		Highlight: cfg.Highlight,
		WriteMode: mode,
		Cache:     queryCache,
		Tracker:   collector,
		Metrics:   m,
	})

	if cfg.Kafka.Enabled {
		var statuses consumer.StatusUpdater
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, ingest statuses will not be recorded", "error", err)
		} else {
			defer db.Close()
			statuses = store.New(db)
			checker.Register("postgres", health.PingCheck(db.Ping, true))
		}

		ingest := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.RecordIngest, consumer.HandleMessage(svc, model.UserSchema, statuses))
		defer ingest.Close()
		go func() {
			if err := ingest.Start(ctx); err != nil {
				slog.Error("ingest consumer stopped", "error", err)
			}
		}()
		slog.Info("indexing from kafka", "topic", cfg.Kafka.Topics.RecordIngest, "analytics_topic", cfg.Kafka.Topics.SearchAnalytics)
	}

	h, err := handler.New(svc, queryCache, cfg.Search)
	if err != nil {
		slog.Error("invalid search config", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	if cfg.Metrics.Enabled && cfg.Metrics.Port != cfg.Server.Port {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	var limiter *middleware.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		limiter.StartCleanup(ctx, 5*time.Minute)
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RateLimit(limiter)(chain)
	chain = middleware.CORS(cfg.Server.CORSOrigins)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
