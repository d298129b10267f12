// Command ingestion starts the record ingestion HTTP service.
//
// The service accepts user records via POST /api/v1/ingest, validates them
// against the record schema, persists them to PostgreSQL as PENDING, and
// publishes them to the ingest topic where the search service indexes them.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/ingestion/store"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/model"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults plus SP_* env when empty)")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	records := store.New(db)
	if err := records.EnsureSchema(ctx); err != nil {
		slog.Error("failed to prepare records table", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to postgres", "database", cfg.Postgres.Database)

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RecordIngest)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.RecordIngest)

	m := metrics.New(prometheus.DefaultRegisterer)
	h := handler.New(publisher.New(records, producer), model.UserSchema.Fields())

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(db.Ping, false))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/ingest", h.Ingest)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

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
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
