// Command analytics starts the standalone analytics aggregation service.
//
// It consumes search and indexing events from the analytics topic, which
// every search service instance publishes to, aggregates them in memory, and
// exposes the combined view at GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/middleware"
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
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aggregator := analytics.NewAggregator()
	// Each analytics instance keeps its own totals, so it reads every event.
	kcfg := cfg.Kafka
	kcfg.ConsumerGroup = cfg.Kafka.ConsumerGroup + "-analytics-" + hostname()
	consumer := kafka.NewConsumer(kcfg, cfg.Kafka.Topics.SearchAnalytics, analytics.HandleEvent(aggregator))
	defer consumer.Close()

	consumerErr := make(chan error, 1)
	go func() {
		consumerErr <- consumer.Start(ctx)
	}()
	slog.Info("analytics consumer started", "topic", cfg.Kafka.Topics.SearchAnalytics, "group", kcfg.ConsumerGroup)

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		select {
		case err := <-consumerErr:
			consumerErr <- err
			msg := "consumer stopped"
			if err != nil {
				msg = err.Error()
			}
			return health.ComponentHealth{Status: health.StatusDown, Message: msg}
		default:
			return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
		}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "local"
	}
	return name
}
