// Command worker consumes document-embedding jobs from the configured broker
// and writes each document's embedding to the vector index exactly once.
//
// Several independent worker instances may run in one process
// (worker.instances); each processes one job at a time. SIGINT/SIGTERM stops
// fetching new deliveries and lets in-flight jobs finish.
//
// Usage:
//
//	go run ./cmd/worker [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/app"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion/ack"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion/consumer"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion/worker"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/tracing"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("worker stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	checker := health.NewChecker()
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, reg, checker)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	a := app.New(cfg, m, checker)
	defer a.Close()

	led, err := a.Ledger()
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	index, err := a.Index()
	if err != nil {
		return fmt.Errorf("opening vector index: %w", err)
	}
	store, err := a.DocStore(ctx)
	if err != nil {
		return fmt.Errorf("opening document store: %w", err)
	}
	embedder, err := a.Embedder(ctx)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	w := worker.New(led, store, embedder, index,
		worker.Config{MaxAttempts: cfg.Worker.MaxAttempts, StepTimeout: cfg.Worker.StepTimeout},
		m, tracing.NewTracer(cfg.Tracing.Enabled))
	coordinator := ack.NewCoordinator(m)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Worker.Instances; i++ {
		source, err := a.Source(i)
		if err != nil {
			stop()
			g.Wait()
			return fmt.Errorf("opening broker subscription %d: %w", i, err)
		}
		c := consumer.New(source, w, coordinator)
		g.Go(func() error {
			return c.Run(gctx)
		})
	}

	slog.Info("worker ready",
		"instances", cfg.Worker.Instances,
		"broker", cfg.Broker.Kind,
		"ledger", cfg.Ledger.Backend,
		"index", cfg.Index.Backend,
		"embedding", cfg.Embedding.Provider,
		"max_attempts", cfg.Worker.MaxAttempts,
	)

	err = g.Wait()
	checker.SetLive(false)
	return err
}
