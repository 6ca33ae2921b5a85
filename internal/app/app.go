// Package app builds the worker's long-lived clients from configuration.
// Each connection is opened once on first use, registered with the health
// checker, and closed in reverse order by Close.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion/consumer"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion/ledger"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/vectorindex"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/cassandra"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/rabbitmq"
	redisclient "github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/resilience"
)

type App struct {
	Config  *config.Config
	Metrics *metrics.Metrics
	Health  *health.Checker

	mu      sync.Mutex
	redis   *redisclient.Client
	pg      *postgres.Client
	cass    *cassandra.Client
	amqp    *rabbitmq.Client
	closers []closer
	logger  *slog.Logger

	// ledgerMu is separate from mu because opening a ledger takes mu.
	ledgerMu sync.Mutex
	ledger   ledger.Ledger
}

type closer struct {
	name string
	fn   func() error
}

// New returns an App with no open connections. m and checker may be nil.
func New(cfg *config.Config, m *metrics.Metrics, checker *health.Checker) *App {
	if checker == nil {
		checker = health.NewChecker()
	}
	return &App{
		Config:  cfg,
		Metrics: m,
		Health:  checker,
		logger:  slog.Default().With("component", "app"),
	}
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close releases everything opened so far, newest first.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Error("close failed", "resource", c.name, "error", err)
			if first == nil {
				first = fmt.Errorf("closing %s: %w", c.name, err)
			}
		}
	}
	a.closers = nil
	return first
}

func (a *App) Redis() (*redisclient.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.redis != nil {
		return a.redis, nil
	}
	client, err := redisclient.NewClient(a.Config.Redis)
	if err != nil {
		return nil, err
	}
	a.redis = client
	a.onClose("redis", client.Close)
	a.Health.Register("redis", health.PingCheck(client.Ping))
	return client, nil
}

func (a *App) Postgres() (*postgres.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pg != nil {
		return a.pg, nil
	}
	db, err := postgres.New(a.Config.Postgres)
	if err != nil {
		return nil, err
	}
	a.pg = db
	a.onClose("postgres", db.Close)
	a.Health.Register("postgres", health.PingCheck(db.Ping))
	return db, nil
}

func (a *App) Cassandra() (*cassandra.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cass != nil {
		return a.cass, nil
	}
	client, err := cassandra.Connect(a.Config.Cassandra)
	if err != nil {
		return nil, err
	}
	a.cass = client
	a.onClose("cassandra", func() error { client.Close(); return nil })
	a.Health.Register("cassandra", health.PingCheck(client.Ping))
	return client, nil
}

func (a *App) AMQP() (*rabbitmq.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.amqp != nil {
		return a.amqp, nil
	}
	client, err := rabbitmq.Dial(a.Config.Broker.URL)
	if err != nil {
		return nil, err
	}
	if err := client.DeclareTopology(a.Config.Broker.Queue, a.Config.Broker.DeadLetterQueue); err != nil {
		client.Close()
		return nil, err
	}
	a.amqp = client
	a.onClose("amqp", client.Close)
	a.Health.Register("amqp", health.PingCheck(func(context.Context) error {
		if client.IsClosed() {
			return fmt.Errorf("connection closed")
		}
		return nil
	}))
	return client, nil
}

// Ledger opens the configured idempotency ledger. It is shared by every
// worker instance in the process.
func (a *App) Ledger() (ledger.Ledger, error) {
	a.ledgerMu.Lock()
	defer a.ledgerMu.Unlock()
	if a.ledger != nil {
		return a.ledger, nil
	}
	cfg := a.Config
	policy := ledger.Policy{MaxAttempts: cfg.Worker.MaxAttempts, LeaseTimeout: cfg.Ledger.LeaseTimeout}

	var l ledger.Ledger
	switch cfg.Ledger.Backend {
	case "memory":
		l = ledger.NewMemory(policy)
	case "redis":
		client, err := a.Redis()
		if err != nil {
			return nil, err
		}
		l = ledger.NewRedis(client, cfg.Ledger.KeyPrefix, policy)
	case "postgres":
		db, err := a.Postgres()
		if err != nil {
			return nil, err
		}
		l = ledger.NewPostgres(db, policy)
	case "badger":
		b, err := ledger.OpenBadger(cfg.Badger.Dir, cfg.Badger.InMemory, cfg.Ledger.KeyPrefix, policy)
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.onClose("badger", b.Close)
		a.mu.Unlock()
		l = b
	case "cassandra":
		client, err := a.Cassandra()
		if err != nil {
			return nil, err
		}
		l = ledger.NewCassandra(client, policy)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
	a.logger.Info("ledger ready", "backend", cfg.Ledger.Backend, "max_attempts", policy.MaxAttempts)
	a.ledger = l
	return l, nil
}

// Index opens the configured vector index. The index itself must already be
// provisioned.
func (a *App) Index() (*vectorindex.Client, error) {
	cfg := a.Config.Index
	var backend vectorindex.Backend
	switch cfg.Backend {
	case "memory":
		backend = vectorindex.NewMemory()
	case "redis":
		client, err := a.Redis()
		if err != nil {
			return nil, err
		}
		backend = vectorindex.NewRedis(client, cfg.Name, cfg.KeyPrefix)
	case "pgvector":
		db, err := a.Postgres()
		if err != nil {
			return nil, err
		}
		backend = vectorindex.NewPGVector(db, cfg.Table)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
	return vectorindex.NewClient(backend, cfg.Dimension, a.Metrics), nil
}

// DocStore builds the source-reference router over the configured object
// store and an HTTP fetcher.
func (a *App) DocStore(ctx context.Context) (*docstore.Router, error) {
	cfg := a.Config.DocStore
	var objects docstore.ObjectStore
	switch cfg.Backend {
	case "s3":
		s, err := docstore.NewS3(ctx, cfg)
		if err != nil {
			return nil, err
		}
		objects = s
	case "minio":
		m, err := docstore.NewMinio(cfg)
		if err != nil {
			return nil, err
		}
		if cfg.DefaultBucket != "" {
			bucket := cfg.DefaultBucket
			a.Health.Register("minio", health.PingCheck(func(ctx context.Context) error {
				return m.BucketExists(ctx, bucket)
			}))
		}
		objects = m
	default:
		return nil, fmt.Errorf("unknown docStore backend %q", cfg.Backend)
	}
	return docstore.NewRouter(objects, docstore.NewHTTP(cfg.HTTPTimeout, cfg.MaxBytes), cfg.DefaultBucket), nil
}

// Embedder builds the embedding service for the configured provider behind
// a circuit breaker whose state is exported as a metric.
func (a *App) Embedder(ctx context.Context) (*embedding.Service, error) {
	cfg := a.Config.Embedding
	var model embedding.TextEmbedder
	switch cfg.Provider {
	case "langchain":
		l, err := embedding.NewLangChain(cfg)
		if err != nil {
			return nil, err
		}
		model = l
	case "eino":
		e, err := embedding.NewEino(ctx, cfg)
		if err != nil {
			return nil, err
		}
		model = e
	case "hash":
		model = embedding.NewHash(a.Config.Index.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	breaker := resilience.NewCircuitBreaker("embedding-"+cfg.Provider, resilience.CircuitBreakerConfig{
		OnStateChange: func(name string, to resilience.State) {
			a.Metrics.SetCircuitState(name, int(to))
		},
	})
	return embedding.NewService(model, embedding.Options{
		Dimension:     a.Config.Index.Dimension,
		MaxInputChars: cfg.MaxInputChars,
		Breaker:       breaker,
	}), nil
}

// Source opens one broker subscription for worker instance n. Every
// instance gets its own channel or reader.
func (a *App) Source(n int) (consumer.Source, error) {
	cfg := a.Config
	switch cfg.Broker.Kind {
	case "amqp":
		client, err := a.AMQP()
		if err != nil {
			return nil, err
		}
		c, err := client.NewConsumer(cfg.Broker.Queue, fmt.Sprintf("embedding-worker-%d", n), cfg.Worker.Prefetch)
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.onClose(fmt.Sprintf("amqp-consumer-%d", n), c.Close)
		a.mu.Unlock()
		return c, nil
	case "kafka":
		c := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentEmbedding)
		a.mu.Lock()
		a.onClose(fmt.Sprintf("kafka-consumer-%d", n), c.Close)
		a.mu.Unlock()
		return c, nil
	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Broker.Kind)
	}
}

// Publisher returns a job publisher on the configured broker.
func (a *App) Publisher() (*publisher.Publisher, error) {
	cfg := a.Config
	switch cfg.Broker.Kind {
	case "amqp":
		client, err := a.AMQP()
		if err != nil {
			return nil, err
		}
		return publisher.New(publisher.AMQP(client, cfg.Broker.Queue)), nil
	case "kafka":
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentEmbedding)
		a.mu.Lock()
		a.onClose("kafka-producer", producer.Close)
		a.mu.Unlock()
		return publisher.New(publisher.Kafka(producer)), nil
	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Broker.Kind)
	}
}
