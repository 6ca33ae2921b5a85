// Package cassandra opens gocql sessions against Cassandra or ScyllaDB and
// provisions the keyspace used by the ingestion ledger.
package cassandra

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/config"
	"github.com/gocql/gocql"
)

type Client struct {
	Session  *gocql.Session
	Keyspace string
}

func newCluster(cfg config.CassandraConfig) (*gocql.ClusterConfig, error) {
	consistency, err := gocql.ParseConsistencyWrapper(cfg.Consistency)
	if err != nil {
		return nil, fmt.Errorf("parsing consistency %q: %w", cfg.Consistency, err)
	}
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Consistency = consistency
	cluster.SerialConsistency = gocql.LocalSerial
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
		cluster.ConnectTimeout = cfg.Timeout
	}
	return cluster, nil
}

// Connect opens a session bound to cfg.Keyspace.
func Connect(cfg config.CassandraConfig) (*Client, error) {
	cluster, err := newCluster(cfg)
	if err != nil {
		return nil, err
	}
	cluster.Keyspace = cfg.Keyspace
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connecting to cassandra: %w", err)
	}
	return &Client{Session: session, Keyspace: cfg.Keyspace}, nil
}

// EnsureKeyspace creates cfg.Keyspace with SimpleStrategy replication when
// it does not exist yet.
func EnsureKeyspace(ctx context.Context, cfg config.CassandraConfig, replicationFactor int) error {
	cluster, err := newCluster(cfg)
	if err != nil {
		return err
	}
	session, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("connecting to cassandra: %w", err)
	}
	defer session.Close()

	stmt := fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s
		WITH REPLICATION = {'class': 'SimpleStrategy', 'replication_factor': %d}`,
		cfg.Keyspace, replicationFactor)
	if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("creating keyspace %s: %w", cfg.Keyspace, err)
	}
	slog.Info("cassandra keyspace ready", "keyspace", cfg.Keyspace)
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.Session.Query(`SELECT release_version FROM system.local`).WithContext(ctx).Exec()
}

func (c *Client) Close() {
	if c.Session != nil {
		c.Session.Close()
	}
}
