//go:build integration

package ledger

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/cassandra"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestCassandra returns a ledger on an emptied ingestion_ledger table in
// the TEST_CASSANDRA_KEYSPACE keyspace, or skips when no cluster answers at
// TEST_CASSANDRA_HOSTS.
func openTestCassandra(t *testing.T) *Cassandra {
	t.Helper()
	cfg := config.CassandraConfig{
		Hosts:       strings.Split(envOr("TEST_CASSANDRA_HOSTS", "127.0.0.1:9042"), ","),
		Keyspace:    envOr("TEST_CASSANDRA_KEYSPACE", "embeddings_test"),
		Consistency: "quorum",
		Timeout:     5 * time.Second,
	}
	ctx := context.Background()
	if err := cassandra.EnsureKeyspace(ctx, cfg, 1); err != nil {
		t.Skipf("skipping integration test: cassandra unavailable: %v", err)
	}
	client, err := cassandra.Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	c := NewCassandra(client, policy)
	require.NoError(t, c.EnsureSchema(ctx))
	require.NoError(t, client.Session.Query(`TRUNCATE ingestion_ledger`).WithContext(ctx).Exec())
	return c
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestCassandraLedger(t *testing.T) {
	c := openTestCassandra(t)
	ledgerContract(t, c)
	exhaustionContract(t, c, policy.MaxAttempts)
	concurrencyContract(t, c)
	reclaimRaceContract(t, c)
}

func TestCassandraSupersededAttempt(t *testing.T) {
	c := openTestCassandra(t)
	staleOwnerContract(t, c, fakeClock(&c.now))
}

func TestCassandraLeaseReclaimAtCeiling(t *testing.T) {
	c := openTestCassandra(t)
	advance := fakeClock(&c.now)
	ctx := context.Background()

	for i := 1; i < policy.MaxAttempts; i++ {
		_, _, err := c.TryBegin(ctx, "doc6")
		require.NoError(t, err)
		_, err = c.MarkFailed(ctx, "doc6", i)
		require.NoError(t, err)
	}
	result, entry, err := c.TryBegin(ctx, "doc6")
	require.NoError(t, err)
	require.Equal(t, Admitted, result)
	require.Equal(t, policy.MaxAttempts, entry.AttemptCount)

	advance(policy.LeaseTimeout)
	result, entry, err = c.TryBegin(ctx, "doc6")
	require.NoError(t, err)
	assert.Equal(t, Exhausted, result)
	assert.Equal(t, StatusFailed, entry.Status)

	got, err := c.Get(ctx, "doc6")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
}
