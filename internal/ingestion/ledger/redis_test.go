package ledger

import (
	"context"
	"testing"
	"time"

	redisclient "github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { rdb.Close() })
	return NewRedis(redisclient.Wrap(rdb), "ledger:", policy)
}

func TestRedisLedger(t *testing.T) {
	ledgerContract(t, newTestRedis(t))
	exhaustionContract(t, newTestRedis(t), policy.MaxAttempts)
	concurrencyContract(t, newTestRedis(t))
	reclaimRaceContract(t, newTestRedis(t))

	r := newTestRedis(t)
	staleOwnerContract(t, r, fakeClock(&r.now))
}

func TestRedisLeaseReclaim(t *testing.T) {
	r := newTestRedis(t)
	now := t0
	r.now = func() time.Time { return now }
	ctx := context.Background()

	_, _, err := r.TryBegin(ctx, "doc1")
	require.NoError(t, err)

	now = now.Add(5 * time.Minute)
	result, _, err := r.TryBegin(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, AlreadyInProgress, result)

	now = now.Add(6 * time.Minute)
	result, entry, err := r.TryBegin(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, Admitted, result)
	assert.Equal(t, 2, entry.AttemptCount)
	assert.Equal(t, now.UnixMilli(), entry.UpdatedAt.UnixMilli())
}

func TestRedisEntryLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	defer rdb.Close()
	l := NewRedis(redisclient.Wrap(rdb), "ledger:", policy)

	_, _, err := l.TryBegin(context.Background(), "doc9")
	require.NoError(t, err)

	assert.Equal(t, "in_progress", mr.HGet("ledger:doc9", "status"))
	assert.Equal(t, "1", mr.HGet("ledger:doc9", "attempts"))
}
