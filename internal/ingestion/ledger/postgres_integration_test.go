//go:build integration

package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion/ledger"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/testutil/pgtest"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresLedgerLifecycle(t *testing.T) {
	l := ledger.NewPostgres(pgtest.Open(t), ledger.Policy{MaxAttempts: 2, LeaseTimeout: time.Hour})
	ctx := context.Background()
	id := fmt.Sprintf("it-doc-%d", time.Now().UnixNano())

	result, entry, err := l.TryBegin(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.Admitted, result)
	assert.Equal(t, 1, entry.AttemptCount)

	result, _, err = l.TryBegin(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.AlreadyInProgress, result)

	_, err = l.MarkFailed(ctx, id, 1)
	require.NoError(t, err)

	result, entry, err = l.TryBegin(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.Admitted, result)
	assert.Equal(t, 2, entry.AttemptCount)

	entry, err = l.MarkCompleted(ctx, id, 2)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, entry.Status)

	result, _, err = l.TryBegin(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.AlreadyCompleted, result)

	_, err = l.MarkCompleted(ctx, id+"-missing", 1)
	assert.ErrorIs(t, err, apperrors.ErrUnknownEntry)
}

func TestPostgresLedgerAdmitsOneConcurrentCaller(t *testing.T) {
	l := ledger.NewPostgres(pgtest.Open(t), ledger.Policy{MaxAttempts: 5, LeaseTimeout: time.Hour})
	ctx := context.Background()
	id := fmt.Sprintf("it-race-%d", time.Now().UnixNano())

	const callers = 8
	results := make([]ledger.BeginResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, _, err := l.TryBegin(ctx, id)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, r := range results {
		if r == ledger.Admitted {
			admitted++
		}
	}
	assert.Equal(t, 1, admitted)
}
