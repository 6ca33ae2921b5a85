package ledger

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/postgres"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	l := NewPostgres(postgres.FromDB(db), policy)
	l.now = func() time.Time { return t0 }
	return l, mock
}

func TestPostgresTryBeginInsertsFirstAttempt(t *testing.T) {
	l, mock := newTestPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO ingestion_ledger").
		WithArgs("doc1", "in_progress", 1, t0).
		WillReturnRows(sqlmock.NewRows([]string{"attempt_count"}).AddRow(1))
	mock.ExpectCommit()

	result, entry, err := l.TryBegin(context.Background(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, Admitted, result)
	assert.Equal(t, 1, entry.AttemptCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTryBeginReadmitsFailedEntry(t *testing.T) {
	l, mock := newTestPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO ingestion_ledger").
		WillReturnRows(sqlmock.NewRows([]string{"attempt_count"}))
	mock.ExpectQuery("SELECT status, attempt_count, updated_at FROM ingestion_ledger WHERE job_id = \\$1 FOR UPDATE").
		WithArgs("doc1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "attempt_count", "updated_at"}).AddRow("failed", 1, t0))
	mock.ExpectExec("UPDATE ingestion_ledger").
		WithArgs("doc1", "in_progress", 2, t0, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, entry, err := l.TryBegin(context.Background(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, Admitted, result)
	assert.Equal(t, 2, entry.AttemptCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTryBeginCompletedIsReadOnly(t *testing.T) {
	l, mock := newTestPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO ingestion_ledger").
		WillReturnRows(sqlmock.NewRows([]string{"attempt_count"}))
	mock.ExpectQuery("SELECT status").
		WillReturnRows(sqlmock.NewRows([]string{"status", "attempt_count", "updated_at"}).AddRow("completed", 1, t0))
	mock.ExpectCommit()

	result, _, err := l.TryBegin(context.Background(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, AlreadyCompleted, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkCompleted(t *testing.T) {
	l, mock := newTestPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status").
		WithArgs("doc1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "attempt_count", "updated_at"}).AddRow("in_progress", 1, t0))
	mock.ExpectExec("UPDATE ingestion_ledger").
		WithArgs("doc1", "completed", 1, t0, t0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	entry, err := l.MarkCompleted(context.Background(), "doc1", 1)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, entry.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkFailedWithoutEntry(t *testing.T) {
	l, mock := newTestPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status").
		WillReturnRows(sqlmock.NewRows([]string{"status", "attempt_count", "updated_at"}))
	mock.ExpectRollback()

	_, err := l.MarkFailed(context.Background(), "ghost", 1)
	assert.ErrorIs(t, err, apperrors.ErrUnknownEntry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkCompletedBySupersededAttempt(t *testing.T) {
	l, mock := newTestPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status").
		WithArgs("doc1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "attempt_count", "updated_at"}).AddRow("in_progress", 2, t0))
	mock.ExpectRollback()

	_, err := l.MarkCompleted(context.Background(), "doc1", 1)
	assert.ErrorIs(t, err, apperrors.ErrLeaseLost)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetMissing(t *testing.T) {
	l, mock := newTestPostgres(t)

	mock.ExpectQuery("SELECT status").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"status", "attempt_count", "updated_at"}))

	_, err := l.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperrors.ErrUnknownEntry)
}
