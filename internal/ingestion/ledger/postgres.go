package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/postgres"
)

// Postgres stores entries in the ingestion_ledger table. TryBegin inserts
// the first attempt with ON CONFLICT DO NOTHING and otherwise locks the
// existing row with SELECT ... FOR UPDATE, all in one transaction.
type Postgres struct {
	db     *postgres.Client
	policy Policy
	now    func() time.Time
	logger *slog.Logger
}

func NewPostgres(db *postgres.Client, p Policy) *Postgres {
	return &Postgres{
		db:     db,
		policy: p,
		now:    time.Now,
		logger: slog.Default().With("component", "ledger", "backend", "postgres"),
	}
}

func (p *Postgres) TryBegin(ctx context.Context, documentID string) (BeginResult, Entry, error) {
	var (
		result BeginResult
		entry  Entry
	)
	err := p.db.InTx(ctx, func(tx *sql.Tx) error {
		now := p.now().UTC()
		_, first := Decide(nil, documentID, now, p.policy)
		var attempts int
		err := tx.QueryRowContext(ctx,
			`INSERT INTO ingestion_ledger (job_id, status, attempt_count, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (job_id) DO NOTHING
			RETURNING attempt_count`,
			documentID, string(first.Status), first.AttemptCount, first.UpdatedAt,
		).Scan(&attempts)
		if err == nil {
			result, entry = Admitted, first
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("inserting ledger entry: %w", err)
		}

		existing, err := selectEntry(ctx, tx, documentID, true)
		if err != nil {
			return err
		}
		result, entry = Decide(existing, documentID, now, p.policy)
		if !Changed(existing, entry) {
			return nil
		}
		return updateEntry(ctx, tx, entry)
	})
	if err != nil {
		return 0, Entry{}, fmt.Errorf("ledger try-begin %s: %w", documentID, err)
	}
	return result, entry, nil
}

func (p *Postgres) MarkCompleted(ctx context.Context, documentID string, attempt int) (Entry, error) {
	return p.transition(ctx, documentID, attempt, Complete)
}

func (p *Postgres) MarkFailed(ctx context.Context, documentID string, attempt int) (Entry, error) {
	return p.transition(ctx, documentID, attempt, Fail)
}

func (p *Postgres) transition(ctx context.Context, documentID string, attempt int, fn Transition) (Entry, error) {
	var next Entry
	err := p.db.InTx(ctx, func(tx *sql.Tx) error {
		existing, err := selectEntry(ctx, tx, documentID, true)
		if err != nil {
			return err
		}
		next, err = fn(existing, documentID, attempt, p.now().UTC())
		if err != nil {
			return err
		}
		return updateEntry(ctx, tx, next)
	})
	if err != nil {
		return Entry{}, err
	}
	return next, nil
}

func (p *Postgres) Get(ctx context.Context, documentID string) (Entry, error) {
	var e Entry
	var status string
	err := p.db.DB.QueryRowContext(ctx,
		`SELECT status, attempt_count, updated_at FROM ingestion_ledger WHERE job_id = $1`,
		documentID,
	).Scan(&status, &e.AttemptCount, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, notFound(documentID)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("reading ledger entry %s: %w", documentID, err)
	}
	e.DocumentID = documentID
	e.Status = Status(status)
	return e, nil
}

// Close is a no-op; the shared pool is closed by its owner.
func (p *Postgres) Close() error { return nil }

func selectEntry(ctx context.Context, tx *sql.Tx, documentID string, forUpdate bool) (*Entry, error) {
	query := `SELECT status, attempt_count, updated_at FROM ingestion_ledger WHERE job_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var e Entry
	var status string
	err := tx.QueryRowContext(ctx, query, documentID).Scan(&status, &e.AttemptCount, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("locking ledger entry: %w", err)
	}
	e.DocumentID = documentID
	e.Status = Status(status)
	return &e, nil
}

func updateEntry(ctx context.Context, tx *sql.Tx, e Entry) error {
	var completedAt any
	if e.Status == StatusCompleted {
		completedAt = e.UpdatedAt
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE ingestion_ledger
		SET status = $2, attempt_count = $3, updated_at = $4, completed_at = COALESCE($5, completed_at)
		WHERE job_id = $1`,
		e.DocumentID, string(e.Status), e.AttemptCount, e.UpdatedAt, completedAt,
	)
	if err != nil {
		return fmt.Errorf("updating ledger entry: %w", err)
	}
	return nil
}
