package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/cassandra"
	"github.com/gocql/gocql"
)

const cassandraSchema = `CREATE TABLE IF NOT EXISTS ingestion_ledger (
	job_id text PRIMARY KEY,
	status text,
	attempt_count int,
	updated_at timestamp
)`

// casRetries bounds how often a lost compare-and-set is re-read and retried.
const casRetries = 5

// Cassandra uses lightweight transactions: the first attempt is an
// INSERT ... IF NOT EXISTS and every later transition is an UPDATE
// conditioned on the state it was decided from.
type Cassandra struct {
	client *cassandra.Client
	policy Policy
	now    func() time.Time
	logger *slog.Logger
}

func NewCassandra(client *cassandra.Client, p Policy) *Cassandra {
	return &Cassandra{
		client: client,
		policy: p,
		now:    time.Now,
		logger: slog.Default().With("component", "ledger", "backend", "cassandra"),
	}
}

// EnsureSchema creates the ledger table.
func (c *Cassandra) EnsureSchema(ctx context.Context) error {
	if err := c.client.Session.Query(cassandraSchema).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("creating ingestion_ledger table: %w", err)
	}
	return nil
}

func (c *Cassandra) TryBegin(ctx context.Context, documentID string) (BeginResult, Entry, error) {
	now := c.now().UTC()
	_, first := Decide(nil, documentID, now, c.policy)

	row := map[string]interface{}{}
	applied, err := c.client.Session.Query(
		`INSERT INTO ingestion_ledger (job_id, status, attempt_count, updated_at) VALUES (?, ?, ?, ?) IF NOT EXISTS`,
		documentID, string(first.Status), first.AttemptCount, first.UpdatedAt,
	).WithContext(ctx).MapScanCAS(row)
	if err != nil {
		return 0, Entry{}, fmt.Errorf("ledger try-begin %s: %w", documentID, err)
	}
	if applied {
		return Admitted, first, nil
	}

	for i := 0; i < casRetries; i++ {
		existing := entryFromRow(documentID, row)
		result, next := Decide(&existing, documentID, now, c.policy)
		if !Changed(&existing, next) {
			return result, next, nil
		}
		row = map[string]interface{}{}
		applied, err = c.conditionalUpdate(ctx, next, existing, row)
		if err != nil {
			return 0, Entry{}, fmt.Errorf("ledger try-begin %s: %w", documentID, err)
		}
		if applied {
			return result, next, nil
		}
		c.logger.Debug("lost ledger compare-and-set, retrying", "job_id", documentID, "try", i+1)
	}
	return 0, Entry{}, fmt.Errorf("ledger try-begin %s: contention after %d tries", documentID, casRetries)
}

func (c *Cassandra) MarkCompleted(ctx context.Context, documentID string, attempt int) (Entry, error) {
	return c.transition(ctx, documentID, attempt, Complete)
}

func (c *Cassandra) MarkFailed(ctx context.Context, documentID string, attempt int) (Entry, error) {
	return c.transition(ctx, documentID, attempt, Fail)
}

func (c *Cassandra) transition(ctx context.Context, documentID string, attempt int, fn Transition) (Entry, error) {
	existing, err := c.lookup(ctx, documentID)
	if err != nil {
		return Entry{}, err
	}
	next, err := fn(existing, documentID, attempt, c.now().UTC())
	if err != nil {
		return Entry{}, err
	}
	row := map[string]interface{}{}
	applied, err := c.conditionalUpdate(ctx, next, *existing, row)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger mark %s %s: %w", next.Status, documentID, err)
	}
	if !applied {
		current := entryFromRow(documentID, row)
		if err := checkOwner(&current, documentID, attempt); err != nil {
			return Entry{}, err
		}
		return Entry{}, unknownEntry(documentID, &current)
	}
	return next, nil
}

func (c *Cassandra) Get(ctx context.Context, documentID string) (Entry, error) {
	e, err := c.lookup(ctx, documentID)
	if err != nil {
		return Entry{}, err
	}
	if e == nil {
		return Entry{}, notFound(documentID)
	}
	return *e, nil
}

// Close is a no-op; the session is closed by its owner.
func (c *Cassandra) Close() error { return nil }

func (c *Cassandra) lookup(ctx context.Context, documentID string) (*Entry, error) {
	var (
		status   string
		attempts int
		updated  time.Time
	)
	err := c.client.Session.Query(
		`SELECT status, attempt_count, updated_at FROM ingestion_ledger WHERE job_id = ?`, documentID,
	).WithContext(ctx).Consistency(gocql.Quorum).Scan(&status, &attempts, &updated)
	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger entry %s: %w", documentID, err)
	}
	return &Entry{DocumentID: documentID, Status: Status(status), AttemptCount: attempts, UpdatedAt: updated}, nil
}

func (c *Cassandra) conditionalUpdate(ctx context.Context, next, from Entry, row map[string]interface{}) (bool, error) {
	return c.client.Session.Query(
		`UPDATE ingestion_ledger SET status = ?, attempt_count = ?, updated_at = ?
		WHERE job_id = ? IF status = ? AND attempt_count = ?`,
		string(next.Status), next.AttemptCount, next.UpdatedAt,
		next.DocumentID, string(from.Status), from.AttemptCount,
	).WithContext(ctx).MapScanCAS(row)
}

// entryFromRow reads the current values returned by a failed conditional
// statement.
func entryFromRow(documentID string, row map[string]interface{}) Entry {
	e := Entry{DocumentID: documentID}
	if s, ok := row["status"].(string); ok {
		e.Status = Status(s)
	}
	if n, ok := row["attempt_count"].(int); ok {
		e.AttemptCount = n
	}
	if t, ok := row["updated_at"].(time.Time); ok {
		e.UpdatedAt = t
	}
	return e
}
