package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/resilience"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// badgerLogger routes badger's internal logging through slog.
type badgerLogger struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...any) {
	l.logger.Error(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Warningf(msg string, items ...any) {
	l.logger.Warn(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Infof(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Debugf(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

// Badger is an embedded ledger for single-host deployments. Each transition
// is an optimistic read-modify-write transaction; conflicting writers get
// badger.ErrConflict and are retried.
type Badger struct {
	db     *badger.DB
	prefix string
	policy Policy
	now    func() time.Time
	logger *slog.Logger
}

// OpenBadger opens (creating if needed) the store at dir, or an in-memory
// store when inMemory is set.
func OpenBadger(dir string, inMemory bool, keyPrefix string, p Policy) (*Badger, error) {
	logger := slog.Default().With("component", "ledger", "backend", "badger")

	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating badger dir %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger ledger: %w", err)
	}
	return &Badger{
		db:     db,
		prefix: keyPrefix,
		policy: p,
		now:    time.Now,
		logger: logger,
	}, nil
}

func (b *Badger) key(documentID string) []byte {
	return []byte(b.prefix + documentID)
}

func (b *Badger) TryBegin(ctx context.Context, documentID string) (BeginResult, Entry, error) {
	var (
		result BeginResult
		entry  Entry
	)
	err := b.update(ctx, "ledger try-begin", func(txn *badger.Txn) error {
		existing, err := b.read(txn, documentID)
		if err != nil {
			return err
		}
		result, entry = Decide(existing, documentID, b.now().UTC(), b.policy)
		if !Changed(existing, entry) {
			return nil
		}
		return b.write(txn, entry)
	})
	if err != nil {
		return 0, Entry{}, fmt.Errorf("ledger try-begin %s: %w", documentID, err)
	}
	return result, entry, nil
}

func (b *Badger) MarkCompleted(ctx context.Context, documentID string, attempt int) (Entry, error) {
	return b.transition(ctx, documentID, attempt, Complete)
}

func (b *Badger) MarkFailed(ctx context.Context, documentID string, attempt int) (Entry, error) {
	return b.transition(ctx, documentID, attempt, Fail)
}

func (b *Badger) transition(ctx context.Context, documentID string, attempt int, fn Transition) (Entry, error) {
	var next Entry
	err := b.update(ctx, "ledger transition", func(txn *badger.Txn) error {
		existing, err := b.read(txn, documentID)
		if err != nil {
			return err
		}
		next, err = fn(existing, documentID, attempt, b.now().UTC())
		if err != nil {
			return err
		}
		return b.write(txn, next)
	})
	if err != nil {
		return Entry{}, err
	}
	return next, nil
}

func (b *Badger) Get(ctx context.Context, documentID string) (Entry, error) {
	var found *Entry
	err := b.db.View(func(txn *badger.Txn) error {
		e, err := b.read(txn, documentID)
		found = e
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	if found == nil {
		return Entry{}, notFound(documentID)
	}
	return *found, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (b *Badger) update(ctx context.Context, name string, fn func(txn *badger.Txn) error) error {
	return resilience.Retry(ctx, name, resilience.RetryConfig{
		MaxAttempts:  10,
		InitialDelay: time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		ShouldRetry:  func(err error) bool { return errors.Is(err, badger.ErrConflict) },
	}, func() error {
		return b.db.Update(fn)
	})
}

func (b *Badger) read(txn *badger.Txn, documentID string) (*Entry, error) {
	item, err := txn.Get(b.key(documentID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger entry: %w", err)
	}
	var e Entry
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	})
	if err != nil {
		return nil, fmt.Errorf("decoding ledger entry: %w", err)
	}
	return &e, nil
}

func (b *Badger) write(txn *badger.Txn, e Entry) error {
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding ledger entry: %w", err)
	}
	return txn.Set(b.key(e.DocumentID), val)
}
