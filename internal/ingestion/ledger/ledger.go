// Package ledger records which documents have been embedded so redelivered
// jobs are not processed twice. Every backend performs TryBegin as one atomic
// check-and-set per document id; the transition rules live in Decide,
// Complete and Fail so the backends only differ in how they lock.
package ledger

import (
	"context"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/errors"
)

// Status is the lifecycle state of a ledger entry.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Entry is the ledger row for one document id.
type Entry struct {
	DocumentID   string    `json:"documentId"`
	Status       Status    `json:"status"`
	AttemptCount int       `json:"attemptCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// BeginResult is the answer to TryBegin.
type BeginResult int

const (
	// Admitted means the caller now owns the document until it marks the
	// entry completed or failed. The admitted AttemptCount identifies the
	// owner in those calls.
	Admitted BeginResult = iota
	AlreadyCompleted
	AlreadyInProgress
	// Exhausted means the entry failed MaxAttempts times and will not be
	// admitted again.
	Exhausted
)

func (r BeginResult) String() string {
	switch r {
	case Admitted:
		return "admitted"
	case AlreadyCompleted:
		return "already_completed"
	case AlreadyInProgress:
		return "already_in_progress"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Policy bounds retries. An in-progress entry untouched for LeaseTimeout is
// assumed abandoned by a crashed worker and counts as a failed attempt.
// A zero LeaseTimeout disables reclaiming.
type Policy struct {
	MaxAttempts  int
	LeaseTimeout time.Duration
}

// Ledger is the idempotency store shared by every worker instance.
// MarkCompleted and MarkFailed only apply while attempt is still the
// current attempt; once a lease has been reclaimed they return an error
// wrapping ErrLeaseLost.
type Ledger interface {
	TryBegin(ctx context.Context, documentID string) (BeginResult, Entry, error)
	MarkCompleted(ctx context.Context, documentID string, attempt int) (Entry, error)
	MarkFailed(ctx context.Context, documentID string, attempt int) (Entry, error)
	Get(ctx context.Context, documentID string) (Entry, error)
	Close() error
}

// Decide applies TryBegin's rules to the current entry (nil when absent)
// and returns the result together with the entry that should now be stored.
func Decide(existing *Entry, documentID string, now time.Time, p Policy) (BeginResult, Entry) {
	if existing == nil {
		return Admitted, Entry{
			DocumentID:   documentID,
			Status:       StatusInProgress,
			AttemptCount: 1,
			UpdatedAt:    now,
		}
	}

	cur := *existing
	switch cur.Status {
	case StatusCompleted:
		return AlreadyCompleted, cur
	case StatusInProgress:
		if p.LeaseTimeout <= 0 || now.Sub(cur.UpdatedAt) < p.LeaseTimeout {
			return AlreadyInProgress, cur
		}
		if cur.AttemptCount >= p.MaxAttempts {
			cur.Status = StatusFailed
			cur.UpdatedAt = now
			return Exhausted, cur
		}
	default:
		if cur.AttemptCount >= p.MaxAttempts {
			return Exhausted, cur
		}
	}

	cur.Status = StatusInProgress
	cur.AttemptCount++
	cur.UpdatedAt = now
	return Admitted, cur
}

// Changed reports whether Decide's result must be written back.
func Changed(existing *Entry, next Entry) bool {
	return existing == nil ||
		existing.Status != next.Status ||
		existing.AttemptCount != next.AttemptCount
}

// Transition is Complete or Fail.
type Transition func(existing *Entry, documentID string, attempt int, now time.Time) (Entry, error)

// Complete transitions attempt's in-progress entry to completed.
func Complete(existing *Entry, documentID string, attempt int, now time.Time) (Entry, error) {
	return finish(existing, documentID, attempt, StatusCompleted, now)
}

// Fail transitions attempt's in-progress entry to failed. The attempt count
// is left as is; the next TryBegin increments it.
func Fail(existing *Entry, documentID string, attempt int, now time.Time) (Entry, error) {
	return finish(existing, documentID, attempt, StatusFailed, now)
}

func finish(existing *Entry, documentID string, attempt int, to Status, now time.Time) (Entry, error) {
	if err := checkOwner(existing, documentID, attempt); err != nil {
		return Entry{}, err
	}
	next := *existing
	next.Status = to
	next.UpdatedAt = now
	return next, nil
}

// checkOwner returns nil when existing is attempt's in-progress entry.
func checkOwner(existing *Entry, documentID string, attempt int) error {
	if existing != nil && existing.AttemptCount != attempt {
		return apperrors.Newf(apperrors.ErrLeaseLost,
			"document %s attempt %d was superseded by attempt %d", documentID, attempt, existing.AttemptCount)
	}
	if existing == nil || existing.Status != StatusInProgress {
		return unknownEntry(documentID, existing)
	}
	return nil
}

func unknownEntry(documentID string, existing *Entry) error {
	if existing == nil {
		return apperrors.Newf(apperrors.ErrUnknownEntry, "document %s has no ledger entry", documentID)
	}
	return apperrors.Newf(apperrors.ErrUnknownEntry, "document %s is %s, not in_progress", documentID, existing.Status)
}

func notFound(documentID string) error {
	return apperrors.Newf(apperrors.ErrUnknownEntry, "document %s has no ledger entry", documentID)
}
