// Package ingestion defines the job, vector and outcome types shared by the
// embedding pipeline's codec, worker, index client and ack coordinator.
package ingestion

import (
	"fmt"
	"strings"
)

// DocumentType identifies how a document's bytes are turned into text.
type DocumentType string

const (
	TypePDF      DocumentType = "pdf"
	TypeText     DocumentType = "text"
	TypeMarkdown DocumentType = "markdown"
	TypeHTML     DocumentType = "html"
	TypeURL      DocumentType = "url"
	TypeImage    DocumentType = "image"
)

var knownTypes = map[DocumentType]struct{}{
	TypePDF:      {},
	TypeText:     {},
	TypeMarkdown: {},
	TypeHTML:     {},
	TypeURL:      {},
	TypeImage:    {},
}

// ParseDocumentType accepts any letter case, so producers sending "TEXT"
// and "text" agree.
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownTypes[t]; !ok {
		return "", fmt.Errorf("unknown document type %q", s)
	}
	return t, nil
}

// DocumentJob is one inbound request to embed a document.
type DocumentJob struct {
	ID        string       `json:"id"`
	OwnerID   string       `json:"ownerId"`
	Type      DocumentType `json:"type"`
	SourceRef string       `json:"sourceRef"`
}

// Vector is a fixed-dimension embedding.
type Vector []float32

// Dim returns the number of components.
func (v Vector) Dim() int { return len(v) }

// IndexRecord is what gets written to the vector index, keyed by document id.
type IndexRecord struct {
	ID       string
	Vector   Vector
	Metadata map[string]any
}

// Metadata keys written for every record.
const (
	MetaOwnerID   = "ownerId"
	MetaType      = "type"
	MetaSourceRef = "sourceRef"
)

// NewIndexRecord builds the record for a job's embedding.
func NewIndexRecord(job DocumentJob, vec Vector) IndexRecord {
	return IndexRecord{
		ID:     job.ID,
		Vector: vec,
		Metadata: map[string]any{
			MetaOwnerID:   job.OwnerID,
			MetaType:      string(job.Type),
			MetaSourceRef: job.SourceRef,
		},
	}
}

// OutcomeKind classifies how a job ended.
type OutcomeKind int

const (
	Success OutcomeKind = iota
	Retryable
	Permanent
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of processing one job. Reason is a short
// machine-friendly label; Err carries the underlying failure, if any.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Err    error
}

func Succeeded(reason string) Outcome {
	return Outcome{Kind: Success, Reason: reason}
}

func RetryableOutcome(reason string, err error) Outcome {
	return Outcome{Kind: Retryable, Reason: reason, Err: err}
}

func PermanentOutcome(reason string, err error) Outcome {
	return Outcome{Kind: Permanent, Reason: reason, Err: err}
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s(%s): %v", o.Kind, o.Reason, o.Err)
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
}
