// Package codec turns raw broker payloads into DocumentJobs and back. Decode
// reports every field problem at once as a PayloadError.
package codec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/errors"
)

const maxIDLength = 512

// PayloadError holds per-field decoding failures. It matches
// errors.ErrMalformedPayload.
type PayloadError struct {
	Fields map[string]string
}

func (e *PayloadError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", k, e.Fields[k]))
	}
	return apperrors.ErrMalformedPayload.Error() + ": " + strings.Join(parts, "; ")
}

func (e *PayloadError) Unwrap() error {
	return apperrors.ErrMalformedPayload
}

// Decode parses and validates a job payload. Unknown fields are ignored.
func Decode(raw []byte) (ingestion.DocumentJob, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ingestion.DocumentJob{}, &PayloadError{Fields: map[string]string{"payload": "not a JSON object"}}
	}

	errs := make(map[string]string)
	str := func(name string) string {
		v, ok := fields[name]
		if !ok || string(v) == "null" {
			errs[name] = "is required"
			return ""
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			errs[name] = "must be a string"
			return ""
		}
		s = strings.TrimSpace(s)
		if s == "" {
			errs[name] = "must not be empty"
		}
		return s
	}

	job := ingestion.DocumentJob{
		ID:        str("id"),
		OwnerID:   str("ownerId"),
		SourceRef: str("sourceRef"),
	}
	if len(job.ID) > maxIDLength {
		errs["id"] = fmt.Sprintf("must be at most %d characters", maxIDLength)
	}
	if rawType := str("type"); rawType != "" {
		t, err := ingestion.ParseDocumentType(rawType)
		if err != nil {
			errs["type"] = err.Error()
		}
		job.Type = t
	}

	if len(errs) > 0 {
		return ingestion.DocumentJob{}, &PayloadError{Fields: errs}
	}
	return job, nil
}

// Encode serialises a job in the wire format Decode accepts.
func Encode(job ingestion.DocumentJob) ([]byte, error) {
	b, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encoding job %s: %w", job.ID, err)
	}
	return b, nil
}
