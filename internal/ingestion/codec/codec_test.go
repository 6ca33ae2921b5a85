package codec

import (
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValid(t *testing.T) {
	job, err := Decode([]byte(`{"id":"doc1","ownerId":"u1","type":"TEXT","sourceRef":"s3://b/doc1","extra":42}`))
	require.NoError(t, err)
	assert.Equal(t, ingestion.DocumentJob{
		ID:        "doc1",
		OwnerID:   "u1",
		Type:      ingestion.TypeText,
		SourceRef: "s3://b/doc1",
	}, job)
}

func TestDecodeMissingID(t *testing.T) {
	_, err := Decode([]byte(`{"ownerId":"u1","type":"text","sourceRef":"s3://b/doc1"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMalformedPayload)
	assert.True(t, apperrors.IsPermanent(err))

	var perr *PayloadError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, map[string]string{"id": "is required"}, perr.Fields)
}

func TestDecodeFieldProblems(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
		msg   string
	}{
		{"mistyped id", `{"id":7,"ownerId":"u1","type":"text","sourceRef":"k"}`, "id", "must be a string"},
		{"empty owner", `{"id":"d","ownerId":"  ","type":"text","sourceRef":"k"}`, "ownerId", "must not be empty"},
		{"null source", `{"id":"d","ownerId":"u1","type":"text","sourceRef":null}`, "sourceRef", "is required"},
		{"unknown type", `{"id":"d","ownerId":"u1","type":"xlsx","sourceRef":"k"}`, "type", `unknown document type "xlsx"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			var perr *PayloadError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.msg, perr.Fields[tt.field])
		})
	}
}

func TestDecodeNotAnObject(t *testing.T) {
	for _, raw := range []string{``, `not json`, `[1,2]`, `"doc1"`} {
		_, err := Decode([]byte(raw))
		assert.ErrorIs(t, err, apperrors.ErrMalformedPayload, raw)
	}
}

func TestPayloadErrorMessageIsSorted(t *testing.T) {
	err := &PayloadError{Fields: map[string]string{"type": "is required", "id": "is required"}}
	assert.Equal(t, "malformed payload: id:is required; type:is required", err.Error())
}

func TestEncodeDecodes(t *testing.T) {
	job := ingestion.DocumentJob{ID: "doc1", OwnerID: "u1", Type: ingestion.TypePDF, SourceRef: "s3://b/doc1.pdf"}
	raw, err := Encode(job)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"doc1","ownerId":"u1","type":"pdf","sourceRef":"s3://b/doc1.pdf"}`, string(raw))
}
