package vectorindex

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion"
	redisclient "github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/redis"
)

const (
	defaultEFConstruction = 200
	defaultM              = 16

	fieldVector    = "vector"
	fieldOwnerID   = "owner_id"
	fieldDocType   = "doc_type"
	fieldMetadata  = "metadata"
	fieldUpdatedAt = "updated_at"
	fieldScore     = "score"
)

// Redis stores one hash per record and searches it with a RediSearch HNSW
// index using the COSINE metric. Vectors are packed little-endian float32.
type Redis struct {
	client    *redisclient.Client
	indexName string
	prefix    string
}

func NewRedis(client *redisclient.Client, indexName, keyPrefix string) *Redis {
	return &Redis{client: client, indexName: indexName, prefix: keyPrefix}
}

// Provision runs FT.CREATE unless the index already exists.
func (r *Redis) Provision(ctx context.Context, dim int) error {
	if _, err := r.client.Do(ctx, "FT.INFO", r.indexName); err == nil {
		return nil
	}
	_, err := r.client.Do(ctx, "FT.CREATE", r.indexName,
		"ON", "HASH",
		"PREFIX", "1", r.prefix,
		"SCHEMA",
		fieldVector, "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(dim),
		"DISTANCE_METRIC", "COSINE",
		"EF_CONSTRUCTION", strconv.Itoa(defaultEFConstruction),
		"M", strconv.Itoa(defaultM),
		fieldOwnerID, "TAG",
		fieldDocType, "TAG",
		fieldUpdatedAt, "NUMERIC",
	)
	if err != nil {
		return fmt.Errorf("creating index %s: %w", r.indexName, err)
	}
	return nil
}

func (r *Redis) Upsert(ctx context.Context, rec ingestion.IndexRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	owner, _ := rec.Metadata[ingestion.MetaOwnerID].(string)
	docType, _ := rec.Metadata[ingestion.MetaType].(string)
	return r.client.HSet(ctx, r.prefix+rec.ID,
		fieldVector, EncodeVector(rec.Vector),
		fieldOwnerID, owner,
		fieldDocType, docType,
		fieldMetadata, string(meta),
		fieldUpdatedAt, time.Now().Unix(),
	)
}

func (r *Redis) Query(ctx context.Context, vec ingestion.Vector, topK int) ([]Match, error) {
	query := fmt.Sprintf("*=>[KNN %d @%s $query_vector AS %s]", topK, fieldVector, fieldScore)
	res, err := r.client.Do(ctx, "FT.SEARCH", r.indexName, query,
		"PARAMS", "2", "query_vector", EncodeVector(vec),
		"RETURN", "2", fieldScore, fieldMetadata,
		"SORTBY", fieldScore,
		"LIMIT", "0", strconv.Itoa(topK),
		"DIALECT", "2",
	)
	if err != nil {
		return nil, fmt.Errorf("vector search on %s: %w", r.indexName, err)
	}
	return parseSearchReply(res, r.prefix)
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	_, err := r.client.Del(ctx, r.prefix+id)
	return err
}

// parseSearchReply reads a RESP2 FT.SEARCH reply: the total count followed
// by key / field-list pairs. The KNN score is a cosine distance.
func parseSearchReply(res interface{}, prefix string) ([]Match, error) {
	values, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected FT.SEARCH reply %T", res)
	}
	if len(values) == 0 {
		return nil, nil
	}
	matches := make([]Match, 0, (len(values)-1)/2)
	for i := 1; i+1 < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			continue
		}
		fields, ok := values[i+1].([]interface{})
		if !ok {
			continue
		}
		m := Match{ID: strings.TrimPrefix(key, prefix)}
		for j := 0; j+1 < len(fields); j += 2 {
			name, _ := fields[j].(string)
			val, _ := fields[j+1].(string)
			switch name {
			case fieldScore:
				dist, err := strconv.ParseFloat(val, 64)
				if err != nil {
					return nil, fmt.Errorf("parsing score for %s: %w", key, err)
				}
				m.Score = 1 - dist
			case fieldMetadata:
				if err := json.Unmarshal([]byte(val), &m.Metadata); err != nil {
					return nil, fmt.Errorf("decoding metadata for %s: %w", key, err)
				}
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// EncodeVector packs v as little-endian float32, the layout RediSearch
// expects for FLOAT32 vector fields.
func EncodeVector(v ingestion.Vector) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(b []byte) (ingestion.Vector, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make(ingestion.Vector, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
