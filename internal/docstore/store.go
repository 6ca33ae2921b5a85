// Package docstore fetches document bytes by source reference. A Router
// dispatches s3:// references (and bare keys in the default bucket) to an
// object store and http(s):// references to an HTTP fetcher. Every backend
// reports a missing object as errors.ErrNotFound and anything else as
// errors.ErrFetch.
package docstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/errors"
)

// Store fetches the bytes behind a source reference.
type Store interface {
	Fetch(ctx context.Context, sourceRef string) ([]byte, error)
}

// ObjectStore reads one object from a bucket.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// Ref is a parsed source reference.
type Ref struct {
	Scheme string
	Bucket string
	Key    string
	URL    string
}

// ParseRef splits sourceRef. Bare keys resolve against defaultBucket.
func ParseRef(sourceRef, defaultBucket string) (Ref, error) {
	switch {
	case strings.HasPrefix(sourceRef, "http://"), strings.HasPrefix(sourceRef, "https://"):
		u, err := url.Parse(sourceRef)
		if err != nil || u.Host == "" {
			return Ref{}, apperrors.Newf(apperrors.ErrNotFound, "invalid url %q", sourceRef)
		}
		return Ref{Scheme: u.Scheme, URL: u.String()}, nil
	case strings.HasPrefix(sourceRef, "s3://"):
		rest := strings.TrimPrefix(sourceRef, "s3://")
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || key == "" {
			return Ref{}, apperrors.Newf(apperrors.ErrNotFound, "s3 reference %q needs bucket and key", sourceRef)
		}
		return Ref{Scheme: "s3", Bucket: bucket, Key: key}, nil
	case strings.Contains(sourceRef, "://"):
		return Ref{}, apperrors.Newf(apperrors.ErrNotFound, "unsupported scheme in %q", sourceRef)
	default:
		if defaultBucket == "" {
			return Ref{}, apperrors.Newf(apperrors.ErrNotFound, "bare key %q but no default bucket configured", sourceRef)
		}
		return Ref{Scheme: "s3", Bucket: defaultBucket, Key: strings.TrimPrefix(sourceRef, "/")}, nil
	}
}

// Router is the Store used by the worker.
type Router struct {
	objects       ObjectStore
	web           Store
	defaultBucket string
}

// NewRouter wires an object store and an HTTP fetcher. Either may be nil,
// in which case references of that kind fail as not found.
func NewRouter(objects ObjectStore, web Store, defaultBucket string) *Router {
	return &Router{objects: objects, web: web, defaultBucket: defaultBucket}
}

func (r *Router) Fetch(ctx context.Context, sourceRef string) ([]byte, error) {
	ref, err := ParseRef(sourceRef, r.defaultBucket)
	if err != nil {
		return nil, err
	}
	switch ref.Scheme {
	case "s3":
		if r.objects == nil {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "no object store configured for %q", sourceRef)
		}
		return r.objects.Get(ctx, ref.Bucket, ref.Key)
	default:
		if r.web == nil {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "no http fetcher configured for %q", sourceRef)
		}
		return r.web.Fetch(ctx, ref.URL)
	}
}

// readLimited reads at most limit bytes; a larger body is content-invalid.
func readLimited(r io.Reader, limit int64, what string) ([]byte, error) {
	if limit <= 0 {
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrFetch, err, "reading %s", what)
		}
		return b, nil
	}
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrFetch, err, "reading %s", what)
	}
	if int64(len(b)) > limit {
		return nil, apperrors.Newf(apperrors.ErrContentInvalid, "%s exceeds %d bytes", what, limit)
	}
	return b, nil
}

func objectName(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}
