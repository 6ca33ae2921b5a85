package docstore

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/errors"
)

const userAgent = "embedding-worker/1.0"

// HTTP fetches http(s) references. 404 and 410 are not-found; every other
// non-2xx status is a transient fetch failure.
type HTTP struct {
	client   *http.Client
	maxBytes int64
}

func NewHTTP(timeout time.Duration, maxBytes int64) *HTTP {
	return &HTTP{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

func (h *HTTP) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, err, "building request for %s", rawURL)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrFetch, err, "getting %s", rawURL)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return nil, apperrors.Newf(apperrors.ErrNotFound, "%s returned %d", rawURL, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, apperrors.Wrap(apperrors.ErrFetch, fmt.Errorf("status %d", resp.StatusCode), "getting %s", rawURL)
	}
	return readLimited(resp.Body, h.maxBytes, rawURL)
}
