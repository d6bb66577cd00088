package partition

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound means nothing is published for the key. It is not a failure.
	ErrNotFound = errors.New("partition not found")
)

// Source downloads the raw bytes of a partition.
type Source interface {
	Get(ctx context.Context, key Key) ([]byte, error)
}

// StatusError is returned for non-2xx responses other than 404.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 408 || e.StatusCode == 429
}

// IsS3URL reports whether baseURL points at an S3 bucket.
func IsS3URL(baseURL string) bool {
	return strings.HasPrefix(baseURL, "s3://")
}
