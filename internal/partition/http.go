package partition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultRequestTimeout = 60 * time.Second
	DefaultMaxRetries     = 2
	DefaultRetryInterval  = 500 * time.Millisecond
)

type HTTPConfig struct {
	Logger   *slog.Logger
	BaseURL  string
	Database string

	HTTPClient     *http.Client
	RequestTimeout time.Duration

	// MaxRetries is the number of retries after the first attempt. A negative value
	// disables retries.
	MaxRetries    int
	RetryInterval time.Duration
}

func (c *HTTPConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.BaseURL == "" {
		return errors.New("base url is required")
	}
	if c.Database == "" {
		return errors.New("database is required")
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	return nil
}

// HTTPSource downloads partitions over plain HTTP GET.
type HTTPSource struct {
	log *slog.Logger
	cfg HTTPConfig
}

func NewHTTPSource(cfg HTTPConfig) (*HTTPSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &HTTPSource{log: cfg.Logger, cfg: cfg}, nil
}

func (s *HTTPSource) URL(key Key) string {
	return s.cfg.BaseURL + "/" + key.ObjectPath(s.cfg.Database)
}

// Get downloads the partition. A 404 returns ErrNotFound without retrying; transport errors,
// 5xx, 408 and 429 are retried with exponential backoff.
func (s *HTTPSource) Get(ctx context.Context, key Key) ([]byte, error) {
	url := s.URL(key)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryInterval

	attempt := 0
	data, err := backoff.Retry(ctx, func() ([]byte, error) {
		if attempt > 0 {
			s.log.Warn("partition: retrying download", "url", url, "attempt", attempt)
		}
		attempt++

		data, err := s.get(ctx, url)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, ErrNotFound) {
			return nil, backoff.Permanent(err)
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(s.cfg.MaxRetries)+1))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	return data, nil
}

func (s *HTTPSource) get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return data, nil
}
