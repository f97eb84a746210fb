package epub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"storybind/config"
)

// StatusError is returned by Fetcher when server responds with non 2xx
// status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http %d", e.URL, e.Code)
}

// Temporary reports whether repeating request may succeed.
func (e *StatusError) Temporary() bool {
	switch {
	case e.Code == http.StatusRequestTimeout, e.Code == http.StatusTooManyRequests:
		return true
	case e.Code >= 400 && e.Code < 500:
		return false
	}
	return true
}

var (
	// ErrTooLarge is returned when response body exceeds configured limit.
	ErrTooLarge = errors.New("response is too large")
	ErrBadURL   = errors.New("bad url")
)

// Fetcher downloads cover images.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	attempts  int
	delay     time.Duration
	maxBytes  int64
	userAgent string
	token     config.SecretString
	log       *zap.Logger
}

// NewFetcher creates Fetcher from configuration. Client may be nil.
func NewFetcher(cfg *config.FetchConfig, client *http.Client, log *zap.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	f := &Fetcher{
		client:    client,
		timeout:   cfg.Timeout,
		attempts:  cfg.Attempts,
		delay:     cfg.Delay,
		maxBytes:  cfg.MaxBytes,
		userAgent: cfg.UserAgent,
		token:     cfg.Token,
		log:       log,
	}
	if f.attempts < 1 {
		f.attempts = 1
	}
	return f
}

// Fetch downloads url. Failed attempts are repeated with linear backoff
// unless error is permanent (client errors other than 408 and 429) or ctx is
// done.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		data, err := f.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return nil, err
		}
		if errors.Is(err, ErrTooLarge) || errors.Is(err, ErrBadURL) || attempt == f.attempts {
			break
		}

		wait := f.delay * time.Duration(attempt)
		f.log.Debug("Retrying download", zap.String("url", url), zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("unable to download after %d attempt(s): %w", f.attempts, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadURL, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token.Reveal())
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// drain so connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	limit := f.maxBytes
	if limit <= 0 {
		limit = 20 * 1024 * 1024
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}
