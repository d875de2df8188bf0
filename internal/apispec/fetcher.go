package apispec

import (
	"context"
	"fmt"
	"time"

	"github.com/raysh454/zapscan/internal/logging"
	"github.com/raysh454/zapscan/internal/webclient"
)

const (
	DefaultFetchAttempts = 3
	DefaultFetchSpacing  = 2 * time.Second
)

// FetchError reports a description that could not be retrieved.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch api description %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch api description %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher retrieves API descriptions over HTTP. Transport errors and 5xx
// responses are retried; 4xx responses fail at once.
type Fetcher struct {
	wc       webclient.WebClient
	attempts int
	spacing  time.Duration
	logger   logging.Logger
}

func NewFetcher(wc webclient.WebClient, attempts int, spacing time.Duration, logger logging.Logger) *Fetcher {
	if attempts <= 0 {
		attempts = DefaultFetchAttempts
	}
	if spacing < 0 {
		spacing = DefaultFetchSpacing
	}
	return &Fetcher{
		wc:       wc,
		attempts: attempts,
		spacing:  spacing,
		logger:   logger.With(logging.Field{Key: "component", Value: "apispec"}),
	}
}

// Fetch returns the raw document body at url.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		resp, err := f.wc.Get(ctx, url)
		switch {
		case err != nil:
			lastErr = &FetchError{URL: url, Err: err}
		case resp.OK():
			return resp.Body, nil
		case resp.StatusCode < 500:
			return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
		default:
			lastErr = &FetchError{URL: url, StatusCode: resp.StatusCode}
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == f.attempts {
			break
		}
		f.logger.Warn("api description fetch failed, retrying",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "attempt", Value: attempt},
			logging.Field{Key: "error", Value: lastErr.Error()})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.spacing):
		}
	}
	return nil, lastErr
}

// Load fetches and parses the description at url.
func (f *Fetcher) Load(ctx context.Context, url string) (*Document, error) {
	data, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
