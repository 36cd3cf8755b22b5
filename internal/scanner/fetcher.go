// Package scanner contains the scan engine: the static page fetcher, the
// single-page pipeline, the BFS site crawler, the job executor and the
// bounded-concurrency scheduler.
package scanner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/seoscan/internal/common"
)

// maxFetchBodyBytes caps how much of a response body is read into memory
const maxFetchBodyBytes = 10 << 20

// FetchResult is the outcome of one static HTTP fetch
type FetchResult struct {
	HTML       string
	HTTPStatus int
	LoadTimeMs int64
	FinalURL   string
}

// FetchParams are the per-job fetch settings, resolved from scan options
// with the scanner config as fallback.
type FetchParams struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher performs static HTTP fetches with a politeness rate limit shared
// across all jobs.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	config  common.ScannerConfig
	logger  arbor.ILogger
}

// NewFetcher builds the shared fetcher from the scanner configuration
func NewFetcher(config common.ScannerConfig, logger arbor.ILogger) *Fetcher {
	limit := rate.Inf
	if config.RequestsPerSec > 0 {
		limit = rate.Limit(config.RequestsPerSec)
	}
	return &Fetcher{
		client: &http.Client{
			// Per-request deadline comes from the fetch context
			Timeout: 0,
		},
		limiter: rate.NewLimiter(limit, 1),
		config:  config,
		logger:  logger,
	}
}

// Params resolves the effective fetch settings for a job
func (f *Fetcher) Params(userAgent string, timeoutMs int) FetchParams {
	params := FetchParams{
		UserAgent: f.config.UserAgent,
		Timeout:   time.Duration(f.config.RequestTimeoutMs) * time.Millisecond,
	}
	if userAgent != "" {
		params.UserAgent = userAgent
	}
	if timeoutMs > 0 {
		params.Timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	return params
}

// Fetch performs one GET following redirects, returning the final status
// and elapsed wall time.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, params FetchParams) (*FetchResult, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, params.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", params.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", rawURL, err)
	}
	elapsed := time.Since(started).Milliseconds()

	f.logger.Debug().
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Int64("elapsed_ms", elapsed).
		Int("bytes", len(body)).
		Msg("Fetched page")

	return &FetchResult{
		HTML:       string(body),
		HTTPStatus: resp.StatusCode,
		LoadTimeMs: elapsed,
		FinalURL:   resp.Request.URL.String(),
	}, nil
}
