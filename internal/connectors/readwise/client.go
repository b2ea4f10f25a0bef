package readwise

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/marginal-labs/marginalia-cli/internal/core/domain"
	"github.com/marginal-labs/marginalia-cli/internal/core/ports/driven"
	"github.com/marginal-labs/marginalia-cli/internal/logger"
)

// Ensure Client implements the port.
var _ driven.HighlightSource = (*Client)(nil)

// Default configuration values.
const (
	// DefaultBaseURL is the Readwise API v2 base URL.
	DefaultBaseURL = "https://readwise.io/api/v2"

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRetryAfter is the wait applied to a rate-limit response
	// that carries no Retry-After header.
	DefaultRetryAfter = 60 * time.Second

	// ProactiveRate is the proactive throttle in requests per second.
	// Readwise allows 240 requests/minute; stay well under it.
	ProactiveRate = 2.0
)

// Config configures the export client.
type Config struct {
	// BaseURL overrides the API base URL (mainly for tests).
	BaseURL string

	// Token is the Readwise API token. Required.
	Token string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// PageRetries is how many times a page fetch is retried on generic
	// (non-rate-limit) failure before pagination stops with partial
	// results. Zero keeps the abort-on-first-error policy.
	PageRetries int
}

// Client fetches the paginated highlight export.
type Client struct {
	client      *http.Client
	baseURL     string
	token       string
	limiter     *rate.Limiter
	pageRetries int

	// sleep is swappable in tests so rate-limit waits don't take real
	// time.
	sleep func(ctx context.Context, d time.Duration) error
}

// exportPage is the export endpoint's response envelope.
type exportPage struct {
	Count          int                   `json:"count"`
	NextPageCursor *string               `json:"nextPageCursor"`
	Results        []domain.SourceExport `json:"results"`
}

// New creates an export client. Returns domain.ErrMissingAPIToken when
// no token is configured; the ingestion entry point treats that as
// fatal before any network call.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, domain.ErrMissingAPIToken
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		client:      &http.Client{Timeout: cfg.Timeout},
		baseURL:     cfg.BaseURL,
		token:       cfg.Token,
		limiter:     rate.NewLimiter(rate.Limit(ProactiveRate), 1),
		pageRetries: cfg.PageRetries,
		sleep:       sleepCtx,
	}, nil
}

// FetchAll walks the paginated export and returns every source entry in
// export order. When a page fetch fails past its retries, the entries
// accumulated so far are returned together with the error; the caller
// decides whether partial data is good enough.
func (c *Client) FetchAll(ctx context.Context) ([]domain.SourceExport, error) {
	var all []domain.SourceExport
	cursor := ""

	for {
		page, err := c.fetchPageWithRetry(ctx, cursor)
		if err != nil {
			return all, fmt.Errorf("fetch export page: %w", err)
		}

		all = append(all, page.Results...)
		if len(page.Results) > 0 {
			logger.Info("Fetched %d source entries (total %d)", len(page.Results), len(all))
		} else {
			logger.Debug("Empty export page")
		}

		if page.NextPageCursor == nil || *page.NextPageCursor == "" {
			break
		}
		cursor = *page.NextPageCursor
		logger.Debug("Fetching next page with cursor %s", cursor)
	}

	logger.Info("Export fetch complete: %d source entries", len(all))
	return all, nil
}

// CheckConnection verifies the token works by fetching a single page
// and discarding it.
func (c *Client) CheckConnection(ctx context.Context) error {
	if _, err := c.fetchPage(ctx, ""); err != nil {
		return fmt.Errorf("readwise connection check: %w", err)
	}
	return nil
}

// fetchPageWithRetry applies the configurable generic-failure policy:
// retry with a short backoff up to pageRetries times, then give up.
// Rate-limit responses are handled inside fetchPage and never consume a
// retry.
func (c *Client) fetchPageWithRetry(ctx context.Context, cursor string) (*exportPage, error) {
	var lastErr error
	for attempt := 0; attempt <= c.pageRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("Retrying page fetch (attempt %d/%d) after error: %v", attempt, c.pageRetries, lastErr)
			if err := c.sleep(ctx, backoff(attempt)); err != nil {
				return nil, err
			}
		}
		page, err := c.fetchPage(ctx, cursor)
		if err == nil {
			return page, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// fetchPage performs one export request. A 429 response waits out the
// server-supplied Retry-After delay and retries the same page.
func (c *Client) fetchPage(ctx context.Context, cursor string) (*exportPage, error) {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		endpoint := c.baseURL + "/export/"
		if cursor != "" {
			endpoint += "?pageCursor=" + url.QueryEscape(cursor)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Token "+c.token)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("send request: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfter(resp)
			drainAndClose(resp.Body)
			logger.Warn("Rate limit hit, waiting %s before retrying page", wait)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			drainAndClose(resp.Body)
			return nil, fmt.Errorf("readwise API status %d: %s", resp.StatusCode, string(body))
		}

		var page exportPage
		err = json.NewDecoder(resp.Body).Decode(&page)
		drainAndClose(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("decode export page: %w", err)
		}
		return &page, nil
	}
}

// retryAfter reads the server-supplied delay, falling back to
// DefaultRetryAfter when the header is missing or unparseable.
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return DefaultRetryAfter
}

// backoff returns the generic-failure retry delay for an attempt.
func backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * time.Second
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	return d
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
