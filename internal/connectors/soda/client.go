package soda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
	"github.com/tidewater-labs/siphon-cli/internal/core/ports/driven"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// HeaderAppToken carries the static access key, the Socrata
	// convention.
	HeaderAppToken = "X-App-Token"

	// HeaderTotalCount is the fallback total-count header some portals
	// send on page responses.
	HeaderTotalCount = "X-Total-Count"

	paramLimit  = "$limit"
	paramOffset = "$offset"
	paramSelect = "$select"
)

// Ensure Client implements the interface.
var _ driven.SourceClient = (*Client)(nil)

// Client fetches records from a SODA-style resource endpoint: a URL
// returning a JSON array of objects per page, paginated by
// $limit/$offset or by Link headers, with an aggregation query for the
// total count.
type Client struct {
	cfg     domain.SourceConfig
	retry   domain.RetryPolicy
	http    *http.Client
	limiter *RateLimiter
}

// Factory creates soda clients; it implements driven.SourceClientFactory.
type Factory struct{}

// NewClient builds a client for the dataset's source.
func (Factory) NewClient(cfg domain.SourceConfig, retry domain.RetryPolicy) (driven.SourceClient, error) {
	return NewClient(cfg, retry)
}

// NewClient creates a client for one source endpoint. An env: access
// key reference is resolved here, so the stored configuration never
// holds the real credential.
func NewClient(cfg domain.SourceConfig, retry domain.RetryPolicy) (*Client, error) {
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("soda: parse endpoint: %w", err)
	}

	key, err := domain.ResolveSecret(cfg.AccessKey)
	if err != nil {
		return nil, fmt.Errorf("soda: access key: %w", err)
	}
	cfg.AccessKey = key

	httpClient := &http.Client{Timeout: DefaultTimeout}
	if cfg.Auth == domain.AuthSchemeBearer {
		if cfg.AccessKey == "" {
			return nil, domain.ErrAuthRequired
		}
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: cfg.AccessKey},
		)
		httpClient = oauth2.NewClient(context.Background(), ts)
		httpClient.Timeout = DefaultTimeout
	}

	perSecond := cfg.RateLimit
	if perSecond <= 0 {
		perSecond = domain.DefaultRateLimit
	}

	return &Client{
		cfg:     cfg,
		retry:   retry,
		http:    httpClient,
		limiter: NewRateLimiter(perSecond),
	}, nil
}

// Count returns the source-reported total record count. It prefers the
// count aggregation query and falls back to the X-Total-Count header
// for portals that only expose the total there.
func (c *Client) Count(ctx context.Context) (int64, error) {
	n, err := c.countByQuery(ctx)
	if err == nil {
		return n, nil
	}
	if IsUnauthorized(err) || IsForbidden(err) {
		return 0, err
	}

	if n, headerErr := c.countByHeader(ctx); headerErr == nil {
		return n, nil
	}
	return 0, err
}

func (c *Client) countByQuery(ctx context.Context) (int64, error) {
	countURL, err := c.queryURL(url.Values{paramSelect: {"count(*)"}})
	if err != nil {
		return 0, err
	}

	body, _, err := c.getWithRetry(ctx, countURL)
	if err != nil {
		return 0, err
	}

	rows, err := domain.DecodeRecords(body)
	if err != nil {
		return 0, fmt.Errorf("soda: decode count response: %w", err)
	}
	if len(rows) == 0 {
		return 0, ErrCountUnavailable
	}
	for _, v := range rows[0] {
		if n, ok := countValue(v); ok {
			return n, nil
		}
	}
	return 0, ErrCountUnavailable
}

func (c *Client) countByHeader(ctx context.Context) (int64, error) {
	probeURL, err := c.queryURL(url.Values{paramLimit: {"1"}})
	if err != nil {
		return 0, err
	}

	_, resp, err := c.getWithRetry(ctx, probeURL)
	if err != nil {
		return 0, err
	}

	total := resp.Header.Get(HeaderTotalCount)
	if total == "" {
		return 0, ErrCountUnavailable
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil || n < 0 {
		return 0, ErrCountUnavailable
	}
	return n, nil
}

// countValue extracts a non-negative integer from a count row value.
// Portals disagree on whether counts arrive as numbers or strings.
func countValue(v any) (int64, bool) {
	switch val := v.(type) {
	case json.Number:
		n, err := val.Int64()
		return n, err == nil && n >= 0
	case string:
		n, err := strconv.ParseInt(val, 10, 64)
		return n, err == nil && n >= 0
	default:
		return 0, false
	}
}

// Fetch streams every record in pagination order. Records and errors
// arrive on the returned channels; both close when the fetch finishes.
func (c *Client) Fetch(ctx context.Context) (<-chan domain.Record, <-chan error) {
	records := make(chan domain.Record)
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)

		var err error
		if c.cfg.Pagination == domain.PageModeCursor {
			err = c.fetchByCursor(ctx, records)
		} else {
			err = c.fetchByOffset(ctx, records)
		}
		if err != nil {
			errs <- err
		}
	}()

	return records, errs
}

// fetchByOffset pages with $limit/$offset. The offset advances by the
// page's record count, so it increases strictly until the final short
// page terminates the loop.
func (c *Client) fetchByOffset(ctx context.Context, out chan<- domain.Record) error {
	limit := c.cfg.PageSize
	if limit <= 0 {
		limit = domain.DefaultPageSize
	}

	var offset int64
	for {
		pageURL, err := c.queryURL(url.Values{
			paramLimit:  {strconv.Itoa(limit)},
			paramOffset: {strconv.FormatInt(offset, 10)},
		})
		if err != nil {
			return err
		}

		body, _, err := c.getWithRetry(ctx, pageURL)
		if err != nil {
			return err
		}

		page, err := domain.DecodeRecords(body)
		if err != nil {
			return fmt.Errorf("soda: decode page at offset %d: %w", offset, err)
		}

		for _, rec := range page {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- rec:
			}
		}

		if len(page) < limit {
			return nil
		}
		offset += int64(len(page))
	}
}

// fetchByCursor follows Link rel="next" headers. NextPageURL enforces
// strict advance so a misbehaving server cannot loop the fetch.
func (c *Client) fetchByCursor(ctx context.Context, out chan<- domain.Record) error {
	limit := c.cfg.PageSize
	if limit <= 0 {
		limit = domain.DefaultPageSize
	}

	pageURL, err := c.queryURL(url.Values{paramLimit: {strconv.Itoa(limit)}})
	if err != nil {
		return err
	}

	for pageURL != "" {
		body, resp, err := c.getWithRetry(ctx, pageURL)
		if err != nil {
			return err
		}

		page, err := domain.DecodeRecords(body)
		if err != nil {
			return fmt.Errorf("soda: decode page %s: %w", pageURL, err)
		}

		for _, rec := range page {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- rec:
			}
		}

		pageURL, err = NextPageURL(pageURL, resp.Header.Get("Link"))
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate makes a one-record authenticated probe. Misconfigured
// endpoints and rejected credentials surface here, before any staging
// work begins.
func (c *Client) Validate(ctx context.Context) error {
	probeURL, err := c.queryURL(url.Values{paramLimit: {"1"}})
	if err != nil {
		return err
	}

	body, _, err := c.get(ctx, probeURL)
	if err != nil {
		if IsUnauthorized(err) || IsForbidden(err) {
			return fmt.Errorf("%w: %w", domain.ErrAuthInvalid, err)
		}
		return err
	}

	if _, err := domain.DecodeRecords(body); err != nil {
		return fmt.Errorf("soda: endpoint did not return a JSON array: %w", err)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// queryURL merges query parameters into the endpoint URL.
func (c *Client) queryURL(params url.Values) (string, error) {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("soda: parse endpoint: %w", err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// getWithRetry performs a GET with bounded exponential backoff on
// transient failures. Rate limit rejections wait for the reported
// reset when it is later than the computed backoff. Exhausting the
// ceiling fails the whole run; there is no partial success upstream of
// an all-or-nothing promotion.
func (c *Client) getWithRetry(ctx context.Context, rawURL string) ([]byte, *http.Response, error) {
	retries := c.retry.Retries()

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := c.retry.Delay(attempt - 1)
			var rle *RateLimitError
			if errors.As(lastErr, &rle) {
				if wait := time.Until(rle.ResetAt); wait > delay {
					delay = wait
				}
			}
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, resp, err := c.get(ctx, rawURL)
		if err == nil {
			return body, resp, nil
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		if !isTransient(err) {
			return nil, nil, err
		}
		lastErr = err
	}

	return nil, nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, retries+1, lastErr)
}

// get performs a single GET attempt.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, *http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("soda: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Auth == domain.AuthSchemeAppToken && c.cfg.AccessKey != "" {
		req.Header.Set(HeaderAppToken, c.cfg.AccessKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("soda: request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if err := c.limiter.CheckRateLimit(resp); err != nil {
		return nil, nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    readErrorMessage(resp.Body, resp.StatusCode),
			URL:        rawURL,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("soda: read response body: %w", err)
	}
	return body, resp, nil
}

// isTransient reports whether a request error is worth retrying.
// Transport failures (timeouts, resets) are; our own context
// cancellation and non-retryable API responses are not.
func isTransient(err error) bool {
	if IsRateLimited(err) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return IsRetryable(err)
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// readErrorMessage extracts a short message from an error response
// body, falling back to the status text.
func readErrorMessage(body io.Reader, statusCode int) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err == nil && len(data) > 0 {
		var payload struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
			return payload.Message
		}
	}
	return http.StatusText(statusCode)
}
