// Package heremaps provides forward and bulk geocoding against HERE-style
// geocoding services. Bulk geocoding runs through the provider's
// asynchronous batch job protocol: submit a delimited payload, poll job
// status until a terminal state, download and decode a ZIP of result files.
package heremaps

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/atlasworks/geoservices/internal/db"
	"github.com/atlasworks/geoservices/internal/resilience"
)

const (
	defaultBatchBaseURL   = "https://batch.geocoder.ls.hereapi.com/6.2/jobs"
	defaultGeocodeBaseURL = "https://geocoder.ls.hereapi.com/6.2/geocode.json"

	defaultConnectTimeout = 10 * time.Second
	defaultReadTimeout    = 60 * time.Second

	// Under this many searches the batch protocol costs more than it saves
	// and the serial path is used instead.
	defaultMinBatchedSearch = 100

	defaultMaxStalledRetries = 100
	defaultPollInterval      = 5 * time.Second
)

// Credentials supplies the per-call auth parameters for a provider
// generation. Two schemes exist: the legacy app_id/app_code pair and the
// single API key. Both thread through as opaque query parameters on every
// outbound call.
type Credentials interface {
	Params() url.Values
}

// AppCodeCredentials is the legacy app_id/app_code scheme.
type AppCodeCredentials struct {
	AppID   string
	AppCode string
}

// Params implements Credentials.
func (c AppCodeCredentials) Params() url.Values {
	return url.Values{"app_id": {c.AppID}, "app_code": {c.AppCode}}
}

// APIKeyCredentials is the single-key scheme of newer provider generations.
type APIKeyCredentials struct {
	Key string
}

// Params implements Credentials.
func (c APIKeyCredentials) Params() url.Values {
	return url.Values{"apikey": {c.Key}}
}

// Client geocodes addresses against one provider generation. A Client is
// safe for concurrent use, but each Geocode call owns its batch job
// exclusively; jobs are never shared across calls.
type Client struct {
	httpClient *http.Client
	creds      Credentials
	limiter    *rate.Limiter
	retry      resilience.RetryConfig

	batchBaseURL   string
	geocodeBaseURL string

	minBatchedSearch  int
	maxStalledRetries int
	pollInterval      time.Duration
	serialConcurrency int

	cache *resultCache

	// sleep is the poll-loop suspension primitive, injectable so tests can
	// simulate time.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURLs overrides the batch and forward-geocoding endpoints.
func WithBaseURLs(batchURL, geocodeURL string) Option {
	return func(c *Client) {
		if batchURL != "" {
			c.batchBaseURL = batchURL
		}
		if geocodeURL != "" {
			c.geocodeBaseURL = geocodeURL
		}
	}
}

// WithRateLimit sets the requests-per-second limit for outbound calls.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
	}
}

// WithRetry overrides the transient-failure retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithMinBatchedSearch sets the request count at which the batch path is
// preferred over serial geocoding.
func WithMinBatchedSearch(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.minBatchedSearch = n
		}
	}
}

// WithMaxStalledRetries sets the ceiling of consecutive polls without
// processed-count progress before the job is abandoned.
func WithMaxStalledRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxStalledRetries = n
		}
	}
}

// WithPollInterval sets the fixed sleep between job status polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithSerialConcurrency bounds parallel calls on the serial path. The
// default of 1 preserves input order; higher values only guarantee the
// id-to-result correlation.
func WithSerialConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.serialConcurrency = n
		}
	}
}

// WithCache enables the Postgres-backed result cache for the serial path.
func WithCache(pool db.Pool, table string, ttlDays int) Option {
	return func(c *Client) {
		c.cache = newResultCache(pool, table, ttlDays)
	}
}

// WithTimeouts sets independent connect and read timeouts on the default
// HTTP client.
func WithTimeouts(connect, read time.Duration) Option {
	return func(c *Client) {
		c.httpClient = newHTTPClient(connect, read)
	}
}

// NewClient creates a geocoding client for the given credential scheme.
func NewClient(creds Credentials, opts ...Option) *Client {
	c := &Client{
		httpClient:        newHTTPClient(defaultConnectTimeout, defaultReadTimeout),
		creds:             creds,
		limiter:           rate.NewLimiter(10, 10),
		retry:             resilience.DefaultRetryConfig(),
		batchBaseURL:      defaultBatchBaseURL,
		geocodeBaseURL:    defaultGeocodeBaseURL,
		minBatchedSearch:  defaultMinBatchedSearch,
		maxStalledRetries: defaultMaxStalledRetries,
		pollInterval:      defaultPollInterval,
		serialConcurrency: 1,
		sleep:             sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newHTTPClient builds a client with independent connect and read timeouts.
func newHTTPClient(connect, read time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: connect}).DialContext,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{
		Timeout:   read,
		Transport: transport,
	}
}

// sleepContext blocks for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// getWithRetry issues a GET with credential params attached, retrying
// transient failures. Non-success statuses that are not transient surface as
// a ServiceError carrying the body.
func (c *Client) getWithRetry(ctx context.Context, rawURL string, params url.Values, op string) ([]byte, error) {
	query := c.creds.Params()
	for k, vs := range params {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	reqURL := rawURL + "?" + query.Encode()

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("heremaps", op)

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "heremaps: %s rate limit", op)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrapf(err, "heremaps: %s build request", op)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "heremaps: %s request", op)
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrapf(err, "heremaps: %s read body", op)
		}

		if resp.StatusCode != http.StatusOK {
			svcErr := &ServiceError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(svcErr, resp.StatusCode)
			}
			return nil, svcErr
		}

		return body, nil
	})
}
