package openlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lepinkainen/bookpipeline/internal/cache"
	perrors "github.com/lepinkainen/bookpipeline/internal/errors"
	"github.com/lepinkainen/bookpipeline/internal/ratelimit"
)

const (
	// DefaultBaseURL is the public Open Library host
	DefaultBaseURL = "https://openlibrary.org"
	// DefaultUserAgent identifies the pipeline to Open Library
	DefaultUserAgent = "BookPipeline/1.0 (your_email@gmail.com)"
	// DefaultTimeout bounds a single subject request
	DefaultTimeout = 10 * time.Second
	// DefaultSubject is fetched when no subject is configured
	DefaultSubject = "science_fiction"

	cacheTable = "openlibrary_cache"
)

var httpClientNew = func(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	UserAgent     string
	Timeout       time.Duration
	RatePerSecond float64
	Cache         *cache.CacheDB
	CacheTTL      time.Duration
	HTTPClient    *http.Client
}

// Client fetches subject listings from Open Library
type Client struct {
	httpClient *http.Client
	userAgent  string
	limiter    *ratelimit.Limiter
	cache      *cache.CacheDB
	cacheTTL   time.Duration
}

// NewClient creates a Client from opts
func NewClient(opts Options) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = cache.DefaultCacheTTL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = httpClientNew(opts.Timeout)
	}

	return &Client{
		httpClient: httpClient,
		userAgent:  opts.UserAgent,
		limiter:    ratelimit.New("OpenLibrary", opts.RatePerSecond),
		cache:      opts.Cache,
		cacheTTL:   opts.CacheTTL,
	}
}

// SubjectURL returns the subject listing URL under baseURL
func SubjectURL(baseURL, subject string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return fmt.Sprintf("%s/subjects/%s.json", strings.TrimRight(baseURL, "/"), subject)
}

// Fetch retrieves the subject listing at url. Any failure is logged and
// reported as a nil response.
func (c *Client) Fetch(ctx context.Context, url string) *SubjectResponse {
	slog.Info("Fetching data from Open Library API", "url", url)

	resp, err := c.FetchSubject(ctx, url)
	if err != nil {
		slog.Error("Failed to fetch data from API", "url", url, "error", err)
		return nil
	}
	return resp
}

// FetchSubject retrieves and decodes the subject listing at url
func (c *Client) FetchSubject(ctx context.Context, url string) (*SubjectResponse, error) {
	if c.cache == nil {
		return c.fetchSubject(ctx, url)
	}

	resp, fromCache, err := cache.GetOrFetch(c.cache, cacheTable, url, c.cacheTTL, func() (*SubjectResponse, error) {
		return c.fetchSubject(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	if fromCache {
		slog.Debug("Using cached subject listing", "url", url)
	}
	return resp, nil
}

func (c *Client) fetchSubject(ctx context.Context, url string) (*SubjectResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OpenLibrary API request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, perrors.NewHTTPStatusError(url, resp.StatusCode)
	}

	var result SubjectResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode OpenLibrary response: %w", err)
	}

	return &result, nil
}
