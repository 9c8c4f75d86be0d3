package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kervino2/Meteora/internal/cache"
	"github.com/kervino2/Meteora/internal/extract"
	"github.com/kervino2/Meteora/internal/model"
	"github.com/kervino2/Meteora/internal/util"
	"github.com/kervino2/Meteora/internal/worker"
)

var (
	// ErrDisallowed is returned when robots.txt forbids a page
	ErrDisallowed = errors.New("disallowed by robots.txt")
	// ErrStatus is returned for non-2xx responses
	ErrStatus = errors.New("unexpected status")
	// ErrSearch wraps every failure of the search engine call
	ErrSearch = errors.New("search failed")
)

// fetchBaseDelay is the first retry delay; tests shorten it
var fetchBaseDelay = 500 * time.Millisecond

const fetchAttempts = 3

// Page is a fetched HTML document
type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	HTML        string
}

// Fetcher fetches result pages politely: robots.txt, per-host rate limits,
// a body size cap and a redirect cap.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	robots     *util.RobotsChecker
	limiter    *worker.Limiter
	cache      cache.Cache
	cacheTTL   time.Duration
	logger     *slog.Logger
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithRobots gates every fetch on robots.txt
func WithRobots(r *util.RobotsChecker) FetcherOption {
	return func(f *Fetcher) {
		f.robots = r
	}
}

// WithLimiter throttles fetches per host
func WithLimiter(l *worker.Limiter) FetcherOption {
	return func(f *Fetcher) {
		f.limiter = l
	}
}

// WithPageCache stores extracted page text
func WithPageCache(c cache.Cache, ttl time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.cache = c
		f.cacheTTL = ttl
	}
}

// WithFetcherLogger sets the logger
func WithFetcherLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a Fetcher from the HTTP config section
func NewFetcher(cfg model.HTTPConfig, opts ...FetcherOption) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}

	f := &Fetcher{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: util.NewTransport(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
		cache:     cache.Nop{},
		logger:    slog.Default().With("component", "fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves one HTML page
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if f.robots != nil {
		allowed, delay, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
		}
		if delay > 0 && f.limiter != nil {
			if u, err := url.Parse(rawURL); err == nil {
				f.limiter.SlowDown(u.Hostname(), delay)
			}
		}
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Page{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		HTML:        string(body),
	}, nil
}

// FetchWithRetry retries 429 and 5xx responses with exponential backoff.
// The wait between attempts ends early when ctx does.
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string) (*Page, error) {
	var lastErr error
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(fetchBaseDelay * time.Duration(1<<uint(attempt-1)))
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		page, err := f.Fetch(ctx, rawURL)
		if err == nil {
			return page, nil
		}
		lastErr = err

		var se *statusError
		if !errors.As(err, &se) || !se.transient() {
			return nil, err
		}
	}
	return nil, lastErr
}

// Text returns the paragraph text of a page, served from the cache when present
func (f *Fetcher) Text(ctx context.Context, rawURL string, maxChars int) (string, error) {
	key := cache.Key(cache.KindPage, rawURL)
	if data, ok := f.cache.Get(key); ok {
		return string(data), nil
	}

	page, err := f.FetchWithRetry(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if ct := strings.ToLower(page.ContentType); ct != "" && !strings.Contains(ct, "html") {
		return "", fmt.Errorf("unsupported content type %q", page.ContentType)
	}

	text, err := extract.PageText(page.HTML, maxChars)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}

	if err := f.cache.Set(key, []byte(text), f.cacheTTL); err != nil {
		f.logger.Debug("page cache write failed", "url", rawURL, "error", err)
	}
	return text, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrStatus, e.code, http.StatusText(e.code))
}

func (e *statusError) Unwrap() error {
	return ErrStatus
}

func (e *statusError) transient() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}
