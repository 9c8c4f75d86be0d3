package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/kervino2/Meteora/internal/cache"
	"github.com/kervino2/Meteora/internal/extract"
	"github.com/kervino2/Meteora/internal/model"
	"github.com/kervino2/Meteora/internal/util"
	"github.com/kervino2/Meteora/internal/worker"
)

// DefaultEndpoint is the DuckDuckGo HTML-only results page
const DefaultEndpoint = "https://html.duckduckgo.com/html/"

// Engine turns a query into ranked result links
type Engine interface {
	Search(ctx context.Context, query string, n int) ([]extract.SearchHit, error)
}

// DuckDuckGo queries the HTML results endpoint. Results are cached per query.
type DuckDuckGo struct {
	endpoint   string
	httpClient *http.Client
	userAgent  string
	limiter    *worker.Limiter
	cache      cache.Cache
	cacheTTL   time.Duration
	logger     *slog.Logger
}

// NewDuckDuckGo creates the engine. The limiter may be nil.
func NewDuckDuckGo(cfg model.SearchConfig, httpCfg model.HTTPConfig, limiter *worker.Limiter, c cache.Cache, cacheTTL time.Duration) *DuckDuckGo {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := cfg.SearchTimeout
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	if c == nil {
		c = cache.Nop{}
	}
	return &DuckDuckGo{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: util.NewTransport(httpCfg.HTTPProxy, httpCfg.HTTPSProxy, httpCfg.NoProxy),
		},
		userAgent: httpCfg.UserAgent,
		limiter:   limiter,
		cache:     c,
		cacheTTL:  cacheTTL,
		logger:    slog.Default().With("component", "duckduckgo"),
	}
}

// Search returns at most n hits for query
func (d *DuckDuckGo) Search(ctx context.Context, query string, n int) ([]extract.SearchHit, error) {
	key := cache.Key(cache.KindQuery, query)
	var hits []extract.SearchHit
	if !cache.GetJSON(d.cache, key, &hits) {
		var err error
		hits, err = d.query(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSearch, err)
		}
		if len(hits) > 0 {
			if err := cache.SetJSON(d.cache, key, hits, d.cacheTTL); err != nil {
				d.logger.Debug("search cache write failed", "query", query, "error", err)
			}
		}
	}

	if n >= 0 && len(hits) > n {
		hits = hits[:n]
	}
	return hits, nil
}

func (d *DuckDuckGo) query(ctx context.Context, query string) ([]extract.SearchHit, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, d.endpoint); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	u, err := url.Parse(d.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}

	hits, err := extract.ParseSearchResults(string(body), u.String())
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	return hits, nil
}
