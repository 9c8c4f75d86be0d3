// Package search retrieves reference text about a meteorite from the web.
// It never fails a record: unreachable hosts and engines degrade to less text.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kervino2/Meteora/internal/model"
)

// Match is one retrieved source
type Match struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Excerpt string `json:"excerpt"`
	Body    string `json:"body"`
}

// Result is what a search hands to the relevance gate and the prompt
type Result struct {
	Query        string  `json:"query"`
	Matches      []Match `json:"matches"`
	CombinedText string  `json:"combined_text"`
}

// TextFetcher returns the readable text of a page
type TextFetcher interface {
	Text(ctx context.Context, rawURL string, maxChars int) (string, error)
}

// Searcher runs the query for a record and fetches the linked pages
type Searcher struct {
	engine      Engine
	fetcher     TextFetcher
	exclude     []string
	maxChars    int
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
}

// Option configures a Searcher
type Option func(*Searcher)

// WithExcludeDomains drops results whose URL contains any of the substrings
func WithExcludeDomains(domains ...string) Option {
	return func(s *Searcher) {
		s.exclude = nil
		for _, d := range domains {
			if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
				s.exclude = append(s.exclude, d)
			}
		}
	}
}

// WithMaxBodyChars caps the text kept per page
func WithMaxBodyChars(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.maxChars = n
		}
	}
}

// WithConcurrency bounds parallel page fetches within one search
func WithConcurrency(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithTimeout bounds a whole search, engine call and page fetches included.
// Zero leaves it unbounded.
func WithTimeout(d time.Duration) Option {
	return func(s *Searcher) {
		s.timeout = d
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) {
		s.logger = logger
	}
}

// New creates a Searcher
func New(engine Engine, fetcher TextFetcher, opts ...Option) *Searcher {
	s := &Searcher{
		engine:      engine,
		fetcher:     fetcher,
		exclude:     []string{"lpi.usra.edu"},
		maxChars:    5000,
		concurrency: 3,
		logger:      slog.Default().With("component", "search"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromConfig wires a Searcher from the search config section
func FromConfig(cfg model.SearchConfig, engine Engine, fetcher TextFetcher, logger *slog.Logger) *Searcher {
	opts := []Option{
		WithExcludeDomains(cfg.ExcludeDomains...),
		WithMaxBodyChars(cfg.MaxBodyChars),
		WithConcurrency(cfg.FetchConcurrency),
		WithTimeout(cfg.Deadline),
	}
	if logger != nil {
		opts = append(opts, WithLogger(logger))
	}
	return New(engine, fetcher, opts...)
}

// Query is the search phrase used for a record
func Query(rec model.MeteoriteRecord) string {
	return strings.TrimSpace(fmt.Sprintf("%s meteorite %s", rec.Name, rec.Year))
}

// Search takes the first n hits for the record, drops excluded domains and
// fetches the remaining pages concurrently. Result order follows the engine's
// ranking. A page that cannot be fetched keeps its match with an empty body;
// an engine failure yields an empty Result.
func (s *Searcher) Search(ctx context.Context, rec model.MeteoriteRecord, n int) Result {
	query := Query(rec)
	result := Result{Query: query, Matches: []Match{}}
	if n <= 0 {
		return result
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	hits, err := s.engine.Search(ctx, query, n)
	if err != nil {
		s.logger.Warn("search failed", "query", query, "error", err)
		return result
	}

	for _, h := range hits {
		if s.excluded(h.URL) {
			s.logger.Debug("skipping excluded source", "url", h.URL)
			continue
		}
		result.Matches = append(result.Matches, Match{Title: h.Title, URL: h.URL, Excerpt: h.Excerpt})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range result.Matches {
		m := &result.Matches[i]
		g.Go(func() error {
			body, err := s.fetcher.Text(gctx, m.URL, s.maxChars)
			if err != nil {
				s.logger.Debug("could not extract text", "url", m.URL, "error", err)
				return nil
			}
			m.Body = body
			return nil
		})
	}
	_ = g.Wait()

	var b strings.Builder
	for _, m := range result.Matches {
		b.WriteString(m.Title)
		b.WriteByte('\n')
		b.WriteString(m.Excerpt)
		b.WriteByte('\n')
		b.WriteString(m.Body)
		b.WriteByte('\n')
	}
	result.CombinedText = b.String()

	return result
}

func (s *Searcher) excluded(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, d := range s.exclude {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}
