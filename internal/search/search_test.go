package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kervino2/Meteora/internal/cache"
	"github.com/kervino2/Meteora/internal/extract"
	"github.com/kervino2/Meteora/internal/model"
	"github.com/kervino2/Meteora/internal/util"
	"github.com/kervino2/Meteora/internal/worker"
)

type fakeEngine struct {
	hits []extract.SearchHit
	err  error
	got  string
}

func (e *fakeEngine) Search(ctx context.Context, query string, n int) ([]extract.SearchHit, error) {
	e.got = query
	if e.err != nil {
		return nil, e.err
	}
	if len(e.hits) > n {
		return e.hits[:n], nil
	}
	return e.hits, nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (f *fakeFetcher) Text(ctx context.Context, rawURL string, maxChars int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	body, ok := f.pages[rawURL]
	if !ok {
		return "", errors.New("connection refused")
	}
	return body, nil
}

func testHTTPConfig() model.HTTPConfig {
	return model.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "Meteora-test/1.0", MaxBodyBytes: 1 << 20}
}

func TestQuery(t *testing.T) {
	assert.Equal(t, "Hoba meteorite 1920", Query(model.MeteoriteRecord{Name: "Hoba", Year: "1920"}))
	assert.Equal(t, "Hoba meteorite", Query(model.MeteoriteRecord{Name: "Hoba"}))
}

func TestSearcher_Search(t *testing.T) {
	engine := &fakeEngine{hits: []extract.SearchHit{
		{Title: "Hoba - Wikipedia", URL: "https://en.wikipedia.org/wiki/Hoba", Excerpt: "Largest meteorite"},
		{Title: "MetBull", URL: "https://www.LPI.usra.edu/meteor/metbull.php?code=11890", Excerpt: "Iron"},
		{Title: "Dead link", URL: "https://gone.example.com/hoba", Excerpt: "Gone"},
		{Title: "Beyond n", URL: "https://late.example.com", Excerpt: "late"},
	}}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://en.wikipedia.org/wiki/Hoba": "Hoba was found in 1920.",
	}}

	s := New(engine, fetcher)
	result := s.Search(context.Background(), model.MeteoriteRecord{Name: "Hoba", Year: "1920"}, 3)

	assert.Equal(t, "Hoba meteorite 1920", engine.got)
	require.Len(t, result.Matches, 2)
	assert.Equal(t, Match{
		Title:   "Hoba - Wikipedia",
		URL:     "https://en.wikipedia.org/wiki/Hoba",
		Excerpt: "Largest meteorite",
		Body:    "Hoba was found in 1920.",
	}, result.Matches[0])
	assert.Equal(t, "https://gone.example.com/hoba", result.Matches[1].URL)
	assert.Empty(t, result.Matches[1].Body, "failed fetch keeps the match with an empty body")

	assert.Equal(t,
		"Hoba - Wikipedia\nLargest meteorite\nHoba was found in 1920.\nDead link\nGone\n\n",
		result.CombinedText)
	assert.NotContains(t, fetcher.calls, "https://www.LPI.usra.edu/meteor/metbull.php?code=11890")
}

func TestSearcher_EngineFailure(t *testing.T) {
	s := New(&fakeEngine{err: errors.New("rate limited")}, &fakeFetcher{})
	result := s.Search(context.Background(), model.MeteoriteRecord{Name: "Ali", Year: "2001"}, 3)

	assert.Empty(t, result.Matches)
	assert.Empty(t, result.CombinedText)
	assert.Equal(t, "Ali meteorite 2001", result.Query)
}

func TestSearcher_ZeroResults(t *testing.T) {
	engine := &fakeEngine{hits: []extract.SearchHit{{URL: "https://a.org"}}}
	result := New(engine, &fakeFetcher{}).Search(context.Background(), model.MeteoriteRecord{Name: "X"}, 0)
	assert.Empty(t, result.Matches)
	assert.Empty(t, engine.got, "engine should not be queried for zero results")
}

// stallingEngine answers only when its context ends
type stallingEngine struct{}

func (stallingEngine) Search(ctx context.Context, query string, n int) ([]extract.SearchHit, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestFromConfig_DeadlineBoundsSearch(t *testing.T) {
	s := FromConfig(model.SearchConfig{Deadline: 20 * time.Millisecond}, stallingEngine{}, &fakeFetcher{}, nil)

	ctx := context.Background()
	start := time.Now()
	result := s.Search(ctx, model.MeteoriteRecord{Name: "Hoba", Year: "1920"}, 3)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Empty(t, result.Matches)
	assert.Empty(t, result.CombinedText)
	assert.NoError(t, ctx.Err())
}

func TestSearcher_CustomExclusions(t *testing.T) {
	engine := &fakeEngine{hits: []extract.SearchHit{
		{Title: "Wiki", URL: "https://en.wikipedia.org/wiki/Ali"},
		{Title: "LPI", URL: "https://www.lpi.usra.edu/x"},
	}}
	s := FromConfig(model.SearchConfig{ExcludeDomains: []string{" Wikipedia "}, MaxBodyChars: 10}, engine, &fakeFetcher{}, nil)
	result := s.Search(context.Background(), model.MeteoriteRecord{Name: "Ali"}, 5)

	require.Len(t, result.Matches, 1)
	assert.Equal(t, "LPI", result.Matches[0].Title)
}

func TestFetcher_Text(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("User-Agent") != "Meteora-test/1.0" {
			t.Errorf("Expected user agent, got %s", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, "<html><body><script>x()</script><p>Chelyabinsk   exploded</p><p>in 2013.</p></body></html>")
	}))
	defer server.Close()

	f := NewFetcher(testHTTPConfig(), WithPageCache(cache.NewMemoryCache(time.Minute, time.Minute), time.Minute))

	text, err := f.Text(context.Background(), server.URL+"/chelyabinsk", 100)
	require.NoError(t, err)
	assert.Equal(t, "Chelyabinsk exploded in 2013.", text)

	text, err = f.Text(context.Background(), server.URL+"/chelyabinsk", 100)
	require.NoError(t, err)
	assert.Equal(t, "Chelyabinsk exploded in 2013.", text)
	assert.Equal(t, int32(1), hits.Load(), "second read should come from the cache")
}

func TestFetcher_NonHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer server.Close()

	_, err := NewFetcher(testHTTPConfig()).Text(context.Background(), server.URL, 100)
	assert.Error(t, err)
}

func TestFetchWithRetry_TransientThenSuccess(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, "<html>OK</html>")
	}))
	defer server.Close()

	origDelay := fetchBaseDelay
	fetchBaseDelay = time.Millisecond
	defer func() { fetchBaseDelay = origDelay }()

	page, err := NewFetcher(testHTTPConfig()).FetchWithRetry(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>OK</html>", page.HTML)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetchWithRetry_CancelDuringBackoff(t *testing.T) {
	var attempts atomic.Int32
	served := make(chan struct{})
	var once sync.Once
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		once.Do(func() { close(served) })
	}))
	defer server.Close()

	origDelay := fetchBaseDelay
	fetchBaseDelay = 10 * time.Second
	defer func() { fetchBaseDelay = origDelay }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-served
		cancel()
	}()

	start := time.Now()
	_, err := NewFetcher(testHTTPConfig()).FetchWithRetry(ctx, server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestFetchWithRetry_PermanentError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewFetcher(testHTTPConfig()).FetchWithRetry(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStatus)
	assert.Equal(t, int32(1), attempts.Load(), "404 should not be retried")
}

func TestFetcher_RobotsDisallow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
			return
		}
		_, _ = fmt.Fprint(w, "<p>ok</p>")
	}))
	defer server.Close()

	cfg := testHTTPConfig()
	f := NewFetcher(cfg,
		WithRobots(util.NewRobotsChecker(cfg.UserAgent, time.Second, nil)),
		WithLimiter(worker.NewLimiter(0, 1)),
	)

	_, err := f.Fetch(context.Background(), server.URL+"/private/page")
	assert.ErrorIs(t, err, ErrDisallowed)

	page, err := f.Fetch(context.Background(), server.URL+"/public")
	require.NoError(t, err)
	assert.Equal(t, "<p>ok</p>", page.HTML)
}

func TestFetcher_RedirectCap(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, server.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer server.Close()

	_, err := NewFetcher(testHTTPConfig()).Fetch(context.Background(), server.URL+"/a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirects")
}

const ddgResults = `<html><body>
<div class="result results_links web-result">
  <a class="result__a" href="https://en.wikipedia.org/wiki/Chelyabinsk_meteor">Chelyabinsk meteor</a>
  <a class="result__snippet">A superbolide over Russia in 2013.</a>
</div>
<div class="result results_links web-result">
  <a class="result__a" href="https://www.nasa.gov/chelyabinsk">NASA</a>
</div>
<div class="result results_links web-result">
  <a class="result__a" href="https://example.org/third">Third</a>
</div>
</body></html>`

func TestDuckDuckGo_Search(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if got := r.URL.Query().Get("q"); got != "Chelyabinsk meteorite 2013" {
			t.Errorf("Expected query, got %q", got)
		}
		_, _ = fmt.Fprint(w, ddgResults)
	}))
	defer server.Close()

	engine := NewDuckDuckGo(
		model.SearchConfig{Endpoint: server.URL + "/html/"},
		testHTTPConfig(),
		nil,
		cache.NewMemoryCache(time.Minute, time.Minute),
		time.Minute,
	)

	hits, err := engine.Search(context.Background(), "Chelyabinsk meteorite 2013", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Chelyabinsk meteor", hits[0].Title)
	assert.Equal(t, "A superbolide over Russia in 2013.", hits[0].Excerpt)
	assert.Equal(t, "https://www.nasa.gov/chelyabinsk", hits[1].URL)

	hits, err = engine.Search(context.Background(), "chelyabinsk  METEORITE 2013", 3)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
	assert.Equal(t, int32(1), requests.Load(), "normalized query should hit the cache")
}

func TestDuckDuckGo_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	engine := NewDuckDuckGo(model.SearchConfig{Endpoint: server.URL}, testHTTPConfig(), nil, nil, 0)
	_, err := engine.Search(context.Background(), "x", 3)
	assert.ErrorIs(t, err, ErrStatus)
	assert.ErrorIs(t, err, ErrSearch)
}

func TestSearcher_EndToEnd(t *testing.T) {
	var pages *httptest.Server
	pages = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/html"):
			fmt.Fprintf(w, `<div class="result"><a class="result__a" href="%s/page">Page</a><a class="result__snippet">Snippet</a></div>`, pages.URL)
		case r.URL.Path == "/page":
			w.Header().Set("Content-Type", "text/html")
			_, _ = fmt.Fprint(w, "<p>Body text.</p>")
		default:
			http.NotFound(w, r)
		}
	}))
	defer pages.Close()

	cfg := model.DefaultConfig()
	cfg.Search.Endpoint = pages.URL + "/html/"
	engine := NewDuckDuckGo(cfg.Search, testHTTPConfig(), nil, nil, 0)
	fetcher := NewFetcher(testHTTPConfig())

	result := FromConfig(cfg.Search, engine, fetcher, nil).Search(context.Background(), model.MeteoriteRecord{Name: "Hoba", Year: "1920"}, 3)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "Page\nSnippet\nBody text.\n", result.CombinedText)
}
