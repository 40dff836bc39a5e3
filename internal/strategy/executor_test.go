package strategy

import (
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mealdex/recipe-crawler/config"
	"github.com/mealdex/recipe-crawler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor() *Executor {
	e := NewExecutor(&config.StrategyConfig{
		MaxBodyBytes:  1 << 20,
		DisableDelays: true,
	}, &http.Transport{}, nil)
	e.sleep = func(time.Duration) {}
	return e
}

func testCatalog(names ...string) []Config {
	catalog := make([]Config, 0, len(names))
	for _, n := range names {
		catalog = append(catalog, Config{
			Name:         n,
			Headers:      map[string]string{"User-Agent": desktopUA},
			Timeout:      5 * time.Second,
			MaxRedirects: 5,
		})
	}
	return catalog
}

func TestExecuteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>recipe</body></html>"))
	}))
	defer srv.Close()

	res := newTestExecutor().Execute(context.Background(), srv.URL, testCatalog("standard-desktop")[0])

	assert.Equal(t, model.FetchSuccess, res.Kind)
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "<html><body>recipe</body></html>", res.HTML)
	assert.Equal(t, srv.URL, res.FinalURL)
	assert.Equal(t, "standard-desktop", res.Mechanism)
	assert.True(t, res.OK())
}

func TestExecuteSendsStrategyHeaders(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept-Language")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	sc := Config{
		Name: "custom",
		Headers: map[string]string{
			"User-Agent":      mobileUA,
			"Accept-Language": "en-US,en;q=0.9",
		},
		Timeout:      5 * time.Second,
		MaxRedirects: 5,
	}
	newTestExecutor().Execute(context.Background(), srv.URL, sc)

	assert.Equal(t, mobileUA, gotUA)
	assert.Equal(t, "en-US,en;q=0.9", gotAccept)
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   model.FetchKind
	}{
		{200, model.FetchSuccess},
		{403, model.FetchBlocked},
		{429, model.FetchBlocked},
		{404, model.FetchNotFound},
		{410, model.FetchNotFound},
		{500, model.FetchNetworkError},
		{503, model.FetchNetworkError},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		res := newTestExecutor().Execute(context.Background(), srv.URL, testCatalog("s")[0])
		srv.Close()

		assert.Equal(t, tt.want, res.Kind, "status %d", tt.status)
		assert.Equal(t, tt.status, res.StatusCode, "status %d", tt.status)
	}
}

func TestGzipBodyIsDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte("<html>compressed recipe</html>"))
		gz.Close()
	}))
	defer srv.Close()

	res := newTestExecutor().Execute(context.Background(), srv.URL, testCatalog("s")[0])

	require.Equal(t, model.FetchSuccess, res.Kind)
	assert.Equal(t, "<html>compressed recipe</html>", res.HTML)
}

func TestOversizedBodyIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	e := NewExecutor(&config.StrategyConfig{
		MaxBodyBytes:  1024,
		DisableDelays: true,
	}, &http.Transport{}, nil)

	res := e.Execute(context.Background(), srv.URL, testCatalog("s")[0])
	assert.Equal(t, model.FetchNetworkError, res.Kind)
}

func TestLadderStopsAtFirstSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 2 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	res := newTestExecutor().ExecuteSequential(context.Background(), srv.URL,
		testCatalog("first", "second", "third"))

	assert.Equal(t, model.FetchSuccess, res.Kind)
	assert.Equal(t, "second", res.Mechanism)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "third strategy must not run")
}

func TestLadderAbortsOnNotFound(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	res := newTestExecutor().ExecuteSequential(context.Background(), srv.URL,
		testCatalog("first", "second", "third"))

	assert.Equal(t, model.FetchNotFound, res.Kind)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls),
		"no header set will make the page exist")
}

func TestLadderReturnsLastFailureWhenExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	res := newTestExecutor().ExecuteSequential(context.Background(), srv.URL,
		testCatalog("first", "second"))

	assert.Equal(t, model.FetchBlocked, res.Kind)
	assert.Equal(t, "second", res.Mechanism)
}

func TestRedirectsFollowedToFinalURL(t *testing.T) {
	var finalURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusMovedPermanently)
			return
		}
		w.Write([]byte("moved recipe"))
	}))
	defer srv.Close()
	finalURL = srv.URL + "/new"

	res := newTestExecutor().Execute(context.Background(), srv.URL+"/old", testCatalog("s")[0])

	require.Equal(t, model.FetchSuccess, res.Kind)
	assert.Equal(t, finalURL, res.FinalURL)
}

func TestRedirectLoopStopsAtLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	}))
	defer srv.Close()

	sc := testCatalog("s")[0]
	sc.MaxRedirects = 3
	res := newTestExecutor().Execute(context.Background(), srv.URL, sc)

	// the redirect response itself comes back as an unexpected status
	assert.Equal(t, model.FetchNetworkError, res.Kind)
	assert.Equal(t, http.StatusFound, res.StatusCode)
}

func TestArchiveTierDisabled(t *testing.T) {
	res := newTestExecutor().Execute(context.Background(), "https://example.com/x",
		Config{Name: "web-archive", UseArchive: true})

	assert.Equal(t, model.FetchNetworkError, res.Kind)
	assert.Equal(t, "web-archive", res.Mechanism)
}

func TestCatalogOrder(t *testing.T) {
	catalog := Catalog(&config.StrategyConfig{
		BrowserEnabled: true,
		BrowserTimeout: 45 * time.Second,
		ArchiveEnabled: true,
		ArchiveTimeout: 30,
	}, 20*time.Second)

	var names []string
	for _, sc := range catalog {
		names = append(names, sc.Name)
	}
	assert.Equal(t, []string{"standard-desktop", "mobile-safari", "minimal",
		"search-crawler", "stealth", "headless-browser", "web-archive"}, names)

	// expensive tiers stay off the ladder unless enabled
	base := Catalog(&config.StrategyConfig{}, 20*time.Second)
	assert.Len(t, base, 5)
}

func TestCatalogUsesConfiguredLanguage(t *testing.T) {
	catalog := Catalog(&config.StrategyConfig{DefaultLanguage: "de-DE,de;q=0.8"}, 20*time.Second)

	tagged := 0
	for _, sc := range catalog {
		if lang, ok := sc.Headers["Accept-Language"]; ok {
			assert.Equal(t, "de-DE,de;q=0.8", lang, sc.Name)
			tagged++
		}
	}
	assert.Equal(t, 3, tagged, "desktop, mobile and stealth tiers send Accept-Language")

	// unset falls back to the stock english header
	base := Catalog(&config.StrategyConfig{}, 20*time.Second)
	assert.Equal(t, "en-US,en;q=0.9", base[0].Headers["Accept-Language"])
}
