package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mealdex/recipe-crawler/config"
	"github.com/mealdex/recipe-crawler/internal/aws_s3"
	"github.com/mealdex/recipe-crawler/internal/cache"
	"github.com/mealdex/recipe-crawler/internal/collection"
	"github.com/mealdex/recipe-crawler/internal/extract"
	"github.com/mealdex/recipe-crawler/internal/limiter"
	"github.com/mealdex/recipe-crawler/internal/model"
	"github.com/mealdex/recipe-crawler/internal/strategy"
	"github.com/mealdex/recipe-crawler/internal/telemetry"
	"github.com/mealdex/recipe-crawler/internal/urlcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const breadRecipeJSONLD = `<html><head><script type="application/ld+json">
{"@type": "Recipe", "name": "Irish Soda Bread",
 "recipeIngredient": ["4 cups flour", "1 tsp baking soda", "2 cups buttermilk"],
 "recipeInstructions": "Mix everything and bake at 425F for 45 minutes."}
</script></head><body></body></html>`

type fakeStorage struct {
	mu       sync.Mutex
	recipes  map[string]*model.Recipe
	crawled  map[string]bool
	markings int
	nextID   int64
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		recipes: make(map[string]*model.Recipe),
		crawled: make(map[string]bool),
	}
}

func (f *fakeStorage) GetRecipeBySource(url string) (*model.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recipes[url], nil
}

func (f *fakeStorage) IsURLCrawled(url string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.crawled[url], nil
}

func (f *fakeStorage) FilterUncrawled(urls []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, u := range urls {
		if !f.crawled[u] {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStorage) MarkURLCrawled(url, domain string, success bool, recipeID int64, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.crawled[url] = true
	f.markings++
	return nil
}

func (f *fakeStorage) CreateRecipe(r *model.ExtractedRecipe) (*model.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	stored := &model.Recipe{ID: f.nextID, SourceURL: r.SourceURL,
		CreatedAt: time.Now(), ExtractedRecipe: *r}
	f.recipes[r.SourceURL] = stored
	return stored, nil
}

func (f *fakeStorage) GetAllRecipes() ([]*model.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Recipe
	for _, r := range f.recipes {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStorage) markCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markings
}

type fakeDLQ struct {
	mu   sync.Mutex
	urls []string
}

func (f *fakeDLQ) SendURLToDLQ(url string, _ error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
}

func (f *fakeDLQ) Close() {}

func (f *fakeDLQ) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

func newTestWorker(storage *fakeStorage, dlq *fakeDLQ) *CrawlWorker {
	cfg := &config.Config{
		Version: "test",
		StrategySettings: &config.StrategyConfig{
			MaxBodyBytes:  1 << 20,
			DisableDelays: true,
		},
	}
	return &CrawlWorker{
		Cfg:      cfg,
		Executor: strategy.NewExecutor(cfg.StrategySettings, &http.Transport{}, nil),
		Catalog: []strategy.Config{{
			Name:         "standard-desktop",
			Headers:      map[string]string{"User-Agent": "test-agent"},
			Timeout:      5 * time.Second,
			MaxRedirects: 5,
		}},
		Pipeline: extract.NewPipeline(&config.ExtractionConfig{}),
		Detector: collection.NewDetector(&config.ExtractionConfig{}, 20),
		Storage:  storage,
		UrlCache: urlcache.NewBoundedCache(&config.UrlCacheConfig{
			Capacity:        100,
			SuccessCooldown: time.Hour,
			FailureCooldown: time.Minute,
		}),
		SharedCache: cache.NoopClient{},
		Limiter: limiter.NewAdaptiveRateLimiter(&config.RateLimiterConf{
			BaseDelay:    time.Millisecond,
			MinDelay:     time.Millisecond,
			MaxDelay:     time.Millisecond,
			ResetCeiling: 100,
		}),
		Throttle: limiter.NewDomainThrottle(&config.ThrottleConfig{
			DefaultInterval: time.Millisecond,
			MinInterval:     time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			Domains:         []string{"nothing.matches.this"},
		}),
		S3:      aws_s3.NoopBucketClient{},
		DLQ:     dlq,
		Metrics: telemetry.NoopMetrics(),
	}
}

func TestProcessURLStoresRecipe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(breadRecipeJSONLD))
	}))
	defer srv.Close()

	storage := newFakeStorage()
	w := newTestWorker(storage, &fakeDLQ{})

	res := w.ProcessURL(context.Background(), srv.URL+"/recipes/soda-bread")

	assert.True(t, res.Stored)
	assert.Equal(t, int64(1), res.RecipeID)
	stored, _ := storage.GetRecipeBySource(srv.URL + "/recipes/soda-bread")
	require.NotNil(t, stored)
	assert.Equal(t, "Irish Soda Bread", stored.Title)

	// attempt recorded in ledger and cooldown cache
	assert.True(t, w.UrlCache.ShouldSkip(srv.URL+"/recipes/soda-bread"))
	crawled, _ := storage.IsURLCrawled(srv.URL + "/recipes/soda-bread")
	assert.True(t, crawled)
}

func TestProcessURLNotFoundSkipsDLQ(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	storage := newFakeStorage()
	dlq := &fakeDLQ{}
	w := newTestWorker(storage, dlq)

	res := w.ProcessURL(context.Background(), srv.URL+"/recipes/gone")

	assert.False(t, res.Stored)
	assert.Empty(t, dlq.sent(), "permanently missing pages are not retryable")
	entry, ok := w.UrlCache.Get(srv.URL + "/recipes/gone")
	require.True(t, ok)
	assert.False(t, entry.Success)
}

func TestProcessURLExhaustedLadderGoesToDLQ(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	storage := newFakeStorage()
	dlq := &fakeDLQ{}
	w := newTestWorker(storage, dlq)

	w.ProcessURL(context.Background(), srv.URL+"/recipes/walled")

	assert.Equal(t, []string{srv.URL + "/recipes/walled"}, dlq.sent())
}

func TestProcessURLSkipsDuplicate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(breadRecipeJSONLD))
	}))
	defer srv.Close()

	storage := newFakeStorage()
	w := newTestWorker(storage, &fakeDLQ{})

	url := srv.URL + "/recipes/soda-bread"
	first := w.ProcessURL(context.Background(), url)
	require.True(t, first.Stored)

	second := w.ProcessURL(context.Background(), url)
	assert.False(t, second.Stored)

	all, _ := storage.GetAllRecipes()
	assert.Len(t, all, 1)
}

func TestRepeatedLedgerMarkingIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(breadRecipeJSONLD))
	}))
	defer srv.Close()

	storage := newFakeStorage()
	w := newTestWorker(storage, &fakeDLQ{})

	url := srv.URL + "/recipes/soda-bread"
	w.ProcessURL(context.Background(), url)
	w.ProcessURL(context.Background(), url)

	// the second marking rewrites the same ledger row; every observable
	// surface looks exactly as it did after the first
	assert.Equal(t, 2, storage.markCount())
	crawled, _ := storage.IsURLCrawled(url)
	assert.True(t, crawled)
	remaining, _ := storage.FilterUncrawled([]string{url})
	assert.Empty(t, remaining)
	all, _ := storage.GetAllRecipes()
	assert.Len(t, all, 1)
	entry, ok := w.UrlCache.Get(url)
	require.True(t, ok)
	assert.True(t, entry.Success)
}

func TestProcessURLHarvestsCollectionPage(t *testing.T) {
	const roundup = `<html><head><script type="application/ld+json">
	{"@type": "Recipe", "name": "15 Best Soup Recipes for Winter",
	 "recipeIngredient": ["2 cups broth", "1 onion, diced", "3 carrots"],
	 "recipeInstructions": "Browse the list below and pick a favorite."}
	</script></head><body>
	<a href="/recipes/tomato-soup">Tomato Soup</a>
	<a href="/recipes/miso-soup">Miso Soup</a>
	</body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(roundup))
	}))
	defer srv.Close()

	storage := newFakeStorage()
	w := newTestWorker(storage, &fakeDLQ{})

	res := w.ProcessURL(context.Background(), srv.URL+"/recipes/winter-soups")

	assert.False(t, res.Stored, "roundup pages are expanded, not stored")
	assert.Equal(t, []string{
		srv.URL + "/recipes/tomato-soup",
		srv.URL + "/recipes/miso-soup",
	}, res.CollectionLinks)
	all, _ := storage.GetAllRecipes()
	assert.Empty(t, all)
}

func TestVideoFingerprint(t *testing.T) {
	assert.Equal(t, "dQw4w9WgXcQ", videoFingerprint("https://www.youtube.com/watch?v=dQw4w9WgXcQ"))
	assert.Equal(t, "dQw4w9WgXcQ", videoFingerprint("https://youtu.be/dQw4w9WgXcQ"))
	assert.Empty(t, videoFingerprint("https://example.com/recipes/bread"))
}
