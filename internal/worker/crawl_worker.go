package worker

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/mealdex/recipe-crawler/config"
	"github.com/mealdex/recipe-crawler/internal/aws_s3"
	"github.com/mealdex/recipe-crawler/internal/broker"
	"github.com/mealdex/recipe-crawler/internal/cache"
	"github.com/mealdex/recipe-crawler/internal/collection"
	"github.com/mealdex/recipe-crawler/internal/extract"
	"github.com/mealdex/recipe-crawler/internal/limiter"
	"github.com/mealdex/recipe-crawler/internal/model"
	"github.com/mealdex/recipe-crawler/internal/persistence"
	"github.com/mealdex/recipe-crawler/internal/strategy"
	"github.com/mealdex/recipe-crawler/internal/telemetry"
	"github.com/mealdex/recipe-crawler/internal/urlcache"
)

// CrawlWorker drives a single URL end to end: throttle, strategy ladder,
// extraction, duplicate checks, persistence, archive. Per-URL failures are
// swallowed here; they are recorded but never abort the batch.
type CrawlWorker struct {
	Cfg         *config.Config
	Executor    *strategy.Executor
	Catalog     []strategy.Config
	Pipeline    *extract.Pipeline
	Detector    *collection.Detector
	Storage     persistence.RecipeStorage
	UrlCache    *urlcache.BoundedCache
	SharedCache cache.CachedClient
	Limiter     *limiter.AdaptiveRateLimiter
	Throttle    *limiter.DomainThrottle
	S3          aws_s3.BucketClient
	DLQ         broker.DeadLetterClient
	Metrics     *telemetry.AppMetrics
}

// Result reports what one URL produced: possibly a stored recipe, possibly
// harvested collection links for re-enqueueing.
type Result struct {
	RecipeID        int64
	CollectionLinks []string
	Stored          bool
}

var youtubeIDRe = regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/)([\w-]{6,})`)

// ProcessURL never returns an error: per-URL failures are terminal for the
// URL only and leave their trace in the cache, ledger and limiter.
func (w *CrawlWorker) ProcessURL(ctx context.Context, rawUrl string) Result {
	candidate := model.NewCandidateURL(rawUrl)

	if w.Throttle.IsProtected(candidate.Domain) {
		if err := w.Throttle.Wait(ctx, candidate.Domain); err != nil {
			w.recordFailure(candidate, "throttle wait cancelled: "+err.Error())
			return Result{}
		}
	}

	start := time.Now()
	res := w.Executor.ExecuteSequential(ctx, rawUrl, w.Catalog)
	w.Throttle.RecordStatus(candidate.Domain, res.StatusCode)

	if !res.OK() {
		slog.Warn("all strategies failed.", slog.String("url", rawUrl),
			slog.String("kind", res.Kind.String()), slog.String("reason", res.Reason))
		w.recordFailure(candidate, res.Kind.String()+": "+res.Reason)
		w.Metrics.FetchFailureCnt(1)
		if res.Kind != model.FetchNotFound {
			w.DLQ.SendURLToDLQ(rawUrl, errors.New(res.Kind.String()+": "+res.Reason))
			w.Metrics.DLQSendCnt(1)
		}
		return Result{}
	}
	w.Metrics.FetchSuccessCnt(1)

	recipe, stage, err := w.Pipeline.Extract(res.HTML, res.FinalURL)
	if err != nil {
		// a roundup page legitimately fails recipe extraction; check for
		// harvestable links before writing the URL off
		if links := w.expandCollection(res, rawUrl); len(links) > 0 {
			w.recordSuccess(candidate, 0)
			return Result{CollectionLinks: links}
		}
		slog.Debug("extraction failed.", slog.String("url", rawUrl), slog.String("err", err.Error()))
		w.recordFailure(candidate, err.Error())
		w.Metrics.ExtractionFailCnt(1)
		return Result{}
	}

	if w.Detector.IsCollectionTitle(recipe.Title) {
		links := w.Detector.ExtractLinks(res.HTML, res.FinalURL)
		slog.Info("collection page detected, harvesting links.", slog.String("url", rawUrl),
			slog.String("title", recipe.Title), slog.Int("links", len(links)))
		w.Metrics.CollectionFoundCnt(1)
		w.recordSuccess(candidate, 0)
		return Result{CollectionLinks: links}
	}

	if dup := w.isDuplicate(rawUrl, res.FinalURL); dup {
		slog.Debug("duplicate recipe, skipping.", slog.String("url", rawUrl))
		w.recordSuccess(candidate, 0)
		return Result{}
	}

	stored, err := w.Storage.CreateRecipe(recipe)
	if err != nil {
		w.recordFailure(candidate, "storage error: "+err.Error())
		return Result{}
	}
	slog.Info("recipe stored.", slog.Int64("id", stored.ID), slog.String("title", stored.Title),
		slog.String("stage", stage), slog.String("strategy", res.Mechanism))
	w.Metrics.RecipeCreatedCnt(1)

	w.archivePage(res, time.Since(start))
	w.recordSuccess(candidate, stored.ID)
	return Result{RecipeID: stored.ID, Stored: true}
}

// expandCollection retries the roundup heuristics on pages whose extraction
// failed: a collection-shaped URL full of outbound recipe links is a
// harvest, not a failure.
func (w *CrawlWorker) expandCollection(res model.FetchResult, rawUrl string) []string {
	if !w.Detector.IsCollectionURL(rawUrl) {
		return nil
	}
	links := w.Detector.ExtractLinks(res.HTML, res.FinalURL)
	if len(links) > 0 {
		w.Metrics.CollectionFoundCnt(1)
	}
	return links
}

// isDuplicate checks the source URL and, for video URLs, the video-id
// fingerprint against every stored recipe.
func (w *CrawlWorker) isDuplicate(urls ...string) bool {
	for _, u := range urls {
		existing, err := w.Storage.GetRecipeBySource(u)
		if err != nil {
			slog.Warn("duplicate check failed.", slog.String("url", u), slog.String("err", err.Error()))
			continue
		}
		if existing != nil {
			return true
		}
	}

	id := videoFingerprint(urls[0])
	if id == "" {
		return false
	}
	all, err := w.Storage.GetAllRecipes()
	if err != nil {
		slog.Warn("fingerprint check failed.", slog.String("err", err.Error()))
		return false
	}
	for _, r := range all {
		if videoFingerprint(r.SourceURL) == id {
			return true
		}
	}
	return false
}

func videoFingerprint(rawUrl string) string {
	if m := youtubeIDRe.FindStringSubmatch(rawUrl); m != nil {
		return m[1]
	}
	return ""
}

func (w *CrawlWorker) archivePage(res model.FetchResult, took time.Duration) {
	page := &model.Page{
		FullURL:            res.FinalURL,
		FullHTML:           res.HTML,
		TimeToCrawl:        took.Milliseconds(),
		StatusCode:         res.StatusCode,
		Status:             "OK",
		CrawlMechanism:     res.Mechanism,
		CrawlWorkerVersion: w.Cfg.Version,
	}
	if _, err := w.S3.WritePage(page); err != nil {
		slog.Error("failed to archive page.", slog.String("url", res.FinalURL))
	}
}

func (w *CrawlWorker) recordSuccess(c model.CandidateURL, recipeID int64) {
	w.UrlCache.Set(c.URL, true)
	w.SharedCache.MarkAttempt(c.URL, true)
	w.Limiter.RecordSuccess()
	if err := w.Storage.MarkURLCrawled(c.URL, c.Domain, true, recipeID, ""); err != nil {
		slog.Error("failed to mark url crawled.", slog.String("url", c.URL),
			slog.String("err", err.Error()))
	}
}

func (w *CrawlWorker) recordFailure(c model.CandidateURL, reason string) {
	w.UrlCache.Set(c.URL, false)
	w.SharedCache.MarkAttempt(c.URL, false)
	w.Limiter.RecordFailure()
	if err := w.Storage.MarkURLCrawled(c.URL, c.Domain, false, 0, reason); err != nil {
		slog.Error("failed to mark url crawled.", slog.String("url", c.URL),
			slog.String("err", err.Error()))
	}
}

