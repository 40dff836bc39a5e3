// Package orchestrator owns crawl job lifecycle: source discovery, batch
// processing with bounded concurrency, job status tracking and the
// background scheduler.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mealdex/recipe-crawler/config"
	"github.com/mealdex/recipe-crawler/internal/collection"
	"github.com/mealdex/recipe-crawler/internal/limiter"
	"github.com/mealdex/recipe-crawler/internal/model"
	"github.com/mealdex/recipe-crawler/internal/persistence"
	"github.com/mealdex/recipe-crawler/internal/urlcache"
	"github.com/mealdex/recipe-crawler/internal/worker"
)

var ErrJobAlreadyRunning = errors.New("a crawl job is already running")

// CrawlService is the exposed surface of the crawler core. One instance per
// process; the shared cache, limiter and throttle are passed in by handle.
type CrawlService struct {
	cfg       *config.Config
	worker    *worker.CrawlWorker
	storage   persistence.RecipeStorage
	urlCache  *urlcache.BoundedCache
	limiter   *limiter.AdaptiveRateLimiter
	detector  *collection.Detector
	transport *http.Transport
	sources   []Source

	mu         sync.Mutex
	jobs       map[string]*model.CrawlJob
	jobOrder   []string // insertion order, for history eviction
	jobRunning bool

	schedMu      sync.Mutex
	schedStop    chan struct{}
	schedRunning bool

	// overridable in tests
	sleep func(d time.Duration)
	now   func() time.Time
}

type Deps struct {
	Cfg       *config.Config
	Worker    *worker.CrawlWorker
	Storage   persistence.RecipeStorage
	UrlCache  *urlcache.BoundedCache
	Limiter   *limiter.AdaptiveRateLimiter
	Detector  *collection.Detector
	Transport *http.Transport
	Sources   []Source
}

func NewCrawlService(deps Deps) *CrawlService {
	sources := deps.Sources
	if len(sources) == 0 {
		sources = DefaultSources
	}
	return &CrawlService{
		cfg:       deps.Cfg,
		worker:    deps.Worker,
		storage:   deps.Storage,
		urlCache:  deps.UrlCache,
		limiter:   deps.Limiter,
		detector:  deps.Detector,
		transport: deps.Transport,
		sources:   sources,
		jobs:      make(map[string]*model.CrawlJob),
		sleep:     time.Sleep,
		now:       time.Now,
	}
}

// StartCrawling launches a crawl over the named source ("all" for every
// source) and returns the job id. Only one job runs at a time.
func (s *CrawlService) StartCrawling(sourceLabel string) (string, error) {
	selected := sourcesByLabel(s.sources, sourceLabel)
	if len(selected) == 0 {
		return "", fmt.Errorf("unknown source: %s", sourceLabel)
	}
	if len(selected) > s.cfg.CrawlerSettings.MaxSources {
		selected = selected[:s.cfg.CrawlerSettings.MaxSources]
	}

	s.mu.Lock()
	if s.jobRunning {
		s.mu.Unlock()
		return "", ErrJobAlreadyRunning
	}
	job := &model.CrawlJob{
		ID:          uuid.New().String(),
		SourceLabel: sourceLabel,
		StartedAt:   s.now(),
		Status:      model.JobRunning,
	}
	s.jobRunning = true
	s.storeJobLocked(job)
	s.mu.Unlock()

	go s.runJob(job, selected)
	return job.ID, nil
}

func (s *CrawlService) GetCrawlStatus(jobID string) *model.CrawlJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	copied := *job
	return &copied
}

func (s *CrawlService) GetAllCrawlJobs() []*model.CrawlJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.CrawlJob, 0, len(s.jobOrder))
	for _, id := range s.jobOrder {
		copied := *s.jobs[id]
		out = append(out, &copied)
	}
	return out
}

func (s *CrawlService) ClearURLCache() {
	s.urlCache.Clear()
}

// runJob is the batch driver. Fetch/extraction failures never escape the
// worker; only a programming error reaches the recover and fails the job.
func (s *CrawlService) runJob(job *model.CrawlJob, sources []Source) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("crawl job panicked.", slog.String("job", job.ID), slog.Any("panic", r))
			s.finishJob(job, model.JobFailed, fmt.Sprintf("panic: %v", r))
			s.worker.Metrics.JobFailedCnt(1)
		}
	}()

	urls := s.discoverURLs(sources)
	s.mu.Lock()
	job.URLs = urls
	job.Total = len(urls)
	s.mu.Unlock()
	slog.Info("crawl job discovered urls.", slog.String("job", job.ID), slog.Int("count", len(urls)))

	queue := urls
	harvestBudget := s.cfg.CrawlerSettings.CollectionLinkCap * s.cfg.CrawlerSettings.MaxSources
	batchSize := s.cfg.CrawlerSettings.BatchSize

	for len(queue) > 0 {
		batch := queue
		if len(batch) > batchSize {
			batch = batch[:batchSize]
		}
		queue = queue[len(batch):]

		harvested := s.processBatch(batch)

		s.mu.Lock()
		job.Processed += len(batch)
		s.mu.Unlock()

		if len(harvested) > 0 && harvestBudget > 0 {
			fresh := s.filterCandidates(harvested)
			if len(fresh) > harvestBudget {
				fresh = fresh[:harvestBudget]
			}
			harvestBudget -= len(fresh)
			queue = append(queue, fresh...)
			s.mu.Lock()
			job.Total += len(fresh)
			job.URLs = append(job.URLs, fresh...)
			s.mu.Unlock()
		}

		if len(queue) > 0 {
			s.sleep(s.limiter.Delay())
		}
	}

	s.finishJob(job, model.JobCompleted, "")
	s.worker.Metrics.JobCompletedCnt(1)
	slog.Info("crawl job completed.", slog.String("job", job.ID),
		slog.Int("processed", job.Processed))
}

// processBatch fans one batch out to goroutines and joins them all,
// tolerating individual failures. Collection links harvested by any worker
// are returned for re-enqueueing.
func (s *CrawlService) processBatch(batch []string) []string {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		harvested []string
	)
	for _, url := range batch {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("url processing panicked.", slog.String("url", url), slog.Any("panic", r))
				}
			}()
			res := s.worker.ProcessURL(context.Background(), url)
			if len(res.CollectionLinks) > 0 {
				mu.Lock()
				harvested = append(harvested, res.CollectionLinks...)
				mu.Unlock()
			}
		}(url)
	}
	wg.Wait()
	return harvested
}

// discoverURLs walks the prioritized sources, harvests candidate links from
// their listing pages and drops everything the caches or ledger already know.
func (s *CrawlService) discoverURLs(sources []Source) []string {
	seen := make(map[string]bool)
	var candidates []string

	for _, src := range sources {
		body, err := fetchListing(src, s.transport, listingUserAgent,
			s.cfg.HttpClientSettings.RequestTimeout)
		if err != nil || body == "" {
			continue
		}
		links := s.detector.ExtractLinksN(body, src.ListURL, s.cfg.CrawlerSettings.MaxUrlsPerSource)
		for _, link := range links {
			if !seen[link] {
				seen[link] = true
				candidates = append(candidates, link)
			}
		}
	}

	return s.filterCandidates(candidates)
}

// filterCandidates applies the cheap gates in order: in-process cooldown,
// shared-cache marker, collection-shaped URLs, then one batched ledger check.
func (s *CrawlService) filterCandidates(urls []string) []string {
	var fresh []string
	for _, u := range urls {
		if s.urlCache.ShouldSkip(u) {
			continue
		}
		if s.worker.SharedCache.IsRecentAttempt(u) {
			continue
		}
		if s.detector.IsCollectionURL(u) {
			continue
		}
		fresh = append(fresh, u)
	}

	uncrawled, err := s.storage.FilterUncrawled(fresh)
	if err != nil {
		slog.Error("ledger filter failed, proceeding unfiltered.", slog.String("err", err.Error()))
		return fresh
	}
	return uncrawled
}

func (s *CrawlService) finishJob(job *model.CrawlJob, status model.JobStatus, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Status = status
	job.Error = errMsg
	job.FinishedAt = s.now()
	s.jobRunning = false
}

// storeJobLocked inserts the job and evicts the oldest finished jobs past
// the history limit. Caller holds s.mu.
func (s *CrawlService) storeJobLocked(job *model.CrawlJob) {
	s.jobs[job.ID] = job
	s.jobOrder = append(s.jobOrder, job.ID)

	limit := s.cfg.CrawlerSettings.JobHistoryLimit
	for len(s.jobOrder) > limit {
		evicted := false
		for i, id := range s.jobOrder {
			if s.jobs[id].Status != model.JobRunning {
				delete(s.jobs, id)
				s.jobOrder = append(s.jobOrder[:i], s.jobOrder[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			break
		}
	}
}

const listingUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
