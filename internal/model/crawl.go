package model

import (
	netUrl "net/url"
	"strings"
	"time"
)

// FetchKind classifies the transport outcome of a single fetch attempt.
type FetchKind int

const (
	FetchSuccess FetchKind = iota
	FetchBlocked
	FetchNotFound
	FetchTimeout
	FetchNetworkError
)

func (k FetchKind) String() string {
	return [...]string{"success", "blocked", "not found", "timeout", "network error"}[k]
}

// FetchResult is the classified outcome of one fetch attempt. Kind decides
// whether the executor advances to the next strategy or aborts.
type FetchResult struct {
	Kind       FetchKind
	StatusCode int
	HTML       string
	FinalURL   string
	Reason     string
	Mechanism  string
}

func (r FetchResult) OK() bool {
	return r.Kind == FetchSuccess
}

// CandidateURL is an ephemeral discovery product: a URL plus its derived host.
type CandidateURL struct {
	URL    string `json:"url"`
	Domain string `json:"domain"`
}

func NewCandidateURL(rawUrl string) CandidateURL {
	c := CandidateURL{URL: rawUrl}
	if u, err := netUrl.Parse(rawUrl); err == nil {
		c.Domain = strings.ToLower(u.Hostname())
	}
	return c
}

// Page holds the raw crawl of a single URL as written to the archive bucket.
// The downstream media-extraction service reads these objects.
type Page struct {
	Title              string `json:"title"`
	FullURL            string `json:"full_url"`
	FullHTML           string `json:"full_html,omitempty"`
	TimeToCrawl        int64  `json:"time_to_crawl"` // in milliseconds
	StatusCode         int    `json:"status_code"`
	Status             string `json:"status"`
	CrawlMechanism     string `json:"crawl_mechanism"`
	CrawlWorkerVersion string `json:"crawl_worker_version"`
}

// JobStatus is the lifecycle state of a crawl job.
type JobStatus int

const (
	JobRunning JobStatus = iota
	JobCompleted
	JobFailed
)

func (s JobStatus) String() string {
	return [...]string{"running", "completed", "failed"}[s]
}

// CrawlJob tracks the progress of one crawl pass over a source.
type CrawlJob struct {
	ID          string    `json:"id"`
	SourceLabel string    `json:"source_label"`
	URLs        []string  `json:"urls,omitempty"`
	Processed   int       `json:"processed"`
	Total       int       `json:"total"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
	Status      JobStatus `json:"status"`
	Error       string    `json:"error,omitempty"`
}
