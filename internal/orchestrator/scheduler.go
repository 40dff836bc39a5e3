package orchestrator

import (
	"errors"
	"log/slog"
	"time"
)

// StartAutoCrawling launches the recurring scheduler. A new pass starts on
// every interval tick unless a job is still running or the clock falls
// outside the off-peak window.
func (s *CrawlService) StartAutoCrawling() {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()
	if s.schedRunning {
		slog.Warn("auto-crawl scheduler already running.")
		return
	}
	s.schedRunning = true
	s.schedStop = make(chan struct{})

	go s.schedulerLoop(s.schedStop)
	slog.Info("auto-crawl scheduler started.",
		slog.Duration("interval", s.cfg.CrawlerSettings.Interval))
}

// StopAutoCrawling prevents new scheduled jobs from starting. A job already
// in flight runs to completion; there is no mid-job cancellation.
func (s *CrawlService) StopAutoCrawling() {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()
	if !s.schedRunning {
		return
	}
	close(s.schedStop)
	s.schedRunning = false
	slog.Info("auto-crawl scheduler stopped.")
}

func (s *CrawlService) IsAutoCrawlRunning() bool {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()
	return s.schedRunning
}

func (s *CrawlService) schedulerLoop(stop <-chan struct{}) {
	if s.cfg.CrawlerSettings.RunImmediately {
		s.tryScheduledRun(true)
	}

	ticker := time.NewTicker(s.cfg.CrawlerSettings.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tryScheduledRun(false)
		case <-stop:
			return
		}
	}
}

// tryScheduledRun starts a pass over all sources unless another job is
// running or the time-of-day gate rejects it.
func (s *CrawlService) tryScheduledRun(ignoreSchedule bool) {
	if !ignoreSchedule && !s.cfg.CrawlerSettings.RunAnyTime && !s.isOffPeak() {
		slog.Debug("skipping scheduled crawl outside off-peak hours.")
		return
	}
	_, err := s.StartCrawling("all")
	if err != nil {
		if errors.Is(err, ErrJobAlreadyRunning) {
			slog.Info("skipping scheduled crawl, job still running.")
			return
		}
		slog.Error("scheduled crawl failed to start.", slog.String("err", err.Error()))
	}
}

// isOffPeak reports whether local time is inside the configured low-traffic
// window, when target sites are least likely to rate-limit aggressively.
func (s *CrawlService) isOffPeak() bool {
	hour := s.now().Hour()
	return hour >= s.cfg.CrawlerSettings.OffPeakStartHour &&
		hour < s.cfg.CrawlerSettings.OffPeakEndHour
}
