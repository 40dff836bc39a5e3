// Package strategy implements the escalation ladder: an ordered, data-driven
// list of request configurations tried cheapest-first until one yields a page,
// ending with headless-browser and web-archive tiers for hard targets.
package strategy

import (
	"time"

	"github.com/mealdex/recipe-crawler/config"
)

// Config is one concrete request configuration of the ladder. Entries are
// immutable; the executor owns all per-attempt state.
type Config struct {
	Name         string
	Headers      map[string]string
	Timeout      time.Duration
	MaxRedirects int
	DelayMin     time.Duration
	DelayMax     time.Duration
	RotateUA     bool
	UseBrowser   bool
	UseArchive   bool
}

const (
	desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	mobileUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 " +
		"(KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1"
	googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

// Catalog builds the ordered ladder. Sites differ in which signal they block
// on (UA, header completeness, referer, pacing), so cheap strategies come
// first and the expensive browser/archive tiers last.
func Catalog(cfg *config.StrategyConfig, httpTimeout time.Duration) []Config {
	lang := cfg.DefaultLanguage
	if lang == "" {
		lang = "en-US,en;q=0.9"
	}
	catalog := []Config{
		{
			Name: "standard-desktop",
			Headers: map[string]string{
				"User-Agent":      desktopUA,
				"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
				"Accept-Language": lang,
				"Accept-Encoding": "gzip, deflate, br",
				"Connection":      "keep-alive",
			},
			Timeout:      httpTimeout,
			MaxRedirects: 5,
			DelayMin:     500 * time.Millisecond,
			DelayMax:     1500 * time.Millisecond,
		},
		{
			Name: "mobile-safari",
			Headers: map[string]string{
				"User-Agent":      mobileUA,
				"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
				"Accept-Language": lang,
				"Accept-Encoding": "gzip, deflate, br",
			},
			Timeout:      httpTimeout,
			MaxRedirects: 5,
			DelayMin:     1 * time.Second,
			DelayMax:     2 * time.Second,
		},
		{
			Name: "minimal",
			Headers: map[string]string{
				"User-Agent": desktopUA,
			},
			Timeout:      httpTimeout,
			MaxRedirects: 3,
			DelayMin:     1 * time.Second,
			DelayMax:     2 * time.Second,
		},
		{
			Name: "search-crawler",
			Headers: map[string]string{
				"User-Agent":      googlebotUA,
				"Accept":          "text/html,application/xhtml+xml",
				"Accept-Encoding": "gzip, deflate",
			},
			Timeout:      httpTimeout,
			MaxRedirects: 5,
			DelayMin:     2 * time.Second,
			DelayMax:     4 * time.Second,
		},
		{
			Name: "stealth",
			Headers: map[string]string{
				"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
				"Accept-Language":           lang,
				"Accept-Encoding":           "gzip, deflate, br",
				"Referer":                   "https://www.google.com/",
				"Cache-Control":             "no-cache",
				"Pragma":                    "no-cache",
				"Sec-Fetch-Dest":            "document",
				"Sec-Fetch-Mode":            "navigate",
				"Sec-Fetch-Site":            "cross-site",
				"Sec-Fetch-User":            "?1",
				"Upgrade-Insecure-Requests": "1",
				"DNT":                       "1",
			},
			Timeout:      httpTimeout,
			MaxRedirects: 10,
			DelayMin:     3 * time.Second,
			DelayMax:     6 * time.Second,
			RotateUA:     true,
		},
	}

	if cfg.BrowserEnabled {
		catalog = append(catalog, Config{
			Name:       "headless-browser",
			Timeout:    cfg.BrowserTimeout,
			DelayMin:   4 * time.Second,
			DelayMax:   8 * time.Second,
			UseBrowser: true,
		})
	}
	if cfg.ArchiveEnabled {
		catalog = append(catalog, Config{
			Name:       "web-archive",
			Timeout:    time.Duration(cfg.ArchiveTimeout) * time.Second,
			UseArchive: true,
		})
	}

	return catalog
}
