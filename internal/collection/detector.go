// Package collection recognizes roundup pages ("15 Best Soup Recipes") and
// harvests the individual recipe links they reference instead of treating
// the page itself as a recipe.
package collection

import (
	netUrl "net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mealdex/recipe-crawler/config"
)

// Pattern tables were tuned by trial and error against live sites; they are
// configurable so retuning needs no code change.
var (
	defaultTitlePatterns = []string{
		`(?i)^\d+\s+(best|easy|quick|healthy|delicious|amazing|top)`,
		`(?i)\b\d+\s+\w+\s+recipes\b`,
		`(?i)\bways to\b`,
		`(?i)\broundup\b`,
		`(?i)\brecipes? (for|to make|you)\b.*\b(week|winter|summer|fall|spring|holiday|party)`,
		`(?i)\b(ideas|collection|favorites|round-up)\b.*\brecipes?\b`,
		`(?i)\brecipes?\b.*\b(ideas|collection|roundup)\b`,
	}
	defaultPathPatterns = []string{
		`/category/`, `/categories/`, `/collections?/`, `/roundups?/`,
		`/best-`, `-ideas/?$`, `/recipes/?$`, `/tag/`, `/topics?/`, `/gallery/`,
	}

	// Hosts that never lead to a recipe page.
	skipHosts = []string{
		"facebook.com", "twitter.com", "x.com", "instagram.com", "pinterest.com",
		"youtube.com", "tiktok.com", "reddit.com", "linkedin.com", "amazon.com",
	}
	skipPathFragments = []string{
		"/about", "/contact", "/privacy", "/terms", "/login", "/register",
		"/account", "/cart", "/shop", "/subscribe", "/newsletter", "/search",
		"/author/", "/wp-admin", "/feed", "/comment",
	}
)

type Detector struct {
	titleRes []*regexp.Regexp
	pathRes  []*regexp.Regexp
	linkCap  int
}

func NewDetector(cfg *config.ExtractionConfig, linkCap int) *Detector {
	titles := defaultTitlePatterns
	if cfg != nil && len(cfg.CollectionTitleHints) > 0 {
		titles = cfg.CollectionTitleHints
	}
	paths := defaultPathPatterns
	if cfg != nil && len(cfg.CollectionPathHints) > 0 {
		paths = cfg.CollectionPathHints
	}
	if linkCap <= 0 {
		linkCap = 20
	}

	d := &Detector{linkCap: linkCap}
	for _, p := range titles {
		if re, err := regexp.Compile(p); err == nil {
			d.titleRes = append(d.titleRes, re)
		}
	}
	for _, p := range paths {
		if re, err := regexp.Compile(p); err == nil {
			d.pathRes = append(d.pathRes, re)
		}
	}
	return d
}

// IsCollectionURL pattern-matches the URL path for listicle shapes.
func (d *Detector) IsCollectionURL(rawUrl string) bool {
	u, err := netUrl.Parse(rawUrl)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, re := range d.pathRes {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// IsCollectionTitle pattern-matches roundup phrasing in a page title.
func (d *Detector) IsCollectionTitle(title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return false
	}
	for _, re := range d.titleRes {
		if re.MatchString(title) {
			return true
		}
	}
	return false
}

// ExtractLinks harvests candidate recipe links from a collection page.
// Social/media hosts and obvious non-content paths are filtered; relative
// URLs are resolved against the base; fan-out is capped.
func (d *Detector) ExtractLinks(html, baseUrl string) []string {
	return d.ExtractLinksN(html, baseUrl, d.linkCap)
}

// ExtractLinksN is ExtractLinks with an explicit cap, used by source
// discovery where the per-source limit differs from the collection fan-out.
func (d *Detector) ExtractLinksN(html, baseUrl string, limit int) []string {
	base, err := netUrl.Parse(baseUrl)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		resolved := resolveLink(base, href)
		if resolved == "" || seen[resolved] || resolved == baseUrl {
			return true
		}
		if !d.looksLikeRecipeLink(resolved) {
			return true
		}
		seen[resolved] = true
		links = append(links, resolved)
		return len(links) < limit
	})
	return links
}

func resolveLink(base *netUrl.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}
	ref, err := netUrl.Parse(href)
	if err != nil {
		return ""
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

func (d *Detector) looksLikeRecipeLink(rawUrl string) bool {
	u, err := netUrl.Parse(rawUrl)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, bad := range skipHosts {
		if host == bad || strings.HasSuffix(host, "."+bad) {
			return false
		}
	}
	path := strings.ToLower(u.Path)
	if path == "" || path == "/" {
		return false
	}
	for _, frag := range skipPathFragments {
		if strings.Contains(path, frag) {
			return false
		}
	}
	// nested collections are re-detected later; don't recurse through them here
	if d.IsCollectionURL(rawUrl) {
		return false
	}
	return true
}
