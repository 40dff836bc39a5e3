package orchestrator

import (
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gocolly/colly"
)

// Source is one entry of the prioritized discovery list: a listing page
// whose outbound links seed the crawl. Lower Priority runs first.
type Source struct {
	Label    string
	ListURL  string
	Priority int
}

// DefaultSources covers the large recipe publishers. The list is data, not
// behaviour: adding a source is an append here.
var DefaultSources = []Source{
	{Label: "allrecipes", ListURL: "https://www.allrecipes.com/recipes/", Priority: 1},
	{Label: "seriouseats", ListURL: "https://www.seriouseats.com/recipes-5117906", Priority: 2},
	{Label: "foodnetwork", ListURL: "https://www.foodnetwork.com/recipes/recipes-a-z", Priority: 3},
	{Label: "budgetbytes", ListURL: "https://www.budgetbytes.com/category/recipes/", Priority: 4},
	{Label: "bonappetit", ListURL: "https://www.bonappetit.com/recipes", Priority: 5},
	{Label: "simplyrecipes", ListURL: "https://www.simplyrecipes.com/recipes-5090746", Priority: 6},
}

// sourcesByLabel returns the sources matching the label ("" or "all" selects
// everything), sorted by priority.
func sourcesByLabel(sources []Source, label string) []Source {
	var out []Source
	for _, s := range sources {
		if label == "" || label == "all" || s.Label == label {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// fetchListing pulls one source's listing page. Listing pages are friendly
// to plain clients; the strategy ladder is reserved for recipe pages.
func fetchListing(src Source, transport *http.Transport, userAgent string,
	timeout time.Duration) (string, error) {
	var body string

	c := colly.NewCollector()
	c.WithTransport(transport)
	c.SetRequestTimeout(timeout)
	c.UserAgent = userAgent

	c.OnResponse(func(resp *colly.Response) {
		body = string(resp.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		slog.Warn("source listing fetch failed.", slog.String("source", src.Label),
			slog.String("err", err.Error()))
	})

	if err := c.Visit(src.ListURL); err != nil {
		return "", err
	}
	return body, nil
}
