package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mealdex/recipe-crawler/internal/model"
)

// Class-name fragments that recipe themes conventionally use. Checked in
// order; the first selector with hits wins for each field.
var (
	ingredientSelectors = []string{
		`[class*="ingredient"] li`,
		`ul[class*="ingredient"] li`,
		`[id*="ingredient"] li`,
		`[class*="ingredient"] p`,
	}
	directionSelectors = []string{
		`[class*="instruction"] li`,
		`[class*="direction"] li`,
		`[class*="step"] li`,
		`ol[class*="method"] li`,
		`[class*="instruction"] p`,
		`[class*="direction"] p`,
	}
)

// extractHeuristic is the last-resort stage: first heading as title plus
// common recipe-theme class-name patterns for the lists.
func extractHeuristic(html, sourceURL string) *model.ExtractedRecipe {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	r := &model.ExtractedRecipe{}
	r.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	if r.Title == "" {
		r.Title = strings.TrimSpace(doc.Find("h2").First().Text())
	}
	if r.Title == "" {
		r.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	r.Ingredients = collectBySelectors(doc, ingredientSelectors, maxIngredients)
	r.Directions = collectBySelectors(doc, directionSelectors, maxDirections)
	r.ImageURL = bestImage(doc)

	if len(r.Ingredients) == 0 || len(r.Directions) == 0 {
		return nil
	}
	return r
}

func collectBySelectors(doc *goquery.Document, selectors []string, limit int) []string {
	for _, sel := range selectors {
		var out []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if len(out) >= limit {
				return
			}
			if t := strings.TrimSpace(s.Text()); t != "" {
				out = append(out, t)
			}
		})
		if len(out) > 0 {
			return out
		}
	}
	return nil
}
