package extract

import (
	"html"
	"regexp"
	"strings"

	"github.com/mealdex/recipe-crawler/internal/model"
)

var (
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Sanitize strips markup and entities from one text field and collapses
// whitespace. It never invents or deletes whole list items, only cleans them.
func Sanitize(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func sanitizeList(items []string) []string {
	out := items[:0]
	for _, item := range items {
		out = append(out, Sanitize(item))
	}
	return out
}

// sanitizeRecipe cleans every extracted text field in place, regardless of
// which stage produced the candidate.
func sanitizeRecipe(r *model.ExtractedRecipe) {
	r.Title = Sanitize(r.Title)
	r.Ingredients = sanitizeList(r.Ingredients)
	r.Directions = sanitizeList(r.Directions)
	r.Category = Sanitize(r.Category)
	r.Cuisine = Sanitize(r.Cuisine)
	r.Tags = sanitizeList(r.Tags)
	r.ImageURL = strings.TrimSpace(r.ImageURL)
}
