package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mealdex/recipe-crawler/internal/model"
)

// extractMicrodata reads schema.org microdata attributes (itemscope/itemprop)
// from sites that never adopted JSON-LD.
func extractMicrodata(html, sourceURL string) *model.ExtractedRecipe {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	scope := doc.Find(`[itemtype*="schema.org/Recipe"]`).First()
	if scope.Length() == 0 {
		return nil
	}

	r := &model.ExtractedRecipe{}
	r.Title = propText(scope, "name")
	if r.Title == "" {
		r.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	scope.Find(`[itemprop="recipeIngredient"], [itemprop="ingredients"]`).Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			r.Ingredients = append(r.Ingredients, t)
		}
	})

	instructions := scope.Find(`[itemprop="recipeInstructions"]`)
	instructions.Each(func(_ int, s *goquery.Selection) {
		// instruction containers often wrap one li per step
		items := s.Find("li")
		if items.Length() > 0 {
			items.Each(func(_ int, li *goquery.Selection) {
				if t := strings.TrimSpace(li.Text()); t != "" {
					r.Directions = append(r.Directions, t)
				}
			})
			return
		}
		if t := strings.TrimSpace(s.Text()); t != "" {
			r.Directions = append(r.Directions, t)
		}
	})

	if img := scope.Find(`[itemprop="image"]`).First(); img.Length() > 0 {
		if src, ok := img.Attr("src"); ok {
			r.ImageURL = src
		} else if content, ok := img.Attr("content"); ok {
			r.ImageURL = content
		}
	}

	r.PrepTimeMinutes = ParseDurationMinutes(propValue(scope, "prepTime"))
	r.CookTimeMinutes = ParseDurationMinutes(propValue(scope, "cookTime"))
	r.TotalTimeMinutes = ParseDurationMinutes(propValue(scope, "totalTime"))
	r.Servings = firstInt(propText(scope, "recipeYield"))
	r.Category = propText(scope, "recipeCategory")
	r.Cuisine = propText(scope, "recipeCuisine")

	if r.Title == "" && len(r.Ingredients) == 0 {
		return nil
	}
	return r
}

func propText(scope *goquery.Selection, prop string) string {
	return strings.TrimSpace(scope.Find(`[itemprop="` + prop + `"]`).First().Text())
}

// propValue prefers machine-readable attributes (content/datetime) over text.
func propValue(scope *goquery.Selection, prop string) string {
	sel := scope.Find(`[itemprop="` + prop + `"]`).First()
	if sel.Length() == 0 {
		return ""
	}
	if content, ok := sel.Attr("content"); ok && content != "" {
		return content
	}
	if dt, ok := sel.Attr("datetime"); ok && dt != "" {
		return dt
	}
	return strings.TrimSpace(sel.Text())
}
