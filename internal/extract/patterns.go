package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mealdex/recipe-crawler/internal/model"
)

// Ingredient-shaped lines start with a quantity (digits, ranges, unicode
// fractions) and usually name a unit before the noun.
var (
	quantityRe = regexp.MustCompile(`^\s*(\d+[\d\s/.,-]*|[¼½¾⅓⅔⅛⅜⅝⅞])`)
	unitRe     = regexp.MustCompile(`(?i)\b(cups?|tablespoons?|tbsps?|teaspoons?|tsps?|ounces?|oz|pounds?|lbs?|grams?|g|kilograms?|kg|milliliters?|ml|liters?|l|cloves?|cans?|slices?|pinch(?:es)?|dash(?:es)?|sticks?|packages?|pkgs?|bunch(?:es)?|sprigs?|heads?|stalks?|pieces?|quarts?|pints?|gallons?|handfuls?)\b`)

	// Direction-shaped lines open with an imperative cooking verb.
	imperativeRe = regexp.MustCompile(`(?i)^(preheat|mix|stir|add|bake|cook|heat|combine|whisk|pour|place|remove|serve|season|bring|simmer|chop|slice|dice|melt|fold|knead|roll|spread|sprinkle|cover|drain|let|transfer|reduce|garnish|beat|cream|grease|arrange|top|repeat|set|refrigerate|chill|grill|roast|fry|boil|blend|toss|rub|marinate|cut|mash|layer|brush|drizzle|flip|cool|return|turn|allow|divide|line|dissolve|saute|sauté|toast|wash|rinse|pat|shape|form|press|scoop|spoon)\b`)
)

const (
	minDirectionLen = 10
	maxDirectionLen = 600
	maxIngredients  = 60
	maxDirections   = 40
)

// extractPatterns harvests ingredient- and direction-shaped lines from list
// elements and paragraphs when the page carries no structured data at all.
func extractPatterns(html, sourceURL string) *model.ExtractedRecipe {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	r := &model.ExtractedRecipe{}
	r.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	if r.Title == "" {
		r.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	seen := make(map[string]bool)
	doc.Find("li, p").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" || seen[text] {
			return
		}
		switch {
		case looksLikeIngredient(text) && len(r.Ingredients) < maxIngredients:
			seen[text] = true
			r.Ingredients = append(r.Ingredients, text)
		case looksLikeDirection(text) && len(r.Directions) < maxDirections:
			seen[text] = true
			r.Directions = append(r.Directions, text)
		}
	})

	r.ImageURL = bestImage(doc)

	if len(r.Ingredients) == 0 && len(r.Directions) == 0 {
		return nil
	}
	return r
}

func looksLikeIngredient(text string) bool {
	if len(text) < 3 || len(text) > 200 {
		return false
	}
	if !quantityRe.MatchString(text) {
		return false
	}
	// quantity plus unit is a strong signal; quantity plus a short noun
	// phrase ("2 eggs") still counts
	return unitRe.MatchString(text) || len(strings.Fields(text)) <= 6
}

func looksLikeDirection(text string) bool {
	if len(text) < minDirectionLen || len(text) > maxDirectionLen {
		return false
	}
	return imperativeRe.MatchString(text)
}

// bestImage scores every <img> and returns the best candidate above a
// minimum score. Recipe-labeled, large, non-thumbnail images win.
func bestImage(doc *goquery.Document) string {
	bestScore := 0
	bestSrc := ""

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		score := scoreImage(img, src)
		if score > bestScore {
			bestScore = score
			bestSrc = src
		}
	})

	if bestScore < 20 {
		return ""
	}
	return bestSrc
}

func scoreImage(img *goquery.Selection, src string) int {
	score := 10
	alt, _ := img.Attr("alt")
	class, _ := img.Attr("class")
	haystack := strings.ToLower(src + " " + alt + " " + class)

	if strings.Contains(haystack, "recipe") {
		score += 50
	}
	if strings.Contains(haystack, "hero") || strings.Contains(haystack, "featured") {
		score += 20
	}
	for _, bad := range []string{"thumb", "icon", "logo", "avatar", "sprite", "badge", "pixel", "ad-"} {
		if strings.Contains(haystack, bad) {
			score -= 40
		}
	}

	if w, ok := img.Attr("width"); ok {
		if n, err := strconv.Atoi(w); err == nil {
			switch {
			case n >= 400:
				score += 30
			case n >= 200:
				score += 10
			case n < 100:
				score -= 30
			}
		}
	}
	return score
}
