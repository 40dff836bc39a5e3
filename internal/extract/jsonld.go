package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	jsoniter "github.com/json-iterator/go"
	"github.com/mealdex/recipe-crawler/internal/model"
)

// extractJSONLD reads every <script type="application/ld+json"> block and
// searches it recursively for a Recipe node. Sites nest the node arbitrarily:
// top level, inside arrays, inside @graph, or under unrelated keys.
func extractJSONLD(html, sourceURL string) *model.ExtractedRecipe {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var recipe *model.ExtractedRecipe
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data interface{}
		if err := jsoniter.UnmarshalFromString(s.Text(), &data); err != nil {
			return true // malformed block, keep looking
		}
		if node := findRecipeNode(data, 0); node != nil {
			recipe = mapRecipeNode(node)
			return recipe == nil
		}
		return true
	})
	return recipe
}

const maxNodeDepth = 12

// findRecipeNode walks arrays and objects looking for @type "Recipe".
// @type can be a string or an array of strings.
func findRecipeNode(data interface{}, depth int) map[string]interface{} {
	if depth > maxNodeDepth {
		return nil
	}
	switch v := data.(type) {
	case []interface{}:
		for _, item := range v {
			if node := findRecipeNode(item, depth+1); node != nil {
				return node
			}
		}
	case map[string]interface{}:
		if hasType(v, "Recipe") {
			return v
		}
		for _, value := range v {
			if node := findRecipeNode(value, depth+1); node != nil {
				return node
			}
		}
	}
	return nil
}

func hasType(node map[string]interface{}, want string) bool {
	switch t := node["@type"].(type) {
	case string:
		return strings.EqualFold(t, want)
	case []interface{}:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.EqualFold(s, want) {
				return true
			}
		}
	}
	return false
}

func mapRecipeNode(node map[string]interface{}) *model.ExtractedRecipe {
	r := &model.ExtractedRecipe{
		Title:            asString(node["name"]),
		Ingredients:      asStringList(node["recipeIngredient"]),
		Directions:       flattenInstructions(node["recipeInstructions"], 0),
		ImageURL:         asImageURL(node["image"]),
		PrepTimeMinutes:  ParseDurationMinutes(asString(node["prepTime"])),
		CookTimeMinutes:  ParseDurationMinutes(asString(node["cookTime"])),
		TotalTimeMinutes: ParseDurationMinutes(asString(node["totalTime"])),
		Servings:         parseServings(node["recipeYield"]),
		Category:         firstString(node["recipeCategory"]),
		Cuisine:          firstString(node["recipeCuisine"]),
		Tags:             asKeywords(node["keywords"]),
	}
	if len(r.Ingredients) == 0 {
		// older schema.org vocabulary
		r.Ingredients = asStringList(node["ingredients"])
	}
	if r.Title == "" && len(r.Ingredients) == 0 {
		return nil
	}
	return r
}

// flattenInstructions accepts the shapes sites actually emit: plain strings,
// {text}, HowToStep, and HowToSection wrapping an itemListElement list.
func flattenInstructions(v interface{}, depth int) []string {
	if depth > maxNodeDepth {
		return nil
	}
	var out []string
	switch steps := v.(type) {
	case string:
		if s := strings.TrimSpace(steps); s != "" {
			out = append(out, s)
		}
	case []interface{}:
		for _, item := range steps {
			out = append(out, flattenInstructions(item, depth+1)...)
		}
	case map[string]interface{}:
		if hasType(steps, "HowToSection") {
			out = append(out, flattenInstructions(steps["itemListElement"], depth+1)...)
			break
		}
		if text := asString(steps["text"]); text != "" {
			out = append(out, text)
		} else if name := asString(steps["name"]); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func firstString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []interface{}:
		for _, item := range t {
			if s := asString(item); s != "" {
				return s
			}
		}
	}
	return ""
}

func asStringList(v interface{}) []string {
	var out []string
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	case []interface{}:
		for _, item := range t {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// asImageURL handles string, array-of-anything and ImageObject forms.
func asImageURL(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []interface{}:
		if len(t) > 0 {
			return asImageURL(t[0])
		}
	case map[string]interface{}:
		if u := asString(t["url"]); u != "" {
			return u
		}
		return asString(t["contentUrl"])
	}
	return ""
}

func asKeywords(v interface{}) []string {
	switch t := v.(type) {
	case string:
		var tags []string
		for _, part := range strings.Split(t, ",") {
			if p := strings.TrimSpace(part); p != "" {
				tags = append(tags, p)
			}
		}
		return tags
	case []interface{}:
		return asStringList(t)
	}
	return nil
}

// parseServings accepts "4", "4 servings", 4, and ["4 servings", ...].
func parseServings(v interface{}) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		return firstInt(t)
	case []interface{}:
		for _, item := range t {
			if n := parseServings(item); n > 0 {
				return n
			}
		}
	}
	return 0
}
