package extract

import (
	"testing"

	"github.com/mealdex/recipe-crawler/config"
	"github.com/mealdex/recipe-crawler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sodaBreadJSONLD = `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@graph": [
    {"@type": "WebPage", "name": "Irish Soda Bread | Example Kitchen"},
    {
      "@type": "Recipe",
      "name": "Irish Soda Bread",
      "image": ["https://example.com/soda-bread.jpg"],
      "prepTime": "PT15M",
      "cookTime": "PT45M",
      "totalTime": "PT1H",
      "recipeYield": "8 servings",
      "recipeCategory": "Bread",
      "recipeCuisine": "Irish",
      "keywords": "bread, baking, irish",
      "recipeIngredient": [
        "4 cups all-purpose flour",
        "1 teaspoon baking soda",
        "1 teaspoon salt",
        "1 &frac34; cups buttermilk"
      ],
      "recipeInstructions": [
        {"@type": "HowToStep", "text": "Preheat the oven to 425&deg;F."},
        {"@type": "HowToStep", "text": "Whisk flour, baking soda and salt together."},
        {"@type": "HowToStep", "text": "Stir in buttermilk until a shaggy dough forms, shape and bake 45 minutes."}
      ]
    }
  ]
}
</script>
</head><body><h1>Irish Soda Bread</h1></body></html>`

const microdataPage = `<!DOCTYPE html>
<html><body>
<div itemscope itemtype="https://schema.org/Recipe">
  <h1 itemprop="name">Weeknight Chili</h1>
  <img itemprop="image" src="https://example.com/chili.jpg">
  <meta itemprop="prepTime" content="PT10M">
  <meta itemprop="cookTime" content="PT30M">
  <ul>
    <li itemprop="recipeIngredient">1 lb ground beef</li>
    <li itemprop="recipeIngredient">1 can kidney beans</li>
    <li itemprop="recipeIngredient">2 tbsp chili powder</li>
  </ul>
  <div itemprop="recipeInstructions">
    <li>Brown the beef in a dutch oven over medium heat.</li>
    <li>Add beans and chili powder, then simmer for thirty minutes.</li>
  </div>
</div>
</body></html>`

func newTestPipeline() *Pipeline {
	return NewPipeline(&config.ExtractionConfig{})
}

func TestExtractFromJSONLD(t *testing.T) {
	p := newTestPipeline()

	recipe, stageName, err := p.Extract(sodaBreadJSONLD, "https://example.com/soda-bread")
	require.NoError(t, err)
	assert.Equal(t, "json-ld", stageName)

	assert.Equal(t, "Irish Soda Bread", recipe.Title)
	assert.Equal(t, "https://example.com/soda-bread", recipe.SourceURL)
	assert.Equal(t, "https://example.com/soda-bread.jpg", recipe.ImageURL)
	assert.Equal(t, 15, recipe.PrepTimeMinutes)
	assert.Equal(t, 45, recipe.CookTimeMinutes)
	assert.Equal(t, 60, recipe.TotalTimeMinutes)
	assert.Equal(t, 8, recipe.Servings)
	assert.Equal(t, "Bread", recipe.Category)
	assert.Equal(t, "Irish", recipe.Cuisine)
	assert.Equal(t, []string{"bread", "baking", "irish"}, recipe.Tags)

	require.Len(t, recipe.Ingredients, 4)
	// entity decoded by the sanitizer
	assert.Equal(t, "1 ¾ cups buttermilk", recipe.Ingredients[3])
	require.Len(t, recipe.Directions, 3)
	assert.Equal(t, "Preheat the oven to 425°F.", recipe.Directions[0])
}

func TestExtractFallsBackToMicrodata(t *testing.T) {
	p := newTestPipeline()

	recipe, stageName, err := p.Extract(microdataPage, "https://example.com/chili")
	require.NoError(t, err)
	assert.Equal(t, "microdata", stageName)
	assert.Equal(t, "Weeknight Chili", recipe.Title)
	assert.Len(t, recipe.Ingredients, 3)
	assert.Len(t, recipe.Directions, 2)
	assert.Equal(t, 10, recipe.PrepTimeMinutes)
	assert.Equal(t, 30, recipe.CookTimeMinutes)
}

func TestExtractFallsBackToPatterns(t *testing.T) {
	p := newTestPipeline()
	page := `<html><body>
	<h1>Simple Pancakes</h1>
	<ul>
	  <li>2 cups flour</li>
	  <li>1 tbsp sugar</li>
	  <li>1 &frac12; cups milk</li>
	</ul>
	<p>Mix the dry ingredients in a large bowl until evenly combined in texture.</p>
	<p>Whisk in the milk and cook spoonfuls on a hot griddle until golden brown.</p>
	</body></html>`

	recipe, stageName, err := p.Extract(page, "https://example.com/pancakes")
	require.NoError(t, err)
	assert.Equal(t, "patterns", stageName)
	assert.Equal(t, "Simple Pancakes", recipe.Title)
	assert.GreaterOrEqual(t, len(recipe.Ingredients), 3)
	assert.GreaterOrEqual(t, len(recipe.Directions), 2)
}

func TestExtractRejectsPageWithoutRecipe(t *testing.T) {
	p := newTestPipeline()
	page := `<html><body><h1>About Us</h1><p>We write about food.</p></body></html>`

	_, _, err := p.Extract(page, "https://example.com/about")
	assert.Error(t, err)
}

func TestCandidateWithPlaceholderIngredientsIsInvalid(t *testing.T) {
	p := newTestPipeline()
	page := `<html><head><script type="application/ld+json">
	{"@type": "Recipe", "name": "Mystery Dish",
	 "recipeIngredient": ["n/a", "5"],
	 "recipeInstructions": "Cook it."}
	</script></head><body></body></html>`

	_, _, err := p.Extract(page, "https://example.com/mystery")
	assert.ErrorIs(t, err, ErrInvalidRecipe)
}

func TestLegacyIngredientsKey(t *testing.T) {
	p := newTestPipeline()
	page := `<html><head><script type="application/ld+json">
	{"@type": "Recipe", "name": "Old Markup Stew",
	 "ingredients": ["2 carrots, chopped", "1 onion, diced", "4 cups beef stock"],
	 "recipeInstructions": "Simmer everything for an hour."}
	</script></head><body></body></html>`

	recipe, stageName, err := p.Extract(page, "https://example.com/stew")
	require.NoError(t, err)
	assert.Equal(t, "json-ld", stageName)
	assert.Len(t, recipe.Ingredients, 3)
	assert.Equal(t, []string{"Simmer everything for an hour."}, recipe.Directions)
}

func TestValidator(t *testing.T) {
	v := NewValidator(&config.ExtractionConfig{})

	assert.True(t, v.IsMeaningfulIngredient("2 cups flour"))
	assert.False(t, v.IsMeaningfulIngredient("n/a"))
	assert.False(t, v.IsMeaningfulIngredient("5"))
	assert.False(t, v.IsMeaningfulIngredient("  none  "))
	assert.False(t, v.IsMeaningfulIngredient("ab"))
	assert.False(t, v.IsMeaningfulIngredient("12345"))
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<b>4 cups</b> flour", "4 cups flour"},
		{"1 &amp; 2", "1 & 2"},
		{"  lots   of\n\twhitespace  ", "lots of whitespace"},
		{"plain text", "plain text"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.in))
	}
}

func TestSanitizationPreservesValidityVerdict(t *testing.T) {
	v := NewValidator(&config.ExtractionConfig{})

	valid := &model.ExtractedRecipe{
		Title:       "<b>Irish Soda Bread</b>",
		Ingredients: []string{"<i>4 cups flour</i>", "1 tsp&nbsp;baking soda", "2 cups buttermilk"},
		Directions:  []string{"Mix &amp; bake at 425F."},
	}
	require.NoError(t, v.Validate(valid))
	sanitizeRecipe(valid)
	assert.NoError(t, v.Validate(valid), "cleaning markup must not invalidate a valid recipe")
	assert.Equal(t, "Irish Soda Bread", valid.Title)

	invalid := &model.ExtractedRecipe{
		Title:       "Mystery Dish",
		Ingredients: []string{"n/a", "5"},
		Directions:  []string{"Cook it."},
	}
	require.Error(t, v.Validate(invalid))
	sanitizeRecipe(invalid)
	assert.Error(t, v.Validate(invalid), "cleaning placeholders must not make an invalid recipe valid")
}

func TestParseDurationMinutes(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"PT15M", 15},
		{"PT1H", 60},
		{"PT1H30M", 90},
		{"P1DT2H", 1560},
		{"PT90S", 1},
		{"45 minutes", 45},
		{"about 20 min", 20},
		{"", 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseDurationMinutes(tt.in), "input %q", tt.in)
	}
}
