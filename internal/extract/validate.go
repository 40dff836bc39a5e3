package extract

import (
	"errors"
	"strings"
	"unicode"

	"github.com/mealdex/recipe-crawler/config"
	"github.com/mealdex/recipe-crawler/internal/model"
)

// defaultMeaninglessIngredients lists exact (lowercased) values that parsers
// emit when a site's markup lies about its content. Tuned against observed
// sites; overridable via config so retuning needs no code change.
var defaultMeaninglessIngredients = []string{
	"n/a", "na", "none", "-", "--", "...", ".", "ingredients", "ingredient",
	"see recipe", "see below", "as needed", "null", "undefined",
}

// Validator enforces the minimum-content invariant: non-empty title, at
// least two meaningful ingredients, at least one direction.
type Validator struct {
	meaningless map[string]bool
}

func NewValidator(cfg *config.ExtractionConfig) *Validator {
	table := defaultMeaninglessIngredients
	if cfg != nil && len(cfg.MeaninglessIngredients) > 0 {
		table = cfg.MeaninglessIngredients
	}
	m := make(map[string]bool, len(table))
	for _, v := range table {
		m[strings.ToLower(v)] = true
	}
	return &Validator{meaningless: m}
}

func (v *Validator) Validate(r *model.ExtractedRecipe) error {
	if r == nil {
		return errors.New("nil recipe")
	}
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("empty title")
	}

	meaningful := 0
	for _, ing := range r.Ingredients {
		if v.IsMeaningfulIngredient(ing) {
			meaningful++
		}
	}
	if meaningful < 2 {
		return errors.New("fewer than two meaningful ingredients")
	}

	directions := 0
	for _, d := range r.Directions {
		if strings.TrimSpace(d) != "" {
			directions++
		}
	}
	if directions < 1 {
		return errors.New("no directions")
	}
	return nil
}

// IsMeaningfulIngredient rejects placeholders: entries in the meaningless
// table, bare numbers, and strings too short to name a foodstuff.
func (v *Validator) IsMeaningfulIngredient(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	if len(s) < 3 {
		return false
	}
	if v.meaningless[s] {
		return false
	}
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
