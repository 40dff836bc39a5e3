// Package extract turns raw page markup into a candidate recipe through a
// fallback cascade: structured linked data, semantic markup, pattern matching
// over unstructured text, then a last-resort DOM heuristic.
package extract

import (
	"errors"
	"log/slog"

	"github.com/mealdex/recipe-crawler/config"
	"github.com/mealdex/recipe-crawler/internal/model"
)

var (
	// ErrNoRecipe means no stage produced a candidate at all.
	ErrNoRecipe = errors.New("no extraction method produced a recipe")
	// ErrInvalidRecipe means a candidate was produced but failed the
	// minimum-content invariant after sanitization.
	ErrInvalidRecipe = errors.New("extracted recipe failed minimum-content validation")
)

type stage struct {
	name string
	run  func(html, sourceURL string) *model.ExtractedRecipe
}

// Pipeline applies extraction stages in order and returns the first candidate
// that survives sanitization and validation.
type Pipeline struct {
	stages    []stage
	validator *Validator
}

func NewPipeline(cfg *config.ExtractionConfig) *Pipeline {
	p := &Pipeline{validator: NewValidator(cfg)}
	p.stages = []stage{
		{name: "json-ld", run: extractJSONLD},
		{name: "microdata", run: extractMicrodata},
		{name: "patterns", run: extractPatterns},
		{name: "heuristic", run: extractHeuristic},
	}
	return p
}

// Extract runs the cascade. The stage name of the accepted candidate is
// returned for telemetry. Every extracted text field is sanitized regardless
// of which stage produced it.
func (p *Pipeline) Extract(html, sourceURL string) (*model.ExtractedRecipe, string, error) {
	produced := false
	for _, s := range p.stages {
		candidate := s.run(html, sourceURL)
		if candidate == nil {
			continue
		}
		produced = true
		sanitizeRecipe(candidate)
		if err := p.validator.Validate(candidate); err != nil {
			slog.Debug("candidate rejected.", slog.String("stage", s.name),
				slog.String("url", sourceURL), slog.String("err", err.Error()))
			continue
		}
		candidate.SourceURL = sourceURL
		return candidate, s.name, nil
	}

	if produced {
		return nil, "", ErrInvalidRecipe
	}
	return nil, "", ErrNoRecipe
}
