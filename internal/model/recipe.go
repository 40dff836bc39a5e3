package model

import "time"

// ExtractedRecipe is a candidate recipe produced by the extraction pipeline.
// A candidate is only persisted when Title is non-empty, at least two
// meaningful ingredients and one direction survived sanitization.
type ExtractedRecipe struct {
	Title            string   `json:"title"`
	Ingredients      []string `json:"ingredients"`
	Directions       []string `json:"directions"`
	ImageURL         string   `json:"image_url,omitempty"`
	PrepTimeMinutes  int      `json:"prep_time_minutes,omitempty"`
	CookTimeMinutes  int      `json:"cook_time_minutes,omitempty"`
	TotalTimeMinutes int      `json:"total_time_minutes,omitempty"`
	Servings         int      `json:"servings,omitempty"`
	Category         string   `json:"category,omitempty"`
	Cuisine          string   `json:"cuisine,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	SourceURL        string   `json:"source_url,omitempty"`
}

// Recipe is a stored recipe record as returned by the storage collaborator.
type Recipe struct {
	ID        int64     `json:"id"`
	SourceURL string    `json:"source_url"`
	CreatedAt time.Time `json:"created_at"`
	ExtractedRecipe
}
