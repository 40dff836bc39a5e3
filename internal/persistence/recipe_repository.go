package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/mealdex/recipe-crawler/internal"
	"github.com/mealdex/recipe-crawler/internal/model"
	"github.com/patrickmn/go-cache"
)

// RecipeStorage is the narrow interface the crawler requires from the
// durable store. The database is authoritative over every in-memory cache.
type RecipeStorage interface {
	GetRecipeBySource(url string) (*model.Recipe, error)
	IsURLCrawled(url string) (bool, error)
	FilterUncrawled(urls []string) ([]string, error)
	MarkURLCrawled(url, domain string, success bool, recipeID int64, errMsg string) error
	CreateRecipe(r *model.ExtractedRecipe) (*model.Recipe, error)
	GetAllRecipes() ([]*model.Recipe, error)
}

type RecipeRepository struct {
	db       *sql.DB
	bySource *cache.Cache
}

func NewRecipeRepository(db *sql.DB) *RecipeRepository {
	return &RecipeRepository{
		db:       db,
		bySource: cache.New(30*time.Minute, 10*time.Minute),
	}
}

func (rr *RecipeRepository) GetRecipeBySource(url string) (*model.Recipe, error) {
	if v, ok := rr.bySource.Get(url); ok {
		return v.(*model.Recipe), nil
	}

	row := rr.db.QueryRow(`SELECT id, source_url, title, ingredients, directions, image_url,
		prep_time_minutes, cook_time_minutes, total_time_minutes, servings, category, cuisine,
		tags, created_at
	FROM recipes WHERE source_url = $1`, url)

	r, err := scanRecipe(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rr.bySource.Set(url, r, cache.DefaultExpiration)
	return r, nil
}

func (rr *RecipeRepository) IsURLCrawled(url string) (bool, error) {
	var exists bool
	err := rr.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM crawled_urls WHERE url_hash = $1)`,
		internal.HashURL(url)).Scan(&exists)
	return exists, err
}

// FilterUncrawled drops every URL already present in the ledger, in one
// round trip for the whole discovery batch.
func (rr *RecipeRepository) FilterUncrawled(urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	hashes := make([]string, len(urls))
	byHash := make(map[string]string, len(urls))
	for i, u := range urls {
		h := internal.HashURL(u)
		hashes[i] = h
		byHash[h] = u
	}

	rows, err := rr.db.Query(`SELECT url_hash FROM crawled_urls WHERE url_hash = ANY($1)`,
		pq.Array(hashes))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		delete(byHash, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	remaining := make([]string, 0, len(byHash))
	for _, u := range urls {
		if _, ok := byHash[internal.HashURL(u)]; ok {
			remaining = append(remaining, u)
		}
	}
	return remaining, nil
}

// MarkURLCrawled upserts the ledger entry; repeating the call with the same
// outcome leaves the row unchanged apart from the timestamp.
func (rr *RecipeRepository) MarkURLCrawled(url, domain string, success bool, recipeID int64,
	errMsg string) error {
	var recipeRef sql.NullInt64
	if recipeID > 0 {
		recipeRef = sql.NullInt64{Int64: recipeID, Valid: true}
	}
	_, err := rr.db.Exec(`INSERT INTO crawled_urls (url_hash, url, domain, success, recipe_id, error_message, crawled_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (url_hash) DO UPDATE
	SET success = EXCLUDED.success,
		recipe_id = EXCLUDED.recipe_id,
		error_message = EXCLUDED.error_message,
		crawled_at = EXCLUDED.crawled_at;`,
		internal.HashURL(url), url, domain, success, recipeRef, errMsg, time.Now().UTC())
	if err != nil {
		slog.Error("failed to save crawl ledger entry.", slog.String("err", err.Error()))
		return err
	}
	slog.Debug("crawl ledger entry saved.", slog.String("url", url))
	return nil
}

func (rr *RecipeRepository) CreateRecipe(er *model.ExtractedRecipe) (*model.Recipe, error) {
	ingredients, err := json.Marshal(er.Ingredients)
	if err != nil {
		return nil, err
	}
	directions, err := json.Marshal(er.Directions)
	if err != nil {
		return nil, err
	}
	tags, err := json.Marshal(er.Tags)
	if err != nil {
		return nil, err
	}

	r := &model.Recipe{SourceURL: er.SourceURL, ExtractedRecipe: *er}
	err = rr.db.QueryRow(`INSERT INTO recipes (source_url, title, ingredients, directions, image_url,
		prep_time_minutes, cook_time_minutes, total_time_minutes, servings, category, cuisine, tags, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	RETURNING id, created_at`,
		er.SourceURL, er.Title, ingredients, directions, er.ImageURL,
		er.PrepTimeMinutes, er.CookTimeMinutes, er.TotalTimeMinutes, er.Servings,
		er.Category, er.Cuisine, tags, time.Now().UTC()).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		slog.Error("failed to create recipe.", slog.String("source", er.SourceURL),
			slog.String("err", err.Error()))
		return nil, err
	}
	rr.bySource.Set(er.SourceURL, r, cache.DefaultExpiration)
	slog.Debug("recipe created.", slog.Int64("id", r.ID), slog.String("title", er.Title))
	return r, nil
}

func (rr *RecipeRepository) GetAllRecipes() ([]*model.Recipe, error) {
	rows, err := rr.db.Query(`SELECT id, source_url, title, ingredients, directions, image_url,
		prep_time_minutes, cook_time_minutes, total_time_minutes, servings, category, cuisine,
		tags, created_at
	FROM recipes ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recipes []*model.Recipe
	for rows.Next() {
		r, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, r)
	}
	return recipes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecipe(row rowScanner) (*model.Recipe, error) {
	r := &model.Recipe{}
	var ingredients, directions, tags []byte
	err := row.Scan(&r.ID, &r.SourceURL, &r.Title, &ingredients, &directions, &r.ImageURL,
		&r.PrepTimeMinutes, &r.CookTimeMinutes, &r.TotalTimeMinutes, &r.Servings,
		&r.Category, &r.Cuisine, &tags, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(ingredients, &r.Ingredients); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(directions, &r.Directions); err != nil {
		return nil, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &r.Tags); err != nil {
			return nil, err
		}
	}
	r.ExtractedRecipe.SourceURL = r.SourceURL
	return r, nil
}
