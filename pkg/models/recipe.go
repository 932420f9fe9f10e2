package models

import (
	"time"

	"github.com/google/uuid"
)

// Recipe is the stable identity of a recipe. Its content lives in versions;
// CurrentVersionID points at the one shown by default.
//
// EstimatedTime, Difficulty and the two reasoning fields are filled in by the
// analysis scheduler and stay nil until then.
type Recipe struct {
	ID                  uuid.UUID  `db:"id"                   json:"id"`
	UserID              uuid.UUID  `db:"user_id"              json:"userId"`
	Title               string     `db:"title"                json:"title"`
	Description         *string    `db:"description"          json:"description"`
	ImageURL            *string    `db:"image_url"            json:"imageUrl"`
	IsPublic            bool       `db:"is_public"            json:"isPublic"`
	CurrentVersionID    *uuid.UUID `db:"current_version_id"   json:"currentVersionId"`
	EstimatedTime       *string    `db:"estimated_time"       json:"estimatedTime"`
	Difficulty          *string    `db:"difficulty"           json:"difficulty"`
	TimeReasoning       *string    `db:"time_reasoning"       json:"timeReasoning"`
	DifficultyReasoning *string    `db:"difficulty_reasoning" json:"difficultyReasoning"`
	CreatedAt           time.Time  `db:"created_at"           json:"createdAt"`
	UpdatedAt           time.Time  `db:"updated_at"           json:"updatedAt"`

	CurrentVersion *RecipeVersion  `db:"-" json:"currentVersion,omitempty"`
	Versions       []RecipeVersion `db:"-" json:"versions,omitempty"`
	Tags           []Tag           `db:"-" json:"tags,omitempty"`
	Author         *User           `db:"-" json:"user,omitempty"`
	AverageRating  *float64        `db:"-" json:"averageRating,omitempty"`
}

// NeedsAnalysis reports whether the recipe is a candidate for AI enrichment.
func (r *Recipe) NeedsAnalysis() bool {
	return r.EstimatedTime == nil && r.Difficulty == nil && r.CurrentVersionID != nil
}

// RecipeVersion is one immutable-ish snapshot of a recipe's content.
type RecipeVersion struct {
	ID           uuid.UUID `db:"id"           json:"id"`
	RecipeID     uuid.UUID `db:"recipe_id"    json:"recipeId"`
	Name         string    `db:"name"         json:"versionName"`
	Title        string    `db:"title"        json:"title"`
	Description  *string   `db:"description"  json:"description"`
	Ingredients  string    `db:"ingredients"  json:"ingredients"`
	Instructions string    `db:"instructions" json:"instructions"`
	ImageURL     *string   `db:"image_url"    json:"imageUrl"`
	CreatedAt    time.Time `db:"created_at"   json:"createdAt"`
}

// RecipeAnalysisUpdate carries the AI-derived fields written back to a recipe.
type RecipeAnalysisUpdate struct {
	EstimatedTime       string
	Difficulty          string
	TimeReasoning       string
	DifficultyReasoning string
	Description         *string
}

// RatingSummary is the aggregate rating of a recipe plus the caller's own rating.
type RatingSummary struct {
	Average *float64 `json:"average"`
	Count   int      `json:"count"`
	User    *int     `json:"user"`
}
