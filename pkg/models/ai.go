// Package models contains shared data models used across the RecipeBox codebase.
package models

// ImportedRecipe is the structured payload the AI service extracts from a web page.
// It is stored verbatim as an import job's result.
type ImportedRecipe struct {
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	Ingredients         string   `json:"ingredients"`
	Instructions        string   `json:"instructions"`
	ImageURL            string   `json:"imageUrl,omitempty"`
	Tags                []string `json:"tags,omitempty"`
	EstimatedTime       string   `json:"estimatedTime,omitempty"`
	CookTime            string   `json:"cookTime,omitempty"`
	Difficulty          string   `json:"difficulty,omitempty"`
	TimeReasoning       string   `json:"timeReasoning,omitempty"`
	DifficultyReasoning string   `json:"difficultyReasoning,omitempty"`
}

// AnalysisRequest is the recipe content sent to the AI service for time and
// difficulty estimation.
type AnalysisRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Ingredients  string `json:"ingredients"`
	Instructions string `json:"instructions"`
}

// RecipeAnalysis is the AI service's estimate for a recipe.
type RecipeAnalysis struct {
	EstimatedTime       *string `json:"estimatedTime"`
	Difficulty          *string `json:"difficulty"`
	TimeReasoning       string  `json:"timeReasoning"`
	DifficultyReasoning string  `json:"difficultyReasoning"`
	Description         *string `json:"description"`
}

// CategoryRequest asks the AI service to suggest tags for recipe content.
type CategoryRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Ingredients  string   `json:"ingredients"`
	Instructions string   `json:"instructions"`
	Tags         []string `json:"existingTags,omitempty"`
}
