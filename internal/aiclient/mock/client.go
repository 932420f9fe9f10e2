package mock

import (
	"context"
	"sync"

	"github.com/kiranshivaraju/recipebox/internal/aiclient"
	"github.com/kiranshivaraju/recipebox/pkg/models"
)

// Client satisfies aiclient.Client for testing. Unset funcs return zero values.
// Calls are recorded so tests can assert on what was sent.
type Client struct {
	ImportRecipeFunc  func(ctx context.Context, url string) (*models.ImportedRecipe, error)
	AnalyzeRecipeFunc func(ctx context.Context, req models.AnalysisRequest) (*models.RecipeAnalysis, error)
	AutoCategoryFunc  func(ctx context.Context, req models.CategoryRequest) ([]string, error)
	ChatFunc          func(ctx context.Context, question string) (*aiclient.ChatResponse, error)
	HealthFunc        func(ctx context.Context) error

	mu           sync.Mutex
	importURLs   []string
	analyzeCalls []models.AnalysisRequest
}

func (m *Client) ImportRecipe(ctx context.Context, url string) (*models.ImportedRecipe, error) {
	m.mu.Lock()
	m.importURLs = append(m.importURLs, url)
	m.mu.Unlock()
	if m.ImportRecipeFunc != nil {
		return m.ImportRecipeFunc(ctx, url)
	}
	return &models.ImportedRecipe{}, nil
}

func (m *Client) AnalyzeRecipe(ctx context.Context, req models.AnalysisRequest) (*models.RecipeAnalysis, error) {
	m.mu.Lock()
	m.analyzeCalls = append(m.analyzeCalls, req)
	m.mu.Unlock()
	if m.AnalyzeRecipeFunc != nil {
		return m.AnalyzeRecipeFunc(ctx, req)
	}
	return &models.RecipeAnalysis{}, nil
}

func (m *Client) AutoCategory(ctx context.Context, req models.CategoryRequest) ([]string, error) {
	if m.AutoCategoryFunc != nil {
		return m.AutoCategoryFunc(ctx, req)
	}
	return []string{}, nil
}

func (m *Client) Chat(ctx context.Context, question string) (*aiclient.ChatResponse, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, question)
	}
	return &aiclient.ChatResponse{}, nil
}

func (m *Client) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// ImportURLs returns the URLs passed to ImportRecipe, in call order.
func (m *Client) ImportURLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.importURLs...)
}

// AnalyzeCalls returns the requests passed to AnalyzeRecipe, in call order.
func (m *Client) AnalyzeCalls() []models.AnalysisRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AnalysisRequest(nil), m.analyzeCalls...)
}

// NewClient returns a Client with plausible default responses.
func NewClient() *Client {
	return &Client{
		ImportRecipeFunc: func(_ context.Context, url string) (*models.ImportedRecipe, error) {
			return &models.ImportedRecipe{
				Title:        "Mock Pancakes",
				Description:  "Imported from " + url,
				Ingredients:  "2 cups flour\n2 eggs\n1 cup milk",
				Instructions: "Mix and fry.",
				Tags:         []string{"breakfast"},
			}, nil
		},
		AnalyzeRecipeFunc: func(_ context.Context, _ models.AnalysisRequest) (*models.RecipeAnalysis, error) {
			estimated, difficulty := "30", "Easy"
			return &models.RecipeAnalysis{
				EstimatedTime:       &estimated,
				Difficulty:          &difficulty,
				TimeReasoning:       "Short prep and cook time",
				DifficultyReasoning: "Basic techniques only",
			}, nil
		},
	}
}

// NewFailingClient returns a Client whose every call returns err.
func NewFailingClient(err error) *Client {
	return &Client{
		ImportRecipeFunc: func(context.Context, string) (*models.ImportedRecipe, error) { return nil, err },
		AnalyzeRecipeFunc: func(context.Context, models.AnalysisRequest) (*models.RecipeAnalysis, error) {
			return nil, err
		},
		AutoCategoryFunc: func(context.Context, models.CategoryRequest) ([]string, error) { return nil, err },
		ChatFunc:         func(context.Context, string) (*aiclient.ChatResponse, error) { return nil, err },
		HealthFunc:       func(context.Context) error { return err },
	}
}

var _ aiclient.Client = (*Client)(nil)
