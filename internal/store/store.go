package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/recipebox/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid import job status transition")
var ErrAlreadyAnalyzed = errors.New("recipe already has analysis metadata")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	UsersStore
	APIKeyStore
	RecipeStore
	TagStore
	ImportJobStore
}

type UsersStore interface {
	UpsertOIDCUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByAlias(ctx context.Context, alias string) (*models.User, error)
	SetUserAlias(ctx context.Context, id uuid.UUID, alias string) error
	SetUserEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	ListUsers(ctx context.Context, pendingOnly bool) ([]*models.User, error)
}

type APIKeyStore interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
}

type RecipeStore interface {
	ListRecipes(ctx context.Context, filter RecipeFilter) ([]*models.Recipe, int, error)
	GetRecipe(ctx context.Context, id uuid.UUID) (*models.Recipe, error)
	ListRecipeVersions(ctx context.Context, recipeID uuid.UUID) ([]models.RecipeVersion, error)
	ListRecipeTags(ctx context.Context, recipeID uuid.UUID) ([]models.Tag, error)
	CreateRecipe(ctx context.Context, recipe *models.Recipe, version *models.RecipeVersion, tagIDs []uuid.UUID) error
	UpdateRecipe(ctx context.Context, recipe *models.Recipe) error
	CreateRecipeVersion(ctx context.Context, version *models.RecipeVersion) error
	UpdateRecipeVersion(ctx context.Context, version *models.RecipeVersion) error
	SetRecipeTags(ctx context.Context, recipeID uuid.UUID, tagIDs []uuid.UUID) error
	DeleteRecipe(ctx context.Context, id uuid.UUID) error
	DeleteRecipeVersion(ctx context.Context, recipeID, versionID uuid.UUID) error

	FindRecipesNeedingAnalysis(ctx context.Context, limit int) ([]uuid.UUID, error)
	UpdateRecipeAnalysis(ctx context.Context, id uuid.UUID, update models.RecipeAnalysisUpdate) error

	UpsertRating(ctx context.Context, recipeID, userID uuid.UUID, value int) error
	GetRatingSummary(ctx context.Context, recipeID uuid.UUID, userID *uuid.UUID) (*models.RatingSummary, error)
}

type TagStore interface {
	ListTags(ctx context.Context) ([]*models.Tag, error)
	GetTag(ctx context.Context, id uuid.UUID) (*models.Tag, error)
	CreateTag(ctx context.Context, tag *models.Tag) error
	UpdateTag(ctx context.Context, id uuid.UUID, name string) (*models.Tag, error)
	DeleteTag(ctx context.Context, id uuid.UUID) error
}

// ImportJobStore is the persistence the import job lifecycle needs.
type ImportJobStore interface {
	CreateImportJob(ctx context.Context, job *models.ImportJob) error
	GetImportJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error)
	ListImportJobsByUser(ctx context.Context, userID uuid.UUID) ([]*models.ImportJob, error)
	UpdateImportJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...ImportJobUpdateOption) error
	DeleteImportJob(ctx context.Context, id uuid.UUID) error
	DeleteImportJobsCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RecipeFilter selects recipes for listing. A recipe matches when any keyword
// appears in its title, description, or any version's ingredients or instructions.
type RecipeFilter struct {
	Keywords   []string
	UserID     *uuid.UUID
	PublicOnly bool
	Page       int
	Limit      int
}

type importJobUpdateParams struct {
	Result       *models.ImportedRecipe
	ErrorMessage *string
}

type ImportJobUpdateOption func(*importJobUpdateParams)

// WithResult attaches the extracted recipe. Only valid for the completed status.
func WithResult(result *models.ImportedRecipe) ImportJobUpdateOption {
	return func(p *importJobUpdateParams) {
		p.Result = result
	}
}

// WithErrorMessage attaches a failure message. Only valid for the failed status.
func WithErrorMessage(msg string) ImportJobUpdateOption {
	return func(p *importJobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

// ResolveImportJobUpdate applies opts and returns the result and error
// message they carry. Stores outside this package use it to read options.
func ResolveImportJobUpdate(opts ...ImportJobUpdateOption) (*models.ImportedRecipe, *string) {
	params := &importJobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}
	return params.Result, params.ErrorMessage
}
