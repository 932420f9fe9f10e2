// Package recipes implements recipe CRUD with versions, ratings, tags and
// keyword search on top of the store.
package recipes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/recipebox/internal/store"
	"github.com/kiranshivaraju/recipebox/pkg/models"
)

var (
	ErrForbidden       = errors.New("not authorized to modify this recipe")
	ErrDuplicateTitle  = errors.New("recipe with this title already exists")
	ErrTitleRequired   = errors.New("title is required")
	ErrInvalidRating   = errors.New("rating must be 1-5")
	ErrVersionRequired = errors.New("versionId is required to update an existing version")
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 100
)

// Images moves external images into local storage and removes stored ones.
type Images interface {
	Localize(ctx context.Context, url string) string
	Remove(ctx context.Context, url string)
}

// Store is the persistence the recipe service needs.
type Store interface {
	store.RecipeStore
	store.UsersStore
}

type Service struct {
	store  Store
	images Images
	logger *slog.Logger
}

func NewService(st Store, images Images) *Service {
	return &Service{
		store:  st,
		images: images,
		logger: slog.Default().With("component", "recipes"),
	}
}

// Page is one page of a recipe listing.
type Page struct {
	Recipes []*models.Recipe
	Total   int
	Page    int
	Limit   int
}

func (p Page) HasNext() bool {
	return p.Page*p.Limit < p.Total
}

func normalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

// List returns public recipes, newest first, optionally filtered by a free
// text query.
func (s *Service) List(ctx context.Context, q string, page, limit int) (*Page, error) {
	var keywords []string
	if q = strings.TrimSpace(q); q != "" {
		keywords = []string{q}
	}
	return s.Search(ctx, keywords, page, limit)
}

// Search returns public recipes matching any of the keywords.
func (s *Service) Search(ctx context.Context, keywords []string, page, limit int) (*Page, error) {
	page, limit = normalizePage(page, limit)
	recipes, total, err := s.store.ListRecipes(ctx, store.RecipeFilter{
		Keywords:   keywords,
		PublicOnly: true,
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	return &Page{Recipes: recipes, Total: total, Page: page, Limit: limit}, nil
}

// Get returns a recipe with its versions, tags and author. Private recipes
// are only visible to their owner.
func (s *Service) Get(ctx context.Context, id uuid.UUID, viewer *uuid.UUID) (*models.Recipe, error) {
	r, err := s.store.GetRecipe(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.IsPublic && (viewer == nil || *viewer != r.UserID) {
		return nil, store.ErrNotFound
	}
	if err := s.loadDetails(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) loadDetails(ctx context.Context, r *models.Recipe) error {
	versions, err := s.store.ListRecipeVersions(ctx, r.ID)
	if err != nil {
		return err
	}
	r.Versions = versions

	tags, err := s.store.ListRecipeTags(ctx, r.ID)
	if err != nil {
		return err
	}
	r.Tags = tags

	author, err := s.store.GetUser(ctx, r.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	r.Author = author

	summary, err := s.store.GetRatingSummary(ctx, r.ID, nil)
	if err != nil {
		return err
	}
	r.AverageRating = summary.Average
	return nil
}

type CreateInput struct {
	Title               string
	Description         string
	Ingredients         string
	Instructions        string
	ImageURL            string
	IsPublic            *bool
	TagIDs              []uuid.UUID
	EstimatedTime       string
	Difficulty          string
	TimeReasoning       string
	DifficultyReasoning string
}

// Create stores a recipe and its first version and points the recipe at it.
// An external image URL is downloaded first.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*models.Recipe, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	image := ""
	if in.ImageURL != "" {
		image = s.images.Localize(ctx, in.ImageURL)
	}

	now := time.Now().UTC()
	r := &models.Recipe{
		ID:                  uuid.New(),
		UserID:              userID,
		Title:               title,
		Description:         optional(in.Description),
		ImageURL:            optional(image),
		IsPublic:            in.IsPublic == nil || *in.IsPublic,
		EstimatedTime:       optional(in.EstimatedTime),
		Difficulty:          optional(in.Difficulty),
		TimeReasoning:       optional(in.TimeReasoning),
		DifficultyReasoning: optional(in.DifficultyReasoning),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	v := &models.RecipeVersion{
		ID:           uuid.New(),
		Name:         "Original",
		Title:        title,
		Description:  optional(in.Description),
		Ingredients:  in.Ingredients,
		Instructions: in.Instructions,
		ImageURL:     optional(image),
		CreatedAt:    now,
	}

	if err := s.store.CreateRecipe(ctx, r, v, in.TagIDs); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrDuplicateTitle
		}
		return nil, err
	}
	r.CurrentVersion = v
	s.logger.Info("recipe created", "recipe_id", r.ID, "user_id", userID)
	return r, nil
}

// UpdateInput carries a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	Title         *string
	Description   *string
	Ingredients   *string
	Instructions  *string
	ImageURL      *string
	IsPublic      *bool
	EstimatedTime *string
	Difficulty    *string
	TagIDs        []uuid.UUID
	SetTags       bool

	// CreateNewVersion defaults to true: the edit is stored as a new version
	// that becomes current. When false, VersionID (or the current version if
	// unset) is edited in place.
	CreateNewVersion *bool
	VersionName      string
	VersionID        *uuid.UUID
}

// Update applies an owner's edit.
func (s *Service) Update(ctx context.Context, id, userID uuid.UUID, in UpdateInput) (*models.Recipe, error) {
	r, err := s.store.GetRecipe(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID {
		return nil, ErrForbidden
	}

	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" {
			return nil, ErrTitleRequired
		}
		r.Title = t
	}
	if in.Description != nil {
		r.Description = optional(*in.Description)
	}
	if in.ImageURL != nil {
		image := *in.ImageURL
		if image != "" && (r.ImageURL == nil || image != *r.ImageURL) {
			image = s.images.Localize(ctx, image)
		}
		r.ImageURL = optional(image)
	}
	if in.IsPublic != nil {
		r.IsPublic = *in.IsPublic
	}
	if in.EstimatedTime != nil {
		r.EstimatedTime = optional(*in.EstimatedTime)
	}
	if in.Difficulty != nil {
		r.Difficulty = optional(*in.Difficulty)
	}
	r.UpdatedAt = time.Now().UTC()

	createNew := in.CreateNewVersion == nil || *in.CreateNewVersion
	if createNew {
		v := &models.RecipeVersion{
			ID:          uuid.New(),
			RecipeID:    r.ID,
			Name:        in.VersionName,
			Title:       r.Title,
			Description: r.Description,
			ImageURL:    r.ImageURL,
			CreatedAt:   r.UpdatedAt,
		}
		if v.Name == "" {
			v.Name = r.UpdatedAt.Format("2006-01-02 15:04")
		}
		if cur := r.CurrentVersion; cur != nil {
			v.Ingredients, v.Instructions = cur.Ingredients, cur.Instructions
		}
		applyContent(v, in)
		if err := s.store.CreateRecipeVersion(ctx, v); err != nil {
			return nil, err
		}
		r.CurrentVersionID = &v.ID
	} else {
		versionID := r.CurrentVersionID
		if in.VersionID != nil {
			versionID = in.VersionID
		}
		if versionID == nil {
			return nil, ErrVersionRequired
		}
		v, err := s.findVersion(ctx, r.ID, *versionID)
		if err != nil {
			return nil, err
		}
		v.Title = r.Title
		v.Description = r.Description
		v.ImageURL = r.ImageURL
		if in.VersionName != "" {
			v.Name = in.VersionName
		}
		applyContent(v, in)
		if err := s.store.UpdateRecipeVersion(ctx, v); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateRecipe(ctx, r); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrDuplicateTitle
		}
		return nil, err
	}
	if in.SetTags {
		if err := s.store.SetRecipeTags(ctx, r.ID, in.TagIDs); err != nil {
			return nil, err
		}
	}

	return s.Get(ctx, r.ID, &userID)
}

func applyContent(v *models.RecipeVersion, in UpdateInput) {
	if in.Ingredients != nil {
		v.Ingredients = *in.Ingredients
	}
	if in.Instructions != nil {
		v.Instructions = *in.Instructions
	}
}

func (s *Service) findVersion(ctx context.Context, recipeID, versionID uuid.UUID) (*models.RecipeVersion, error) {
	versions, err := s.store.ListRecipeVersions(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	for i := range versions {
		if versions[i].ID == versionID {
			return &versions[i], nil
		}
	}
	return nil, store.ErrNotFound
}

// Delete removes an owner's recipe with everything hanging off it, then
// removes its stored images.
func (s *Service) Delete(ctx context.Context, id, userID uuid.UUID) error {
	r, err := s.store.GetRecipe(ctx, id)
	if err != nil {
		return err
	}
	if r.UserID != userID {
		return ErrForbidden
	}
	versions, err := s.store.ListRecipeVersions(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteRecipe(ctx, id); err != nil {
		return err
	}

	if r.ImageURL != nil {
		s.images.Remove(ctx, *r.ImageURL)
	}
	for _, v := range versions {
		if v.ImageURL != nil {
			s.images.Remove(ctx, *v.ImageURL)
		}
	}
	s.logger.Info("recipe deleted", "recipe_id", id, "user_id", userID)
	return nil
}

// DeleteVersion removes one version and returns the recipe with the
// versions that remain.
func (s *Service) DeleteVersion(ctx context.Context, id, versionID, userID uuid.UUID) (*models.Recipe, error) {
	r, err := s.store.GetRecipe(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID {
		return nil, ErrForbidden
	}
	v, err := s.findVersion(ctx, id, versionID)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteRecipeVersion(ctx, id, versionID); err != nil {
		return nil, err
	}
	if v.ImageURL != nil && (r.ImageURL == nil || *v.ImageURL != *r.ImageURL) {
		s.images.Remove(ctx, *v.ImageURL)
	}
	return s.Get(ctx, id, &userID)
}

// Ratings returns the average rating and, when userID is set, that user's
// own rating.
func (s *Service) Ratings(ctx context.Context, id uuid.UUID, userID *uuid.UUID) (*models.RatingSummary, error) {
	if _, err := s.store.GetRecipe(ctx, id); err != nil {
		return nil, err
	}
	return s.store.GetRatingSummary(ctx, id, userID)
}

// Rate sets the user's rating for a recipe, replacing any earlier one.
func (s *Service) Rate(ctx context.Context, id, userID uuid.UUID, value int) (*models.RatingSummary, error) {
	if value < 1 || value > 5 {
		return nil, ErrInvalidRating
	}
	if _, err := s.store.GetRecipe(ctx, id); err != nil {
		return nil, err
	}
	if err := s.store.UpsertRating(ctx, id, userID, value); err != nil {
		return nil, err
	}
	return s.store.GetRatingSummary(ctx, id, &userID)
}

// ByAlias returns a user's recipes. Private recipes are included only when
// the viewer is that user.
func (s *Service) ByAlias(ctx context.Context, alias string, viewer *uuid.UUID) (*models.User, []*models.Recipe, error) {
	u, err := s.store.GetUserByAlias(ctx, strings.TrimSpace(alias))
	if err != nil {
		return nil, nil, err
	}
	owner := viewer != nil && *viewer == u.ID
	recipes, _, err := s.store.ListRecipes(ctx, store.RecipeFilter{
		UserID:     &u.ID,
		PublicOnly: !owner,
		Limit:      MaxPageSize,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("list user recipes: %w", err)
	}
	return u, recipes, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
