package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/recipebox/internal/api/middleware"
	"github.com/kiranshivaraju/recipebox/internal/api/response"
	"github.com/kiranshivaraju/recipebox/internal/recipes"
	"github.com/kiranshivaraju/recipebox/pkg/models"
)

type Recipes struct {
	svc *recipes.Service
}

func NewRecipes(svc *recipes.Service) *Recipes {
	return &Recipes{svc: svc}
}

func writePage(w http.ResponseWriter, p *recipes.Page) {
	response.Collection(w, p.Recipes, response.PaginationMeta{
		Page:    p.Page,
		Limit:   p.Limit,
		Total:   p.Total,
		HasNext: p.HasNext(),
	})
}

// List handles GET /api/recipes?q=&page=&limit=.
func (h *Recipes) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.List(r.Context(), r.URL.Query().Get("q"),
		intQuery(r, "page", 1), intQuery(r, "limit", recipes.DefaultPageSize))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePage(w, page)
}

// Search handles POST /api/recipes/search.
func (h *Recipes) Search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keywords []string `json:"keywords" validate:"required,min=1,dive,max=100"`
		Page     int      `json:"page"     validate:"min=0"`
		Limit    int      `json:"limit"    validate:"min=0"`
	}
	if !decode(w, r, &req) {
		return
	}
	page, err := h.svc.Search(r.Context(), req.Keywords, req.Page, req.Limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePage(w, page)
}

// Get handles GET /api/recipes/{id}.
func (h *Recipes) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	recipe, err := h.svc.Get(r.Context(), id, mw.ViewerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, recipe)
}

type createRecipeRequest struct {
	Title               string      `json:"title"        validate:"required,max=200"`
	Description         string      `json:"description"`
	Ingredients         string      `json:"ingredients"`
	Instructions        string      `json:"instructions"`
	ImageURL            string      `json:"imageUrl"     validate:"max=2048"`
	IsPublic            *bool       `json:"isPublic"`
	TagIDs              []uuid.UUID `json:"tagIds"`
	EstimatedTime       string      `json:"estimatedTime"`
	Difficulty          string      `json:"difficulty"`
	TimeReasoning       string      `json:"timeReasoning"`
	DifficultyReasoning string      `json:"difficultyReasoning"`
}

// Create handles POST /api/recipes.
func (h *Recipes) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := mw.GetUserID(r)

	var req createRecipeRequest
	if !decode(w, r, &req) {
		return
	}
	recipe, err := h.svc.Create(r.Context(), userID, recipes.CreateInput{
		Title:               req.Title,
		Description:         req.Description,
		Ingredients:         req.Ingredients,
		Instructions:        req.Instructions,
		ImageURL:            req.ImageURL,
		IsPublic:            req.IsPublic,
		TagIDs:              req.TagIDs,
		EstimatedTime:       req.EstimatedTime,
		Difficulty:          req.Difficulty,
		TimeReasoning:       req.TimeReasoning,
		DifficultyReasoning: req.DifficultyReasoning,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, recipe)
}

type updateRecipeRequest struct {
	Title            *string      `json:"title"       validate:"omitnil,max=200"`
	Description      *string      `json:"description"`
	Ingredients      *string      `json:"ingredients"`
	Instructions     *string      `json:"instructions"`
	ImageURL         *string      `json:"imageUrl"    validate:"omitnil,max=2048"`
	IsPublic         *bool        `json:"isPublic"`
	EstimatedTime    *string      `json:"estimatedTime"`
	Difficulty       *string      `json:"difficulty"`
	TagIDs           *[]uuid.UUID `json:"tagIds"`
	CreateNewVersion *bool        `json:"createNewVersion"`
	VersionName      string       `json:"versionName" validate:"max=100"`
	VersionID        *uuid.UUID   `json:"versionId"`
}

// Update handles PUT /api/recipes/{id}.
func (h *Recipes) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	userID, _ := mw.GetUserID(r)

	var req updateRecipeRequest
	if !decode(w, r, &req) {
		return
	}
	in := recipes.UpdateInput{
		Title:            req.Title,
		Description:      req.Description,
		Ingredients:      req.Ingredients,
		Instructions:     req.Instructions,
		ImageURL:         req.ImageURL,
		IsPublic:         req.IsPublic,
		EstimatedTime:    req.EstimatedTime,
		Difficulty:       req.Difficulty,
		CreateNewVersion: req.CreateNewVersion,
		VersionName:      req.VersionName,
		VersionID:        req.VersionID,
	}
	if req.TagIDs != nil {
		in.TagIDs, in.SetTags = *req.TagIDs, true
	}

	recipe, err := h.svc.Update(r.Context(), id, userID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, recipe)
}

// Delete handles DELETE /api/recipes/{id}.
func (h *Recipes) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	userID, _ := mw.GetUserID(r)
	if err := h.svc.Delete(r.Context(), id, userID); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}

// DeleteVersion handles DELETE /api/recipes/{id}/versions/{versionId}.
func (h *Recipes) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	versionID, ok := uuidParam(w, r, "versionId")
	if !ok {
		return
	}
	userID, _ := mw.GetUserID(r)
	recipe, err := h.svc.DeleteVersion(r.Context(), id, versionID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, recipe)
}

// Ratings handles GET /api/recipes/{id}/ratings.
func (h *Recipes) Ratings(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	summary, err := h.svc.Ratings(r.Context(), id, mw.ViewerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, summary)
}

// Rate handles POST /api/recipes/{id}/ratings.
func (h *Recipes) Rate(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	userID, _ := mw.GetUserID(r)

	var req struct {
		Rating int `json:"rating" validate:"required,min=1,max=5"`
	}
	if !decode(w, r, &req) {
		return
	}
	summary, err := h.svc.Rate(r.Context(), id, userID, req.Rating)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, summary)
}

// profile is the public part of a user.
type profile struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Alias   *string   `json:"alias"`
	Picture *string   `json:"picture"`
}

type userRecipes struct {
	User    profile          `json:"user"`
	Recipes []*models.Recipe `json:"recipes"`
}

// ByAlias handles GET /api/users/{alias}/recipes.
func (h *Recipes) ByAlias(w http.ResponseWriter, r *http.Request) {
	u, list, err := h.svc.ByAlias(r.Context(), chi.URLParam(r, "alias"), mw.ViewerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, userRecipes{
		User:    profile{ID: u.ID, Name: u.Name, Alias: u.Alias, Picture: u.Picture},
		Recipes: list,
	})
}
