package handler

import (
	"net/http"
	"strings"

	"github.com/kiranshivaraju/recipebox/internal/aiclient"
	"github.com/kiranshivaraju/recipebox/internal/api/response"
	"github.com/kiranshivaraju/recipebox/pkg/models"
)

// AI proxies synchronous calls to the AI service. Upstream error answers
// are relayed with their original status and body.
type AI struct {
	client aiclient.Client
}

func NewAI(client aiclient.Client) *AI {
	return &AI{client: client}
}

// ImportPreview handles POST /api/recipes/import. It extracts a recipe
// without storing anything.
func (h *AI) ImportPreview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if !decode(w, r, &req) {
		return
	}
	url := strings.TrimSpace(req.URL)
	if url == "" {
		response.Error(w, http.StatusBadRequest, "URL_REQUIRED", "URL is required", nil)
		return
	}
	recipe, err := h.client.ImportRecipe(r.Context(), url)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, recipe)
}

// AutoCategory handles POST /api/recipes/auto-category.
func (h *AI) AutoCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title        string   `json:"title"        validate:"required"`
		Description  string   `json:"description"`
		Ingredients  string   `json:"ingredients"  validate:"required"`
		Instructions string   `json:"instructions"`
		ExistingTags []string `json:"existingTags"`
	}
	if !decode(w, r, &req) {
		return
	}
	tags, err := h.client.AutoCategory(r.Context(), models.CategoryRequest{
		Title:        req.Title,
		Description:  req.Description,
		Ingredients:  req.Ingredients,
		Instructions: req.Instructions,
		Tags:         req.ExistingTags,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, map[string][]string{"tags": tags})
}

// Chat handles POST /api/recipes/chat.
func (h *AI) Chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question" validate:"required,max=2000"`
	}
	if !decode(w, r, &req) {
		return
	}
	answer, err := h.client.Chat(r.Context(), req.Question)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, answer)
}
