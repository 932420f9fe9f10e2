// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/recipebox/internal/store"
	"github.com/kiranshivaraju/recipebox/pkg/models"
)

type rating struct {
	recipeID, userID uuid.UUID
	value            int
}

// Memory is a goroutine-safe in-memory store. It mirrors the Postgres
// store's error contract: ErrNotFound, ErrDuplicateKey, ErrInvalidTransition
// and ErrAlreadyAnalyzed are returned in the same situations.
type Memory struct {
	mu         sync.Mutex
	users      map[uuid.UUID]*models.User
	keys       map[uuid.UUID]*models.APIKey
	recipes    map[uuid.UUID]*models.Recipe
	versions   map[uuid.UUID]*models.RecipeVersion
	tags       map[uuid.UUID]*models.Tag
	recipeTags map[uuid.UUID][]uuid.UUID
	ratings    []rating
	jobs       map[uuid.UUID]*models.ImportJob

	// PingErr is returned by Ping when set.
	PingErr error
}

var _ store.Store = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		users:      map[uuid.UUID]*models.User{},
		keys:       map[uuid.UUID]*models.APIKey{},
		recipes:    map[uuid.UUID]*models.Recipe{},
		versions:   map[uuid.UUID]*models.RecipeVersion{},
		tags:       map[uuid.UUID]*models.Tag{},
		recipeTags: map[uuid.UUID][]uuid.UUID{},
		jobs:       map[uuid.UUID]*models.ImportJob{},
	}
}

func (m *Memory) Ping(_ context.Context) error { return m.PingErr }

// --- users ---

// AddUser inserts u as is, assigning an id if it has none.
func (m *Memory) AddUser(u *models.User) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.Email = strings.ToLower(u.Email)
	cp := *u
	m.users[u.ID] = &cp
	return u
}

func (m *Memory) UpsertOIDCUser(_ context.Context, user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	cp := *user
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.Email = email
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	m.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *Memory) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) GetUserByAlias(_ context.Context, alias string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Alias != nil && *u.Alias == alias {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Memory) SetUserAlias(_ context.Context, id uuid.UUID, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	for _, other := range m.users {
		if other.ID != id && other.Alias != nil && *other.Alias == alias {
			return store.ErrDuplicateKey
		}
	}
	u.Alias = &alias
	return nil
}

func (m *Memory) SetUserEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.IsEnabled = enabled
	return nil
}

func (m *Memory) ListUsers(_ context.Context, pendingOnly bool) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.User{}
	for _, u := range m.users {
		if pendingOnly && u.IsEnabled {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- api keys ---

func (m *Memory) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.APIKey
	for _, k := range m.keys {
		if k.KeyPrefix == prefix && k.RevokedAt == nil {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.keys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
	}
	return nil
}

func (m *Memory) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *key
	m.keys[key.ID] = &cp
	return nil
}

func (m *Memory) ListAPIKeys(_ context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.APIKey{}
	for _, k := range m.keys {
		if k.UserID == userID && k.RevokedAt == nil {
			cp := *k
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) RevokeAPIKey(_ context.Context, id uuid.UUID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.UserID != userID || k.RevokedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	k.RevokedAt = &now
	return nil
}

// --- recipes ---

func (m *Memory) matches(r *models.Recipe, kw string) bool {
	kw = strings.ToLower(kw)
	if strings.Contains(strings.ToLower(r.Title), kw) {
		return true
	}
	if r.Description != nil && strings.Contains(strings.ToLower(*r.Description), kw) {
		return true
	}
	for _, v := range m.versions {
		if v.RecipeID == r.ID && (strings.Contains(strings.ToLower(v.Ingredients), kw) ||
			strings.Contains(strings.ToLower(v.Instructions), kw)) {
			return true
		}
	}
	return false
}

func (m *Memory) ListRecipes(_ context.Context, f store.RecipeFilter) ([]*models.Recipe, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keywords []string
	for _, kw := range f.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	var all []*models.Recipe
	for _, r := range m.recipes {
		if f.PublicOnly && !r.IsPublic {
			continue
		}
		if f.UserID != nil && r.UserID != *f.UserID {
			continue
		}
		if len(keywords) > 0 {
			hit := false
			for _, kw := range keywords {
				if m.matches(r, kw) {
					hit = true
					break
				}
			}
			if !hit {
				continue
			}
		}
		cp := *r
		if u, ok := m.users[r.UserID]; ok {
			author := *u
			cp.Author = &author
		}
		cp.AverageRating = m.average(r.ID)
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	limit, page := f.Limit, f.Page
	if limit <= 0 {
		limit = 12
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	out := []*models.Recipe{}
	for i := start; i < len(all) && i < start+limit; i++ {
		out = append(out, all[i])
	}
	return out, len(all), nil
}

func (m *Memory) GetRecipe(_ context.Context, id uuid.UUID) (*models.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	if r.CurrentVersionID != nil {
		if v, ok := m.versions[*r.CurrentVersionID]; ok {
			vc := *v
			cp.CurrentVersion = &vc
		}
	}
	return &cp, nil
}

func (m *Memory) ListRecipeVersions(_ context.Context, recipeID uuid.UUID) ([]models.RecipeVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.RecipeVersion{}
	for _, v := range m.versions {
		if v.RecipeID == recipeID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListRecipeTags(_ context.Context, recipeID uuid.UUID) ([]models.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Tag{}
	for _, id := range m.recipeTags[recipeID] {
		if t, ok := m.tags[id]; ok {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) titleTaken(title string, except uuid.UUID) bool {
	for _, r := range m.recipes {
		if r.ID != except && r.Title == title {
			return true
		}
	}
	return false
}

func (m *Memory) CreateRecipe(_ context.Context, recipe *models.Recipe, version *models.RecipeVersion, tagIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.titleTaken(recipe.Title, recipe.ID) {
		return store.ErrDuplicateKey
	}
	if version.Name == "" {
		version.Name = "Original"
	}
	version.RecipeID = recipe.ID
	recipe.CurrentVersionID = &version.ID

	rc := *recipe
	rc.CurrentVersion, rc.Versions, rc.Tags, rc.Author, rc.AverageRating = nil, nil, nil, nil, nil
	m.recipes[recipe.ID] = &rc
	vc := *version
	m.versions[version.ID] = &vc
	m.recipeTags[recipe.ID] = append([]uuid.UUID(nil), tagIDs...)
	return nil
}

func (m *Memory) UpdateRecipe(_ context.Context, recipe *models.Recipe) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipes[recipe.ID]
	if !ok {
		return store.ErrNotFound
	}
	if m.titleTaken(recipe.Title, recipe.ID) {
		return store.ErrDuplicateKey
	}
	r.Title = recipe.Title
	r.Description = recipe.Description
	r.ImageURL = recipe.ImageURL
	r.IsPublic = recipe.IsPublic
	r.CurrentVersionID = recipe.CurrentVersionID
	r.EstimatedTime = recipe.EstimatedTime
	r.Difficulty = recipe.Difficulty
	r.UpdatedAt = recipe.UpdatedAt
	return nil
}

func (m *Memory) CreateRecipeVersion(_ context.Context, version *models.RecipeVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recipes[version.RecipeID]; !ok {
		return fmt.Errorf("create recipe version: %w", store.ErrNotFound)
	}
	vc := *version
	m.versions[version.ID] = &vc
	return nil
}

func (m *Memory) UpdateRecipeVersion(_ context.Context, version *models.RecipeVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[version.ID]
	if !ok || v.RecipeID != version.RecipeID {
		return store.ErrNotFound
	}
	created := v.CreatedAt
	*v = *version
	v.CreatedAt = created
	return nil
}

func (m *Memory) SetRecipeTags(_ context.Context, recipeID uuid.UUID, tagIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recipeTags[recipeID] = append([]uuid.UUID(nil), tagIDs...)
	return nil
}

func (m *Memory) DeleteRecipe(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recipes[id]; !ok {
		return store.ErrNotFound
	}
	kept := m.ratings[:0]
	for _, r := range m.ratings {
		if r.recipeID != id {
			kept = append(kept, r)
		}
	}
	m.ratings = kept
	for vid, v := range m.versions {
		if v.RecipeID == id {
			delete(m.versions, vid)
		}
	}
	delete(m.recipeTags, id)
	delete(m.recipes, id)
	return nil
}

func (m *Memory) DeleteRecipeVersion(_ context.Context, recipeID, versionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[versionID]
	if !ok || v.RecipeID != recipeID {
		return store.ErrNotFound
	}
	delete(m.versions, versionID)
	r := m.recipes[recipeID]
	if r != nil && r.CurrentVersionID != nil && *r.CurrentVersionID == versionID {
		r.CurrentVersionID = nil
		var newest *models.RecipeVersion
		for _, other := range m.versions {
			if other.RecipeID == recipeID && (newest == nil || other.CreatedAt.After(newest.CreatedAt)) {
				newest = other
			}
		}
		if newest != nil {
			id := newest.ID
			r.CurrentVersionID = &id
		}
	}
	return nil
}

func (m *Memory) FindRecipesNeedingAnalysis(_ context.Context, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 10
	}
	var candidates []*models.Recipe
	for _, r := range m.recipes {
		if r.NeedsAnalysis() {
			candidates = append(candidates, r)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.After(candidates[j].CreatedAt) })
	ids := []uuid.UUID{}
	for i := 0; i < len(candidates) && i < limit; i++ {
		ids = append(ids, candidates[i].ID)
	}
	return ids, nil
}

func (m *Memory) UpdateRecipeAnalysis(_ context.Context, id uuid.UUID, u models.RecipeAnalysisUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipes[id]
	if !ok {
		return store.ErrNotFound
	}
	if r.EstimatedTime != nil || r.Difficulty != nil {
		return store.ErrAlreadyAnalyzed
	}
	et, d, tr, dr := u.EstimatedTime, u.Difficulty, u.TimeReasoning, u.DifficultyReasoning
	r.EstimatedTime, r.Difficulty, r.TimeReasoning, r.DifficultyReasoning = &et, &d, &tr, &dr
	if u.Description != nil {
		desc := *u.Description
		r.Description = &desc
	}
	return nil
}

func (m *Memory) average(recipeID uuid.UUID) *float64 {
	sum, n := 0, 0
	for _, r := range m.ratings {
		if r.recipeID == recipeID {
			sum += r.value
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := float64(sum) / float64(n)
	return &avg
}

func (m *Memory) UpsertRating(_ context.Context, recipeID, userID uuid.UUID, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.ratings {
		if m.ratings[i].recipeID == recipeID && m.ratings[i].userID == userID {
			m.ratings[i].value = value
			return nil
		}
	}
	m.ratings = append(m.ratings, rating{recipeID: recipeID, userID: userID, value: value})
	return nil
}

func (m *Memory) GetRatingSummary(_ context.Context, recipeID uuid.UUID, userID *uuid.UUID) (*models.RatingSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &models.RatingSummary{Average: m.average(recipeID)}
	for _, r := range m.ratings {
		if r.recipeID != recipeID {
			continue
		}
		s.Count++
		if userID != nil && r.userID == *userID {
			v := r.value
			s.User = &v
		}
	}
	return s, nil
}

// --- tags ---

func (m *Memory) ListTags(_ context.Context) ([]*models.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Tag{}
	for _, t := range m.tags {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) GetTag(_ context.Context, id uuid.UUID) (*models.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tags[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) tagNameTaken(name string, except uuid.UUID) bool {
	for _, t := range m.tags {
		if t.ID != except && t.Name == name {
			return true
		}
	}
	return false
}

func (m *Memory) CreateTag(_ context.Context, tag *models.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tagNameTaken(tag.Name, tag.ID) {
		return store.ErrDuplicateKey
	}
	cp := *tag
	m.tags[tag.ID] = &cp
	return nil
}

func (m *Memory) UpdateTag(_ context.Context, id uuid.UUID, name string) (*models.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tags[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if m.tagNameTaken(name, id) {
		return nil, store.ErrDuplicateKey
	}
	t.Name = name
	cp := *t
	return &cp, nil
}

func (m *Memory) DeleteTag(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tags[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.tags, id)
	for rid, ids := range m.recipeTags {
		kept := ids[:0]
		for _, tid := range ids {
			if tid != id {
				kept = append(kept, tid)
			}
		}
		m.recipeTags[rid] = kept
	}
	return nil
}

// --- import jobs ---

var importTransitions = map[string]string{
	models.ImportStatusProcessing: models.ImportStatusPending,
	models.ImportStatusCompleted:  models.ImportStatusProcessing,
	models.ImportStatusFailed:     models.ImportStatusProcessing,
}

func (m *Memory) CreateImportJob(_ context.Context, job *models.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *Memory) GetImportJob(_ context.Context, id uuid.UUID) (*models.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *Memory) ListImportJobsByUser(_ context.Context, userID uuid.UUID) ([]*models.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.ImportJob{}
	for _, j := range m.jobs {
		if j.UserID == userID {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateImportJobStatus(_ context.Context, id uuid.UUID, status string, opts ...store.ImportJobUpdateOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	from, known := importTransitions[status]
	if !known || j.Status != from {
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, j.Status, status)
	}
	result, errMsg := store.ResolveImportJobUpdate(opts...)
	j.Status = status
	j.Result = result
	j.Error = errMsg
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) DeleteImportJob(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.jobs, id)
	return nil
}

func (m *Memory) DeleteImportJobsCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, j := range m.jobs {
		if j.CreatedAt.Before(cutoff) {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}
