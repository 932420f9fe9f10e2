package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kiranshivaraju/recipebox/pkg/models"
)

const recipeColumns = `r.id, r.user_id, r.title, r.description, r.image_url, r.is_public, r.current_version_id,
	r.estimated_time, r.difficulty, r.time_reasoning, r.difficulty_reasoning, r.created_at, r.updated_at`

const versionColumns = `id, recipe_id, name, title, description, ingredients, instructions, image_url, created_at`

func recipeScanTargets(r *models.Recipe) []any {
	return []any{&r.ID, &r.UserID, &r.Title, &r.Description, &r.ImageURL, &r.IsPublic, &r.CurrentVersionID,
		&r.EstimatedTime, &r.Difficulty, &r.TimeReasoning, &r.DifficultyReasoning, &r.CreatedAt, &r.UpdatedAt}
}

func scanVersion(row pgx.Row) (models.RecipeVersion, error) {
	var v models.RecipeVersion
	err := row.Scan(&v.ID, &v.RecipeID, &v.Name, &v.Title, &v.Description, &v.Ingredients,
		&v.Instructions, &v.ImageURL, &v.CreatedAt)
	return v, err
}

// --- Recipes ---

func (s *PostgresStore) ListRecipes(ctx context.Context, filter RecipeFilter) ([]*models.Recipe, int, error) {
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.PublicOnly {
		conditions = append(conditions, "r.is_public = TRUE")
	}
	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("r.user_id = $%d", argIdx))
		args = append(args, *filter.UserID)
		argIdx++
	}

	var keywordConds []string
	for _, kw := range filter.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		keywordConds = append(keywordConds, fmt.Sprintf(
			`(r.title ILIKE $%[1]d OR r.description ILIKE $%[1]d OR EXISTS (
			   SELECT 1 FROM recipe_versions v WHERE v.recipe_id = r.id
			   AND (v.ingredients ILIKE $%[1]d OR v.instructions ILIKE $%[1]d)))`, argIdx))
		args = append(args, "%"+kw+"%")
		argIdx++
	}
	if len(keywordConds) > 0 {
		conditions = append(conditions, "("+strings.Join(keywordConds, " OR ")+")")
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM recipes r WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count recipes: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 12
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT %s, u.id, u.name, u.email,
		   (SELECT AVG(value)::float8 FROM ratings rt WHERE rt.recipe_id = r.id)
		 FROM recipes r JOIN users u ON u.id = r.user_id
		 WHERE %s ORDER BY r.created_at DESC LIMIT $%d OFFSET $%d`,
		recipeColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list recipes: %w", err)
	}
	defer rows.Close()

	recipes := []*models.Recipe{}
	for rows.Next() {
		var r models.Recipe
		var author models.User
		targets := append(recipeScanTargets(&r), &author.ID, &author.Name, &author.Email, &r.AverageRating)
		if err := rows.Scan(targets...); err != nil {
			return nil, 0, fmt.Errorf("scan recipe: %w", err)
		}
		r.Author = &author
		recipes = append(recipes, &r)
	}
	return recipes, total, rows.Err()
}

// GetRecipe loads a recipe together with its current version, if any.
func (s *PostgresStore) GetRecipe(ctx context.Context, id uuid.UUID) (*models.Recipe, error) {
	var r models.Recipe
	err := s.pool.QueryRow(ctx,
		`SELECT `+recipeColumns+` FROM recipes r WHERE r.id = $1`, id,
	).Scan(recipeScanTargets(&r)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipe: %w", err)
	}

	if r.CurrentVersionID != nil {
		v, err := scanVersion(s.pool.QueryRow(ctx,
			`SELECT `+versionColumns+` FROM recipe_versions WHERE id = $1`, *r.CurrentVersionID))
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get current version: %w", err)
		}
		if err == nil {
			r.CurrentVersion = &v
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRecipeVersions(ctx context.Context, recipeID uuid.UUID) ([]models.RecipeVersion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+versionColumns+` FROM recipe_versions WHERE recipe_id = $1 ORDER BY created_at`, recipeID)
	if err != nil {
		return nil, fmt.Errorf("list recipe versions: %w", err)
	}
	defer rows.Close()

	versions := []models.RecipeVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipe version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *PostgresStore) ListRecipeTags(ctx context.Context, recipeID uuid.UUID) ([]models.Tag, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT t.id, t.name, t.created_at FROM tags t
		 JOIN recipe_tags rt ON rt.tag_id = t.id
		 WHERE rt.recipe_id = $1 ORDER BY t.name`, recipeID)
	if err != nil {
		return nil, fmt.Errorf("list recipe tags: %w", err)
	}
	defer rows.Close()

	tags := []models.Tag{}
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// CreateRecipe inserts the recipe, its initial version and tag links in one
// transaction, and points the recipe at that version.
func (s *PostgresStore) CreateRecipe(ctx context.Context, recipe *models.Recipe, version *models.RecipeVersion, tagIDs []uuid.UUID) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO recipes (id, user_id, title, description, image_url, is_public,
			   estimated_time, difficulty, time_reasoning, difficulty_reasoning, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			recipe.ID, recipe.UserID, recipe.Title, recipe.Description, recipe.ImageURL, recipe.IsPublic,
			recipe.EstimatedTime, recipe.Difficulty, recipe.TimeReasoning, recipe.DifficultyReasoning,
			recipe.CreatedAt, recipe.UpdatedAt)
		if err != nil {
			return err
		}

		version.RecipeID = recipe.ID
		if err := insertVersion(ctx, tx, version); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE recipes SET current_version_id = $2 WHERE id = $1`, recipe.ID, version.ID); err != nil {
			return err
		}
		recipe.CurrentVersionID = &version.ID

		return replaceTags(ctx, tx, recipe.ID, tagIDs)
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create recipe: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateRecipe(ctx context.Context, recipe *models.Recipe) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recipes SET title = $2, description = $3, image_url = $4, is_public = $5,
		   current_version_id = $6, updated_at = $7, estimated_time = $8, difficulty = $9
		 WHERE id = $1`,
		recipe.ID, recipe.Title, recipe.Description, recipe.ImageURL, recipe.IsPublic,
		recipe.CurrentVersionID, recipe.UpdatedAt, recipe.EstimatedTime, recipe.Difficulty)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("update recipe: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateRecipeVersion(ctx context.Context, version *models.RecipeVersion) error {
	if err := insertVersion(ctx, s.pool, version); err != nil {
		return fmt.Errorf("create recipe version: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateRecipeVersion(ctx context.Context, version *models.RecipeVersion) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recipe_versions SET name = $3, title = $4, description = $5, ingredients = $6,
		   instructions = $7, image_url = $8
		 WHERE id = $1 AND recipe_id = $2`,
		version.ID, version.RecipeID, version.Name, version.Title, version.Description,
		version.Ingredients, version.Instructions, version.ImageURL)
	if err != nil {
		return fmt.Errorf("update recipe version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetRecipeTags(ctx context.Context, recipeID uuid.UUID, tagIDs []uuid.UUID) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return replaceTags(ctx, tx, recipeID, tagIDs)
	})
	if err != nil {
		return fmt.Errorf("set recipe tags: %w", err)
	}
	return nil
}

// DeleteRecipe removes a recipe and everything that references it in one
// transaction: ratings, comments, versions, tag links, then the recipe.
func (s *PostgresStore) DeleteRecipe(ctx context.Context, id uuid.UUID) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM ratings WHERE recipe_id = $1`,
			`DELETE FROM comments WHERE recipe_id = $1`,
			`UPDATE recipes SET current_version_id = NULL WHERE id = $1`,
			`DELETE FROM recipe_versions WHERE recipe_id = $1`,
			`DELETE FROM recipe_tags WHERE recipe_id = $1`,
		} {
			if _, err := tx.Exec(ctx, stmt, id); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM recipes WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete recipe: %w", err)
	}
	return nil
}

// DeleteRecipeVersion removes one version. If it was the current version the
// recipe falls back to its newest remaining version.
func (s *PostgresStore) DeleteRecipeVersion(ctx context.Context, recipeID, versionID uuid.UUID) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM recipe_versions WHERE id = $1 AND recipe_id = $2`, versionID, recipeID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx,
			`UPDATE recipes SET current_version_id = (
			   SELECT id FROM recipe_versions WHERE recipe_id = $1 ORDER BY created_at DESC LIMIT 1),
			   updated_at = NOW()
			 WHERE id = $1 AND current_version_id IS NULL`, recipeID)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete recipe version: %w", err)
	}
	return nil
}

// --- Analysis ---

// FindRecipesNeedingAnalysis returns ids of recipes with neither an estimated
// time nor a difficulty that have a current version, newest first.
func (s *PostgresStore) FindRecipesNeedingAnalysis(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM recipes
		 WHERE estimated_time IS NULL AND difficulty IS NULL AND current_version_id IS NOT NULL
		 ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("find recipes needing analysis: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan recipe id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateRecipeAnalysis writes AI metadata only while both fields are still
// unset, so a value a user entered in the meantime is never overwritten.
func (s *PostgresStore) UpdateRecipeAnalysis(ctx context.Context, id uuid.UUID, update models.RecipeAnalysisUpdate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recipes SET estimated_time = $2, difficulty = $3, time_reasoning = $4,
		   difficulty_reasoning = $5, description = COALESCE($6, description), updated_at = NOW()
		 WHERE id = $1 AND estimated_time IS NULL AND difficulty IS NULL`,
		id, update.EstimatedTime, update.Difficulty, update.TimeReasoning, update.DifficultyReasoning,
		update.Description)
	if err != nil {
		return fmt.Errorf("update recipe analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM recipes WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check recipe exists: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrAlreadyAnalyzed
	}
	return nil
}

// --- Ratings ---

func (s *PostgresStore) UpsertRating(ctx context.Context, recipeID, userID uuid.UUID, value int) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ratings (id, recipe_id, user_id, value, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (user_id, recipe_id) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		uuid.New(), recipeID, userID, value, now)
	if err != nil {
		return fmt.Errorf("upsert rating: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRatingSummary(ctx context.Context, recipeID uuid.UUID, userID *uuid.UUID) (*models.RatingSummary, error) {
	var summary models.RatingSummary
	err := s.pool.QueryRow(ctx,
		`SELECT AVG(value)::float8, COUNT(*) FROM ratings WHERE recipe_id = $1`, recipeID,
	).Scan(&summary.Average, &summary.Count)
	if err != nil {
		return nil, fmt.Errorf("get rating summary: %w", err)
	}

	if userID != nil {
		var value int
		err := s.pool.QueryRow(ctx,
			`SELECT value FROM ratings WHERE recipe_id = $1 AND user_id = $2`, recipeID, *userID,
		).Scan(&value)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get user rating: %w", err)
		}
		if err == nil {
			summary.User = &value
		}
	}
	return &summary, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertVersion(ctx context.Context, db execer, v *models.RecipeVersion) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	if v.Name == "" {
		v.Name = "Original"
	}
	_, err := db.Exec(ctx,
		`INSERT INTO recipe_versions (id, recipe_id, name, title, description, ingredients, instructions, image_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		v.ID, v.RecipeID, v.Name, v.Title, v.Description, v.Ingredients, v.Instructions, v.ImageURL, v.CreatedAt)
	return err
}

func replaceTags(ctx context.Context, tx pgx.Tx, recipeID uuid.UUID, tagIDs []uuid.UUID) error {
	if _, err := tx.Exec(ctx, `DELETE FROM recipe_tags WHERE recipe_id = $1`, recipeID); err != nil {
		return err
	}
	for _, tagID := range tagIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO recipe_tags (recipe_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			recipeID, tagID); err != nil {
			return err
		}
	}
	return nil
}
