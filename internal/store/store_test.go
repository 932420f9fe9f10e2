package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/recipebox/internal/store"
	"github.com/kiranshivaraju/recipebox/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("recipebox_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	version, dirty, err := store.MigrationVersion(connStr, migrationsDir())
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(3), version)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func createUser(t *testing.T, s store.Store, email string) *models.User {
	t.Helper()
	u, err := s.UpsertOIDCUser(context.Background(), &models.User{
		Email: email, Name: "Test User", OIDCProvider: "google", OIDCSubject: "sub-" + email,
	})
	require.NoError(t, err)
	return u
}

func createRecipe(t *testing.T, s store.Store, userID uuid.UUID, title string) *models.Recipe {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	r := &models.Recipe{
		ID: uuid.New(), UserID: userID, Title: title, IsPublic: true,
		CreatedAt: now, UpdatedAt: now,
	}
	v := &models.RecipeVersion{
		Title: title, Ingredients: "2 eggs\nsalt", Instructions: "Whisk and fry.",
	}
	require.NoError(t, s.CreateRecipe(context.Background(), r, v, nil))
	return r
}

func createImportJob(t *testing.T, s store.Store, userID uuid.UUID, createdAt time.Time) *models.ImportJob {
	t.Helper()
	job := &models.ImportJob{
		ID: uuid.New(), UserID: userID, URL: "https://example.com/pancakes",
		Status: models.ImportStatusPending, CreatedAt: createdAt, UpdatedAt: createdAt,
	}
	require.NoError(t, s.CreateImportJob(context.Background(), job))
	return job
}

// --- User Tests ---

func TestUser_UpsertCreatesDisabledUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))

	u := createUser(t, s, "Cook@Example.com")
	assert.Equal(t, "cook@example.com", u.Email)
	assert.False(t, u.IsEnabled)

	again := createUser(t, s, "cook@example.com")
	assert.Equal(t, u.ID, again.ID)
}

func TestUser_AliasUnique(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	a := createUser(t, s, "a@example.com")
	b := createUser(t, s, "b@example.com")

	require.NoError(t, s.SetUserAlias(ctx, a.ID, "chef"))
	err := s.SetUserAlias(ctx, b.ID, "chef")
	assert.ErrorIs(t, err, store.ErrDuplicateKey)

	got, err := s.GetUserByAlias(ctx, "chef")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}

func TestUser_EnableAndListPending(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	a := createUser(t, s, "a@example.com")
	createUser(t, s, "b@example.com")

	require.NoError(t, s.SetUserEnabled(ctx, a.ID, true))

	pending, err := s.ListUsers(ctx, true)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b@example.com", pending[0].Email)

	all, err := s.ListUsers(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.ErrorIs(t, s.SetUserEnabled(ctx, uuid.New(), true), store.ErrNotFound)
}

// --- API Key Tests ---

func TestAPIKey_CreateListRevoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	u := createUser(t, s, "keys@example.com")

	key := &models.APIKey{
		ID: uuid.New(), UserID: u.ID, Name: "laptop", KeyHash: "bcrypt-hash-here",
		KeyPrefix: "rb_abcd", CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, "rb_abcd")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)

	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))
	listed, err := s.ListAPIKeys(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.NotNil(t, listed[0].LastUsedAt)

	require.NoError(t, s.RevokeAPIKey(ctx, key.ID, u.ID))
	assert.ErrorIs(t, s.RevokeAPIKey(ctx, key.ID, u.ID), store.ErrNotFound)

	keys, err = s.GetAPIKeyByPrefix(ctx, "rb_abcd")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

// --- Tag Tests ---

func TestTag_CRUD(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	tag := &models.Tag{ID: uuid.New(), Name: "breakfast", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateTag(ctx, tag))

	dup := &models.Tag{ID: uuid.New(), Name: "breakfast", CreatedAt: time.Now().UTC()}
	assert.ErrorIs(t, s.CreateTag(ctx, dup), store.ErrDuplicateKey)

	updated, err := s.UpdateTag(ctx, tag.ID, "brunch")
	require.NoError(t, err)
	assert.Equal(t, "brunch", updated.Name)

	_, err = s.UpdateTag(ctx, uuid.New(), "x")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.DeleteTag(ctx, tag.ID))
	_, err = s.GetTag(ctx, tag.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Recipe Tests ---

func TestRecipe_CreateSetsCurrentVersion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	u := createUser(t, s, "cook@example.com")

	r := createRecipe(t, s, u.ID, "Omelette")

	got, err := s.GetRecipe(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentVersionID)
	require.NotNil(t, got.CurrentVersion)
	assert.Equal(t, "Original", got.CurrentVersion.Name)
	assert.Equal(t, "2 eggs\nsalt", got.CurrentVersion.Ingredients)
}

func TestRecipe_DuplicateTitle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	u := createUser(t, s, "cook@example.com")
	createRecipe(t, s, u.ID, "Omelette")

	now := time.Now().UTC()
	err := s.CreateRecipe(context.Background(),
		&models.Recipe{ID: uuid.New(), UserID: u.ID, Title: "Omelette", CreatedAt: now, UpdatedAt: now},
		&models.RecipeVersion{Title: "Omelette"}, nil)
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestRecipe_ListFiltersByKeyword(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	u := createUser(t, s, "cook@example.com")
	createRecipe(t, s, u.ID, "Omelette")
	createRecipe(t, s, u.ID, "Tomato Soup")

	recipes, total, err := s.ListRecipes(ctx, store.RecipeFilter{Keywords: []string{"soup"}, PublicOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, recipes, 1)
	assert.Equal(t, "Tomato Soup", recipes[0].Title)
	require.NotNil(t, recipes[0].Author)
	assert.Equal(t, u.ID, recipes[0].Author.ID)

	// "eggs" only appears in ingredients
	recipes, total, err = s.ListRecipes(ctx, store.RecipeFilter{Keywords: []string{"eggs"}})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, recipes, 2)
}

func TestRecipe_DeleteRemovesDependents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	u := createUser(t, s, "cook@example.com")
	r := createRecipe(t, s, u.ID, "Omelette")

	tag := &models.Tag{ID: uuid.New(), Name: "eggs", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateTag(ctx, tag))
	require.NoError(t, s.SetRecipeTags(ctx, r.ID, []uuid.UUID{tag.ID}))
	require.NoError(t, s.UpsertRating(ctx, r.ID, u.ID, 4))
	_, err := pool.Exec(ctx,
		`INSERT INTO comments (id, recipe_id, user_id, body) VALUES ($1, $2, $3, 'yum')`, uuid.New(), r.ID, u.ID)
	require.NoError(t, err)

	require.NoError(t, s.DeleteRecipe(ctx, r.ID))

	_, err = s.GetRecipe(ctx, r.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	for _, table := range []string{"ratings", "comments", "recipe_versions", "recipe_tags"} {
		var n int
		require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n))
		assert.Zero(t, n, table)
	}

	// the tag itself survives
	_, err = s.GetTag(ctx, tag.ID)
	assert.NoError(t, err)

	assert.ErrorIs(t, s.DeleteRecipe(ctx, r.ID), store.ErrNotFound)
}

func TestRecipe_DeleteCurrentVersionFallsBack(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	u := createUser(t, s, "cook@example.com")
	r := createRecipe(t, s, u.ID, "Omelette")
	original := *r.CurrentVersionID

	v2 := &models.RecipeVersion{
		RecipeID: r.ID, Name: "Spicy", Title: "Omelette", Ingredients: "2 eggs\nchili",
		Instructions: "Whisk and fry.", CreatedAt: time.Now().UTC().Add(time.Second),
	}
	require.NoError(t, s.CreateRecipeVersion(ctx, v2))
	r.CurrentVersionID = &v2.ID
	r.UpdatedAt = time.Now().UTC()
	require.NoError(t, s.UpdateRecipe(ctx, r))

	require.NoError(t, s.DeleteRecipeVersion(ctx, r.ID, v2.ID))

	got, err := s.GetRecipe(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentVersionID)
	assert.Equal(t, original, *got.CurrentVersionID)

	assert.ErrorIs(t, s.DeleteRecipeVersion(ctx, r.ID, v2.ID), store.ErrNotFound)
}

func TestRating_UpsertAndSummary(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	a := createUser(t, s, "a@example.com")
	b := createUser(t, s, "b@example.com")
	r := createRecipe(t, s, a.ID, "Omelette")

	empty, err := s.GetRatingSummary(ctx, r.ID, &a.ID)
	require.NoError(t, err)
	assert.Nil(t, empty.Average)
	assert.Nil(t, empty.User)

	require.NoError(t, s.UpsertRating(ctx, r.ID, a.ID, 2))
	require.NoError(t, s.UpsertRating(ctx, r.ID, a.ID, 5))
	require.NoError(t, s.UpsertRating(ctx, r.ID, b.ID, 3))

	summary, err := s.GetRatingSummary(ctx, r.ID, &a.ID)
	require.NoError(t, err)
	require.NotNil(t, summary.Average)
	assert.InDelta(t, 4.0, *summary.Average, 0.001)
	assert.Equal(t, 2, summary.Count)
	require.NotNil(t, summary.User)
	assert.Equal(t, 5, *summary.User)
}

// --- Analysis Tests ---

func TestAnalysis_FindAndUpdate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	u := createUser(t, s, "cook@example.com")
	older := createRecipe(t, s, u.ID, "Omelette")
	time.Sleep(10 * time.Millisecond)
	newer := createRecipe(t, s, u.ID, "Soup")

	ids, err := s.FindRecipesNeedingAnalysis(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{newer.ID, older.ID}, ids)

	err = s.UpdateRecipeAnalysis(ctx, newer.ID, models.RecipeAnalysisUpdate{
		EstimatedTime: "30", Difficulty: "Easy", TimeReasoning: "quick", DifficultyReasoning: "simple",
	})
	require.NoError(t, err)

	ids, err = s.FindRecipesNeedingAnalysis(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{older.ID}, ids)

	got, err := s.GetRecipe(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, "30", *got.EstimatedTime)
	assert.Equal(t, "Easy", *got.Difficulty)

	err = s.UpdateRecipeAnalysis(ctx, newer.ID, models.RecipeAnalysisUpdate{EstimatedTime: "90", Difficulty: "Advanced"})
	assert.ErrorIs(t, err, store.ErrAlreadyAnalyzed)

	err = s.UpdateRecipeAnalysis(ctx, uuid.New(), models.RecipeAnalysisUpdate{EstimatedTime: "90", Difficulty: "Advanced"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Import Job Tests ---

func TestImportJob_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	u := createUser(t, s, "cook@example.com")
	job := createImportJob(t, s, u.ID, time.Now().UTC())

	got, err := s.GetImportJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusPending, got.Status)
	assert.Nil(t, got.Result)
	assert.Nil(t, got.Error)

	require.NoError(t, s.UpdateImportJobStatus(ctx, job.ID, models.ImportStatusProcessing))

	result := &models.ImportedRecipe{Title: "Pancakes", Ingredients: "flour", Instructions: "mix", Tags: []string{"breakfast"}}
	require.NoError(t, s.UpdateImportJobStatus(ctx, job.ID, models.ImportStatusCompleted, store.WithResult(result)))

	got, err = s.GetImportJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "Pancakes", got.Result.Title)
	assert.Equal(t, []string{"breakfast"}, got.Result.Tags)
	assert.Nil(t, got.Error)
}

func TestImportJob_FailedCarriesError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	u := createUser(t, s, "cook@example.com")
	job := createImportJob(t, s, u.ID, time.Now().UTC())

	require.NoError(t, s.UpdateImportJobStatus(ctx, job.ID, models.ImportStatusProcessing))
	require.NoError(t, s.UpdateImportJobStatus(ctx, job.ID, models.ImportStatusFailed,
		store.WithErrorMessage("AI service returned status 500")))

	got, err := s.GetImportJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "AI service returned status 500", *got.Error)
	assert.Nil(t, got.Result)
}

func TestImportJob_InvalidTransitions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	u := createUser(t, s, "cook@example.com")
	job := createImportJob(t, s, u.ID, time.Now().UTC())

	tests := []struct {
		name   string
		status string
		opts   []store.ImportJobUpdateOption
	}{
		{"pending to completed", models.ImportStatusCompleted, nil},
		{"pending to failed", models.ImportStatusFailed, nil},
		{"back to pending", models.ImportStatusPending, nil},
		{"result on processing", models.ImportStatusProcessing, []store.ImportJobUpdateOption{store.WithResult(&models.ImportedRecipe{Title: "x"})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.UpdateImportJobStatus(ctx, job.ID, tt.status, tt.opts...)
			assert.ErrorIs(t, err, store.ErrInvalidTransition)
		})
	}

	require.NoError(t, s.UpdateImportJobStatus(ctx, job.ID, models.ImportStatusProcessing))
	require.NoError(t, s.UpdateImportJobStatus(ctx, job.ID, models.ImportStatusFailed, store.WithErrorMessage("boom")))

	// terminal states never move again
	err := s.UpdateImportJobStatus(ctx, job.ID, models.ImportStatusCompleted, store.WithResult(&models.ImportedRecipe{Title: "x"}))
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestImportJob_ConcurrentClaimHasOneWinner(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	u := createUser(t, s, "cook@example.com")
	job := createImportJob(t, s, u.ID, time.Now().UTC())

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.UpdateImportJobStatus(ctx, job.ID, models.ImportStatusProcessing)
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, store.ErrInvalidTransition)
	}
	assert.Equal(t, 1, wins)
}

func TestImportJob_UpdateAfterDeleteIsNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	u := createUser(t, s, "cook@example.com")
	job := createImportJob(t, s, u.ID, time.Now().UTC())
	require.NoError(t, s.UpdateImportJobStatus(ctx, job.ID, models.ImportStatusProcessing))

	require.NoError(t, s.DeleteImportJob(ctx, job.ID))

	err := s.UpdateImportJobStatus(ctx, job.ID, models.ImportStatusCompleted, store.WithResult(&models.ImportedRecipe{Title: "x"}))
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetImportJob(ctx, job.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteImportJob(ctx, job.ID), store.ErrNotFound)
}

func TestImportJob_ListNewestFirst(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	u := createUser(t, s, "cook@example.com")
	other := createUser(t, s, "other@example.com")
	now := time.Now().UTC().Truncate(time.Microsecond)

	first := createImportJob(t, s, u.ID, now.Add(-2*time.Hour))
	second := createImportJob(t, s, u.ID, now.Add(-time.Hour))
	createImportJob(t, s, other.ID, now)

	jobs, err := s.ListImportJobsByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID)
	assert.Equal(t, first.ID, jobs[1].ID)
}

func TestImportJob_DeleteCreatedBefore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()
	u := createUser(t, s, "cook@example.com")
	now := time.Now().UTC()

	old := createImportJob(t, s, u.ID, now.Add(-8*24*time.Hour))
	recent := createImportJob(t, s, u.ID, now.Add(-6*24*time.Hour))

	n, err := s.DeleteImportJobsCreatedBefore(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetImportJob(ctx, old.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetImportJob(ctx, recent.ID)
	assert.NoError(t, err)
}

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	assert.NoError(t, s.Ping(context.Background()))
}
