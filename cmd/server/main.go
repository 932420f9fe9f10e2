// Package main is the entrypoint for the RecipeBox API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/recipebox/internal/accounts"
	"github.com/kiranshivaraju/recipebox/internal/aiclient"
	"github.com/kiranshivaraju/recipebox/internal/analysis"
	"github.com/kiranshivaraju/recipebox/internal/api"
	"github.com/kiranshivaraju/recipebox/internal/api/handler"
	mw "github.com/kiranshivaraju/recipebox/internal/api/middleware"
	"github.com/kiranshivaraju/recipebox/internal/api/response"
	"github.com/kiranshivaraju/recipebox/internal/auth"
	"github.com/kiranshivaraju/recipebox/internal/cache"
	"github.com/kiranshivaraju/recipebox/internal/config"
	"github.com/kiranshivaraju/recipebox/internal/images"
	"github.com/kiranshivaraju/recipebox/internal/importer"
	"github.com/kiranshivaraju/recipebox/internal/logging"
	"github.com/kiranshivaraju/recipebox/internal/recipes"
	"github.com/kiranshivaraju/recipebox/internal/store"
	"github.com/kiranshivaraju/recipebox/internal/supervisor"
)

const (
	shutdownTimeout = 30 * time.Second
	rateLimitPerMin = 120

	minWriteTimeout = 30 * time.Second
	// writeMargin leaves room to relay an AI answer that arrives just
	// before the client timeout.
	writeMargin = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", logging.Err(err))
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config. Fail fast on invalid config.
	if err := config.LoadEnvFiles(); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(os.Stdout, cfg.Log, cfg.Server.Env)
	slog.SetDefault(logger)
	slog.Info("config loaded", "env", cfg.Server.Env, "image_store", cfg.Images.Store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")
	pgStore := store.NewPostgresStore(pool)

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. AI service client and image store
	ai := aiclient.NewHTTPClient(cfg.AI.BaseURL, cfg.AI.Timeout)
	if err := ai.Health(ctx); err != nil {
		slog.Warn("ai service not reachable yet", logging.Err(err))
	}

	imageStore, err := newImageStore(ctx, cfg.Images)
	if err != nil {
		return fmt.Errorf("create image store: %w", err)
	}
	imageSvc := images.NewService(imageStore, images.WithMaxBytes(cfg.Images.MaxBytes))

	// 6. Domain services
	importSvc := importer.NewService(pgStore, redisCache, ai,
		importer.WithQueueSize(cfg.Import.QueueSize),
		importer.WithRetention(cfg.Import.Retention),
	)
	recipeSvc := recipes.NewService(pgStore, imageSvc)
	tagSvc := recipes.NewTags(pgStore)
	accountSvc := accounts.NewService(pgStore, cfg.Auth.AdminEmail)

	sessions := auth.NewSessions(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL, cfg.IsProduction())
	flow, err := newLoginFlow(ctx, cfg, redisCache, pgStore, sessions)
	if err != nil {
		return fmt.Errorf("configure google sign-in: %w", err)
	}

	// 7. Build router with dependencies
	router := api.NewRouter(api.Dependencies{
		Auth:        mw.NewAuth(sessions, accountSvc),
		RateLimit:   mw.NewRateLimit(redisCache, rateLimitPerMin),
		CORSOrigins: cfg.Server.CORSAllowedOrigins,
		WebDistDir:  cfg.Server.WebDistDir,

		HealthHandler: healthHandler(pgStore, redisCache),

		Imports:  handler.NewImports(importSvc),
		Recipes:  handler.NewRecipes(recipeSvc),
		Tags:     handler.NewTags(tagSvc),
		Accounts: handler.NewAccounts(accountSvc),
		Login:    handler.NewLogin(flow, sessions, "/"),
		AI:       handler.NewAI(ai),
		Images:   handler.NewImages(imageSvc, cfg.Images.MaxBytes),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(cfg.AI.Timeout),
		IdleTimeout:  60 * time.Second,
	}

	// 8. Supervise the HTTP server and background workers
	tree := supervisor.NewTree(logger, supervisor.TreeConfig{ShutdownTimeout: shutdownTimeout})
	tree.AddWorker(supervisor.Named("import-worker", importSvc))
	if cfg.Analysis.Enabled {
		scheduler := analysis.NewScheduler(pgStore, ai,
			analysis.WithInterval(cfg.Analysis.Interval),
			analysis.WithBatchSize(cfg.Analysis.BatchSize),
			analysis.WithSpacing(cfg.Analysis.Spacing),
		)
		tree.AddWorker(supervisor.Named("analysis-scheduler", scheduler))
	} else {
		slog.Info("recipe analysis disabled")
	}
	tree.AddAPI(supervisor.NewHTTPService(srv, shutdownTimeout))

	slog.Info("server listening", "addr", addr)
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		for _, u := range unstopped {
			slog.Warn("service did not stop in time", "service", u.Name)
		}
	}
	slog.Info("server stopped gracefully")
	return nil
}

// writeTimeout keeps the server from cutting off the synchronous AI proxy
// routes, which wait up to aiTimeout for the AI service.
func writeTimeout(aiTimeout time.Duration) time.Duration {
	if d := aiTimeout + writeMargin; d > minWriteTimeout {
		return d
	}
	return minWriteTimeout
}

func newImageStore(ctx context.Context, cfg config.ImageConfig) (images.Store, error) {
	if cfg.Store == "s3" {
		return images.NewS3Store(ctx, cfg.S3)
	}
	return images.NewLocalStore(cfg.UploadDir)
}

// newLoginFlow returns nil when Google credentials are not configured, in
// which case the sign-in routes answer 501.
func newLoginFlow(ctx context.Context, cfg *config.Config, c cache.Cache, users store.UsersStore, sessions *auth.Sessions) (*auth.Flow, error) {
	if cfg.Auth.GoogleClientID == "" || cfg.Auth.GoogleClientSecret == "" {
		slog.Warn("google sign-in not configured")
		return nil, nil
	}
	provider, err := auth.NewGoogleProvider(ctx, cfg.Auth.GoogleClientID, cfg.Auth.GoogleClientSecret,
		cfg.Server.BaseURL+"/auth/google/callback")
	if err != nil {
		return nil, err
	}
	return auth.NewFlow(provider, c, users, sessions, cfg.Auth.AdminEmail), nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
