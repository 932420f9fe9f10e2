// Package cli implements the recipectl command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/recipebox/internal/aiclient"
	"github.com/kiranshivaraju/recipebox/internal/config"
	"github.com/kiranshivaraju/recipebox/internal/logging"
	"github.com/kiranshivaraju/recipebox/internal/store"
)

// Env is what the data commands run against.
type Env struct {
	Config *config.Config
	Store  store.Store
	AI     aiclient.Client
	Close  func()
}

// openEnv loads configuration and connects to Postgres. Tests replace it.
var openEnv = func(ctx context.Context) (*Env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &Env{
		Config: cfg,
		Store:  store.NewPostgresStore(pool),
		AI:     aiclient.NewHTTPClient(cfg.AI.BaseURL, cfg.AI.Timeout),
		Close:  pool.Close,
	}, nil
}

var rootCmd = &cobra.Command{
	Use:           "recipectl",
	Short:         "RecipeBox maintenance commands",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		if err := config.LoadEnvFiles(envFile); err != nil {
			return err
		}
		level, _ := cmd.Flags().GetString("log-level")
		slog.SetDefault(logging.New(cmd.ErrOrStderr(), config.LogConfig{Level: level, Format: "console"}, "development"))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Load environment variables from this file if it exists")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
}

// Execute runs the command named by the process arguments.
func Execute(ctx context.Context) error {
	rootCmd.SetContext(ctx)
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	}
	return err
}

func withEnv(cmd *cobra.Command, fn func(env *Env) error) error {
	env, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	if env.Close != nil {
		defer env.Close()
	}
	return fn(env)
}
