package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/recipebox/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		url, dir, err := migrateTarget(cmd)
		if err != nil {
			return err
		}
		if err := store.RunMigrations(url, dir); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		url, dir, err := migrateTarget(cmd)
		if err != nil {
			return err
		}
		steps, _ := cmd.Flags().GetInt("steps")
		if steps < 1 {
			return fmt.Errorf("--steps must be at least 1")
		}
		if err := store.RollbackMigrations(url, dir, steps); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		url, dir, err := migrateTarget(cmd)
		if err != nil {
			return err
		}
		version, dirty, err := store.MigrationVersion(url, dir)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if dirty {
			fmt.Fprintf(out, "%d (dirty)\n", version)
			return nil
		}
		fmt.Fprintln(out, version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	migrateCmd.PersistentFlags().String("database-url", "", "Postgres URL (default $DATABASE_URL)")
	migrateCmd.PersistentFlags().String("dir", "", "Migrations directory (default $MIGRATIONS_DIR or ./migrations)")
	migrateDownCmd.Flags().Int("steps", 1, "Number of migrations to roll back")
}

// migrateTarget resolves the database and migrations directory without
// loading the full server configuration.
func migrateTarget(cmd *cobra.Command) (string, string, error) {
	url, _ := cmd.Flags().GetString("database-url")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		return "", "", fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = os.Getenv("MIGRATIONS_DIR")
	}
	if dir == "" {
		dir = "migrations"
	}
	return url, dir, nil
}
