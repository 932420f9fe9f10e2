package cli

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/recipebox/internal/importer"
)

var importsCmd = &cobra.Command{
	Use:   "imports",
	Short: "Manage recipe import jobs",
}

var importsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete import jobs past the retention window",
	Long: `Delete import jobs whose creation time is older than the retention
window, whatever their status. Intended to run from cron.

Examples:
  # Use IMPORT_RETENTION (7 days by default)
  recipectl imports cleanup

  # Keep only the last two days
  recipectl imports cleanup --older-than 2d`,
	RunE: runImportsCleanup,
}

func init() {
	rootCmd.AddCommand(importsCmd)
	importsCmd.AddCommand(importsCleanupCmd)
	importsCleanupCmd.Flags().String("older-than", "", "Retention window, e.g. 7d or 168h (default $IMPORT_RETENTION)")
	importsCleanupCmd.Flags().Bool("json", false, "Output as JSON")
}

func runImportsCleanup(cmd *cobra.Command, _ []string) error {
	olderThan, _ := cmd.Flags().GetString("older-than")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	var retention time.Duration
	if olderThan != "" {
		d, err := parseDuration(olderThan)
		if err != nil {
			return fmt.Errorf("invalid --older-than: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid --older-than: must be positive")
		}
		retention = d
	}

	return withEnv(cmd, func(env *Env) error {
		if retention == 0 {
			retention = env.Config.Import.Retention
		}
		svc := importer.NewService(env.Store, nil, nil, importer.WithRetention(retention))
		n, err := svc.CleanupOldImportJobs(cmd.Context(), time.Now())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return json.NewEncoder(out).Encode(map[string]any{
				"deleted":   n,
				"retention": retention.String(),
			})
		}
		fmt.Fprintf(out, "deleted %d import job(s) older than %s\n", n, retention)
		return nil
	})
}

// parseDuration accepts Go durations plus a whole-day form such as "7d".
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 0 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
