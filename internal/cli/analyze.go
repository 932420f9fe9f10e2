package cli

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/recipebox/internal/analysis"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run recipe analysis outside the server",
}

var analyzeSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one analysis sweep and exit",
	RunE:  runAnalyzeSweep,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.AddCommand(analyzeSweepCmd)
	analyzeSweepCmd.Flags().Int("batch-size", 0, "Recipes per sweep (default $ANALYSIS_BATCH_SIZE)")
	analyzeSweepCmd.Flags().Duration("spacing", -1, "Pause between recipes (default $ANALYSIS_SPACING)")
	analyzeSweepCmd.Flags().Bool("json", false, "Output as JSON")
}

func runAnalyzeSweep(cmd *cobra.Command, _ []string) error {
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	spacing, _ := cmd.Flags().GetDuration("spacing")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return withEnv(cmd, func(env *Env) error {
		if batchSize <= 0 {
			batchSize = env.Config.Analysis.BatchSize
		}
		if spacing < 0 {
			spacing = env.Config.Analysis.Spacing
		}
		sched := analysis.NewScheduler(env.Store, env.AI,
			analysis.WithBatchSize(batchSize),
			analysis.WithSpacing(spacing),
		)
		res, err := sched.Sweep(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return json.NewEncoder(out).Encode(map[string]int{
				"candidates": res.Candidates,
				"analyzed":   res.Analyzed,
				"skipped":    res.Skipped,
				"failed":     res.Failed,
			})
		}
		fmt.Fprintf(out, "candidates=%d analyzed=%d skipped=%d failed=%d\n",
			res.Candidates, res.Analyzed, res.Skipped, res.Failed)
		return nil
	})
}
