package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/icp-analyzer/internal/model"
)

var (
	analyzeURLs     []string
	analyzeMode     string
	analyzeDaysBack int
	analyzeAdvanced bool
	analyzeWebhook  string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one analysis job and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		orch, err := buildOrchestrator(st)
		if err != nil {
			return err
		}

		job, err := orch.Submit(ctx, model.AnalysisRequest{
			URLs:            analyzeURLs,
			Mode:            model.Mode(analyzeMode),
			DaysBack:        analyzeDaysBack,
			IncludeAdvanced: analyzeAdvanced,
			WebhookURL:      analyzeWebhook,
		})
		if err != nil {
			return err
		}

		settled, err := orch.Run(ctx, job)
		if err != nil {
			return eris.Wrap(err, "run job")
		}

		zap.L().Info("analysis complete",
			zap.String("job_id", settled.ID),
			zap.String("state", string(settled.State)),
			zap.Int("failed_urls", failedURLCount(settled)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(settled)
	},
}

// failedURLCount tolerates jobs with no result, e.g. cancelled runs.
func failedURLCount(job *model.Job) int {
	if job.Result == nil {
		return 0
	}
	return len(job.Result.FailedURLs)
}

func init() {
	analyzeCmd.Flags().StringSliceVar(&analyzeURLs, "url", nil, "testimonial page URL (repeatable)")
	analyzeCmd.Flags().StringVar(&analyzeMode, "mode", "single", "analysis mode: single, comparative, or competitive")
	analyzeCmd.Flags().IntVar(&analyzeDaysBack, "days-back", 0, "trend baseline window in days (competitive mode)")
	analyzeCmd.Flags().BoolVar(&analyzeAdvanced, "advanced", false, "include model-generated insights")
	analyzeCmd.Flags().StringVar(&analyzeWebhook, "webhook-url", "", "override the registered webhook for this job")
	_ = analyzeCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(analyzeCmd)
}
