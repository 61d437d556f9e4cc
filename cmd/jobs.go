package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/icp-analyzer/internal/model"
	"github.com/sells-group/icp-analyzer/internal/store"
)

var (
	jobsState string
	jobsLimit int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect stored analysis jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		jobs, err := st.ListJobs(ctx, store.JobFilter{
			State: model.JobState(jobsState),
			Limit: jobsLimit,
		})
		if err != nil {
			return err
		}

		for _, j := range jobs {
			fmt.Printf("%s  %-17s  %-12s  %d urls  %s\n",
				j.ID, j.State, j.Request.Mode, len(j.Request.URLs),
				j.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("%d job(s)\n", len(jobs))
		return nil
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Print one job as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

var jobsDeliveriesCmd = &cobra.Command{
	Use:   "deliveries <job-id>",
	Short: "List webhook delivery attempts for a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		recs, err := st.ListDeliveries(ctx, args[0])
		if err != nil {
			return err
		}

		for _, r := range recs {
			status := "failed"
			if r.Success {
				status = "delivered"
			} else if r.Permanent {
				status = "rejected"
			}
			fmt.Printf("%s  %-9s  %d attempt(s)  %s  %s\n",
				r.CreatedAt.Format("2006-01-02 15:04:05"), status, r.Attempts, r.URL, r.Error)
		}
		fmt.Printf("%d delivery record(s)\n", len(recs))
		return nil
	},
}

func init() {
	jobsCmd.Flags().StringVar(&jobsState, "state", "", "filter by job state")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 50, "maximum jobs to list")
	jobsCmd.AddCommand(jobsGetCmd)
	jobsCmd.AddCommand(jobsDeliveriesCmd)
	rootCmd.AddCommand(jobsCmd)
}
