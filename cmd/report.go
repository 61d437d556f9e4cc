package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/icp-analyzer/internal/report"
)

var (
	reportFormat   string
	reportSections []string
	reportCompany  string
)

var reportCmd = &cobra.Command{
	Use:   "report <job-id>",
	Short: "Generate a report artifact for a settled job",
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

		svc, err := buildReportService(ctx)
		if err != nil {
			return err
		}

		ref, err := svc.Generate(ctx, job, report.Options{
			Format:   report.Format(reportFormat),
			Sections: reportSections,
			Branding: report.Branding{CompanyName: reportCompany},
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ref)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "excel", "output format: excel, pdf, pptx, or docx")
	reportCmd.Flags().StringSliceVar(&reportSections, "section", nil, "limit output to the named sections (repeatable)")
	reportCmd.Flags().StringVar(&reportCompany, "company", "", "company name for the report header")
	rootCmd.AddCommand(reportCmd)
}
