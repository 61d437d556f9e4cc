package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var exportPlatform string

var exportCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Push a settled job's ICP profile to a CRM platform",
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

		exporter, err := buildExportRegistry().Get(exportPlatform)
		if err != nil {
			return err
		}

		conf, err := exporter.Export(ctx, job)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(conf)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPlatform, "platform", "salesforce", "target CRM: salesforce or hubspot")
	rootCmd.AddCommand(exportCmd)
}
