package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/icp-analyzer/internal/model"
)

var webhookSecret string

var webhookCmd = &cobra.Command{
	Use:   "webhook <url>",
	Short: "Register the webhook endpoint for terminal job notifications",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if _, err := model.NormalizeURL(args[0]); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		reg, err := st.RegisterWebhook(ctx, args[0], webhookSecret)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reg)
	},
}

func init() {
	webhookCmd.Flags().StringVar(&webhookSecret, "secret", "", "HMAC signing secret for deliveries (required)")
	_ = webhookCmd.MarkFlagRequired("secret")
	rootCmd.AddCommand(webhookCmd)
}
