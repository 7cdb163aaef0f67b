package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/kabuten/sweep-cli/internal/store"
)

var (
	logCompanyID string
	logLimit     int
	logOffset    int
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent action log entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		// Read-only: open the store directly, no oracle needed.
		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		entries, err := st.QueryLog(ctx, store.LogFilter{
			CompanyID: logCompanyID,
			Limit:     logLimit,
			Offset:    logOffset,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	},
}

func init() {
	logCmd.Flags().StringVar(&logCompanyID, "company", "", "filter by company ID")
	logCmd.Flags().IntVar(&logLimit, "limit", 50, "maximum entries")
	logCmd.Flags().IntVar(&logOffset, "offset", 0, "entries to skip")
	rootCmd.AddCommand(logCmd)
}
