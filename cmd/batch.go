package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	batchNumber      int
	batchTimeoutSecs int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Sweep one deterministic batch of the roster",
	Long:  "Companies are sorted by ID and split into fixed pages, so a cron stepping through batch numbers covers everyone exactly once per cycle.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if batchTimeoutSecs > 0 {
			var cancel func()
			ctx, cancel = context.WithTimeout(ctx, time.Duration(batchTimeoutSecs)*time.Second)
			defer cancel()
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		companies, err := e.Store.ListCompanies(ctx)
		if err != nil {
			return err
		}

		report := e.Scheduler.RunBatch(ctx, companies, batchNumber)
		zap.L().Info("batch finished",
			zap.Int("batch", report.BatchNumber),
			zap.Int("total_batches", report.TotalBatches),
			zap.Int("swept", len(report.Results)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchNumber, "number", 1, "batch number (1-indexed)")
	batchCmd.Flags().IntVar(&batchTimeoutSecs, "timeout", 0, "abort the batch after this many seconds (0 = no limit)")
	rootCmd.AddCommand(batchCmd)
}
