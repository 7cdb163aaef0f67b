package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kabuten/sweep-cli/internal/model"
)

var runCompanyID string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sweep one company, or the whole roster",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		var logs []model.SweepLog
		if runCompanyID != "" {
			c, err := e.Store.GetCompany(ctx, runCompanyID)
			if err != nil {
				return err
			}
			if c == nil {
				return eris.Errorf("company not found: %s", runCompanyID)
			}
			logs = append(logs, e.Engine.SweepCompany(ctx, *c))
		} else {
			companies, err := e.Store.ListCompanies(ctx)
			if err != nil {
				return err
			}
			logs = e.Engine.SweepCompanies(ctx, companies)
		}

		for _, l := range logs {
			zap.L().Info("sweep result",
				zap.String("company_id", l.CompanyID),
				zap.String("status", string(l.Status)),
				zap.String("classification", string(l.Severity)),
			)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(logs)
	},
}

func init() {
	runCmd.Flags().StringVar(&runCompanyID, "company", "", "sweep a single company by ID")
	rootCmd.AddCommand(runCmd)
}
