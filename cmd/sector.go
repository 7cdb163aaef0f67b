package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kabuten/sweep-cli/internal/sector"
)

var sectorKey string

var sectorCmd = &cobra.Command{
	Use:   "sectors",
	Short: "Roll today's company findings up into sector views",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		sectors, err := sector.LoadSectors(cfg.Sector.ConfigPath)
		if err != nil {
			return err
		}
		if sectorKey != "" {
			sectors = filterSectors(sectors, sectorKey)
			if len(sectors) == 0 {
				zap.L().Warn("sector not found", zap.String("sector", sectorKey))
			}
		}

		companies, err := e.Store.ListCompanies(ctx)
		if err != nil {
			return err
		}

		outcomes := e.Aggregator.RunAll(ctx, sectors, companies)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcomes)
	},
}

func filterSectors(sectors []sector.Sector, key string) []sector.Sector {
	for _, s := range sectors {
		if s.Key == key {
			return []sector.Sector{s}
		}
	}
	return nil
}

func init() {
	sectorCmd.Flags().StringVar(&sectorKey, "sector", "", "run a single sector by key")
	rootCmd.AddCommand(sectorCmd)
}
