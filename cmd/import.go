package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/kabuten/sweep-cli/internal/fetch"
	"github.com/kabuten/sweep-cli/internal/model"
	"github.com/kabuten/sweep-cli/internal/store"
)

var importXLSXPath string

// importColumns maps header names (lowercased) to company fields. The
// onboarding sheet layout: id, name, ticker, sector, jurisdiction,
// sources, focus, ir_url, edinet_code.
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import companies from an XLSX onboarding sheet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		companies, err := parseOnboardingSheet(importXLSXPath)
		if err != nil {
			return err
		}

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		for _, c := range companies {
			if err := st.UpsertCompany(ctx, c); err != nil {
				return err
			}
		}

		zap.L().Info("import complete",
			zap.Int("companies", len(companies)),
			zap.String("xlsx", importXLSXPath),
		)
		return nil
	},
}

func parseOnboardingSheet(path string) ([]model.Company, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "import: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("import: workbook has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) < 2 {
		return nil, eris.New("import: sheet has no data rows")
	}

	col := map[string]int{}
	for i, cell := range sheet.Rows[0].Cells {
		col[strings.ToLower(strings.TrimSpace(cell.String()))] = i
	}
	for _, required := range []string{"id", "name"} {
		if _, ok := col[required]; !ok {
			return nil, eris.Errorf("import: missing required column %q", required)
		}
	}

	cellAt := func(row *xlsx.Row, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row.Cells) {
			return ""
		}
		return strings.TrimSpace(row.Cells[i].String())
	}

	var companies []model.Company
	for n, row := range sheet.Rows[1:] {
		id := cellAt(row, "id")
		name := cellAt(row, "name")
		if id == "" && name == "" {
			continue // blank padding row
		}
		if id == "" || name == "" {
			return nil, eris.Errorf("import: row %d is missing id or name", n+2)
		}

		sources := splitList(cellAt(row, "sources"))
		for _, s := range sources {
			if !fetch.KnownSource(s) {
				return nil, eris.Errorf("import: row %d has unknown source %q", n+2, s)
			}
		}

		view := model.StanceNeutral
		if v := cellAt(row, "view"); v != "" {
			view = model.Stance(strings.ToLower(v))
		}
		conviction := model.ConvictionMedium
		if v := cellAt(row, "conviction"); v != "" {
			conviction = model.Conviction(strings.ToLower(v))
		}

		companies = append(companies, model.Company{
			ID:           id,
			Name:         name,
			Ticker:       cellAt(row, "ticker"),
			Sector:       cellAt(row, "sector"),
			Jurisdiction: cellAt(row, "jurisdiction"),
			View:         view,
			Conviction:   conviction,
			Profile: model.Profile{
				Thesis: cellAt(row, "thesis"),
			},
			SweepConfig: model.SweepConfig{
				Sources:    sources,
				Focus:      splitList(cellAt(row, "focus")),
				IRURL:      cellAt(row, "ir_url"),
				EdinetCode: cellAt(row, "edinet_code"),
			},
		})
	}
	if len(companies) == 0 {
		return nil, eris.New("import: no companies in sheet")
	}
	return companies, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	importCmd.Flags().StringVar(&importXLSXPath, "xlsx", "", "path to onboarding XLSX (required)")
	_ = importCmd.MarkFlagRequired("xlsx")
	rootCmd.AddCommand(importCmd)
}
