package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/kabuten/sweep-cli/internal/model"
)

func writeOnboardingSheet(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Companies")
	require.NoError(t, err)
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "onboarding.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestParseOnboardingSheet(t *testing.T) {
	path := writeOnboardingSheet(t, [][]string{
		{"id", "name", "ticker", "sector", "jurisdiction", "view", "conviction", "sources", "focus", "ir_url", "edinet_code", "thesis"},
		{"acme", "Acme Robotics", "6501.T", "industrials", "JP", "bullish", "high", "company_ir, edinet", "order intake", "https://acme.example.com/ir", "E01234", "Margin expansion."},
		{"beta", "Beta Machine", "", "", "", "", "", "reuters_nikkei", "", "", "", ""},
	})

	companies, err := parseOnboardingSheet(path)
	require.NoError(t, err)
	require.Len(t, companies, 2)

	acme := companies[0]
	assert.Equal(t, "acme", acme.ID)
	assert.Equal(t, "6501.T", acme.Ticker)
	assert.Equal(t, model.StanceBullish, acme.View)
	assert.Equal(t, model.ConvictionHigh, acme.Conviction)
	assert.Equal(t, []string{"company_ir", "edinet"}, acme.SweepConfig.Sources)
	assert.Equal(t, []string{"order intake"}, acme.SweepConfig.Focus)
	assert.Equal(t, "E01234", acme.SweepConfig.EdinetCode)
	assert.Equal(t, "Margin expansion.", acme.Profile.Thesis)

	// Unspecified view/conviction default to neutral/medium.
	beta := companies[1]
	assert.Equal(t, model.StanceNeutral, beta.View)
	assert.Equal(t, model.ConvictionMedium, beta.Conviction)
}

func TestParseOnboardingSheetErrors(t *testing.T) {
	t.Run("missing required column", func(t *testing.T) {
		path := writeOnboardingSheet(t, [][]string{
			{"name", "sources"},
			{"Acme", "company_ir"},
		})
		_, err := parseOnboardingSheet(path)
		assert.ErrorContains(t, err, `"id"`)
	})

	t.Run("unknown source", func(t *testing.T) {
		path := writeOnboardingSheet(t, [][]string{
			{"id", "name", "sources"},
			{"acme", "Acme", "rss_feed"},
		})
		_, err := parseOnboardingSheet(path)
		assert.ErrorContains(t, err, "rss_feed")
	})

	t.Run("row missing name", func(t *testing.T) {
		path := writeOnboardingSheet(t, [][]string{
			{"id", "name"},
			{"acme", ""},
		})
		_, err := parseOnboardingSheet(path)
		assert.ErrorContains(t, err, "missing id or name")
	})

	t.Run("no data rows", func(t *testing.T) {
		path := writeOnboardingSheet(t, [][]string{{"id", "name"}})
		_, err := parseOnboardingSheet(path)
		assert.Error(t, err)
	})
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a , b "))
	assert.Nil(t, splitList(""))
}
