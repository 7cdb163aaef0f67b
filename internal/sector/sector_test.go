package sector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabuten/sweep-cli/internal/fetch"
	"github.com/kabuten/sweep-cli/internal/model"
	"github.com/kabuten/sweep-cli/internal/store"
	"github.com/kabuten/sweep-cli/pkg/anthropic"
)

func writeSectorsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSectors(t *testing.T) {
	path := writeSectorsFile(t, `
sectors:
  - key: jp-industrials
    label: JP Industrials
    company_sectors: [industrials, machinery]
    focus:
      - capex cycle
  - key: jp-tech
    label: JP Technology
    company_sectors: [semis]
`)
	sectors, err := LoadSectors(path)
	require.NoError(t, err)
	require.Len(t, sectors, 2)
	assert.Equal(t, "jp-industrials", sectors[0].Key)
	assert.Equal(t, []string{"industrials", "machinery"}, sectors[0].CompanySectors)
	assert.Equal(t, []string{"capex cycle"}, sectors[0].Focus)
}

func TestLoadSectorsValidation(t *testing.T) {
	cases := map[string]string{
		"missing file":  filepath.Join(t.TempDir(), "absent.yaml"),
		"empty":         writeSectorsFile(t, `sectors: []`),
		"no key":        writeSectorsFile(t, "sectors:\n  - label: X\n    company_sectors: [a]"),
		"no label":      writeSectorsFile(t, "sectors:\n  - key: x\n    company_sectors: [a]"),
		"no matches":    writeSectorsFile(t, "sectors:\n  - key: x\n    label: X\n    company_sectors: []"),
		"duplicate key": writeSectorsFile(t, "sectors:\n  - key: x\n    label: X\n    company_sectors: [a]\n  - key: x\n    label: Y\n    company_sectors: [b]"),
		"malformed":     writeSectorsFile(t, "sectors: {not a list"),
	}
	for name, path := range cases {
		_, err := LoadSectors(path)
		assert.Error(t, err, name)
	}
}

func TestMembers(t *testing.T) {
	s := Sector{Key: "jp-industrials", Label: "JP Industrials", CompanySectors: []string{"industrials"}}
	companies := []model.Company{
		{ID: "acme", Sector: "industrials"},
		{ID: "chipco", Sector: "semis"},
	}
	members := s.Members(companies)
	require.Len(t, members, 1)
	assert.Equal(t, "acme", members[0].ID)
}

type scriptedOracle struct {
	responses []string
	calls     []anthropic.MessageRequest
	err       error
}

func (o *scriptedOracle) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	i := len(o.calls)
	o.calls = append(o.calls, req)
	if o.err != nil {
		return nil, o.err
	}
	text := `{"classification":"NO_CHANGE","summary":"Sector sweep completed: no changes detected"}`
	if i < len(o.responses) {
		text = o.responses[i]
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}, nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

var testSector = Sector{
	Key:            "jp-industrials",
	Label:          "JP Industrials",
	CompanySectors: []string{"industrials"},
}

func memberCompanies() []model.Company {
	return []model.Company{
		{ID: "acme", Name: "Acme Robotics", Sector: "industrials", View: model.StanceBullish, Conviction: model.ConvictionMedium,
			Profile: model.Profile{Thesis: "Robotics mix shift."}},
		{ID: "beta", Name: "Beta Machine", Sector: "industrials", View: model.StanceNeutral, Conviction: model.ConvictionLow},
		{ID: "chipco", Name: "ChipCo", Sector: "semis"},
	}
}

func TestRunSectorBootstrap(t *testing.T) {
	st := newTestStore(t)
	oracle := &scriptedOracle{responses: []string{
		`{"stance":"bullish","conviction":"medium","thesis_summary":"Automation demand outruns supply.","valuation_assessment":["below median"],"conviction_rationale":["broad order books"],"key_drivers":["capex cycle"],"key_risks":["yen strength"],"last_updated_reason":"Initial view"}`,
	}}
	a := NewAggregator(st, oracle, fetch.NewPacer(0), AggregatorOptions{Model: "sweep-model"})

	out := a.RunSector(context.Background(), testSector, memberCompanies())
	assert.Equal(t, "success", out.Status)
	assert.Equal(t, model.SeverityMaterial, out.Severity)
	assert.Equal(t, "Initial sector view generated for JP Industrials", out.Summary)

	view, err := st.GetSectorView(context.Background(), "jp-industrials")
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, model.StanceBullish, view.Stance)
	assert.Equal(t, "Automation demand outruns supply.", view.ThesisSummary)

	// Only the two industrials members fed the prompt.
	require.Len(t, oracle.calls, 1)
	user := oracle.calls[0].Messages[0].Content
	assert.Contains(t, user, "Acme Robotics")
	assert.Contains(t, user, "Beta Machine")
	assert.NotContains(t, user, "ChipCo")
}

func TestRunSectorBootstrapBadResponse(t *testing.T) {
	st := newTestStore(t)
	oracle := &scriptedOracle{responses: []string{"not json at all"}}
	a := NewAggregator(st, oracle, fetch.NewPacer(0), AggregatorOptions{Model: "sweep-model"})

	out := a.RunSector(context.Background(), testSector, memberCompanies())
	assert.Equal(t, "error", out.Status)

	// No half-written view.
	view, err := st.GetSectorView(context.Background(), "jp-industrials")
	require.NoError(t, err)
	assert.Nil(t, view)
}

func seedView(t *testing.T, st store.Store) {
	t.Helper()
	require.NoError(t, st.UpsertSectorView(context.Background(), model.SectorView{
		SectorKey:     "jp-industrials",
		Stance:        model.StanceBullish,
		Conviction:    model.ConvictionMedium,
		ThesisSummary: "Automation demand outruns supply.",
	}))
}

func TestRunSectorNoFindingsSkipsOracle(t *testing.T) {
	st := newTestStore(t)
	seedView(t, st)
	// Today only carries a no_change entry, which is not a finding.
	require.NoError(t, st.AppendLogEntry(context.Background(), model.ActionLogEntry{
		CompanyID: "acme",
		Severity:  model.SeverityNoChange,
		Summary:   "Sweep completed: no changes detected",
	}))

	oracle := &scriptedOracle{}
	a := NewAggregator(st, oracle, fetch.NewPacer(0), AggregatorOptions{Model: "sweep-model"})

	out := a.RunSector(context.Background(), testSector, memberCompanies())
	assert.Equal(t, "success", out.Status)
	assert.Equal(t, model.SeverityNoChange, out.Severity)
	assert.Empty(t, oracle.calls)
}

func TestRunSectorSynthesisMaterial(t *testing.T) {
	st := newTestStore(t)
	seedView(t, st)
	require.NoError(t, st.AppendLogEntry(context.Background(), model.ActionLogEntry{
		CompanyID: "acme",
		Severity:  model.SeverityMaterial,
		Summary:   "Guidance cut announced",
		Detail:    &model.SweepDetail{WhatHappened: "FY cut", WhyItMatters: "sector demand signal"},
	}))

	oracle := &scriptedOracle{responses: []string{
		`{"classification":"MATERIAL","summary":"Sector demand weakening","suggested_sector_view_update":{"stance":"neutral","conviction":"medium","thesis_summary":"Demand normalizing.","valuation_assessment":[],"conviction_rationale":[],"key_drivers":[],"key_risks":[],"last_updated_reason":"member guidance cuts"}}`,
	}}
	a := NewAggregator(st, oracle, fetch.NewPacer(0), AggregatorOptions{Model: "sweep-model"})

	out := a.RunSector(context.Background(), testSector, memberCompanies())
	assert.Equal(t, "success", out.Status)
	assert.Equal(t, model.SeverityMaterial, out.Severity)

	view, err := st.GetSectorView(context.Background(), "jp-industrials")
	require.NoError(t, err)
	assert.Equal(t, model.StanceNeutral, view.Stance)
	assert.Equal(t, "member guidance cuts", view.LastUpdatedReason)

	// The finding reached the prompt with the standing view.
	require.Len(t, oracle.calls, 1)
	user := oracle.calls[0].Messages[0].Content
	assert.Contains(t, user, "Guidance cut announced")
	assert.Contains(t, user, "Automation demand outruns supply.")
}

func TestRunSectorSynthesisNotableKeepsView(t *testing.T) {
	st := newTestStore(t)
	seedView(t, st)
	require.NoError(t, st.AppendLogEntry(context.Background(), model.ActionLogEntry{
		CompanyID: "beta",
		Severity:  model.SeverityNotable,
		Summary:   "Midsize order win",
	}))

	oracle := &scriptedOracle{responses: []string{
		`{"classification":"NOTABLE","summary":"Order momentum continues"}`,
	}}
	a := NewAggregator(st, oracle, fetch.NewPacer(0), AggregatorOptions{Model: "sweep-model"})

	out := a.RunSector(context.Background(), testSector, memberCompanies())
	assert.Equal(t, "success", out.Status)
	assert.Equal(t, model.SeverityNotable, out.Severity)

	view, err := st.GetSectorView(context.Background(), "jp-industrials")
	require.NoError(t, err)
	assert.Equal(t, model.StanceBullish, view.Stance)
}

func TestRunSectorNoMembers(t *testing.T) {
	st := newTestStore(t)
	a := NewAggregator(st, &scriptedOracle{}, fetch.NewPacer(0), AggregatorOptions{Model: "sweep-model"})

	out := a.RunSector(context.Background(), testSector, []model.Company{{ID: "chipco", Sector: "semis"}})
	assert.Equal(t, "skipped", out.Status)
}

func TestRunSectorTransportError(t *testing.T) {
	st := newTestStore(t)
	a := NewAggregator(st, &scriptedOracle{err: eris.New("api down")}, fetch.NewPacer(0), AggregatorOptions{Model: "sweep-model"})

	out := a.RunSector(context.Background(), testSector, memberCompanies())
	assert.Equal(t, "error", out.Status)
	assert.Contains(t, out.Error, "api down")
}

func TestRunAll(t *testing.T) {
	st := newTestStore(t)
	oracle := &scriptedOracle{responses: []string{
		`{"stance":"bullish","conviction":"medium","thesis_summary":"T.","valuation_assessment":[],"conviction_rationale":[],"key_drivers":[],"key_risks":[],"last_updated_reason":"init"}`,
	}}
	a := NewAggregator(st, oracle, fetch.NewPacer(0), AggregatorOptions{Model: "sweep-model"})

	second := Sector{Key: "jp-tech", Label: "JP Technology", CompanySectors: []string{"semis-nomatch"}}
	outcomes := a.RunAll(context.Background(), []Sector{testSector, second}, memberCompanies())
	require.Len(t, outcomes, 2)
	assert.Equal(t, "success", outcomes[0].Status)
	assert.Equal(t, "skipped", outcomes[1].Status)
}
