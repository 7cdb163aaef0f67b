package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabuten/sweep-cli/internal/fetch"
)

func TestParseMarketCapUSD(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"12.3 billion USD", 12.3e9},
		{"Approximately $845 million as of today.", 845e6},
		{"Market cap: 1.2 trillion", 1.2e12},
		{"around 3,400 million dollars", 3.4e9},
		{"roughly 5bn", 5e9},
		{"no figure available", 0},
		{"", 0},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, ParseMarketCapUSD(tc.in), tc.want*1e-9+0.1, tc.in)
	}
}

func TestEnrich(t *testing.T) {
	st := newTestStore(t)
	c := seedCompany(t, st, swornCompany(fetch.SourceCompanyIR))

	oracle := &scriptedOracle{responses: []string{"About 12.3 billion USD."}}
	e := NewEnricher(oracle, st, nil, "sweep-model")

	require.NoError(t, e.Enrich(context.Background(), c))

	got, err := st.GetCompany(context.Background(), "acme")
	require.NoError(t, err)
	assert.InDelta(t, 12.3e9, got.MarketCapUSD, 1)

	require.Len(t, oracle.calls, 1)
	assert.NotNil(t, oracle.calls[0].WebSearch)
}

func TestEnrichPaced(t *testing.T) {
	st := newTestStore(t)
	c := seedCompany(t, st, swornCompany(fetch.SourceCompanyIR))

	oracle := &scriptedOracle{responses: []string{"About 12.3 billion USD.", "About 12.3 billion USD."}}
	e := NewEnricher(oracle, st, fetch.NewPacer(100*time.Millisecond), "sweep-model")

	// Market-cap lookups go through the shared oracle pacer like every
	// other web-search call.
	start := time.Now()
	require.NoError(t, e.Enrich(context.Background(), c))
	require.NoError(t, e.Enrich(context.Background(), c))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestEnrichNoFigure(t *testing.T) {
	st := newTestStore(t)
	c := seedCompany(t, st, swornCompany(fetch.SourceCompanyIR))

	oracle := &scriptedOracle{responses: []string{"I could not find a figure."}}
	e := NewEnricher(oracle, st, nil, "sweep-model")
	assert.Error(t, e.Enrich(context.Background(), c))
}
