package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabuten/sweep-cli/internal/config"
	"github.com/kabuten/sweep-cli/internal/fetch"
	"github.com/kabuten/sweep-cli/internal/model"
	"github.com/kabuten/sweep-cli/internal/sector"
	"github.com/kabuten/sweep-cli/internal/store"
	"github.com/kabuten/sweep-cli/internal/sweep"
	"github.com/kabuten/sweep-cli/pkg/anthropic"
)

type noChangeOracle struct{}

func (noChangeOracle) CreateMessage(context.Context, anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{
		Type: "text",
		Text: `{"classification":"NO_CHANGE","summary":"Sweep completed: no changes detected"}`,
	}}}, nil
}

type staticFetcher struct{}

func (staticFetcher) Source() string { return fetch.SourceCompanyIR }
func (staticFetcher) Fetch(context.Context, model.Company) (string, error) {
	return "ir page", nil
}

func testServeEnv(t *testing.T) *env {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	oracle := noChangeOracle{}
	pacer := fetch.NewPacer(0)
	engine := sweep.NewEngine(
		fetch.NewRegistry(staticFetcher{}),
		sweep.NewDedup(st, 50000),
		sweep.NewClassifier(oracle, sweep.ClassifierOptions{Model: "m"}),
		nil,
		sweep.NewWriter(st),
		st,
		nil,
	)
	return &env{
		Store:      st,
		Oracle:     oracle,
		Pacer:      pacer,
		Engine:     engine,
		Scheduler:  sweep.NewScheduler(engine, 8, nil),
		Aggregator: sector.NewAggregator(st, oracle, pacer, sector.AggregatorOptions{Model: "m"}),
	}
}

func seedServeCompany(t *testing.T, e *env) {
	t.Helper()
	require.NoError(t, e.Store.UpsertCompany(context.Background(), model.Company{
		ID:          "acme",
		Name:        "Acme Robotics",
		Sector:      "industrials",
		View:        model.StanceBullish,
		Conviction:  model.ConvictionMedium,
		Profile:     model.Profile{Narrative: &model.Narrative{EarningsTrend: "x"}, Outlook: &model.Outlook{Fundamentals: "y"}},
		SweepConfig: model.SweepConfig{Sources: []string{fetch.SourceCompanyIR}},
	}))
}

func TestServeHealth(t *testing.T) {
	srv := httptest.NewServer(newRouter(testServeEnv(t), ""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServeBearerAuth(t *testing.T) {
	e := testServeEnv(t)
	seedServeCompany(t, e)
	srv := httptest.NewServer(newRouter(e, "secret"))
	defer srv.Close()

	body := func() *strings.Reader { return strings.NewReader(`{"company_id":"acme"}`) }

	// No token: rejected.
	resp, err := http.Post(srv.URL+"/sweep/run", "application/json", body())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong token: rejected.
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/sweep/run", body())
	req.Header.Set("Authorization", "Bearer nope")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Right token: accepted.
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/sweep/run", body())
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Query surface stays open.
	resp, err = http.Get(srv.URL + "/action-log")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServeSweepRunValidation(t *testing.T) {
	e := testServeEnv(t)
	srv := httptest.NewServer(newRouter(e, ""))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/sweep/run", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/sweep/run", "application/json", strings.NewReader(`{"company_id":"ghost"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeSweepBatch(t *testing.T) {
	e := testServeEnv(t)
	seedServeCompany(t, e)
	srv := httptest.NewServer(newRouter(e, ""))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/sweep/batch", "application/json", strings.NewReader(`{"batch":1}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/sweep/batch", "application/json", strings.NewReader(`{"batch":0}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServeSectorsSweep(t *testing.T) {
	e := testServeEnv(t)
	seedServeCompany(t, e)

	path := filepath.Join(t.TempDir(), "sectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"sectors:\n  - key: jp-industrials\n    label: JP Industrials\n    company_sectors: [industrials]\n"), 0o644))

	prev := cfg
	cfg = &config.Config{Sector: config.SectorConfig{ConfigPath: path}}
	t.Cleanup(func() { cfg = prev })

	srv := httptest.NewServer(newRouter(e, ""))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/sectors/sweep", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
