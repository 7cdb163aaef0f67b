package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/kabuten/sweep-cli/internal/fetch"
	"github.com/kabuten/sweep-cli/internal/sector"
	"github.com/kabuten/sweep-cli/internal/store"
	"github.com/kabuten/sweep-cli/internal/sweep"
	"github.com/kabuten/sweep-cli/pkg/anthropic"
)

// env bundles the wired components shared by the commands.
type env struct {
	Store      store.Store
	Oracle     anthropic.Client
	Pacer      *fetch.Pacer
	Engine     *sweep.Engine
	Scheduler  *sweep.Scheduler
	Aggregator *sector.Aggregator
}

func (e *env) Close() {
	_ = e.Store.Close()
}

// initEnv opens the store, runs migrations, and wires the sweep engine
// from the loaded config.
func initEnv(ctx context.Context) (*env, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key is required (SWEEP_ANTHROPIC_KEY)")
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	oracle := anthropic.NewClient(cfg.Anthropic.Key)
	pacer := fetch.NewPacer(cfg.Fetch.OraclePace())

	httpClient := fetch.NewHTTPClient(fetch.HTTPOptions{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.Fetch.Timeout(),
		MaxChars:  cfg.Sweep.DirectMaxChars,
	})
	edinet := fetch.NewEdinetClient(httpClient, cfg.Fetch.EdinetKey,
		fetch.WithEdinetBaseURL(cfg.Fetch.EdinetBaseURL),
		fetch.WithEdinetWindow(cfg.Fetch.EdinetWindowDay),
	)
	wsOpts := fetch.WebSearchOptions{
		Model:    cfg.Anthropic.SweepModel,
		MaxChars: cfg.Sweep.DirectMaxChars,
	}
	registry := fetch.NewRegistry(
		fetch.NewIRPageFetcher(httpClient),
		fetch.NewEdinetFetcher(edinet, cfg.Sweep.DirectMaxChars),
		fetch.NewNewsFetcher(oracle, pacer, wsOpts),
		fetch.NewTwitterFetcher(oracle, pacer, wsOpts),
		fetch.NewTradingViewFetcher(oracle, pacer, wsOpts),
		fetch.NewIndustryFetcher(oracle, pacer, wsOpts),
	)

	var enricher *sweep.Enricher
	if cfg.Sweep.MarketCapEnrich {
		enricher = sweep.NewEnricher(oracle, st, pacer, cfg.Anthropic.SweepModel)
	}

	engine := sweep.NewEngine(
		registry,
		sweep.NewDedup(st, cfg.Sweep.SnapshotMaxChars),
		sweep.NewClassifier(oracle, sweep.ClassifierOptions{
			Model:             cfg.Anthropic.SweepModel,
			MaxCharsPerSource: cfg.Sweep.ClassifierMaxChars,
		}),
		sweep.NewEscalator(oracle, sweep.EscalatorOptions{Model: cfg.Anthropic.DeepModel}),
		sweep.NewWriter(st),
		st,
		enricher,
	)

	weeklyRules, err := cfg.Scheduler.WeeklyRules()
	if err != nil {
		st.Close()
		return nil, err
	}

	return &env{
		Store:      st,
		Oracle:     oracle,
		Pacer:      pacer,
		Engine:     engine,
		Scheduler:  sweep.NewScheduler(engine, cfg.Scheduler.PageSize, weeklyRules),
		Aggregator: sector.NewAggregator(st, oracle, pacer, sector.AggregatorOptions{Model: cfg.Anthropic.SweepModel}),
	}, nil
}
