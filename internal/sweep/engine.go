package sweep

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kabuten/sweep-cli/internal/fetch"
	"github.com/kabuten/sweep-cli/internal/model"
	"github.com/kabuten/sweep-cli/internal/store"
)

// Engine wires the sweep stages together.
type Engine struct {
	registry   *fetch.Registry
	dedup      *Dedup
	classifier *Classifier
	escalator  *Escalator
	writer     *Writer
	store      store.Store
	enricher   *Enricher
}

// NewEngine creates an Engine. enricher may be nil to disable market-cap
// enrichment.
func NewEngine(registry *fetch.Registry, dedup *Dedup, classifier *Classifier, escalator *Escalator, writer *Writer, st store.Store, enricher *Enricher) *Engine {
	return &Engine{
		registry:   registry,
		dedup:      dedup,
		classifier: classifier,
		escalator:  escalator,
		writer:     writer,
		store:      st,
		enricher:   enricher,
	}
}

// SweepCompany runs one company end to end. It never returns an error:
// a failure anywhere still produces an action log entry (so the day is
// accounted for) and an error-status SweepLog. One broken company must
// not take down the batch.
func (e *Engine) SweepCompany(ctx context.Context, c model.Company) model.SweepLog {
	start := time.Now()
	logger := zap.L().With(zap.String("company_id", c.ID), zap.String("company", c.Name))
	logger.Info("sweep started", zap.Strings("sources", c.SweepConfig.Sources))

	if len(c.SweepConfig.Sources) == 0 {
		return model.SweepLog{
			CompanyID:   c.ID,
			CompanyName: c.Name,
			Status:      model.SweepStatusSkipped,
			SkipReason:  "no sources configured",
			DurationMS:  time.Since(start).Milliseconds(),
		}
	}

	results := e.registry.Collect(ctx, c)
	sources := make([]string, 0, len(results))
	for _, r := range results {
		sources = append(sources, r.Source)
		if r.Err != nil {
			logger.Warn("source fetch degraded", zap.String("source", r.Source), zap.Error(r.Err))
		}
	}

	snapshots, err := e.dedup.Record(ctx, c.ID, results)
	if err != nil {
		return e.failSweep(ctx, c, sources, start, err)
	}

	res, err := e.classifier.Classify(ctx, c, snapshots)
	if err != nil {
		return e.failSweep(ctx, c, sources, start, err)
	}

	if res.Severity == model.SeverityMaterial && e.escalator != nil {
		deep, err := e.escalator.Escalate(ctx, c, res)
		if err != nil {
			// The daily finding stands; escalation is best-effort.
			logger.Warn("escalation failed, keeping daily finding", zap.Error(err))
		} else {
			res = deep
		}
	}

	if err := e.writer.Commit(ctx, c, res, sources); err != nil {
		return e.failSweep(ctx, c, sources, start, err)
	}

	if e.enricher != nil {
		if err := e.enricher.Enrich(ctx, c); err != nil {
			// Enrichment is cosmetic; never fail the sweep for it.
			logger.Warn("market cap enrichment failed", zap.Error(err))
		}
	}

	logger.Info("sweep completed",
		zap.String("classification", string(res.Severity)),
		zap.Bool("parse_error", res.ParseError),
		zap.Duration("elapsed", time.Since(start)),
	)
	return model.SweepLog{
		CompanyID:   c.ID,
		CompanyName: c.Name,
		Status:      model.SweepStatusSuccess,
		Severity:    res.Severity,
		Summary:     res.Summary,
		DurationMS:  time.Since(start).Milliseconds(),
	}
}

// failSweep records an error-status outcome. The action log still gets a
// no_change entry so the daily record has no holes, and last_sweep_at is
// left alone: a failed sweep is not a completed sweep.
func (e *Engine) failSweep(ctx context.Context, c model.Company, sources []string, start time.Time, cause error) model.SweepLog {
	zap.L().Error("sweep failed", zap.String("company_id", c.ID), zap.Error(cause))

	if err := e.store.AppendLogEntry(ctx, model.ActionLogEntry{
		CompanyID:      c.ID,
		Severity:       model.SeverityNoChange,
		Summary:        fmt.Sprintf("Sweep failed: %v", cause),
		SourcesChecked: sources,
	}); err != nil {
		zap.L().Error("could not record sweep failure", zap.String("company_id", c.ID), zap.Error(err))
	}

	return model.SweepLog{
		CompanyID:   c.ID,
		CompanyName: c.Name,
		Status:      model.SweepStatusError,
		Severity:    model.SeverityNoChange,
		Error:       cause.Error(),
		DurationMS:  time.Since(start).Milliseconds(),
	}
}

// SweepCompanies runs companies sequentially in the given order.
func (e *Engine) SweepCompanies(ctx context.Context, companies []model.Company) []model.SweepLog {
	logs := make([]model.SweepLog, 0, len(companies))
	for _, c := range companies {
		if ctx.Err() != nil {
			logs = append(logs, model.SweepLog{
				CompanyID:   c.ID,
				CompanyName: c.Name,
				Status:      model.SweepStatusSkipped,
				SkipReason:  "batch deadline exceeded",
			})
			continue
		}
		logs = append(logs, e.SweepCompany(ctx, c))
	}
	return logs
}
