package sweep

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kabuten/sweep-cli/internal/model"
)

// Scheduler slices the company roster into deterministic numbered
// batches and applies the weekly-jurisdiction eligibility rule.
type Scheduler struct {
	engine      *Engine
	pageSize    int
	weeklyRules map[string]time.Weekday
	now         func() time.Time
}

// NewScheduler creates a Scheduler. weeklyRules maps a jurisdiction to
// the single weekday its companies are swept; jurisdictions absent from
// the map sweep every day.
func NewScheduler(engine *Engine, pageSize int, weeklyRules map[string]time.Weekday) *Scheduler {
	if pageSize <= 0 {
		pageSize = 8
	}
	return &Scheduler{
		engine:      engine,
		pageSize:    pageSize,
		weeklyRules: weeklyRules,
		now:         time.Now,
	}
}

// Partition returns the companies in batch n (1-indexed) plus the total
// batch count. Companies are ordered by ID so the same roster always
// yields the same batches regardless of store iteration order.
func (s *Scheduler) Partition(companies []model.Company, n int) ([]model.Company, int) {
	sorted := make([]model.Company, len(companies))
	copy(sorted, companies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	total := (len(sorted) + s.pageSize - 1) / s.pageSize
	if n < 1 || n > total {
		return nil, total
	}
	lo := (n - 1) * s.pageSize
	hi := lo + s.pageSize
	if hi > len(sorted) {
		hi = len(sorted)
	}
	return sorted[lo:hi], total
}

// Eligible reports whether the company sweeps today, with a skip reason
// when it does not.
func (s *Scheduler) Eligible(c model.Company) (bool, string) {
	day, ok := s.weeklyRules[c.Jurisdiction]
	if !ok {
		return true, ""
	}
	today := s.now().UTC().Weekday()
	if today == day {
		return true, ""
	}
	return false, fmt.Sprintf("jurisdiction %s sweeps on %s only", c.Jurisdiction, day)
}

// RunBatch sweeps batch n of the roster. Ineligible companies appear in
// the report as skipped; an out-of-range batch number returns an empty
// report with an explanatory message rather than an error, so a cron
// stepping through batch numbers can overshoot harmlessly.
func (s *Scheduler) RunBatch(ctx context.Context, companies []model.Company, n int) model.BatchReport {
	page, total := s.Partition(companies, n)
	report := model.BatchReport{
		BatchNumber:    n,
		PageSize:       s.pageSize,
		TotalBatches:   total,
		TotalCompanies: len(companies),
	}
	if page == nil {
		report.Message = fmt.Sprintf("batch %d is out of range: %d companies make %d batches of %d", n, len(companies), total, s.pageSize)
		return report
	}

	zap.L().Info("batch started",
		zap.Int("batch", n),
		zap.Int("total_batches", total),
		zap.Int("companies", len(page)),
	)

	for _, c := range page {
		if ok, reason := s.Eligible(c); !ok {
			report.Results = append(report.Results, model.SweepLog{
				CompanyID:   c.ID,
				CompanyName: c.Name,
				Status:      model.SweepStatusSkipped,
				SkipReason:  reason,
			})
			continue
		}
		report.Results = append(report.Results, s.engine.SweepCompany(ctx, c))
	}
	return report
}
