package sweep

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabuten/sweep-cli/internal/fetch"
	"github.com/kabuten/sweep-cli/internal/model"
)

func roster(n int) []model.Company {
	companies := make([]model.Company, 0, n)
	for i := 0; i < n; i++ {
		companies = append(companies, model.Company{
			ID:   fmt.Sprintf("c%03d", i),
			Name: fmt.Sprintf("Company %d", i),
		})
	}
	return companies
}

func TestPartition(t *testing.T) {
	s := NewScheduler(nil, 8, nil)
	companies := roster(230)

	page, total := s.Partition(companies, 1)
	assert.Equal(t, 29, total)
	require.Len(t, page, 8)
	assert.Equal(t, "c000", page[0].ID)

	// Last batch holds the remainder: 230 = 28*8 + 6.
	page, _ = s.Partition(companies, 29)
	assert.Len(t, page, 6)
	assert.Equal(t, "c229", page[5].ID)

	// Out of range either way.
	page, _ = s.Partition(companies, 30)
	assert.Nil(t, page)
	page, _ = s.Partition(companies, 0)
	assert.Nil(t, page)
}

func TestPartitionDeterministic(t *testing.T) {
	s := NewScheduler(nil, 8, nil)
	companies := roster(20)

	// Reversed input order yields the same batches.
	reversed := make([]model.Company, len(companies))
	for i, c := range companies {
		reversed[len(companies)-1-i] = c
	}

	a, _ := s.Partition(companies, 2)
	b, _ := s.Partition(reversed, 2)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
	}
}

func TestEligibleWeeklyJurisdiction(t *testing.T) {
	s := NewScheduler(nil, 8, map[string]time.Weekday{"US": time.Monday})
	s.now = func() time.Time {
		// A Wednesday.
		return time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	}

	ok, reason := s.Eligible(model.Company{ID: "a", Jurisdiction: "JP"})
	assert.True(t, ok)
	assert.Empty(t, reason)

	ok, reason = s.Eligible(model.Company{ID: "b", Jurisdiction: "US"})
	assert.False(t, ok)
	assert.Contains(t, reason, "Monday")

	s.now = func() time.Time {
		// A Monday.
		return time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	}
	ok, _ = s.Eligible(model.Company{ID: "b", Jurisdiction: "US"})
	assert.True(t, ok)
}

func TestRunBatchOutOfRange(t *testing.T) {
	s := NewScheduler(nil, 8, nil)

	report := s.RunBatch(context.Background(), roster(230), 30)
	assert.Equal(t, 30, report.BatchNumber)
	assert.Equal(t, 29, report.TotalBatches)
	assert.Equal(t, 230, report.TotalCompanies)
	assert.Empty(t, report.Results)
	assert.Contains(t, report.Message, "out of range")
}

func TestRunBatchSkipsIneligible(t *testing.T) {
	st := newTestStore(t)
	oracle := &scriptedOracle{}
	engine := testEngine(t, st, oracle, fixedFetcher{source: fetch.SourceCompanyIR, content: "page"})

	jp := swornCompany(fetch.SourceCompanyIR)
	us := swornCompany(fetch.SourceCompanyIR)
	us.ID = "usco"
	us.Name = "US Co"
	us.Jurisdiction = "US"
	seedCompany(t, st, jp)
	seedCompany(t, st, us)

	s := NewScheduler(engine, 8, map[string]time.Weekday{"US": time.Monday})
	s.now = func() time.Time {
		return time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC) // Wednesday
	}

	report := s.RunBatch(context.Background(), []model.Company{jp, us}, 1)
	require.Len(t, report.Results, 2)

	byID := map[string]model.SweepLog{}
	for _, r := range report.Results {
		byID[r.CompanyID] = r
	}
	assert.Equal(t, model.SweepStatusSuccess, byID["acme"].Status)
	assert.Equal(t, model.SweepStatusSkipped, byID["usco"].Status)
	assert.Contains(t, byID["usco"].SkipReason, "Monday")

	// Only the eligible company hit the oracle.
	assert.Len(t, oracle.calls, 1)
}
