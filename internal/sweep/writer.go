package sweep

import (
	"context"
	"time"

	"github.com/kabuten/sweep-cli/internal/model"
	"github.com/kabuten/sweep-cli/internal/store"
)

// Writer commits a sweep result: one action log entry always, plus the
// company-row updates the result calls for.
type Writer struct {
	store store.Store
	now   func() time.Time
}

// NewWriter creates a Writer.
func NewWriter(st store.Store) *Writer {
	return &Writer{store: st, now: time.Now}
}

// Commit persists the outcome of a sweep. The log entry is appended
// unconditionally; profile and view changes apply only per the result's
// severity rules. sources lists every source checked this run, not just
// the new ones.
func (w *Writer) Commit(ctx context.Context, c model.Company, res *model.SweepResult, sources []string) error {
	if err := w.store.AppendLogEntry(ctx, model.ActionLogEntry{
		CompanyID:      c.ID,
		Severity:       res.Severity,
		Summary:        res.Summary,
		Detail:         res.Detail,
		SourcesChecked: sources,
		RawResponse:    res.Raw,
	}); err != nil {
		return err
	}

	upd := store.CompanyUpdate{Material: res.Severity == model.SeverityMaterial}

	profile := c.Profile
	changed := false

	if res.ProfileUpdate != nil && res.Severity == model.SeverityMaterial {
		view := *res.ProfileUpdate
		if view.LastUpdated == "" {
			view.LastUpdated = w.now().UTC().Format("2006-01-02")
		}
		profile.InvestmentView = &view
		changed = true
		if view.Stance != "" {
			upd.View = view.Stance
		}
		if view.Conviction != "" {
			upd.Conviction = view.Conviction
		}
	}
	if res.NarrativeUpdate != nil {
		profile.Narrative = res.NarrativeUpdate
		changed = true
	}
	if res.OutlookUpdate != nil {
		profile.Outlook = res.OutlookUpdate
		changed = true
	}
	if changed {
		upd.Profile = &profile
	}

	return w.store.UpdateCompanyAfterSweep(ctx, c.ID, upd)
}
