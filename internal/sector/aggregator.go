package sector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kabuten/sweep-cli/internal/fetch"
	"github.com/kabuten/sweep-cli/internal/model"
	"github.com/kabuten/sweep-cli/internal/store"
	"github.com/kabuten/sweep-cli/pkg/anthropic"
)

// Outcome is the caller-facing result of one sector pass.
type Outcome struct {
	SectorKey string         `json:"sector_key"`
	Status    string         `json:"status"` // success | error | skipped
	Severity  model.Severity `json:"classification,omitempty"`
	Summary   string         `json:"summary,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// AggregatorOptions configures the sector synthesis pass.
type AggregatorOptions struct {
	Model     string
	MaxTokens int64
}

// Aggregator synthesizes a sector view from its members' standing
// profiles and the day's non-trivial findings.
type Aggregator struct {
	store  store.Store
	client anthropic.Client
	pacer  *fetch.Pacer
	opts   AggregatorOptions
}

// NewAggregator creates an Aggregator. The pacer spaces out the oracle
// call of consecutive sectors.
func NewAggregator(st store.Store, client anthropic.Client, pacer *fetch.Pacer, opts AggregatorOptions) *Aggregator {
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	return &Aggregator{store: st, client: client, pacer: pacer, opts: opts}
}

// RunAll passes over every sector in order.
func (a *Aggregator) RunAll(ctx context.Context, sectors []Sector, companies []model.Company) []Outcome {
	outcomes := make([]Outcome, 0, len(sectors))
	for _, s := range sectors {
		outcomes = append(outcomes, a.RunSector(ctx, s, companies))
	}
	return outcomes
}

// RunSector runs one sector. Like a company sweep it never returns an
// error: failures become error-status outcomes so one sector cannot
// block the rest.
func (a *Aggregator) RunSector(ctx context.Context, s Sector, companies []model.Company) Outcome {
	logger := zap.L().With(zap.String("sector", s.Key))

	members := s.Members(companies)
	if len(members) == 0 {
		logger.Info("sector skipped", zap.String("reason", "no member companies"))
		return Outcome{SectorKey: s.Key, Status: "skipped", Summary: "no member companies"}
	}
	logger.Info("sector pass started", zap.Int("members", len(members)))

	view, err := a.store.GetSectorView(ctx, s.Key)
	if err != nil {
		return a.fail(s, err)
	}

	if view == nil {
		return a.bootstrap(ctx, s, members)
	}
	return a.synthesize(ctx, s, view, members)
}

// bootstrap generates the first standing view for a sector from its
// members' profiles. Logged as material: the view coming into existence
// is itself the event.
func (a *Aggregator) bootstrap(ctx context.Context, s Sector, members []model.Company) Outcome {
	if err := a.pacer.Wait(ctx); err != nil {
		return a.fail(s, eris.Wrap(err, "sector: pacer wait"))
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.opts.Model,
		MaxTokens: a.opts.MaxTokens,
		System:    []anthropic.SystemBlock{{Text: bootstrapInstructions}},
		Messages:  []anthropic.Message{{Role: "user", Content: a.bootstrapContent(s, members)}},
	})
	if err != nil {
		return a.fail(s, eris.Wrapf(err, "sector: bootstrap %s", s.Key))
	}
	resp.Usage.LogCost(a.opts.Model, "sector bootstrap")

	detail, err := decodeViewDetail(resp.Text())
	if err != nil {
		return a.fail(s, err)
	}

	if err := a.store.UpsertSectorView(ctx, viewFromDetail(s.Key, detail, "Initial sector view")); err != nil {
		return a.fail(s, err)
	}

	summary := fmt.Sprintf("Initial sector view generated for %s", s.Label)
	detailJSON, _ := json.Marshal(detail)
	if err := a.store.AppendSectorLog(ctx, model.SectorLogEntry{
		SectorKey:        s.Key,
		Severity:         model.SeverityMaterial,
		Summary:          summary,
		RelatedCompanies: companyIDs(members),
		Detail:           detailJSON,
	}); err != nil {
		return a.fail(s, err)
	}

	zap.L().Info("sector view bootstrapped", zap.String("sector", s.Key), zap.Int("members", len(members)))
	return Outcome{SectorKey: s.Key, Status: "success", Severity: model.SeverityMaterial, Summary: summary}
}

// synthesize folds today's company findings into the standing view.
func (a *Aggregator) synthesize(ctx context.Context, s Sector, view *model.SectorView, members []model.Company) Outcome {
	findings, err := a.todaysFindings(ctx, members)
	if err != nil {
		return a.fail(s, err)
	}

	if len(findings) == 0 {
		// Nothing to fold in; skip the oracle but keep the daily record.
		summary := "Sector sweep completed: no changes detected"
		if err := a.store.AppendSectorLog(ctx, model.SectorLogEntry{
			SectorKey: s.Key,
			Severity:  model.SeverityNoChange,
			Summary:   summary,
		}); err != nil {
			return a.fail(s, err)
		}
		return Outcome{SectorKey: s.Key, Status: "success", Severity: model.SeverityNoChange, Summary: summary}
	}

	if err := a.pacer.Wait(ctx); err != nil {
		return a.fail(s, eris.Wrap(err, "sector: pacer wait"))
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.opts.Model,
		MaxTokens: a.opts.MaxTokens,
		System:    []anthropic.SystemBlock{{Text: synthesisInstructions}},
		Messages:  []anthropic.Message{{Role: "user", Content: a.synthesisContent(s, view, findings)}},
	})
	if err != nil {
		return a.fail(s, eris.Wrapf(err, "sector: synthesize %s", s.Key))
	}
	resp.Usage.LogCost(a.opts.Model, "sector synthesis")

	syn := model.DecodeSectorSynthesis(resp.Text())

	if syn.Severity == model.SeverityMaterial && syn.ViewUpdate != nil {
		reason := syn.ViewUpdate.LastUpdatedReason
		if reason == "" {
			reason = syn.Summary
		}
		if err := a.store.UpsertSectorView(ctx, viewFromDetail(s.Key, syn.ViewUpdate, reason)); err != nil {
			return a.fail(s, err)
		}
	}

	related := make([]string, 0, len(findings))
	for _, f := range findings {
		related = append(related, f.CompanyID)
	}
	if err := a.store.AppendSectorLog(ctx, model.SectorLogEntry{
		SectorKey:        s.Key,
		Severity:         syn.Severity,
		Summary:          syn.Summary,
		RelatedCompanies: related,
		Detail:           syn.Detail,
	}); err != nil {
		return a.fail(s, err)
	}

	zap.L().Info("sector synthesized",
		zap.String("sector", s.Key),
		zap.String("classification", string(syn.Severity)),
		zap.Int("findings", len(findings)),
	)
	return Outcome{SectorKey: s.Key, Status: "success", Severity: syn.Severity, Summary: syn.Summary}
}

// todaysFindings returns today's notable and material entries for the
// member companies. no_change entries carry no signal worth folding in.
func (a *Aggregator) todaysFindings(ctx context.Context, members []model.Company) ([]model.ActionLogEntry, error) {
	entries, err := a.store.TodayResultsForCompanies(ctx, companyIDs(members))
	if err != nil {
		return nil, err
	}
	var findings []model.ActionLogEntry
	for _, e := range entries {
		if e.Severity != model.SeverityNoChange {
			findings = append(findings, e)
		}
	}
	return findings, nil
}

func (a *Aggregator) fail(s Sector, cause error) Outcome {
	zap.L().Error("sector pass failed", zap.String("sector", s.Key), zap.Error(cause))
	return Outcome{SectorKey: s.Key, Status: "error", Error: cause.Error()}
}

const bootstrapInstructions = `You maintain sector-level investment views. Build the initial view for a sector from its member companies' standing profiles.

Respond with JSON only:
{ "stance": "bullish" | "neutral" | "bearish", "conviction": "low" | "medium" | "high", "thesis_summary": "under 100 words", "valuation_assessment": ["3-4 bullets"], "conviction_rationale": ["3-4 bullets"], "key_drivers": ["3-4 bullets"], "key_risks": ["3-4 bullets"], "last_updated_reason": "..." }`

const synthesisInstructions = `You maintain sector-level investment views. Grade today's company findings against the standing sector view with exactly one classification:
- NO_CHANGE: the sector view is unaffected.
- NOTABLE: worth a line in the sector log, view stands.
- MATERIAL: the sector view itself should change.

Respond with JSON only:
{
  "classification": "NO_CHANGE" | "NOTABLE" | "MATERIAL",
  "summary": "one line",
  "detail": { ... },                      // optional supporting detail
  "suggested_sector_view_update": {       // MATERIAL only
    "stance": "...", "conviction": "...", "thesis_summary": "...", "valuation_assessment": [], "conviction_rationale": [], "key_drivers": [], "key_risks": [], "last_updated_reason": "..."
  }
}`

func (a *Aggregator) bootstrapContent(s Sector, members []model.Company) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sector: %s\n", s.Label)
	if len(s.Focus) > 0 {
		fmt.Fprintf(&b, "Standing directives:\n%s\n", bulleted(s.Focus))
	}
	b.WriteString("\nMember companies:\n")
	for _, c := range members {
		fmt.Fprintf(&b, "\n--- %s (%s) ---\nView: %s, conviction %s.\n", c.Name, c.Ticker, c.View, c.Conviction)
		if c.Profile.Thesis != "" {
			fmt.Fprintf(&b, "Thesis: %s\n", c.Profile.Thesis)
		}
		if len(c.Profile.KeyAssumptions) > 0 {
			fmt.Fprintf(&b, "Assumptions:\n%s\n", bulleted(c.Profile.KeyAssumptions))
		}
	}
	return b.String()
}

func (a *Aggregator) synthesisContent(s Sector, view *model.SectorView, findings []model.ActionLogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sector: %s\n", s.Label)
	fmt.Fprintf(&b, "Standing view: %s, conviction %s.\nThesis: %s\n", view.Stance, view.Conviction, view.ThesisSummary)
	if len(view.KeyDrivers) > 0 {
		fmt.Fprintf(&b, "Key drivers:\n%s\n", bulleted(view.KeyDrivers))
	}
	if len(view.KeyRisks) > 0 {
		fmt.Fprintf(&b, "Key risks:\n%s\n", bulleted(view.KeyRisks))
	}
	if len(s.Focus) > 0 {
		fmt.Fprintf(&b, "Standing directives:\n%s\n", bulleted(s.Focus))
	}
	b.WriteString("\nToday's company findings:\n")
	for _, f := range findings {
		fmt.Fprintf(&b, "\n[%s] %s: %s\n", strings.ToUpper(string(f.Severity)), f.CompanyName, f.Summary)
		if f.Detail != nil {
			fmt.Fprintf(&b, "What happened: %s\nWhy it matters: %s\n", f.Detail.WhatHappened, f.Detail.WhyItMatters)
		}
	}
	return b.String()
}

// decodeViewDetail parses the bootstrap response. Unlike the synthesis
// decoder there is no standing view to fall back to, so a bad response
// is an error.
func decodeViewDetail(raw string) (*model.InvestmentViewDetail, error) {
	payload, ok := model.ExtractJSON(raw)
	if !ok {
		return nil, eris.New("sector: no JSON object in bootstrap response")
	}
	var detail model.InvestmentViewDetail
	if err := json.Unmarshal([]byte(payload), &detail); err != nil {
		return nil, eris.Wrap(err, "sector: decode bootstrap response")
	}
	if detail.Stance == "" || detail.ThesisSummary == "" {
		return nil, eris.New("sector: bootstrap response missing stance or thesis")
	}
	return &detail, nil
}

func viewFromDetail(key string, d *model.InvestmentViewDetail, reason string) model.SectorView {
	if d.LastUpdatedReason != "" {
		reason = d.LastUpdatedReason
	}
	return model.SectorView{
		SectorKey:           key,
		Stance:              d.Stance,
		Conviction:          d.Conviction,
		ThesisSummary:       d.ThesisSummary,
		ValuationAssessment: d.ValuationAssessment,
		ConvictionRationale: d.ConvictionRationale,
		KeyDrivers:          d.KeyDrivers,
		KeyRisks:            d.KeyRisks,
		LastUpdatedReason:   reason,
		UpdatedAt:           time.Now().UTC(),
	}
}

func companyIDs(companies []model.Company) []string {
	ids := make([]string, 0, len(companies))
	for _, c := range companies {
		ids = append(ids, c.ID)
	}
	return ids
}

func bulleted(items []string) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
