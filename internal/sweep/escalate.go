package sweep

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kabuten/sweep-cli/internal/model"
	"github.com/kabuten/sweep-cli/pkg/anthropic"
)

// EscalatorOptions configures the deep-analysis pass.
type EscalatorOptions struct {
	Model     string
	MaxTokens int64
	MaxUses   int64
}

// Escalator re-runs a material finding through the stronger model with
// web search enabled and the full profile in context.
type Escalator struct {
	client anthropic.Client
	opts   EscalatorOptions
}

// NewEscalator creates an Escalator.
func NewEscalator(client anthropic.Client, opts EscalatorOptions) *Escalator {
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 8192
	}
	if opts.MaxUses == 0 {
		opts.MaxUses = 5
	}
	return &Escalator{client: client, opts: opts}
}

const escalatorInstructions = `You are performing a deep follow-up on a material finding. Verify it, size its impact on the thesis, and restate the updated view. Search the web as needed.

Respond with JSON only, in the same schema as the daily sweep:
{
  "classification": "NO_CHANGE" | "NOTABLE" | "MATERIAL",
  "summary": "one line",
  "detail": { "what_happened": "...", "why_it_matters": "...", "recommended_action": "...", "confidence": "low" | "medium" | "high", "sources": [] },
  "suggested_profile_updates": { "investment_view_detail": { ... } },
  "narrative_updates": { ... },
  "outlook_updates": { ... }
}
The materiality of the finding is already established; focus on the updated view, narrative and outlook.`

// Escalate deepens a material sweep result. The daily finding's severity,
// summary and detail always stand; a successful deep pass contributes only
// its suggested profile/narrative/outlook updates. On a transport error or
// an unparseable deep response the original finding is returned untouched:
// escalation only ever refines, never voids, a material signal.
func (e *Escalator) Escalate(ctx context.Context, c model.Company, finding *model.SweepResult) (*model.SweepResult, error) {
	profileJSON, err := json.MarshalIndent(c.Profile, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "sweep: marshal profile for escalation")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s\nStanding view: %s, conviction %s.\n\nFull profile:\n%s\n\n",
		companyLabel(c), c.View, c.Conviction, profileJSON)
	fmt.Fprintf(&b, "Today's material finding: %s\n", finding.Summary)
	if finding.Detail != nil {
		fmt.Fprintf(&b, "What happened: %s\nWhy it matters: %s\n",
			finding.Detail.WhatHappened, finding.Detail.WhyItMatters)
	}

	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.opts.Model,
		MaxTokens: e.opts.MaxTokens,
		System:    []anthropic.SystemBlock{{Text: escalatorInstructions}},
		Messages:  []anthropic.Message{{Role: "user", Content: b.String()}},
		WebSearch: &anthropic.WebSearchTool{MaxUses: e.opts.MaxUses},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "sweep: escalate %s", c.ID)
	}
	resp.Usage.LogCost(e.opts.Model, "deep analysis")

	deep := model.DecodeSweepResult(resp.Text())
	if deep.ParseError {
		// Keep the daily finding; an unreadable deep pass must not
		// swallow a material signal.
		zap.L().Warn("deep analysis unparseable, keeping daily finding",
			zap.String("company_id", c.ID),
		)
		return finding, nil
	}

	merged := *finding
	merged.Raw = finding.Raw + "\n\n--- deep analysis ---\n\n" + deep.Raw
	if deep.ProfileUpdate != nil {
		merged.ProfileUpdate = deep.ProfileUpdate
	}
	if deep.NarrativeUpdate != nil {
		merged.NarrativeUpdate = deep.NarrativeUpdate
	}
	if deep.OutlookUpdate != nil {
		merged.OutlookUpdate = deep.OutlookUpdate
	}
	return &merged, nil
}
