package sweep

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/kabuten/sweep-cli/internal/fetch"
	"github.com/kabuten/sweep-cli/internal/model"
	"github.com/kabuten/sweep-cli/pkg/anthropic"
)

// ClassifierOptions configures the sweep classifier.
type ClassifierOptions struct {
	Model string
	// MaxCharsPerSource caps how much of each snapshot reaches the prompt.
	MaxCharsPerSource int
	MaxTokens         int64
}

// Classifier asks the oracle to grade the day's new content against the
// company's standing profile.
type Classifier struct {
	client anthropic.Client
	opts   ClassifierOptions
}

// NewClassifier creates a Classifier.
func NewClassifier(client anthropic.Client, opts ClassifierOptions) *Classifier {
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	return &Classifier{client: client, opts: opts}
}

const classifierInstructions = `Grade today's findings against the standing view with exactly one classification:
- NO_CHANGE: nothing that moves the thesis. This is the common case.
- NOTABLE: worth a line in the log, does not move the thesis.
- MATERIAL: challenges or confirms the thesis strongly enough to revisit the view.

Respond with JSON only, no prose outside the JSON object:
{
  "classification": "NO_CHANGE" | "NOTABLE" | "MATERIAL",
  "summary": "one line",
  "detail": {                               // required unless NO_CHANGE
    "what_happened": "...",
    "why_it_matters": "...",
    "recommended_action": "...",
    "confidence": "low" | "medium" | "high",
    "sources": ["..."]
  },
  "suggested_profile_updates": {            // MATERIAL only, optional
    "investment_view_detail": { "stance": "...", "conviction": "...", "thesis_summary": "...", "valuation_assessment": [], "conviction_rationale": [], "key_drivers": [], "key_risks": [], "last_updated_reason": "..." }
  },
  "narrative_updates": { "earnings_trend": "...", "recent_newsflow": "...", "long_term_trajectory": "..." },
  "outlook_updates": { "fundamentals": "...", "financials": "...", "risks": "..." }
}`

const firstRunInstruction = `This company has no narrative or outlook on file yet. Regardless of classification, populate narrative_updates and outlook_updates from what you know and what the sources show.`

// systemPrompt renders the company's standing view for the oracle.
func (cl *Classifier) systemPrompt(c model.Company) []anthropic.SystemBlock {
	var b strings.Builder
	fmt.Fprintf(&b, "You monitor %s for an investment team.\n\n", companyLabel(c))
	fmt.Fprintf(&b, "Standing view: %s, conviction %s.\n", c.View, c.Conviction)
	if c.Profile.Thesis != "" {
		fmt.Fprintf(&b, "Thesis: %s\n", c.Profile.Thesis)
	}
	if len(c.Profile.KeyAssumptions) > 0 {
		fmt.Fprintf(&b, "Key assumptions:\n%s\n", bulleted(c.Profile.KeyAssumptions))
	}
	if len(c.Profile.RiskFactors) > 0 {
		fmt.Fprintf(&b, "Risk factors:\n%s\n", bulleted(c.Profile.RiskFactors))
	}
	if len(c.SweepConfig.Focus) > 0 {
		fmt.Fprintf(&b, "Watch items:\n%s\n", bulleted(c.SweepConfig.Focus))
	}
	b.WriteString("\n")
	b.WriteString(classifierInstructions)
	if c.NeedsFirstRun() {
		b.WriteString("\n\n")
		b.WriteString(firstRunInstruction)
	}
	return []anthropic.SystemBlock{{Text: b.String()}}
}

// userContent renders the day's new snapshots. With nothing new the
// oracle still runs: stale sources can themselves be informative (an IR
// page silent through an earnings window, say).
func (cl *Classifier) userContent(snapshots []model.SourceSnapshot) string {
	fresh := NewOnly(snapshots)
	if len(fresh) == 0 {
		return "No sources returned new content today. All monitored sources are unchanged since the previous sweep. Classify accordingly."
	}
	var b strings.Builder
	b.WriteString("Today's new content by source:\n")
	for _, s := range fresh {
		fmt.Fprintf(&b, "\n=== SOURCE: %s ===\n%s\n", s.Source, fetch.Truncate(s.Content, cl.opts.MaxCharsPerSource))
	}
	return b.String()
}

// Classify grades the sweep. Transport failures return an error; a
// malformed oracle response does not, it degrades inside the result.
func (cl *Classifier) Classify(ctx context.Context, c model.Company, snapshots []model.SourceSnapshot) (*model.SweepResult, error) {
	resp, err := cl.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     cl.opts.Model,
		MaxTokens: cl.opts.MaxTokens,
		System:    cl.systemPrompt(c),
		Messages:  []anthropic.Message{{Role: "user", Content: cl.userContent(snapshots)}},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "sweep: classify %s", c.ID)
	}
	resp.Usage.LogCost(cl.opts.Model, "sweep classify")
	return model.DecodeSweepResult(resp.Text()), nil
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

func companyLabel(c model.Company) string {
	if c.Ticker != "" {
		return fmt.Sprintf("%s (%s)", c.Name, c.Ticker)
	}
	return c.Name
}
