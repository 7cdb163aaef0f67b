package fetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/kabuten/sweep-cli/internal/model"
	"github.com/kabuten/sweep-cli/pkg/anthropic"
)

// WebSearchOptions configures the oracle-backed fetchers.
type WebSearchOptions struct {
	Model     string
	MaxTokens int64
	MaxUses   int64
	MaxChars  int
}

// WebSearchFetcher runs one web-search prompt per source and returns
// the model's digest as source content. All instances share a pacer so
// consecutive calls are spaced out.
type WebSearchFetcher struct {
	source string
	client anthropic.Client
	pacer  *Pacer
	opts   WebSearchOptions
	prompt func(c model.Company) string
}

func newWebSearchFetcher(source string, client anthropic.Client, pacer *Pacer, opts WebSearchOptions, prompt func(model.Company) string) *WebSearchFetcher {
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 2048
	}
	if opts.MaxUses == 0 {
		opts.MaxUses = 3
	}
	return &WebSearchFetcher{source: source, client: client, pacer: pacer, opts: opts, prompt: prompt}
}

func (f *WebSearchFetcher) Source() string { return f.source }

func (f *WebSearchFetcher) Fetch(ctx context.Context, c model.Company) (string, error) {
	if err := f.pacer.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "fetch: pacer wait")
	}

	resp, err := f.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     f.opts.Model,
		MaxTokens: f.opts.MaxTokens,
		System: []anthropic.SystemBlock{{
			Text: "You are a research assistant gathering raw material for an equity monitoring sweep. Search the web and report plainly what you find, with dates and sources. If you find nothing recent, say so in one line. Do not analyze or editorialize.",
		}},
		Messages:  []anthropic.Message{{Role: "user", Content: f.prompt(c)}},
		WebSearch: &anthropic.WebSearchTool{MaxUses: f.opts.MaxUses},
	})
	if err != nil {
		return "", eris.Wrapf(err, "fetch: web search %s for %s", f.source, c.ID)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.Errorf("fetch: empty web search response for %s/%s", c.ID, f.source)
	}
	return Truncate(text, f.opts.MaxChars), nil
}

func companyLabel(c model.Company) string {
	if c.Ticker != "" {
		return fmt.Sprintf("%s (%s)", c.Name, c.Ticker)
	}
	return c.Name
}

// NewNewsFetcher covers Reuters/Nikkei coverage of the company.
func NewNewsFetcher(client anthropic.Client, pacer *Pacer, opts WebSearchOptions) *WebSearchFetcher {
	return newWebSearchFetcher(SourceReutersNikkei, client, pacer, opts, func(c model.Company) string {
		prompt := fmt.Sprintf("Find news published in the last 7 days about %s on Reuters or Nikkei. List each item with date, headline, and a two-sentence summary.", companyLabel(c))
		if focus := strings.Join(c.SweepConfig.Focus, "; "); focus != "" {
			prompt += " Pay particular attention to: " + focus + "."
		}
		return prompt
	})
}

// NewTwitterFetcher covers investor chatter.
func NewTwitterFetcher(client anthropic.Client, pacer *Pacer, opts WebSearchOptions) *WebSearchFetcher {
	return newWebSearchFetcher(SourceTwitter, client, pacer, opts, func(c model.Company) string {
		return fmt.Sprintf("Search X/Twitter discussion from the last 7 days about %s. Summarize any recurring investor themes, rumors, or notable threads. Note which are unverified.", companyLabel(c))
	})
}

// NewTradingViewFetcher covers price and volume action.
func NewTradingViewFetcher(client anthropic.Client, pacer *Pacer, opts WebSearchOptions) *WebSearchFetcher {
	return newWebSearchFetcher(SourceTradingView, client, pacer, opts, func(c model.Company) string {
		return fmt.Sprintf("Look up the recent price action of %s: last close, 1-week and 1-month move, unusual volume, and any technical levels traders are citing on TradingView or similar.", companyLabel(c))
	})
}

// NewIndustryFetcher covers sector-level developments relevant to the
// company.
func NewIndustryFetcher(client anthropic.Client, pacer *Pacer, opts WebSearchOptions) *WebSearchFetcher {
	return newWebSearchFetcher(SourceIndustry, client, pacer, opts, func(c model.Company) string {
		sector := c.Sector
		if sector == "" {
			sector = "its industry"
		}
		prompt := fmt.Sprintf("Find developments from the last 7 days in %s that could affect %s: competitor moves, regulation, pricing, demand signals.", sector, companyLabel(c))
		if focus := strings.Join(c.SweepConfig.Focus, "; "); focus != "" {
			prompt += " The portfolio focus for this name is: " + focus + "."
		}
		return prompt
	})
}
