package sweep

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kabuten/sweep-cli/internal/fetch"
	"github.com/kabuten/sweep-cli/internal/model"
	"github.com/kabuten/sweep-cli/internal/store"
	"github.com/kabuten/sweep-cli/pkg/anthropic"
)

// Enricher refreshes a company's USD market cap via a short web-search
// prompt. Runs after the sweep proper and is allowed to fail quietly.
type Enricher struct {
	client anthropic.Client
	store  store.Store
	pacer  *fetch.Pacer
	model  string
}

// NewEnricher creates an Enricher. The pacer is the one shared by all
// oracle-backed calls.
func NewEnricher(client anthropic.Client, st store.Store, pacer *fetch.Pacer, modelName string) *Enricher {
	return &Enricher{client: client, store: st, pacer: pacer, model: modelName}
}

var marketCapRe = regexp.MustCompile(`(?i)([\d,]+(?:\.\d+)?)\s*(billion|million|trillion|bn|mn|tn|b|m|t)\b`)

// ParseMarketCapUSD extracts a USD figure from free text. Returns 0 when
// no recognizable figure is present.
func ParseMarketCapUSD(text string) float64 {
	m := marketCapRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	num, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	switch strings.ToLower(m[2]) {
	case "trillion", "tn", "t":
		return num * 1e12
	case "billion", "bn", "b":
		return num * 1e9
	case "million", "mn", "m":
		return num * 1e6
	}
	return 0
}

// Enrich looks up and stores the current market cap.
func (e *Enricher) Enrich(ctx context.Context, c model.Company) error {
	if err := e.pacer.Wait(ctx); err != nil {
		return eris.Wrap(err, "sweep: pacer wait")
	}
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: 256,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: "What is the current market capitalization of " + companyLabel(c) + " in US dollars? Answer in one line, e.g. \"12.3 billion USD\".",
		}},
		WebSearch: &anthropic.WebSearchTool{MaxUses: 1},
	})
	if err != nil {
		return eris.Wrapf(err, "sweep: market cap lookup %s", c.ID)
	}

	usd := ParseMarketCapUSD(resp.Text())
	if usd == 0 {
		return eris.Errorf("sweep: no market cap figure in response for %s", c.ID)
	}
	zap.L().Debug("market cap refreshed",
		zap.String("company_id", c.ID),
		zap.Float64("market_cap_usd", usd),
	)
	return e.store.UpdateMarketCap(ctx, c.ID, usd)
}
