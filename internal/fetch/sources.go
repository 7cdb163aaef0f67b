// Package fetch collects raw per-source content for a company sweep.
// Direct sources hit the open web (IR pages, EDINET); oracle-backed
// sources lean on model web search and are paced to respect API limits.
package fetch

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/kabuten/sweep-cli/internal/model"
)

// Source identifiers. These are stable keys: they appear in company
// sweep configs, snapshot rows, and action log entries.
const (
	SourceCompanyIR     = "company_ir"
	SourceEdinet        = "edinet"
	SourceReutersNikkei = "reuters_nikkei"
	SourceTwitter       = "twitter"
	SourceTradingView   = "tradingview"
	SourceIndustry      = "industry"
)

// directSources can be fetched concurrently; the rest go through the
// oracle one at a time.
var directSources = map[string]bool{
	SourceCompanyIR: true,
	SourceEdinet:    true,
}

// IsDirect reports whether the source fetches from the open web rather
// than through model web search.
func IsDirect(source string) bool {
	return directSources[source]
}

// KnownSource reports whether the identifier names a supported source.
func KnownSource(source string) bool {
	switch source {
	case SourceCompanyIR, SourceEdinet, SourceReutersNikkei,
		SourceTwitter, SourceTradingView, SourceIndustry:
		return true
	}
	return false
}

// Fetcher retrieves the current content of one source for a company.
type Fetcher interface {
	Source() string
	Fetch(ctx context.Context, c model.Company) (string, error)
}

// Result pairs a source with what came back. A failed fetch still
// produces content: the error is folded into a diagnostic string so the
// sweep carries on and the outage is visible in the record instead of
// aborting the pass.
type Result struct {
	Source  string
	Content string
	Err     error
}

// DiagnosticContent renders a fetch failure as source content.
func DiagnosticContent(source string, err error) string {
	return fmt.Sprintf("Error fetching %s: %v", source, err)
}

// Truncate caps content at max bytes, backing off to the previous rune
// boundary so multibyte text is never cut mid-rune. Callers pass the
// configured per-source limit; zero means no cap.
func Truncate(content string, max int) string {
	if max <= 0 || len(content) <= max {
		return content
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}
