package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kabuten/sweep-cli/internal/model"
)

// EdinetClient lists recent filings from the EDINET document API.
type EdinetClient struct {
	http      *HTTPClient
	baseURL   string
	apiKey    string
	windowDay int
	now       func() time.Time
}

// EdinetOption configures the EDINET client.
type EdinetOption func(*EdinetClient)

// WithEdinetBaseURL sets a custom API base URL (for testing).
func WithEdinetBaseURL(u string) EdinetOption {
	return func(c *EdinetClient) { c.baseURL = u }
}

// WithEdinetWindow sets how many days back to list filings.
func WithEdinetWindow(days int) EdinetOption {
	return func(c *EdinetClient) { c.windowDay = days }
}

// WithEdinetClock overrides the clock (for testing).
func WithEdinetClock(now func() time.Time) EdinetOption {
	return func(c *EdinetClient) { c.now = now }
}

// NewEdinetClient creates an EDINET client.
func NewEdinetClient(http *HTTPClient, apiKey string, opts ...EdinetOption) *EdinetClient {
	c := &EdinetClient{
		http:      http,
		baseURL:   "https://api.edinet-fsa.go.jp/api/v2",
		apiKey:    apiKey,
		windowDay: 7,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type edinetDocument struct {
	DocID          string `json:"docID"`
	EdinetCode     string `json:"edinetCode"`
	FilerName      string `json:"filerName"`
	DocTypeCode    string `json:"docTypeCode"`
	DocDescription string `json:"docDescription"`
	SubmitDateTime string `json:"submitDateTime"`
}

type edinetListResponse struct {
	Results []edinetDocument `json:"results"`
}

// listDay returns filings submitted on one date.
func (c *EdinetClient) listDay(ctx context.Context, day time.Time) ([]edinetDocument, error) {
	q := url.Values{}
	q.Set("date", day.Format("2006-01-02"))
	q.Set("type", "2")
	if c.apiKey != "" {
		q.Set("Subscription-Key", c.apiKey)
	}

	body, err := c.http.Get(ctx, c.baseURL+"/documents.json?"+q.Encode())
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: edinet list %s", day.Format("2006-01-02"))
	}
	var resp edinetListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "fetch: decode edinet list")
	}
	return resp.Results, nil
}

// FilingsFor returns a text digest of the company's filings in the
// lookback window, newest first. An empty digest means no filings.
func (c *EdinetClient) FilingsFor(ctx context.Context, edinetCode string) (string, error) {
	today := c.now().UTC()
	var lines []string
	for i := 0; i < c.windowDay; i++ {
		day := today.AddDate(0, 0, -i)
		docs, err := c.listDay(ctx, day)
		if err != nil {
			// One bad day should not void the window.
			zap.L().Warn("edinet day fetch failed",
				zap.String("date", day.Format("2006-01-02")),
				zap.Error(err),
			)
			continue
		}
		for _, d := range docs {
			if d.EdinetCode != edinetCode {
				continue
			}
			lines = append(lines, fmt.Sprintf("[%s] %s — %s (type %s, doc %s)",
				d.SubmitDateTime, d.FilerName, d.DocDescription, d.DocTypeCode, d.DocID))
		}
	}
	if len(lines) == 0 {
		return "", nil
	}
	return strings.Join(lines, "\n"), nil
}

// EdinetFetcher exposes EDINET filings as the edinet sweep source.
type EdinetFetcher struct {
	client   *EdinetClient
	maxChars int
}

// NewEdinetFetcher wraps an EdinetClient as a Fetcher.
func NewEdinetFetcher(client *EdinetClient, maxChars int) *EdinetFetcher {
	return &EdinetFetcher{client: client, maxChars: maxChars}
}

func (f *EdinetFetcher) Source() string { return SourceEdinet }

func (f *EdinetFetcher) Fetch(ctx context.Context, c model.Company) (string, error) {
	if c.SweepConfig.EdinetCode == "" {
		return "", eris.Errorf("fetch: company %s has no EDINET code configured", c.ID)
	}
	digest, err := f.client.FilingsFor(ctx, c.SweepConfig.EdinetCode)
	if err != nil {
		return "", err
	}
	if digest == "" {
		digest = "No filings submitted in the lookback window."
	}
	return Truncate(digest, f.maxChars), nil
}
