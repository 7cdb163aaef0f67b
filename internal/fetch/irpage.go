package fetch

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"

	"github.com/kabuten/sweep-cli/internal/model"
)

// HTTPOptions configures the direct HTTP fetcher.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// MaxChars caps the extracted text per page.
	MaxChars int
}

// HTTPClient wraps net/http with retry and per-host rate limiting.
type HTTPClient struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPClient creates an HTTPClient with the given options.
func NewHTTPClient(opts HTTPOptions) *HTTPClient {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "sweep-cli/1.0"
	}
	return &HTTPClient{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiterFor returns the per-host limiter, creating a 2 req/s one on
// first use. IR sites are small; stay polite.
func (c *HTTPClient) limiterFor(rawURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(2, 2)
		c.limiters[host] = lim
	}
	return lim
}

// Get fetches a URL with retry and returns the body.
func (c *HTTPClient) Get(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := range c.opts.MaxRetries {
		if err := c.limiterFor(rawURL).Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetch: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "fetch: create request")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			zap.L().Warn("http request failed, retrying",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http %d from %s", resp.StatusCode, rawURL)
			zap.L().Warn("retryable status, backing off",
				zap.String("url", rawURL),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, eris.Errorf("fetch: unexpected status %d from %s", resp.StatusCode, rawURL)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		_ = resp.Body.Close()
		if err != nil {
			return nil, eris.Wrap(err, "fetch: read body")
		}
		return decodeToUTF8(body, resp.Header.Get("Content-Type")), nil
	}
	return nil, eris.Wrap(lastErr, "fetch: all retries exhausted")
}

var metaCharsetRe = regexp.MustCompile(`(?i)<meta[^>]+charset=["']?([A-Za-z0-9._-]+)`)

// decodeToUTF8 converts a response body to UTF-8. Japanese IR sites
// still commonly serve Shift_JIS or EUC-JP; the charset comes from the
// Content-Type header or a meta tag. On any doubt the body is returned
// as is.
func decodeToUTF8(body []byte, contentType string) []byte {
	name := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		name = params["charset"]
	}
	if name == "" {
		head := body
		if len(head) > 1024 {
			head = head[:1024]
		}
		if m := metaCharsetRe.FindSubmatch(head); m != nil {
			name = string(m[1])
		}
	}
	if name == "" || strings.EqualFold(name, "utf-8") {
		return body
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		zap.L().Warn("unsupported charset, keeping raw body", zap.String("charset", name))
		return body
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil || !utf8.Valid(decoded) {
		return body
	}
	return decoded
}

func backoff(ctx context.Context, attempt int) {
	base := time.Second
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	d += time.Duration(rand.Int64N(int64(d) / 2))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)
	spaceRe  = regexp.MustCompile(`[ \t]+`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
)

// StripHTML reduces an HTML document to readable text. Good enough for
// change detection on IR pages; layout fidelity does not matter.
func StripHTML(html string) string {
	text := scriptRe.ReplaceAllString(html, " ")
	text = tagRe.ReplaceAllString(text, "\n")
	text = spaceRe.ReplaceAllString(text, " ")
	text = blankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// IRPageFetcher pulls a company's IR page and extracts its text.
type IRPageFetcher struct {
	client *HTTPClient
}

// NewIRPageFetcher wraps an HTTPClient as the company_ir source.
func NewIRPageFetcher(client *HTTPClient) *IRPageFetcher {
	return &IRPageFetcher{client: client}
}

func (f *IRPageFetcher) Source() string { return SourceCompanyIR }

func (f *IRPageFetcher) Fetch(ctx context.Context, c model.Company) (string, error) {
	if c.SweepConfig.IRURL == "" {
		return "", eris.Errorf("fetch: company %s has no IR URL configured", c.ID)
	}
	body, err := f.client.Get(ctx, c.SweepConfig.IRURL)
	if err != nil {
		return "", eris.Wrapf(err, "fetch: IR page for %s", c.ID)
	}
	return Truncate(StripHTML(string(body)), f.client.opts.MaxChars), nil
}
