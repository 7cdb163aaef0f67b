package fetch

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kabuten/sweep-cli/internal/model"
)

// Registry holds one Fetcher per known source.
type Registry struct {
	fetchers map[string]Fetcher
}

// NewRegistry builds a registry from the given fetchers. Later entries
// with a duplicate source win.
func NewRegistry(fetchers ...Fetcher) *Registry {
	m := make(map[string]Fetcher, len(fetchers))
	for _, f := range fetchers {
		m[f.Source()] = f
	}
	return &Registry{fetchers: m}
}

// Lookup returns the fetcher for a source, if registered.
func (r *Registry) Lookup(source string) (Fetcher, bool) {
	f, ok := r.fetchers[source]
	return f, ok
}

// Collect fetches every configured source for a company. Direct
// sources run in parallel; oracle-backed sources run one at a time in
// config order. A fetch error never fails the collection: it becomes a
// diagnostic Result so the sweep keeps going with the sources it has.
func (r *Registry) Collect(ctx context.Context, c model.Company) []Result {
	var direct, oracle []string
	for _, source := range c.SweepConfig.Sources {
		if _, ok := r.fetchers[source]; !ok {
			continue
		}
		if IsDirect(source) {
			direct = append(direct, source)
		} else {
			oracle = append(oracle, source)
		}
	}

	results := make(map[string]Result, len(direct)+len(oracle))

	if len(direct) > 0 {
		type fetched struct {
			source  string
			content string
			err     error
		}
		out := make([]fetched, len(direct))
		g, gctx := errgroup.WithContext(ctx)
		for i, source := range direct {
			g.Go(func() error {
				content, err := r.fetchers[source].Fetch(gctx, c)
				out[i] = fetched{source: source, content: content, err: err}
				return nil
			})
		}
		_ = g.Wait()
		for _, f := range out {
			results[f.source] = toResult(f.source, f.content, f.err)
		}
	}

	for _, source := range oracle {
		content, err := r.fetchers[source].Fetch(ctx, c)
		results[source] = toResult(source, content, err)
	}

	// Stable order: the order sources appear in the company config.
	ordered := make([]Result, 0, len(results))
	for _, source := range c.SweepConfig.Sources {
		if res, ok := results[source]; ok {
			ordered = append(ordered, res)
			delete(results, source)
		}
	}
	// Anything left over (duplicate config entries) in name order.
	var rest []string
	for source := range results {
		rest = append(rest, source)
	}
	sort.Strings(rest)
	for _, source := range rest {
		ordered = append(ordered, results[source])
	}
	return ordered
}

func toResult(source, content string, err error) Result {
	if err != nil {
		return Result{Source: source, Content: DiagnosticContent(source, err), Err: err}
	}
	return Result{Source: source, Content: content}
}
