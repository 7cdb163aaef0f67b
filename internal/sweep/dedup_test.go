package sweep

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabuten/sweep-cli/internal/fetch"
	"github.com/kabuten/sweep-cli/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func TestContentHash(t *testing.T) {
	h := ContentHash("hello")
	assert.Len(t, h, 32)
	assert.Equal(t, h, ContentHash("hello"))
	assert.NotEqual(t, h, ContentHash("hello "))
}

func TestDedupFirstFetchIsNew(t *testing.T) {
	d := NewDedup(newTestStore(t), 50000)

	snaps, err := d.Record(context.Background(), "acme", []fetch.Result{
		{Source: fetch.SourceCompanyIR, Content: "page A"},
	})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].IsNew)
}

func TestDedupAcrossRuns(t *testing.T) {
	d := NewDedup(newTestStore(t), 50000)
	ctx := context.Background()

	// Day 1: ir=A, news=B.
	day1, err := d.Record(ctx, "acme", []fetch.Result{
		{Source: fetch.SourceCompanyIR, Content: "A"},
		{Source: fetch.SourceReutersNikkei, Content: "B"},
	})
	require.NoError(t, err)
	assert.True(t, day1[0].IsNew)
	assert.True(t, day1[1].IsNew)

	// Day 2: ir unchanged, news changed. Only news counts as new.
	day2, err := d.Record(ctx, "acme", []fetch.Result{
		{Source: fetch.SourceCompanyIR, Content: "A"},
		{Source: fetch.SourceReutersNikkei, Content: "C"},
	})
	require.NoError(t, err)
	assert.False(t, day2[0].IsNew)
	assert.True(t, day2[1].IsNew)

	fresh := NewOnly(day2)
	require.Len(t, fresh, 1)
	assert.Equal(t, fetch.SourceReutersNikkei, fresh[0].Source)
}

func TestDedupPerCompanyIsolation(t *testing.T) {
	d := NewDedup(newTestStore(t), 50000)
	ctx := context.Background()

	_, err := d.Record(ctx, "acme", []fetch.Result{{Source: fetch.SourceCompanyIR, Content: "A"}})
	require.NoError(t, err)

	// Same content for a different company is still its first fetch.
	snaps, err := d.Record(ctx, "beta", []fetch.Result{{Source: fetch.SourceCompanyIR, Content: "A"}})
	require.NoError(t, err)
	assert.True(t, snaps[0].IsNew)
}

func TestDedupTruncatesStoredContentNotHash(t *testing.T) {
	st := newTestStore(t)
	d := NewDedup(st, 5)
	ctx := context.Background()

	long := "0123456789"
	snaps, err := d.Record(ctx, "acme", []fetch.Result{{Source: fetch.SourceCompanyIR, Content: long}})
	require.NoError(t, err)
	assert.Equal(t, "01234", snaps[0].Content)
	assert.Equal(t, ContentHash(long), snaps[0].ContentHash)

	// Re-fetching the same full content is not new even though storage
	// only kept a prefix.
	snaps, err = d.Record(ctx, "acme", []fetch.Result{{Source: fetch.SourceCompanyIR, Content: long}})
	require.NoError(t, err)
	assert.False(t, snaps[0].IsNew)
}

func TestDedupFailedFetchNotNewNotStored(t *testing.T) {
	st := newTestStore(t)
	d := NewDedup(st, 50000)
	ctx := context.Background()

	ok, err := d.Record(ctx, "acme", []fetch.Result{{Source: fetch.SourceEdinet, Content: "filings"}})
	require.NoError(t, err)
	assert.True(t, ok[0].IsNew)

	// Day 2 the source breaks. The diagnostic is not new content and
	// must not displace the last good snapshot.
	broken, err := d.Record(ctx, "acme", []fetch.Result{{
		Source:  fetch.SourceEdinet,
		Content: fetch.DiagnosticContent(fetch.SourceEdinet, assert.AnError),
		Err:     assert.AnError,
	}})
	require.NoError(t, err)
	assert.False(t, broken[0].IsNew)

	hash, err := st.LatestSnapshotHash(ctx, "acme", fetch.SourceEdinet)
	require.NoError(t, err)
	assert.Equal(t, ContentHash("filings"), hash)

	// Day 3 the source recovers with unchanged content: not re-flagged.
	recovered, err := d.Record(ctx, "acme", []fetch.Result{{Source: fetch.SourceEdinet, Content: "filings"}})
	require.NoError(t, err)
	assert.False(t, recovered[0].IsNew)
}
