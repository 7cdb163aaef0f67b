// Package sweep runs the per-company monitoring pass: fetch, dedup,
// classify, escalate, persist. It is the heart of the CLI.
package sweep

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/kabuten/sweep-cli/internal/fetch"
	"github.com/kabuten/sweep-cli/internal/model"
	"github.com/kabuten/sweep-cli/internal/store"
)

// ContentHash returns the truncated sha256 hex of content. 128 bits is
// plenty for change detection and keeps the column short.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:32]
}

// Dedup persists per-source snapshots and marks which ones carry new
// content relative to the previous fetch of the same (company, source).
type Dedup struct {
	store    store.Store
	maxChars int
}

// NewDedup creates a Dedup. maxChars caps the stored snapshot body; the
// hash is always computed over the full content.
func NewDedup(st store.Store, maxChars int) *Dedup {
	return &Dedup{store: st, maxChars: maxChars}
}

// Record writes one snapshot per fetch result and returns them. IsNew is
// true when the content hash differs from the latest stored snapshot for
// that source, including the first fetch ever. Failed fetches are never
// persisted and never new: storing the diagnostic would make it the
// dedup reference, so a transient outage would re-flag unchanged content
// once the source recovers.
func (d *Dedup) Record(ctx context.Context, companyID string, results []fetch.Result) ([]model.SourceSnapshot, error) {
	snapshots := make([]model.SourceSnapshot, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			snapshots = append(snapshots, model.SourceSnapshot{
				CompanyID:   companyID,
				Source:      res.Source,
				ContentHash: ContentHash(res.Content),
				Content:     fetch.Truncate(res.Content, d.maxChars),
				IsNew:       false,
			})
			continue
		}

		hash := ContentHash(res.Content)

		prev, err := d.store.LatestSnapshotHash(ctx, companyID, res.Source)
		if err != nil {
			return nil, err
		}
		isNew := prev == "" || prev != hash

		snap := model.SourceSnapshot{
			CompanyID:   companyID,
			Source:      res.Source,
			ContentHash: hash,
			Content:     fetch.Truncate(res.Content, d.maxChars),
			IsNew:       isNew,
		}
		if err := d.store.InsertSnapshot(ctx, snap); err != nil {
			return nil, err
		}
		zap.L().Debug("snapshot recorded",
			zap.String("company_id", companyID),
			zap.String("source", res.Source),
			zap.Bool("is_new", isNew),
		)
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// NewOnly filters snapshots down to the ones carrying new content.
func NewOnly(snapshots []model.SourceSnapshot) []model.SourceSnapshot {
	var fresh []model.SourceSnapshot
	for _, s := range snapshots {
		if s.IsNew {
			fresh = append(fresh, s)
		}
	}
	return fresh
}
