package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/kabuten/sweep-cli/internal/config"
	"github.com/kabuten/sweep-cli/internal/model"
)

// LogFilter specifies criteria for querying the action log.
type LogFilter struct {
	CompanyID string `json:"company_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// CompanyUpdate carries the mutable fields the sweep result writer may
// touch. Nil/empty fields are left unchanged; Material moves the
// last_material_at high-water mark forward but never resets it.
type CompanyUpdate struct {
	Profile    *model.Profile
	View       model.Stance
	Conviction model.Conviction
	Material   bool
}

// Store defines the persistence interface for the sweep engine.
type Store interface {
	// Companies
	ListCompanies(ctx context.Context) ([]model.Company, error)
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	UpsertCompany(ctx context.Context, c model.Company) error
	UpdateCompanyAfterSweep(ctx context.Context, id string, upd CompanyUpdate) error
	UpdateMarketCap(ctx context.Context, id string, usd float64) error

	// Source snapshots
	LatestSnapshotHash(ctx context.Context, companyID, source string) (string, error)
	InsertSnapshot(ctx context.Context, snap model.SourceSnapshot) error

	// Action log (append-only)
	AppendLogEntry(ctx context.Context, e model.ActionLogEntry) error
	QueryLog(ctx context.Context, f LogFilter) ([]model.ActionLogEntry, error)
	TodayResultsForCompanies(ctx context.Context, companyIDs []string) ([]model.ActionLogEntry, error)

	// Sector views
	GetSectorView(ctx context.Context, sectorKey string) (*model.SectorView, error)
	UpsertSectorView(ctx context.Context, v model.SectorView) error
	AppendSectorLog(ctx context.Context, e model.SectorLogEntry) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open constructs a Store from config. Driver "sqlite" (the default)
// treats DatabaseURL as a file path; "postgres" as a pgx DSN.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
