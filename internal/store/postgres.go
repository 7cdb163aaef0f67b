package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/kabuten/sweep-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store relies on. pgxmock
// implements the same surface, which keeps the Postgres store testable
// without a live database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store on top of pgx.
type PostgresStore struct {
	pool Pool
}

// NewPostgres connects to Postgres using the given DSN.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	ticker           TEXT NOT NULL DEFAULT '',
	sector           TEXT NOT NULL DEFAULT '',
	jurisdiction     TEXT NOT NULL DEFAULT '',
	investment_view  TEXT NOT NULL DEFAULT 'neutral',
	conviction       TEXT NOT NULL DEFAULT 'medium',
	market_cap_usd   DOUBLE PRECISION NOT NULL DEFAULT 0,
	profile          JSONB NOT NULL DEFAULT '{}',
	sweep_config     JSONB NOT NULL DEFAULT '{}',
	last_sweep_at    TIMESTAMPTZ,
	last_material_at TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sweep_data (
	id           TEXT PRIMARY KEY,
	company_id   TEXT NOT NULL,
	source       TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	content      TEXT NOT NULL,
	is_new       BOOLEAN NOT NULL DEFAULT FALSE,
	fetched_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS action_log (
	id              TEXT PRIMARY KEY,
	company_id      TEXT NOT NULL,
	severity        TEXT NOT NULL,
	summary         TEXT NOT NULL,
	detail          JSONB,
	sources_checked JSONB NOT NULL DEFAULT '[]',
	raw_ai_response TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sector_views (
	sector_key           TEXT PRIMARY KEY,
	stance               TEXT NOT NULL DEFAULT 'neutral',
	conviction           TEXT NOT NULL DEFAULT 'medium',
	thesis_summary       TEXT NOT NULL DEFAULT '',
	valuation_assessment JSONB NOT NULL DEFAULT '[]',
	conviction_rationale JSONB NOT NULL DEFAULT '[]',
	key_drivers          JSONB NOT NULL DEFAULT '[]',
	key_risks            JSONB NOT NULL DEFAULT '[]',
	last_updated_reason  TEXT NOT NULL DEFAULT '',
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sector_log (
	id                TEXT PRIMARY KEY,
	sector_key        TEXT NOT NULL,
	severity          TEXT NOT NULL,
	summary           TEXT NOT NULL,
	related_companies JSONB NOT NULL DEFAULT '[]',
	detail            JSONB,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sweep_data_pair ON sweep_data(company_id, source, fetched_at DESC);
CREATE INDEX IF NOT EXISTS idx_action_log_company ON action_log(company_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_sector_log_key ON sector_log(sector_key, created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const pgCompanySelect = `SELECT id, name, ticker, sector, jurisdiction, investment_view, conviction, market_cap_usd, profile, sweep_config, last_sweep_at, last_material_at, created_at, updated_at FROM companies`

func (s *PostgresStore) ListCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx, pgCompanySelect+` ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		c, err := scanPgCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, *c)
	}
	return companies, eris.Wrap(rows.Err(), "postgres: list companies")
}

func (s *PostgresStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	row := s.pool.QueryRow(ctx, pgCompanySelect+` WHERE id = $1`, id)
	c, err := scanPgCompany(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *PostgresStore) UpsertCompany(ctx context.Context, c model.Company) error {
	profileJSON, err := json.Marshal(c.Profile)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}
	configJSON, err := json.Marshal(c.SweepConfig)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal sweep config")
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO companies (id, name, ticker, sector, jurisdiction, investment_view, conviction, market_cap_usd, profile, sweep_config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			ticker = EXCLUDED.ticker,
			sector = EXCLUDED.sector,
			jurisdiction = EXCLUDED.jurisdiction,
			investment_view = EXCLUDED.investment_view,
			conviction = EXCLUDED.conviction,
			profile = EXCLUDED.profile,
			sweep_config = EXCLUDED.sweep_config,
			updated_at = EXCLUDED.updated_at`,
		c.ID, c.Name, c.Ticker, c.Sector, c.Jurisdiction,
		string(c.View), string(c.Conviction), c.MarketCapUSD,
		string(profileJSON), string(configJSON), now, now,
	)
	return eris.Wrapf(err, "postgres: upsert company %s", c.ID)
}

func (s *PostgresStore) UpdateCompanyAfterSweep(ctx context.Context, id string, upd CompanyUpdate) error {
	now := time.Now().UTC()

	sets := []string{"last_sweep_at = $1", "updated_at = $1"}
	args := []any{now}

	next := func() string { return fmt.Sprintf("$%d", len(args)+1) }

	if upd.Profile != nil {
		profileJSON, err := json.Marshal(upd.Profile)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal profile")
		}
		sets = append(sets, "profile = "+next())
		args = append(args, string(profileJSON))
	}
	if upd.View != "" {
		sets = append(sets, "investment_view = "+next())
		args = append(args, string(upd.View))
	}
	if upd.Conviction != "" {
		sets = append(sets, "conviction = "+next())
		args = append(args, string(upd.Conviction))
	}
	if upd.Material {
		sets = append(sets, "last_material_at = $1")
	}

	args = append(args, id)
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET `+strings.Join(sets, ", ")+` WHERE id = `+fmt.Sprintf("$%d", len(args)),
		args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update company after sweep %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("company not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) UpdateMarketCap(ctx context.Context, id string, usd float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET market_cap_usd = $1, updated_at = $2 WHERE id = $3`,
		usd, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update market cap %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("company not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) LatestSnapshotHash(ctx context.Context, companyID, source string) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT content_hash FROM sweep_data WHERE company_id = $1 AND source = $2 ORDER BY fetched_at DESC, id DESC LIMIT 1`,
		companyID, source,
	).Scan(&hash)
	if eris.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "postgres: latest snapshot %s/%s", companyID, source)
	}
	return hash, nil
}

func (s *PostgresStore) InsertSnapshot(ctx context.Context, snap model.SourceSnapshot) error {
	id := snap.ID
	if id == "" {
		id = uuid.New().String()
	}
	fetchedAt := snap.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sweep_data (id, company_id, source, content_hash, content, is_new, fetched_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, snap.CompanyID, snap.Source, snap.ContentHash, snap.Content, snap.IsNew, fetchedAt,
	)
	return eris.Wrapf(err, "postgres: insert snapshot %s/%s", snap.CompanyID, snap.Source)
}

func (s *PostgresStore) AppendLogEntry(ctx context.Context, e model.ActionLogEntry) error {
	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var detail any
	if e.Detail != nil {
		detailJSON, err := json.Marshal(e.Detail)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal detail")
		}
		detail = string(detailJSON)
	}
	sourcesJSON, err := json.Marshal(emptyIfNil(e.SourcesChecked))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal sources")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO action_log (id, company_id, severity, summary, detail, sources_checked, raw_ai_response, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, e.CompanyID, string(e.Severity), e.Summary, detail, string(sourcesJSON), e.RawResponse, createdAt,
	)
	return eris.Wrapf(err, "postgres: append log entry %s", e.CompanyID)
}

func (s *PostgresStore) QueryLog(ctx context.Context, f LogFilter) ([]model.ActionLogEntry, error) {
	query := `SELECT l.id, l.company_id, COALESCE(c.name, ''), l.severity, l.summary, l.detail, l.sources_checked, l.raw_ai_response, l.created_at
		FROM action_log l LEFT JOIN companies c ON c.id = l.company_id`
	var args []any

	if f.CompanyID != "" {
		args = append(args, f.CompanyID)
		query += ` WHERE l.company_id = $1`
	}
	query += ` ORDER BY l.created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query log")
	}
	defer rows.Close()
	return scanPgLogEntries(rows)
}

func (s *PostgresStore) TodayResultsForCompanies(ctx context.Context, companyIDs []string) ([]model.ActionLogEntry, error) {
	if len(companyIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT l.id, l.company_id, COALESCE(c.name, ''), l.severity, l.summary, l.detail, l.sources_checked, l.raw_ai_response, l.created_at
		 FROM action_log l LEFT JOIN companies c ON c.id = l.company_id
		 WHERE l.company_id = ANY($1) AND l.created_at::date = CURRENT_DATE
		 ORDER BY l.created_at DESC`,
		companyIDs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: today results")
	}
	defer rows.Close()
	return scanPgLogEntries(rows)
}

func (s *PostgresStore) GetSectorView(ctx context.Context, sectorKey string) (*model.SectorView, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT sector_key, stance, conviction, thesis_summary, valuation_assessment, conviction_rationale, key_drivers, key_risks, last_updated_reason, updated_at
		 FROM sector_views WHERE sector_key = $1`, sectorKey)

	var v model.SectorView
	var stance, conviction string
	var valuation, rationale, drivers, risks []byte
	err := row.Scan(&v.SectorKey, &stance, &conviction, &v.ThesisSummary, &valuation, &rationale, &drivers, &risks, &v.LastUpdatedReason, &v.UpdatedAt)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get sector view %s", sectorKey)
	}
	v.Stance = model.Stance(stance)
	v.Conviction = model.Conviction(conviction)
	for dst, src := range map[*[]string][]byte{
		&v.ValuationAssessment: valuation,
		&v.ConvictionRationale: rationale,
		&v.KeyDrivers:          drivers,
		&v.KeyRisks:            risks,
	} {
		if err := json.Unmarshal(src, dst); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal sector view %s", sectorKey)
		}
	}
	return &v, nil
}

func (s *PostgresStore) UpsertSectorView(ctx context.Context, v model.SectorView) error {
	fields, err := marshalSectorViewLists(v)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sector_views (sector_key, stance, conviction, thesis_summary, valuation_assessment, conviction_rationale, key_drivers, key_risks, last_updated_reason, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (sector_key) DO UPDATE SET
			stance = EXCLUDED.stance,
			conviction = EXCLUDED.conviction,
			thesis_summary = EXCLUDED.thesis_summary,
			valuation_assessment = EXCLUDED.valuation_assessment,
			conviction_rationale = EXCLUDED.conviction_rationale,
			key_drivers = EXCLUDED.key_drivers,
			key_risks = EXCLUDED.key_risks,
			last_updated_reason = EXCLUDED.last_updated_reason,
			updated_at = EXCLUDED.updated_at`,
		v.SectorKey, string(v.Stance), string(v.Conviction), v.ThesisSummary,
		fields[0], fields[1], fields[2], fields[3],
		v.LastUpdatedReason, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert sector view %s", v.SectorKey)
}

func (s *PostgresStore) AppendSectorLog(ctx context.Context, e model.SectorLogEntry) error {
	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	relatedJSON, err := json.Marshal(emptyIfNil(e.RelatedCompanies))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal related companies")
	}
	var detail any
	if len(e.Detail) > 0 {
		detail = string(e.Detail)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sector_log (id, sector_key, severity, summary, related_companies, detail, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, e.SectorKey, string(e.Severity), e.Summary, string(relatedJSON), detail, createdAt,
	)
	return eris.Wrapf(err, "postgres: append sector log %s", e.SectorKey)
}

func scanPgCompany(row pgx.Row) (*model.Company, error) {
	var c model.Company
	var view, conviction string
	var profileJSON, configJSON []byte
	var lastSweep, lastMaterial *time.Time

	err := row.Scan(&c.ID, &c.Name, &c.Ticker, &c.Sector, &c.Jurisdiction,
		&view, &conviction, &c.MarketCapUSD, &profileJSON, &configJSON,
		&lastSweep, &lastMaterial, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan company")
	}

	c.View = model.Stance(view)
	c.Conviction = model.Conviction(conviction)
	if err := json.Unmarshal(profileJSON, &c.Profile); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal profile %s", c.ID)
	}
	if err := json.Unmarshal(configJSON, &c.SweepConfig); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal sweep config %s", c.ID)
	}
	c.LastSweptAt = lastSweep
	c.LastMaterialAt = lastMaterial
	return &c, nil
}

func scanPgLogEntries(rows pgx.Rows) ([]model.ActionLogEntry, error) {
	var entries []model.ActionLogEntry
	for rows.Next() {
		var e model.ActionLogEntry
		var severity string
		var detail, sourcesJSON []byte

		if err := rows.Scan(&e.ID, &e.CompanyID, &e.CompanyName, &severity, &e.Summary, &detail, &sourcesJSON, &e.RawResponse, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan log entry")
		}
		e.Severity = model.Severity(severity)
		if len(detail) > 0 {
			var d model.SweepDetail
			if err := json.Unmarshal(detail, &d); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal detail %s", e.ID)
			}
			e.Detail = &d
		}
		if err := json.Unmarshal(sourcesJSON, &e.SourcesChecked); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal sources %s", e.ID)
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: scan log entries")
}
