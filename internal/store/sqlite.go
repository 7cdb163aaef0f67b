package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/kabuten/sweep-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// sqliteTimeLayout is ISO-8601 with a numeric zone offset. SQLite's
// date/time functions can parse it (the driver's default time.Time
// binding they cannot), and the driver parses it back into time.Time
// when scanning DATETIME columns.
const sqliteTimeLayout = "2006-01-02 15:04:05.999999999-07:00"

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	ticker           TEXT NOT NULL DEFAULT '',
	sector           TEXT NOT NULL DEFAULT '',
	jurisdiction     TEXT NOT NULL DEFAULT '',
	investment_view  TEXT NOT NULL DEFAULT 'neutral',
	conviction       TEXT NOT NULL DEFAULT 'medium',
	market_cap_usd   REAL NOT NULL DEFAULT 0,
	profile          TEXT NOT NULL DEFAULT '{}',
	sweep_config     TEXT NOT NULL DEFAULT '{}',
	last_sweep_at    DATETIME,
	last_material_at DATETIME,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sweep_data (
	id           TEXT PRIMARY KEY,
	company_id   TEXT NOT NULL,
	source       TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	content      TEXT NOT NULL,
	is_new       INTEGER NOT NULL DEFAULT 0,
	fetched_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS action_log (
	id              TEXT PRIMARY KEY,
	company_id      TEXT NOT NULL,
	severity        TEXT NOT NULL,
	summary         TEXT NOT NULL,
	detail          TEXT,
	sources_checked TEXT NOT NULL DEFAULT '[]',
	raw_ai_response TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sector_views (
	sector_key           TEXT PRIMARY KEY,
	stance               TEXT NOT NULL DEFAULT 'neutral',
	conviction           TEXT NOT NULL DEFAULT 'medium',
	thesis_summary       TEXT NOT NULL DEFAULT '',
	valuation_assessment TEXT NOT NULL DEFAULT '[]',
	conviction_rationale TEXT NOT NULL DEFAULT '[]',
	key_drivers          TEXT NOT NULL DEFAULT '[]',
	key_risks            TEXT NOT NULL DEFAULT '[]',
	last_updated_reason  TEXT NOT NULL DEFAULT '',
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sector_log (
	id                TEXT PRIMARY KEY,
	sector_key        TEXT NOT NULL,
	severity          TEXT NOT NULL,
	summary           TEXT NOT NULL,
	related_companies TEXT NOT NULL DEFAULT '[]',
	detail            TEXT,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sweep_data_pair ON sweep_data(company_id, source, fetched_at DESC);
CREATE INDEX IF NOT EXISTS idx_action_log_company ON action_log(company_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_sector_log_key ON sector_log(sector_key, created_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx, companySelect+` ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, *c)
	}
	return companies, eris.Wrap(rows.Err(), "sqlite: list companies")
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	row := s.db.QueryRowContext(ctx, companySelect+` WHERE id = ?`, id)
	c, err := scanCompany(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *SQLiteStore) UpsertCompany(ctx context.Context, c model.Company) error {
	profileJSON, err := json.Marshal(c.Profile)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile")
	}
	configJSON, err := json.Marshal(c.SweepConfig)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal sweep config")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO companies (id, name, ticker, sector, jurisdiction, investment_view, conviction, market_cap_usd, profile, sweep_config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			ticker = excluded.ticker,
			sector = excluded.sector,
			jurisdiction = excluded.jurisdiction,
			investment_view = excluded.investment_view,
			conviction = excluded.conviction,
			profile = excluded.profile,
			sweep_config = excluded.sweep_config,
			updated_at = excluded.updated_at`,
		c.ID, c.Name, c.Ticker, c.Sector, c.Jurisdiction,
		string(c.View), string(c.Conviction), c.MarketCapUSD,
		string(profileJSON), string(configJSON), sqliteTime(now), sqliteTime(now),
	)
	return eris.Wrapf(err, "sqlite: upsert company %s", c.ID)
}

func (s *SQLiteStore) UpdateCompanyAfterSweep(ctx context.Context, id string, upd CompanyUpdate) error {
	now := time.Now().UTC()

	sets := []string{"last_sweep_at = ?", "updated_at = ?"}
	args := []any{sqliteTime(now), sqliteTime(now)}

	if upd.Profile != nil {
		profileJSON, err := json.Marshal(upd.Profile)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal profile")
		}
		sets = append(sets, "profile = ?")
		args = append(args, string(profileJSON))
	}
	if upd.View != "" {
		sets = append(sets, "investment_view = ?")
		args = append(args, string(upd.View))
	}
	if upd.Conviction != "" {
		sets = append(sets, "conviction = ?")
		args = append(args, string(upd.Conviction))
	}
	if upd.Material {
		// High-water mark: set forward only, never reset.
		sets = append(sets, "last_material_at = ?")
		args = append(args, sqliteTime(now))
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update company after sweep %s", id)
	}
	return checkRowsAffected(res, "company", id)
}

func (s *SQLiteStore) UpdateMarketCap(ctx context.Context, id string, usd float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET market_cap_usd = ?, updated_at = ? WHERE id = ?`,
		usd, sqliteTime(time.Now()), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update market cap %s", id)
	}
	return checkRowsAffected(res, "company", id)
}

func (s *SQLiteStore) LatestSnapshotHash(ctx context.Context, companyID, source string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash FROM sweep_data WHERE company_id = ? AND source = ? ORDER BY fetched_at DESC, id DESC LIMIT 1`,
		companyID, source,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: latest snapshot %s/%s", companyID, source)
	}
	return hash, nil
}

func (s *SQLiteStore) InsertSnapshot(ctx context.Context, snap model.SourceSnapshot) error {
	id := snap.ID
	if id == "" {
		id = uuid.New().String()
	}
	fetchedAt := snap.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sweep_data (id, company_id, source, content_hash, content, is_new, fetched_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, snap.CompanyID, snap.Source, snap.ContentHash, snap.Content, boolToInt(snap.IsNew), sqliteTime(fetchedAt),
	)
	return eris.Wrapf(err, "sqlite: insert snapshot %s/%s", snap.CompanyID, snap.Source)
}

func (s *SQLiteStore) AppendLogEntry(ctx context.Context, e model.ActionLogEntry) error {
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
			return eris.Wrap(err, "sqlite: marshal detail")
		}
		detail = string(detailJSON)
	}
	sourcesJSON, err := json.Marshal(emptyIfNil(e.SourcesChecked))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal sources")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO action_log (id, company_id, severity, summary, detail, sources_checked, raw_ai_response, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, e.CompanyID, string(e.Severity), e.Summary, detail, string(sourcesJSON), e.RawResponse, sqliteTime(createdAt),
	)
	return eris.Wrapf(err, "sqlite: append log entry %s", e.CompanyID)
}

func (s *SQLiteStore) QueryLog(ctx context.Context, f LogFilter) ([]model.ActionLogEntry, error) {
	query := `SELECT l.id, l.company_id, COALESCE(c.name, ''), l.severity, l.summary, l.detail, l.sources_checked, l.raw_ai_response, l.created_at
		FROM action_log l LEFT JOIN companies c ON c.id = l.company_id WHERE 1=1`
	var args []any

	if f.CompanyID != "" {
		query += ` AND l.company_id = ?`
		args = append(args, f.CompanyID)
	}
	query += ` ORDER BY l.created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	if f.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query log")
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

func (s *SQLiteStore) TodayResultsForCompanies(ctx context.Context, companyIDs []string) ([]model.ActionLogEntry, error) {
	if len(companyIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(companyIDs)), ",")
	args := make([]any, len(companyIDs))
	for i, id := range companyIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT l.id, l.company_id, COALESCE(c.name, ''), l.severity, l.summary, l.detail, l.sources_checked, l.raw_ai_response, l.created_at
		 FROM action_log l LEFT JOIN companies c ON c.id = l.company_id
		 WHERE l.company_id IN (`+placeholders+`) AND date(l.created_at) = date('now')
		 ORDER BY l.created_at DESC`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: today results")
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

func (s *SQLiteStore) GetSectorView(ctx context.Context, sectorKey string) (*model.SectorView, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT sector_key, stance, conviction, thesis_summary, valuation_assessment, conviction_rationale, key_drivers, key_risks, last_updated_reason, updated_at
		 FROM sector_views WHERE sector_key = ?`, sectorKey)

	var v model.SectorView
	var stance, conviction, valuation, rationale, drivers, risks string
	err := row.Scan(&v.SectorKey, &stance, &conviction, &v.ThesisSummary, &valuation, &rationale, &drivers, &risks, &v.LastUpdatedReason, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get sector view %s", sectorKey)
	}
	v.Stance = model.Stance(stance)
	v.Conviction = model.Conviction(conviction)
	for dst, src := range map[*[]string]string{
		&v.ValuationAssessment: valuation,
		&v.ConvictionRationale: rationale,
		&v.KeyDrivers:          drivers,
		&v.KeyRisks:            risks,
	} {
		if err := json.Unmarshal([]byte(src), dst); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal sector view %s", sectorKey)
		}
	}
	return &v, nil
}

func (s *SQLiteStore) UpsertSectorView(ctx context.Context, v model.SectorView) error {
	fields, err := marshalSectorViewLists(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sector_views (sector_key, stance, conviction, thesis_summary, valuation_assessment, conviction_rationale, key_drivers, key_risks, last_updated_reason, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sector_key) DO UPDATE SET
			stance = excluded.stance,
			conviction = excluded.conviction,
			thesis_summary = excluded.thesis_summary,
			valuation_assessment = excluded.valuation_assessment,
			conviction_rationale = excluded.conviction_rationale,
			key_drivers = excluded.key_drivers,
			key_risks = excluded.key_risks,
			last_updated_reason = excluded.last_updated_reason,
			updated_at = excluded.updated_at`,
		v.SectorKey, string(v.Stance), string(v.Conviction), v.ThesisSummary,
		fields[0], fields[1], fields[2], fields[3],
		v.LastUpdatedReason, sqliteTime(time.Now()),
	)
	return eris.Wrapf(err, "sqlite: upsert sector view %s", v.SectorKey)
}

func (s *SQLiteStore) AppendSectorLog(ctx context.Context, e model.SectorLogEntry) error {
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
		return eris.Wrap(err, "sqlite: marshal related companies")
	}
	var detail any
	if len(e.Detail) > 0 {
		detail = string(e.Detail)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sector_log (id, sector_key, severity, summary, related_companies, detail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, e.SectorKey, string(e.Severity), e.Summary, string(relatedJSON), detail, sqliteTime(createdAt),
	)
	return eris.Wrapf(err, "sqlite: append sector log %s", e.SectorKey)
}

// --- scan helpers ---

const companySelect = `SELECT id, name, ticker, sector, jurisdiction, investment_view, conviction, market_cap_usd, profile, sweep_config, last_sweep_at, last_material_at, created_at, updated_at FROM companies`

type scannable interface {
	Scan(dest ...any) error
}

func scanCompany(row scannable) (*model.Company, error) {
	var c model.Company
	var view, conviction, profileJSON, configJSON string
	var lastSweep, lastMaterial sql.NullTime

	err := row.Scan(&c.ID, &c.Name, &c.Ticker, &c.Sector, &c.Jurisdiction,
		&view, &conviction, &c.MarketCapUSD, &profileJSON, &configJSON,
		&lastSweep, &lastMaterial, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan company")
	}

	c.View = model.Stance(view)
	c.Conviction = model.Conviction(conviction)
	if err := json.Unmarshal([]byte(profileJSON), &c.Profile); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal profile %s", c.ID)
	}
	if err := json.Unmarshal([]byte(configJSON), &c.SweepConfig); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal sweep config %s", c.ID)
	}
	if lastSweep.Valid {
		t := lastSweep.Time
		c.LastSweptAt = &t
	}
	if lastMaterial.Valid {
		t := lastMaterial.Time
		c.LastMaterialAt = &t
	}
	return &c, nil
}

func scanLogEntries(rows *sql.Rows) ([]model.ActionLogEntry, error) {
	var entries []model.ActionLogEntry
	for rows.Next() {
		var e model.ActionLogEntry
		var severity, sourcesJSON string
		var detail sql.NullString

		if err := rows.Scan(&e.ID, &e.CompanyID, &e.CompanyName, &severity, &e.Summary, &detail, &sourcesJSON, &e.RawResponse, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan log entry")
		}
		e.Severity = model.Severity(severity)
		if detail.Valid && detail.String != "" {
			var d model.SweepDetail
			if err := json.Unmarshal([]byte(detail.String), &d); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal detail %s", e.ID)
			}
			e.Detail = &d
		}
		if err := json.Unmarshal([]byte(sourcesJSON), &e.SourcesChecked); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal sources %s", e.ID)
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: scan log entries")
}

func marshalSectorViewLists(v model.SectorView) ([4]string, error) {
	var out [4]string
	for i, list := range [][]string{v.ValuationAssessment, v.ConvictionRationale, v.KeyDrivers, v.KeyRisks} {
		b, err := json.Marshal(emptyIfNil(list))
		if err != nil {
			return out, eris.Wrap(err, "store: marshal sector view lists")
		}
		out[i] = string(b)
	}
	return out, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
