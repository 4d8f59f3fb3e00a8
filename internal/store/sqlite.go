package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/deal-intel/internal/model"
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	deal_id      TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	kind         TEXT NOT NULL DEFAULT 'transcript',
	content      TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS assessments (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	deal_id       TEXT NOT NULL,
	document_id   TEXT NOT NULL DEFAULT '',
	extraction    TEXT NOT NULL,
	result        TEXT NOT NULL,
	overall_score REAL NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT '',
	risk_score    REAL NOT NULL DEFAULT 0,
	signal_count  INTEGER NOT NULL DEFAULT 0,
	config_hash   TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS extraction_cache (
	tenant_id    TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	data         TEXT NOT NULL,
	cached_at    DATETIME NOT NULL,
	expires_at   DATETIME NOT NULL,
	PRIMARY KEY (tenant_id, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_documents_tenant_deal ON documents(tenant_id, deal_id);
CREATE INDEX IF NOT EXISTS idx_assessments_tenant_deal ON assessments(tenant_id, deal_id, created_at);
CREATE INDEX IF NOT EXISTS idx_extraction_cache_expires_at ON extraction_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	if err := prepareDocument(doc); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, tenant_id, deal_id, title, kind, content, content_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.TenantID, doc.DealID, doc.Title, string(doc.Kind), doc.Content, doc.ContentHash, doc.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert document")
}

func (s *SQLiteStore) GetDocument(ctx context.Context, tenantID, documentID string) (*model.Document, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	var d model.Document
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, deal_id, title, kind, content, content_hash, created_at
		 FROM documents WHERE tenant_id = ? AND id = ?`,
		tenantID, documentID,
	).Scan(&d.ID, &d.TenantID, &d.DealID, &d.Title, &d.Kind, &d.Content, &d.ContentHash, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: document %s", documentID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get document %s", documentID)
	}
	return &d, nil
}

func (s *SQLiteStore) CreateAssessment(ctx context.Context, a *model.Assessment) error {
	extraction, result, err := prepareAssessment(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assessments (id, tenant_id, deal_id, document_id, extraction, result,
		 overall_score, status, risk_score, signal_count, config_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TenantID, a.DealID, a.DocumentID, string(extraction), string(result),
		a.OverallScore, string(a.Status), a.RiskScore, a.SignalCount, a.ConfigHash, a.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert assessment")
}

const sqliteAssessmentColumns = `id, tenant_id, deal_id, document_id, extraction, result,
	overall_score, status, risk_score, signal_count, config_hash, created_at`

func (s *SQLiteStore) GetAssessment(ctx context.Context, tenantID, assessmentID string) (*model.Assessment, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteAssessmentColumns+` FROM assessments WHERE tenant_id = ? AND id = ?`,
		tenantID, assessmentID,
	)
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: assessment %s", assessmentID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get assessment %s", assessmentID)
	}
	return a, nil
}

func (s *SQLiteStore) ListAssessments(ctx context.Context, filter AssessmentFilter) ([]model.Assessment, error) {
	if err := requireTenant(filter.TenantID); err != nil {
		return nil, err
	}
	query := `SELECT ` + sqliteAssessmentColumns + ` FROM assessments WHERE tenant_id = ?`
	args := []any{filter.TenantID}

	if filter.DealID != "" {
		query += ` AND deal_id = ?`
		args = append(args, filter.DealID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assessments")
	}
	defer rows.Close()

	var out []model.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan assessment")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list assessments iterate")
}

func (s *SQLiteStore) GetCachedExtraction(ctx context.Context, tenantID, contentHash string) (*model.ExtractionCache, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	var c model.ExtractionCache
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash, data, cached_at, expires_at FROM extraction_cache
		 WHERE tenant_id = ? AND content_hash = ?`,
		tenantID, contentHash,
	).Scan(&c.ContentHash, &data, &c.CachedAt, &c.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached extraction")
	}
	if !c.ExpiresAt.After(time.Now().UTC()) {
		return nil, nil
	}
	c.Data = []byte(data)
	return &c, nil
}

func (s *SQLiteStore) SetCachedExtraction(ctx context.Context, tenantID, contentHash string, data []byte, ttl time.Duration) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extraction_cache (tenant_id, content_hash, data, cached_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, content_hash) DO UPDATE SET
		 data = excluded.data, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		tenantID, contentHash, string(data), now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached extraction")
}

func (s *SQLiteStore) DeleteExpiredExtractions(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM extraction_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired extractions")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAssessment(row scannable) (*model.Assessment, error) {
	var a model.Assessment
	var extraction, result string
	err := row.Scan(&a.ID, &a.TenantID, &a.DealID, &a.DocumentID, &extraction, &result,
		&a.OverallScore, &a.Status, &a.RiskScore, &a.SignalCount, &a.ConfigHash, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeAssessment(&a, []byte(extraction), []byte(result)); err != nil {
		return nil, err
	}
	return &a, nil
}
