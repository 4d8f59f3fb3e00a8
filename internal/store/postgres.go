package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-intel/internal/meddpicc"
	"github.com/sells-group/deal-intel/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id    TEXT NOT NULL,
	deal_id      TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	kind         TEXT NOT NULL DEFAULT 'transcript',
	content      TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS assessments (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id     TEXT NOT NULL,
	deal_id       TEXT NOT NULL,
	document_id   TEXT NOT NULL DEFAULT '',
	extraction    JSONB NOT NULL,
	result        JSONB NOT NULL,
	overall_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT '',
	risk_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	signal_count  INTEGER NOT NULL DEFAULT 0,
	config_hash   TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS extraction_cache (
	tenant_id    TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	data         JSONB NOT NULL,
	cached_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_documents_tenant_deal ON documents(tenant_id, deal_id);
CREATE INDEX IF NOT EXISTS idx_assessments_tenant_deal ON assessments(tenant_id, deal_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_extraction_cache_expires_at ON extraction_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	if err := prepareDocument(doc); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, tenant_id, deal_id, title, kind, content, content_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		doc.ID, doc.TenantID, doc.DealID, doc.Title, string(doc.Kind), doc.Content, doc.ContentHash, doc.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert document")
}

func (s *PostgresStore) GetDocument(ctx context.Context, tenantID, documentID string) (*model.Document, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	var d model.Document
	var kind string
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, deal_id, title, kind, content, content_hash, created_at
		 FROM documents WHERE tenant_id = $1 AND id = $2`,
		tenantID, documentID,
	).Scan(&d.ID, &d.TenantID, &d.DealID, &d.Title, &kind, &d.Content, &d.ContentHash, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: document %s", documentID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get document %s", documentID)
	}
	d.Kind = model.DocumentKind(kind)
	return &d, nil
}

func (s *PostgresStore) CreateAssessment(ctx context.Context, a *model.Assessment) error {
	extraction, result, err := prepareAssessment(a)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO assessments (id, tenant_id, deal_id, document_id, extraction, result,
		 overall_score, status, risk_score, signal_count, config_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.TenantID, a.DealID, a.DocumentID, extraction, result,
		a.OverallScore, string(a.Status), a.RiskScore, a.SignalCount, a.ConfigHash, a.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert assessment")
}

const postgresAssessmentColumns = `id, tenant_id, deal_id, document_id, extraction, result,
	overall_score, status, risk_score, signal_count, config_hash, created_at`

func (s *PostgresStore) GetAssessment(ctx context.Context, tenantID, assessmentID string) (*model.Assessment, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresAssessmentColumns+` FROM assessments WHERE tenant_id = $1 AND id = $2`,
		tenantID, assessmentID,
	)
	a, err := scanPgAssessment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: assessment %s", assessmentID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get assessment %s", assessmentID)
	}
	return a, nil
}

func (s *PostgresStore) ListAssessments(ctx context.Context, filter AssessmentFilter) ([]model.Assessment, error) {
	if err := requireTenant(filter.TenantID); err != nil {
		return nil, err
	}
	query := `SELECT ` + postgresAssessmentColumns + ` FROM assessments WHERE tenant_id = $1`
	args := []any{filter.TenantID}
	argIdx := 2

	if filter.DealID != "" {
		query += fmt.Sprintf(` AND deal_id = $%d`, argIdx)
		args = append(args, filter.DealID)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list assessments")
	}
	defer rows.Close()

	var out []model.Assessment
	for rows.Next() {
		a, err := scanPgAssessment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan assessment")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list assessments iterate")
}

func (s *PostgresStore) GetCachedExtraction(ctx context.Context, tenantID, contentHash string) (*model.ExtractionCache, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	var c model.ExtractionCache
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT content_hash, data, cached_at, expires_at FROM extraction_cache
		 WHERE tenant_id = $1 AND content_hash = $2 AND expires_at > now()`,
		tenantID, contentHash,
	).Scan(&c.ContentHash, &data, &c.CachedAt, &c.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached extraction")
	}
	c.Data = data
	return &c, nil
}

func (s *PostgresStore) SetCachedExtraction(ctx context.Context, tenantID, contentHash string, data []byte, ttl time.Duration) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO extraction_cache (tenant_id, content_hash, data, cached_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (tenant_id, content_hash) DO UPDATE SET
		 data = EXCLUDED.data, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
		tenantID, contentHash, data, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached extraction")
}

func (s *PostgresStore) DeleteExpiredExtractions(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM extraction_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired extractions")
	}
	return int(tag.RowsAffected()), nil
}

func scanPgAssessment(row pgx.Row) (*model.Assessment, error) {
	var a model.Assessment
	var extraction, result []byte
	var status string
	err := row.Scan(&a.ID, &a.TenantID, &a.DealID, &a.DocumentID, &extraction, &result,
		&a.OverallScore, &status, &a.RiskScore, &a.SignalCount, &a.ConfigHash, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = meddpicc.Qualification(status)
	if err := decodeAssessment(&a, extraction, result); err != nil {
		return nil, err
	}
	return &a, nil
}
