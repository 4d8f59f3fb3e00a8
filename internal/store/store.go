package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-intel/internal/model"
)

// Sentinel errors returned by every Store implementation.
var (
	ErrTenantRequired = eris.New("store: tenant id is required")
	ErrNotFound       = eris.New("store: not found")
)

// defaultListLimit bounds ListAssessments when the filter sets no limit.
const defaultListLimit = 100

// AssessmentFilter specifies criteria for listing assessments.
type AssessmentFilter struct {
	TenantID string `json:"tenant_id"`
	DealID   string `json:"deal_id,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// Store defines tenant-scoped persistence for documents and assessments.
// Every read and write is filtered by tenant id.
type Store interface {
	// Documents
	CreateDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, tenantID, documentID string) (*model.Document, error)

	// Assessments
	CreateAssessment(ctx context.Context, a *model.Assessment) error
	GetAssessment(ctx context.Context, tenantID, assessmentID string) (*model.Assessment, error)
	ListAssessments(ctx context.Context, filter AssessmentFilter) ([]model.Assessment, error)

	// Extraction cache. A miss returns nil, nil.
	GetCachedExtraction(ctx context.Context, tenantID, contentHash string) (*model.ExtractionCache, error)
	SetCachedExtraction(ctx context.Context, tenantID, contentHash string, data []byte, ttl time.Duration) error
	DeleteExpiredExtractions(ctx context.Context) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	return nil
}

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
