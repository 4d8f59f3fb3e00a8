// Package assess orchestrates document extraction, MEDDPICC scoring,
// persistence and CRM writeback for a deal.
package assess

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/deal-intel/internal/extract"
	"github.com/sells-group/deal-intel/internal/meddpicc"
	"github.com/sells-group/deal-intel/internal/model"
	"github.com/sells-group/deal-intel/internal/store"
	"github.com/sells-group/deal-intel/pkg/anthropic"
	"github.com/sells-group/deal-intel/pkg/salesforce"
)

// Sentinel errors for request validation.
var (
	ErrTenantRequired        = eris.New("assess: tenant id is required")
	ErrDealRequired          = eris.New("assess: deal id is required")
	ErrEmptyContent          = eris.New("assess: document content is empty")
	ErrExtractionUnavailable = eris.New("assess: extraction is not configured")
)

const (
	defaultCacheTTL     = 7 * 24 * time.Hour
	defaultHistoryLimit = 10
)

// Extractor turns a document into an extraction payload.
type Extractor interface {
	Extract(ctx context.Context, doc *model.Document) (*extract.Extraction, error)
	Model() string
}

// CRMWriter pushes assessment results to an Opportunity.
type CRMWriter interface {
	Write(ctx context.Context, u salesforce.OpportunityUpdate) error
}

// AssessRequest asks for a document to be extracted, scored and stored.
type AssessRequest struct {
	TenantID      string `json:"tenant_id"`
	DealID        string `json:"deal_id"`
	Title         string `json:"title"`
	Kind          string `json:"kind"`
	Content       string `json:"content"`
	OpportunityID string `json:"opportunity_id,omitempty"`
}

// ScoreRequest asks for an already-extracted payload to be scored and stored.
type ScoreRequest struct {
	TenantID      string          `json:"tenant_id"`
	DealID        string          `json:"deal_id"`
	Payload       json.RawMessage `json:"payload"`
	OpportunityID string          `json:"opportunity_id,omitempty"`
}

// Outcome describes a stored assessment and how it was produced.
type Outcome struct {
	Assessment *model.Assessment    `json:"assessment"`
	Document   *model.Document      `json:"document,omitempty"`
	CacheHit   bool                 `json:"cache_hit"`
	Usage      anthropic.TokenUsage `json:"usage"`
	CostUSD    float64              `json:"cost_usd"`
	Synced     bool                 `json:"crm_synced"`
}

// Service runs assessments. CRM writeback is best effort and never fails a
// request.
type Service struct {
	store        store.Store
	engine       *meddpicc.Engine
	extractor    Extractor
	crm          CRMWriter
	cacheTTL     time.Duration
	historyLimit int
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithExtractor enables Assess.
func WithExtractor(e Extractor) Option {
	return func(s *Service) { s.extractor = e }
}

// WithCRM enables Opportunity writeback for requests carrying an opportunity id.
func WithCRM(w CRMWriter) Option {
	return func(s *Service) { s.crm = w }
}

// WithCacheTTL sets how long extractions are reused for identical content.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithHistoryLimit sets how many prior assessments feed the risk trend.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// New creates a Service. A nil engine uses the default scoring configuration.
func New(st store.Store, engine *meddpicc.Engine, opts ...Option) *Service {
	if engine == nil {
		engine = meddpicc.DefaultEngine()
	}
	s := &Service{
		store:        st,
		engine:       engine,
		cacheTTL:     defaultCacheTTL,
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the scoring engine.
func (s *Service) Engine() *meddpicc.Engine {
	return s.engine
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Score scores a payload without touching the store.
func (s *Service) Score(payload []byte) (*meddpicc.Result, error) {
	res, err := s.engine.CalculateJSON(payload)
	if err != nil {
		return nil, eris.Wrap(err, "assess: score")
	}
	return res, nil
}

// Assess persists the document, extracts MEDDPICC data (reusing a cached
// extraction for identical content), scores it against the deal's history
// and stores the assessment.
func (s *Service) Assess(ctx context.Context, req AssessRequest) (*Outcome, error) {
	if err := validateIDs(req.TenantID, req.DealID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrEmptyContent
	}
	if s.extractor == nil {
		return nil, ErrExtractionUnavailable
	}

	log := zap.L().With(zap.String("tenant_id", req.TenantID), zap.String("deal_id", req.DealID))

	doc := &model.Document{
		ID:          uuid.New().String(),
		TenantID:    req.TenantID,
		DealID:      req.DealID,
		Title:       req.Title,
		Kind:        model.ParseDocumentKind(req.Kind),
		Content:     req.Content,
		ContentHash: ContentHash(s.extractor.Model(), req.Content),
	}
	// Nothing is persisted until a payload exists.
	out := &Outcome{Document: doc}
	payload, err := s.cachedExtraction(ctx, doc)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		out.CacheHit = true
		log.Debug("extraction cache hit", zap.String("content_hash", doc.ContentHash))
	} else {
		x, err := s.extractor.Extract(ctx, doc)
		if err != nil {
			return nil, eris.Wrap(err, "assess: extract")
		}
		payload, err = x.JSON()
		if err != nil {
			return nil, err
		}
		out.Usage = x.Usage
		out.CostUSD = x.CostUSD
		if err := s.store.SetCachedExtraction(ctx, doc.TenantID, doc.ContentHash, payload, s.cacheTTL); err != nil {
			log.Warn("extraction cache write failed", zap.Error(err))
		}
	}

	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, eris.Wrap(err, "assess: create document")
	}

	a, err := s.scoreAndStore(ctx, req.TenantID, req.DealID, doc.ID, payload)
	if err != nil {
		return nil, err
	}
	out.Assessment = a
	out.Synced = s.writeback(ctx, a, req.OpportunityID)

	log.Info("document assessed",
		zap.String("document_id", doc.ID),
		zap.String("assessment_id", a.ID),
		zap.Float64("overall_score", a.OverallScore),
		zap.String("status", string(a.Status)),
		zap.Bool("cache_hit", out.CacheHit),
	)
	return out, nil
}

// ScorePayload scores an extraction payload against the deal's history and
// stores the assessment.
func (s *Service) ScorePayload(ctx context.Context, req ScoreRequest) (*Outcome, error) {
	if err := validateIDs(req.TenantID, req.DealID); err != nil {
		return nil, err
	}

	a, err := s.scoreAndStore(ctx, req.TenantID, req.DealID, "", req.Payload)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Assessment: a}
	out.Synced = s.writeback(ctx, a, req.OpportunityID)

	zap.L().Info("payload scored",
		zap.String("tenant_id", req.TenantID),
		zap.String("deal_id", req.DealID),
		zap.String("assessment_id", a.ID),
		zap.Float64("overall_score", a.OverallScore),
	)
	return out, nil
}

// History returns a deal's assessments, newest first.
func (s *Service) History(ctx context.Context, tenantID, dealID string, limit int) ([]model.Assessment, error) {
	if err := validateIDs(tenantID, dealID); err != nil {
		return nil, err
	}
	list, err := s.store.ListAssessments(ctx, store.AssessmentFilter{TenantID: tenantID, DealID: dealID, Limit: limit})
	if err != nil {
		return nil, eris.Wrap(err, "assess: history")
	}
	return list, nil
}

// Get returns a single assessment.
func (s *Service) Get(ctx context.Context, tenantID, assessmentID string) (*model.Assessment, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	a, err := s.store.GetAssessment(ctx, tenantID, assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "assess: get assessment")
	}
	return a, nil
}

func (s *Service) cachedExtraction(ctx context.Context, doc *model.Document) ([]byte, error) {
	cached, err := s.store.GetCachedExtraction(ctx, doc.TenantID, doc.ContentHash)
	if err != nil {
		return nil, eris.Wrap(err, "assess: read extraction cache")
	}
	if cached == nil {
		return nil, nil
	}
	return cached.Data, nil
}

func (s *Service) scoreAndStore(ctx context.Context, tenantID, dealID, documentID string, payload []byte) (*model.Assessment, error) {
	history, err := s.riskHistory(ctx, tenantID, dealID)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.CalculateJSON(payload, meddpicc.WithHistory(history...))
	if err != nil {
		return nil, eris.Wrap(err, "assess: score")
	}

	a := &model.Assessment{
		TenantID:   tenantID,
		DealID:     dealID,
		DocumentID: documentID,
		Extraction: json.RawMessage(payload),
		Result:     res,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.CreateAssessment(ctx, a); err != nil {
		return nil, eris.Wrap(err, "assess: create assessment")
	}
	return a, nil
}

func (s *Service) riskHistory(ctx context.Context, tenantID, dealID string) ([]meddpicc.RiskSnapshot, error) {
	prior, err := s.store.ListAssessments(ctx, store.AssessmentFilter{
		TenantID: tenantID,
		DealID:   dealID,
		Limit:    s.historyLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "assess: load history")
	}
	snaps := make([]meddpicc.RiskSnapshot, len(prior))
	for i, a := range prior {
		snaps[i] = a.RiskSnapshot()
	}
	return snaps, nil
}

// writeback reports whether the Opportunity was updated.
func (s *Service) writeback(ctx context.Context, a *model.Assessment, opportunityID string) bool {
	if s.crm == nil || opportunityID == "" {
		return false
	}
	if err := s.crm.Write(ctx, OpportunityUpdate(a, opportunityID)); err != nil {
		zap.L().Warn("crm writeback failed",
			zap.String("tenant_id", a.TenantID),
			zap.String("deal_id", a.DealID),
			zap.String("assessment_id", a.ID),
			zap.String("opportunity_id", opportunityID),
			zap.Error(err),
		)
		return false
	}
	return true
}

// OpportunityUpdate maps an assessment onto a CRM writeback payload using
// the top next action as the next step.
func OpportunityUpdate(a *model.Assessment, opportunityID string) salesforce.OpportunityUpdate {
	u := salesforce.OpportunityUpdate{
		OpportunityID: opportunityID,
		Score:         a.OverallScore,
		Status:        string(a.Status),
		RiskScore:     a.RiskScore,
	}
	if a.Result != nil {
		if top := a.Result.TopActions(1); len(top) > 0 {
			u.NextStep = top[0].Action
		}
	}
	return u
}

// ContentHash keys the extraction cache by model and exact content.
func ContentHash(modelID, content string) string {
	sum := sha256.Sum256([]byte(modelID + "\x00" + content))
	return hex.EncodeToString(sum[:])
}

func validateIDs(tenantID, dealID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return ErrTenantRequired
	}
	if strings.TrimSpace(dealID) == "" {
		return ErrDealRequired
	}
	return nil
}
