package model

import (
	"encoding/json"
	"time"

	"github.com/sells-group/deal-intel/internal/meddpicc"
)

// DocumentKind describes where a document's text came from.
type DocumentKind string

const (
	DocumentTranscript DocumentKind = "transcript"
	DocumentEmail      DocumentKind = "email"
	DocumentNotes      DocumentKind = "notes"
	DocumentOther      DocumentKind = "other"
)

// ParseDocumentKind maps free text to a kind, defaulting to transcript.
func ParseDocumentKind(s string) DocumentKind {
	switch DocumentKind(s) {
	case DocumentEmail, DocumentNotes, DocumentOther:
		return DocumentKind(s)
	default:
		return DocumentTranscript
	}
}

// Document is a tenant-owned source text attached to a deal.
type Document struct {
	ID          string       `json:"id"`
	TenantID    string       `json:"tenant_id"`
	DealID      string       `json:"deal_id"`
	Title       string       `json:"title"`
	Kind        DocumentKind `json:"kind"`
	Content     string       `json:"content"`
	ContentHash string       `json:"content_hash"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Assessment is one persisted scoring of a deal.
type Assessment struct {
	ID           string                 `json:"id"`
	TenantID     string                 `json:"tenant_id"`
	DealID       string                 `json:"deal_id"`
	DocumentID   string                 `json:"document_id,omitempty"`
	Extraction   json.RawMessage        `json:"extraction"`
	Result       *meddpicc.Result       `json:"result"`
	OverallScore float64                `json:"overall_score"`
	Status       meddpicc.Qualification `json:"qualification_status"`
	RiskScore    float64                `json:"risk_score"`
	SignalCount  int                    `json:"signal_count"`
	ConfigHash   string                 `json:"config_hash"`
	CreatedAt    time.Time              `json:"created_at"`
}

// RiskSnapshot reduces the assessment to the fields trend computation needs.
func (a Assessment) RiskSnapshot() meddpicc.RiskSnapshot {
	return meddpicc.RiskSnapshot{
		OverallRiskScore: a.RiskScore,
		TotalSignals:     a.SignalCount,
		TakenAt:          a.CreatedAt,
	}
}

// ExtractionCache is a cached LLM extraction keyed by content hash.
type ExtractionCache struct {
	ContentHash string          `json:"content_hash"`
	Data        json.RawMessage `json:"data"`
	CachedAt    time.Time       `json:"cached_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
}
