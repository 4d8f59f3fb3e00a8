package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-intel/internal/meddpicc"
	"github.com/sells-group/deal-intel/internal/model"
)

// prepareDocument fills in generated fields before insert.
func prepareDocument(doc *model.Document) error {
	if err := requireTenant(doc.TenantID); err != nil {
		return err
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.Kind == "" {
		doc.Kind = model.DocumentTranscript
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	return nil
}

// prepareAssessment fills in generated and derived fields before insert and
// returns the encoded extraction and result columns.
func prepareAssessment(a *model.Assessment) (extraction, result []byte, err error) {
	if err := requireTenant(a.TenantID); err != nil {
		return nil, nil, err
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Result != nil {
		a.OverallScore = a.Result.OverallScore
		a.Status = a.Result.QualificationStatus
		a.ConfigHash = a.Result.ConfigHash
		if ra := a.Result.RiskAnalysis; ra != nil {
			a.RiskScore = ra.OverallRiskScore
			a.SignalCount = ra.TotalSignals
		}
	}

	extraction = a.Extraction
	if len(extraction) == 0 {
		extraction = []byte("{}")
	}
	result, err = json.Marshal(a.Result)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal result")
	}
	return extraction, result, nil
}

// decodeAssessment restores the JSON columns of a scanned assessment.
func decodeAssessment(a *model.Assessment, extraction, result []byte) error {
	if len(extraction) > 0 {
		a.Extraction = json.RawMessage(extraction)
	}
	if len(result) > 0 && string(result) != "null" {
		a.Result = &meddpicc.Result{}
		if err := json.Unmarshal(result, a.Result); err != nil {
			return eris.Wrap(err, "store: unmarshal result")
		}
	}
	return nil
}
