package salesforce

import (
	"context"
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// nextStepMaxLen is the length of the standard Opportunity.NextStep field.
const nextStepMaxLen = 255

// FieldMap names the Opportunity fields that receive assessment values.
// An empty name skips that value.
type FieldMap struct {
	Score    string
	Status   string
	Risk     string
	NextStep string
}

// OpportunityUpdate is one assessment's writeback payload.
type OpportunityUpdate struct {
	OpportunityID string
	Score         float64
	Status        string
	RiskScore     float64
	NextStep      string
}

// Fields builds the SObject field map for u. Scores are rounded to whole
// percent for display in the CRM.
func (m FieldMap) Fields(u OpportunityUpdate) map[string]any {
	fields := make(map[string]any, 4)
	if m.Score != "" {
		fields[m.Score] = math.Round(u.Score)
	}
	if m.Status != "" && u.Status != "" {
		fields[m.Status] = u.Status
	}
	if m.Risk != "" {
		fields[m.Risk] = math.Round(u.RiskScore * 100)
	}
	if m.NextStep != "" && u.NextStep != "" {
		fields[m.NextStep] = truncateRunes(u.NextStep, nextStepMaxLen)
	}
	return fields
}

// UpdateOpportunity writes one assessment to its Opportunity.
func UpdateOpportunity(ctx context.Context, c Client, m FieldMap, u OpportunityUpdate) error {
	if u.OpportunityID == "" {
		return eris.New("sf: opportunity id is required")
	}
	fields := m.Fields(u)
	if len(fields) == 0 {
		return eris.New("sf: no fields to update")
	}
	if err := c.UpdateOne(ctx, "Opportunity", u.OpportunityID, fields); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: update opportunity %s", u.OpportunityID))
	}
	return nil
}

// BulkUpdateOpportunities splits updates into Collections API batches.
// Results are returned for every batch sent before a failure.
func BulkUpdateOpportunities(ctx context.Context, c Client, m FieldMap, updates []OpportunityUpdate) ([]CollectionResult, error) {
	if len(updates) == 0 {
		return nil, nil
	}

	var all []CollectionResult
	for start := 0; start < len(updates); start += maxBatchSize {
		end := min(start+maxBatchSize, len(updates))

		records := make([]CollectionRecord, 0, end-start)
		for _, u := range updates[start:end] {
			if u.OpportunityID == "" {
				continue
			}
			records = append(records, CollectionRecord{ID: u.OpportunityID, Fields: m.Fields(u)})
		}
		if len(records) == 0 {
			continue
		}

		results, err := c.UpdateCollection(ctx, "Opportunity", records)
		if err != nil {
			return all, eris.Wrap(err, fmt.Sprintf("sf: bulk update opportunities batch %d-%d", start, end))
		}
		all = append(all, results...)
	}
	return all, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
