package meddpicc

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-intel/internal/config"
)

// Qualification tier boundaries on the 0-100 overall score. A score equal to
// a boundary belongs to the higher tier.
const (
	StrongThreshold   = 75.0
	ModerateThreshold = 50.0
	WeakThreshold     = 25.0
)

// GapThreshold is the element score below which an element is a critical gap.
const GapThreshold = 40.0

// Gap severity boundaries on the element score.
const (
	CriticalGapScore = 15.0
	HighGapScore     = 30.0
)

// EscalationThreshold is the number of distinct signals in one risk category
// at which every signal in that category is escalated one severity tier.
const EscalationThreshold = 3

// TrendTolerance is the change in overall risk score treated as stable.
const TrendTolerance = 0.05

// MaxMeetingObjectives bounds the objectives derived from critical gaps.
const MaxMeetingObjectives = 3

// Sub-score ceilings for a single element. They sum to 100.
const (
	PresencePoints     = 40.0
	ConfidencePoints   = 30.0
	CompletenessPoints = 30.0
)

// ErrInvalidConfig is returned when a scoring config fails validation.
var ErrInvalidConfig = eris.New("meddpicc: invalid scoring config")

// DefaultScoringConfig returns a config.ScoringConfig with sensible defaults.
// Weights sum to 100; economic buyer and champion carry the most weight.
func DefaultScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		MetricsWeight:          10,
		EconomicBuyerWeight:    18,
		DecisionCriteriaWeight: 10,
		DecisionProcessWeight:  12,
		PaperProcessWeight:     9,
		ImplicatePainWeight:    15,
		ChampionWeight:         18,
		CompetitionWeight:      8,

		StrongThreshold:   StrongThreshold,
		ModerateThreshold: ModerateThreshold,
		WeakThreshold:     WeakThreshold,
		GapThreshold:      GapThreshold,

		EscalationThreshold: EscalationThreshold,
		TrendTolerance:      TrendTolerance,
	}
}

// weightTable maps each element to its strategic weight.
func weightTable(c config.ScoringConfig) map[Element]float64 {
	return map[Element]float64{
		Metrics:          c.MetricsWeight,
		EconomicBuyer:    c.EconomicBuyerWeight,
		DecisionCriteria: c.DecisionCriteriaWeight,
		DecisionProcess:  c.DecisionProcessWeight,
		PaperProcess:     c.PaperProcessWeight,
		ImplicatePain:    c.ImplicatePainWeight,
		Champion:         c.ChampionWeight,
		Competition:      c.CompetitionWeight,
	}
}

// WeightSum returns the sum of all element weights.
func WeightSum(c config.ScoringConfig) float64 {
	var sum float64
	for _, w := range weightTable(c) {
		sum += w
	}
	return sum
}

// ValidateConfig checks that a ScoringConfig is internally consistent.
func ValidateConfig(c config.ScoringConfig) error {
	var errs []string

	weights := weightTable(c)
	for _, e := range AllElements() {
		if w := weights[e]; w < 0 {
			errs = append(errs, fmt.Sprintf("%s_weight must be >= 0", e))
		}
	}
	if WeightSum(c) <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}

	// Tiers must be monotonic inside 0-100.
	if c.WeakThreshold < 0 || c.StrongThreshold > 100 {
		errs = append(errs, "qualification thresholds must be between 0 and 100")
	}
	if !(c.WeakThreshold < c.ModerateThreshold && c.ModerateThreshold < c.StrongThreshold) {
		errs = append(errs, "thresholds must satisfy weak < moderate < strong")
	}
	if c.GapThreshold <= 0 || c.GapThreshold > 100 {
		errs = append(errs, "gap_threshold must be in (0, 100]")
	}
	if c.EscalationThreshold < 2 {
		errs = append(errs, "escalation_threshold must be >= 2")
	}
	if c.TrendTolerance < 0 || c.TrendTolerance >= 1 {
		errs = append(errs, "trend_tolerance must be in [0, 1)")
	}

	if len(errs) > 0 {
		return eris.Wrapf(ErrInvalidConfig, "meddpicc: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ConfigHash returns a SHA-256 prefix of the scoring config so persisted
// assessments can be traced to the weights that produced them.
func ConfigHash(cfg config.ScoringConfig) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16])
}
