package meddpicc

// Qualification is the deal tier derived from the overall score.
type Qualification string

// Qualification tiers, highest first.
const (
	QualificationStrong      Qualification = "strong"
	QualificationModerate    Qualification = "moderate"
	QualificationWeak        Qualification = "weak"
	QualificationUnqualified Qualification = "unqualified"
)

// Severity ranks gaps, risk signals and action priorities.
type Severity string

// Severity tiers, lowest first.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Escalate returns the next tier up, capped at critical.
func (s Severity) Escalate() Severity {
	switch s {
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// Valid reports whether s is one of the four tiers.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// ElementScore is the explainable 0-100 score for one element.
type ElementScore struct {
	Element           Element `json:"element"`
	TotalScore        float64 `json:"total_score"`
	PresenceScore     float64 `json:"presence_score"`
	ConfidenceScore   float64 `json:"confidence_score"`
	CompletenessScore float64 `json:"completeness_score"`
	Confidence        float64 `json:"confidence"`
	ContentKind       string  `json:"content_kind"`
	ContentItems      int     `json:"content_items"`
	EvidenceCount     int     `json:"evidence_count"`
	SpecificEvidence  int     `json:"specific_evidence"`
}

// Gap is an element scoring below the gap threshold.
type Gap struct {
	Element  Element  `json:"element"`
	Impact   float64  `json:"impact"`
	Score    float64  `json:"score"`
	Severity Severity `json:"severity"`
}

// ActionSource records whether an action came from a gap or a risk signal.
type ActionSource string

// Action sources.
const (
	SourceGap  ActionSource = "gap"
	SourceRisk ActionSource = "risk"
)

// Action is a prioritized next step for the deal team.
type Action struct {
	Action       string       `json:"action"`
	Element      Element      `json:"element"`
	Impact       float64      `json:"impact"`
	Priority     Severity     `json:"priority"`
	Source       ActionSource `json:"source"`
	RiskCategory RiskCategory `json:"risk_category,omitempty"`
	Urgency      string       `json:"urgency,omitempty"`
}

// Result is the complete scoring output for one extraction snapshot.
type Result struct {
	OverallScore        float64                  `json:"overall_score"`
	QualificationStatus Qualification            `json:"qualification_status"`
	ElementScores       map[Element]ElementScore `json:"element_scores"`
	CriticalGaps        []Gap                    `json:"critical_gaps"`
	NextActions         []Action                 `json:"next_actions"`
	MeetingObjectives   []string                 `json:"meeting_objectives"`
	RiskAnalysis        *RiskAnalysis            `json:"risk_analysis,omitempty"`
	IgnoredKeys         []string                 `json:"ignored_keys,omitempty"`
	MalformedElements   []Element                `json:"malformed_elements,omitempty"`
	ConfigHash          string                   `json:"config_hash,omitempty"`
}

// TopActions returns at most n next actions. The full list stays on the result.
func (r *Result) TopActions(n int) []Action {
	if n <= 0 {
		return []Action{}
	}
	if n >= len(r.NextActions) {
		return r.NextActions
	}
	return r.NextActions[:n]
}
