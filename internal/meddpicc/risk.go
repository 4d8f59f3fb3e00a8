package meddpicc

import (
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// RiskCategory groups risk rules by the part of the deal they threaten.
type RiskCategory string

// Built-in risk categories.
const (
	RiskBudget      RiskCategory = "budget"
	RiskTimeline    RiskCategory = "timeline"
	RiskStakeholder RiskCategory = "stakeholder"
	RiskCompetitive RiskCategory = "competitive"
	RiskTechnical   RiskCategory = "technical"
	RiskProcess     RiskCategory = "process"
)

// Risk level labels for RiskAnalysis.RiskLevel.
const RiskLevelNone = "none"

// duplicateJaccard is the token overlap at which two evidence strings in the
// same category are treated as the same finding.
const duplicateJaccard = 0.8

// Risk score normalization: severity mass and signal count saturate at these.
const (
	riskMassCap       = 3.0
	riskCountCap      = 10.0
	riskMassShare     = 0.7
	riskCountShare    = 0.3
	maxPrimaryRiskCat = 3
)

var severityWeight = map[Severity]float64{
	SeverityCritical: 1.0,
	SeverityHigh:     0.6,
	SeverityMedium:   0.3,
	SeverityLow:      0.1,
}

// RiskRule is one declarative trigger: a phrase that, found in evidence,
// raises a signal in Category at Severity.
type RiskRule struct {
	Category         RiskCategory `yaml:"category" json:"category"`
	Phrase           string       `yaml:"phrase" json:"phrase"`
	Severity         Severity     `yaml:"severity" json:"severity"`
	Title            string       `yaml:"title" json:"title"`
	Description      string       `yaml:"description" json:"description"`
	SuggestedActions []string     `yaml:"suggested_actions" json:"suggested_actions,omitempty"`
}

// RiskSignal is a deduplicated finding backed by one piece of evidence.
type RiskSignal struct {
	Category              RiskCategory `json:"category"`
	Title                 string       `json:"title"`
	Description           string       `json:"description"`
	Severity              Severity     `json:"severity"`
	BaseSeverity          Severity     `json:"base_severity"`
	Escalated             bool         `json:"escalated"`
	SourceElement         Element      `json:"source_element"`
	CorroboratingElements []Element    `json:"corroborating_elements,omitempty"`
	Evidence              string       `json:"evidence"`
	MatchedPhrases        []string     `json:"matched_phrases"`
	SuggestedActions      []string     `json:"suggested_actions"`

	tokens map[string]bool
	norm   string
}

// CategorySummary aggregates the signals of one category.
type CategorySummary struct {
	Category    RiskCategory `json:"category"`
	SignalCount int          `json:"signal_count"`
	Severity    Severity     `json:"severity"`
	Escalated   bool         `json:"escalated"`
	Elements    []Element    `json:"elements"`
}

// SignalsBySeverity buckets risk signals by their final severity.
type SignalsBySeverity struct {
	Critical []RiskSignal `json:"critical"`
	High     []RiskSignal `json:"high"`
	Medium   []RiskSignal `json:"medium"`
	Low      []RiskSignal `json:"low"`
}

// All returns every signal, most severe bucket first.
func (s SignalsBySeverity) All() []RiskSignal {
	out := make([]RiskSignal, 0, len(s.Critical)+len(s.High)+len(s.Medium)+len(s.Low))
	out = append(out, s.Critical...)
	out = append(out, s.High...)
	out = append(out, s.Medium...)
	return append(out, s.Low...)
}

// RiskAnalysis is the output of the risk signal detector.
type RiskAnalysis struct {
	OverallRiskScore      float64           `json:"overall_risk_score"`
	RiskLevel             string            `json:"risk_level"`
	RiskTrend             RiskTrend         `json:"risk_trend"`
	TotalSignals          int               `json:"total_signals"`
	PrimaryRiskCategories []RiskCategory    `json:"primary_risk_categories"`
	Categories            []CategorySummary `json:"categories"`
	Signals               SignalsBySeverity `json:"signals"`
}

// RiskDetector matches evidence against a fixed rule table.
type RiskDetector struct {
	rules               []compiledRule
	escalationThreshold int
}

type compiledRule struct {
	RiskRule
	folded string
}

// NewRiskDetector validates rules and binds them with the escalation threshold.
func NewRiskDetector(rules []RiskRule, escalationThreshold int) (*RiskDetector, error) {
	if escalationThreshold < 2 {
		return nil, eris.Wrapf(ErrInvalidConfig, "meddpicc: escalation threshold %d must be >= 2", escalationThreshold)
	}
	d := &RiskDetector{escalationThreshold: escalationThreshold}
	for i, r := range rules {
		if err := validateRule(r); err != nil {
			return nil, eris.Wrapf(err, "meddpicc: risk rule %d", i)
		}
		if len(r.SuggestedActions) == 0 {
			r.SuggestedActions = categoryPlaybook[r.Category]
		}
		d.rules = append(d.rules, compiledRule{RiskRule: r, folded: fold(strings.TrimSpace(r.Phrase))})
	}
	return d, nil
}

func validateRule(r RiskRule) error {
	var errs []string
	if r.Category == "" {
		errs = append(errs, "category is required")
	}
	if strings.TrimSpace(r.Phrase) == "" {
		errs = append(errs, "phrase is required")
	}
	if !r.Severity.Valid() {
		errs = append(errs, "severity must be one of critical, high, medium, low")
	}
	if r.Title == "" {
		errs = append(errs, "title is required")
	}
	if len(errs) > 0 {
		return eris.Wrapf(ErrInvalidConfig, "%s", strings.Join(errs, "; "))
	}
	return nil
}

// DetectRiskSignals scans a snapshot with the built-in rule table.
func DetectRiskSignals(snap Snapshot) *RiskAnalysis {
	return defaultEngine.detector.Detect(snap)
}

// Detect scans every evidence string of every element. It never fails; a
// snapshot without evidence yields an empty analysis.
func (d *RiskDetector) Detect(snap Snapshot) *RiskAnalysis {
	byCategory := make(map[RiskCategory][]*RiskSignal)

	for _, e := range AllElements() {
		for _, ev := range snap.Input(e).Evidence {
			folded := fold(ev)
			norm := normalizeText(ev)
			if norm == "" {
				continue
			}
			for _, r := range d.rules {
				if !strings.Contains(folded, r.folded) {
					continue
				}
				byCategory[r.Category] = mergeSignal(byCategory[r.Category], r.RiskRule, e, ev, norm)
			}
		}
	}

	analysis := &RiskAnalysis{
		RiskTrend:             TrendBaseline,
		PrimaryRiskCategories: []RiskCategory{},
		Categories:            []CategorySummary{},
		Signals: SignalsBySeverity{
			Critical: []RiskSignal{},
			High:     []RiskSignal{},
			Medium:   []RiskSignal{},
			Low:      []RiskSignal{},
		},
	}

	categories := make([]RiskCategory, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	var all []RiskSignal
	for _, c := range categories {
		signals := byCategory[c]
		escalate := len(signals) >= d.escalationThreshold

		summary := CategorySummary{Category: c, SignalCount: len(signals), Escalated: escalate}
		elements := make(map[Element]bool)
		for _, s := range signals {
			s.Severity = s.BaseSeverity
			if escalate {
				s.Severity = s.BaseSeverity.Escalate()
				s.Escalated = true
			}
			if s.Severity.Rank() > summary.Severity.Rank() {
				summary.Severity = s.Severity
			}
			elements[s.SourceElement] = true
			for _, ce := range s.CorroboratingElements {
				elements[ce] = true
			}
			all = append(all, *s)
		}
		summary.Elements = sortedElements(elements)
		analysis.Categories = append(analysis.Categories, summary)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Category != all[j].Category {
			return all[i].Category < all[j].Category
		}
		if all[i].SourceElement != all[j].SourceElement {
			return all[i].SourceElement.order() < all[j].SourceElement.order()
		}
		return all[i].Evidence < all[j].Evidence
	})

	var mass float64
	for _, s := range all {
		mass += severityWeight[s.Severity]
		switch s.Severity {
		case SeverityCritical:
			analysis.Signals.Critical = append(analysis.Signals.Critical, s)
		case SeverityHigh:
			analysis.Signals.High = append(analysis.Signals.High, s)
		case SeverityMedium:
			analysis.Signals.Medium = append(analysis.Signals.Medium, s)
		default:
			analysis.Signals.Low = append(analysis.Signals.Low, s)
		}
	}

	analysis.TotalSignals = len(all)
	analysis.OverallRiskScore = riskScore(mass, len(all))
	analysis.RiskLevel = riskLevel(analysis.OverallRiskScore, len(all))
	analysis.PrimaryRiskCategories = primaryCategories(analysis.Categories)
	return analysis
}

// mergeSignal folds a rule match into the category's signals, merging it into
// an existing near-duplicate when there is one.
func mergeSignal(signals []*RiskSignal, r RiskRule, e Element, evidence, norm string) []*RiskSignal {
	tokens := tokenSet(norm)
	for _, s := range signals {
		if s.norm != norm && jaccard(s.tokens, tokens) < duplicateJaccard {
			continue
		}
		if r.Severity.Rank() > s.BaseSeverity.Rank() {
			s.BaseSeverity = r.Severity
			s.Title = r.Title
			s.Description = r.Description
		}
		s.MatchedPhrases = appendUnique(s.MatchedPhrases, r.Phrase)
		s.SuggestedActions = appendUnique(s.SuggestedActions, r.SuggestedActions...)
		if e != s.SourceElement && !containsElement(s.CorroboratingElements, e) {
			s.CorroboratingElements = append(s.CorroboratingElements, e)
		}
		return signals
	}
	return append(signals, &RiskSignal{
		Category:         r.Category,
		Title:            r.Title,
		Description:      r.Description,
		BaseSeverity:     r.Severity,
		SourceElement:    e,
		Evidence:         evidence,
		MatchedPhrases:   []string{r.Phrase},
		SuggestedActions: appendUnique(nil, r.SuggestedActions...),
		tokens:           tokens,
		norm:             norm,
	})
}

func riskScore(mass float64, count int) float64 {
	if count == 0 {
		return 0
	}
	score := riskMassShare*math.Min(mass/riskMassCap, 1) + riskCountShare*math.Min(float64(count)/riskCountCap, 1)
	return math.Round(math.Max(0, math.Min(score, 1))*1000) / 1000
}

func riskLevel(score float64, count int) string {
	switch {
	case count == 0:
		return RiskLevelNone
	case score >= 0.75:
		return string(SeverityCritical)
	case score >= 0.5:
		return string(SeverityHigh)
	case score >= 0.25:
		return string(SeverityMedium)
	default:
		return string(SeverityLow)
	}
}

// primaryCategories orders categories by signal count, ties alphabetical.
func primaryCategories(summaries []CategorySummary) []RiskCategory {
	sorted := make([]CategorySummary, len(summaries))
	copy(sorted, summaries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SignalCount != sorted[j].SignalCount {
			return sorted[i].SignalCount > sorted[j].SignalCount
		}
		return sorted[i].Category < sorted[j].Category
	})
	out := []RiskCategory{}
	for i, s := range sorted {
		if i >= maxPrimaryRiskCat {
			break
		}
		out = append(out, s.Category)
	}
	return out
}

func tokenSet(norm string) map[string]bool {
	fields := strings.Fields(norm)
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	var inter int
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		dup := false
		for _, d := range dst {
			if d == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}

func containsElement(list []Element, e Element) bool {
	for _, x := range list {
		if x == e {
			return true
		}
	}
	return false
}

func sortedElements(set map[Element]bool) []Element {
	out := make([]Element, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order() < out[j].order() })
	return out
}
