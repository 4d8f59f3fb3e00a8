package meddpicc

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// categoryPlaybook holds the actions attached to a rule that names none.
var categoryPlaybook = map[RiskCategory][]string{
	RiskBudget: {
		"Confirm budget ownership and the approved amount with the economic buyer",
		"Build a phased pricing option that fits the current budget cycle",
	},
	RiskTimeline: {
		"Agree a mutual close plan with dated milestones",
		"Tie the timeline to a business event the customer cannot move",
	},
	RiskStakeholder: {
		"Re-map the buying committee and confirm who holds signing authority",
		"Multi-thread the deal beyond the current primary contact",
	},
	RiskCompetitive: {
		"Run a competitive positioning session against the named alternative",
		"Document our differentiators against the customer's decision criteria",
	},
	RiskTechnical: {
		"Schedule a technical deep-dive with a solutions engineer",
		"Define written success criteria for any evaluation or proof of concept",
	},
	RiskProcess: {
		"Start procurement, legal and security paperwork in parallel",
		"Get the names and turnaround times of every reviewer",
	},
}

// DefaultRiskRules returns the built-in trigger table.
func DefaultRiskRules() []RiskRule {
	out := make([]RiskRule, len(defaultRiskRules))
	copy(out, defaultRiskRules)
	return out
}

var defaultRiskRules = []RiskRule{
	// Budget
	{Category: RiskBudget, Phrase: "budget freeze", Severity: SeverityCritical, Title: "Budget freeze",
		Description: "Spending is frozen; the deal cannot close until budget is released."},
	{Category: RiskBudget, Phrase: "no budget", Severity: SeverityHigh, Title: "No allocated budget",
		Description: "The buyer has not allocated budget for this purchase."},
	{Category: RiskBudget, Phrase: "not budgeted", Severity: SeverityHigh, Title: "No allocated budget",
		Description: "The buyer has not allocated budget for this purchase."},
	{Category: RiskBudget, Phrase: "budget cut", Severity: SeverityHigh, Title: "Budget reduction",
		Description: "The available budget is shrinking."},
	{Category: RiskBudget, Phrase: "waiting on funding", Severity: SeverityHigh, Title: "Funding not secured",
		Description: "The purchase depends on funding that has not been approved."},
	{Category: RiskBudget, Phrase: "too expensive", Severity: SeverityMedium, Title: "Price objection",
		Description: "The buyer considers the offer too expensive."},
	{Category: RiskBudget, Phrase: "cost concern", Severity: SeverityMedium, Title: "Price objection",
		Description: "The buyer has raised concerns about cost."},
	{Category: RiskBudget, Phrase: "discount", Severity: SeverityLow, Title: "Discount pressure",
		Description: "The buyer is negotiating on price."},

	// Timeline
	{Category: RiskTimeline, Phrase: "on hold", Severity: SeverityCritical, Title: "Project on hold",
		Description: "The initiative has been paused."},
	{Category: RiskTimeline, Phrase: "pushed back", Severity: SeverityHigh, Title: "Timeline slipped",
		Description: "The decision date has moved out."},
	{Category: RiskTimeline, Phrase: "not a priority", Severity: SeverityHigh, Title: "Low priority",
		Description: "The initiative is not a current priority for the buyer."},
	{Category: RiskTimeline, Phrase: "delay", Severity: SeverityMedium, Title: "Timeline slipped",
		Description: "The decision or project start is delayed."},
	{Category: RiskTimeline, Phrase: "next year", Severity: SeverityMedium, Title: "Deferred to next year",
		Description: "The buyer is deferring the decision to next year."},
	{Category: RiskTimeline, Phrase: "no rush", Severity: SeverityMedium, Title: "No urgency",
		Description: "The buyer has no compelling event driving a decision."},
	{Category: RiskTimeline, Phrase: "no timeline", Severity: SeverityMedium, Title: "No timeline",
		Description: "There is no agreed timeline to a decision."},

	// Stakeholder
	{Category: RiskStakeholder, Phrase: "left the company", Severity: SeverityCritical, Title: "Key contact departed",
		Description: "A key stakeholder has left the account."},
	{Category: RiskStakeholder, Phrase: "champion is leaving", Severity: SeverityCritical, Title: "Champion departing",
		Description: "The internal champion is leaving their role."},
	{Category: RiskStakeholder, Phrase: "not the decision maker", Severity: SeverityHigh, Title: "Contact lacks authority",
		Description: "The primary contact cannot make the decision."},
	{Category: RiskStakeholder, Phrase: "no authority", Severity: SeverityHigh, Title: "Contact lacks authority",
		Description: "The primary contact cannot make the decision."},
	{Category: RiskStakeholder, Phrase: "reorg", Severity: SeverityHigh, Title: "Reorganization",
		Description: "An internal reorganization may change the buying committee."},
	{Category: RiskStakeholder, Phrase: "new leadership", Severity: SeverityMedium, Title: "Leadership change",
		Description: "New leadership may revisit priorities."},
	{Category: RiskStakeholder, Phrase: "haven't met", Severity: SeverityMedium, Title: "Stakeholder not engaged",
		Description: "A required stakeholder has not been met."},
	{Category: RiskStakeholder, Phrase: "no access", Severity: SeverityMedium, Title: "Stakeholder not engaged",
		Description: "The team has no access to a required stakeholder."},
	{Category: RiskStakeholder, Phrase: "skeptical", Severity: SeverityMedium, Title: "Skeptical stakeholder",
		Description: "A stakeholder is skeptical of the proposal."},

	// Competitive
	{Category: RiskCompetitive, Phrase: "happy with current", Severity: SeverityHigh, Title: "Satisfied with status quo",
		Description: "The buyer is satisfied with their current solution."},
	{Category: RiskCompetitive, Phrase: "cheaper alternative", Severity: SeverityHigh, Title: "Lower-priced competitor",
		Description: "A cheaper alternative is under consideration."},
	{Category: RiskCompetitive, Phrase: "incumbent", Severity: SeverityMedium, Title: "Entrenched incumbent",
		Description: "An incumbent vendor is defending the account."},
	{Category: RiskCompetitive, Phrase: "evaluating other", Severity: SeverityMedium, Title: "Competitive evaluation",
		Description: "The buyer is evaluating other vendors."},
	{Category: RiskCompetitive, Phrase: "in-house", Severity: SeverityMedium, Title: "Build in-house",
		Description: "The buyer is considering building the capability internally."},
	{Category: RiskCompetitive, Phrase: "competitor", Severity: SeverityLow, Title: "Competitor mentioned",
		Description: "A competing vendor was mentioned."},

	// Technical
	{Category: RiskTechnical, Phrase: "proof of concept failed", Severity: SeverityCritical, Title: "Failed evaluation",
		Description: "A technical evaluation did not meet the buyer's criteria."},
	{Category: RiskTechnical, Phrase: "security concern", Severity: SeverityHigh, Title: "Security concern",
		Description: "The buyer has security concerns about the product."},
	{Category: RiskTechnical, Phrase: "not compatible", Severity: SeverityHigh, Title: "Compatibility gap",
		Description: "The product may not fit the buyer's environment."},
	{Category: RiskTechnical, Phrase: "doesn't integrate", Severity: SeverityHigh, Title: "Integration gap",
		Description: "A required integration is missing."},
	{Category: RiskTechnical, Phrase: "integration issue", Severity: SeverityMedium, Title: "Integration gap",
		Description: "Integration problems were raised."},
	{Category: RiskTechnical, Phrase: "missing feature", Severity: SeverityMedium, Title: "Feature gap",
		Description: "A required feature is missing."},
	{Category: RiskTechnical, Phrase: "performance issue", Severity: SeverityMedium, Title: "Performance concern",
		Description: "The buyer has raised performance concerns."},

	// Process
	{Category: RiskProcess, Phrase: "board approval", Severity: SeverityMedium, Title: "Board approval required",
		Description: "The purchase needs board approval."},
	{Category: RiskProcess, Phrase: "legal review", Severity: SeverityMedium, Title: "Legal review pending",
		Description: "The contract is waiting on legal review."},
	{Category: RiskProcess, Phrase: "security review", Severity: SeverityMedium, Title: "Security review pending",
		Description: "A vendor security review is pending."},
	{Category: RiskProcess, Phrase: "redline", Severity: SeverityMedium, Title: "Contract redlines",
		Description: "The contract is being negotiated."},
	{Category: RiskProcess, Phrase: "rfp", Severity: SeverityLow, Title: "Formal RFP",
		Description: "The purchase runs through a formal RFP."},
	{Category: RiskProcess, Phrase: "vendor onboarding", Severity: SeverityLow, Title: "Vendor onboarding",
		Description: "Vendor onboarding has to complete before signature."},
}

type ruleFile struct {
	Rules []RiskRule `yaml:"rules"`
}

// ParseRiskRules decodes a YAML rule document of the form
//
//	rules:
//	  - category: budget
//	    phrase: "spending review"
//	    severity: high
//	    title: Spending review
func ParseRiskRules(r io.Reader) ([]RiskRule, error) {
	var f ruleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "meddpicc: decode risk rules")
	}
	for i, rule := range f.Rules {
		if err := validateRule(rule); err != nil {
			return nil, eris.Wrapf(err, "meddpicc: risk rule %d (%q)", i, rule.Phrase)
		}
	}
	return f.Rules, nil
}

// LoadRiskRules reads a rule file from disk. An empty path returns no rules.
func LoadRiskRules(path string) ([]RiskRule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "meddpicc: read risk rules %s", path)
	}
	return ParseRiskRules(bytes.NewReader(data))
}
