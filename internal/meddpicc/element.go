// Package meddpicc scores MEDDPICC qualification data extracted from sales
// conversations. Scoring is deterministic and free of I/O: an Engine turns one
// extraction snapshot into element scores, critical gaps, next actions,
// meeting objectives and a risk analysis.
package meddpicc

import (
	"github.com/rotisserie/eris"
)

// Element names one of the eight MEDDPICC qualification elements.
type Element string

// The eight MEDDPICC elements, keyed by their extraction payload names.
const (
	Metrics          Element = "metrics"
	EconomicBuyer    Element = "economic_buyer"
	DecisionCriteria Element = "decision_criteria"
	DecisionProcess  Element = "decision_process"
	PaperProcess     Element = "paper_process"
	ImplicatePain    Element = "implicate_pain"
	Champion         Element = "champion"
	Competition      Element = "competition"
)

// ErrUnknownElement is returned when an element name is outside the fixed set.
var ErrUnknownElement = eris.New("meddpicc: unknown element")

// AllElements returns the elements in canonical MEDDPICC order.
func AllElements() []Element {
	return []Element{
		Metrics, EconomicBuyer, DecisionCriteria, DecisionProcess,
		PaperProcess, ImplicatePain, Champion, Competition,
	}
}

// ParseElement resolves an element name.
func ParseElement(name string) (Element, error) {
	e := Element(name)
	if _, ok := elementProfiles[e]; !ok {
		return "", eris.Wrapf(ErrUnknownElement, "meddpicc: parse element %q", name)
	}
	return e, nil
}

// Label returns the human-readable element name.
func (e Element) Label() string {
	if s, ok := elementProfiles[e]; ok {
		return s.label
	}
	return string(e)
}

// order returns the canonical position used for deterministic tie-breaking.
func (e Element) order() int {
	if s, ok := elementProfiles[e]; ok {
		return s.order
	}
	return len(elementProfiles)
}

// elementProfile describes how one element's payload is read and scored.
type elementProfile struct {
	order int
	label string

	// contentKeys are tried in order for the substantive finding.
	contentKeys []string

	// auxKeys are element-specific fields that count toward richness.
	auxKeys []string

	// expectedItems is the richness at which presence earns full credit.
	expectedItems int

	gapAction string
	objective string
}

var elementProfiles = map[Element]elementProfile{
	Metrics: {
		order:         0,
		label:         "Metrics",
		contentKeys:   []string{"identified", "metrics", "criteria"},
		auxKeys:       []string{"baseline", "target"},
		expectedItems: 2,
		gapAction:     "Quantify the business case with measurable success metrics",
		objective:     "What measurable outcome would make this project a success, and how is it tracked today?",
	},
	EconomicBuyer: {
		order:         1,
		label:         "Economic Buyer",
		contentKeys:   []string{"identified", "economic_buyer", "criteria"},
		auxKeys:       []string{"access"},
		expectedItems: 2,
		gapAction:     "Identify and engage the economic buyer",
		objective:     "Who signs off on this budget, and can we get time with them before the proposal?",
	},
	DecisionCriteria: {
		order:         2,
		label:         "Decision Criteria",
		contentKeys:   []string{"criteria", "identified", "decision_criteria"},
		expectedItems: 3,
		gapAction:     "Document the formal decision criteria and map our differentiators to them",
		objective:     "Which technical and business criteria will the final decision be measured against?",
	},
	DecisionProcess: {
		order:         3,
		label:         "Decision Process",
		contentKeys:   []string{"identified", "steps", "criteria"},
		auxKeys:       []string{"timeline"},
		expectedItems: 3,
		gapAction:     "Map the decision process, its stakeholders and the timeline to signature",
		objective:     "Walk through each step from technical validation to signature: who is involved and when?",
	},
	PaperProcess: {
		order:         4,
		label:         "Paper Process",
		contentKeys:   []string{"identified", "steps", "criteria"},
		auxKeys:       []string{"timeline"},
		expectedItems: 2,
		gapAction:     "Clarify procurement, legal and security review requirements",
		objective:     "What do procurement, legal and security need from us, and how long do those reviews take?",
	},
	ImplicatePain: {
		order:         5,
		label:         "Implicate Pain",
		contentKeys:   []string{"identified", "pains", "criteria"},
		auxKeys:       []string{"business_impact", "urgency_signals"},
		expectedItems: 2,
		gapAction:     "Uncover the business pain and its cost of inaction",
		objective:     "What happens to the business if this problem is still unsolved in six months?",
	},
	Champion: {
		order:         6,
		label:         "Champion",
		contentKeys:   []string{"identified", "champion", "criteria"},
		auxKeys:       []string{"role"},
		expectedItems: 2,
		gapAction:     "Develop and test an internal champion",
		objective:     "Who inside the account is willing to sell this internally, and what do they gain from it?",
	},
	Competition: {
		order:         7,
		label:         "Competition",
		contentKeys:   []string{"identified", "competitors", "criteria"},
		auxKeys:       []string{"differentiators"},
		expectedItems: 2,
		gapAction:     "Identify competing vendors and the status quo alternative",
		objective:     "Which other options are being evaluated, including doing nothing or building in-house?",
	},
}
