package meddpicc

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Evidence item credit toward the completeness sub-score.
const (
	specificEvidencePoints = 10.0
	vagueEvidencePoints    = 4.0

	// specificEvidenceLength is the rune length at which an unhedged quote
	// counts as specific even without concrete markers.
	specificEvidenceLength = 40
)

// Champion strength multipliers applied to presence.
var championStrength = map[string]float64{
	"weak":     0.5,
	"low":      0.5,
	"moderate": 0.75,
	"medium":   0.75,
}

var hedgeMarkers = []string{
	"maybe", "might", "not sure", "possibly", "tbd", "unclear", "i think",
	"probably", "sort of", "kind of", "hopefully", "somewhat", "unsure",
}

var concreteMarkers = []string{
	"$", "€", "£", "%", "\"", "“", "cfo", "ceo", "cio", "cto", "coo", "vp ",
	"director", "head of", "procurement", "legal", "q1", "q2", "q3", "q4",
	"quarter", "january", "february", "march", "april", "june", "july",
	"august", "september", "october", "november", "december", "fiscal",
	"by end of", "deadline", "signed", "budget of",
}

// ScoreElement scores one element from its raw payload. The only error is an
// unknown element name; malformed fields degrade to zero-valued signals.
func ScoreElement(name string, data map[string]any) (ElementScore, error) {
	e, err := ParseElement(name)
	if err != nil {
		return ElementScore{}, err
	}
	if data == nil {
		return scoreElement(e, ElementInput{}), nil
	}
	return scoreElement(e, parseElementInput(e, data)), nil
}

func scoreElement(e Element, in ElementInput) ElementScore {
	prof := elementProfiles[e]
	es := ElementScore{
		Element:     e,
		ContentKind: in.Content.Kind.String(),
	}

	hasFinding := !in.Content.IsEmpty() || len(in.Aux) > 0

	// Presence: richness relative to what a complete finding looks like.
	if hasFinding {
		expected := prof.expectedItems
		richness := in.Content.richness(expected) + len(in.Aux)
		es.ContentItems = richness
		ratio := math.Min(float64(richness), float64(expected)) / float64(expected)
		presence := PresencePoints * ratio
		if e == Champion {
			if m, ok := championStrength[in.Strength]; ok {
				presence *= m
			}
		}
		es.PresenceScore = round2(presence)

		// Confidence only counts once something was actually identified.
		es.Confidence = clampUnit(in.Confidence)
		es.ConfidenceScore = round2(es.Confidence * ConfidencePoints)
	}

	// Completeness: distinct evidence, weighted by specificity.
	var completeness float64
	seen := make(map[string]bool, len(in.Evidence))
	for _, ev := range in.Evidence {
		key := normalizeText(ev)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		es.EvidenceCount++
		if isSpecificEvidence(ev) {
			es.SpecificEvidence++
			completeness += specificEvidencePoints
		} else {
			completeness += vagueEvidencePoints
		}
	}
	es.CompletenessScore = round2(math.Min(completeness, CompletenessPoints))

	total := es.PresenceScore + es.ConfidenceScore + es.CompletenessScore
	es.TotalScore = round2(math.Max(0, math.Min(total, 100)))
	return es
}

// isSpecificEvidence separates concrete, attributable evidence from vague
// paraphrase. Hedged statements are never specific.
func isSpecificEvidence(ev string) bool {
	folded := fold(ev)
	for _, m := range hedgeMarkers {
		if strings.Contains(folded, m) {
			return false
		}
	}
	if utf8.RuneCountInString(strings.TrimSpace(ev)) >= specificEvidenceLength {
		return true
	}
	if strings.IndexFunc(ev, unicode.IsDigit) >= 0 {
		return true
	}
	for _, m := range concreteMarkers {
		if strings.Contains(folded, m) {
			return true
		}
	}
	return false
}

// fold case-folds s. A Caser is stateful, so one is built per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

// normalizeText folds case, drops punctuation and collapses whitespace so
// near-identical evidence compares equal.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range fold(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
