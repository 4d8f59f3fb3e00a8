package meddpicc

import (
	"sort"
)

// Urgency labels attached to risk-driven actions.
const (
	UrgencyImmediate   = "immediate"
	UrgencyThisWeek    = "this_week"
	UrgencyNextMeeting = "next_meeting"
	UrgencyMonitor     = "monitor"
)

func urgencyFor(s Severity) string {
	switch s {
	case SeverityCritical:
		return UrgencyImmediate
	case SeverityHigh:
		return UrgencyThisWeek
	case SeverityMedium:
		return UrgencyNextMeeting
	default:
		return UrgencyMonitor
	}
}

func gapSeverity(score float64) Severity {
	switch {
	case score < CriticalGapScore:
		return SeverityCritical
	case score < HighGapScore:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// identifyGaps lists elements below the gap threshold, ordered by weighted
// shortfall, then weight, then canonical order.
func (e *Engine) identifyGaps(scores map[Element]ElementScore) []Gap {
	thr := e.cfg.GapThreshold
	gaps := []Gap{}
	for _, el := range AllElements() {
		es := scores[el]
		if es.TotalScore >= thr {
			continue
		}
		gaps = append(gaps, Gap{
			Element:  el,
			Impact:   round2(e.weights[el] * (thr - es.TotalScore) / thr),
			Score:    es.TotalScore,
			Severity: gapSeverity(es.TotalScore),
		})
	}
	sort.SliceStable(gaps, func(i, j int) bool {
		si := e.weights[gaps[i].Element] * (thr - gaps[i].Score)
		sj := e.weights[gaps[j].Element] * (thr - gaps[j].Score)
		if si != sj {
			return si > sj
		}
		wi, wj := e.weights[gaps[i].Element], e.weights[gaps[j].Element]
		if wi != wj {
			return wi > wj
		}
		return gaps[i].Element.order() < gaps[j].Element.order()
	})
	return gaps
}

// nextActions merges gap remediation with risk playbook actions. Duplicate
// action text keeps the highest-priority occurrence.
func (e *Engine) nextActions(gaps []Gap, risk *RiskAnalysis) []Action {
	var candidates []Action
	for _, g := range gaps {
		candidates = append(candidates, Action{
			Action:   elementProfiles[g.Element].gapAction,
			Element:  g.Element,
			Impact:   g.Impact,
			Priority: g.Severity,
			Source:   SourceGap,
			Urgency:  urgencyFor(g.Severity),
		})
	}
	if risk != nil {
		for _, s := range risk.Signals.All() {
			for _, text := range s.SuggestedActions {
				candidates = append(candidates, Action{
					Action:       text,
					Element:      s.SourceElement,
					Impact:       round2(e.weights[s.SourceElement] * severityWeight[s.Severity]),
					Priority:     s.Severity,
					Source:       SourceRisk,
					RiskCategory: s.Category,
					Urgency:      urgencyFor(s.Severity),
				})
			}
		}
	}

	e.sortActions(candidates)

	// After sorting, the first occurrence of any text is the one to keep.
	actions := []Action{}
	seen := make(map[string]bool, len(candidates))
	for _, a := range candidates {
		key := normalizeText(a.Action)
		if seen[key] {
			continue
		}
		seen[key] = true
		actions = append(actions, a)
	}
	return actions
}

func (e *Engine) sortActions(actions []Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		a, b := actions[i], actions[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if wa, wb := e.weights[a.Element], e.weights[b.Element]; wa != wb {
			return wa > wb
		}
		if a.Source != b.Source {
			return a.Source == SourceGap
		}
		if a.Element != b.Element {
			return a.Element.order() < b.Element.order()
		}
		return a.Action < b.Action
	})
}

// meetingObjectives turns the top gaps into questions for the next meeting.
func meetingObjectives(gaps []Gap) []string {
	out := []string{}
	for i, g := range gaps {
		if i >= MaxMeetingObjectives {
			break
		}
		out = append(out, elementProfiles[g.Element].objective)
	}
	return out
}
