package meddpicc

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// richElement returns a payload that earns full marks for e.
func richElement(e Element) map[string]any {
	payloads := map[Element]map[string]any{
		Metrics: {
			"identified": []any{"Cut onboarding time from 10 days to 3", "Reduce support tickets 25%"},
			"evidence": []any{
				"Ops lead said onboarding takes 10 days today",
				"Target is 3 days by the end of Q3",
				"Support volume is 1,200 tickets a month",
			},
		},
		EconomicBuyer: {
			"identified": "Dana Lee, CFO",
			"access":     "Met twice",
			"evidence": []any{
				"Dana Lee owns the 2025 operations budget",
				"CFO joined the call on May 14",
				"Dana confirmed sign-off authority up to $500k",
			},
		},
		DecisionCriteria: {
			"criteria": []any{"SOC 2 Type II", "Salesforce integration", "Annual cost under $200k"},
			"evidence": []any{
				"Security team requires SOC 2 Type II",
				"Must sync with Salesforce within 24 hours",
				"Budget ceiling is $200k per year",
			},
		},
		DecisionProcess: {
			"identified": []any{"Technical validation", "Vendor vetting", "CFO sign-off"},
			"timeline":   "Decision by Q3",
			"evidence": []any{
				"Technical validation runs for 2 weeks",
				"Vendor vetting takes 10 business days",
				"CFO signs after step 2",
			},
		},
		PaperProcess: {
			"steps":    []any{"MSA review", "Purchase order"},
			"timeline": "30 days",
			"evidence": []any{
				"MSA review typically takes 3 weeks",
				"PO issued within 5 days of signature",
				"Net 30 payment terms are standard",
			},
		},
		ImplicatePain: {
			"pains":           []any{"Manual reconciliation", "Audit findings"},
			"business_impact": "400 hours a month",
			"evidence": []any{
				"Reconciliation costs 400 hours a month",
				"Two audit findings in 2023",
				"Finance team works 3 weekends per quarter",
			},
		},
		Champion: {
			"identified": "Priya Shah, VP Operations",
			"strength":   "strong",
			"evidence": []any{
				"Priya presented our deck to 6 directors",
				"She booked the CFO meeting for May 14",
				"Priya shared the internal business case with 2 teams",
			},
		},
		Competition: {
			"competitors":     []any{"Acme Analytics", "Spreadsheets"},
			"differentiators": "Native Salesforce sync",
			"evidence": []any{
				"Acme quoted $180k for year 1",
				"Finance has used spreadsheets since 2019",
				"Acme lacks a Salesforce connector as of v4",
			},
		},
	}
	p := payloads[e]
	p["confidence"] = 1.0
	return p
}

func fullyQualified() map[string]any {
	data := make(map[string]any)
	for _, e := range AllElements() {
		data[string(e)] = richElement(e)
	}
	return data
}

func TestCalculate_EmptyInput(t *testing.T) {
	res, err := CalculateMeddpiccScore(map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.OverallScore)
	assert.Equal(t, QualificationUnqualified, res.QualificationStatus)
	assert.Len(t, res.ElementScores, 8)
	require.Len(t, res.CriticalGaps, 8)
	require.NotNil(t, res.RiskAnalysis)
	assert.Equal(t, 0, res.RiskAnalysis.TotalSignals)
	assert.Empty(t, res.RiskAnalysis.PrimaryRiskCategories)
	assert.Empty(t, res.RiskAnalysis.Categories)

	var order []Element
	for _, g := range res.CriticalGaps {
		order = append(order, g.Element)
		assert.Equal(t, SeverityCritical, g.Severity)
		assert.Equal(t, 0.0, g.Score)
	}
	assert.Equal(t, []Element{
		EconomicBuyer, Champion, ImplicatePain, DecisionProcess,
		Metrics, DecisionCriteria, PaperProcess, Competition,
	}, order)

	require.Len(t, res.MeetingObjectives, MaxMeetingObjectives)
	assert.Equal(t, elementProfiles[EconomicBuyer].objective, res.MeetingObjectives[0])
	assert.Equal(t, elementProfiles[Champion].objective, res.MeetingObjectives[1])
	assert.Equal(t, elementProfiles[ImplicatePain].objective, res.MeetingObjectives[2])

	require.Len(t, res.NextActions, 8)
	assert.Equal(t, "Identify and engage the economic buyer", res.NextActions[0].Action)
	assert.Equal(t, SourceGap, res.NextActions[0].Source)
}

func TestCalculate_FullyQualified(t *testing.T) {
	res, err := CalculateMeddpiccScore(fullyQualified())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.OverallScore, 90.0)
	assert.Equal(t, QualificationStrong, res.QualificationStatus)
	assert.Empty(t, res.CriticalGaps)
	assert.Empty(t, res.MeetingObjectives)
	for _, e := range AllElements() {
		assert.InDelta(t, 100.0, res.ElementScores[e].TotalScore, 0.01, e)
	}
}

func TestCalculate_SingleElementWeightedAggregation(t *testing.T) {
	eng := DefaultEngine()
	sum := WeightSum(eng.Config())

	for _, e := range AllElements() {
		t.Run(string(e), func(t *testing.T) {
			res, err := eng.Calculate(map[string]any{string(e): richElement(e)})
			require.NoError(t, err)

			require.InDelta(t, 100.0, res.ElementScores[e].TotalScore, 0.01)
			assert.InDelta(t, 100*eng.Weight(e)/sum, res.OverallScore, 0.01)
		})
	}
}

func TestQualify_Boundaries(t *testing.T) {
	eng := DefaultEngine()
	tests := []struct {
		score float64
		want  Qualification
	}{
		{100, QualificationStrong},
		{StrongThreshold, QualificationStrong},
		{74.99, QualificationModerate},
		{ModerateThreshold, QualificationModerate},
		{49.99, QualificationWeak},
		{WeakThreshold, QualificationWeak},
		{24.99, QualificationUnqualified},
		{0, QualificationUnqualified},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, eng.Qualify(tt.score), "score %.2f", tt.score)
	}
}

func TestCalculate_GapOrderingByWeight(t *testing.T) {
	partial := func() map[string]any {
		return map[string]any{"identified": []any{"one"}, "confidence": 0.2}
	}
	res, err := CalculateMeddpiccScore(map[string]any{
		"competition": partial(),
		"champion":    partial(),
	})
	require.NoError(t, err)

	var champ, comp = -1, -1
	for i, g := range res.CriticalGaps {
		switch g.Element {
		case Champion:
			champ = i
		case Competition:
			comp = i
		}
	}
	require.NotEqual(t, -1, champ)
	require.NotEqual(t, -1, comp)
	assert.Less(t, champ, comp)
	assert.Equal(t, res.ElementScores[Champion].TotalScore, res.ElementScores[Competition].TotalScore)
}

func TestCalculate_GapSeverity(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want Severity
	}{
		{"one criterion", map[string]any{"criteria": []any{"SOC 2"}}, SeverityCritical},
		{"two criteria", map[string]any{"criteria": []any{"SOC 2", "SSO"}}, SeverityHigh},
		{"two criteria and vague evidence", map[string]any{
			"criteria": []any{"SOC 2", "SSO"},
			"evidence": []any{"they care"},
		}, SeverityMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := CalculateMeddpiccScore(map[string]any{"decision_criteria": tt.data})
			require.NoError(t, err)

			var found bool
			for _, g := range res.CriticalGaps {
				if g.Element == DecisionCriteria {
					found = true
					assert.Equal(t, tt.want, g.Severity)
				}
			}
			assert.True(t, found)
		})
	}
}

func TestCalculate_NotAMapping(t *testing.T) {
	for _, v := range []any{nil, "text", 42, []any{map[string]any{}}} {
		_, err := CalculateMeddpiccScore(v)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidInput))
	}
}

func TestCalculateJSON(t *testing.T) {
	eng := DefaultEngine()

	res, err := eng.CalculateJSON([]byte(`{"champion": {"identified": "Priya", "confidence": 0.5}, "deal_size": 1}`))
	require.NoError(t, err)
	assert.Greater(t, res.ElementScores[Champion].TotalScore, 0.0)
	assert.Equal(t, []string{"deal_size"}, res.IgnoredKeys)

	_, err = eng.CalculateJSON([]byte(`[1, 2]`))
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = eng.CalculateJSON([]byte(`{not json`))
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestCalculate_Totality(t *testing.T) {
	inputs := []map[string]any{
		{},
		{"metrics": nil},
		{"metrics": "not a mapping"},
		{"champion": map[string]any{"confidence": "high", "evidence": 7}},
		{"economic_buyer": map[string]any{"identified": map[string]any{}, "evidence": []any{nil, 3, true}}},
		{"decision_process": map[string]any{"identified": []any{}, "confidence": -4.0}},
		{"paper_process": map[string]any{"steps": []any{map[string]any{"name": "MSA"}}, "confidence": 9.0}},
		{"competition": []any{"acme"}},
	}
	for i, in := range inputs {
		res, err := CalculateMeddpiccScore(in)
		require.NoError(t, err, "input %d", i)
		assert.GreaterOrEqual(t, res.OverallScore, 0.0)
		assert.LessOrEqual(t, res.OverallScore, 100.0)
		for _, es := range res.ElementScores {
			assert.GreaterOrEqual(t, es.TotalScore, 0.0)
			assert.LessOrEqual(t, es.TotalScore, 100.0)
		}
		assert.GreaterOrEqual(t, res.RiskAnalysis.OverallRiskScore, 0.0)
		assert.LessOrEqual(t, res.RiskAnalysis.OverallRiskScore, 1.0)
	}
}

func TestCalculate_MalformedElementsRecorded(t *testing.T) {
	res, err := CalculateMeddpiccScore(map[string]any{
		"metrics":  "oops",
		"champion": map[string]any{"identified": "Priya", "confidence": true},
	})
	require.NoError(t, err)
	assert.Equal(t, []Element{Metrics, Champion}, res.MalformedElements)
	assert.Equal(t, 0.0, res.ElementScores[Champion].ConfidenceScore)
	assert.Equal(t, PresencePoints, res.ElementScores[Champion].PresenceScore)
}

func TestCalculate_RiskActionsMerged(t *testing.T) {
	res, err := CalculateMeddpiccScore(map[string]any{
		"economic_buyer": map[string]any{
			"identified": "Dana Lee, CFO",
			"confidence": 0.9,
			"evidence":   []any{"Dana said there is a budget freeze until March"},
		},
		"metrics": map[string]any{
			"identified": "Cut costs",
			"confidence": 0.9,
			"evidence":   []any{"Procurement thinks we are too expensive"},
		},
	})
	require.NoError(t, err)

	var risk []Action
	counts := make(map[string]int)
	for _, a := range res.NextActions {
		counts[a.Action]++
		if a.Source == SourceRisk {
			risk = append(risk, a)
		}
	}
	for text, n := range counts {
		assert.Equal(t, 1, n, "duplicate action %q", text)
	}

	require.NotEmpty(t, risk)
	for _, a := range risk {
		assert.Equal(t, RiskBudget, a.RiskCategory)
	}
	// Shared playbook actions keep the critical priority of the freeze.
	assert.Equal(t, SeverityCritical, risk[0].Priority)
	assert.Equal(t, UrgencyImmediate, risk[0].Urgency)
	assert.Equal(t, SeverityCritical, res.NextActions[0].Priority)

	for i := 1; i < len(res.NextActions); i++ {
		assert.GreaterOrEqual(t, res.NextActions[i-1].Priority.Rank(), res.NextActions[i].Priority.Rank())
	}
}

func TestResult_TopActions(t *testing.T) {
	res, err := CalculateMeddpiccScore(map[string]any{})
	require.NoError(t, err)

	assert.Len(t, res.TopActions(3), 3)
	assert.Empty(t, res.TopActions(0))
	assert.Empty(t, res.TopActions(-1))
	assert.Len(t, res.TopActions(100), 8)
	assert.Len(t, res.NextActions, 8)
}

func TestResult_JSONShape(t *testing.T) {
	res, err := CalculateMeddpiccScore(map[string]any{})
	require.NoError(t, err)

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	for _, key := range []string{"overall_score", "qualification_status", "element_scores", "critical_gaps", "next_actions", "meeting_objectives", "risk_analysis"} {
		assert.Contains(t, out, key)
	}
	risk := out["risk_analysis"].(map[string]any)
	signals := risk["signals"].(map[string]any)
	for _, bucket := range []string{"critical", "high", "medium", "low"} {
		assert.NotNil(t, signals[bucket], bucket)
	}
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	cfg := DefaultScoringConfig()
	cfg.StrongThreshold = 10

	_, err := NewEngine(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	assert.Panics(t, func() { MustNewEngine(cfg) })
}

func TestNewEngine_CustomWeights(t *testing.T) {
	cfg := DefaultScoringConfig()
	cfg.CompetitionWeight = 0

	eng, err := NewEngine(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, DefaultEngine().ConfigHash(), eng.ConfigHash())

	res, err := eng.Calculate(map[string]any{"competition": richElement(Competition)})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.OverallScore)
}

func TestEngine_ConcurrentUse(t *testing.T) {
	eng := DefaultEngine()
	want, err := eng.Calculate(fullyQualified())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := eng.Calculate(fullyQualified())
			assert.NoError(t, err)
			assert.Equal(t, want.OverallScore, got.OverallScore)
		}()
	}
	wg.Wait()
}
