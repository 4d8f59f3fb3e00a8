package meddpicc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTrend(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		current float64
		history []RiskSnapshot
		want    RiskTrend
	}{
		{"no history", 0.4, nil, TrendBaseline},
		{"within tolerance", 0.42, []RiskSnapshot{{OverallRiskScore: 0.40, TakenAt: now}}, TrendStable},
		{"identical", 0.4, []RiskSnapshot{{OverallRiskScore: 0.4, TakenAt: now}}, TrendStable},
		{"improving", 0.2, []RiskSnapshot{{OverallRiskScore: 0.4, TakenAt: now}}, TrendImproving},
		{"worsening", 0.6, []RiskSnapshot{{OverallRiskScore: 0.4, TakenAt: now}}, TrendWorsening},
		{"latest snapshot wins", 0.5, []RiskSnapshot{
			{OverallRiskScore: 0.5, TakenAt: now},
			{OverallRiskScore: 0.1, TakenAt: now.Add(-48 * time.Hour)},
		}, TrendStable},
		{"later entry wins on equal time", 0.5, []RiskSnapshot{
			{OverallRiskScore: 0.5},
			{OverallRiskScore: 0.9},
		}, TrendImproving},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeTrend(tt.current, tt.history, TrendTolerance))
		})
	}
}

func TestComputeTrend_ZeroTolerance(t *testing.T) {
	assert.Equal(t, TrendStable, ComputeTrend(0.3, []RiskSnapshot{{OverallRiskScore: 0.3}}, 0))
	assert.Equal(t, TrendWorsening, ComputeTrend(0.31, []RiskSnapshot{{OverallRiskScore: 0.3}}, 0))
}

func TestCalculate_WithHistory(t *testing.T) {
	data := map[string]any{
		"economic_buyer": map[string]any{"evidence": []any{"budget freeze until next quarter"}},
	}

	res, err := CalculateMeddpiccScore(data)
	require.NoError(t, err)
	assert.Equal(t, TrendBaseline, res.RiskAnalysis.RiskTrend)

	res, err = CalculateMeddpiccScore(data, WithHistory(RiskSnapshot{OverallRiskScore: 0.9, TakenAt: time.Now()}))
	require.NoError(t, err)
	assert.Equal(t, TrendImproving, res.RiskAnalysis.RiskTrend)

	res, err = CalculateMeddpiccScore(data, WithHistory(RiskSnapshot{OverallRiskScore: 0}))
	require.NoError(t, err)
	assert.Equal(t, TrendWorsening, res.RiskAnalysis.RiskTrend)
}
