package meddpicc

import (
	"math"
	"time"
)

// RiskTrend describes how overall risk moved since the previous assessment.
type RiskTrend string

// Risk trends.
const (
	TrendBaseline  RiskTrend = "baseline"
	TrendImproving RiskTrend = "improving"
	TrendStable    RiskTrend = "stable"
	TrendWorsening RiskTrend = "worsening"
)

// RiskSnapshot is a prior assessment's risk summary, supplied by the caller.
type RiskSnapshot struct {
	OverallRiskScore float64   `json:"overall_risk_score"`
	TotalSignals     int       `json:"total_signals"`
	TakenAt          time.Time `json:"taken_at"`
}

// ComputeTrend compares current against the most recent snapshot in history.
// Snapshots are ordered by TakenAt; with equal timestamps the later entry wins.
func ComputeTrend(current float64, history []RiskSnapshot, tolerance float64) RiskTrend {
	if len(history) == 0 {
		return TrendBaseline
	}
	latest := history[0]
	for _, h := range history[1:] {
		if !h.TakenAt.Before(latest.TakenAt) {
			latest = h
		}
	}
	delta := current - latest.OverallRiskScore
	switch {
	case delta == 0 || math.Abs(delta) < tolerance:
		return TrendStable
	case delta < 0:
		return TrendImproving
	default:
		return TrendWorsening
	}
}
