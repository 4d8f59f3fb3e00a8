package meddpicc

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-intel/internal/config"
)

// Engine scores extraction snapshots against one scoring config. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	cfg       config.ScoringConfig
	weights   map[Element]float64
	weightSum float64
	detector  *RiskDetector
	hash      string
}

var defaultEngine = MustNewEngine(DefaultScoringConfig())

// NewEngine validates cfg and builds an engine. extraRules are appended to
// the built-in risk rule table.
func NewEngine(cfg config.ScoringConfig, extraRules ...RiskRule) (*Engine, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	rules := append(DefaultRiskRules(), extraRules...)
	detector, err := NewRiskDetector(rules, cfg.EscalationThreshold)
	if err != nil {
		return nil, eris.Wrap(err, "meddpicc: build risk detector")
	}
	return &Engine{
		cfg:       cfg,
		weights:   weightTable(cfg),
		weightSum: WeightSum(cfg),
		detector:  detector,
		hash:      ConfigHash(cfg),
	}, nil
}

// MustNewEngine is NewEngine for configs known to be valid. It panics on error.
func MustNewEngine(cfg config.ScoringConfig, extraRules ...RiskRule) *Engine {
	e, err := NewEngine(cfg, extraRules...)
	if err != nil {
		panic(err)
	}
	return e
}

// DefaultEngine returns the engine built from DefaultScoringConfig.
func DefaultEngine() *Engine {
	return defaultEngine
}

// Config returns the scoring config the engine was built with.
func (e *Engine) Config() config.ScoringConfig {
	return e.cfg
}

// ConfigHash identifies the scoring config.
func (e *Engine) ConfigHash() string {
	return e.hash
}

// Weight returns the strategic weight of el.
func (e *Engine) Weight(el Element) float64 {
	return e.weights[el]
}

// Qualify maps an overall score to its tier. Boundaries belong to the higher tier.
func (e *Engine) Qualify(score float64) Qualification {
	switch {
	case score >= e.cfg.StrongThreshold:
		return QualificationStrong
	case score >= e.cfg.ModerateThreshold:
		return QualificationModerate
	case score >= e.cfg.WeakThreshold:
		return QualificationWeak
	default:
		return QualificationUnqualified
	}
}

// Option tunes a single Calculate call.
type Option func(*calcOptions)

type calcOptions struct {
	history []RiskSnapshot
}

// WithHistory supplies prior risk snapshots for trend computation.
func WithHistory(history ...RiskSnapshot) Option {
	return func(o *calcOptions) {
		o.history = append(o.history, history...)
	}
}

// CalculateMeddpiccScore scores data with the default engine.
func CalculateMeddpiccScore(data any, opts ...Option) (*Result, error) {
	return defaultEngine.Calculate(data, opts...)
}

// Calculate scores a decoded extraction payload. The only error is a
// top-level value that is not a mapping.
func (e *Engine) Calculate(data any, opts ...Option) (*Result, error) {
	snap, err := SnapshotFrom(data)
	if err != nil {
		return nil, err
	}
	return e.Score(snap, opts...), nil
}

// CalculateJSON decodes raw and scores it.
func (e *Engine) CalculateJSON(raw []byte, opts ...Option) (*Result, error) {
	snap, err := ParseSnapshot(raw)
	if err != nil {
		return nil, err
	}
	return e.Score(snap, opts...), nil
}

// ScoreElement scores one element in isolation.
func (e *Engine) ScoreElement(name string, data map[string]any) (ElementScore, error) {
	return ScoreElement(name, data)
}

// DetectRiskSignals runs the engine's risk detector over snap.
func (e *Engine) DetectRiskSignals(snap Snapshot, opts ...Option) *RiskAnalysis {
	var o calcOptions
	for _, opt := range opts {
		opt(&o)
	}
	analysis := e.detector.Detect(snap)
	analysis.RiskTrend = ComputeTrend(analysis.OverallRiskScore, o.history, e.cfg.TrendTolerance)
	return analysis
}

// Score runs the full pipeline over a parsed snapshot: element scoring,
// weighted aggregation, tiering, gaps, risk detection and recommendations.
func (e *Engine) Score(snap Snapshot, opts ...Option) *Result {
	res := &Result{
		ElementScores:     make(map[Element]ElementScore, len(e.weights)),
		IgnoredKeys:       snap.IgnoredKeys,
		MalformedElements: snap.MalformedElements,
		ConfigHash:        e.hash,
	}

	var weighted float64
	for _, el := range AllElements() {
		es := scoreElement(el, snap.Input(el))
		res.ElementScores[el] = es
		weighted += es.TotalScore * e.weights[el]
	}
	res.OverallScore = round2(weighted / e.weightSum)
	res.QualificationStatus = e.Qualify(res.OverallScore)

	res.RiskAnalysis = e.DetectRiskSignals(snap, opts...)
	res.CriticalGaps = e.identifyGaps(res.ElementScores)
	res.NextActions = e.nextActions(res.CriticalGaps, res.RiskAnalysis)
	res.MeetingObjectives = meetingObjectives(res.CriticalGaps)
	return res
}
