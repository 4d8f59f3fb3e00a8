package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// SalesforceConfig holds Salesforce JWT auth settings and the Opportunity
// fields that receive assessment results. An empty field name skips that value.
type SalesforceConfig struct {
	ClientID          string  `yaml:"client_id" mapstructure:"client_id"`
	Username          string  `yaml:"username" mapstructure:"username"`
	KeyPath           string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL          string  `yaml:"login_url" mapstructure:"login_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	ScoreField        string  `yaml:"score_field" mapstructure:"score_field"`
	StatusField       string  `yaml:"status_field" mapstructure:"status_field"`
	RiskField         string  `yaml:"risk_field" mapstructure:"risk_field"`
	NextStepField     string  `yaml:"next_step_field" mapstructure:"next_step_field"`
}

// ExtractConfig configures transcript extraction.
type ExtractConfig struct {
	MaxChars      int `yaml:"max_chars" mapstructure:"max_chars"`
	CacheTTLHours int `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	RetryAttempts int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// ScoringConfig holds the MEDDPICC strategic weights and thresholds.
// Weights are relative; the engine normalizes by their sum.
type ScoringConfig struct {
	MetricsWeight          float64 `yaml:"metrics_weight" mapstructure:"metrics_weight"`
	EconomicBuyerWeight    float64 `yaml:"economic_buyer_weight" mapstructure:"economic_buyer_weight"`
	DecisionCriteriaWeight float64 `yaml:"decision_criteria_weight" mapstructure:"decision_criteria_weight"`
	DecisionProcessWeight  float64 `yaml:"decision_process_weight" mapstructure:"decision_process_weight"`
	PaperProcessWeight     float64 `yaml:"paper_process_weight" mapstructure:"paper_process_weight"`
	ImplicatePainWeight    float64 `yaml:"implicate_pain_weight" mapstructure:"implicate_pain_weight"`
	ChampionWeight         float64 `yaml:"champion_weight" mapstructure:"champion_weight"`
	CompetitionWeight      float64 `yaml:"competition_weight" mapstructure:"competition_weight"`

	StrongThreshold   float64 `yaml:"strong_threshold" mapstructure:"strong_threshold"`
	ModerateThreshold float64 `yaml:"moderate_threshold" mapstructure:"moderate_threshold"`
	WeakThreshold     float64 `yaml:"weak_threshold" mapstructure:"weak_threshold"`
	GapThreshold      float64 `yaml:"gap_threshold" mapstructure:"gap_threshold"`

	EscalationThreshold int     `yaml:"escalation_threshold" mapstructure:"escalation_threshold"`
	TrendTolerance      float64 `yaml:"trend_tolerance" mapstructure:"trend_tolerance"`
	RulesFile           string  `yaml:"rules_file" mapstructure:"rules_file"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents" mapstructure:"max_concurrent_documents"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEALINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "deal-intel.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("batch.max_concurrent_documents", 4)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.requests_per_second", 2.0)
	v.SetDefault("salesforce.client_id", "")
	v.SetDefault("salesforce.username", "")
	v.SetDefault("salesforce.key_path", "")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.requests_per_second", 5.0)
	v.SetDefault("salesforce.score_field", "MEDDPICC_Score__c")
	v.SetDefault("salesforce.status_field", "MEDDPICC_Status__c")
	v.SetDefault("salesforce.risk_field", "MEDDPICC_Risk_Score__c")
	v.SetDefault("salesforce.next_step_field", "NextStep")
	v.SetDefault("extract.max_chars", 120000)
	v.SetDefault("extract.cache_ttl_hours", 168)
	v.SetDefault("extract.retry_attempts", 3)

	// Scoring defaults mirror meddpicc.DefaultScoringConfig.
	v.SetDefault("scoring.metrics_weight", 10)
	v.SetDefault("scoring.economic_buyer_weight", 18)
	v.SetDefault("scoring.decision_criteria_weight", 10)
	v.SetDefault("scoring.decision_process_weight", 12)
	v.SetDefault("scoring.paper_process_weight", 9)
	v.SetDefault("scoring.implicate_pain_weight", 15)
	v.SetDefault("scoring.champion_weight", 18)
	v.SetDefault("scoring.competition_weight", 8)
	v.SetDefault("scoring.strong_threshold", 75)
	v.SetDefault("scoring.moderate_threshold", 50)
	v.SetDefault("scoring.weak_threshold", 25)
	v.SetDefault("scoring.gap_threshold", 40)
	v.SetDefault("scoring.escalation_threshold", 3)
	v.SetDefault("scoring.trend_tolerance", 0.05)
	v.SetDefault("scoring.rules_file", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings required by the given mode are present.
// Modes: "store", "extract", "salesforce", "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	requireStore := func() {
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			errs = append(errs, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}

	switch mode {
	case "store":
		requireStore()
	case "extract":
		requireStore()
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Anthropic.Model == "" {
			errs = append(errs, "anthropic.model is required")
		}
	case "salesforce":
		if c.Salesforce.ClientID == "" {
			errs = append(errs, "salesforce.client_id is required")
		}
		if c.Salesforce.KeyPath == "" {
			errs = append(errs, "salesforce.key_path is required")
		}
	case "serve":
		requireStore()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Batch.MaxConcurrentDocuments < 1 || c.Batch.MaxConcurrentDocuments > 50 {
		errs = append(errs, "batch.max_concurrent_documents must be between 1 and 50")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
