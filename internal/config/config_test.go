package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "deal-intel.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrentDocuments)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, int64(4096), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.LoginURL)
	assert.Equal(t, "MEDDPICC_Score__c", cfg.Salesforce.ScoreField)
	assert.Equal(t, 120000, cfg.Extract.MaxChars)
	assert.Equal(t, 168, cfg.Extract.CacheTTLHours)

	assert.InDelta(t, 18, cfg.Scoring.EconomicBuyerWeight, 0.001)
	assert.InDelta(t, 18, cfg.Scoring.ChampionWeight, 0.001)
	assert.InDelta(t, 8, cfg.Scoring.CompetitionWeight, 0.001)
	assert.InDelta(t, 75, cfg.Scoring.StrongThreshold, 0.001)
	assert.InDelta(t, 40, cfg.Scoring.GapThreshold, 0.001)
	assert.Equal(t, 3, cfg.Scoring.EscalationThreshold)
	assert.InDelta(t, 0.05, cfg.Scoring.TrendTolerance, 0.0001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/deals
log:
  level: debug
  format: console
server:
  port: 9090
scoring:
  champion_weight: 25
  gap_threshold: 35
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/deals", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 25, cfg.Scoring.ChampionWeight, 0.001)
	assert.InDelta(t, 35, cfg.Scoring.GapThreshold, 0.001)
	// Defaults still apply for unset values
	assert.InDelta(t, 18, cfg.Scoring.EconomicBuyerWeight, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("DEALINTEL_STORE_DRIVER", "postgres")
	t.Setenv("DEALINTEL_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvSecrets(t *testing.T) {
	chdirTemp(t)

	t.Setenv("DEALINTEL_ANTHROPIC_KEY", "sk-ant-test")
	t.Setenv("DEALINTEL_SALESFORCE_CLIENT_ID", "sf-client")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
	assert.Equal(t, "sf-client", cfg.Salesforce.ClientID)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "deal-intel.db"
	cfg.Batch.MaxConcurrentDocuments = 4
	cfg.Server.Port = 8080
	cfg.Anthropic.Model = "claude-sonnet-4-5-20250929"
	return cfg
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("store"))

	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""
	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateExtract(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		cfg := validDefaults()
		err := cfg.Validate("extract")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "anthropic.key is required")
	})

	t.Run("all present", func(t *testing.T) {
		cfg := validDefaults()
		cfg.Anthropic.Key = "sk-ant-key"
		assert.NoError(t, cfg.Validate("extract"))
	})
}

func TestValidateSalesforce(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("salesforce")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "salesforce.client_id is required")
	assert.Contains(t, err.Error(), "salesforce.key_path is required")

	cfg.Salesforce.ClientID = "client"
	cfg.Salesforce.KeyPath = "/tmp/key.pem"
	assert.NoError(t, cfg.Validate("salesforce"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.MaxConcurrentDocuments = 0
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_documents must be between 1 and 50")

	cfg.Batch.MaxConcurrentDocuments = 51
	err = cfg.Validate("serve")
	assert.Error(t, err)

	cfg.Batch.MaxConcurrentDocuments = 50
	assert.NoError(t, cfg.Validate("serve"))
}
