package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/deal-intel/internal/assess"
	"github.com/sells-group/deal-intel/internal/extract"
	"github.com/sells-group/deal-intel/internal/meddpicc"
	"github.com/sells-group/deal-intel/internal/resilience"
	"github.com/sells-group/deal-intel/internal/store"
	"github.com/sells-group/deal-intel/pkg/anthropic"
	"github.com/sells-group/deal-intel/pkg/salesforce"
)

// appEnv holds the initialized dependencies shared by commands.
type appEnv struct {
	Store     store.Store
	Engine    *meddpicc.Engine
	Extractor *extract.Extractor
	CRM       *salesforce.Writer
	Service   *assess.Service
}

// envOptions selects which optional integrations a command needs.
type envOptions struct {
	// Extract requires Anthropic credentials.
	Extract bool
	// CRM enables Salesforce writeback when credentials are configured.
	CRM bool
	// InlineCRM attaches the writer to the service for per-assessment writeback.
	InlineCRM bool
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

func initEnv(ctx context.Context, opts envOptions) (*appEnv, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}

	engine, err := initEngine()
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st, Engine: engine}

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	svcOpts := []assess.Option{
		assess.WithCacheTTL(time.Duration(cfg.Extract.CacheTTLHours) * time.Hour),
	}

	if opts.Extract {
		if err := cfg.Validate("extract"); err != nil {
			env.Close()
			return nil, err
		}
		env.Extractor = initExtractor()
		svcOpts = append(svcOpts, assess.WithExtractor(env.Extractor))
	}

	if opts.CRM && cfg.Salesforce.ClientID != "" {
		w, err := initSalesforce()
		if err != nil {
			env.Close()
			return nil, err
		}
		env.CRM = w
		if opts.InlineCRM {
			svcOpts = append(svcOpts, assess.WithCRM(w))
		}
	}

	env.Service = assess.New(st, engine, svcOpts...)
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "deal-intel.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEngine builds the scoring engine from config, adding any rule pack
// named by scoring.rules_file to the built-in risk rules.
func initEngine() (*meddpicc.Engine, error) {
	var extra []meddpicc.RiskRule
	if cfg.Scoring.RulesFile != "" {
		rules, err := meddpicc.LoadRiskRules(cfg.Scoring.RulesFile)
		if err != nil {
			return nil, eris.Wrap(err, "load risk rules")
		}
		extra = rules
	}
	engine, err := meddpicc.NewEngine(cfg.Scoring, extra...)
	if err != nil {
		return nil, eris.Wrap(err, "init scoring engine")
	}
	return engine, nil
}

func initExtractor() *extract.Extractor {
	client := anthropic.NewClient(cfg.Anthropic.Key)
	return extract.New(client, extract.Options{
		Model:             cfg.Anthropic.Model,
		MaxTokens:         cfg.Anthropic.MaxTokens,
		MaxChars:          cfg.Extract.MaxChars,
		RequestsPerSecond: cfg.Anthropic.RequestsPerSecond,
		Retry:             resilience.DefaultRetryConfig().WithAttempts(cfg.Extract.RetryAttempts),
	})
}

func initSalesforce() (*salesforce.Writer, error) {
	if err := cfg.Validate("salesforce"); err != nil {
		return nil, err
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	client, err := salesforce.Connect(salesforce.Credentials{
		LoginURL:      cfg.Salesforce.LoginURL,
		Username:      cfg.Salesforce.Username,
		ClientID:      cfg.Salesforce.ClientID,
		PrivateKeyPEM: string(pemData),
	}, salesforce.WithRateLimit(cfg.Salesforce.RequestsPerSecond))
	if err != nil {
		return nil, err
	}

	return salesforce.NewWriter(client, fieldMap()), nil
}

func fieldMap() salesforce.FieldMap {
	return salesforce.FieldMap{
		Score:    cfg.Salesforce.ScoreField,
		Status:   cfg.Salesforce.StatusField,
		Risk:     cfg.Salesforce.RiskField,
		NextStep: cfg.Salesforce.NextStepField,
	}
}
