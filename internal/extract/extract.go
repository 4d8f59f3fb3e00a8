// Package extract turns sales conversation documents into MEDDPICC
// extraction payloads using the Anthropic API.
package extract

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/deal-intel/internal/meddpicc"
	"github.com/sells-group/deal-intel/internal/model"
	"github.com/sells-group/deal-intel/internal/resilience"
	"github.com/sells-group/deal-intel/pkg/anthropic"
)

// ErrUnparseableResponse is returned when the model output holds no JSON object.
var ErrUnparseableResponse = eris.New("extract: unparseable model response")

// ErrEmptyDocument is returned for documents with no content.
var ErrEmptyDocument = eris.New("extract: empty document")

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 4096
	defaultMaxChars  = 120000
)

// Options configures an Extractor.
type Options struct {
	Model             string
	MaxTokens         int64
	MaxChars          int
	RequestsPerSecond float64
	Retry             resilience.RetryConfig
}

// Extraction is the parsed model output for one document.
type Extraction struct {
	// Data maps element names to the extracted element objects.
	Data      map[string]any       `json:"data"`
	Model     string               `json:"model"`
	Usage     anthropic.TokenUsage `json:"usage"`
	CostUSD   float64              `json:"cost_usd"`
	Truncated bool                 `json:"truncated"`
	Duration  time.Duration        `json:"duration"`
}

// JSON returns Data encoded for caching and persistence.
func (x *Extraction) JSON() (json.RawMessage, error) {
	b, err := json.Marshal(x.Data)
	if err != nil {
		return nil, eris.Wrap(err, "extract: marshal extraction")
	}
	return b, nil
}

// Extractor calls the LLM to extract MEDDPICC data. It is safe for
// concurrent use; calls share one rate limiter.
type Extractor struct {
	client  anthropic.Client
	opts    Options
	limiter *rate.Limiter
	system  []anthropic.SystemBlock
}

// New creates an Extractor. Zero-valued options take package defaults and a
// non-positive RequestsPerSecond disables rate limiting.
func New(client anthropic.Client, opts Options) *Extractor {
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = defaultMaxChars
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("anthropic", "extract")
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Extractor{
		client:  client,
		opts:    opts,
		limiter: limiter,
		system:  anthropic.CachedSystem(anthropic.CacheTTLHour, systemPrompt),
	}
}

// Model returns the model ID used for extraction.
func (e *Extractor) Model() string {
	return e.opts.Model
}

// Extract runs extraction for a single document.
func (e *Extractor) Extract(ctx context.Context, doc *model.Document) (*Extraction, error) {
	if doc == nil || doc.Content == "" {
		return nil, ErrEmptyDocument
	}

	start := time.Now()
	userMsg, truncated := buildUserMessage(doc, e.opts.MaxChars)
	zero := 0.0
	req := anthropic.MessageRequest{
		Model:       e.opts.Model,
		MaxTokens:   e.opts.MaxTokens,
		System:      e.system,
		Messages:    []anthropic.Message{{Role: "user", Content: userMsg}},
		Temperature: &zero,
	}

	resp, err := resilience.DoVal(ctx, e.opts.Retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "extract: rate limit wait")
		}
		return e.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "extract: document %s", doc.ID)
	}

	data, err := parseResponse(resp.Text())
	if err != nil {
		return nil, err
	}

	x := &Extraction{
		Data:      data,
		Model:     e.opts.Model,
		Usage:     resp.Usage,
		CostUSD:   resp.Usage.EstimateCost(e.opts.Model),
		Truncated: truncated,
		Duration:  time.Since(start),
	}

	resp.Usage.LogCost(e.opts.Model, "extract",
		zap.String("tenant_id", doc.TenantID),
		zap.String("deal_id", doc.DealID),
		zap.String("document_id", doc.ID),
		zap.Bool("truncated", truncated),
	)
	return x, nil
}

// parseResponse decodes the model text and keeps only MEDDPICC element keys.
func parseResponse(text string) (map[string]any, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, ErrUnparseableResponse
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, eris.Wrapf(ErrUnparseableResponse, "extract: decode: %v", err)
	}
	if raw == nil {
		return nil, ErrUnparseableResponse
	}

	data := make(map[string]any, len(raw))
	for _, el := range meddpicc.AllElements() {
		if v, ok := raw[string(el)]; ok {
			data[string(el)] = v
		}
	}
	return data, nil
}
