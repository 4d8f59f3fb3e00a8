package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-intel/internal/resilience"
)

// Client defines the Anthropic API operations used for extraction.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest is our own request type for CreateMessage.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      []SystemBlock
	Messages    []Message
	Temperature *float64
}

// SystemBlock represents a system prompt block, optionally with cache control.
type SystemBlock struct {
	Text         string
	CacheControl *CacheControl
}

// CacheControl configures caching for a content block.
type CacheControl struct {
	TTL string // "5m" or "1h"
}

// Message represents a single conversational message.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// MessageResponse is our own response type from CreateMessage.
type MessageResponse struct {
	ID         string
	Model      string
	Content    []ContentBlock
	StopReason string
	Usage      TokenUsage
}

// Text concatenates the text blocks of the response.
func (r *MessageResponse) Text() string {
	var b strings.Builder
	for _, c := range r.Content {
		if c.Type == "text" || c.Type == "" {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// ContentBlock represents a block of content in a response.
type ContentBlock struct {
	Type string
	Text string
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
}

// NewClient creates a new Anthropic client backed by the SDK. Extra request
// options (base URL, custom HTTP client) are passed through to the SDK.
func NewClient(apiKey string, opts ...option.RequestOption) Client {
	all := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries are owned by the caller through resilience.DoVal.
		option.WithMaxRetries(0),
	}, opts...)
	return &sdkClient{client: sdk.NewClient(all...)}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	msg, err := c.client.Messages.New(ctx, req.params())
	if err != nil {
		return nil, classifyError(err)
	}
	return newMessageResponse(msg), nil
}

// classifyError marks rate limits and server errors as transient so the
// retry layer can back off and try again.
func classifyError(err error) error {
	wrapped := eris.Wrap(err, "anthropic: create message")
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
		return resilience.NewTransientError(wrapped, apiErr.StatusCode)
	}
	return wrapped
}

func (r MessageRequest) params() sdk.MessageNewParams {
	p := sdk.MessageNewParams{
		Model:     sdk.Model(r.Model),
		MaxTokens: r.MaxTokens,
		Messages:  make([]sdk.MessageParam, 0, len(r.Messages)),
	}
	for _, m := range r.Messages {
		p.Messages = append(p.Messages, m.param())
	}
	for _, b := range r.System {
		p.System = append(p.System, b.param())
	}
	if r.Temperature != nil {
		p.Temperature = sdk.Float(*r.Temperature)
	}
	return p
}

// param maps any role other than "assistant" to a user turn.
func (m Message) param() sdk.MessageParam {
	block := sdk.NewTextBlock(m.Content)
	if m.Role == "assistant" {
		return sdk.NewAssistantMessage(block)
	}
	return sdk.NewUserMessage(block)
}

func (b SystemBlock) param() sdk.TextBlockParam {
	p := sdk.TextBlockParam{Text: b.Text}
	if b.CacheControl == nil {
		return p
	}
	p.CacheControl = sdk.NewCacheControlEphemeralParam()
	if ttl := b.CacheControl.TTL; ttl != "" {
		p.CacheControl.TTL = sdk.CacheControlEphemeralTTL(ttl)
	}
	return p
}

func newMessageResponse(msg *sdk.Message) *MessageResponse {
	resp := &MessageResponse{
		ID:         msg.ID,
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Content:    make([]ContentBlock, len(msg.Content)),
		Usage: TokenUsage{
			InputTokens:              msg.Usage.InputTokens,
			OutputTokens:             msg.Usage.OutputTokens,
			CacheCreationInputTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     msg.Usage.CacheReadInputTokens,
		},
	}
	for i, b := range msg.Content {
		resp.Content[i] = ContentBlock{Type: b.Type, Text: b.Text}
	}
	return resp
}
