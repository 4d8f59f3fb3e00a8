package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/deal-intel/internal/resilience"
)

func newTestClient(baseURL string) Client {
	return NewClient("test-key", option.WithBaseURL(baseURL))
}

func writeMessage(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
		"id":   "msg_test_001",
		"type": "message",
		"role": "assistant",
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
		"model":       "claude-sonnet-4-5-20250929",
		"stop_reason": "end_turn",
		"usage": map[string]any{
			"input_tokens":                1200,
			"output_tokens":               300,
			"cache_creation_input_tokens": 0,
			"cache_read_input_tokens":     800,
		},
	})
}

func TestSDKClient_CreateMessage(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeMessage(w, `{"champion":{"identified":"Priya"}}`)
	}))
	defer ts.Close()

	temp := 0.0
	resp, err := newTestClient(ts.URL).CreateMessage(context.Background(), MessageRequest{
		Model:       "claude-sonnet-4-5-20250929",
		MaxTokens:   1024,
		System:      CachedSystem(CacheTTLHour, "extract MEDDPICC"),
		Messages:    []Message{{Role: "user", Content: "transcript"}},
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_test_001", resp.ID)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, `{"champion":{"identified":"Priya"}}`, resp.Text())
	assert.Equal(t, int64(1200), resp.Usage.InputTokens)
	assert.Equal(t, int64(800), resp.Usage.CacheReadInputTokens)

	system, ok := body["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
	block := system[0].(map[string]any)
	assert.Equal(t, "extract MEDDPICC", block["text"])
	assert.NotNil(t, block["cache_control"])
}

func TestSDKClient_CreateMessage_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"nope"}}`)) //nolint:errcheck
			}))
			defer ts.Close()

			_, err := newTestClient(ts.URL).CreateMessage(context.Background(), MessageRequest{
				Model:     "claude-sonnet-4-5-20250929",
				MaxTokens: 16,
				Messages:  []Message{{Role: "user", Content: "hi"}},
			})
			require.Error(t, err)
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: "{\"a\":"},
		{Type: "tool_use", Text: "ignored"},
		{Type: "text", Text: "1}"},
	}}
	assert.Equal(t, `{"a":1}`, resp.Text())
}

func TestToSDKMessages_Roles(t *testing.T) {
	p := MessageRequest{Messages: []Message{{Role: "user", Content: "q"}, {Role: "assistant", Content: "{"}, {Content: "bare"}}}.params()
	require.Len(t, p.Messages, 3)
	assert.Equal(t, "user", string(p.Messages[0].Role))
	assert.Equal(t, "assistant", string(p.Messages[1].Role))
	assert.Equal(t, "user", string(p.Messages[2].Role))
}

func TestCachedSystem(t *testing.T) {
	blocks := CachedSystem(CacheTTLHour, "rules", "", "schema")
	require.Len(t, blocks, 2)
	assert.Equal(t, "rules", blocks[0].Text)
	assert.Nil(t, blocks[0].CacheControl)
	assert.Equal(t, "schema", blocks[1].Text)
	require.NotNil(t, blocks[1].CacheControl)
	assert.Equal(t, "1h", blocks[1].CacheControl.TTL)

	assert.Empty(t, CachedSystem(CacheTTLShort))
}
