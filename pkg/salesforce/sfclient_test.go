package salesforce

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSFClient creates an sfClient backed by an httptest server.
func newTestSFClient(t *testing.T, handler http.Handler, opts ...ClientOption) Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	sf, err := gosf.Init(gosf.Creds{
		AccessToken: "test-token",
		Domain:      ts.URL,
	},
		gosf.WithValidateAuthentication(false),
		gosf.WithRoundTripper(http.DefaultTransport),
	)
	require.NoError(t, err)
	require.NotNil(t, sf)

	return NewClient(sf, opts...)
}

func TestSFClient_UpdateOne(t *testing.T) {
	var body map[string]any
	client := newTestSFClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			assert.Contains(t, r.URL.Path, "/sobjects/Opportunity/006xx")
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &body)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}), WithRateLimit(50))

	fields := map[string]any{"MEDDPICC_Score__c": 62.0}
	err := client.UpdateOne(context.Background(), "Opportunity", "006xx", fields)
	require.NoError(t, err)
	assert.Equal(t, 62.0, body["MEDDPICC_Score__c"])
	assert.NotContains(t, fields, "Id", "caller map must not be mutated")
}

func TestSFClient_UpdateOne_Error(t *testing.T) {
	client := newTestSFClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"message": "invalid field", "errorCode": "INVALID_FIELD"},
		})
	}))

	err := client.UpdateOne(context.Background(), "Opportunity", "006xx", map[string]any{"Bad__c": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: update Opportunity 006xx")
}

func TestSFClient_UpdateCollection(t *testing.T) {
	client := newTestSFClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"id": "006a", "success": true, "errors": []any{}},
				{"id": "006b", "success": false, "errors": []map[string]any{{"message": "locked"}}},
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	results, err := client.UpdateCollection(context.Background(), "Opportunity", []CollectionRecord{
		{ID: "006a", Fields: map[string]any{"NextStep": "Meet CFO"}},
		{ID: "006b", Fields: map[string]any{"NextStep": "Send MAP"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, []string{"locked"}, results[1].Errors)
}

func TestSFClient_RateLimitCancelled(t *testing.T) {
	client := newTestSFClient(t, http.NotFoundHandler(), WithRateLimit(0.001))
	ctx := context.Background()
	// The first call consumes the single burst token.
	_ = client.UpdateOne(ctx, "Opportunity", "006xx", map[string]any{"A": 1})

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := client.UpdateOne(cancelled, "Opportunity", "006xx", map[string]any{"A": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: rate limit")
}

func TestConnect_RequiresClientID(t *testing.T) {
	_, err := Connect(Credentials{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client id is required")
}
