package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/deal-intel/internal/assess"
	"github.com/sells-group/deal-intel/internal/extract"
	"github.com/sells-group/deal-intel/internal/model"
	"github.com/sells-group/deal-intel/internal/store"
)

type stubExtractor struct {
	data  map[string]any
	err   error
	calls int
}

func (s *stubExtractor) Extract(_ context.Context, _ *model.Document) (*extract.Extraction, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &extract.Extraction{Data: s.data, Model: "stub"}, nil
}

func (s *stubExtractor) Model() string { return "stub" }

func newTestServer(t *testing.T, opts ...assess.Option) *httptest.Server {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	srv := httptest.NewServer(NewRouter(assess.New(st, nil, opts...), Options{}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, tenant, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req.Header.Set(TenantHeader, tenant)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() }) //nolint:errcheck
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody(t, resp)["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestScore_Stateless(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/v1/score", "t1", `{"champion":{"identified":"Priya","strength":"strong","confidence":0.9}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Contains(t, body, "overall_score")
	assert.Contains(t, body, "element_scores")

	resp = do(t, http.MethodPost, srv.URL+"/v1/score", "t1", `[1,2,3]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decodeBody(t, resp)["error"], "meddpicc")
}

func TestTenantHeaderRequired(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/v1/deals/d1/assessments", "/v1/assessments/a1"} {
		resp := do(t, http.MethodGet, srv.URL+path, "", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		assert.Contains(t, decodeBody(t, resp)["error"], TenantHeader)
	}
	resp := do(t, http.MethodPost, srv.URL+"/v1/score", " ", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestScorePayload_HistoryAndGet(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/v1/deals/d1/assessments", "t1", `{"payload":{"metrics":{"identified":"cut close time 30%"}}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out struct {
		Assessment struct {
			ID     string `json:"id"`
			DealID string `json:"deal_id"`
		} `json:"assessment"`
		Synced bool `json:"crm_synced"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.Assessment.ID)
	assert.Equal(t, "d1", out.Assessment.DealID)
	assert.False(t, out.Synced)

	resp = do(t, http.MethodGet, srv.URL+"/v1/deals/d1/assessments?limit=5", "t1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, decodeBody(t, resp)["count"])

	resp = do(t, http.MethodGet, srv.URL+"/v1/assessments/"+out.Assessment.ID, "t1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, out.Assessment.ID, decodeBody(t, resp)["id"])

	// Assessments are invisible to other tenants.
	resp = do(t, http.MethodGet, srv.URL+"/v1/assessments/"+out.Assessment.ID, "t2", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScorePayload_BadRequests(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/v1/deals/d1/assessments", "t1", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/v1/deals/d1/assessments", "t1", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "payload is required", decodeBody(t, resp)["error"])

	resp = do(t, http.MethodPost, srv.URL+"/v1/deals/d1/assessments", "t1", `{"payload":"text"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/v1/deals/d1/assessments?limit=-1", "t1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAssessDocument(t *testing.T) {
	ext := &stubExtractor{data: map[string]any{
		"economic_buyer": map[string]any{"identified": "Dana Lee, CFO", "confidence": 0.8},
	}}
	srv := newTestServer(t, assess.WithExtractor(ext))

	body := `{"title":"Discovery call","kind":"transcript","content":"Dana owns the budget."}`
	resp := do(t, http.MethodPost, srv.URL+"/v1/deals/d1/documents", "t1", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decodeBody(t, resp)
	assert.Equal(t, false, out["cache_hit"])
	assert.Contains(t, out, "document")

	resp = do(t, http.MethodPost, srv.URL+"/v1/deals/d1/documents", "t1", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, decodeBody(t, resp)["cache_hit"])
	assert.Equal(t, 1, ext.calls)

	resp = do(t, http.MethodPost, srv.URL+"/v1/deals/d1/documents", "t1", `{"content":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAssessDocument_Errors(t *testing.T) {
	srv := newTestServer(t)
	resp := do(t, http.MethodPost, srv.URL+"/v1/deals/d1/documents", "t1", `{"content":"hello"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	srv = newTestServer(t, assess.WithExtractor(&stubExtractor{err: extract.ErrUnparseableResponse}))
	resp = do(t, http.MethodPost, srv.URL+"/v1/deals/d1/documents", "t1", `{"content":"hello"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), decodeBody(t, resp)["error"])
}

func TestExportXLSX(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < 2; i++ {
		resp := do(t, http.MethodPost, srv.URL+"/v1/deals/d9/assessments", "t1", `{"payload":{}}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := do(t, http.MethodGet, srv.URL+"/v1/deals/d9/export.xlsx", "t1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "d9.xlsx")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	f, err := xlsx.OpenBinary(raw)
	require.NoError(t, err)
	assert.Len(t, f.Sheet["Summary"].Rows, 3)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/v1/score", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(assess.ErrDealRequired))
	assert.Equal(t, http.StatusNotFound, statusFor(store.ErrNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}
