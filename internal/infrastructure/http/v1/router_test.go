package v1

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpile/internal/domain/grn"
	"stockpile/internal/infrastructure/metrics"
	"stockpile/internal/infrastructure/storage/memory"
	"stockpile/pkg/logger"
)

type fixedRandom int

func (r fixedRandom) IntN(n int) int { return int(r) % n }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newTestRouter(t *testing.T, db *pinger) *gin.Engine {
	t.Helper()
	refs, err := memory.LoadReferences("../../storage/memory/testdata/references.yaml")
	require.NoError(t, err)

	drafts := memory.NewDraftStore()
	svc := grn.NewService(grn.ServiceConfig{
		Drafts:     drafts,
		History:    drafts,
		References: refs,
		Journal:    memory.NewJournal(),
		Clock: grn.ClockFunc(func() time.Time {
			return time.Date(2024, 5, 14, 9, 0, 0, 0, time.UTC)
		}),
		Random: fixedRandom(7),
	})

	m := metrics.New("stockpile")
	m.Register(svc.Hooks())

	cfg := RouterConfig{GRNService: svc, Logger: logger.Nop(), Storage: "memory", Metrics: m}
	if db != nil {
		cfg.Storage = "postgres"
		cfg.DB = *db
	}
	r := NewRouter(cfg)
	gin.SetMode(gin.TestMode)
	return r
}

func call(t *testing.T, r http.Handler, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func createDraft(t *testing.T, r http.Handler, refType, refID string) string {
	t.Helper()
	code, body := call(t, r, http.MethodPost, "/api/v1/grn/drafts", map[string]string{
		"refType": refType,
		"refId":   refID,
	})
	require.Equal(t, http.StatusCreated, code, body)
	return body["id"].(string)
}

func scanN(t *testing.T, r http.Handler, draftID, prefix string, n int) map[string]any {
	t.Helper()
	var body map[string]any
	for i := 1; i <= n; i++ {
		var code int
		code, body = call(t, r, http.MethodPost, "/api/v1/grn/drafts/"+draftID+"/scan",
			map[string]string{"pairBarcode": fmt.Sprintf("%s-%02d", prefix, i)})
		require.Equal(t, http.StatusOK, code, body)
	}
	return body
}

func TestGRNFlow_ScanSealSubmit(t *testing.T) {
	r := newTestRouter(t, nil)
	draftID := createDraft(t, r, "PO", "PO-1023")

	body := scanN(t, r, draftID, "P", 24)
	assert.Equal(t, float64(1), body["cartonCount"])
	assert.Equal(t, float64(24), body["pairCount"])
	cartons := body["cartons"].([]any)
	require.Len(t, cartons, 1)
	assert.Equal(t, "CTN-20240514-PO-1023-001", cartons[0].(map[string]any)["cartonBarcode"])
	current := body["currentCarton"].(map[string]any)
	assert.Equal(t, float64(0), current["count"])
	assert.Equal(t, float64(24), current["expected"])

	code, body := call(t, r, http.MethodPost, "/api/v1/grn/drafts/"+draftID+"/submit", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "SUBMITTED", body["status"])
	assert.Equal(t, "GRN-20240514-107", body["receiptNumber"])

	code, body = call(t, r, http.MethodGet, "/api/v1/grn/history?search=grn-2024", nil)
	require.Equal(t, http.StatusOK, code)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	row := items[0].(map[string]any)
	assert.Equal(t, draftID, row["grnId"])
	assert.Equal(t, "GRN-20240514-107", row["grnNo"])
	assert.Equal(t, float64(1), row["cartons"])

	code, body = call(t, r, http.MethodGet, "/api/v1/grn/"+draftID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PO-1023", body["refId"])

	code, body = call(t, r, http.MethodGet, "/api/v1/grn/drafts/"+draftID+"/journal", nil)
	require.Equal(t, http.StatusOK, code)
	// create + 23 scans + seal + submit
	assert.Equal(t, float64(26), body["totalCount"])
	first := body["items"].([]any)[0].(map[string]any)
	assert.Equal(t, "submit", first["action"])
}

func TestGRNFlow_ErrorCodes(t *testing.T) {
	r := newTestRouter(t, nil)
	draftID := createDraft(t, r, "CAT", "CAT-77")
	base := "/api/v1/grn/drafts/" + draftID

	scanN(t, r, draftID, "A", 3)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing ref", http.MethodPost, "/api/v1/grn/drafts", map[string]string{"refType": "PO"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad ref type", http.MethodPost, "/api/v1/grn/drafts", map[string]string{"refType": "SO", "refId": "SO-1"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown ref", http.MethodPost, "/api/v1/grn/drafts", map[string]string{"refType": "PO", "refId": "PO-9999"}, http.StatusUnprocessableEntity, "INVALID_REFERENCE"},
		{"malformed body", http.MethodPost, base + "/scan", "not-an-object", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"blank barcode", http.MethodPost, base + "/scan", map[string]string{"pairBarcode": "  "}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"dup in current", http.MethodPost, base + "/scan", map[string]string{"pairBarcode": "A-02"}, http.StatusConflict, "DUPLICATE_IN_CURRENT_CARTON"},
		{"unknown carton", http.MethodDelete, base + "/cartons/CTN-X", nil, http.StatusNotFound, "CARTON_NOT_FOUND"},
		{"incomplete", http.MethodPost, base + "/submit", nil, http.StatusUnprocessableEntity, "INCOMPLETE_CARTON"},
		{"bad draft id", http.MethodGet, "/api/v1/grn/drafts/not-a-uuid", nil, http.StatusNotFound, "NOT_FOUND"},
		{"absent draft", http.MethodGet, "/api/v1/grn/drafts/0190a5e4-0000-7000-8000-000000000000", nil, http.StatusNotFound, "NOT_FOUND"},
		{"bad grn id", http.MethodGet, "/api/v1/grn/xyz", nil, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status, body)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestGRNFlow_IncompleteCartonDetails(t *testing.T) {
	r := newTestRouter(t, nil)
	draftID := createDraft(t, r, "PO", "PO-1024")
	scanN(t, r, draftID, "B", 5)

	code, body := call(t, r, http.MethodPost, "/api/v1/grn/drafts/"+draftID+"/submit", nil)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "Current carton incomplete (5/24)", body["message"])
	details := body["details"].(map[string]any)
	assert.Equal(t, float64(5), details["current"])
	assert.Equal(t, float64(24), details["expected"])
}

func TestGRNFlow_RescanAndRemoveCarton(t *testing.T) {
	r := newTestRouter(t, nil)
	draftID := createDraft(t, r, "PO", "PO-1023")
	base := "/api/v1/grn/drafts/" + draftID

	scanN(t, r, draftID, "C", 24)
	scanN(t, r, draftID, "D", 4)

	code, body := call(t, r, http.MethodPost, base+"/rescan-current", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["currentCarton"].(map[string]any)["count"])
	assert.Equal(t, float64(1), body["cartonCount"])

	// Cleared pairs can be scanned again.
	scanN(t, r, draftID, "D", 1)

	code, body = call(t, r, http.MethodDelete, base+"/cartons/CTN-20240514-PO-1023-001", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(0), body["cartonCount"])
	assert.Equal(t, float64(2), body["cartonSerial"])

	code, body = call(t, r, http.MethodPost, base+"/rescan-current", nil)
	require.Equal(t, http.StatusOK, code)

	code, body = call(t, r, http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "NO_CARTONS", body["code"])
}

func TestGRNFlow_SubmittedDraftIsFrozen(t *testing.T) {
	r := newTestRouter(t, nil)
	draftID := createDraft(t, r, "PO", "PO-1023")
	base := "/api/v1/grn/drafts/" + draftID
	scanN(t, r, draftID, "E", 24)

	code, _ := call(t, r, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusOK, code)

	for _, req := range []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, base + "/scan", map[string]string{"pairBarcode": "E-99"}},
		{http.MethodPost, base + "/rescan-current", nil},
		{http.MethodDelete, base + "/cartons/CTN-20240514-PO-1023-001", nil},
		{http.MethodPost, base + "/submit", nil},
	} {
		code, body := call(t, r, req.method, req.path, req.body)
		assert.Equal(t, http.StatusConflict, code, req.path)
		assert.Equal(t, "GRN_ALREADY_SUBMITTED", body["code"], req.path)
	}
}

func TestListReferences(t *testing.T) {
	r := newTestRouter(t, nil)

	code, body := call(t, r, http.MethodGet, "/api/v1/grn/references", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), body["totalCount"])

	code, body = call(t, r, http.MethodGet, "/api/v1/grn/references?search=contoso", nil)
	require.Equal(t, http.StatusOK, code)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "PO-1024", items[0].(map[string]any)["id"])
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, nil)
	code, body := call(t, r, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, body = call(t, r, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "memory", body["storage"])

	r = newTestRouter(t, &pinger{err: errors.New("connection refused")})
	code, body = call(t, r, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "error", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, nil)
	draftID := createDraft(t, r, "PO", "PO-1023")
	scanN(t, r, draftID, "M", 24)
	call(t, r, http.MethodPost, "/api/v1/grn/drafts/"+draftID+"/submit", nil)
	call(t, r, http.MethodPost, "/api/v1/grn/drafts/"+draftID+"/submit", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "stockpile_grn_cartons_sealed_total 1")
	assert.Contains(t, body, "stockpile_grn_submitted_total 1")
	assert.Contains(t, body, `route="/api/v1/grn/drafts/:draftId/submit",status="409"`)
}

func TestHistory_GzipEncoded(t *testing.T) {
	r := newTestRouter(t, nil)
	draftID := createDraft(t, r, "PO", "PO-1023")
	scanN(t, r, draftID, "Z", 24)
	code, _ := call(t, r, http.MethodPost, "/api/v1/grn/drafts/"+draftID+"/submit", nil)
	require.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/grn/history", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(zr).Decode(&body))
	assert.Equal(t, float64(1), body["totalCount"])
}
