package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpile/internal/domain/grn"
)

func TestRegister_CountsLifecycleEvents(t *testing.T) {
	m := New("stockpile")
	hooks := grn.NewHookRegistry()
	m.Register(hooks)

	now := time.Date(2024, 5, 14, 9, 0, 0, 0, time.UTC)
	d := grn.NewDraft(grn.RefTypePurchaseOrder, "PO-1023", now)
	for i := 0; i < grn.PairsPerCarton; i++ {
		_, err := d.Scan(string(rune('a'+i)), now)
		require.NoError(t, err)
	}
	require.NoError(t, d.Submit(now, "GRN-20240514-100"))

	ctx := context.Background()
	require.NoError(t, hooks.Run(ctx, grn.AfterCreate, d))
	require.NoError(t, hooks.Run(ctx, grn.AfterSeal, d))
	require.NoError(t, hooks.Run(ctx, grn.AfterSubmit, d))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DraftsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CartonsSealed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GRNsSubmitted))
	assert.Equal(t, 24.0, testutil.ToFloat64(m.PairsReceived))
}

func TestHandler_ServesMetrics(t *testing.T) {
	m := New("stockpile")
	m.ObserveRequest(http.MethodPost, "/api/v1/grn/drafts/:draftId/scan", 200, 3*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "", 404, time.Millisecond)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `stockpile_http_request_duration_seconds_count{method="POST",route="/api/v1/grn/drafts/:draftId/scan",status="200"} 1`)
	assert.Contains(t, body, `route="unmatched"`)
	assert.Contains(t, body, "stockpile_grn_cartons_sealed_total 0")
}
