package interfaces

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/inventory/application"
	"storefront/internal/service/inventory/domain"
	"storefront/internal/service/inventory/infrastructure/memory"
)

func newTestServer(t *testing.T) *http.ServeMux {
	t.Helper()
	reg := prometheus.NewRegistry()
	svc := application.NewTransferService(memory.NewLedgerStore(0), application.WithMetrics(metrics.NewTransferMetrics(reg)))
	mux := http.NewServeMux()
	NewInventoryHandler(svc, reg).RegisterRoutes(mux)

	seed(t, mux, "A", 100)
	seed(t, mux, "B", 0)
	return mux
}

func do(mux *http.ServeMux, method, target string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func seed(t *testing.T, mux *http.ServeMux, id string, qty int64) {
	t.Helper()
	rec := do(mux, http.MethodPut, "/stock", application.SeedStockRequest{ProductID: id, Quantity: qty})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func stockOf(t *testing.T, mux *http.ServeMux, id string) int64 {
	t.Helper()
	rec := do(mux, http.MethodGet, "/stock?product_id="+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out domain.StockRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Quantity
}

func TestHandleTransfer_Success(t *testing.T) {
	mux := newTestServer(t)

	rec := do(mux, http.MethodPost, "/transfer", application.TransferRequest{SourceID: "A", DestinationID: "B", Amount: 30})
	require.Equal(t, http.StatusOK, rec.Code)

	var result domain.TransferResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, domain.StateCommitted, result.State)
	assert.Equal(t, int64(70), result.Source.Quantity)
	assert.Equal(t, int64(30), result.Destination.Quantity)

	assert.Equal(t, int64(70), stockOf(t, mux, "A"))
	assert.Equal(t, int64(30), stockOf(t, mux, "B"))
}

func TestHandleTransfer_ErrorStatus(t *testing.T) {
	tests := []struct {
		name     string
		req      application.TransferRequest
		wantCode int
		wantKind string
	}{
		{"invalid amount", application.TransferRequest{SourceID: "A", DestinationID: "B", Amount: 0}, http.StatusBadRequest, "invalid_amount"},
		{"same record", application.TransferRequest{SourceID: "A", DestinationID: "A", Amount: 1}, http.StatusBadRequest, "same_record"},
		{"not found", application.TransferRequest{SourceID: "A", DestinationID: "Z", Amount: 1}, http.StatusNotFound, "not_found"},
		{"insufficient", application.TransferRequest{SourceID: "A", DestinationID: "B", Amount: 1000}, http.StatusConflict, "insufficient_stock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestServer(t)
			rec := do(mux, http.MethodPost, "/transfer", tt.req)
			assert.Equal(t, tt.wantCode, rec.Code)

			var resp application.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantKind, resp.Kind)

			// 失败的划转不改变任何库存
			assert.Equal(t, int64(100), stockOf(t, mux, "A"))
			assert.Equal(t, int64(0), stockOf(t, mux, "B"))
		})
	}
}

func TestHandleTransfer_BadBody(t *testing.T) {
	mux := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/transfer", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTransfer_MethodNotAllowed(t *testing.T) {
	mux := newTestServer(t)
	rec := do(mux, http.MethodGet, "/transfer", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleStock(t *testing.T) {
	mux := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, do(mux, http.MethodGet, "/stock?product_id=missing", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodGet, "/stock", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodPut, "/stock", application.SeedStockRequest{ProductID: "C", Quantity: -1}).Code)
	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodPut, "/stock", application.SeedStockRequest{Quantity: 5}).Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	mux := newTestServer(t)
	assert.Equal(t, http.StatusOK, do(mux, http.MethodGet, "/healthz", nil).Code)

	do(mux, http.MethodPost, "/transfer", application.TransferRequest{SourceID: "A", DestinationID: "B", Amount: 5})
	rec := do(mux, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `inventory_transfers_total{result="committed"} 1`)
}
