package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"storefront/internal/service/inventory/application"
	"storefront/internal/service/inventory/domain"
)

// InventoryHandler 封装了库存服务的 HTTP 处理器
type InventoryHandler struct {
	service  *application.TransferService
	gatherer prometheus.Gatherer
}

// NewInventoryHandler 创建一个新的 HTTP 处理器实例。
// gatherer 为 nil 时使用 prometheus.DefaultGatherer。
func NewInventoryHandler(service *application.TransferService, gatherer prometheus.Gatherer) *InventoryHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &InventoryHandler{service: service, gatherer: gatherer}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/transfer", h.handleTransfer)
	mux.HandleFunc("/stock", h.handleStock)
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}

func (h *InventoryHandler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, application.ErrorResponse{Error: "invalid request body", Kind: "invalid_request"})
		return
	}

	result, err := h.service.Transfer(ctx, req.ToDomain())
	if err != nil {
		resp := application.ErrorResponse{Error: err.Error(), Kind: kindName(err), RequestID: req.RequestID}
		var terr *domain.TransferError
		if errors.As(err, &terr) && terr.RequestID != "" {
			resp.RequestID = terr.RequestID
		}
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *InventoryHandler) handleStock(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	switch r.Method {
	case http.MethodGet:
		productID := r.URL.Query().Get("product_id")
		if productID == "" {
			writeJSON(w, http.StatusBadRequest, application.ErrorResponse{Error: "product_id is required", Kind: "invalid_request"})
			return
		}
		rec, err := h.service.GetStock(ctx, productID)
		if err != nil {
			writeJSON(w, statusFor(err), application.ErrorResponse{Error: err.Error(), Kind: kindName(err)})
			return
		}
		writeJSON(w, http.StatusOK, rec)

	case http.MethodPut:
		var req application.SeedStockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, application.ErrorResponse{Error: "invalid request body", Kind: "invalid_request"})
			return
		}
		rec, err := h.service.SeedStock(ctx, req.ProductID, req.Quantity)
		if err != nil {
			status := statusFor(err)
			// 种子数据里的 product_id 为空属于请求错误，而不是记录不存在
			if errors.Is(err, domain.ErrNotFound) {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, application.ErrorResponse{Error: err.Error(), Kind: kindName(err)})
			return
		}
		writeJSON(w, http.StatusOK, rec)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *InventoryHandler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor 根据错误类型返回不同的 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrSameRecord):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrRequestInProgress),
		errors.Is(err, domain.ErrRequestMismatch):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusServiceUnavailable // 锁等待超时，客户端可以重试
	default:
		return http.StatusInternalServerError
	}
}

func kindName(err error) string {
	return application.KindLabel(domain.KindOf(err))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Error().Err(err).Msg("failed to encode response")
	}
}
