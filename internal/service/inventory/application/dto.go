package application

import "storefront/internal/service/inventory/domain"

// TransferRequest 是 HTTP 层的划转请求体
type TransferRequest struct {
	RequestID     string `json:"request_id"`
	SourceID      string `json:"source_id"`
	DestinationID string `json:"destination_id"`
	Amount        int64  `json:"amount"`
}

// ToDomain 转换为领域层命令
func (r *TransferRequest) ToDomain() *domain.TransferRequest {
	return &domain.TransferRequest{
		RequestID:     r.RequestID,
		SourceID:      r.SourceID,
		DestinationID: r.DestinationID,
		Amount:        r.Amount,
	}
}

// SeedStockRequest 初始化库存的请求体
type SeedStockRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// ErrorResponse 统一的错误响应
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id,omitempty"`
}
