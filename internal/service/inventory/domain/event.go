package domain

import (
	"context"
	"time"
)

// InventoryTransferred 是库存划转提交后发布的领域事件
type InventoryTransferred struct {
	EventID             string    `json:"eventId"`
	RequestID           string    `json:"requestId"`
	SourceID            string    `json:"sourceId"`
	DestinationID       string    `json:"destinationId"`
	Amount              int64     `json:"amount"`
	SourceQuantity      int64     `json:"sourceQuantity"`
	DestinationQuantity int64     `json:"destinationQuantity"`
	TraceID             string    `json:"traceId,omitempty"`
	OccurredAt          time.Time `json:"occurredAt"`
}

// NewInventoryTransferred 从划转结果构造事件
func NewInventoryTransferred(eventID, traceID string, result *TransferResult) *InventoryTransferred {
	return &InventoryTransferred{
		EventID:             eventID,
		RequestID:           result.RequestID,
		SourceID:            result.Source.ProductID,
		DestinationID:       result.Destination.ProductID,
		Amount:              result.Amount,
		SourceQuantity:      result.Source.Quantity,
		DestinationQuantity: result.Destination.Quantity,
		TraceID:             traceID,
		OccurredAt:          result.CommittedAt,
	}
}

// EventPublisher 是库存事件的出站端口
type EventPublisher interface {
	PublishTransferred(ctx context.Context, event *InventoryTransferred) error
}

// IdempotencyGuard 记录带 RequestID 的划转结果，防止同一请求被重复执行。
type IdempotencyGuard interface {
	// Claim 尝试占用 req.RequestID。
	// 若该请求已完成，返回之前的结果且 claimed=false；
	// 若该请求仍在处理中，返回 nil 且 claimed=false；
	// 若 RequestID 已被内容不同的请求占用，返回 ErrRequestMismatch。
	Claim(ctx context.Context, req *TransferRequest) (prev *TransferResult, claimed bool, err error)

	// Complete 保存已提交划转的结果
	Complete(ctx context.Context, result *TransferResult) error

	// Release 释放一个失败请求的占用，允许调用方重试
	Release(ctx context.Context, requestID string) error
}
