package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront/internal/pkg/mq"
	"storefront/internal/service/inventory/domain"
)

// TransferEventKafkaAdapter 实现了 domain.EventPublisher 接口。
type TransferEventKafkaAdapter struct {
	writer mq.MessageWriter
}

// NewTransferEventKafkaAdapter 创建一个新的库存事件生产者适配器。
func NewTransferEventKafkaAdapter(writer mq.MessageWriter) *TransferEventKafkaAdapter {
	return &TransferEventKafkaAdapter{writer: writer}
}

// PublishTransferred 发送库存划转事件，以源商品 ID 作为消息 key
func (a *TransferEventKafkaAdapter) PublishTransferred(ctx context.Context, event *domain.InventoryTransferred) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal inventory transferred event: %w", err)
	}
	// 调用通用的 mq.ProduceMessage，它会自动处理追踪上下文注入
	if err := mq.ProduceMessage(ctx, a.writer, []byte(event.SourceID), eventBytes); err != nil {
		return fmt.Errorf("failed to publish inventory transferred event %s: %w", event.EventID, err)
	}
	return nil
}

// NopPublisher 在未配置 Kafka 时使用
type NopPublisher struct{}

func (NopPublisher) PublishTransferred(context.Context, *domain.InventoryTransferred) error {
	return nil
}
