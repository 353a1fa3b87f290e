package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"storefront/internal/service/inventory/domain"
)

const (
	idempotencyKeyPrefix = "inventory:transfer:"
	statusPending        = "pending"
	statusDone           = "done"
)

// idempotencyEntry 是保存在 Redis 中的值
type idempotencyEntry struct {
	Status      string                 `json:"status"`
	Fingerprint string                 `json:"fingerprint"`
	Result      *domain.TransferResult `json:"result,omitempty"`
}

// RedisIdempotencyGuard 是 domain.IdempotencyGuard 的 Redis 实现。
// 只保存某个 RequestID 的处理结果，不缓存任何库存数量。
type RedisIdempotencyGuard struct {
	client    redis.Cmdable
	resultTTL time.Duration
	claimTTL  time.Duration
}

// NewRedisIdempotencyGuard 创建幂等守卫。
// resultTTL 为结果保留时间；claimTTL 为处理中占位的保留时间，进程在处理中途崩溃时占位会在 claimTTL 后过期。
func NewRedisIdempotencyGuard(client redis.Cmdable, resultTTL, claimTTL time.Duration) *RedisIdempotencyGuard {
	if claimTTL <= 0 || claimTTL > resultTTL {
		claimTTL = resultTTL
	}
	return &RedisIdempotencyGuard{client: client, resultTTL: resultTTL, claimTTL: claimTTL}
}

func idempotencyKey(requestID string) string {
	return idempotencyKeyPrefix + "{" + requestID + "}"
}

// Claim 使用 SET NX 占用 RequestID
func (g *RedisIdempotencyGuard) Claim(ctx context.Context, req *domain.TransferRequest) (*domain.TransferResult, bool, error) {
	fingerprint := req.Fingerprint()
	pending, _ := json.Marshal(idempotencyEntry{Status: statusPending, Fingerprint: fingerprint})
	ok, err := g.client.SetNX(ctx, idempotencyKey(req.RequestID), pending, g.claimTTL).Result()
	if err != nil {
		return nil, false, errors.Wrapf(err, "claim transfer request %s", req.RequestID)
	}
	if ok {
		return nil, true, nil
	}

	raw, err := g.client.Get(ctx, idempotencyKey(req.RequestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		// 在 SETNX 和 GET 之间 key 被释放了，视为仍在处理中，由调用方重试
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "load transfer request %s", req.RequestID)
	}

	var entry idempotencyEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, errors.Wrapf(err, "decode transfer request %s", req.RequestID)
	}
	if entry.Fingerprint != fingerprint {
		return nil, false, errors.Wrapf(domain.ErrRequestMismatch, "request %s", req.RequestID)
	}
	if entry.Status == statusDone && entry.Result != nil {
		return entry.Result, false, nil
	}
	return nil, false, nil
}

// Complete 覆盖占位值为最终结果
func (g *RedisIdempotencyGuard) Complete(ctx context.Context, result *domain.TransferResult) error {
	req := domain.TransferRequest{
		SourceID:      result.Source.ProductID,
		DestinationID: result.Destination.ProductID,
		Amount:        result.Amount,
	}
	raw, err := json.Marshal(idempotencyEntry{Status: statusDone, Fingerprint: req.Fingerprint(), Result: result})
	if err != nil {
		return fmt.Errorf("failed to marshal transfer result: %w", err)
	}
	if err := g.client.Set(ctx, idempotencyKey(result.RequestID), raw, g.resultTTL).Err(); err != nil {
		return errors.Wrapf(err, "complete transfer request %s", result.RequestID)
	}
	return nil
}

// Release 删除占位值，让失败的请求可以重试
func (g *RedisIdempotencyGuard) Release(ctx context.Context, requestID string) error {
	if err := g.client.Del(ctx, idempotencyKey(requestID)).Err(); err != nil {
		return errors.Wrapf(err, "release transfer request %s", requestID)
	}
	return nil
}
