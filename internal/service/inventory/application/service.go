// internal/service/inventory/application/service.go
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/pkg/tracing"
	"storefront/internal/service/inventory/domain"
)

// TransferService 负责库存划转的业务编排。
// 存储句柄在构造时显式注入，事务边界全部在 Transfer 内部完成。
type TransferService struct {
	store       domain.LedgerStore
	tracer      trace.Tracer
	publisher   domain.EventPublisher
	guard       domain.IdempotencyGuard
	metrics     *metrics.TransferMetrics
	lockTimeout time.Duration
}

// Option 用于配置 TransferService 的可选依赖
type Option func(*TransferService)

// WithLockTimeout 设置单条记录的加锁等待上限，超时返回 domain.ErrTimeout
func WithLockTimeout(d time.Duration) Option {
	return func(s *TransferService) { s.lockTimeout = d }
}

// WithPublisher 设置划转成功后的事件发布器
func WithPublisher(p domain.EventPublisher) Option {
	return func(s *TransferService) { s.publisher = p }
}

// WithIdempotencyGuard 设置带 RequestID 请求的幂等守卫
func WithIdempotencyGuard(g domain.IdempotencyGuard) Option {
	return func(s *TransferService) { s.guard = g }
}

// WithMetrics 设置 Prometheus 指标
func WithMetrics(m *metrics.TransferMetrics) Option {
	return func(s *TransferService) { s.metrics = m }
}

// WithTracer 设置 tracer，默认不产生 span
func WithTracer(t trace.Tracer) Option {
	return func(s *TransferService) { s.tracer = t }
}

// NewTransferService 创建一个新的库存划转服务实例
func NewTransferService(store domain.LedgerStore, opts ...Option) *TransferService {
	s := &TransferService{
		store:  store,
		tracer: noop.NewTracerProvider().Tracer("inventory"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transfer 将 amount 件库存从 source 原子地划转到 destination。
// 成功时两条记录同时提交；任何失败都不会留下部分修改。
func (s *TransferService) Transfer(ctx context.Context, req *domain.TransferRequest) (*domain.TransferResult, error) {
	ctx, span := s.tracer.Start(ctx, "service.Transfer")
	defer span.End()
	start := time.Now()

	// 命令对象按值处理，不修改调用方的请求。nil 请求按空命令处理，在校验阶段被拒绝
	var cmd domain.TransferRequest
	if req != nil {
		cmd = *req
	}
	req = &cmd

	span.SetAttributes(
		attribute.String("transfer.request_id", req.RequestID),
		attribute.String("transfer.source_id", req.SourceID),
		attribute.String("transfer.destination_id", req.DestinationID),
		attribute.Int64("transfer.amount", req.Amount),
	)

	// 1. 加锁之前校验请求 (PENDING -> ABORTED)
	if err := req.Validate(); err != nil {
		return nil, s.abort(ctx, span, req, domain.StatePending, err, start)
	}

	// 2. 幂等检查，同一个 RequestID 只会真正执行一次
	claimed := false
	if req.RequestID != "" && s.guard != nil {
		prev, ok, err := s.guard.Claim(ctx, req)
		switch {
		case errors.Is(err, domain.ErrRequestMismatch):
			return nil, s.abort(ctx, span, req, domain.StateValidated, err, start)
		case err != nil:
			// 幂等存储不可用时降级为普通划转
			span.RecordError(err)
			logger.Ctx(ctx).Warn().Err(err).Str("request_id", req.RequestID).Msg("idempotency guard unavailable, continuing without it")
		case prev != nil:
			replay := *prev
			replay.Replayed = true
			span.AddEvent("Transfer replayed from idempotency store")
			s.metrics.Observe("replayed", time.Since(start), 0)
			return &replay, nil
		case !ok:
			return nil, s.abort(ctx, span, req, domain.StateValidated, domain.ErrRequestInProgress, start)
		default:
			claimed = true
		}
	}
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
		span.SetAttributes(attribute.String("transfer.request_id", req.RequestID))
	}

	// 3. 在事务中执行划转 (VALIDATED -> COMMITTED / ABORTED)
	result, err := s.execute(ctx, req)
	if err != nil {
		if claimed {
			if relErr := s.guard.Release(ctx, req.RequestID); relErr != nil {
				logger.Ctx(ctx).Warn().Err(relErr).Str("request_id", req.RequestID).Msg("failed to release idempotency claim")
			}
		}
		return nil, s.abort(ctx, span, req, domain.StateValidated, err, start)
	}

	span.AddEvent("Transfer committed")
	s.metrics.Observe("committed", time.Since(start), req.Amount)
	logger.Ctx(ctx).Info().
		Str("request_id", result.RequestID).
		Str("source_id", req.SourceID).
		Str("destination_id", req.DestinationID).
		Int64("amount", req.Amount).
		Int64("source_quantity", result.Source.Quantity).
		Int64("destination_quantity", result.Destination.Quantity).
		Msg("stock transferred")

	// 4. 提交之后的副作用，失败只记录，不影响已提交的划转
	if claimed {
		if err := s.guard.Complete(ctx, result); err != nil {
			span.RecordError(err)
			logger.Ctx(ctx).Warn().Err(err).Str("request_id", result.RequestID).Msg("failed to record transfer result")
		}
	}
	s.publish(ctx, span, result)

	return result, nil
}

// execute 是真正的事务逻辑: 按固定顺序加锁、校验、写入、提交
func (s *TransferService) execute(ctx context.Context, req *domain.TransferRequest) (*domain.TransferResult, error) {
	tx, err := s.store.Begin(ctx, domain.TxOptions{LockTimeout: s.lockTimeout})
	if err != nil {
		return nil, err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// 任何没有走到 Commit 的路径 (包括 panic) 都回滚
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Ctx(ctx).Error().Err(rbErr).Str("request_id", req.RequestID).Msg("rollback failed")
		}
	}()

	records := make(map[string]*domain.StockRecord, 2)
	for _, id := range req.LockOrder() {
		rec, err := s.lockAndRead(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		records[id] = rec
	}

	source, destination := records[req.SourceID], records[req.DestinationID]
	if err := source.Withdraw(req.Amount); err != nil {
		return nil, err
	}
	if err := destination.Deposit(req.Amount); err != nil {
		return nil, err
	}

	if err := tx.Write(ctx, source); err != nil {
		return nil, err
	}
	if err := tx.Write(ctx, destination); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	return &domain.TransferResult{
		RequestID:   req.RequestID,
		Source:      *source,
		Destination: *destination,
		Amount:      req.Amount,
		State:       domain.StateCommitted,
		CommittedAt: time.Now().UTC(),
	}, nil
}

func (s *TransferService) lockAndRead(ctx context.Context, tx domain.LedgerTx, productID string) (*domain.StockRecord, error) {
	ctx, span := s.tracer.Start(ctx, "store.LockAndRead")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID))

	rec, err := tx.LockAndRead(ctx, productID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock and read failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int64("product.quantity", rec.Quantity))
	return rec, nil
}

func (s *TransferService) publish(ctx context.Context, span trace.Span, result *domain.TransferResult) {
	if s.publisher == nil {
		return
	}
	event := domain.NewInventoryTransferred(uuid.New().String(), tracing.GetTraceIDFromContext(ctx), result)
	if err := s.publisher.PublishTransferred(ctx, event); err != nil {
		span.RecordError(err, trace.WithAttributes(attribute.Bool("event.publish_failed", true)))
		logger.Ctx(ctx).Error().Err(err).Str("request_id", result.RequestID).Msg("failed to publish inventory transferred event")
		return
	}
	span.AddEvent("InventoryTransferred event published")
}

// abort 统一处理失败路径: 记录 span、指标和日志，返回类型化错误
func (s *TransferService) abort(ctx context.Context, span trace.Span, req *domain.TransferRequest, state domain.TransferState, err error, start time.Time) error {
	terr := domain.NewTransferError(req.RequestID, domain.StateAborted, err)
	span.RecordError(terr)
	span.SetStatus(codes.Error, terr.Kind.Error())
	span.SetAttributes(attribute.String("transfer.aborted_from", string(state)))
	s.metrics.Observe(KindLabel(terr.Kind), time.Since(start), 0)

	logger.Ctx(ctx).Warn().
		Err(err).
		Str("request_id", req.RequestID).
		Str("source_id", req.SourceID).
		Str("destination_id", req.DestinationID).
		Int64("amount", req.Amount).
		Str("aborted_from", string(state)).
		Msg("stock transfer aborted")
	return terr
}

// GetStock 读取已提交的库存记录
func (s *TransferService) GetStock(ctx context.Context, productID string) (*domain.StockRecord, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetStock")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID))

	rec, err := s.store.Get(ctx, productID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return rec, nil
}

// SeedStock 初始化或覆盖某个商品的库存
func (s *TransferService) SeedStock(ctx context.Context, productID string, quantity int64) (*domain.StockRecord, error) {
	ctx, span := s.tracer.Start(ctx, "service.SeedStock")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", productID),
		attribute.Int64("product.quantity", quantity),
	)

	rec, err := domain.NewStockRecord(productID, quantity)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.store.Upsert(ctx, rec); err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("product_id", productID).Int64("quantity", quantity).Msg("stock seeded")
	return rec, nil
}

// KindLabel 返回错误分类对应的指标标签名
func KindLabel(kind error) string {
	switch kind {
	case domain.ErrNotFound:
		return "not_found"
	case domain.ErrInvalidAmount:
		return "invalid_amount"
	case domain.ErrInsufficientStock:
		return "insufficient_stock"
	case domain.ErrTimeout:
		return "timeout"
	case domain.ErrSameRecord:
		return "same_record"
	case domain.ErrRequestInProgress:
		return "in_progress"
	case domain.ErrRequestMismatch:
		return "request_mismatch"
	default:
		return "persistence"
	}
}
