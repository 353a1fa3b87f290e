// internal/service/inventory/infrastructure/memory/ledger.go
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"storefront/internal/service/inventory/domain"
)

// recordLock 是单条记录的排他锁。
// 用容量为 1 的 channel 实现，这样等待锁时可以响应超时，不需要轮询。
type recordLock chan struct{}

func newRecordLock() recordLock {
	return make(recordLock, 1)
}

func (l recordLock) acquire(ctx context.Context) error {
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l recordLock) release() {
	<-l
}

// contextError 与 GORM 存储的分类保持一致: 超过截止时间为 ErrTimeout，其他取消为 ErrPersistence
func contextError(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

// LedgerStore 是 domain.LedgerStore 的内存实现，每条记录一把锁。
type LedgerStore struct {
	mu          sync.RWMutex
	records     map[string]domain.StockRecord
	locks       map[string]recordLock
	lockTimeout time.Duration // TxOptions 未指定时的默认加锁超时，0 表示一直等待
}

// NewLedgerStore 创建一个空的内存库存
func NewLedgerStore(defaultLockTimeout time.Duration) *LedgerStore {
	return &LedgerStore{
		records:     make(map[string]domain.StockRecord),
		locks:       make(map[string]recordLock),
		lockTimeout: defaultLockTimeout,
	}
}

// Begin 开启一个内存事务
func (s *LedgerStore) Begin(ctx context.Context, opts domain.TxOptions) (domain.LedgerTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err, "begin")
	}
	timeout := opts.LockTimeout
	if timeout <= 0 {
		timeout = s.lockTimeout
	}
	return &ledgerTx{
		store:       s,
		lockTimeout: timeout,
		held:        make(map[string]recordLock),
		pending:     make(map[string]domain.StockRecord),
	}, nil
}

// Get 读取已提交的记录
func (s *LedgerStore) Get(ctx context.Context, productID string) (*domain.StockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[productID]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "product %s", productID)
	}
	return rec.Clone(), nil
}

// Upsert 创建或覆盖一条记录。
// 会先拿到该记录的锁，避免覆盖正在进行中的划转。
func (s *LedgerStore) Upsert(ctx context.Context, record *domain.StockRecord) error {
	if record == nil || record.ProductID == "" {
		return errors.Wrap(domain.ErrNotFound, "empty product id")
	}
	if record.Quantity < 0 {
		return errors.Wrapf(domain.ErrInvalidAmount, "negative quantity %d", record.Quantity)
	}

	lock := s.lockFor(record.ProductID)
	if err := lock.acquire(ctx); err != nil {
		return contextError(err, "upsert "+record.ProductID)
	}
	defer lock.release()

	rec := *record
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.records[rec.ProductID] = rec
	s.mu.Unlock()
	return nil
}

// lockFor 返回记录对应的锁，不存在时创建
func (s *LedgerStore) lockFor(productID string) recordLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[productID]
	if !ok {
		lock = newRecordLock()
		s.locks[productID] = lock
	}
	return lock
}

// ledgerTx 持有已获取的锁和尚未提交的写入
type ledgerTx struct {
	store       *LedgerStore
	lockTimeout time.Duration
	held        map[string]recordLock
	pending     map[string]domain.StockRecord
	done        bool
}

func (t *ledgerTx) LockAndRead(ctx context.Context, productID string) (*domain.StockRecord, error) {
	if t.done {
		return nil, errors.Wrap(domain.ErrPersistence, "transaction already finished")
	}

	if _, ok := t.held[productID]; !ok {
		t.store.mu.RLock()
		_, exists := t.store.records[productID]
		t.store.mu.RUnlock()
		if !exists {
			return nil, errors.Wrapf(domain.ErrNotFound, "product %s", productID)
		}

		lockCtx := ctx
		if t.lockTimeout > 0 {
			var cancel context.CancelFunc
			lockCtx, cancel = context.WithTimeout(ctx, t.lockTimeout)
			defer cancel()
		}
		lock := t.store.lockFor(productID)
		if err := lock.acquire(lockCtx); err != nil {
			return nil, contextError(err, "lock "+productID)
		}
		t.held[productID] = lock
	}

	if rec, ok := t.pending[productID]; ok {
		return rec.Clone(), nil
	}
	// 加锁之后重新读取，保证拿到的是最新提交的值
	t.store.mu.RLock()
	rec, ok := t.store.records[productID]
	t.store.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "product %s", productID)
	}
	return rec.Clone(), nil
}

func (t *ledgerTx) Write(ctx context.Context, record *domain.StockRecord) error {
	if t.done {
		return errors.Wrap(domain.ErrPersistence, "transaction already finished")
	}
	if _, ok := t.held[record.ProductID]; !ok {
		return errors.Wrapf(domain.ErrPersistence, "product %s is not locked by this transaction", record.ProductID)
	}
	if record.Quantity < 0 {
		return errors.Wrapf(domain.ErrPersistence, "product %s: negative quantity %d", record.ProductID, record.Quantity)
	}
	t.pending[record.ProductID] = *record
	return nil
}

func (t *ledgerTx) Commit() error {
	if t.done {
		return errors.Wrap(domain.ErrPersistence, "transaction already finished")
	}
	t.store.mu.Lock()
	for id, rec := range t.pending {
		t.store.records[id] = rec
	}
	t.store.mu.Unlock()
	t.finish()
	return nil
}

func (t *ledgerTx) Rollback() error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *ledgerTx) finish() {
	t.done = true
	t.pending = nil
	for id, lock := range t.held {
		lock.release()
		delete(t.held, id)
	}
}
