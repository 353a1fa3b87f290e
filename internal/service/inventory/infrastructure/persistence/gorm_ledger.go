package persistence

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"storefront/internal/service/inventory/domain"
)

// MySQL 错误码
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

// GormLedgerStore 是 domain.LedgerStore 的 GORM 实现。
// 行锁依赖 InnoDB 的 SELECT ... FOR UPDATE，锁持有到事务结束。
type GormLedgerStore struct {
	db *gorm.DB
}

// NewGormLedgerStore 创建一个新的 GORM 仓储实例
func NewGormLedgerStore(db *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{db: db}
}

// Begin 开启数据库事务，并按需设置本连接的锁等待超时
func (s *GormLedgerStore) Begin(ctx context.Context, opts domain.TxOptions) (domain.LedgerTx, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, translateError(tx.Error, "begin")
	}

	if opts.LockTimeout > 0 {
		// innodb_lock_wait_timeout 只支持整秒
		seconds := int(math.Ceil(opts.LockTimeout.Seconds()))
		if err := tx.Exec("SET innodb_lock_wait_timeout = ?", seconds).Error; err != nil {
			tx.Rollback()
			return nil, translateError(err, "set lock wait timeout")
		}
		return &gormLedgerTx{tx: tx, restoreLockWait: true}, nil
	}
	return &gormLedgerTx{tx: tx}, nil
}

// Get 读取已提交的记录，不加锁
func (s *GormLedgerStore) Get(ctx context.Context, productID string) (*domain.StockRecord, error) {
	var model StockRecordModel
	err := s.db.WithContext(ctx).Where("product_id = ?", productID).Take(&model).Error
	if err != nil {
		return nil, translateError(err, "get "+productID)
	}
	return ToDomainStockRecord(&model), nil
}

// Upsert 插入记录，product_id 冲突时覆盖数量
func (s *GormLedgerStore) Upsert(ctx context.Context, record *domain.StockRecord) error {
	if record.Quantity < 0 {
		return errors.Wrapf(domain.ErrInvalidAmount, "negative quantity %d", record.Quantity)
	}
	model := FromDomainStockRecord(record)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
	}).Create(model).Error
	if err != nil {
		return translateError(err, "upsert "+record.ProductID)
	}
	return nil
}

type gormLedgerTx struct {
	tx   *gorm.DB
	done bool
	// restoreLockWait 表示本连接的会话变量被修改过，结束前需要还原，
	// 否则连接回到连接池后 Get / Upsert 会沿用这次划转的超时
	restoreLockWait bool
}

// restoreLockWaitTimeout 把会话级的锁等待超时还原为全局值。
// SET 不受事务回滚影响，必须在同一连接上显式还原。
func (t *gormLedgerTx) restoreLockWaitTimeout() {
	if !t.restoreLockWait {
		return
	}
	t.restoreLockWait = false
	_ = t.tx.Exec("SET innodb_lock_wait_timeout = DEFAULT").Error
}

// LockAndRead 使用 SELECT ... FOR UPDATE 锁定记录
func (t *gormLedgerTx) LockAndRead(ctx context.Context, productID string) (*domain.StockRecord, error) {
	var model StockRecordModel
	err := t.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ?", productID).
		Take(&model).Error
	if err != nil {
		return nil, translateError(err, "lock "+productID)
	}
	return ToDomainStockRecord(&model), nil
}

// Write 只更新数量和更新时间
func (t *gormLedgerTx) Write(ctx context.Context, record *domain.StockRecord) error {
	if record.Quantity < 0 {
		return errors.Wrapf(domain.ErrPersistence, "product %s: negative quantity %d", record.ProductID, record.Quantity)
	}
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	updateData := map[string]interface{}{
		"quantity":   record.Quantity,
		"updated_at": updatedAt,
	}
	result := t.tx.WithContext(ctx).Model(&StockRecordModel{}).
		Where("product_id = ?", record.ProductID).
		Updates(updateData)
	if result.Error != nil {
		return translateError(result.Error, "write "+record.ProductID)
	}
	return nil
}

func (t *gormLedgerTx) Commit() error {
	if t.done {
		return errors.Wrap(domain.ErrPersistence, "transaction already finished")
	}
	t.done = true
	t.restoreLockWaitTimeout()
	if err := t.tx.Commit().Error; err != nil {
		return translateError(err, "commit")
	}
	return nil
}

func (t *gormLedgerTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.restoreLockWaitTimeout()
	if err := t.tx.Rollback().Error; err != nil {
		return translateError(err, "rollback")
	}
	return nil
}

// translateError 将 GORM / MySQL 错误翻译为领域错误，同时保留原始错误链
func translateError(err error, op string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errors.Wrap(domain.ErrNotFound, op)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTimeout, err)
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case errLockWaitTimeout:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrTimeout, err)
		case errDeadlock:
			// 按固定顺序加锁后不应出现死锁，出现时按存储故障处理
			return fmt.Errorf("%s: deadlock: %w: %w", op, domain.ErrPersistence, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}
