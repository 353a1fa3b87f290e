// internal/service/inventory/domain/repository.go
package domain

import (
	"context"
	"time"
)

// TxOptions 控制一次库存事务的行为
type TxOptions struct {
	// LockTimeout 是单条记录加锁的最长等待时间，0 表示使用存储层默认值。
	LockTimeout time.Duration
}

// LedgerStore 定义了库存记录的持久化接口。
// 它位于领域层，但由基础设施层实现 (MySQL / 内存)。
type LedgerStore interface {
	// Begin 开启一个事务。事务句柄显式传递，不依赖任何隐式的“当前事务”。
	Begin(ctx context.Context, opts TxOptions) (LedgerTx, error)

	// Get 读取已提交的库存记录，不加锁。
	Get(ctx context.Context, productID string) (*StockRecord, error)

	// Upsert 创建或覆盖一条库存记录 (初始化库存用)。
	Upsert(ctx context.Context, record *StockRecord) error
}

// LedgerTx 是一个进行中的库存事务
type LedgerTx interface {
	// LockAndRead 对记录加排他锁 (持有到事务结束) 并返回最新数量。
	LockAndRead(ctx context.Context, productID string) (*StockRecord, error)

	// Write 写入修改后的记录，只有在 Commit 之后才对其他事务可见。
	Write(ctx context.Context, record *StockRecord) error

	Commit() error

	// Rollback 丢弃所有修改并释放锁。在 Commit 之后调用是安全的空操作。
	Rollback() error
}
