package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"storefront/internal/service/inventory/domain"
)

func seeded(t *testing.T, records map[string]int64) *LedgerStore {
	t.Helper()
	store := NewLedgerStore(0)
	for id, qty := range records {
		require.NoError(t, store.Upsert(context.Background(), &domain.StockRecord{ProductID: id, Quantity: qty}))
	}
	return store
}

func TestLedgerTx_CommitMakesWritesVisible(t *testing.T) {
	ctx := context.Background()
	store := seeded(t, map[string]int64{"A": 10})

	tx, err := store.Begin(ctx, domain.TxOptions{})
	require.NoError(t, err)

	rec, err := tx.LockAndRead(ctx, "A")
	require.NoError(t, err)
	rec.Quantity = 4
	require.NoError(t, tx.Write(ctx, rec))

	// 未提交前其他读者看到的仍是旧值
	before, err := store.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(10), before.Quantity)

	require.NoError(t, tx.Commit())
	after, err := store.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(4), after.Quantity)

	// Commit 之后 Rollback 是空操作
	assert.NoError(t, tx.Rollback())
}

func TestLedgerTx_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	store := seeded(t, map[string]int64{"A": 10})

	tx, err := store.Begin(ctx, domain.TxOptions{})
	require.NoError(t, err)
	rec, err := tx.LockAndRead(ctx, "A")
	require.NoError(t, err)
	rec.Quantity = 0
	require.NoError(t, tx.Write(ctx, rec))
	require.NoError(t, tx.Rollback())

	got, err := store.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Quantity)
}

func TestLedgerTx_LockAndReadUnknownProduct(t *testing.T) {
	ctx := context.Background()
	store := seeded(t, map[string]int64{"A": 10})

	tx, err := store.Begin(ctx, domain.TxOptions{})
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.LockAndRead(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestLedgerTx_LockIsReentrantWithinTransaction(t *testing.T) {
	ctx := context.Background()
	store := seeded(t, map[string]int64{"A": 10})

	tx, err := store.Begin(ctx, domain.TxOptions{LockTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	defer tx.Rollback()

	rec, err := tx.LockAndRead(ctx, "A")
	require.NoError(t, err)
	rec.Quantity = 7
	require.NoError(t, tx.Write(ctx, rec))

	again, err := tx.LockAndRead(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(7), again.Quantity)
}

func TestLedgerTx_LockTimeout(t *testing.T) {
	ctx := context.Background()
	store := seeded(t, map[string]int64{"A": 10})

	holder, err := store.Begin(ctx, domain.TxOptions{})
	require.NoError(t, err)
	_, err = holder.LockAndRead(ctx, "A")
	require.NoError(t, err)

	waiter, err := store.Begin(ctx, domain.TxOptions{LockTimeout: 30 * time.Millisecond})
	require.NoError(t, err)
	start := time.Now()
	_, err = waiter.LockAndRead(ctx, "A")
	assert.True(t, errors.Is(err, domain.ErrTimeout))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	require.NoError(t, waiter.Rollback())

	require.NoError(t, holder.Rollback())

	// 锁被释放后可以再次获取
	next, err := store.Begin(ctx, domain.TxOptions{LockTimeout: 30 * time.Millisecond})
	require.NoError(t, err)
	_, err = next.LockAndRead(ctx, "A")
	assert.NoError(t, err)
	require.NoError(t, next.Rollback())
}

func TestLedgerTx_WaiterSeesCommittedValue(t *testing.T) {
	ctx := context.Background()
	store := seeded(t, map[string]int64{"A": 10})

	holder, err := store.Begin(ctx, domain.TxOptions{})
	require.NoError(t, err)
	rec, err := holder.LockAndRead(ctx, "A")
	require.NoError(t, err)

	got := make(chan int64, 1)
	go func() {
		waiter, _ := store.Begin(ctx, domain.TxOptions{})
		defer waiter.Rollback()
		r, err := waiter.LockAndRead(ctx, "A")
		if err != nil {
			got <- -1
			return
		}
		got <- r.Quantity
	}()

	time.Sleep(20 * time.Millisecond)
	rec.Quantity = 3
	require.NoError(t, holder.Write(ctx, rec))
	require.NoError(t, holder.Commit())

	select {
	case q := <-got:
		assert.Equal(t, int64(3), q)
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
}

func TestLedgerTx_WriteRequiresLock(t *testing.T) {
	ctx := context.Background()
	store := seeded(t, map[string]int64{"A": 10})

	tx, err := store.Begin(ctx, domain.TxOptions{})
	require.NoError(t, err)
	defer tx.Rollback()

	err = tx.Write(ctx, &domain.StockRecord{ProductID: "A", Quantity: 1})
	assert.True(t, errors.Is(err, domain.ErrPersistence))
}

func TestLedgerStore_UpsertRejectsNegativeQuantity(t *testing.T) {
	store := NewLedgerStore(0)
	err := store.Upsert(context.Background(), &domain.StockRecord{ProductID: "A", Quantity: -1})
	assert.True(t, errors.Is(err, domain.ErrInvalidAmount))
}

func TestLedgerStore_BeginClassifiesContextErrors(t *testing.T) {
	store := NewLedgerStore(0)

	expired, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()
	_, err := store.Begin(expired, domain.TxOptions{})
	assert.True(t, errors.Is(err, domain.ErrTimeout))
	assert.False(t, errors.Is(err, domain.ErrPersistence))

	canceled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	_, err = store.Begin(canceled, domain.TxOptions{})
	assert.True(t, errors.Is(err, domain.ErrPersistence))
	assert.False(t, errors.Is(err, domain.ErrTimeout))
}

func TestLedgerTx_CanceledLockWaitIsPersistenceError(t *testing.T) {
	ctx := context.Background()
	store := seeded(t, map[string]int64{"A": 10})

	holder, err := store.Begin(ctx, domain.TxOptions{})
	require.NoError(t, err)
	defer holder.Rollback()
	_, err = holder.LockAndRead(ctx, "A")
	require.NoError(t, err)

	waiter, err := store.Begin(ctx, domain.TxOptions{LockTimeout: time.Second})
	require.NoError(t, err)
	defer waiter.Rollback()

	waitCtx, cancel := context.WithCancel(ctx)
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err = waiter.LockAndRead(waitCtx, "A")
	assert.True(t, errors.Is(err, domain.ErrPersistence))
	assert.False(t, errors.Is(err, domain.ErrTimeout))
}
