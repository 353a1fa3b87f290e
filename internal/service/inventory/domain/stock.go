// internal/service/inventory/domain/stock.go
package domain

import (
	"math"
	"time"
)

// StockRecord 是某个可售商品的库存数量。
// 不变量: 在任何事务提交的边界上 Quantity >= 0。
type StockRecord struct {
	ProductID string    `json:"product_id"`
	Quantity  int64     `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStockRecord 用于初始化一条库存记录
func NewStockRecord(productID string, quantity int64) (*StockRecord, error) {
	if productID == "" {
		return nil, ErrNotFound
	}
	if quantity < 0 {
		return nil, ErrInvalidAmount
	}
	return &StockRecord{
		ProductID: productID,
		Quantity:  quantity,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Withdraw 从记录中扣减库存，库存不足时不做任何修改。
func (r *StockRecord) Withdraw(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if r.Quantity < amount {
		return ErrInsufficientStock
	}
	r.Quantity -= amount
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Deposit 向记录中增加库存
func (r *StockRecord) Deposit(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if r.Quantity > math.MaxInt64-amount {
		return ErrInvalidAmount
	}
	r.Quantity += amount
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Clone 返回一份独立副本，避免调用方持有存储层内部的指针
func (r *StockRecord) Clone() *StockRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
