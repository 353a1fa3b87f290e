package persistence

import "time"

// StockRecordModel 对应数据库中的 stock_records 表
type StockRecordModel struct {
	ID        uint   `gorm:"primaryKey"`
	ProductID string `gorm:"type:varchar(64);uniqueIndex;not null"`
	Quantity  int64  `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (StockRecordModel) TableName() string {
	return "stock_records"
}
