package persistence

import "storefront/internal/service/inventory/domain"

// ToDomainStockRecord 将数据库模型转换为领域模型
func ToDomainStockRecord(model *StockRecordModel) *domain.StockRecord {
	if model == nil {
		return nil
	}
	return &domain.StockRecord{
		ProductID: model.ProductID,
		Quantity:  model.Quantity,
		UpdatedAt: model.UpdatedAt,
	}
}

// FromDomainStockRecord 将领域模型转换为数据库模型 (用于插入)
func FromDomainStockRecord(record *domain.StockRecord) *StockRecordModel {
	if record == nil {
		return nil
	}
	return &StockRecordModel{
		ProductID: record.ProductID,
		Quantity:  record.Quantity,
		UpdatedAt: record.UpdatedAt,
	}
}
