package repository

import (
	"context"
	"fmt"

	"github.com/blues/settlement/internal/model"
	"gorm.io/gorm"
)

// OrderCounts 商户订单统计
type OrderCounts struct {
	Total int64
	Paid  int64
}

// OrderRepository 订单只读统计
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单统计
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CountByMerchant 按商户统计订单总数和已支付数
func (r *OrderRepository) CountByMerchant(ctx context.Context) (map[int64]OrderCounts, error) {
	var rows []struct {
		MerchantId int64
		Total      int64
		Paid       int64
	}

	err := r.db.WithContext(ctx).Model(&model.OrderModel{}).
		Select("merchant_id, COUNT(*) AS total, SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS paid", model.OrderStatusPaid).
		Group("merchant_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count orders by merchant: %w", err)
	}

	counts := make(map[int64]OrderCounts, len(rows))
	for _, row := range rows {
		counts[row.MerchantId] = OrderCounts{Total: row.Total, Paid: row.Paid}
	}
	return counts, nil
}
