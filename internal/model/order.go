package model

import (
	"time"
)

// OrderModel 订单，由店铺同步服务维护，本服务只用于统计
type OrderModel struct {
	Id              string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MerchantId      int64       `json:"merchant_id" gorm:"index;not null"`
	Status          OrderStatus `json:"status" gorm:"default:'pending'"`
	TransactionHash string      `json:"transaction_hash"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending" // 待支付
	OrderStatusPaid    OrderStatus = "paid"    // 已支付
	OrderStatusFailed  OrderStatus = "failed"  // 支付失败
)

// TableName 自定义表名
func (OrderModel) TableName() string {
	return "orders"
}
