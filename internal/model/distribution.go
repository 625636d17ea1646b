package model

import (
	"time"
)

// DistributionModel 分账记录，每次分账尝试一行，只追加
type DistributionModel struct {
	Id              int64              `json:"id" gorm:"primaryKey"`
	MerchantId      int64              `json:"merchant_id" gorm:"index;not null"`
	TotalAmount     Amount             `json:"total_amount" gorm:"not null"`    // 本次分账总额
	MerchantAmount  Amount             `json:"merchant_amount" gorm:"not null"` // 商户所得
	PlatformFees    Amount             `json:"platform_fees" gorm:"not null"`   // 平台手续费
	TransactionHash *string            `json:"transaction_hash" gorm:"uniqueIndex"`
	Status          DistributionStatus `json:"status" gorm:"index;not null"`
	ErrorKind       string             `json:"error_kind"`
	Notes           string             `json:"notes" gorm:"type:text"`
	DistributedAt   time.Time          `json:"distributed_at" gorm:"index;not null"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// DistributionStatus 分账状态
type DistributionStatus string

const (
	DistributionStatusPending   DistributionStatus = "pending"   // 已提交，等待确认
	DistributionStatusCompleted DistributionStatus = "completed" // 已完成
	DistributionStatusFailed    DistributionStatus = "failed"    // 失败
)

// IsTerminal 是否为终态
func (s DistributionStatus) IsTerminal() bool {
	return s == DistributionStatusCompleted || s == DistributionStatusFailed
}

// TableName 自定义表名
func (DistributionModel) TableName() string {
	return "distributions"
}

// TxHash 返回交易哈希，没有时为空串
func (d *DistributionModel) TxHash() string {
	if d.TransactionHash == nil {
		return ""
	}
	return *d.TransactionHash
}
