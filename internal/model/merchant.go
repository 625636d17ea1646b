package model

import (
	"strings"
	"time"
)

// MerchantModel 商户，由入驻服务维护，本服务只读
type MerchantModel struct {
	Id                 int64     `json:"id" gorm:"primaryKey"`
	BusinessName       string    `json:"business_name" gorm:"not null"`
	ContactInformation string    `json:"contact_information"`
	BusinessAddress    string    `json:"business_address"`
	ReceivingAddress   string    `json:"receiving_address"`
	ContractAddress    *string   `json:"contract_address"` // 托管合约地址，为空表示尚未入驻完成
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName 自定义表名
func (MerchantModel) TableName() string {
	return "merchants"
}

// EscrowAddress 返回去除空白的托管合约地址
func (m *MerchantModel) EscrowAddress() string {
	if m.ContractAddress == nil {
		return ""
	}
	return strings.TrimSpace(*m.ContractAddress)
}

// HasEscrow 是否已部署托管合约
func (m *MerchantModel) HasEscrow() bool {
	return m.EscrowAddress() != ""
}
