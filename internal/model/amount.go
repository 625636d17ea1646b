package model

import (
	"database/sql/driver"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Amount 账本金额，以十进制字符串读写，任何驱动下都不经过 float64
type Amount struct {
	decimal.Decimal
}

// NewAmount 包装 decimal 金额
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

// GormDataType 通用数据类型
func (Amount) GormDataType() string {
	return "decimal"
}

// GormDBDataType sqlite 的 decimal 列是 NUMERIC 亲和性，会转成浮点，改用 text
func (Amount) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "sqlite":
		return "text"
	default:
		return "numeric(38,18)"
	}
}

// Value 写入十进制字符串
func (a Amount) Value() (driver.Value, error) {
	return a.Decimal.String(), nil
}

// Scan 从字符串、字节或数值读取
func (a *Amount) Scan(value interface{}) error {
	return a.Decimal.Scan(value)
}
