package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/blues/settlement/internal/model"
	"gorm.io/gorm"
)

// MerchantRepository 商户只读查询
type MerchantRepository struct {
	db *gorm.DB
}

// NewMerchantRepository 创建商户查询
func NewMerchantRepository(db *gorm.DB) *MerchantRepository {
	return &MerchantRepository{db: db}
}

// Get 根据ID查询商户，不存在时返回 nil
func (r *MerchantRepository) Get(ctx context.Context, id int64) (*model.MerchantModel, error) {
	var m model.MerchantModel
	err := r.db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get merchant %d: %w", id, err)
	}
	return &m, nil
}

// List 全部商户，按ID升序
func (r *MerchantRepository) List(ctx context.Context) ([]model.MerchantModel, error) {
	var merchants []model.MerchantModel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&merchants).Error; err != nil {
		return nil, fmt.Errorf("list merchants: %w", err)
	}
	return merchants, nil
}

// ListWithEscrow 已部署托管合约的商户，按ID升序
func (r *MerchantRepository) ListWithEscrow(ctx context.Context) ([]model.MerchantModel, error) {
	var merchants []model.MerchantModel
	err := r.db.WithContext(ctx).
		Where("contract_address IS NOT NULL AND TRIM(contract_address) <> ''").
		Order("id ASC").
		Find(&merchants).Error
	if err != nil {
		return nil, fmt.Errorf("list merchants with escrow: %w", err)
	}
	return merchants, nil
}

// Count 商户总数
func (r *MerchantRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.MerchantModel{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count merchants: %w", err)
	}
	return total, nil
}

// CountWithEscrow 已部署托管合约的商户数
func (r *MerchantRepository) CountWithEscrow(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.MerchantModel{}).
		Where("contract_address IS NOT NULL AND TRIM(contract_address) <> ''").
		Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("count merchants with escrow: %w", err)
	}
	return total, nil
}
