package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blues/settlement/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrNotPending 记录不存在或已是终态
var ErrNotPending = errors.New("distribution is not pending")

// DistributionFilter 分账记录查询条件
type DistributionFilter struct {
	MerchantId int64 // 0 表示全部商户
	Statuses   []model.DistributionStatus
	Limit      int // 0 表示不分页
	Offset     int
}

// Resolution 待确认记录转终态时写入的字段
type Resolution struct {
	Status         model.DistributionStatus
	TotalAmount    *decimal.Decimal
	MerchantAmount *decimal.Decimal
	PlatformFees   *decimal.Decimal
	ErrorKind      string
	Notes          string
}

// DistributionRepository 分账账本，只追加
type DistributionRepository struct {
	db *gorm.DB
}

// NewDistributionRepository 创建分账账本
func NewDistributionRepository(db *gorm.DB) *DistributionRepository {
	return &DistributionRepository{db: db}
}

// Create 追加一条分账记录
func (r *DistributionRepository) Create(ctx context.Context, d *model.DistributionModel) error {
	if d.DistributedAt.IsZero() {
		d.DistributedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("insert distribution for merchant %d: %w", d.MerchantId, err)
	}
	return nil
}

// Get 根据ID查询，未找到时返回 nil
func (r *DistributionRepository) Get(ctx context.Context, id int64) (*model.DistributionModel, error) {
	var d model.DistributionModel
	err := r.db.WithContext(ctx).First(&d, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get distribution %d: %w", id, err)
	}
	return &d, nil
}

// FindByTxHash 根据交易哈希查询，未找到时返回 nil
func (r *DistributionRepository) FindByTxHash(ctx context.Context, txHash string) (*model.DistributionModel, error) {
	var d model.DistributionModel
	err := r.db.WithContext(ctx).Where("transaction_hash = ?", txHash).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find distribution by tx %s: %w", txHash, err)
	}
	return &d, nil
}

// ListByMerchant 商户的全部分账记录，按时间倒序
func (r *DistributionRepository) ListByMerchant(ctx context.Context, merchantId int64) ([]model.DistributionModel, error) {
	return r.Find(ctx, DistributionFilter{MerchantId: merchantId})
}

// List 全部分账记录，可按状态过滤
func (r *DistributionRepository) List(ctx context.Context, statuses ...model.DistributionStatus) ([]model.DistributionModel, error) {
	return r.Find(ctx, DistributionFilter{Statuses: statuses})
}

// ListPending 所有待确认记录
func (r *DistributionRepository) ListPending(ctx context.Context) ([]model.DistributionModel, error) {
	return r.List(ctx, model.DistributionStatusPending)
}

func (r *DistributionRepository) filtered(ctx context.Context, filter DistributionFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&model.DistributionModel{})
	if filter.MerchantId != 0 {
		query = query.Where("merchant_id = ?", filter.MerchantId)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	return query
}

// Count 按条件计数，忽略分页
func (r *DistributionRepository) Count(ctx context.Context, filter DistributionFilter) (int64, error) {
	var total int64
	if err := r.filtered(ctx, filter).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count distributions: %w", err)
	}
	return total, nil
}

// Find 按条件查询，按时间倒序
func (r *DistributionRepository) Find(ctx context.Context, filter DistributionFilter) ([]model.DistributionModel, error) {
	query := r.filtered(ctx, filter)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	var records []model.DistributionModel
	if err := query.Order("distributed_at DESC").Order("id DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}
	return records, nil
}

// Latest 最近一条分账记录，没有时返回 nil
func (r *DistributionRepository) Latest(ctx context.Context) (*model.DistributionModel, error) {
	var d model.DistributionModel
	err := r.db.WithContext(ctx).Order("distributed_at DESC").Order("id DESC").First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest distribution: %w", err)
	}
	return &d, nil
}

// LatestPending 商户最近一条待确认记录，没有时返回 nil
func (r *DistributionRepository) LatestPending(ctx context.Context, merchantId int64) (*model.DistributionModel, error) {
	var d model.DistributionModel
	err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND status = ?", merchantId, model.DistributionStatusPending).
		Order("distributed_at DESC").
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pending distribution for merchant %d: %w", merchantId, err)
	}
	return &d, nil
}

// Resolve 待确认记录唯一允许的更新：转为终态
func (r *DistributionRepository) Resolve(ctx context.Context, id int64, res Resolution) error {
	if !res.Status.IsTerminal() {
		return fmt.Errorf("resolve distribution %d: status %q is not terminal", id, res.Status)
	}

	updates := map[string]interface{}{
		"status":     res.Status,
		"error_kind": res.ErrorKind,
		"notes":      res.Notes,
		"updated_at": time.Now(),
	}
	if res.TotalAmount != nil {
		updates["total_amount"] = model.NewAmount(*res.TotalAmount)
	}
	if res.MerchantAmount != nil {
		updates["merchant_amount"] = model.NewAmount(*res.MerchantAmount)
	}
	if res.PlatformFees != nil {
		updates["platform_fees"] = model.NewAmount(*res.PlatformFees)
	}

	result := r.db.WithContext(ctx).Model(&model.DistributionModel{}).
		Where("id = ? AND status = ?", id, model.DistributionStatusPending).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("resolve distribution %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}
