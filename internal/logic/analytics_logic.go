package logic

import (
	"context"
	"fmt"
	"time"

	"github.com/blues/settlement/internal/model"
	"github.com/blues/settlement/internal/repository"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MerchantAnalytics 单个商户的对账数据
type MerchantAnalytics struct {
	MerchantId         int64  `json:"merchantId"`
	BusinessName       string `json:"businessName"`
	ContactInformation string `json:"contactInformation"`
	BusinessAddress    string `json:"businessAddress"`
	ReceivingAddress   string `json:"receivingAddress"`
	ContractAddress    string `json:"contractAddress"`
	HasContract        bool   `json:"hasContract"`

	TotalOrders int64 `json:"totalOrders"`
	PaidOrders  int64 `json:"paidOrders"`

	DistributionCount         int             `json:"distributionCount"`
	MerchantExpected          decimal.Decimal `json:"merchantExpected"`
	FeesExpected              decimal.Decimal `json:"feesExpected"`
	MerchantReceived          decimal.Decimal `json:"merchantReceived"`
	FeesReceived              decimal.Decimal `json:"feesReceived"`
	PendingAmountToBeReceived decimal.Decimal `json:"pendingAmountToBeReceived"`
	PendingFees               decimal.Decimal `json:"pendingFees"`
	LastDistributedAt         *time.Time      `json:"lastDistributedAt,omitempty"`
}

// PlatformAnalytics 平台手续费汇总
type PlatformAnalytics struct {
	VaultAddress       string          `json:"vaultAddress"`
	TotalFeesGenerated decimal.Decimal `json:"totalFeesGenerated"`
	TotalFeesReceived  decimal.Decimal `json:"totalFeesReceived"`
	PendingFees        decimal.Decimal `json:"pendingFees"`
}

// DistributionView 分账记录（带商户名称）
type DistributionView struct {
	Id              int64                    `json:"id"`
	MerchantId      int64                    `json:"merchantId"`
	MerchantName    string                   `json:"merchantName"`
	TotalAmount     decimal.Decimal          `json:"totalAmount"`
	MerchantAmount  decimal.Decimal          `json:"merchantAmount"`
	PlatformFees    decimal.Decimal          `json:"platformFees"`
	TransactionHash string                   `json:"transactionHash,omitempty"`
	Status          model.DistributionStatus `json:"status"`
	ErrorKind       string                   `json:"errorKind,omitempty"`
	Notes           string                   `json:"notes,omitempty"`
	DistributedAt   time.Time                `json:"distributedAt"`
}

// DistributionAnalytics 分账记录汇总
type DistributionAnalytics struct {
	Distributions              []DistributionView `json:"distributions"`
	Latest                     *DistributionView  `json:"latest"`
	StatusCounts               map[string]int     `json:"statusCounts"`
	TotalDistributed           decimal.Decimal    `json:"totalDistributed"`
	TotalPendingMerchantAmount decimal.Decimal    `json:"totalPendingMerchantAmount"`
	TotalPendingPlatformFees   decimal.Decimal    `json:"totalPendingPlatformFees"`
}

// DashboardStats 仪表盘统计
type DashboardStats struct {
	TotalMerchants         int64     `json:"totalMerchants"`
	MerchantsWithContracts int64     `json:"merchantsWithContracts"`
	Timestamp              time.Time `json:"timestamp"`
}

// DashboardAnalytics 仪表盘全部数据
type DashboardAnalytics struct {
	Stats         DashboardStats        `json:"stats"`
	Merchants     []MerchantAnalytics   `json:"merchants"`
	Platform      PlatformAnalytics     `json:"platform"`
	Distributions DistributionAnalytics `json:"distributions"`
}

// AnalyticsLogic 对账分析业务逻辑，只读
type AnalyticsLogic struct {
	distributions *repository.DistributionRepository
	merchants     *repository.MerchantRepository
	orders        *repository.OrderRepository
	vaultAddress  string
	now           func() time.Time
}

// NewAnalyticsLogic 创建对账分析业务逻辑
func NewAnalyticsLogic(db *gorm.DB, vaultAddress string) *AnalyticsLogic {
	return &AnalyticsLogic{
		distributions: repository.NewDistributionRepository(db),
		merchants:     repository.NewMerchantRepository(db),
		orders:        repository.NewOrderRepository(db),
		vaultAddress:  vaultAddress,
		now:           time.Now,
	}
}

// snapshot 一次读取的账本和商户数据
type snapshot struct {
	records   []model.DistributionModel
	merchants []model.MerchantModel
}

func (a *AnalyticsLogic) loadSnapshot(ctx context.Context) (*snapshot, error) {
	records, err := a.distributions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取分账记录失败: %w", err)
	}
	merchants, err := a.merchants.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取商户列表失败: %w", err)
	}
	return &snapshot{records: records, merchants: merchants}, nil
}

// GetMerchantAnalytics 获取所有商户的对账数据
func (a *AnalyticsLogic) GetMerchantAnalytics(ctx context.Context) ([]MerchantAnalytics, error) {
	snap, err := a.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return a.merchantAnalytics(ctx, snap)
}

// MerchantDetail 单个商户对账数据及其分账记录
type MerchantDetail struct {
	MerchantAnalytics
	Distributions []model.DistributionModel `json:"distributions"`
}

// GetMerchantDetail 获取单个商户的对账数据，商户不存在时返回 nil
func (a *AnalyticsLogic) GetMerchantDetail(ctx context.Context, merchantId int64) (*MerchantDetail, error) {
	merchant, err := a.merchants.Get(ctx, merchantId)
	if err != nil {
		return nil, fmt.Errorf("获取商户失败: %w", err)
	}
	if merchant == nil {
		return nil, nil
	}
	records, err := a.distributions.ListByMerchant(ctx, merchantId)
	if err != nil {
		return nil, fmt.Errorf("获取分账记录失败: %w", err)
	}

	list, err := a.merchantAnalytics(ctx, &snapshot{records: records, merchants: []model.MerchantModel{*merchant}})
	if err != nil {
		return nil, err
	}
	return &MerchantDetail{MerchantAnalytics: list[0], Distributions: records}, nil
}

// GetPlatformAnalytics 获取平台手续费汇总
func (a *AnalyticsLogic) GetPlatformAnalytics(ctx context.Context) (*PlatformAnalytics, error) {
	records, err := a.distributions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取分账记录失败: %w", err)
	}
	platform := a.platformAnalytics(records)
	return &platform, nil
}

// GetDistributionAnalytics 获取分账记录汇总
func (a *AnalyticsLogic) GetDistributionAnalytics(ctx context.Context) (*DistributionAnalytics, error) {
	snap, err := a.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	dist := distributionAnalytics(snap)
	return &dist, nil
}

// GetDashboardStats 获取仪表盘统计
func (a *AnalyticsLogic) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	total, err := a.merchants.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("统计商户数量失败: %w", err)
	}
	withContracts, err := a.merchants.CountWithEscrow(ctx)
	if err != nil {
		return nil, fmt.Errorf("统计商户数量失败: %w", err)
	}
	return &DashboardStats{
		TotalMerchants:         total,
		MerchantsWithContracts: withContracts,
		Timestamp:              a.now(),
	}, nil
}

// GetDashboardAnalytics 基于同一份快照计算仪表盘全部数据
func (a *AnalyticsLogic) GetDashboardAnalytics(ctx context.Context) (*DashboardAnalytics, error) {
	snap, err := a.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	merchants, err := a.merchantAnalytics(ctx, snap)
	if err != nil {
		return nil, err
	}

	var withContracts int64
	for i := range snap.merchants {
		if snap.merchants[i].HasEscrow() {
			withContracts++
		}
	}

	return &DashboardAnalytics{
		Stats: DashboardStats{
			TotalMerchants:         int64(len(snap.merchants)),
			MerchantsWithContracts: withContracts,
			Timestamp:              a.now(),
		},
		Merchants:     merchants,
		Platform:      a.platformAnalytics(snap.records),
		Distributions: distributionAnalytics(snap),
	}, nil
}

// ledgerTotals 一组分账记录的合计
type ledgerTotals struct {
	count            int
	merchantExpected decimal.Decimal
	feesExpected     decimal.Decimal
	merchantReceived decimal.Decimal
	feesReceived     decimal.Decimal
	lastAt           *time.Time
}

func (t *ledgerTotals) add(d *model.DistributionModel) {
	t.count++
	// 预期金额包含所有记录，实收只计已完成
	t.merchantExpected = t.merchantExpected.Add(d.MerchantAmount.Decimal)
	t.feesExpected = t.feesExpected.Add(d.PlatformFees.Decimal)
	if d.Status == model.DistributionStatusCompleted {
		t.merchantReceived = t.merchantReceived.Add(d.MerchantAmount.Decimal)
		t.feesReceived = t.feesReceived.Add(d.PlatformFees.Decimal)
	}
	if t.lastAt == nil || d.DistributedAt.After(*t.lastAt) {
		at := d.DistributedAt
		t.lastAt = &at
	}
}

func (t *ledgerTotals) merchantPending() decimal.Decimal {
	return t.merchantExpected.Sub(t.merchantReceived)
}

func (t *ledgerTotals) feesPending() decimal.Decimal {
	return t.feesExpected.Sub(t.feesReceived)
}

func totalsByMerchant(records []model.DistributionModel) map[int64]*ledgerTotals {
	totals := make(map[int64]*ledgerTotals)
	for i := range records {
		t, ok := totals[records[i].MerchantId]
		if !ok {
			t = &ledgerTotals{}
			totals[records[i].MerchantId] = t
		}
		t.add(&records[i])
	}
	return totals
}

func (a *AnalyticsLogic) merchantAnalytics(ctx context.Context, snap *snapshot) ([]MerchantAnalytics, error) {
	orderCounts, err := a.orders.CountByMerchant(ctx)
	if err != nil {
		return nil, fmt.Errorf("统计订单数量失败: %w", err)
	}

	totals := totalsByMerchant(snap.records)
	result := make([]MerchantAnalytics, 0, len(snap.merchants))
	for i := range snap.merchants {
		m := &snap.merchants[i]
		t, ok := totals[m.Id]
		if !ok {
			t = &ledgerTotals{}
		}
		orders := orderCounts[m.Id]

		result = append(result, MerchantAnalytics{
			MerchantId:                m.Id,
			BusinessName:              m.BusinessName,
			ContactInformation:        m.ContactInformation,
			BusinessAddress:           m.BusinessAddress,
			ReceivingAddress:          m.ReceivingAddress,
			ContractAddress:           m.EscrowAddress(),
			HasContract:               m.HasEscrow(),
			TotalOrders:               orders.Total,
			PaidOrders:                orders.Paid,
			DistributionCount:         t.count,
			MerchantExpected:          t.merchantExpected,
			FeesExpected:              t.feesExpected,
			MerchantReceived:          t.merchantReceived,
			FeesReceived:              t.feesReceived,
			PendingAmountToBeReceived: t.merchantPending(),
			PendingFees:               t.feesPending(),
			LastDistributedAt:         t.lastAt,
		})
	}
	return result, nil
}

func (a *AnalyticsLogic) platformAnalytics(records []model.DistributionModel) PlatformAnalytics {
	var t ledgerTotals
	for i := range records {
		t.add(&records[i])
	}
	return PlatformAnalytics{
		VaultAddress:       a.vaultAddress,
		TotalFeesGenerated: t.feesExpected,
		TotalFeesReceived:  t.feesReceived,
		PendingFees:        t.feesPending(),
	}
}

func distributionAnalytics(snap *snapshot) DistributionAnalytics {
	names := make(map[int64]string, len(snap.merchants))
	for i := range snap.merchants {
		names[snap.merchants[i].Id] = snap.merchants[i].BusinessName
	}

	result := DistributionAnalytics{
		Distributions: make([]DistributionView, 0, len(snap.records)),
		StatusCounts:  make(map[string]int),
	}

	for i := range snap.records {
		d := &snap.records[i]
		result.TotalDistributed = result.TotalDistributed.Add(d.TotalAmount.Decimal)
		result.StatusCounts[string(d.Status)]++
		result.Distributions = append(result.Distributions, DistributionView{
			Id:              d.Id,
			MerchantId:      d.MerchantId,
			MerchantName:    names[d.MerchantId],
			TotalAmount:     d.TotalAmount.Decimal,
			MerchantAmount:  d.MerchantAmount.Decimal,
			PlatformFees:    d.PlatformFees.Decimal,
			TransactionHash: d.TxHash(),
			Status:          d.Status,
			ErrorKind:       d.ErrorKind,
			Notes:           d.Notes,
			DistributedAt:   d.DistributedAt,
		})
	}

	// 列表按时间倒序，第一条即最近一条
	if len(result.Distributions) > 0 {
		latest := result.Distributions[0]
		result.Latest = &latest
	}

	// 按商户取 max(0, pending)，多收的商户不抵消其他商户的欠款
	for _, t := range totalsByMerchant(snap.records) {
		if p := t.merchantPending(); p.IsPositive() {
			result.TotalPendingMerchantAmount = result.TotalPendingMerchantAmount.Add(p)
		}
		if p := t.feesPending(); p.IsPositive() {
			result.TotalPendingPlatformFees = result.TotalPendingPlatformFees.Add(p)
		}
	}

	return result
}
