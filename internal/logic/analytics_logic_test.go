package logic

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/blues/settlement/internal/database"
	"github.com/blues/settlement/internal/model"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const vault = "0x00000000000000000000000000000000000000ff"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(sqlite.Open(filepath.Join(t.TempDir(), "analytics.db")))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedMerchant(t *testing.T, db *gorm.DB, id int64, name, contract string) {
	t.Helper()
	m := model.MerchantModel{Id: id, BusinessName: name, ReceivingAddress: "0xreceiver"}
	if contract != "" {
		m.ContractAddress = &contract
	}
	if err := db.Create(&m).Error; err != nil {
		t.Fatalf("seed merchant %d: %v", id, err)
	}
}

func seedDistribution(t *testing.T, db *gorm.DB, merchantId int64, status model.DistributionStatus, total, merchantAmount, fees string, at time.Time) *model.DistributionModel {
	t.Helper()
	d := &model.DistributionModel{
		MerchantId:     merchantId,
		TotalAmount:    model.NewAmount(dec(total)),
		MerchantAmount: model.NewAmount(dec(merchantAmount)),
		PlatformFees:   model.NewAmount(dec(fees)),
		Status:         status,
		DistributedAt:  at,
	}
	if status != model.DistributionStatusFailed {
		tx := "0x" + uuid.NewString()
		d.TransactionHash = &tx
	}
	if err := db.Create(d).Error; err != nil {
		t.Fatalf("seed distribution: %v", err)
	}
	return d
}

func findMerchant(t *testing.T, list []MerchantAnalytics, id int64) MerchantAnalytics {
	t.Helper()
	for _, m := range list {
		if m.MerchantId == id {
			return m
		}
	}
	t.Fatalf("merchant %d missing from analytics", id)
	return MerchantAnalytics{}
}

func TestPlatformAnalyticsSingleCompletedRecord(t *testing.T) {
	db := newTestDB(t)
	seedMerchant(t, db, 1, "Coffee", "0x01")
	seedDistribution(t, db, 1, model.DistributionStatusCompleted, "100", "90", "10", time.Now())

	platform, err := NewAnalyticsLogic(db, vault).GetPlatformAnalytics(context.Background())
	if err != nil {
		t.Fatalf("platform analytics: %v", err)
	}
	if platform.VaultAddress != vault {
		t.Fatalf("expected vault %s, got %s", vault, platform.VaultAddress)
	}
	if !platform.TotalFeesGenerated.Equal(dec("10")) || !platform.TotalFeesReceived.Equal(dec("10")) || !platform.PendingFees.IsZero() {
		t.Fatalf("expected 10/10/0, got %s/%s/%s", platform.TotalFeesGenerated, platform.TotalFeesReceived, platform.PendingFees)
	}
}

func TestMerchantAnalyticsCompletedAndFailed(t *testing.T) {
	db := newTestDB(t)
	seedMerchant(t, db, 1, "Coffee", "0x01")
	seedDistribution(t, db, 1, model.DistributionStatusCompleted, "100", "90", "10", time.Now().Add(-time.Hour))
	seedDistribution(t, db, 1, model.DistributionStatusFailed, "50", "45", "5", time.Now())

	orders := []model.OrderModel{
		{Id: uuid.NewString(), MerchantId: 1, Status: model.OrderStatusPaid},
		{Id: uuid.NewString(), MerchantId: 1, Status: model.OrderStatusPending},
	}
	if err := db.Create(&orders).Error; err != nil {
		t.Fatalf("seed orders: %v", err)
	}

	list, err := NewAnalyticsLogic(db, vault).GetMerchantAnalytics(context.Background())
	if err != nil {
		t.Fatalf("merchant analytics: %v", err)
	}
	m := findMerchant(t, list, 1)

	if !m.MerchantExpected.Equal(dec("135")) {
		t.Fatalf("expected merchantExpected 135, got %s", m.MerchantExpected)
	}
	if !m.MerchantReceived.Equal(dec("90")) {
		t.Fatalf("expected merchantReceived 90, got %s", m.MerchantReceived)
	}
	if !m.PendingAmountToBeReceived.Equal(dec("45")) {
		t.Fatalf("expected pending 45, got %s", m.PendingAmountToBeReceived)
	}
	if !m.FeesExpected.Equal(dec("15")) || !m.FeesReceived.Equal(dec("10")) || !m.PendingFees.Equal(dec("5")) {
		t.Fatalf("unexpected fees %s/%s/%s", m.FeesExpected, m.FeesReceived, m.PendingFees)
	}
	if m.TotalOrders != 2 || m.PaidOrders != 1 {
		t.Fatalf("expected 2 orders / 1 paid, got %d / %d", m.TotalOrders, m.PaidOrders)
	}
	if m.DistributionCount != 2 || m.LastDistributedAt == nil {
		t.Fatalf("expected 2 distributions with a last timestamp, got %d / %v", m.DistributionCount, m.LastDistributedAt)
	}
	if m.MerchantReceived.GreaterThan(m.MerchantExpected) {
		t.Fatal("received must never exceed expected")
	}
}

func TestMerchantWithoutRecordsHasNothingPending(t *testing.T) {
	db := newTestDB(t)
	seedMerchant(t, db, 1, "New shop", "")

	list, err := NewAnalyticsLogic(db, vault).GetMerchantAnalytics(context.Background())
	if err != nil {
		t.Fatalf("merchant analytics: %v", err)
	}
	m := findMerchant(t, list, 1)
	if !m.PendingAmountToBeReceived.IsZero() || !m.PendingFees.IsZero() {
		t.Fatalf("expected zero pending, got %s / %s", m.PendingAmountToBeReceived, m.PendingFees)
	}
	if m.HasContract || m.TotalOrders != 0 || m.DistributionCount != 0 {
		t.Fatalf("unexpected analytics for new merchant %+v", m)
	}
}

func TestDistributionAnalyticsFloorsPendingPerMerchant(t *testing.T) {
	db := newTestDB(t)
	seedMerchant(t, db, 1, "Coffee", "0x01")
	seedMerchant(t, db, 2, "Books", "0x02")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// 商户1有 45 未到账
	seedDistribution(t, db, 1, model.DistributionStatusCompleted, "100", "90", "10", base)
	seedDistribution(t, db, 1, model.DistributionStatusFailed, "50", "45", "5", base.Add(time.Minute))
	// 商户2的失败记录金额为负（人工冲正），不能抵消商户1
	seedDistribution(t, db, 2, model.DistributionStatusFailed, "-20", "-18", "-2", base.Add(2*time.Minute))
	latest := seedDistribution(t, db, 2, model.DistributionStatusCompleted, "10", "9", "1", base.Add(3*time.Minute))

	dist, err := NewAnalyticsLogic(db, vault).GetDistributionAnalytics(context.Background())
	if err != nil {
		t.Fatalf("distribution analytics: %v", err)
	}

	if len(dist.Distributions) != 4 {
		t.Fatalf("expected 4 records, got %d", len(dist.Distributions))
	}
	if dist.Latest == nil || dist.Latest.Id != latest.Id || dist.Latest.MerchantName != "Books" {
		t.Fatalf("unexpected latest record %+v", dist.Latest)
	}
	if !dist.TotalDistributed.Equal(dec("140")) {
		t.Fatalf("expected totalDistributed 140, got %s", dist.TotalDistributed)
	}
	if !dist.TotalPendingMerchantAmount.Equal(dec("45")) {
		t.Fatalf("expected floored pending 45, got %s", dist.TotalPendingMerchantAmount)
	}
	if !dist.TotalPendingPlatformFees.Equal(dec("5")) {
		t.Fatalf("expected floored pending fees 5, got %s", dist.TotalPendingPlatformFees)
	}
	if dist.StatusCounts["completed"] != 2 || dist.StatusCounts["failed"] != 2 {
		t.Fatalf("unexpected status counts %+v", dist.StatusCounts)
	}
	for _, d := range dist.Distributions {
		if d.MerchantName == "" {
			t.Fatalf("record %d missing merchant name", d.Id)
		}
	}
}

func TestDistributionAnalyticsEmptyLedger(t *testing.T) {
	dist, err := NewAnalyticsLogic(newTestDB(t), vault).GetDistributionAnalytics(context.Background())
	if err != nil {
		t.Fatalf("distribution analytics: %v", err)
	}
	if dist.Latest != nil || len(dist.Distributions) != 0 {
		t.Fatalf("expected empty analytics, got %+v", dist)
	}
	if !dist.TotalDistributed.IsZero() || !dist.TotalPendingMerchantAmount.IsZero() {
		t.Fatalf("expected zero totals, got %s / %s", dist.TotalDistributed, dist.TotalPendingMerchantAmount)
	}
}

func TestDashboardAnalyticsUsesOneSnapshot(t *testing.T) {
	db := newTestDB(t)
	seedMerchant(t, db, 1, "Coffee", "0x01")
	seedMerchant(t, db, 2, "Books", "")
	seedDistribution(t, db, 1, model.DistributionStatusCompleted, "100", "90", "10", time.Now())

	logic := NewAnalyticsLogic(db, vault)
	dashboard, err := logic.GetDashboardAnalytics(context.Background())
	if err != nil {
		t.Fatalf("dashboard analytics: %v", err)
	}
	if dashboard.Stats.TotalMerchants != 2 || dashboard.Stats.MerchantsWithContracts != 1 {
		t.Fatalf("unexpected stats %+v", dashboard.Stats)
	}
	if len(dashboard.Merchants) != 2 {
		t.Fatalf("expected 2 merchants, got %d", len(dashboard.Merchants))
	}
	if !dashboard.Platform.TotalFeesGenerated.Equal(dashboard.Distributions.TotalDistributed.Sub(dec("90"))) {
		t.Fatalf("platform and distribution views disagree: %s vs %s",
			dashboard.Platform.TotalFeesGenerated, dashboard.Distributions.TotalDistributed)
	}

	stats, err := logic.GetDashboardStats(context.Background())
	if err != nil {
		t.Fatalf("dashboard stats: %v", err)
	}
	if stats.TotalMerchants != 2 || stats.MerchantsWithContracts != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestMerchantDetailScopesToOneMerchant(t *testing.T) {
	db := newTestDB(t)
	seedMerchant(t, db, 1, "Coffee", "0x01")
	seedMerchant(t, db, 2, "Books", "0x02")
	seedDistribution(t, db, 1, model.DistributionStatusCompleted, "100", "90", "10", time.Now().Add(-time.Hour))
	seedDistribution(t, db, 1, model.DistributionStatusFailed, "50", "45", "5", time.Now())
	seedDistribution(t, db, 2, model.DistributionStatusCompleted, "30", "27", "3", time.Now())

	logic := NewAnalyticsLogic(db, vault)
	detail, err := logic.GetMerchantDetail(context.Background(), 1)
	if err != nil {
		t.Fatalf("merchant detail: %v", err)
	}
	if detail == nil || detail.MerchantId != 1 || detail.BusinessName != "Coffee" {
		t.Fatalf("unexpected detail %+v", detail)
	}
	if len(detail.Distributions) != 2 || detail.DistributionCount != 2 {
		t.Fatalf("expected only merchant 1 records, got %d / %d", len(detail.Distributions), detail.DistributionCount)
	}
	if !detail.MerchantReceived.Equal(dec("90")) || !detail.PendingAmountToBeReceived.Equal(dec("45")) {
		t.Fatalf("unexpected amounts %s / %s", detail.MerchantReceived, detail.PendingAmountToBeReceived)
	}

	missing, err := logic.GetMerchantDetail(context.Background(), 99)
	if err != nil || missing != nil {
		t.Fatalf("expected nil detail for unknown merchant, got %+v / %v", missing, err)
	}
}
