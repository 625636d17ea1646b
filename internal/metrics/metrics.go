package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// 分账尝试的结果标签
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomePending   = "pending"
	OutcomeEmpty     = "empty"
	OutcomeSkipped   = "skipped"
)

// SettlementMetrics 分账相关指标，nil 时所有方法为空操作
type SettlementMetrics struct {
	// 分账轮次
	SweepsTotal   *prometheus.CounterVec
	SweepDuration prometheus.Histogram

	// 单商户分账尝试
	AttemptsTotal *prometheus.CounterVec

	// 已完成分账金额
	SettledAmountTotal prometheus.Counter
	PlatformFeesTotal  prometheus.Counter

	// 链上已分账但账本写入失败
	PersistenceFailuresTotal prometheus.Counter

	// 待确认记录数
	PendingResolutions *prometheus.CounterVec
}

// NewSettlementMetrics 在给定注册器上创建指标
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	factory := promauto.With(reg)

	return &SettlementMetrics{
		SweepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_sweeps_total",
				Help: "Number of distribution sweeps by trigger",
			},
			[]string{"trigger"},
		),
		SweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "settlement_sweep_duration_seconds",
				Help:    "Duration of a full distribution sweep",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		AttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_attempts_total",
				Help: "Per-merchant settlement attempts by outcome",
			},
			[]string{"outcome", "error_kind"},
		),
		SettledAmountTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "settlement_settled_amount_total",
				Help: "Total amount settled out of merchant escrows",
			},
		),
		PlatformFeesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "settlement_platform_fees_total",
				Help: "Total platform fees from completed settlements",
			},
		),
		PersistenceFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "settlement_persistence_failures_total",
				Help: "Confirmed settlements that could not be written to the ledger",
			},
		),
		PendingResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_pending_resolutions_total",
				Help: "Pending distributions checked by the resolver, by result",
			},
			[]string{"result"},
		),
	}
}

// ObserveSweep 记录一次分账轮次
func (m *SettlementMetrics) ObserveSweep(trigger string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SweepsTotal.WithLabelValues(trigger).Inc()
	m.SweepDuration.Observe(elapsed.Seconds())
}

// ObserveAttempt 记录一次分账尝试
func (m *SettlementMetrics) ObserveAttempt(outcome, errorKind string) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(outcome, errorKind).Inc()
}

// ObserveSettled 记录已完成的分账金额
func (m *SettlementMetrics) ObserveSettled(total, fees decimal.Decimal) {
	if m == nil {
		return
	}
	m.SettledAmountTotal.Add(total.InexactFloat64())
	m.PlatformFeesTotal.Add(fees.InexactFloat64())
}

// ObservePersistenceFailure 记录账本写入失败
func (m *SettlementMetrics) ObservePersistenceFailure() {
	if m == nil {
		return
	}
	m.PersistenceFailuresTotal.Inc()
}

// ObserveResolution 记录待确认记录的检查结果
func (m *SettlementMetrics) ObserveResolution(result string) {
	if m == nil {
		return
	}
	m.PendingResolutions.WithLabelValues(result).Inc()
}
