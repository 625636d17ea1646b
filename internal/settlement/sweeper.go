package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blues/settlement/internal/logger"
	"github.com/blues/settlement/internal/metrics"
	"github.com/blues/settlement/internal/model"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// 分账触发来源
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// MerchantSource 商户数据来源
type MerchantSource interface {
	Get(ctx context.Context, id int64) (*model.MerchantModel, error)
	ListWithEscrow(ctx context.Context) ([]model.MerchantModel, error)
}

// Result 单个商户的分账结果
type Result struct {
	MerchantId      int64  `json:"merchantId"`
	BusinessName    string `json:"businessName"`
	ContractAddress string `json:"contractAddress"`
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	TransactionHash string `json:"transactionHash,omitempty"`
	ErrorKind       string `json:"errorKind,omitempty"`
}

// Status 分账任务运行状态
type Status struct {
	Schedule       string     `json:"schedule"`
	Workers        int        `json:"workers"`
	Running        bool       `json:"running"`
	LastRunId      string     `json:"lastRunId,omitempty"`
	LastTrigger    string     `json:"lastTrigger,omitempty"`
	LastStartedAt  *time.Time `json:"lastStartedAt,omitempty"`
	LastFinishedAt *time.Time `json:"lastFinishedAt,omitempty"`
	LastTotal      int        `json:"lastTotal"`
	LastSucceeded  int        `json:"lastSucceeded"`
	LastFailed     int        `json:"lastFailed"`
}

// Sweeper 分账调度：全量分账和单商户分账
type Sweeper struct {
	merchants MerchantSource
	executor  *Executor
	metrics   *metrics.SettlementMetrics
	workers   int
	schedule  string

	mu      sync.RWMutex
	running int
	status  Status
}

// NewSweeper 创建分账调度
func NewSweeper(merchants MerchantSource, executor *Executor, m *metrics.SettlementMetrics, workers int, schedule string) *Sweeper {
	if workers < 1 {
		workers = 1
	}
	return &Sweeper{
		merchants: merchants,
		executor:  executor,
		metrics:   m,
		workers:   workers,
		schedule:  schedule,
	}
}

// RunFullSweep 对所有已部署托管合约的商户执行分账，结果顺序与商户列表一致，不返回错误
func (s *Sweeper) RunFullSweep(ctx context.Context, trigger string) []Result {
	runId := uuid.NewString()
	log := logger.With(zap.String("run_id", runId), zap.String("trigger", trigger))
	started := time.Now()
	s.begin(runId, trigger, started)

	log.Info("Starting fund distribution sweep")

	merchants, err := s.merchants.ListWithEscrow(ctx)
	if err != nil {
		log.Error("Fund distribution sweep failed to load merchants: %v", err)
		merchants = nil
	}
	log.Info("Found %d merchants with contracts", len(merchants))

	results := make([]Result, len(merchants))
	if s.workers == 1 || len(merchants) <= 1 {
		for i := range merchants {
			results[i] = s.settle(ctx, &merchants[i])
		}
	} else {
		s.settleConcurrently(ctx, merchants, results)
	}

	succeeded, failed := 0, 0
	for _, r := range results {
		if r.Success {
			succeeded++
		} else {
			failed++
		}
	}

	elapsed := time.Since(started)
	s.finish(len(results), succeeded, failed)
	s.metrics.ObserveSweep(trigger, elapsed)

	log.Info("Distribution Summary: %d successful, %d failed (%s)", succeeded, failed, elapsed.Round(time.Millisecond))
	return results
}

// settleConcurrently 使用协程池有限并发处理，签名提交由链客户端串行化
func (s *Sweeper) settleConcurrently(ctx context.Context, merchants []model.MerchantModel, results []Result) {
	pool, err := ants.NewPool(s.workers)
	if err != nil {
		logger.Warn("Failed to create sweep pool, falling back to sequential: %v", err)
		for i := range merchants {
			results[i] = s.settle(ctx, &merchants[i])
		}
		return
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range merchants {
		i := i
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			results[i] = s.settle(ctx, &merchants[i])
		})
		if err != nil {
			wg.Done()
			logger.Warn("Failed to submit merchant %d to pool: %v", merchants[i].Id, err)
			results[i] = s.settle(ctx, &merchants[i])
		}
	}
	wg.Wait()
}

// RunForMerchant 对单个商户执行分账，同步返回结果
func (s *Sweeper) RunForMerchant(ctx context.Context, merchantId int64) (*Result, error) {
	merchant, err := s.merchants.Get(ctx, merchantId)
	if err != nil {
		return nil, fmt.Errorf("load merchant %d: %w", merchantId, err)
	}
	if merchant == nil {
		return nil, &MerchantNotFoundError{MerchantId: merchantId}
	}
	if !merchant.HasEscrow() {
		return nil, &NoEscrowError{MerchantId: merchantId}
	}

	logger.Info("Manual fund distribution triggered for merchant %d", merchantId)
	result := s.settle(ctx, merchant)
	return &result, nil
}

// ResolveDistribution 人工确认待确认记录，与分账共用商户锁
func (s *Sweeper) ResolveDistribution(ctx context.Context, id int64, req ManualResolution) (*model.DistributionModel, error) {
	return s.executor.ResolveManually(ctx, id, req)
}

// settle 执行单个商户分账，任何失败都记录在结果中
func (s *Sweeper) settle(ctx context.Context, merchant *model.MerchantModel) (result Result) {
	result = Result{
		MerchantId:      merchant.Id,
		BusinessName:    merchant.BusinessName,
		ContractAddress: merchant.EscrowAddress(),
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while distributing funds for merchant %d: %v", merchant.Id, r)
			result.Success = false
			result.Message = fmt.Sprintf("internal error: %v", r)
			result.ErrorKind = KindInternal
		}
	}()

	outcome := s.executor.Execute(ctx, merchant)
	result.Success = outcome.Success
	result.Message = outcome.Message
	result.TransactionHash = outcome.TxHash
	result.ErrorKind = ErrorKind(outcome.Err)
	return result
}

// Status 返回当前运行状态
func (s *Sweeper) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.status
	st.Schedule = s.schedule
	st.Workers = s.workers
	st.Running = s.running > 0
	return st
}

func (s *Sweeper) begin(runId, trigger string, started time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running++
	s.status.LastRunId = runId
	s.status.LastTrigger = trigger
	s.status.LastStartedAt = &started
	s.status.LastFinishedAt = nil
}

func (s *Sweeper) finish(total, succeeded, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	finished := time.Now()
	s.running--
	s.status.LastFinishedAt = &finished
	s.status.LastTotal = total
	s.status.LastSucceeded = succeeded
	s.status.LastFailed = failed
}
