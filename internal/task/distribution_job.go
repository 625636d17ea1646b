package task

import (
	"context"

	"github.com/blues/settlement/internal/logger"
	"github.com/blues/settlement/internal/settlement"
	"github.com/go-co-op/gocron/v2"
)

// SweepRunner 全量分账
type SweepRunner interface {
	RunFullSweep(ctx context.Context, trigger string) []settlement.Result
}

// DistributionJob 定时全量分账任务
type DistributionJob struct {
	sweeper SweepRunner
	cron    string
}

// NewDistributionJob 创建分账任务，cron 为标准五段表达式
func NewDistributionJob(sweeper SweepRunner, cron string) *DistributionJob {
	return &DistributionJob{
		sweeper: sweeper,
		cron:    cron,
	}
}

// GetName 获取任务名称
func (j *DistributionJob) GetName() string {
	return "fund_distribution"
}

// GetSchedule 获取调度配置
func (j *DistributionJob) GetSchedule() gocron.JobDefinition {
	return gocron.CronJob(j.cron, false)
}

// Execute 执行任务
func (j *DistributionJob) Execute(ctx context.Context) {
	logger.Info("Starting scheduled fund distribution")

	results := j.sweeper.RunFullSweep(ctx, settlement.TriggerScheduled)

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
			logger.Warn("Merchant %d distribution failed: %s", r.MerchantId, r.Message)
		}
	}

	logger.Info("Scheduled fund distribution completed. %d merchants, %d failed", len(results), failed)
}
