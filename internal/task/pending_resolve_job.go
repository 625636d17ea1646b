package task

import (
	"context"
	"time"

	"github.com/blues/settlement/internal/logger"
	"github.com/go-co-op/gocron/v2"
)

// PendingResolver 待确认分账检查
type PendingResolver interface {
	ResolvePending(ctx context.Context) (resolved int, stillPending int, err error)
}

// PendingResolveJob 定期检查超时未确认的分账交易
type PendingResolveJob struct {
	resolver PendingResolver
	interval time.Duration
}

// NewPendingResolveJob 创建待确认检查任务
func NewPendingResolveJob(resolver PendingResolver, interval time.Duration) *PendingResolveJob {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &PendingResolveJob{
		resolver: resolver,
		interval: interval,
	}
}

// GetName 获取任务名称
func (j *PendingResolveJob) GetName() string {
	return "pending_distribution_resolver"
}

// GetSchedule 获取调度配置
func (j *PendingResolveJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *PendingResolveJob) Execute(ctx context.Context) {
	resolved, stillPending, err := j.resolver.ResolvePending(ctx)
	if err != nil {
		logger.Error("Failed to resolve pending distributions: %v", err)
		return
	}

	if resolved == 0 && stillPending == 0 {
		logger.Debug("No pending distributions")
		return
	}
	logger.Info("Pending distribution check completed. Resolved %d, still pending %d", resolved, stillPending)
}
