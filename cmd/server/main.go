package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blues/settlement/internal/chain"
	"github.com/blues/settlement/internal/config"
	"github.com/blues/settlement/internal/database"
	"github.com/blues/settlement/internal/event"
	"github.com/blues/settlement/internal/logger"
	"github.com/blues/settlement/internal/metrics"
	"github.com/blues/settlement/internal/repository"
	"github.com/blues/settlement/internal/router"
	"github.com/blues/settlement/internal/settlement"
	"github.com/blues/settlement/internal/task"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// 加载配置，配置错误直接退出
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}

	// 初始化日志
	if err := logger.Init(cfg.Log); err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 初始化数据库
	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// 初始化链管理器和托管合约客户端
	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	chainManager, err := chain.NewManager(startCtx, cfg.Chain)
	cancel()
	if err != nil {
		logger.Fatal("Failed to initialize chain manager: %v", err)
	}
	defer chainManager.Close()

	escrowABI, err := chain.LoadABI(cfg.Chain.ABIPath)
	if err != nil {
		logger.Fatal("Failed to load escrow ABI: %v", err)
	}
	escrow := chain.NewEscrowFromManager(chainManager, escrowABI)

	// 分账事件发布
	publisher := event.NewPublisher(cfg.Kafka)
	defer publisher.Close()

	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)

	executor := settlement.NewExecutor(
		escrow,
		repository.NewDistributionRepository(db),
		publisher,
		settlementMetrics,
		settlement.Options{
			ConfirmTimeout: cfg.Chain.ConfirmTimeout,
			ResolveTimeout: cfg.Chain.ResolveTimeout,
			WriteRetries:   cfg.Ledger.WriteRetries,
			RetryBackoff:   cfg.Ledger.RetryBackoff,
		},
	)
	sweeper := settlement.NewSweeper(
		repository.NewMerchantRepository(db),
		executor,
		settlementMetrics,
		cfg.Sweep.Workers,
		cfg.Sweep.Cron,
	)

	// 启动定时任务
	taskManager, err := task.NewManager(
		task.NewDistributionJob(sweeper, cfg.Sweep.Cron),
		task.NewPendingResolveJob(executor, time.Duration(cfg.Sweep.ResolveInterval)*time.Second),
	)
	if err != nil {
		logger.Fatal("Failed to create task manager: %v", err)
	}
	if err := taskManager.Start(); err != nil {
		logger.Fatal("Failed to start task manager: %v", err)
	}

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(router.Options{
		DB:      db,
		Sweeper: sweeper,
		Config:  cfg,
		Chain:   chainManager,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	// 启动服务器
	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// 先停止调度，正在执行的分账会在确认超时内结束
	taskManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
