package router

import (
	"context"
	"net/http"

	"github.com/blues/settlement/internal/config"
	"github.com/blues/settlement/internal/handler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// HealthReporter 链连接健康状态
type HealthReporter interface {
	GetHealthStatus(ctx context.Context) map[string]interface{}
}

// Options 路由依赖
type Options struct {
	DB       *gorm.DB
	Sweeper  handler.DistributionService
	Config   *config.Config
	Gatherer prometheus.Gatherer // 为 nil 时使用默认注册表
	Chain    HealthReporter      // 可选
}

func Setup(opts Options) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":  "ok",
			"service": "settlement-service",
		}
		if opts.Chain != nil {
			chainStatus := opts.Chain.GetHealthStatus(c.Request.Context())
			body["chain"] = chainStatus
			if chainStatus["client_status"] != "connected" {
				body["status"] = "degraded"
			}
		}
		c.JSON(http.StatusOK, body)
	})

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// API版本组
	v1 := r.Group("/api/v1")
	{
		// 分账相关路由
		distributionHandler := handler.NewDistributionHandler(opts.Sweeper, opts.DB)
		distributions := v1.Group("/distributions")
		{
			distributions.POST("/trigger", distributionHandler.TriggerDistribution)
			distributions.POST("/merchants/:merchantId", distributionHandler.DistributeForMerchant)
			distributions.POST("/:id/resolve", distributionHandler.ResolveDistribution)
			distributions.GET("/status", distributionHandler.GetStatus)
			distributions.GET("", distributionHandler.GetDistributions)
		}

		// 管理后台对账路由
		analyticsHandler := handler.NewAnalyticsHandler(opts.DB, opts.Config.Platform.VaultAddress)
		admin := v1.Group("/admin")
		{
			admin.GET("/dashboard/analytics", analyticsHandler.GetDashboardAnalytics)
			admin.GET("/dashboard/stats", analyticsHandler.GetDashboardStats)
			admin.GET("/analytics/merchants", analyticsHandler.GetMerchantAnalytics)
			admin.GET("/analytics/merchants/:merchantId", analyticsHandler.GetMerchantDetail)
			admin.GET("/analytics/platform", analyticsHandler.GetPlatformAnalytics)
			admin.GET("/analytics/distributions", analyticsHandler.GetDistributionAnalytics)
		}
	}

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
