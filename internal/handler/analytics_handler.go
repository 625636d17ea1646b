package handler

import (
	"net/http"
	"strconv"

	"github.com/blues/settlement/internal/logger"
	"github.com/blues/settlement/internal/logic"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AnalyticsHandler 对账分析处理器
type AnalyticsHandler struct {
	analyticsLogic *logic.AnalyticsLogic
}

// NewAnalyticsHandler 创建对账分析处理器
func NewAnalyticsHandler(db *gorm.DB, vaultAddress string) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsLogic: logic.NewAnalyticsLogic(db, vaultAddress),
	}
}

// GetDashboardAnalytics 获取仪表盘全部数据
func (h *AnalyticsHandler) GetDashboardAnalytics(c *gin.Context) {
	data, err := h.analyticsLogic.GetDashboardAnalytics(c.Request.Context())
	if err != nil {
		logger.Error("Error getting dashboard analytics: %v", err)
		ErrorResponse(c, http.StatusInternalServerError, "Failed to retrieve analytics")
		return
	}
	SuccessResponse(c, http.StatusOK, "Analytics retrieved successfully", data)
}

// GetDashboardStats 获取仪表盘统计
func (h *AnalyticsHandler) GetDashboardStats(c *gin.Context) {
	stats, err := h.analyticsLogic.GetDashboardStats(c.Request.Context())
	if err != nil {
		logger.Error("Error getting stats: %v", err)
		ErrorResponse(c, http.StatusInternalServerError, "Failed to retrieve statistics")
		return
	}
	SuccessResponse(c, http.StatusOK, "Statistics retrieved successfully", stats)
}

// GetMerchantAnalytics 获取商户对账数据
func (h *AnalyticsHandler) GetMerchantAnalytics(c *gin.Context) {
	merchants, err := h.analyticsLogic.GetMerchantAnalytics(c.Request.Context())
	if err != nil {
		logger.Error("Error getting merchant analytics: %v", err)
		ErrorResponse(c, http.StatusInternalServerError, "Failed to retrieve merchant analytics")
		return
	}
	SuccessResponse(c, http.StatusOK, "Merchant analytics retrieved successfully", merchants)
}

// GetMerchantDetail 获取单个商户对账数据
func (h *AnalyticsHandler) GetMerchantDetail(c *gin.Context) {
	merchantId, err := strconv.ParseInt(c.Param("merchantId"), 10, 64)
	if err != nil || merchantId <= 0 {
		ErrorResponse(c, http.StatusBadRequest, "无效的商户ID")
		return
	}

	detail, err := h.analyticsLogic.GetMerchantDetail(c.Request.Context(), merchantId)
	if err != nil {
		logger.Error("Error getting analytics for merchant %d: %v", merchantId, err)
		ErrorResponse(c, http.StatusInternalServerError, "Failed to retrieve merchant analytics")
		return
	}
	if detail == nil {
		ErrorResponse(c, http.StatusNotFound, "商户不存在")
		return
	}
	SuccessResponse(c, http.StatusOK, "Merchant analytics retrieved successfully", detail)
}

// GetPlatformAnalytics 获取平台手续费汇总
func (h *AnalyticsHandler) GetPlatformAnalytics(c *gin.Context) {
	platform, err := h.analyticsLogic.GetPlatformAnalytics(c.Request.Context())
	if err != nil {
		logger.Error("Error getting platform analytics: %v", err)
		ErrorResponse(c, http.StatusInternalServerError, "Failed to retrieve platform analytics")
		return
	}
	SuccessResponse(c, http.StatusOK, "Platform analytics retrieved successfully", platform)
}

// GetDistributionAnalytics 获取分账记录汇总
func (h *AnalyticsHandler) GetDistributionAnalytics(c *gin.Context) {
	dist, err := h.analyticsLogic.GetDistributionAnalytics(c.Request.Context())
	if err != nil {
		logger.Error("Error getting distribution analytics: %v", err)
		ErrorResponse(c, http.StatusInternalServerError, "Failed to retrieve distribution analytics")
		return
	}
	SuccessResponse(c, http.StatusOK, "Distribution analytics retrieved successfully", dist)
}
