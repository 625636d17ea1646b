package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/blues/settlement/internal/logger"
	"github.com/blues/settlement/internal/model"
	"github.com/blues/settlement/internal/repository"
	"github.com/blues/settlement/internal/settlement"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// DistributionService 分账调度
type DistributionService interface {
	RunFullSweep(ctx context.Context, trigger string) []settlement.Result
	RunForMerchant(ctx context.Context, merchantId int64) (*settlement.Result, error)
	Status() settlement.Status
	ResolveDistribution(ctx context.Context, id int64, req settlement.ManualResolution) (*model.DistributionModel, error)
}

// DistributionHandler 分账处理器
type DistributionHandler struct {
	service       DistributionService
	distributions *repository.DistributionRepository
}

// NewDistributionHandler 创建分账处理器
func NewDistributionHandler(service DistributionService, db *gorm.DB) *DistributionHandler {
	return &DistributionHandler{
		service:       service,
		distributions: repository.NewDistributionRepository(db),
	}
}

// TriggerDistribution 手动触发全量分账，完成后返回每个商户的结果
func (h *DistributionHandler) TriggerDistribution(c *gin.Context) {
	results := h.service.RunFullSweep(c.Request.Context(), settlement.TriggerManual)

	SuccessResponse(c, http.StatusOK, "Fund distribution triggered successfully", TriggerDistributionResponse{
		Results: results,
		Summary: summarize(results),
	})
}

// DistributeForMerchant 对单个商户执行分账
func (h *DistributionHandler) DistributeForMerchant(c *gin.Context) {
	merchantId, err := strconv.ParseInt(c.Param("merchantId"), 10, 64)
	if err != nil || merchantId <= 0 {
		ErrorResponse(c, http.StatusBadRequest, "无效的商户ID")
		return
	}

	result, err := h.service.RunForMerchant(c.Request.Context(), merchantId)
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			logger.Error("Failed to distribute funds for merchant %d: %v", merchantId, err)
		}
		ErrorResponse(c, status, err.Error())
		return
	}

	if !result.Success {
		status := http.StatusOK
		if result.ErrorKind == settlement.KindPendingSettlement {
			status = http.StatusConflict
		}
		c.JSON(status, Response{
			Success: false,
			Message: result.Message,
			Data:    result,
		})
		return
	}

	SuccessResponse(c, http.StatusOK, "Fund distribution completed", result)
}

// ResolveDistribution 人工确认待确认的分账记录
func (h *DistributionHandler) ResolveDistribution(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		ErrorResponse(c, http.StatusBadRequest, "无效的分账记录ID")
		return
	}

	var req settlement.ManualResolution
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的请求参数: "+err.Error())
		return
	}

	record, err := h.service.ResolveDistribution(c.Request.Context(), id, req)
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			logger.Error("Failed to resolve distribution %d: %v", id, err)
		}
		ErrorResponse(c, status, err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "Distribution resolved", record)
}

// GetStatus 获取分账任务状态
func (h *DistributionHandler) GetStatus(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, "Fund distribution service is running", h.service.Status())
}

// GetDistributions 获取分账记录列表
func (h *DistributionHandler) GetDistributions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	filter := repository.DistributionFilter{
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}

	if merchantIdStr := c.Query("merchant_id"); merchantIdStr != "" {
		merchantId, err := strconv.ParseInt(merchantIdStr, 10, 64)
		if err != nil || merchantId <= 0 {
			ErrorResponse(c, http.StatusBadRequest, "无效的商户ID")
			return
		}
		filter.MerchantId = merchantId
	}

	if statusStr := c.Query("status"); statusStr != "" {
		for _, s := range strings.Split(statusStr, ",") {
			status := model.DistributionStatus(strings.TrimSpace(s))
			switch status {
			case model.DistributionStatusPending, model.DistributionStatusCompleted, model.DistributionStatusFailed:
				filter.Statuses = append(filter.Statuses, status)
			default:
				ErrorResponse(c, http.StatusBadRequest, "无效的分账状态: "+string(status))
				return
			}
		}
	}

	ctx := c.Request.Context()
	total, err := h.distributions.Count(ctx, filter)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	records, err := h.distributions.Find(ctx, filter)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "Distributions retrieved successfully", GetDistributionsResponse{
		Distributions: records,
		Pagination:    newPagination(page, pageSize, total),
	})
}
