package handler

import (
	"github.com/blues/settlement/internal/model"
	"github.com/blues/settlement/internal/settlement"
)

// 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// 分页信息结构
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"totalPage"`
}

// 分账相关响应模型

// SweepSummary 全量分账汇总
type SweepSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// TriggerDistributionResponse 触发全量分账响应
type TriggerDistributionResponse struct {
	Results []settlement.Result `json:"results"`
	Summary SweepSummary        `json:"summary"`
}

// GetDistributionsResponse 分账记录列表响应
type GetDistributionsResponse struct {
	Distributions []model.DistributionModel `json:"distributions"`
	Pagination    Pagination                `json:"pagination"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	return Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
}

func summarize(results []settlement.Result) SweepSummary {
	summary := SweepSummary{Total: len(results)}
	for _, r := range results {
		if r.Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}
	return summary
}
