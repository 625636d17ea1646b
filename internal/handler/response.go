package handler

import (
	"errors"
	"net/http"

	"github.com/blues/settlement/internal/repository"
	"github.com/blues/settlement/internal/settlement"
	"github.com/gin-gonic/gin"
)

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// statusForError 分账错误对应的HTTP状态码
func statusForError(err error) int {
	var (
		notFound *settlement.MerchantNotFoundError
		noEscrow *settlement.NoEscrowError
		pending  *settlement.PendingSettlementError
		missing  *settlement.DistributionNotFoundError
		invalid  *settlement.InvalidResolutionError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &missing):
		return http.StatusNotFound
	case errors.As(err, &noEscrow), errors.As(err, &pending), errors.Is(err, repository.ErrNotPending):
		return http.StatusConflict
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
