package handler

import (
	"github.com/gin-gonic/gin"

	"fastgpt-training/internal/interfaces/http/dto"
	"fastgpt-training/pkg/errors"
)

// respondError 将业务错误转换为 HTTP 响应，未知错误归为 500
func respondError(c *gin.Context, err error) {
	appErr := errors.AsAppError(err)
	detail := &dto.ErrorDetail{
		ErrorCode: string(appErr.Code),
		Details:   appErr.Detail,
	}
	dto.ErrorWithDetail(c, appErr.HTTPStatus, appErr.Message, detail)
}
