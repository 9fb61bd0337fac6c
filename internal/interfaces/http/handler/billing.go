package handler

import (
	"fastgpt-training/internal/application/billing"
	"fastgpt-training/internal/domain/repository"
	"fastgpt-training/internal/interfaces/http/dto"
	"fastgpt-training/internal/interfaces/http/middleware"
	"fastgpt-training/pkg/logger"

	"github.com/gin-gonic/gin"
)

// BillingHandler 账单查询处理器
type BillingHandler struct {
	query *billing.Query
}

// NewBillingHandler 创建账单查询处理器
func NewBillingHandler(query *billing.Query) *BillingHandler {
	return &BillingHandler{query: query}
}

// ListBills 查询团队账单
// @Summary 查询团队账单
// @Description 分页返回当前团队的训练计费账单
// @Tags Billing
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} dto.Response[dto.BillListResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/bills [get]
func (h *BillingHandler) ListBills(c *gin.Context) {
	ctx := c.Request.Context()

	teamID := middleware.GetTeamIDFromGin(c)
	if teamID == "" {
		dto.BadRequest(c, "team id is required")
		return
	}

	pageReq := dto.BindPage(c)

	result, err := h.query.ListByTeam(ctx, teamID, repository.NewPagination(pageReq.Page, pageReq.PageSize))
	if err != nil {
		logger.Error(ctx, "failed to list bills", err)
		respondError(c, err)
		return
	}

	resp := dto.ToBillListResponse(result.Items)
	meta := dto.NewPageMeta(pageReq.Page, pageReq.PageSize, int(result.Total))
	dto.SuccessWithPage(c, resp, meta)
}
