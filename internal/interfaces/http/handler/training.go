// Package handler 提供 HTTP 请求处理器
package handler

import (
	"fastgpt-training/internal/application/trainer"
	"fastgpt-training/internal/domain/repository"
	"fastgpt-training/internal/interfaces/http/dto"
	"fastgpt-training/internal/interfaces/http/middleware"
	"fastgpt-training/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TrainingHandler 训练队列处理器
type TrainingHandler struct {
	queue *trainer.Queue
}

// NewTrainingHandler 创建训练队列处理器
func NewTrainingHandler(queue *trainer.Queue) *TrainingHandler {
	return &TrainingHandler{queue: queue}
}

// Push 推送训练数据
// @Summary 推送训练数据
// @Description 将文本块批量推入训练队列
// @Tags Training
// @Accept json
// @Produce json
// @Param body body dto.PushTrainingRequest true "训练数据"
// @Success 201 {object} dto.Response[dto.PushTrainingResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/training/push [post]
func (h *TrainingHandler) Push(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.PushTrainingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.queue.Push(ctx, req.ToPushInput())
	if err != nil {
		logger.Error(ctx, "failed to push training records", err)
		respondError(c, err)
		return
	}

	dto.Created(c, dto.PushTrainingResponse{
		Inserted: result.Inserted,
		Skipped:  result.Skipped,
	})
}

// Stats 获取队列统计
// @Summary 获取队列统计
// @Description 返回各训练模式的积压数量
// @Tags Training
// @Produce json
// @Success 200 {object} dto.Response[dto.QueueStatsResponse]
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/training/stats [get]
func (h *TrainingHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.queue.Stats(ctx)
	if err != nil {
		logger.Error(ctx, "failed to get queue stats", err)
		respondError(c, err)
		return
	}

	dto.Success(c, dto.QueueStatsResponse{
		ChunkPending: stats.ChunkPending,
		QAPending:    stats.QAPending,
	})
}

// ListByCollection 按集合查询待训练记录
// @Summary 查询集合的待训练记录
// @Description 分页返回指定集合尚未完成的训练记录
// @Tags Training
// @Produce json
// @Param cid path string true "集合 ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} dto.Response[dto.TrainingRecordListResponse]
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/training/collections/{cid}/records [get]
func (h *TrainingHandler) ListByCollection(c *gin.Context) {
	ctx := c.Request.Context()
	collectionID := dto.BindCollectionID(c)
	if collectionID == "" {
		dto.BadRequest(c, "collection id is required")
		return
	}

	pageReq := dto.BindPage(c)

	result, err := h.queue.ListByCollection(ctx, collectionID, repository.NewPagination(pageReq.Page, pageReq.PageSize))
	if err != nil {
		logger.Error(ctx, "failed to list training records", err)
		respondError(c, err)
		return
	}

	resp := dto.ToTrainingRecordListResponse(result.Items)
	meta := dto.NewPageMeta(pageReq.Page, pageReq.PageSize, int(result.Total))
	dto.SuccessWithPage(c, resp, meta)
}

// PurgeCollection 清理集合的训练数据
// @Summary 清理集合的训练数据
// @Description 删除指定集合的排队记录和已入库向量
// @Tags Training
// @Produce json
// @Param cid path string true "集合 ID"
// @Param dataset_id query string true "知识库 ID"
// @Success 200 {object} dto.Response[dto.PurgeCollectionResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/training/collections/{cid} [delete]
func (h *TrainingHandler) PurgeCollection(c *gin.Context) {
	ctx := c.Request.Context()
	collectionID := dto.BindCollectionID(c)
	if collectionID == "" {
		dto.BadRequest(c, "collection id is required")
		return
	}

	teamID := middleware.GetTeamIDFromGin(c)
	datasetID := c.Query("dataset_id")
	if teamID == "" || datasetID == "" {
		dto.BadRequest(c, "team id and dataset id are required")
		return
	}

	result, err := h.queue.PurgeCollection(ctx, teamID, datasetID, collectionID)
	if err != nil {
		logger.Error(ctx, "failed to purge collection", err, "collection_id", collectionID)
		respondError(c, err)
		return
	}

	dto.Success(c, dto.PurgeCollectionResponse{RecordsDeleted: result.RecordsDeleted})
}
