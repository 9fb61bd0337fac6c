// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"fastgpt-training/internal/application/trainer"
	"fastgpt-training/internal/domain/entity"
)

// PushTrainingRequest 训练数据入队请求
type PushTrainingRequest struct {
	TeamID       string             `json:"team_id" binding:"required"`
	UserID       string             `json:"user_id" binding:"required"`
	DatasetID    string             `json:"dataset_id" binding:"required"`
	CollectionID string             `json:"collection_id" binding:"required"`
	Mode         string             `json:"mode" binding:"required"`
	Model        string             `json:"model,omitempty"`
	Prompt       string             `json:"prompt,omitempty"`
	Source       string             `json:"source,omitempty"`
	Items        []TrainingItemData `json:"items" binding:"required"`
}

// TrainingItemData 单个待训练文本块
type TrainingItemData struct {
	Q string `json:"q"`
	A string `json:"a,omitempty"`
}

// ToPushInput 转换为应用层入队参数
func (r *PushTrainingRequest) ToPushInput() *trainer.PushInput {
	items := make([]trainer.PushItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, trainer.PushItem{Q: item.Q, A: item.A})
	}
	return &trainer.PushInput{
		TeamID:       r.TeamID,
		UserID:       r.UserID,
		DatasetID:    r.DatasetID,
		CollectionID: r.CollectionID,
		Mode:         entity.TrainingMode(r.Mode),
		Model:        r.Model,
		Prompt:       r.Prompt,
		Source:       r.Source,
		Items:        items,
	}
}

// PushTrainingResponse 训练数据入队响应
type PushTrainingResponse struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// QueueStatsResponse 队列统计响应
type QueueStatsResponse struct {
	ChunkPending int64 `json:"chunk_pending"`
	QAPending    int64 `json:"qa_pending"`
}

// PurgeCollectionResponse 集合清理响应
type PurgeCollectionResponse struct {
	RecordsDeleted int64 `json:"records_deleted"`
}

// TrainingRecordResponse 训练记录响应
type TrainingRecordResponse struct {
	ID           string `json:"id"`
	TeamID       string `json:"team_id"`
	UserID       string `json:"user_id"`
	DatasetID    string `json:"dataset_id"`
	CollectionID string `json:"collection_id"`
	Mode         string `json:"mode"`
	Q            string `json:"q"`
	A            string `json:"a,omitempty"`
	Model        string `json:"model"`
	Source       string `json:"source,omitempty"`
	Parked       bool   `json:"parked"`
	CreatedAt    string `json:"created_at"`
}

// TrainingRecordListResponse 训练记录列表响应
type TrainingRecordListResponse struct {
	Records []*TrainingRecordResponse `json:"records"`
}

// ToTrainingRecordResponse 转换训练记录实体
func ToTrainingRecordResponse(r *entity.TrainingRecord) *TrainingRecordResponse {
	return &TrainingRecordResponse{
		ID:           r.ID,
		TeamID:       r.TeamID,
		UserID:       r.UserID,
		DatasetID:    r.DatasetID,
		CollectionID: r.CollectionID,
		Mode:         string(r.Mode),
		Q:            r.Q,
		A:            r.A,
		Model:        r.Model,
		Source:       r.Source,
		Parked:       r.IsParked(),
		CreatedAt:    r.CreatedAt.Format(time.RFC3339),
	}
}

// ToTrainingRecordListResponse 转换训练记录列表
func ToTrainingRecordListResponse(records []*entity.TrainingRecord) *TrainingRecordListResponse {
	out := make([]*TrainingRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, ToTrainingRecordResponse(r))
	}
	return &TrainingRecordListResponse{Records: out}
}
