package trainer

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fastgpt-training/internal/domain/entity"
	"fastgpt-training/internal/domain/repository"
	apperrors "fastgpt-training/pkg/errors"
	"fastgpt-training/pkg/logger"
)

var queueTracer = otel.Tracer("trainer.queue")

// Queue 训练队列入口
type Queue struct {
	records repository.TrainingRepository
	chat    ChatCompleter
	vectors VectorPurger
	ttl     time.Duration
}

// NewQueue 创建训练队列入口，vectors 为 nil 时清理操作只删除队列记录
func NewQueue(records repository.TrainingRepository, chat ChatCompleter, vectors VectorPurger, ttl time.Duration) *Queue {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Queue{records: records, chat: chat, vectors: vectors, ttl: ttl}
}

// PushItem 待入队的文本块
type PushItem struct {
	Q string `json:"q"`
	A string `json:"a"`
}

// PushInput 入队请求
type PushInput struct {
	TeamID       string
	UserID       string
	DatasetID    string
	CollectionID string
	Mode         entity.TrainingMode
	Model        string
	Prompt       string
	Source       string
	Items        []PushItem
}

// PushResult 入队结果
type PushResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// Push 批量入队。问题为空的块跳过不报错，全部为空时返回参数错误
func (q *Queue) Push(ctx context.Context, in *PushInput) (*PushResult, error) {
	ctx, span := queueTracer.Start(ctx, "trainer.Queue.Push",
		trace.WithAttributes(
			attribute.String("mode", string(in.Mode)),
			attribute.Int("item_count", len(in.Items)),
		))
	defer span.End()

	if !in.Mode.Valid() {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "invalid training mode").WithDetail(string(in.Mode))
	}
	if in.TeamID == "" || in.UserID == "" || in.DatasetID == "" || in.CollectionID == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "missing required identifiers")
	}

	model := in.Model
	if model == "" {
		model = q.chat.DefaultModel()
	}

	result := &PushResult{}
	records := make([]*entity.TrainingRecord, 0, len(in.Items))
	for _, item := range in.Items {
		if strings.TrimSpace(item.Q) == "" {
			result.Skipped++
			continue
		}
		records = append(records, entity.NewTrainingRecord(
			in.TeamID, in.UserID, in.DatasetID, in.CollectionID,
			in.Mode, item.Q, item.A, in.Prompt, model, in.Source,
			q.ttl,
		))
	}

	if len(records) == 0 {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "no valid items to push")
	}

	if err := q.records.BulkCreate(ctx, records); err != nil {
		span.RecordError(err)
		return nil, err
	}

	result.Inserted = len(records)
	logger.Info(ctx, "training records pushed",
		"mode", in.Mode,
		"inserted", result.Inserted,
		"skipped", result.Skipped,
	)
	return result, nil
}

// Stats 队列统计
type Stats struct {
	ChunkPending int64 `json:"chunk_pending"`
	QAPending    int64 `json:"qa_pending"`
}

// Stats 返回各模式积压数量
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	chunkCount, err := q.records.CountByMode(ctx, entity.TrainingModeChunk)
	if err != nil {
		return nil, err
	}
	qaCount, err := q.records.CountByMode(ctx, entity.TrainingModeQA)
	if err != nil {
		return nil, err
	}
	return &Stats{ChunkPending: chunkCount, QAPending: qaCount}, nil
}

// ListByCollection 按集合查询待训练记录
func (q *Queue) ListByCollection(ctx context.Context, collectionID string, pagination repository.Pagination) (*repository.PagedResult[*entity.TrainingRecord], error) {
	return q.records.ListByCollection(ctx, collectionID, pagination)
}

// PurgeResult 集合清理结果
type PurgeResult struct {
	RecordsDeleted int64 `json:"records_deleted"`
}

// PurgeCollection 清理某集合：先删除已入库的向量，再删除排队中的记录
func (q *Queue) PurgeCollection(ctx context.Context, teamID, datasetID, collectionID string) (*PurgeResult, error) {
	ctx, span := queueTracer.Start(ctx, "trainer.Queue.PurgeCollection",
		trace.WithAttributes(attribute.String("collection_id", collectionID)))
	defer span.End()

	if teamID == "" || datasetID == "" || collectionID == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "missing required identifiers")
	}

	if q.vectors != nil {
		if err := q.vectors.DeleteByCollection(ctx, teamID, datasetID, collectionID); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	deleted, err := q.records.DeleteByCollection(ctx, collectionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Info(ctx, "collection purged",
		"collection_id", collectionID,
		"records_deleted", deleted,
	)
	return &PurgeResult{RecordsDeleted: deleted}, nil
}
