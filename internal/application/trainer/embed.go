package trainer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fastgpt-training/internal/domain/entity"
	apperrors "fastgpt-training/pkg/errors"
)

var embedTracer = otel.Tracer("trainer.embed")

// EmbedStage 向量化阶段：把记录的问答文本向量化并写入向量库
type EmbedStage struct {
	embedder Embedder
	store    VectorStore
}

// NewEmbedStage 创建向量化阶段
func NewEmbedStage(embedder Embedder, store VectorStore) *EmbedStage {
	return &EmbedStage{embedder: embedder, store: store}
}

// Process 处理一条 chunk 模式记录，返回消耗的 token 数
func (s *EmbedStage) Process(ctx context.Context, rec *entity.TrainingRecord, userKey string) (int, error) {
	ctx, span := embedTracer.Start(ctx, "trainer.EmbedStage.Process",
		trace.WithAttributes(attribute.String("record_id", rec.ID)))
	defer span.End()

	// QA 拆分派生的记录带答案，问答一起向量化；直接切块的记录只有问题文本
	text := rec.Q
	if rec.A != "" {
		text = rec.Q + "\n" + rec.A
	}
	result, err := s.embedder.Embed(ctx, []string{text}, userKey)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if len(result.Vectors) == 0 {
		return 0, apperrors.New(apperrors.CodeEmbeddingFailed, "provider returned no vector")
	}

	chunk := &DatasetChunk{
		ID:           rec.ID,
		TeamID:       rec.TeamID,
		DatasetID:    rec.DatasetID,
		CollectionID: rec.CollectionID,
		Q:            rec.Q,
		A:            rec.A,
		Source:       rec.Source,
		Vector:       result.Vectors[0],
	}

	if err := s.store.InsertChunks(ctx, rec.TeamID, rec.DatasetID, []*DatasetChunk{chunk}); err != nil {
		span.RecordError(err)
		return result.TokensUsed, apperrors.Wrap(err, apperrors.CodeVectorInsert, "failed to insert chunk vector")
	}

	return result.TokensUsed, nil
}
