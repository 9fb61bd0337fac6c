package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fastgpt-training/pkg/metrics"
)

// Repository 数据块向量仓储
type Repository struct {
	client *Client
	dim    int
}

// NewRepository 创建数据块向量仓储
func NewRepository(client *Client, dim int) *Repository {
	return &Repository{client: client, dim: dim}
}

// CreateCollection 创建集合
func (r *Repository) CreateCollection(ctx context.Context, schema *entity.Schema) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", schema.CollectionName)))
	defer span.End()

	collName := r.client.CollectionName(schema.CollectionName)
	schema.CollectionName = collName

	err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// CreateIndex 创建 HNSW 索引
func (r *Repository) CreateIndex(ctx context.Context, collection string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	collName := r.client.CollectionName(collection)

	idx, err := entity.NewIndexHNSW(
		entity.IP,
		r.client.config.HNSWM,
		r.client.config.HNSWEfConstruction,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = r.client.milvus.CreateIndex(ctx, collName, "vector", idx, false)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// CreatePartition 创建分区
func (r *Repository) CreatePartition(ctx context.Context, collection, teamID, datasetID string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreatePartition",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.String("partition", PartitionName(teamID, datasetID)),
		))
	defer span.End()

	collName := r.client.CollectionName(collection)
	partitionName := PartitionName(teamID, datasetID)

	return r.client.milvus.CreatePartition(ctx, collName, partitionName)
}

// InsertChunks 插入数据块向量
func (r *Repository) InsertChunks(ctx context.Context, teamID, datasetID string, chunks []*DatasetChunk) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.InsertChunks",
		trace.WithAttributes(
			attribute.String("team_id", teamID),
			attribute.String("dataset_id", datasetID),
			attribute.Int("count", len(chunks)),
		))
	defer span.End()

	if len(chunks) == 0 {
		return nil
	}

	collName := r.client.CollectionName(CollectionDatasetChunks)
	partitionName := PartitionName(teamID, datasetID)

	// 确保分区存在
	has, _ := r.client.milvus.HasPartition(ctx, collName, partitionName)
	if !has {
		if err := r.CreatePartition(ctx, CollectionDatasetChunks, teamID, datasetID); err != nil {
			return err
		}
	}

	// 准备数据
	ids := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	teamIDs := make([]string, len(chunks))
	datasetIDs := make([]string, len(chunks))
	collectionIDs := make([]string, len(chunks))
	qs := make([]string, len(chunks))
	as := make([]string, len(chunks))
	sources := make([]string, len(chunks))

	for i, chunk := range chunks {
		ids[i] = chunk.ID
		vectors[i] = chunk.Vector
		teamIDs[i] = chunk.TeamID
		datasetIDs[i] = chunk.DatasetID
		collectionIDs[i] = chunk.CollectionID
		qs[i] = chunk.Q
		as[i] = chunk.A
		sources[i] = chunk.Source
	}

	// 构建列
	idCol := entity.NewColumnVarChar("id", ids)
	vectorCol := entity.NewColumnFloatVector("vector", r.dim, vectors)
	teamCol := entity.NewColumnVarChar("team_id", teamIDs)
	datasetCol := entity.NewColumnVarChar("dataset_id", datasetIDs)
	collectionCol := entity.NewColumnVarChar("collection_id", collectionIDs)
	qCol := entity.NewColumnVarChar("q", qs)
	aCol := entity.NewColumnVarChar("a", as)
	sourceCol := entity.NewColumnVarChar("source", sources)

	// 插入
	_, err := r.client.milvus.Insert(ctx, collName, partitionName,
		idCol, vectorCol, teamCol, datasetCol, collectionCol, qCol, aCol, sourceCol)
	if err != nil {
		span.RecordError(err)
		metrics.MilvusInsertTotal.WithLabelValues(CollectionDatasetChunks, "error").Inc()
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	metrics.MilvusInsertTotal.WithLabelValues(CollectionDatasetChunks, "success").Inc()
	return nil
}

// DeleteByCollection 删除集合下的全部数据块
func (r *Repository) DeleteByCollection(ctx context.Context, teamID, datasetID, collectionID string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.DeleteByCollection",
		trace.WithAttributes(
			attribute.String("collection_id", collectionID),
		))
	defer span.End()

	collName := r.client.CollectionName(CollectionDatasetChunks)
	partitionName := PartitionName(teamID, datasetID)

	if has, err := r.client.milvus.HasPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		return nil
	}

	filter := fmt.Sprintf(`collection_id == "%s"`, collectionID)

	err := r.client.milvus.Delete(ctx, collName, partitionName, filter)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	return nil
}

// EnsureDatasetChunksCollection 确保 dataset_chunks 集合与索引可用（不存在则创建）。
// 约束：不会做 drop/rebuild 等破坏性操作。
func (r *Repository) EnsureDatasetChunksCollection(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}

	exists, err := r.client.HasCollection(ctx, CollectionDatasetChunks)
	if err != nil {
		return err
	}
	if !exists {
		if err := r.CreateCollection(ctx, DatasetChunksSchema(r.dim)); err != nil {
			return err
		}
		// 新建集合时创建索引；若失败，允许后续由运维介入。
		_ = r.CreateIndex(ctx, CollectionDatasetChunks)
	}

	// 尝试确保集合已加载（若已加载，Milvus 会返回成功）
	return r.client.LoadCollection(ctx, CollectionDatasetChunks)
}
