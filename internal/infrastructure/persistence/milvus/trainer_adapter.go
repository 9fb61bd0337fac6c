package milvus

import (
	"context"

	"fastgpt-training/internal/application/trainer"
)

// TrainerVectorStore 向量库端口适配器
type TrainerVectorStore struct {
	repo *Repository
}

// NewTrainerVectorStore 创建向量库端口适配器
func NewTrainerVectorStore(repo *Repository) *TrainerVectorStore {
	return &TrainerVectorStore{repo: repo}
}

// InsertChunks 实现 trainer.VectorStore
func (a *TrainerVectorStore) InsertChunks(ctx context.Context, teamID, datasetID string, chunks []*trainer.DatasetChunk) error {
	converted := make([]*DatasetChunk, len(chunks))
	for i, c := range chunks {
		converted[i] = &DatasetChunk{
			ID:           c.ID,
			Vector:       c.Vector,
			TeamID:       c.TeamID,
			DatasetID:    c.DatasetID,
			CollectionID: c.CollectionID,
			Q:            c.Q,
			A:            c.A,
			Source:       c.Source,
		}
	}
	return a.repo.InsertChunks(ctx, teamID, datasetID, converted)
}

// DeleteByCollection 实现 trainer.VectorPurger
func (a *TrainerVectorStore) DeleteByCollection(ctx context.Context, teamID, datasetID, collectionID string) error {
	return a.repo.DeleteByCollection(ctx, teamID, datasetID, collectionID)
}
