// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionDatasetChunks 知识库数据块集合
	CollectionDatasetChunks = "dataset_chunks"
)

// DatasetChunksSchema 数据块 Collection Schema
func DatasetChunksSchema(dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: CollectionDatasetChunks,
		Description:    "Vectorized dataset chunks for semantic retrieval",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", dim),
				},
			},
			{
				Name:     "team_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "dataset_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "collection_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "q",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
			{
				Name:     "a",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
			{
				Name:     "source",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "256",
				},
			},
		},
	}
}

// DatasetChunk 数据块存储结构
type DatasetChunk struct {
	ID           string    `json:"id"`
	Vector       []float32 `json:"vector"`
	TeamID       string    `json:"team_id"`
	DatasetID    string    `json:"dataset_id"`
	CollectionID string    `json:"collection_id"`
	Q            string    `json:"q"`
	A            string    `json:"a"`
	Source       string    `json:"source"`
}

// PartitionName 生成分区名称，按团队和知识库隔离。
// Milvus 分区名只允许字母数字和下划线，UUID 中的连字符需要替换。
func PartitionName(teamID, datasetID string) string {
	name := "team_" + teamID + "_ds_" + datasetID
	return strings.ReplaceAll(name, "-", "_")
}
