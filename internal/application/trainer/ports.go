// Package trainer 实现知识库训练流水线：队列入队、QA 拆分、向量化入库
package trainer

import (
	"context"

	"fastgpt-training/internal/domain/entity"
)

// QAPair 问答对
type QAPair struct {
	Q string
	A string
}

// Completion 对话模型补全结果
type Completion struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// ChatCompleter 对话模型端口
type ChatCompleter interface {
	// Complete 执行一次补全，system 为空时只发用户消息
	Complete(ctx context.Context, model, system, user string, maxTokens int, userKey string) (*Completion, error)
	// ContextTokens 返回模型的上下文窗口大小，未知模型返回 0
	ContextTokens(model string) int
	// DefaultModel 返回默认模型名
	DefaultModel() string
}

// EmbedResult 向量化结果
type EmbedResult struct {
	Vectors    [][]float32
	TokensUsed int
}

// Embedder 向量化端口
type Embedder interface {
	Embed(ctx context.Context, texts []string, userKey string) (*EmbedResult, error)
	Model() string
}

// DatasetChunk 待入库的数据块
type DatasetChunk struct {
	ID           string
	TeamID       string
	DatasetID    string
	CollectionID string
	Q            string
	A            string
	Source       string
	Vector       []float32
}

// VectorStore 向量库端口
type VectorStore interface {
	InsertChunks(ctx context.Context, teamID, datasetID string, chunks []*DatasetChunk) error
}

// VectorPurger 向量清理端口
type VectorPurger interface {
	DeleteByCollection(ctx context.Context, teamID, datasetID, collectionID string) error
}

// Notifier 通知端口
type Notifier interface {
	NotifyInsufficientBalance(ctx context.Context, teamID, userID string) error
}

// QuotaGuard 配额检查端口
type QuotaGuard interface {
	Check(ctx context.Context, userID string) (*entity.User, error)
}

// Biller 计费端口，所有方法均为尽力而为，不返回错误
type Biller interface {
	Open(ctx context.Context, teamID, userID string, source entity.BillSource) string
	AddChatUsage(ctx context.Context, billID, moduleName, model string, tokens int)
	AddEmbeddingUsage(ctx context.Context, billID, moduleName, model string, tokens int)
	Finalize(ctx context.Context, billID string)
	Rollback(ctx context.Context, billID string)
}
