package embedding

import (
	"context"

	"fastgpt-training/internal/application/trainer"
)

// TrainerEmbedder 向量化端口适配器
type TrainerEmbedder struct {
	client *Client
}

// NewTrainerEmbedder 创建向量化端口适配器
func NewTrainerEmbedder(client *Client) *TrainerEmbedder {
	return &TrainerEmbedder{client: client}
}

// Embed 实现 trainer.Embedder
func (a *TrainerEmbedder) Embed(ctx context.Context, texts []string, userKey string) (*trainer.EmbedResult, error) {
	result, err := a.client.Embed(ctx, texts, userKey)
	if err != nil {
		return nil, err
	}
	return &trainer.EmbedResult{
		Vectors:    result.Vectors,
		TokensUsed: result.TokensUsed,
	}, nil
}

// Model 实现 trainer.Embedder
func (a *TrainerEmbedder) Model() string {
	return a.client.cfg.Model
}
