package llm

import (
	"context"

	"fastgpt-training/internal/application/trainer"
)

// TrainerCompleter 对话模型端口适配器
type TrainerCompleter struct {
	client *Client
}

// NewTrainerCompleter 创建对话模型端口适配器
func NewTrainerCompleter(client *Client) *TrainerCompleter {
	return &TrainerCompleter{client: client}
}

// Complete 实现 trainer.ChatCompleter
func (a *TrainerCompleter) Complete(ctx context.Context, model, system, user string, maxTokens int, userKey string) (*trainer.Completion, error) {
	var temperature float32
	if provider, ok := a.client.Provider(model); ok {
		temperature = float32(provider.Temperature)
	}

	result, err := a.client.ChatCompletion(ctx, &CompletionRequest{
		Model:       model,
		System:      system,
		User:        user,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		UserKey:     userKey,
	})
	if err != nil {
		return nil, err
	}

	return &trainer.Completion{
		Content:          result.Content,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
	}, nil
}

// ContextTokens 实现 trainer.ChatCompleter
func (a *TrainerCompleter) ContextTokens(model string) int {
	provider, ok := a.client.Provider(model)
	if !ok {
		return 0
	}
	return provider.ContextTokens
}

// DefaultModel 实现 trainer.ChatCompleter
func (a *TrainerCompleter) DefaultModel() string {
	return a.client.DefaultModel()
}
