// Package llm 提供对话模型客户端
package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fastgpt-training/internal/config"
	apperrors "fastgpt-training/pkg/errors"
	"fastgpt-training/pkg/metrics"
)

var tracer = otel.Tracer("llm")

// Client 对话模型客户端，支持多提供商和用户私有密钥
type Client struct {
	cfg *config.LLMConfig
}

// NewClient 创建对话模型客户端
func NewClient(cfg *config.LLMConfig) *Client {
	return &Client{cfg: cfg}
}

// CompletionRequest 对话补全请求
type CompletionRequest struct {
	Model       string
	System      string
	User        string
	MaxTokens   int
	Temperature float32
	// UserKey 用户私有密钥，非空时覆盖平台密钥
	UserKey string
}

// CompletionResult 对话补全结果
type CompletionResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Provider 获取模型对应的提供商配置
func (c *Client) Provider(model string) (config.ProviderConfig, bool) {
	p, ok := c.cfg.Providers[model]
	return p, ok
}

// DefaultModel 获取默认模型
func (c *Client) DefaultModel() string {
	return c.cfg.DefaultModel
}

// ChatCompletion 执行一次对话补全
func (c *Client) ChatCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	ctx, span := tracer.Start(ctx, "llm.ChatCompletion",
		trace.WithAttributes(attribute.String("model", req.Model)))
	defer span.End()

	provider, ok := c.Provider(req.Model)
	if !ok {
		return nil, apperrors.New(apperrors.CodeInvalidParam, fmt.Sprintf("unknown model: %s", req.Model))
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.User,
	})

	start := time.Now()
	resp, err := c.clientFor(provider, req.UserKey).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       provider.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	metrics.LLMCallDuration.WithLabelValues(req.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return nil, mapProviderError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, apperrors.New(apperrors.CodeProviderError, "provider returned no choices")
	}

	metrics.LLMTokensUsed.WithLabelValues(req.Model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(req.Model, "completion").Add(float64(resp.Usage.CompletionTokens))

	return &CompletionResult{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// clientFor 按提供商配置构造客户端，用户私有密钥优先
func (c *Client) clientFor(provider config.ProviderConfig, userKey string) *openai.Client {
	key := provider.APIKey
	if userKey != "" {
		key = userKey
	}

	clientCfg := openai.DefaultConfig(key)
	if provider.BaseURL != "" {
		clientCfg.BaseURL = provider.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// mapProviderError 将提供商错误映射为带错误码的应用错误
func mapProviderError(err error) error {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			return apperrors.Wrap(err, apperrors.CodeProviderAuth, "provider rejected credentials")
		case 429:
			if code, ok := apiErr.Code.(string); ok && code == "insufficient_quota" {
				return apperrors.Wrap(err, apperrors.CodeInsufficientQuota, "provider quota exhausted")
			}
			return apperrors.Wrap(err, apperrors.CodeRateLimited, "provider rate limited")
		}
		return apperrors.Wrap(err, apperrors.CodeProviderError, "provider request failed")
	}
	return apperrors.Wrap(err, apperrors.CodeProviderError, "provider request failed")
}
