// Package embedding 提供向量化服务客户端
package embedding

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fastgpt-training/internal/config"
	apperrors "fastgpt-training/pkg/errors"
	"fastgpt-training/pkg/metrics"
)

var tracer = otel.Tracer("embedding")

// Client 向量化客户端
type Client struct {
	cfg       *config.EmbeddingConfig
	batchSize int
}

// NewClient 创建向量化客户端
func NewClient(cfg *config.EmbeddingConfig) *Client {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 16
	}
	return &Client{
		cfg:       cfg,
		batchSize: batchSize,
	}
}

// Result 向量化结果
type Result struct {
	Vectors    [][]float32
	TokensUsed int
}

// Embed 将多段文本向量化，内部按批次调用
func (c *Client) Embed(ctx context.Context, texts []string, userKey string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "embedding.Embed",
		trace.WithAttributes(
			attribute.String("model", c.cfg.Model),
			attribute.Int("text_count", len(texts)),
		))
	defer span.End()

	if len(texts) == 0 {
		return &Result{Vectors: [][]float32{}}, nil
	}

	result := &Result{Vectors: make([][]float32, 0, len(texts))}
	for i := 0; i < len(texts); i += c.batchSize {
		end := i + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := c.doBatchEmbed(ctx, texts[i:end], userKey)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		result.Vectors = append(result.Vectors, batch.Vectors...)
		result.TokensUsed += batch.TokensUsed
	}

	metrics.EmbeddingTokensUsed.WithLabelValues(c.cfg.Model).Add(float64(result.TokensUsed))
	return result, nil
}

// doBatchEmbed 执行单批次向量化
func (c *Client) doBatchEmbed(ctx context.Context, texts []string, userKey string) (*Result, error) {
	start := time.Now()
	resp, err := c.clientFor(userKey).CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.cfg.Model),
	})
	metrics.EmbeddingCallDuration.WithLabelValues(c.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, mapProviderError(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, apperrors.New(apperrors.CodeEmbeddingFailed, "provider returned mismatched embedding count")
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}

	return &Result{
		Vectors:    vectors,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// clientFor 构造客户端，用户私有密钥优先
func (c *Client) clientFor(userKey string) *openai.Client {
	key := c.cfg.APIKey
	if userKey != "" {
		key = userKey
	}

	clientCfg := openai.DefaultConfig(key)
	if c.cfg.BaseURL != "" {
		clientCfg.BaseURL = c.cfg.BaseURL
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
