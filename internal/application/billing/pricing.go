// Package billing 提供训练计费能力
package billing

import (
	"math"

	"fastgpt-training/internal/config"
)

// Pricing 模型单价表，金额以最小计费单位计
type Pricing struct {
	prices           map[string]float64
	defaultChat      float64
	defaultEmbedding float64
}

// NewPricing 创建单价表
func NewPricing(cfg *config.BillingConfig) *Pricing {
	defaultChat := cfg.DefaultChatPrice
	if defaultChat <= 0 {
		defaultChat = 3
	}
	defaultEmbedding := cfg.DefaultEmbeddingPrice
	if defaultEmbedding <= 0 {
		defaultEmbedding = 0.2
	}
	return &Pricing{
		prices:           cfg.Prices,
		defaultChat:      defaultChat,
		defaultEmbedding: defaultEmbedding,
	}
}

// ChatAmount 计算对话模型用量金额
func (p *Pricing) ChatAmount(model string, tokens int) int64 {
	price, ok := p.prices[model]
	if !ok || price <= 0 {
		price = p.defaultChat
	}
	amount := int64(math.Round(price * float64(tokens)))
	if amount < 0 {
		amount = 0
	}
	return amount
}

// EmbeddingAmount 计算向量化用量金额，非零用量至少计一个单位
func (p *Pricing) EmbeddingAmount(model string, tokens int) int64 {
	price, ok := p.prices[model]
	if !ok || price <= 0 {
		price = p.defaultEmbedding
	}
	amount := int64(math.Round(price * float64(tokens)))
	if amount < 1 && tokens > 0 {
		amount = 1
	}
	if amount < 0 {
		amount = 0
	}
	return amount
}
