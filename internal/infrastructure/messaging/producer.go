// Package messaging 提供消息队列实现
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// InsufficientBalanceMessage 余额不足通知消息
type InsufficientBalanceMessage struct {
	TeamID  string `json:"team_id"`
	UserID  string `json:"user_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// BalanceRechargedMessage 余额充值事件消息
type BalanceRechargedMessage struct {
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
}

// PublishInsufficientBalance 发布余额不足通知
func (p *Producer) PublishInsufficientBalance(ctx context.Context, teamID, userID string) (string, error) {
	payload := &InsufficientBalanceMessage{
		TeamID:  teamID,
		UserID:  userID,
		Title:   "余额不足",
		Content: "账户余额不足，知识库训练任务已暂停，请及时充值。",
	}

	msg, err := NewMessage(uuid.New().String(), MessageTypeInsufficientBalance, teamID, userID, payload)
	if err != nil {
		return "", err
	}

	return p.Publish(ctx, StreamNotification, msg)
}

// PublishBalanceRecharged 发布余额充值事件
func (p *Producer) PublishBalanceRecharged(ctx context.Context, teamID, userID string, amount int64) (string, error) {
	payload := &BalanceRechargedMessage{
		TeamID: teamID,
		UserID: userID,
		Amount: amount,
	}

	msg, err := NewMessage(uuid.New().String(), MessageTypeBalanceRecharged, teamID, userID, payload)
	if err != nil {
		return "", err
	}

	return p.Publish(ctx, StreamBalanceEvents, msg)
}
