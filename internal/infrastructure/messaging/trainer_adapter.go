package messaging

import (
	"context"
)

// TrainerNotifier 通知端口适配器
type TrainerNotifier struct {
	producer *Producer
}

// NewTrainerNotifier 创建通知端口适配器
func NewTrainerNotifier(producer *Producer) *TrainerNotifier {
	return &TrainerNotifier{producer: producer}
}

// NotifyInsufficientBalance 实现 trainer.Notifier
func (a *TrainerNotifier) NotifyInsufficientBalance(ctx context.Context, teamID, userID string) error {
	_, err := a.producer.PublishInsufficientBalance(ctx, teamID, userID)
	return err
}
