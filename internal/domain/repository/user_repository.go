package repository

import (
	"context"

	"fastgpt-training/internal/domain/entity"
)

// UserRepository 用户仓储接口
type UserRepository interface {
	// GetByID 根据 ID 获取用户，不存在时返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*entity.User, error)

	// DeductBalance 扣减用户余额
	DeductBalance(ctx context.Context, userID string, amount int64) error
}
