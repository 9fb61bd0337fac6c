package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"fastgpt-training/internal/domain/entity"
)

// UserRepository 用户仓储实现
type UserRepository struct {
	client *Client
}

// NewUserRepository 创建用户仓储
func NewUserRepository(client *Client) *UserRepository {
	return &UserRepository{client: client}
}

// GetByID 根据 ID 获取用户
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	ctx, span := tracer.Start(ctx, "postgres.UserRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var user entity.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// DeductBalance 扣减用户余额，允许扣成负数，由配额守卫在下一次处理前拦截
func (r *UserRepository) DeductBalance(ctx context.Context, userID string, amount int64) error {
	ctx, span := tracer.Start(ctx, "postgres.UserRepository.DeductBalance")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Model(&entity.User{}).
		Where("id = ?", userID).
		Update("balance", gorm.Expr("balance - ?", amount)).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to deduct balance: %w", err)
	}
	return nil
}
