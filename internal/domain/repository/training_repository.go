package repository

import (
	"context"
	"time"

	"fastgpt-training/internal/domain/entity"
)

// TrainingRepository 训练队列仓储接口
type TrainingRepository interface {
	// BulkCreate 批量创建训练记录
	BulkCreate(ctx context.Context, records []*entity.TrainingRecord) error

	// Claim 原子认领一条可处理的记录并续租，队列为空时返回 (nil, nil)
	Claim(ctx context.Context, mode entity.TrainingMode, leaseWindow time.Duration) (*entity.TrainingRecord, error)

	// GetByID 根据 ID 获取记录，不存在时返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*entity.TrainingRecord, error)

	// Delete 删除记录
	Delete(ctx context.Context, id string) error

	// Unlock 将记录的租约重置为可立即认领
	Unlock(ctx context.Context, id string) error

	// ParkByUser 停放某用户的全部待处理记录，返回受影响行数
	ParkByUser(ctx context.Context, userID string) (int64, error)

	// UnparkByUser 恢复某用户的全部停放记录，返回受影响行数
	UnparkByUser(ctx context.Context, userID string) (int64, error)

	// CountByMode 统计指定模式的记录数
	CountByMode(ctx context.Context, mode entity.TrainingMode) (int64, error)

	// ListByCollection 按集合分页列出记录
	ListByCollection(ctx context.Context, collectionID string, pagination Pagination) (*PagedResult[*entity.TrainingRecord], error)

	// DeleteByCollection 删除某集合的全部记录，返回删除行数
	DeleteByCollection(ctx context.Context, collectionID string) (int64, error)

	// DeleteExpired 删除超过存活期的记录，返回删除行数
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
