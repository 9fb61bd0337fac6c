package repository

import (
	"context"

	"fastgpt-training/internal/domain/entity"
)

// BillRepository 账单仓储接口
type BillRepository interface {
	// Create 创建账单
	Create(ctx context.Context, bill *entity.Bill) error

	// GetByID 根据 ID 获取账单，不存在时返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*entity.Bill, error)

	// Update 更新账单
	Update(ctx context.Context, bill *entity.Bill) error

	// Delete 删除账单
	Delete(ctx context.Context, id string) error

	// ListByTeam 按团队分页列出账单
	ListByTeam(ctx context.Context, teamID string, pagination Pagination) (*PagedResult[*entity.Bill], error)
}
