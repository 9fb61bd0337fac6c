package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"fastgpt-training/internal/domain/entity"
	"fastgpt-training/internal/domain/repository"
)

// BillRepository 账单仓储实现
type BillRepository struct {
	client *Client
}

// NewBillRepository 创建账单仓储
func NewBillRepository(client *Client) *BillRepository {
	return &BillRepository{client: client}
}

// Create 创建账单
func (r *BillRepository) Create(ctx context.Context, bill *entity.Bill) error {
	ctx, span := tracer.Start(ctx, "postgres.BillRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(bill).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create bill: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取账单
func (r *BillRepository) GetByID(ctx context.Context, id string) (*entity.Bill, error) {
	ctx, span := tracer.Start(ctx, "postgres.BillRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var bill entity.Bill
	if err := db.First(&bill, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	return &bill, nil
}

// Update 更新账单
func (r *BillRepository) Update(ctx context.Context, bill *entity.Bill) error {
	ctx, span := tracer.Start(ctx, "postgres.BillRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(bill).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update bill: %w", err)
	}
	return nil
}

// Delete 删除账单
func (r *BillRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.BillRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.Bill{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete bill: %w", err)
	}
	return nil
}

// ListByTeam 按团队分页列出账单
func (r *BillRepository) ListByTeam(ctx context.Context, teamID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Bill], error) {
	ctx, span := tracer.Start(ctx, "postgres.BillRepository.ListByTeam")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.Bill{}).Where("team_id = ?", teamID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count bills: %w", err)
	}

	var bills []*entity.Bill
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&bills).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}

	return repository.NewPagedResult(bills, total, pagination), nil
}
