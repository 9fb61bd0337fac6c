package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"fastgpt-training/internal/domain/entity"
	"fastgpt-training/internal/domain/repository"
)

// TrainingRepository 训练队列仓储实现
type TrainingRepository struct {
	client *Client
}

// NewTrainingRepository 创建训练队列仓储
func NewTrainingRepository(client *Client) *TrainingRepository {
	return &TrainingRepository{client: client}
}

// BulkCreate 批量创建训练记录
func (r *TrainingRepository) BulkCreate(ctx context.Context, records []*entity.TrainingRecord) error {
	ctx, span := tracer.Start(ctx, "postgres.TrainingRepository.BulkCreate")
	defer span.End()

	if len(records) == 0 {
		return nil
	}

	db := getDB(ctx, r.client.db)
	if err := db.CreateInBatches(records, 200).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to bulk create training records: %w", err)
	}
	return nil
}

// Claim 原子认领一条记录并续租。
// 单条语句内完成挑选与上锁，SKIP LOCKED 避免并发进程争抢同一行，
// 租约到期（lock_time 早于窗口起点）的记录会被重新认领。
func (r *TrainingRepository) Claim(ctx context.Context, mode entity.TrainingMode, leaseWindow time.Duration) (*entity.TrainingRecord, error) {
	ctx, span := tracer.Start(ctx, "postgres.TrainingRepository.Claim")
	defer span.End()

	now := time.Now()
	cutoff := now.Add(-leaseWindow)

	db := getDB(ctx, r.client.db)
	var record entity.TrainingRecord
	err := db.Raw(`
		UPDATE training_records
		SET lock_time = ?
		WHERE id = (
			SELECT id FROM training_records
			WHERE mode = ? AND lock_time <= ?
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`,
		now, mode, cutoff,
	).Scan(&record).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to claim training record: %w", err)
	}
	if record.ID == "" {
		// 队列为空或全部在租约内
		return nil, nil
	}
	return &record, nil
}

// GetByID 根据 ID 获取记录
func (r *TrainingRepository) GetByID(ctx context.Context, id string) (*entity.TrainingRecord, error) {
	ctx, span := tracer.Start(ctx, "postgres.TrainingRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var record entity.TrainingRecord
	if err := db.First(&record, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get training record: %w", err)
	}
	return &record, nil
}

// Delete 删除记录
func (r *TrainingRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.TrainingRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.TrainingRecord{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete training record: %w", err)
	}
	return nil
}

// Unlock 将记录租约重置为可立即认领
func (r *TrainingRepository) Unlock(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.TrainingRepository.Unlock")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Model(&entity.TrainingRecord{}).
		Where("id = ?", id).
		Update("lock_time", entity.UnlockedLockTime).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to unlock training record: %w", err)
	}
	return nil
}

// ParkByUser 停放某用户的全部待处理记录
func (r *TrainingRepository) ParkByUser(ctx context.Context, userID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.TrainingRepository.ParkByUser")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.TrainingRecord{}).
		Where("user_id = ? AND lock_time < ?", userID, entity.ParkedLockTime).
		Update("lock_time", entity.ParkedLockTime)
	if result.Error != nil {
		span.RecordError(result.Error)
		return 0, fmt.Errorf("failed to park training records: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// UnparkByUser 恢复某用户的全部停放记录
func (r *TrainingRepository) UnparkByUser(ctx context.Context, userID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.TrainingRepository.UnparkByUser")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.TrainingRecord{}).
		Where("user_id = ? AND lock_time = ?", userID, entity.ParkedLockTime).
		Update("lock_time", entity.UnlockedLockTime)
	if result.Error != nil {
		span.RecordError(result.Error)
		return 0, fmt.Errorf("failed to unpark training records: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CountByMode 统计指定模式的记录数
func (r *TrainingRepository) CountByMode(ctx context.Context, mode entity.TrainingMode) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.TrainingRepository.CountByMode")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var count int64
	err := db.Model(&entity.TrainingRecord{}).
		Where("mode = ?", mode).
		Count(&count).Error
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count training records: %w", err)
	}
	return count, nil
}

// ListByCollection 按集合分页列出记录
func (r *TrainingRepository) ListByCollection(ctx context.Context, collectionID string, pagination repository.Pagination) (*repository.PagedResult[*entity.TrainingRecord], error) {
	ctx, span := tracer.Start(ctx, "postgres.TrainingRepository.ListByCollection")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.TrainingRecord{}).Where("collection_id = ?", collectionID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count training records: %w", err)
	}

	var records []*entity.TrainingRecord
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&records).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list training records: %w", err)
	}

	return repository.NewPagedResult(records, total, pagination), nil
}

// DeleteByCollection 删除某集合的全部记录
func (r *TrainingRepository) DeleteByCollection(ctx context.Context, collectionID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.TrainingRepository.DeleteByCollection")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Where("collection_id = ?", collectionID).Delete(&entity.TrainingRecord{})
	if result.Error != nil {
		span.RecordError(result.Error)
		return 0, fmt.Errorf("failed to delete training records by collection: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteExpired 删除超过存活期的记录
func (r *TrainingRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.TrainingRepository.DeleteExpired")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Where("expire_at <= ?", now).Delete(&entity.TrainingRecord{})
	if result.Error != nil {
		span.RecordError(result.Error)
		return 0, fmt.Errorf("failed to delete expired training records: %w", result.Error)
	}
	return result.RowsAffected, nil
}
