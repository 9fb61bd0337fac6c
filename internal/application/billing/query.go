package billing

import (
	"context"

	"fastgpt-training/internal/domain/entity"
	"fastgpt-training/internal/domain/repository"
)

// Query 账单查询服务
type Query struct {
	bills repository.BillRepository
}

// NewQuery 创建账单查询服务
func NewQuery(bills repository.BillRepository) *Query {
	return &Query{bills: bills}
}

// ListByTeam 按团队分页查询账单
func (q *Query) ListByTeam(ctx context.Context, teamID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Bill], error) {
	return q.bills.ListByTeam(ctx, teamID, pagination)
}
