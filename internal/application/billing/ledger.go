package billing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"fastgpt-training/internal/domain/entity"
	"fastgpt-training/internal/domain/repository"
	"fastgpt-training/pkg/logger"
	"fastgpt-training/pkg/metrics"
)

var tracer = otel.Tracer("billing")

// CacheInvalidator 余额变动后使用户缓存失效
type CacheInvalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
}

// Ledger 计费台账。
// 账单在处理开始时开立，过程中逐项累加，结束时结算扣费或回滚删除。
// 记账本身尽量不打断训练流程：明细追加失败只记日志。
type Ledger struct {
	bills   repository.BillRepository
	users   repository.UserRepository
	pricing *Pricing
	cache   CacheInvalidator
	appName string
}

// NewLedger 创建计费台账
func NewLedger(bills repository.BillRepository, users repository.UserRepository, pricing *Pricing, cache CacheInvalidator, appName string) *Ledger {
	if appName == "" {
		appName = "知识库训练"
	}
	return &Ledger{
		bills:   bills,
		users:   users,
		pricing: pricing,
		cache:   cache,
		appName: appName,
	}
}

// Open 开立账单，返回账单 ID；失败时返回空串，后续记账调用均为空操作
func (l *Ledger) Open(ctx context.Context, teamID, userID string, source entity.BillSource) string {
	ctx, span := tracer.Start(ctx, "billing.Ledger.Open")
	defer span.End()

	bill := entity.NewBill(teamID, userID, l.appName, source)
	if err := l.bills.Create(ctx, bill); err != nil {
		span.RecordError(err)
		logger.Warn(ctx, "failed to open bill", "error", err, "user_id", userID)
		return ""
	}
	return bill.ID
}

// AddChatUsage 追加对话模型用量明细
func (l *Ledger) AddChatUsage(ctx context.Context, billID, moduleName, model string, tokens int) {
	l.appendItem(ctx, billID, entity.BillItem{
		ModuleName: moduleName,
		Amount:     l.pricing.ChatAmount(model, tokens),
		Model:      model,
		TokenLen:   tokens,
	})
}

// AddEmbeddingUsage 追加向量化用量明细
func (l *Ledger) AddEmbeddingUsage(ctx context.Context, billID, moduleName, model string, tokens int) {
	l.appendItem(ctx, billID, entity.BillItem{
		ModuleName: moduleName,
		Amount:     l.pricing.EmbeddingAmount(model, tokens),
		Model:      model,
		TokenLen:   tokens,
	})
}

// appendItem 追加明细，失败只记日志不中断处理
func (l *Ledger) appendItem(ctx context.Context, billID string, item entity.BillItem) {
	if billID == "" {
		return
	}

	ctx, span := tracer.Start(ctx, "billing.Ledger.appendItem")
	defer span.End()

	bill, err := l.bills.GetByID(ctx, billID)
	if err != nil {
		span.RecordError(err)
		logger.Warn(ctx, "failed to load bill for item append", "error", err, "bill_id", billID)
		return
	}
	if bill == nil {
		logger.Warn(ctx, "bill not found for item append", "bill_id", billID)
		return
	}

	bill.AddItem(item)
	if err := l.bills.Update(ctx, bill); err != nil {
		span.RecordError(err)
		logger.Warn(ctx, "failed to append bill item", "error", err, "bill_id", billID)
	}
}

// Finalize 结算账单：汇总明细金额、落总额并扣减用户余额。
// 账单不存在时为空操作，只记一条告警。
func (l *Ledger) Finalize(ctx context.Context, billID string) {
	if billID == "" {
		return
	}

	ctx, span := tracer.Start(ctx, "billing.Ledger.Finalize")
	defer span.End()

	bill, err := l.bills.GetByID(ctx, billID)
	if err != nil {
		span.RecordError(err)
		logger.Error(ctx, "failed to load bill for finalize", err, "bill_id", billID)
		return
	}
	if bill == nil {
		logger.Warn(ctx, "bill not found for finalize", "bill_id", billID)
		return
	}

	bill.Total = bill.SumItems()
	finalizedAt := time.Now()
	bill.FinalizedAt = &finalizedAt

	if err := l.bills.Update(ctx, bill); err != nil {
		span.RecordError(err)
		logger.Error(ctx, "failed to finalize bill", err, "bill_id", billID)
		return
	}

	if bill.Total > 0 {
		if err := l.users.DeductBalance(ctx, bill.UserID, bill.Total); err != nil {
			span.RecordError(err)
			logger.Error(ctx, "failed to deduct balance", err, "bill_id", billID, "user_id", bill.UserID)
			return
		}
		if l.cache != nil {
			if err := l.cache.InvalidateUser(ctx, bill.UserID); err != nil {
				logger.Warn(ctx, "failed to invalidate user cache", "error", err, "user_id", bill.UserID)
			}
		}
	}

	metrics.BillsFinalizedTotal.WithLabelValues(string(bill.Source)).Inc()
	logger.Info(ctx, "bill finalized",
		"bill_id", billID,
		"user_id", bill.UserID,
		"total", bill.Total,
		"items", len(bill.Items),
	)
}

// Rollback 回滚账单：处理失败时删除账单，不产生扣费
func (l *Ledger) Rollback(ctx context.Context, billID string) {
	if billID == "" {
		return
	}

	ctx, span := tracer.Start(ctx, "billing.Ledger.Rollback")
	defer span.End()

	bill, err := l.bills.GetByID(ctx, billID)
	if err != nil {
		span.RecordError(err)
		logger.Warn(ctx, "failed to load bill for rollback", "error", err, "bill_id", billID)
		return
	}
	if bill == nil {
		return
	}

	if err := l.bills.Delete(ctx, billID); err != nil {
		span.RecordError(err)
		logger.Warn(ctx, "failed to rollback bill", "error", err, "bill_id", billID)
		return
	}
	metrics.BillsRolledBackTotal.WithLabelValues(string(bill.Source)).Inc()
}
