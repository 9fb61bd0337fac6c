package billing

import (
	"context"
	"errors"
	"testing"

	"fastgpt-training/internal/config"
	"fastgpt-training/internal/domain/entity"
	"fastgpt-training/internal/domain/repository"
)

// fakeBills 内存账单仓储桩
type fakeBills struct {
	bills     map[string]*entity.Bill
	createErr error
}

func newFakeBills() *fakeBills {
	return &fakeBills{bills: make(map[string]*entity.Bill)}
}

func (f *fakeBills) Create(_ context.Context, bill *entity.Bill) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.bills[bill.ID] = bill
	return nil
}

func (f *fakeBills) GetByID(_ context.Context, id string) (*entity.Bill, error) {
	return f.bills[id], nil
}

func (f *fakeBills) Update(_ context.Context, bill *entity.Bill) error {
	f.bills[bill.ID] = bill
	return nil
}

func (f *fakeBills) Delete(_ context.Context, id string) error {
	delete(f.bills, id)
	return nil
}

func (f *fakeBills) ListByTeam(context.Context, string, repository.Pagination) (*repository.PagedResult[*entity.Bill], error) {
	return nil, nil
}

// fakeUsers 用户仓储桩，记录扣费
type fakeUsers struct {
	deductedUser   string
	deductedAmount int64
	deductCalls    int
}

func (f *fakeUsers) GetByID(context.Context, string) (*entity.User, error) {
	return nil, nil
}

func (f *fakeUsers) DeductBalance(_ context.Context, userID string, amount int64) error {
	f.deductedUser = userID
	f.deductedAmount = amount
	f.deductCalls++
	return nil
}

// fakeInvalidator 缓存失效桩
type fakeInvalidator struct {
	invalidated []string
}

func (f *fakeInvalidator) InvalidateUser(_ context.Context, userID string) error {
	f.invalidated = append(f.invalidated, userID)
	return nil
}

func testPricing() *Pricing {
	return NewPricing(&config.BillingConfig{
		Prices: map[string]float64{
			"gpt-3.5-turbo-16k":      3,
			"text-embedding-ada-002": 0.2,
		},
		DefaultChatPrice:      3,
		DefaultEmbeddingPrice: 0.2,
	})
}

func TestLedgerFinalizeDeductsBalance(t *testing.T) {
	bills := newFakeBills()
	users := &fakeUsers{}
	cache := &fakeInvalidator{}
	ledger := NewLedger(bills, users, testPricing(), cache, "")

	ctx := context.Background()
	billID := ledger.Open(ctx, "team-1", "user-1", entity.BillSourceQA)
	if billID == "" {
		t.Fatalf("开立账单失败")
	}

	ledger.AddChatUsage(ctx, billID, "QA 拆分", "gpt-3.5-turbo-16k", 100)
	ledger.AddEmbeddingUsage(ctx, billID, "索引向量化", "text-embedding-ada-002", 50)
	ledger.Finalize(ctx, billID)

	bill := bills.bills[billID]
	if bill == nil {
		t.Fatalf("账单丢失")
	}
	if !bill.IsFinalized() {
		t.Fatalf("账单应已结算")
	}
	// 100 token * 3 + 50 token * 0.2 = 310
	if bill.Total != 310 {
		t.Fatalf("总额应为明细之和 310，得到 %d", bill.Total)
	}
	if users.deductedUser != "user-1" || users.deductedAmount != 310 {
		t.Fatalf("扣费错误: %s %d", users.deductedUser, users.deductedAmount)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "user-1" {
		t.Fatalf("扣费后应失效用户缓存: %v", cache.invalidated)
	}
}

// 零总额账单结算但不扣费
func TestLedgerFinalizeZeroTotalSkipsDeduction(t *testing.T) {
	bills := newFakeBills()
	users := &fakeUsers{}
	ledger := NewLedger(bills, users, testPricing(), nil, "")

	ctx := context.Background()
	billID := ledger.Open(ctx, "team-1", "user-1", entity.BillSourceVector)
	ledger.Finalize(ctx, billID)

	if users.deductCalls != 0 {
		t.Fatalf("零总额不应扣费")
	}
	if !bills.bills[billID].IsFinalized() {
		t.Fatalf("账单仍应结算")
	}
}

// 账单不存在时结算为空操作，不产生扣费
func TestLedgerFinalizeMissingBillNoop(t *testing.T) {
	bills := newFakeBills()
	users := &fakeUsers{}
	ledger := NewLedger(bills, users, testPricing(), nil, "")

	ledger.Finalize(context.Background(), "no-such-bill")
	if users.deductCalls != 0 {
		t.Fatalf("账单不存在不应扣费")
	}
}

// 开单失败后续记账均为空操作
func TestLedgerOpenFailureDegrades(t *testing.T) {
	bills := newFakeBills()
	bills.createErr = errors.New("db down")
	users := &fakeUsers{}
	ledger := NewLedger(bills, users, testPricing(), nil, "")

	ctx := context.Background()
	billID := ledger.Open(ctx, "team-1", "user-1", entity.BillSourceQA)
	if billID != "" {
		t.Fatalf("开单失败应返回空串")
	}

	ledger.AddChatUsage(ctx, billID, "QA 拆分", "gpt-4", 100)
	ledger.Finalize(ctx, billID)
	if users.deductCalls != 0 {
		t.Fatalf("空账单不应扣费")
	}
}

func TestLedgerRollbackDeletesBill(t *testing.T) {
	bills := newFakeBills()
	users := &fakeUsers{}
	ledger := NewLedger(bills, users, testPricing(), nil, "")

	ctx := context.Background()
	billID := ledger.Open(ctx, "team-1", "user-1", entity.BillSourceQA)
	ledger.AddChatUsage(ctx, billID, "QA 拆分", "gpt-3.5-turbo-16k", 100)
	ledger.Rollback(ctx, billID)

	if bills.bills[billID] != nil {
		t.Fatalf("回滚应删除账单")
	}
	if users.deductCalls != 0 {
		t.Fatalf("回滚不应扣费")
	}
}

func TestPricingAmounts(t *testing.T) {
	p := testPricing()

	if got := p.ChatAmount("gpt-3.5-turbo-16k", 100); got != 300 {
		t.Fatalf("对话计价错误: %d", got)
	}
	if got := p.ChatAmount("unknown-model", 10); got != 30 {
		t.Fatalf("未知模型应用兜底单价: %d", got)
	}
	if got := p.ChatAmount("gpt-4", 0); got != 0 {
		t.Fatalf("零用量应为 0: %d", got)
	}
	// 0.2 * 2 = 0.4，四舍五入为 0，非零用量至少计 1
	if got := p.EmbeddingAmount("text-embedding-ada-002", 2); got != 1 {
		t.Fatalf("非零向量化用量应至少计 1: %d", got)
	}
	if got := p.EmbeddingAmount("text-embedding-ada-002", 0); got != 0 {
		t.Fatalf("零用量应为 0: %d", got)
	}
}
