package trainer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fastgpt-training/internal/config"
	"fastgpt-training/internal/domain/entity"
	"fastgpt-training/internal/domain/repository"
	apperrors "fastgpt-training/pkg/errors"
)

// fakeRecords 内存训练仓储桩
type fakeRecords struct {
	mu           sync.Mutex
	queue        []*entity.TrainingRecord
	created      []*entity.TrainingRecord
	deleted      []string
	unlocked     []string
	parkedUser   string
	parkedCount  int64
	unparkedUser string
	purgedColl   string
	purgedCount  int64
	claimErr     error
}

func (f *fakeRecords) BulkCreate(_ context.Context, records []*entity.TrainingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, records...)
	return nil
}

func (f *fakeRecords) Claim(_ context.Context, mode entity.TrainingMode, _ time.Duration) (*entity.TrainingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	for i, rec := range f.queue {
		if rec.Mode == mode {
			f.queue = append(f.queue[:i], f.queue[i+1:]...)
			return rec, nil
		}
	}
	return nil, nil
}

func (f *fakeRecords) GetByID(context.Context, string) (*entity.TrainingRecord, error) {
	return nil, nil
}

func (f *fakeRecords) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRecords) Unlock(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlocked = append(f.unlocked, id)
	return nil
}

func (f *fakeRecords) ParkByUser(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parkedUser = userID
	return f.parkedCount, nil
}

func (f *fakeRecords) UnparkByUser(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unparkedUser = userID
	return 2, nil
}

func (f *fakeRecords) CountByMode(context.Context, entity.TrainingMode) (int64, error) {
	return int64(len(f.queue)), nil
}

func (f *fakeRecords) ListByCollection(context.Context, string, repository.Pagination) (*repository.PagedResult[*entity.TrainingRecord], error) {
	return nil, nil
}

func (f *fakeRecords) DeleteByCollection(_ context.Context, collectionID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purgedColl = collectionID
	return f.purgedCount, nil
}

func (f *fakeRecords) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// leaseRecords 带租约语义的仓储桩：认领以比较并交换的方式推进锁时间，
// 租约未到期或已删除的记录不可再次认领
type leaseRecords struct {
	fakeRecords
}

func (f *leaseRecords) Claim(_ context.Context, mode entity.TrainingMode, window time.Duration) (*entity.TrainingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for _, rec := range f.queue {
		if rec.Mode != mode {
			continue
		}
		if now.Sub(rec.LockTime) <= window {
			continue
		}
		if containsID(f.deleted, rec.ID) {
			continue
		}
		rec.LockTime = now
		return rec, nil
	}
	return nil, nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// fakeGuard 配额守卫桩
type fakeGuard struct {
	user *entity.User
	err  error
}

func (g *fakeGuard) Check(context.Context, string) (*entity.User, error) {
	return g.user, g.err
}

// fakeBiller 计费桩，记录全部调用
type fakeBiller struct {
	mu          sync.Mutex
	opened      []entity.BillSource
	chatTokens  int
	embedTokens int
	finalized   []string
	rolledBack  []string
}

func (b *fakeBiller) Open(_ context.Context, _, _ string, source entity.BillSource) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = append(b.opened, source)
	return "bill-1"
}

func (b *fakeBiller) AddChatUsage(_ context.Context, _, _, _ string, tokens int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chatTokens += tokens
}

func (b *fakeBiller) AddEmbeddingUsage(_ context.Context, _, _, _ string, tokens int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.embedTokens += tokens
}

func (b *fakeBiller) Finalize(_ context.Context, billID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finalized = append(b.finalized, billID)
}

func (b *fakeBiller) Rollback(_ context.Context, billID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolledBack = append(b.rolledBack, billID)
}

// fakeNotifier 通知桩
type fakeNotifier struct {
	teamID string
	userID string
	calls  int
}

func (n *fakeNotifier) NotifyInsufficientBalance(_ context.Context, teamID, userID string) error {
	n.teamID = teamID
	n.userID = userID
	n.calls++
	return nil
}

// stubEmbedder 向量化桩
type stubEmbedder struct {
	mu         sync.Mutex
	err        error
	gotUserKey string
	gotTexts   []string
}

func (e *stubEmbedder) Embed(_ context.Context, texts []string, userKey string) (*EmbedResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gotUserKey = userKey
	e.gotTexts = append(e.gotTexts, texts...)
	if e.err != nil {
		return nil, e.err
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{0.1, 0.2}
	}
	return &EmbedResult{Vectors: vectors, TokensUsed: 7}, nil
}

func (e *stubEmbedder) Model() string { return "text-embedding-ada-002" }

// stubStore 向量库桩
type stubStore struct {
	mu       sync.Mutex
	inserted []*DatasetChunk
	err      error
}

func (s *stubStore) InsertChunks(_ context.Context, _, _ string, chunks []*DatasetChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.inserted = append(s.inserted, chunks...)
	return nil
}

func testTrainingConfig() *config.TrainingConfig {
	return &config.TrainingConfig{
		VectorLanes:           1,
		QALanes:               1,
		ChunkLeaseWindow:      2 * time.Minute,
		QALeaseWindow:         4 * time.Minute,
		PollInterval:          time.Millisecond,
		RetryDelay:            5 * time.Millisecond,
		RecordTTL:             time.Hour,
		JanitorInterval:       time.Minute,
		QAFallbackChunkSize:   500,
		QAMinCompletionTokens: 1000,
	}
}

func activeUser() *entity.User {
	return &entity.User{ID: "user-1", TeamID: "team-1", Balance: 100000, Status: entity.UserStatusActive}
}

func newTestDispatcher(records repository.TrainingRepository, guard *fakeGuard, biller *fakeBiller, notifier *fakeNotifier, chat ChatCompleter, embedder Embedder, store VectorStore) *Dispatcher {
	if chat == nil {
		chat = &stubChat{window: 16384}
	}
	if embedder == nil {
		embedder = &stubEmbedder{}
	}
	if store == nil {
		store = &stubStore{}
	}
	return NewDispatcher(
		records,
		nil,
		guard,
		biller,
		notifier,
		NewQASplitter(chat, 500, 1000),
		NewEmbedStage(embedder, store),
		testTrainingConfig(),
	)
}

func chunkRecord() *entity.TrainingRecord {
	return entity.NewTrainingRecord("team-1", "user-1", "ds-1", "col-1",
		entity.TrainingModeChunk, "什么是向量库？", "存放向量的数据库。", "", "gpt-3.5-turbo-16k", "doc.md", time.Hour)
}

func qaRecord() *entity.TrainingRecord {
	return entity.NewTrainingRecord("team-1", "user-1", "ds-1", "col-1",
		entity.TrainingModeQA, "一大段原始文本", "", "", "gpt-3.5-turbo-16k", "doc.md", time.Hour)
}

func TestRunOnceEmptyQueue(t *testing.T) {
	records := &fakeRecords{}
	d := newTestDispatcher(records, &fakeGuard{user: activeUser()}, &fakeBiller{}, &fakeNotifier{}, nil, nil, nil)

	claimed, delay := d.RunOnce(context.Background(), entity.TrainingModeChunk)
	if claimed {
		t.Fatalf("空队列不应认领到记录")
	}
	if delay != 0 {
		t.Fatalf("空队列延迟应为 0，得到 %v", delay)
	}
}

func TestRunOnceChunkSuccess(t *testing.T) {
	rec := chunkRecord()
	records := &fakeRecords{queue: []*entity.TrainingRecord{rec}}
	biller := &fakeBiller{}
	store := &stubStore{}
	d := newTestDispatcher(records, &fakeGuard{user: activeUser()}, biller, &fakeNotifier{}, nil, nil, store)

	claimed, delay := d.RunOnce(context.Background(), entity.TrainingModeChunk)
	if !claimed || delay != 0 {
		t.Fatalf("成功处理应返回 (true, 0)，得到 (%v, %v)", claimed, delay)
	}
	if len(store.inserted) != 1 || store.inserted[0].Q != rec.Q {
		t.Fatalf("向量块未入库: %+v", store.inserted)
	}
	if len(records.deleted) != 1 || records.deleted[0] != rec.ID {
		t.Fatalf("处理完成应删除记录: %v", records.deleted)
	}
	if len(biller.opened) != 1 || biller.opened[0] != entity.BillSourceVector {
		t.Fatalf("应开立 vector 账单: %v", biller.opened)
	}
	if biller.embedTokens != 7 {
		t.Fatalf("应记录向量化用量: %d", biller.embedTokens)
	}
	if len(biller.finalized) != 1 {
		t.Fatalf("成功后账单应结算: %v", biller.finalized)
	}
}

// QA 记录处理后派生 chunk 记录重新入队，原记录删除
func TestRunOnceQADerivesChunks(t *testing.T) {
	rec := qaRecord()
	records := &fakeRecords{queue: []*entity.TrainingRecord{rec}}
	biller := &fakeBiller{}
	chat := &stubChat{content: "Q1: 问一\nA1: 答一\nQ2: 问二\nA2: 答二", window: 16384}
	d := newTestDispatcher(records, &fakeGuard{user: activeUser()}, biller, &fakeNotifier{}, chat, nil, nil)

	claimed, delay := d.RunOnce(context.Background(), entity.TrainingModeQA)
	if !claimed || delay != 0 {
		t.Fatalf("成功处理应返回 (true, 0)，得到 (%v, %v)", claimed, delay)
	}
	if len(records.created) != 2 {
		t.Fatalf("应派生 2 条 chunk 记录，得到 %d", len(records.created))
	}
	for _, derived := range records.created {
		if derived.Mode != entity.TrainingModeChunk {
			t.Fatalf("派生记录应为 chunk 模式: %s", derived.Mode)
		}
		if derived.TeamID != rec.TeamID || derived.CollectionID != rec.CollectionID {
			t.Fatalf("派生记录应继承归属: %+v", derived)
		}
	}
	if len(records.deleted) != 1 || records.deleted[0] != rec.ID {
		t.Fatalf("原 QA 记录应删除: %v", records.deleted)
	}
	if len(biller.opened) != 1 || biller.opened[0] != entity.BillSourceQA {
		t.Fatalf("应开立 qa 账单: %v", biller.opened)
	}
	if biller.chatTokens != 30 {
		t.Fatalf("应累计 prompt+completion 用量，得到 %d", biller.chatTokens)
	}
}

// 余额不足：停放该用户记录并通知，通道不退避
func TestRunOnceInsufficientQuotaParks(t *testing.T) {
	rec := chunkRecord()
	records := &fakeRecords{queue: []*entity.TrainingRecord{rec}, parkedCount: 5}
	biller := &fakeBiller{}
	notifier := &fakeNotifier{}
	d := newTestDispatcher(records, &fakeGuard{err: apperrors.ErrInsufficientQuota}, biller, notifier, nil, nil, nil)

	claimed, delay := d.RunOnce(context.Background(), entity.TrainingModeChunk)
	if !claimed {
		t.Fatalf("应认领到记录")
	}
	if delay != 0 {
		t.Fatalf("余额不足不应退避，得到 %v", delay)
	}
	if records.parkedUser != rec.UserID {
		t.Fatalf("应停放用户记录: %q", records.parkedUser)
	}
	if notifier.calls != 1 || notifier.userID != rec.UserID {
		t.Fatalf("应发送余额不足通知: %+v", notifier)
	}
	if len(records.deleted) != 0 {
		t.Fatalf("停放不应删除记录: %v", records.deleted)
	}
	if len(biller.finalized) != 0 {
		t.Fatalf("失败不应结算账单")
	}
}

// 限流：保留租约等待自然到期，通道退避
func TestRunOnceRateLimitedKeepsLease(t *testing.T) {
	rec := chunkRecord()
	records := &fakeRecords{queue: []*entity.TrainingRecord{rec}}
	biller := &fakeBiller{}
	embedder := &stubEmbedder{err: apperrors.ErrRateLimited}
	d := newTestDispatcher(records, &fakeGuard{user: activeUser()}, biller, &fakeNotifier{}, nil, embedder, nil)

	claimed, delay := d.RunOnce(context.Background(), entity.TrainingModeChunk)
	if !claimed {
		t.Fatalf("应认领到记录")
	}
	if delay != 5*time.Millisecond {
		t.Fatalf("限流应按 RetryDelay 退避，得到 %v", delay)
	}
	if len(records.unlocked) != 0 {
		t.Fatalf("限流应保留租约，不应解锁: %v", records.unlocked)
	}
	if len(records.deleted) != 0 {
		t.Fatalf("限流不应删除记录: %v", records.deleted)
	}
	if len(biller.rolledBack) != 1 {
		t.Fatalf("失败应回滚账单: %v", biller.rolledBack)
	}
}

// 内容不可恢复：删除记录，不通知用户
func TestRunOnceFatalContentDeletes(t *testing.T) {
	rec := qaRecord()
	records := &fakeRecords{queue: []*entity.TrainingRecord{rec}}
	notifier := &fakeNotifier{}
	chat := &stubChat{err: apperrors.ErrMalformedContent, window: 16384}
	d := newTestDispatcher(records, &fakeGuard{user: activeUser()}, &fakeBiller{}, notifier, chat, nil, nil)

	claimed, delay := d.RunOnce(context.Background(), entity.TrainingModeQA)
	if !claimed || delay != 0 {
		t.Fatalf("致命错误应返回 (true, 0)，得到 (%v, %v)", claimed, delay)
	}
	if len(records.deleted) != 1 || records.deleted[0] != rec.ID {
		t.Fatalf("不可处理记录应删除: %v", records.deleted)
	}
	if notifier.calls != 0 {
		t.Fatalf("致命错误不应通知用户")
	}
}

// 瞬时错误：解锁记录立即可重试，通道退避
func TestRunOnceTransientUnlocks(t *testing.T) {
	rec := chunkRecord()
	records := &fakeRecords{queue: []*entity.TrainingRecord{rec}}
	embedder := &stubEmbedder{err: errors.New("connection reset")}
	d := newTestDispatcher(records, &fakeGuard{user: activeUser()}, &fakeBiller{}, &fakeNotifier{}, nil, embedder, nil)

	claimed, delay := d.RunOnce(context.Background(), entity.TrainingModeChunk)
	if !claimed {
		t.Fatalf("应认领到记录")
	}
	if delay != 5*time.Millisecond {
		t.Fatalf("瞬时错误应按 RetryDelay 退避，得到 %v", delay)
	}
	if len(records.unlocked) != 1 || records.unlocked[0] != rec.ID {
		t.Fatalf("瞬时错误应解锁记录: %v", records.unlocked)
	}
}

// 私有密钥用户的密钥透传给模型调用
func TestRunOncePersonalKeyPassthrough(t *testing.T) {
	rec := chunkRecord()
	records := &fakeRecords{queue: []*entity.TrainingRecord{rec}}
	embedder := &stubEmbedder{}
	user := activeUser()
	user.OpenaiKey = "sk-personal"
	d := newTestDispatcher(records, &fakeGuard{user: user}, &fakeBiller{}, &fakeNotifier{}, nil, embedder, nil)

	d.RunOnce(context.Background(), entity.TrainingModeChunk)
	if embedder.gotUserKey != "sk-personal" {
		t.Fatalf("应透传私有密钥，得到 %q", embedder.gotUserKey)
	}
}

func TestResumeUser(t *testing.T) {
	records := &fakeRecords{}
	d := newTestDispatcher(records, &fakeGuard{user: activeUser()}, &fakeBiller{}, &fakeNotifier{}, nil, nil, nil)

	if err := d.ResumeUser(context.Background(), "user-9"); err != nil {
		t.Fatalf("恢复失败: %v", err)
	}
	if records.unparkedUser != "user-9" {
		t.Fatalf("应恢复指定用户的停放记录: %q", records.unparkedUser)
	}
}

// 凭证被拒绝：换次重试也不会成功，直接删除记录
func TestRunOnceProviderAuthDeletes(t *testing.T) {
	rec := chunkRecord()
	records := &fakeRecords{queue: []*entity.TrainingRecord{rec}}
	biller := &fakeBiller{}
	embedder := &stubEmbedder{err: apperrors.ErrProviderAuth}
	d := newTestDispatcher(records, &fakeGuard{user: activeUser()}, biller, &fakeNotifier{}, nil, embedder, nil)

	claimed, delay := d.RunOnce(context.Background(), entity.TrainingModeChunk)
	if !claimed || delay != 0 {
		t.Fatalf("凭证错误应返回 (true, 0)，得到 (%v, %v)", claimed, delay)
	}
	if len(records.deleted) != 1 || records.deleted[0] != rec.ID {
		t.Fatalf("凭证被拒绝应删除记录: %v", records.deleted)
	}
	if len(records.unlocked) != 0 {
		t.Fatalf("凭证被拒绝不应解锁重试: %v", records.unlocked)
	}
	if len(biller.rolledBack) != 1 {
		t.Fatalf("失败应回滚账单: %v", biller.rolledBack)
	}
}

// 带答案的记录问答一起向量化
func TestRunOnceChunkEmbedsAnswer(t *testing.T) {
	rec := chunkRecord()
	records := &fakeRecords{queue: []*entity.TrainingRecord{rec}}
	embedder := &stubEmbedder{}
	d := newTestDispatcher(records, &fakeGuard{user: activeUser()}, &fakeBiller{}, &fakeNotifier{}, nil, embedder, nil)

	d.RunOnce(context.Background(), entity.TrainingModeChunk)
	want := rec.Q + "\n" + rec.A
	if len(embedder.gotTexts) != 1 || embedder.gotTexts[0] != want {
		t.Fatalf("应把问答拼接后向量化，得到 %v", embedder.gotTexts)
	}
}

// 互斥认领：并发争抢单条到期记录，恰好一个通道胜出
func TestRunOnceClaimMutualExclusion(t *testing.T) {
	records := &leaseRecords{}
	records.queue = []*entity.TrainingRecord{chunkRecord()}
	d := newTestDispatcher(records, &fakeGuard{user: activeUser()}, &fakeBiller{}, &fakeNotifier{}, nil, nil, nil)

	const contenders = 16
	var wg sync.WaitGroup
	var claims int64
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, _ := d.RunOnce(context.Background(), entity.TrainingModeChunk)
			if claimed {
				atomic.AddInt64(&claims, 1)
			}
		}()
	}
	wg.Wait()

	if claims != 1 {
		t.Fatalf("应恰好一个认领者胜出，得到 %d", claims)
	}
	if len(records.deleted) != 1 {
		t.Fatalf("记录应被处理一次: %v", records.deleted)
	}
}

// 两条通道并发排空积压，每条记录恰好处理一次
func TestLanesDrainWithoutDoubleProcessing(t *testing.T) {
	records := &leaseRecords{}
	for i := 0; i < 5; i++ {
		records.queue = append(records.queue, chunkRecord())
	}
	store := &stubStore{}
	d := newTestDispatcher(records, &fakeGuard{user: activeUser()}, &fakeBiller{}, &fakeNotifier{}, nil, nil, store)

	var wg sync.WaitGroup
	for lane := 0; lane < 2; lane++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, _ := d.RunOnce(context.Background(), entity.TrainingModeChunk)
				if !claimed {
					return
				}
			}
		}()
	}
	wg.Wait()

	if len(store.inserted) != 5 {
		t.Fatalf("应入库 5 个向量块，得到 %d", len(store.inserted))
	}
	seen := make(map[string]bool, len(records.deleted))
	for _, id := range records.deleted {
		if seen[id] {
			t.Fatalf("记录被重复处理: %s", id)
		}
		seen[id] = true
	}
	if len(seen) != 5 {
		t.Fatalf("应处理全部 5 条记录，得到 %d", len(seen))
	}
}

func TestRunOnceClaimError(t *testing.T) {
	records := &fakeRecords{claimErr: errors.New("db down")}
	d := newTestDispatcher(records, &fakeGuard{user: activeUser()}, &fakeBiller{}, &fakeNotifier{}, nil, nil, nil)

	claimed, delay := d.RunOnce(context.Background(), entity.TrainingModeChunk)
	if claimed {
		t.Fatalf("认领失败不应返回已认领")
	}
	if delay != 5*time.Millisecond {
		t.Fatalf("认领失败应按 RetryDelay 退避，得到 %v", delay)
	}
}
