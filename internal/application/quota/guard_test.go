package quota

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"fastgpt-training/internal/domain/entity"
	apperrors "fastgpt-training/pkg/errors"
)

// fakeUsers 用户仓储桩
type fakeUsers struct {
	user     *entity.User
	err      error
	getCalls int
}

func (f *fakeUsers) GetByID(context.Context, string) (*entity.User, error) {
	f.getCalls++
	return f.user, f.err
}

func (f *fakeUsers) DeductBalance(context.Context, string, int64) error {
	return nil
}

// passthroughCache 直接执行 loader 并序列化结果的缓存桩
type passthroughCache struct {
	err   error
	calls int
}

func (c *passthroughCache) GetOrLoadSafe(_ context.Context, _ string, _ time.Duration, loader func() (interface{}, error)) ([]byte, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	v, err := loader()
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func TestCheckActiveUserPasses(t *testing.T) {
	users := &fakeUsers{user: &entity.User{ID: "user-1", Balance: 100000, Status: entity.UserStatusActive}}
	g := NewGuard(users, nil)

	user, err := g.Check(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("正常用户应通过: %v", err)
	}
	if user.ID != "user-1" {
		t.Fatalf("应返回用户: %+v", user)
	}
}

func TestCheckBannedUserRejected(t *testing.T) {
	users := &fakeUsers{user: &entity.User{ID: "user-1", Balance: 100000, Status: entity.UserStatusBanned}}
	g := NewGuard(users, nil)

	_, err := g.Check(context.Background(), "user-1")
	if !apperrors.IsFatalContent(err) {
		t.Fatalf("封禁账户应返回不可恢复错误: %v", err)
	}
}

func TestCheckZeroBalanceRejected(t *testing.T) {
	users := &fakeUsers{user: &entity.User{ID: "user-1", Balance: 0, Status: entity.UserStatusActive}}
	g := NewGuard(users, nil)

	_, err := g.Check(context.Background(), "user-1")
	if !apperrors.IsInsufficientQuota(err) {
		t.Fatalf("零余额应返回额度不足: %v", err)
	}
}

// 私有密钥用户跳过余额检查
func TestCheckPersonalKeyBypassesBalance(t *testing.T) {
	users := &fakeUsers{user: &entity.User{ID: "user-1", Balance: -100, OpenaiKey: "sk-own", Status: entity.UserStatusActive}}
	g := NewGuard(users, nil)

	user, err := g.Check(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("私有密钥用户应通过: %v", err)
	}
	if !user.HasPersonalKey() {
		t.Fatalf("应返回带密钥的用户")
	}
}

func TestCheckMissingUser(t *testing.T) {
	g := NewGuard(&fakeUsers{}, nil)

	_, err := g.Check(context.Background(), "no-such-user")
	appErr := apperrors.AsAppError(err)
	if appErr == nil || appErr.Code != apperrors.CodeNotFound {
		t.Fatalf("缺失用户应返回 not found: %v", err)
	}
}

func TestCheckUsesCache(t *testing.T) {
	users := &fakeUsers{user: &entity.User{ID: "user-1", Balance: 100000, Status: entity.UserStatusActive}}
	cache := &passthroughCache{}
	g := NewGuard(users, cache)

	if _, err := g.Check(context.Background(), "user-1"); err != nil {
		t.Fatalf("检查失败: %v", err)
	}
	if cache.calls != 1 {
		t.Fatalf("应走读穿缓存: %d", cache.calls)
	}
}

// 缓存故障时回退直查数据库
func TestCheckCacheFailureFallsBackToDB(t *testing.T) {
	users := &fakeUsers{user: &entity.User{ID: "user-1", Balance: 100000, Status: entity.UserStatusActive}}
	cache := &passthroughCache{err: errors.New("redis down")}
	g := NewGuard(users, cache)

	user, err := g.Check(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("缓存故障应回退数据库: %v", err)
	}
	if user == nil || users.getCalls == 0 {
		t.Fatalf("应直查数据库")
	}
}
