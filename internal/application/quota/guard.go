// Package quota 提供训练前的配额检查
package quota

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"

	"fastgpt-training/internal/domain/entity"
	"fastgpt-training/internal/domain/repository"
	apperrors "fastgpt-training/pkg/errors"
	"fastgpt-training/pkg/logger"
)

var tracer = otel.Tracer("quota")

// userCacheTTL 用户缓存时间。余额扣减后由台账主动失效，这里只兜底
const userCacheTTL = 30 * time.Second

// UserCache 用户读缓存，带 singleflight 防击穿
type UserCache interface {
	GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error)
}

// Guard 配额守卫。
// 每条训练记录处理前调用：封禁账户直接拒绝；
// 配置了私有模型密钥的用户不占平台额度，跳过余额检查。
type Guard struct {
	users repository.UserRepository
	cache UserCache
}

// NewGuard 创建配额守卫
func NewGuard(users repository.UserRepository, cache UserCache) *Guard {
	return &Guard{users: users, cache: cache}
}

// Check 检查用户是否具备训练资格，通过时返回用户
func (g *Guard) Check(ctx context.Context, userID string) (*entity.User, error) {
	ctx, span := tracer.Start(ctx, "quota.Guard.Check")
	defer span.End()

	user, err := g.loadUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if user == nil || user.ID == "" {
		return nil, apperrors.New(apperrors.CodeNotFound, "user not found").WithDetail(userID)
	}

	if user.IsBanned() {
		return nil, apperrors.ErrAccountBanned
	}

	// 私有密钥用户不消耗平台余额
	if user.HasPersonalKey() {
		return user, nil
	}

	if user.FormattedBalance() <= 0 {
		return nil, apperrors.ErrInsufficientQuota
	}

	return user, nil
}

// loadUser 读取用户，缓存可用时走读穿缓存
func (g *Guard) loadUser(ctx context.Context, userID string) (*entity.User, error) {
	if g.cache == nil {
		return g.users.GetByID(ctx, userID)
	}

	key := "user:" + userID
	data, err := g.cache.GetOrLoadSafe(ctx, key, userCacheTTL, func() (interface{}, error) {
		return g.users.GetByID(ctx, userID)
	})
	if err != nil {
		// 缓存故障时回退直查数据库
		logger.Warn(ctx, "user cache unavailable, falling back to db", "error", err, "user_id", userID)
		return g.users.GetByID(ctx, userID)
	}

	var user entity.User
	if err := json.Unmarshal(data, &user); err != nil {
		return g.users.GetByID(ctx, userID)
	}
	if user.ID == "" {
		return nil, nil
	}
	return &user, nil
}
