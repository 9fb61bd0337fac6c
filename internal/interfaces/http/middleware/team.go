// Package middleware 提供 HTTP 中间件
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"fastgpt-training/pkg/logger"
)

// TeamConfig 团队中间件配置
type TeamConfig struct {
	// TeamHeaderName 从 Header 中获取团队 ID 的字段名
	TeamHeaderName string
	// UserHeaderName 从 Header 中获取用户 ID 的字段名
	UserHeaderName string
}

// Team 团队上下文中间件
// 将调用方标识写入请求上下文，供限流、日志和计费归属使用
func Team(cfg TeamConfig) gin.HandlerFunc {
	if cfg.TeamHeaderName == "" {
		cfg.TeamHeaderName = "X-Team-ID"
	}
	if cfg.UserHeaderName == "" {
		cfg.UserHeaderName = "X-User-ID"
	}

	return func(c *gin.Context) {
		teamID := c.GetHeader(cfg.TeamHeaderName)
		userID := c.GetHeader(cfg.UserHeaderName)

		ctx := c.Request.Context()
		if teamID != "" {
			c.Set("team_id", teamID)
			ctx = context.WithValue(ctx, logger.TeamIDKey, teamID)
		}
		if userID != "" {
			c.Set("user_id", userID)
			ctx = context.WithValue(ctx, logger.UserIDKey, userID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetTeamIDFromGin 从 Gin Context 中获取团队 ID
func GetTeamIDFromGin(c *gin.Context) string {
	return c.GetString("team_id")
}

// GetUserIDFromGin 从 Gin Context 中获取用户 ID
func GetUserIDFromGin(c *gin.Context) string {
	return c.GetString("user_id")
}
