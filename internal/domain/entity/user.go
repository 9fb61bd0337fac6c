// Package entity 定义领域实体
package entity

import (
	"time"
)

// UserStatus 用户状态
type UserStatus string

const (
	UserStatusActive UserStatus = "active"
	UserStatusBanned UserStatus = "banned"
)

// balanceUnit 余额存储精度，1 元 = 100000 个最小计费单位
const balanceUnit = 100000

// User 账户实体，余额以最小计费单位整数存储
type User struct {
	ID        string     `gorm:"type:uuid;primaryKey" json:"id"`
	TeamID    string     `gorm:"type:uuid;not null;index" json:"team_id"`
	Username  string     `gorm:"type:varchar(128);not null" json:"username"`
	Balance   int64      `gorm:"not null;default:0" json:"balance"`
	OpenaiKey string     `gorm:"type:varchar(255)" json:"openai_key,omitempty"`
	Status    UserStatus `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// FormattedBalance 返回以元为单位的余额
func (u *User) FormattedBalance() float64 {
	return float64(u.Balance) / balanceUnit
}

// HasPersonalKey 用户是否配置了自己的模型密钥
func (u *User) HasPersonalKey() bool {
	return u.OpenaiKey != ""
}

// IsBanned 账户是否被封禁
func (u *User) IsBanned() bool {
	return u.Status == UserStatusBanned
}
