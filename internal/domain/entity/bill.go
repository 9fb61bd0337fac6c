package entity

import (
	"time"

	"github.com/google/uuid"
)

// BillSource 账单来源
type BillSource string

const (
	// BillSourceQA QA 拆分计费
	BillSourceQA BillSource = "qa"
	// BillSourceVector 向量化计费
	BillSourceVector BillSource = "vector"
)

// BillItem 账单明细项
type BillItem struct {
	ModuleName string `json:"module_name"`
	Amount     int64  `json:"amount"`
	Model      string `json:"model"`
	TokenLen   int    `json:"token_len"`
}

// Bill 计费账单，先开立后逐项累加，处理结束时结算或回滚
type Bill struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	TeamID      string     `gorm:"type:uuid;not null;index" json:"team_id"`
	UserID      string     `gorm:"type:uuid;not null;index" json:"user_id"`
	AppName     string     `gorm:"type:varchar(128);not null" json:"app_name"`
	Source      BillSource `gorm:"type:varchar(16);not null" json:"source"`
	Items       []BillItem `gorm:"serializer:json" json:"items"`
	Total       int64      `gorm:"not null;default:0" json:"total"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Bill) TableName() string {
	return "bills"
}

// NewBill 开立账单，明细为空，总额为零
func NewBill(teamID, userID, appName string, source BillSource) *Bill {
	return &Bill{
		ID:      uuid.New().String(),
		TeamID:  teamID,
		UserID:  userID,
		AppName: appName,
		Source:  source,
		Items:   []BillItem{},
	}
}

// AddItem 追加明细项
func (b *Bill) AddItem(item BillItem) {
	b.Items = append(b.Items, item)
}

// SumItems 计算全部明细的金额之和
func (b *Bill) SumItems() int64 {
	var total int64
	for _, item := range b.Items {
		total += item.Amount
	}
	return total
}

// IsFinalized 账单是否已结算
func (b *Bill) IsFinalized() bool {
	return b.FinalizedAt != nil
}
