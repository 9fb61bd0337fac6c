// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"fastgpt-training/internal/domain/entity"
)

// BillItemResponse 账单明细项响应
type BillItemResponse struct {
	ModuleName string `json:"module_name"`
	Amount     int64  `json:"amount"`
	Model      string `json:"model"`
	TokenLen   int    `json:"token_len"`
}

// BillResponse 账单响应
type BillResponse struct {
	ID          string             `json:"id"`
	TeamID      string             `json:"team_id"`
	UserID      string             `json:"user_id"`
	AppName     string             `json:"app_name"`
	Source      string             `json:"source"`
	Items       []BillItemResponse `json:"items"`
	Total       int64              `json:"total"`
	Finalized   bool               `json:"finalized"`
	FinalizedAt string             `json:"finalized_at,omitempty"`
	CreatedAt   string             `json:"created_at"`
}

// BillListResponse 账单列表响应
type BillListResponse struct {
	Bills []*BillResponse `json:"bills"`
}

// ToBillResponse 转换账单实体
func ToBillResponse(b *entity.Bill) *BillResponse {
	items := make([]BillItemResponse, 0, len(b.Items))
	for _, item := range b.Items {
		items = append(items, BillItemResponse{
			ModuleName: item.ModuleName,
			Amount:     item.Amount,
			Model:      item.Model,
			TokenLen:   item.TokenLen,
		})
	}

	resp := &BillResponse{
		ID:        b.ID,
		TeamID:    b.TeamID,
		UserID:    b.UserID,
		AppName:   b.AppName,
		Source:    string(b.Source),
		Items:     items,
		Total:     b.Total,
		Finalized: b.IsFinalized(),
		CreatedAt: b.CreatedAt.Format(time.RFC3339),
	}
	if b.FinalizedAt != nil {
		resp.FinalizedAt = b.FinalizedAt.Format(time.RFC3339)
	}
	return resp
}

// ToBillListResponse 转换账单列表
func ToBillListResponse(bills []*entity.Bill) *BillListResponse {
	out := make([]*BillResponse, 0, len(bills))
	for _, b := range bills {
		out = append(out, ToBillResponse(b))
	}
	return &BillListResponse{Bills: out}
}
