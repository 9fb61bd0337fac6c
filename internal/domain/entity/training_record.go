package entity

import (
	"time"

	"github.com/google/uuid"
)

// TrainingMode 训练模式
type TrainingMode string

const (
	// TrainingModeChunk 直接向量化模式
	TrainingModeChunk TrainingMode = "chunk"
	// TrainingModeQA QA 拆分模式
	TrainingModeQA TrainingMode = "qa"
)

// Valid 检查训练模式是否合法
func (m TrainingMode) Valid() bool {
	return m == TrainingModeChunk || m == TrainingModeQA
}

var (
	// UnlockedLockTime 哨兵时间，远在过去，记录立即可被认领
	UnlockedLockTime = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	// ParkedLockTime 哨兵时间，远在未来，余额不足的记录停放于此
	ParkedLockTime = time.Date(2999, 1, 1, 0, 0, 0, 0, time.UTC)
)

// TrainingRecord 训练队列记录，每条代表一个待处理的文本块
type TrainingRecord struct {
	ID           string       `gorm:"type:uuid;primaryKey" json:"id"`
	TeamID       string       `gorm:"type:uuid;not null;index" json:"team_id"`
	UserID       string       `gorm:"type:uuid;not null;index" json:"user_id"`
	DatasetID    string       `gorm:"type:uuid;not null" json:"dataset_id"`
	CollectionID string       `gorm:"type:uuid;not null;index" json:"collection_id"`
	Mode         TrainingMode `gorm:"type:varchar(16);not null;index:idx_training_claim,priority:1" json:"mode"`
	LockTime     time.Time    `gorm:"not null;index:idx_training_claim,priority:2" json:"lock_time"`
	Q            string       `gorm:"type:text;not null" json:"q"`
	A            string       `gorm:"type:text" json:"a"`
	Prompt       string       `gorm:"type:text" json:"prompt"`
	Model        string       `gorm:"type:varchar(64);not null" json:"model"`
	Source       string       `gorm:"type:varchar(255)" json:"source"`
	ExpireAt     time.Time    `gorm:"not null;index" json:"expire_at"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (TrainingRecord) TableName() string {
	return "training_records"
}

// NewTrainingRecord 创建训练记录，lock_time 置于解锁哨兵使其立即可认领
func NewTrainingRecord(teamID, userID, datasetID, collectionID string, mode TrainingMode, q, a, prompt, model, source string, ttl time.Duration) *TrainingRecord {
	now := time.Now()
	return &TrainingRecord{
		ID:           uuid.New().String(),
		TeamID:       teamID,
		UserID:       userID,
		DatasetID:    datasetID,
		CollectionID: collectionID,
		Mode:         mode,
		LockTime:     UnlockedLockTime,
		Q:            q,
		A:            a,
		Prompt:       prompt,
		Model:        model,
		Source:       source,
		ExpireAt:     now.Add(ttl),
		CreatedAt:    now,
	}
}

// IsParked 检查记录是否处于停放状态
func (r *TrainingRecord) IsParked() bool {
	return r.LockTime.Equal(ParkedLockTime)
}
