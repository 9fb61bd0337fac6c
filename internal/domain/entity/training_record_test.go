package entity

import (
	"testing"
	"time"
)

func TestNewTrainingRecordClaimable(t *testing.T) {
	rec := NewTrainingRecord("team-1", "user-1", "ds-1", "col-1",
		TrainingModeChunk, "q", "a", "", "gpt-4", "doc.md", time.Hour)

	if rec.ID == "" {
		t.Fatalf("应生成记录 ID")
	}
	if !rec.LockTime.Equal(UnlockedLockTime) {
		t.Fatalf("新记录应立即可认领: %v", rec.LockTime)
	}
	if rec.IsParked() {
		t.Fatalf("新记录不应处于停放状态")
	}
	if !rec.ExpireAt.After(time.Now()) {
		t.Fatalf("过期时间应在未来: %v", rec.ExpireAt)
	}
}

func TestIsParked(t *testing.T) {
	rec := NewTrainingRecord("team-1", "user-1", "ds-1", "col-1",
		TrainingModeQA, "q", "", "", "gpt-4", "", time.Hour)
	rec.LockTime = ParkedLockTime
	if !rec.IsParked() {
		t.Fatalf("停放哨兵时间应判定为停放")
	}
}

func TestTrainingModeValid(t *testing.T) {
	if !TrainingModeChunk.Valid() || !TrainingModeQA.Valid() {
		t.Fatalf("内置模式应合法")
	}
	if TrainingMode("image").Valid() {
		t.Fatalf("未知模式应不合法")
	}
}
