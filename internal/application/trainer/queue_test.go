package trainer

import (
	"context"
	"testing"
	"time"

	"fastgpt-training/internal/domain/entity"
)

// fakePurger 向量清理桩
type fakePurger struct {
	teamID       string
	datasetID    string
	collectionID string
	err          error
}

func (p *fakePurger) DeleteByCollection(_ context.Context, teamID, datasetID, collectionID string) error {
	p.teamID = teamID
	p.datasetID = datasetID
	p.collectionID = collectionID
	return p.err
}

func testQueue(records *fakeRecords) *Queue {
	return NewQueue(records, &stubChat{window: 16384}, nil, time.Hour)
}

func TestPushCreatesRecords(t *testing.T) {
	records := &fakeRecords{}
	q := testQueue(records)

	result, err := q.Push(context.Background(), &PushInput{
		TeamID:       "team-1",
		UserID:       "user-1",
		DatasetID:    "ds-1",
		CollectionID: "col-1",
		Mode:         entity.TrainingModeChunk,
		Items: []PushItem{
			{Q: "问题一", A: "答案一"},
			{Q: "问题二"},
		},
	})
	if err != nil {
		t.Fatalf("入队失败: %v", err)
	}
	if result.Inserted != 2 || result.Skipped != 0 {
		t.Fatalf("入队统计错误: %+v", result)
	}
	if len(records.created) != 2 {
		t.Fatalf("应创建 2 条记录，得到 %d", len(records.created))
	}
	if records.created[0].Model != "gpt-3.5-turbo-16k" {
		t.Fatalf("未指定模型时应用默认模型: %q", records.created[0].Model)
	}
	if !records.created[0].LockTime.Equal(entity.UnlockedLockTime) {
		t.Fatalf("新记录应立即可认领: %v", records.created[0].LockTime)
	}
}

// 空问题的块跳过不报错
func TestPushSkipsEmptyQ(t *testing.T) {
	records := &fakeRecords{}
	q := testQueue(records)

	result, err := q.Push(context.Background(), &PushInput{
		TeamID:       "team-1",
		UserID:       "user-1",
		DatasetID:    "ds-1",
		CollectionID: "col-1",
		Mode:         entity.TrainingModeQA,
		Items: []PushItem{
			{Q: "有效内容"},
			{Q: "   "},
			{Q: ""},
		},
	})
	if err != nil {
		t.Fatalf("入队失败: %v", err)
	}
	if result.Inserted != 1 || result.Skipped != 2 {
		t.Fatalf("入队统计错误: %+v", result)
	}
}

func TestPushAllEmptyRejected(t *testing.T) {
	q := testQueue(&fakeRecords{})

	_, err := q.Push(context.Background(), &PushInput{
		TeamID:       "team-1",
		UserID:       "user-1",
		DatasetID:    "ds-1",
		CollectionID: "col-1",
		Mode:         entity.TrainingModeChunk,
		Items:        []PushItem{{Q: "  "}},
	})
	if err == nil {
		t.Fatalf("全部为空应返回参数错误")
	}
}

func TestPushInvalidMode(t *testing.T) {
	q := testQueue(&fakeRecords{})

	_, err := q.Push(context.Background(), &PushInput{
		TeamID:       "team-1",
		UserID:       "user-1",
		DatasetID:    "ds-1",
		CollectionID: "col-1",
		Mode:         entity.TrainingMode("image"),
		Items:        []PushItem{{Q: "内容"}},
	})
	if err == nil {
		t.Fatalf("非法模式应返回参数错误")
	}
}

func TestPushMissingIdentifiers(t *testing.T) {
	q := testQueue(&fakeRecords{})

	_, err := q.Push(context.Background(), &PushInput{
		TeamID: "team-1",
		Mode:   entity.TrainingModeChunk,
		Items:  []PushItem{{Q: "内容"}},
	})
	if err == nil {
		t.Fatalf("缺少标识应返回参数错误")
	}
}

// 清理集合时先删向量再删队列记录
func TestPurgeCollection(t *testing.T) {
	records := &fakeRecords{purgedCount: 3}
	purger := &fakePurger{}
	q := NewQueue(records, &stubChat{window: 16384}, purger, time.Hour)

	result, err := q.PurgeCollection(context.Background(), "team-1", "ds-1", "col-1")
	if err != nil {
		t.Fatalf("清理失败: %v", err)
	}
	if result.RecordsDeleted != 3 {
		t.Fatalf("应删除 3 条记录，得到 %d", result.RecordsDeleted)
	}
	if purger.collectionID != "col-1" || purger.teamID != "team-1" || purger.datasetID != "ds-1" {
		t.Fatalf("向量清理参数错误: %+v", purger)
	}
	if records.purgedColl != "col-1" {
		t.Fatalf("队列记录未清理: %q", records.purgedColl)
	}
}

// 向量清理失败时保留队列记录
func TestPurgeCollectionVectorFailureAborts(t *testing.T) {
	records := &fakeRecords{}
	purger := &fakePurger{err: context.DeadlineExceeded}
	q := NewQueue(records, &stubChat{window: 16384}, purger, time.Hour)

	_, err := q.PurgeCollection(context.Background(), "team-1", "ds-1", "col-1")
	if err == nil {
		t.Fatalf("向量清理失败应中止")
	}
	if records.purgedColl != "" {
		t.Fatalf("中止后不应删除队列记录: %q", records.purgedColl)
	}
}

func TestPurgeCollectionMissingIdentifiers(t *testing.T) {
	q := testQueue(&fakeRecords{})

	if _, err := q.PurgeCollection(context.Background(), "team-1", "", "col-1"); err == nil {
		t.Fatalf("缺少标识应返回参数错误")
	}
}
