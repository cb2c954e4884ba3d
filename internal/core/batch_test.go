package core

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/RecoveryAshes/MediaCrawler/internal/crawlers"
	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform/mock"
)

type nopCaller struct{}

func (nopCaller) Call(context.Context, models.Platform, platform.Request) (json.RawMessage, error) {
	return nil, errors.New("不应发起HTTP请求")
}

func (nopCaller) Snapshot(_ context.Context, p models.Platform) (models.CookieSnapshot, error) {
	return models.CookieSnapshot{Platform: p}, nil
}

func newBatchRunner(t *testing.T, continueOnErr bool) (*BatchRunner, *[]time.Duration) {
	t.Helper()
	a := mock.NewAdapter()
	a.Items = mock.GenerateItems(30, "咖啡")
	a.FailDetail["item-002"] = &models.HardAPIError{Platform: mock.DefaultPlatform, Endpoint: "/detail", StatusCode: 500}
	a.GenerateComments("item-001", 2, 1)

	orch := crawlers.New(platform.NewRegistry(a), nopCaller{}, crawlers.Config{
		Defaults: crawlers.Options{Interval: time.Microsecond},
	})
	br := NewBatchRunner(orch, time.Second, continueOnErr, false)

	var slept []time.Duration
	br.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return br, &slept
}

func batchTasks() []BatchTask {
	return []BatchTask{
		{Name: "搜索", Platform: "p1", Operation: TaskSearch, Keywords: []string{"咖啡"}, Limit: 5},
		{Platform: "p1", Operation: TaskDetail, IDs: []string{"item-001", "item-002"}, Concurrency: 1},
		{Platform: "p1", Operation: TaskComments, IDs: []string{"item-001"}, RecurseSubComments: true},
	}
}

func TestBatchRunner_ContinueOnError(t *testing.T) {
	br, slept := newBatchRunner(t, true)
	summary := br.Run(context.Background(), batchTasks())

	if summary.TotalTasks != 3 || summary.SuccessCount != 2 || summary.FailCount != 1 || summary.SkippedCount != 0 {
		t.Fatalf("摘要不符: %+v", summary)
	}
	// 5 条搜索 + 1 条详情(部分结果) + 2 条一级评论 + 2 条子评论
	if summary.TotalRecords != 5+1+4 {
		t.Errorf("期望 10 条记录, 得到 %d", summary.TotalRecords)
	}

	failed := summary.Results[1]
	if failed.Success || failed.Task != "#2 p1/detail" || !strings.Contains(failed.Error, "500") {
		t.Errorf("失败任务记录不符: %+v", failed)
	}
	if len(*slept) != 2 {
		t.Errorf("任务之间应等待2次, 得到 %d", len(*slept))
	}
}

func TestBatchRunner_StopOnError(t *testing.T) {
	br, _ := newBatchRunner(t, false)
	summary := br.Run(context.Background(), batchTasks())

	if summary.FailCount != 1 || len(summary.Results) != 2 || summary.SkippedCount != 1 {
		t.Errorf("失败后应停止, 摘要: %+v", summary)
	}
}

func TestBatchRunner_Canceled(t *testing.T) {
	br, _ := newBatchRunner(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	br.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	summary := br.Run(ctx, batchTasks())
	if len(summary.Results) != 1 || summary.SkippedCount != 2 {
		t.Errorf("取消后剩余任务应计为跳过, 摘要: %+v", summary)
	}
}

func TestLoadBatchFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tasks.yaml", `
delay: 2s
tasks:
  - name: 咖啡搜索
    platform: xhs
    operation: search
    keywords: [咖啡, 拿铁]
    since: "2024-05-01"
    until: "2024-05-03"
    day_policy: per_day
    max_per_day: 10
  - platform: bilibili
    operation: comments
    ids: [BV1xx411c7mD]
    count_sub_comments: true
    interval: 3s
`)

	file, err := LoadBatchFile(path)
	if err != nil {
		t.Fatalf("加载任务文件失败: %v", err)
	}
	if file.Delay != 2*time.Second || !file.ContinueOnError {
		t.Errorf("全局参数不符: delay=%s continue=%v", file.Delay, file.ContinueOnError)
	}
	if len(file.Tasks) != 2 {
		t.Fatalf("期望2个任务, 得到 %d", len(file.Tasks))
	}
	search := file.Tasks[0]
	if search.Label(0) != "咖啡搜索" || len(search.Keywords) != 2 || search.MaxPerDay != 10 || search.DayPolicy != "per_day" {
		t.Errorf("搜索任务不符: %+v", search)
	}
	comments := file.Tasks[1]
	if comments.CountSubComments == nil || !*comments.CountSubComments || comments.Interval != 3*time.Second {
		t.Errorf("评论任务不符: %+v", comments)
	}

	bad := writeFile(t, dir, "bad.yaml", "tasks:\n  - platform: xhs\n    operation: download\n")
	if _, err := LoadBatchFile(bad); !errors.Is(err, models.ErrValidation) {
		t.Errorf("未知操作期望校验错误, 得到 %v", err)
	}
	empty := writeFile(t, dir, "empty.yaml", "delay: 1s\n")
	if _, err := LoadBatchFile(empty); !errors.Is(err, models.ErrValidation) {
		t.Errorf("空任务列表期望校验错误, 得到 %v", err)
	}
}

func TestSaveSummary(t *testing.T) {
	dir := t.TempDir()
	summary := &BatchSummary{BatchID: "b1", TotalTasks: 1, SuccessCount: 1, Results: []BatchResult{{Task: "t", Success: true}}}

	path, err := SaveSummary(dir, summary)
	if err != nil {
		t.Fatalf("保存摘要失败: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取摘要失败: %v", err)
	}
	var got BatchSummary
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("摘要不是合法JSON: %v", err)
	}
	if got.BatchID != "b1" || len(got.Results) != 1 {
		t.Errorf("摘要内容不符: %+v", got)
	}
}
