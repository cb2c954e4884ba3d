package crawlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform/mock"
)

// nopCaller 内存适配器不经过签名客户端
type nopCaller struct{}

func (nopCaller) Call(context.Context, models.Platform, platform.Request) (json.RawMessage, error) {
	return nil, errors.New("内存适配器不应发起HTTP请求")
}

func (nopCaller) Snapshot(_ context.Context, p models.Platform) (models.CookieSnapshot, error) {
	return models.CookieSnapshot{Platform: p}, nil
}

type fakeGate struct {
	ok  bool
	err error
}

func (g fakeGate) IsLoggedIn(context.Context, models.Platform) (bool, error) {
	return g.ok, g.err
}

type memorySink struct {
	mu      sync.Mutex
	batches []models.RecordBatch
	err     error
}

func (s *memorySink) Persist(_ context.Context, b models.RecordBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b)
	return s.err
}

func (s *memorySink) Close() error { return nil }

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestOrchestrator(a platform.Adapter, cfg Config) *Orchestrator {
	if cfg.Defaults.Interval == 0 {
		cfg.Defaults.Interval = time.Microsecond
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return fixedNow }
	}
	return New(platform.NewRegistry(a), nopCaller{}, cfg)
}

func ids(items []models.ContentItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestSearch_CapMidPage(t *testing.T) {
	a := mock.NewAdapter()
	a.Items = mock.GenerateItems(50, "咖啡")
	o := newTestOrchestrator(a, Config{})

	res, err := o.Search(context.Background(), SearchRequest{
		Platform: mock.DefaultPlatform,
		Keywords: []string{"咖啡"},
		Options:  Options{PageSize: 20, MaxItems: 15},
	})
	if err != nil {
		t.Fatalf("搜索失败: %v", err)
	}
	if len(res.Items) != 15 {
		t.Fatalf("期望15条, 得到 %d", len(res.Items))
	}
	if a.SearchCalls() != 1 {
		t.Errorf("期望只请求1页, 得到 %d", a.SearchCalls())
	}
	if res.NextCursor != "2" {
		t.Errorf("期望续爬页码 2, 得到 %q", res.NextCursor)
	}

	first := res.Items[0]
	if first.Platform != mock.DefaultPlatform || first.SourceKeyword != "咖啡" || !first.CrawledAt.Equal(fixedNow) {
		t.Errorf("记录字段未补齐: %+v", first)
	}
}

func TestSearch_CapAtLastItem(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		maxItems   int
		wantCursor string
	}{
		{"最后一页取尽", 20, 20, ""},
		{"还有下一页", 40, 20, "2"},
		{"最后一页剩余条目", 20, 19, "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := mock.NewAdapter()
			a.Items = mock.GenerateItems(tt.total, "kw")
			o := newTestOrchestrator(a, Config{})

			res, err := o.Search(context.Background(), SearchRequest{
				Platform: mock.DefaultPlatform,
				Keywords: []string{"kw"},
				Options:  Options{PageSize: 20, MaxItems: tt.maxItems},
			})
			if err != nil {
				t.Fatalf("搜索失败: %v", err)
			}
			if len(res.Items) != tt.maxItems {
				t.Errorf("期望%d条, 得到 %d", tt.maxItems, len(res.Items))
			}
			if res.NextCursor != tt.wantCursor {
				t.Errorf("期望游标 %q, 得到 %q", tt.wantCursor, res.NextCursor)
			}
		})
	}
}

func TestSearch_Pagination(t *testing.T) {
	a := mock.NewAdapter()
	a.Items = mock.GenerateItems(45, "kw")
	o := newTestOrchestrator(a, Config{})

	res, err := o.Search(context.Background(), SearchRequest{
		Platform: mock.DefaultPlatform,
		Keywords: []string{"kw", " kw ", ""},
	})
	if err != nil {
		t.Fatalf("搜索失败: %v", err)
	}
	if len(res.Items) != 45 {
		t.Errorf("期望45条, 得到 %d", len(res.Items))
	}
	if diff := cmp.Diff([]int{1, 2, 3}, a.SearchPagesRequested()); diff != "" {
		t.Errorf("请求页码不符 (-期望 +得到):\n%s", diff)
	}
	if res.NextCursor != "" {
		t.Errorf("已无更多时游标应为空, 得到 %q", res.NextCursor)
	}
}

func TestSearch_StartPage(t *testing.T) {
	a := mock.NewAdapter()
	a.Items = mock.GenerateItems(30, "kw")
	o := newTestOrchestrator(a, Config{})

	res, err := o.Search(context.Background(), SearchRequest{
		Platform: mock.DefaultPlatform,
		Keywords: []string{"kw"},
		PageNum:  2,
		Options:  Options{PageSize: 10},
	})
	if err != nil {
		t.Fatalf("搜索失败: %v", err)
	}
	if len(res.Items) != 20 || res.Items[0].ID != "item-011" {
		t.Errorf("期望从第11条开始的20条, 得到 %v", ids(res.Items))
	}
}

func TestSearch_PartialError(t *testing.T) {
	a := mock.NewAdapter()
	a.Items = mock.GenerateItems(60, "kw")
	a.FailSearchAfterPages = 2
	sink := &memorySink{}
	o := newTestOrchestrator(a, Config{Sink: sink})

	res, err := o.Search(context.Background(), SearchRequest{
		Platform: mock.DefaultPlatform,
		Keywords: []string{"kw"},
	})

	var pe *models.PartialError
	if !errors.As(err, &pe) {
		t.Fatalf("期望 PartialError, 得到 %v", err)
	}
	if !errors.Is(err, models.ErrHardAPIFailure) {
		t.Errorf("应保留底层错误类别: %v", err)
	}
	if pe.Collected != 40 || pe.Cursor != "3" {
		t.Errorf("期望 Collected=40 Cursor=3, 得到 %d %q", pe.Collected, pe.Cursor)
	}
	if res == nil || len(res.Items) != 40 {
		t.Fatalf("部分结果不应丢弃")
	}
	if len(sink.batches) != 1 || len(sink.batches[0].Items) != 40 {
		t.Errorf("部分结果应写入存储, 得到 %d 个批次", len(sink.batches))
	}
}

func TestSearch_Empty(t *testing.T) {
	a := mock.NewAdapter()
	o := newTestOrchestrator(a, Config{})

	res, err := o.Search(context.Background(), SearchRequest{Platform: mock.DefaultPlatform, Keywords: []string{"无结果"}})
	if err != nil {
		t.Fatalf("空结果不应返回错误: %v", err)
	}
	if len(res.Items) != 0 {
		t.Errorf("期望空结果, 得到 %d 条", len(res.Items))
	}
}

func TestSearch_Validation(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		dayFilter bool
		req       SearchRequest
		target    error
	}{
		{"关键词为空", false, SearchRequest{Platform: mock.DefaultPlatform, Keywords: []string{" "}}, models.ErrValidation},
		{"页码为负", false, SearchRequest{Platform: mock.DefaultPlatform, Keywords: []string{"a"}, PageNum: -1}, models.ErrValidation},
		{"上限为负", false, SearchRequest{Platform: mock.DefaultPlatform, Keywords: []string{"a"}, Options: Options{MaxItems: -1}}, models.ErrValidation},
		{"未知平台", false, SearchRequest{Platform: "nope", Keywords: []string{"a"}}, models.ErrUnknownPlatform},
		{"平台不支持时间范围", false, SearchRequest{Platform: mock.DefaultPlatform, Keywords: []string{"a"}, Since: day}, models.ErrValidation},
		{"策略缺少时间范围", true, SearchRequest{Platform: mock.DefaultPlatform, Keywords: []string{"a"}, DayPolicy: models.DayPolicyPerDay}, models.ErrValidation},
		{"未知策略", true, SearchRequest{Platform: mock.DefaultPlatform, Keywords: []string{"a"}, Since: day, DayPolicy: "weekly"}, models.ErrValidation},
		{"per_day缺少结束日期", true, SearchRequest{Platform: mock.DefaultPlatform, Keywords: []string{"a"}, Since: day, DayPolicy: models.DayPolicyPerDay}, models.ErrValidation},
		{"结束早于开始", true, SearchRequest{Platform: mock.DefaultPlatform, Keywords: []string{"a"}, Since: day, Until: day.Add(-time.Hour)}, models.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := mock.NewAdapter()
			a.DayFilter = tt.dayFilter
			o := newTestOrchestrator(a, Config{})

			_, err := o.Search(context.Background(), tt.req)
			if !errors.Is(err, tt.target) {
				t.Errorf("期望 %v, 得到 %v", tt.target, err)
			}
			if a.SearchCalls() != 0 {
				t.Errorf("校验失败时不应发起请求, 得到 %d 次", a.SearchCalls())
			}
		})
	}
}

func TestSearch_DayPolicy(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	items := mock.GenerateItems(30, "kw")
	for i := range items {
		items[i].PublishedAt = base.AddDate(0, 0, i/10).Add(time.Duration(i%10) * time.Minute)
	}

	tests := []struct {
		name    string
		policy  models.DayPolicy
		opts    Options
		total   int
		perDay  map[string]int
		queries int
	}{
		{
			name:   "per_day每天3条",
			policy: models.DayPolicyPerDay,
			opts:   Options{MaxPerDay: 3},
			total:  9,
			perDay: map[string]int{"2024-05-01": 3, "2024-05-02": 3, "2024-05-03": 3},
		},
		{
			name:   "per_day受总上限约束",
			policy: models.DayPolicyPerDay,
			opts:   Options{MaxPerDay: 3, MaxItems: 5},
			total:  5,
			perDay: map[string]int{"2024-05-01": 3, "2024-05-02": 2},
		},
		{
			name:   "exhaustive只受总上限约束",
			policy: models.DayPolicyExhaustive,
			opts:   Options{MaxPerDay: 3, MaxItems: 25},
			total:  25,
			perDay: map[string]int{"2024-05-01": 10, "2024-05-02": 10, "2024-05-03": 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := mock.NewAdapter()
			a.DayFilter = true
			a.Items = items
			o := newTestOrchestrator(a, Config{})

			res, err := o.Search(context.Background(), SearchRequest{
				Platform:  mock.DefaultPlatform,
				Keywords:  []string{"kw"},
				Since:     base,
				Until:     base.AddDate(0, 0, 3),
				DayPolicy: tt.policy,
				Options:   tt.opts,
			})
			if err != nil {
				t.Fatalf("搜索失败: %v", err)
			}
			if len(res.Items) != tt.total {
				t.Errorf("期望共 %d 条, 得到 %d", tt.total, len(res.Items))
			}
			got := make(map[string]int)
			for _, it := range res.Items {
				got[models.DayKey(it.PublishedAt)]++
			}
			if diff := cmp.Diff(tt.perDay, got); diff != "" {
				t.Errorf("每日条数不符 (-期望 +得到):\n%s", diff)
			}
		})
	}
}

func TestSearch_Gate(t *testing.T) {
	a := mock.NewAdapter()
	a.Items = mock.GenerateItems(5, "kw")

	o := newTestOrchestrator(a, Config{Gate: fakeGate{ok: false}})
	_, err := o.Search(context.Background(), SearchRequest{Platform: mock.DefaultPlatform, Keywords: []string{"kw"}})
	if !errors.Is(err, models.ErrNotLoggedIn) {
		t.Errorf("期望 ErrNotLoggedIn, 得到 %v", err)
	}
	if a.SearchCalls() != 0 {
		t.Errorf("未登录时不应发起请求")
	}

	o = newTestOrchestrator(a, Config{Gate: fakeGate{ok: true}})
	if _, err := o.Search(context.Background(), SearchRequest{Platform: mock.DefaultPlatform, Keywords: []string{"kw"}}); err != nil {
		t.Errorf("已登录时搜索失败: %v", err)
	}
}

func TestSearch_PersistByDay(t *testing.T) {
	a := mock.NewAdapter()
	a.Items = mock.GenerateItems(3, "kw")
	sink := &memorySink{}
	o := newTestOrchestrator(a, Config{Sink: sink})

	if _, err := o.Search(context.Background(), SearchRequest{Platform: mock.DefaultPlatform, Keywords: []string{"kw"}}); err != nil {
		t.Fatalf("搜索失败: %v", err)
	}
	if len(sink.batches) != 1 {
		t.Fatalf("期望1个批次, 得到 %d", len(sink.batches))
	}
	b := sink.batches[0]
	if b.Platform != mock.DefaultPlatform || b.Kind != models.OperationSearch || b.Day != "2024-05-01" || len(b.Items) != 3 {
		t.Errorf("批次分区不正确: %+v", b)
	}

	sink.err = errors.New("磁盘已满")
	res, err := o.Search(context.Background(), SearchRequest{Platform: mock.DefaultPlatform, Keywords: []string{"kw"}})
	if err == nil || len(res.Items) != 3 {
		t.Errorf("存储失败时应返回结果和错误, 得到 %v", err)
	}
}

func TestDetail(t *testing.T) {
	a := mock.NewAdapter()
	a.Items = mock.GenerateItems(5, "kw")
	o := newTestOrchestrator(a, Config{})

	res, err := o.Detail(context.Background(), DetailRequest{
		Platform: mock.DefaultPlatform,
		IDs:      []string{"item-002", "item-001", "item-002", "https://p1.test/item/item-003?token=t", "nope"},
		Options:  Options{Concurrency: 3},
	})
	if err != nil {
		t.Fatalf("获取详情失败: %v", err)
	}
	if diff := cmp.Diff([]string{"item-002", "item-001", "item-003"}, ids(res.Items)); diff != "" {
		t.Errorf("结果顺序不符 (-期望 +得到):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"nope"}, res.Missing); diff != "" {
		t.Errorf("Missing不符 (-期望 +得到):\n%s", diff)
	}
	if res.Items[2].XsecToken != "t" {
		t.Errorf("URL中的令牌应传给适配器, 得到 %q", res.Items[2].XsecToken)
	}
}

func TestDetail_PartialError(t *testing.T) {
	a := mock.NewAdapter()
	a.Items = mock.GenerateItems(3, "kw")
	a.FailDetail["item-002"] = &models.SoftRiskControlError{Platform: mock.DefaultPlatform, Endpoint: "/detail", Attempts: 4}
	o := newTestOrchestrator(a, Config{})

	res, err := o.Detail(context.Background(), DetailRequest{
		Platform: mock.DefaultPlatform,
		IDs:      []string{"item-001", "item-002", "item-003"},
		Options:  Options{Concurrency: 1},
	})

	var pe *models.PartialError
	if !errors.As(err, &pe) || !errors.Is(err, models.ErrSoftRiskControl) {
		t.Fatalf("期望包装风控错误的 PartialError, 得到 %v", err)
	}
	if diff := cmp.Diff([]string{"item-001"}, ids(res.Items)); diff != "" {
		t.Errorf("部分结果不符 (-期望 +得到):\n%s", diff)
	}
	if len(res.Missing) != 0 {
		t.Errorf("未处理的ID不应计入Missing: %v", res.Missing)
	}
}

func TestDetail_Progress(t *testing.T) {
	a := mock.NewAdapter()
	a.Items = mock.GenerateItems(6, "kw")
	o := newTestOrchestrator(a, Config{})

	var (
		mu    sync.Mutex
		calls [][2]int
	)
	_, err := o.Detail(context.Background(), DetailRequest{
		Platform: mock.DefaultPlatform,
		IDs:      ids(a.Items),
		Options: Options{Concurrency: 3, OnProgress: func(done, total int) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, [2]int{done, total})
		}},
	})
	if err != nil {
		t.Fatalf("获取详情失败: %v", err)
	}

	if len(calls) != 6 {
		t.Fatalf("期望6次进度回调, 得到 %d", len(calls))
	}
	for i, c := range calls {
		if c[0] != i+1 || c[1] != 6 {
			t.Errorf("第%d次回调期望 (%d,6), 得到 %v", i, i+1, c)
		}
	}
}

// trackingAdapter 记录详情请求的最大并发数
type trackingAdapter struct {
	*mock.Adapter
	inflight atomic.Int32
	peak     atomic.Int32
}

func (a *trackingAdapter) Detail(ctx context.Context, c platform.Caller, ref platform.ItemRef) (*models.ContentItem, error) {
	n := a.inflight.Add(1)
	defer a.inflight.Add(-1)
	for {
		p := a.peak.Load()
		if n <= p || a.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return a.Adapter.Detail(ctx, c, ref)
}

func TestDetail_ConcurrencyLimit(t *testing.T) {
	a := &trackingAdapter{Adapter: mock.NewAdapter()}
	a.Items = mock.GenerateItems(12, "kw")
	o := newTestOrchestrator(a, Config{})

	res, err := o.Detail(context.Background(), DetailRequest{
		Platform: mock.DefaultPlatform,
		IDs:      ids(a.Items),
		Options:  Options{Concurrency: 2},
	})
	if err != nil {
		t.Fatalf("获取详情失败: %v", err)
	}
	if len(res.Items) != 12 {
		t.Errorf("期望12条, 得到 %d", len(res.Items))
	}
	if peak := a.peak.Load(); peak > 2 {
		t.Errorf("并发数超过上限: %d", peak)
	}
}

func TestDetail_Interval(t *testing.T) {
	a := mock.NewAdapter()
	a.Items = mock.GenerateItems(3, "kw")
	o := newTestOrchestrator(a, Config{})

	start := time.Now()
	_, err := o.Detail(context.Background(), DetailRequest{
		Platform: mock.DefaultPlatform,
		IDs:      ids(a.Items),
		Options:  Options{Concurrency: 3, Interval: 30 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("获取详情失败: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("3次请求至少间隔60ms, 实际 %v", elapsed)
	}
}

func TestCreatorFeed(t *testing.T) {
	a := mock.NewAdapter()
	feed := mock.GenerateItems(25, "feed")
	a.Feeds["creator-1"] = feed
	a.Feeds["creator-2"] = feed[:4]
	a.Creators["creator-1"] = models.Creator{ID: "creator-1", Nickname: "测试作者"}
	o := newTestOrchestrator(a, Config{})
	ctx := context.Background()

	t.Run("必须指定模式", func(t *testing.T) {
		_, err := o.CreatorFeed(ctx, CreatorRequest{Platform: mock.DefaultPlatform, CreatorIDs: []string{"creator-1"}})
		if !errors.Is(err, models.ErrValidation) {
			t.Errorf("期望 ValidationError, 得到 %v", err)
		}
	})

	t.Run("feed模式", func(t *testing.T) {
		res, err := o.CreatorFeed(ctx, CreatorRequest{
			Platform:   mock.DefaultPlatform,
			CreatorIDs: []string{"creator-1", "creator-2"},
			Mode:       models.CreatorModeFeed,
			Options:    Options{MaxItems: 15},
		})
		if err != nil {
			t.Fatalf("采集失败: %v", err)
		}
		if len(res.Items) != 19 {
			t.Errorf("期望 15+4 条, 得到 %d", len(res.Items))
		}
		if len(res.Creators) != 0 {
			t.Errorf("feed模式不应返回资料")
		}
	})

	t.Run("profile模式", func(t *testing.T) {
		res, err := o.CreatorFeed(ctx, CreatorRequest{
			Platform:   mock.DefaultPlatform,
			CreatorIDs: []string{"creator-1", "ghost"},
			Mode:       models.CreatorModeProfile,
		})
		if err != nil {
			t.Fatalf("采集失败: %v", err)
		}
		want := []models.Creator{{Platform: mock.DefaultPlatform, ID: "creator-1", Nickname: "测试作者", CrawledAt: fixedNow}}
		if diff := cmp.Diff(want, res.Creators); diff != "" {
			t.Errorf("资料不符 (-期望 +得到):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"ghost"}, res.Missing); diff != "" {
			t.Errorf("Missing不符 (-期望 +得到):\n%s", diff)
		}
	})
}

func TestComments_CapAccounting(t *testing.T) {
	tests := []struct {
		name      string
		recurse   bool
		countSubs bool
		total     int
		top       int
	}{
		{"不展开子评论", false, false, 6, 6},
		{"展开且子评论不计数", true, false, 24, 6},
		{"展开且子评论计数", true, true, 6, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := mock.NewAdapter()
			a.CommentPageSize = 5
			a.GenerateComments("item-001", 8, 3)
			o := newTestOrchestrator(a, Config{})

			res, err := o.Comments(context.Background(), CommentsRequest{
				Platform:         mock.DefaultPlatform,
				IDs:              []string{"item-001", "item-002"},
				Recurse:          tt.recurse,
				CountSubComments: tt.countSubs,
				Options:          Options{MaxComments: 6},
			})
			if err != nil {
				t.Fatalf("获取评论失败: %v", err)
			}

			list := res.Comments["item-001"]
			if len(list) != tt.total {
				t.Errorf("期望共 %d 条, 得到 %d", tt.total, len(list))
			}
			top := 0
			for _, c := range list {
				if !c.IsSubComment() {
					top++
				}
				if c.ItemID != "item-001" {
					t.Errorf("评论缺少内容ID: %+v", c)
				}
			}
			if top != tt.top {
				t.Errorf("期望一级评论 %d 条, 得到 %d", tt.top, top)
			}

			empty, ok := res.Comments["item-002"]
			if !ok || len(empty) != 0 {
				t.Errorf("没有评论的内容应对应空列表, 得到 %v (存在=%v)", empty, ok)
			}
		})
	}
}

func TestComments_SubCommentOrder(t *testing.T) {
	a := mock.NewAdapter()
	a.GenerateComments("item-001", 2, 2)
	o := newTestOrchestrator(a, Config{})

	res, err := o.Comments(context.Background(), CommentsRequest{
		Platform: mock.DefaultPlatform,
		IDs:      []string{"item-001"},
		Recurse:  true,
	})
	if err != nil {
		t.Fatalf("获取评论失败: %v", err)
	}

	var got []string
	for _, c := range res.Comments["item-001"] {
		got = append(got, c.ID)
	}
	want := []string{
		"item-001-c01", "item-001-c01-s01", "item-001-c01-s02",
		"item-001-c02", "item-001-c02-s01", "item-001-c02-s02",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("子评论应紧跟所属楼层 (-期望 +得到):\n%s", diff)
	}
	if res.Total() != 6 {
		t.Errorf("期望总数6, 得到 %d", res.Total())
	}
}

func TestComments_Cancel(t *testing.T) {
	a := mock.NewAdapter()
	for i := 1; i <= 5; i++ {
		a.GenerateComments(fmt.Sprintf("item-%03d", i), 3, 0)
	}
	o := newTestOrchestrator(a, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := o.Comments(ctx, CommentsRequest{
		Platform: mock.DefaultPlatform,
		IDs:      []string{"item-001", "item-002", "item-003"},
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("期望 context.Canceled, 得到 %v", err)
	}
	if res == nil {
		t.Fatal("取消时也应返回结果对象")
	}
}
