package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform"
	"github.com/RecoveryAshes/MediaCrawler/internal/store"
)

// Gate 采集前的登录态检查, 通常由登录服务实现
type Gate interface {
	IsLoggedIn(ctx context.Context, p models.Platform) (bool, error)
}

// Config 编排器配置
type Config struct {
	// Defaults 调用方未指定时使用的参数
	Defaults Options
	// Sink 采集结果写入的存储(可选)
	Sink store.Sink
	// Gate 登录态检查(可选), 未登录时操作直接返回 ErrNotLoggedIn
	Gate Gate
	Now  func() time.Time
}

// Orchestrator 采集编排器
// 职责: 分页、上限控制、请求间隔、按内容并发以及结果落盘
// 每次调用的参数独立, 不同调用之间不共享可变状态
type Orchestrator struct {
	registry *platform.Registry
	caller   platform.Caller
	defaults Options
	sink     store.Sink
	gate     Gate
	now      func() time.Time
}

// New 创建编排器
func New(registry *platform.Registry, caller platform.Caller, cfg Config) *Orchestrator {
	defaults, err := mergeOptions(cfg.Defaults, DefaultOptions())
	if err != nil {
		log.Warn().Err(err).Msg("默认采集参数无效, 使用内置默认值")
		defaults = DefaultOptions()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		registry: registry,
		caller:   caller,
		defaults: defaults,
		sink:     cfg.Sink,
		gate:     cfg.Gate,
		now:      now,
	}
}

// run 单次操作的运行时状态
type run struct {
	adapter platform.Adapter
	opts    Options
	limiter *rate.Limiter
}

// prepare 解析平台与参数, 此时尚未发出任何请求
func (o *Orchestrator) prepare(p models.Platform, call Options) (*run, error) {
	adapter, err := o.registry.Get(p)
	if err != nil {
		return nil, err
	}
	opts, err := mergeOptions(call, o.defaults)
	if err != nil {
		return nil, err
	}
	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}
	return &run{
		adapter: adapter,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// checkLogin 调用 Gate, 未配置时直接放行
func (o *Orchestrator) checkLogin(ctx context.Context, p models.Platform) error {
	if o.gate == nil {
		return nil
	}
	ok, err := o.gate.IsLoggedIn(ctx, p)
	if err != nil {
		return fmt.Errorf("检查登录态失败: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrNotLoggedIn, p)
	}
	return nil
}

// wait 遵守请求间隔
func (r *run) wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// partial 把中途错误包装为 PartialError
func (o *Orchestrator) partial(collected int, cursor string, cause error) error {
	if cause == nil {
		return nil
	}
	var pe *models.PartialError
	if errors.As(cause, &pe) {
		return cause
	}
	return &models.PartialError{
		Collected: collected,
		Cursor:    cursor,
		At:        o.now(),
		Cause:     cause,
	}
}

// stampItem 补齐记录上的平台与采集时间
func (o *Orchestrator) stampItem(p models.Platform, it *models.ContentItem) {
	if it.Platform == "" {
		it.Platform = p
	}
	if it.CrawledAt.IsZero() {
		it.CrawledAt = o.now()
	}
}

func (o *Orchestrator) stampComment(p models.Platform, c *models.Comment) {
	if c.Platform == "" {
		c.Platform = p
	}
	if c.CrawledAt.IsZero() {
		c.CrawledAt = o.now()
	}
}

func (o *Orchestrator) stampCreator(p models.Platform, c *models.Creator) {
	if c.Platform == "" {
		c.Platform = p
	}
	if c.CrawledAt.IsZero() {
		c.CrawledAt = o.now()
	}
}

// persist 按采集日分组写入存储
// 部分结果同样写入, 存储失败不影响已返回的记录
func (o *Orchestrator) persist(ctx context.Context, p models.Platform, kind models.OperationKind,
	items []models.ContentItem, creators []models.Creator, comments []models.Comment) error {
	if o.sink == nil {
		return nil
	}

	batches := make(map[string]*models.RecordBatch)
	batch := func(t time.Time) *models.RecordBatch {
		day := models.DayKey(t)
		b, ok := batches[day]
		if !ok {
			b = &models.RecordBatch{Platform: p, Kind: kind, Day: day}
			batches[day] = b
		}
		return b
	}
	for _, it := range items {
		b := batch(it.CrawledAt)
		b.Items = append(b.Items, it)
	}
	for _, c := range creators {
		b := batch(c.CrawledAt)
		b.Creators = append(b.Creators, c)
	}
	for _, c := range comments {
		b := batch(c.CrawledAt)
		b.Comments = append(b.Comments, c)
	}

	days := make([]string, 0, len(batches))
	for day := range batches {
		days = append(days, day)
	}
	sort.Strings(days)

	// 调用方取消时仍写入已采集的记录
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for _, day := range days {
		if err := o.sink.Persist(ctx, *batches[day]); err != nil {
			errs = append(errs, fmt.Errorf("保存 %s/%s/%s 失败: %w", p, kind, day, err))
		}
	}
	return errors.Join(errs...)
}

// finish 合并采集错误与存储错误
func finish(opErr, persistErr error) error {
	if persistErr == nil {
		return opErr
	}
	if opErr == nil {
		return persistErr
	}
	return errors.Join(opErr, persistErr)
}

// enqueue 解析并去重ID列表, 解析失败返回 ValidationError
func enqueue(ids []string, field string, parse func(string) (platform.ItemRef, error)) (*IDQueue, error) {
	if len(ids) == 0 {
		return nil, &models.ValidationError{Field: field, Reason: "ID列表不能为空"}
	}
	q := NewIDQueue(len(ids))
	for _, raw := range ids {
		ref, err := parse(raw)
		if err != nil {
			return nil, err
		}
		if _, err := q.Push(strings.TrimSpace(raw), ref); err != nil {
			return nil, fmt.Errorf("ID入队失败: %w", err)
		}
	}
	q.Close()
	return q, nil
}

// creatorRef 解析创作者ID, 适配器支持时接受主页URL
func creatorRef(adapter platform.Adapter) func(string) (platform.ItemRef, error) {
	return func(raw string) (platform.ItemRef, error) {
		if parser, ok := adapter.(platform.CreatorIDParser); ok {
			id, err := parser.ParseCreatorID(raw)
			if err != nil {
				return platform.ItemRef{}, err
			}
			return platform.ItemRef{ID: id}, nil
		}
		id := strings.TrimSpace(raw)
		if id == "" {
			return platform.ItemRef{}, &models.ValidationError{Field: "creator_ids", Reason: "创作者ID不能为空"}
		}
		return platform.ItemRef{ID: id}, nil
	}
}

// forEach 以 opts.Concurrency 个worker处理队列
// 第一个错误会取消其余worker并返回; 未处理的ID保持未访问状态
func (r *run) forEach(parent context.Context, q *IDQueue, fn func(ctx context.Context, item queueItem) error) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	total := q.Len()
	workers := r.opts.Concurrency
	if workers > total {
		workers = total
	}

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
		progress sync.Mutex
		done     int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, ok := q.Pop(ctx)
				if !ok {
					return
				}
				if err := fn(ctx, item); err != nil {
					once.Do(func() {
						firstErr = err
						cancel()
					})
					return
				}
				q.MarkVisited(item.Ref.ID)

				progress.Lock()
				done++
				if r.opts.OnProgress != nil {
					r.opts.OnProgress(done, total)
				}
				progress.Unlock()
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	// 外部取消时队列可能没有取完
	if q.PendingCount() > 0 {
		if err := parent.Err(); err != nil {
			return err
		}
	}
	return nil
}
