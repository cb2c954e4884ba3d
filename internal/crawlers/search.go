package crawlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform"
)

// SearchRequest 关键词搜索
type SearchRequest struct {
	Platform models.Platform
	Keywords []string
	// PageNum 起始页, 默认1
	PageNum int
	Sort    string
	Type    string

	// Since/Until 发布时间范围 [Since, Until), 需平台支持
	Since time.Time
	Until time.Time
	// DayPolicy 指定时间范围时的策略, 默认 exhaustive
	DayPolicy models.DayPolicy

	Options Options
}

// SearchResult 搜索结果
type SearchResult struct {
	Items []models.ContentItem `json:"items"`
	// NextCursor 单个关键词时的续爬页码, 为空表示已无更多
	NextCursor string `json:"next_cursor,omitempty"`
	// Cursors 每个关键词的续爬页码
	Cursors map[string]string `json:"cursors,omitempty"`
}

// Search 按关键词分页搜索
// MaxItems 对每个关键词单独计数, 达到上限时即使在页中间也立即停止
func (o *Orchestrator) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	r, err := o.prepare(req.Platform, req.Options)
	if err != nil {
		return nil, err
	}
	keywords, err := normalizeKeywords(req.Keywords)
	if err != nil {
		return nil, err
	}
	if req.PageNum < 0 {
		return nil, &models.ValidationError{Field: "page_num", Value: strconv.Itoa(req.PageNum), Reason: "页码不能为负数"}
	}
	if req.PageNum == 0 {
		req.PageNum = 1
	}
	policy, err := validateDayRange(r.adapter, req)
	if err != nil {
		return nil, err
	}
	if err := o.checkLogin(ctx, req.Platform); err != nil {
		return nil, err
	}

	result := &SearchResult{Cursors: make(map[string]string, len(keywords))}
	var opErr error
	for _, kw := range keywords {
		var cursor string
		before := len(result.Items)
		if policy == models.DayPolicyPerDay {
			cursor, err = o.searchPerDay(ctx, r, req, kw, &result.Items)
		} else {
			q := o.baseQuery(r, req, kw)
			q.Page = req.PageNum
			q.Since, q.Until = req.Since, req.Until
			cursor, err = o.searchKeyword(ctx, r, q, r.opts.MaxItems, make(map[string]bool), &result.Items)
		}
		if cursor != "" {
			result.Cursors[kw] = cursor
		}

		log.Info().
			Str("platform", req.Platform.String()).
			Str("keyword", kw).
			Int("items", len(result.Items)-before).
			Str("cursor", cursor).
			Msg("关键词搜索完成")

		if err != nil {
			opErr = o.partial(len(result.Items), cursor, err)
			break
		}
	}
	if len(keywords) == 1 {
		result.NextCursor = result.Cursors[keywords[0]]
	}

	persistErr := o.persist(ctx, req.Platform, models.OperationSearch, result.Items, nil, nil)
	return result, finish(opErr, persistErr)
}

func (o *Orchestrator) baseQuery(r *run, req SearchRequest, kw string) platform.SearchQuery {
	q := platform.SearchQuery{
		Keyword:  kw,
		PageSize: r.opts.PageSize,
		Sort:     req.Sort,
		Type:     req.Type,
	}
	if s, ok := r.adapter.(platform.SearchSessioner); ok {
		q.SearchID = s.NewSearchID()
	}
	return q
}

// searchPerDay 每个自然日单独计数, 同时受关键词总上限约束
func (o *Orchestrator) searchPerDay(ctx context.Context, r *run, req SearchRequest, kw string, out *[]models.ContentItem) (string, error) {
	seen := make(map[string]bool)
	collected := 0
	loc := req.Since.Location()
	start := time.Date(req.Since.Year(), req.Since.Month(), req.Since.Day(), 0, 0, 0, 0, loc)

	for day := start; day.Before(req.Until); day = day.AddDate(0, 0, 1) {
		remaining := r.opts.MaxItems - collected
		if remaining <= 0 {
			break
		}
		limit := r.opts.MaxPerDay
		if limit > remaining {
			limit = remaining
		}

		q := o.baseQuery(r, req, kw)
		q.Page = 1
		q.Since = maxTime(day, req.Since)
		q.Until = minTime(day.AddDate(0, 0, 1), req.Until)

		before := len(*out)
		_, err := o.searchKeyword(ctx, r, q, limit, seen, out)
		collected += len(*out) - before

		log.Debug().
			Str("platform", req.Platform.String()).
			Str("keyword", kw).
			Str("day", models.DayKey(day)).
			Int("items", len(*out)-before).
			Msg("按天搜索")

		if err != nil {
			return models.DayKey(day), err
		}
	}
	return "", nil
}

// searchKeyword 从 q.Page 开始翻页, 收集至多 limit 条
// 返回续爬页码; 失败时返回失败的页码以便重试
func (o *Orchestrator) searchKeyword(ctx context.Context, r *run, q platform.SearchQuery, limit int, seen map[string]bool, out *[]models.ContentItem) (string, error) {
	collected := 0
	for {
		if err := r.wait(ctx); err != nil {
			return strconv.Itoa(q.Page), err
		}
		page, err := r.adapter.SearchPage(ctx, o.caller, q)
		if err != nil {
			return strconv.Itoa(q.Page), err
		}

		for i, it := range page.Items {
			if it.ID == "" || seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			if it.SourceKeyword == "" {
				it.SourceKeyword = q.Keyword
			}
			o.stampItem(r.adapter.Platform(), &it)
			*out = append(*out, it)
			collected++
			if collected >= limit {
				// 最后一页已取尽时没有可续爬的页
				if !page.HasMore && !hasUnseen(page.Items[i+1:], seen) {
					return "", nil
				}
				// 本页剩余条目不再返回, 续爬从下一页开始
				return strconv.Itoa(q.Page + 1), nil
			}
		}

		if !page.HasMore || len(page.Items) == 0 {
			return "", nil
		}
		q.Page++
	}
}

// hasUnseen 是否还有未采集过的条目
func hasUnseen(items []models.ContentItem, seen map[string]bool) bool {
	for _, it := range items {
		if it.ID != "" && !seen[it.ID] {
			return true
		}
	}
	return false
}

// validateDayRange 校验时间范围与策略, 返回生效的策略
func validateDayRange(adapter platform.Adapter, req SearchRequest) (models.DayPolicy, error) {
	ranged := !req.Since.IsZero() || !req.Until.IsZero()
	switch req.DayPolicy {
	case "":
		if !ranged {
			return "", nil
		}
		req.DayPolicy = models.DayPolicyExhaustive
	case models.DayPolicyPerDay, models.DayPolicyExhaustive:
		if !ranged {
			return "", &models.ValidationError{Field: "day_policy", Value: string(req.DayPolicy), Reason: "按天策略需要指定时间范围"}
		}
	default:
		return "", &models.ValidationError{
			Field:      "day_policy",
			Value:      string(req.DayPolicy),
			Reason:     "不支持的按天策略",
			Suggestion: "per_day, exhaustive",
		}
	}

	if !adapter.SupportsDayFilter() {
		return "", &models.ValidationError{
			Field:  "since",
			Reason: adapter.Platform().String() + " 搜索不支持发布时间范围",
		}
	}
	if !req.Since.IsZero() && !req.Until.IsZero() && !req.Until.After(req.Since) {
		return "", &models.ValidationError{Field: "until", Reason: "结束时间必须晚于开始时间"}
	}
	if req.DayPolicy == models.DayPolicyPerDay && (req.Since.IsZero() || req.Until.IsZero()) {
		return "", &models.ValidationError{Field: "day_policy", Value: string(req.DayPolicy), Reason: "per_day 需要同时指定开始与结束日期"}
	}
	return req.DayPolicy, nil
}

// normalizeKeywords 去掉空白与重复关键词, 保持顺序
func normalizeKeywords(raw []string) ([]string, error) {
	var keywords []string
	seen := make(map[string]bool)
	for _, kw := range raw {
		kw = strings.TrimSpace(kw)
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		keywords = append(keywords, kw)
	}
	if len(keywords) == 0 {
		return nil, &models.ValidationError{Field: "keywords", Reason: "关键词不能为空"}
	}
	return keywords, nil
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
