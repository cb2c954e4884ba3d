package mock

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform"
)

// 内存平台的固定参数
const (
	DefaultPlatform models.Platform = "p1"
	AuthCookie                      = "session"
	QRXPath                         = "//img[@class='qr']"
	LoginURL                        = "https://p1.test/login"

	PhoneXPath    = "//input[@name='phone']"
	SendCodeXPath = "//button[@class='send-code']"
	CodeXPath     = "//input[@name='code']"
	SubmitXPath   = "//button[@type='submit']"
)

// Adapter 内存平台适配器, 数据来自预置的切片
// 签名与响应分类使用简单且确定的规则, 便于配合 httptest 测试签名客户端
type Adapter struct {
	Name    models.Platform
	BaseURL string

	// 搜索数据源
	Items []models.ContentItem
	// 创作者作品与资料
	Feeds    map[string][]models.ContentItem
	Creators map[string]models.Creator
	// 评论: itemID -> 一级评论, rootID -> 子评论
	Comments    map[string][]models.Comment
	SubComments map[string][]models.Comment
	// CommentPageSize 评论每页条数, 默认10
	CommentPageSize int

	// FailSearchAfterPages >0 时, 第 N+1 页开始返回 FailWith
	FailSearchAfterPages int
	// FailDetail 指定ID的详情返回错误
	FailDetail map[string]error
	FailWith   error
	DayFilter  bool

	searchCalls  atomic.Int32
	commentCalls atomic.Int32
	mu           sync.Mutex
	searchPages  []int
}

// NewAdapter 创建内存平台适配器
func NewAdapter() *Adapter {
	return &Adapter{
		Name:        DefaultPlatform,
		BaseURL:     "https://api.p1.test",
		Feeds:       make(map[string][]models.ContentItem),
		Creators:    make(map[string]models.Creator),
		Comments:    make(map[string][]models.Comment),
		SubComments: make(map[string][]models.Comment),
		FailDetail:  make(map[string]error),
	}
}

// GenerateItems 生成 n 条内容
func GenerateItems(n int, keyword string) []models.ContentItem {
	items := make([]models.ContentItem, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, models.ContentItem{
			Platform:      DefaultPlatform,
			ID:            fmt.Sprintf("item-%03d", i),
			Title:         fmt.Sprintf("%s #%d", keyword, i),
			URL:           fmt.Sprintf("https://p1.test/item/item-%03d", i),
			AuthorID:      "creator-1",
			AuthorName:    "测试作者",
			SourceKeyword: keyword,
		})
	}
	return items
}

// GenerateComments 为内容生成 n 条一级评论, 每条带 sub 条子评论
func (a *Adapter) GenerateComments(itemID string, n, sub int) {
	top := make([]models.Comment, 0, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("%s-c%02d", itemID, i)
		top = append(top, models.Comment{
			Platform:        a.Name,
			ItemID:          itemID,
			ID:              id,
			Content:         fmt.Sprintf("评论 %d", i),
			SubCommentCount: int64(sub),
		})
		subs := make([]models.Comment, 0, sub)
		for j := 1; j <= sub; j++ {
			subs = append(subs, models.Comment{
				Platform: a.Name,
				ItemID:   itemID,
				ID:       fmt.Sprintf("%s-s%02d", id, j),
				RootID:   id,
				ParentID: id,
				Content:  fmt.Sprintf("回复 %d-%d", i, j),
			})
		}
		a.SubComments[id] = subs
	}
	a.Comments[itemID] = top
}

// SearchCalls 搜索接口调用次数
func (a *Adapter) SearchCalls() int {
	return int(a.searchCalls.Load())
}

// CommentCalls 评论接口(含子评论)调用次数
func (a *Adapter) CommentCalls() int {
	return int(a.commentCalls.Load())
}

// SearchPagesRequested 按顺序返回请求过的页码
func (a *Adapter) SearchPagesRequested() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.searchPages...)
}

func (a *Adapter) Platform() models.Platform {
	return a.Name
}

func (a *Adapter) DefaultHeaders() map[string]string {
	return map[string]string{
		"Origin":  "https://p1.test",
		"Referer": "https://p1.test/",
	}
}

func (a *Adapter) Login() platform.LoginSurface {
	return platform.LoginSurface{
		URL:             LoginURL,
		QRXPath:         QRXPath,
		AuthCookie:      AuthCookie,
		CookieDomain:    ".p1.test",
		RequiredCookies: []string{AuthCookie},
		Phone: &platform.PhoneSurface{
			PhoneXPath:    PhoneXPath,
			SendCodeXPath: SendCodeXPath,
			CodeXPath:     CodeXPath,
			SubmitXPath:   SubmitXPath,
		},
	}
}

// Sign X-Mock-Sign = md5(uri + body + ts + a1)
func (a *Adapter) Sign(req *platform.SignedRequest, snap models.CookieSnapshot, now time.Time) error {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	sum := md5.Sum([]byte(req.URI() + string(req.Body) + ts + snap.Value("a1")))
	req.Header.Set("X-Mock-Ts", ts)
	req.Header.Set("X-Mock-Sign", hex.EncodeToString(sum[:]))
	return nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Classify HTTP 429 或 code=429 为风控, HTTP 401 或 code=-1 为未登录
func (a *Adapter) Classify(statusCode int, body []byte) platform.Classification {
	if statusCode == 429 {
		return platform.Classification{Outcome: platform.OutcomeSoftRiskControl, Code: statusCode, Message: "too many requests"}
	}
	if statusCode == 401 {
		return platform.Classification{Outcome: platform.OutcomeAuthExpired, Code: statusCode, Message: "unauthorized"}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return platform.Classification{Outcome: platform.OutcomeHardFailure, Code: statusCode, Message: "响应不是JSON"}
	}
	switch {
	case env.Code == 429:
		return platform.Classification{Outcome: platform.OutcomeSoftRiskControl, Code: env.Code, Message: env.Message}
	case env.Code == -1:
		return platform.Classification{Outcome: platform.OutcomeAuthExpired, Code: env.Code, Message: env.Message}
	case statusCode/100 == 2 && env.Code == 0:
		return platform.Classification{Outcome: platform.OutcomeSuccess, Data: env.Data}
	default:
		return platform.Classification{Outcome: platform.OutcomeHardFailure, Code: env.Code, Message: env.Message}
	}
}

func (a *Adapter) PingRequest() platform.Request {
	return platform.Request{Method: "GET", BaseURL: a.BaseURL, Path: "/ping"}
}

func (a *Adapter) ParsePing(data json.RawMessage) (bool, map[string]string, error) {
	var resp struct {
		LoggedIn bool   `json:"logged_in"`
		UserID   string `json:"user_id"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return false, nil, fmt.Errorf("解析ping响应失败: %w", err)
	}
	if !resp.LoggedIn {
		return false, nil, nil
	}
	return true, map[string]string{"user_id": resp.UserID}, nil
}

// ParseItemRef 支持 "item-001" 与 "https://p1.test/item/item-001?token=t"
func (a *Adapter) ParseItemRef(raw string) (platform.ItemRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return platform.ItemRef{}, &models.ValidationError{Field: "id", Reason: "ID不能为空"}
	}
	if !strings.HasPrefix(raw, "http") {
		return platform.ItemRef{ID: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return platform.ItemRef{}, &models.ValidationError{Field: "id", Value: raw, Reason: "URL格式错误"}
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	return platform.ItemRef{ID: parts[len(parts)-1], XsecToken: u.Query().Get("token")}, nil
}

func (a *Adapter) SupportsDayFilter() bool {
	return a.DayFilter
}

func (a *Adapter) SearchPage(ctx context.Context, _ platform.Caller, q platform.SearchQuery) (platform.Page[models.ContentItem], error) {
	if err := ctx.Err(); err != nil {
		return platform.Page[models.ContentItem]{}, err
	}
	n := a.searchCalls.Add(1)
	a.mu.Lock()
	a.searchPages = append(a.searchPages, q.Page)
	a.mu.Unlock()

	if a.FailSearchAfterPages > 0 && int(n) > a.FailSearchAfterPages {
		return platform.Page[models.ContentItem]{}, a.failure("/search")
	}

	source := a.Items
	if !q.Since.IsZero() || !q.Until.IsZero() {
		filtered := make([]models.ContentItem, 0, len(source))
		for _, it := range source {
			if !q.Since.IsZero() && it.PublishedAt.Before(q.Since) {
				continue
			}
			if !q.Until.IsZero() && !it.PublishedAt.Before(q.Until) {
				continue
			}
			filtered = append(filtered, it)
		}
		source = filtered
	}

	size := q.PageSize
	if size <= 0 {
		size = 20
	}
	start := (q.Page - 1) * size
	if start >= len(source) || start < 0 {
		return platform.Page[models.ContentItem]{}, nil
	}
	end := start + size
	if end > len(source) {
		end = len(source)
	}
	page := append([]models.ContentItem(nil), source[start:end]...)
	return platform.Page[models.ContentItem]{
		Items:   page,
		HasMore: end < len(source),
		Cursor:  strconv.Itoa(q.Page + 1),
	}, nil
}

func (a *Adapter) Detail(ctx context.Context, _ platform.Caller, ref platform.ItemRef) (*models.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := a.FailDetail[ref.ID]; ok {
		return nil, err
	}
	for _, it := range a.Items {
		if it.ID == ref.ID {
			item := it
			item.XsecToken = ref.XsecToken
			return &item, nil
		}
	}
	return nil, nil
}

func (a *Adapter) CreatorFeedPage(ctx context.Context, _ platform.Caller, creatorID, cursor string) (platform.Page[models.ContentItem], error) {
	if err := ctx.Err(); err != nil {
		return platform.Page[models.ContentItem]{}, err
	}
	return paginate(a.Feeds[creatorID], cursor, 10), nil
}

func (a *Adapter) CreatorProfile(ctx context.Context, _ platform.Caller, creatorID string) (*models.Creator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, ok := a.Creators[creatorID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (a *Adapter) CommentPage(ctx context.Context, _ platform.Caller, ref platform.ItemRef, cursor string) (platform.Page[models.Comment], error) {
	if err := ctx.Err(); err != nil {
		return platform.Page[models.Comment]{}, err
	}
	a.commentCalls.Add(1)
	return paginate(a.Comments[ref.ID], cursor, a.commentPageSize()), nil
}

func (a *Adapter) SubCommentPage(ctx context.Context, _ platform.Caller, ref platform.ItemRef, rootID, cursor string) (platform.Page[models.Comment], error) {
	if err := ctx.Err(); err != nil {
		return platform.Page[models.Comment]{}, err
	}
	a.commentCalls.Add(1)
	return paginate(a.SubComments[rootID], cursor, a.commentPageSize()), nil
}

func (a *Adapter) commentPageSize() int {
	if a.CommentPageSize <= 0 {
		return 10
	}
	return a.CommentPageSize
}

func (a *Adapter) failure(endpoint string) error {
	if a.FailWith != nil {
		return a.FailWith
	}
	return &models.HardAPIError{Platform: a.Name, Endpoint: endpoint, StatusCode: 500, Message: "internal error"}
}

// paginate 以偏移量作为游标分页
func paginate[T any](all []T, cursor string, size int) platform.Page[T] {
	offset, _ := strconv.Atoi(cursor)
	if offset >= len(all) {
		return platform.Page[T]{}
	}
	end := offset + size
	if end > len(all) {
		end = len(all)
	}
	page := platform.Page[T]{Items: append([]T(nil), all[offset:end]...), HasMore: end < len(all)}
	if page.HasMore {
		page.Cursor = strconv.Itoa(end)
	}
	return page
}

var _ platform.Adapter = (*Adapter)(nil)
