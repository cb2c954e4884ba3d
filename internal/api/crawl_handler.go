package api

import (
	"net/http"
	"time"

	"github.com/RecoveryAshes/MediaCrawler/internal/crawlers"
	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// crawlOptions 各采集请求共用的可选参数, 零值取服务端默认值
type crawlOptions struct {
	PageSize    int `json:"page_size,omitempty"`
	Limit       int `json:"limit,omitempty"`
	MaxPerDay   int `json:"max_per_day,omitempty"`
	MaxComments int `json:"max_comments,omitempty"`
	IntervalMS  int `json:"interval_ms,omitempty"`
	Concurrency int `json:"concurrency,omitempty"`
}

func (o crawlOptions) toOptions() crawlers.Options {
	return crawlers.Options{
		PageSize:    o.PageSize,
		MaxItems:    o.Limit,
		MaxPerDay:   o.MaxPerDay,
		MaxComments: o.MaxComments,
		Interval:    time.Duration(o.IntervalMS) * time.Millisecond,
		Concurrency: o.Concurrency,
	}
}

type searchRequest struct {
	Platform string   `json:"platform"`
	Keywords []string `json:"keywords"`
	PageNum  int      `json:"page_num,omitempty"`
	Sort     string   `json:"sort,omitempty"`
	Type     string   `json:"type,omitempty"`
	// Since/Until 格式 2006-01-02, Until 当天包含在内
	Since     string `json:"since,omitempty"`
	Until     string `json:"until,omitempty"`
	DayPolicy string `json:"day_policy,omitempty"`
	crawlOptions
}

type idsRequest struct {
	Platform string   `json:"platform"`
	IDs      []string `json:"ids"`
	crawlOptions
}

type creatorRequest struct {
	Platform   string   `json:"platform"`
	CreatorIDs []string `json:"creator_ids"`
	Mode       string   `json:"mode"`
	crawlOptions
}

type commentsRequest struct {
	Platform           string   `json:"platform"`
	IDs                []string `json:"ids"`
	RecurseSubComments bool     `json:"recurse_subcomments"`
	CountSubComments   bool     `json:"count_sub_comments"`
	crawlOptions
}

// itemsResponse Search / Detail 的结果
// items 始终存在, 空列表表示没有结果
type itemsResponse struct {
	Items      []models.ContentItem `json:"items"`
	Missing    []string             `json:"missing,omitempty"`
	NextCursor string               `json:"next_cursor,omitempty"`
	Error      *errorBody           `json:"error,omitempty"`
}

type creatorResponse struct {
	Items    []models.ContentItem `json:"items,omitempty"`
	Creators []models.Creator     `json:"creators,omitempty"`
	Missing  []string             `json:"missing,omitempty"`
	Error    *errorBody           `json:"error,omitempty"`
}

type commentsResponse struct {
	Comments map[string][]models.Comment `json:"comments"`
	Error    *errorBody                  `json:"error,omitempty"`
}

func (r *itemsResponse) setError(e *errorBody)    { r.Error = e }
func (r *creatorResponse) setError(e *errorBody)  { r.Error = e }
func (r *commentsResponse) setError(e *errorBody) { r.Error = e }

// writeCrawl 有结果时始终返回结果, 错误放在 error 字段
func writeCrawl[T interface{ setError(*errorBody) }](w http.ResponseWriter, r *http.Request, resp T, ok bool, err error) {
	if !ok {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		var body *errorBody
		status, body = newErrorBody(err)
		resp.setError(body)
	}
	writeJSON(w, status, resp)
}

// search POST /api/crawl/search
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := models.ParsePlatform(req.Platform)
	if err != nil {
		writeError(w, r, err)
		return
	}
	since, err := s.parseDay("since", req.Since, 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	until, err := s.parseDay("until", req.Until, 1)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.Crawler.Search(r.Context(), crawlers.SearchRequest{
		Platform:  p,
		Keywords:  req.Keywords,
		PageNum:   req.PageNum,
		Sort:      req.Sort,
		Type:      req.Type,
		Since:     since,
		Until:     until,
		DayPolicy: models.DayPolicy(req.DayPolicy),
		Options:   req.toOptions(),
	})
	resp := &itemsResponse{}
	if res != nil {
		resp.Items, resp.NextCursor = nonNil(res.Items), res.NextCursor
	}
	writeCrawl(w, r, resp, res != nil, err)
}

// detail POST /api/crawl/detail
func (s *Server) detail(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := models.ParsePlatform(req.Platform)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.Crawler.Detail(r.Context(), crawlers.DetailRequest{
		Platform: p,
		IDs:      req.IDs,
		Options:  req.toOptions(),
	})
	resp := &itemsResponse{}
	if res != nil {
		resp.Items, resp.Missing = nonNil(res.Items), res.Missing
	}
	writeCrawl(w, r, resp, res != nil, err)
}

// creator POST /api/crawl/creator
func (s *Server) creator(w http.ResponseWriter, r *http.Request) {
	var req creatorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := models.ParsePlatform(req.Platform)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.Crawler.CreatorFeed(r.Context(), crawlers.CreatorRequest{
		Platform:   p,
		CreatorIDs: req.CreatorIDs,
		Mode:       models.CreatorMode(req.Mode),
		Options:    req.toOptions(),
	})
	resp := &creatorResponse{}
	if res != nil {
		resp.Items, resp.Creators, resp.Missing = res.Items, res.Creators, res.Missing
	}
	writeCrawl(w, r, resp, res != nil, err)
}

// comments POST /api/crawl/comments
func (s *Server) comments(w http.ResponseWriter, r *http.Request) {
	var req commentsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := models.ParsePlatform(req.Platform)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.Crawler.Comments(r.Context(), crawlers.CommentsRequest{
		Platform:         p,
		IDs:              req.IDs,
		Recurse:          req.RecurseSubComments,
		CountSubComments: req.CountSubComments,
		Options:          req.toOptions(),
	})
	resp := &commentsResponse{Comments: map[string][]models.Comment{}}
	if res != nil && res.Comments != nil {
		resp.Comments = res.Comments
	}
	writeCrawl(w, r, resp, res != nil, err)
}

// parseDay 解析日期; offsetDays=1 时返回次日零点, 使结束日期包含在内
func (s *Server) parseDay(field, raw string, offsetDays int) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, s.deps.Location)
	if err != nil {
		return time.Time{}, &models.ValidationError{Field: field, Value: raw, Reason: "日期格式错误", Suggestion: "2006-01-02"}
	}
	return t.AddDate(0, 0, offsetDays), nil
}

// nonNil 空结果序列化为 [] 而不是省略
func nonNil(items []models.ContentItem) []models.ContentItem {
	if items == nil {
		return []models.ContentItem{}
	}
	return items
}
