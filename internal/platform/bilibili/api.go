package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform"
)

// 接口路径
const (
	pathNav        = "/x/web-interface/nav"
	pathSearch     = "/x/web-interface/wbi/search/type"
	pathView       = "/x/web-interface/view"
	pathSpaceArc   = "/x/space/wbi/arc/search"
	pathCard       = "/x/web-interface/card"
	pathReplyMain  = "/x/v2/reply/wbi/main"
	pathReplyReply = "/x/v2/reply/reply"

	defaultPageSize  = 20
	creatorPageSize  = 30
	replyPageSize    = 20
	subReplyPageSize = 10
)

var searchOrders = map[string]string{"": "totalrank", "general": "totalrank", "hot": "click", "time": "pubdate"}

// searchVideo 搜索结果中的视频
type searchVideo struct {
	Type        string      `json:"type"`
	Aid         json.Number `json:"aid"`
	Bvid        string      `json:"bvid"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Pic         string      `json:"pic"`
	Play        interface{} `json:"play"`
	Review      interface{} `json:"review"`
	Favorites   interface{} `json:"favorites"`
	Like        interface{} `json:"like"`
	Author      string      `json:"author"`
	Mid         json.Number `json:"mid"`
	Upic        string      `json:"upic"`
	Tag         string      `json:"tag"`
	Pubdate     int64       `json:"pubdate"`
}

func (v searchVideo) toItem(keyword string, now time.Time) models.ContentItem {
	aid := v.Aid.String()
	item := models.ContentItem{
		Platform:       Platform,
		ID:             aid,
		ShortCode:      v.Bvid,
		Type:           "video",
		Title:          platform.StripHTML(v.Title),
		Desc:           platform.StripHTML(v.Description),
		URL:            videoURL(v.Bvid, aid),
		CoverURL:       absURL(v.Pic),
		AuthorID:       v.Mid.String(),
		AuthorName:     v.Author,
		AuthorAvatar:   absURL(v.Upic),
		LikedCount:     platform.ParseCount(v.Like),
		CollectedCount: platform.ParseCount(v.Favorites),
		CommentCount:   platform.ParseCount(v.Review),
		ViewCount:      platform.ParseCount(v.Play),
		SourceKeyword:  keyword,
		PublishedAt:    platform.UnixTime(v.Pubdate),
		CrawledAt:      now,
	}
	if v.Tag != "" {
		item.Tags = strings.Split(v.Tag, ",")
	}
	return item
}

// SearchPage 视频搜索一页, Since/Until 映射为发布时间范围
func (a *Adapter) SearchPage(ctx context.Context, c platform.Caller, q platform.SearchQuery) (platform.Page[models.ContentItem], error) {
	var page platform.Page[models.ContentItem]

	order, ok := searchOrders[q.Sort]
	if !ok {
		return page, &models.ValidationError{Field: "sort", Value: q.Sort, Reason: "不支持的排序方式", Suggestion: "general, hot, time"}
	}
	if q.Type != "" && q.Type != "video" && q.Type != "all" {
		return page, &models.ValidationError{Field: "type", Value: q.Type, Reason: "仅支持视频搜索"}
	}
	size := q.PageSize
	if size <= 0 {
		size = defaultPageSize
	}

	query := url.Values{
		"search_type": {"video"},
		"keyword":     {q.Keyword},
		"page":        {strconv.Itoa(q.Page)},
		"page_size":   {strconv.Itoa(size)},
		"order":       {order},
	}
	if !q.Since.IsZero() {
		query.Set("pubtime_begin_s", strconv.FormatInt(q.Since.Unix(), 10))
	}
	if !q.Until.IsZero() {
		// 结束时间包含在内
		query.Set("pubtime_end_s", strconv.FormatInt(q.Until.Unix()-1, 10))
	}

	data, err := c.Call(ctx, Platform, platform.Request{
		Method:  http.MethodGet,
		BaseURL: a.APIBase,
		Path:    pathSearch,
		Query:   query,
	})
	if err != nil {
		return page, err
	}

	var resp struct {
		Page     int           `json:"page"`
		NumPages int           `json:"numPages"`
		Result   []searchVideo `json:"result"`
	}
	if err := platform.DecodeJSON(data, &resp); err != nil {
		return page, fmt.Errorf("解析搜索结果失败: %w", err)
	}

	now := time.Now()
	for _, v := range resp.Result {
		if v.Type != "" && v.Type != "video" {
			continue
		}
		page.Items = append(page.Items, v.toItem(q.Keyword, now))
	}
	page.HasMore = q.Page < resp.NumPages
	page.Cursor = strconv.Itoa(q.Page + 1)
	return page, nil
}

// videoView 视频详情
type videoView struct {
	Aid     json.Number `json:"aid"`
	Bvid    string      `json:"bvid"`
	Title   string      `json:"title"`
	Desc    string      `json:"desc"`
	Pic     string      `json:"pic"`
	Pubdate int64       `json:"pubdate"`
	Tname   string      `json:"tname"`
	Owner   struct {
		Mid  json.Number `json:"mid"`
		Name string      `json:"name"`
		Face string      `json:"face"`
	} `json:"owner"`
	Stat struct {
		View     interface{} `json:"view"`
		Reply    interface{} `json:"reply"`
		Favorite interface{} `json:"favorite"`
		Share    interface{} `json:"share"`
		Like     interface{} `json:"like"`
	} `json:"stat"`
}

func (v videoView) toItem(now time.Time) models.ContentItem {
	aid := v.Aid.String()
	item := models.ContentItem{
		Platform:       Platform,
		ID:             aid,
		ShortCode:      v.Bvid,
		Type:           "video",
		Title:          v.Title,
		Desc:           v.Desc,
		URL:            videoURL(v.Bvid, aid),
		CoverURL:       absURL(v.Pic),
		AuthorID:       v.Owner.Mid.String(),
		AuthorName:     v.Owner.Name,
		AuthorAvatar:   absURL(v.Owner.Face),
		LikedCount:     platform.ParseCount(v.Stat.Like),
		CollectedCount: platform.ParseCount(v.Stat.Favorite),
		CommentCount:   platform.ParseCount(v.Stat.Reply),
		ShareCount:     platform.ParseCount(v.Stat.Share),
		ViewCount:      platform.ParseCount(v.Stat.View),
		PublishedAt:    platform.UnixTime(v.Pubdate),
		CrawledAt:      now,
	}
	if v.Tname != "" {
		item.Tags = []string{v.Tname}
	}
	return item
}

// view 调用详情接口, 视频不存在时返回 nil
func (a *Adapter) view(ctx context.Context, c platform.Caller, ref platform.ItemRef) (*videoView, error) {
	query := url.Values{}
	if ref.ShortCode != "" {
		query.Set("bvid", ref.ShortCode)
	} else {
		query.Set("aid", ref.ID)
	}

	data, err := c.Call(ctx, Platform, platform.Request{
		Method:  http.MethodGet,
		BaseURL: a.APIBase,
		Path:    pathView,
		Query:   query,
	})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var v videoView
	if err := platform.DecodeJSON(data, &v); err != nil {
		return nil, fmt.Errorf("解析视频详情失败: %w", err)
	}
	if v.Aid.String() == "" || v.Aid.String() == "0" {
		return nil, nil
	}
	return &v, nil
}

// Detail 视频详情
func (a *Adapter) Detail(ctx context.Context, c platform.Caller, ref platform.ItemRef) (*models.ContentItem, error) {
	v, err := a.view(ctx, c, ref)
	if err != nil || v == nil {
		return nil, err
	}
	item := v.toItem(time.Now())
	return &item, nil
}

// resolveAid BV号需要先通过详情接口换成 aid
func (a *Adapter) resolveAid(ctx context.Context, c platform.Caller, ref platform.ItemRef) (string, error) {
	if ref.ShortCode == "" {
		return ref.ID, nil
	}
	a.mu.Lock()
	aid, ok := a.aids[ref.ShortCode]
	a.mu.Unlock()
	if ok {
		return aid, nil
	}

	v, err := a.view(ctx, c, ref)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", &models.HardAPIError{Platform: Platform, Endpoint: pathView, Message: "视频不存在: " + ref.ShortCode}
	}
	aid = v.Aid.String()

	a.mu.Lock()
	if a.aids == nil {
		a.aids = make(map[string]string)
	}
	a.aids[ref.ShortCode] = aid
	a.mu.Unlock()
	return aid, nil
}

// CreatorFeedPage 投稿列表一页, 游标为页码
func (a *Adapter) CreatorFeedPage(ctx context.Context, c platform.Caller, creatorID, cursor string) (platform.Page[models.ContentItem], error) {
	var page platform.Page[models.ContentItem]

	mid, err := ParseCreatorID(creatorID)
	if err != nil {
		return page, err
	}
	pn := 1
	if cursor != "" {
		if pn, err = strconv.Atoi(cursor); err != nil || pn < 1 {
			return page, &models.ValidationError{Field: "cursor", Value: cursor, Reason: "游标必须为正整数"}
		}
	}

	data, err := c.Call(ctx, Platform, platform.Request{
		Method:  http.MethodGet,
		BaseURL: a.APIBase,
		Path:    pathSpaceArc,
		Query: url.Values{
			"mid":   {mid},
			"pn":    {strconv.Itoa(pn)},
			"ps":    {strconv.Itoa(creatorPageSize)},
			"order": {"pubdate"},
		},
	})
	if err != nil {
		return page, err
	}

	var resp struct {
		List struct {
			Vlist []struct {
				Aid         json.Number `json:"aid"`
				Bvid        string      `json:"bvid"`
				Title       string      `json:"title"`
				Description string      `json:"description"`
				Pic         string      `json:"pic"`
				Play        interface{} `json:"play"`
				Comment     interface{} `json:"comment"`
				Created     int64       `json:"created"`
				Author      string      `json:"author"`
				Mid         json.Number `json:"mid"`
			} `json:"vlist"`
		} `json:"list"`
		Page struct {
			Pn    int `json:"pn"`
			Ps    int `json:"ps"`
			Count int `json:"count"`
		} `json:"page"`
	}
	if err := platform.DecodeJSON(data, &resp); err != nil {
		return page, fmt.Errorf("解析投稿列表失败: %w", err)
	}

	now := time.Now()
	for _, v := range resp.List.Vlist {
		aid := v.Aid.String()
		page.Items = append(page.Items, models.ContentItem{
			Platform:     Platform,
			ID:           aid,
			ShortCode:    v.Bvid,
			Type:         "video",
			Title:        v.Title,
			Desc:         v.Description,
			URL:          videoURL(v.Bvid, aid),
			CoverURL:     absURL(v.Pic),
			AuthorID:     mid,
			AuthorName:   v.Author,
			CommentCount: platform.ParseCount(v.Comment),
			ViewCount:    platform.ParseCount(v.Play),
			PublishedAt:  platform.UnixTime(v.Created),
			CrawledAt:    now,
		})
	}
	if pn*creatorPageSize < resp.Page.Count && len(resp.List.Vlist) > 0 {
		page.HasMore = true
		page.Cursor = strconv.Itoa(pn + 1)
	}
	return page, nil
}

// CreatorProfile 用户名片, 用户不存在时返回 nil
func (a *Adapter) CreatorProfile(ctx context.Context, c platform.Caller, creatorID string) (*models.Creator, error) {
	mid, err := ParseCreatorID(creatorID)
	if err != nil {
		return nil, err
	}

	data, err := c.Call(ctx, Platform, platform.Request{
		Method:  http.MethodGet,
		BaseURL: a.APIBase,
		Path:    pathCard,
		Query:   url.Values{"mid": {mid}, "photo": {"false"}},
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Card *struct {
			Mid       json.Number `json:"mid"`
			Name      string      `json:"name"`
			Sex       string      `json:"sex"`
			Face      string      `json:"face"`
			Sign      string      `json:"sign"`
			Fans      interface{} `json:"fans"`
			Attention interface{} `json:"attention"`
		} `json:"card"`
		Follower interface{} `json:"follower"`
		LikeNum  interface{} `json:"like_num"`
	}
	if err := platform.DecodeJSON(data, &resp); err != nil {
		return nil, fmt.Errorf("解析用户名片失败: %w", err)
	}
	if resp.Card == nil || resp.Card.Name == "" {
		return nil, nil
	}

	fans := platform.ParseCount(resp.Follower)
	if fans == 0 {
		fans = platform.ParseCount(resp.Card.Fans)
	}
	return &models.Creator{
		Platform:    Platform,
		ID:          mid,
		Nickname:    resp.Card.Name,
		Avatar:      absURL(resp.Card.Face),
		Desc:        resp.Card.Sign,
		Gender:      resp.Card.Sex,
		Follows:     platform.ParseCount(resp.Card.Attention),
		Fans:        fans,
		Interaction: platform.ParseCount(resp.LikeNum),
		URL:         "https://space.bilibili.com/" + mid,
		CrawledAt:   time.Now(),
	}, nil
}

type reply struct {
	Rpid    json.Number `json:"rpid"`
	Root    json.Number `json:"root"`
	Parent  json.Number `json:"parent"`
	Like    interface{} `json:"like"`
	Rcount  interface{} `json:"rcount"`
	Ctime   int64       `json:"ctime"`
	Content struct {
		Message string `json:"message"`
	} `json:"content"`
	Member struct {
		Mid   json.Number `json:"mid"`
		Uname string      `json:"uname"`
	} `json:"member"`
	ReplyControl struct {
		Location string `json:"location"`
	} `json:"reply_control"`
}

func idOrEmpty(n json.Number) string {
	if s := n.String(); s != "0" {
		return s
	}
	return ""
}

func (r reply) toComment(aid string, now time.Time) models.Comment {
	return models.Comment{
		Platform:        Platform,
		ItemID:          aid,
		ID:              r.Rpid.String(),
		RootID:          idOrEmpty(r.Root),
		ParentID:        idOrEmpty(r.Parent),
		Content:         r.Content.Message,
		AuthorID:        r.Member.Mid.String(),
		AuthorName:      r.Member.Uname,
		LikeCount:       platform.ParseCount(r.Like),
		SubCommentCount: platform.ParseCount(r.Rcount),
		IPLocation:      strings.TrimPrefix(r.ReplyControl.Location, "IP属地："),
		CreatedAt:       platform.UnixTime(r.Ctime),
		CrawledAt:       now,
	}
}

// CommentPage 一级评论一页(按时间), 游标为平台返回的 next
func (a *Adapter) CommentPage(ctx context.Context, c platform.Caller, ref platform.ItemRef, cursor string) (platform.Page[models.Comment], error) {
	var page platform.Page[models.Comment]

	aid, err := a.resolveAid(ctx, c, ref)
	if err != nil {
		return page, err
	}
	if cursor == "" {
		cursor = "0"
	}

	data, err := c.Call(ctx, Platform, platform.Request{
		Method:  http.MethodGet,
		BaseURL: a.APIBase,
		Path:    pathReplyMain,
		Query: url.Values{
			"oid":  {aid},
			"type": {"1"},
			"mode": {"2"},
			"next": {cursor},
			"ps":   {strconv.Itoa(replyPageSize)},
		},
	})
	if err != nil {
		return page, err
	}

	var resp struct {
		Cursor struct {
			IsEnd bool        `json:"is_end"`
			Next  json.Number `json:"next"`
		} `json:"cursor"`
		Replies []reply `json:"replies"`
	}
	if err := platform.DecodeJSON(data, &resp); err != nil {
		return page, fmt.Errorf("解析评论失败: %w", err)
	}

	now := time.Now()
	for _, r := range resp.Replies {
		page.Items = append(page.Items, r.toComment(aid, now))
	}
	if !resp.Cursor.IsEnd && len(resp.Replies) > 0 {
		page.HasMore = true
		page.Cursor = resp.Cursor.Next.String()
	}
	return page, nil
}

// SubCommentPage 楼中楼评论一页, 游标为页码
func (a *Adapter) SubCommentPage(ctx context.Context, c platform.Caller, ref platform.ItemRef, rootID, cursor string) (platform.Page[models.Comment], error) {
	var page platform.Page[models.Comment]

	aid, err := a.resolveAid(ctx, c, ref)
	if err != nil {
		return page, err
	}
	pn := 1
	if cursor != "" {
		if pn, err = strconv.Atoi(cursor); err != nil || pn < 1 {
			return page, &models.ValidationError{Field: "cursor", Value: cursor, Reason: "游标必须为正整数"}
		}
	}

	data, err := c.Call(ctx, Platform, platform.Request{
		Method:  http.MethodGet,
		BaseURL: a.APIBase,
		Path:    pathReplyReply,
		Query: url.Values{
			"oid":  {aid},
			"type": {"1"},
			"root": {rootID},
			"pn":   {strconv.Itoa(pn)},
			"ps":   {strconv.Itoa(subReplyPageSize)},
		},
	})
	if err != nil {
		return page, err
	}

	var resp struct {
		Page struct {
			Num   int `json:"num"`
			Size  int `json:"size"`
			Count int `json:"count"`
		} `json:"page"`
		Replies []reply `json:"replies"`
	}
	if err := platform.DecodeJSON(data, &resp); err != nil {
		return page, fmt.Errorf("解析子评论失败: %w", err)
	}

	now := time.Now()
	for _, r := range resp.Replies {
		cm := r.toComment(aid, now)
		if cm.RootID == "" {
			cm.RootID = rootID
		}
		page.Items = append(page.Items, cm)
	}
	if pn*subReplyPageSize < resp.Page.Count && len(resp.Replies) > 0 {
		page.HasMore = true
		page.Cursor = strconv.Itoa(pn + 1)
	}
	return page, nil
}
