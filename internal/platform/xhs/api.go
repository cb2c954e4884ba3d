package xhs

import (
	"context"
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
	pathSearch     = "/api/sns/web/v1/search/notes"
	pathFeed       = "/api/sns/web/v1/feed"
	pathUserPosted = "/api/sns/web/v1/user_posted"
	pathComments   = "/api/sns/web/v2/comment/page"
	pathSubComment = "/api/sns/web/v2/comment/sub/page"

	defaultPageSize   = 20
	creatorPageSize   = 30
	subCommentPageNum = 10
)

// 搜索排序与笔记类型
var (
	sortTypes = map[string]string{"": "general", "general": "general", "hot": "popularity_descending", "time": "time_descending"}
	noteTypes = map[string]int{"": 0, "all": 0, "video": 1, "image": 2}
)

type user struct {
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname"`
	NickName string `json:"nick_name"`
	Avatar   string `json:"avatar"`
	Image    string `json:"image"`
}

func (u user) name() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.NickName
}

type interactInfo struct {
	LikedCount     interface{} `json:"liked_count"`
	CollectedCount interface{} `json:"collected_count"`
	CommentCount   interface{} `json:"comment_count"`
	ShareCount     interface{} `json:"share_count"`
}

type image struct {
	URLDefault string `json:"url_default"`
	URL        string `json:"url"`
	InfoList   []struct {
		URL string `json:"url"`
	} `json:"info_list"`
}

func (i image) best() string {
	if i.URLDefault != "" {
		return i.URLDefault
	}
	if i.URL != "" {
		return i.URL
	}
	if len(i.InfoList) > 0 {
		return i.InfoList[len(i.InfoList)-1].URL
	}
	return ""
}

type noteCard struct {
	NoteID       string       `json:"note_id"`
	Type         string       `json:"type"`
	Title        string       `json:"title"`
	DisplayTitle string       `json:"display_title"`
	Desc         string       `json:"desc"`
	Time         int64        `json:"time"`
	IPLocation   string       `json:"ip_location"`
	XsecToken    string       `json:"xsec_token"`
	User         user         `json:"user"`
	InteractInfo interactInfo `json:"interact_info"`
	Cover        image        `json:"cover"`
	ImageList    []image      `json:"image_list"`
	TagList      []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"tag_list"`
	Video struct {
		Consumer struct {
			OriginVideoKey string `json:"origin_video_key"`
		} `json:"consumer"`
		Media struct {
			Stream struct {
				H264 []struct {
					MasterURL string `json:"master_url"`
				} `json:"h264"`
			} `json:"stream"`
		} `json:"media"`
	} `json:"video"`
}

// toItem 扁平化笔记, id 为空时使用 fallbackID
func (n noteCard) toItem(fallbackID, xsecToken, xsecSource string, now time.Time) models.ContentItem {
	id := n.NoteID
	if id == "" {
		id = fallbackID
	}
	if n.XsecToken != "" {
		xsecToken = n.XsecToken
	}
	title := n.Title
	if title == "" {
		title = n.DisplayTitle
	}
	desc := platform.StripHTML(n.Desc)
	if title == "" {
		title = truncateRunes(desc, 255)
	}

	item := models.ContentItem{
		Platform:       Platform,
		ID:             id,
		XsecToken:      xsecToken,
		XsecSource:     xsecSource,
		Type:           n.Type,
		Title:          platform.StripHTML(title),
		Desc:           desc,
		URL:            noteURL(id, xsecToken, xsecSource),
		CoverURL:       n.Cover.best(),
		AuthorID:       n.User.UserID,
		AuthorName:     n.User.name(),
		AuthorAvatar:   n.User.Avatar,
		LikedCount:     platform.ParseCount(n.InteractInfo.LikedCount),
		CollectedCount: platform.ParseCount(n.InteractInfo.CollectedCount),
		CommentCount:   platform.ParseCount(n.InteractInfo.CommentCount),
		ShareCount:     platform.ParseCount(n.InteractInfo.ShareCount),
		IPLocation:     n.IPLocation,
		PublishedAt:    platform.UnixTime(n.Time),
		CrawledAt:      now,
	}
	for _, img := range n.ImageList {
		if u := img.best(); u != "" {
			item.ImageURLs = append(item.ImageURLs, u)
		}
	}
	if item.CoverURL == "" && len(item.ImageURLs) > 0 {
		item.CoverURL = item.ImageURLs[0]
	}
	for _, tag := range n.TagList {
		if tag.Type == "topic" && tag.Name != "" {
			item.Tags = append(item.Tags, tag.Name)
		}
	}
	if n.Type == "video" {
		if key := n.Video.Consumer.OriginVideoKey; key != "" {
			item.VideoURL = "http://sns-video-bd.xhscdn.com/" + key
		} else if streams := n.Video.Media.Stream.H264; len(streams) > 0 {
			item.VideoURL = streams[0].MasterURL
		}
	}
	return item
}

func noteURL(id, xsecToken, xsecSource string) string {
	u := WebHost + "/explore/" + id
	if xsecToken == "" {
		return u
	}
	if xsecSource == "" {
		xsecSource = "pc_search"
	}
	return u + "?" + url.Values{"xsec_token": {xsecToken}, "xsec_source": {xsecSource}}.Encode()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// SearchPage 关键词搜索一页
func (a *Adapter) SearchPage(ctx context.Context, c platform.Caller, q platform.SearchQuery) (platform.Page[models.ContentItem], error) {
	var page platform.Page[models.ContentItem]

	sortType, ok := sortTypes[q.Sort]
	if !ok {
		return page, &models.ValidationError{Field: "sort", Value: q.Sort, Reason: "不支持的排序方式", Suggestion: "general, hot, time"}
	}
	noteType, ok := noteTypes[q.Type]
	if !ok {
		return page, &models.ValidationError{Field: "type", Value: q.Type, Reason: "不支持的笔记类型", Suggestion: "all, video, image"}
	}
	size := q.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	sid := q.SearchID
	if sid == "" {
		sid = searchID(time.Now(), a.randInt63())
	}

	data, err := c.Call(ctx, Platform, platform.Request{
		Method:  http.MethodPost,
		BaseURL: a.APIBase,
		Path:    pathSearch,
		Body: map[string]interface{}{
			"keyword":   q.Keyword,
			"page":      q.Page,
			"page_size": size,
			"search_id": sid,
			"sort":      sortType,
			"note_type": noteType,
		},
	})
	if err != nil {
		return page, err
	}

	var resp struct {
		HasMore bool `json:"has_more"`
		Items   []struct {
			ID         string   `json:"id"`
			ModelType  string   `json:"model_type"`
			XsecToken  string   `json:"xsec_token"`
			XsecSource string   `json:"xsec_source"`
			NoteCard   noteCard `json:"note_card"`
		} `json:"items"`
	}
	if err := platform.DecodeJSON(data, &resp); err != nil {
		return page, fmt.Errorf("解析搜索结果失败: %w", err)
	}

	now := time.Now()
	for _, it := range resp.Items {
		// 过滤推荐词/广告等非笔记卡片
		if it.ModelType != "" && it.ModelType != "note" {
			continue
		}
		source := it.XsecSource
		if source == "" {
			source = "pc_search"
		}
		item := it.NoteCard.toItem(it.ID, it.XsecToken, source, now)
		item.SourceKeyword = q.Keyword
		page.Items = append(page.Items, item)
	}
	page.HasMore = resp.HasMore
	page.Cursor = strconv.Itoa(q.Page + 1)
	return page, nil
}

// Detail 通过 feed 接口获取笔记详情, 笔记不存在时返回 nil
func (a *Adapter) Detail(ctx context.Context, c platform.Caller, ref platform.ItemRef) (*models.ContentItem, error) {
	source := ref.XsecSource
	if source == "" {
		source = "pc_search"
	}
	body := map[string]interface{}{
		"source_note_id": ref.ID,
		"image_formats":  []string{"jpg", "webp", "avif"},
		"extra":          map[string]int{"need_body_topic": 1},
		"xsec_source":    source,
	}
	if ref.XsecToken != "" {
		body["xsec_token"] = ref.XsecToken
	}

	data, err := c.Call(ctx, Platform, platform.Request{
		Method:  http.MethodPost,
		BaseURL: a.APIBase,
		Path:    pathFeed,
		Body:    body,
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Items []struct {
			ID       string   `json:"id"`
			NoteCard noteCard `json:"note_card"`
		} `json:"items"`
	}
	if err := platform.DecodeJSON(data, &resp); err != nil {
		return nil, fmt.Errorf("解析笔记详情失败: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}

	item := resp.Items[0].NoteCard.toItem(ref.ID, ref.XsecToken, source, time.Now())
	return &item, nil
}

// CreatorFeedPage 创作者作品列表一页
func (a *Adapter) CreatorFeedPage(ctx context.Context, c platform.Caller, creatorID, cursor string) (platform.Page[models.ContentItem], error) {
	var page platform.Page[models.ContentItem]

	id, err := ParseCreatorID(creatorID)
	if err != nil {
		return page, err
	}

	data, err := c.Call(ctx, Platform, platform.Request{
		Method:  http.MethodGet,
		BaseURL: a.APIBase,
		Path:    pathUserPosted,
		Query: url.Values{
			"user_id":       {id},
			"cursor":        {cursor},
			"num":           {strconv.Itoa(creatorPageSize)},
			"image_formats": {"jpg,webp,avif"},
		},
	})
	if err != nil {
		return page, err
	}

	var resp struct {
		Notes   []noteCard `json:"notes"`
		Cursor  string     `json:"cursor"`
		HasMore bool       `json:"has_more"`
	}
	if err := platform.DecodeJSON(data, &resp); err != nil {
		return page, fmt.Errorf("解析创作者作品失败: %w", err)
	}

	now := time.Now()
	for _, n := range resp.Notes {
		item := n.toItem("", n.XsecToken, "pc_user", now)
		if item.AuthorID == "" {
			item.AuthorID = id
		}
		page.Items = append(page.Items, item)
	}
	page.Cursor = resp.Cursor
	page.HasMore = resp.HasMore && resp.Cursor != ""
	return page, nil
}

type comment struct {
	ID              string      `json:"id"`
	NoteID          string      `json:"note_id"`
	Content         string      `json:"content"`
	CreateTime      int64       `json:"create_time"`
	IPLocation      string      `json:"ip_location"`
	LikeCount       interface{} `json:"like_count"`
	SubCommentCount interface{} `json:"sub_comment_count"`
	UserInfo        user        `json:"user_info"`
	TargetComment   struct {
		ID string `json:"id"`
	} `json:"target_comment"`
}

func (cm comment) toComment(itemID, rootID string, now time.Time) models.Comment {
	out := models.Comment{
		Platform:        Platform,
		ItemID:          itemID,
		ID:              cm.ID,
		RootID:          rootID,
		ParentID:        cm.TargetComment.ID,
		Content:         strings.TrimSpace(cm.Content),
		AuthorID:        cm.UserInfo.UserID,
		AuthorName:      cm.UserInfo.name(),
		LikeCount:       platform.ParseCount(cm.LikeCount),
		SubCommentCount: platform.ParseCount(cm.SubCommentCount),
		IPLocation:      cm.IPLocation,
		CreatedAt:       platform.UnixTime(cm.CreateTime),
		CrawledAt:       now,
	}
	if out.ParentID == "" && rootID != "" {
		out.ParentID = rootID
	}
	return out
}

type commentPage struct {
	Comments []comment `json:"comments"`
	Cursor   string    `json:"cursor"`
	HasMore  bool      `json:"has_more"`
}

// CommentPage 一级评论一页
func (a *Adapter) CommentPage(ctx context.Context, c platform.Caller, ref platform.ItemRef, cursor string) (platform.Page[models.Comment], error) {
	return a.commentPage(ctx, c, ref, pathComments, url.Values{
		"note_id":        {ref.ID},
		"cursor":         {cursor},
		"top_comment_id": {""},
		"image_formats":  {"jpg,webp,avif"},
		"xsec_token":     {ref.XsecToken},
	}, "")
}

// SubCommentPage 子评论一页
func (a *Adapter) SubCommentPage(ctx context.Context, c platform.Caller, ref platform.ItemRef, rootID, cursor string) (platform.Page[models.Comment], error) {
	return a.commentPage(ctx, c, ref, pathSubComment, url.Values{
		"note_id":         {ref.ID},
		"root_comment_id": {rootID},
		"num":             {strconv.Itoa(subCommentPageNum)},
		"cursor":          {cursor},
		"image_formats":   {"jpg,webp,avif"},
		"top_comment_id":  {""},
		"xsec_token":      {ref.XsecToken},
	}, rootID)
}

func (a *Adapter) commentPage(ctx context.Context, c platform.Caller, ref platform.ItemRef, path string, query url.Values, rootID string) (platform.Page[models.Comment], error) {
	var page platform.Page[models.Comment]

	data, err := c.Call(ctx, Platform, platform.Request{
		Method:  http.MethodGet,
		BaseURL: a.APIBase,
		Path:    path,
		Query:   query,
	})
	if err != nil {
		return page, err
	}

	var resp commentPage
	if err := platform.DecodeJSON(data, &resp); err != nil {
		return page, fmt.Errorf("解析评论失败: %w", err)
	}

	now := time.Now()
	for _, cm := range resp.Comments {
		page.Items = append(page.Items, cm.toComment(ref.ID, rootID, now))
	}
	page.Cursor = resp.Cursor
	page.HasMore = resp.HasMore && resp.Cursor != ""
	return page, nil
}
