package models

import (
	"time"
)

// OperationKind 采集操作类型
type OperationKind string

const (
	OperationSearch   OperationKind = "search"
	OperationDetail   OperationKind = "detail"
	OperationCreator  OperationKind = "creator"
	OperationComments OperationKind = "comments"
)

// CreatorMode 创作者采集模式,必须显式指定
type CreatorMode string

const (
	// CreatorModeFeed 枚举创作者的全部作品
	CreatorModeFeed CreatorMode = "feed"
	// CreatorModeProfile 仅返回创作者主页资料
	CreatorModeProfile CreatorMode = "profile"
)

// DayPolicy 按天搜索的策略
type DayPolicy string

const (
	// DayPolicyPerDay 每个自然日单独限额
	DayPolicyPerDay DayPolicy = "per_day"
	// DayPolicyExhaustive 在日期范围内穷举,仅受总量限额约束
	DayPolicyExhaustive DayPolicy = "exhaustive"
)

// ContentItem 扁平化的内容记录(笔记/视频)
// 详情和评论所需的交叉引用ID直接放在记录上
type ContentItem struct {
	Platform       Platform  `json:"platform" bson:"platform"`
	ID             string    `json:"id" bson:"id"`
	ShortCode      string    `json:"short_code,omitempty" bson:"short_code,omitempty"`
	XsecToken      string    `json:"xsec_token,omitempty" bson:"xsec_token,omitempty"`
	XsecSource     string    `json:"xsec_source,omitempty" bson:"xsec_source,omitempty"`
	Type           string    `json:"type,omitempty" bson:"type,omitempty"`
	Title          string    `json:"title" bson:"title"`
	Desc           string    `json:"desc,omitempty" bson:"desc,omitempty"`
	URL            string    `json:"url" bson:"url"`
	CoverURL       string    `json:"cover_url,omitempty" bson:"cover_url,omitempty"`
	VideoURL       string    `json:"video_url,omitempty" bson:"video_url,omitempty"`
	ImageURLs      []string  `json:"image_urls,omitempty" bson:"image_urls,omitempty"`
	Tags           []string  `json:"tags,omitempty" bson:"tags,omitempty"`
	AuthorID       string    `json:"author_id" bson:"author_id"`
	AuthorName     string    `json:"author_name" bson:"author_name"`
	AuthorAvatar   string    `json:"author_avatar,omitempty" bson:"author_avatar,omitempty"`
	LikedCount     int64     `json:"liked_count" bson:"liked_count"`
	CollectedCount int64     `json:"collected_count" bson:"collected_count"`
	CommentCount   int64     `json:"comment_count" bson:"comment_count"`
	ShareCount     int64     `json:"share_count" bson:"share_count"`
	ViewCount      int64     `json:"view_count" bson:"view_count"`
	IPLocation     string    `json:"ip_location,omitempty" bson:"ip_location,omitempty"`
	SourceKeyword  string    `json:"source_keyword,omitempty" bson:"source_keyword,omitempty"`
	PublishedAt    time.Time `json:"published_at" bson:"published_at"`
	CrawledAt      time.Time `json:"crawled_at" bson:"crawled_at"`
}

// Creator 扁平化的创作者资料
type Creator struct {
	Platform    Platform  `json:"platform" bson:"platform"`
	ID          string    `json:"id" bson:"id"`
	Nickname    string    `json:"nickname" bson:"nickname"`
	Avatar      string    `json:"avatar,omitempty" bson:"avatar,omitempty"`
	Desc        string    `json:"desc,omitempty" bson:"desc,omitempty"`
	Gender      string    `json:"gender,omitempty" bson:"gender,omitempty"`
	IPLocation  string    `json:"ip_location,omitempty" bson:"ip_location,omitempty"`
	Follows     int64     `json:"follows" bson:"follows"`
	Fans        int64     `json:"fans" bson:"fans"`
	Interaction int64     `json:"interaction" bson:"interaction"`
	URL         string    `json:"url" bson:"url"`
	CrawledAt   time.Time `json:"crawled_at" bson:"crawled_at"`
}

// Comment 扁平化的评论记录
// 子评论通过 RootID/ParentID 关联,不嵌套
type Comment struct {
	Platform        Platform  `json:"platform" bson:"platform"`
	ItemID          string    `json:"item_id" bson:"item_id"`
	ID              string    `json:"id" bson:"id"`
	RootID          string    `json:"root_id,omitempty" bson:"root_id,omitempty"`
	ParentID        string    `json:"parent_id,omitempty" bson:"parent_id,omitempty"`
	Content         string    `json:"content" bson:"content"`
	AuthorID        string    `json:"author_id" bson:"author_id"`
	AuthorName      string    `json:"author_name" bson:"author_name"`
	LikeCount       int64     `json:"like_count" bson:"like_count"`
	SubCommentCount int64     `json:"sub_comment_count" bson:"sub_comment_count"`
	IPLocation      string    `json:"ip_location,omitempty" bson:"ip_location,omitempty"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at"`
	CrawledAt       time.Time `json:"crawled_at" bson:"crawled_at"`
}

// IsSubComment 是否为子评论
func (c Comment) IsSubComment() bool {
	return c.RootID != "" && c.RootID != c.ID
}

// RecordBatch 一次写入存储的记录集合
// 按 (platform, kind, day) 分区,追加写入
type RecordBatch struct {
	Platform Platform      `json:"platform"`
	Kind     OperationKind `json:"kind"`
	Day      string        `json:"day"`
	Items    []ContentItem `json:"items,omitempty"`
	Creators []Creator     `json:"creators,omitempty"`
	Comments []Comment     `json:"comments,omitempty"`
}

// Len 返回批次中的记录数
func (b RecordBatch) Len() int {
	return len(b.Items) + len(b.Creators) + len(b.Comments)
}

// DayKey 返回自然日分区键
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
