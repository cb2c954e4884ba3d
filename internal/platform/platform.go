// Package platform 定义平台适配器接口
//
// 每个平台一个实现: 负责请求签名、登录页面描述、响应分类以及单页数据的
// 请求与解析。签名客户端和采集编排只依赖本包的接口。
package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// Outcome 响应分类
type Outcome int

const (
	// OutcomeSuccess 2xx 且数据结构符合预期
	OutcomeSuccess Outcome = iota
	// OutcomeSoftRiskControl 平台限流或验证挑战, 可退避重试
	OutcomeSoftRiskControl
	// OutcomeAuthExpired 平台返回未登录
	OutcomeAuthExpired
	// OutcomeHardFailure 其余一切失败, 不重试
	OutcomeHardFailure
)

// String 实现fmt.Stringer接口
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSoftRiskControl:
		return "soft_risk_control"
	case OutcomeAuthExpired:
		return "auth_expired"
	default:
		return "hard_failure"
	}
}

// Classification 单次响应的分类结果
type Classification struct {
	Outcome Outcome
	// Code 平台业务码
	Code    int
	Message string
	// Data 去掉平台外层信封后的数据
	Data json.RawMessage
}

// Request 调用方描述的一次接口请求
type Request struct {
	Method string
	// BaseURL 协议+主机, 如 https://edith.xiaohongshu.com
	BaseURL string
	// Path 接口路径, 同时用作指标与日志中的端点名
	Path   string
	Query  url.Values
	Body   interface{}
	Header http.Header
	// Unsigned 不计算签名(如获取签名密钥本身的请求)
	Unsigned bool
	// Raw 返回未经信封解析的原始响应体(HTML页面)
	Raw bool
}

// SignedRequest 签名后的请求, 仅存在于一次HTTP调用期间
type SignedRequest struct {
	Method string
	URL    *url.URL
	// Body 已序列化的请求体, 签名与发送使用同一份字节
	Body   []byte
	Header http.Header
}

// URI 返回路径加查询串, 签名算法使用
func (r *SignedRequest) URI() string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}

// LoginSurface 登录页面描述
type LoginSurface struct {
	// URL 登录页地址
	URL string
	// OpenXPath 需要点击才出现二维码时的按钮(可选)
	OpenXPath string
	// QRXPath 二维码图片元素
	QRXPath string
	// AuthCookie 登录成功后会变化的鉴权cookie
	AuthCookie string
	// CookieDomain 注入cookie使用的域
	CookieDomain string
	// RequiredCookies cookie登录必须包含的字段
	RequiredCookies []string
	// Phone 手机验证码登录(可选)
	Phone *PhoneSurface
}

// PhoneSurface 手机验证码登录页面元素
type PhoneSurface struct {
	SwitchXPath   string
	PhoneXPath    string
	SendCodeXPath string
	CodeXPath     string
	SubmitXPath   string
}

// Page 单页结果
type Page[T any] struct {
	Items   []T
	Cursor  string
	HasMore bool
}

// ItemRef 内容的引用
// 部分平台拉取详情/评论需要额外的令牌, 与ID一起携带
type ItemRef struct {
	ID         string
	ShortCode  string
	XsecToken  string
	XsecSource string
}

// SearchQuery 单页搜索参数
type SearchQuery struct {
	Keyword  string
	Page     int
	PageSize int
	Sort     string
	Type     string
	// SearchID 同一关键词翻页共用的搜索会话ID
	SearchID string
	// Since/Until 发布时间范围(可选, 需平台支持)
	Since time.Time
	Until time.Time
}

// Caller 适配器访问平台接口的入口, 由签名客户端实现
type Caller interface {
	Call(ctx context.Context, platform models.Platform, req Request) (json.RawMessage, error)
	Snapshot(ctx context.Context, platform models.Platform) (models.CookieSnapshot, error)
}

// Signer 请求签名
// 对相同的 (请求, cookie快照, 时间戳) 必须产生相同的签名
type Signer interface {
	Sign(req *SignedRequest, snap models.CookieSnapshot, now time.Time) error
}

// Adapter 平台适配器
type Adapter interface {
	Signer

	Platform() models.Platform

	// DefaultHeaders 平台默认请求头(UA/Origin/Referer等)
	DefaultHeaders() map[string]string

	// Login 登录页面描述
	Login() LoginSurface

	// Classify 对响应分类
	Classify(statusCode int, body []byte) Classification

	// PingRequest 轻量的登录态探测请求
	PingRequest() Request

	// ParsePing 解析探测结果, 返回是否已登录和账号信息
	ParsePing(data json.RawMessage) (loggedIn bool, identity map[string]string, err error)

	// ParseItemRef 解析内容ID或内容URL
	ParseItemRef(raw string) (ItemRef, error)

	// SupportsDayFilter 搜索是否支持发布时间范围
	SupportsDayFilter() bool

	SearchPage(ctx context.Context, c Caller, q SearchQuery) (Page[models.ContentItem], error)
	Detail(ctx context.Context, c Caller, ref ItemRef) (*models.ContentItem, error)
	CreatorFeedPage(ctx context.Context, c Caller, creatorID, cursor string) (Page[models.ContentItem], error)
	CreatorProfile(ctx context.Context, c Caller, creatorID string) (*models.Creator, error)
	CommentPage(ctx context.Context, c Caller, ref ItemRef, cursor string) (Page[models.Comment], error)
	SubCommentPage(ctx context.Context, c Caller, ref ItemRef, rootID, cursor string) (Page[models.Comment], error)
}

// Evaluator 在平台浏览器页面中执行脚本, 由浏览器会话管理器实现
// pageURL 非空时保证脚本在该站点的页面中执行
type Evaluator interface {
	Eval(ctx context.Context, platform models.Platform, pageURL, js string, args ...interface{}) (json.RawMessage, error)
}

// PageSigner 部分签名参数只能由已登录页面计算的适配器(可选实现)
// PageSign 把页面给出的值写入请求头, 随后的 Sign 只依赖这些值
type PageSigner interface {
	PageSign(ctx context.Context, eval Evaluator, req *SignedRequest) error
}

// Preparer 签名前需要准备密钥的适配器(可选实现)
type Preparer interface {
	Prepare(ctx context.Context, c Caller, snap models.CookieSnapshot) error
}

// SearchSessioner 翻页需要共用搜索会话ID的适配器(可选实现)
type SearchSessioner interface {
	NewSearchID() string
}

// CreatorIDParser 支持从主页URL解析创作者ID的适配器(可选实现)
type CreatorIDParser interface {
	ParseCreatorID(raw string) (string, error)
}
