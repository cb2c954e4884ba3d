// Package bilibili 哔哩哔哩平台适配器
package bilibili

import (
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform"
)

// 平台常量
const (
	Platform = models.PlatformBilibili

	APIHost = "https://api.bilibili.com"
	WebHost = "https://www.bilibili.com"

	AuthCookie = "SESSDATA"
	QRXPath    = "//div[@class='login-scan-box']//img"
)

// Adapter 哔哩哔哩适配器
type Adapter struct {
	// APIBase 接口主机, 测试时替换为 httptest 地址
	APIBase string

	mu     sync.Mutex
	mixin  string
	keysAt time.Time
	// aids BV号到aid的缓存
	aids map[string]string
}

// New 创建哔哩哔哩适配器
func New() *Adapter {
	return &Adapter{APIBase: APIHost}
}

func (a *Adapter) Platform() models.Platform {
	return Platform
}

func (a *Adapter) DefaultHeaders() map[string]string {
	return map[string]string{
		"Accept":  "application/json, text/plain, */*",
		"Origin":  WebHost,
		"Referer": WebHost + "/",
	}
}

// Login 扫码登录入口; 不支持手机验证码登录
func (a *Adapter) Login() platform.LoginSurface {
	return platform.LoginSurface{
		URL:             WebHost,
		OpenXPath:       "//div[@class='right-entry__outside go-login-btn']//div",
		QRXPath:         QRXPath,
		AuthCookie:      AuthCookie,
		CookieDomain:    ".bilibili.com",
		RequiredCookies: []string{AuthCookie},
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Classify HTTP 412 与 code -352/-412 为风控; code -101 为未登录
func (a *Adapter) Classify(statusCode int, body []byte) platform.Classification {
	if statusCode == http.StatusPreconditionFailed {
		return platform.Classification{Outcome: platform.OutcomeSoftRiskControl, Code: statusCode, Message: "请求被拦截"}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return platform.Classification{Outcome: platform.OutcomeHardFailure, Code: statusCode, Message: "响应不是JSON"}
	}

	switch {
	case env.Code == -352 || env.Code == -412:
		return platform.Classification{Outcome: platform.OutcomeSoftRiskControl, Code: env.Code, Message: env.Message}
	case env.Code == -101:
		return platform.Classification{Outcome: platform.OutcomeAuthExpired, Code: env.Code, Message: env.Message}
	case statusCode == http.StatusOK && env.Code == 0:
		return platform.Classification{Outcome: platform.OutcomeSuccess, Data: env.Data}
	default:
		return platform.Classification{Outcome: platform.OutcomeHardFailure, Code: env.Code, Message: env.Message}
	}
}

func (a *Adapter) PingRequest() platform.Request {
	return platform.Request{Method: http.MethodGet, BaseURL: a.APIBase, Path: pathNav, Unsigned: true}
}

func (a *Adapter) ParsePing(data json.RawMessage) (bool, map[string]string, error) {
	var nav struct {
		IsLogin bool        `json:"isLogin"`
		Mid     json.Number `json:"mid"`
		Uname   string      `json:"uname"`
	}
	if err := json.Unmarshal(data, &nav); err != nil {
		return false, nil, err
	}
	if !nav.IsLogin {
		return false, nil, nil
	}
	return true, map[string]string{"user_id": nav.Mid.String(), "nickname": nav.Uname}, nil
}

var bvPattern = regexp.MustCompile(`BV[0-9A-Za-z]{10}`)

// ParseItemRef 支持 aid、av号、BV号与视频URL
// BV号同时作为 ID 与 ShortCode, 需要 aid 的接口会先解析
func (a *Adapter) ParseItemRef(raw string) (platform.ItemRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return platform.ItemRef{}, &models.ValidationError{Field: "id", Reason: "视频ID不能为空"}
	}

	if bv := bvPattern.FindString(raw); bv != "" {
		return platform.ItemRef{ID: bv, ShortCode: bv}, nil
	}

	candidate := raw
	if strings.Contains(raw, "/") {
		u, err := url.Parse(raw)
		if err != nil {
			return platform.ItemRef{}, &models.ValidationError{Field: "id", Value: raw, Reason: "视频URL格式错误"}
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		candidate = parts[len(parts)-1]
	}
	candidate = strings.TrimPrefix(strings.ToLower(candidate), "av")
	if _, err := strconv.ParseInt(candidate, 10, 64); err != nil {
		return platform.ItemRef{}, &models.ValidationError{
			Field:      "id",
			Value:      raw,
			Reason:     "无法识别的视频ID",
			Suggestion: "aid、av号或BV号",
		}
	}
	return platform.ItemRef{ID: candidate}, nil
}

// ParseCreatorID 支持 mid 与 space.bilibili.com/<mid> 形式的URL
func ParseCreatorID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &models.ValidationError{Field: "creator_id", Reason: "用户ID不能为空"}
	}
	candidate := raw
	if strings.Contains(raw, "/") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", &models.ValidationError{Field: "creator_id", Value: raw, Reason: "URL格式错误"}
		}
		candidate = strings.Split(strings.Trim(u.Path, "/"), "/")[0]
	}
	if _, err := strconv.ParseInt(candidate, 10, 64); err != nil {
		return "", &models.ValidationError{Field: "creator_id", Value: raw, Reason: "用户ID必须为数字"}
	}
	return candidate, nil
}

// SupportsDayFilter 搜索接口支持 pubtime_begin_s / pubtime_end_s
func (a *Adapter) SupportsDayFilter() bool {
	return true
}

// absURL 补全 // 开头的图片地址
func absURL(u string) string {
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}

func videoURL(bvid, aid string) string {
	if bvid != "" {
		return WebHost + "/video/" + bvid
	}
	return WebHost + "/video/av" + aid
}

// ParseCreatorID 见包级函数 ParseCreatorID
func (a *Adapter) ParseCreatorID(raw string) (string, error) {
	return ParseCreatorID(raw)
}

var (
	_ platform.Adapter         = (*Adapter)(nil)
	_ platform.Preparer        = (*Adapter)(nil)
	_ platform.CreatorIDParser = (*Adapter)(nil)
)
