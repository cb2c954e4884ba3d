// Package xhs 小红书平台适配器
package xhs

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform"
)

// 平台常量
const (
	Platform = models.PlatformXHS

	APIHost = "https://edith.xiaohongshu.com"
	WebHost = "https://www.xiaohongshu.com"

	AuthCookie = "web_session"
	QRXPath    = "//img[@class='qrcode-img']"

	// ipBlockCode 账号/IP被限制
	ipBlockCode = 300012
)

// Adapter 小红书适配器
type Adapter struct {
	// APIBase 接口主机, 测试时替换为 httptest 地址
	APIBase string
	// WebBase 网页主机
	WebBase string

	mu  sync.Mutex
	rnd *rand.Rand
}

// New 创建小红书适配器
func New() *Adapter {
	return &Adapter{
		APIBase: APIHost,
		WebBase: WebHost,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (a *Adapter) Platform() models.Platform {
	return Platform
}

func (a *Adapter) DefaultHeaders() map[string]string {
	return map[string]string{
		"Accept":       "application/json, text/plain, */*",
		"Content-Type": "application/json;charset=UTF-8",
		"Origin":       WebHost,
		"Referer":      WebHost + "/",
	}
}

func (a *Adapter) Login() platform.LoginSurface {
	return platform.LoginSurface{
		URL:             WebHost + "/explore",
		OpenXPath:       "//*[@id='app']/div[1]/div[2]/div[1]/ul/div[1]/button",
		QRXPath:         QRXPath,
		AuthCookie:      AuthCookie,
		CookieDomain:    ".xiaohongshu.com",
		RequiredCookies: []string{AuthCookie, "a1"},
		Phone: &platform.PhoneSurface{
			SwitchXPath:   "//div[@class='login-container']//div[contains(@class,'other-method')]/div[1]",
			PhoneXPath:    "//label[@class='phone']/input",
			SendCodeXPath: "//label[@class='auth-code']/span",
			CodeXPath:     "//label[@class='auth-code']/input",
			SubmitXPath:   "//div[@class='input-container']/button",
		},
	}
}

// envelope 接口外层结构
type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// Classify HTTP 461/471 与 code=300012 为风控; code -100/-101 与 HTTP 401 为登录失效
func (a *Adapter) Classify(statusCode int, body []byte) platform.Classification {
	switch statusCode {
	case 461, 471:
		return platform.Classification{Outcome: platform.OutcomeSoftRiskControl, Code: statusCode, Message: "触发风控验证码"}
	case http.StatusUnauthorized:
		return platform.Classification{Outcome: platform.OutcomeAuthExpired, Code: statusCode, Message: "未登录"}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return platform.Classification{Outcome: platform.OutcomeHardFailure, Code: statusCode, Message: "响应不是JSON"}
	}

	switch {
	case env.Code == ipBlockCode:
		return platform.Classification{Outcome: platform.OutcomeSoftRiskControl, Code: env.Code, Message: env.Msg}
	case env.Code == -100 || env.Code == -101:
		return platform.Classification{Outcome: platform.OutcomeAuthExpired, Code: env.Code, Message: env.Msg}
	case statusCode == http.StatusOK && env.Success:
		return platform.Classification{Outcome: platform.OutcomeSuccess, Data: env.Data}
	default:
		msg := env.Msg
		if msg == "" {
			msg = http.StatusText(statusCode)
		}
		return platform.Classification{Outcome: platform.OutcomeHardFailure, Code: env.Code, Message: msg}
	}
}

func (a *Adapter) PingRequest() platform.Request {
	return platform.Request{Method: http.MethodGet, BaseURL: a.APIBase, Path: "/api/sns/web/v2/user/me"}
}

func (a *Adapter) ParsePing(data json.RawMessage) (bool, map[string]string, error) {
	var me struct {
		UserID   string `json:"user_id"`
		Nickname string `json:"nickname"`
		Guest    bool   `json:"guest"`
	}
	if err := json.Unmarshal(data, &me); err != nil {
		return false, nil, err
	}
	if me.Guest || me.UserID == "" {
		return false, nil, nil
	}
	return true, map[string]string{"user_id": me.UserID, "nickname": me.Nickname}, nil
}

// ParseItemRef 支持笔记ID与 /explore/<id>?xsec_token=... 形式的笔记URL
func (a *Adapter) ParseItemRef(raw string) (platform.ItemRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return platform.ItemRef{}, &models.ValidationError{Field: "id", Reason: "笔记ID不能为空"}
	}
	if !strings.Contains(raw, "/") {
		return platform.ItemRef{ID: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return platform.ItemRef{}, &models.ValidationError{Field: "id", Value: raw, Reason: "笔记URL格式错误"}
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	id := parts[len(parts)-1]
	if id == "" {
		return platform.ItemRef{}, &models.ValidationError{Field: "id", Value: raw, Reason: "无法从URL解析笔记ID"}
	}
	q := u.Query()
	return platform.ItemRef{
		ID:         id,
		XsecToken:  q.Get("xsec_token"),
		XsecSource: q.Get("xsec_source"),
	}, nil
}

// ParseCreatorID 支持用户ID与 /user/profile/<id> 形式的主页URL
func ParseCreatorID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &models.ValidationError{Field: "creator_id", Reason: "用户ID不能为空"}
	}
	const seg = "/user/profile/"
	idx := strings.Index(raw, seg)
	if idx < 0 {
		if strings.Contains(raw, "/") {
			return "", &models.ValidationError{Field: "creator_id", Value: raw, Reason: "URL中没有用户主页路径"}
		}
		return raw, nil
	}
	id := raw[idx+len(seg):]
	if i := strings.IndexAny(id, "?#/"); i >= 0 {
		id = id[:i]
	}
	if id == "" {
		return "", &models.ValidationError{Field: "creator_id", Value: raw, Reason: "无法从URL解析用户ID"}
	}
	return id, nil
}

// SupportsDayFilter 搜索接口没有发布时间范围参数
func (a *Adapter) SupportsDayFilter() bool {
	return false
}

func (a *Adapter) randInt63() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rnd == nil {
		return rand.Int63n(2147483646)
	}
	return a.rnd.Int63n(2147483646)
}

// NewSearchID 生成同一关键词翻页共用的搜索会话ID
func (a *Adapter) NewSearchID() string {
	return searchID(time.Now(), a.randInt63())
}

// ParseCreatorID 见包级函数 ParseCreatorID
func (a *Adapter) ParseCreatorID(raw string) (string, error) {
	return ParseCreatorID(raw)
}

var (
	_ platform.Adapter         = (*Adapter)(nil)
	_ platform.SearchSessioner = (*Adapter)(nil)
	_ platform.CreatorIDParser = (*Adapter)(nil)
)
