package models

import (
	"fmt"
	"strings"
	"time"
)

// Platform 平台标识,作为所有实体的分区键
type Platform string

const (
	// PlatformXHS 小红书
	PlatformXHS Platform = "xhs"
	// PlatformBilibili 哔哩哔哩
	PlatformBilibili Platform = "bilibili"
)

// String 实现fmt.Stringer接口
func (p Platform) String() string {
	return string(p)
}

// ParsePlatform 解析平台代码(不区分大小写)
func ParsePlatform(s string) (Platform, error) {
	code := strings.ToLower(strings.TrimSpace(s))
	if code == "" {
		return "", &ValidationError{Field: "platform", Reason: "平台不能为空"}
	}
	return Platform(code), nil
}

// LoginType 登录方式
type LoginType string

const (
	LoginTypeQRCode LoginType = "qrcode"
	LoginTypeCookie LoginType = "cookie"
	LoginTypePhone  LoginType = "phone"
)

// ParseLoginType 解析登录方式
func ParseLoginType(s string) (LoginType, error) {
	switch LoginType(strings.ToLower(strings.TrimSpace(s))) {
	case LoginTypeQRCode, "":
		return LoginTypeQRCode, nil
	case LoginTypeCookie:
		return LoginTypeCookie, nil
	case LoginTypePhone:
		return LoginTypePhone, nil
	default:
		return "", &ValidationError{
			Field:      "login_type",
			Reason:     fmt.Sprintf("不支持的登录方式: %s", s),
			Suggestion: "qrcode, cookie, phone",
		}
	}
}

// LoginStatus 登录会话状态
type LoginStatus string

const (
	LoginStatusPending         LoginStatus = "pending"
	LoginStatusWaitingScan     LoginStatus = "waiting_scan"
	LoginStatusCookieSubmitted LoginStatus = "cookie_submitted"
	LoginStatusValidating      LoginStatus = "validating"
	LoginStatusSuccess         LoginStatus = "success"
	LoginStatusExpired         LoginStatus = "expired"
	LoginStatusFailed          LoginStatus = "failed"
)

// IsTerminal 是否为终态(终态不可再变更)
func (s LoginStatus) IsTerminal() bool {
	switch s {
	case LoginStatusSuccess, LoginStatusExpired, LoginStatusFailed:
		return true
	}
	return false
}

// PublicStatus 对外协议中的状态值
// waiting_scan 对应 waiting, 其余非终态统一为 processing
func (s LoginStatus) PublicStatus() string {
	switch s {
	case LoginStatusWaitingScan:
		return "waiting"
	case LoginStatusSuccess:
		return "success"
	case LoginStatusExpired:
		return "expired"
	case LoginStatusFailed:
		return "failed"
	default:
		return "processing"
	}
}

// LoginSession 一次登录尝试
type LoginSession struct {
	ID         string            `json:"session_id"`
	Platform   Platform          `json:"platform"`
	LoginType  LoginType         `json:"login_type"`
	Status     LoginStatus       `json:"status"`
	Message    string            `json:"message"`
	QRCode     string            `json:"qr_code_base64,omitempty"`
	QRIssuedAt time.Time         `json:"qrcode_timestamp,omitempty"`
	Identity   map[string]string `json:"identity,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	FinishedAt time.Time         `json:"finished_at,omitempty"`
}

// Clone 返回会话的副本(对外只暴露快照)
func (s *LoginSession) Clone() *LoginSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.Identity != nil {
		c.Identity = make(map[string]string, len(s.Identity))
		for k, v := range s.Identity {
			c.Identity[k] = v
		}
	}
	return &c
}

// TTLClass 状态缓存的过期档位
type TTLClass string

const (
	TTLShort TTLClass = "short"
	TTLLong  TTLClass = "long"
)

// PlatformSessionStatus 平台登录状态缓存条目
type PlatformSessionStatus struct {
	Platform   Platform  `json:"platform"`
	IsLoggedIn bool      `json:"is_logged_in"`
	CheckedAt  time.Time `json:"checked_at"`
	TTLClass   TTLClass  `json:"ttl_class"`
}

// SessionSummary ListSessions 返回的单个平台概况
type SessionSummary struct {
	Platform   Platform `json:"platform"`
	IsLoggedIn bool     `json:"is_logged_in"`
	LastLogin  string   `json:"last_login,omitempty"`
}

// Cookie 浏览器cookie快照中的一项
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// CookieSnapshot 某一时刻的cookie与localStorage快照,读取后视为不可变
type CookieSnapshot struct {
	Platform Platform          `json:"platform"`
	Cookies  []Cookie          `json:"cookies"`
	Storage  map[string]string `json:"storage,omitempty"`
	TakenAt  time.Time         `json:"taken_at"`
}

// Value 返回指定名称的cookie值
func (s CookieSnapshot) Value(name string) string {
	for _, c := range s.Cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// Header 拼接为Cookie请求头
func (s CookieSnapshot) Header() string {
	parts := make([]string, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
