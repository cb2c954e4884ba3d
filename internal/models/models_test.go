package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		schemes []string
		wantErr bool
	}{
		{"有效的HTTP URL", "http://example.com", nil, false},
		{"有效的HTTPS URL", "https://example.com", nil, false},
		{"带路径的URL", "https://example.com/path/to/resource", nil, false},
		{"无效的协议", "ftp://example.com", nil, true},
		{"默认不允许socks5", "socks5://127.0.0.1:1080", nil, true},
		{"指定socks5", "socks5://127.0.0.1:1080", []string{"http", "socks5"}, false},
		{"无效的URL", "not a url", nil, true},
		{"空URL", "", nil, true},
		{"无协议", "example.com", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url, tt.schemes...)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLoginType(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    LoginType
		wantErr bool
	}{
		{"二维码", "qrcode", LoginTypeQRCode, false},
		{"空值默认二维码", "", LoginTypeQRCode, false},
		{"大写cookie", "COOKIE", LoginTypeCookie, false},
		{"手机号", " phone ", LoginTypePhone, false},
		{"非法值", "password", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLoginType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("期望错误=%v, 实际错误=%v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("期望 %q, 得到 %q", tt.want, got)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("错误应可匹配 ErrValidation: %v", err)
			}
		})
	}
}

func TestLoginStatus_PublicStatus(t *testing.T) {
	tests := []struct {
		status   LoginStatus
		public   string
		terminal bool
	}{
		{LoginStatusPending, "processing", false},
		{LoginStatusWaitingScan, "waiting", false},
		{LoginStatusCookieSubmitted, "processing", false},
		{LoginStatusValidating, "processing", false},
		{LoginStatusSuccess, "success", true},
		{LoginStatusExpired, "expired", true},
		{LoginStatusFailed, "failed", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.PublicStatus(); got != tt.public {
				t.Errorf("PublicStatus 期望 %q, 得到 %q", tt.public, got)
			}
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal 期望 %v, 得到 %v", tt.terminal, got)
			}
		})
	}
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("exec: chrome not found")
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"启动错误", &LaunchError{Platform: PlatformXHS, Reason: "launch", Cause: cause}, ErrLaunch},
		{"登录过期", &LoginError{Platform: PlatformXHS, Kind: ErrLoginExpired, Message: "二维码过期"}, ErrLoginExpired},
		{"登录失效", &AuthExpiredError{Platform: PlatformXHS, Code: -100}, ErrAuthExpired},
		{"风控", &SoftRiskControlError{Platform: PlatformXHS, Code: 461, Attempts: 4}, ErrSoftRiskControl},
		{"硬失败", &HardAPIError{Platform: PlatformXHS, StatusCode: 500}, ErrHardAPIFailure},
		{"参数错误", &ValidationError{Field: "ids", Reason: "不能为空"}, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("外层: %w", tt.err)
			if !errors.Is(wrapped, tt.target) {
				t.Errorf("errors.Is 期望匹配 %v: %v", tt.target, wrapped)
			}
		})
	}

	launch := &LaunchError{Platform: PlatformXHS, Reason: "launch", Cause: cause}
	if !errors.Is(launch, cause) {
		t.Errorf("LaunchError 应暴露底层原因")
	}
}

func TestDedupeIDs(t *testing.T) {
	got := DedupeIDs([]string{"a", " b ", "a", "", "c", "b"})
	want := []string{"a", "b", "c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DedupeIDs 结果不符 (-want +got):\n%s", diff)
	}
}

func TestCookieSnapshot(t *testing.T) {
	snap := CookieSnapshot{
		Platform: PlatformXHS,
		Cookies: []Cookie{
			{Name: "a1", Value: "abc"},
			{Name: "web_session", Value: "s1"},
		},
	}
	if got := snap.Value("web_session"); got != "s1" {
		t.Errorf("期望 s1, 得到 %q", got)
	}
	if got := snap.Value("missing"); got != "" {
		t.Errorf("期望空值, 得到 %q", got)
	}
	if got := snap.Header(); got != "a1=abc; web_session=s1" {
		t.Errorf("Cookie头不符: %q", got)
	}
}

func TestHeaderConfig_ForPlatform(t *testing.T) {
	hc := HeaderConfig{
		Headers: map[string]string{"Accept-Language": "zh-CN", "X-Common": "1"},
		Platforms: map[string]PlatformHeaders{
			"xhs": {Headers: map[string]string{"X-Common": "xhs"}},
		},
	}
	got := hc.ForPlatform(PlatformXHS)
	want := map[string]string{"Accept-Language": "zh-CN", "X-Common": "xhs"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("平台头部合并不符 (-want +got):\n%s", diff)
	}
	if got := hc.ForPlatform(PlatformBilibili); got["X-Common"] != "1" {
		t.Errorf("未配置的平台应只使用公共头部")
	}
}
