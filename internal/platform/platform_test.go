package platform

import (
	"errors"
	"net/url"
	"testing"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"无标签", "露营装备清单", "露营装备清单"},
		{"高亮标签", `<em class="keyword">露营</em>装备`, "露营装备"},
		{"实体", "A &amp; B", "A & B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripHTML(tt.in); got != tt.want {
				t.Errorf("期望 %q, 得到 %q", tt.want, got)
			}
		})
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want int64
	}{
		{"nil", nil, 0},
		{"浮点", float64(12), 12},
		{"字符串", "345", 345},
		{"万", "1.2万", 12000},
		{"w", "3w", 30000},
		{"加号", "10+", 10},
		{"非法", "abc", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseCount(tt.in); got != tt.want {
				t.Errorf("期望 %d, 得到 %d", tt.want, got)
			}
		})
	}
}

func TestUnixTime(t *testing.T) {
	if !UnixTime(0).IsZero() {
		t.Error("0 应返回零值")
	}
	sec := UnixTime(1700000000)
	ms := UnixTime(1700000000000)
	if !sec.Equal(ms) {
		t.Errorf("秒与毫秒时间戳结果不一致: %v vs %v", sec, ms)
	}
}

func TestMarshalCompact(t *testing.T) {
	got, err := MarshalCompact(map[string]interface{}{"keyword": "a&b <x>", "page": 1})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"keyword":"a&b <x>","page":1}` {
		t.Errorf("序列化结果不符: %s", got)
	}
}

func TestSignedRequestURI(t *testing.T) {
	u, _ := url.Parse("https://edith.xiaohongshu.com/api/sns/web/v2/comment/page?note_id=1&cursor=")
	r := &SignedRequest{URL: u}
	if got := r.URI(); got != "/api/sns/web/v2/comment/page?note_id=1&cursor=" {
		t.Errorf("URI不符: %s", got)
	}
	u2, _ := url.Parse("https://edith.xiaohongshu.com/api/sns/web/v1/feed")
	if got := (&SignedRequest{URL: u2}).URI(); got != "/api/sns/web/v1/feed" {
		t.Errorf("URI不符: %s", got)
	}
}

type stubAdapter struct {
	Adapter
	p models.Platform
}

func (s stubAdapter) Platform() models.Platform { return s.p }

func TestRegistry(t *testing.T) {
	r := NewRegistry(stubAdapter{p: "b"}, stubAdapter{p: "a"})

	if _, err := r.Get("a"); err != nil {
		t.Fatalf("期望找到平台a: %v", err)
	}

	_, err := r.Get("zz")
	if !errors.Is(err, models.ErrUnknownPlatform) {
		t.Errorf("期望 ErrUnknownPlatform, 得到 %v", err)
	}
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("未知平台应属于参数校验错误: %v", err)
	}

	got := r.Platforms()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("平台列表应排序: %v", got)
	}
}

func TestOutcomeString(t *testing.T) {
	want := map[Outcome]string{
		OutcomeSuccess:         "success",
		OutcomeSoftRiskControl: "soft_risk_control",
		OutcomeAuthExpired:     "auth_expired",
		OutcomeHardFailure:     "hard_failure",
	}
	for o, s := range want {
		if o.String() != s {
			t.Errorf("期望 %s, 得到 %s", s, o.String())
		}
	}
}
