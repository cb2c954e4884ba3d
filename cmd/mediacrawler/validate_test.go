package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

func TestValidateCrawlFlags(t *testing.T) {
	tests := []struct {
		name      string
		flags     crawlFlags
		want      models.Platform
		wantField string
	}{
		{"零值使用默认", crawlFlags{platform: "xhs"}, models.PlatformXHS, ""},
		{"平台大小写", crawlFlags{platform: "BiliBili", limit: 10}, models.PlatformBilibili, ""},
		{"缺少平台", crawlFlags{}, "", "platform"},
		{"负的上限", crawlFlags{platform: "xhs", limit: -1}, "", "limit"},
		{"并发过大", crawlFlags{platform: "xhs", concurrency: 33}, "", "concurrency"},
		{"负的间隔", crawlFlags{platform: "xhs", interval: -time.Second}, "", "interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateCrawlFlags(tt.flags)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("不期望错误: %v", err)
				}
				if got != tt.want {
					t.Errorf("期望 %s, 得到 %s", tt.want, got)
				}
				return
			}
			var ve *models.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("期望 ValidationError, 得到 %v", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("期望字段 %s, 得到 %s", tt.wantField, ve.Field)
			}
		})
	}
}

func TestCollectIDs(t *testing.T) {
	file := filepath.Join(t.TempDir(), "ids.txt")
	content := "# 注释\nb\n\nc\na\n"
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatalf("写入ID文件失败: %v", err)
	}

	got, err := CollectIDs("ids", []string{"a", "b"}, file)
	if err != nil {
		t.Fatalf("不期望错误: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("ID不匹配 (-期望 +得到):\n%s", diff)
	}

	if _, err := CollectIDs("ids", nil, ""); err == nil {
		t.Error("空ID列表应该返回错误")
	}
	if _, err := CollectIDs("ids", nil, filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("文件不存在应该返回错误")
	}
}

func TestParseDay(t *testing.T) {
	since, err := ParseDay("since", "2024-03-01", false)
	if err != nil {
		t.Fatalf("不期望错误: %v", err)
	}
	until, err := ParseDay("until", "2024-03-01", true)
	if err != nil {
		t.Fatalf("不期望错误: %v", err)
	}
	if got := until.Sub(since); got != 24*time.Hour {
		t.Errorf("包含结束日应为次日零点, 间隔 %s", got)
	}

	if got, err := ParseDay("since", "", false); err != nil || !got.IsZero() {
		t.Errorf("空值应返回零值时间, 得到 %v, %v", got, err)
	}

	_, err = ParseDay("since", "2024/03/01", false)
	var ve *models.ValidationError
	if !errors.As(err, &ve) || ve.Field != "since" {
		t.Errorf("期望 since 字段的 ValidationError, 得到 %v", err)
	}
}
