package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/google/go-cmp/cmp"
)

func TestParseCookieString(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []models.Cookie
		wantErr bool
	}{
		{
			name: "标准格式",
			raw:  "a1=abc; web_session=040069",
			want: []models.Cookie{
				{Name: "a1", Value: "abc", Domain: ".xiaohongshu.com", Path: "/"},
				{Name: "web_session", Value: "040069", Domain: ".xiaohongshu.com", Path: "/"},
			},
		},
		{
			name: "值中带等号",
			raw:  "token=a=b;",
			want: []models.Cookie{
				{Name: "token", Value: "a=b", Domain: ".xiaohongshu.com", Path: "/"},
			},
		},
		{name: "缺少等号", raw: "abc", wantErr: true},
		{name: "空串", raw: " ; ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCookieString(tt.raw, ".xiaohongshu.com")
			if (err != nil) != tt.wantErr {
				t.Fatalf("期望错误=%v, 实际错误=%v", tt.wantErr, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("解析结果不符 (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadLinesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	content := "# 笔记ID\n6512a\n\n  6512b  \n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := ReadLinesFromFile(path)
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if diff := cmp.Diff([]string{"6512a", "6512b"}, got); diff != "" {
		t.Errorf("读取结果不符 (-want +got):\n%s", diff)
	}

	empty := filepath.Join(t.TempDir(), "empty.txt")
	os.WriteFile(empty, []byte("# only comment\n"), 0644)
	if _, err := ReadLinesFromFile(empty); err == nil {
		t.Error("空文件应返回错误")
	}
}

func TestFormatLastLogin(t *testing.T) {
	if got := FormatLastLogin(time.Time{}); got != NeverLoggedIn {
		t.Errorf("期望 %q, 得到 %q", NeverLoggedIn, got)
	}
	ts := time.Date(2024, 5, 1, 8, 30, 0, 0, time.Local)
	if got := FormatLastLogin(ts); got != "2024-05-01 08:30:00" {
		t.Errorf("格式化结果不符: %q", got)
	}
}
