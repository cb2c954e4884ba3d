package utils

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// NeverLoggedIn ListSessions 中从未登录时的展示值
const NeverLoggedIn = "从未登录"

// ReadLinesFromFile 从文件中读取ID/关键词列表
// 跳过空行和 # 开头的注释行
func ReadLinesFromFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开列表文件失败: %w", err)
	}
	defer file.Close()

	lines := make([]string, 0)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取列表文件失败: %w", err)
	}

	if len(lines) == 0 {
		return nil, fmt.Errorf("列表文件中没有有效内容: %s", path)
	}

	Debugf("从文件加载了 %d 行", len(lines))
	return lines, nil
}

// ParseCookieString 解析 "k1=v1; k2=v2" 形式的cookie串
func ParseCookieString(raw, domain string) ([]models.Cookie, error) {
	cookies := make([]models.Cookie, 0)
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, found := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			return nil, &models.ValidationError{
				Field:      "cookie",
				Reason:     fmt.Sprintf("cookie片段格式错误: %q", pair),
				Suggestion: "使用 'name=value; name2=value2' 格式",
			}
		}
		cookies = append(cookies, models.Cookie{
			Name:   name,
			Value:  strings.TrimSpace(value),
			Domain: domain,
			Path:   "/",
		})
	}
	if len(cookies) == 0 {
		return nil, &models.ValidationError{Field: "cookie", Reason: "cookie不能为空"}
	}
	return cookies, nil
}

// FormatLastLogin 格式化最近登录时间
func FormatLastLogin(t time.Time) string {
	if t.IsZero() {
		return NeverLoggedIn
	}
	return t.Format("2006-01-02 15:04:05")
}
