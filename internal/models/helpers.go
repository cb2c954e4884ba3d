package models

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// ValidateURL 验证URL, schemes 为空时只允许 http 与 https
func ValidateURL(urlStr string, schemes ...string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("无效的URL: %w", err)
	}
	if len(schemes) == 0 {
		schemes = []string{"http", "https"}
	}
	if !slices.Contains(schemes, parsed.Scheme) {
		return fmt.Errorf("URL协议必须是 %s 之一", strings.Join(schemes, ", "))
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL必须包含主机名")
	}
	return nil
}

// NewID 生成唯一ID
func NewID() string {
	return uuid.New().String()
}

// NewSessionID 生成登录会话ID
func NewSessionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// DedupeIDs 去除空白与重复ID,保持首次出现的顺序
func DedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
