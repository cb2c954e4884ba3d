package main

import (
	"fmt"
	"time"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/utils"
)

// crawlFlags 采集子命令共用的参数
type crawlFlags struct {
	platform    string
	limit       int
	pageSize    int
	maxComments int
	interval    time.Duration
	concurrency int
}

// ValidateCrawlFlags 校验采集参数; 0 表示使用配置中的默认值
func ValidateCrawlFlags(f crawlFlags) (models.Platform, error) {
	p, err := models.ParsePlatform(f.platform)
	if err != nil {
		return "", err
	}
	checks := []struct {
		field string
		value int
	}{
		{"limit", f.limit},
		{"page-size", f.pageSize},
		{"max-comments", f.maxComments},
		{"concurrency", f.concurrency},
	}
	for _, c := range checks {
		if c.value != 0 {
			if err := utils.ValidatePositive(c.field, c.value); err != nil {
				return "", err
			}
		}
	}
	if f.concurrency > 32 {
		return "", &models.ValidationError{Field: "concurrency", Value: fmt.Sprint(f.concurrency), Reason: "并发数必须在1-32之间"}
	}
	if f.interval < 0 {
		return "", &models.ValidationError{Field: "interval", Value: f.interval.String(), Reason: "请求间隔不能为负数"}
	}
	return p, nil
}

// CollectIDs 合并命令行与列表文件中的ID, 去重后返回
func CollectIDs(field string, ids []string, file string) ([]string, error) {
	all := append([]string(nil), ids...)
	if file != "" {
		lines, err := utils.ReadLinesFromFile(file)
		if err != nil {
			return nil, err
		}
		all = append(all, lines...)
	}
	return utils.ValidateIDs(field, all)
}

// ParseDay 解析 2006-01-02 格式的日期; inclusiveEnd 时返回次日零点
func ParseDay(field, raw string, inclusiveEnd bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return time.Time{}, &models.ValidationError{Field: field, Value: raw, Reason: "日期格式错误", Suggestion: "2006-01-02"}
	}
	if inclusiveEnd {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}
