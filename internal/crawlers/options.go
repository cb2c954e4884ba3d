package crawlers

import (
	"fmt"
	"time"

	"dario.cat/mergo"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// 默认参数
const (
	DefaultPageSize    = 20
	DefaultMaxItems    = 100
	DefaultMaxComments = 50
	DefaultMaxPerDay   = 20
	DefaultInterval    = 2 * time.Second
	DefaultConcurrency = 4
)

// Options 单次采集的参数
// 每次调用独立传入, 零值字段取编排器的默认值
type Options struct {
	// PageSize 每页条数(平台支持时)
	PageSize int
	// MaxItems 每个关键词/创作者的内容上限
	MaxItems int
	// MaxPerDay 按天搜索 per_day 策略下每天的上限
	MaxPerDay int
	// MaxComments 每条内容的评论上限
	MaxComments int
	// Interval 相邻两次请求的最小间隔
	Interval time.Duration
	// Concurrency 同时处理的内容/创作者数
	Concurrency int
	// OnProgress 每处理完一个ID回调一次
	OnProgress func(done, total int)
}

// DefaultOptions 返回默认参数
func DefaultOptions() Options {
	return Options{
		PageSize:    DefaultPageSize,
		MaxItems:    DefaultMaxItems,
		MaxComments: DefaultMaxComments,
		MaxPerDay:   DefaultMaxPerDay,
		Interval:    DefaultInterval,
		Concurrency: DefaultConcurrency,
	}
}

// mergeOptions 把默认值合并到调用方参数的零值字段
func mergeOptions(call, defaults Options) (Options, error) {
	merged := call
	if err := mergo.Merge(&merged, defaults); err != nil {
		return Options{}, fmt.Errorf("合并采集参数失败: %w", err)
	}
	if merged.PageSize < 0 || merged.MaxItems < 0 || merged.MaxComments < 0 || merged.MaxPerDay < 0 {
		return Options{}, &models.ValidationError{Field: "options", Reason: "上限与分页参数不能为负数"}
	}
	if merged.Interval < 0 {
		return Options{}, &models.ValidationError{Field: "interval", Value: merged.Interval.String(), Reason: "请求间隔不能为负数"}
	}
	if merged.Concurrency <= 0 {
		merged.Concurrency = 1
	}
	return merged, nil
}
