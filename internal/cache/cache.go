// Package cache 记录各平台是否存在可用登录态的TTL缓存
//
// 未登录条目使用短TTL, 以便刚完成的登录能尽快被重新确认;
// 已登录条目使用长TTL, 尽量减少对平台的探测(每次探测都可能触发风控)。
package cache

import (
	"context"
	"time"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// 默认TTL
const (
	DefaultShortTTL = 60 * time.Second
	DefaultLongTTL  = 3600 * time.Second
)

// StatusCache 平台登录状态缓存
// 实现必须并发安全, 每个key的写入与过期是原子的
type StatusCache interface {
	// Get 读取平台状态, 条目不存在或已过期时 ok=false
	Get(ctx context.Context, platform models.Platform) (status models.PlatformSessionStatus, ok bool, err error)

	// Set 写入平台状态, TTL档位由 is_logged_in 决定
	Set(ctx context.Context, platform models.Platform, loggedIn bool) (models.PlatformSessionStatus, error)

	// Invalidate 删除平台状态
	Invalidate(ctx context.Context, platform models.Platform) error
}

// TTLPolicy 过期策略
type TTLPolicy struct {
	Short time.Duration
	Long  time.Duration
}

// DefaultTTLPolicy 返回默认过期策略(60s / 3600s)
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{Short: DefaultShortTTL, Long: DefaultLongTTL}
}

// For 返回登录状态对应的TTL与档位
func (p TTLPolicy) For(loggedIn bool) (time.Duration, models.TTLClass) {
	if loggedIn {
		return p.Long, models.TTLLong
	}
	return p.Short, models.TTLShort
}

func (p TTLPolicy) normalize() TTLPolicy {
	if p.Short <= 0 {
		p.Short = DefaultShortTTL
	}
	if p.Long <= 0 {
		p.Long = DefaultLongTTL
	}
	return p
}
