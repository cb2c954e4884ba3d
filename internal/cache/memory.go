package cache

import (
	"context"
	"sync"
	"time"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

type memoryEntry struct {
	status    models.PlatformSessionStatus
	expiresAt time.Time
}

// MemoryCache 进程内状态缓存
type MemoryCache struct {
	policy  TTLPolicy
	now     func() time.Time
	entries map[models.Platform]memoryEntry
	mu      sync.RWMutex
}

// MemoryOption MemoryCache 可选配置
type MemoryOption func(*MemoryCache)

// WithClock 替换时钟(测试用)
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) {
		c.now = now
	}
}

// NewMemoryCache 创建进程内状态缓存
func NewMemoryCache(policy TTLPolicy, opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		policy:  policy.normalize(),
		now:     time.Now,
		entries: make(map[models.Platform]memoryEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get 读取平台状态, 过期条目在读取时顺带清理
func (c *MemoryCache) Get(_ context.Context, platform models.Platform) (models.PlatformSessionStatus, bool, error) {
	now := c.now()

	c.mu.RLock()
	entry, exists := c.entries[platform]
	c.mu.RUnlock()

	if !exists {
		return models.PlatformSessionStatus{}, false, nil
	}
	if !now.Before(entry.expiresAt) {
		c.mu.Lock()
		// 期间可能已被重新写入
		if cur, ok := c.entries[platform]; ok && cur.expiresAt.Equal(entry.expiresAt) {
			delete(c.entries, platform)
		}
		c.mu.Unlock()
		return models.PlatformSessionStatus{}, false, nil
	}
	return entry.status, true, nil
}

// Set 写入平台状态
func (c *MemoryCache) Set(_ context.Context, platform models.Platform, loggedIn bool) (models.PlatformSessionStatus, error) {
	ttl, class := c.policy.For(loggedIn)
	now := c.now()
	status := models.PlatformSessionStatus{
		Platform:   platform,
		IsLoggedIn: loggedIn,
		CheckedAt:  now,
		TTLClass:   class,
	}

	c.mu.Lock()
	c.entries[platform] = memoryEntry{status: status, expiresAt: now.Add(ttl)}
	c.mu.Unlock()

	return status, nil
}

// Invalidate 删除平台状态
func (c *MemoryCache) Invalidate(_ context.Context, platform models.Platform) error {
	c.mu.Lock()
	delete(c.entries, platform)
	c.mu.Unlock()
	return nil
}

// Len 返回未过期条目数
func (c *MemoryCache) Len() int {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}
