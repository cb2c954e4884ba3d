package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// RedisConfig Redis连接配置
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Timeout   time.Duration
}

// RedisCache 基于Redis的状态缓存, 多个进程可共享
// 过期由 SETEX 保证, 单个key的写入与过期是原子的
type RedisCache struct {
	client *redis.Client
	policy TTLPolicy
	prefix string
	now    func() time.Time
}

// NewRedisCache 创建Redis状态缓存并测试连接
func NewRedisCache(ctx context.Context, cfg RedisConfig, policy TTLPolicy) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis连接失败: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Msg("Redis状态缓存已连接")
	return NewRedisCacheWithClient(client, cfg.KeyPrefix, policy), nil
}

// NewRedisCacheWithClient 使用已有客户端创建状态缓存
func NewRedisCacheWithClient(client *redis.Client, prefix string, policy TTLPolicy) *RedisCache {
	if prefix == "" {
		prefix = "mediacrawler:login_status:"
	}
	return &RedisCache{
		client: client,
		policy: policy.normalize(),
		prefix: prefix,
		now:    time.Now,
	}
}

func (r *RedisCache) key(platform models.Platform) string {
	return r.prefix + string(platform)
}

// Get 读取平台状态
func (r *RedisCache) Get(ctx context.Context, platform models.Platform) (models.PlatformSessionStatus, bool, error) {
	raw, err := r.client.Get(ctx, r.key(platform)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.PlatformSessionStatus{}, false, nil
	}
	if err != nil {
		return models.PlatformSessionStatus{}, false, fmt.Errorf("读取登录状态失败: %w", err)
	}

	var status models.PlatformSessionStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		// 损坏的条目视为不存在
		log.Warn().Err(err).Str("platform", platform.String()).Msg("登录状态缓存条目无法解析")
		return models.PlatformSessionStatus{}, false, nil
	}
	return status, true, nil
}

// Set 写入平台状态
func (r *RedisCache) Set(ctx context.Context, platform models.Platform, loggedIn bool) (models.PlatformSessionStatus, error) {
	ttl, class := r.policy.For(loggedIn)
	status := models.PlatformSessionStatus{
		Platform:   platform,
		IsLoggedIn: loggedIn,
		CheckedAt:  r.now(),
		TTLClass:   class,
	}

	data, err := json.Marshal(status)
	if err != nil {
		return status, fmt.Errorf("序列化登录状态失败: %w", err)
	}
	if err := r.client.SetEX(ctx, r.key(platform), data, ttl).Err(); err != nil {
		return status, fmt.Errorf("写入登录状态失败: %w", err)
	}
	return status, nil
}

// Invalidate 删除平台状态
func (r *RedisCache) Invalidate(ctx context.Context, platform models.Platform) error {
	if err := r.client.Del(ctx, r.key(platform)).Err(); err != nil {
		return fmt.Errorf("删除登录状态失败: %w", err)
	}
	return nil
}

// Close 关闭Redis连接
func (r *RedisCache) Close() error {
	return r.client.Close()
}
