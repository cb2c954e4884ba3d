package client

import (
	"context"
	"time"
)

// 退避参数默认值
const (
	DefaultMaxRetries  = 3
	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = 10 * time.Second
)

// CalculateBackoff 计算第 attempt 次重试(从0开始)前的等待时间
// base 起步, 每次翻倍, 不超过 max
func CalculateBackoff(attempt int, base, max time.Duration) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// sleepContext 可被取消的等待
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
