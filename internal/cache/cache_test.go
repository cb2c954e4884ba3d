package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryCache_TTLAsymmetry(t *testing.T) {
	ctx := context.Background()
	policy := DefaultTTLPolicy()

	tests := []struct {
		name     string
		loggedIn bool
		advance  time.Duration
		wantOK   bool
		class    models.TTLClass
	}{
		{"已登录-超过短TTL仍有效", true, policy.Short + time.Second, true, models.TTLLong},
		{"已登录-接近长TTL仍有效", true, policy.Long - time.Second, true, models.TTLLong},
		{"已登录-超过长TTL过期", true, policy.Long, false, models.TTLLong},
		{"未登录-短TTL内有效", false, policy.Short - time.Second, true, models.TTLShort},
		{"未登录-短TTL+1s前过期", false, policy.Short, false, models.TTLShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
			c := NewMemoryCache(policy, WithClock(clock.Now))

			status, err := c.Set(ctx, "p1", tt.loggedIn)
			if err != nil {
				t.Fatalf("写入失败: %v", err)
			}
			if status.TTLClass != tt.class {
				t.Errorf("期望档位 %s, 得到 %s", tt.class, status.TTLClass)
			}

			clock.Advance(tt.advance)
			got, ok, err := c.Get(ctx, "p1")
			if err != nil {
				t.Fatalf("读取失败: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("期望 ok=%v, 得到 %v", tt.wantOK, ok)
			}
			if ok && got.IsLoggedIn != tt.loggedIn {
				t.Errorf("期望 is_logged_in=%v, 得到 %v", tt.loggedIn, got.IsLoggedIn)
			}
		})
	}
}

func TestMemoryCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(DefaultTTLPolicy())

	c.Set(ctx, models.PlatformXHS, true)
	c.Set(ctx, models.PlatformBilibili, true)
	if err := c.Invalidate(ctx, models.PlatformXHS); err != nil {
		t.Fatalf("删除失败: %v", err)
	}

	if _, ok, _ := c.Get(ctx, models.PlatformXHS); ok {
		t.Error("删除后不应读到条目")
	}
	if _, ok, _ := c.Get(ctx, models.PlatformBilibili); !ok {
		t.Error("其他平台的条目不应受影响")
	}
	if c.Len() != 1 {
		t.Errorf("期望1个条目, 得到 %d", c.Len())
	}
}

func TestMemoryCache_OverwriteResetsTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := NewMemoryCache(TTLPolicy{Short: time.Minute, Long: time.Hour}, WithClock(clock.Now))

	c.Set(ctx, "p1", false)
	clock.Advance(50 * time.Second)
	c.Set(ctx, "p1", true)
	clock.Advance(20 * time.Minute)

	got, ok, _ := c.Get(ctx, "p1")
	if !ok || !got.IsLoggedIn || got.TTLClass != models.TTLLong {
		t.Errorf("覆盖写入后应使用长TTL: ok=%v status=%+v", ok, got)
	}
}

func TestMemoryCache_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(DefaultTTLPolicy())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set(ctx, "p1", i%2 == 0)
			c.Get(ctx, "p1")
			if i%10 == 0 {
				c.Invalidate(ctx, "p1")
			}
		}(i)
	}
	wg.Wait()
}

func TestTTLPolicy_Normalize(t *testing.T) {
	p := TTLPolicy{}.normalize()
	if p.Short != DefaultShortTTL || p.Long != DefaultLongTTL {
		t.Errorf("零值应回落到默认TTL: %+v", p)
	}
}
