package platform

import (
	"fmt"
	"sort"
	"sync"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// Registry 平台适配器注册表
type Registry struct {
	adapters map[models.Platform]Adapter
	mu       sync.RWMutex
}

// NewRegistry 创建注册表
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Platform]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register 注册适配器, 同名平台覆盖
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Platform()] = a
}

// Get 获取平台适配器
func (r *Registry) Get(platform models.Platform) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %w", models.ErrUnknownPlatform, &models.ValidationError{
			Field:      "platform",
			Value:      string(platform),
			Reason:     "平台未注册",
			Suggestion: fmt.Sprintf("可选平台: %v", r.platformsLocked()),
		})
	}
	return a, nil
}

// Platforms 返回已注册的平台, 按名称排序
func (r *Registry) Platforms() []models.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.platformsLocked()
}

func (r *Registry) platformsLocked() []models.Platform {
	list := make([]models.Platform, 0, len(r.adapters))
	for p := range r.adapters {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}
