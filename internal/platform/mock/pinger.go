package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// Pinger 可编程的登录态探测
type Pinger struct {
	mu       sync.Mutex
	loggedIn map[models.Platform]bool
	errs     []error
	calls    atomic.Int32
}

// NewPinger 创建探测器, 默认所有平台未登录
func NewPinger() *Pinger {
	return &Pinger{loggedIn: make(map[models.Platform]bool)}
}

// SetLoggedIn 设置平台的探测结果
func (p *Pinger) SetLoggedIn(platform models.Platform, v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loggedIn[platform] = v
}

// FailNext 让接下来的探测依次返回这些错误
func (p *Pinger) FailNext(errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, errs...)
}

// Calls 探测次数
func (p *Pinger) Calls() int {
	return int(p.calls.Load())
}

// Ping 实现登录态探测
func (p *Pinger) Ping(ctx context.Context, platform models.Platform) (bool, map[string]string, error) {
	p.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return false, nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return false, nil, err
	}
	if p.loggedIn[platform] {
		return true, map[string]string{"user_id": "u-" + string(platform)}, nil
	}
	return false, nil, nil
}
