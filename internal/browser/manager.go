package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// 默认参数
const (
	DefaultIdleTimeout   = 5 * time.Minute
	DefaultReapInterval  = 30 * time.Second
	DefaultLaunchTimeout = 60 * time.Second
)

// ErrManagerClosed 管理器已关闭
var ErrManagerClosed = errors.New("浏览器管理器已关闭")

// Options 管理器配置
type Options struct {
	IdleTimeout   time.Duration
	ReapInterval  time.Duration
	LaunchTimeout time.Duration
	// WipeOnReset ForceReset 时是否删除平台持久化目录
	WipeOnReset bool
	// Gate 启动前的资源检查(可选)
	Gate LaunchGate
	// Now 时钟(测试用)
	Now func() time.Time
}

// Lease 浏览器实例的一次租用
type Lease struct {
	ID        string
	Platform  models.Platform
	CreatedAt time.Time

	lastUsed   atomic.Int64
	instance   Instance
	generation uint64
	released   atomic.Bool
	manager    *Manager
}

// Instance 返回租用的浏览器实例并刷新最近使用时间
func (l *Lease) Instance() Instance {
	l.lastUsed.Store(l.manager.now().UnixNano())
	return l.instance
}

// LastUsedAt 最近使用时间
func (l *Lease) LastUsedAt() time.Time {
	return time.Unix(0, l.lastUsed.Load())
}

// Release 归还租约, 重复调用无副作用
func (l *Lease) Release() {
	l.manager.Release(l)
}

// platformEntry 单个平台的实例状态
type platformEntry struct {
	// launchSem 串行化创建与重置, 容量为1
	launchSem chan struct{}

	mu         sync.Mutex
	instance   Instance
	refs       int
	idleSince  time.Time
	generation uint64
	launches   int
}

// PlatformStats 单个平台的实例统计
type PlatformStats struct {
	Platform   models.Platform `json:"platform"`
	Running    bool            `json:"running"`
	InstanceID string          `json:"instance_id,omitempty"`
	Refs       int             `json:"refs"`
	IdleSince  time.Time       `json:"idle_since,omitempty"`
	Launches   int             `json:"launches"`
}

// Manager 浏览器会话管理器
type Manager struct {
	launcher Launcher
	opts     Options
	now      func() time.Time

	entries map[models.Platform]*platformEntry
	mu      sync.Mutex

	acquired atomic.Int64
	released atomic.Int64

	closed   atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewManager 创建浏览器会话管理器
func NewManager(launcher Launcher, opts Options) *Manager {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = DefaultReapInterval
	}
	if opts.LaunchTimeout <= 0 {
		opts.LaunchTimeout = DefaultLaunchTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		launcher: launcher,
		opts:     opts,
		now:      now,
		entries:  make(map[models.Platform]*platformEntry),
		stopCh:   make(chan struct{}),
	}
}

// Start 启动后台空闲清扫
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.reapLoop()
}

func (m *Manager) reapLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.opts.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Reap()
		}
	}
}

func (m *Manager) entry(platform models.Platform) *platformEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[platform]
	if !ok {
		e = &platformEntry{launchSem: make(chan struct{}, 1)}
		m.entries[platform] = e
	}
	return e
}

// Acquire 获取平台浏览器实例的租约, 首次使用时启动浏览器
// 启动失败返回 *models.LaunchError, 不在内部重试
func (m *Manager) Acquire(ctx context.Context, platform models.Platform) (*Lease, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	e := m.entry(platform)

	if lease := m.tryLease(e, platform); lease != nil {
		return lease, nil
	}

	// 单飞: 同一时刻只有一个调用方启动浏览器, 其余等待后复用
	select {
	case e.launchSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.launchSem }()

	if lease := m.tryLease(e, platform); lease != nil {
		return lease, nil
	}
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}

	if m.opts.Gate != nil {
		if ok, reason := m.opts.Gate.CheckLaunch(); !ok {
			return nil, &models.LaunchError{Platform: platform, Reason: reason}
		}
	}

	launchCtx, cancel := context.WithTimeout(ctx, m.opts.LaunchTimeout)
	defer cancel()

	start := m.now()
	inst, err := m.launcher.Launch(launchCtx, platform)
	if err != nil {
		var le *models.LaunchError
		if errors.As(err, &le) {
			return nil, err
		}
		return nil, &models.LaunchError{Platform: platform, Reason: "启动浏览器进程失败", Cause: err}
	}

	e.mu.Lock()
	e.instance = inst
	e.generation++
	e.launches++
	e.refs = 0
	lease := m.newLeaseLocked(e, platform)
	e.mu.Unlock()

	log.Info().
		Str("platform", platform.String()).
		Str("instance", inst.ID()).
		Dur("elapsed", m.now().Sub(start)).
		Msg("浏览器实例已启动")
	return lease, nil
}

// tryLease 实例已存在时直接发放租约
func (m *Manager) tryLease(e *platformEntry, platform models.Platform) *Lease {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.instance == nil {
		return nil
	}
	return m.newLeaseLocked(e, platform)
}

func (m *Manager) newLeaseLocked(e *platformEntry, platform models.Platform) *Lease {
	now := m.now()
	e.refs++
	e.idleSince = time.Time{}

	lease := &Lease{
		ID:         models.NewID(),
		Platform:   platform,
		CreatedAt:  now,
		instance:   e.instance,
		generation: e.generation,
		manager:    m,
	}
	lease.lastUsed.Store(now.UnixNano())
	m.acquired.Add(1)

	log.Debug().
		Str("platform", platform.String()).
		Str("lease_id", lease.ID).
		Int("refs", e.refs).
		Msg("发放浏览器租约")
	return lease
}

// Release 归还租约, 不会阻塞; 重复归还是空操作
// ForceReset 之后归还旧租约只计数, 不影响新实例的引用计数
func (m *Manager) Release(lease *Lease) {
	if lease == nil || !lease.released.CompareAndSwap(false, true) {
		return
	}
	m.released.Add(1)

	m.mu.Lock()
	e, ok := m.entries[lease.Platform]
	m.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.instance == nil || e.generation != lease.generation {
		return
	}
	if e.refs > 0 {
		e.refs--
	}
	if e.refs == 0 {
		e.idleSince = m.now()
	}

	log.Debug().
		Str("platform", lease.Platform.String()).
		Str("lease_id", lease.ID).
		Int("refs", e.refs).
		Msg("归还浏览器租约")
}

// Reap 关闭引用计数为零且空闲超时的实例, 返回关闭的数量
func (m *Manager) Reap() int {
	m.mu.Lock()
	platforms := make([]models.Platform, 0, len(m.entries))
	for p := range m.entries {
		platforms = append(platforms, p)
	}
	m.mu.Unlock()

	now := m.now()
	reaped := 0
	for _, platform := range platforms {
		if m.reapOne(m.entry(platform), platform, now) {
			reaped++
		}
	}
	return reaped
}

// reapOne 持有 launchSem 关闭空闲实例, 旧进程退出前不会有新实例使用同一数据目录
// 正在启动或重置的平台本轮跳过
func (m *Manager) reapOne(e *platformEntry, platform models.Platform, now time.Time) bool {
	select {
	case e.launchSem <- struct{}{}:
	default:
		return false
	}
	defer func() { <-e.launchSem }()

	e.mu.Lock()
	var inst Instance
	if e.instance != nil && e.refs == 0 && !e.idleSince.IsZero() &&
		now.Sub(e.idleSince) >= m.opts.IdleTimeout {
		inst = e.instance
		e.instance = nil
		e.generation++
		e.idleSince = time.Time{}
	}
	e.mu.Unlock()

	if inst == nil {
		return false
	}
	if err := inst.Close(); err != nil {
		log.Warn().Err(err).Str("platform", platform.String()).Msg("关闭空闲浏览器失败")
	}
	log.Info().Str("platform", platform.String()).Str("instance", inst.ID()).Msg("空闲浏览器已回收")
	return true
}

// ForceReset 立即关闭平台浏览器(不论是否还有租约)并清除本地cookie状态
// 仅用于退出登录
func (m *Manager) ForceReset(ctx context.Context, platform models.Platform) error {
	e := m.entry(platform)

	// 等待进行中的启动结束, 避免新实例使用即将被删除的目录
	select {
	case e.launchSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.launchSem }()

	e.mu.Lock()
	inst := e.instance
	outstanding := e.refs
	e.instance = nil
	e.refs = 0
	e.generation++
	e.idleSince = time.Time{}
	e.mu.Unlock()

	var errs []error
	if inst != nil {
		if err := inst.ClearCookies(ctx); err != nil {
			log.Warn().Err(err).Str("platform", platform.String()).Msg("清除cookie失败")
		}
		if err := inst.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭浏览器失败: %w", err))
		}
	}

	if m.opts.WipeOnReset {
		if w, ok := m.launcher.(ProfileWiper); ok {
			if err := w.WipeProfile(platform); err != nil {
				errs = append(errs, fmt.Errorf("删除浏览器数据目录失败: %w", err))
			}
		}
	}

	log.Info().
		Str("platform", platform.String()).
		Int("outstanding_leases", outstanding).
		Msg("浏览器已强制重置")
	return errors.Join(errs...)
}

// Stats 返回各平台实例统计, 按平台排序
func (m *Manager) Stats() []PlatformStats {
	m.mu.Lock()
	entries := make(map[models.Platform]*platformEntry, len(m.entries))
	for p, e := range m.entries {
		entries[p] = e
	}
	m.mu.Unlock()

	stats := make([]PlatformStats, 0, len(entries))
	for p, e := range entries {
		e.mu.Lock()
		s := PlatformStats{
			Platform:  p,
			Running:   e.instance != nil,
			Refs:      e.refs,
			IdleSince: e.idleSince,
			Launches:  e.launches,
		}
		if e.instance != nil {
			s.InstanceID = e.instance.ID()
		}
		e.mu.Unlock()
		stats = append(stats, s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Platform < stats[j].Platform })
	return stats
}

// Counters 返回累计发放与归还的租约数
func (m *Manager) Counters() (acquired, released int64) {
	return m.acquired.Load(), m.released.Load()
}

// Launches 返回平台浏览器的累计启动次数
func (m *Manager) Launches(platform models.Platform) int {
	e := m.entry(platform)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.launches
}

// Close 停止清扫并关闭所有实例
func (m *Manager) Close() error {
	m.closed.Store(true)
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()

	m.mu.Lock()
	entries := make([]*platformEntry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	var errs []error
	for _, e := range entries {
		e.mu.Lock()
		inst := e.instance
		e.instance = nil
		e.generation++
		e.mu.Unlock()
		if inst != nil {
			if err := inst.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	log.Info().Msg("浏览器管理器已关闭")
	return errors.Join(errs...)
}

// Snapshot 借用租约读取平台当前的cookie与localStorage, 读完立即归还
func (m *Manager) Snapshot(ctx context.Context, platform models.Platform) (models.CookieSnapshot, error) {
	lease, err := m.Acquire(ctx, platform)
	if err != nil {
		return models.CookieSnapshot{}, err
	}
	defer lease.Release()

	inst := lease.Instance()
	cookies, err := inst.Cookies(ctx)
	if err != nil {
		return models.CookieSnapshot{}, fmt.Errorf("[%s] 读取cookie快照失败: %w", platform, err)
	}
	storage, err := inst.LocalStorage(ctx)
	if err != nil {
		// 页面尚未打开时 localStorage 不可用, 不影响cookie
		log.Debug().Err(err).Str("platform", platform.String()).Msg("读取localStorage失败")
		storage = nil
	}

	return models.CookieSnapshot{
		Platform: platform,
		Cookies:  cookies,
		Storage:  storage,
		TakenAt:  m.now(),
	}, nil
}

// Eval 借用租约在平台页面中执行脚本
// pageURL 非空且当前页面不在同一主机时先打开 pageURL, 保证页面脚本已加载
func (m *Manager) Eval(ctx context.Context, platform models.Platform, pageURL, js string, args ...interface{}) (json.RawMessage, error) {
	lease, err := m.Acquire(ctx, platform)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	inst := lease.Instance()
	if pageURL != "" {
		current, err := inst.PageURL(ctx)
		if err != nil {
			return nil, fmt.Errorf("[%s] %w", platform, err)
		}
		if !sameHost(current, pageURL) {
			if err := inst.Navigate(ctx, pageURL); err != nil {
				return nil, fmt.Errorf("[%s] %w", platform, err)
			}
		}
	}

	out, err := inst.Eval(ctx, js, args...)
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", platform, err)
	}
	return out, nil
}

func sameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil || ua.Host == "" {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Hostname(), ub.Hostname())
}
