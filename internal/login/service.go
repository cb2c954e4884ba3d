// Package login 登录状态机
//
// 每个平台同一时刻只允许一个进行中的登录会话, 重复发起返回同一个会话。
// 扫码与手机号登录由后台驱动协程轮询鉴权cookie, 只有当其值相对轮询开始前
// 发生变化时才判定成功, 上一次登录残留的cookie不会被误报为新的扫码。
package login

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RecoveryAshes/MediaCrawler/internal/browser"
	"github.com/RecoveryAshes/MediaCrawler/internal/cache"
	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform"
	"github.com/RecoveryAshes/MediaCrawler/internal/utils"
)

// 默认参数
const (
	DefaultPollInterval       = 2 * time.Second
	DefaultCheckTimeout       = 10 * time.Second
	DefaultTimeout            = 5 * time.Minute
	DefaultQRSettle           = time.Second
	DefaultQRWait             = 15 * time.Second
	DefaultRetention          = 5 * time.Minute
	DefaultValidateRetries    = 3
	DefaultValidateRetryDelay = time.Second
)

// Pinger 调用平台的轻量接口确认登录态
type Pinger interface {
	Ping(ctx context.Context, platform models.Platform) (loggedIn bool, identity map[string]string, err error)
}

// Options 登录状态机配置
type Options struct {
	// PollInterval 轮询鉴权cookie的间隔
	PollInterval time.Duration
	// CheckTimeout 单次检查的超时
	CheckTimeout time.Duration
	// Timeout 扫码/验证码等待的总时长, 超时后会话过期
	Timeout time.Duration
	// QRSettle 二维码元素出现后等待渲染完成的时间
	QRSettle time.Duration
	// QRWait 等待二维码元素出现的最长时间
	QRWait time.Duration
	// Retention 终态会话保留时长
	Retention time.Duration

	ValidateRetries    int
	ValidateRetryDelay time.Duration

	Metrics *Metrics

	// OnCookiesChanged 浏览器cookie因登录/退出发生变化后调用
	OnCookiesChanged func(platform models.Platform)

	Now func() time.Time
}

func (o *Options) normalize() {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.CheckTimeout <= 0 {
		o.CheckTimeout = DefaultCheckTimeout
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.QRSettle == 0 {
		o.QRSettle = DefaultQRSettle
	}
	if o.QRWait <= 0 {
		o.QRWait = DefaultQRWait
	}
	if o.Retention <= 0 {
		o.Retention = DefaultRetention
	}
	if o.ValidateRetries < 0 {
		o.ValidateRetries = 0
	}
	if o.ValidateRetryDelay < 0 {
		o.ValidateRetryDelay = 0
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// StartRequest 发起登录的参数
type StartRequest struct {
	Platform  models.Platform
	LoginType models.LoginType
	// Cookie cookie登录的凭据, 形如 "k1=v1; k2=v2"
	Cookie string
	// Phone 手机号登录的号码
	Phone string
	// Force 忽略已登录状态, 强制重新登录
	Force bool
}

// session 会话及其后台驱动
type session struct {
	data      models.LoginSession
	cancel    context.CancelFunc
	codeCh    chan string
	discarded bool
}

// Service 登录状态机
type Service struct {
	browsers *browser.Manager
	registry *platform.Registry
	cache    cache.StatusCache
	pinger   Pinger
	qr       *QRNormalizer
	opts     Options

	mu        sync.Mutex
	sessions  map[string]*session
	active    map[models.Platform]*session
	lastLogin map[models.Platform]time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewService 创建登录状态机
func NewService(browsers *browser.Manager, registry *platform.Registry, statusCache cache.StatusCache, pinger Pinger, qr *QRNormalizer, opts Options) *Service {
	opts.normalize()
	if qr == nil {
		qr = NewQRNormalizer(nil)
	}
	return &Service{
		browsers:  browsers,
		registry:  registry,
		cache:     statusCache,
		pinger:    pinger,
		qr:        qr,
		opts:      opts,
		sessions:  make(map[string]*session),
		active:    make(map[models.Platform]*session),
		lastLogin: make(map[models.Platform]time.Time),
		stopCh:    make(chan struct{}),
	}
}

// Start 启动终态会话的定期清理
func (s *Service) Start() {
	interval := s.opts.Retention / 2
	if interval < time.Second {
		interval = time.Second
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					log.Debug().Int("removed", n).Msg("清理过期登录会话")
				}
			}
		}
	}()
}

// Close 取消所有进行中的登录并等待后台协程退出
func (s *Service) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.cancel != nil {
			cancels = append(cancels, sess.cancel)
		}
	}
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()
}

// StartLogin 发起登录
// 参数不合法时在任何浏览器操作之前返回 ValidationError;
// 平台已有进行中的会话时直接返回该会话
func (s *Service) StartLogin(ctx context.Context, req StartRequest) (*models.LoginSession, error) {
	adapter, err := s.registry.Get(req.Platform)
	if err != nil {
		return nil, err
	}
	kind := req.LoginType
	if kind == "" {
		kind = models.LoginTypeQRCode
	}
	surface := adapter.Login()

	var cookies []models.Cookie
	switch kind {
	case models.LoginTypeQRCode:
	case models.LoginTypeCookie:
		cookies, err = credentialCookies(req.Cookie, surface)
	case models.LoginTypePhone:
		err = validatePhone(req.Phone, surface)
	default:
		_, err = models.ParseLoginType(string(kind))
	}
	if err != nil {
		return nil, err
	}

	sess, existing := s.begin(req.Platform, kind)
	if existing {
		log.Info().
			Str("platform", req.Platform.String()).
			Str("session_id", sess.data.ID).
			Msg("已有进行中的登录会话, 直接返回")
		return s.view(sess), nil
	}
	s.opts.Metrics.recordAttempt(req.Platform, kind)
	log.Info().
		Str("platform", req.Platform.String()).
		Str("session_id", sess.data.ID).
		Str("login_type", string(kind)).
		Msg("开始登录")

	if kind != models.LoginTypeCookie && !req.Force {
		if loggedIn, err := s.IsLoggedIn(ctx, req.Platform); err == nil && loggedIn {
			s.finish(sess, models.LoginStatusSuccess, "平台已登录, 无需重复登录", nil)
			return s.view(sess), nil
		}
	}

	switch kind {
	case models.LoginTypeQRCode:
		err = s.startQRCode(ctx, sess, surface)
	case models.LoginTypeCookie:
		err = s.loginWithCookie(ctx, sess, cookies)
	case models.LoginTypePhone:
		err = s.startPhone(ctx, sess, surface, strings.TrimSpace(req.Phone))
	}
	return s.view(sess), err
}

// begin 在防抖锁内创建会话; 平台已有非终态会话时返回它
func (s *Service) begin(p models.Platform, kind models.LoginType) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.active[p]; ok && !cur.data.Status.IsTerminal() {
		return cur, true
	}

	now := s.opts.Now()
	sess := &session{data: models.LoginSession{
		ID:        models.NewSessionID(),
		Platform:  p,
		LoginType: kind,
		Status:    models.LoginStatusPending,
		Message:   "正在准备登录",
		CreatedAt: now,
		UpdatedAt: now,
	}}
	if kind == models.LoginTypePhone {
		sess.codeCh = make(chan string, 1)
	}
	s.sessions[sess.data.ID] = sess
	s.active[p] = sess
	return sess, false
}

func (s *Service) view(sess *session) *models.LoginSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sess.data.Clone()
}

// update 修改非终态会话, 终态与已丢弃的会话不可变
func (s *Service) update(sess *session, fn func(d *models.LoginSession)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.discarded || sess.data.Status.IsTerminal() {
		return false
	}
	fn(&sess.data)
	sess.data.UpdatedAt = s.opts.Now()
	return true
}

func (s *Service) setStatus(sess *session, status models.LoginStatus, message string) bool {
	return s.update(sess, func(d *models.LoginSession) {
		d.Status = status
		d.Message = message
	})
}

// finish 进入终态
func (s *Service) finish(sess *session, status models.LoginStatus, message string, identity map[string]string) bool {
	s.mu.Lock()
	if sess.discarded || sess.data.Status.IsTerminal() {
		s.mu.Unlock()
		return false
	}
	now := s.opts.Now()
	sess.data.Status = status
	sess.data.Message = message
	sess.data.UpdatedAt = now
	sess.data.FinishedAt = now
	if identity != nil {
		sess.data.Identity = identity
	}
	p := sess.data.Platform
	if s.active[p] == sess {
		delete(s.active, p)
	}
	if status == models.LoginStatusSuccess {
		s.lastLogin[p] = now
	}
	id := sess.data.ID
	s.mu.Unlock()

	s.opts.Metrics.recordResult(p, status)
	event := log.Info()
	if status != models.LoginStatusSuccess {
		event = log.Warn()
	}
	event.Str("platform", p.String()).
		Str("session_id", id).
		Str("status", string(status)).
		Msg(message)
	return true
}

// fail 会话失败并返回对应的错误
func (s *Service) fail(sess *session, message string, cause error) error {
	s.finish(sess, models.LoginStatusFailed, message, nil)

	var le *models.LaunchError
	if errors.As(cause, &le) {
		return cause
	}
	return &models.LoginError{
		Platform:  sess.data.Platform,
		SessionID: sess.data.ID,
		Kind:      models.ErrLoginFailed,
		Message:   message,
		Cause:     cause,
	}
}

func (s *Service) cookiesChanged(p models.Platform) {
	if s.opts.OnCookiesChanged != nil {
		s.opts.OnCookiesChanged(p)
	}
}

// startQRCode 打开登录页, 截取二维码并启动后台轮询
func (s *Service) startQRCode(ctx context.Context, sess *session, surface platform.LoginSurface) error {
	p := sess.data.Platform

	lease, err := s.browsers.Acquire(ctx, p)
	if err != nil {
		return s.fail(sess, "启动浏览器失败: "+err.Error(), err)
	}
	handedOff := false
	defer func() {
		if !handedOff {
			lease.Release()
		}
	}()
	inst := lease.Instance()

	if err := inst.Navigate(ctx, surface.URL); err != nil {
		return s.fail(sess, "打开登录页失败", err)
	}
	if surface.OpenXPath != "" {
		if err := inst.Click(ctx, surface.OpenXPath); err != nil {
			// 部分页面直接展示二维码
			log.Debug().Err(err).Str("platform", p.String()).Msg("点击登录按钮失败")
		}
	}

	qr, err := s.captureQR(ctx, inst, surface.QRXPath)
	if err != nil {
		return s.fail(sess, "获取二维码失败", err)
	}

	before, err := cookieValue(ctx, inst, surface.AuthCookie)
	if err != nil {
		return s.fail(sess, "读取登录cookie失败", err)
	}

	s.update(sess, func(d *models.LoginSession) {
		d.Status = models.LoginStatusWaitingScan
		d.Message = "请使用App扫描二维码"
		d.QRCode = qr
		d.QRIssuedAt = s.opts.Now()
	})

	handedOff = true
	s.spawn(sess, lease, func(ctx context.Context) error {
		return s.poll(ctx, inst, surface.AuthCookie, before)
	})
	return nil
}

// captureQR 等待二维码元素出现, 固定等待渲染完成后再截取
func (s *Service) captureQR(ctx context.Context, inst browser.Instance, xpath string) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.QRWait)
	defer cancel()

	if _, _, err := inst.ImageSource(waitCtx, xpath); err != nil {
		return "", fmt.Errorf("等待二维码出现失败: %w", err)
	}
	if err := sleepContext(waitCtx, s.opts.QRSettle); err != nil {
		return "", err
	}
	src, shot, err := inst.ImageSource(waitCtx, xpath)
	if err != nil {
		return "", fmt.Errorf("读取二维码失败: %w", err)
	}
	return s.qr.Normalize(ctx, src, shot)
}

// loginWithCookie 注入cookie后立即校验
func (s *Service) loginWithCookie(ctx context.Context, sess *session, cookies []models.Cookie) error {
	p := sess.data.Platform
	s.setStatus(sess, models.LoginStatusCookieSubmitted, "cookie已提交")

	lease, err := s.browsers.Acquire(ctx, p)
	if err != nil {
		return s.fail(sess, "启动浏览器失败: "+err.Error(), err)
	}
	err = lease.Instance().SetCookies(ctx, cookies)
	lease.Release()
	if err != nil {
		return s.fail(sess, "写入cookie失败", err)
	}
	s.cookiesChanged(p)

	s.setStatus(sess, models.LoginStatusValidating, "正在校验cookie")
	ok, identity, err := s.validate(ctx, p)
	if err != nil {
		return s.fail(sess, "校验cookie失败", err)
	}
	if !ok {
		return s.fail(sess, "cookie无效或已过期", nil)
	}
	s.finish(sess, models.LoginStatusSuccess, "cookie登录成功", identity)
	return nil
}

// startPhone 输入手机号并发送验证码, 后台等待 SubmitPhoneCode 提交的验证码
func (s *Service) startPhone(ctx context.Context, sess *session, surface platform.LoginSurface, phone string) error {
	p := sess.data.Platform
	ph := surface.Phone

	lease, err := s.browsers.Acquire(ctx, p)
	if err != nil {
		return s.fail(sess, "启动浏览器失败: "+err.Error(), err)
	}
	handedOff := false
	defer func() {
		if !handedOff {
			lease.Release()
		}
	}()
	inst := lease.Instance()

	if err := inst.Navigate(ctx, surface.URL); err != nil {
		return s.fail(sess, "打开登录页失败", err)
	}
	if surface.OpenXPath != "" {
		if err := inst.Click(ctx, surface.OpenXPath); err != nil {
			log.Debug().Err(err).Str("platform", p.String()).Msg("点击登录按钮失败")
		}
	}
	if ph.SwitchXPath != "" {
		if err := inst.Click(ctx, ph.SwitchXPath); err != nil {
			return s.fail(sess, "切换到手机号登录失败", err)
		}
	}
	if err := inst.Input(ctx, ph.PhoneXPath, phone); err != nil {
		return s.fail(sess, "输入手机号失败", err)
	}
	if err := inst.Click(ctx, ph.SendCodeXPath); err != nil {
		return s.fail(sess, "发送验证码失败", err)
	}

	before, err := cookieValue(ctx, inst, surface.AuthCookie)
	if err != nil {
		return s.fail(sess, "读取登录cookie失败", err)
	}
	s.setStatus(sess, models.LoginStatusWaitingScan, "验证码已发送, 请提交短信验证码")

	handedOff = true
	s.spawn(sess, lease, func(ctx context.Context) error {
		var code string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case code = <-sess.codeCh:
		}

		s.setStatus(sess, models.LoginStatusValidating, "正在提交验证码")
		if err := inst.Input(ctx, ph.CodeXPath, code); err != nil {
			return fmt.Errorf("输入验证码失败: %w", err)
		}
		if err := inst.Click(ctx, ph.SubmitXPath); err != nil {
			return fmt.Errorf("提交验证码失败: %w", err)
		}
		return s.poll(ctx, inst, surface.AuthCookie, before)
	})
	return nil
}

// SubmitPhoneCode 把短信验证码交给进行中的手机号登录
func (s *Service) SubmitPhoneCode(sessionID, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return &models.ValidationError{Field: "code", Reason: "验证码不能为空"}
	}

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", models.ErrSessionNotFound, sessionID)
	}
	status := sess.data.Status
	codeCh := sess.codeCh
	p := sess.data.Platform
	s.mu.Unlock()

	if codeCh == nil {
		return &models.ValidationError{Field: "session_id", Value: sessionID, Reason: "不是手机号登录会话"}
	}
	if status.IsTerminal() {
		return &models.LoginError{Platform: p, SessionID: sessionID, Kind: models.ErrLoginExpired, Message: "会话已结束, 请重新发起登录"}
	}

	select {
	case codeCh <- code:
		return nil
	default:
		return &models.ValidationError{Field: "code", Reason: "验证码已提交, 请等待登录结果"}
	}
}

// spawn 启动会话的后台驱动, 驱动持有租约直到退出
func (s *Service) spawn(sess *session, lease *browser.Lease, drive func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)

	s.mu.Lock()
	if sess.discarded {
		// 启动前已退出登录
		s.mu.Unlock()
		cancel()
		lease.Release()
		return
	}
	sess.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer lease.Release()

		err := drive(ctx)
		switch {
		case err == nil:
			s.succeed(sess)
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			s.finish(sess, models.LoginStatusExpired, "登录超时, 请重新发起登录", nil)
		case errors.Is(ctx.Err(), context.Canceled):
			s.finish(sess, models.LoginStatusFailed, "登录已取消", nil)
		default:
			s.finish(sess, models.LoginStatusFailed, err.Error(), nil)
		}
	}()
}

// poll 轮询鉴权cookie, 值相对 before 变化时返回 nil
func (s *Service) poll(ctx context.Context, inst browser.Instance, name, before string) error {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		checkCtx, cancel := context.WithTimeout(ctx, s.opts.CheckTimeout)
		value, err := cookieValue(checkCtx, inst, name)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Debug().Err(err).Msg("读取登录cookie失败, 稍后重试")
			continue
		}
		if value != "" && value != before {
			return nil
		}
	}
}

// succeed 鉴权cookie已变化: 刷新缓存并尽量获取账号信息
func (s *Service) succeed(sess *session) {
	p := sess.data.Platform
	s.mu.Lock()
	discarded := sess.discarded
	s.mu.Unlock()
	if discarded {
		return
	}

	s.cookiesChanged(p)
	if _, err := s.cache.Set(context.Background(), p, true); err != nil {
		log.Warn().Err(err).Str("platform", p.String()).Msg("写入登录状态缓存失败")
	}

	var identity map[string]string
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.CheckTimeout)
	if ok, id, err := s.pinger.Ping(ctx, p); err == nil && ok {
		identity = id
	}
	cancel()

	s.finish(sess, models.LoginStatusSuccess, "登录成功", identity)
}

// GetStatus 读取会话快照, 不修改任何状态
func (s *Service) GetStatus(sessionID string) (*models.LoginSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, sessionID)
	}
	return sess.data.Clone(), nil
}

// ValidateSession 调用平台探测接口确认登录态, 结果写入缓存
func (s *Service) ValidateSession(ctx context.Context, p models.Platform) (bool, error) {
	if _, err := s.registry.Get(p); err != nil {
		return false, err
	}
	ok, _, err := s.validate(ctx, p)
	return ok, err
}

// validate 网络错误按 ValidateRetries 重试
func (s *Service) validate(ctx context.Context, p models.Platform) (bool, map[string]string, error) {
	attempts := s.opts.ValidateRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, s.opts.ValidateRetryDelay); err != nil {
				return false, nil, err
			}
		}

		checkCtx, cancel := context.WithTimeout(ctx, s.opts.CheckTimeout)
		ok, identity, err := s.pinger.Ping(checkCtx, p)
		cancel()

		if err == nil {
			result := "logged_out"
			if ok {
				result = "logged_in"
			}
			s.opts.Metrics.recordPing(p, result)
			if _, err := s.cache.Set(ctx, p, ok); err != nil {
				log.Warn().Err(err).Str("platform", p.String()).Msg("写入登录状态缓存失败")
			}
			return ok, identity, nil
		}

		s.opts.Metrics.recordPing(p, "error")
		if !retryable(ctx, err) {
			return false, nil, err
		}
		lastErr = err
		log.Warn().Err(err).
			Str("platform", p.String()).
			Int("attempt", attempt).
			Msg("登录态探测失败")
	}
	return false, nil, fmt.Errorf("[%s] 登录态探测失败(已尝试%d次): %w", p, attempts, lastErr)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var le *models.LaunchError
	return !errors.As(err, &le) &&
		!errors.Is(err, models.ErrValidation) &&
		!errors.Is(err, models.ErrUnknownPlatform)
}

// IsLoggedIn 优先读取缓存, 缓存缺失时探测平台
func (s *Service) IsLoggedIn(ctx context.Context, p models.Platform) (bool, error) {
	status, ok, err := s.cache.Get(ctx, p)
	if err != nil {
		log.Warn().Err(err).Str("platform", p.String()).Msg("读取登录状态缓存失败")
	} else if ok {
		return status.IsLoggedIn, nil
	}
	return s.ValidateSession(ctx, p)
}

// Logout 清除缓存、强制重置浏览器并丢弃该平台的全部会话
func (s *Service) Logout(ctx context.Context, p models.Platform) error {
	if _, err := s.registry.Get(p); err != nil {
		return err
	}

	s.mu.Lock()
	var cancels []context.CancelFunc
	for id, sess := range s.sessions {
		if sess.data.Platform != p {
			continue
		}
		sess.discarded = true
		if sess.cancel != nil {
			cancels = append(cancels, sess.cancel)
		}
		delete(s.sessions, id)
	}
	delete(s.active, p)
	delete(s.lastLogin, p)
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	var errs []error
	if err := s.cache.Invalidate(ctx, p); err != nil {
		errs = append(errs, fmt.Errorf("清除登录状态缓存失败: %w", err))
	}
	if err := s.browsers.ForceReset(ctx, p); err != nil {
		errs = append(errs, err)
	}
	s.cookiesChanged(p)

	log.Info().
		Str("platform", p.String()).
		Int("discarded", len(cancels)).
		Msg("已退出登录")
	return errors.Join(errs...)
}

// ListSessions 返回各平台的登录概况
func (s *Service) ListSessions(ctx context.Context) []models.SessionSummary {
	platforms := s.registry.Platforms()
	list := make([]models.SessionSummary, 0, len(platforms))

	for _, p := range platforms {
		loggedIn, err := s.IsLoggedIn(ctx, p)
		if err != nil {
			log.Warn().Err(err).Str("platform", p.String()).Msg("检查登录状态失败")
		}

		s.mu.Lock()
		last := s.lastLogin[p]
		s.mu.Unlock()

		list = append(list, models.SessionSummary{
			Platform:   p,
			IsLoggedIn: loggedIn,
			LastLogin:  utils.FormatLastLogin(last),
		})
	}
	return list
}

// Sweep 删除超过保留时长的终态会话, 返回删除数量
func (s *Service) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	removed := 0
	for id, sess := range s.sessions {
		if !sess.data.Status.IsTerminal() {
			continue
		}
		if now.Sub(sess.data.FinishedAt) >= s.opts.Retention {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// cookieValue 读取指定名称的cookie值, 不存在时返回空串
func cookieValue(ctx context.Context, inst browser.Instance, name string) (string, error) {
	cookies, err := inst.Cookies(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range cookies {
		if c.Name == name {
			return c.Value, nil
		}
	}
	return "", nil
}

// credentialCookies 解析cookie凭据并检查必需字段
func credentialCookies(raw string, surface platform.LoginSurface) ([]models.Cookie, error) {
	cookies, err := utils.ParseCookieString(raw, surface.CookieDomain)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(cookies))
	for _, c := range cookies {
		present[c.Name] = c.Value != ""
	}
	for _, name := range surface.RequiredCookies {
		if !present[name] {
			return nil, &models.ValidationError{
				Field:      "cookie",
				Reason:     "缺少必需的cookie: " + name,
				Suggestion: strings.Join(surface.RequiredCookies, ", "),
			}
		}
	}
	return cookies, nil
}

var phonePattern = regexp.MustCompile(`^\+?\d{6,15}$`)

func validatePhone(phone string, surface platform.LoginSurface) error {
	if surface.Phone == nil {
		return &models.ValidationError{Field: "login_type", Value: "phone", Reason: "该平台不支持手机号登录", Suggestion: "qrcode, cookie"}
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return &models.ValidationError{Field: "phone", Reason: "手机号不能为空"}
	}
	if !phonePattern.MatchString(phone) {
		return &models.ValidationError{Field: "phone", Value: phone, Reason: "手机号格式错误"}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
