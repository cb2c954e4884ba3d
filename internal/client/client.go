// Package client 签名请求客户端
//
// 每次调用读取平台当前的cookie快照, 交给平台适配器计算签名后发送,
// 并把响应分为 success / soft_risk_control / auth_expired / hard_failure 四类。
// 只有风控会在内部退避重试, 其余分类直接返回给调用方。
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform"
	"github.com/RecoveryAshes/MediaCrawler/internal/utils"
)

// SnapshotSource 平台cookie快照来源(浏览器会话管理器)
type SnapshotSource interface {
	Snapshot(ctx context.Context, platform models.Platform) (models.CookieSnapshot, error)
}

// HeaderSource 平台请求头来源
type HeaderSource interface {
	RequestHeaders(platform models.Platform) http.Header
}

// Options 客户端配置
type Options struct {
	Timeout time.Duration
	// MaxRetries 风控重试次数, 总尝试次数为 MaxRetries+1
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Proxy       string

	Headers HeaderSource
	Metrics *Metrics
	// Evaluator 页面签名使用的脚本执行器(浏览器会话管理器)
	Evaluator platform.Evaluator

	// OnAuthExpired 平台返回未登录时调用(使状态缓存失效)
	OnAuthExpired func(ctx context.Context, platform models.Platform)

	// Sleep 退避等待, 测试可替换
	Sleep func(ctx context.Context, d time.Duration) error
	// Now 签名时间戳来源, 测试可替换
	Now func() time.Time
	// Transport 底层传输, 测试可替换
	Transport http.RoundTripper
}

// platformSession 单个平台的HTTP会话: 独立的cookie jar与快照缓存
type platformSession struct {
	http *resty.Client
	jar  http.CookieJar

	mu   sync.Mutex
	snap *models.CookieSnapshot
}

// Client 签名请求客户端
type Client struct {
	registry *platform.Registry
	source   SnapshotSource
	opts     Options
	redactor *utils.HeaderRedactor

	sessions map[models.Platform]*platformSession
	mu       sync.Mutex
}

// New 创建签名请求客户端
func New(registry *platform.Registry, source SnapshotSource, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = DefaultBackoffMax
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Client{
		registry: registry,
		source:   source,
		opts:     opts,
		redactor: utils.NewHeaderRedactor(),
		sessions: make(map[models.Platform]*platformSession),
	}
}

func (c *Client) session(p models.Platform) (*platformSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sessions[p]; ok {
		return s, nil
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("创建cookie jar失败: %w", err)
	}

	base := c.opts.Transport
	if base == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if c.opts.Proxy != "" {
			proxyURL, err := url.Parse(c.opts.Proxy)
			if err != nil {
				return nil, &models.ValidationError{Field: "client.proxy", Value: c.opts.Proxy, Reason: "代理地址格式错误"}
			}
			t.Proxy = http.ProxyURL(proxyURL)
		}
		base = t
	}

	httpClient := resty.New().
		SetTimeout(c.opts.Timeout).
		SetCookieJar(jar).
		SetTransport(newDecompressTransport(base))

	s := &platformSession{http: httpClient, jar: jar}
	c.sessions[p] = s
	return s, nil
}

// Snapshot 返回平台的cookie快照(有缓存时直接返回)
func (c *Client) Snapshot(ctx context.Context, p models.Platform) (models.CookieSnapshot, error) {
	s, err := c.session(p)
	if err != nil {
		return models.CookieSnapshot{}, err
	}
	return c.snapshot(ctx, p, s)
}

func (c *Client) snapshot(ctx context.Context, p models.Platform, s *platformSession) (models.CookieSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap != nil {
		return *s.snap, nil
	}

	snap, err := c.source.Snapshot(ctx, p)
	if err != nil {
		return models.CookieSnapshot{}, err
	}
	s.snap = &snap

	log.Debug().Str("platform", p.String()).Int("cookies", len(snap.Cookies)).Msg("已刷新cookie快照")
	return snap, nil
}

// loadJar 把快照中的cookie写入jar
// 没有域的cookie视为请求主机的host-only cookie
func loadJar(jar http.CookieJar, target *url.URL, cookies []models.Cookie) {
	byHost := make(map[string][]*http.Cookie)
	for _, ck := range cookies {
		host := strings.TrimPrefix(ck.Domain, ".")
		domain := ck.Domain
		if host == "" {
			host = target.Hostname()
			domain = ""
		}
		byHost[host] = append(byHost[host], &http.Cookie{
			Name:   ck.Name,
			Value:  ck.Value,
			Domain: domain,
			Path:   "/",
		})
	}
	for host, list := range byHost {
		jar.SetCookies(&url.URL{Scheme: target.Scheme, Host: host, Path: "/"}, list)
	}
}

// RefreshCookies 丢弃平台的cookie快照, 下一次调用重新从浏览器读取
// 同一平台的并发调用共享快照, 刷新对所有调用可见
func (c *Client) RefreshCookies(p models.Platform) {
	c.mu.Lock()
	s, ok := c.sessions[p]
	c.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	s.snap = nil
	s.mu.Unlock()
}

// ResetPlatform 丢弃平台的整个HTTP会话(退出登录后使用)
func (c *Client) ResetPlatform(p models.Platform) {
	c.mu.Lock()
	delete(c.sessions, p)
	c.mu.Unlock()
}

// Call 发送签名请求并返回去掉信封后的数据
// 风控按指数退避重试 MaxRetries 次; 未登录触发 OnAuthExpired 后返回 *models.AuthExpiredError;
// 其余失败(含网络错误)返回 *models.HardAPIError
func (c *Client) Call(ctx context.Context, p models.Platform, req platform.Request) (json.RawMessage, error) {
	adapter, err := c.registry.Get(p)
	if err != nil {
		return nil, err
	}
	s, err := c.session(p)
	if err != nil {
		return nil, err
	}

	logger := utils.WithPlatform(p.String())
	endpoint := req.Path

	for attempt := 0; ; attempt++ {
		snap, err := c.snapshot(ctx, p, s)
		if err != nil {
			return nil, fmt.Errorf("[%s] 读取cookie失败: %w", p, err)
		}

		statusCode, body, err := c.send(ctx, adapter, s, snap, req)
		if err != nil {
			c.opts.Metrics.recordOutcome(p.String(), platform.OutcomeHardFailure)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			var ve *models.ValidationError
			if errors.As(err, &ve) {
				return nil, err
			}
			return nil, &models.HardAPIError{Platform: p, Endpoint: endpoint, StatusCode: statusCode, Message: "请求发送失败", Cause: err}
		}

		var cls platform.Classification
		if req.Raw && statusCode/100 == 2 {
			cls = platform.Classification{Outcome: platform.OutcomeSuccess, Data: body}
		} else {
			cls = adapter.Classify(statusCode, body)
		}
		c.opts.Metrics.recordOutcome(p.String(), cls.Outcome)

		switch cls.Outcome {
		case platform.OutcomeSuccess:
			return cls.Data, nil

		case platform.OutcomeAuthExpired:
			logger.Warn().Str("endpoint", endpoint).Int("code", cls.Code).Msg("平台返回未登录, 登录态缓存失效")
			if c.opts.OnAuthExpired != nil {
				c.opts.OnAuthExpired(ctx, p)
			}
			c.RefreshCookies(p)
			return nil, &models.AuthExpiredError{Platform: p, Endpoint: endpoint, Code: cls.Code, Message: cls.Message}

		case platform.OutcomeSoftRiskControl:
			if attempt >= c.opts.MaxRetries {
				logger.Error().Str("endpoint", endpoint).Int("attempts", attempt+1).Msg("风控重试次数耗尽")
				return nil, &models.SoftRiskControlError{
					Platform: p, Endpoint: endpoint, Code: cls.Code, Attempts: attempt + 1, Message: cls.Message,
				}
			}
			delay := CalculateBackoff(attempt, c.opts.BackoffBase, c.opts.BackoffMax)
			logger.Warn().
				Str("endpoint", endpoint).
				Int("code", cls.Code).
				Int("attempt", attempt+1).
				Dur("backoff", delay).
				Msg("触发风控, 退避后重试")
			c.opts.Metrics.recordBackoff(p.String())
			if err := c.opts.Sleep(ctx, delay); err != nil {
				return nil, err
			}
			c.RefreshCookies(p)

		default:
			return nil, &models.HardAPIError{
				Platform: p, Endpoint: endpoint, StatusCode: statusCode, Code: cls.Code, Message: cls.Message,
			}
		}
	}
}

// send 构造、签名并发送一次请求
func (c *Client) send(ctx context.Context, adapter platform.Adapter, s *platformSession, snap models.CookieSnapshot, req platform.Request) (int, []byte, error) {
	p := adapter.Platform()

	u, err := url.Parse(req.BaseURL + req.Path)
	if err != nil {
		return 0, nil, &models.ValidationError{Field: "url", Value: req.BaseURL + req.Path, Reason: "URL格式错误"}
	}
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	loadJar(s.jar, u, snap.Cookies)

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	sreq := &platform.SignedRequest{Method: method, URL: u, Header: c.baseHeaders(adapter)}
	for k, vs := range req.Header {
		for _, v := range vs {
			sreq.Header.Set(k, v)
		}
	}

	if req.Body != nil {
		switch b := req.Body.(type) {
		case []byte:
			sreq.Body = b
		case string:
			sreq.Body = []byte(b)
		default:
			sreq.Body, err = platform.MarshalCompact(b)
			if err != nil {
				return 0, nil, fmt.Errorf("序列化请求体失败: %w", err)
			}
		}
		if sreq.Header.Get("Content-Type") == "" {
			sreq.Header.Set("Content-Type", "application/json;charset=UTF-8")
		}
	}

	if !req.Unsigned {
		if prep, ok := adapter.(platform.Preparer); ok {
			if err := prep.Prepare(ctx, c, snap); err != nil {
				return 0, nil, fmt.Errorf("准备签名参数失败: %w", err)
			}
		}
		if ps, ok := adapter.(platform.PageSigner); ok {
			if err := ps.PageSign(ctx, c.opts.Evaluator, sreq); err != nil {
				return 0, nil, fmt.Errorf("页面签名失败: %w", err)
			}
		}
		if err := adapter.Sign(sreq, snap, c.opts.Now()); err != nil {
			return 0, nil, fmt.Errorf("计算签名失败: %w", err)
		}
	}

	r := s.http.R().SetContext(ctx)
	for k, vs := range sreq.Header {
		r.SetHeader(k, strings.Join(vs, ", "))
	}
	if sreq.Body != nil {
		r.SetBody(sreq.Body)
	}

	log.Debug().
		Str("platform", p.String()).
		Str("method", method).
		Str("uri", sreq.URI()).
		Str("headers", c.redactor.RedactToString(sreq.Header)).
		Msg("发送平台请求")

	start := time.Now()
	resp, err := r.Execute(method, sreq.URL.String())
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode()
	}
	c.opts.Metrics.recordRequest(p.String(), req.Path, statusCode, time.Since(start))
	if err != nil {
		return statusCode, nil, err
	}
	return statusCode, resp.Body(), nil
}

func (c *Client) baseHeaders(adapter platform.Adapter) http.Header {
	h := make(http.Header)
	if c.opts.Headers != nil {
		for k, vs := range c.opts.Headers.RequestHeaders(adapter.Platform()) {
			h[k] = append([]string(nil), vs...)
		}
		return h
	}
	for k, v := range adapter.DefaultHeaders() {
		h.Set(k, v)
	}
	return h
}

// Ping 调用平台的轻量接口确认登录态
func (c *Client) Ping(ctx context.Context, p models.Platform) (bool, map[string]string, error) {
	adapter, err := c.registry.Get(p)
	if err != nil {
		return false, nil, err
	}

	data, err := c.Call(ctx, p, adapter.PingRequest())
	if err != nil {
		var ae *models.AuthExpiredError
		if errors.As(err, &ae) {
			return false, nil, nil
		}
		return false, nil, err
	}
	return adapter.ParsePing(data)
}
