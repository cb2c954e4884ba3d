package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// RodOptions Rod启动参数
type RodOptions struct {
	Headless bool
	// BinPath 浏览器可执行文件, 为空时由rod自动查找或下载
	BinPath string
	// UserDataDir 持久化目录根, 每个平台一个子目录
	UserDataDir string
	// Stealth 是否在每个页面注入反检测脚本
	Stealth   bool
	UserAgent string
}

// RodLauncher 使用go-rod启动带持久化目录的Chromium
type RodLauncher struct {
	opts RodOptions
}

// NewRodLauncher 创建Rod启动器
func NewRodLauncher(opts RodOptions) *RodLauncher {
	if opts.UserDataDir == "" {
		opts.UserDataDir = "browser_data"
	}
	return &RodLauncher{opts: opts}
}

// ProfileDir 返回平台的持久化目录
func (rl *RodLauncher) ProfileDir(platform models.Platform) string {
	return filepath.Join(rl.opts.UserDataDir, string(platform))
}

// WipeProfile 删除平台的持久化目录
func (rl *RodLauncher) WipeProfile(platform models.Platform) error {
	dir := rl.ProfileDir(platform)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("删除目录 %s 失败: %w", dir, err)
	}
	log.Info().Str("platform", platform.String()).Str("dir", dir).Msg("浏览器数据目录已删除")
	return nil
}

// Launch 启动平台浏览器并连接
func (rl *RodLauncher) Launch(ctx context.Context, platform models.Platform) (Instance, error) {
	dir := rl.ProfileDir(platform)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &models.LaunchError{Platform: platform, Reason: "创建浏览器数据目录失败", Cause: err}
	}

	// 不绑定ctx: 绑定后ctx结束会连带结束浏览器进程
	l := launcher.New().
		Headless(rl.opts.Headless).
		UserDataDir(dir).
		Set("disable-blink-features", "AutomationControlled")
	if rl.opts.BinPath != "" {
		l = l.Bin(rl.opts.BinPath)
	}

	type launched struct {
		url string
		err error
	}
	done := make(chan launched, 1)
	go func() {
		u, err := l.Launch()
		done <- launched{u, err}
	}()

	var controlURL string
	select {
	case res := <-done:
		if res.err != nil {
			return nil, &models.LaunchError{Platform: platform, Reason: "启动浏览器失败", Cause: res.err}
		}
		controlURL = res.url
	case <-ctx.Done():
		l.Kill()
		return nil, &models.LaunchError{Platform: platform, Reason: "启动浏览器超时", Cause: ctx.Err()}
	}

	// 浏览器的生命周期独立于本次调用的ctx
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, &models.LaunchError{Platform: platform, Reason: "连接浏览器失败", Cause: err}
	}

	log.Debug().Str("platform", platform.String()).Str("control_url", controlURL).Msg("浏览器已连接")
	return &rodInstance{
		id:       models.NewID(),
		platform: platform,
		browser:  browser,
		launcher: l,
		opts:     rl.opts,
	}, nil
}

// rodInstance 基于rod.Browser的实例, 复用同一个标签页
type rodInstance struct {
	id       string
	platform models.Platform
	browser  *rod.Browser
	launcher *launcher.Launcher
	opts     RodOptions

	page   *rod.Page
	pageMu sync.Mutex
}

func (ri *rodInstance) ID() string {
	return ri.id
}

// currentPage 懒加载标签页并注入stealth脚本
func (ri *rodInstance) currentPage(ctx context.Context) (*rod.Page, error) {
	ri.pageMu.Lock()
	defer ri.pageMu.Unlock()

	if ri.page != nil {
		return ri.page.Context(ctx), nil
	}

	page, err := ri.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("创建标签页失败: %w", err)
	}
	if ri.opts.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("注入stealth脚本失败: %w", err)
		}
	}
	if ri.opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ri.opts.UserAgent}); err != nil {
			log.Warn().Err(err).Msg("设置User-Agent失败")
		}
	}

	// 保存不带调用方ctx的页面
	ri.page = page.Context(context.Background())
	return page, nil
}

func (ri *rodInstance) Navigate(ctx context.Context, url string) error {
	page, err := ri.currentPage(ctx)
	if err != nil {
		return err
	}
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("打开页面失败 %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("等待页面加载失败 %s: %w", url, err)
	}
	return nil
}

func (ri *rodInstance) ImageSource(ctx context.Context, xpath string) (string, []byte, error) {
	page, err := ri.currentPage(ctx)
	if err != nil {
		return "", nil, err
	}
	el, err := page.ElementX(xpath)
	if err != nil {
		return "", nil, fmt.Errorf("查找元素失败 %s: %w", xpath, err)
	}
	if err := el.WaitVisible(); err != nil {
		return "", nil, fmt.Errorf("等待元素可见失败 %s: %w", xpath, err)
	}

	src, err := el.Attribute("src")
	if err != nil {
		return "", nil, fmt.Errorf("读取src失败: %w", err)
	}
	if src != nil && *src != "" {
		return *src, nil, nil
	}

	shot, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return "", nil, fmt.Errorf("元素截图失败: %w", err)
	}
	return "", shot, nil
}

func (ri *rodInstance) Click(ctx context.Context, xpath string) error {
	page, err := ri.currentPage(ctx)
	if err != nil {
		return err
	}
	el, err := page.ElementX(xpath)
	if err != nil {
		return fmt.Errorf("查找元素失败 %s: %w", xpath, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("点击元素失败 %s: %w", xpath, err)
	}
	return nil
}

func (ri *rodInstance) Input(ctx context.Context, xpath, text string) error {
	page, err := ri.currentPage(ctx)
	if err != nil {
		return err
	}
	el, err := page.ElementX(xpath)
	if err != nil {
		return fmt.Errorf("查找元素失败 %s: %w", xpath, err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("输入失败 %s: %w", xpath, err)
	}
	return nil
}

func (ri *rodInstance) Cookies(ctx context.Context) ([]models.Cookie, error) {
	raw, err := ri.browser.Context(ctx).GetCookies()
	if err != nil {
		return nil, fmt.Errorf("读取cookie失败: %w", err)
	}
	cookies := make([]models.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, models.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	return cookies, nil
}

func (ri *rodInstance) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		params = append(params, &proto.NetworkCookieParam{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   path,
		})
	}
	if err := ri.browser.Context(ctx).SetCookies(params); err != nil {
		return fmt.Errorf("写入cookie失败: %w", err)
	}
	return nil
}

func (ri *rodInstance) ClearCookies(ctx context.Context) error {
	// SetCookies(nil) 清空全部cookie
	if err := ri.browser.Context(ctx).SetCookies(nil); err != nil {
		return fmt.Errorf("清空cookie失败: %w", err)
	}
	return nil
}

func (ri *rodInstance) LocalStorage(ctx context.Context) (map[string]string, error) {
	page, err := ri.currentPage(ctx)
	if err != nil {
		return nil, err
	}
	res, err := page.Eval(`() => JSON.stringify(Object.assign({}, window.localStorage))`)
	if err != nil {
		return nil, fmt.Errorf("读取localStorage失败: %w", err)
	}

	storage := make(map[string]string)
	if err := json.Unmarshal([]byte(res.Value.Str()), &storage); err != nil {
		return nil, fmt.Errorf("解析localStorage失败: %w", err)
	}
	return storage, nil
}

func (ri *rodInstance) Eval(ctx context.Context, js string, args ...interface{}) (json.RawMessage, error) {
	page, err := ri.currentPage(ctx)
	if err != nil {
		return nil, err
	}
	res, err := page.Eval(js, args...)
	if err != nil {
		return nil, fmt.Errorf("执行页面脚本失败: %w", err)
	}
	return json.RawMessage(res.Value.JSON("", "")), nil
}

func (ri *rodInstance) PageURL(ctx context.Context) (string, error) {
	ri.pageMu.Lock()
	page := ri.page
	ri.pageMu.Unlock()
	if page == nil {
		return "", nil
	}
	info, err := page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("读取页面信息失败: %w", err)
	}
	return info.URL, nil
}

func (ri *rodInstance) Close() error {
	if err := ri.browser.Close(); err != nil {
		// 连接已断开时直接结束进程
		ri.launcher.Kill()
		return fmt.Errorf("关闭浏览器失败: %w", err)
	}
	return nil
}
