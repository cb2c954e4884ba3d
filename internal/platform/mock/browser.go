// Package mock 提供内存中的浏览器与平台实现, 用于单元测试和演示
package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RecoveryAshes/MediaCrawler/internal/browser"
	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// Instance 内存浏览器实例
type Instance struct {
	id string

	mu         sync.Mutex
	cookies    map[string]models.Cookie
	storage    map[string]string
	navigated  []string
	inputs     map[string]string
	clicks     []string
	qrSrc      string
	qrShot     []byte
	qrErr      error
	navErr     error
	onClick    func(xpath string)
	onEval     func(js string, args []interface{}) (interface{}, error)
	onClose    func()
	onCookies  func()
	closed     atomic.Bool
	closeCount atomic.Int32
}

// NewInstance 创建内存浏览器实例
func NewInstance() *Instance {
	return &Instance{
		id:      models.NewID(),
		cookies: make(map[string]models.Cookie),
		storage: make(map[string]string),
		inputs:  make(map[string]string),
	}
}

// SetQR 设置二维码元素的 src 或截图
func (i *Instance) SetQR(src string, shot []byte) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.qrSrc = src
	i.qrShot = shot
}

// FailQR 让二维码读取返回错误
func (i *Instance) FailQR(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.qrErr = err
}

// FailNavigate 让页面打开返回错误
func (i *Instance) FailNavigate(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.navErr = err
}

// OnClick 注册点击回调(模拟点击提交后cookie变化)
func (i *Instance) OnClick(fn func(xpath string)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.onClick = fn
}

// OnEval 注册页面脚本的执行结果
func (i *Instance) OnEval(fn func(js string, args []interface{}) (interface{}, error)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.onEval = fn
}

// OnClose 注册关闭回调, 可阻塞以模拟进程退出耗时
func (i *Instance) OnClose(fn func()) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.onClose = fn
}

// OnCookies 注册读取cookie时的回调, 在返回结果之前执行
func (i *Instance) OnCookies(fn func()) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.onCookies = fn
}

// SetCookie 模拟浏览器写入cookie(如扫码成功)
func (i *Instance) SetCookie(name, value string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cookies[name] = models.Cookie{Name: name, Value: value, Path: "/"}
}

// SetStorage 写入localStorage
func (i *Instance) SetStorage(key, value string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.storage[key] = value
}

// Navigated 返回打开过的地址
func (i *Instance) Navigated() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.navigated...)
}

// InputValue 返回输入框最近一次输入的值
func (i *Instance) InputValue(xpath string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.inputs[xpath]
}

// Closed 实例是否已关闭
func (i *Instance) Closed() bool {
	return i.closed.Load()
}

// CloseCount 关闭次数
func (i *Instance) CloseCount() int {
	return int(i.closeCount.Load())
}

func (i *Instance) ID() string {
	return i.id
}

func (i *Instance) checkOpen(ctx context.Context) error {
	if i.closed.Load() {
		return errors.New("浏览器已关闭")
	}
	return ctx.Err()
}

func (i *Instance) Navigate(ctx context.Context, url string) error {
	if err := i.checkOpen(ctx); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.navErr != nil {
		return i.navErr
	}
	i.navigated = append(i.navigated, url)
	return nil
}

func (i *Instance) ImageSource(ctx context.Context, xpath string) (string, []byte, error) {
	if err := i.checkOpen(ctx); err != nil {
		return "", nil, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.qrErr != nil {
		return "", nil, i.qrErr
	}
	if i.qrSrc == "" && i.qrShot == nil {
		return "", nil, fmt.Errorf("元素不存在: %s", xpath)
	}
	return i.qrSrc, i.qrShot, nil
}

func (i *Instance) Click(ctx context.Context, xpath string) error {
	if err := i.checkOpen(ctx); err != nil {
		return err
	}
	i.mu.Lock()
	i.clicks = append(i.clicks, xpath)
	fn := i.onClick
	i.mu.Unlock()

	if fn != nil {
		fn(xpath)
	}
	return nil
}

func (i *Instance) Input(ctx context.Context, xpath, text string) error {
	if err := i.checkOpen(ctx); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.inputs[xpath] = text
	return nil
}

func (i *Instance) Cookies(ctx context.Context) ([]models.Cookie, error) {
	if err := i.checkOpen(ctx); err != nil {
		return nil, err
	}
	i.mu.Lock()
	fn := i.onCookies
	i.mu.Unlock()
	if fn != nil {
		fn()
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	list := make([]models.Cookie, 0, len(i.cookies))
	for _, c := range i.cookies {
		list = append(list, c)
	}
	return list, nil
}

func (i *Instance) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	if err := i.checkOpen(ctx); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, c := range cookies {
		i.cookies[c.Name] = c
	}
	return nil
}

func (i *Instance) ClearCookies(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cookies = make(map[string]models.Cookie)
	return nil
}

func (i *Instance) LocalStorage(ctx context.Context) (map[string]string, error) {
	if err := i.checkOpen(ctx); err != nil {
		return nil, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make(map[string]string, len(i.storage))
	for k, v := range i.storage {
		out[k] = v
	}
	return out, nil
}

func (i *Instance) Eval(ctx context.Context, js string, args ...interface{}) (json.RawMessage, error) {
	if err := i.checkOpen(ctx); err != nil {
		return nil, err
	}
	i.mu.Lock()
	fn := i.onEval
	i.mu.Unlock()
	if fn == nil {
		return nil, errors.New("页面脚本未定义")
	}
	v, err := fn(js, args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (i *Instance) PageURL(ctx context.Context) (string, error) {
	if err := i.checkOpen(ctx); err != nil {
		return "", err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.navigated) == 0 {
		return "", nil
	}
	return i.navigated[len(i.navigated)-1], nil
}

func (i *Instance) Close() error {
	i.mu.Lock()
	fn := i.onClose
	i.mu.Unlock()
	if fn != nil {
		fn()
	}
	i.closed.Store(true)
	i.closeCount.Add(1)
	return nil
}

// Launcher 内存启动器, 记录启动次数
type Launcher struct {
	// Delay 模拟启动耗时
	Delay time.Duration
	// Err 非空时启动失败
	Err error
	// Prepare 新实例创建后的初始化回调
	Prepare func(inst *Instance)

	launches  atomic.Int32
	wiped     atomic.Int32
	mu        sync.Mutex
	instances []*Instance
}

// Launch 实现 browser.Launcher
func (l *Launcher) Launch(ctx context.Context, platform models.Platform) (browser.Instance, error) {
	l.launches.Add(1)
	if l.Delay > 0 {
		select {
		case <-time.After(l.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.Err != nil {
		return nil, l.Err
	}

	inst := NewInstance()
	if l.Prepare != nil {
		l.Prepare(inst)
	}
	l.mu.Lock()
	l.instances = append(l.instances, inst)
	l.mu.Unlock()
	return inst, nil
}

// WipeProfile 实现 browser.ProfileWiper
func (l *Launcher) WipeProfile(platform models.Platform) error {
	l.wiped.Add(1)
	return nil
}

// Launches 启动次数
func (l *Launcher) Launches() int {
	return int(l.launches.Load())
}

// Wipes 清除目录次数
func (l *Launcher) Wipes() int {
	return int(l.wiped.Load())
}

// Last 最近一次创建的实例
func (l *Launcher) Last() *Instance {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.instances) == 0 {
		return nil
	}
	return l.instances[len(l.instances)-1]
}

// Instances 全部已创建的实例
func (l *Launcher) Instances() []*Instance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Instance(nil), l.instances...)
}

var (
	_ browser.Instance     = (*Instance)(nil)
	_ browser.Launcher     = (*Launcher)(nil)
	_ browser.ProfileWiper = (*Launcher)(nil)
)
