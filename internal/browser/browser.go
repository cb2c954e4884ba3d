// Package browser 管理每个平台唯一的持久化浏览器实例
//
// 调用方通过 Manager.Acquire 获得引用计数的租约(Lease), 用完调用 Release。
// 同一平台的浏览器创建是单飞的: 并发的 Acquire 只会启动一个浏览器进程,
// 所有等待者拿到同一个实例。引用计数归零并空闲超过 idle_timeout 后,
// 后台清扫协程关闭该实例。
package browser

import (
	"context"
	"encoding/json"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// Instance 一个平台的浏览器实例(持久化浏览上下文)
// 同一实例上的页面操作由登录防抖锁串行化
type Instance interface {
	// ID 实例标识, 每次启动不同
	ID() string

	// Navigate 打开地址并等待加载完成
	Navigate(ctx context.Context, url string) error

	// ImageSource 等待 xpath 指向的图片元素出现, 返回其 src;
	// 元素没有 src 时返回元素截图(PNG)
	ImageSource(ctx context.Context, xpath string) (src string, screenshot []byte, err error)

	// Click 点击 xpath 指向的元素
	Click(ctx context.Context, xpath string) error

	// Input 向 xpath 指向的输入框输入文本
	Input(ctx context.Context, xpath, text string) error

	// Cookies 读取当前上下文的全部cookie
	Cookies(ctx context.Context) ([]models.Cookie, error)

	// SetCookies 写入cookie
	SetCookies(ctx context.Context, cookies []models.Cookie) error

	// ClearCookies 清空cookie
	ClearCookies(ctx context.Context) error

	// LocalStorage 读取当前页面的 localStorage
	LocalStorage(ctx context.Context) (map[string]string, error)

	// Eval 在当前页面执行函数表达式, args 按顺序作为参数传入, 返回值按JSON编码
	Eval(ctx context.Context, js string, args ...interface{}) (json.RawMessage, error)

	// PageURL 当前页面地址, 尚未打开任何页面时为空
	PageURL(ctx context.Context) (string, error)

	// Close 关闭浏览器进程
	Close() error
}

// Launcher 启动平台浏览器
type Launcher interface {
	Launch(ctx context.Context, platform models.Platform) (Instance, error)
}

// ProfileWiper 可清除平台持久化目录的启动器
type ProfileWiper interface {
	WipeProfile(platform models.Platform) error
}

// LaunchGate 启动前的资源检查
type LaunchGate interface {
	CheckLaunch() (ok bool, reason string)
}
