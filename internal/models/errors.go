package models

import (
	"errors"
	"fmt"
	"time"
)

// 错误类型定义
var (
	// ErrLaunch 浏览器进程无法启动
	ErrLaunch = errors.New("浏览器启动失败")
	// ErrLoginTimeout 登录等待超时
	ErrLoginTimeout = errors.New("登录超时")
	// ErrLoginExpired 二维码或会话已过期
	ErrLoginExpired = errors.New("登录已过期")
	// ErrLoginFailed 登录失败
	ErrLoginFailed = errors.New("登录失败")
	// ErrAuthExpired 平台返回未登录
	ErrAuthExpired = errors.New("登录态失效")
	// ErrSoftRiskControl 平台触发风控(限流/验证)
	ErrSoftRiskControl = errors.New("触发平台风控")
	// ErrHardAPIFailure 不可重试的接口失败
	ErrHardAPIFailure = errors.New("接口请求失败")
	// ErrValidation 调用方输入不合法
	ErrValidation = errors.New("参数校验失败")
	// ErrSessionNotFound 登录会话不存在
	ErrSessionNotFound = errors.New("登录会话不存在")
	// ErrUnknownPlatform 未注册的平台
	ErrUnknownPlatform = errors.New("未知平台")
	// ErrNotLoggedIn 平台当前没有可用的登录态
	ErrNotLoggedIn = errors.New("平台未登录")
)

// ValidationError 输入校验错误
// 在任何网络或浏览器操作之前返回
type ValidationError struct {
	// Field 出错的字段
	Field string

	// Value 出错的值 (可选)
	Value string

	// Reason 错误原因
	Reason string

	// Suggestion 修复建议 (可选)
	Suggestion string
}

// Error 实现error接口
func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("参数校验失败 [%s]: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg = fmt.Sprintf("参数校验失败 [%s=%s]: %s", e.Field, e.Value, e.Reason)
	}
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (建议: %s)", e.Suggestion)
	}
	return msg
}

// Is 支持errors.Is(err, ErrValidation)
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// LaunchError 浏览器启动错误
type LaunchError struct {
	Platform Platform
	Reason   string
	Cause    error
}

// Error 实现error接口
func (e *LaunchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] 浏览器启动失败: %s: %v", e.Platform, e.Reason, e.Cause)
	}
	return fmt.Sprintf("[%s] 浏览器启动失败: %s", e.Platform, e.Reason)
}

// Unwrap 支持errors.Unwrap
func (e *LaunchError) Unwrap() error {
	return e.Cause
}

// Is 支持errors.Is(err, ErrLaunch)
func (e *LaunchError) Is(target error) bool {
	return target == ErrLaunch
}

// LoginError 登录过程中的可恢复错误,调用方可重新发起登录
type LoginError struct {
	Platform  Platform
	SessionID string
	// Kind 为 ErrLoginTimeout / ErrLoginExpired / ErrLoginFailed 之一
	Kind    error
	Message string
	Cause   error
}

// Error 实现error接口
func (e *LoginError) Error() string {
	msg := fmt.Sprintf("[%s] %v: %s", e.Platform, e.Kind, e.Message)
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

// Unwrap 同时暴露错误类别与底层原因
func (e *LoginError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// AuthExpiredError 平台返回未登录/登录过期
type AuthExpiredError struct {
	Platform Platform
	Endpoint string
	Code     int
	Message  string
}

// Error 实现error接口
func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("[%s] %s 登录态失效 (code=%d): %s", e.Platform, e.Endpoint, e.Code, e.Message)
}

// Is 支持errors.Is(err, ErrAuthExpired)
func (e *AuthExpiredError) Is(target error) bool {
	return target == ErrAuthExpired
}

// SoftRiskControlError 风控重试耗尽后返回
type SoftRiskControlError struct {
	Platform Platform
	Endpoint string
	Code     int
	Attempts int
	Message  string
}

// Error 实现error接口
func (e *SoftRiskControlError) Error() string {
	return fmt.Sprintf("[%s] %s 触发风控 (code=%d, 已尝试%d次): %s",
		e.Platform, e.Endpoint, e.Code, e.Attempts, e.Message)
}

// Is 支持errors.Is(err, ErrSoftRiskControl)
func (e *SoftRiskControlError) Is(target error) bool {
	return target == ErrSoftRiskControl
}

// HardAPIError 不可重试的接口错误(含网络错误)
type HardAPIError struct {
	Platform   Platform
	Endpoint   string
	StatusCode int
	Code       int
	Message    string
	Cause      error
}

// Error 实现error接口
func (e *HardAPIError) Error() string {
	msg := fmt.Sprintf("[%s] %s 请求失败 (http=%d, code=%d)", e.Platform, e.Endpoint, e.StatusCode, e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

// Unwrap 支持errors.Unwrap
func (e *HardAPIError) Unwrap() error {
	return e.Cause
}

// Is 支持errors.Is(err, ErrHardAPIFailure)
func (e *HardAPIError) Is(target error) bool {
	return target == ErrHardAPIFailure
}

// PartialError 操作中途失败,携带已采集条数与续爬游标
type PartialError struct {
	Collected int
	Cursor    string
	At        time.Time
	Cause     error
}

// Error 实现error接口
func (e *PartialError) Error() string {
	return fmt.Sprintf("采集中断(已采集%d条, cursor=%q): %v", e.Collected, e.Cursor, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *PartialError) Unwrap() error {
	return e.Cause
}
