package models

import (
	"fmt"
	"net/http"
	"strings"
)

// HeaderConfig 表示headers.yaml配置文件的结构
// 公共头部作用于所有平台,平台头部按平台代码覆盖
type HeaderConfig struct {
	// Headers 所有平台共用的自定义HTTP头部
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`

	// Platforms 按平台划分的头部, 键为平台代码 (如 "xhs")
	Platforms map[string]PlatformHeaders `mapstructure:"platforms" yaml:"platforms"`
}

// PlatformHeaders 单个平台的头部配置
type PlatformHeaders struct {
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`
}

// ForPlatform 返回指定平台生效的配置头部 (公共 < 平台)
func (hc *HeaderConfig) ForPlatform(platform Platform) map[string]string {
	result := make(map[string]string, len(hc.Headers))
	for name, value := range hc.Headers {
		result[name] = value
	}
	if ph, ok := hc.Platforms[string(platform)]; ok {
		for name, value := range ph.Headers {
			result[name] = value
		}
	}
	return result
}

// CliHeaders 表示命令行传递的头部列表
// 每个字符串格式为 "Name: Value"
type CliHeaders []string

// Parse 将字符串列表解析为 http.Header
// 返回解析后的头部和错误信息
func (ch CliHeaders) Parse() (http.Header, error) {
	result := make(http.Header)
	for i, s := range ch {
		name, value, err := parseHeaderString(s)
		if err != nil {
			return nil, fmt.Errorf("参数 --header 第%d项格式错误: %w", i+1, err)
		}
		result.Set(name, value)
	}
	return result, nil
}

// parseHeaderString 解析单个头部字符串 "Name: Value"
// 返回头部名称、值和错误信息
func parseHeaderString(s string) (name, value string, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("格式错误: 缺少冒号分隔符,应为 'Name: Value'")
	}

	name = strings.TrimSpace(parts[0])
	value = strings.TrimSpace(parts[1])

	if name == "" {
		return "", "", fmt.Errorf("头部名称不能为空")
	}

	return name, value, nil
}

// HeaderProvider 定义HTTP头部提供者接口
// 实现此接口的类型负责管理和提供某个平台的HTTP请求头部
type HeaderProvider interface {
	// GetHeaders 返回平台当前有效的HTTP请求头部
	// 返回的http.Header已按优先级合并(默认 < 平台 < 配置 < 命令行)
	//
	// 错误情况:
	//   - 配置文件解析失败
	//   - 头部验证失败
	GetHeaders(platform Platform) (http.Header, error)
}

// ConfigError 配置文件错误
// 表示配置文件解析失败
type ConfigError struct {
	// FilePath 配置文件路径
	FilePath string

	// Cause 底层错误 (如viper.ConfigParseError)
	Cause error
}

// Error 实现error接口
func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Cause
}
