package core

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/RecoveryAshes/MediaCrawler/internal/config"
	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform"
	"github.com/RecoveryAshes/MediaCrawler/internal/utils"
)

const (
	// DefaultUserAgent 默认User-Agent, 与浏览器会话保持一致
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"
)

// HeaderManager 按平台合并请求头
// 优先级: 系统默认 < 平台适配器 < 配置文件 < 命令行
// 实现 models.HeaderProvider 与 client.HeaderSource
type HeaderManager struct {
	registry  *platform.Registry
	loader    *config.HeaderConfigLoader
	validator *utils.HeaderValidator
	redactor  *utils.HeaderRedactor

	defaults http.Header
	cli      http.Header

	mu     sync.Mutex
	file   *models.HeaderConfig
	loaded bool
}

// NewHeaderManager 创建头部管理器
// configFile 为空时使用默认路径, cliHeaders 为 "Name: Value" 列表
func NewHeaderManager(configFile string, cliHeaders []string, registry *platform.Registry) (*HeaderManager, error) {
	cli := make(http.Header)
	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		cli = parsed
	}

	return &HeaderManager{
		registry:  registry,
		loader:    config.NewHeaderConfigLoader(configFile),
		validator: utils.NewHeaderValidator(),
		redactor:  utils.NewHeaderRedactor(),
		defaults:  defaultHeaders(),
		cli:       cli,
	}, nil
}

func defaultHeaders() http.Header {
	return http.Header{
		"User-Agent":      []string{DefaultUserAgent},
		"Accept":          []string{"application/json, text/plain, */*"},
		"Accept-Language": []string{"zh-CN,zh;q=0.9"},
		"Accept-Encoding": []string{"gzip, deflate, br"},
	}
}

// LoadConfig 加载配置文件, 已加载时跳过
func (hm *HeaderManager) LoadConfig() error {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if hm.loaded {
		return nil
	}

	cfg, err := hm.loader.LoadConfig()
	if err != nil {
		return err
	}
	hm.file = cfg
	hm.loaded = true
	return nil
}

// Validate 校验配置文件与命令行中的头部
// 默认头部与适配器头部由代码给出, 不参与校验
func (hm *HeaderManager) Validate() error {
	if err := hm.LoadConfig(); err != nil {
		return err
	}
	if err := hm.validator.Validate(toHeader(hm.file.Headers)); err != nil {
		return err
	}
	for code, ph := range hm.file.Platforms {
		if err := hm.validator.Validate(toHeader(ph.Headers)); err != nil {
			return &models.ConfigError{FilePath: hm.loader.Path(), Cause: fmt.Errorf("platforms.%s: %w", code, err)}
		}
	}
	return hm.validator.Validate(hm.cli)
}

// GetHeaders 返回平台生效的请求头, 实现 models.HeaderProvider
func (hm *HeaderManager) GetHeaders(p models.Platform) (http.Header, error) {
	if err := hm.Validate(); err != nil {
		return nil, err
	}
	return hm.merge(p, true), nil
}

// RequestHeaders 实现 client.HeaderSource
// 配置无效时只使用默认头部与适配器头部
func (hm *HeaderManager) RequestHeaders(p models.Platform) http.Header {
	h, err := hm.GetHeaders(p)
	if err != nil {
		log.Warn().Err(err).Str("platform", p.String()).Msg("请求头配置无效, 使用默认请求头")
		return hm.merge(p, false)
	}
	return h
}

// SafeHeaders 返回脱敏后的头部 (用于日志)
func (hm *HeaderManager) SafeHeaders(p models.Platform) map[string]string {
	return hm.redactor.Redact(hm.RequestHeaders(p))
}

func (hm *HeaderManager) merge(p models.Platform, custom bool) http.Header {
	result := make(http.Header)
	for name, values := range hm.defaults {
		result[name] = append([]string(nil), values...)
	}

	if hm.registry != nil {
		if adapter, err := hm.registry.Get(p); err == nil {
			for name, value := range adapter.DefaultHeaders() {
				result.Set(name, value)
			}
		}
	}

	if !custom {
		return result
	}

	hm.mu.Lock()
	file := hm.file
	hm.mu.Unlock()
	if file != nil {
		for name, value := range file.ForPlatform(p) {
			result.Set(name, value)
		}
	}

	for name, values := range hm.cli {
		result[name] = append([]string(nil), values...)
	}
	return result
}

func toHeader(m map[string]string) http.Header {
	h := make(http.Header, len(m))
	for name, value := range m {
		h.Set(name, value)
	}
	return h
}
