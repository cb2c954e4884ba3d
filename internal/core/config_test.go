package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入 %s 失败: %v", name, err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("显式指定的配置文件不存在时应报错, 得到 %+v", cfg)
	}

	t.Chdir(t.TempDir())
	cfg, err = LoadConfig("")
	if err != nil {
		t.Fatalf("未找到配置文件时应使用默认值: %v", err)
	}

	if cfg.Cache.ShortTTL != 60*time.Second || cfg.Cache.LongTTL != time.Hour {
		t.Errorf("TTL默认值不符: %s / %s", cfg.Cache.ShortTTL, cfg.Cache.LongTTL)
	}
	if cfg.Crawl.Interval != 2*time.Second || cfg.Crawl.MaxItems != 100 {
		t.Errorf("采集默认值不符: %+v", cfg.Crawl)
	}
	if diff := cmp.Diff([]string{"jsonl"}, cfg.Store.Drivers); diff != "" {
		t.Errorf("存储驱动默认值不符 (-期望 +得到):\n%s", diff)
	}
	if cfg.Browser.UserAgent != DefaultUserAgent {
		t.Errorf("期望默认UA, 得到 %s", cfg.Browser.UserAgent)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
cache:
  driver: redis
  short_ttl: 30s
crawl:
  max_items: 15
  interval: 500ms
store:
  drivers: [jsonl, sqlite]
`)
	t.Setenv("MEDIACRAWLER_SERVER_ADDR", ":9999")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Cache.Driver != "redis" || cfg.Cache.ShortTTL != 30*time.Second {
		t.Errorf("缓存配置不符: %+v", cfg.Cache)
	}
	if cfg.Cache.LongTTL != time.Hour {
		t.Errorf("未配置的键应保留默认值, 得到 %s", cfg.Cache.LongTTL)
	}
	if cfg.Crawl.MaxItems != 15 || cfg.Crawl.Interval != 500*time.Millisecond {
		t.Errorf("采集配置不符: %+v", cfg.Crawl)
	}
	if diff := cmp.Diff([]string{"jsonl", "sqlite"}, cfg.Store.Drivers); diff != "" {
		t.Errorf("存储驱动不符 (-期望 +得到):\n%s", diff)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("环境变量应覆盖配置, 得到 %s", cfg.Server.Addr)
	}
}

func TestLoadConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"短TTL不小于长TTL", "cache:\n  short_ttl: 2h\n", "short_ttl"},
		{"未知缓存驱动", "cache:\n  driver: memcached\n", "不支持的缓存驱动"},
		{"未知存储驱动", "store:\n  drivers: [csv]\n", "不支持的存储驱动"},
		{"登录超时小于轮询间隔", "login:\n  timeout: 1s\n  poll_interval: 2s\n", "login.timeout"},
		{"负的重试次数", "client:\n  max_retries: -1\n", "max_retries"},
		{"代理协议不支持", "client:\n  proxy: ftp://127.0.0.1:21\n", "client.proxy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", tt.content)
			_, err := LoadConfig(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("期望包含 %q 的错误, 得到 %v", tt.wantErr, err)
			}
		})
	}
}
