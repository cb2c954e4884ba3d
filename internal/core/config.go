package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/utils"
)

// Config 应用程序配置
type Config struct {
	Browser  BrowserConfig  `mapstructure:"browser"`
	Resource ResourceConfig `mapstructure:"resource"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Login    LoginConfig    `mapstructure:"login"`
	Client   ClientConfig   `mapstructure:"client"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Store    StoreConfig    `mapstructure:"store"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`

	// HeadersFile 平台请求头配置文件路径
	HeadersFile string `mapstructure:"headers_file"`
}

// BrowserConfig 浏览器会话配置
type BrowserConfig struct {
	Headless      bool          `mapstructure:"headless"`
	BinPath       string        `mapstructure:"bin_path"`
	UserDataDir   string        `mapstructure:"user_data_dir"`
	Stealth       bool          `mapstructure:"stealth"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	ReapInterval  time.Duration `mapstructure:"reap_interval"`
	LaunchTimeout time.Duration `mapstructure:"launch_timeout"`
	WipeOnReset   bool          `mapstructure:"wipe_on_reset"`
	UserAgent     string        `mapstructure:"user_agent"`
}

// ResourceConfig 启动浏览器前的资源检查
type ResourceConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	MinFreeMemoryMB  int  `mapstructure:"min_free_memory_mb"`
	CPULoadThreshold int  `mapstructure:"cpu_load_threshold"`
}

// CacheConfig 登录状态缓存配置
type CacheConfig struct {
	Driver   string        `mapstructure:"driver"`
	ShortTTL time.Duration `mapstructure:"short_ttl"`
	LongTTL  time.Duration `mapstructure:"long_ttl"`
	Redis    RedisConfig   `mapstructure:"redis"`
}

// RedisConfig Redis连接配置
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// LoginConfig 登录状态机配置
type LoginConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	CheckTimeout       time.Duration `mapstructure:"check_timeout"`
	Timeout            time.Duration `mapstructure:"timeout"`
	QRSettle           time.Duration `mapstructure:"qr_settle"`
	QRWait             time.Duration `mapstructure:"qr_wait"`
	Retention          time.Duration `mapstructure:"retention"`
	ValidateRetries    int           `mapstructure:"validate_retries"`
	ValidateRetryDelay time.Duration `mapstructure:"validate_retry_delay"`
}

// ClientConfig 签名请求客户端配置
type ClientConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
	Proxy       string        `mapstructure:"proxy"`
}

// CrawlConfig 采集默认参数(每次调用可覆盖)
type CrawlConfig struct {
	PageSize         int           `mapstructure:"page_size"`
	MaxItems         int           `mapstructure:"max_items"`
	MaxComments      int           `mapstructure:"max_comments"`
	MaxPerDay        int           `mapstructure:"max_per_day"`
	Interval         time.Duration `mapstructure:"interval"`
	Concurrency      int           `mapstructure:"concurrency"`
	CountSubComments bool          `mapstructure:"count_sub_comments"`
}

// StoreConfig 存储配置
type StoreConfig struct {
	Drivers    []string    `mapstructure:"drivers"`
	OutputDir  string      `mapstructure:"output_dir"`
	SQLitePath string      `mapstructure:"sqlite_path"`
	Mongo      MongoConfig `mapstructure:"mongo"`
}

// MongoConfig MongoDB连接配置
type MongoConfig struct {
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// LoadConfig 加载配置文件
// 配置文件不存在时使用默认值, 环境变量 MEDIACRAWLER_* 覆盖文件配置
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".mediacrawler"))
		}
	}

	v.SetEnvPrefix("MEDIACRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("headers_file", "configs/headers.yaml")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.bin_path", "")
	v.SetDefault("browser.user_data_dir", "browser_data")
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.idle_timeout", "5m")
	v.SetDefault("browser.reap_interval", "30s")
	v.SetDefault("browser.launch_timeout", "60s")
	v.SetDefault("browser.wipe_on_reset", true)
	v.SetDefault("browser.user_agent", DefaultUserAgent)

	v.SetDefault("resource.enabled", true)
	v.SetDefault("resource.min_free_memory_mb", 512)
	v.SetDefault("resource.cpu_load_threshold", 95)

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.short_ttl", "60s")
	v.SetDefault("cache.long_ttl", "3600s")
	v.SetDefault("cache.redis.addr", "127.0.0.1:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.key_prefix", "mediacrawler:login_status:")
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("login.poll_interval", "2s")
	v.SetDefault("login.check_timeout", "10s")
	v.SetDefault("login.timeout", "5m")
	v.SetDefault("login.qr_settle", "1s")
	v.SetDefault("login.qr_wait", "15s")
	v.SetDefault("login.retention", "5m")
	v.SetDefault("login.validate_retries", 3)
	v.SetDefault("login.validate_retry_delay", "1s")

	v.SetDefault("client.timeout", "30s")
	v.SetDefault("client.max_retries", 3)
	v.SetDefault("client.backoff_base", "1s")
	v.SetDefault("client.backoff_max", "10s")

	v.SetDefault("crawl.page_size", 20)
	v.SetDefault("crawl.max_items", 100)
	v.SetDefault("crawl.max_comments", 50)
	v.SetDefault("crawl.max_per_day", 20)
	v.SetDefault("crawl.interval", "2s")
	v.SetDefault("crawl.concurrency", 4)
	v.SetDefault("crawl.count_sub_comments", false)

	v.SetDefault("store.drivers", []string{"jsonl"})
	v.SetDefault("store.output_dir", "data")
	v.SetDefault("store.sqlite_path", "data/mediacrawler.db")
	v.SetDefault("store.mongo.uri", "mongodb://127.0.0.1:27017")
	v.SetDefault("store.mongo.database", "mediacrawler")
	v.SetDefault("store.mongo.timeout", "10s")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")

	logDefaults := utils.DefaultLogConfig()
	v.SetDefault("logging.level", logDefaults.Level)
	v.SetDefault("logging.log_dir", logDefaults.LogDir)
	v.SetDefault("logging.rotation.max_size", logDefaults.MaxSize)
	v.SetDefault("logging.rotation.max_backups", logDefaults.MaxBackups)
	v.SetDefault("logging.rotation.max_age", logDefaults.MaxAge)
	v.SetDefault("logging.rotation.compress", logDefaults.Compress)
}

// Validate 校验配置的取值范围
func (c *Config) Validate() error {
	if c.Cache.ShortTTL <= 0 || c.Cache.LongTTL <= 0 {
		return fmt.Errorf("cache.short_ttl 与 cache.long_ttl 必须为正数")
	}
	if c.Cache.ShortTTL >= c.Cache.LongTTL {
		return fmt.Errorf("cache.short_ttl(%s) 必须小于 cache.long_ttl(%s)", c.Cache.ShortTTL, c.Cache.LongTTL)
	}
	if c.Login.PollInterval <= 0 || c.Login.Timeout <= c.Login.PollInterval {
		return fmt.Errorf("login.timeout 必须大于 login.poll_interval")
	}
	if c.Client.MaxRetries < 0 {
		return fmt.Errorf("client.max_retries 不能为负数")
	}
	if c.Client.Proxy != "" {
		if err := models.ValidateURL(c.Client.Proxy, "http", "https", "socks5"); err != nil {
			return fmt.Errorf("client.proxy: %w", err)
		}
	}
	switch c.Cache.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("不支持的缓存驱动: %s (可选 memory, redis)", c.Cache.Driver)
	}
	for _, d := range c.Store.Drivers {
		switch d {
		case "jsonl", "sqlite", "mongo":
		default:
			return fmt.Errorf("不支持的存储驱动: %s (可选 jsonl, sqlite, mongo)", d)
		}
	}
	return nil
}
