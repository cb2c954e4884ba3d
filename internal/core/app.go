package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/RecoveryAshes/MediaCrawler/internal/api"
	"github.com/RecoveryAshes/MediaCrawler/internal/browser"
	"github.com/RecoveryAshes/MediaCrawler/internal/cache"
	"github.com/RecoveryAshes/MediaCrawler/internal/client"
	"github.com/RecoveryAshes/MediaCrawler/internal/crawlers"
	"github.com/RecoveryAshes/MediaCrawler/internal/login"
	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform/bilibili"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform/xhs"
	"github.com/RecoveryAshes/MediaCrawler/internal/store"
)

// resourceSampleInterval 资源监控的采样间隔
const resourceSampleInterval = 5 * time.Second

// App 组装好的运行时组件
// 进程内每个平台只有一个浏览器会话管理器、一个状态缓存与一个签名客户端
type App struct {
	Config   *Config
	Registry *platform.Registry
	Headers  *HeaderManager
	Monitor  *browser.ResourceMonitor
	Browsers *browser.Manager
	Cache    cache.StatusCache
	Client   *client.Client
	Login    *login.Service
	Crawler  *crawlers.Orchestrator
	Sink     store.Sink
	Metrics  *prometheus.Registry

	closers []func() error
}

// NewRegistry 注册全部已实现的平台
func NewRegistry() *platform.Registry {
	return platform.NewRegistry(xhs.New(), bilibili.New())
}

// NewApp 按配置创建全部组件, 任一步失败时释放已创建的资源
func NewApp(ctx context.Context, cfg *Config, cliHeaders []string) (*App, error) {
	app := &App{
		Config:   cfg,
		Registry: NewRegistry(),
		Metrics:  prometheus.NewRegistry(),
	}
	app.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	headers, err := NewHeaderManager(cfg.HeadersFile, cliHeaders, app.Registry)
	if err != nil {
		return nil, err
	}
	if err := headers.Validate(); err != nil {
		return nil, fmt.Errorf("请求头配置无效: %w", err)
	}
	app.Headers = headers

	app.Cache, err = newStatusCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}

	var gate browser.LaunchGate
	if cfg.Resource.Enabled {
		app.Monitor = browser.NewResourceMonitor(browser.ResourceMonitorConfig{
			MinFreeMemoryMB:  uint64(cfg.Resource.MinFreeMemoryMB),
			CPULoadThreshold: cfg.Resource.CPULoadThreshold,
		})
		gate = app.Monitor
	}

	launcher := browser.NewRodLauncher(browser.RodOptions{
		Headless:    cfg.Browser.Headless,
		BinPath:     cfg.Browser.BinPath,
		UserDataDir: cfg.Browser.UserDataDir,
		Stealth:     cfg.Browser.Stealth,
		UserAgent:   cfg.Browser.UserAgent,
	})
	app.Browsers = browser.NewManager(launcher, browser.Options{
		IdleTimeout:   cfg.Browser.IdleTimeout,
		ReapInterval:  cfg.Browser.ReapInterval,
		LaunchTimeout: cfg.Browser.LaunchTimeout,
		WipeOnReset:   cfg.Browser.WipeOnReset,
		Gate:          gate,
	})
	app.closers = append(app.closers, app.Browsers.Close)

	statusCache := app.Cache
	app.Client = client.New(app.Registry, app.Browsers, client.Options{
		Timeout:     cfg.Client.Timeout,
		MaxRetries:  cfg.Client.MaxRetries,
		BackoffBase: cfg.Client.BackoffBase,
		BackoffMax:  cfg.Client.BackoffMax,
		Proxy:       cfg.Client.Proxy,
		Headers:     headers,
		Metrics:     client.NewMetrics(app.Metrics),
		Evaluator:   app.Browsers,
		OnAuthExpired: func(ctx context.Context, p models.Platform) {
			if err := statusCache.Invalidate(ctx, p); err != nil {
				log.Warn().Err(err).Str("platform", p.String()).Msg("清除登录状态缓存失败")
			}
		},
	})

	httpClient := app.Client
	app.Login = login.NewService(app.Browsers, app.Registry, app.Cache, app.Client,
		login.NewQRNormalizer(login.NewSafeFetcher(cfg.Login.CheckTimeout)),
		login.Options{
			PollInterval:       cfg.Login.PollInterval,
			CheckTimeout:       cfg.Login.CheckTimeout,
			Timeout:            cfg.Login.Timeout,
			QRSettle:           cfg.Login.QRSettle,
			QRWait:             cfg.Login.QRWait,
			Retention:          cfg.Login.Retention,
			ValidateRetries:    cfg.Login.ValidateRetries,
			ValidateRetryDelay: cfg.Login.ValidateRetryDelay,
			Metrics:            login.NewMetrics(app.Metrics),
			OnCookiesChanged:   httpClient.ResetPlatform,
		})

	app.Sink, err = openSinks(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, app.Sink.Close)

	app.Crawler = crawlers.New(app.Registry, app.Client, crawlers.Config{
		Defaults: crawlers.Options{
			PageSize:    cfg.Crawl.PageSize,
			MaxItems:    cfg.Crawl.MaxItems,
			MaxPerDay:   cfg.Crawl.MaxPerDay,
			MaxComments: cfg.Crawl.MaxComments,
			Interval:    cfg.Crawl.Interval,
			Concurrency: cfg.Crawl.Concurrency,
		},
		Sink: app.Sink,
		Gate: app.Login,
	})

	ok = true
	log.Info().
		Strs("platforms", platformCodes(app.Registry.Platforms())).
		Str("cache", cfg.Cache.Driver).
		Strs("store", cfg.Store.Drivers).
		Msg("组件初始化完成")
	return app, nil
}

// Start 启动后台任务: 资源采样、空闲浏览器回收与过期会话清理
func (a *App) Start() {
	if a.Monitor != nil {
		a.Monitor.StartMonitoring(resourceSampleInterval)
	}
	a.Browsers.Start()
	a.Login.Start()
}

// Server 创建HTTP服务
func (a *App) Server() *api.Server {
	return api.NewServer(api.Deps{
		Login:    a.Login,
		Crawler:  a.Crawler,
		Browsers: a.Browsers,
		Gatherer: a.Metrics,
	})
}

// Close 按创建的逆序释放资源
func (a *App) Close() error {
	if a.Login != nil {
		a.Login.Close()
	}
	if a.Monitor != nil {
		a.Monitor.StopMonitoring()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newStatusCache(ctx context.Context, cfg CacheConfig) (cache.StatusCache, error) {
	policy := cache.TTLPolicy{Short: cfg.ShortTTL, Long: cfg.LongTTL}
	if cfg.Driver != "redis" {
		return cache.NewMemoryCache(policy), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Redis.Timeout)
	defer cancel()
	return cache.NewRedisCache(connectCtx, cache.RedisConfig{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
		Timeout:   cfg.Redis.Timeout,
	}, policy)
}

// openSinks 按 store.drivers 打开存储, 多个存储时组合为 MultiSink
func openSinks(_ context.Context, cfg StoreConfig) (store.Sink, error) {
	sinks := make([]store.Sink, 0, len(cfg.Drivers))
	fail := func(err error) (store.Sink, error) {
		for _, s := range sinks {
			s.Close()
		}
		return nil, err
	}

	for _, driver := range cfg.Drivers {
		switch driver {
		case "jsonl":
			s, err := store.NewJSONLSink(cfg.OutputDir)
			if err != nil {
				return fail(err)
			}
			sinks = append(sinks, s)
		case "sqlite":
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
				return fail(fmt.Errorf("创建SQLite目录失败: %w", err))
			}
			s, err := store.OpenSQLiteSink(cfg.SQLitePath)
			if err != nil {
				return fail(err)
			}
			sinks = append(sinks, s)
		case "mongo":
			s, err := store.NewMongoSink(store.MongoConfig{
				URI:      cfg.Mongo.URI,
				Database: cfg.Mongo.Database,
				Timeout:  cfg.Mongo.Timeout,
			})
			if err != nil {
				return fail(err)
			}
			sinks = append(sinks, s)
		default:
			return fail(fmt.Errorf("不支持的存储驱动: %s", driver))
		}
	}

	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return store.NewMultiSink(sinks...), nil
}

func platformCodes(ps []models.Platform) []string {
	codes := make([]string, len(ps))
	for i, p := range ps {
		codes[i] = p.String()
	}
	return codes
}
