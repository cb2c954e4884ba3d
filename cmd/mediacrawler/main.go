package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/MediaCrawler/internal/core"
	"github.com/RecoveryAshes/MediaCrawler/internal/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 全局参数
var (
	configFile     string
	verbose        bool
	logLevel       string
	headers        []string
	validateConfig bool

	appConfig *core.Config
)

var rootCmd = &cobra.Command{
	Use:   "mediacrawler",
	Short: "社交媒体平台登录与内容采集工具",
	Long: `MediaCrawler - 社交媒体平台登录与内容采集工具

支持的平台: xhs (小红书), bilibili (哔哩哔哩)

功能:
  • 扫码 / cookie / 手机验证码登录, 登录态持久化在浏览器数据目录
  • 关键词搜索、内容详情、创作者作品与资料、评论及子评论
  • 结果按 平台/操作/日期 写入 JSONL、SQLite 或 MongoDB
  • HTTP 服务暴露登录控制协议与采集接口

示例:
  mediacrawler login -p xhs
  mediacrawler search -p xhs -k 咖啡,拿铁 --limit 50
  mediacrawler comments -p bilibili --ids BV1xx411c7mD --recurse
  mediacrawler serve --addr :8080

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		logConfig := utils.LogConfig{
			Level:      config.Logging.Level,
			LogDir:     config.Logging.LogDir,
			MaxSize:    config.Logging.Rotation.MaxSize,
			MaxBackups: config.Logging.Rotation.MaxBackups,
			MaxAge:     config.Logging.Rotation.MaxAge,
			Compress:   config.Logging.Rotation.Compress,
		}
		if logLevel != "" {
			logConfig.Level = logLevel
		}
		if verbose {
			logConfig.Level = "debug"
		}
		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		appConfig = config
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if !validateConfig {
			return cmd.Help()
		}
		return runValidateConfig()
	},
}

// runValidateConfig 校验请求头配置并打印各平台生效的头部(脱敏)
func runValidateConfig() error {
	utils.Info("验证请求头配置...")
	registry := core.NewRegistry()
	hm, err := core.NewHeaderManager(appConfig.HeadersFile, headers, registry)
	if err != nil {
		return err
	}
	if err := hm.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	utils.Info("配置验证通过")
	for _, p := range registry.Platforms() {
		safe := hm.SafeHeaders(p)
		utils.Infof("[%s] 生效的请求头 (%d个):", p, len(safe))
		for name, value := range safe {
			utils.Infof("  %s: %s", name, value)
		}
	}
	return nil
}

// withApp 创建组件并在返回前释放; ctx 在收到中断信号时取消
func withApp(fn func(ctx context.Context, app *core.App) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := core.NewApp(ctx, appConfig, headers)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			utils.Warnf("释放资源失败: %v", err)
		}
	}()
	app.Start()

	return fn(ctx, app)
}

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动HTTP服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := appConfig.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		return withApp(func(ctx context.Context, app *core.App) error {
			return app.Server().ListenAndServe(ctx, addr)
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("MediaCrawler %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证请求头配置文件")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "监听地址 (默认取 server.addr)")

	rootCmd.AddCommand(serveCmd, versionCmd)
	rootCmd.AddCommand(loginCmd, logoutCmd, sessionsCmd)
	rootCmd.AddCommand(searchCmd, detailCmd, creatorCmd, commentsCmd, batchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
