package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-rod/rod/lib/launcher"
	"golang.org/x/mod/semver"
)

// minGoVersion 支持的最低Go版本
const minGoVersion = "v1.22"

func main() {
	fmt.Println("==============================================")
	fmt.Println("  MediaCrawler 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	// 检查Go版本
	goVersion := runtime.Version()
	fmt.Printf("✅ Go版本: %s\n", goVersion)
	if v := "v" + strings.TrimPrefix(goVersion, "go"); semver.IsValid(v) && semver.Compare(v, minGoVersion) < 0 {
		fmt.Printf("⚠️  警告: 建议使用Go %s+版本\n", strings.TrimPrefix(minGoVersion, "v"))
	}

	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 检查浏览器, 没有本地浏览器时rod会在首次启动时下载
	if path, ok := launcher.LookPath(); ok {
		fmt.Printf("✅ 浏览器: %s\n", path)
	} else {
		fmt.Println("⚠️  未找到本地Chromium/Chrome - 首次登录时将自动下载")
		fmt.Println("   也可在配置中指定 browser.bin_path")
	}

	// 检查浏览器数据目录可写
	dataDir := "browser_data"
	if len(os.Args) > 1 {
		dataDir = os.Args[1]
	}
	if err := checkWritable(dataDir); err != nil {
		fmt.Printf("❌ 浏览器数据目录不可写: %v\n", err)
		allOK = false
	} else {
		fmt.Printf("✅ 浏览器数据目录可写: %s\n", dataDir)
	}

	// 检查项目依赖
	fmt.Println()
	fmt.Println("检查Go模块依赖...")
	if _, err := os.Stat("go.mod"); err == nil {
		fmt.Println("✅ go.mod文件存在")

		fmt.Println("正在下载依赖...")
		cmd := exec.Command("go", "mod", "download")
		if err := cmd.Run(); err != nil {
			fmt.Printf("❌ go mod download失败: %v\n", err)
			allOK = false
		} else {
			fmt.Println("✅ 依赖下载完成")
		}
	} else {
		fmt.Println("❌ go.mod文件不存在")
		allOK = false
	}

	// 检查项目结构
	fmt.Println()
	fmt.Println("检查项目结构...")
	requiredDirs := []string{
		"cmd/mediacrawler",
		"internal/browser",
		"internal/login",
		"internal/crawlers",
		"internal/platform",
		"internal/store",
	}
	for _, dir := range requiredDirs {
		if _, err := os.Stat(dir); err == nil {
			fmt.Printf("✅ %s/\n", dir)
		} else {
			fmt.Printf("❌ %s/ 不存在\n", dir)
			allOK = false
		}
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'go build ./cmd/mediacrawler' 构建项目")
		fmt.Println("  2. 运行 './mediacrawler login -p xhs' 扫码登录")
		fmt.Println("  3. 运行 './mediacrawler --help' 查看帮助")
		os.Exit(0)
	}
	fmt.Println("❌ 环境验证失败,请解决上述问题。")
	os.Exit(1)
}

// checkWritable 创建目录并写入探测文件
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".write_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return err
	}
	return os.Remove(probe)
}
