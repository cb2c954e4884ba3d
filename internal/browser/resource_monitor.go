package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitor 系统资源监控器
// 职责: 周期性采样可用内存和CPU, 资源不足时拒绝启动新的浏览器进程
type ResourceMonitor struct {
	config ResourceMonitorConfig

	// 最近一次采样结果
	availableMB uint64
	cpuUsage    float64
	sampledAt   time.Time
	mu          sync.RWMutex

	// sample 采样函数, 测试可替换
	sample func() (availableMB uint64, cpuUsage float64, err error)

	cancelFunc context.CancelFunc
	isRunning  bool
	runMu      sync.Mutex
}

// ResourceMonitorConfig 资源监控器配置
type ResourceMonitorConfig struct {
	MinFreeMemoryMB  uint64 // 启动浏览器所需的最小可用内存(MB)
	CPULoadThreshold int    // CPU负载阈值(%), >=200 视为禁用
}

// NewResourceMonitor 创建资源监控器实例
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.MinFreeMemoryMB == 0 {
		config.MinFreeMemoryMB = 512
	}
	if config.CPULoadThreshold == 0 {
		config.CPULoadThreshold = 95
	}

	rm := &ResourceMonitor{
		config: config,
		sample: sampleSystem,
	}
	rm.refresh()
	return rm
}

// sampleSystem 使用gopsutil读取系统可用内存与CPU使用率
func sampleSystem() (uint64, float64, error) {
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, fmt.Errorf("获取系统内存失败: %w", err)
	}

	// 100毫秒采样间隔, 避免阻塞过久
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, 0, fmt.Errorf("获取CPU使用率失败: %w", err)
	}
	usage := 0.0
	if len(percentages) > 0 {
		usage = percentages[0]
	}

	return vmStat.Available / (1024 * 1024), usage, nil
}

// refresh 采样一次并更新缓存
func (rm *ResourceMonitor) refresh() {
	availableMB, usage, err := rm.sample()
	if err != nil {
		log.Warn().Err(err).Msg("资源采样失败,沿用上一次结果")
		return
	}

	rm.mu.Lock()
	rm.availableMB = availableMB
	rm.cpuUsage = usage
	rm.sampledAt = time.Now()
	rm.mu.Unlock()
}

// StartMonitoring 启动后台采样
func (rm *ResourceMonitor) StartMonitoring(interval time.Duration) {
	rm.runMu.Lock()
	defer rm.runMu.Unlock()

	// 已经在运行时直接返回(幂等)
	if rm.isRunning {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm.cancelFunc = cancel
	rm.isRunning = true

	go rm.monitoringLoop(ctx, interval)
}

// monitoringLoop 后台监控循环
func (rm *ResourceMonitor) monitoringLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rm.refresh()
		}
	}
}

// StopMonitoring 停止资源监控
func (rm *ResourceMonitor) StopMonitoring() {
	rm.runMu.Lock()
	defer rm.runMu.Unlock()

	if rm.isRunning && rm.cancelFunc != nil {
		rm.cancelFunc()
		rm.isRunning = false
		rm.cancelFunc = nil
	}
}

// CheckLaunch 检查当前资源是否允许启动新的浏览器进程
// 返回ok(是否允许)和reason(不允许时的原因)
func (rm *ResourceMonitor) CheckLaunch() (ok bool, reason string) {
	rm.mu.RLock()
	availableMB := rm.availableMB
	usage := rm.cpuUsage
	sampled := !rm.sampledAt.IsZero()
	rm.mu.RUnlock()

	// 从未采样成功时不做限制
	if !sampled {
		return true, ""
	}

	if availableMB < rm.config.MinFreeMemoryMB {
		log.Warn().Msgf("可用内存不足(当前%dMB),拒绝启动浏览器", availableMB)
		return false, fmt.Sprintf("内存不足(当前%dMB, 需要%dMB)", availableMB, rm.config.MinFreeMemoryMB)
	}

	if rm.config.CPULoadThreshold < 200 && usage > float64(rm.config.CPULoadThreshold) {
		return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", usage)
	}

	return true, ""
}
