package browser

import (
	"errors"
	"testing"
	"time"
)

func TestResourceMonitor_CheckLaunch(t *testing.T) {
	tests := []struct {
		name      string
		available uint64
		cpu       float64
		threshold int
		wantOK    bool
	}{
		{"资源充足", 4096, 20, 90, true},
		{"内存不足", 100, 20, 90, false},
		{"CPU过高", 4096, 99, 90, false},
		{"CPU检查禁用", 4096, 99, 200, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := NewResourceMonitor(ResourceMonitorConfig{MinFreeMemoryMB: 512, CPULoadThreshold: tt.threshold})
			rm.sample = func() (uint64, float64, error) { return tt.available, tt.cpu, nil }
			rm.refresh()

			ok, reason := rm.CheckLaunch()
			if ok != tt.wantOK {
				t.Errorf("期望 ok=%v, 得到 %v (%s)", tt.wantOK, ok, reason)
			}
			if !ok && reason == "" {
				t.Error("拒绝时应给出原因")
			}
		})
	}
}

func TestResourceMonitor_SampleErrorKeepsLastValue(t *testing.T) {
	rm := NewResourceMonitor(ResourceMonitorConfig{MinFreeMemoryMB: 512})
	rm.sample = func() (uint64, float64, error) { return 100, 0, nil }
	rm.refresh()

	rm.sample = func() (uint64, float64, error) { return 0, 0, errors.New("采样失败") }
	rm.refresh()

	if ok, _ := rm.CheckLaunch(); ok {
		t.Error("采样失败时应沿用上一次(内存不足)的结果")
	}
}

func TestResourceMonitor_StartStopIdempotent(t *testing.T) {
	rm := NewResourceMonitor(ResourceMonitorConfig{})
	rm.StartMonitoring(time.Hour)
	rm.StartMonitoring(time.Hour)
	rm.StopMonitoring()
	rm.StopMonitoring()
}
