package client

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/RecoveryAshes/MediaCrawler/internal/platform"
)

// Metrics 签名客户端的Prometheus指标
type Metrics struct {
	requests  *prometheus.CounterVec
	outcomes  *prometheus.CounterVec
	httpCodes *prometheus.CounterVec
	backoffs  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

// NewMetrics 创建指标并注册到指定的Registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediacrawler_api_requests_total",
			Help: "平台接口请求次数(含重试)",
		}, []string{"platform", "endpoint"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediacrawler_api_outcomes_total",
			Help: "按分类统计的平台接口响应数",
		}, []string{"platform", "outcome"}),
		httpCodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediacrawler_api_http_status_total",
			Help: "HTTP状态码分布",
		}, []string{"platform", "status_code"}),
		backoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediacrawler_api_backoff_total",
			Help: "风控退避次数",
		}, []string{"platform"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mediacrawler_api_latency_seconds",
			Help:    "单次平台接口请求耗时(秒)",
			Buckets: prometheus.DefBuckets,
		}, []string{"platform"}),
	}

	reg.MustRegister(m.requests, m.outcomes, m.httpCodes, m.backoffs, m.latency)
	return m
}

func (m *Metrics) recordRequest(p, endpoint string, statusCode int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(p, endpoint).Inc()
	if statusCode > 0 {
		m.httpCodes.WithLabelValues(p, strconv.Itoa(statusCode)).Inc()
	}
	m.latency.WithLabelValues(p).Observe(elapsed.Seconds())
}

func (m *Metrics) recordOutcome(p string, o platform.Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(p, o.String()).Inc()
}

func (m *Metrics) recordBackoff(p string) {
	if m == nil {
		return
	}
	m.backoffs.WithLabelValues(p).Inc()
}
