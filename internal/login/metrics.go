package login

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// Metrics 登录状态机的Prometheus指标
type Metrics struct {
	attempts *prometheus.CounterVec
	results  *prometheus.CounterVec
	pings    *prometheus.CounterVec
}

// NewMetrics 创建指标并注册到指定的Registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediacrawler_login_attempts_total",
			Help: "发起的登录次数",
		}, []string{"platform", "login_type"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediacrawler_login_results_total",
			Help: "登录会话的终态分布",
		}, []string{"platform", "status"}),
		pings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediacrawler_login_pings_total",
			Help: "登录态探测次数",
		}, []string{"platform", "result"}),
	}

	reg.MustRegister(m.attempts, m.results, m.pings)
	return m
}

func (m *Metrics) recordAttempt(p models.Platform, kind models.LoginType) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(p.String(), string(kind)).Inc()
}

func (m *Metrics) recordResult(p models.Platform, status models.LoginStatus) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(p.String(), string(status)).Inc()
}

func (m *Metrics) recordPing(p models.Platform, result string) {
	if m == nil {
		return
	}
	m.pings.WithLabelValues(p.String(), result).Inc()
}
