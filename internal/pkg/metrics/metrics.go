// internal/pkg/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TransferMetrics 收集库存划转相关的 Prometheus 指标
type TransferMetrics struct {
	transfers *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	units     prometheus.Counter
}

// NewTransferMetrics 创建并注册指标。测试里传入独立的 Registry，避免重复注册。
func NewTransferMetrics(reg prometheus.Registerer) *TransferMetrics {
	m := &TransferMetrics{
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inventory",
			Name:      "transfers_total",
			Help:      "Number of stock transfers by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "inventory",
			Name:      "transfer_duration_seconds",
			Help:      "Latency of stock transfers including lock waits.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		units: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inventory",
			Name:      "transferred_units_total",
			Help:      "Total stock units moved by committed transfers.",
		}),
	}
	reg.MustRegister(m.transfers, m.duration, m.units)
	return m
}

// Observe 记录一次划转的结果，result 为 "committed" 或错误分类名
func (m *TransferMetrics) Observe(result string, elapsed time.Duration, units int64) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(result).Inc()
	m.duration.WithLabelValues(result).Observe(elapsed.Seconds())
	if units > 0 {
		m.units.Add(float64(units))
	}
}
