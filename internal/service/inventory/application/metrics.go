package application

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"fulfillment/internal/service/inventory/domain"
)

// Metrics 汇总了预占相关的 Prometheus 指标。nil 的 *Metrics 是合法的空实现。
type Metrics struct {
	reservations  *prometheus.CounterVec
	compensations *prometheus.CounterVec
	ledgerLatency *prometheus.HistogramVec
}

// NewMetrics 在给定的 Registerer 上注册指标；reg 为 nil 时只创建不注册
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reservations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Subsystem: "inventory",
			Name:      "reservations_total",
			Help:      "Reservation calls by terminal status.",
		}, []string{"status"}),
		compensations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Subsystem: "inventory",
			Name:      "compensations_total",
			Help:      "Compensating increments by outcome.",
		}, []string{"outcome"}),
		ledgerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fulfillment",
			Subsystem: "inventory",
			Name:      "ledger_call_seconds",
			Help:      "Stock ledger call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "outcome"}),
	}
}

func (m *Metrics) reservation(status string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(status).Inc()
}

func (m *Metrics) compensation(err error) {
	if m == nil {
		return
	}
	outcome := "restored"
	if err != nil {
		outcome = "failed"
	}
	m.compensations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ledgerCall(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInsufficientStock):
		outcome = "insufficient"
	case errors.Is(err, domain.ErrUnknownSKU):
		outcome = "unknown_sku"
	default:
		outcome = "error"
	}
	m.ledgerLatency.WithLabelValues(op, outcome).Observe(elapsed.Seconds())
}
