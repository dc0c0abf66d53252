package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标，nil 时所有记录方法为空操作
type Metrics struct {
	registry *prometheus.Registry

	QuoteLookups      *prometheus.CounterVec
	UpstreamRequests  *prometheus.CounterVec
	LabelPurchases    *prometheus.CounterVec
	TrackingEmails    *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	RefreshJobBatches prometheus.Counter
}

// NewMetrics 在独立 Registry 上注册指标
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		QuoteLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipdesk_quote_lookups_total",
				Help: "Quote lookups by source (cache, live, empty)",
			},
			[]string{"source"},
		),
		UpstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipdesk_upstream_requests_total",
				Help: "Shipping provider calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		LabelPurchases: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipdesk_label_purchases_total",
				Help: "Label purchase attempts by outcome",
			},
			[]string{"outcome"},
		),
		TrackingEmails: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipdesk_tracking_emails_total",
				Help: "Tracking notification decisions by result",
			},
			[]string{"result"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipdesk_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shipdesk_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RefreshJobBatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "shipdesk_label_refresh_batches_total",
			Help: "Scheduled label refresh batches executed",
		}),
	}
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordQuote 记录报价来源
func (m *Metrics) RecordQuote(source string) {
	if m == nil {
		return
	}
	m.QuoteLookups.WithLabelValues(source).Inc()
}

// RecordUpstream 记录服务商调用
func (m *Metrics) RecordUpstream(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.UpstreamRequests.WithLabelValues(operation, outcome).Inc()
}

// RecordPurchase 记录面单购买结果
func (m *Metrics) RecordPurchase(outcome string) {
	if m == nil {
		return
	}
	m.LabelPurchases.WithLabelValues(outcome).Inc()
}

// RecordTrackingEmail 记录物流通知结果
func (m *Metrics) RecordTrackingEmail(result string) {
	if m == nil {
		return
	}
	m.TrackingEmails.WithLabelValues(result).Inc()
}

// RecordRefreshBatch 记录定时刷新批次
func (m *Metrics) RecordRefreshBatch() {
	if m == nil {
		return
	}
	m.RefreshJobBatches.Inc()
}
