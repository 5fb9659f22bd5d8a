// Package metrics 封装了基于 Prometheus 的指标采集注册表及存储引擎的标准监控指标.
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 独立注册中心加预定义的引擎指标，减少各模块的样板代码.
type Metrics struct {
	registry *prometheus.Registry

	StoresTotal   *prometheus.CounterVec   // 文件写入总量 (维度: bucket, status)
	StoreDuration *prometheus.HistogramVec // 文件写入耗时分布
	StoredBytes   prometheus.Counter       // 成功写入的字节总量
	RemovalsTotal *prometheus.CounterVec   // 文件删除总量 (维度: bucket, status)
	QueuedUploads prometheus.Gauge         // 等待连接就绪的上传数
	BuildInfo     *prometheus.GaugeVec
}

// NewMetrics 初始化指标采集器，自动注册 Go 运行时与进程指标.
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.StoresTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "gridstore_stores_total",
		Help: "Total number of file store attempts",
	}, []string{"bucket", "status"})

	m.StoreDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gridstore_store_duration_seconds",
		Help:    "File store latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"bucket"})

	m.StoredBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gridstore_stored_bytes_total",
		Help: "Total number of bytes stored successfully",
	})
	m.registry.MustRegister(m.StoredBytes)

	m.RemovalsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "gridstore_removals_total",
		Help: "Total number of file removal attempts",
	}, []string{"bucket", "status"})

	m.QueuedUploads = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridstore_queued_uploads",
		Help: "Number of uploads waiting for the connection to open",
	})
	m.registry.MustRegister(m.QueuedUploads)

	slog.Info("metrics registry initialized", "service", serviceName)
	return m
}

// NewCounterVec 创建并注册一个新的计数器指标.
func (m *Metrics) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

// NewGaugeVec 创建并注册一个新的仪表盘指标.
func (m *Metrics) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(opts, labelNames)
	m.registry.MustRegister(gv)
	return gv
}

// NewHistogramVec 创建并注册一个新的直方图指标.
func (m *Metrics) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labelNames)
	m.registry.MustRegister(hv)
	return hv
}

// Handler 暴露 /metrics 抓取端点.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
