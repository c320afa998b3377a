// Package metrics 提供流水线的 Prometheus 指标收集器。
//
// Collector 是显式实例，持有独立的 Registry，由应用创建后注入各组件；
// nil *Collector 的所有方法都是空操作。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "risk_radar"

// Collector 指标收集器
type Collector struct {
	registry *prometheus.Registry

	searches      *prometheus.CounterVec
	extractions   *prometheus.CounterVec
	scorings      *prometheus.CounterVec
	storage       *prometheus.CounterVec
	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	runDuration   prometheus.Histogram
}

// New 创建收集器并注册到新的 Registry
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search calls by outcome",
		}, []string{"outcome"}),
		extractions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Article extractions by outcome",
		}, []string{"outcome"}),
		scorings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentiment_scorings_total",
			Help:      "Sentiment scorings by method and fallback flag",
		}, []string{"method", "fallback"}),
		storage: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vector_store_items_total",
			Help:      "Vector store items by outcome",
		}, []string{"outcome"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by result",
		}, []string{"result"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of whole pipeline runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		}),
	}
}

// Registry 返回底层 Registry
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler 暴露 /metrics
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SearchDone 记录一次搜索的结果：ok / exhausted / fatal / permanent
func (c *Collector) SearchDone(outcome string) {
	if c == nil {
		return
	}
	c.searches.WithLabelValues(outcome).Inc()
}

// ExtractionDone 记录一次抽取的结果：ok 或失败原因
func (c *Collector) ExtractionDone(outcome string) {
	if c == nil {
		return
	}
	c.extractions.WithLabelValues(outcome).Inc()
}

// Scored 记录一次情感打分
func (c *Collector) Scored(method string, fallback bool) {
	if c == nil {
		return
	}
	c.scorings.WithLabelValues(method, strconv.FormatBool(fallback)).Inc()
}

// Stored 记录一批入库结果
func (c *Collector) Stored(success, failed, duplicate int) {
	if c == nil {
		return
	}
	c.storage.WithLabelValues("success").Add(float64(success))
	c.storage.WithLabelValues("error").Add(float64(failed))
	c.storage.WithLabelValues("duplicate").Add(float64(duplicate))
}

// ObserveStage 记录阶段耗时
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RunFinished 记录一次运行结束
func (c *Collector) RunFinished(result string, d time.Duration) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(result).Inc()
	c.runDuration.Observe(d.Seconds())
}
