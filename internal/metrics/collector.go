// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 速率限制指标
	rateLimitDecisionsTotal *prometheus.CounterVec
	rateLimitRemaining      *prometheus.GaugeVec

	// 请求队列指标
	queuePendingLen    *prometheus.GaugeVec
	queueProcessingLen *prometheus.GaugeVec
	queueEnqueuedTotal *prometheus.CounterVec
	queueCompletedTotal *prometheus.CounterVec

	// Provider 指标
	providerRequestsTotal   *prometheus.CounterVec
	providerRequestDuration *prometheus.HistogramVec
	providerTokensUsed      *prometheus.CounterVec
	providerCost            *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.rateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Total number of rate limiter admission decisions",
		},
		[]string{"dimension", "decision"}, // decision: allowed, denied
	)

	c.rateLimitRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_limit_remaining_tokens",
			Help:      "Remaining tokens on the most recent admission decision per dimension",
		},
		[]string{"dimension"},
	)

	c.queuePendingLen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_pending_length",
			Help:      "Number of items waiting in the pending list",
		},
		[]string{"queue"},
	)

	c.queueProcessingLen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_processing_length",
			Help:      "Number of items leased out for processing",
		},
		[]string{"queue"},
	)

	c.queueEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_enqueued_total",
			Help:      "Total number of items admitted to the queue",
		},
		[]string{"queue"},
	)

	c.queueCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_completed_total",
			Help:      "Total number of items completed, by outcome",
		},
		[]string{"queue", "outcome"}, // outcome: completed, failed
	)

	c.providerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of upstream provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.providerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Upstream provider request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.providerTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	c.providerCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_cost_usd_total",
			Help:      "Total estimated provider cost in USD",
		},
		[]string{"provider", "model"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🚦 速率限制指标记录
// =============================================================================

// RecordRateLimitDecision 记录一次速率限制判定
func (c *Collector) RecordRateLimitDecision(dimension string, allowed bool, remaining float64) {
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}
	c.rateLimitDecisionsTotal.WithLabelValues(dimension, decision).Inc()
	c.rateLimitRemaining.WithLabelValues(dimension).Set(remaining)
}

// =============================================================================
// 📥 请求队列指标记录
// =============================================================================

// RecordQueueDepth 记录队列深度快照
func (c *Collector) RecordQueueDepth(queue string, pendingLen, processingLen int64) {
	c.queuePendingLen.WithLabelValues(queue).Set(float64(pendingLen))
	c.queueProcessingLen.WithLabelValues(queue).Set(float64(processingLen))
}

// RecordQueueEnqueued 记录一次入队
func (c *Collector) RecordQueueEnqueued(queue string) {
	c.queueEnqueuedTotal.WithLabelValues(queue).Inc()
}

// RecordQueueCompleted 记录一次出队完成
func (c *Collector) RecordQueueCompleted(queue string, failed bool) {
	outcome := "completed"
	if failed {
		outcome = "failed"
	}
	c.queueCompletedTotal.WithLabelValues(queue, outcome).Inc()
}

// =============================================================================
// 🤖 Provider 指标记录
// =============================================================================

// RecordProviderRequest 记录一次 Provider 调用
func (c *Collector) RecordProviderRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int, cost float64) {
	c.providerRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.providerRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.providerTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.providerTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	c.providerCost.WithLabelValues(provider, model).Add(cost)
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
