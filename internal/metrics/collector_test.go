package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.httpRequestDuration)
	assert.NotNil(t, collector.rateLimitDecisionsTotal)
	assert.NotNil(t, collector.queuePendingLen)
	assert.NotNil(t, collector.providerRequestsTotal)
	assert.NotNil(t, collector.providerTokensUsed)
	assert.NotNil(t, collector.providerCost)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond)

	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)

	collector.RecordHTTPRequest("GET", "/test", 200, 50*time.Millisecond)

	newCount := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.GreaterOrEqual(t, newCount, count)
}

func TestCollector_RecordRateLimitDecision(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordRateLimitDecision("requests", true, 42)
	collector.RecordRateLimitDecision("tokens", false, 0)

	count := testutil.CollectAndCount(collector.rateLimitDecisionsTotal)
	assert.Equal(t, 2, count)

	remaining := testutil.ToFloat64(collector.rateLimitRemaining.WithLabelValues("requests"))
	assert.Equal(t, float64(42), remaining)
}

func TestCollector_RecordQueueMetrics(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordQueueDepth("chat", 3, 1)
	collector.RecordQueueEnqueued("chat")
	collector.RecordQueueCompleted("chat", false)
	collector.RecordQueueCompleted("chat", true)

	assert.Equal(t, float64(3), testutil.ToFloat64(collector.queuePendingLen.WithLabelValues("chat")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.queueProcessingLen.WithLabelValues("chat")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.queueEnqueuedTotal.WithLabelValues("chat")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.queueCompletedTotal.WithLabelValues("chat", "completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.queueCompletedTotal.WithLabelValues("chat", "failed")))
}

func TestCollector_RecordProviderRequest(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordProviderRequest(
		"openai",
		"gpt-4",
		"success",
		500*time.Millisecond,
		100, // prompt tokens
		50,  // completion tokens
		0.01,
	)

	count := testutil.CollectAndCount(collector.providerRequestsTotal)
	assert.Greater(t, count, 0)

	tokensCount := testutil.CollectAndCount(collector.providerTokensUsed)
	assert.Greater(t, tokensCount, 0)

	costCount := testutil.CollectAndCount(collector.providerCost)
	assert.Greater(t, costCount, 0)
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond)
			collector.RecordProviderRequest("openai", "gpt-4", "success", 500*time.Millisecond, 100, 50, 0.01)
			collector.RecordRateLimitDecision("requests", true, 10)
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	httpCount := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, httpCount, 0)

	providerCount := testutil.CollectAndCount(collector.providerRequestsTotal)
	assert.Greater(t, providerCount, 0)

	rlCount := testutil.CollectAndCount(collector.rateLimitDecisionsTotal)
	assert.Greater(t, rlCount, 0)
}

func TestCollector_MetricsRegistration(t *testing.T) {
	logger := zap.NewNop()

	registry := prometheus.NewRegistry()

	collector := NewCollector(nextTestNamespace(), logger)

	registry.MustRegister(collector.httpRequestsTotal)
	registry.MustRegister(collector.httpRequestDuration)

	collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond)

	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)
}
