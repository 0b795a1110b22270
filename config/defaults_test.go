package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, KVConfig{}, cfg.KV)
	assert.NotEqual(t, RateLimitConfig{}, cfg.RateLimit)
	assert.NotEqual(t, QueueConfig{}, cfg.Queue)
	assert.NotEqual(t, ProviderConfig{}, cfg.Provider)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
}

func TestDefaultKVConfig(t *testing.T) {
	cfg := DefaultKVConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, 10, cfg.PoolSize)
	assert.Equal(t, 2, cfg.MinIdleConns)
	assert.Equal(t, 50, cfg.MaxConnections)
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	assert.Equal(t, 60, cfg.RequestsPerMinute)
	assert.Equal(t, 90000, cfg.TokensPerMinute)
	assert.Equal(t, 10, cfg.BurstSize)
}

func TestDefaultQueueConfig(t *testing.T) {
	cfg := DefaultQueueConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "chat", cfg.Name)
	assert.Equal(t, 1000, cfg.MaxSize)
	assert.Equal(t, 300*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 60*time.Second, cfg.CheckInterval)
	assert.Equal(t, 10*time.Second, cfg.DequeueWait)
	assert.Equal(t, 600*time.Second, cfg.ResultRetention)
	assert.Equal(t, 4, cfg.Workers)
}

func TestDefaultProviderConfig(t *testing.T) {
	cfg := DefaultProviderConfig()
	assert.Equal(t, "openai", cfg.Kind)
	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, "https://api.openai.com", cfg.BaseURL)
	assert.Equal(t, "gpt-3.5-turbo", cfg.DefaultModel)
	assert.Equal(t, 60, cfg.TimeoutSecs)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
	assert.False(t, cfg.EnableStacktrace)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "llm-gateway", cfg.ServiceName)
	assert.InDelta(t, 0.1, cfg.SampleRate, 0.001)
}
