// =============================================================================
// Gateway default configuration
// =============================================================================
// Provides the default value for every sub-config.
// =============================================================================
package config

import "time"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		KV:        DefaultKVConfig(),
		RateLimit: DefaultRateLimitConfig(),
		Queue:     DefaultQueueConfig(),
		Provider:  DefaultProviderConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default HTTP server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultKVConfig returns the default KV store configuration.
func DefaultKVConfig() KVConfig {
	return KVConfig{
		Addr:           "localhost:6379",
		Password:       "",
		DB:             0,
		PoolSize:       10,
		MinIdleConns:   2,
		MaxConnections: 50,
	}
}

// DefaultRateLimitConfig returns the default rate limiter configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 60,
		TokensPerMinute:   90000,
		BurstSize:         10,
	}
}

// DefaultQueueConfig returns the default request queue configuration.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Enabled:         false,
		Name:            "chat",
		MaxSize:         1000,
		RequestTimeout:  300 * time.Second,
		CheckInterval:   60 * time.Second,
		DequeueWait:     10 * time.Second,
		ResultRetention: 600 * time.Second,
		Workers:         4,
	}
}

// DefaultProviderConfig returns the default upstream provider configuration.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Kind:         "openai",
		APIKey:       "",
		BaseURL:      "https://api.openai.com",
		DefaultModel: "gpt-3.5-turbo",
		TimeoutSecs:  60,
		MaxRetries:   3,
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "llm-gateway",
		SampleRate:   0.1,
	}
}
