package providers

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/BaSui01/agentflow/llm"
	"go.uber.org/zap"
)

// RetryConfig holds retry configuration for a provider wrapper.
type RetryConfig struct {
	MaxRetries int // Maximum retry attempts, default 3
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3}
}

// RetryableProvider wraps an llm.Provider, retrying only the unary
// ChatCompletion path with exponential backoff (2^attempt seconds), per
// the policy: retry Timeout and generic/connect errors up to MaxRetries;
// never retry RateLimit, Auth, or NotFound; never retry streaming calls,
// since partial output may already have been emitted to the client.
type RetryableProvider struct {
	inner  llm.Provider
	config RetryConfig
	logger *zap.Logger
}

// NewRetryableProvider creates a retrying wrapper around the given provider.
func NewRetryableProvider(inner llm.Provider, config RetryConfig, logger *zap.Logger) *RetryableProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryableProvider{
		inner:  inner,
		config: config,
		logger: logger.With(zap.String("component", "retry_provider"), zap.String("provider", inner.Name())),
	}
}

var _ llm.Provider = (*RetryableProvider)(nil)

func (p *RetryableProvider) Name() string                 { return p.inner.Name() }
func (p *RetryableProvider) SupportedModels() []string     { return p.inner.SupportedModels() }
func (p *RetryableProvider) ValidateModel(m string) bool   { return p.inner.ValidateModel(m) }
func (p *RetryableProvider) Usage() llm.ProviderUsage      { return p.inner.Usage() }
func (p *RetryableProvider) EstimateCost(r *llm.ChatRequest) float64 { return p.inner.EstimateCost(r) }
func (p *RetryableProvider) Close() error                  { return p.inner.Close() }

func (p *RetryableProvider) Health(ctx context.Context) (*llm.HealthStatus, error) {
	return p.inner.Health(ctx)
}

// ChatCompletionStream is never retried; mid-stream errors cannot be undone.
func (p *RetryableProvider) ChatCompletionStream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return p.inner.ChatCompletionStream(ctx, req)
}

// ChatCompletion retries transient failures with exponential backoff.
func (p *RetryableProvider) ChatCompletion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateDelay(attempt)
			p.logger.Debug("retrying chat completion",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := p.inner.ChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryableError(err) {
			return nil, err
		}

		p.logger.Warn("chat completion failed, will retry",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return nil, fmt.Errorf("chat completion failed after %d retries: %w", p.config.MaxRetries, lastErr)
}

// isRetryableError implements the per-code retry policy of spec §4.3:
// retry Timeout and generic upstream/unavailable errors; never retry
// RateLimit, Auth, or NotFound.
func isRetryableError(err error) bool {
	llmErr, ok := err.(*llm.Error)
	if !ok {
		return true // unexpected/connect error: retry
	}
	switch llmErr.Code {
	case llm.ErrRateLimit, llm.ErrAuthentication, llm.ErrModelNotFound:
		return false
	default:
		return llmErr.Retryable
	}
}

func calculateDelay(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}
