package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/BaSui01/agentflow/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubProvider struct {
	name  string
	calls int
	errs  []error
	resp  *llm.ChatResponse
}

func (p *stubProvider) Name() string               { return p.name }
func (p *stubProvider) SupportedModels() []string  { return nil }
func (p *stubProvider) ValidateModel(string) bool  { return true }
func (p *stubProvider) Usage() llm.ProviderUsage   { return llm.ProviderUsage{} }
func (p *stubProvider) EstimateCost(*llm.ChatRequest) float64 { return 0 }
func (p *stubProvider) Close() error               { return nil }

func (p *stubProvider) Health(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (p *stubProvider) ChatCompletionStream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (p *stubProvider) ChatCompletion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) {
		return nil, p.errs[i]
	}
	return p.resp, nil
}

func TestDefaultRetryConfig(t *testing.T) {
	assert.Equal(t, 3, DefaultRetryConfig().MaxRetries)
}

func TestRetryableProvider_RetriesTransientFailure(t *testing.T) {
	inner := &stubProvider{
		name: "mock",
		errs: []error{llm.NewErrorFromCode(llm.ErrUpstreamTimeout, "timeout", 504, true, "mock")},
		resp: &llm.ChatResponse{ID: "1"},
	}
	p := NewRetryableProvider(inner, RetryConfig{MaxRetries: 1}, zap.NewNop())

	resp, err := p.ChatCompletion(context.Background(), &llm.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "1", resp.ID)
	assert.Equal(t, 2, inner.calls)
}

func TestRetryableProvider_NeverRetriesRateLimit(t *testing.T) {
	inner := &stubProvider{
		name: "mock",
		errs: []error{llm.NewErrorFromCode(llm.ErrRateLimit, "slow down", 429, true, "mock")},
	}
	p := NewRetryableProvider(inner, RetryConfig{MaxRetries: 3}, zap.NewNop())

	_, err := p.ChatCompletion(context.Background(), &llm.ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryableProvider_ExhaustsRetries(t *testing.T) {
	upErr := llm.NewErrorFromCode(llm.ErrProviderUnavailable, "down", 503, true, "mock")
	inner := &stubProvider{name: "mock", errs: []error{upErr, upErr, upErr}}
	p := NewRetryableProvider(inner, RetryConfig{MaxRetries: 2}, zap.NewNop())

	_, err := p.ChatCompletion(context.Background(), &llm.ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryableProvider_NeverRetriesStream(t *testing.T) {
	inner := &stubProvider{name: "mock"}
	p := NewRetryableProvider(inner, DefaultRetryConfig(), zap.NewNop())
	_, err := p.ChatCompletionStream(context.Background(), &llm.ChatRequest{})
	assert.Error(t, err)
}
