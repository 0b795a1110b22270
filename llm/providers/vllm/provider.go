// Package vllm adapts a self-hosted vLLM OpenAI-compatible server to the
// gateway's llm.Provider interface. vLLM serves whatever model it was
// launched with and has no metered cost, so EstimateCost always returns 0.
package vllm

import (
	"time"

	"github.com/BaSui01/agentflow/llm/providers/openaicompat"
	"go.uber.org/zap"
)

// defaultTimeout is longer than the hosted adapter's: self-hosted serving
// stacks queue under load and cold-start a model onto the GPU on first use.
const defaultTimeout = 120 * time.Second

// Config configures the vLLM adapter.
type Config struct {
	BaseURL         string   // required, e.g. http://vllm-server:8000
	DefaultModel    string   // required: the model vLLM was launched with
	SupportedModels []string // defaults to []string{DefaultModel}
	APIKey          string   // optional: only set if the deployment fronts vLLM with an API key
	Timeout         time.Duration
}

// New builds an llm.Provider backed by a self-hosted vLLM server. There is
// no PriceTable: self-hosted inference has no per-token USD cost to report.
func New(cfg Config, logger *zap.Logger) *openaicompat.Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	models := cfg.SupportedModels
	if len(models) == 0 {
		models = []string{cfg.DefaultModel}
	}

	return openaicompat.New(openaicompat.Config{
		ProviderName:    "vllm",
		APIKey:          cfg.APIKey,
		BaseURL:         cfg.BaseURL,
		DefaultModel:    cfg.DefaultModel,
		Timeout:         timeout,
		SupportedModels: models,
	}, logger)
}
