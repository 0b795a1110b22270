// Package openai adapts the hosted OpenAI chat-completions API to the
// gateway's llm.Provider interface. All HTTP/SSE plumbing lives in
// llm/providers/openaicompat; this package only supplies OpenAI's base
// URL, model list, and per-1K-token price table.
package openai

import (
	"time"

	"github.com/BaSui01/agentflow/llm/providers/openaicompat"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.openai.com"

// pricePerModel mirrors the hosted provider's published per-1K-token USD
// rates. Models not listed here fall back to the default model's price.
var pricePerModel = map[string]openaicompat.ModelPrice{
	"gpt-3.5-turbo":       {InputPer1K: 0.0015, OutputPer1K: 0.002},
	"gpt-3.5-turbo-16k":   {InputPer1K: 0.003, OutputPer1K: 0.004},
	"gpt-4":               {InputPer1K: 0.03, OutputPer1K: 0.06},
	"gpt-4-32k":           {InputPer1K: 0.06, OutputPer1K: 0.12},
	"gpt-4-turbo-preview": {InputPer1K: 0.01, OutputPer1K: 0.03},
}

var supportedModels = []string{
	"gpt-3.5-turbo",
	"gpt-3.5-turbo-16k",
	"gpt-4",
	"gpt-4-32k",
	"gpt-4-turbo-preview",
}

// Config configures the OpenAI adapter.
type Config struct {
	APIKey       string
	BaseURL      string // defaults to https://api.openai.com
	DefaultModel string // defaults to gpt-3.5-turbo
	Timeout      time.Duration
}

// New builds an llm.Provider backed by the hosted OpenAI API.
func New(cfg Config, logger *zap.Logger) *openaicompat.Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "gpt-3.5-turbo"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return openaicompat.New(openaicompat.Config{
		ProviderName:    "openai",
		APIKey:          cfg.APIKey,
		BaseURL:         baseURL,
		DefaultModel:    defaultModel,
		Timeout:         timeout,
		SupportedModels: supportedModels,
		PriceTable:      pricePerModel,
	}, logger)
}
