package vllm

import (
	"testing"

	"github.com/BaSui01/agentflow/llm"
	"github.com/stretchr/testify/assert"
)

func TestNew_Defaults(t *testing.T) {
	p := New(Config{BaseURL: "http://localhost:8000", DefaultModel: "llama-3-8b"}, nil)
	assert.Equal(t, "vllm", p.Name())
	assert.True(t, p.ValidateModel("llama-3-8b"))
	assert.False(t, p.ValidateModel("gpt-4"))
}

func TestEstimateCost_AlwaysZero(t *testing.T) {
	p := New(Config{BaseURL: "http://localhost:8000", DefaultModel: "llama-3-8b"}, nil)
	cost := p.EstimateCost(&llm.ChatRequest{
		Model:     "llama-3-8b",
		Messages:  []llm.Message{{Content: "a very long prompt here"}},
		MaxTokens: 500,
	})
	assert.Equal(t, float64(0), cost)
}

func TestNew_SupportedModelsOverride(t *testing.T) {
	p := New(Config{
		BaseURL:         "http://localhost:8000",
		DefaultModel:    "llama-3-8b",
		SupportedModels: []string{"llama-3-8b", "mistral-7b"},
	}, nil)
	assert.True(t, p.ValidateModel("mistral-7b"))
}
