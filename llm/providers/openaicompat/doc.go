// Package openaicompat provides the shared HTTP/SSE implementation for an
// OpenAI-wire-compatible chat-completions backend: request/response
// marshaling, SSE chunk parsing, health checks, and usage tracking. The
// gateway's two concrete adapters (llm/providers/openai,
// llm/providers/vllm) build a Provider through New and supply only their
// own configuration (base URL, model list, price table).
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "openai",
//	    APIKey:       cfg.APIKey,
//	    BaseURL:      "https://api.openai.com",
//	    DefaultModel: "gpt-3.5-turbo",
//	    PriceTable:   pricing,
//	}, logger)
package openaicompat
