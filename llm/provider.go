// Package llm provides the Provider capability interface shared by every
// upstream adapter, and the wire-compatible chat types that flow through
// the admission pipeline to a Provider and back out to the HTTP layer.
package llm

import (
	"context"

	"github.com/BaSui01/agentflow/types"
)

// Re-exported so callers only need to import llm for the common path.
type (
	Message   = types.Message
	Role      = types.Role
	Error     = types.Error
	ErrorCode = types.ErrorCode
)

const (
	RoleSystem    = types.RoleSystem
	RoleUser      = types.RoleUser
	RoleAssistant = types.RoleAssistant
)

const (
	ErrInvalidRequest      = types.ErrInvalidRequest
	ErrAuthentication      = types.ErrAuthentication
	ErrForbidden           = types.ErrForbidden
	ErrRateLimit           = types.ErrRateLimit
	ErrModelNotFound       = types.ErrModelNotFound
	ErrUpstreamTimeout     = types.ErrUpstreamTimeout
	ErrUpstreamError       = types.ErrUpstreamError
	ErrProviderUnavailable = types.ErrProviderUnavailable
	ErrInternalError       = types.ErrInternalError
)

// Provider is the uniform capability every upstream LLM backend exposes.
// A concrete adapter translates ChatRequest/ChatResponse to and from its
// own wire format and surfaces only the typed errors in types/error.go.
type Provider interface {
	// Name is the provider's registered identifier (e.g. "openai", "vllm").
	Name() string

	// SupportedModels lists the model names this provider will accept.
	SupportedModels() []string

	// ValidateModel reports whether name is one SupportedModels contains.
	ValidateModel(name string) bool

	// ChatCompletion performs a unary chat completion call.
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// ChatCompletionStream performs a streaming chat completion call. The
	// returned channel is closed when the upstream sends [DONE], the
	// context is cancelled, or an error occurs (delivered as the final
	// StreamChunk's Err field before the channel closes).
	ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	// Health performs a cheap round trip to the upstream to assess liveness.
	Health(ctx context.Context) (*HealthStatus, error)

	// Usage reports this process's cumulative usage counters.
	Usage() ProviderUsage

	// EstimateCost returns a pre-call cost estimate in USD for req.
	EstimateCost(req *ChatRequest) float64

	// Close releases any held connections. Safe to call once at shutdown.
	Close() error
}

// HealthStatus is the result of Provider.Health.
type HealthStatus struct {
	Healthy   bool           `json:"healthy"`
	LatencyMS float64        `json:"latency_ms,omitempty"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ProviderUsage holds monotonically increasing per-process counters, reset
// only on restart. Fields are updated under a short critical section or
// atomic add — never read-modify-write across a suspension point.
type ProviderUsage struct {
	Requests          int64   `json:"requests"`
	TokensConsumed    int64   `json:"tokens_consumed"`
	CostUSD           float64 `json:"cost_usd"`
	SumLatencySeconds float64 `json:"sum_latency_seconds"`
}

// AvgLatencyMS returns the mean request latency in milliseconds, or 0 if
// no requests have completed yet.
func (u ProviderUsage) AvgLatencyMS() float64 {
	if u.Requests == 0 {
		return 0
	}
	return (u.SumLatencySeconds / float64(u.Requests)) * 1000
}

// ChatRequest is the internal representation of an inbound chat-completion
// call; it is immutable once admitted. Field ranges and defaults match the
// OpenAI-compatible wire contract validated at the HTTP boundary.
type ChatRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Temperature      float64   `json:"temperature,omitempty"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	TopP             float64   `json:"top_p,omitempty"`
	FrequencyPenalty float64   `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64   `json:"presence_penalty,omitempty"`
	Stop             []string  `json:"stop,omitempty"`
	Stream           bool      `json:"stream,omitempty"`
	User             string    `json:"user,omitempty"`
}

// ChatResponse is the OpenAI-compatible unary response envelope.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

// ChatChoice is a single completion choice.
type ChatChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// ChatUsage reports token accounting for one response.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamChunk is one SSE event's JSON payload. The first chunk of a stream
// carries Delta.Role == "assistant"; the terminal chunk carries an empty
// delta and a non-empty FinishReason.
type StreamChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Err     *Error        `json:"-"`
}

// ChunkChoice is one choice within a StreamChunk.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkDelta carries the incremental fields of a streamed message. Role is
// only set on the first chunk; Content is set on every non-terminal chunk.
type ChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// NewErrorFromCode re-exports types.NewErrorFromCode for adapter packages
// that only import llm.
func NewErrorFromCode(code ErrorCode, message string, httpStatus int, retryable bool, provider string) *Error {
	return types.NewErrorFromCode(code, message, httpStatus, retryable, provider)
}

// IsRetryable reports whether err is a types.Error marked retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}
