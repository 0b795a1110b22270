// Package openaicompat is the shared HTTP/SSE plumbing for an
// OpenAI-wire-compatible chat-completions backend. The gateway's two
// concrete adapters (openai, vllm) build a Provider through New and only
// supply a price table, model list, and endpoint configuration.
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/agentflow/internal/tlsutil"
	"github.com/BaSui01/agentflow/llm"
	"github.com/BaSui01/agentflow/llm/circuitbreaker"
	"github.com/BaSui01/agentflow/llm/providers"
	"go.uber.org/zap"
)

// ModelPrice is a per-1K-token price pair in USD.
type ModelPrice struct {
	InputPer1K  float64
	OutputPer1K float64
}

// Config holds the configuration for an OpenAI-wire-compatible provider.
type Config struct {
	// ProviderName is this adapter's registered identifier ("openai", "vllm").
	ProviderName string

	APIKey         string
	BaseURL        string
	DefaultModel   string
	Timeout        time.Duration
	EndpointPath   string // defaults to "/v1/chat/completions"
	ModelsEndpoint string // defaults to "/v1/models"

	// SupportedModels is the fixed model allow-list. If empty, ValidateModel
	// accepts DefaultModel only.
	SupportedModels []string

	// PriceTable maps model name to per-1K-token USD rates. A nil table (as
	// used by the self-hosted adapter) makes EstimateCost always return 0.
	PriceTable map[string]ModelPrice
}

// Provider is the shared OpenAI-wire-compatible implementation of the full
// llm.Provider interface. Adapter packages return a *Provider configured
// with their own ProviderName, model list and price table.
type Provider struct {
	cfg     Config
	client  *http.Client
	logger  *zap.Logger
	breaker circuitbreaker.CircuitBreaker

	mu    sync.Mutex
	usage llm.ProviderUsage
}

// New creates a new OpenAI-wire-compatible provider with the given config.
// A per-provider circuit breaker guards the unary completion path: after
// Threshold consecutive upstream failures it trips open for ResetTimeout,
// failing fast instead of piling up timed-out requests against a backend
// that is already down. Streaming responses are long-lived by nature and
// bypass the breaker's fixed per-call Timeout.
func New(cfg Config, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.ModelsEndpoint == "" {
		cfg.ModelsEndpoint = "/v1/models"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("provider", cfg.ProviderName))
	breakerCfg := circuitbreaker.DefaultConfig()
	breakerCfg.Timeout = timeout
	return &Provider{
		cfg:     cfg,
		client:  tlsutil.SecureHTTPClient(timeout),
		logger:  logger,
		breaker: circuitbreaker.NewCircuitBreaker(breakerCfg, logger),
	}
}

func (p *Provider) Name() string { return p.cfg.ProviderName }

func (p *Provider) SupportedModels() []string {
	if len(p.cfg.SupportedModels) > 0 {
		return p.cfg.SupportedModels
	}
	return []string{p.cfg.DefaultModel}
}

func (p *Provider) ValidateModel(name string) bool {
	for _, m := range p.SupportedModels() {
		if m == name {
			return true
		}
	}
	return false
}

func (p *Provider) Usage() llm.ProviderUsage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usage
}

// EstimateCost implements spec's fixed pre-call formula:
// cost = (prompt_chars/4)/1000*input + (max_tokens or 100)/1000*output.
// A provider with no price table (self-hosted) returns 0. A model missing
// from the table is priced at DefaultModel's rates, or 0 if those are
// missing too.
func (p *Provider) EstimateCost(req *llm.ChatRequest) float64 {
	if p.cfg.PriceTable == nil {
		return 0
	}
	price, ok := p.cfg.PriceTable[req.Model]
	if !ok {
		price, ok = p.cfg.PriceTable[p.cfg.DefaultModel]
		if !ok {
			return 0
		}
	}
	promptChars := 0
	for _, m := range req.Messages {
		promptChars += len(m.Content)
	}
	outputTokens := req.MaxTokens
	if outputTokens == 0 {
		outputTokens = 100
	}
	promptCost := (float64(promptChars) / 4 / 1000) * price.InputPer1K
	completionCost := (float64(outputTokens) / 1000) * price.OutputPer1K
	return promptCost + completionCost
}

func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *Provider) endpoint(path string) string {
	return fmt.Sprintf("%s%s", strings.TrimRight(p.cfg.BaseURL, "/"), path)
}

func (p *Provider) buildHeaders(req *http.Request) {
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
}

// Health performs a cheap round trip (list models) to assess liveness.
func (p *Provider) Health(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.cfg.ModelsEndpoint), nil)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Error: err.Error()}, nil
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	latencyMS := float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		return &llm.HealthStatus{Healthy: false, LatencyMS: latencyMS, Error: err.Error()}, nil
	}
	defer providers.SafeCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg := providers.ReadErrorMessage(resp.Body)
		return &llm.HealthStatus{Healthy: false, LatencyMS: latencyMS, Error: msg}, nil
	}
	return &llm.HealthStatus{Healthy: true, LatencyMS: latencyMS}, nil
}

func (p *Provider) trackUsage(resp *llm.ChatResponse, latency time.Duration, cost float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.usage.Requests++
	p.usage.TokensConsumed += int64(resp.Usage.TotalTokens)
	p.usage.CostUSD += cost
	p.usage.SumLatencySeconds += latency.Seconds()
}

// ChatCompletion performs a non-streaming chat completion.
func (p *Provider) ChatCompletion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()
	body := p.toWireRequest(req, false)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	result, err := circuitbreaker.CallWithResultTyped(p.breaker, ctx, func() (*llm.ChatResponse, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.cfg.EndpointPath), bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		p.buildHeaders(httpReq)

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return nil, llm.NewErrorFromCode(llm.ErrUpstreamError, err.Error(), http.StatusBadGateway, true, p.Name())
		}
		defer providers.SafeCloseBody(resp.Body)

		if resp.StatusCode >= 400 {
			msg := providers.ReadErrorMessage(resp.Body)
			return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name(), &resp.Header)
		}

		var wireResp wireResponse
		if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
			return nil, llm.NewErrorFromCode(llm.ErrUpstreamError, err.Error(), http.StatusBadGateway, true, p.Name())
		}
		return wireResp.toChatResponse(), nil
	})
	if err != nil {
		if err == circuitbreaker.ErrCircuitOpen {
			return nil, llm.NewErrorFromCode(llm.ErrProviderUnavailable, "circuit breaker open: upstream has failed repeatedly", http.StatusServiceUnavailable, true, p.Name())
		}
		return nil, err
	}

	p.trackUsage(result, time.Since(start), p.EstimateCost(req))
	return result, nil
}

// ChatCompletionStream performs a streaming chat completion over SSE.
func (p *Provider) ChatCompletionStream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	body := p.toWireRequest(req, true)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llm.NewErrorFromCode(llm.ErrUpstreamError, err.Error(), http.StatusBadGateway, true, p.Name())
	}
	if resp.StatusCode >= 400 {
		defer providers.SafeCloseBody(resp.Body)
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name(), &resp.Header)
	}

	return p.streamSSE(ctx, resp.Body), nil
}

// wireRequest is the OpenAI-compatible chat-completions request body.
type wireRequest struct {
	Model            string        `json:"model"`
	Messages         []wireMessage `json:"messages"`
	Temperature      float64       `json:"temperature,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	TopP             float64       `json:"top_p,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64       `json:"presence_penalty,omitempty"`
	Stop             []string      `json:"stop,omitempty"`
	Stream           bool          `json:"stream,omitempty"`
	User             string        `json:"user,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

func (p *Provider) toWireRequest(req *llm.ChatRequest, stream bool) wireRequest {
	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}
	messages := make([]wireMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = wireMessage{Role: string(m.Role), Content: m.Content, Name: m.Name}
	}
	return wireRequest{
		Model:            model,
		Messages:         messages,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Stop:             req.Stop,
		Stream:           stream,
		User:             req.User,
	}
}

// wireResponse is the OpenAI-compatible chat-completions response body.
type wireResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (w *wireResponse) toChatResponse() *llm.ChatResponse {
	choices := make([]llm.ChatChoice, len(w.Choices))
	for i, c := range w.Choices {
		choices[i] = llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message: llm.Message{
				Role:    llm.Role(c.Message.Role),
				Content: c.Message.Content,
				Name:    c.Message.Name,
			},
		}
	}
	return &llm.ChatResponse{
		ID:      w.ID,
		Object:  "chat.completion",
		Created: w.Created,
		Model:   w.Model,
		Choices: choices,
		Usage: llm.ChatUsage{
			PromptTokens:     w.Usage.PromptTokens,
			CompletionTokens: w.Usage.CompletionTokens,
			TotalTokens:      w.Usage.TotalTokens,
		},
	}
}

// wireChunk is a streamed chat-completions chunk.
type wireChunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// streamSSE reads newline-delimited "data: <json>" lines until [DONE],
// EOF, or a context cancellation. Malformed lines are skipped with a
// warning; a read error after streaming has begun is surfaced as the
// final chunk's error and the channel is then closed.
func (p *Provider) streamSSE(ctx context.Context, body io.ReadCloser) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer providers.SafeCloseBody(body)
		defer close(ch)
		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					select {
					case <-ctx.Done():
					case ch <- llm.StreamChunk{Err: llm.NewErrorFromCode(llm.ErrUpstreamError, err.Error(), http.StatusBadGateway, false, p.Name())}:
					}
				}
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var wc wireChunk
			if err := json.Unmarshal([]byte(data), &wc); err != nil {
				p.logger.Warn("skipping malformed SSE chunk", zap.Error(err))
				continue
			}

			for _, c := range wc.Choices {
				chunk := llm.StreamChunk{
					ID:      wc.ID,
					Object:  "chat.completion.chunk",
					Created: wc.Created,
					Model:   wc.Model,
					Choices: []llm.ChunkChoice{{
						Index:        c.Index,
						FinishReason: c.FinishReason,
						Delta: llm.ChunkDelta{
							Role:    c.Delta.Role,
							Content: c.Delta.Content,
						},
					}},
				}
				select {
				case <-ctx.Done():
					return
				case ch <- chunk:
				}
			}
		}
	}()
	return ch
}
