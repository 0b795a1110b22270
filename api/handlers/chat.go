package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/BaSui01/agentflow/internal/ctxkeys"
	"github.com/BaSui01/agentflow/llm"
	"github.com/BaSui01/agentflow/llm/idempotency"
	"github.com/BaSui01/agentflow/queue"
	"github.com/BaSui01/agentflow/ratelimit"
	"github.com/BaSui01/agentflow/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// 💬 聊天接口 Handler
// =============================================================================

// defaultTokenEstimate is used when a request's token cost cannot be
// derived ahead of calling the provider (§4.4 step 2).
const defaultTokenEstimate = 100

// resultPollInterval paces GetResult polling while a non-streaming request
// waits on the queue's worker pool to publish its outcome.
const resultPollInterval = 50 * time.Millisecond

// idempotencyTTL bounds how long a direct (non-queued) completion's cached
// result answers a replayed Idempotency-Key. The queued path has its own,
// separate idempotency mapping keyed by the queue item's timeout instead.
const idempotencyTTL = 10 * time.Minute

// ChatHandler serves POST /v1/chat/completions: admission via the rate
// limiter, model validation, then unary or streamed forwarding to a single
// configured provider. The queue is optional infrastructure — when nil,
// every non-streaming request is forwarded synchronously; when set, the
// request is enqueued and this handler polls for the worker pool's result
// instead of calling the provider directly. Streaming requests always
// bypass the queue (§4.2: "Streaming responses bypass the queue and
// forward chunks end-to-end").
type ChatHandler struct {
	provider llm.Provider
	limiter  *ratelimit.Limiter
	queue    *queue.Queue
	idem     idempotency.Manager
	logger   *zap.Logger
}

// NewChatHandler 创建聊天处理器。q 为 nil 时退化为直通模式；idem 为 nil 时
// 直通模式下不去重重复的 Idempotency-Key（排队模式始终有自己的去重，见
// queue.Enqueue）。
func NewChatHandler(provider llm.Provider, limiter *ratelimit.Limiter, q *queue.Queue, idem idempotency.Manager, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		provider: provider,
		limiter:  limiter,
		queue:    q,
		idem:     idem,
		logger:   logger,
	}
}

// HandleCompletion 处理聊天补全请求（统一入口，stream=true 时转为 SSE 流式）
// @Summary 聊天完成
// @Description 发送聊天完成请求，根据 stream 字段决定是否以 SSE 返回
// @Tags 聊天
// @Accept json
// @Produce json
// @Param request body llm.ChatRequest true "聊天请求"
// @Success 200 {object} llm.ChatResponse "聊天响应"
// @Failure 400 {object} Response "无效请求"
// @Failure 429 {object} Response "超出速率限制"
// @Router /v1/chat/completions [post]
func (h *ChatHandler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req llm.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if err := h.validateChatRequest(&req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	requestID := requestIDFrom(r)
	w.Header().Set("X-Request-ID", requestID)

	identifier := identifierFrom(r)
	ctx := ctxkeys.WithClientID(ctxkeys.WithRequestID(r.Context(), requestID), identifier)
	r = r.WithContext(ctx)

	result := h.limiter.CheckBoth(r.Context(), identifier, tokenEstimate(&req))
	if !result.Allowed {
		writeRateLimitHeaders(w, h.limiter, result)
		err := types.NewError(types.ErrRateLimit, "rate limit exceeded").WithRetryable(true)
		err.RetryAfterSeconds = int(result.RetryAfter.Seconds())
		WriteError(w, err, h.logger)
		return
	}

	if !h.provider.ValidateModel(req.Model) {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "model not supported: "+req.Model), h.logger)
		return
	}

	if req.Stream {
		h.streamCompletion(w, r, &req)
		return
	}

	if h.queue != nil {
		h.enqueueAndAwait(w, r, &req, requestID, identifier)
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	if h.idem != nil && idemKey != "" {
		if cached, ok, err := h.idem.Get(r.Context(), idemKey); err == nil && ok {
			var resp llm.ChatResponse
			if err := json.Unmarshal(cached, &resp); err == nil {
				h.logger.Info("chat completion (idempotent replay)", zap.String("request_id", requestID), zap.String("idempotency_key", idemKey))
				WriteJSON(w, http.StatusOK, &resp)
				return
			}
		}
	}

	start := time.Now()
	resp, err := h.provider.ChatCompletion(r.Context(), &req)
	duration := time.Since(start)
	if err != nil {
		h.handleProviderError(w, err)
		return
	}

	if h.idem != nil && idemKey != "" {
		if err := h.idem.Set(r.Context(), idemKey, resp, idempotencyTTL); err != nil {
			h.logger.Warn("failed to cache idempotent result", zap.String("idempotency_key", idemKey), zap.Error(err))
		}
	}

	h.logger.Info("chat completion",
		zap.String("request_id", requestID),
		zap.String("model", req.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("duration", duration),
	)

	WriteJSON(w, http.StatusOK, resp)
}

// enqueueAndAwait admits req to the queue and polls for its result,
// preserving the synchronous wire contract: the caller still receives a
// single JSON ChatResponse (or error) from this same HTTP request, with
// the worker pool standing in for a direct provider call (§4.2).
func (h *ChatHandler) enqueueAndAwait(w http.ResponseWriter, r *http.Request, req *llm.ChatRequest, requestID, identifier string) {
	ctx := r.Context()

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if len(idempotencyKey) > 256 {
		WriteError(w, types.NewError(types.ErrValidation, "idempotency key too long"), h.logger)
		return
	}

	priority, perr := priorityFrom(r)
	if perr != nil {
		WriteError(w, types.NewError(types.ErrValidation, "invalid X-Priority header"), h.logger)
		return
	}

	timeout := h.queue.DefaultTimeout()
	id, err := h.queue.Enqueue(ctx, *req, priority, timeout, identifier, idempotencyKey)
	if err != nil {
		h.handleQueueError(w, err)
		return
	}

	ticker := time.NewTicker(resultPollInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			WriteError(w, types.NewError(types.ErrUpstreamTimeout, "request timed out waiting for queue").WithRetryable(true), h.logger)
			return
		case <-ticker.C:
			result, ok, err := h.queue.GetResult(ctx, id)
			if err != nil {
				h.handleQueueError(w, err)
				return
			}
			if !ok {
				continue
			}
			if result.Error != "" {
				WriteError(w, types.NewError(types.ErrUpstreamError, result.Error), h.logger)
				return
			}

			h.logger.Info("chat completion (queued)",
				zap.String("request_id", requestID),
				zap.String("queue_item_id", id),
				zap.String("model", req.Model),
			)
			WriteJSON(w, http.StatusOK, result.Response)
			return
		}
	}
}

// priorityFrom reads the optional X-Priority header: absent means 0
// (normal priority); any non-negative integer is accepted. This header is
// not part of the wire contract's required surface — it exists purely to
// let callers exercise the queue's two-level priority scheme.
func priorityFrom(r *http.Request) (int, error) {
	raw := r.Header.Get("X-Priority")
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, types.NewError(types.ErrValidation, "X-Priority must be a non-negative integer")
	}
	return v, nil
}

func (h *ChatHandler) handleQueueError(w http.ResponseWriter, err error) {
	if err == queue.ErrQueueFull {
		WriteError(w, types.NewError(types.ErrQueueFull, "queue is full").WithRetryable(true), h.logger)
		return
	}
	h.logger.Error("queue operation failed", zap.Error(err))
	WriteError(w, types.NewError(types.ErrInternalError, "queue error").WithCause(err), h.logger)
}

// streamCompletion 处理流式聊天请求，按 §6 的 SSE 线格式逐块转发
func (h *ChatHandler) streamCompletion(w http.ResponseWriter, r *http.Request, req *llm.ChatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, types.NewError(types.ErrInternalError, "streaming not supported"), h.logger)
		return
	}

	ctx := r.Context()
	stream, err := h.provider.ChatCompletionStream(ctx, req)
	if err != nil {
		h.handleProviderError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // 禁用 nginx 缓冲
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for chunk := range stream {
		select {
		case <-ctx.Done():
			// client disconnected or enclosing timeout fired: stop forwarding
			// without emitting [DONE], per §4.4 cancellation semantics.
			return
		default:
		}

		if chunk.Err != nil {
			h.logger.Error("stream error", zap.Error(chunk.Err))
			errPayload, _ := json.Marshal(map[string]string{"error": chunk.Err.Message})
			w.Write([]byte("event: error\ndata: "))
			w.Write(errPayload)
			w.Write([]byte("\n\n"))
			flusher.Flush()
			return
		}

		payload, err := json.Marshal(chunk)
		if err != nil {
			h.logger.Error("failed to marshal stream chunk", zap.Error(err))
			return
		}
		w.Write([]byte("data: "))
		w.Write(payload)
		w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func (h *ChatHandler) validateChatRequest(req *llm.ChatRequest) *types.Error {
	if req.Model == "" {
		return types.NewError(types.ErrValidation, "model is required")
	}
	if len(req.Messages) == 0 {
		return types.NewError(types.ErrValidation, "messages cannot be empty")
	}
	if req.Temperature < 0 || req.Temperature > 2 {
		return types.NewError(types.ErrValidation, "temperature must be between 0 and 2")
	}
	if req.TopP < 0 || req.TopP > 1 {
		return types.NewError(types.ErrValidation, "top_p must be between 0 and 1")
	}
	return nil
}

// identifierFrom extracts the rate-limit identifier: X-User-ID header,
// else the peer address, else "unknown" (§4.4 step 1).
func identifierFrom(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// requestIDFrom echoes the inbound X-Request-ID or generates one.
func requestIDFrom(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// tokenEstimate derives a pre-call token estimate for the rate limiter's
// token-dimension check. MaxTokens, when set, is the best signal available
// pre-call; otherwise fall back to the documented default (§4.4 step 2).
func tokenEstimate(req *llm.ChatRequest) float64 {
	if req.MaxTokens > 0 {
		return float64(req.MaxTokens)
	}
	return defaultTokenEstimate
}

func writeRateLimitHeaders(w http.ResponseWriter, limiter *ratelimit.Limiter, result ratelimit.Result) {
	w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
	w.Header().Set("X-RateLimit-Limit-Requests", strconv.FormatFloat(limiter.RequestsLimit(), 'f', -1, 64))
	w.Header().Set("X-RateLimit-Remaining-Requests", strconv.FormatFloat(result.Remaining, 'f', -1, 64))
	w.Header().Set("X-RateLimit-Reset-Requests", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// handleProviderError 处理 Provider 错误
func (h *ChatHandler) handleProviderError(w http.ResponseWriter, err error) {
	if typedErr, ok := err.(*types.Error); ok {
		WriteError(w, typedErr, h.logger)
		return
	}

	internalErr := types.NewError(types.ErrInternalError, "provider error").
		WithCause(err).
		WithRetryable(false)
	WriteError(w, internalErr, h.logger)
}
