// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package api defines the wire-level types shared across the gateway's HTTP
surface: the chat-completions request/response envelope (see package llm
for the canonical ChatRequest/ChatResponse/StreamChunk types consumed by
providers) and the common Response/ErrorInfo wrapper that api/handlers
writes for every error and for the /version payload. Successful chat
completions and the health probes write their own bodies without it.

Routes:

	POST /v1/chat/completions   unary or streamed (SSE) chat completion
	GET  /health, /healthz      liveness probes, never consult provider health
	GET  /ready, /readyz        readiness probe, runs the registered checks (provider included)
	GET  /version               build information
*/
package api
