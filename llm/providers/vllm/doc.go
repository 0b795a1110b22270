// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package vllm configures llm/providers/openaicompat for a self-hosted vLLM
server: base URL, the model vLLM was launched with, and a longer default
timeout to tolerate GPU queueing. It carries no price table, so
EstimateCost always returns 0.
*/
package vllm
