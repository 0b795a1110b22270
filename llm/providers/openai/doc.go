// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package openai configures llm/providers/openaicompat for the hosted
OpenAI chat-completions API: base URL, supported model list, and the
per-1K-token price table EstimateCost uses.
*/
package openai
