// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package providers holds the common adapter layer shared by the gateway's
two concrete llm.Provider implementations (openai, vllm): HTTP-status to
error-taxonomy mapping, upstream error-body parsing, and the retrying
provider wrapper.

  - MapHTTPError — maps an upstream HTTP status onto the gateway's typed
    error taxonomy (types.ErrorCode), including Retry-After parsing.
  - ReadErrorMessage — best-effort extraction of a human-readable message
    from an upstream error body.
  - RetryableProvider — wraps an llm.Provider, retrying only the unary
    ChatCompletion path with exponential backoff.
*/
package providers
