// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package ratelimit implements the gateway's per-identifier admission
control: two token buckets (requests, tokens) evaluated atomically
against the shared KV store via a single Lua script per check. KV errors
fail open — a store outage admits traffic rather than blocking it, a
deliberate availability-over-fairness choice that callers should surface
to operators.
*/
package ratelimit
