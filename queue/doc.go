// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package queue implements the gateway's bounded, idempotent request queue:
enqueue/dequeue/complete against the shared KV store, with a two-level
priority scheme, idempotency dedup, lease-based processing, and an
expiry-driven cleanup daemon. The queue is optional infrastructure — the
gateway's default admission path calls the provider inline and never
touches Dequeue/Complete.
*/
package queue
