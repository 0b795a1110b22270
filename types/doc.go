// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package types provides the shared wire and error types used across the
// gateway: chat messages, and the structured Error used to carry a typed
// failure from a provider adapter through to the HTTP response. It has no
// dependency on any other internal package so it can be imported from
// anywhere without a cycle.
package types
