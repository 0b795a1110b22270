// Package ctxkeys defines the typed context keys threaded through a single
// request's lifetime, from the HTTP handler down into the rate limiter,
// queue, and provider call.
package ctxkeys

import "context"

type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	clientIDKey    contextKey = "client_id"
	idempotencyKey contextKey = "idempotency_key"
)

// WithRequestID attaches the request id (echoed back as X-Request-ID).
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id, if set.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithClientID attaches the rate-limit identifier for the caller.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientIDKey, id)
}

// ClientID returns the rate-limit identifier, if set.
func ClientID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(clientIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithIdempotencyKey attaches the caller-supplied idempotency key.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey, key)
}

// IdempotencyKey returns the idempotency key, if set.
func IdempotencyKey(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(idempotencyKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
