package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	_, ok := RequestID(context.Background())
	assert.False(t, ok)

	ctx := WithRequestID(context.Background(), "req-1")
	id, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)
}

func TestClientID(t *testing.T) {
	ctx := WithClientID(context.Background(), "user-1")
	id, ok := ClientID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "user-1", id)
}

func TestIdempotencyKey(t *testing.T) {
	ctx := WithIdempotencyKey(context.Background(), "key-1")
	key, ok := IdempotencyKey(ctx)
	assert.True(t, ok)
	assert.Equal(t, "key-1", key)

	_, ok = IdempotencyKey(context.Background())
	assert.False(t, ok)
}
