// Package ratelimit implements a distributed token-bucket rate limiter
// backed by an atomic Lua script against the shared KV store. Every
// process sharing the store sees a linearizable view of each identifier's
// bucket state; there is no local caching of tokens.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/BaSui01/agentflow/internal/kv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dimension names the two buckets tracked per identifier.
type Dimension string

const (
	DimensionRequests Dimension = "requests"
	DimensionTokens   Dimension = "tokens"
)

// BucketConfig configures one (dimension) token bucket.
type BucketConfig struct {
	Capacity     float64
	RefillRate   float64       // tokens granted per RefillPeriod
	RefillPeriod time.Duration // default 60s
}

// Config configures the Limiter's two dimensions.
type Config struct {
	Requests BucketConfig
	Tokens   BucketConfig
}

// DefaultConfig builds buckets from requests/tokens-per-minute and a burst
// allowance, per the gateway's configuration surface: requests capacity is
// rpm+burst, tokens capacity is tpm+burst*100.
func DefaultConfig(requestsPerMinute, tokensPerMinute, burst int) Config {
	return Config{
		Requests: BucketConfig{
			Capacity:     float64(requestsPerMinute + burst),
			RefillRate:   float64(requestsPerMinute),
			RefillPeriod: time.Minute,
		},
		Tokens: BucketConfig{
			Capacity:     float64(tokensPerMinute + burst*100),
			RefillRate:   float64(tokensPerMinute),
			RefillPeriod: time.Minute,
		},
	}
}

// Result is the outcome of a check.
type Result struct {
	Allowed    bool
	Remaining  float64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter evaluates token-bucket admission decisions atomically against
// the shared KV store. KV errors fail open: a dependency outage admits
// rather than denies, trading fairness for availability.
type Limiter struct {
	kv     kv.Client
	cfg    Config
	logger *zap.Logger
	script *redis.Script
}

// New builds a Limiter against an existing KV client.
func New(client kv.Client, cfg Config, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{kv: client, cfg: cfg, logger: logger, script: tokenBucketScript}
}

// RequestsLimit returns the configured requests-dimension bucket capacity,
// for surfacing as a rate-limit header alongside a Result's Remaining.
func (l *Limiter) RequestsLimit() float64 {
	return l.cfg.Requests.Capacity
}

func bucketConfig(cfg Config, dim Dimension) BucketConfig {
	if dim == DimensionTokens {
		return cfg.Tokens
	}
	return cfg.Requests
}

func bucketKey(identifier string, dim Dimension) string {
	return "rate_limit:" + string(dim) + ":" + identifier
}

// Check consumes n tokens from dimension's bucket for identifier. n=0 is a
// legal peek and never denies on a fresh (or any non-empty) bucket.
func (l *Limiter) Check(ctx context.Context, identifier string, dim Dimension, n float64) Result {
	bc := bucketConfig(l.cfg, dim)
	period := bc.RefillPeriod
	if period == 0 {
		period = time.Minute
	}
	key := bucketKey(identifier, dim)

	res, err := l.kv.RunScript(ctx, l.script, []string{key},
		bc.Capacity, bc.RefillRate, period.Seconds(), n, float64(time.Now().Unix()),
	)
	if err != nil {
		l.logger.Warn("rate limiter KV error, failing open",
			zap.String("identifier", identifier), zap.String("dimension", string(dim)), zap.Error(err))
		return Result{Allowed: true, Remaining: bc.Capacity, ResetAt: time.Now().Add(period)}
	}

	values, ok := res.([]any)
	if !ok || len(values) != 4 {
		l.logger.Warn("rate limiter script returned unexpected shape, failing open",
			zap.String("identifier", identifier))
		return Result{Allowed: true, Remaining: bc.Capacity, ResetAt: time.Now().Add(period)}
	}

	allowed := toInt64(values[0]) == 1
	remaining := toFloat64(values[1])
	resetAt := time.Unix(toInt64(values[2]), 0)
	retryAfter := time.Duration(toInt64(values[3])) * time.Second

	return Result{Allowed: allowed, Remaining: remaining, ResetAt: resetAt, RetryAfter: retryAfter}
}

// CheckBoth checks the requests dimension (n=1) first — it is the cheaper
// check — and only checks the tokens dimension (n=tokensEstimate) if the
// first admits. On overall admission, Remaining is the minimum across
// dimensions and ResetAt is the later of the two.
func (l *Limiter) CheckBoth(ctx context.Context, identifier string, tokensEstimate float64) Result {
	reqResult := l.Check(ctx, identifier, DimensionRequests, 1)
	if !reqResult.Allowed {
		return reqResult
	}

	tokResult := l.Check(ctx, identifier, DimensionTokens, tokensEstimate)
	if !tokResult.Allowed {
		return tokResult
	}

	remaining := reqResult.Remaining
	if tokResult.Remaining < remaining {
		remaining = tokResult.Remaining
	}
	resetAt := reqResult.ResetAt
	if tokResult.ResetAt.After(resetAt) {
		resetAt = tokResult.ResetAt
	}
	return Result{Allowed: true, Remaining: remaining, ResetAt: resetAt}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(math.Round(n))
	case string:
		var out int64
		_, _ = fmt.Sscan(n, &out)
		return out
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	case string:
		var out float64
		_, _ = fmt.Sscan(n, &out)
		return out
	default:
		return 0
	}
}
